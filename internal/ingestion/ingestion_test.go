package ingestion_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"BasketLedger/internal/command"
	"BasketLedger/internal/core"
	"BasketLedger/internal/event"
	"BasketLedger/internal/ingestion"
	"BasketLedger/internal/observability"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExecutor struct {
	got []*command.Command
}

func (r *recordingExecutor) Execute(cmd *command.Command) (core.Result, error) {
	r.got = append(r.got, cmd)
	return core.Result{Sequence: int64(len(r.got))}, nil
}

func validCommand(t *testing.T) []byte {
	t.Helper()
	cmd, err := command.New(uuid.New(), common.HexToAddress("0xa11c"), 0, time.Unix(1_700_000_000, 0),
		&command.Faucet{Token: common.HexToAddress("0xe0")})
	require.NoError(t, err)
	return cmd.Raw
}

func TestGateway_SubmitsParsedCommands(t *testing.T) {
	exec := &recordingExecutor{}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	gw := ingestion.NewGateway(exec, metrics)

	res, err := gw.Submit(ingestion.TransportGRPC, validCommand(t))
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Sequence)
	require.Len(t, exec.got, 1)
	assert.Equal(t, command.OpFaucet, exec.got[0].Op)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.IngestReceived.WithLabelValues(ingestion.TransportGRPC)))
}

func TestGateway_MalformedNeverReachesEngine(t *testing.T) {
	exec := &recordingExecutor{}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	gw := ingestion.NewGateway(exec, metrics)

	res, err := gw.Submit(ingestion.TransportNATS, []byte(`{"op":"deposit"`))
	require.Error(t, err)
	assert.True(t, ingestion.IsMalformed(err))
	assert.Equal(t, core.KindMalformed, res.Rejection)
	assert.Zero(t, res.Sequence)
	assert.Empty(t, exec.got)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.IngestInvalid.WithLabelValues(ingestion.TransportNATS)))
}

type published struct {
	subject string
	data    []byte
}

type fakeJetStream struct {
	msgs []published
}

func (f *fakeJetStream) Publish(_ context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	f.msgs = append(f.msgs, published{subject: subject, data: data})
	return &jetstream.PubAck{Stream: ingestion.EventStream}, nil
}

func TestEventPublisher_PublishesEventsThenResult(t *testing.T) {
	js := &fakeJetStream{}
	ch := make(chan core.Output, 1)
	ch <- core.Output{Envelope: &event.CommandEnvelope{
		Sequence:  12,
		CommandID: "c-1",
		Op:        "deposit",
		Sender:    "0xA11c",
		Events: []event.Record{
			{Type: "Transfer", Payload: json.RawMessage(`{"amount":5}`)},
			{Type: "Deposited", Payload: json.RawMessage(`{"amount":5}`)},
		},
	}}
	close(ch)

	require.NoError(t, ingestion.NewEventPublisher(js, ch).Run(context.Background()))

	require.Len(t, js.msgs, 3)
	assert.Equal(t, "basket.events.Transfer", js.msgs[0].subject)
	assert.Equal(t, "basket.events.Deposited", js.msgs[1].subject)
	assert.Equal(t, "basket.results.deposit", js.msgs[2].subject)

	var evt ingestion.PublishedEvent
	require.NoError(t, json.Unmarshal(js.msgs[1].data, &evt))
	assert.Equal(t, int64(12), evt.Sequence)
	assert.Equal(t, 1, evt.Index)
	assert.JSONEq(t, `{"amount":5}`, string(evt.Payload))

	var res ingestion.PublishedResult
	require.NoError(t, json.Unmarshal(js.msgs[2].data, &res))
	assert.Equal(t, 2, res.Events)
	assert.Empty(t, res.Rejection)
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, "basket.events.OrderFilled", ingestion.EventSubject("OrderFilled"))
	assert.Equal(t, "basket.results.fill_buy_order", ingestion.ResultSubject("fill_buy_order"))
}
