package ingestion_test

import (
	"context"
	"testing"
	"time"

	"BasketLedger/internal/core"
	"BasketLedger/internal/custody"
	"BasketLedger/internal/escrow"
	"BasketLedger/internal/ingestion"
	"BasketLedger/internal/registry"
	"BasketLedger/internal/testutil"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandConsumer_Integration(t *testing.T) {
	testutil.RequireIntegration(t)

	nc, js, err := ingestion.ConnectNATS(testutil.TestNATSURL())
	if err != nil {
		t.Skipf("test nats not available: %v", err)
	}
	defer nc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, ingestion.EnsureStreams(ctx, js))
	_ = js.DeleteConsumer(ctx, ingestion.CommandStream, "it-consumer")
	stream, err := js.Stream(ctx, ingestion.CommandStream)
	require.NoError(t, err)
	require.NoError(t, stream.Purge(ctx))

	admin := common.HexToAddress("0xa1")
	engine, err := core.NewEngine(core.Config{
		CurrencyAddress: common.HexToAddress("0xe0"),
		Currency:        custody.TokenConfig{Symbol: "BASE", FaucetAmount: 10},
		Factory:         registry.FactoryConfig{Address: common.HexToAddress("0xf1"), Admin: admin, ProductionFeeRecipient: admin},
		Escrow:          escrow.Config{Address: common.HexToAddress("0xe5"), Admin: admin, TransactionFeeRecipient: admin},
	}, nil, nil, nil, nil)
	require.NoError(t, err)

	consumer := ingestion.NewCommandConsumer(js, ingestion.NewGateway(engine, nil), "it-consumer")
	require.NoError(t, consumer.Subscribe(ctx))
	defer consumer.Stop()

	_, err = js.Publish(ctx, "basket.commands.faucet", validCommand(t))
	require.NoError(t, err)
	_, err = js.Publish(ctx, "basket.commands.bogus", []byte("not json"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return engine.Sequence() >= 1 }, 10*time.Second, 50*time.Millisecond)
	assert.Equal(t, int64(1), engine.Sequence())
}
