package ingestion

import (
	"errors"

	"BasketLedger/internal/command"
	"BasketLedger/internal/core"
	"BasketLedger/internal/observability"

	"github.com/rs/zerolog"
)

// Transport labels for ingestion metrics.
const (
	TransportNATS = "nats"
	TransportGRPC = "grpc"
	TransportHTTP = "http"
)

// Executor runs one parsed command. *core.Engine implements it.
type Executor interface {
	Execute(cmd *command.Command) (core.Result, error)
}

// Gateway is the single entry for wire-form commands from every transport.
// It validates and parses before anything reaches the engine; malformed
// input is never sequenced.
type Gateway struct {
	exec    Executor
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewGateway(exec Executor, metrics *observability.Metrics) *Gateway {
	return &Gateway{
		exec:    exec,
		metrics: metrics,
		logger:  observability.NewLogger("ingestion"),
	}
}

// Submit parses data and executes it. A malformed command returns an error
// wrapping command.ErrMalformed and a zero Result. Domain rejections return
// the sequenced Result together with the rejection error.
func (g *Gateway) Submit(transport string, data []byte) (core.Result, error) {
	if g.metrics != nil {
		g.metrics.IngestReceived.WithLabelValues(transport).Inc()
	}

	cmd, err := command.Parse(data)
	if err != nil {
		if g.metrics != nil {
			g.metrics.IngestInvalid.WithLabelValues(transport).Inc()
		}
		g.logger.Warn().Err(err).Str("transport", transport).Int("bytes", len(data)).Msg("malformed command")
		return core.Result{Rejection: core.KindMalformed, Error: err.Error()}, err
	}
	return g.exec.Execute(cmd)
}

// IsMalformed reports whether err came from parsing rather than execution.
func IsMalformed(err error) bool {
	return errors.Is(err, command.ErrMalformed)
}
