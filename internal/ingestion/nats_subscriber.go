package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"BasketLedger/internal/core"
	"BasketLedger/internal/observability"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	CommandStream  = "BASKET_COMMANDS"
	CommandSubject = "basket.commands.>"
)

// CommandConsumer feeds commands from a JetStream durable consumer into the
// gateway. Submitters publish to basket.commands.<op>; the subject suffix is
// informational, the op inside the payload is authoritative.
type CommandConsumer struct {
	js       jetstream.JetStream
	gateway  *Gateway
	durable  string
	consumer jetstream.ConsumeContext
	logger   zerolog.Logger
}

func NewCommandConsumer(js jetstream.JetStream, gateway *Gateway, durable string) *CommandConsumer {
	return &CommandConsumer{
		js:      js,
		gateway: gateway,
		durable: durable,
		logger:  observability.NewLogger("nats"),
	}
}

// Subscribe creates the durable consumer and starts delivery. Consumers use
// explicit ACK, max_deliver=5, ack_wait=30s.
func (cc *CommandConsumer) Subscribe(ctx context.Context) error {
	consumer, err := cc.js.CreateOrUpdateConsumer(ctx, CommandStream, jetstream.ConsumerConfig{
		Durable:       cc.durable,
		FilterSubject: CommandSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", cc.durable, err)
	}

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		cc.handle(msg)
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", cc.durable, err)
	}
	cc.consumer = consumeCtx
	cc.logger.Info().Str("subject", CommandSubject).Str("consumer", cc.durable).Msg("subscribed")
	return nil
}

// handle acknowledges every command the engine sequenced, rejected or not,
// because redelivery would only hit the idempotency check. Malformed
// payloads are terminated so they are never redelivered. Commands refused
// during shutdown are nacked for the next process.
func (cc *CommandConsumer) handle(msg jetstream.Msg) {
	res, err := cc.gateway.Submit(TransportNATS, msg.Data())
	switch {
	case err != nil && IsMalformed(err):
		if termErr := msg.Term(); termErr != nil {
			cc.logger.Warn().Err(termErr).Str("subject", msg.Subject()).Msg("term failed")
		}
		return
	case errors.Is(err, core.ErrStopped):
		if nakErr := msg.Nak(); nakErr != nil {
			cc.logger.Warn().Err(nakErr).Str("subject", msg.Subject()).Msg("nak failed")
		}
		return
	case err != nil:
		cc.logger.Debug().
			Int64("sequence", res.Sequence).
			Str("reason", res.Rejection).
			Msg("command rejected")
	}
	if ackErr := msg.Ack(); ackErr != nil {
		cc.logger.Warn().Err(ackErr).Int64("sequence", res.Sequence).Msg("ack failed")
	}
}

// Stop stops delivery.
func (cc *CommandConsumer) Stop() {
	if cc.consumer != nil {
		cc.consumer.Stop()
	}
	cc.logger.Info().Msg("NATS consumer stopped")
}

// EnsureStreams creates the command and event streams if they don't exist.
// Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      CommandStream,
			Subjects:  []string{CommandSubject},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:       EventStream,
			Subjects:   []string{EventSubjectPrefix + ".>", ResultSubjectPrefix + ".>"},
			Storage:    jetstream.FileStorage,
			Retention:  jetstream.LimitsPolicy,
			MaxAge:     72 * time.Hour,
			Replicas:   1,
			Duplicates: 10 * time.Minute,
		},
	}

	logger := observability.NewLogger("nats")
	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		logger.Info().Str("stream", cfg.Name).Msg("ensured stream")
	}
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	logger := observability.NewLogger("nats")
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	return nc, js, nil
}
