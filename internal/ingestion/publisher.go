package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"BasketLedger/internal/core"
	"BasketLedger/internal/event"
	"BasketLedger/internal/observability"

	"github.com/ethereum/go-ethereum/common"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	EventStream         = "BASKET_EVENTS"
	EventSubjectPrefix  = "basket.events"
	ResultSubjectPrefix = "basket.results"
)

// Publisher is the subset of jetstream.JetStream the event publisher uses.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// PublishedEvent is the outbound form of one domain event.
type PublishedEvent struct {
	Sequence  int64           `json:"sequence"`
	CommandID string          `json:"command_id"`
	Index     int             `json:"index"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// PublishedResult is the outbound outcome of one sequenced command.
type PublishedResult struct {
	Sequence  int64     `json:"sequence"`
	CommandID string    `json:"command_id"`
	Op        string    `json:"op"`
	Sender    string    `json:"sender"`
	Rejection string    `json:"rejection,omitempty"`
	Events    int       `json:"events"`
	StateHash string    `json:"state_hash"`
	Timestamp time.Time `json:"timestamp"`
}

// EventPublisher drains the engine's publish channel to JetStream. Events go
// to basket.events.<Type>, command outcomes to basket.results.<op>. Message
// IDs are derived from the command ID, so a republish is deduplicated by the
// stream.
type EventPublisher struct {
	js        Publisher
	inputChan <-chan core.Output
	logger    zerolog.Logger
}

func NewEventPublisher(js Publisher, inputChan <-chan core.Output) *EventPublisher {
	return &EventPublisher{
		js:        js,
		inputChan: inputChan,
		logger:    observability.NewLogger("publisher"),
	}
}

// Run publishes until ctx is cancelled or the channel is closed. Publish
// failures are logged and skipped: subscribers can rebuild from the
// command log.
func (p *EventPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out, ok := <-p.inputChan:
			if !ok {
				return nil
			}
			if err := p.publish(ctx, out.Envelope); err != nil {
				p.logger.Warn().Err(err).Int64("sequence", out.Envelope.Sequence).Msg("outbound publish failed")
			}
		}
	}
}

func (p *EventPublisher) publish(ctx context.Context, env *event.CommandEnvelope) error {
	for i, rec := range env.Events {
		data, err := json.Marshal(PublishedEvent{
			Sequence:  env.Sequence,
			CommandID: env.CommandID,
			Index:     i,
			Type:      rec.Type,
			Payload:   rec.Payload,
			Timestamp: env.Timestamp,
		})
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		msgID := fmt.Sprintf("%s:%d", env.CommandID, i)
		if _, err := p.js.Publish(ctx, EventSubject(rec.Type), data, jetstream.WithMsgID(msgID)); err != nil {
			return err
		}
	}

	data, err := json.Marshal(PublishedResult{
		Sequence:  env.Sequence,
		CommandID: env.CommandID,
		Op:        env.Op,
		Sender:    env.Sender,
		Rejection: env.Rejection,
		Events:    len(env.Events),
		StateHash: common.Hash(env.StateHash).Hex(),
		Timestamp: env.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = p.js.Publish(ctx, ResultSubject(env.Op), data, jetstream.WithMsgID(env.CommandID+":result"))
	return err
}

// EventSubject is the subject an event type is published on.
func EventSubject(eventType string) string {
	return EventSubjectPrefix + "." + eventType
}

// ResultSubject is the subject command outcomes for op are published on.
func ResultSubject(op string) string {
	return ResultSubjectPrefix + "." + op
}
