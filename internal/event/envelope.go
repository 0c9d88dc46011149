package event

import (
	"encoding/json"
	"time"
)

// EventType discriminator for domain events
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeTokenIssued
	EventTypeTokenPauseChanged
	EventTypeBasketCreated
	EventTypeDeposited
	EventTypeDepositRefunded
	EventTypeBundled
	EventTypeDebundled
	EventTypeWithdrawn
	EventTypeWithdrawalDeferred
	EventTypeExtracted
	EventTypeWalletWithdrawn
	EventTypeOrderCreated
	EventTypeOrderCancelled
	EventTypeOrderFilled
	EventTypeFeeRecipientChanged
	EventTypeFeeChanged
	EventTypeApproval
	EventTypeTransfer
)

var eventTypeNames = map[EventType]string{
	EventTypeTokenIssued:         "TokenIssued",
	EventTypeTokenPauseChanged:   "TokenPauseChanged",
	EventTypeBasketCreated:       "BasketCreated",
	EventTypeDeposited:           "Deposited",
	EventTypeDepositRefunded:     "DepositRefunded",
	EventTypeBundled:             "Bundled",
	EventTypeDebundled:           "Debundled",
	EventTypeWithdrawn:           "Withdrawn",
	EventTypeWithdrawalDeferred:  "WithdrawalDeferred",
	EventTypeExtracted:           "Extracted",
	EventTypeWalletWithdrawn:     "WalletWithdrawn",
	EventTypeOrderCreated:        "OrderCreated",
	EventTypeOrderCancelled:      "OrderCancelled",
	EventTypeOrderFilled:         "OrderFilled",
	EventTypeFeeRecipientChanged: "FeeRecipientChanged",
	EventTypeFeeChanged:          "FeeChanged",
	EventTypeApproval:            "Approval",
	EventTypeTransfer:            "Transfer",
}

func (et EventType) String() string {
	if name, ok := eventTypeNames[et]; ok {
		return name
	}
	return "Unknown"
}

// Event is the interface all domain event payloads implement
type Event interface {
	EventType() EventType
}

// Emitter receives domain events as state changes commit.
type Emitter interface {
	Emit(evt Event)
}

// Record is one serialized event inside an envelope.
type Record struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// CommandEnvelope wraps the outcome of one command in the log
type CommandEnvelope struct {
	// Global monotonic sequence assigned by the engine
	Sequence int64 `json:"sequence"`

	// Stable idempotency key from the submitter
	CommandID string `json:"command_id"`

	Op     string `json:"op"`
	Sender string `json:"sender"`

	// Command timestamp (NOT wall-clock)
	Timestamp time.Time `json:"timestamp"`

	// Raw command as received
	Command json.RawMessage `json:"command"`

	// Error kind when the command was rejected; empty on success
	Rejection string `json:"rejection,omitempty"`

	Events []Record `json:"events"`

	// SHA-256 of state AFTER applying this command
	StateHash [32]byte `json:"-"`

	// Previous command's state hash (chain integrity)
	PrevHash [32]byte `json:"-"`
}

// Recorder collects events emitted during one command.
type Recorder struct {
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Emit(evt Event) {
	r.events = append(r.events, evt)
}

// Events returns what has been emitted since the last Reset.
func (r *Recorder) Events() []Event {
	return r.events
}

// Reset discards recorded events.
func (r *Recorder) Reset() {
	r.events = r.events[:0]
}

// Truncate drops events recorded after the first n.
func (r *Recorder) Truncate(n int) {
	if n < len(r.events) {
		r.events = r.events[:n]
	}
}

// Encode serializes events into envelope records.
func Encode(events []Event) ([]Record, error) {
	records := make([]Record, 0, len(events))
	for _, evt := range events {
		payload, err := json.Marshal(evt)
		if err != nil {
			return nil, err
		}
		records = append(records, Record{Type: evt.EventType().String(), Payload: payload})
	}
	return records, nil
}

// Discard drops every event. Useful where no observer is attached.
type Discard struct{}

func (Discard) Emit(Event) {}
