package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

var ErrMalformed = errors.New("malformed command")

// --- JSON wire format ---
// Field names use snake_case to match upstream submitters.

type commandJSON struct {
	CommandID   string          `json:"command_id"`
	Op          string          `json:"op"`
	Sender      string          `json:"sender"`
	Value       uint64          `json:"value,omitempty"`
	TimestampUs int64           `json:"timestamp_us"`
	Params      json.RawMessage `json:"params"`
}

// Parse decodes and validates one command. Unknown operations, unknown
// parameter fields and malformed addresses are rejected before the command
// reaches the engine.
func Parse(data []byte) (*Command, error) {
	var j commandJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	id, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("%w: parse command_id: %v", ErrMalformed, err)
	}
	if !common.IsHexAddress(j.Sender) {
		return nil, fmt.Errorf("%w: sender %q is not an address", ErrMalformed, j.Sender)
	}
	if j.TimestampUs <= 0 {
		return nil, fmt.Errorf("%w: timestamp_us must be positive", ErrMalformed)
	}

	op := Op(j.Op)
	args, ok := newArgs(op)
	if !ok {
		return nil, fmt.Errorf("%w: unknown op %q", ErrMalformed, j.Op)
	}
	params := j.Params
	if len(params) == 0 {
		params = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(params))
	dec.DisallowUnknownFields()
	if err := dec.Decode(args); err != nil {
		return nil, fmt.Errorf("%w: parse %s params: %v", ErrMalformed, op, err)
	}

	return &Command{
		ID:        id,
		Op:        op,
		Sender:    common.HexToAddress(j.Sender),
		Value:     j.Value,
		Timestamp: time.UnixMicro(j.TimestampUs).UTC(),
		Args:      args,
		Raw:       append([]byte(nil), data...),
	}, nil
}

// New builds a command from typed arguments and fills in its wire form.
func New(id uuid.UUID, sender common.Address, value uint64, ts time.Time, args Args) (*Command, error) {
	params, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode %s params: %w", args.Op(), err)
	}
	raw, err := json.Marshal(commandJSON{
		CommandID:   id.String(),
		Op:          string(args.Op()),
		Sender:      sender.Hex(),
		Value:       value,
		TimestampUs: ts.UnixMicro(),
		Params:      params,
	})
	if err != nil {
		return nil, err
	}
	return &Command{
		ID:        id,
		Op:        args.Op(),
		Sender:    sender,
		Value:     value,
		Timestamp: time.UnixMicro(ts.UnixMicro()).UTC(),
		Args:      args,
		Raw:       raw,
	}, nil
}
