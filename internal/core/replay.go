package core

import (
	"errors"
	"fmt"

	"BasketLedger/internal/command"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrSequenceGap  = errors.New("sequence gap in command log")
	ErrHashMismatch = errors.New("state hash mismatch")
)

// LoggedCommand is one entry read back from the command log.
type LoggedCommand struct {
	Sequence  int64
	Raw       []byte
	Rejection string
	StateHash [32]byte
}

// Replay re-executes logged commands in order to rebuild in-memory state.
// Nothing is persisted or published. Entries must continue the current
// sequence without gaps and reproduce the logged state hash and outcome.
func (e *Engine) Replay(entries []LoggedCommand) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, entry := range entries {
		expected := e.sequence + 1
		if entry.Sequence != expected {
			return fmt.Errorf("%w: expected %d, got %d", ErrSequenceGap, expected, entry.Sequence)
		}

		cmd, err := command.Parse(entry.Raw)
		if err != nil {
			return fmt.Errorf("replay seq %d: %w", entry.Sequence, err)
		}

		out, _, _ := e.apply(cmd)
		e.idempotency.MarkProcessed(cmd.IdempotencyKey())

		if out.Envelope.Rejection != entry.Rejection {
			return fmt.Errorf("%w: seq %d outcome %q, logged %q",
				ErrHashMismatch, entry.Sequence, out.Envelope.Rejection, entry.Rejection)
		}
		if out.Envelope.StateHash != entry.StateHash {
			return fmt.Errorf("%w: seq %d computed %s, logged %s",
				ErrHashMismatch, entry.Sequence,
				common.Hash(out.Envelope.StateHash).Hex(), common.Hash(entry.StateHash).Hex())
		}
		if e.metrics != nil {
			e.metrics.ReplayCommandsTotal.Inc()
		}
	}

	e.logger.Info().
		Int("commands", len(entries)).
		Int64("sequence", e.sequence).
		Str("state_hash", common.Hash(e.hasher.Tip()).Hex()).
		Msg("replay complete")
	return nil
}
