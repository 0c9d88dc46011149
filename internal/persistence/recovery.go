package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"sort"

	"BasketLedger/internal/core"
	"BasketLedger/internal/observability"
)

var ErrCheckpointMismatch = errors.New("replayed state does not match checkpoint")

// LoadCommands reads the full command log in sequence order.
func LoadCommands(ctx context.Context, db *sql.DB) ([]core.LoggedCommand, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT sequence, payload, COALESCE(rejection, ''), state_hash
		 FROM event_log.commands ORDER BY sequence`,
	)
	if err != nil {
		return nil, fmt.Errorf("query command log: %w", err)
	}
	defer rows.Close()

	var entries []core.LoggedCommand
	for rows.Next() {
		var (
			entry core.LoggedCommand
			hash  []byte
		)
		if err := rows.Scan(&entry.Sequence, &entry.Raw, &entry.Rejection, &hash); err != nil {
			return nil, err
		}
		if len(hash) != len(entry.StateHash) {
			return nil, fmt.Errorf("seq %d: state hash has %d bytes", entry.Sequence, len(hash))
		}
		copy(entry.StateHash[:], hash)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Recover rebuilds engine state from the command log. When a checkpoint
// exists inside the log, the replay is verified against it before the
// remainder is applied. It returns the number of commands replayed.
func Recover(ctx context.Context, db *sql.DB, engine *core.Engine) (int, error) {
	logger := observability.NewLogger("recovery")

	entries, err := LoadCommands(ctx, db)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		logger.Info().Msg("empty command log, starting from genesis")
		return 0, nil
	}

	last := entries[len(entries)-1].Sequence
	cp, ok, err := NewCheckpointStore(db).LatestAtOrBefore(ctx, last)
	if err != nil {
		return 0, fmt.Errorf("load checkpoint: %w", err)
	}

	split := 0
	if ok {
		split = sort.Search(len(entries), func(i int) bool {
			return entries[i].Sequence > cp.Sequence
		})
		if err := engine.Replay(entries[:split]); err != nil {
			return 0, err
		}
		if err := verifyCheckpoint(engine.Checkpoint(), cp); err != nil {
			return 0, err
		}
		logger.Info().Int64("sequence", cp.Sequence).Msg("checkpoint verified")
	}

	if err := engine.Replay(entries[split:]); err != nil {
		return 0, err
	}
	return len(entries), nil
}

func verifyCheckpoint(got, want core.Checkpoint) error {
	if got.Sequence != want.Sequence {
		return fmt.Errorf("%w: at sequence %d, checkpoint is %d", ErrCheckpointMismatch, got.Sequence, want.Sequence)
	}
	if got.StateHash != want.StateHash {
		return fmt.Errorf("%w: state hash differs at %d", ErrCheckpointMismatch, want.Sequence)
	}
	if !maps.Equal(got.Balances, want.Balances) {
		return fmt.Errorf("%w: balances differ at %d", ErrCheckpointMismatch, want.Sequence)
	}
	return nil
}
