package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"BasketLedger/internal/core"
)

// CheckpointStore persists periodic state checkpoints. A checkpoint holds
// every balance and the chain tip at one sequence, so recovery can verify a
// replay against it.
type CheckpointStore struct {
	db *sql.DB
}

func NewCheckpointStore(db *sql.DB) *CheckpointStore {
	return &CheckpointStore{db: db}
}

// Save writes cp through db, which may be a transaction. Saving the same
// sequence twice keeps the first row.
func (s *CheckpointStore) Save(ctx context.Context, db execer, cp core.Checkpoint) error {
	balances, err := json.Marshal(cp.Balances)
	if err != nil {
		return fmt.Errorf("encode balances: %w", err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO event_log.checkpoints (sequence, state_hash, balances)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (sequence) DO NOTHING`,
		cp.Sequence, cp.StateHash[:], balances,
	)
	return err
}

// LatestAtOrBefore returns the newest checkpoint at or before seq.
func (s *CheckpointStore) LatestAtOrBefore(ctx context.Context, seq int64) (core.Checkpoint, bool, error) {
	var (
		cp       core.Checkpoint
		hash     []byte
		balances []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT sequence, state_hash, balances FROM event_log.checkpoints
		 WHERE sequence <= $1 ORDER BY sequence DESC LIMIT 1`,
		seq,
	).Scan(&cp.Sequence, &hash, &balances)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Checkpoint{}, false, nil
	}
	if err != nil {
		return core.Checkpoint{}, false, err
	}
	if len(hash) != len(cp.StateHash) {
		return core.Checkpoint{}, false, fmt.Errorf("checkpoint %d: state hash has %d bytes", cp.Sequence, len(hash))
	}
	copy(cp.StateHash[:], hash)
	if err := json.Unmarshal(balances, &cp.Balances); err != nil {
		return core.Checkpoint{}, false, fmt.Errorf("decode checkpoint %d balances: %w", cp.Sequence, err)
	}
	return cp, true, nil
}
