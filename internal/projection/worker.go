package projection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"BasketLedger/internal/observability"

	"github.com/rs/zerolog"
)

const workerID = "balances"

// Worker folds persisted journal entries into projections.balances. It
// trails the command log through a watermark, so it never slows the engine
// and can always be rebuilt from the log.
type Worker struct {
	db        *sql.DB
	interval  time.Duration
	batchSize int64
	logger    zerolog.Logger
}

func NewWorker(db *sql.DB, interval time.Duration, batchSize int64) *Worker {
	return &Worker{
		db:        db,
		interval:  interval,
		batchSize: batchSize,
		logger:    observability.NewLogger("projection"),
	}
}

// Run catches up every interval until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.CatchUp(ctx); err != nil && !errors.Is(err, context.Canceled) {
				// Projections are eventually consistent; retry next tick.
				w.logger.Warn().Err(err).Msg("projection update failed")
			}
		}
	}
}

// CatchUp applies steps until the watermark reaches the log head and
// returns the new watermark.
func (w *Worker) CatchUp(ctx context.Context) (int64, error) {
	for {
		from, to, err := w.Step(ctx)
		if err != nil || to == from {
			return to, err
		}
	}
}

// Step projects at most batchSize sequences past the watermark in one
// transaction and returns the old and new watermark.
func (w *Worker) Step(ctx context.Context) (from, to int64, err error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx,
		`SELECT last_sequence FROM projections.watermark WHERE worker_id = $1 FOR UPDATE`,
		workerID,
	).Scan(&from)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, 0, fmt.Errorf("read watermark: %w", err)
	}
	var head int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(sequence), 0) FROM event_log.commands`).Scan(&head); err != nil {
		return 0, 0, fmt.Errorf("read log head: %w", err)
	}
	to = min(head, from+w.batchSize)
	if to <= from {
		return from, from, nil
	}

	// Debit accounts gain, credit accounts lose.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset, balance, last_sequence)
		SELECT account_path, asset, SUM(delta), MAX(sequence)
		FROM (
			SELECT debit_account AS account_path, asset, amount AS delta, sequence
			FROM event_log.journal WHERE sequence > $1 AND sequence <= $2
			UNION ALL
			SELECT credit_account, asset, -amount, sequence
			FROM event_log.journal WHERE sequence > $1 AND sequence <= $2
		) d
		GROUP BY account_path, asset
		ON CONFLICT (account_path, asset) DO UPDATE
			SET balance = projections.balances.balance + EXCLUDED.balance,
			    last_sequence = EXCLUDED.last_sequence
	`, from, to); err != nil {
		return 0, 0, fmt.Errorf("balance projection: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $2, updated_at = NOW()
	`, workerID, to); err != nil {
		return 0, 0, fmt.Errorf("watermark update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	w.logger.Debug().Int64("from", from).Int64("to", to).Msg("projected")
	return from, to, nil
}

// Rebuild discards the projection and replays it from the journal.
func (w *Worker) Rebuild(ctx context.Context) (int64, error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`TRUNCATE projections.balances`,
		`DELETE FROM projections.watermark WHERE worker_id = '` + workerID + `'`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return 0, fmt.Errorf("truncate failed: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}

	head, err := w.CatchUp(ctx)
	if err != nil {
		return 0, err
	}
	w.logger.Info().Int64("sequence", head).Msg("projection rebuild complete")
	return head, nil
}
