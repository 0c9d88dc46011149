package persistence

import (
	"context"
	"database/sql"
	"time"

	"BasketLedger/internal/core"
	"BasketLedger/internal/observability"

	"github.com/rs/zerolog"
)

// PersistenceWorker drains the persist channel and batch-writes to Postgres.
// The engine sends on that channel with a blocking send, so if this worker
// falls behind the engine stalls and no sequenced command is lost.
type PersistenceWorker struct {
	db           *sql.DB
	writer       LogWriter
	checkpoints  *CheckpointStore
	inputChan    <-chan core.Output
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	logger       zerolog.Logger
}

func NewPersistenceWorker(
	db *sql.DB,
	inputChan <-chan core.Output,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
) *PersistenceWorker {
	return &PersistenceWorker{
		db:           db,
		checkpoints:  NewCheckpointStore(db),
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		logger:       observability.NewLogger("persistence"),
	}
}

// Run batches incoming outputs and flushes either when the batch is full or
// the flush timeout expires. Blocks until ctx is cancelled or the input
// channel is closed.
func (pw *PersistenceWorker) Run(ctx context.Context) error {
	commands := make([]CommandRow, 0, pw.batchSize)
	journals := make([]JournalRow, 0, pw.batchSize*4)
	var checkpoint *core.Checkpoint

	timer := time.NewTimer(pw.flushTimeout)
	defer timer.Stop()

	flush := func(ctx context.Context) {
		if len(commands) == 0 {
			return
		}
		if err := pw.flushWithRetry(ctx, commands, journals, checkpoint); err != nil {
			pw.logger.Error().Err(err).Int("commands", len(commands)).Msg("batch flush failed")
		}
		commands = commands[:0]
		journals = journals[:0]
		checkpoint = nil
	}

	for {
		select {
		case <-ctx.Done():
			flush(context.Background())
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				flush(context.Background())
				return nil
			}

			row, rows, err := RowsFromOutput(output)
			if err != nil {
				pw.logger.Error().Err(err).Msg("dropping unencodable output")
				if pw.metrics != nil {
					pw.metrics.PersistErrors.WithLabelValues("encode").Inc()
				}
				continue
			}
			commands = append(commands, row)
			journals = append(journals, rows...)
			if output.Checkpoint != nil {
				checkpoint = output.Checkpoint
			}

			if len(commands) >= pw.batchSize {
				flush(ctx)
				timer.Reset(pw.flushTimeout)
			}

		case <-timer.C:
			flush(ctx)
			timer.Reset(pw.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff until the write succeeds
// or ctx is cancelled. It never drops a batch.
func (pw *PersistenceWorker) flushWithRetry(ctx context.Context, commands []CommandRow, journals []JournalRow, cp *core.Checkpoint) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			pw.logger.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int("commands", len(commands)).
				Msg("persistence retry")
			if pw.metrics != nil {
				pw.metrics.PersistRetry.Inc()
			}
			select {
			case <-ctx.Done():
				// Shutdown: one final attempt so the batch is not lost.
				return pw.flush(context.Background(), commands, journals, cp)
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := pw.flush(ctx, commands, journals, cp)
		if err == nil {
			if attempt > 0 {
				pw.logger.Info().Int("retries", attempt).Msg("persistence flush succeeded")
			}
			return nil
		}
		pw.logger.Error().Err(err).Msg("persistence flush failed")
	}
}

// flush writes the batch and its latest checkpoint in one transaction.
func (pw *PersistenceWorker) flush(ctx context.Context, commands []CommandRow, journals []JournalRow, cp *core.Checkpoint) error {
	start := time.Now()

	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		pw.recordError("tx_begin")
		return err
	}
	defer tx.Rollback()

	if err := pw.writer.WriteCommandBatch(ctx, tx, commands); err != nil {
		pw.recordError("write_commands")
		return err
	}
	if err := pw.writer.WriteJournalBatch(ctx, tx, journals); err != nil {
		pw.recordError("write_journals")
		return err
	}
	if cp != nil {
		if err := pw.checkpoints.Save(ctx, tx, *cp); err != nil {
			pw.recordError("checkpoint")
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		pw.recordError("tx_commit")
		return err
	}

	last := commands[len(commands)-1].Sequence
	if pw.metrics != nil {
		pw.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		pw.metrics.PersistBatchSize.Observe(float64(len(commands)))
		pw.metrics.PersistCommandsWritten.Add(float64(len(commands)))
		pw.metrics.PersistJournalsWritten.Add(float64(len(journals)))
		pw.metrics.PersistLastSequence.Set(float64(last))
	}
	if cp != nil {
		pw.logger.Info().Int64("sequence", cp.Sequence).Int("accounts", len(cp.Balances)).Msg("checkpoint stored")
	}
	return nil
}

func (pw *PersistenceWorker) recordError(stage string) {
	if pw.metrics != nil {
		pw.metrics.PersistErrors.WithLabelValues(stage).Inc()
	}
}
