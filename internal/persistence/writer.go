package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"BasketLedger/internal/core"

	"github.com/shopspring/decimal"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// CommandRow represents a row in event_log.commands
type CommandRow struct {
	Sequence  int64
	CommandID string
	Op        string
	Sender    string
	Payload   []byte // Command wire form
	Rejection *string
	Events    []byte // JSON array of event records
	StateHash []byte
	PrevHash  []byte
	Timestamp time.Time
}

// JournalRow represents a row in event_log.journal
type JournalRow struct {
	JournalID     string
	BatchID       string
	EventRef      string
	Sequence      int64
	DebitAccount  string
	CreditAccount string
	Asset         string
	Amount        decimal.Decimal // NUMERIC(20,0): amounts span the full uint64 range
	JournalType   int32
	Timestamp     int64
}

// LogWriter writes commands and journals to Postgres using multi-row
// INSERTs. Every write is idempotent on its primary key.
type LogWriter struct{}

// RowsFromOutput flattens one engine output into table rows.
func RowsFromOutput(out core.Output) (CommandRow, []JournalRow, error) {
	env := out.Envelope
	events, err := json.Marshal(env.Events)
	if err != nil {
		return CommandRow{}, nil, fmt.Errorf("encode events for seq %d: %w", env.Sequence, err)
	}

	row := CommandRow{
		Sequence:  env.Sequence,
		CommandID: env.CommandID,
		Op:        env.Op,
		Sender:    env.Sender,
		Payload:   env.Command,
		Events:    events,
		StateHash: append([]byte(nil), env.StateHash[:]...),
		PrevHash:  append([]byte(nil), env.PrevHash[:]...),
		Timestamp: env.Timestamp,
	}
	if env.Rejection != "" {
		reason := env.Rejection
		row.Rejection = &reason
	}

	var journals []JournalRow
	if out.Batch != nil {
		journals = make([]JournalRow, 0, len(out.Batch.Journals))
		for _, j := range out.Batch.Journals {
			journals = append(journals, JournalRow{
				JournalID:     j.JournalID.String(),
				BatchID:       j.BatchID.String(),
				EventRef:      j.EventRef,
				Sequence:      j.Sequence,
				DebitAccount:  j.DebitAccount.AccountPath(),
				CreditAccount: j.CreditAccount.AccountPath(),
				Asset:         j.Asset.Hex(),
				Amount:        decimal.NewFromUint64(j.Amount),
				JournalType:   int32(j.JournalType),
				Timestamp:     j.Timestamp,
			})
		}
	}
	return row, journals, nil
}

// WriteCommandBatch writes a batch of commands to event_log.commands.
func (w LogWriter) WriteCommandBatch(ctx context.Context, db execer, commands []CommandRow) error {
	if len(commands) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.commands
		(sequence, command_id, op, sender, payload, rejection, events, state_hash, prev_hash, timestamp)
		VALUES `

	values := make([]string, 0, len(commands))
	args := make([]any, 0, len(commands)*10)

	for i, c := range commands {
		base := i * 10
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10,
		))
		args = append(args,
			c.Sequence, c.CommandID, c.Op, c.Sender, c.Payload,
			c.Rejection, c.Events, c.StateHash, c.PrevHash, c.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := db.ExecContext(ctx, query, args...)
	return err
}

// WriteJournalBatch writes a batch of journal entries to event_log.journal.
func (w LogWriter) WriteJournalBatch(ctx context.Context, db execer, journals []JournalRow) error {
	if len(journals) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.journal
		(journal_id, batch_id, event_ref, sequence, debit_account, credit_account, asset, amount, journal_type, timestamp)
		VALUES `

	values := make([]string, 0, len(journals))
	args := make([]any, 0, len(journals)*10)

	for i, j := range journals {
		base := i * 10
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10,
		))
		args = append(args,
			j.JournalID, j.BatchID, j.EventRef, j.Sequence,
			j.DebitAccount, j.CreditAccount, j.Asset, j.Amount,
			j.JournalType, j.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (journal_id) DO NOTHING"

	_, err := db.ExecContext(ctx, query, args...)
	return err
}
