package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypeTransfer JournalType = iota
	JournalTypeMint
	JournalTypeBurn
	JournalTypeCustodyIn
	JournalTypeCustodyOut
	JournalTypeFee
	JournalTypeRefund
)

func (jt JournalType) String() string {
	switch jt {
	case JournalTypeTransfer:
		return "transfer"
	case JournalTypeMint:
		return "mint"
	case JournalTypeBurn:
		return "burn"
	case JournalTypeCustodyIn:
		return "custody_in"
	case JournalTypeCustodyOut:
		return "custody_out"
	case JournalTypeFee:
		return "fee"
	case JournalTypeRefund:
		return "refund"
	default:
		return "unknown"
	}
}

// Namespace for deterministic batch IDs derived from the command reference.
var batchNamespace = uuid.MustParse("5b0e3a8e-5f0c-4c53-9d0f-3b4e2b7a9c11")

// Journal represents a single double-entry journal entry
type Journal struct {
	JournalID     uuid.UUID
	BatchID       uuid.UUID
	EventRef      string         // Command ID that produced the entry
	Sequence      int64          // Global command sequence
	DebitAccount  AccountKey     // Balance increases
	CreditAccount AccountKey     // Balance decreases
	Asset         common.Address // Asset being moved
	Amount        uint64         // Always positive
	JournalType   JournalType
	Timestamp     int64 // Command timestamp (unix seconds)
}

// Batch groups every journal produced by one command.
type Batch struct {
	BatchID   uuid.UUID
	EventRef  string
	Sequence  int64
	Timestamp int64
	Journals  []Journal
}

// NewBatchID derives a stable batch ID from the command reference.
func NewBatchID(eventRef string) uuid.UUID {
	return uuid.NewSHA1(batchNamespace, []byte(eventRef))
}

func newJournalID(batchID uuid.UUID, index int) uuid.UUID {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(index))
	return uuid.NewSHA1(batchID, buf[:])
}

// Validate ensures the batch is well-formed. Each entry moves one positive
// amount from the credit account to the debit account, so every entry is
// balanced by construction.
func (b *Batch) Validate() error {
	for _, j := range b.Journals {
		if j.Amount == 0 {
			return fmt.Errorf("journal %s has zero amount", j.JournalID)
		}
		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}
		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
		}
		if j.DebitAccount.Asset != j.Asset || j.CreditAccount.Asset != j.Asset {
			return fmt.Errorf("journal %s crosses assets", j.JournalID)
		}
	}
	return nil
}
