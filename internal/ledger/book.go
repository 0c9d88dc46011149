package ledger

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrSupplyOverflow      = errors.New("supply overflow")
)

type undoKind uint8

const (
	undoBalance undoKind = iota
	undoSupply
	undoAllowance
	undoJournal
)

type undoEntry struct {
	kind      undoKind
	account   AccountKey
	allowance allowanceKey
	prev      uint64
	existed   bool
}

// Book maintains every in-process asset balance, supply and allowance.
// Not thread-safe: it is owned by the serialized engine.
//
// Every mutation is recorded in an undo log so a failed command can be
// rolled back to the state it started from.
type Book struct {
	balances   map[AccountKey]uint64
	supply     map[common.Address]uint64
	allowances map[allowanceKey]uint64

	undo []undoEntry

	// Open batch
	batchRef  string
	sequence  int64
	timestamp int64
	journals  []Journal
}

func NewBook() *Book {
	return &Book{
		balances:   make(map[AccountKey]uint64),
		supply:     make(map[common.Address]uint64),
		allowances: make(map[allowanceKey]uint64),
	}
}

// Begin opens a batch for one command. Journals recorded until Commit or
// Rollback belong to it.
func (b *Book) Begin(eventRef string, sequence, timestamp int64) {
	b.undo = b.undo[:0]
	b.journals = b.journals[:0]
	b.batchRef = eventRef
	b.sequence = sequence
	b.timestamp = timestamp
}

// Commit closes the open batch and returns it.
func (b *Book) Commit() *Batch {
	batchID := NewBatchID(b.batchRef)
	batch := &Batch{
		BatchID:   batchID,
		EventRef:  b.batchRef,
		Sequence:  b.sequence,
		Timestamp: b.timestamp,
		Journals:  make([]Journal, len(b.journals)),
	}
	for i, j := range b.journals {
		j.JournalID = newJournalID(batchID, i)
		j.BatchID = batchID
		j.EventRef = b.batchRef
		j.Sequence = b.sequence
		j.Timestamp = b.timestamp
		batch.Journals[i] = j
	}

	b.undo = b.undo[:0]
	b.journals = b.journals[:0]
	return batch
}

// Rollback reverts every mutation since Begin.
func (b *Book) Rollback() {
	b.RollbackTo(0)
}

// Savepoint marks the current position in the undo log.
func (b *Book) Savepoint() int {
	return len(b.undo)
}

// RollbackTo reverts every mutation recorded after sp.
func (b *Book) RollbackTo(sp int) {
	if sp < 0 || sp > len(b.undo) {
		panic(fmt.Sprintf("FATAL: invalid savepoint %d (undo log %d)", sp, len(b.undo)))
	}
	for i := len(b.undo) - 1; i >= sp; i-- {
		u := b.undo[i]
		switch u.kind {
		case undoBalance:
			if u.existed {
				b.balances[u.account] = u.prev
			} else {
				delete(b.balances, u.account)
			}
		case undoSupply:
			if u.existed {
				b.supply[u.account.Asset] = u.prev
			} else {
				delete(b.supply, u.account.Asset)
			}
		case undoAllowance:
			if u.existed {
				b.allowances[u.allowance] = u.prev
			} else {
				delete(b.allowances, u.allowance)
			}
		case undoJournal:
			b.journals = b.journals[:len(b.journals)-1]
		}
	}
	b.undo = b.undo[:sp]
}

// Balance returns owner's holding of asset.
func (b *Book) Balance(asset, owner common.Address) uint64 {
	return b.balances[NewAccountKey(asset, owner)]
}

// Supply returns the issued amount of asset.
func (b *Book) Supply(asset common.Address) uint64 {
	return b.supply[asset]
}

// Allowance returns how much spender may move from owner's balance of asset.
func (b *Book) Allowance(asset, owner, spender common.Address) uint64 {
	return b.allowances[allowanceKey{Asset: asset, Owner: owner, Spender: spender}]
}

// SetAllowance replaces spender's authority over owner's balance of asset.
func (b *Book) SetAllowance(asset, owner, spender common.Address, amount uint64) {
	key := allowanceKey{Asset: asset, Owner: owner, Spender: spender}
	prev, existed := b.allowances[key]
	b.undo = append(b.undo, undoEntry{kind: undoAllowance, allowance: key, prev: prev, existed: existed})
	if amount == 0 {
		delete(b.allowances, key)
		return
	}
	b.allowances[key] = amount
}

// Transfer moves amount of asset from one holder to another.
func (b *Book) Transfer(asset, from, to common.Address, amount uint64, jt JournalType) error {
	if amount == 0 || from == to {
		if b.Balance(asset, from) < amount {
			return ErrInsufficientBalance
		}
		return nil
	}
	debit := NewAccountKey(asset, to)
	credit := NewAccountKey(asset, from)

	if b.balances[credit] < amount {
		return fmt.Errorf("%w: %s has %d, needs %d",
			ErrInsufficientBalance, credit.AccountPath(), b.balances[credit], amount)
	}

	b.setBalance(credit, b.balances[credit]-amount)
	b.setBalance(debit, b.balances[debit]+amount)
	b.record(debit, credit, amount, jt)
	return nil
}

// Mint issues amount of asset to owner.
func (b *Book) Mint(asset, to common.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	supply := b.supply[asset]
	if supply+amount < supply {
		return ErrSupplyOverflow
	}
	debit := NewAccountKey(asset, to)
	b.setSupply(asset, supply+amount)
	b.setBalance(debit, b.balances[debit]+amount)
	b.record(debit, IssuanceKey(asset), amount, JournalTypeMint)
	return nil
}

// Burn retires amount of asset from owner.
func (b *Book) Burn(asset, from common.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	credit := NewAccountKey(asset, from)
	if b.balances[credit] < amount {
		return fmt.Errorf("%w: %s has %d, needs %d",
			ErrInsufficientBalance, credit.AccountPath(), b.balances[credit], amount)
	}
	b.setBalance(credit, b.balances[credit]-amount)
	b.setSupply(asset, b.supply[asset]-amount)
	b.record(IssuanceKey(asset), credit, amount, JournalTypeBurn)
	return nil
}

func (b *Book) setBalance(key AccountKey, v uint64) {
	prev, existed := b.balances[key]
	b.undo = append(b.undo, undoEntry{kind: undoBalance, account: key, prev: prev, existed: existed})
	if v == 0 {
		delete(b.balances, key)
		return
	}
	b.balances[key] = v
}

func (b *Book) setSupply(asset common.Address, v uint64) {
	prev, existed := b.supply[asset]
	b.undo = append(b.undo, undoEntry{kind: undoSupply, account: IssuanceKey(asset), prev: prev, existed: existed})
	b.supply[asset] = v
}

func (b *Book) record(debit, credit AccountKey, amount uint64, jt JournalType) {
	b.journals = append(b.journals, Journal{
		DebitAccount:  debit,
		CreditAccount: credit,
		Asset:         debit.Asset,
		Amount:        amount,
		JournalType:   jt,
	})
	b.undo = append(b.undo, undoEntry{kind: undoJournal})
}

// Holders returns every owner with a non-zero balance of asset, sorted.
func (b *Book) Holders(asset common.Address) []common.Address {
	var owners []common.Address
	for key := range b.balances {
		if key.Asset == asset {
			owners = append(owners, key.Owner)
		}
	}
	sort.Slice(owners, func(i, j int) bool {
		return owners[i].Cmp(owners[j]) < 0
	})
	return owners
}

// Assets returns every asset with a recorded supply, sorted.
func (b *Book) Assets() []common.Address {
	assets := make([]common.Address, 0, len(b.supply))
	for asset := range b.supply {
		assets = append(assets, asset)
	}
	sort.Slice(assets, func(i, j int) bool {
		return assets[i].Cmp(assets[j]) < 0
	})
	return assets
}

// Snapshot returns a copy of all balances (for state hashing)
func (b *Book) Snapshot() map[AccountKey]uint64 {
	snapshot := make(map[AccountKey]uint64, len(b.balances))
	for k, v := range b.balances {
		snapshot[k] = v
	}
	return snapshot
}
