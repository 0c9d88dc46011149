package custody

import (
	"errors"
	"fmt"
	"math"

	"BasketLedger/internal/ledger"

	"github.com/ethereum/go-ethereum/common"
)

// Unlimited allowance is never decremented.
const Unlimited = math.MaxUint64

// Fungible implements AssetTransfer on top of the shared ledger book.
// Tokens and baskets embed it.
type Fungible struct {
	book    *ledger.Book
	address common.Address

	// gate, when set, is consulted before every movement.
	gate func() error
	// hook, when set, runs after a movement and can veto it.
	hook TransferHook
}

// TransferHook observes a completed movement. A non-nil error reverts it.
type TransferHook func(from, to common.Address, amount uint64) error

func NewFungible(book *ledger.Book, address common.Address) Fungible {
	return Fungible{book: book, address: address}
}

func (f *Fungible) Address() common.Address {
	return f.address
}

func (f *Fungible) BalanceOf(owner common.Address) uint64 {
	return f.book.Balance(f.address, owner)
}

func (f *Fungible) Allowance(owner, spender common.Address) uint64 {
	return f.book.Allowance(f.address, owner, spender)
}

func (f *Fungible) TotalSupply() uint64 {
	return f.book.Supply(f.address)
}

// SetHook installs a transfer hook. Passing nil removes it. It stands in for
// a token contract that calls back into its caller or vetoes a transfer, so
// tests in other packages can drive reentrancy and failed legs.
func (f *Fungible) SetHook(hook TransferHook) {
	f.hook = hook
}

func (f *Fungible) Approve(owner, spender common.Address, amount uint64) error {
	if spender == (common.Address{}) {
		return fmt.Errorf("%w: approve to zero address", ErrInvalidAmount)
	}
	f.book.SetAllowance(f.address, owner, spender, amount)
	return nil
}

func (f *Fungible) Transfer(from, to common.Address, amount uint64) error {
	return f.move(from, to, amount, ledger.JournalTypeTransfer)
}

func (f *Fungible) TransferFrom(spender, from, to common.Address, amount uint64) error {
	if err := f.open(); err != nil {
		return err
	}
	allowed := f.Allowance(from, spender)
	if spender != from && allowed < amount {
		return fmt.Errorf("%w: %s may move %d of %s, needs %d",
			ErrInsufficientAllowance, spender.Hex(), allowed, from.Hex(), amount)
	}

	sp := f.book.Savepoint()
	if spender != from && allowed != Unlimited {
		f.book.SetAllowance(f.address, from, spender, allowed-amount)
	}
	if err := f.move(from, to, amount, ledger.JournalTypeTransfer); err != nil {
		f.book.RollbackTo(sp)
		return err
	}
	return nil
}

// Move is Transfer with an explicit journal type, for custody bookkeeping.
func (f *Fungible) Move(from, to common.Address, amount uint64, jt ledger.JournalType) error {
	return f.move(from, to, amount, jt)
}

func (f *Fungible) move(from, to common.Address, amount uint64, jt ledger.JournalType) error {
	if err := f.open(); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return fmt.Errorf("%w: transfer to zero address", ErrTransferFailed)
	}

	sp := f.book.Savepoint()
	if err := f.book.Transfer(f.address, from, to, amount, jt); err != nil {
		return err
	}
	if f.hook != nil {
		if err := f.hook(from, to, amount); err != nil {
			f.book.RollbackTo(sp)
			if errors.Is(err, ErrTransferFailed) {
				return err
			}
			return fmt.Errorf("%w: %w", ErrTransferFailed, err)
		}
	}
	return nil
}

func (f *Fungible) open() error {
	if f.gate == nil {
		return nil
	}
	return f.gate()
}

// Issue mints amount to holder on behalf of the asset's own logic.
func (f *Fungible) Issue(to common.Address, amount uint64) error {
	return f.book.Mint(f.address, to, amount)
}

// Retire burns amount from holder on behalf of the asset's own logic.
func (f *Fungible) Retire(from common.Address, amount uint64) error {
	return f.book.Burn(f.address, from, amount)
}
