package custody

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// AssetTransfer is the fungible-asset capability the ledger and the order
// book depend on. The first address argument of every mutating method is the
// authenticated caller. Any non-nil error is a failed transfer and leaves
// balances and allowances unchanged.
type AssetTransfer interface {
	Address() common.Address
	BalanceOf(owner common.Address) uint64
	Allowance(owner, spender common.Address) uint64
	Transfer(from, to common.Address, amount uint64) error
	TransferFrom(spender, from, to common.Address, amount uint64) error
	Approve(owner, spender common.Address, amount uint64) error
}

// Atomic reverts token movements back to a savepoint. The engine uses it to
// make every command all-or-nothing.
type Atomic interface {
	Savepoint() int
	RollbackTo(sp int)
}

// Call describes one invocation of an entry point.
type Call struct {
	Sender common.Address
	Value  uint64    // Attached base currency
	Time   time.Time // Command time, never the wall clock
}

// Now returns the call time as unix seconds.
func (c Call) Now() uint64 {
	if c.Time.Unix() < 0 {
		return 0
	}
	return uint64(c.Time.Unix())
}

// RejectValue refuses attached value on entry points that do not accept it.
func RejectValue(call Call) error {
	if call.Value > 0 {
		return fmt.Errorf("%w: %d attached to non-payable call", ErrValueRejected, call.Value)
	}
	return nil
}

// Collect moves the value attached to call into to's custody.
func Collect(currency AssetTransfer, call Call, to common.Address) error {
	if call.Value == 0 {
		return nil
	}
	if err := currency.Transfer(call.Sender, to, call.Value); err != nil {
		return fmt.Errorf("collect attached value: %w", err)
	}
	return nil
}
