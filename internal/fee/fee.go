// Package fee computes basis-point fees. Charges round up and payouts round
// down, so the protocol side absorbs no rounding loss.
package fee

import (
	"errors"
	"fmt"

	"BasketLedger/internal/custody"
	fpmath "BasketLedger/internal/math"

	"github.com/ethereum/go-ethereum/common"
)

// BasisPoints is the fee scale: 10_000 bps == 100%.
const BasisPoints uint64 = 10_000

var ErrInvalidRate = errors.New("fee rate exceeds 10000 bps")

// ValidateRate rejects rates above 100%.
func ValidateRate(bps uint64) error {
	if bps > BasisPoints {
		return fmt.Errorf("%w: %d", ErrInvalidRate, bps)
	}
	return nil
}

// Charge returns ceil(amount * bps / 10^4), the fee a payer owes.
func Charge(amount, bps uint64) (uint64, error) {
	if err := ValidateRate(bps); err != nil {
		return 0, err
	}
	return fpmath.MulDiv(amount, bps, BasisPoints, fpmath.RoundUp)
}

// Split divides amount into the fee skimmed to the recipient and the net
// payout to the counterparty. Net rounds down.
type Split struct {
	Net uint64
	Fee uint64
}

// SplitPayout charges bps on amount and returns what remains for the payee.
func SplitPayout(amount, bps uint64) (Split, error) {
	charged, err := Charge(amount, bps)
	if err != nil {
		return Split{}, err
	}
	return Split{Net: amount - charged, Fee: charged}, nil
}

// Schedule is an administered fee: a rate and the address that receives it.
type Schedule struct {
	Bps       uint64
	Recipient common.Address
}

// NewSchedule validates the rate and recipient.
func NewSchedule(bps uint64, recipient common.Address) (Schedule, error) {
	if err := ValidateRate(bps); err != nil {
		return Schedule{}, err
	}
	if recipient == (common.Address{}) {
		return Schedule{}, errors.New("fee recipient is the zero address")
	}
	return Schedule{Bps: bps, Recipient: recipient}, nil
}

// Forward transfers a computed fee from holder to the schedule's recipient.
// A zero fee is a no-op.
func (s Schedule) Forward(asset custody.AssetTransfer, holder common.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if err := asset.Transfer(holder, s.Recipient, amount); err != nil {
		return fmt.Errorf("forward fee to %s: %w", s.Recipient.Hex(), err)
	}
	return nil
}
