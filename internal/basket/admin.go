package basket

import (
	"fmt"

	"BasketLedger/internal/custody"
	"BasketLedger/internal/event"
	"BasketLedger/internal/fee"

	"github.com/ethereum/go-ethereum/common"
)

// ChangeArrangerFeeRecipient redirects future arranger fees. Arranger only.
func (b *Basket) ChangeArrangerFeeRecipient(call custody.Call, recipient common.Address) error {
	return b.atomically(func() error {
		if err := b.onlyArranger(call); err != nil {
			return err
		}
		next, err := fee.NewSchedule(b.arrangerFee.Bps, recipient)
		if err != nil {
			return err
		}
		prev := b.arrangerFee.Recipient
		b.arrangerFee = next

		b.emit(&event.FeeRecipientChanged{
			Scope: event.ScopeArranger, Contract: b.Address(), Previous: prev, Current: recipient,
		})
		return nil
	})
}

// ChangeArrangerFee sets the mint fee rate in basis points. Arranger only.
func (b *Basket) ChangeArrangerFee(call custody.Call, bps uint64) error {
	return b.atomically(func() error {
		if err := b.onlyArranger(call); err != nil {
			return err
		}
		if err := fee.ValidateRate(bps); err != nil {
			return err
		}
		prev := b.arrangerFee.Bps
		b.arrangerFee.Bps = bps

		b.emit(&event.FeeChanged{
			Scope: event.ScopeArranger, Contract: b.Address(), Previous: prev, Current: bps,
		})
		return nil
	})
}

// Receive is the fallback for value sent outside a recognized entry point.
func (b *Basket) Receive(call custody.Call) error {
	return custody.RejectValue(call)
}

func (b *Basket) onlyArranger(call custody.Call) error {
	if err := custody.RejectValue(call); err != nil {
		return err
	}
	if call.Sender != b.arranger {
		return fmt.Errorf("%w: %s is not the arranger", ErrUnauthorized, call.Sender.Hex())
	}
	return nil
}
