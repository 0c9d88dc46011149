package basket

import (
	"fmt"

	"BasketLedger/internal/custody"
	"BasketLedger/internal/event"
	"BasketLedger/internal/fee"

	"github.com/ethereum/go-ethereum/common"
)

// Deposit pulls amount of token from the caller into custody and credits it
// as a pending deposit. The caller must have approved the basket.
func (b *Basket) Deposit(call custody.Call, token common.Address, amount uint64) error {
	return b.atomically(func() error {
		if err := custody.RejectValue(call); err != nil {
			return err
		}
		if amount == 0 {
			return ErrInvalidAmount
		}
		i, err := b.tokenAt(token)
		if err != nil {
			return err
		}

		if err := b.add(claimPending, call.Sender, i, amount); err != nil {
			return err
		}
		if err := b.tokens[i].TransferFrom(b.Address(), call.Sender, b.Address(), amount); err != nil {
			return fmt.Errorf("deposit %s: %w", token.Hex(), err)
		}

		b.emit(&event.Deposited{Basket: b.Address(), Holder: call.Sender, Token: token, Amount: amount})
		return nil
	})
}

// Bundle mints amount basket units against the caller's pending deposits.
// Each token must have at least ceil(amount * weight / unit) pending. The
// call is payable with the arranger fee, as DepositAndBundle is.
func (b *Basket) Bundle(call custody.Call, amount uint64) error {
	return b.atomically(func() error {
		if amount == 0 {
			return ErrInvalidAmount
		}
		need, err := b.RequiredDeposit(amount)
		if err != nil {
			return err
		}

		for i, n := range need {
			if have := b.get(claimPending, call.Sender, i); have < n {
				return fmt.Errorf("%w: token %s has %d pending, needs %d",
					ErrUnevenDeposit, b.tokens[i].Address().Hex(), have, n)
			}
		}
		arrangerFee, err := b.arrangerFeeFor(call, amount)
		if err != nil {
			return err
		}

		for i, n := range need {
			b.sub(claimPending, call.Sender, i, n)
			if err := b.add(claimReserve, common.Address{}, i, n); err != nil {
				return err
			}
		}
		if err := b.mint(call.Sender, amount); err != nil {
			return err
		}
		if err := b.settleArrangerFee(call, arrangerFee); err != nil {
			return err
		}

		b.emit(&event.Bundled{
			Basket:      b.Address(),
			Holder:      call.Sender,
			Amount:      amount,
			Consumed:    need,
			ArrangerFee: arrangerFee,
			TotalMinted: b.totalMinted,
		})
		return nil
	})
}

// DepositAndBundle pulls every underlying token in proportion and mints
// amount units in one step. The call must carry at least the arranger fee in
// base currency; the fee is forwarded and any excess refunded.
func (b *Basket) DepositAndBundle(call custody.Call, amount uint64) error {
	return b.atomically(func() error {
		if amount == 0 {
			return ErrInvalidAmount
		}
		arrangerFee, err := b.arrangerFeeFor(call, amount)
		if err != nil {
			return err
		}
		need, err := b.RequiredDeposit(amount)
		if err != nil {
			return err
		}

		// Report the first unmet leg before moving anything.
		for i, n := range need {
			tok := b.tokens[i]
			if bal := tok.BalanceOf(call.Sender); bal < n {
				return fmt.Errorf("%w: %s holds %d of %s, needs %d",
					custody.ErrInsufficientBalance, call.Sender.Hex(), bal, tok.Address().Hex(), n)
			}
			if allowed := tok.Allowance(call.Sender, b.Address()); allowed < n {
				return fmt.Errorf("%w: basket may move %d of %s, needs %d",
					custody.ErrInsufficientAllowance, allowed, tok.Address().Hex(), n)
			}
		}

		for i, n := range need {
			if err := b.add(claimReserve, common.Address{}, i, n); err != nil {
				return err
			}
			// A failed leg aborts the call and returns every leg already pulled.
			if err := b.tokens[i].TransferFrom(b.Address(), call.Sender, b.Address(), n); err != nil {
				return fmt.Errorf("deposit %s: %w", b.tokens[i].Address().Hex(), err)
			}
		}
		if err := b.mint(call.Sender, amount); err != nil {
			return err
		}

		if err := b.settleArrangerFee(call, arrangerFee); err != nil {
			return err
		}

		b.emit(&event.Bundled{
			Basket:      b.Address(),
			Holder:      call.Sender,
			Amount:      amount,
			Consumed:    need,
			ArrangerFee: arrangerFee,
			TotalMinted: b.totalMinted,
		})
		return nil
	})
}

// arrangerFeeFor returns the fee for minting amount and checks the call
// carries it.
func (b *Basket) arrangerFeeFor(call custody.Call, amount uint64) (uint64, error) {
	arrangerFee, err := fee.Charge(amount, b.arrangerFee.Bps)
	if err != nil {
		return 0, err
	}
	if call.Value < arrangerFee {
		return 0, fmt.Errorf("%w: attached %d, arranger fee is %d", ErrInsufficientFee, call.Value, arrangerFee)
	}
	return arrangerFee, nil
}

// settleArrangerFee takes the attached value, forwards the fee and refunds
// the rest to the caller.
func (b *Basket) settleArrangerFee(call custody.Call, arrangerFee uint64) error {
	if err := custody.Collect(b.currency, call, b.Address()); err != nil {
		return err
	}
	if err := b.arrangerFee.Forward(b.currency, b.Address(), arrangerFee); err != nil {
		return err
	}
	if excess := call.Value - arrangerFee; excess > 0 {
		if err := b.currency.Transfer(b.Address(), call.Sender, excess); err != nil {
			return fmt.Errorf("refund excess fee: %w", err)
		}
	}
	return nil
}

// RefundDeposit returns the caller's unbundled pending deposit of token.
// A failed transfer parks the amount as an outstanding balance.
func (b *Basket) RefundDeposit(call custody.Call, token common.Address) (WithdrawResult, error) {
	var result WithdrawResult
	err := b.atomically(func() error {
		if err := custody.RejectValue(call); err != nil {
			return err
		}
		i, err := b.tokenAt(token)
		if err != nil {
			return err
		}
		amount := b.get(claimPending, call.Sender, i)
		if amount == 0 {
			result = WithdrawResult{Token: token}
			return nil
		}

		b.set(claimPending, call.Sender, i, 0)
		if err := b.add(claimWithdrawable, call.Sender, i, amount); err != nil {
			return err
		}
		b.emit(&event.DepositRefunded{Basket: b.Address(), Holder: call.Sender, Token: token, Amount: amount})

		result, err = b.withdraw(call.Sender, i)
		return err
	})
	return result, err
}

// Quote returns the per-token deposit and arranger fee for minting amount.
func (b *Basket) Quote(amount uint64) (need []uint64, arrangerFee uint64, err error) {
	need, err = b.RequiredDeposit(amount)
	if err != nil {
		return nil, 0, err
	}
	arrangerFee, err = fee.Charge(amount, b.arrangerFee.Bps)
	return need, arrangerFee, err
}
