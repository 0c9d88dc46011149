package basket

import (
	"fmt"

	"BasketLedger/internal/custody"
	"BasketLedger/internal/event"

	"github.com/ethereum/go-ethereum/common"
)

// WithdrawResult reports one outbound transfer attempt. Deferred is set when
// the transfer failed and the amount was parked as an outstanding balance;
// that is a successful outcome, not an error.
type WithdrawResult struct {
	Token    common.Address `json:"token"`
	Amount   uint64         `json:"amount"`
	Deferred bool           `json:"deferred"`
	Reason   string         `json:"reason,omitempty"`
}

// Debundle burns amount basket units from the caller and credits the
// floor-rounded per-token value as withdrawable.
func (b *Basket) Debundle(call custody.Call, amount uint64) error {
	return b.atomically(func() error {
		if err := custody.RejectValue(call); err != nil {
			return err
		}
		return b.debundle(call.Sender, amount)
	})
}

func (b *Basket) debundle(holder common.Address, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	credit, err := b.RedemptionValue(amount)
	if err != nil {
		return err
	}
	if err := b.burn(holder, amount); err != nil {
		return err
	}
	for i, c := range credit {
		b.sub(claimReserve, common.Address{}, i, c)
		if err := b.add(claimWithdrawable, holder, i, c); err != nil {
			return err
		}
	}

	b.emit(&event.Debundled{
		Basket:      b.Address(),
		Holder:      holder,
		Amount:      amount,
		Credited:    credit,
		TotalBurned: b.totalBurned,
	})
	return nil
}

// Withdraw sends the caller's withdrawable and outstanding amounts of token.
// The claim is zeroed before the transfer. If the transfer fails the whole
// amount moves to the outstanding balance for a later retry.
func (b *Basket) Withdraw(call custody.Call, token common.Address) (WithdrawResult, error) {
	var result WithdrawResult
	err := b.atomically(func() error {
		if err := custody.RejectValue(call); err != nil {
			return err
		}
		i, err := b.tokenAt(token)
		if err != nil {
			return err
		}
		result, err = b.withdraw(call.Sender, i)
		return err
	})
	return result, err
}

// DebundleAndWithdraw burns amount units and attempts every outbound
// transfer. A frozen token defers only its own leg.
func (b *Basket) DebundleAndWithdraw(call custody.Call, amount uint64) ([]WithdrawResult, error) {
	var results []WithdrawResult
	err := b.atomically(func() error {
		if err := custody.RejectValue(call); err != nil {
			return err
		}
		if err := b.debundle(call.Sender, amount); err != nil {
			return err
		}
		results = make([]WithdrawResult, 0, len(b.tokens))
		for i := range b.tokens {
			r, err := b.withdraw(call.Sender, i)
			if err != nil {
				return err
			}
			results = append(results, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (b *Basket) withdraw(holder common.Address, i int) (WithdrawResult, error) {
	token := b.tokens[i].Address()
	amount := b.get(claimWithdrawable, holder, i) + b.get(claimOutstanding, holder, i)
	if amount == 0 {
		return WithdrawResult{Token: token}, nil
	}

	b.set(claimWithdrawable, holder, i, 0)
	b.set(claimOutstanding, holder, i, 0)

	if err := b.tryTransfer(i, holder, amount); err != nil {
		b.set(claimOutstanding, holder, i, amount)
		b.emit(&event.WithdrawalDeferred{
			Basket:      b.Address(),
			Holder:      holder,
			Token:       token,
			Amount:      amount,
			Outstanding: amount,
			Reason:      err.Error(),
		})
		return WithdrawResult{Token: token, Amount: amount, Deferred: true, Reason: err.Error()}, nil
	}

	b.emit(&event.Withdrawn{Basket: b.Address(), Holder: holder, Token: token, Amount: amount})
	return WithdrawResult{Token: token, Amount: amount}, nil
}

// Extract burns amount units and moves the caller's floor-rounded claim on
// every underlying token into the caller's wallet record, without attempting
// any transfer.
func (b *Basket) Extract(call custody.Call, amount uint64) error {
	return b.atomically(func() error {
		if err := custody.RejectValue(call); err != nil {
			return err
		}
		if amount == 0 {
			return ErrInvalidAmount
		}
		credit, err := b.RedemptionValue(amount)
		if err != nil {
			return err
		}
		if err := b.burn(call.Sender, amount); err != nil {
			return err
		}
		for i, c := range credit {
			b.sub(claimReserve, common.Address{}, i, c)
			if err := b.add(claimWallet, call.Sender, i, c); err != nil {
				return err
			}
		}

		b.emit(&event.Extracted{
			Basket: b.Address(),
			Holder: call.Sender,
			Amount: amount,
			Tokens: b.Tokens(),
			Claims: credit,
		})
		return nil
	})
}

// WalletWithdraw transfers the caller's extracted claim on token. Unlike
// Withdraw it is all-or-nothing: a failed transfer keeps the claim in the
// wallet and reports ErrTransferFailed.
func (b *Basket) WalletWithdraw(call custody.Call, token common.Address) (uint64, error) {
	var amount uint64
	err := b.atomically(func() error {
		if err := custody.RejectValue(call); err != nil {
			return err
		}
		i, err := b.tokenAt(token)
		if err != nil {
			return err
		}
		amount = b.get(claimWallet, call.Sender, i)
		if amount == 0 {
			return nil
		}

		b.set(claimWallet, call.Sender, i, 0)
		if err := b.tryTransfer(i, call.Sender, amount); err != nil {
			return fmt.Errorf("%w: wallet withdraw %s: %w", custody.ErrTransferFailed, token.Hex(), err)
		}

		b.emit(&event.WalletWithdrawn{Basket: b.Address(), Holder: call.Sender, Token: token, Amount: amount})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return amount, nil
}
