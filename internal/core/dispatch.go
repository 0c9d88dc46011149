package core

import (
	"fmt"

	"BasketLedger/internal/basket"
	"BasketLedger/internal/command"
	"BasketLedger/internal/custody"
	"BasketLedger/internal/event"
	"BasketLedger/internal/registry"

	"github.com/ethereum/go-ethereum/common"
)

// BasketReply is returned by create_basket.
type BasketReply struct {
	Address common.Address `json:"address"`
	Index   uint64         `json:"index"`
}

// TokenReply is returned by issue_token.
type TokenReply struct {
	Address common.Address `json:"address"`
}

// AmountReply is returned by operations that move a single amount.
type AmountReply struct {
	Amount uint64 `json:"amount"`
}

// dispatch routes cmd to the contract that owns it.
func (e *Engine) dispatch(cmd *command.Command) (any, error) {
	call := custody.Call{
		Sender: cmd.Sender,
		Value:  cmd.Value,
		Time:   cmd.Timestamp,
	}

	switch args := cmd.Args.(type) {
	// Tokens
	case *command.IssueToken:
		tok, err := e.factory.IssueToken(call, registry.TokenParams{
			Name:         args.Name,
			Symbol:       args.Symbol,
			Decimals:     args.Decimals,
			Supply:       args.Supply,
			FaucetAmount: args.FaucetAmount,
		})
		if err != nil {
			return nil, err
		}
		return TokenReply{Address: tok.Address()}, nil

	case *command.MintToken:
		tok, err := e.token(call, args.Token)
		if err != nil {
			return nil, err
		}
		if err := tok.Mint(call.Sender, args.To, args.Amount); err != nil {
			return nil, err
		}
		e.recorder.Emit(&event.Transfer{Token: args.Token, To: args.To, Amount: args.Amount})
		return AmountReply{Amount: args.Amount}, nil

	case *command.Faucet:
		tok, err := e.token(call, args.Token)
		if err != nil {
			return nil, err
		}
		amount, err := tok.Faucet(call.Sender)
		if err != nil {
			return nil, err
		}
		e.recorder.Emit(&event.Transfer{Token: args.Token, To: call.Sender, Amount: amount})
		return AmountReply{Amount: amount}, nil

	case *command.PauseToken:
		return nil, e.setPaused(call, args.Token, true)

	case *command.UnpauseToken:
		return nil, e.setPaused(call, args.Token, false)

	case *command.Approve:
		if err := custody.RejectValue(call); err != nil {
			return nil, err
		}
		asset, err := e.assets.Lookup(args.Token)
		if err != nil {
			return nil, err
		}
		if err := asset.Approve(call.Sender, args.Spender, args.Amount); err != nil {
			return nil, err
		}
		e.recorder.Emit(&event.Approval{Token: args.Token, Owner: call.Sender, Spender: args.Spender, Amount: args.Amount})
		return nil, nil

	case *command.Transfer:
		if err := custody.RejectValue(call); err != nil {
			return nil, err
		}
		// Currency reaches contracts only through their entry points.
		if args.Token == e.currency.Address() {
			if receive := e.receiver(args.To); receive != nil {
				if err := receive(custody.Call{Sender: call.Sender, Value: args.Amount, Time: call.Time}); err != nil {
					return nil, err
				}
			}
		}
		asset, err := e.assets.Lookup(args.Token)
		if err != nil {
			return nil, err
		}
		if err := asset.Transfer(call.Sender, args.To, args.Amount); err != nil {
			return nil, err
		}
		e.recorder.Emit(&event.Transfer{Token: args.Token, From: call.Sender, To: args.To, Amount: args.Amount})
		return AmountReply{Amount: args.Amount}, nil

	case *command.SendValue:
		return nil, e.sendValue(call, args.To)

	// Factory
	case *command.CreateBasket:
		b, err := e.factory.CreateBasket(call, registry.BasketParams{
			Name:                 args.Name,
			Symbol:               args.Symbol,
			Decimals:             args.Decimals,
			Tokens:               args.Tokens,
			Weights:              args.Weights,
			ArrangerFeeRecipient: args.ArrangerFeeRecipient,
			ArrangerFeeBps:       args.ArrangerFeeBps,
		})
		if err != nil {
			return nil, err
		}
		e.touched = b
		d, err := e.registry.Details(b.Address())
		if err != nil {
			return nil, err
		}
		return BasketReply{Address: b.Address(), Index: d.Index}, nil

	case *command.ChangeProductionFee:
		return nil, e.factory.ChangeProductionFee(call, args.Amount)

	case *command.ChangeProductionFeeRecipient:
		return nil, e.factory.ChangeProductionFeeRecipient(call, args.Recipient)

	// Basket
	case *command.Deposit:
		b, err := e.basket(args.Basket)
		if err != nil {
			return nil, err
		}
		return nil, b.Deposit(call, args.Token, args.Amount)

	case *command.Bundle:
		b, err := e.basket(args.Basket)
		if err != nil {
			return nil, err
		}
		return nil, b.Bundle(call, args.Amount)

	case *command.DepositAndBundle:
		b, err := e.basket(args.Basket)
		if err != nil {
			return nil, err
		}
		return nil, b.DepositAndBundle(call, args.Amount)

	case *command.RefundDeposit:
		b, err := e.basket(args.Basket)
		if err != nil {
			return nil, err
		}
		return b.RefundDeposit(call, args.Token)

	case *command.Debundle:
		b, err := e.basket(args.Basket)
		if err != nil {
			return nil, err
		}
		return nil, b.Debundle(call, args.Amount)

	case *command.Withdraw:
		b, err := e.basket(args.Basket)
		if err != nil {
			return nil, err
		}
		return b.Withdraw(call, args.Token)

	case *command.DebundleAndWithdraw:
		b, err := e.basket(args.Basket)
		if err != nil {
			return nil, err
		}
		return b.DebundleAndWithdraw(call, args.Amount)

	case *command.Extract:
		b, err := e.basket(args.Basket)
		if err != nil {
			return nil, err
		}
		return nil, b.Extract(call, args.Amount)

	case *command.WalletWithdraw:
		b, err := e.basket(args.Basket)
		if err != nil {
			return nil, err
		}
		amount, err := b.WalletWithdraw(call, args.Token)
		if err != nil {
			return nil, err
		}
		return AmountReply{Amount: amount}, nil

	case *command.ChangeArrangerFee:
		b, err := e.basket(args.Basket)
		if err != nil {
			return nil, err
		}
		return nil, b.ChangeArrangerFee(call, args.Bps)

	case *command.ChangeArrangerFeeRecipient:
		b, err := e.basket(args.Basket)
		if err != nil {
			return nil, err
		}
		return nil, b.ChangeArrangerFeeRecipient(call, args.Recipient)

	// Escrow
	case *command.CreateBuyOrder:
		return e.escrow.CreateBuyOrder(call, args.Basket, args.BasketAmount, args.Expiration, args.Nonce)

	case *command.CreateSellOrder:
		t := args.OrderTerms
		return e.escrow.CreateSellOrder(call, t.Basket, t.BasketAmount, t.CurrencyAmount, t.Expiration, t.Nonce)

	case *command.CancelBuyOrder:
		t := args.OrderTerms
		return nil, e.escrow.CancelBuyOrder(call, t.Basket, t.BasketAmount, t.CurrencyAmount, t.Expiration, t.Nonce)

	case *command.CancelSellOrder:
		t := args.OrderTerms
		return nil, e.escrow.CancelSellOrder(call, t.Basket, t.BasketAmount, t.CurrencyAmount, t.Expiration, t.Nonce)

	case *command.FillBuyOrder:
		t := args.OrderTerms
		return e.escrow.FillBuyOrder(call, args.Creator, t.Basket, t.BasketAmount, t.CurrencyAmount, t.Expiration, t.Nonce)

	case *command.FillSellOrder:
		return e.escrow.FillSellOrder(call, args.Creator, args.Basket, args.BasketAmount, args.Expiration, args.Nonce)

	case *command.ChangeTransactionFee:
		return nil, e.escrow.ChangeTransactionFee(call, args.Bps)

	case *command.ChangeTransactionFeeRecipient:
		return nil, e.escrow.ChangeTransactionFeeRecipient(call, args.Recipient)

	default:
		return nil, fmt.Errorf("%w: unsupported op %q", command.ErrMalformed, cmd.Op)
	}
}

// basket resolves a registered basket and marks it for post-command checks.
func (e *Engine) basket(addr common.Address) (*basket.Basket, error) {
	b, err := e.registry.Basket(addr)
	if err != nil {
		return nil, err
	}
	e.touched = b
	return b, nil
}

// token resolves an administrable token. Baskets and other assets without
// an owner-controlled supply are not tokens in this sense.
func (e *Engine) token(call custody.Call, addr common.Address) (*custody.Token, error) {
	if err := custody.RejectValue(call); err != nil {
		return nil, err
	}
	asset, err := e.assets.Lookup(addr)
	if err != nil {
		return nil, err
	}
	tok, ok := asset.(*custody.Token)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not an issued token", custody.ErrUnknownAsset, addr.Hex())
	}
	return tok, nil
}

func (e *Engine) setPaused(call custody.Call, addr common.Address, paused bool) error {
	tok, err := e.token(call, addr)
	if err != nil {
		return err
	}
	if paused {
		err = tok.Pause(call.Sender)
	} else {
		err = tok.Unpause(call.Sender)
	}
	if err != nil {
		return err
	}
	e.recorder.Emit(&event.TokenPauseChanged{Token: addr, Paused: paused})
	return nil
}

// sendValue delivers attached value to addr. Contracts refuse plain
// transfers; externally owned accounts simply receive the currency.
func (e *Engine) sendValue(call custody.Call, to common.Address) error {
	if receive := e.receiver(to); receive != nil {
		return receive(call)
	}
	if call.Value == 0 {
		return nil
	}
	if err := e.currency.Transfer(call.Sender, to, call.Value); err != nil {
		return err
	}
	e.recorder.Emit(&event.Transfer{Token: e.currency.Address(), From: call.Sender, To: to, Amount: call.Value})
	return nil
}

// receiver returns the plain-call fallback of a contract address, or nil
// when to is an externally owned account.
func (e *Engine) receiver(to common.Address) func(custody.Call) error {
	switch {
	case to == e.factory.Address():
		return e.factory.Receive
	case to == e.escrow.Address():
		return e.escrow.Receive
	case e.registry.Exists(to):
		b, _ := e.registry.Basket(to)
		return b.Receive
	}
	if _, err := e.assets.Lookup(to); err == nil {
		return custody.RejectValue
	}
	return nil
}
