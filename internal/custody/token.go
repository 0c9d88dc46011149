package custody

import (
	"fmt"

	"BasketLedger/internal/ledger"

	"github.com/ethereum/go-ethereum/common"
)

// TokenConfig describes an issued fungible token.
type TokenConfig struct {
	Name         string
	Symbol       string
	Decimals     uint8
	Owner        common.Address // Zero owner means no administrative control
	FaucetAmount uint64         // Zero disables the faucet
}

// Token is a pausable fungible asset. A paused token fails every movement,
// which is how an administratively frozen underlying asset behaves.
type Token struct {
	Fungible
	cfg    TokenConfig
	paused bool
}

func NewToken(book *ledger.Book, address common.Address, cfg TokenConfig) *Token {
	t := &Token{
		Fungible: NewFungible(book, address),
		cfg:      cfg,
	}
	t.gate = t.checkPaused
	return t
}

func (t *Token) Name() string          { return t.cfg.Name }
func (t *Token) Symbol() string        { return t.cfg.Symbol }
func (t *Token) Decimals() uint8       { return t.cfg.Decimals }
func (t *Token) Owner() common.Address { return t.cfg.Owner }
func (t *Token) Paused() bool          { return t.paused }

func (t *Token) checkPaused() error {
	if t.paused {
		return fmt.Errorf("%w: token %s is paused", ErrTransferFailed, t.cfg.Symbol)
	}
	return nil
}

// Mint issues new supply. Owner only.
func (t *Token) Mint(caller, to common.Address, amount uint64) error {
	if err := t.onlyOwner(caller); err != nil {
		return err
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	return t.Issue(to, amount)
}

// Faucet issues the configured faucet amount to caller.
func (t *Token) Faucet(caller common.Address) (uint64, error) {
	if t.cfg.FaucetAmount == 0 {
		return 0, ErrFaucetDisabled
	}
	if err := t.Issue(caller, t.cfg.FaucetAmount); err != nil {
		return 0, err
	}
	return t.cfg.FaucetAmount, nil
}

// Pause freezes every movement of the token. Owner only.
func (t *Token) Pause(caller common.Address) error {
	if err := t.onlyOwner(caller); err != nil {
		return err
	}
	t.paused = true
	return nil
}

// Unpause lifts a freeze. Owner only.
func (t *Token) Unpause(caller common.Address) error {
	if err := t.onlyOwner(caller); err != nil {
		return err
	}
	t.paused = false
	return nil
}

func (t *Token) onlyOwner(caller common.Address) error {
	if t.cfg.Owner == (common.Address{}) || caller != t.cfg.Owner {
		return fmt.Errorf("%w: %s does not own %s", ErrUnauthorized, caller.Hex(), t.cfg.Symbol)
	}
	return nil
}
