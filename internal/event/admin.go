package event

import "github.com/ethereum/go-ethereum/common"

// Fee scopes
const (
	ScopeArranger    = "arranger"
	ScopeTransaction = "transaction"
	ScopeProduction  = "production"
)

type FeeRecipientChanged struct {
	Scope    string         `json:"scope"`
	Contract common.Address `json:"contract"`
	Previous common.Address `json:"previous"`
	Current  common.Address `json:"current"`
}

func (*FeeRecipientChanged) EventType() EventType { return EventTypeFeeRecipientChanged }

// FeeChanged carries basis points for rate fees and a flat amount for the
// production fee.
type FeeChanged struct {
	Scope    string         `json:"scope"`
	Contract common.Address `json:"contract"`
	Previous uint64         `json:"previous"`
	Current  uint64         `json:"current"`
}

func (*FeeChanged) EventType() EventType { return EventTypeFeeChanged }

type TokenIssued struct {
	Token        common.Address `json:"token"`
	Name         string         `json:"name"`
	Symbol       string         `json:"symbol"`
	Decimals     uint8          `json:"decimals"`
	Owner        common.Address `json:"owner"`
	Supply       uint64         `json:"supply"`
	FaucetAmount uint64         `json:"faucet_amount"`
}

func (*TokenIssued) EventType() EventType { return EventTypeTokenIssued }

type TokenPauseChanged struct {
	Token  common.Address `json:"token"`
	Paused bool           `json:"paused"`
}

func (*TokenPauseChanged) EventType() EventType { return EventTypeTokenPauseChanged }

type Approval struct {
	Token   common.Address `json:"token"`
	Owner   common.Address `json:"owner"`
	Spender common.Address `json:"spender"`
	Amount  uint64         `json:"amount"`
}

func (*Approval) EventType() EventType { return EventTypeApproval }

type Transfer struct {
	Token  common.Address `json:"token"`
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount uint64         `json:"amount"`
}

func (*Transfer) EventType() EventType { return EventTypeTransfer }
