package event

import "github.com/ethereum/go-ethereum/common"

// OrderTerms is the full economic tuple of an escrow order.
type OrderTerms struct {
	Key            common.Hash    `json:"key"`
	Index          uint64         `json:"index"`
	Direction      string         `json:"direction"`
	Creator        common.Address `json:"creator"`
	Basket         common.Address `json:"basket"`
	BasketAmount   uint64         `json:"basket_amount"`
	CurrencyAmount uint64         `json:"currency_amount"`
	Expiration     uint64         `json:"expiration"`
	Nonce          uint64         `json:"nonce"`
}

type OrderCreated struct {
	OrderTerms
}

func (*OrderCreated) EventType() EventType { return EventTypeOrderCreated }

type OrderCancelled struct {
	OrderTerms
}

func (*OrderCancelled) EventType() EventType { return EventTypeOrderCancelled }

type OrderFilled struct {
	OrderTerms
	Filler         common.Address `json:"filler"`
	TransactionFee uint64         `json:"transaction_fee"`
	FeeRecipient   common.Address `json:"fee_recipient"`
}

func (*OrderFilled) EventType() EventType { return EventTypeOrderFilled }
