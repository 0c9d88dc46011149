package query

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Amount is a token quantity in base units with its human-readable form.
type Amount struct {
	Raw     string `json:"raw"`     // Base units
	Display string `json:"display"` // Shifted by the token's decimals
}

// NewAmount formats v for a token with the given decimals.
func NewAmount(v uint64, decimals uint8) Amount {
	d := decimal.NewFromUint64(v)
	return Amount{
		Raw:     d.String(),
		Display: d.Shift(-int32(decimals)).String(),
	}
}

// Component is one underlying token of a basket.
type Component struct {
	Token    common.Address `json:"token"`
	Symbol   string         `json:"symbol,omitempty"`
	Weight   uint64         `json:"weight"`
	Reserve  Amount         `json:"reserve"`
	Claims   Amount         `json:"claims"`  // Everything the basket owes for this token
	Custody  Amount         `json:"custody"` // The basket's actual balance
	Deferred Amount         `json:"deferred"`
}

// BasketResponse describes one registered basket.
type BasketResponse struct {
	Address              common.Address `json:"address"`
	Index                uint64         `json:"index"`
	Name                 string         `json:"name"`
	Symbol               string         `json:"symbol"`
	Decimals             uint8          `json:"decimals"`
	Arranger             common.Address `json:"arranger"`
	ArrangerFeeBps       uint64         `json:"arranger_fee_bps"`
	ArrangerFeeRecipient common.Address `json:"arranger_fee_recipient"`
	Components           []Component    `json:"components"`
	TotalMinted          Amount         `json:"total_minted"`
	TotalBurned          Amount         `json:"total_burned"`
	TotalSupply          Amount         `json:"total_supply"`
	AsOfSequence         int64          `json:"as_of_sequence"`
}

// HolderToken is a holder's per-token position inside a basket.
type HolderToken struct {
	Token        common.Address `json:"token"`
	Pending      Amount         `json:"pending"`
	Withdrawable Amount         `json:"withdrawable"`
	Outstanding  Amount         `json:"outstanding"`
	Wallet       Amount         `json:"wallet"`
}

// HolderResponse describes one holder's standing in a basket.
type HolderResponse struct {
	Basket       common.Address `json:"basket"`
	Holder       common.Address `json:"holder"`
	Balance      Amount         `json:"balance"`
	Tokens       []HolderToken  `json:"tokens"`
	AsOfSequence int64          `json:"as_of_sequence"`
}

// OrderResponse describes one escrow order.
type OrderResponse struct {
	Key            common.Hash    `json:"key"`
	Index          uint64         `json:"index"`
	Direction      string         `json:"direction"`
	State          string         `json:"state"`
	Creator        common.Address `json:"creator"`
	Basket         common.Address `json:"basket"`
	BasketAmount   Amount         `json:"basket_amount"`
	CurrencyAmount Amount         `json:"currency_amount"`
	Expiration     uint64         `json:"expiration"`
	Nonce          uint64         `json:"nonce"`
	AsOfSequence   int64          `json:"as_of_sequence,omitempty"`
}

// OrderFilter narrows ListOrders. Zero fields match everything.
type OrderFilter struct {
	State   string
	Basket  common.Address
	Creator common.Address
}

// OrderList is a page of orders.
type OrderList struct {
	Orders       []OrderResponse `json:"orders"`
	AsOfSequence int64           `json:"as_of_sequence"`
}

// JournalEntry is one persisted journal row.
type JournalEntry struct {
	JournalID     string `json:"journal_id"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	Asset         string `json:"asset"`
	Amount        string `json:"amount"`
	JournalType   string `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy      bool     `json:"is_healthy"`
	Sequence       int64    `json:"sequence"`
	StateHash      string   `json:"state_hash"`
	Violations     []string `json:"violations,omitempty"`
	BasketsChecked int      `json:"baskets_checked"`
}

// ProjectedBalance is one row of the journal-folded balance projection.
type ProjectedBalance struct {
	AccountPath  string `json:"account_path"`
	Asset        string `json:"asset"`
	Balance      string `json:"balance"`
	LastSequence int64  `json:"last_sequence"`
}

// ProjectedBalances is the projection for one owner and how far it trails
// the log.
type ProjectedBalances struct {
	Balances  []ProjectedBalance `json:"balances"`
	Watermark int64              `json:"watermark"`
}
