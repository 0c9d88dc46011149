package escrow

import (
	"encoding/binary"
	"fmt"

	"BasketLedger/internal/event"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Direction is the creator's side of the trade.
type Direction uint8

const (
	// Buy: the creator locks currency and wants basket tokens.
	Buy Direction = iota
	// Sell: the creator locks basket tokens and wants currency.
	Sell
)

func (d Direction) String() string {
	switch d {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Direction) UnmarshalText(b []byte) error {
	parsed, ok := ParseDirection(string(b))
	if !ok {
		return fmt.Errorf("unknown direction %q", b)
	}
	*d = parsed
	return nil
}

// ParseDirection is the inverse of Direction.String.
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "buy":
		return Buy, true
	case "sell":
		return Sell, true
	}
	return 0, false
}

// State of an order. A key that was never created has no state.
type State uint8

const (
	StateOpen State = iota + 1
	StateFilled
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateFilled:
		return "filled"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Terms is the full economic tuple of an order. The tuple is the order's
// identity: see Key.
type Terms struct {
	Creator        common.Address `json:"creator"`
	Basket         common.Address `json:"basket"`
	BasketAmount   uint64         `json:"basket_amount"`
	CurrencyAmount uint64         `json:"currency_amount"`
	Expiration     uint64         `json:"expiration"` // Unix seconds; fills at a later time fail
	Nonce          uint64         `json:"nonce"`
	Direction      Direction      `json:"direction"`
}

// Key returns keccak256 over the fixed-width packing of the tuple: 20-byte
// addresses, 32-byte big-endian integers and a 1-byte direction.
func (t Terms) Key() common.Hash {
	return crypto.Keccak256Hash(
		t.Creator.Bytes(),
		t.Basket.Bytes(),
		word(t.BasketAmount),
		word(t.CurrencyAmount),
		word(t.Expiration),
		word(t.Nonce),
		[]byte{byte(t.Direction)},
	)
}

func word(v uint64) []byte {
	var w [32]byte
	binary.BigEndian.PutUint64(w[24:], v)
	return w[:]
}

// Order is a stored order. Index is a sequential enumeration aid starting at
// 1 and carries no authority; lookups by terms always go through Key.
type Order struct {
	Terms
	Key   common.Hash `json:"key"`
	Index uint64      `json:"index"`
	State State       `json:"state"`
}

// Exists reports whether the order is open. Cancelled orders read as
// nonexistent.
func (o Order) Exists() bool { return o.State == StateOpen }

// Filled reports whether the order was filled.
func (o Order) Filled() bool { return o.State == StateFilled }

func (o Order) eventTerms() event.OrderTerms {
	return event.OrderTerms{
		Key:            o.Key,
		Index:          o.Index,
		Direction:      o.Direction.String(),
		Creator:        o.Creator,
		Basket:         o.Basket,
		BasketAmount:   o.BasketAmount,
		CurrencyAmount: o.CurrencyAmount,
		Expiration:     o.Expiration,
		Nonce:          o.Nonce,
	}
}
