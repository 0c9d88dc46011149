package registry

import (
	"errors"
	"fmt"

	"BasketLedger/internal/basket"
	"BasketLedger/internal/custody"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrUnknownBasket    = errors.New("unknown basket")
	ErrBasketRegistered = errors.New("basket already registered")
)

// Details is the directory record of one basket.
type Details struct {
	Index       uint64           `json:"index"`
	Address     common.Address   `json:"address"`
	Arranger    common.Address   `json:"arranger"`
	Name        string           `json:"name"`
	Symbol      string           `json:"symbol"`
	Tokens      []common.Address `json:"tokens"`
	Weights     []uint64         `json:"weights"`
	TotalMinted uint64           `json:"total_minted"`
	TotalBurned uint64           `json:"total_burned"`
}

type entry struct {
	details Details
	basket  *basket.Basket
}

// Registry is the append-only basket directory. It records supply counters
// reported by baskets but never authorizes anything.
type Registry struct {
	baskets       map[common.Address]*entry
	order         []common.Address
	arrangers     map[common.Address]uint64
	arrangerOrder []common.Address
}

func New() *Registry {
	return &Registry{
		baskets:   make(map[common.Address]*entry),
		arrangers: make(map[common.Address]uint64),
	}
}

// Register appends a deployed basket and returns its index, starting at 1.
// First-time arrangers receive an arranger index as well.
func (r *Registry) Register(b *basket.Basket) (uint64, error) {
	addr := b.Address()
	if _, exists := r.baskets[addr]; exists {
		return 0, fmt.Errorf("%w: %s", ErrBasketRegistered, addr.Hex())
	}

	index := uint64(len(r.order)) + 1
	r.baskets[addr] = &entry{
		basket: b,
		details: Details{
			Index:       index,
			Address:     addr,
			Arranger:    b.Arranger(),
			Name:        b.Name(),
			Symbol:      b.Symbol(),
			Tokens:      b.Tokens(),
			Weights:     b.Weights(),
			TotalMinted: b.TotalMinted(),
			TotalBurned: b.TotalBurned(),
		},
	}
	r.order = append(r.order, addr)

	if _, known := r.arrangers[b.Arranger()]; !known {
		r.arrangerOrder = append(r.arrangerOrder, b.Arranger())
		r.arrangers[b.Arranger()] = uint64(len(r.arrangerOrder))
	}
	return index, nil
}

// Exists reports whether addr is a registered basket.
func (r *Registry) Exists(addr common.Address) bool {
	_, ok := r.baskets[addr]
	return ok
}

// Details returns a copy of the directory record for addr.
func (r *Registry) Details(addr common.Address) (Details, error) {
	e, ok := r.baskets[addr]
	if !ok {
		return Details{}, fmt.Errorf("%w: %s", ErrUnknownBasket, addr.Hex())
	}
	d := e.details
	d.Tokens = append([]common.Address(nil), d.Tokens...)
	d.Weights = append([]uint64(nil), d.Weights...)
	return d, nil
}

// List returns every basket's record in registration order.
func (r *Registry) List() []Details {
	out := make([]Details, 0, len(r.order))
	for _, addr := range r.order {
		d, _ := r.Details(addr)
		out = append(out, d)
	}
	return out
}

// Basket returns the live basket registered at addr.
func (r *Registry) Basket(addr common.Address) (*basket.Basket, error) {
	e, ok := r.baskets[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBasket, addr.Hex())
	}
	return e.basket, nil
}

// Resolve returns the basket token capability for addr.
func (r *Registry) Resolve(addr common.Address) (custody.AssetTransfer, error) {
	b, err := r.Basket(addr)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ArrangerIndex returns the 1-based index of an arranger, or 0 if unknown.
func (r *Registry) ArrangerIndex(arranger common.Address) uint64 {
	return r.arrangers[arranger]
}

// Arrangers returns every arranger in first-registration order.
func (r *Registry) Arrangers() []common.Address {
	return append([]common.Address(nil), r.arrangerOrder...)
}

// BasketsByArranger returns the addresses of baskets arranged by arranger.
func (r *Registry) BasketsByArranger(arranger common.Address) []common.Address {
	var out []common.Address
	for _, addr := range r.order {
		if r.baskets[addr].details.Arranger == arranger {
			out = append(out, addr)
		}
	}
	return out
}

// RecordSupply updates the counters of a registered basket. Reports for
// unknown baskets are ignored.
func (r *Registry) RecordSupply(addr common.Address, totalMinted, totalBurned uint64) {
	e, ok := r.baskets[addr]
	if !ok {
		return
	}
	e.details.TotalMinted = totalMinted
	e.details.TotalBurned = totalBurned
}
