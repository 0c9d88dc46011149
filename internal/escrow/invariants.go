package escrow

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Locked returns the currency held for open buy orders and the basket tokens
// held for open sell orders, per basket.
func (ob *OrderBook) Locked() (currency uint64, baskets map[common.Address]uint64) {
	baskets = make(map[common.Address]uint64)
	for _, o := range ob.orders {
		if o.State != StateOpen {
			continue
		}
		switch o.Direction {
		case Buy:
			currency += o.CurrencyAmount
		case Sell:
			baskets[o.Basket] += o.BasketAmount
		}
	}
	return currency, baskets
}

// CheckInvariants verifies that custody covers every open order's locked leg.
// Custody may exceed the locked total when tokens were sent to the book
// directly.
func (ob *OrderBook) CheckInvariants() error {
	currency, baskets := ob.Locked()
	if held := ob.currency.BalanceOf(ob.address); held < currency {
		return fmt.Errorf("escrow holds %d currency, open buy orders lock %d", held, currency)
	}
	for addr, locked := range baskets {
		token, err := ob.resolve(addr)
		if err != nil {
			return err
		}
		if held := token.BalanceOf(ob.address); held < locked {
			return fmt.Errorf("escrow holds %d of basket %s, open sell orders lock %d", held, addr.Hex(), locked)
		}
	}
	return nil
}
