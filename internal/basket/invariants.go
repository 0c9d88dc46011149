package basket

import (
	"fmt"

	fpmath "BasketLedger/internal/math"

	"github.com/ethereum/go-ethereum/common"
)

// Claims returns the sum of every recorded claim on token: pending deposits,
// reserves, withdrawable, outstanding and wallet balances.
func (b *Basket) Claims(token common.Address) uint64 {
	i, ok := b.tokenIndex[token]
	if !ok {
		return 0
	}
	var total uint64
	for key, v := range b.claims {
		if key.token == i {
			total += v
		}
	}
	return total
}

// OutstandingTotal returns the sum of outstanding balances on token.
func (b *Basket) OutstandingTotal(token common.Address) uint64 {
	i, ok := b.tokenIndex[token]
	if !ok {
		return 0
	}
	var total uint64
	for key, v := range b.claims {
		if key.kind == claimOutstanding && key.token == i {
			total += v
		}
	}
	return total
}

// CheckInvariants verifies supply conservation, custody coverage and reserve
// backing. It returns the first violation found.
func (b *Basket) CheckInvariants() error {
	supply := b.TotalSupply()
	if supply != b.totalMinted-b.totalBurned {
		return fmt.Errorf("basket %s: supply %d != minted %d - burned %d",
			b.Address().Hex(), supply, b.totalMinted, b.totalBurned)
	}

	for i, tok := range b.tokens {
		addr := tok.Address()
		held := tok.BalanceOf(b.Address())
		if claims := b.Claims(addr); held < claims {
			return fmt.Errorf("basket %s: custody of %s is %d, claims total %d",
				b.Address().Hex(), addr.Hex(), held, claims)
		}

		backing, err := fpmath.MulDiv(supply, b.weights[i], b.weightUnit, fpmath.RoundDown)
		if err != nil {
			return err
		}
		if reserve := b.get(claimReserve, common.Address{}, i); reserve < backing {
			return fmt.Errorf("basket %s: reserve of %s is %d, supply needs %d",
				b.Address().Hex(), addr.Hex(), reserve, backing)
		}
	}
	return nil
}
