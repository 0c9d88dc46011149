package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	book *Book
}

func NewInvariantValidator(book *Book) *InvariantValidator {
	return &InvariantValidator{
		book: book,
	}
}

// ValidateBatch verifies every journal in the batch is well-formed.
func (v *InvariantValidator) ValidateBatch(batch *Batch) error {
	return batch.Validate()
}

// ValidateSupply verifies Σ holder balances == supply for every asset.
func (v *InvariantValidator) ValidateSupply() error {
	totals := make(map[common.Address]uint64)
	for key, balance := range v.book.balances {
		total := totals[key.Asset] + balance
		if total < totals[key.Asset] {
			return fmt.Errorf("balance sum for %s overflows", key.Asset.Hex())
		}
		totals[key.Asset] = total
	}

	for asset, supply := range v.book.supply {
		if totals[asset] != supply {
			return fmt.Errorf("asset %s: holder balances %d != supply %d",
				asset.Hex(), totals[asset], supply)
		}
		delete(totals, asset)
	}
	for asset, total := range totals {
		if total != 0 {
			return fmt.Errorf("asset %s has balances %d but no supply", asset.Hex(), total)
		}
	}
	return nil
}
