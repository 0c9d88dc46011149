package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// IssuanceOwner is the counterpart account for mints and burns.
// Its balance is implicit: supply == Σ owner balances.
var IssuanceOwner = common.Address{}

// AccountKey is the in-memory key for balance tracking: one asset held by one owner.
type AccountKey struct {
	Asset common.Address
	Owner common.Address
}

// NewAccountKey creates a key for owner's holding of asset.
func NewAccountKey(asset, owner common.Address) AccountKey {
	return AccountKey{Asset: asset, Owner: owner}
}

// IssuanceKey returns the mint/burn counterpart account for asset.
func IssuanceKey(asset common.Address) AccountKey {
	return AccountKey{Asset: asset, Owner: IssuanceOwner}
}

// IsIssuance reports whether the key is the mint/burn counterpart.
func (k AccountKey) IsIssuance() bool {
	return k.Owner == IssuanceOwner
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	if k.IsIssuance() {
		return fmt.Sprintf("issuance:%s", k.Asset.Hex())
	}
	return fmt.Sprintf("holder:%s:%s", k.Owner.Hex(), k.Asset.Hex())
}

// allowanceKey tracks spender authority over owner's balance of asset.
type allowanceKey struct {
	Asset   common.Address
	Owner   common.Address
	Spender common.Address
}
