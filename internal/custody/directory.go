package custody

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// Directory resolves asset addresses to their transfer capability.
type Directory struct {
	assets map[common.Address]AssetTransfer
}

func NewDirectory() *Directory {
	return &Directory{assets: make(map[common.Address]AssetTransfer)}
}

// Register adds an asset. Addresses are never reused.
func (d *Directory) Register(asset AssetTransfer) error {
	addr := asset.Address()
	if _, exists := d.assets[addr]; exists {
		return fmt.Errorf("asset %s already registered", addr.Hex())
	}
	d.assets[addr] = asset
	return nil
}

// Lookup returns the asset at addr.
func (d *Directory) Lookup(addr common.Address) (AssetTransfer, error) {
	asset, ok := d.assets[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, addr.Hex())
	}
	return asset, nil
}

// Addresses returns every registered asset address, sorted.
func (d *Directory) Addresses() []common.Address {
	out := make([]common.Address, 0, len(d.assets))
	for addr := range d.assets {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}
