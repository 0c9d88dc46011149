package basket

import (
	"bytes"
	"encoding/binary"
	"sort"
)

// AppendDigest appends canonical bytes for the basket's claim state and mint
// counters to buf. Claims are ordered by kind, token and holder.
func (b *Basket) AppendDigest(buf []byte) []byte {
	keys := make([]claimKey, 0, len(b.claims))
	for key := range b.claims {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].kind != keys[j].kind {
			return keys[i].kind < keys[j].kind
		}
		if keys[i].token != keys[j].token {
			return keys[i].token < keys[j].token
		}
		return bytes.Compare(keys[i].holder[:], keys[j].holder[:]) < 0
	})

	buf = append(buf, b.Address().Bytes()...)
	buf = binary.BigEndian.AppendUint64(buf, b.totalMinted)
	buf = binary.BigEndian.AppendUint64(buf, b.totalBurned)
	for _, key := range keys {
		buf = append(buf, byte(key.kind))
		buf = binary.BigEndian.AppendUint32(buf, uint32(key.token))
		buf = append(buf, key.holder.Bytes()...)
		buf = binary.BigEndian.AppendUint64(buf, b.claims[key])
	}
	return buf
}
