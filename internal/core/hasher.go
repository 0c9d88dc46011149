package core

import (
	"crypto/sha256"
	"encoding/binary"
)

const GenesisHashSeed = "BasketLedger:genesis:v1"

// StateHasher chains a hash over every sequenced command.
type StateHasher struct {
	prevHash [32]byte
}

func NewStateHasher() *StateHasher {
	return &StateHasher{prevHash: GenesisHash()}
}

// GenesisHash is the chain tip before the first command.
func GenesisHash() [32]byte {
	return sha256.Sum256([]byte(GenesisHashSeed))
}

// ComputeHash calculates state_hash[N] = SHA-256(prev_hash || sequence || state_digest)
// and advances the chain.
func (h *StateHasher) ComputeHash(sequence int64, stateDigest []byte) [32]byte {
	hasher := sha256.New()
	hasher.Write(h.prevHash[:])

	var seqBuf [8]byte
	binary.LittleEndian.PutUint64(seqBuf[:], uint64(sequence))
	hasher.Write(seqBuf[:])

	hasher.Write(stateDigest)

	var hash [32]byte
	copy(hash[:], hasher.Sum(nil))
	h.prevHash = hash
	return hash
}

// Tip returns the current chain tip.
func (h *StateHasher) Tip() [32]byte {
	return h.prevHash
}

// Reset moves the chain tip, used when resuming from a checkpoint.
func (h *StateHasher) Reset(tip [32]byte) {
	h.prevHash = tip
}
