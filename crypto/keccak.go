// Package crypto provides the hashing and secp256k1 signature primitives used
// by the transaction protocol. All functions are pure and safe for concurrent
// use; nothing here touches mutable execution state.
package crypto

import (
	"golang.org/x/crypto/sha3"

	"github.com/stratorollup/strato/core/types"
)

// Keccak256 computes the Keccak-256 hash of the concatenation of data.
func Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// Keccak256Hash computes the Keccak-256 hash of the concatenation of data and
// returns it as a Hash.
func Keccak256Hash(data ...[]byte) types.Hash {
	var h types.Hash
	copy(h[:], Keccak256(data...))
	return h
}
