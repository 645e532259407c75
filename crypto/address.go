package crypto

import (
	"github.com/stratorollup/strato/core/types"
	"github.com/stratorollup/strato/rlp"
)

// CreateAddress computes the address of a contract created by the given
// account at the given nonce: Keccak256(RLP([sender, nonce]))[12:].
func CreateAddress(sender types.Address, nonce uint64) types.Address {
	senderEnc, _ := rlp.EncodeToBytes(sender[:])
	nonceEnc, _ := rlp.EncodeToBytes(nonce)
	payload := append(senderEnc, nonceEnc...)
	return types.BytesToAddress(Keccak256(rlp.WrapList(payload))[12:])
}
