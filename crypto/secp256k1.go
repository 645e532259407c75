package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	secp256k1 "github.com/decred/dcrd/dcrec/secp256k1/v4"
	decredecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/stratorollup/strato/core/types"
)

// SignatureLength is the length of a recoverable signature: R (32) || S (32) || V (1).
const SignatureLength = 65

// secp256k1N is the order of the secp256k1 curve.
var secp256k1N, _ = new(big.Int).SetString("fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141", 16)

// secp256k1halfN is half the order, used for the low-S malleability check.
var secp256k1halfN = new(big.Int).Rsh(secp256k1N, 1)

var (
	ErrInvalidSignatureLen = errors.New("crypto: signature must be 65 bytes [R || S || V]")
	ErrInvalidHashLen      = errors.New("crypto: hash must be 32 bytes")
	ErrRecoveryFailed      = errors.New("crypto: public key recovery failed")
)

// GenerateKey generates a new secp256k1 private key.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return priv.ToECDSA(), nil
}

// HexToECDSA parses a 32-byte hex-encoded private key scalar.
func HexToECDSA(hexkey string) (*ecdsa.PrivateKey, error) {
	if len(hexkey) >= 2 && hexkey[0] == '0' && (hexkey[1] == 'x' || hexkey[1] == 'X') {
		hexkey = hexkey[2:]
	}
	b, err := hex.DecodeString(hexkey)
	if err != nil || len(b) != 32 {
		return nil, errors.New("crypto: private key must be 32 bytes")
	}
	var overflow [32]byte
	copy(overflow[:], b)
	var priv secp256k1.PrivateKey
	if priv.Key.SetBytes(&overflow) != 0 || priv.Key.IsZero() {
		return nil, errors.New("crypto: invalid private key scalar")
	}
	return priv.ToECDSA(), nil
}

// Sign calculates a recoverable ECDSA signature over a 32-byte hash.
// The returned signature is [R || S || V] with V in {0, 1}.
func Sign(hash []byte, prv *ecdsa.PrivateKey) ([]byte, error) {
	if len(hash) != 32 {
		return nil, ErrInvalidHashLen
	}
	if prv == nil || prv.D == nil {
		return nil, errors.New("crypto: nil private key")
	}
	var d [32]byte
	prv.D.FillBytes(d[:])
	key := secp256k1.PrivKeyFromBytes(d[:])
	defer key.Zero()

	// SignCompact yields [V+27 || R || S]; rotate to [R || S || V].
	compact := decredecdsa.SignCompact(key, hash, false)
	v := compact[0] - 27
	sig := make([]byte, SignatureLength)
	copy(sig, compact[1:])
	sig[64] = v
	return sig, nil
}

// Ecrecover recovers the 65-byte uncompressed public key from hash and signature.
func Ecrecover(hash, sig []byte) ([]byte, error) {
	pub, err := SigToPub(hash, sig)
	if err != nil {
		return nil, err
	}
	return FromECDSAPub(pub), nil
}

// SigToPub recovers the public key that produced sig over hash.
// sig must be [R || S || V] with V in {0, 1}.
func SigToPub(hash, sig []byte) (*ecdsa.PublicKey, error) {
	if len(sig) != SignatureLength {
		return nil, ErrInvalidSignatureLen
	}
	if len(hash) != 32 {
		return nil, ErrInvalidHashLen
	}
	if sig[64] > 1 {
		return nil, fmt.Errorf("%w: recovery id %d", ErrRecoveryFailed, sig[64])
	}
	// RecoverCompact wants [V+27 || R || S].
	compact := make([]byte, SignatureLength)
	compact[0] = sig[64] + 27
	copy(compact[1:], sig[:64])
	pub, _, err := decredecdsa.RecoverCompact(compact, hash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecoveryFailed, err)
	}
	return pub.ToECDSA(), nil
}

// ValidateSignatureValues checks r, s, v ranges. When lowS is true, s must be
// in the lower half of the curve order to rule out malleable encodings.
func ValidateSignatureValues(v byte, r, s *big.Int, lowS bool) bool {
	if r == nil || s == nil || v > 1 {
		return false
	}
	if r.Sign() <= 0 || s.Sign() <= 0 {
		return false
	}
	if r.Cmp(secp256k1N) >= 0 || s.Cmp(secp256k1N) >= 0 {
		return false
	}
	if lowS && s.Cmp(secp256k1halfN) > 0 {
		return false
	}
	return true
}

// PubkeyToAddress derives the account address from a public key:
// Keccak256(pubkey[1:])[12:].
func PubkeyToAddress(p ecdsa.PublicKey) types.Address {
	pubBytes := FromECDSAPub(&p)
	if pubBytes == nil {
		return types.Address{}
	}
	return types.BytesToAddress(Keccak256(pubBytes[1:])[12:])
}

// FromECDSAPub marshals a public key to 65-byte uncompressed form [0x04 || X || Y].
func FromECDSAPub(pub *ecdsa.PublicKey) []byte {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil
	}
	out := make([]byte, 65)
	out[0] = 0x04
	pub.X.FillBytes(out[1:33])
	pub.Y.FillBytes(out[33:65])
	return out
}
