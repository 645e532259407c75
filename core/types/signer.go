package types

import (
	"errors"
	"math/big"

	decredecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"
)

var (
	ErrInvalidSig         = errors.New("invalid transaction signature")
	ErrInvalidChainID     = errors.New("invalid chain ID for signer")
	ErrTxTypeNotSupported = errors.New("transaction type not supported by signer")
	ErrNoSponsor          = errors.New("transaction has no sponsor signature")
)

// secp256k1 curve order, used for signature validation.
var secp256k1N, _ = new(big.Int).SetString(
	"fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141", 16,
)

// Signer provides methods for hashing transactions and recovering the
// addresses that authorized them.
type Signer interface {
	// ChainID returns the chain ID this signer operates on.
	ChainID() uint64

	// Hash returns the executor signing hash for the given transaction.
	Hash(tx *Transaction) Hash

	// SignatureValues parses a 65-byte raw signature [R || S || V] into
	// its component r, s values and a normalized v byte (0 or 1).
	SignatureValues(sig []byte) (r, s *big.Int, v byte, err error)

	// Sender recovers the executor address from the transaction's signature.
	Sender(tx *Transaction) (Address, error)

	// FeePayer recovers the address paying the transaction's gas. For a
	// sponsored batch this is the sponsor recovered from its signature;
	// for everything else it is the executor.
	FeePayer(tx *Transaction) (Address, error)
}

// EIP155Signer implements Signer for legacy EIP-155 replay-protected txs.
type EIP155Signer struct {
	chainID uint64
}

// NewEIP155Signer creates a signer for EIP-155 legacy transactions.
func NewEIP155Signer(chainID uint64) EIP155Signer {
	return EIP155Signer{chainID: chainID}
}

// ChainID returns the chain ID.
func (s EIP155Signer) ChainID() uint64 { return s.chainID }

// Hash returns the signing hash for a legacy transaction.
func (s EIP155Signer) Hash(tx *Transaction) Hash {
	if tx.Type() != LegacyTxType {
		return Hash{}
	}
	return tx.SigningHash()
}

// SignatureValues parses a 65-byte [R||S||V] signature.
func (s EIP155Signer) SignatureValues(sig []byte) (r, s2 *big.Int, v byte, err error) {
	return parseSignatureValues(sig)
}

// Sender recovers the sender address from a legacy transaction's signature.
func (s EIP155Signer) Sender(tx *Transaction) (Address, error) {
	if tx.Type() != LegacyTxType {
		return Address{}, ErrTxTypeNotSupported
	}
	v, r, rs := tx.RawSignatureValues()
	if v == nil || r == nil || rs == nil {
		return Address{}, ErrInvalidSig
	}
	recovery, err := legacyRecoveryID(v, s.chainID)
	if err != nil {
		return Address{}, err
	}
	return RecoverPlain(tx.SigningHash(), r, rs, recovery)
}

// FeePayer returns the sender; legacy transactions cannot be sponsored.
func (s EIP155Signer) FeePayer(tx *Transaction) (Address, error) {
	return s.Sender(tx)
}

// BatchSigner implements Signer for batch transactions and also supports
// legacy and dynamic fee txs. It is the signer used by the pool and the
// execution engine.
type BatchSigner struct {
	chainID uint64
}

// NewBatchSigner creates a signer that supports all tx types.
func NewBatchSigner(chainID uint64) BatchSigner {
	return BatchSigner{chainID: chainID}
}

// ChainID returns the chain ID.
func (s BatchSigner) ChainID() uint64 { return s.chainID }

// Hash returns the executor signing hash for the given transaction.
func (s BatchSigner) Hash(tx *Transaction) Hash {
	return tx.SigningHash()
}

// SignatureValues parses a 65-byte [R||S||V] signature.
func (s BatchSigner) SignatureValues(sig []byte) (r, s2 *big.Int, v byte, err error) {
	return parseSignatureValues(sig)
}

// Sender recovers the executor address from the transaction's signature.
// The executor digest of a batch excludes both signatures, so the result
// is identical whether or not a sponsor signature is attached.
func (s BatchSigner) Sender(tx *Transaction) (Address, error) {
	v, r, rs := tx.RawSignatureValues()
	if r == nil || rs == nil {
		return Address{}, ErrInvalidSig
	}

	var recovery byte
	switch tx.Type() {
	case LegacyTxType:
		if v == nil {
			return Address{}, ErrInvalidSig
		}
		rec, err := legacyRecoveryID(v, s.chainID)
		if err != nil {
			return Address{}, err
		}
		recovery = rec
	case DynamicFeeTxType, BatchTxType:
		if v == nil {
			recovery = 0
		} else {
			recovery = byte(v.Uint64())
		}
		txChainID := tx.ChainId()
		if txChainID != nil && txChainID.Uint64() != s.chainID {
			return Address{}, ErrInvalidChainID
		}
	default:
		return Address{}, ErrTxTypeNotSupported
	}

	if recovery > 1 {
		return Address{}, ErrInvalidSig
	}
	return RecoverPlain(tx.SigningHash(), r, rs, recovery)
}

// FeePayer recovers the gas-paying address. An unsponsored transaction
// pays for itself, so the executor is returned. For a sponsored batch the
// sponsor is recovered from its signature over a digest bound to the
// executor address; the result is never cached on the transaction.
func (s BatchSigner) FeePayer(tx *Transaction) (Address, error) {
	executor, err := s.Sender(tx)
	if err != nil {
		return Address{}, err
	}
	batch, ok := tx.inner.(*BatchTx)
	if !ok || !batch.Sponsored() {
		return executor, nil
	}
	r, s2, v, err := parseSignatureValues(batch.FeePayerSig)
	if err != nil {
		return Address{}, err
	}
	return RecoverPlain(batch.SponsorSigningHash(executor), r, s2, v)
}

// SponsorSender recovers the sponsor of a batch transaction, failing with
// ErrNoSponsor when the batch is unsponsored.
func (s BatchSigner) SponsorSender(tx *Transaction) (Address, error) {
	batch, ok := tx.inner.(*BatchTx)
	if !ok || !batch.Sponsored() {
		return Address{}, ErrNoSponsor
	}
	return s.FeePayer(tx)
}

// LatestSigner returns the most feature-complete signer for the given chain ID.
func LatestSigner(chainID uint64) Signer {
	return NewBatchSigner(chainID)
}

// MakeSigner returns the appropriate signer for a given chain ID and tx type.
func MakeSigner(chainID uint64, txType uint8) Signer {
	switch txType {
	case LegacyTxType:
		return NewEIP155Signer(chainID)
	default:
		return NewBatchSigner(chainID)
	}
}

// SignTx attaches a 65-byte [R||S||V] executor signature to the
// transaction, returning a new signed copy.
func SignTx(tx *Transaction, signer Signer, sig []byte) (*Transaction, error) {
	r, s, v, err := signer.SignatureValues(sig)
	if err != nil {
		return nil, err
	}
	cpy := tx.inner.copy()
	switch t := cpy.(type) {
	case *LegacyTx:
		// EIP-155: V = chainID*2 + 35 + recoveryID
		t.R, t.S = r, s
		t.V = new(big.Int).SetUint64(signer.ChainID()*2 + 35 + uint64(v))
	case *DynamicFeeTx:
		t.R, t.S = r, s
		t.V = new(big.Int).SetUint64(uint64(v))
	case *BatchTx:
		t.R, t.S = r, s
		t.V = new(big.Int).SetUint64(uint64(v))
	default:
		return nil, ErrTxTypeNotSupported
	}
	return &Transaction{inner: cpy}, nil
}

// legacyRecoveryID normalizes a legacy V value to a 0/1 recovery ID.
func legacyRecoveryID(v *big.Int, chainID uint64) (byte, error) {
	vVal := v.Uint64()
	var recovery uint64
	if vVal == 27 || vVal == 28 {
		recovery = vVal - 27
	} else {
		// EIP-155: V = chainID*2 + 35 + recoveryID
		min := chainID*2 + 35
		if vVal < min {
			return 0, ErrInvalidSig
		}
		recovery = vVal - min
	}
	if recovery > 1 {
		return 0, ErrInvalidSig
	}
	return byte(recovery), nil
}

// RecoverPlain recovers the signing address from an ECDSA signature.
// sighash is the 32-byte message hash, r and s are the signature values,
// and v is the recovery ID (0 or 1).
func RecoverPlain(sighash Hash, r, s *big.Int, v byte) (Address, error) {
	if v > 1 {
		return Address{}, ErrInvalidSig
	}
	if r.Sign() <= 0 || s.Sign() <= 0 {
		return Address{}, ErrInvalidSig
	}
	if r.Cmp(secp256k1N) >= 0 || s.Cmp(secp256k1N) >= 0 {
		return Address{}, ErrInvalidSig
	}

	// RecoverCompact wants [V+27 || R || S].
	var compact [65]byte
	compact[0] = v + 27
	r.FillBytes(compact[1:33])
	s.FillBytes(compact[33:65])
	pub, _, err := decredecdsa.RecoverCompact(compact[:], sighash[:])
	if err != nil {
		return Address{}, ErrInvalidSig
	}

	// Address = Keccak256(pub[1:])[12:] where pub is 65-byte uncompressed.
	d := sha3.NewLegacyKeccak256()
	d.Write(pub.SerializeUncompressed()[1:])
	hash := d.Sum(nil)
	return BytesToAddress(hash[12:]), nil
}

// parseSignatureValues validates and parses a 65-byte [R||S||V] signature.
func parseSignatureValues(sig []byte) (*big.Int, *big.Int, byte, error) {
	if len(sig) != 65 {
		return nil, nil, 0, ErrInvalidSig
	}
	r := new(big.Int).SetBytes(sig[0:32])
	s := new(big.Int).SetBytes(sig[32:64])
	v := sig[64]
	if v > 1 {
		return nil, nil, 0, ErrInvalidSig
	}
	if r.Sign() <= 0 || s.Sign() <= 0 {
		return nil, nil, 0, ErrInvalidSig
	}
	if r.Cmp(secp256k1N) >= 0 || s.Cmp(secp256k1N) >= 0 {
		return nil, nil, 0, ErrInvalidSig
	}
	return r, s, v, nil
}
