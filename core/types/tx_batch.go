package types

import (
	"errors"
	"math/big"

	"golang.org/x/crypto/sha3"

	"github.com/stratorollup/strato/rlp"
)

// SponsorDomainByte prefixes the sponsor signing payload. It differs from
// the transaction type byte so the two digests can never collide.
const SponsorDomainByte = 0x85

// FeePayerSigLength is the length of a raw sponsor signature: R || S || V.
const FeePayerSigLength = 65

var (
	ErrEmptyBatch        = errors.New("batch transaction has no calls")
	ErrMisplacedCreate   = errors.New("contract creation only allowed as first call")
	ErrBadFeePayerSigLen = errors.New("fee payer signature must be 65 bytes")
)

// Call is a single call inside a batch transaction. A nil To denotes
// contract creation, which is only permitted in the first position.
type Call struct {
	To    *Address
	Value *big.Int
	Input []byte
}

// BatchTx represents a batch (type 0x05) transaction: a sequence of calls
// executed atomically under a single nonce, optionally with a sponsor
// paying the gas on behalf of the executor.
type BatchTx struct {
	ChainID    *big.Int
	Nonce      uint64
	GasTipCap  *big.Int // maxPriorityFeePerGas
	GasFeeCap  *big.Int // maxFeePerGas
	Gas        uint64
	Calls      []Call
	AccessList AccessList

	// FeePayerSig is the raw 65-byte sponsor signature, or nil when the
	// executor pays for itself. The sponsor's address is never stored;
	// it is recovered from this signature whenever it is needed.
	FeePayerSig []byte

	V, R, S *big.Int
}

func (tx *BatchTx) txType() byte            { return BatchTxType }
func (tx *BatchTx) chainID() *big.Int       { return tx.ChainID }
func (tx *BatchTx) accessList() AccessList  { return tx.AccessList }
func (tx *BatchTx) gas() uint64             { return tx.Gas }
func (tx *BatchTx) gasPrice() *big.Int      { return tx.GasFeeCap }
func (tx *BatchTx) gasTipCap() *big.Int     { return tx.GasTipCap }
func (tx *BatchTx) gasFeeCap() *big.Int     { return tx.GasFeeCap }
func (tx *BatchTx) nonce() uint64           { return tx.Nonce }

func (tx *BatchTx) data() []byte {
	if len(tx.Calls) == 0 {
		return nil
	}
	return tx.Calls[0].Input
}

func (tx *BatchTx) value() *big.Int {
	if len(tx.Calls) == 0 {
		return new(big.Int)
	}
	return bigOrZero(tx.Calls[0].Value)
}

func (tx *BatchTx) to() *Address {
	if len(tx.Calls) == 0 {
		return nil
	}
	return tx.Calls[0].To
}

func (tx *BatchTx) copy() TxData {
	cpy := &BatchTx{
		Nonce:       tx.Nonce,
		Gas:         tx.Gas,
		FeePayerSig: copyBytes(tx.FeePayerSig),
	}
	if tx.ChainID != nil {
		cpy.ChainID = new(big.Int).Set(tx.ChainID)
	}
	if tx.GasTipCap != nil {
		cpy.GasTipCap = new(big.Int).Set(tx.GasTipCap)
	}
	if tx.GasFeeCap != nil {
		cpy.GasFeeCap = new(big.Int).Set(tx.GasFeeCap)
	}
	if tx.Calls != nil {
		cpy.Calls = make([]Call, len(tx.Calls))
		for i, c := range tx.Calls {
			cpy.Calls[i] = Call{
				To:    copyAddressPtr(c.To),
				Input: copyBytes(c.Input),
			}
			if c.Value != nil {
				cpy.Calls[i].Value = new(big.Int).Set(c.Value)
			}
		}
	}
	if tx.AccessList != nil {
		cpy.AccessList = copyAccessList(tx.AccessList)
	}
	if tx.V != nil {
		cpy.V = new(big.Int).Set(tx.V)
	}
	if tx.R != nil {
		cpy.R = new(big.Int).Set(tx.R)
	}
	if tx.S != nil {
		cpy.S = new(big.Int).Set(tx.S)
	}
	return cpy
}

// Sponsored reports whether the batch carries a sponsor signature.
func (tx *BatchTx) Sponsored() bool {
	return len(tx.FeePayerSig) != 0
}

// ValidateStructure checks the shape constraints that make a batch
// well-formed independently of any signature or state: the call list must
// be non-empty, contract creation may appear only as the first call, and
// the sponsor signature, when present, must be exactly 65 bytes.
func (tx *BatchTx) ValidateStructure() error {
	if len(tx.Calls) == 0 {
		return ErrEmptyBatch
	}
	for i := 1; i < len(tx.Calls); i++ {
		if tx.Calls[i].To == nil {
			return ErrMisplacedCreate
		}
	}
	if tx.FeePayerSig != nil && len(tx.FeePayerSig) != FeePayerSigLength {
		return ErrBadFeePayerSigLen
	}
	return nil
}

// corePayload RLP-encodes the fields both parties sign over:
// [chainID, nonce, gasTipCap, gasFeeCap, gas, calls, accessList].
// Neither signature is part of it, so sponsoring a batch never changes
// the executor's digest and vice versa.
func (tx *BatchTx) corePayload() []byte {
	var payload []byte
	enc := func(v interface{}) {
		b, _ := rlp.EncodeToBytes(v)
		payload = append(payload, b...)
	}
	enc(bigOrZero(tx.ChainID))
	enc(tx.Nonce)
	enc(bigOrZero(tx.GasTipCap))
	enc(bigOrZero(tx.GasFeeCap))
	enc(tx.Gas)
	payload = append(payload, encodeCallsBytes(tx.Calls)...)
	payload = append(payload, encodeAccessListBytes(tx.AccessList)...)
	return payload
}

// SigningHash returns the executor's signing digest:
// Keccak256(0x05 || RLP_list(core fields)).
func (tx *BatchTx) SigningHash() Hash {
	return typedSigningHash(BatchTxType, tx.corePayload())
}

// SponsorSigningHash returns the digest the sponsor signs. It is bound to
// the executor's address, so a sponsor signature cannot be replayed for a
// batch recovered to a different executor:
// Keccak256(0x85 || executor || RLP_list(core fields)).
func (tx *BatchTx) SponsorSigningHash(executor Address) Hash {
	d := sha3.NewLegacyKeccak256()
	d.Write([]byte{SponsorDomainByte})
	d.Write(executor[:])
	d.Write(rlp.WrapList(tx.corePayload()))
	var h Hash
	copy(h[:], d.Sum(nil))
	return h
}

// encodeCallsBytes RLP-encodes the call list as raw bytes. A creation
// call's To encodes as the empty string.
func encodeCallsBytes(calls []Call) []byte {
	var inner []byte
	for _, c := range calls {
		var item []byte
		toEnc, _ := rlp.EncodeToBytes(addressPtrToBytes(c.To))
		valEnc, _ := rlp.EncodeToBytes(bigOrZero(c.Value))
		inEnc, _ := rlp.EncodeToBytes(c.Input)
		item = append(item, toEnc...)
		item = append(item, valEnc...)
		item = append(item, inEnc...)
		inner = append(inner, rlp.WrapList(item)...)
	}
	return rlp.WrapList(inner)
}
