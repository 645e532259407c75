package types

import (
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/crypto/sha3"

	"github.com/stratorollup/strato/rlp"
)

var (
	errUnknownTxType = errors.New("unknown transaction type")
	errShortTypedTx  = errors.New("typed transaction too short")
	errBadCallTo     = errors.New("call recipient must be empty or 20 bytes")
)

// ---- RLP layout structs (field order is consensus critical) ----

// legacyTxRLP is the RLP encoding layout for LegacyTx.
// Fields: [nonce, gasPrice, gasLimit, to, value, data, v, r, s]
type legacyTxRLP struct {
	Nonce    uint64
	GasPrice *big.Int
	Gas      uint64
	To       []byte // empty for contract creation, 20 bytes otherwise
	Value    *big.Int
	Data     []byte
	V        *big.Int
	R        *big.Int
	S        *big.Int
}

// dynamicFeeTxRLP is the RLP encoding layout for DynamicFeeTx (EIP-1559).
// Fields: [chainID, nonce, maxPriorityFeePerGas, maxFeePerGas, gasLimit, to, value, data, accessList, v, r, s]
type dynamicFeeTxRLP struct {
	ChainID    *big.Int
	Nonce      uint64
	GasTipCap  *big.Int
	GasFeeCap  *big.Int
	Gas        uint64
	To         []byte
	Value      *big.Int
	Data       []byte
	AccessList []accessTupleRLP
	V          *big.Int
	R          *big.Int
	S          *big.Int
}

// batchTxRLP is the RLP encoding layout for BatchTx.
// Fields: [chainID, nonce, maxPriorityFeePerGas, maxFeePerGas, gasLimit,
// calls, accessList, feePayerSig, v, r, s]. An absent sponsor signature
// encodes as the empty string; the slot is never omitted.
type batchTxRLP struct {
	ChainID     *big.Int
	Nonce       uint64
	GasTipCap   *big.Int
	GasFeeCap   *big.Int
	Gas         uint64
	Calls       []callRLP
	AccessList  []accessTupleRLP
	FeePayerSig []byte
	V           *big.Int
	R           *big.Int
	S           *big.Int
}

// callRLP is the RLP encoding layout for a single batch call.
// Fields: [to, value, input]
type callRLP struct {
	To    []byte
	Value *big.Int
	Input []byte
}

type accessTupleRLP struct {
	Address     Address
	StorageKeys []Hash
}

// ---- Encoding ----

// EncodeRLP returns the wire encoding of the transaction.
// For legacy txs: RLP([nonce, gasPrice, ...])
// For typed txs: type_byte || RLP([chainID, nonce, ...])
func (tx *Transaction) EncodeRLP() ([]byte, error) {
	switch inner := tx.inner.(type) {
	case *LegacyTx:
		enc := legacyTxRLP{
			Nonce:    inner.Nonce,
			GasPrice: bigOrZero(inner.GasPrice),
			Gas:      inner.Gas,
			To:       addressPtrToBytes(inner.To),
			Value:    bigOrZero(inner.Value),
			Data:     inner.Data,
			V:        bigOrZero(inner.V),
			R:        bigOrZero(inner.R),
			S:        bigOrZero(inner.S),
		}
		return rlp.EncodeToBytes(enc)
	case *DynamicFeeTx:
		enc := dynamicFeeTxRLP{
			ChainID:    bigOrZero(inner.ChainID),
			Nonce:      inner.Nonce,
			GasTipCap:  bigOrZero(inner.GasTipCap),
			GasFeeCap:  bigOrZero(inner.GasFeeCap),
			Gas:        inner.Gas,
			To:         addressPtrToBytes(inner.To),
			Value:      bigOrZero(inner.Value),
			Data:       inner.Data,
			AccessList: encodeAccessList(inner.AccessList),
			V:          bigOrZero(inner.V),
			R:          bigOrZero(inner.R),
			S:          bigOrZero(inner.S),
		}
		payload, err := rlp.EncodeToBytes(enc)
		if err != nil {
			return nil, err
		}
		return append([]byte{DynamicFeeTxType}, payload...), nil
	case *BatchTx:
		enc := batchTxRLP{
			ChainID:     bigOrZero(inner.ChainID),
			Nonce:       inner.Nonce,
			GasTipCap:   bigOrZero(inner.GasTipCap),
			GasFeeCap:   bigOrZero(inner.GasFeeCap),
			Gas:         inner.Gas,
			Calls:       encodeCalls(inner.Calls),
			AccessList:  encodeAccessList(inner.AccessList),
			FeePayerSig: inner.FeePayerSig,
			V:           bigOrZero(inner.V),
			R:           bigOrZero(inner.R),
			S:           bigOrZero(inner.S),
		}
		payload, err := rlp.EncodeToBytes(enc)
		if err != nil {
			return nil, err
		}
		return append([]byte{BatchTxType}, payload...), nil
	default:
		return nil, errUnknownTxType
	}
}

// ---- Decoding ----

// DecodeTransaction decodes a transaction from its wire encoding. The
// entire input must be consumed; trailing bytes are an error.
func DecodeTransaction(data []byte) (*Transaction, error) {
	if len(data) == 0 {
		return nil, errShortTypedTx
	}
	// A first byte >= 0xc0 is an RLP list header, so a legacy tx.
	if data[0] >= 0xc0 {
		return decodeLegacyTx(data)
	}
	return decodeTypedTx(data[0], data[1:])
}

func decodeLegacyTx(data []byte) (*Transaction, error) {
	var dec legacyTxRLP
	if err := rlp.DecodeBytes(data, &dec); err != nil {
		return nil, fmt.Errorf("decode legacy tx: %w", err)
	}
	to, err := bytesToAddressPtr(dec.To)
	if err != nil {
		return nil, fmt.Errorf("decode legacy tx: %w", err)
	}
	inner := &LegacyTx{
		Nonce:    dec.Nonce,
		GasPrice: dec.GasPrice,
		Gas:      dec.Gas,
		To:       to,
		Value:    dec.Value,
		Data:     dec.Data,
		V:        dec.V,
		R:        dec.R,
		S:        dec.S,
	}
	return NewTransaction(inner), nil
}

func decodeTypedTx(txType byte, payload []byte) (*Transaction, error) {
	if len(payload) == 0 {
		return nil, errShortTypedTx
	}
	switch txType {
	case DynamicFeeTxType:
		return decodeDynamicFeeTx(payload)
	case BatchTxType:
		return decodeBatchTx(payload)
	default:
		return nil, fmt.Errorf("%w: 0x%02x", errUnknownTxType, txType)
	}
}

func decodeDynamicFeeTx(data []byte) (*Transaction, error) {
	var dec dynamicFeeTxRLP
	if err := rlp.DecodeBytes(data, &dec); err != nil {
		return nil, fmt.Errorf("decode dynamic fee tx: %w", err)
	}
	to, err := bytesToAddressPtr(dec.To)
	if err != nil {
		return nil, fmt.Errorf("decode dynamic fee tx: %w", err)
	}
	inner := &DynamicFeeTx{
		ChainID:    dec.ChainID,
		Nonce:      dec.Nonce,
		GasTipCap:  dec.GasTipCap,
		GasFeeCap:  dec.GasFeeCap,
		Gas:        dec.Gas,
		To:         to,
		Value:      dec.Value,
		Data:       dec.Data,
		AccessList: decodeAccessList(dec.AccessList),
		V:          dec.V,
		R:          dec.R,
		S:          dec.S,
	}
	return NewTransaction(inner), nil
}

func decodeBatchTx(data []byte) (*Transaction, error) {
	var dec batchTxRLP
	if err := rlp.DecodeBytes(data, &dec); err != nil {
		return nil, fmt.Errorf("decode batch tx: %w", err)
	}
	calls, err := decodeCalls(dec.Calls)
	if err != nil {
		return nil, fmt.Errorf("decode batch tx: %w", err)
	}
	// Normalize the empty-string sentinel back to nil.
	feePayerSig := dec.FeePayerSig
	if len(feePayerSig) == 0 {
		feePayerSig = nil
	} else if len(feePayerSig) != FeePayerSigLength {
		return nil, fmt.Errorf("decode batch tx: %w", ErrBadFeePayerSigLen)
	}
	inner := &BatchTx{
		ChainID:     dec.ChainID,
		Nonce:       dec.Nonce,
		GasTipCap:   dec.GasTipCap,
		GasFeeCap:   dec.GasFeeCap,
		Gas:         dec.Gas,
		Calls:       calls,
		AccessList:  decodeAccessList(dec.AccessList),
		FeePayerSig: feePayerSig,
		V:           dec.V,
		R:           dec.R,
		S:           dec.S,
	}
	if err := inner.ValidateStructure(); err != nil {
		return nil, fmt.Errorf("decode batch tx: %w", err)
	}
	return NewTransaction(inner), nil
}

// ---- Call / access list helpers ----

func encodeCalls(calls []Call) []callRLP {
	out := make([]callRLP, len(calls))
	for i, c := range calls {
		out[i] = callRLP{
			To:    addressPtrToBytes(c.To),
			Value: bigOrZero(c.Value),
			Input: c.Input,
		}
	}
	return out
}

func decodeCalls(calls []callRLP) ([]Call, error) {
	out := make([]Call, len(calls))
	for i, c := range calls {
		to, err := bytesToAddressPtr(c.To)
		if err != nil {
			return nil, err
		}
		out[i] = Call{
			To:    to,
			Value: c.Value,
			Input: c.Input,
		}
	}
	return out, nil
}

func encodeAccessList(al AccessList) []accessTupleRLP {
	if al == nil {
		return nil
	}
	out := make([]accessTupleRLP, len(al))
	for i, t := range al {
		out[i] = accessTupleRLP{
			Address:     t.Address,
			StorageKeys: t.StorageKeys,
		}
	}
	return out
}

func decodeAccessList(al []accessTupleRLP) AccessList {
	if al == nil {
		return nil
	}
	out := make(AccessList, len(al))
	for i, t := range al {
		out[i] = AccessTuple{
			Address:     t.Address,
			StorageKeys: t.StorageKeys,
		}
	}
	return out
}

// ---- Address encoding helpers ----

func addressPtrToBytes(a *Address) []byte {
	if a == nil {
		return nil
	}
	return a[:]
}

// bytesToAddressPtr converts a decoded recipient field to an address
// pointer. Only the empty string (creation) or exactly 20 bytes are valid.
func bytesToAddressPtr(b []byte) (*Address, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b) != AddressLength {
		return nil, errBadCallTo
	}
	a := BytesToAddress(b)
	return &a, nil
}

// bigOrZero returns i if non-nil, otherwise a zero big.Int.
func bigOrZero(i *big.Int) *big.Int {
	if i != nil {
		return i
	}
	return new(big.Int)
}

// ---- Hashing ----

// hashRLP computes Keccak-256 of the transaction's wire encoding.
func (tx *Transaction) hashRLP() Hash {
	enc, err := tx.EncodeRLP()
	if err != nil {
		return Hash{}
	}
	d := sha3.NewLegacyKeccak256()
	d.Write(enc)
	var h Hash
	copy(h[:], d.Sum(nil))
	return h
}

// SigningHash returns the hash the executor signed.
// For legacy (pre-EIP-155): Keccak256(RLP([nonce, gasPrice, gas, to, value, data]))
// For EIP-155 legacy: the same list extended with [chainID, 0, 0]
// For typed transactions: Keccak256(type || RLP([fields without signatures]))
func (tx *Transaction) SigningHash() Hash {
	switch t := tx.inner.(type) {
	case *LegacyTx:
		return signingHashLegacy(t)
	case *DynamicFeeTx:
		return signingHashDynamicFee(t)
	case *BatchTx:
		return t.SigningHash()
	default:
		return Hash{}
	}
}

func signingHashLegacy(tx *LegacyTx) Hash {
	chainID := deriveChainID(tx.V)
	toBytes := make([]byte, 0)
	if tx.To != nil {
		toBytes = tx.To[:]
	}

	payload := encodeUnsignedFields(
		tx.Nonce, bigOrZero(tx.GasPrice), tx.Gas, toBytes, bigOrZero(tx.Value), tx.Data,
	)
	if chainID != nil && chainID.Sign() > 0 {
		payload = append(payload, encodeUnsignedFields(chainID, uint(0), uint(0))...)
	}

	d := sha3.NewLegacyKeccak256()
	d.Write(rlp.WrapList(payload))
	var h Hash
	copy(h[:], d.Sum(nil))
	return h
}

func signingHashDynamicFee(tx *DynamicFeeTx) Hash {
	toBytes := make([]byte, 0)
	if tx.To != nil {
		toBytes = tx.To[:]
	}
	payload := encodeUnsignedFields(
		bigOrZero(tx.ChainID), tx.Nonce, bigOrZero(tx.GasTipCap), bigOrZero(tx.GasFeeCap),
		tx.Gas, toBytes, bigOrZero(tx.Value), tx.Data,
	)
	payload = append(payload, encodeAccessListBytes(tx.AccessList)...)
	return typedSigningHash(DynamicFeeTxType, payload)
}

// encodeUnsignedFields RLP-encodes a sequence of values and concatenates them.
func encodeUnsignedFields(vals ...interface{}) []byte {
	var payload []byte
	for _, v := range vals {
		b, _ := rlp.EncodeToBytes(v)
		payload = append(payload, b...)
	}
	return payload
}

// typedSigningHash computes Keccak256(type || RLP_list(payload)).
func typedSigningHash(txType byte, payload []byte) Hash {
	d := sha3.NewLegacyKeccak256()
	d.Write([]byte{txType})
	d.Write(rlp.WrapList(payload))
	var h Hash
	copy(h[:], d.Sum(nil))
	return h
}

// encodeAccessListBytes RLP-encodes an access list as raw bytes.
func encodeAccessListBytes(list AccessList) []byte {
	var inner []byte
	for _, tuple := range list {
		keysPayload := encodeHashList(tuple.StorageKeys)
		addrEnc, _ := rlp.EncodeToBytes(tuple.Address[:])
		item := append(addrEnc, keysPayload...)
		inner = append(inner, rlp.WrapList(item)...)
	}
	return rlp.WrapList(inner)
}

// encodeHashList RLP-encodes a list of hashes.
func encodeHashList(hashes []Hash) []byte {
	var inner []byte
	for _, h := range hashes {
		encoded, _ := rlp.EncodeToBytes(h[:])
		inner = append(inner, encoded...)
	}
	return rlp.WrapList(inner)
}
