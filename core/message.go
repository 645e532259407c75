package core

import (
	"math/big"

	"github.com/stratorollup/strato/core/types"
)

// Message represents a transaction prepared for execution. Every
// transaction type is normalized to a call list; a single-call message is
// the legacy path and a multi-call one is a batch.
type Message struct {
	From        types.Address
	Nonce       uint64
	GasLimit    uint64
	GasFeeCap   *big.Int
	GasTipCap   *big.Int
	Calls       []types.Call
	AccessList  types.AccessList
	FeePayerSig []byte // raw sponsor signature, nil when unsponsored
	TxType      uint8
}

// Sponsored reports whether a sponsor signature is attached.
func (m *Message) Sponsored() bool {
	return len(m.FeePayerSig) != 0
}

// TotalValue returns the sum of all call values.
func (m *Message) TotalValue() *big.Int {
	total := new(big.Int)
	for _, call := range m.Calls {
		if call.Value != nil {
			total.Add(total, call.Value)
		}
	}
	return total
}

// TransactionToMessage converts a transaction into a Message for
// execution. If the transaction has a cached sender it is used; otherwise
// From must be set by the caller after signature recovery.
func TransactionToMessage(tx *types.Transaction) Message {
	msg := Message{
		Nonce:       tx.Nonce(),
		GasLimit:    tx.Gas(),
		GasFeeCap:   tx.GasFeeCap(),
		GasTipCap:   tx.GasTipCap(),
		Calls:       tx.Calls(),
		AccessList:  tx.AccessList(),
		FeePayerSig: tx.FeePayerSig(),
		TxType:      tx.Type(),
	}
	if sender := tx.Sender(); sender != nil {
		msg.From = *sender
	}
	return msg
}
