package core

import (
	"math/big"

	"github.com/holiman/uint256"

	"github.com/stratorollup/strato/core/state"
	"github.com/stratorollup/strato/core/types"
	"github.com/stratorollup/strato/crypto"
)

// CreateDataGas is the gas cost per byte of deployed code.
const CreateDataGas uint64 = 200

// CallContext is the transient single-call context derived for each call
// of a batch. Sender, fees and nonce are shared across the batch; only
// the destination, value and input vary per call.
type CallContext struct {
	Config   *ChainConfig
	Block    *BlockContext
	From     types.Address
	Nonce    uint64 // transaction nonce, used for create address derivation
	GasPrice *big.Int

	// Mint/burn amounts accumulated by this transaction, folded into the
	// block counters only if the whole transaction commits.
	pendingMinted *uint256.Int
	pendingBurned *uint256.Int
}

func newCallContext(config *ChainConfig, block *BlockContext, from types.Address, nonce uint64, gasPrice *big.Int) *CallContext {
	return &CallContext{
		Config:        config,
		Block:         block,
		From:          from,
		Nonce:         nonce,
		GasPrice:      gasPrice,
		pendingMinted: uint256.NewInt(0),
		pendingBurned: uint256.NewInt(0),
	}
}

// CallResult is the outcome of a single call.
type CallResult struct {
	RemainingGas    uint64
	Refund          uint64
	Output          []byte
	Err             error
	ContractAddress types.Address // set for creation calls
}

// CallExecutor executes one call against a mutable state view. It is the
// extension point for plugging in a full VM; the engine only relies on
// the success/failure outcome, remaining gas and refund credit.
type CallExecutor interface {
	ExecuteCall(sdb state.StateDB, ctx *CallContext, call types.Call, gas uint64) CallResult
}

// TransferExecutor is the default CallExecutor: native value transfers,
// contract creation as plain code storage, and the mint/burn facility.
// Calls to accounts carrying code are treated as value transfers since no
// VM is wired in.
type TransferExecutor struct{}

func (TransferExecutor) ExecuteCall(sdb state.StateDB, ctx *CallContext, call types.Call, gas uint64) CallResult {
	if ctx.Config != nil && ctx.Config.MintBurn != nil &&
		call.To != nil && *call.To == ctx.Config.MintBurn.Address {
		return executeMintBurn(sdb, ctx, call, gas)
	}
	if call.To == nil {
		return executeCreate(sdb, ctx, call, gas)
	}
	return executeTransfer(sdb, ctx, call, gas)
}

func executeTransfer(sdb state.StateDB, ctx *CallContext, call types.Call, gas uint64) CallResult {
	value := call.Value
	if value == nil {
		value = new(big.Int)
	}
	if value.Sign() > 0 {
		if sdb.GetBalance(ctx.From).Cmp(value) < 0 {
			return CallResult{Err: ErrValueTransferFailed}
		}
		sdb.SubBalance(ctx.From, value)
		sdb.AddBalance(*call.To, value)
	}
	return CallResult{RemainingGas: gas}
}

func executeCreate(sdb state.StateDB, ctx *CallContext, call types.Call, gas uint64) CallResult {
	codeGas := uint64(len(call.Input)) * CreateDataGas
	if gas < codeGas {
		return CallResult{Err: ErrOutOfGas}
	}
	gas -= codeGas

	addr := crypto.CreateAddress(ctx.From, ctx.Nonce)
	value := call.Value
	if value == nil {
		value = new(big.Int)
	}
	if value.Sign() > 0 && sdb.GetBalance(ctx.From).Cmp(value) < 0 {
		return CallResult{Err: ErrValueTransferFailed}
	}

	sdb.CreateAccount(addr)
	sdb.SetNonce(addr, 1)
	sdb.SetCode(addr, call.Input)
	if value.Sign() > 0 {
		sdb.SubBalance(ctx.From, value)
		sdb.AddBalance(addr, value)
	}
	return CallResult{RemainingGas: gas, ContractAddress: addr, Output: call.Input}
}

var _ CallExecutor = TransferExecutor{}
