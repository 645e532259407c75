// state_transition.go implements the execution-layer state machine for a
// single transaction: gas validation, fee deduction (executor or
// sponsor), the atomic batch execution loop, and fee finalization with
// the optional base-fee redirect.
package core

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/stratorollup/strato/core/state"
	"github.com/stratorollup/strato/core/types"
	"github.com/stratorollup/strato/log"
)

// ErrFeeCapTooLow means the fee cap does not cover the block base fee.
var ErrFeeCapTooLow = errors.New("max fee per gas below block base fee")

// StateProcessor applies transactions sequentially against a state view.
type StateProcessor struct {
	config   *ChainConfig
	signer   types.Signer
	executor CallExecutor
	log      *log.Logger
}

// NewStateProcessor creates a state processor using the default transfer
// executor.
func NewStateProcessor(config *ChainConfig) *StateProcessor {
	return NewStateProcessorWithExecutor(config, TransferExecutor{})
}

// NewStateProcessorWithExecutor creates a state processor with a custom
// call executor, the hook for wiring in a full VM.
func NewStateProcessorWithExecutor(config *ChainConfig, executor CallExecutor) *StateProcessor {
	return &StateProcessor{
		config:   config,
		signer:   types.LatestSigner(config.ChainIDUint64()),
		executor: executor,
		log:      log.Default().Module("executor"),
	}
}

// Process applies every transaction in order against the state. A
// transaction rejected pre-mutation is skipped and execution continues
// with the next one; call-level failures still produce a receipt. The
// returned transaction slice holds what was actually included, aligned
// with the receipts.
func (p *StateProcessor) Process(block *BlockContext, statedb state.StateDB, txs []*types.Transaction) ([]*types.Receipt, []*types.Transaction, error) {
	gasPool := NewGasPool(block.GasLimit)

	var (
		receipts          []*types.Receipt
		included          []*types.Transaction
		cumulativeGasUsed uint64
	)
	for _, tx := range txs {
		receipt, gasUsed, err := p.ApplyTransaction(block, statedb, tx, gasPool)
		if err != nil {
			if errors.Is(err, ErrGasLimitReached) {
				// The block is full; nothing later can fit either.
				break
			}
			p.log.Warn("skipping invalid transaction", "tx", tx.Hash().Hex(), "err", err)
			continue
		}
		cumulativeGasUsed += gasUsed
		receipt.CumulativeGasUsed = cumulativeGasUsed
		receipts = append(receipts, receipt)
		included = append(included, tx)
	}
	types.DeriveReceiptFields(receipts, block.Number, included)
	return receipts, included, nil
}

// ApplyTransaction applies one transaction to the state and returns its
// receipt and gas used. Pre-mutation rejections come back as errors with
// the state untouched; a call-level failure returns a failure receipt
// with the transaction's full gas consumed.
func (p *StateProcessor) ApplyTransaction(block *BlockContext, statedb state.StateDB, tx *types.Transaction, gp *GasPool) (*types.Receipt, uint64, error) {
	// Decode and admission already enforce the shape constraints, but a
	// block builder can hand us an in-process transaction that never
	// passed through either.
	if err := tx.ValidateStructure(); err != nil {
		return nil, 0, err
	}

	from, err := p.sender(tx)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrAuthorizationInvalid, err)
	}

	msg := TransactionToMessage(tx)
	msg.From = from

	// The sponsor is recovered fresh on every application; it is never
	// stored on the transaction.
	feePayer := from
	if msg.Sponsored() {
		payer, err := p.signer.FeePayer(tx)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: sponsor recovery: %v", ErrAuthorizationInvalid, err)
		}
		feePayer = payer
	}

	result, err := p.applyMessage(block, statedb, &msg, feePayer, gp)
	if err != nil {
		return nil, 0, err
	}

	var status uint64
	if result.Failed() {
		status = types.ReceiptStatusFailed
	} else {
		status = types.ReceiptStatusSuccessful
	}
	receipt := types.NewReceipt(status, result.UsedGas)
	receipt.Type = tx.Type()
	receipt.TxHash = tx.Hash()
	receipt.GasUsed = result.UsedGas
	receipt.ContractAddress = result.ContractAddress
	receipt.EffectiveGasPrice = effectiveGasPrice(&msg, block.BaseFee)
	receipt.Logs = statedb.GetLogs(tx.Hash())
	return receipt, result.UsedGas, nil
}

func (p *StateProcessor) sender(tx *types.Transaction) (types.Address, error) {
	if cached := tx.Sender(); cached != nil {
		return *cached, nil
	}
	from, err := p.signer.Sender(tx)
	if err != nil {
		return types.Address{}, err
	}
	tx.SetSender(from)
	return from, nil
}

// applyMessage runs the per-transaction state machine: gas validation,
// balance checks and deduction, the call loop, and finalization.
func (p *StateProcessor) applyMessage(block *BlockContext, statedb state.StateDB, msg *Message, feePayer types.Address, gp *GasPool) (*ExecutionResult, error) {
	if err := gp.SubGas(msg.GasLimit); err != nil {
		return nil, err
	}
	// Restores the pool on any pre-mutation rejection below.
	reject := func(err error) (*ExecutionResult, error) {
		gp.AddGas(msg.GasLimit)
		return nil, err
	}

	// Nonce must match exactly; it increments once per transaction
	// regardless of call count.
	stateNonce := statedb.GetNonce(msg.From)
	if msg.Nonce < stateNonce {
		return reject(fmt.Errorf("%w: address %s, tx nonce %d, state nonce %d",
			ErrNonceTooLow, msg.From, msg.Nonce, stateNonce))
	}
	if msg.Nonce > stateNonce {
		return reject(fmt.Errorf("%w: address %s, tx nonce %d, state nonce %d",
			ErrNonceTooHigh, msg.From, msg.Nonce, stateNonce))
	}

	// Combined intrinsic gas across all calls.
	igas, overflow := IntrinsicGas(msg.Calls, msg.AccessList, 0)
	if overflow || igas > msg.GasLimit {
		return reject(fmt.Errorf("%w: have %d, want %d", ErrIntrinsicGasTooLow, msg.GasLimit, igas))
	}

	// Calldata floor gas, enforced only on the single-call path.
	var floor uint64
	if len(msg.Calls) == 1 {
		floor = FloorGas(msg.Calls[0].Input)
		if floor > msg.GasLimit {
			return reject(fmt.Errorf("%w: have %d, want %d", ErrFloorGasTooLow, msg.GasLimit, floor))
		}
	}

	feeCap := msg.GasFeeCap
	if feeCap == nil {
		feeCap = new(big.Int)
	}
	if block.BaseFee != nil && block.BaseFee.Sign() > 0 && feeCap.Cmp(block.BaseFee) < 0 {
		return reject(fmt.Errorf("%w: fee cap %s, base fee %s", ErrFeeCapTooLow, feeCap, block.BaseFee))
	}
	gasPrice := effectiveGasPrice(msg, block.BaseFee)

	// Balance checks and up-front deduction. Requirements use the fee
	// cap (worst case); the actual deduction uses the effective price.
	maxGasCost := new(big.Int).Mul(feeCap, new(big.Int).SetUint64(msg.GasLimit))
	deductGas := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(msg.GasLimit))
	totalValue := msg.TotalValue()

	if msg.Sponsored() {
		// Both parties are checked before either balance is touched, so
		// a failure on one side leaves the other unchanged.
		if statedb.GetBalance(feePayer).Cmp(maxGasCost) < 0 {
			return reject(fmt.Errorf("%w: sponsor %s have %s want %s",
				ErrSponsorInsufficientFunds, feePayer, statedb.GetBalance(feePayer), maxGasCost))
		}
		if statedb.GetBalance(msg.From).Cmp(totalValue) < 0 {
			return reject(fmt.Errorf("%w: address %s have %s want %s",
				ErrInsufficientFunds, msg.From, statedb.GetBalance(msg.From), totalValue))
		}
		statedb.SubBalance(feePayer, deductGas)
	} else {
		need := new(big.Int).Add(maxGasCost, totalValue)
		if statedb.GetBalance(msg.From).Cmp(need) < 0 {
			return reject(fmt.Errorf("%w: address %s have %s want %s",
				ErrInsufficientFunds, msg.From, statedb.GetBalance(msg.From), need))
		}
		statedb.SubBalance(msg.From, deductGas)
	}

	statedb.SetNonce(msg.From, msg.Nonce+1)

	// The batch executes against a rollback checkpoint: any call failure
	// restores the pre-loop state in full.
	snapshot := statedb.Snapshot()
	callCtx := newCallContext(p.config, block, msg.From, msg.Nonce, gasPrice)

	var (
		gasLeft     = msg.GasLimit - igas
		totalRefund uint64
		last        CallResult
		result      = &ExecutionResult{}
	)
	for i, call := range msg.Calls {
		last = p.executor.ExecuteCall(statedb, callCtx, call, gasLeft)
		if last.Err != nil {
			statedb.RevertToSnapshot(snapshot)
			result.Err = last.Err
			result.ReturnData = last.Output
			result.FailedCallIndex = i
			break
		}
		// Gas left after call i is call i+1's budget.
		gasLeft = last.RemainingGas
		totalRefund += last.Refund
		if i == 0 {
			result.ContractAddress = last.ContractAddress
		}
	}

	var gasUsed uint64
	if result.Failed() {
		// A failed batch consumes its entire gas limit; no partial
		// refund for the aborted remainder.
		gasUsed = msg.GasLimit
	} else {
		gasUsed = msg.GasLimit - gasLeft
		refund := totalRefund
		if maxRefund := gasUsed / RefundQuotient; refund > maxRefund {
			refund = maxRefund
		}
		gasUsed -= refund
		if len(msg.Calls) == 1 && gasUsed < floor {
			gasUsed = floor
		}
		result.ReturnData = last.Output
		// Per-block mint/burn totals only advance when the transaction
		// commits.
		block.commitMintBurn(callCtx.pendingMinted, callCtx.pendingBurned)
	}
	result.UsedGas = gasUsed

	// Return unused gas to the payer and the pool.
	remaining := msg.GasLimit - gasUsed
	if remaining > 0 {
		statedb.AddBalance(feePayer, new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(remaining)))
	}
	gp.AddGas(remaining)

	p.finalizeFees(block, statedb, gasPrice, gasUsed)
	return result, nil
}

// finalizeFees credits the priority fee to the beneficiary and handles
// the base-fee portion: redirected to the configured sink when the
// policy is active at this height, destroyed otherwise.
func (p *StateProcessor) finalizeFees(block *BlockContext, statedb state.StateDB, gasPrice *big.Int, gasUsed uint64) {
	if gasUsed == 0 {
		return
	}
	gasUsedBig := new(big.Int).SetUint64(gasUsed)

	baseFee := block.BaseFee
	if baseFee == nil {
		baseFee = new(big.Int)
	}
	tip := new(big.Int).Sub(gasPrice, baseFee)
	if tip.Sign() > 0 {
		statedb.AddBalance(block.Coinbase, new(big.Int).Mul(tip, gasUsedBig))
	}

	if p.config.IsFeeRedirect(block.Number) && baseFee.Sign() > 0 {
		redirect := new(big.Int).Mul(baseFee, gasUsedBig)
		statedb.AddBalance(p.config.FeeRedirect.Sink, redirect)
	}
}

// effectiveGasPrice computes the gas price actually paid:
// min(feeCap, baseFee + tipCap), or the fee cap when no base fee is set.
func effectiveGasPrice(msg *Message, baseFee *big.Int) *big.Int {
	feeCap := msg.GasFeeCap
	if feeCap == nil {
		feeCap = new(big.Int)
	}
	if baseFee == nil || baseFee.Sign() <= 0 {
		return new(big.Int).Set(feeCap)
	}
	tip := msg.GasTipCap
	if tip == nil {
		tip = new(big.Int)
	}
	effective := new(big.Int).Add(baseFee, tip)
	if effective.Cmp(feeCap) > 0 {
		effective.Set(feeCap)
	}
	return effective
}
