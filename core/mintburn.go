package core

import (
	"math/big"

	"github.com/holiman/uint256"

	"github.com/stratorollup/strato/core/state"
	"github.com/stratorollup/strato/core/types"
)

// Mint/burn operation selectors, the first byte of the call input.
const (
	MintBurnOpMint = 0x01
	MintBurnOpBurn = 0x02
)

// mintBurnGas is the flat gas cost of a mint or burn call.
const mintBurnGas uint64 = 3000

// Mint input layout: 0x01 || target (20 bytes) || amount (32 bytes).
// Burn input layout: 0x02 || amount (32 bytes); burn always debits the caller.
const (
	mintInputLen = 1 + types.AddressLength + 32
	burnInputLen = 1 + 32
)

// executeMintBurn handles a call to the mint/burn facility address.
// Failures revert only this call; within a batch the normal atomicity
// rules then roll the whole transaction back, but the transaction itself
// stays includable with a failure receipt.
func executeMintBurn(sdb state.StateDB, ctx *CallContext, call types.Call, gas uint64) CallResult {
	cfg := ctx.Config.MintBurn
	if !ctx.Config.IsMintBurn(ctx.Block.Number) {
		return CallResult{Err: ErrMintInactive}
	}
	if gas < mintBurnGas {
		return CallResult{Err: ErrOutOfGas}
	}
	gas -= mintBurnGas

	if call.Value != nil && call.Value.Sign() > 0 {
		return CallResult{Err: ErrMintBadInput}
	}
	if !cfg.Admins.Contains(ctx.From) {
		return CallResult{Err: ErrMintUnauthorized}
	}
	if len(call.Input) == 0 {
		return CallResult{Err: ErrMintBadInput}
	}

	switch call.Input[0] {
	case MintBurnOpMint:
		if len(call.Input) != mintInputLen {
			return CallResult{Err: ErrMintBadInput}
		}
		target := types.BytesToAddress(call.Input[1 : 1+types.AddressLength])
		amount := new(uint256.Int).SetBytes(call.Input[1+types.AddressLength:])
		if err := checkMintBurnCaps(cfg, amount, ctx.Block.MintedTotal(), ctx.pendingMinted); err != nil {
			return CallResult{Err: err}
		}
		sdb.AddBalance(target, amount.ToBig())
		ctx.pendingMinted.Add(ctx.pendingMinted, amount)
		return CallResult{RemainingGas: gas}

	case MintBurnOpBurn:
		if len(call.Input) != burnInputLen {
			return CallResult{Err: ErrMintBadInput}
		}
		amount := new(uint256.Int).SetBytes(call.Input[1:])
		if err := checkMintBurnCaps(cfg, amount, ctx.Block.BurnedTotal(), ctx.pendingBurned); err != nil {
			return CallResult{Err: err}
		}
		if sdb.GetBalance(ctx.From).Cmp(amount.ToBig()) < 0 {
			return CallResult{Err: ErrBurnBalance}
		}
		sdb.SubBalance(ctx.From, amount.ToBig())
		ctx.pendingBurned.Add(ctx.pendingBurned, amount)
		return CallResult{RemainingGas: gas}

	default:
		return CallResult{Err: ErrMintBadInput}
	}
}

// checkMintBurnCaps enforces the per-call cap and the remaining per-block
// headroom, counting amounts already pending in the current transaction.
func checkMintBurnCaps(cfg *MintBurnConfig, amount, blockTotal, pending *uint256.Int) error {
	if cfg.PerCallCap != nil && amount.Gt(cfg.PerCallCap) {
		return ErrMintCallCap
	}
	if cfg.PerBlockCap != nil {
		used := new(uint256.Int).Add(blockTotal, pending)
		next, overflow := new(uint256.Int).AddOverflow(used, amount)
		if overflow || next.Gt(cfg.PerBlockCap) {
			return ErrMintBlockCap
		}
	}
	return nil
}

// MintInput builds the call input for a mint of amount to target.
func MintInput(target types.Address, amount *big.Int) []byte {
	input := make([]byte, mintInputLen)
	input[0] = MintBurnOpMint
	copy(input[1:], target[:])
	amt, _ := uint256.FromBig(amount)
	amtBytes := amt.Bytes32()
	copy(input[1+types.AddressLength:], amtBytes[:])
	return input
}

// BurnInput builds the call input for a burn of amount from the caller.
func BurnInput(amount *big.Int) []byte {
	input := make([]byte, burnInputLen)
	input[0] = MintBurnOpBurn
	amt, _ := uint256.FromBig(amount)
	amtBytes := amt.Bytes32()
	copy(input[1:], amtBytes[:])
	return input
}
