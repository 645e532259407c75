package core

import "github.com/stratorollup/strato/core/types"

const (
	// TxGas is the base gas cost of a transaction, charged once even for
	// a multi-call batch.
	TxGas uint64 = 21000
	// TxDataZeroGas is the gas cost per zero byte of call input.
	TxDataZeroGas uint64 = 4
	// TxDataNonZeroGas is the gas cost per non-zero byte of call input.
	TxDataNonZeroGas uint64 = 16
	// TxCreateGas is the extra gas for a contract creation call.
	TxCreateGas uint64 = 32000

	// AccessListAddressGas is the gas cost per access list address.
	AccessListAddressGas uint64 = 2400
	// AccessListStorageKeyGas is the gas cost per access list storage key.
	AccessListStorageKeyGas uint64 = 1900

	// PerAuthBaseCost is the gas cost per authorization entry when an
	// authorization-list mechanism is active.
	PerAuthBaseCost uint64 = 12500

	// TotalCostFloorPerToken is the per-token cost of the calldata floor.
	TotalCostFloorPerToken uint64 = 10

	// RefundQuotient caps the refund at gasUsed / RefundQuotient.
	RefundQuotient uint64 = 5
)

// IntrinsicGas computes the combined intrinsic gas of a call list: the
// base cost once, per-call calldata costs, the creation surcharge for a
// leading creation call, access list costs, and per-authorization costs.
// The bool result reports overflow; overflowing transactions can never
// fit a block and are treated as intrinsic gas too low by callers.
func IntrinsicGas(calls []types.Call, accessList types.AccessList, numAuths int) (uint64, bool) {
	gas := TxGas
	for i, call := range calls {
		if call.To == nil && i == 0 {
			gas += TxCreateGas
		}
		dataGas, overflow := callDataGas(call.Input)
		if overflow {
			return 0, true
		}
		if gas+dataGas < gas {
			return 0, true
		}
		gas += dataGas
	}
	for _, tuple := range accessList {
		gas += AccessListAddressGas
		gas += uint64(len(tuple.StorageKeys)) * AccessListStorageKeyGas
	}
	gas += uint64(numAuths) * PerAuthBaseCost
	return gas, false
}

func callDataGas(data []byte) (uint64, bool) {
	var gas uint64
	for _, b := range data {
		if b == 0 {
			gas += TxDataZeroGas
		} else {
			gas += TxDataNonZeroGas
		}
		if gas > 1<<62 {
			return 0, true
		}
	}
	return gas, false
}

// FloorGas computes the calldata floor gas of a single call:
// tokens = zero_bytes + 4 * nonzero_bytes, floor = TxGas + 10 * tokens.
// The floor is only enforced for single-call transactions; multi-call
// batches bypass it entirely.
func FloorGas(data []byte) uint64 {
	return TxGas + calldataTokens(data)*TotalCostFloorPerToken
}

func calldataTokens(data []byte) uint64 {
	var tokens uint64
	for _, b := range data {
		if b == 0 {
			tokens++
		} else {
			tokens += 4
		}
	}
	return tokens
}
