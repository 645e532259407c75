package core

import "github.com/stratorollup/strato/core/types"

// ExecutionResult holds the outcome of a transaction execution. For a
// multi-call batch the return data is the last call's output on success,
// or the failing call's revert data.
type ExecutionResult struct {
	UsedGas         uint64
	Err             error
	ReturnData      []byte
	ContractAddress types.Address // set when the first call is a creation

	// FailedCallIndex is the position of the call that aborted the
	// batch, valid only when Err is non-nil.
	FailedCallIndex int
}

// Unwrap returns the execution error, if any.
func (r *ExecutionResult) Unwrap() error {
	return r.Err
}

// Failed returns whether the execution resulted in an error.
func (r *ExecutionResult) Failed() bool {
	return r.Err != nil
}

// Return returns the return data from a successful execution.
func (r *ExecutionResult) Return() []byte {
	if r.Failed() {
		return nil
	}
	return r.ReturnData
}

// Revert returns the return data from a reverted execution.
func (r *ExecutionResult) Revert() []byte {
	if r.Failed() {
		return r.ReturnData
	}
	return nil
}
