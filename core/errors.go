package core

import "errors"

// Pre-mutation rejection errors. Transactions failing with one of these
// never touch the state: the pool refuses the submission, or the block
// builder skips the transaction and moves on.
var (
	ErrNonceTooLow  = errors.New("nonce too low")
	ErrNonceTooHigh = errors.New("nonce too high")

	// ErrInsufficientFunds means the executor cannot cover its share of
	// the transaction cost.
	ErrInsufficientFunds = errors.New("insufficient funds for gas * price + value")

	// ErrSponsorInsufficientFunds means the sponsor cannot cover the gas
	// portion of a sponsored transaction. Kept distinct from the
	// executor-side shortfall so callers can tell the two apart.
	ErrSponsorInsufficientFunds = errors.New("sponsor has insufficient funds for gas")

	// ErrAuthorizationInvalid means a signature (executor or sponsor)
	// failed to verify.
	ErrAuthorizationInvalid = errors.New("signature authorization invalid")

	// ErrIntrinsicGasTooLow means the gas limit does not cover the
	// combined intrinsic gas of the transaction.
	ErrIntrinsicGasTooLow = errors.New("intrinsic gas too low")

	// ErrFloorGasTooLow means the gas limit does not cover the calldata
	// floor gas of a single-call transaction.
	ErrFloorGasTooLow = errors.New("gas limit below calldata floor gas")

	// ErrGasLimitReached means the block gas pool cannot cover the
	// transaction's gas limit. GasPool.SubGas wraps it with the
	// remaining and requested amounts.
	ErrGasLimitReached = errors.New("gas limit reached")
)

// Call-level failures. These abort and roll back the transaction's
// execution but are not rejections: the transaction is still included
// with a failure receipt and its gas consumed.
var (
	ErrValueTransferFailed = errors.New("insufficient balance for value transfer")
	ErrOutOfGas            = errors.New("out of gas")

	ErrMintUnauthorized = errors.New("mint/burn caller not allow-listed")
	ErrMintCallCap      = errors.New("amount exceeds per-call mint/burn cap")
	ErrMintBlockCap     = errors.New("amount exceeds remaining per-block mint/burn cap")
	ErrMintBadInput     = errors.New("malformed mint/burn input")
	ErrMintInactive     = errors.New("mint/burn not active at this height")
	ErrBurnBalance      = errors.New("burn amount exceeds caller balance")
)
