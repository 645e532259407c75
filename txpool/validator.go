// Package txpool holds pending transactions and the admission checks
// protecting the execution engine: structural validation of batches,
// executor signature recovery, and sponsor solvency.
package txpool

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/stratorollup/strato/core"
	"github.com/stratorollup/strato/core/types"
)

// Admission error codes.
var (
	ErrAlreadyKnown           = errors.New("already known")
	ErrNonceTooLow            = errors.New("nonce too low")
	ErrNonceTooHigh           = errors.New("nonce gap too large")
	ErrGasLimit               = errors.New("exceeds block gas limit")
	ErrInsufficientFunds      = errors.New("insufficient funds for gas * price + value")
	ErrSponsorFunds           = errors.New("insufficient sponsor funds for gas * price")
	ErrIntrinsicGas           = errors.New("intrinsic gas too low")
	ErrTxPoolFull             = errors.New("transaction pool is full")
	ErrNegativeValue          = errors.New("negative value")
	ErrOversizedTx            = errors.New("encoded transaction too large")
	ErrUnderpriced            = errors.New("transaction underpriced")
	ErrReplacementUnderpriced = errors.New("replacement transaction underpriced")
	ErrSenderLimitExceeded    = errors.New("per-sender transaction limit exceeded")
	ErrFeeCapBelowTip         = errors.New("max fee per gas less than max priority fee per gas")
	ErrInvalidSender          = errors.New("invalid sender signature")
	ErrInvalidSponsor         = errors.New("invalid sponsor signature")
	ErrChainIDMismatch        = errors.New("chain ID mismatch")
	ErrEmptyBatch             = errors.New("batch has no calls")
	ErrMisplacedCreate        = errors.New("contract creation only allowed as first call")
)

// permanentError wraps rejections that no future chain state can cure;
// peers should not retry or re-gossip these.
type permanentError struct {
	err error
}

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return permanentError{err: err} }

// IsPermanent reports whether an admission error is non-retryable.
func IsPermanent(err error) bool {
	var pe permanentError
	return errors.As(err, &pe)
}

// StateReader is the read-only account view admission checks run against.
type StateReader interface {
	GetNonce(addr types.Address) uint64
	GetBalance(addr types.Address) *big.Int
}

// ValidationConfig bounds what the pool accepts.
type ValidationConfig struct {
	ChainID       uint64
	BlockGasLimit uint64   // per-transaction gas limit ceiling
	MaxTxSize     uint64   // maximum encoded size in bytes
	MinTip        *big.Int // minimum priority fee, nil disables
}

// DefaultValidationConfig returns the standard admission bounds.
func DefaultValidationConfig(chainID uint64) ValidationConfig {
	return ValidationConfig{
		ChainID:       chainID,
		BlockGasLimit: 30_000_000,
		MaxTxSize:     128 * 1024,
	}
}

// Validator runs admission checks for incoming transactions. Validations
// may run concurrently; each call acquires its own state snapshot via the
// stateAt factory rather than sharing a cursor.
type Validator struct {
	config  ValidationConfig
	signer  types.Signer
	stateAt func() StateReader
}

// NewValidator creates a validator. stateAt must return an independent
// read-only snapshot of the committed state on every call.
func NewValidator(config ValidationConfig, stateAt func() StateReader) *Validator {
	return &Validator{
		config:  config,
		signer:  types.LatestSigner(config.ChainID),
		stateAt: stateAt,
	}
}

// Validate runs every admission check against a fresh state snapshot and
// returns the first failure. Errors satisfying IsPermanent can never
// become valid and should be dropped rather than retried.
func (v *Validator) Validate(tx *types.Transaction) error {
	if err := v.validateStateless(tx); err != nil {
		return err
	}
	from, err := v.sender(tx)
	if err != nil {
		return permanent(fmt.Errorf("%w: %v", ErrInvalidSender, err))
	}
	return v.validateStateful(tx, from, v.stateAt())
}

// validateStateless covers everything decidable from the transaction
// alone. All failures here are permanent.
func (v *Validator) validateStateless(tx *types.Transaction) error {
	if v.config.MaxTxSize > 0 && tx.Size() > v.config.MaxTxSize {
		return permanent(ErrOversizedTx)
	}
	if tx.Gas() > v.config.BlockGasLimit {
		return permanent(ErrGasLimit)
	}
	if chainID := tx.ChainId(); chainID != nil && chainID.Sign() > 0 &&
		chainID.Uint64() != v.config.ChainID {
		return permanent(ErrChainIDMismatch)
	}

	calls := tx.Calls()
	if len(calls) == 0 {
		return permanent(ErrEmptyBatch)
	}
	for i, call := range calls {
		if call.Value != nil && call.Value.Sign() < 0 {
			return permanent(ErrNegativeValue)
		}
		if call.To == nil && i > 0 {
			return permanent(ErrMisplacedCreate)
		}
	}

	if feeCap, tipCap := tx.GasFeeCap(), tx.GasTipCap(); feeCap != nil && tipCap != nil &&
		feeCap.Cmp(tipCap) < 0 {
		return permanent(ErrFeeCapBelowTip)
	}
	if v.config.MinTip != nil {
		tip := tx.GasTipCap()
		if tip == nil {
			tip = tx.GasPrice()
		}
		if tip == nil || tip.Cmp(v.config.MinTip) < 0 {
			return ErrUnderpriced
		}
	}

	igas, overflow := core.IntrinsicGas(calls, tx.AccessList(), 0)
	if overflow || tx.Gas() < igas {
		return permanent(ErrIntrinsicGas)
	}
	return nil
}

// validateStateful covers nonce ordering and solvency against the given
// snapshot. Failures are retryable; the state may change under the tx.
func (v *Validator) validateStateful(tx *types.Transaction, from types.Address, state StateReader) error {
	if tx.Nonce() < state.GetNonce(from) {
		return ErrNonceTooLow
	}

	gasCost := new(big.Int).Mul(feeCapOf(tx), new(big.Int).SetUint64(tx.Gas()))
	totalValue := new(big.Int)
	for _, call := range tx.Calls() {
		if call.Value != nil {
			totalValue.Add(totalValue, call.Value)
		}
	}

	if len(tx.FeePayerSig()) > 0 {
		// Sponsored: the executor covers call values only, the sponsor
		// covers the full worst-case gas bill. A sponsor-side shortfall
		// is reported distinctly from a caller-side one.
		sponsor, err := v.signer.FeePayer(tx)
		if err != nil {
			return permanent(fmt.Errorf("%w: %v", ErrInvalidSponsor, err))
		}
		if state.GetBalance(sponsor).Cmp(gasCost) < 0 {
			return fmt.Errorf("%w: sponsor %s have %s want %s",
				ErrSponsorFunds, sponsor, state.GetBalance(sponsor), gasCost)
		}
		if state.GetBalance(from).Cmp(totalValue) < 0 {
			return ErrInsufficientFunds
		}
		return nil
	}

	need := new(big.Int).Add(gasCost, totalValue)
	if state.GetBalance(from).Cmp(need) < 0 {
		return ErrInsufficientFunds
	}
	return nil
}

func (v *Validator) sender(tx *types.Transaction) (types.Address, error) {
	if cached := tx.Sender(); cached != nil {
		return *cached, nil
	}
	from, err := v.signer.Sender(tx)
	if err != nil {
		return types.Address{}, err
	}
	tx.SetSender(from)
	return from, nil
}

func feeCapOf(tx *types.Transaction) *big.Int {
	if feeCap := tx.GasFeeCap(); feeCap != nil {
		return feeCap
	}
	if gp := tx.GasPrice(); gp != nil {
		return gp
	}
	return new(big.Int)
}
