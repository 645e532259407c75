package core

import "fmt"

// GasPool tracks the gas still available to transactions in the block
// under execution. Process seeds it with the block gas limit, each
// transaction reserves its full gas limit up front, and whatever the
// batch leaves unused flows back after the refund step.
type GasPool uint64

// NewGasPool returns a pool holding the given block gas allowance.
func NewGasPool(limit uint64) *GasPool {
	gp := GasPool(limit)
	return &gp
}

// AddGas returns gas to the pool.
func (gp *GasPool) AddGas(amount uint64) *GasPool {
	*gp += GasPool(amount)
	return gp
}

// SubGas reserves gas from the pool. It fails with ErrGasLimitReached
// when the remaining block allowance cannot cover the reservation.
func (gp *GasPool) SubGas(amount uint64) error {
	if uint64(*gp) < amount {
		return fmt.Errorf("%w: have %d, want %d", ErrGasLimitReached, uint64(*gp), amount)
	}
	*gp -= GasPool(amount)
	return nil
}

// Gas returns the remaining allowance.
func (gp *GasPool) Gas() uint64 {
	return uint64(*gp)
}

func (gp *GasPool) String() string {
	return fmt.Sprintf("%d", uint64(*gp))
}
