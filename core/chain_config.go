package core

import (
	"math/big"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/holiman/uint256"

	"github.com/stratorollup/strato/core/types"
)

// ChainConfig holds chain-level configuration: the chain ID and the two
// fee policy adjuncts, each with its own activation height.
type ChainConfig struct {
	ChainID *big.Int

	// FeeRedirect, when non-nil, replaces the base-fee burn with a
	// credit to a sink address from its activation height on.
	FeeRedirect *FeeRedirectConfig

	// MintBurn, when non-nil, enables the bounded native mint/burn
	// facility from its activation height on.
	MintBurn *MintBurnConfig
}

// FeeRedirectConfig configures the base-fee redirect policy.
type FeeRedirectConfig struct {
	Sink             types.Address
	ActivationHeight uint64
}

// MintBurnConfig configures the bounded native mint/burn facility: a
// privileged call reachable at a fixed address, gated by an admin
// allow-list, a per-call cap and an optional per-block cumulative cap.
type MintBurnConfig struct {
	// Address is where the facility is reachable.
	Address types.Address

	// Admins is the set of addresses allowed to mint and burn.
	Admins mapset.Set[types.Address]

	// PerCallCap bounds a single mint or burn amount.
	PerCallCap *uint256.Int

	// PerBlockCap bounds the cumulative minted (and separately burned)
	// amount within one block. Nil disables the block-level bound.
	PerBlockCap *uint256.Int

	ActivationHeight uint64
}

// IsFeeRedirect reports whether the base-fee redirect is active at the
// given block height.
func (c *ChainConfig) IsFeeRedirect(number uint64) bool {
	return c != nil && c.FeeRedirect != nil && number >= c.FeeRedirect.ActivationHeight
}

// IsMintBurn reports whether the mint/burn facility is active at the
// given block height.
func (c *ChainConfig) IsMintBurn(number uint64) bool {
	return c != nil && c.MintBurn != nil && number >= c.MintBurn.ActivationHeight
}

// ChainIDUint64 returns the chain ID as uint64, or 0 when unset.
func (c *ChainConfig) ChainIDUint64() uint64 {
	if c == nil || c.ChainID == nil {
		return 0
	}
	return c.ChainID.Uint64()
}

// BlockContext carries the block-level execution environment plus the
// per-block running counters. It is owned by the single thread executing
// the block; counters reset simply by constructing a fresh context per
// block.
type BlockContext struct {
	Number   uint64
	Time     uint64
	Coinbase types.Address
	GasLimit uint64
	BaseFee  *big.Int

	// Per-block mint/burn totals, committed per transaction.
	minted *uint256.Int
	burned *uint256.Int
}

// NewBlockContext creates a block context with zeroed per-block counters.
func NewBlockContext(number, time uint64, coinbase types.Address, gasLimit uint64, baseFee *big.Int) *BlockContext {
	return &BlockContext{
		Number:   number,
		Time:     time,
		Coinbase: coinbase,
		GasLimit: gasLimit,
		BaseFee:  baseFee,
		minted:   uint256.NewInt(0),
		burned:   uint256.NewInt(0),
	}
}

// MintedTotal returns the amount minted so far in this block.
func (bc *BlockContext) MintedTotal() *uint256.Int {
	if bc.minted == nil {
		return uint256.NewInt(0)
	}
	return new(uint256.Int).Set(bc.minted)
}

// BurnedTotal returns the amount burned so far in this block.
func (bc *BlockContext) BurnedTotal() *uint256.Int {
	if bc.burned == nil {
		return uint256.NewInt(0)
	}
	return new(uint256.Int).Set(bc.burned)
}

func (bc *BlockContext) commitMintBurn(minted, burned *uint256.Int) {
	if bc.minted == nil {
		bc.minted = uint256.NewInt(0)
	}
	if bc.burned == nil {
		bc.burned = uint256.NewInt(0)
	}
	bc.minted.Add(bc.minted, minted)
	bc.burned.Add(bc.burned, burned)
}
