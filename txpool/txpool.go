package txpool

import (
	"math/big"
	"sort"
	"sync"

	"github.com/stratorollup/strato/core/types"
	"github.com/stratorollup/strato/log"
)

// Pool constants.
const (
	// PriceBump is the minimum fee bump percentage for replace-by-fee.
	PriceBump = 10

	// MaxPoolSize is the maximum number of transactions the pool holds.
	MaxPoolSize = 4096

	// MaxPerSender is the maximum number of transactions per sender.
	MaxPerSender = 16

	// MaxNonceGap bounds how far ahead of the state nonce a queued
	// transaction may sit, limiting memory held for nonce-gap spam.
	MaxNonceGap = 64

	// PendingBytesLimit is the default byte budget of a Pending query.
	PendingBytesLimit = 1_945_600

	// PendingGasLimit is the default gas budget of a Pending query.
	PendingGasLimit = 30_000_000
)

// Config holds pool configuration.
type Config struct {
	MaxSize      int
	MaxPerSender int
	Validation   ValidationConfig
}

// DefaultConfig returns sensible defaults for the pool.
func DefaultConfig(chainID uint64) Config {
	return Config{
		MaxSize:      MaxPoolSize,
		MaxPerSender: MaxPerSender,
		Validation:   DefaultValidationConfig(chainID),
	}
}

// txSortedList keeps one sender's transactions ordered by nonce.
type txSortedList struct {
	items []*types.Transaction
}

func (l *txSortedList) Add(tx *types.Transaction) {
	idx := sort.Search(len(l.items), func(i int) bool {
		return l.items[i].Nonce() >= tx.Nonce()
	})
	if idx < len(l.items) && l.items[idx].Nonce() == tx.Nonce() {
		l.items[idx] = tx
		return
	}
	l.items = append(l.items, nil)
	copy(l.items[idx+1:], l.items[idx:])
	l.items[idx] = tx
}

func (l *txSortedList) Remove(nonce uint64) bool {
	for i, tx := range l.items {
		if tx.Nonce() == nonce {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return true
		}
	}
	return false
}

func (l *txSortedList) Get(nonce uint64) *types.Transaction {
	idx := sort.Search(len(l.items), func(i int) bool {
		return l.items[i].Nonce() >= nonce
	})
	if idx < len(l.items) && l.items[idx].Nonce() == nonce {
		return l.items[idx]
	}
	return nil
}

func (l *txSortedList) Len() int { return len(l.items) }

// Ready returns the maximal gap-free run starting at baseNonce.
func (l *txSortedList) Ready(baseNonce uint64) []*types.Transaction {
	var ready []*types.Transaction
	expected := baseNonce
	for _, tx := range l.items {
		if tx.Nonce() != expected {
			break
		}
		ready = append(ready, tx)
		expected++
	}
	return ready
}

// TxPool holds pending (processable) and queued (nonce-gapped)
// transactions per sender, admitted through the Validator.
type TxPool struct {
	config    Config
	validator *Validator
	stateAt   func() StateReader
	log       *log.Logger

	mu      sync.RWMutex
	baseFee *big.Int
	pending map[types.Address]*txSortedList
	queue   map[types.Address]*txSortedList
	all     map[types.Hash]*types.Transaction
}

// New creates a transaction pool. stateAt must return an independent
// read-only snapshot per call; it is handed to the validator unchanged.
func New(config Config, stateAt func() StateReader) *TxPool {
	return &TxPool{
		config:    config,
		validator: NewValidator(config.Validation, stateAt),
		stateAt:   stateAt,
		log:       log.Default().Module("txpool"),
		pending:   make(map[types.Address]*txSortedList),
		queue:     make(map[types.Address]*txSortedList),
		all:       make(map[types.Hash]*types.Transaction),
	}
}

// AddRaw decodes a wire-encoded transaction and admits it. Decode
// failures are permanent; the bytes will never parse differently.
func (pool *TxPool) AddRaw(data []byte) error {
	tx, err := types.DecodeTransaction(data)
	if err != nil {
		return permanent(err)
	}
	return pool.Add(tx)
}

// Add validates and admits a transaction. Errors satisfying IsPermanent
// mean the transaction can never become valid and should not be retried.
func (pool *TxPool) Add(tx *types.Transaction) error {
	hash := tx.Hash()

	pool.mu.RLock()
	_, known := pool.all[hash]
	pool.mu.RUnlock()
	if known {
		return ErrAlreadyKnown
	}

	// Validation runs outside the pool lock against its own snapshot, so
	// concurrent submissions never serialize on state reads.
	if err := pool.validator.Validate(tx); err != nil {
		pool.log.Debug("rejected transaction", "tx", hash.Hex(), "permanent", IsPermanent(err), "err", err)
		return err
	}
	from := *tx.Sender() // set by the validator

	pool.mu.Lock()
	defer pool.mu.Unlock()

	if _, known := pool.all[hash]; known {
		return ErrAlreadyKnown
	}

	stateNonce := pool.stateAt().GetNonce(from)
	if tx.Nonce() < stateNonce {
		return ErrNonceTooLow
	}
	if tx.Nonce() > stateNonce+MaxNonceGap {
		return ErrNonceTooHigh
	}

	replaced, err := pool.replace(from, tx)
	if err != nil {
		return err
	}
	if !replaced {
		if pool.senderCount(from) >= pool.config.MaxPerSender {
			return ErrSenderLimitExceeded
		}
		if len(pool.all) >= pool.config.MaxSize && pool.evictCheapest() == 0 {
			return ErrTxPoolFull
		}
	}

	pool.all[hash] = tx
	if tx.Nonce() <= pool.nextPendingNonce(from, stateNonce) {
		pool.addTo(pool.pending, from, tx)
	} else {
		pool.addTo(pool.queue, from, tx)
	}
	pool.promote(from, stateNonce)
	return nil
}

// replace handles replace-by-fee. The incoming transaction must bump
// both the effective price and the tip by at least PriceBump percent
// over the one it displaces.
func (pool *TxPool) replace(from types.Address, tx *types.Transaction) (bool, error) {
	for _, set := range []map[types.Address]*txSortedList{pool.pending, pool.queue} {
		list, ok := set[from]
		if !ok {
			continue
		}
		old := list.Get(tx.Nonce())
		if old == nil {
			continue
		}
		if !bumped(old.GasFeeCap(), tx.GasFeeCap()) || !bumped(old.GasTipCap(), tx.GasTipCap()) {
			return false, ErrReplacementUnderpriced
		}
		delete(pool.all, old.Hash())
		return true, nil
	}
	return false, nil
}

// bumped reports whether next is at least PriceBump percent above prev.
func bumped(prev, next *big.Int) bool {
	if prev == nil {
		return true
	}
	if next == nil {
		return false
	}
	threshold := new(big.Int).Mul(prev, big.NewInt(100+PriceBump))
	threshold.Div(threshold, big.NewInt(100))
	return next.Cmp(threshold) >= 0
}

func (pool *TxPool) senderCount(from types.Address) int {
	count := 0
	if list, ok := pool.pending[from]; ok {
		count += list.Len()
	}
	if list, ok := pool.queue[from]; ok {
		count += list.Len()
	}
	return count
}

// nextPendingNonce is the nonce a new transaction must carry to extend
// the sender's gap-free pending run.
func (pool *TxPool) nextPendingNonce(from types.Address, stateNonce uint64) uint64 {
	list, ok := pool.pending[from]
	if !ok || list.Len() == 0 {
		return stateNonce
	}
	return list.items[list.Len()-1].Nonce() + 1
}

func (pool *TxPool) addTo(set map[types.Address]*txSortedList, from types.Address, tx *types.Transaction) {
	list, ok := set[from]
	if !ok {
		list = &txSortedList{}
		set[from] = list
	}
	list.Add(tx)
}

// promote moves queued transactions whose nonces have become sequential
// into the pending set.
func (pool *TxPool) promote(from types.Address, stateNonce uint64) {
	queued, ok := pool.queue[from]
	if !ok || queued.Len() == 0 {
		return
	}
	for _, tx := range queued.Ready(pool.nextPendingNonce(from, stateNonce)) {
		pool.addTo(pool.pending, from, tx)
		queued.Remove(tx.Nonce())
	}
	if queued.Len() == 0 {
		delete(pool.queue, from)
	}
}

// evictCheapest drops the queued or non-head pending transaction with
// the lowest effective tip. Returns the number evicted (0 or 1).
func (pool *TxPool) evictCheapest() int {
	var (
		worstTx   *types.Transaction
		worstFrom types.Address
		worstTip  *big.Int
		fromQueue bool
	)
	consider := func(tx *types.Transaction, from types.Address, queued bool) {
		tip := tx.EffectiveGasTip(pool.baseFee)
		if tip == nil {
			tip = new(big.Int)
		}
		if worstTx == nil || tip.Cmp(worstTip) < 0 {
			worstTx, worstFrom, worstTip, fromQueue = tx, from, tip, queued
		}
	}
	for from, list := range pool.pending {
		// The lowest-nonce pending tx per sender is protected so every
		// sender keeps a processable head.
		for i, tx := range list.items {
			if i == 0 {
				continue
			}
			consider(tx, from, false)
		}
	}
	for from, list := range pool.queue {
		for _, tx := range list.items {
			consider(tx, from, true)
		}
	}
	if worstTx == nil {
		return 0
	}
	delete(pool.all, worstTx.Hash())
	set := pool.pending
	if fromQueue {
		set = pool.queue
	}
	if list, ok := set[worstFrom]; ok {
		list.Remove(worstTx.Nonce())
		if list.Len() == 0 {
			delete(set, worstFrom)
		}
	}
	return 1
}

// Pending returns processable transactions for block building, ordered
// by effective tip descending while preserving per-sender nonce order,
// truncated to the byte and gas budgets. Zero budgets use the defaults.
func (pool *TxPool) Pending(maxBytes, maxGas uint64) []*types.Transaction {
	if maxBytes == 0 {
		maxBytes = PendingBytesLimit
	}
	if maxGas == 0 {
		maxGas = PendingGasLimit
	}

	pool.mu.RLock()
	defer pool.mu.RUnlock()

	// Per-sender cursors over nonce-ordered lists; each round picks the
	// sender whose next transaction pays the highest effective tip.
	heads := make(map[types.Address][]*types.Transaction, len(pool.pending))
	for from, list := range pool.pending {
		txs := make([]*types.Transaction, len(list.items))
		copy(txs, list.items)
		heads[from] = txs
	}

	var (
		result     []*types.Transaction
		totalBytes uint64
		totalGas   uint64
	)
	for len(heads) > 0 {
		var (
			bestFrom types.Address
			bestTip  *big.Int
		)
		for from, txs := range heads {
			tip := txs[0].EffectiveGasTip(pool.baseFee)
			if tip == nil {
				tip = new(big.Int)
			}
			if bestTip == nil || tip.Cmp(bestTip) > 0 {
				bestFrom, bestTip = from, tip
			}
		}
		tx := heads[bestFrom][0]
		if totalBytes+tx.Size() > maxBytes || totalGas+tx.Gas() > maxGas {
			// This sender is done: its later nonces cannot jump the
			// stuck head. Another sender's head may still fit.
			delete(heads, bestFrom)
			continue
		}
		totalBytes += tx.Size()
		totalGas += tx.Gas()
		result = append(result, tx)
		if rest := heads[bestFrom][1:]; len(rest) > 0 {
			heads[bestFrom] = rest
		} else {
			delete(heads, bestFrom)
		}
	}
	return result
}

// Get retrieves a transaction by hash, nil if unknown.
func (pool *TxPool) Get(hash types.Hash) *types.Transaction {
	pool.mu.RLock()
	defer pool.mu.RUnlock()
	return pool.all[hash]
}

// Has reports whether the pool contains the given transaction.
func (pool *TxPool) Has(hash types.Hash) bool {
	return pool.Get(hash) != nil
}

// Remove drops a transaction, typically after block inclusion, and
// promotes any queued successors.
func (pool *TxPool) Remove(hash types.Hash) {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	tx, ok := pool.all[hash]
	if !ok {
		return
	}
	delete(pool.all, hash)

	from := *tx.Sender()
	if list, ok := pool.pending[from]; ok {
		list.Remove(tx.Nonce())
		if list.Len() == 0 {
			delete(pool.pending, from)
		}
	}
	if list, ok := pool.queue[from]; ok {
		list.Remove(tx.Nonce())
		if list.Len() == 0 {
			delete(pool.queue, from)
		}
	}
	pool.promote(from, pool.stateAt().GetNonce(from))
}

// Reset drops transactions made stale by a new head block and
// re-promotes the queue against the fresh state.
func (pool *TxPool) Reset(baseFee *big.Int) {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	if baseFee != nil {
		pool.baseFee = new(big.Int).Set(baseFee)
	}
	state := pool.stateAt()

	for from, list := range pool.pending {
		stateNonce := state.GetNonce(from)
		var stale []uint64
		for _, tx := range list.items {
			if tx.Nonce() < stateNonce {
				stale = append(stale, tx.Nonce())
				delete(pool.all, tx.Hash())
			}
		}
		for _, nonce := range stale {
			list.Remove(nonce)
		}
		if list.Len() == 0 {
			delete(pool.pending, from)
		}
	}
	for from := range pool.queue {
		pool.promote(from, state.GetNonce(from))
	}
}

// Count returns the total number of pooled transactions.
func (pool *TxPool) Count() int {
	pool.mu.RLock()
	defer pool.mu.RUnlock()
	return len(pool.all)
}

// PendingCount returns the number of processable transactions.
func (pool *TxPool) PendingCount() int {
	pool.mu.RLock()
	defer pool.mu.RUnlock()
	count := 0
	for _, list := range pool.pending {
		count += list.Len()
	}
	return count
}

// QueuedCount returns the number of nonce-gapped transactions.
func (pool *TxPool) QueuedCount() int {
	pool.mu.RLock()
	defer pool.mu.RUnlock()
	count := 0
	for _, list := range pool.queue {
		count += list.Len()
	}
	return count
}
