// Package mempool maintains the mempool for the blockchain.
package mempool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ardanlabs/chainengine/foundation/blockchain/database"
)

// ErrDuplicateTransaction is returned when a transaction with the same
// content hash already exists in the pool.
var ErrDuplicateTransaction = errors.New("duplicate transaction")

// Mempool represents a cache of validated transactions waiting to be included
// in a block. Transactions are kept in submission order and are unique by
// their content hash.
type Mempool struct {
	mu    sync.RWMutex
	order []database.Tx
	index map[string]struct{}
}

// New constructs a new mempool.
func New() *Mempool {
	return &Mempool{
		index: make(map[string]struct{}),
	}
}

// Count returns the current number of transaction in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.order)
}

// Submit validates and adds a transaction to the end of the pool, returning
// the size of the pool.
func (mp *Mempool) Submit(tx database.Tx) (int, error) {
	if err := tx.Validate(); err != nil {
		return 0, err
	}

	if hash := tx.Hash(); tx.ID != hash {
		return 0, fmt.Errorf("%w: id %s does not match hash %s", database.ErrInvalidTransaction, tx.ID, hash)
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, exists := mp.index[tx.ID]; exists {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateTransaction, tx.ID)
	}

	mp.order = append(mp.order, tx)
	mp.index[tx.ID] = struct{}{}

	return len(mp.order), nil
}

// Drain removes and returns all the transactions in submission order.
func (mp *Mempool) Drain() []database.Tx {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	trans := mp.order
	mp.order = nil
	mp.index = make(map[string]struct{})

	return trans
}

// Remove deletes the specified transactions from the pool keeping the
// order of the remaining transactions.
func (mp *Mempool) Remove(trans []database.Tx) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	remove := make(map[string]struct{}, len(trans))
	for _, tx := range trans {
		remove[tx.ID] = struct{}{}
	}

	kept := make([]database.Tx, 0, len(mp.order))
	for _, tx := range mp.order {
		if _, exists := remove[tx.ID]; exists {
			delete(mp.index, tx.ID)
			continue
		}
		kept = append(kept, tx)
	}
	mp.order = kept
}

// Copy returns a snapshot of the pool in submission order.
func (mp *Mempool) Copy() []database.Tx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	cpy := make([]database.Tx, len(mp.order))
	copy(cpy, mp.order)
	return cpy
}
