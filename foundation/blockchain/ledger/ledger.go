// Package ledger derives account balances by replaying the history of the
// chain and the pending transactions.
package ledger

import (
	"fmt"
	"sync"

	"github.com/ardanlabs/chainengine/foundation/blockchain/database"
	"github.com/ardanlabs/chainengine/foundation/blockchain/mempool"
	"github.com/shopspring/decimal"
)

// EventHandler defines a function that is called when events
// occur in the processing of the ledger.
type EventHandler func(v string, args ...any)

// Ledger answers balance questions. Confirmed balances are cached against the
// tip they were computed for and brought forward by replaying only the blocks
// appended since.
type Ledger struct {
	chain     *database.Chain
	mempool   *mempool.Mempool
	evHandler EventHandler

	mu        sync.Mutex
	confirmed *Sheet
	tipHash   string
	length    uint64
}

// New constructs a ledger over the chain and the mempool.
func New(chain *database.Chain, mempool *mempool.Mempool, evHandler EventHandler) *Ledger {
	ev := func(v string, args ...any) {
		if evHandler != nil {
			evHandler(v, args...)
		}
	}

	return &Ledger{
		chain:     chain,
		mempool:   mempool,
		evHandler: ev,
		confirmed: NewSheet(),
	}
}

// BalanceOf returns the balance of the address over every confirmed
// transaction followed by the pending ones, in order.
func (l *Ledger) BalanceOf(address string) (decimal.Decimal, error) {
	sheet, err := l.current()
	if err != nil {
		return decimal.Zero, err
	}

	return sheet.Balance(address), nil
}

// Balances returns the balance of every address known to the ledger.
func (l *Ledger) Balances() (map[string]decimal.Decimal, error) {
	sheet, err := l.current()
	if err != nil {
		return nil, err
	}

	return sheet.Copy(), nil
}

// Confirmed returns the balances over the confirmed transactions only.
func (l *Ledger) Confirmed() (map[string]decimal.Decimal, error) {
	sheet, err := l.refresh()
	if err != nil {
		return nil, err
	}

	return sheet.Copy(), nil
}

// Replay computes the balances from genesis without using the cache. It
// includes the pending transactions.
func (l *Ledger) Replay() (map[string]decimal.Decimal, error) {
	sheet := NewSheet()

	iter := l.chain.ForEach()
	for block, err := iter.Next(); !iter.Done(); block, err = iter.Next() {
		if err != nil {
			return nil, err
		}
		sheet.ApplyBlock(block)
	}

	for _, tx := range l.mempool.Copy() {
		sheet.ApplyTransaction(tx)
	}

	return sheet.Copy(), nil
}

// IsChainValid replays the chain checking every hash, link and proof.
func (l *Ledger) IsChainValid() error {
	return l.chain.ValidateAll()
}

// =============================================================================

// current returns a sheet with the pending transactions applied on top of
// the confirmed balances.
func (l *Ledger) current() (*Sheet, error) {
	confirmed, err := l.refresh()
	if err != nil {
		return nil, err
	}

	sheet := confirmed.Clone()
	for _, tx := range l.mempool.Copy() {
		sheet.ApplyTransaction(tx)
	}

	return sheet, nil
}

// refresh brings the confirmed balances up to the current tip. The chain is
// append only so a tip change with a longer chain only requires the new
// blocks. A shorter chain means storage was reset and the cache is rebuilt.
func (l *Ledger) refresh() (*Sheet, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tip, err := l.chain.Tip()
	if err != nil {
		return nil, err
	}

	if tip.SealedHash() == l.tipHash {
		return l.confirmed, nil
	}

	length := tip.Header.Number + 1
	if length < l.length {
		l.evHandler("ledger: refresh: chain shrank from[%d] to[%d]: rebuilding", l.length, length)
		l.confirmed = NewSheet()
		l.length = 0
	}

	sheet := l.confirmed.Clone()
	for num := l.length; num < length; num++ {
		block, err := l.chain.GetBlock(num)
		if err != nil {
			return nil, fmt.Errorf("replaying block %d: %w", num, err)
		}
		sheet.ApplyBlock(block)
	}

	l.evHandler("ledger: refresh: blocks[%d-%d]: tip[%s]", l.length, length, tip)

	l.confirmed = sheet
	l.tipHash = tip.SealedHash()
	l.length = length

	return l.confirmed, nil
}
