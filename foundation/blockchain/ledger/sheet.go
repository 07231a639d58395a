package ledger

import (
	"sync"

	"github.com/ardanlabs/chainengine/foundation/blockchain/database"
	"github.com/shopspring/decimal"
)

// Sheet represents the data representation to maintain address balances.
// Every address starts at zero and balances may go negative; funding is not
// checked.
type Sheet struct {
	sheet map[string]decimal.Decimal
	mu    sync.RWMutex
}

// NewSheet constructs a new balance sheet for use.
func NewSheet() *Sheet {
	return &Sheet{
		sheet: make(map[string]decimal.Decimal),
	}
}

// Clone makes a copy of the current balance sheet.
func (bs *Sheet) Clone() *Sheet {
	bs.mu.RLock()
	defer bs.mu.RUnlock()

	balanceSheet := NewSheet()
	for address, value := range bs.sheet {
		balanceSheet.sheet[address] = value
	}
	return balanceSheet
}

// Copy makes a copy of the current balance sheet but returns the raw data.
func (bs *Sheet) Copy() map[string]decimal.Decimal {
	bs.mu.RLock()
	defer bs.mu.RUnlock()

	sheet := make(map[string]decimal.Decimal, len(bs.sheet))
	for address, value := range bs.sheet {
		sheet[address] = value
	}
	return sheet
}

// Balance returns the balance of the address, zero when it never transacted.
func (bs *Sheet) Balance(address string) decimal.Decimal {
	bs.mu.RLock()
	defer bs.mu.RUnlock()

	return bs.sheet[address]
}

// ApplyTransaction debits the sender and credits the recipient.
func (bs *Sheet) ApplyTransaction(tx database.Tx) {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	bs.sheet[tx.From] = bs.sheet[tx.From].Sub(tx.Value)
	bs.sheet[tx.To] = bs.sheet[tx.To].Add(tx.Value)
}

// ApplyBlock applies the transactions of the block in order.
func (bs *Sheet) ApplyBlock(block database.Block) {
	for _, tx := range block.Trans {
		bs.ApplyTransaction(tx)
	}
}
