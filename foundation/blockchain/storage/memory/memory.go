// Package memory implements the ability to read and write blocks to memory
// using a slice.
package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ardanlabs/chainengine/foundation/blockchain/database"
)

// ErrNotExist is returned when a block number is not stored.
var ErrNotExist = errors.New("block does not exist")

// Memory represents the serialization implementation for reading and storing
// blocks in memory using a slice. Blocks are kept in their JSON form so the
// stored representation can't be changed through values held by callers.
// This implements the database.Serializer interface.
type Memory struct {
	mu     sync.RWMutex
	blocks [][]byte
}

// New constructs a Memory value for use.
func New() *Memory {
	return &Memory{}
}

// Close in this implementation has nothing to do since everything
// is in memory.
func (m *Memory) Close() error {
	return nil
}

// Write takes the specified database block and stores it in memory.
func (m *Memory) Write(blockData database.BlockData) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if uint64(len(m.blocks)) != blockData.Number {
		return fmt.Errorf("block is out of order, got %d, exp %d", blockData.Number, len(m.blocks))
	}

	data, err := json.Marshal(blockData)
	if err != nil {
		return err
	}

	m.blocks = append(m.blocks, data)

	return nil
}

// GetBlock locates and returns the contents of the specified block by number.
func (m *Memory) GetBlock(num uint64) (database.BlockData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if num >= uint64(len(m.blocks)) {
		return database.BlockData{}, ErrNotExist
	}

	var blockData database.BlockData
	if err := json.Unmarshal(m.blocks[num], &blockData); err != nil {
		return database.BlockData{}, err
	}

	return blockData, nil
}

// Replace overwrites the stored representation of the specified block. This
// exists to let tooling and tests work with the raw stored form.
func (m *Memory) Replace(num uint64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if num >= uint64(len(m.blocks)) {
		return ErrNotExist
	}

	m.blocks[num] = data
	return nil
}

// Raw returns a copy of the stored representation of the specified block.
func (m *Memory) Raw(num uint64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if num >= uint64(len(m.blocks)) {
		return nil, ErrNotExist
	}

	cpy := make([]byte, len(m.blocks[num]))
	copy(cpy, m.blocks[num])
	return cpy, nil
}

// ForEach returns an iterator to walk through all the blocks
// starting with genesis.
func (m *Memory) ForEach() database.Iterator {
	return &memoryIterator{storage: m}
}

// =============================================================================

// memoryIterator represents the iteration implementation for walking
// through the blocks in memory. This implements the database
// Iterator interface.
type memoryIterator struct {
	storage *Memory // Access to the storage API.
	current uint64  // Current block number being iterated over.
	eoc     bool    // Represents the iterator is at the end of the chain.
}

// Next retrieves the next block from memory.
func (mi *memoryIterator) Next() (database.BlockData, error) {
	if mi.eoc {
		return database.BlockData{}, errors.New("end of chain")
	}

	blockData, err := mi.storage.GetBlock(mi.current)
	if errors.Is(err, ErrNotExist) {
		mi.eoc = true
	}
	mi.current++

	return blockData, err
}

// Done returns the end of chain value.
func (mi *memoryIterator) Done() bool {
	return mi.eoc
}
