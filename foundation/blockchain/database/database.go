// Package database handles all the lower level support for maintaining the
// chain of blocks: the transaction and block values, linkage validation,
// replay and the serialization interface used to persist the blocks.
package database

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ardanlabs/chainengine/foundation/blockchain/signature"
)

// Set of error variables for the chain.
var (
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrChainLinkage       = errors.New("previous hash does not match the tip")
	ErrIndex              = errors.New("block index is not the next index")
	ErrProofRejected      = errors.New("proof rejected")
	ErrInvalidHash        = errors.New("hash does not match contents")
	ErrEmptyChain         = errors.New("chain has no genesis block")
	ErrChainExists        = errors.New("chain already has a genesis block")
	ErrBlockNotFound      = errors.New("block not found")
)

// ValidationError reports the first block that failed a replay of the chain.
type ValidationError struct {
	Index  uint64
	Reason string
}

// Error implements the error interface.
func (ve *ValidationError) Error() string {
	return fmt.Sprintf("block %d invalid: %s", ve.Index, ve.Reason)
}

// =============================================================================

// Serializer interface represents the behavior required to be implemented by any
// package providing support for storing and reading the blockchain.
type Serializer interface {
	Write(blockData BlockData) error
	GetBlock(num uint64) (BlockData, error)
	ForEach() Iterator
	Close() error
}

// Iterator interface represents the behavior required to be implemented by any
// package providing support to iterate over the blocks.
type Iterator interface {
	Next() (BlockData, error)
	Done() bool
}

// ProofValidator represents the behavior of checking the proof recorded on
// a block against the difficulty recorded on that block.
type ProofValidator interface {
	ValidateProof(block Block) error
}

// =============================================================================

// ChainIterator walks the blocks of the chain starting with genesis.
type ChainIterator struct {
	iterator Iterator
}

// Next retrieves the next block from storage.
func (ci *ChainIterator) Next() (Block, error) {
	blockData, err := ci.iterator.Next()
	if err != nil {
		return Block{}, err
	}

	return ToBlock(blockData), nil
}

// Done returns the end of chain value.
func (ci *ChainIterator) Done() bool {
	return ci.iterator.Done()
}

// =============================================================================

// Chain manages the ordered, append only sequence of blocks.
type Chain struct {
	mu sync.RWMutex

	latestBlock Block
	length      uint64

	validator  ProofValidator
	serializer Serializer
	evHandler  func(v string, args ...any)
}

// New constructs a chain over the serializer. Any blocks already held by the
// serializer are read and validated before the chain is returned.
func New(serializer Serializer, validator ProofValidator, evHandler func(v string, args ...any)) (*Chain, error) {
	ev := func(v string, args ...any) {
		if evHandler != nil {
			evHandler(v, args...)
		}
	}

	c := Chain{
		validator:  validator,
		serializer: serializer,
		evHandler:  ev,
	}

	iter := c.ForEach()
	for block, err := iter.Next(); !iter.Done(); block, err = iter.Next() {
		if err != nil {
			return nil, err
		}

		if err := c.validateBlock(block, c.latestBlock, c.length); err != nil {
			return nil, err
		}

		c.latestBlock = block
		c.length++
	}

	ev("database: New: loaded chain: blocks[%d]", c.length)

	return &c, nil
}

// Close closes the underlying storage.
func (c *Chain) Close() error {
	return c.serializer.Close()
}

// Genesis creates block 0 with the zero hash as its previous hash and no
// transactions. The genesis block is exempt from proof checks.
func (c *Chain) Genesis(date time.Time) (Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.length > 0 {
		return Block{}, ErrChainExists
	}

	block := NewBlock(0, uint64(date.UTC().UnixMilli()), nil, signature.ZeroHash)
	block.Header.Proof = Proof{Kind: ProofGenesis}
	block.Seal()

	if err := c.serializer.Write(NewBlockData(block)); err != nil {
		return Block{}, err
	}

	c.latestBlock = block
	c.length = 1

	c.evHandler("database: Genesis: blk[%s]", block)

	return block, nil
}

// Append validates the block as the next block in the chain and adds it.
// The difficulty recorded on the block must be the difficulty in effect.
func (c *Chain) Append(block Block, expected float64) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.length == 0 {
		return 0, ErrEmptyChain
	}

	if err := c.validateBlock(block, c.latestBlock, c.length); err != nil {
		return 0, err
	}

	if block.Header.Difficulty != expected {
		return 0, fmt.Errorf("%w: recorded difficulty %v, in effect %v", ErrProofRejected, block.Header.Difficulty, expected)
	}

	if err := c.serializer.Write(NewBlockData(block)); err != nil {
		return 0, err
	}

	c.latestBlock = block
	c.length++

	c.evHandler("database: Append: blk[%s]: trans[%d]", block, len(block.Trans))

	return block.Header.Number, nil
}

// Tip returns the latest block.
func (c *Chain) Tip() (Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.length == 0 {
		return Block{}, ErrEmptyChain
	}

	return c.latestBlock, nil
}

// Length returns the number of blocks including genesis.
func (c *Chain) Length() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.length
}

// GetBlock locates and returns the specified block by number.
func (c *Chain) GetBlock(num uint64) (Block, error) {
	if num >= c.Length() {
		return Block{}, fmt.Errorf("%w: %d", ErrBlockNotFound, num)
	}

	blockData, err := c.serializer.GetBlock(num)
	if err != nil {
		return Block{}, err
	}

	return ToBlock(blockData), nil
}

// ForEach returns an iterator to walk through all the blocks starting
// with genesis.
func (c *Chain) ForEach() ChainIterator {
	return ChainIterator{iterator: c.serializer.ForEach()}
}

// ValidateAll replays the stored chain from genesis recomputing every hash,
// the linkage and the proofs. The first failure is reported as a
// ValidationError. Nothing is repaired.
func (c *Chain) ValidateAll() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.length == 0 {
		return ErrEmptyChain
	}

	var prev Block
	var index uint64

	iter := c.ForEach()
	for block, err := iter.Next(); !iter.Done(); block, err = iter.Next() {
		if err != nil {
			return &ValidationError{Index: index, Reason: err.Error()}
		}

		if err := c.validateBlock(block, prev, index); err != nil {
			c.evHandler("database: ValidateAll: blk[%d]: FAILED: %s", index, err)
			return &ValidationError{Index: index, Reason: err.Error()}
		}

		prev = block
		index++
	}

	if index != c.length {
		return &ValidationError{Index: index, Reason: fmt.Sprintf("chain has %d blocks, storage has %d", c.length, index)}
	}

	return nil
}

// =============================================================================

// validateBlock checks the block can follow the previous block at the
// specified position in the chain.
func (c *Chain) validateBlock(block Block, prev Block, position uint64) error {
	if position == 0 {
		return validateGenesis(block)
	}

	if block.Header.PrevBlockHash != prev.SealedHash() {
		return fmt.Errorf("%w: got %s, exp %s", ErrChainLinkage, block.Header.PrevBlockHash, prev.SealedHash())
	}

	if nextNumber := prev.Header.Number + 1; block.Header.Number != nextNumber {
		return fmt.Errorf("%w: got %d, exp %d", ErrIndex, block.Header.Number, nextNumber)
	}

	if err := block.Verify(); err != nil {
		return err
	}

	if err := c.validator.ValidateProof(block); err != nil {
		return fmt.Errorf("%w: %s", ErrProofRejected, err)
	}

	return nil
}

// validateGenesis checks the shape of block 0.
func validateGenesis(block Block) error {
	if block.Header.Number != 0 {
		return fmt.Errorf("%w: genesis got %d", ErrIndex, block.Header.Number)
	}

	if block.Header.PrevBlockHash != signature.ZeroHash {
		return fmt.Errorf("%w: genesis previous hash %s", ErrChainLinkage, block.Header.PrevBlockHash)
	}

	if len(block.Trans) != 0 {
		return fmt.Errorf("genesis carries %d transactions", len(block.Trans))
	}

	return block.Verify()
}
