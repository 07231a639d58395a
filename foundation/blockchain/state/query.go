package state

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/chainengine/foundation/blockchain/database"
	"github.com/shopspring/decimal"
)

// QueryChain returns the summary of every block starting with genesis.
func (s *State) QueryChain() ([]BlockSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []BlockSummary

	iter := s.chain.ForEach()
	for block, err := iter.Next(); !iter.Done(); block, err = iter.Next() {
		if err != nil {
			return nil, err
		}
		out = append(out, NewBlockSummary(block))
	}

	return out, nil
}

// QueryBlock returns the summary of the block at the specified index.
func (s *State) QueryBlock(index uint64) (BlockSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	block, err := s.chain.GetBlock(index)
	if err != nil {
		if errors.Is(err, database.ErrBlockNotFound) {
			return BlockSummary{}, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return BlockSummary{}, err
	}

	return NewBlockSummary(block), nil
}

// QueryLatestBlock returns the summary of the tip.
func (s *State) QueryLatestBlock() (BlockSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tip, err := s.chain.Tip()
	if err != nil {
		return BlockSummary{}, err
	}

	return NewBlockSummary(tip), nil
}

// QueryBalance returns the balance of the address over the confirmed and
// the pending transactions.
func (s *State) QueryBalance(address string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.ledger.BalanceOf(address)
}

// QueryBalances returns the balance of every address that transacted.
func (s *State) QueryBalances() (map[string]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.ledger.Balances()
}

// QueryConfirmedBalances returns the balances over the sealed blocks only.
func (s *State) QueryConfirmedBalances() (map[string]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.ledger.Confirmed()
}

// QueryMempool returns a copy of the pending transactions in order.
func (s *State) QueryMempool() []database.Tx {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.mempool.Copy()
}

// QueryMempoolLength returns the current length of the mempool.
func (s *State) QueryMempoolLength() int {
	return s.mempool.Count()
}

// QueryStatus returns the length of the chain, the pending count and the
// difficulty in effect.
func (s *State) QueryStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tipHash string
	if tip, err := s.chain.Tip(); err == nil {
		tipHash = tip.SealedHash()
	}

	difficulty := s.controller.State()

	status := Status{
		ChainLength:   s.chain.Length(),
		TipHash:       tipHash,
		PendingCount:  s.mempool.Count(),
		Difficulty:    s.strategy.Difficulty(difficulty),
		Level:         difficulty.Level,
		Threshold:     difficulty.Threshold,
		ConsensusKind: s.strategy.Kind(),
	}

	if r, ok := s.strategy.(rotation); ok {
		status.Authorities = r.Authorities()
		status.CurrentAuthority = r.Current()
	}

	return status
}

// rotation is implemented by strategies that rotate over a fixed set of
// authorities.
type rotation interface {
	Authorities() []string
	Current() string
}

// ValidateChain replays the persisted chain from genesis. Nothing is
// repaired; a failure is reported to the operator through the event handler.
func (s *State) ValidateChain() Validation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	err := s.ledger.IsChainValid()
	if err == nil {
		return Validation{Valid: true}
	}

	s.evHandler("state: ValidateChain: INTEGRITY FAILURE: %s", err)

	var ve *database.ValidationError
	if errors.As(err, &ve) {
		return Validation{FirstInvalidIndex: ve.Index, Reason: ve.Reason}
	}

	return Validation{Reason: err.Error()}
}
