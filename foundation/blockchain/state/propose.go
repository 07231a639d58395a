package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ardanlabs/chainengine/foundation/blockchain/consensus"
	"github.com/ardanlabs/chainengine/foundation/blockchain/database"
	"github.com/ardanlabs/chainengine/foundation/blockchain/difficulty"
)

// ProposeArgs carries the strategy specific inputs of a proposal.
type ProposeArgs struct {
	Authority string               // Identity for authority rotation, empty uses the node authority.
	Solutions []consensus.Solution // Candidates for weighted value selection.
}

// snapshot is the view of the engine a proposal searches against.
type snapshot struct {
	tip        database.Block
	trans      []database.Tx
	difficulty difficulty.State
	load       float64
}

// ProposeAndAppend builds the next block from the pending transactions,
// runs the strategy to produce its proof and appends it. The search runs
// outside of the engine lock; when the tip moves in the meantime the proposal
// is started again over a fresh snapshot. A failed proposal leaves the chain
// and the mempool untouched.
func (s *State) ProposeAndAppend(ctx context.Context, args ProposeArgs) (BlockSummary, error) {
	s.evHandler("state: ProposeAndAppend: started")
	defer s.evHandler("state: ProposeAndAppend: completed")

	authority := args.Authority
	if authority == "" {
		authority = s.authority
	}

	for attempt := 0; ; attempt++ {
		snap, err := s.snapshot()
		if err != nil {
			return BlockSummary{}, err
		}

		s.evHandler("state: ProposeAndAppend: attempt[%d]: tip[%s]: trans[%d]: load[%.2f]", attempt, snap.tip, len(snap.trans), snap.load)

		block, err := s.strategy.Propose(ctx, consensus.ProposeArgs{
			PrevBlock:   snap.tip,
			Trans:       snap.trans,
			Difficulty:  snap.difficulty,
			TimeStamp:   s.clock.Now(),
			Authority:   authority,
			Solutions:   args.Solutions,
			MaxAttempts: s.maxAttempts,
		})
		if err != nil {
			if errors.Is(err, consensus.ErrNotFound) {
				return BlockSummary{}, fmt.Errorf("%w: %w", ErrNotFound, err)
			}
			return BlockSummary{}, err
		}

		summary, err := s.appendProposed(block, snap)
		if errors.Is(err, ErrStaleTip) && attempt < s.maxRetries {
			s.evHandler("state: ProposeAndAppend: attempt[%d]: tip moved: retrying", attempt)
			continue
		}
		return summary, err
	}
}

// snapshot captures the tip, the pending transactions and the difficulty.
func (s *State) snapshot() (snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trans := s.mempool.Copy()
	if len(trans) == 0 {
		return snapshot{}, ErrEmptyMempool
	}

	tip, err := s.chain.Tip()
	if err != nil {
		return snapshot{}, err
	}

	return snapshot{
		tip:        tip,
		trans:      trans,
		difficulty: s.controller.State(),
		load:       difficulty.Load(len(trans), int(s.genesis.TransPerBlock)),
	}, nil
}

// appendProposed appends the block when the tip is still the one the
// proposal was built on, then consumes the transactions and adjusts the
// difficulty.
func (s *State) appendProposed(block database.Block, snap snapshot) (BlockSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tip, err := s.chain.Tip()
	if err != nil {
		return BlockSummary{}, err
	}

	if tip.SealedHash() != snap.tip.SealedHash() {
		return BlockSummary{}, fmt.Errorf("%w: proposed on %s, tip is %s", ErrStaleTip, snap.tip, tip)
	}

	if _, err := s.chain.Append(block, s.strategy.Difficulty(s.controller.State())); err != nil {
		return BlockSummary{}, err
	}

	// Transactions only leave the mempool when the tip moves, so an equal
	// count means the pool holds exactly the proposed transactions.
	if s.mempool.Count() == len(snap.trans) {
		s.mempool.Drain()
	} else {
		s.mempool.Remove(block.Trans)
	}

	s.strategy.Accepted(block)
	next := s.controller.Observe(tip.Header.TimeStamp, block.Header.TimeStamp, snap.load)

	s.evHandler("state: ProposeAndAppend: appended blk[%s]: trans[%d]: pending[%d]: next difficulty[%v]", block, len(block.Trans), s.mempool.Count(), s.strategy.Difficulty(next))
	s.blockEvent(block)

	return NewBlockSummary(block), nil
}

// blockEvent sends the appended block to the viewers.
func (s *State) blockEvent(block database.Block) {
	data, err := json.Marshal(NewBlockSummary(block))
	if err != nil {
		s.evHandler("state: blockEvent: ERROR: %s", err)
		return
	}

	s.evHandler("viewer: block: %s", string(data))
}
