// Package consensus provides the strategies that decide if a block may be
// appended to the chain and, where it applies, construct the proof for it.
package consensus

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/ardanlabs/chainengine/foundation/blockchain/database"
	"github.com/ardanlabs/chainengine/foundation/blockchain/difficulty"
)

// Set of error variables for proposing blocks.
var (
	ErrNotFound         = errors.New("no admissible block found within budget")
	ErrNoEligibleWinner = errors.New("no eligible winner")
	ErrNotAuthority     = errors.New("not an authority")
)

// List of the different strategies.
const (
	KindAuthority = database.ProofAuthority
	KindValue     = database.ProofValue
	KindWork      = database.ProofWork
	KindGeometric = database.ProofGeometric
)

// EventHandler defines a function that is called when events
// occur in the processing of proposing blocks.
type EventHandler func(v string, args ...any)

// =============================================================================

// ProposeArgs represents everything a strategy needs to construct the next
// block. The values are a snapshot; the strategy never touches the chain or
// the mempool.
type ProposeArgs struct {
	PrevBlock   database.Block   // The tip the block will follow.
	Trans       []database.Tx    // Transactions to include in order.
	Difficulty  difficulty.State // Difficulty in effect for this block.
	TimeStamp   time.Time        // Creation time of the block.
	Authority   string           // Identity presented by the caller for authority rotation.
	Solutions   []Solution       // Candidate solutions for weighted value selection.
	MaxAttempts uint64           // Iteration budget for the search puzzles, 0 is unbounded.
}

// Strategy represents the behavior required by the engine from any
// consensus algorithm.
type Strategy interface {
	Kind() string
	Propose(ctx context.Context, args ProposeArgs) (database.Block, error)
	ValidateProof(block database.Block) error
	Difficulty(state difficulty.State) float64
	Adjust(state difficulty.State, sample difficulty.Sample) difficulty.State
	Accepted(block database.Block)
}

// Config represents the parameters used to construct a strategy.
type Config struct {
	Authorities      []string
	ReputationWeight float64
	DiversityFactor  float64
	ReputationGain   float64
	Rand             *rand.Rand
	EvHandler        EventHandler
}

// New constructs the strategy of the specified kind.
func New(kind string, cfg Config) (Strategy, error) {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	switch kind {
	case KindAuthority:
		return NewPoA(cfg.Authorities, ev)

	case KindValue:
		return NewPoV(cfg, ev), nil

	case KindWork:
		return NewPoW(ev), nil

	case KindGeometric:
		return NewGeo(ev), nil
	}

	return nil, fmt.Errorf("strategy %q does not exist", kind)
}

// =============================================================================

// newCandidate constructs the unsealed block that follows the previous block.
func newCandidate(args ProposeArgs, recorded float64) database.Block {
	block := database.NewBlock(
		args.PrevBlock.Header.Number+1,
		uint64(args.TimeStamp.UTC().UnixMilli()),
		args.Trans,
		args.PrevBlock.SealedHash(),
	)
	block.Header.Difficulty = recorded

	return block
}

// checkKind validates the proof was produced by the expected strategy.
func checkKind(block database.Block, kind string) error {
	if block.Header.Proof.Kind != kind {
		return fmt.Errorf("proof kind %q, expected %q", block.Header.Proof.Kind, kind)
	}
	return nil
}

// checkLevel validates the level recorded on a search puzzle block.
func checkLevel(block database.Block) error {
	if !(block.Header.Difficulty >= 1) {
		return fmt.Errorf("recorded level %v is below 1", block.Header.Difficulty)
	}
	return nil
}

// budgetExceeded reports whether the search loop must stop.
func budgetExceeded(ctx context.Context, attempts uint64, maxAttempts uint64) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: attempts[%d]: %w", ErrNotFound, attempts, err)
	}

	if maxAttempts > 0 && attempts >= maxAttempts {
		return fmt.Errorf("%w: attempts[%d]", ErrNotFound, attempts)
	}

	return nil
}
