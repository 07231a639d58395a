// Package state is the core API for the blockchain and implements all the
// business rules and processing.
package state

import (
	"errors"
	"math/rand/v2"
	"sync"

	"github.com/ardanlabs/chainengine/foundation/blockchain/consensus"
	"github.com/ardanlabs/chainengine/foundation/blockchain/database"
	"github.com/ardanlabs/chainengine/foundation/blockchain/difficulty"
	"github.com/ardanlabs/chainengine/foundation/blockchain/genesis"
	"github.com/ardanlabs/chainengine/foundation/blockchain/ledger"
	"github.com/ardanlabs/chainengine/foundation/blockchain/mempool"
	"github.com/lightningnetwork/lnd/clock"
)

// Set of error variables for the engine.
var (
	ErrEmptyMempool = errors.New("no transactions in mempool")
	ErrNotFound     = errors.New("not found")
	ErrStaleTip     = errors.New("tip changed while proposing")
)

// defaultMaxRetries is the number of times a proposal is retried when the
// tip moves during the search.
const defaultMaxRetries = 3

// =============================================================================

// EventHandler defines a function that is called when events
// occur in the processing of persisting blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for proposing blocks in the background.
type Worker interface {
	Shutdown()
	SignalStartProposing()
	SignalCancelProposing() (done func())
}

// =============================================================================

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	Genesis     genesis.Genesis     // Chain parameters.
	Storage     database.Serializer // Where the blocks are persisted.
	Consensus   string              // Strategy kind: poa, pov, pow or geo.
	Authority   string              // Identity presented for authority rotation when none is provided.
	MaxAttempts uint64              // Search budget per proposal, 0 is bounded by the context only.
	MaxRetries  int                 // Number of retries when the tip moves during a search.
	Rand        *rand.Rand          // Source for weighted selection, nil seeds from time.
	Clock       clock.Clock         // Source of timestamps, nil is the wall clock.
	EvHandler   EventHandler
}

// State manages the blockchain database.
type State struct {
	mu sync.RWMutex

	genesis     genesis.Genesis
	authority   string
	maxAttempts uint64
	maxRetries  int
	clock       clock.Clock
	evHandler   EventHandler

	chain      *database.Chain
	mempool    *mempool.Mempool
	strategy   consensus.Strategy
	controller *difficulty.Controller
	ledger     *ledger.Ledger

	Worker Worker
}

// New constructs a new blockchain for data management. Blocks already held
// by the storage are validated and become the chain, otherwise the genesis
// block is created.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewDefaultClock()
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	// Construct the strategy that decides who may append blocks.
	strategy, err := consensus.New(cfg.Consensus, consensus.Config{
		Authorities:      cfg.Genesis.Consensus.Authorities,
		ReputationWeight: cfg.Genesis.Consensus.ReputationWeight,
		DiversityFactor:  cfg.Genesis.Consensus.DiversityFactor,
		ReputationGain:   cfg.Genesis.Consensus.ReputationGain,
		Rand:             cfg.Rand,
		EvHandler:        consensus.EventHandler(ev),
	})
	if err != nil {
		return nil, err
	}

	// Load and validate any existing blocks from storage.
	chain, err := database.New(cfg.Storage, strategy, ev)
	if err != nil {
		return nil, err
	}

	if chain.Length() == 0 {
		if _, err := chain.Genesis(cfg.Genesis.Date); err != nil {
			return nil, err
		}
	}

	initial := difficulty.State{
		Level:           float64(cfg.Genesis.Difficulty),
		Threshold:       difficulty.ClampThreshold(cfg.Genesis.Consensus.MinValueThreshold),
		TargetBlockTime: cfg.Genesis.TargetBlockTime.Duration(),
	}
	if initial.Level < 1 {
		initial.Level = 1
	}

	// A reloaded chain picks up the difficulty recorded on its tip. That is
	// the difficulty the tip was built at, so the adjustment that followed
	// its append is applied again against its parent.
	tip, err := chain.Tip()
	if err != nil {
		return nil, err
	}
	if tip.Header.Number > 0 {
		switch strategy.Kind() {
		case consensus.KindValue:
			initial.Threshold = tip.Header.Difficulty
		default:
			initial.Level = tip.Header.Difficulty
		}
	}

	controller := difficulty.NewController(initial, strategy, ev)
	if tip.Header.Number > 0 {
		parent, err := chain.GetBlock(tip.Header.Number - 1)
		if err != nil {
			return nil, err
		}

		controller.Observe(parent.Header.TimeStamp, tip.Header.TimeStamp, difficulty.Load(len(tip.Trans), int(cfg.Genesis.TransPerBlock)))
	}

	mp := mempool.New()

	state := State{
		genesis:     cfg.Genesis,
		authority:   cfg.Authority,
		maxAttempts: cfg.MaxAttempts,
		maxRetries:  maxRetries,
		clock:       clk,
		evHandler:   ev,

		chain:      chain,
		mempool:    mp,
		strategy:   strategy,
		controller: controller,
		ledger:     ledger.New(chain, mp, ledger.EventHandler(ev)),
	}

	ev("state: New: consensus[%s]: blocks[%d]: tip[%s]", strategy.Kind(), chain.Length(), tip)

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the node.

	return &state, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	// Stop all blockchain writing activity.
	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	// Make sure the database file is properly closed.
	return s.chain.Close()
}

// Genesis returns a copy of the genesis information.
func (s *State) Genesis() genesis.Genesis {
	return s.genesis
}

// Strategy returns the consensus strategy in use.
func (s *State) Strategy() consensus.Strategy {
	return s.strategy
}
