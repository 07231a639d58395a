package consensus

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/ardanlabs/chainengine/foundation/blockchain/database"
	"github.com/ardanlabs/chainengine/foundation/blockchain/difficulty"
)

// topCandidates is the number of best scored candidates entering the
// weighted draw.
const topCandidates = 10

// Solution is a pending piece of work competing for the next block. Values
// holds the multi-dimensional value vector of the solution.
type Solution struct {
	Solver      string             `json:"solver"`
	Values      map[string]float64 `json:"values"`
	Originality float64            `json:"originality"`
}

// TotalValue returns the sum of the value vector.
func (s Solution) TotalValue() float64 {
	var total float64
	for _, v := range s.Values {
		total += v
	}
	return total
}

// Candidate is a solution that passed the threshold with its score.
type Candidate struct {
	Solution   Solution
	Value      float64
	Reputation float64
	Score      float64
}

// =============================================================================

// PoV implements weighted value selection. The winner of a block is drawn at
// random among the best scored solutions, weighted by score, so a single
// solver can't take every block.
type PoV struct {
	mu               sync.Mutex
	reputationWeight float64
	diversityFactor  float64
	reputationGain   float64
	reputation       map[string]float64
	rnd              *rand.Rand
	evHandler        EventHandler
}

// NewPoV constructs a weighted value selection strategy.
func NewPoV(cfg Config, evHandler EventHandler) *PoV {
	rnd := cfg.Rand
	if rnd == nil {
		seed := uint64(time.Now().UnixNano())
		rnd = rand.New(rand.NewPCG(seed, seed>>1))
	}

	return &PoV{
		reputationWeight: cfg.ReputationWeight,
		diversityFactor:  cfg.DiversityFactor,
		reputationGain:   cfg.ReputationGain,
		reputation:       make(map[string]float64),
		rnd:              rnd,
		evHandler:        evHandler,
	}
}

// Kind returns the kind of proof produced.
func (p *PoV) Kind() string {
	return KindValue
}

// Score computes the score of a solution from its total value, the solver's
// reputation and the originality of the solution.
func (p *PoV) Score(value float64, reputation float64, originality float64) float64 {
	return math.Log1p(value) * (1 + reputation*p.reputationWeight) * (1 + originality*p.diversityFactor)
}

// Reputation returns the current reputation of the solver.
func (p *PoV) Reputation(solver string) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.reputation[solver]
}

// Select picks the winner among the solutions whose total value meets the
// threshold.
func (p *PoV) Select(solutions []Solution, threshold float64) (Candidate, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var candidates []Candidate
	for _, sol := range solutions {
		if sol.Solver == "" {
			continue
		}

		value := sol.TotalValue()
		if value < threshold {
			continue
		}

		reputation := p.reputation[sol.Solver]
		score := p.Score(value, reputation, sol.Originality)
		if score <= 0 || math.IsNaN(score) || math.IsInf(score, 0) {
			continue
		}

		candidates = append(candidates, Candidate{
			Solution:   sol,
			Value:      value,
			Reputation: reputation,
			Score:      score,
		})
	}

	if len(candidates) == 0 {
		return Candidate{}, fmt.Errorf("%w: %d solutions, threshold %.2f", ErrNoEligibleWinner, len(solutions), threshold)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > topCandidates {
		candidates = candidates[:topCandidates]
	}

	var total float64
	for _, c := range candidates {
		total += c.Score
	}

	draw := p.rnd.Float64()
	var cumulative float64
	for _, c := range candidates {
		cumulative += c.Score / total
		if draw < cumulative {
			return c, nil
		}
	}

	return candidates[len(candidates)-1], nil
}

// Propose selects the winning solution and records it as the proof of
// the block.
func (p *PoV) Propose(ctx context.Context, args ProposeArgs) (database.Block, error) {
	if err := ctx.Err(); err != nil {
		return database.Block{}, fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	winner, err := p.Select(args.Solutions, args.Difficulty.Threshold)
	if err != nil {
		return database.Block{}, err
	}

	block := newCandidate(args, p.Difficulty(args.Difficulty))
	block.Header.Proof = database.Proof{
		Kind:        KindValue,
		Solver:      winner.Solution.Solver,
		Score:       winner.Score,
		Value:       winner.Value,
		Reputation:  winner.Reputation,
		Originality: winner.Solution.Originality,
	}
	block.Seal()

	p.evHandler("consensus: PoV: Propose: solver[%s]: score[%f]: value[%f]: newBlk[%s]", winner.Solution.Solver, winner.Score, winner.Value, block)

	return block, nil
}

// ValidateProof checks the winning value met the recorded threshold and the
// recorded score matches the recorded inputs.
func (p *PoV) ValidateProof(block database.Block) error {
	if err := checkKind(block, KindValue); err != nil {
		return err
	}

	if !(block.Header.Difficulty >= difficulty.MinThreshold) {
		return fmt.Errorf("recorded threshold %v is below %v", block.Header.Difficulty, difficulty.MinThreshold)
	}

	proof := block.Header.Proof

	if proof.Solver == "" {
		return fmt.Errorf("%w: proof has no solver", ErrNoEligibleWinner)
	}

	if proof.Value < block.Header.Difficulty {
		return fmt.Errorf("value %f is below threshold %f", proof.Value, block.Header.Difficulty)
	}

	score := p.Score(proof.Value, proof.Reputation, proof.Originality)
	if math.Abs(score-proof.Score) > 1e-9 {
		return fmt.Errorf("score recorded %f, computed %f", proof.Score, score)
	}

	return nil
}

// Difficulty returns the value threshold recorded on the block.
func (p *PoV) Difficulty(state difficulty.State) float64 {
	return state.Threshold
}

// Adjust applies the load policy to the value threshold.
func (p *PoV) Adjust(state difficulty.State, sample difficulty.Sample) difficulty.State {
	state.Threshold = difficulty.AdjustThreshold(state.Threshold, sample.Load)
	return state
}

// Accepted raises the reputation of the solver who won the block.
func (p *PoV) Accepted(block database.Block) {
	p.mu.Lock()
	defer p.mu.Unlock()

	solver := block.Header.Proof.Solver
	p.reputation[solver] = math.Min(1, p.reputation[solver]+p.reputationGain)
}
