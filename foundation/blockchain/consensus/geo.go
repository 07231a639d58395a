package consensus

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/ardanlabs/chainengine/foundation/blockchain/database"
	"github.com/ardanlabs/chainengine/foundation/blockchain/difficulty"
	"github.com/ardanlabs/chainengine/foundation/blockchain/signature"
)

// Dimensions is the number of coordinates a hash is mapped to.
const Dimensions = 8

// MaxDistance is the distance from the hypercube center to any corner.
var MaxDistance = math.Sqrt(Dimensions * 0.5 * 0.5)

// Center returns the hypercube center, every coordinate set to 0.5.
func Center() []float64 {
	center := make([]float64, Dimensions)
	for i := range center {
		center[i] = 0.5
	}
	return center
}

// Coordinates maps a hash to a point in the unit hypercube. The hex digest
// is sliced into equal chunks and each chunk is normalized by the largest
// value a chunk of that size can hold.
func Coordinates(hash string) ([]float64, error) {
	digest := signature.Digest(hash)

	size := len(digest) / Dimensions
	if size == 0 || size > 16 {
		return nil, fmt.Errorf("hash %q can't be split into %d chunks", hash, Dimensions)
	}

	maxChunk := math.Pow(16, float64(size)) - 1

	point := make([]float64, Dimensions)
	for i := range point {
		chunk := digest[i*size : (i+1)*size]

		v, err := strconv.ParseUint(chunk, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing chunk %d: %w", i, err)
		}

		point[i] = float64(v) / maxChunk
	}

	return point, nil
}

// Distance returns the euclidean distance between two points.
func Distance(a []float64, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Target returns the distance from the center a point must be under. It
// halves for every 4 levels of difficulty.
func Target(level float64) float64 {
	return MaxDistance * math.Pow(0.5, level/4)
}

// Admissible reports whether the point is close enough to the center for
// the difficulty level. Level 0 and below admit a point sitting exactly on
// the target, every other level needs it strictly inside.
func Admissible(point []float64, level float64) bool {
	distance := Distance(point, Center())
	if level <= 0 {
		return distance <= Target(level)
	}
	return distance < Target(level)
}

// =============================================================================

// Geo implements the geometric distance puzzle. A block is admissible when
// its hash maps to a point close enough to the hypercube center.
type Geo struct {
	evHandler EventHandler
}

// NewGeo constructs a geometric distance puzzle strategy.
func NewGeo(evHandler EventHandler) *Geo {
	return &Geo{evHandler: evHandler}
}

// Kind returns the kind of proof produced.
func (g *Geo) Kind() string {
	return KindGeometric
}

// Propose constructs a block and searches nonces until the hash maps to an
// admissible point or the budget runs out.
func (g *Geo) Propose(ctx context.Context, args ProposeArgs) (database.Block, error) {
	g.evHandler("consensus: Geo: Propose: SEARCH: started: target[%f]", Target(args.Difficulty.Level))
	defer g.evHandler("consensus: Geo: Propose: SEARCH: completed")

	block := newCandidate(args, g.Difficulty(args.Difficulty))
	hasher := block.Hasher()

	var attempts uint64
	for nonce := uint64(0); ; nonce++ {
		if err := budgetExceeded(ctx, attempts, args.MaxAttempts); err != nil {
			g.evHandler("consensus: Geo: Propose: SEARCH: CANCELLED: attempts[%d]", attempts)
			return database.Block{}, err
		}
		attempts++

		hash := hasher(nonce)
		point, err := Coordinates(hash)
		if err != nil {
			return database.Block{}, err
		}

		if !Admissible(point, block.Header.Difficulty) {
			continue
		}

		block.Header.Nonce = nonce
		block.Header.Proof = database.Proof{Kind: KindGeometric, Hash: hash, Coordinates: point}
		block.Seal()

		g.evHandler("consensus: Geo: Propose: SEARCH: SOLVED: newBlk[%s]: distance[%f]: attempts[%d]", hash, Distance(point, Center()), attempts)

		return block, nil
	}
}

// ValidateProof recomputes the point from the block hash and checks the
// distance to the center.
func (g *Geo) ValidateProof(block database.Block) error {
	if err := checkKind(block, KindGeometric); err != nil {
		return err
	}

	if err := checkLevel(block); err != nil {
		return err
	}

	hash := block.Hash()
	if block.Header.Proof.Hash != hash {
		return fmt.Errorf("proof hash %s does not match block hash %s", block.Header.Proof.Hash, hash)
	}

	point, err := Coordinates(hash)
	if err != nil {
		return err
	}

	recorded := block.Header.Proof.Coordinates
	if len(recorded) != Dimensions {
		return fmt.Errorf("proof has %d coordinates", len(recorded))
	}

	for i := range point {
		if math.Abs(point[i]-recorded[i]) > 1e-12 {
			return fmt.Errorf("coordinate %d recorded %f, computed %f", i, recorded[i], point[i])
		}
	}

	if !Admissible(point, block.Header.Difficulty) {
		return fmt.Errorf("distance %f is not under target %f", Distance(point, Center()), Target(block.Header.Difficulty))
	}

	return nil
}

// Difficulty returns the level recorded on the block.
func (g *Geo) Difficulty(state difficulty.State) float64 {
	return state.Level
}

// Adjust applies the timing policy.
func (g *Geo) Adjust(state difficulty.State, sample difficulty.Sample) difficulty.State {
	return difficulty.ByTiming(state, sample.Elapsed)
}

// Accepted has nothing to do for the geometric puzzle.
func (g *Geo) Accepted(block database.Block) {}
