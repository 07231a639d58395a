package consensus

import (
	"context"
	"fmt"

	"github.com/ardanlabs/chainengine/foundation/blockchain/database"
	"github.com/ardanlabs/chainengine/foundation/blockchain/difficulty"
	"github.com/ardanlabs/chainengine/foundation/blockchain/signature"
)

// PoW implements the hash puzzle. A block is admissible when its hash has at
// least difficulty leading hexadecimal zeros.
type PoW struct {
	evHandler EventHandler
}

// NewPoW constructs a hash puzzle strategy.
func NewPoW(evHandler EventHandler) *PoW {
	return &PoW{evHandler: evHandler}
}

// Kind returns the kind of proof produced.
func (p *PoW) Kind() string {
	return KindWork
}

// Propose constructs a block and increments the nonce until the hash solves
// the puzzle or the budget runs out.
func (p *PoW) Propose(ctx context.Context, args ProposeArgs) (database.Block, error) {
	p.evHandler("consensus: PoW: Propose: MINING: started")
	defer p.evHandler("consensus: PoW: Propose: MINING: completed")

	block := newCandidate(args, p.Difficulty(args.Difficulty))
	hasher := block.Hasher()

	var attempts uint64
	for nonce := uint64(0); ; nonce++ {
		if err := budgetExceeded(ctx, attempts, args.MaxAttempts); err != nil {
			p.evHandler("consensus: PoW: Propose: MINING: CANCELLED: attempts[%d]", attempts)
			return database.Block{}, err
		}
		attempts++

		if attempts%1_000_000 == 0 {
			p.evHandler("consensus: PoW: Propose: MINING: attempts[%d]", attempts)
		}

		hash := hasher(nonce)
		if !isHashSolved(block.Header.Difficulty, hash) {
			continue
		}

		block.Header.Nonce = nonce
		block.Header.Proof = database.Proof{Kind: KindWork, Hash: hash}
		block.Seal()

		p.evHandler("consensus: PoW: Propose: MINING: SOLVED: prevBlk[%s]: newBlk[%s]: attempts[%d]", block.Header.PrevBlockHash, hash, attempts)

		return block, nil
	}
}

// ValidateProof recomputes the hash and checks it against the puzzle.
func (p *PoW) ValidateProof(block database.Block) error {
	if err := checkKind(block, KindWork); err != nil {
		return err
	}

	if err := checkLevel(block); err != nil {
		return err
	}

	hash := block.Hash()
	if block.Header.Proof.Hash != hash {
		return fmt.Errorf("proof hash %s does not match block hash %s", block.Header.Proof.Hash, hash)
	}

	if !isHashSolved(block.Header.Difficulty, hash) {
		return fmt.Errorf("%s does not have %v leading zeros", hash, block.Header.Difficulty)
	}

	return nil
}

// Difficulty returns the level recorded on the block.
func (p *PoW) Difficulty(state difficulty.State) float64 {
	return state.Level
}

// Adjust applies the timing policy.
func (p *PoW) Adjust(state difficulty.State, sample difficulty.Sample) difficulty.State {
	return difficulty.ByTiming(state, sample.Elapsed)
}

// Accepted has nothing to do for the hash puzzle.
func (p *PoW) Accepted(block database.Block) {}

// =============================================================================

// isHashSolved checks the hash to make sure it complies with
// the POW rules. We need to match a difficulty number of 0's.
func isHashSolved(difficulty float64, hash string) bool {
	return float64(signature.LeadingZeros(hash)) >= difficulty
}
