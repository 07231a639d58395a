package consensus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ardanlabs/chainengine/foundation/blockchain/database"
	"github.com/ardanlabs/chainengine/foundation/blockchain/difficulty"
)

// PoA implements authority rotation. Only a member of a fixed set of
// authorities may propose a block and the proof is that identity.
type PoA struct {
	mu          sync.Mutex
	authorities []string
	set         map[string]struct{}
	pointer     int
	evHandler   EventHandler
}

// NewPoA constructs an authority rotation strategy. Duplicate identities
// are ignored and the rotation order is the order provided.
func NewPoA(authorities []string, evHandler EventHandler) (*PoA, error) {
	p := PoA{
		set:       make(map[string]struct{}),
		evHandler: evHandler,
	}

	for _, authority := range authorities {
		if authority == "" {
			continue
		}
		if _, exists := p.set[authority]; exists {
			continue
		}
		p.set[authority] = struct{}{}
		p.authorities = append(p.authorities, authority)
	}

	if len(p.authorities) == 0 {
		return nil, errors.New("authority rotation requires at least one authority")
	}

	return &p, nil
}

// Kind returns the kind of proof produced.
func (p *PoA) Kind() string {
	return KindAuthority
}

// Propose constructs the block signed by the authority presented in args.
// There is no search involved.
func (p *PoA) Propose(ctx context.Context, args ProposeArgs) (database.Block, error) {
	if err := ctx.Err(); err != nil {
		return database.Block{}, fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	if !p.IsAuthority(args.Authority) {
		return database.Block{}, fmt.Errorf("%w: %q", ErrNotAuthority, args.Authority)
	}

	block := newCandidate(args, p.Difficulty(args.Difficulty))
	block.Header.Proof = database.Proof{Kind: KindAuthority, Authority: args.Authority}
	block.Seal()

	p.evHandler("consensus: PoA: Propose: authority[%s]: newBlk[%s]", args.Authority, block)

	return block, nil
}

// ValidateProof checks the proof names a known authority.
func (p *PoA) ValidateProof(block database.Block) error {
	if err := checkKind(block, KindAuthority); err != nil {
		return err
	}

	if !p.IsAuthority(block.Header.Proof.Authority) {
		return fmt.Errorf("%w: %q", ErrNotAuthority, block.Header.Proof.Authority)
	}

	return nil
}

// IsAuthority reports whether the identity belongs to the authority set.
func (p *PoA) IsAuthority(identity string) bool {
	_, exists := p.set[identity]
	return exists
}

// Authorities returns a copy of the authority set in rotation order.
func (p *PoA) Authorities() []string {
	cpy := make([]string, len(p.authorities))
	copy(cpy, p.authorities)
	return cpy
}

// Current returns the authority the rotation pointer is on.
func (p *PoA) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.authorities[p.pointer]
}

// NextAuthority returns the current authority and moves the rotation
// pointer to the next one, wrapping at the end of the set.
func (p *PoA) NextAuthority() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	authority := p.authorities[p.pointer]
	p.pointer = (p.pointer + 1) % len(p.authorities)

	return authority
}

// Difficulty is not used by authority rotation, the level is recorded
// for information only.
func (p *PoA) Difficulty(state difficulty.State) float64 {
	return state.Level
}

// Adjust leaves the difficulty untouched.
func (p *PoA) Adjust(state difficulty.State, sample difficulty.Sample) difficulty.State {
	return state
}

// Accepted advances the rotation after a block is appended.
func (p *PoA) Accepted(block database.Block) {
	next := p.NextAuthority()
	p.evHandler("consensus: PoA: Accepted: blk[%d]: rotated from[%s]: current[%s]", block.Header.Number, next, p.Current())
}
