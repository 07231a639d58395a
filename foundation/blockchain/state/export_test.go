package state

import "github.com/ardanlabs/chainengine/foundation/blockchain/consensus"

// SetStrategy replaces the strategy used to propose blocks. The chain keeps
// validating with the strategy it was constructed with.
func (s *State) SetStrategy(strategy consensus.Strategy) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.strategy = strategy
}
