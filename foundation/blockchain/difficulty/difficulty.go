// Package difficulty adjusts the difficulty of block admission from the
// observed time between blocks or the observed proposal load.
package difficulty

import (
	"sync"
	"time"
)

// Bounds of the value threshold used by weighted value selection.
const (
	MinThreshold = 5.0
	MaxThreshold = 50.0
)

// Load marks used to adjust the value threshold.
const (
	highLoad = 0.8
	lowLoad  = 0.3
)

// State represents the difficulty in effect for the next block.
type State struct {
	Level           float64       `json:"level"`             // Search puzzle difficulty, never below 1 once adjusted.
	Threshold       float64       `json:"threshold"`         // Minimum value threshold for weighted selection.
	TargetBlockTime time.Duration `json:"target_block_time"` // Desired time between blocks.
}

// Sample is what was observed when a block was appended.
type Sample struct {
	Elapsed time.Duration // Time between the block and its predecessor.
	Load    float64       // Pending work relative to block capacity, in [0,1].
}

// Adjuster represents the behavior of a consensus strategy that decides how
// the difficulty changes after a block is appended.
type Adjuster interface {
	Adjust(state State, sample Sample) State
}

// =============================================================================

// ByTiming raises the level when blocks come in under half the target time
// and lowers it when they take more than twice the target time. The level
// never drops below 1.
func ByTiming(state State, elapsed time.Duration) State {
	target := state.TargetBlockTime

	switch {
	case elapsed < target/2:
		state.Level++
	case elapsed > target*2 && state.Level > 1:
		state.Level--
	}

	if state.Level < 1 {
		state.Level = 1
	}

	return state
}

// AdjustThreshold raises the threshold by 10% under high load and lowers it
// by 10% under low load, clamped to [MinThreshold, MaxThreshold].
func AdjustThreshold(threshold float64, load float64) float64 {
	switch {
	case load > highLoad:
		threshold *= 1.1
	case load < lowLoad:
		threshold *= 0.9
	}

	return ClampThreshold(threshold)
}

// ClampThreshold bounds the threshold to [MinThreshold, MaxThreshold].
func ClampThreshold(threshold float64) float64 {
	switch {
	case threshold < MinThreshold:
		return MinThreshold
	case threshold > MaxThreshold:
		return MaxThreshold
	}

	return threshold
}

// Load computes the load value for a number of pending items against
// the block capacity.
func Load(pending int, capacity int) float64 {
	if capacity <= 0 {
		return 1
	}

	load := float64(pending) / float64(capacity)
	if load > 1 {
		load = 1
	}

	return load
}

// =============================================================================

// Controller owns the difficulty state and applies the adjustment policy
// after each appended block.
type Controller struct {
	mu        sync.RWMutex
	state     State
	adjuster  Adjuster
	evHandler func(v string, args ...any)
}

// NewController constructs a controller with the initial state.
func NewController(initial State, adjuster Adjuster, evHandler func(v string, args ...any)) *Controller {
	ev := func(v string, args ...any) {
		if evHandler != nil {
			evHandler(v, args...)
		}
	}

	return &Controller{
		state:     initial,
		adjuster:  adjuster,
		evHandler: ev,
	}
}

// State returns the difficulty in effect for the next block.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.state
}

// Observe applies the adjustment policy for a block appended after prev.
// Timestamps are unix milliseconds; a block older than its parent counts as
// zero elapsed time.
func (c *Controller) Observe(prevTimeStamp uint64, blockTimeStamp uint64, load float64) State {
	var elapsed time.Duration
	if blockTimeStamp > prevTimeStamp {
		elapsed = time.Duration(blockTimeStamp-prevTimeStamp) * time.Millisecond
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.state
	c.state = c.adjuster.Adjust(c.state, Sample{Elapsed: elapsed, Load: load})

	c.evHandler("difficulty: Observe: elapsed[%v]: load[%.2f]: level[%v->%v]: threshold[%.2f->%.2f]", elapsed, load, prev.Level, c.state.Level, prev.Threshold, c.state.Threshold)

	return c.state
}
