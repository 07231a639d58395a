package difficulty_test

import (
	"testing"
	"time"

	"github.com/ardanlabs/chainengine/foundation/blockchain/difficulty"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type timing struct{}

func (timing) Adjust(state difficulty.State, sample difficulty.Sample) difficulty.State {
	return difficulty.ByTiming(state, sample.Elapsed)
}

func TestByTiming(t *testing.T) {
	target := 10 * time.Second

	tt := []struct {
		name    string
		level   float64
		elapsed time.Duration
		exp     float64
	}{
		{"fast", 3, 4 * time.Second, 4},
		{"half is not fast", 3, 5 * time.Second, 3},
		{"on target", 3, 10 * time.Second, 3},
		{"double is not slow", 3, 20 * time.Second, 3},
		{"slow", 3, 21 * time.Second, 2},
		{"slow at floor", 1, time.Hour, 1},
	}

	for _, tst := range tt {
		t.Run(tst.name, func(t *testing.T) {
			state := difficulty.ByTiming(difficulty.State{Level: tst.level, TargetBlockTime: target}, tst.elapsed)
			require.Equal(t, tst.exp, state.Level)
		})
	}
}

func TestLevelNeverBelowOne(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctl := difficulty.NewController(difficulty.State{
			Level:           float64(rapid.IntRange(1, 10).Draw(rt, "level")),
			TargetBlockTime: time.Second,
		}, timing{}, nil)

		var ts uint64
		steps := rapid.IntRange(1, 100).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			gap := uint64(rapid.IntRange(0, 10_000).Draw(rt, "gap"))
			state := ctl.Observe(ts, ts+gap, 0)
			ts += gap

			if state.Level < 1 {
				rt.Fatalf("level dropped below 1: %v", state.Level)
			}
		}
	})
}

func TestConsecutiveSlowBlocks(t *testing.T) {
	ctl := difficulty.NewController(difficulty.State{Level: 3, TargetBlockTime: time.Second}, timing{}, nil)

	var ts uint64
	for i := 0; i < 50; i++ {
		ctl.Observe(ts, ts+60_000, 0)
		ts += 60_000
	}

	require.Equal(t, float64(1), ctl.State().Level)
}

func TestAdjustThreshold(t *testing.T) {
	require.InDelta(t, 11.0, difficulty.AdjustThreshold(10, 0.9), 1e-9)
	require.InDelta(t, 9.0, difficulty.AdjustThreshold(10, 0.1), 1e-9)
	require.InDelta(t, 10.0, difficulty.AdjustThreshold(10, 0.5), 1e-9)
	require.Equal(t, difficulty.MaxThreshold, difficulty.AdjustThreshold(49, 1))
	require.Equal(t, difficulty.MinThreshold, difficulty.AdjustThreshold(5.2, 0))
}

func TestLoad(t *testing.T) {
	require.Equal(t, 0.5, difficulty.Load(5, 10))
	require.Equal(t, 1.0, difficulty.Load(50, 10))
	require.Equal(t, 1.0, difficulty.Load(1, 0))
}
