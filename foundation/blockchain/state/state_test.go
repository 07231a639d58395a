package state_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ardanlabs/chainengine/foundation/blockchain/consensus"
	"github.com/ardanlabs/chainengine/foundation/blockchain/database"
	"github.com/ardanlabs/chainengine/foundation/blockchain/genesis"
	"github.com/ardanlabs/chainengine/foundation/blockchain/state"
	"github.com/ardanlabs/chainengine/foundation/blockchain/storage/disk"
	"github.com/ardanlabs/chainengine/foundation/blockchain/storage/memory"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

type fixture struct {
	state *state.State
	clock *clock.TestClock
	gen   genesis.Genesis
}

func newFixture(t *testing.T, kind string, storage database.Serializer, mutate func(*genesis.Genesis), opts ...func(*state.Config)) *fixture {
	gen := genesis.Default()
	gen.Consensus.Authorities = []string{"auth1", "auth2"}
	if mutate != nil {
		mutate(&gen)
	}

	clk := clock.NewTestClock(gen.Date)

	cfg := state.Config{
		Genesis:     gen,
		Storage:     storage,
		Consensus:   kind,
		Authority:   "auth1",
		MaxAttempts: 200_000,
		Rand:        rand.New(rand.NewPCG(1, 2)),
		Clock:       clk,
		EvHandler:   func(v string, args ...any) { t.Logf(v, args...) },
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	st, err := state.New(cfg)
	require.NoError(t, err)

	return &fixture{state: st, clock: clk, gen: gen}
}

// tick moves the clock forward one target block time so the timing policy
// leaves the difficulty alone.
func (f *fixture) tick() {
	f.clock.SetTime(f.clock.Now().Add(f.gen.TargetBlockTime.Duration()))
}

func (f *fixture) submit(t *testing.T, from string, to string, value int64) string {
	f.tick()
	id, err := f.state.SubmitTransaction(from, to, decimal.NewFromInt(value), nil)
	require.NoError(t, err)
	return id
}

func (f *fixture) propose(t *testing.T, args state.ProposeArgs) state.BlockSummary {
	f.tick()
	summary, err := f.state.ProposeAndAppend(context.Background(), args)
	require.NoError(t, err)
	return summary
}

func requireBalance(t *testing.T, st *state.State, address string, exp int64) {
	got, err := st.QueryBalance(address)
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.NewFromInt(exp)), "%s: got %s, exp %d", address, got, exp)
}

func TestEndToEnd(t *testing.T) {
	t.Log("Given the need to move value between accounts.")
	{
		t.Logf("\tTest 0:\tWhen A sends B 50 and B sends C 25 with the hash puzzle.")
		{
			f := newFixture(t, consensus.KindWork, memory.New(), nil)

			f.submit(t, "A", "B", 50)
			block := f.propose(t, state.ProposeArgs{})
			if block.Index != 1 || len(block.Trans) != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould append block 1 with one transaction: %+v", failed, block)
			}
			t.Logf("\t%s\tTest 0:\tShould append block 1 with one transaction.", success)

			f.submit(t, "B", "C", 25)
			block = f.propose(t, state.ProposeArgs{})
			if block.Index != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould append block 2, got %d.", failed, block.Index)
			}
			t.Logf("\t%s\tTest 0:\tShould append block 2.", success)

			requireBalance(t, f.state, "A", -50)
			requireBalance(t, f.state, "B", 25)
			requireBalance(t, f.state, "C", 25)
			t.Logf("\t%s\tTest 0:\tShould have balances of -50, 25 and 25.", success)

			if v := f.state.ValidateChain(); !v.Valid {
				t.Fatalf("\t%s\tTest 0:\tShould have a valid chain: %+v", failed, v)
			}
			t.Logf("\t%s\tTest 0:\tShould have a valid chain.", success)

			status := f.state.QueryStatus()
			if status.ChainLength != 3 || status.PendingCount != 0 || status.ConsensusKind != consensus.KindWork {
				t.Fatalf("\t%s\tTest 0:\tShould report the status: %+v", failed, status)
			}
			t.Logf("\t%s\tTest 0:\tShould report the status.", success)

			chain, err := f.state.QueryChain()
			if err != nil || len(chain) != 3 {
				t.Fatalf("\t%s\tTest 0:\tShould return the whole chain: %d: %v", failed, len(chain), err)
			}
			for i := 1; i < len(chain); i++ {
				if chain[i].PreviousHash != chain[i-1].Hash {
					t.Fatalf("\t%s\tTest 0:\tShould link block %d to its predecessor.", failed, i)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould return the whole chain linked.", success)
		}
	}
}

func TestStrategies(t *testing.T) {
	solutions := []consensus.Solution{
		{Solver: "alice", Values: map[string]float64{"compute": 30}, Originality: 0.5},
		{Solver: "bob", Values: map[string]float64{"compute": 20, "storage": 5}, Originality: 0.2},
	}

	tt := []struct {
		kind string
		args state.ProposeArgs
	}{
		{consensus.KindAuthority, state.ProposeArgs{}},
		{consensus.KindAuthority, state.ProposeArgs{Authority: "auth2"}},
		{consensus.KindValue, state.ProposeArgs{Solutions: solutions}},
		{consensus.KindWork, state.ProposeArgs{}},
		{consensus.KindGeometric, state.ProposeArgs{}},
	}

	for i, tst := range tt {
		t.Run(fmt.Sprintf("%s-%d", tst.kind, i), func(t *testing.T) {
			f := newFixture(t, tst.kind, memory.New(), nil)

			for range 3 {
				f.submit(t, "A", "B", 10)
				block := f.propose(t, tst.args)
				require.Equal(t, tst.kind, block.Proof.Kind)
			}

			require.True(t, f.state.ValidateChain().Valid)
			require.Equal(t, uint64(4), f.state.QueryStatus().ChainLength)
			requireBalance(t, f.state, "B", 30)
		})
	}
}

func TestProposeFailures(t *testing.T) {
	t.Log("Given the need to leave the engine untouched on a failed proposal.")
	{
		t.Logf("\tTest 0:\tWhen the mempool is empty.")
		{
			f := newFixture(t, consensus.KindWork, memory.New(), nil)

			if _, err := f.state.ProposeAndAppend(context.Background(), state.ProposeArgs{}); !errors.Is(err, state.ErrEmptyMempool) {
				t.Fatalf("\t%s\tTest 0:\tShould report an empty mempool: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould report an empty mempool.", success)
		}

		tt := []struct {
			name   string
			kind   string
			args   state.ProposeArgs
			mutate func(*genesis.Genesis)
			exp    error
		}{
			{"unknown authority", consensus.KindAuthority, state.ProposeArgs{Authority: "mallory"}, nil, consensus.ErrNotAuthority},
			{"no eligible winner", consensus.KindValue, state.ProposeArgs{Solutions: []consensus.Solution{{Solver: "alice", Values: map[string]float64{"compute": 1}}}}, nil, consensus.ErrNoEligibleWinner},
			{"budget exhausted", consensus.KindWork, state.ProposeArgs{}, func(g *genesis.Genesis) { g.Difficulty = 60 }, state.ErrNotFound},
		}

		for i, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling %s.", i+1, tst.name)
			{
				f := newFixture(t, tst.kind, memory.New(), tst.mutate)
				f.submit(t, "A", "B", 10)

				if _, err := f.state.ProposeAndAppend(context.Background(), tst.args); !errors.Is(err, tst.exp) {
					t.Fatalf("\t%s\tTest %d:\tShould fail with %v: %v", failed, i+1, tst.exp, err)
				}
				t.Logf("\t%s\tTest %d:\tShould fail with %v.", success, i+1, tst.exp)

				status := f.state.QueryStatus()
				if status.ChainLength != 1 || status.PendingCount != 1 {
					t.Fatalf("\t%s\tTest %d:\tShould leave chain and mempool untouched: %+v", failed, i+1, status)
				}
				t.Logf("\t%s\tTest %d:\tShould leave chain and mempool untouched.", success, i+1)
			}
		}
	}
}

func TestCancelledProposal(t *testing.T) {
	f := newFixture(t, consensus.KindWork, memory.New(), func(g *genesis.Genesis) { g.Difficulty = 60 })
	f.submit(t, "A", "B", 10)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.state.ProposeAndAppend(ctx, state.ProposeArgs{})
	require.ErrorIs(t, err, state.ErrNotFound)
	require.Equal(t, 1, f.state.QueryMempoolLength())
}

func TestDifficultyAdjusts(t *testing.T) {
	f := newFixture(t, consensus.KindWork, memory.New(), nil)
	require.Equal(t, 1.0, f.state.QueryStatus().Level)

	_, err := f.state.SubmitTransaction("A", "B", decimal.NewFromInt(1), nil)
	require.NoError(t, err)

	// Far beyond twice the target from genesis, the level is already at
	// the floor.
	f.clock.SetTime(f.gen.Date.Add(time.Hour))
	_, err = f.state.ProposeAndAppend(context.Background(), state.ProposeArgs{})
	require.NoError(t, err)
	require.Equal(t, 1.0, f.state.QueryStatus().Level)

	_, err = f.state.SubmitTransaction("A", "B", decimal.NewFromInt(2), nil)
	require.NoError(t, err)

	// A block under half the target raises the level.
	f.clock.SetTime(f.clock.Now().Add(time.Second))
	block, err := f.state.ProposeAndAppend(context.Background(), state.ProposeArgs{})
	require.NoError(t, err)
	require.Equal(t, 1.0, block.Difficulty)
	require.Equal(t, 2.0, f.state.QueryStatus().Level)
}

func TestQueryBlock(t *testing.T) {
	f := newFixture(t, consensus.KindAuthority, memory.New(), nil)

	genesisBlock, err := f.state.QueryBlock(0)
	require.NoError(t, err)
	require.Equal(t, database.ProofGenesis, genesisBlock.Proof.Kind)

	_, err = f.state.QueryBlock(7)
	require.ErrorIs(t, err, state.ErrNotFound)
}

func TestTamperOnDisk(t *testing.T) {
	t.Log("Given the need to detect a changed block on disk.")
	{
		t.Logf("\tTest 0:\tWhen the amount of a stored transaction is edited.")
		{
			dir := t.TempDir()

			storage, err := disk.New(dir)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to open storage: %v", failed, err)
			}

			f := newFixture(t, consensus.KindWork, storage, nil)
			f.submit(t, "A", "B", 50)
			f.propose(t, state.ProposeArgs{})
			f.submit(t, "B", "C", 25)
			f.propose(t, state.ProposeArgs{})

			if v := f.state.ValidateChain(); !v.Valid {
				t.Fatalf("\t%s\tTest 0:\tShould start with a valid chain: %+v", failed, v)
			}
			t.Logf("\t%s\tTest 0:\tShould start with a valid chain.", success)

			path := storage.Path(1)
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to read block 1: %v", failed, err)
			}

			tampered := bytes.Replace(data, []byte(`"amount": "50"`), []byte(`"amount": "51"`), 1)
			if bytes.Equal(data, tampered) {
				t.Fatalf("\t%s\tTest 0:\tShould find the amount in block 1.", failed)
			}
			if err := os.WriteFile(path, tampered, 0600); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to write block 1: %v", failed, err)
			}

			v := f.state.ValidateChain()
			if v.Valid || v.FirstInvalidIndex != 1 || v.Reason == "" {
				t.Fatalf("\t%s\tTest 0:\tShould report block 1 as the first invalid block: %+v", failed, v)
			}
			t.Logf("\t%s\tTest 0:\tShould report block 1 as the first invalid block.", success)

			reopened, err := disk.New(dir)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to reopen storage: %v", failed, err)
			}
			if _, err := state.New(state.Config{Genesis: f.gen, Storage: reopened, Consensus: consensus.KindWork}); err == nil {
				t.Fatalf("\t%s\tTest 0:\tShould refuse to load a tampered chain.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould refuse to load a tampered chain.", success)
		}
	}
}

func TestReload(t *testing.T) {
	dir := t.TempDir()

	storage, err := disk.New(dir)
	require.NoError(t, err)

	f := newFixture(t, consensus.KindWork, storage, nil)
	f.submit(t, "A", "B", 50)
	tip := f.propose(t, state.ProposeArgs{})
	require.NoError(t, f.state.Shutdown())

	reopened, err := disk.New(dir)
	require.NoError(t, err)

	g := newFixture(t, consensus.KindWork, reopened, nil)

	latest, err := g.state.QueryLatestBlock()
	require.NoError(t, err)
	require.Equal(t, tip.Hash, latest.Hash)
	requireBalance(t, g.state, "B", 50)
}

func TestReloadDifficulty(t *testing.T) {
	for _, kind := range []string{consensus.KindWork, consensus.KindValue} {
		t.Run(kind, func(t *testing.T) {
			dir := t.TempDir()

			storage, err := disk.New(dir)
			require.NoError(t, err)

			f := newFixture(t, kind, storage, nil)
			args := state.ProposeArgs{Solutions: []consensus.Solution{
				{Solver: "alice", Values: map[string]float64{"compute": 40}, Originality: 0.5},
			}}

			// The second block lands well under half the target time, so
			// the difficulty after it differs from the one it records.
			_, err = f.state.SubmitTransaction("A", "B", decimal.NewFromInt(1), nil)
			require.NoError(t, err)
			f.clock.SetTime(f.gen.Date.Add(time.Hour))
			_, err = f.state.ProposeAndAppend(context.Background(), args)
			require.NoError(t, err)

			_, err = f.state.SubmitTransaction("A", "B", decimal.NewFromInt(2), nil)
			require.NoError(t, err)
			f.clock.SetTime(f.clock.Now().Add(time.Second))
			tip, err := f.state.ProposeAndAppend(context.Background(), args)
			require.NoError(t, err)

			before := f.state.QueryStatus()
			require.NotEqual(t, tip.Difficulty, before.Difficulty)
			require.NoError(t, f.state.Shutdown())

			reopened, err := disk.New(dir)
			require.NoError(t, err)

			g := newFixture(t, kind, reopened, nil)

			after := g.state.QueryStatus()
			require.Equal(t, before.Difficulty, after.Difficulty)
			require.Equal(t, before.Level, after.Level)
			require.InDelta(t, before.Threshold, after.Threshold, 1e-9)

			// The restarted node keeps building at the difficulty in effect.
			g.clock.SetTime(time.UnixMilli(int64(tip.TimeStamp)))
			g.submit(t, "B", "C", 1)
			block := g.propose(t, args)
			require.Equal(t, after.Difficulty, block.Difficulty)
			require.True(t, g.state.ValidateChain().Valid)
		})
	}
}

func TestConcurrentProposals(t *testing.T) {
	const proposers = 3
	const proposals = 5

	// A retry only happens after another proposal landed, so a call can't
	// see more stale tips than there are proposals.
	f := newFixture(t, consensus.KindAuthority, memory.New(), nil, func(cfg *state.Config) {
		cfg.MaxRetries = proposers * proposals
	})

	const submitters = 4
	const perSubmitter = 10

	var wg sync.WaitGroup
	for i := range submitters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range perSubmitter {
				_, err := f.state.SubmitTransaction(fmt.Sprintf("S%d", i), "R", decimal.NewFromInt(int64(j+1)), map[string]string{"n": fmt.Sprint(j)})
				if err != nil {
					t.Errorf("submit: %v", err)
				}
			}
		}()
	}

	for range proposers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range proposals {
				_, err := f.state.ProposeAndAppend(context.Background(), state.ProposeArgs{})
				switch {
				case err == nil:
				case errors.Is(err, state.ErrEmptyMempool):
				default:
					t.Errorf("propose: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	require.True(t, f.state.ValidateChain().Valid)

	chain, err := f.state.QueryChain()
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, block := range chain {
		for _, tx := range block.Trans {
			require.False(t, seen[tx.ID], "transaction %s confirmed twice", tx.ID)
			seen[tx.ID] = true
		}
	}
	for _, tx := range f.state.QueryMempool() {
		require.False(t, seen[tx.ID], "transaction %s pending and confirmed", tx.ID)
		seen[tx.ID] = true
	}

	require.Len(t, seen, submitters*perSubmitter)

	requireBalance(t, f.state, "R", func() int64 {
		var sum int64
		for range submitters {
			sum += perSubmitter * (perSubmitter + 1) / 2
		}
		return sum
	}())
}

// tipMover appends a competing block the first time it is asked to propose,
// so the proposal in flight is built on a tip that is no longer current.
type tipMover struct {
	consensus.Strategy
	move func()
}

func (m *tipMover) Propose(ctx context.Context, args consensus.ProposeArgs) (database.Block, error) {
	if move := m.move; move != nil {
		m.move = nil
		move()
	}
	return m.Strategy.Propose(ctx, args)
}

func TestStaleTipRetry(t *testing.T) {
	t.Log("Given the need to retry a proposal when the tip moves during the search.")
	{
		t.Logf("\tTest 0:\tWhen another block is appended while proposing.")
		{
			f := newFixture(t, consensus.KindAuthority, memory.New(), nil)

			first := f.submit(t, "A", "B", 10)

			var second string
			var competing state.BlockSummary
			f.state.SetStrategy(&tipMover{
				Strategy: f.state.Strategy(),
				move: func() {
					competing = f.propose(t, state.ProposeArgs{Authority: "auth2"})
					second = f.submit(t, "B", "C", 5)
				},
			})

			f.tick()
			block, err := f.state.ProposeAndAppend(context.Background(), state.ProposeArgs{})
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould succeed after retrying: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould succeed after retrying.", success)

			if competing.Index != 1 || len(competing.Trans) != 1 || competing.Trans[0].ID != first {
				t.Fatalf("\t%s\tTest 0:\tShould have the competing block take the first transaction: %+v", failed, competing)
			}
			t.Logf("\t%s\tTest 0:\tShould have the competing block take the first transaction.", success)

			if block.Index != 2 || block.PreviousHash != competing.Hash {
				t.Fatalf("\t%s\tTest 0:\tShould append on top of the new tip: %+v", failed, block)
			}
			t.Logf("\t%s\tTest 0:\tShould append on top of the new tip.", success)

			if len(block.Trans) != 1 || block.Trans[0].ID != second {
				t.Fatalf("\t%s\tTest 0:\tShould only carry the transaction still pending: %+v", failed, block.Trans)
			}
			t.Logf("\t%s\tTest 0:\tShould only carry the transaction still pending.", success)

			if v := f.state.ValidateChain(); !v.Valid {
				t.Fatalf("\t%s\tTest 0:\tShould have a valid chain: %+v", failed, v)
			}
			if status := f.state.QueryStatus(); status.ChainLength != 3 || status.PendingCount != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould have three blocks and nothing pending: %+v", failed, status)
			}
			t.Logf("\t%s\tTest 0:\tShould have a valid chain of three blocks.", success)

			requireBalance(t, f.state, "B", 5)
			requireBalance(t, f.state, "C", 5)
		}
	}
}

func TestStaleTipRetriesExhausted(t *testing.T) {
	f := newFixture(t, consensus.KindAuthority, memory.New(), nil, func(cfg *state.Config) {
		cfg.MaxRetries = 1
	})

	f.submit(t, "A", "B", 10)

	// Every search loses the race to a competing block.
	mover := tipMover{Strategy: f.state.Strategy()}
	var race func()
	race = func() {
		f.propose(t, state.ProposeArgs{})
		f.submit(t, "A", "B", 1)
		mover.move = race
	}
	mover.move = race
	f.state.SetStrategy(&mover)

	f.tick()
	_, err := f.state.ProposeAndAppend(context.Background(), state.ProposeArgs{})
	require.ErrorIs(t, err, state.ErrStaleTip)
	require.True(t, f.state.ValidateChain().Valid)
}

func TestLoweredDifficultyRejected(t *testing.T) {
	f := newFixture(t, consensus.KindWork, memory.New(), func(g *genesis.Genesis) { g.Difficulty = 2 })
	f.submit(t, "A", "B", 10)

	f.state.SetStrategy(&lowered{Strategy: f.state.Strategy()})

	f.tick()
	_, err := f.state.ProposeAndAppend(context.Background(), state.ProposeArgs{})
	require.ErrorIs(t, err, database.ErrProofRejected)

	status := f.state.QueryStatus()
	require.Equal(t, uint64(1), status.ChainLength)
	require.Equal(t, 1, status.PendingCount)
}

// lowered searches at a level below the one in effect and records it.
type lowered struct {
	consensus.Strategy
}

func (l *lowered) Propose(ctx context.Context, args consensus.ProposeArgs) (database.Block, error) {
	args.Difficulty.Level--
	return l.Strategy.Propose(ctx, args)
}

func TestAuthorityStatus(t *testing.T) {
	f := newFixture(t, consensus.KindAuthority, memory.New(), nil)

	status := f.state.QueryStatus()
	require.Equal(t, []string{"auth1", "auth2"}, status.Authorities)
	require.Equal(t, "auth1", status.CurrentAuthority)

	for _, exp := range []string{"auth2", "auth1"} {
		f.submit(t, "A", "B", 1)
		f.propose(t, state.ProposeArgs{})
		require.Equal(t, exp, f.state.QueryStatus().CurrentAuthority)
	}

	w := newFixture(t, consensus.KindWork, memory.New(), nil)
	status = w.state.QueryStatus()
	require.Empty(t, status.Authorities)
	require.Empty(t, status.CurrentAuthority)
}
