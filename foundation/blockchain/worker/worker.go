// Package worker implements the background proposing of blocks for the
// blockchain.
package worker

import (
	"sync"
	"time"

	"github.com/ardanlabs/chainengine/foundation/blockchain/consensus"
	"github.com/ardanlabs/chainengine/foundation/blockchain/state"
)

// Worker manages the proposing workflows for the blockchain.
type Worker struct {
	state           *state.State
	wg              sync.WaitGroup
	shut            chan struct{}
	startProposing  chan bool
	cancelProposing chan chan struct{}
	cycle           time.Duration
	evHandler       state.EventHandler
}

// Run creates a worker, registers the worker with the state package, and
// starts up all the background processes.
func Run(st *state.State, evHandler state.EventHandler) *Worker {
	ev := func(v string, args ...any) {
		if evHandler != nil {
			evHandler(v, args...)
		}
	}

	w := Worker{
		state:           st,
		shut:            make(chan struct{}),
		startProposing:  make(chan bool, 1),
		cancelProposing: make(chan chan struct{}, 1),
		cycle:           st.Genesis().TargetBlockTime.Duration(),
		evHandler:       ev,
	}

	// Register this worker with the state package.
	st.Worker = &w

	// Load the set of operations we need to run.
	operations := []func(){
		w.proposeOperations,
	}

	// Authority rotation also proposes on a fixed cadence.
	if st.Strategy().Kind() == consensus.KindAuthority && w.cycle > 0 {
		operations = append(operations, w.cycleOperations)
	}

	// Set waitgroup to match the number of G's we need for the set
	// of operations we have.
	g := len(operations)
	w.wg.Add(g)

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	// Start all the operational G's.
	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	// Wait for the G's to report they are running.
	for i := 0; i < g; i++ {
		<-hasStarted
	}

	// Pick up anything already pending.
	w.SignalStartProposing()

	return &w
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutine performing work.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: signal cancel proposing")
	done := w.SignalCancelProposing()
	done()

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	w.wg.Wait()
}

// SignalStartProposing starts a proposing operation. If there is already a
// signal pending in the channel, just return since an operation will start.
func (w *Worker) SignalStartProposing() {
	select {
	case w.startProposing <- true:
	default:
	}
	w.evHandler("worker: SignalStartProposing: proposing signaled")
}

// SignalCancelProposing signals the G executing the runProposeOperation
// function to stop immediately. That G will not return from the function
// until done is called.
func (w *Worker) SignalCancelProposing() (done func()) {
	wait := make(chan struct{})

	select {
	case w.cancelProposing <- wait:
	default:
	}
	w.evHandler("worker: SignalCancelProposing: CANCEL: signaled")

	return func() { close(wait) }
}

// =============================================================================

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
