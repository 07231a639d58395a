package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ardanlabs/chainengine/foundation/blockchain/consensus"
	"github.com/ardanlabs/chainengine/foundation/blockchain/state"
)

// proposeOperations handles proposing blocks when transactions arrive.
func (w *Worker) proposeOperations() {
	w.evHandler("worker: proposeOperations: G started")
	defer w.evHandler("worker: proposeOperations: G completed")

	for {
		select {
		case <-w.startProposing:
			if !w.isShutdown() {
				w.runProposeOperation()
			}
		case <-w.shut:
			w.evHandler("worker: proposeOperations: received shut signal")
			return
		}
	}
}

// runProposeOperation takes all the transactions from the mempool and
// appends a new block to the chain.
func (w *Worker) runProposeOperation() {
	w.evHandler("worker: runProposeOperation: PROPOSE: started")
	defer w.evHandler("worker: runProposeOperation: PROPOSE: completed")

	// Weighted value selection needs solutions which only arrive with an
	// explicit proposal request.
	if w.state.Strategy().Kind() == consensus.KindValue {
		w.evHandler("worker: runProposeOperation: PROPOSE: weighted selection waits for solutions")
		return
	}

	// Make sure there are transactions in the mempool.
	length := w.state.QueryMempoolLength()
	if length == 0 {
		w.evHandler("worker: runProposeOperation: PROPOSE: no transactions: Txs[%d]", length)
		return
	}

	// After running an operation, check if a new operation should
	// be signaled again.
	defer func() {
		length := w.state.QueryMempoolLength()
		if length > 0 && !w.isShutdown() {
			w.evHandler("worker: runProposeOperation: PROPOSE: signal new operation: Txs[%d]", length)
			w.SignalStartProposing()
		}
	}()

	// If proposing is signalled to be cancelled, this G can't terminate
	// until it is told it can.
	var wait chan struct{}
	defer func() {
		if wait != nil {
			w.evHandler("worker: runProposeOperation: PROPOSE: termination signal: waiting")
			<-wait
			w.evHandler("worker: runProposeOperation: PROPOSE: termination signal: received")
		}
	}()

	// Drain the cancel channel before starting.
	select {
	case <-w.cancelProposing:
		w.evHandler("worker: runProposeOperation: PROPOSE: drained cancel channel")
	default:
	}

	// Create a context so the search can be cancelled.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Can't return from this function until these G's are complete.
	var wg sync.WaitGroup
	wg.Add(2)

	// This G exists to cancel the search.
	go func() {
		defer func() {
			cancel()
			wg.Done()
		}()

		select {
		case wait = <-w.cancelProposing:
			w.evHandler("worker: runProposeOperation: PROPOSE: CANCEL: requested")
		case <-ctx.Done():
		}
	}()

	// This G is performing the search.
	go func() {
		defer func() {
			cancel()
			wg.Done()
		}()

		t := time.Now()
		block, err := w.state.ProposeAndAppend(ctx, state.ProposeArgs{})
		duration := time.Since(t)

		w.evHandler("worker: runProposeOperation: PROPOSE: duration[%v]", duration)

		if err != nil {
			switch {
			case errors.Is(err, state.ErrEmptyMempool):
				w.evHandler("worker: runProposeOperation: PROPOSE: WARNING: no transactions in mempool")
			case ctx.Err() != nil:
				w.evHandler("worker: runProposeOperation: PROPOSE: CANCEL: complete")
			default:
				w.evHandler("worker: runProposeOperation: PROPOSE: ERROR: %s", err)
			}
			return
		}

		w.evHandler("worker: runProposeOperation: PROPOSE: appended blk[%d]: hash[%s]", block.Index, block.Hash)
	}()

	// Wait for both G's to terminate.
	wg.Wait()
}
