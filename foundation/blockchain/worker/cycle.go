package worker

import (
	"time"
)

// cycleOperations proposes on a fixed cadence of one target block time.
// The cycle starts on a multiple of the cadence: ex. MM.00, MM.10, MM.20.
func (w *Worker) cycleOperations() {
	w.evHandler("worker: cycleOperations: G started")
	defer w.evHandler("worker: cycleOperations: G completed")

	ticker := time.NewTicker(w.cycle)
	defer ticker.Stop()

	w.resetTicker(ticker, w.cycle)

	for {
		select {
		case <-ticker.C:
			if !w.isShutdown() {
				w.evHandler("worker: cycleOperations: cycle reached")
				w.SignalStartProposing()
			}
		case <-w.shut:
			w.evHandler("worker: cycleOperations: received shut signal")
			return
		}

		// Reset the ticker for the next cycle.
		w.resetTicker(ticker, 0)
	}
}

// resetTicker makes sure the next tick happens on the described cadence.
func (w *Worker) resetTicker(ticker *time.Ticker, waitOnSecond time.Duration) {
	nextTick := time.Now().Add(w.cycle).Round(waitOnSecond)
	ticker.Reset(time.Until(nextTick))
}
