package mid

import (
	"context"
	"net/http"
	"runtime"
	"sync/atomic"

	"github.com/ardanlabs/chainengine/business/sys/metrics"
	"github.com/ardanlabs/chainengine/foundation/web"
)

// requests counts the handled requests for sampling.
var requests atomic.Int64

// Metrics updates program counters.
func Metrics(m *metrics.Metrics) web.Middleware {

	// This is the actual middleware function to be executed.
	mw := func(handler web.Handler) web.Handler {

		// Create the handler that will be attached in the middleware chain.
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			// Call the next handler.
			err := handler(ctx, w, r)

			// Increment the request counter.
			m.Requests.Inc()

			// Update the count for the number of active goroutines every 100 requests.
			if n := requests.Add(1); n%100 == 0 {
				m.Goroutines.Set(float64(runtime.NumGoroutine()))
			}

			// Increment the errors counter if an error occurred on this request.
			if err != nil {
				m.Errors.Inc()
			}

			// Return the error so it can be handled further up the chain.
			return err
		}

		return h
	}

	return mw
}
