// Package private maintains the group of handlers for node operator access.
package private

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ardanlabs/chainengine/business/web/errs"
	"github.com/ardanlabs/chainengine/foundation/blockchain/consensus"
	"github.com/ardanlabs/chainengine/foundation/blockchain/state"
	"github.com/ardanlabs/chainengine/foundation/nameservice"
	"github.com/ardanlabs/chainengine/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
}

// Propose is what an operator submits to produce the next block. Authority
// is used by authority rotation and solutions by weighted value selection.
type Propose struct {
	Authority string               `json:"authority"`
	Solutions []consensus.Solution `json:"solutions"`
}

// Propose runs the configured consensus strategy over the pending
// transactions and appends the resulting block.
func (h Handlers) Propose(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var p Propose
	if err := web.Decode(r, &p); err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	args := state.ProposeArgs{
		Solutions: p.Solutions,
	}
	if p.Authority != "" {
		args.Authority = h.NS.Resolve(p.Authority)
	}

	h.Log.Infow("propose", "traceid", v.TraceID, "authority", args.Authority, "solutions", len(args.Solutions))

	block, err := h.State.ProposeAndAppend(ctx, args)
	if err != nil {
		return errs.FromEngine(err)
	}

	return web.Respond(ctx, w, block, http.StatusOK)
}

// Validate replays the chain from genesis and reports the first invalid block.
func (h Handlers) Validate(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.ValidateChain(), http.StatusOK)
}

// Status returns the current state of the engine along with the known names.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	resp := struct {
		state.Status
		Names map[string]string `json:"names"`
	}{
		Status: h.State.QueryStatus(),
		Names:  h.NS.Copy(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}
