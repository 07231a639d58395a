// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/ardanlabs/chainengine/business/sys/validate"
	"github.com/ardanlabs/chainengine/business/web/errs"
	"github.com/ardanlabs/chainengine/foundation/blockchain/state"
	"github.com/ardanlabs/chainengine/foundation/events"
	"github.com/ardanlabs/chainengine/foundation/nameservice"
	"github.com/ardanlabs/chainengine/foundation/web"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Handlers manages the set of ledger endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// SubmitTransaction adds a new transaction to the mempool.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var nt NewTx
	if err := web.Decode(r, &nt); err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	if err := validate.Check(nt); err != nil {
		return err
	}

	amount, err := decimal.NewFromString(nt.Amount)
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("parsing amount: %w", err), http.StatusBadRequest)
	}

	from := h.NS.Resolve(nt.Sender)
	to := h.NS.Resolve(nt.Recipient)

	h.Log.Infow("submit tran", "traceid", v.TraceID, "from", from, "to", to, "amount", amount)

	id, err := h.State.SubmitTransaction(from, to, amount, nt.Metadata)
	if err != nil {
		return errs.FromEngine(err)
	}

	resp := txSubmitted{
		Status: "transaction added to mempool",
		ID:     id,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.Genesis(), http.StatusOK)
}

// Status returns the current state of the engine.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.QueryStatus(), http.StatusOK)
}

// Mempool returns the set of uncommitted transactions. An optional address
// query parameter restricts the set to transactions touching that account.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	address := r.URL.Query().Get("address")
	if address != "" {
		address = h.NS.Resolve(address)
	}

	mempool := h.State.QueryMempool()

	trans := make([]tx, 0, len(mempool))
	for _, tran := range mempool {
		if address != "" && address != tran.From && address != tran.To {
			continue
		}
		trans = append(trans, h.toTx(tran))
	}

	return web.Respond(ctx, w, trans, http.StatusOK)
}

// Balances returns the current balances for every account, including the
// effect of the pending transactions.
func (h Handlers) Balances(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	sheet, err := h.State.QueryBalances()
	if err != nil {
		return errs.FromEngine(err)
	}

	bals := make([]balance, 0, len(sheet))
	for address, amount := range sheet {
		bals = append(bals, balance{
			Address: address,
			Name:    h.NS.Lookup(address),
			Balance: amount,
		})
	}
	sort.Slice(bals, func(i, j int) bool { return bals[i].Address < bals[j].Address })

	return web.Respond(ctx, w, h.toBalances(bals), http.StatusOK)
}

// Balance returns the current balance for the specified account.
func (h Handlers) Balance(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	address := h.NS.Resolve(web.Param(r, "address"))

	amount, err := h.State.QueryBalance(address)
	if err != nil {
		return errs.FromEngine(err)
	}

	bals := []balance{
		{
			Address: address,
			Name:    h.NS.Lookup(address),
			Balance: amount,
		},
	}

	return web.Respond(ctx, w, h.toBalances(bals), http.StatusOK)
}

// Blocks returns every block of the chain starting with genesis.
func (h Handlers) Blocks(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	blocks, err := h.State.QueryChain()
	if err != nil {
		return errs.FromEngine(err)
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}

// Block returns the block at the specified index.
func (h Handlers) Block(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	index, err := strconv.ParseUint(web.Param(r, "index"), 10, 64)
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("invalid block index: %w", err), http.StatusBadRequest)
	}

	block, err := h.State.QueryBlock(index)
	if err != nil {
		return errs.FromEngine(err)
	}

	return web.Respond(ctx, w, block, http.StatusOK)
}

// =============================================================================

func (h Handlers) toBalances(bals []balance) balances {
	status := h.State.QueryStatus()

	return balances{
		LatestBlock: status.TipHash,
		Uncommitted: status.PendingCount,
		Balances:    bals,
	}
}
