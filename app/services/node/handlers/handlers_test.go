package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/ardanlabs/chainengine/app/services/node/handlers"
	"github.com/ardanlabs/chainengine/business/sys/metrics"
	"github.com/ardanlabs/chainengine/foundation/blockchain/genesis"
	"github.com/ardanlabs/chainengine/foundation/blockchain/state"
	"github.com/ardanlabs/chainengine/foundation/blockchain/storage/memory"
	"github.com/ardanlabs/chainengine/foundation/events"
	"github.com/ardanlabs/chainengine/foundation/nameservice"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

type apiTest struct {
	public  http.Handler
	private http.Handler
	debug   http.Handler
	state   *state.State
}

func newAPITest(t *testing.T) *apiTest {
	gen := genesis.Default()
	gen.Consensus.Authorities = []string{"auth1", "auth2"}

	st, err := state.New(state.Config{
		Genesis:   gen,
		Storage:   memory.New(),
		Consensus: "poa",
		Authority: "auth1",
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Shutdown() })

	ns, err := nameservice.New(t.TempDir())
	require.NoError(t, err)

	registry := prometheus.NewRegistry()

	cfg := handlers.MuxConfig{
		Shutdown: make(chan os.Signal, 1),
		Log:      zap.NewNop().Sugar(),
		State:    st,
		NS:       ns,
		Evts:     events.New(),
		Metrics:  metrics.New(registry),
		Origins:  []string{"https://explorer.example"},
	}

	return &apiTest{
		public:  handlers.PublicMux(cfg),
		private: handlers.PrivateMux(cfg),
		debug:   handlers.DebugMux("test", cfg.Log, st, registry),
		state:   st,
	}
}

func (at *apiTest) do(t *testing.T, h http.Handler, method string, path string, body any, resp any) int {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	r := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if resp != nil && w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), resp), w.Body.String())
	}

	return w.Code
}

// =============================================================================

func TestAPI(t *testing.T) {
	t.Log("Given the need to drive the engine through the web api.")
	{
		at := newAPITest(t)

		t.Logf("\tTest 0:\tWhen submitting a transaction.")
		{
			tx := map[string]any{"sender": "alice", "recipient": "bob", "amount": "50", "metadata": map[string]string{"memo": "lunch"}}

			var resp struct {
				Status string `json:"status"`
				ID     string `json:"transaction_id"`
			}
			status := at.do(t, at.public, http.MethodPost, "/v1/tx/submit", tx, &resp)
			require.Equal(t, http.StatusOK, status)
			require.NotEmpty(t, resp.ID)
			t.Logf("\t%s\tTest 0:\tShould be able to submit the transaction.", success)

			var pending []map[string]any
			require.Equal(t, http.StatusOK, at.do(t, at.public, http.MethodGet, "/v1/tx/pending", nil, &pending))
			require.Len(t, pending, 1)
			require.Equal(t, resp.ID, pending[0]["transaction_id"])
			t.Logf("\t%s\tTest 0:\tShould see the transaction in the mempool.", success)

			status = at.do(t, at.public, http.MethodPost, "/v1/tx/submit", map[string]any{"sender": "alice", "recipient": "alice", "amount": "5"}, nil)
			require.Equal(t, http.StatusBadRequest, status)
			t.Logf("\t%s\tTest 0:\tShould reject a self transfer.", success)

			status = at.do(t, at.public, http.MethodPost, "/v1/tx/submit", map[string]any{"sender": "alice", "recipient": "bob", "amount": "-5"}, nil)
			require.Equal(t, http.StatusBadRequest, status)
			t.Logf("\t%s\tTest 0:\tShould reject a negative amount.", success)
		}

		t.Logf("\tTest 1:\tWhen proposing a block.")
		{
			status := at.do(t, at.private, http.MethodPost, "/v1/node/propose", map[string]any{"authority": "mallory"}, nil)
			require.Equal(t, http.StatusNotAcceptable, status)
			t.Logf("\t%s\tTest 1:\tShould reject an unknown authority.", success)

			var block state.BlockSummary
			status = at.do(t, at.private, http.MethodPost, "/v1/node/propose", map[string]any{"authority": "auth2"}, &block)
			require.Equal(t, http.StatusOK, status)
			require.Equal(t, uint64(1), block.Index)
			require.Equal(t, "auth2", block.Proof.Authority)
			require.Len(t, block.Trans, 1)
			t.Logf("\t%s\tTest 1:\tShould append block 1.", success)

			status = at.do(t, at.private, http.MethodPost, "/v1/node/propose", map[string]any{}, nil)
			require.Equal(t, http.StatusConflict, status)
			t.Logf("\t%s\tTest 1:\tShould report an empty mempool.", success)
		}

		t.Logf("\tTest 2:\tWhen querying the chain.")
		{
			var blocks []state.BlockSummary
			require.Equal(t, http.StatusOK, at.do(t, at.public, http.MethodGet, "/v1/blocks", nil, &blocks))
			require.Len(t, blocks, 2)
			require.Equal(t, blocks[0].Hash, blocks[1].PreviousHash)
			t.Logf("\t%s\tTest 2:\tShould return genesis and block 1.", success)

			var block state.BlockSummary
			require.Equal(t, http.StatusOK, at.do(t, at.public, http.MethodGet, "/v1/blocks/1", nil, &block))
			require.Equal(t, blocks[1].Hash, block.Hash)
			require.Equal(t, http.StatusNotFound, at.do(t, at.public, http.MethodGet, "/v1/blocks/9", nil, nil))
			require.Equal(t, http.StatusBadRequest, at.do(t, at.public, http.MethodGet, "/v1/blocks/abc", nil, nil))
			t.Logf("\t%s\tTest 2:\tShould look up blocks by index.", success)

			var bals struct {
				LatestBlock string `json:"latest_block"`
				Balances    []struct {
					Address string          `json:"address"`
					Balance decimal.Decimal `json:"balance"`
				} `json:"balances"`
			}
			require.Equal(t, http.StatusOK, at.do(t, at.public, http.MethodGet, "/v1/balances/bob", nil, &bals))
			require.Len(t, bals.Balances, 1)
			require.True(t, decimal.NewFromInt(50).Equal(bals.Balances[0].Balance))
			require.Equal(t, block.Hash, bals.LatestBlock)
			t.Logf("\t%s\tTest 2:\tShould credit the recipient.", success)

			require.Equal(t, http.StatusOK, at.do(t, at.public, http.MethodGet, "/v1/balances", nil, &bals))
			require.Len(t, bals.Balances, 2)
			t.Logf("\t%s\tTest 2:\tShould list both accounts.", success)

			var status state.Status
			require.Equal(t, http.StatusOK, at.do(t, at.public, http.MethodGet, "/v1/status", nil, &status))
			require.Equal(t, uint64(2), status.ChainLength)
			require.Equal(t, "poa", status.ConsensusKind)
			require.Equal(t, []string{"auth1", "auth2"}, status.Authorities)
			require.Equal(t, "auth2", status.CurrentAuthority)
			t.Logf("\t%s\tTest 2:\tShould report the status with the authority rotation.", success)
		}

		t.Logf("\tTest 3:\tWhen validating the chain.")
		{
			var v state.Validation
			require.Equal(t, http.StatusOK, at.do(t, at.private, http.MethodGet, "/v1/node/validate", nil, &v))
			require.True(t, v.Valid)
			t.Logf("\t%s\tTest 3:\tShould report a valid chain.", success)

			r := httptest.NewRequest(http.MethodGet, "/debug/readiness", nil)
			w := httptest.NewRecorder()
			at.debug.ServeHTTP(w, r)
			require.Equal(t, http.StatusOK, w.Code)
			t.Logf("\t%s\tTest 3:\tShould be ready.", success)
		}

		t.Logf("\tTest 4:\tWhen scraping the metrics.")
		{
			r := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			w := httptest.NewRecorder()
			at.debug.ServeHTTP(w, r)
			require.Equal(t, http.StatusOK, w.Code)

			body := w.Body.String()
			require.True(t, strings.Contains(body, "node_requests_total"), body)
			t.Logf("\t%s\tTest 4:\tShould expose the request counters.", success)
		}

		t.Logf("\tTest 5:\tWhen a browser sends a preflight request.")
		{
			r := httptest.NewRequest(http.MethodOptions, "/v1/tx/submit", nil)
			r.Header.Set("Origin", "https://explorer.example")
			w := httptest.NewRecorder()
			at.public.ServeHTTP(w, r)
			require.Equal(t, http.StatusNoContent, w.Code)
			require.Equal(t, "https://explorer.example", w.Header().Get("Access-Control-Allow-Origin"))

			r = httptest.NewRequest(http.MethodGet, "/v1/status", nil)
			r.Header.Set("Origin", "https://evil.example")
			w = httptest.NewRecorder()
			at.public.ServeHTTP(w, r)
			require.Equal(t, http.StatusOK, w.Code)
			require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
			t.Logf("\t%s\tTest 5:\tShould only answer the configured origin.", success)
		}
	}
}

func TestProposeSolutions(t *testing.T) {
	t.Log("Given the need to propose with weighted value selection over the web api.")
	{
		gen := genesis.Default()

		st, err := state.New(state.Config{
			Genesis:   gen,
			Storage:   memory.New(),
			Consensus: "pov",
		})
		require.NoError(t, err)
		defer st.Shutdown()

		ns, err := nameservice.New(t.TempDir())
		require.NoError(t, err)

		cfg := handlers.MuxConfig{
			Shutdown: make(chan os.Signal, 1),
			Log:      zap.NewNop().Sugar(),
			State:    st,
			NS:       ns,
			Evts:     events.New(),
			Metrics:  metrics.New(prometheus.NewRegistry()),
		}
		at := apiTest{public: handlers.PublicMux(cfg), private: handlers.PrivateMux(cfg), state: st}

		at.do(t, at.public, http.MethodPost, "/v1/tx/submit", map[string]any{"sender": "alice", "recipient": "bob", "amount": "1"}, nil)

		t.Logf("\tTest 0:\tWhen no solution reaches the threshold.")
		{
			sols := map[string]any{"solutions": []map[string]any{{"solver": "s1", "values": map[string]float64{"a": 1}, "originality": 0.5}}}
			status := at.do(t, at.private, http.MethodPost, "/v1/node/propose", sols, nil)
			if status != http.StatusNotAcceptable {
				t.Fatalf("\t%s\tTest 0:\tShould reject the proposal : got %d", failed, status)
			}
			t.Logf("\t%s\tTest 0:\tShould reject the proposal.", success)
		}

		t.Logf("\tTest 1:\tWhen a solution reaches the threshold.")
		{
			sols := map[string]any{"solutions": []map[string]any{{"solver": "s1", "values": map[string]float64{"a": 6, "b": 7}, "originality": 0.5}}}

			var block state.BlockSummary
			status := at.do(t, at.private, http.MethodPost, "/v1/node/propose", sols, &block)
			require.Equal(t, http.StatusOK, status, fmt.Sprintf("%+v", block))
			require.Equal(t, "s1", block.Proof.Solver)
			t.Logf("\t%s\tTest 1:\tShould append the block won by the solver.", success)
		}
	}
}
