package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ardanlabs/chainengine/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return strings.TrimSpace(out.String()), err
}

func TestSend(t *testing.T) {
	var got map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/tx/submit", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"status":"transaction added to mempool","transaction_id":"0xabc"}`))
	})
	mux.HandleFunc("/v1/balances/bob", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"latest_block":"0x1","uncommitted":1,"balances":[{"address":"bob","name":"bob","balance":"50"}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dir := t.TempDir()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	require.NoError(t, crypto.SaveECDSA(filepath.Join(dir, "alice.ecdsa"), key))

	out, err := run(t, "send", "-u", srv.URL, "-p", dir, "-a", "alice", "-t", "bob", "-v", "50", "-m", "memo=lunch")
	require.NoError(t, err)
	require.Equal(t, "0xabc", out)
	require.Equal(t, signature.PublicKeyToID(key.PublicKey), got["sender"])
	require.Equal(t, "bob", got["recipient"])
	require.Equal(t, "50", got["amount"])
	require.Equal(t, map[string]any{"memo": "lunch"}, got["metadata"])

	out, err = run(t, "balance", "bob", "-u", srv.URL)
	require.NoError(t, err)
	require.Equal(t, "50", out)
}

func TestNodeErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/node/propose", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"mempool is empty"}`))
	})
	mux.HandleFunc("/v1/node/validate", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"valid":false,"first_invalid_index":2,"reason":"hash does not match contents"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err := run(t, "propose", "--private-url", srv.URL)
	require.EqualError(t, err, "status 409: mempool is empty")

	_, err = run(t, "validate", "--private-url", srv.URL)
	require.ErrorContains(t, err, "chain invalid at block 2")
}

func TestGenerate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "accounts")

	id, err := run(t, "generate", "-p", dir, "-a", "auth1")
	require.NoError(t, err)

	out, err := run(t, "account", "-p", dir, "-a", "auth1")
	require.NoError(t, err)
	require.Equal(t, id, out)
}
