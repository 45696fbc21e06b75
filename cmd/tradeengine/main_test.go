package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func useTempState(t *testing.T) {
	prevDir, prevPath := dataDir, statePath
	dataDir = t.TempDir()
	statePath = filepath.Join(dataDir, "state.json")
	t.Cleanup(func() {
		dataDir, statePath = prevDir, prevPath
	})
}

func TestState(t *testing.T) {
	useTempState(t)

	_, err := getServerURL()
	require.Error(t, err)

	require.NoError(t, setState(map[string]string{"rpcserver": "localhost:9000"}))
	require.NoError(t, setState(map[string]string{"other": "value"}))

	state, err := getState()
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"rpcserver": "localhost:9000",
		"other":     "value",
	}, state)

	serverURL, err := getServerURL()
	require.NoError(t, err)
	require.Equal(t, "http://localhost:9000", serverURL)
}

func TestCall(t *testing.T) {
	useTempState(t)

	var received map[string]string
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/v1/trades/trade/dispute":
				require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"id":"trade"}`))
			default:
				w.WriteHeader(http.StatusConflict)
				_, _ = w.Write([]byte(`{"error":"trade is closed"}`))
			}
		},
	))
	defer server.Close()

	require.NoError(t, setState(map[string]string{"rpcserver": server.URL}))

	err := call(
		http.MethodPost, tradePath("trade", "dispute"),
		map[string]string{"reason": "no payment"},
	)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"reason": "no payment"}, received)

	err = call(http.MethodPost, tradePath("trade", "payment-started"), nil)
	require.EqualError(t, err, "trade is closed")
}

func TestTradePath(t *testing.T) {
	tests := []struct {
		id       string
		action   string
		expected string
	}{
		{"trade", "", "/v1/trades/trade"},
		{"trade", "resume", "/v1/trades/trade/resume"},
		{"a/b", "payment-received", "/v1/trades/a%2Fb/payment-received"},
	}

	for _, tt := range tests {
		require.Equal(t, tt.expected, tradePath(tt.id, tt.action))
	}
}
