package verifier

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getpactd/pactd/pkg/contract"
	"github.com/getpactd/pactd/pkg/matching"
)

func writePactFile(t *testing.T, dir, consumer string, interactions ...*contract.Interaction) string {
	t.Helper()
	pact := contract.NewPact(consumer, "order-api")
	pact.Interactions = interactions
	raw, err := json.Marshal(pact)
	require.NoError(t, err)
	path := filepath.Join(dir, pact.FileName())
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	return path
}

func jsonBody(t *testing.T, v any) contract.Body {
	t.Helper()
	b, err := contract.NewJSONBody(v)
	require.NoError(t, err)
	return b
}

// orderProvider is a provider that knows two orders and creates new ones
// with status 200 (not the 201 some consumers expect).
func orderProvider(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /orders/42", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":42,"status":"shipped"}`))
	})
	mux.HandleFunc("GET /orders/7", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":7,"status":"pending"}`))
	})
	mux.HandleFunc("POST /orders", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":99}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func providerTransport(t *testing.T, server *httptest.Server) (host string, port int) {
	t.Helper()
	h, p, err := net.SplitHostPort(server.Listener.Addr().String())
	require.NoError(t, err)
	n, err := strconv.Atoi(p)
	require.NoError(t, err)
	return h, n
}

func newVerifierFor(t *testing.T, server *httptest.Server) *Verifier {
	t.Helper()
	host, port := providerTransport(t, server)
	v := New()
	v.SetProviderInfo("order-api", "http", host, port, "/")
	return v
}

func TestExecuteWithoutSources(t *testing.T) {
	v := New()
	v.SetProviderInfo("p", "http", "localhost", 8000, "/")
	_, err := v.Execute(context.Background())
	assert.ErrorIs(t, err, ErrNoSources)
}

func TestDirectorySourceStatusMismatch(t *testing.T) {
	server := orderProvider(t)
	dir := t.TempDir()

	writePactFile(t, dir, "web",
		&contract.Interaction{
			Description: "fetch order 42",
			Request:     contract.Request{Method: "GET", Path: "/orders/42"},
			Response: contract.Response{
				Status: 200,
				Body:   jsonBody(t, map[string]any{"id": 42, "status": "shipped"}),
			},
		})
	writePactFile(t, dir, "mobile",
		&contract.Interaction{
			Description: "fetch order 7",
			Request:     contract.Request{Method: "GET", Path: "/orders/7"},
			Response: contract.Response{
				Status: 200,
				Body:   jsonBody(t, map[string]any{"id": 7, "status": "pending"}),
			},
		})
	writePactFile(t, dir, "batch",
		&contract.Interaction{
			Description: "create an order",
			Request: contract.Request{
				Method: "POST",
				Path:   "/orders",
				Body:   jsonBody(t, map[string]any{"total": 10}),
			},
			Response: contract.Response{Status: 201},
		})

	v := newVerifierFor(t, server)
	v.AddDirectorySource(dir)

	result, err := v.Execute(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Interactions, 3)
	assert.False(t, result.Ok())
	assert.Equal(t, 2, result.Passed())
	assert.Equal(t, 1, result.Failed())

	var failing *InteractionResult
	for i := range result.Interactions {
		if !result.Interactions[i].Ok() {
			failing = &result.Interactions[i]
		}
	}
	require.NotNil(t, failing)
	assert.Equal(t, "create an order", failing.Description)
	require.Len(t, failing.Mismatches, 1)
	assert.Equal(t, matching.KindStatus, failing.Mismatches[0].Kind)
	assert.Equal(t, "201", failing.Mismatches[0].Expected)
	assert.Equal(t, "200", failing.Mismatches[0].Actual)
}

func TestFileSourceAllPassing(t *testing.T) {
	server := orderProvider(t)
	dir := t.TempDir()
	path := writePactFile(t, dir, "web",
		&contract.Interaction{
			Description: "fetch order 42",
			Request:     contract.Request{Method: "GET", Path: "/orders/42"},
			Response: contract.Response{
				Status: 200,
				Body:   jsonBody(t, map[string]any{"id": 42, "status": "shipped"}),
			},
		})

	v := newVerifierFor(t, server)
	v.AddFileSource(path)

	result, err := v.Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Ok())
	require.Len(t, result.Interactions, 1)
	assert.Equal(t, "web", result.Interactions[0].Consumer)
}

func TestFilterRestrictsInteractions(t *testing.T) {
	server := orderProvider(t)
	dir := t.TempDir()
	writePactFile(t, dir, "web",
		&contract.Interaction{
			Description: "fetch order 42",
			Request:     contract.Request{Method: "GET", Path: "/orders/42"},
			Response:    contract.Response{Status: 200},
		},
		&contract.Interaction{
			Description: "create an order",
			Request:     contract.Request{Method: "POST", Path: "/orders"},
			Response:    contract.Response{Status: 201},
		})

	v := newVerifierFor(t, server)
	v.AddDirectorySource(dir)
	v.SetFilter(`description contains "fetch"`)

	result, err := v.Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Interactions, 1)
	assert.Equal(t, "fetch order 42", result.Interactions[0].Description)
}

func TestBadFilterExpression(t *testing.T) {
	v := New()
	v.AddFileSource("unused.json")
	v.SetFilter("this is (not an expression")
	_, err := v.Execute(context.Background())
	assert.Error(t, err)
}

func TestProviderStateChanges(t *testing.T) {
	var setups, teardowns atomic.Int32
	states := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req stateChangeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "an order exists", req.State)
		switch req.Action {
		case "setup":
			setups.Add(1)
		case "teardown":
			teardowns.Add(1)
		}
	}))
	defer states.Close()

	server := orderProvider(t)
	dir := t.TempDir()
	writePactFile(t, dir, "web",
		&contract.Interaction{
			Description:    "fetch order 42",
			ProviderStates: []contract.ProviderState{{Name: "an order exists"}},
			Request:        contract.Request{Method: "GET", Path: "/orders/42"},
			Response:       contract.Response{Status: 200},
		})

	v := newVerifierFor(t, server)
	v.AddDirectorySource(dir)
	v.SetStateChangeURL(states.URL)

	result, err := v.Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Ok())
	assert.Equal(t, int32(1), setups.Load())
	assert.Equal(t, int32(1), teardowns.Load())
}

func TestURLSourceRetriesTransientFailures(t *testing.T) {
	dir := t.TempDir()
	path := writePactFile(t, dir, "web",
		&contract.Interaction{
			Description: "fetch order 42",
			Request:     contract.Request{Method: "GET", Path: "/orders/42"},
			Response:    contract.Response{Status: 200},
		})
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var calls atomic.Int32
	flaky := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(raw)
	}))
	defer flaky.Close()

	server := orderProvider(t)
	v := newVerifierFor(t, server)
	v.AddURLSource(flaky.URL)

	result, err := v.Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Ok())
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestVerifyMessage(t *testing.T) {
	metadata, err := json.Marshal(map[string]any{"queue": "orders"})
	require.NoError(t, err)
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req messageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "order created event", req.Description)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set(metadataHeader, base64.StdEncoding.EncodeToString(metadata))
		_, _ = w.Write([]byte(`{"event":"created","orderId":42}`))
	}))
	defer provider.Close()

	dir := t.TempDir()
	pact := contract.NewMessagePact("worker", "order-api")
	pact.Messages = append(pact.Messages, &contract.Message{
		Description: "order created event",
		Contents:    jsonBody(t, map[string]any{"event": "created", "orderId": 42}),
		Metadata:    map[string]any{"contentType": "application/json", "queue": "orders"},
	})
	raw, err := json.Marshal(pact)
	require.NoError(t, err)
	path := filepath.Join(dir, pact.FileName())
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	v := newVerifierFor(t, provider)
	v.AddFileSource(path)

	result, err := v.Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Ok(), "mismatches: %+v", result.Interactions)
}

func TestPluginTransportWithoutDriver(t *testing.T) {
	server := orderProvider(t)
	dir := t.TempDir()
	writePactFile(t, dir, "web",
		&contract.Interaction{
			Description: "a grpc exchange",
			Transport:   "grpc",
			Request:     contract.Request{Method: "POST", Path: "/Service/Method"},
			Response:    contract.Response{Status: 200},
		})

	v := newVerifierFor(t, server)
	v.AddDirectorySource(dir)

	result, err := v.Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Interactions, 1)
	assert.False(t, result.Interactions[0].Ok())
	assert.Contains(t, result.Interactions[0].Error, "plugin driver")
}
