package mockserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getpactd/pactd/pkg/contract"
)

func testPact(t *testing.T) *contract.Pact {
	t.Helper()
	pact := contract.NewPact("order-web", "order-api")

	getBody, err := contract.NewJSONBody(map[string]any{"id": 42, "status": "shipped"})
	require.NoError(t, err)
	pact.Interactions = append(pact.Interactions, &contract.Interaction{
		Description: "a request for order 42",
		Request:     contract.Request{Method: "GET", Path: "/orders/42"},
		Response: contract.Response{
			Status:  200,
			Headers: map[string][]string{"Content-Type": {"application/json"}},
			Body:    getBody,
		},
	})

	postReqBody, err := contract.NewJSONBody(map[string]any{"total": 100})
	require.NoError(t, err)
	pact.Interactions = append(pact.Interactions, &contract.Interaction{
		Description: "a request to create an order",
		ProviderStates: []contract.ProviderState{
			{Name: "no orders exist"},
		},
		Request: contract.Request{
			Method:  "POST",
			Path:    "/orders",
			Headers: map[string][]string{"Content-Type": {"application/json"}},
			Body:    postReqBody,
		},
		Response: contract.Response{Status: 201},
	})

	return pact
}

func startServer(t *testing.T, pact *contract.Pact) *Server {
	t.Helper()
	s, err := New(pact)
	require.NoError(t, err)
	_, err = s.Start(0)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

func TestNewRejectsMessagePact(t *testing.T) {
	pact := contract.NewMessagePact("c", "p")
	pact.Messages = append(pact.Messages, &contract.Message{Description: "an event"})
	_, err := New(pact)
	assert.Error(t, err)
}

func TestStartBindsEphemeralPort(t *testing.T) {
	s := startServer(t, testPact(t))
	assert.NotZero(t, s.Port())
	assert.Contains(t, s.URL(), "http://127.0.0.1:")
}

func TestPlaybackAndMatched(t *testing.T) {
	pact := testPact(t)
	s := startServer(t, pact)

	resp, err := http.Get(s.URL() + "/orders/42")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "shipped", got["status"])

	// One interaction still unexercised.
	assert.False(t, s.Matched())

	resp, err = http.Post(s.URL()+"/orders", "application/json",
		bytes.NewReader([]byte(`{"total":100}`)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 201, resp.StatusCode)

	assert.True(t, s.Matched())
	assert.Empty(t, s.Mismatches())
}

func TestUnknownRequestRecorded(t *testing.T) {
	s := startServer(t, testPact(t))

	resp, err := http.Get(s.URL() + "/no/such/path")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var record MismatchRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&record))
	assert.Equal(t, "request-not-found", record.Type)
	assert.Equal(t, "/no/such/path", record.Path)

	assert.False(t, s.Matched())
}

func TestNearMissRecordedAsMismatch(t *testing.T) {
	s := startServer(t, testPact(t))

	// Right method and path, wrong body.
	resp, err := http.Post(s.URL()+"/orders", "application/json",
		bytes.NewReader([]byte(`{"total":999}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var record MismatchRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&record))
	assert.Equal(t, "request-mismatch", record.Type)
	assert.Equal(t, "a request to create an order", record.Description)
	assert.NotEmpty(t, record.Mismatches)
}

func TestMismatchesListsMissingInteractions(t *testing.T) {
	s := startServer(t, testPact(t))

	records := s.Mismatches()
	require.Len(t, records, 2)
	for _, record := range records {
		assert.Equal(t, "missing-request", record.Type)
	}

	raw, err := s.MismatchesJSON()
	require.NoError(t, err)
	assert.True(t, json.Valid(raw))
}

func TestWritePactOnlyWhenMatched(t *testing.T) {
	pact := testPact(t)
	s := startServer(t, pact)
	dir := t.TempDir()

	_, err := s.WritePact(dir, false)
	assert.ErrorIs(t, err, ErrNotMatched)

	resp, err := http.Get(s.URL() + "/orders/42")
	require.NoError(t, err)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	resp, err = http.Post(s.URL()+"/orders", "application/json",
		bytes.NewReader([]byte(`{"total":100}`)))
	require.NoError(t, err)
	resp.Body.Close()

	path, err := s.WritePact(dir, false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "order-web-order-api.json"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	loaded, err := contract.Load(raw)
	require.NoError(t, err)
	assert.Len(t, loaded.Interactions, 2)
}

func TestBestMatchPicksMostSpecific(t *testing.T) {
	pact := contract.NewPact("c", "p")
	plain, err := contract.NewJSONBody(map[string]any{"which": "plain"})
	require.NoError(t, err)
	withHeader, err := contract.NewJSONBody(map[string]any{"which": "header"})
	require.NoError(t, err)

	pact.Interactions = append(pact.Interactions,
		&contract.Interaction{
			Description: "plain fetch",
			Request:     contract.Request{Method: "GET", Path: "/thing"},
			Response:    contract.Response{Status: 200, Headers: map[string][]string{"Content-Type": {"application/json"}}, Body: plain},
		},
		&contract.Interaction{
			Description: "fetch with accept header",
			Request: contract.Request{
				Method:  "GET",
				Path:    "/thing",
				Headers: map[string][]string{"Accept": {"application/json"}},
			},
			Response: contract.Response{Status: 200, Headers: map[string][]string{"Content-Type": {"application/json"}}, Body: withHeader},
		},
	)
	s := startServer(t, pact)

	req, err := http.NewRequest(http.MethodGet, s.URL()+"/thing", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var got map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "header", got["which"])
}
