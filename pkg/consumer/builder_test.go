package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getpactd/pactd/pkg/contract"
)

func TestBuildInteraction(t *testing.T) {
	b := NewPact("order-web", "order-api")

	err := b.Interaction("a request for order 42").
		Given("an order with id 42 exists").
		WithRequest("GET", "/orders/42").
		WithHeader("Accept", "application/json").
		WillRespondWith(200).
		WithResponseHeader("Content-Type", "application/json").
		WithResponseJSONBody(map[string]any{"id": 42}).
		Build()
	require.NoError(t, err)

	pact := b.Pact()
	require.Len(t, pact.Interactions, 1)
	i := pact.Interactions[0]
	assert.Equal(t, "a request for order 42", i.Description)
	assert.Equal(t, []string{"an order with id 42 exists"}, i.StateNames())
	assert.Equal(t, "GET", i.Request.Method)
	assert.Equal(t, 200, i.Response.Status)
	assert.True(t, i.Response.Body.IsJSON())
	assert.NotEmpty(t, i.Key)
}

func TestBuildRejectsEmptyInteraction(t *testing.T) {
	b := NewPact("c", "p")
	assert.Error(t, b.Interaction("").Build())
	assert.Error(t, b.Interaction("has no request").Build())
}

func TestInteractionWithRules(t *testing.T) {
	b := NewPact("c", "p")
	err := b.Interaction("typed response").
		WithRequest("GET", "/thing").
		WillRespondWith(200).
		WithResponseJSONBody(map[string]any{"id": 1}).
		WithResponseRule("body", "$.id", contract.Rule{Match: "type"}).
		Build()
	require.NoError(t, err)

	rules := b.Pact().Interactions[0].Response.Rules
	rl, ok := rules.Lookup("body", "$.id")
	require.True(t, ok)
	require.Len(t, rl.Matchers, 1)
	assert.Equal(t, "type", rl.Matchers[0].Match)
}

func TestMessageBuilderAndReify(t *testing.T) {
	b := NewPact("worker", "order-api")
	mb := b.Message("order created event").
		Given("an order exists").
		WithMetadata("queue", "orders").
		WithJSONContents(map[string]any{"event": "created", "orderId": 42})

	reified, err := mb.Reify()
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(reified, &got))
	assert.Equal(t, "created", got["event"])

	require.NoError(t, mb.Build())
	pact := b.Pact()
	require.Len(t, pact.Messages, 1)
	assert.Equal(t, "application/json", pact.Messages[0].MetadataString("contentType"))
	assert.Equal(t, "orders", pact.Messages[0].MetadataString("queue"))
}

func TestReifyEmptyContents(t *testing.T) {
	b := NewPact("c", "p")
	reified, err := b.Message("empty").Reify()
	require.NoError(t, err)
	assert.Nil(t, reified)
}

func TestWritePactRoundTrips(t *testing.T) {
	dir := t.TempDir()
	b := NewPact("order-web", "order-api")
	require.NoError(t, b.Interaction("a ping").
		WithRequest("GET", "/ping").
		WillRespondWith(204).
		Build())

	path, err := b.WritePact(dir, false)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	loaded, err := contract.Load(raw)
	require.NoError(t, err)
	require.Len(t, loaded.Interactions, 1)
	assert.Equal(t, "a ping", loaded.Interactions[0].Description)
}

func TestStartMockServerFromBuilder(t *testing.T) {
	b := NewPact("order-web", "order-api")
	require.NoError(t, b.Interaction("create an order").
		WithRequest("POST", "/orders").
		WithHeader("Content-Type", "application/json").
		WithJSONBody(map[string]any{"total": 10}).
		WillRespondWith(201).
		Build())

	server, err := b.StartMockServer(0)
	require.NoError(t, err)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}()

	resp, err := http.Post(server.URL()+"/orders", "application/json",
		bytes.NewReader([]byte(`{"total":10}`)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 201, resp.StatusCode)
	assert.True(t, server.Matched())
}
