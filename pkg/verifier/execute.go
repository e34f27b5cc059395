package verifier

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/getpactd/pactd/pkg/contract"
	"github.com/getpactd/pactd/pkg/matching"
)

// verifyHTTP exercises one request/response interaction: provider states
// up, replay the request, match the response, states down.
func (v *Verifier) verifyHTTP(ctx context.Context, client *http.Client, states *stateChange, consumer string, interaction *contract.Interaction) InteractionResult {
	result := InteractionResult{Consumer: consumer, Description: interaction.DisplayName()}
	log := v.log.With("interaction", interaction.Description)

	if err := states.run(ctx, interaction.ProviderStates, "setup"); err != nil {
		result.Error = err.Error()
		return result
	}
	defer func() {
		if err := states.run(ctx, interaction.ProviderStates, "teardown"); err != nil {
			log.Warn("state teardown failed", "error", err)
		}
	}()

	resp, err := v.sendRequest(ctx, client, interaction.Request)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Mismatches = matching.MatchResponse(interaction.Response, resp)
	if len(result.Mismatches) > 0 {
		log.Debug("interaction mismatched", "mismatches", len(result.Mismatches))
	} else {
		log.Debug("interaction verified")
	}
	return result
}

// sendRequest replays an expected request against the provider, retrying
// connection-level failures with capped backoff. An HTTP response of any
// status is a successful send; status checking belongs to matching.
func (v *Verifier) sendRequest(ctx context.Context, client *http.Client, expected contract.Request) (contract.Response, error) {
	url := v.transport.BaseURL() + expected.Path
	if q := contract.EncodeQuery(expected.Query); q != "" {
		url += "?" + q
	}

	var out contract.Response
	attempt := func() error {
		var body io.Reader
		if expected.Body.IsPresent() {
			body = bytes.NewReader(expected.Body.Content)
		}
		req, err := http.NewRequestWithContext(ctx, expected.Method, url, body)
		if err != nil {
			return backoff.Permanent(err)
		}
		for name, values := range expected.Headers {
			req.Header.Set(name, strings.Join(values, ", "))
		}
		for name, value := range v.headers {
			req.Header.Set(name, value)
		}
		if expected.Body.IsPresent() && req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", expected.Body.ContentType)
		}

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		out = contract.Response{
			Status:  resp.StatusCode,
			Headers: resp.Header,
			Body:    responseBody(raw, resp.Header.Get("Content-Type")),
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxElapsedTime = v.timeout
	if err := backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(policy, 2), ctx)); err != nil {
		return contract.Response{}, fmt.Errorf("request to %s: %w", url, err)
	}
	return out, nil
}

// messageRequest is the invocation the provider's message endpoint
// receives: which message to produce and under which states.
type messageRequest struct {
	Description    string                   `json:"description"`
	ProviderStates []contract.ProviderState `json:"providerStates,omitempty"`
}

// metadataHeader carries message metadata out-of-band, base64-encoded JSON.
const metadataHeader = "Pact-Message-Metadata"

// verifyMessage asks the provider's message endpoint to produce the named
// message and matches contents and metadata against the expectation.
func (v *Verifier) verifyMessage(ctx context.Context, client *http.Client, states *stateChange, consumer string, message *contract.Message) InteractionResult {
	result := InteractionResult{Consumer: consumer, Description: message.DisplayName()}
	log := v.log.With("message", message.Description)

	if err := states.run(ctx, message.ProviderStates, "setup"); err != nil {
		result.Error = err.Error()
		return result
	}
	defer func() {
		if err := states.run(ctx, message.ProviderStates, "teardown"); err != nil {
			log.Warn("state teardown failed", "error", err)
		}
	}()

	payload, err := json.Marshal(messageRequest{
		Description:    message.Description,
		ProviderStates: message.ProviderStates,
	})
	if err != nil {
		result.Error = err.Error()
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.transport.BaseURL(), bytes.NewReader(payload))
	if err != nil {
		result.Error = err.Error()
		return result
	}
	req.Header.Set("Content-Type", "application/json")
	for name, value := range v.headers {
		req.Header.Set(name, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		result.Error = fmt.Sprintf("message invocation: %v", err)
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		result.Error = fmt.Sprintf("message invocation: provider returned %d", resp.StatusCode)
		return result
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	metadata := decodeMetadataHeader(resp.Header.Get(metadataHeader))
	contents := responseBody(raw, resp.Header.Get("Content-Type"))
	result.Mismatches = matching.MatchMessage(message, contents, metadata)
	if len(result.Mismatches) > 0 {
		log.Debug("message mismatched", "mismatches", len(result.Mismatches))
	} else {
		log.Debug("message verified")
	}
	return result
}

func decodeMetadataHeader(value string) map[string]any {
	if value == "" {
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func responseBody(raw []byte, contentType string) contract.Body {
	if len(raw) == 0 {
		return contract.Body{State: contract.BodyMissing}
	}
	return contract.NewBinaryBody(raw, contentType)
}
