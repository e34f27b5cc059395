package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/getpactd/pactd/pkg/contract"
)

// stateChange drives the provider's state-change endpoint before and after
// each interaction. The provider receives a POST with the state name, its
// parameters, and the phase ("setup" or "teardown").
type stateChange struct {
	url    string
	client *http.Client
}

type stateChangeRequest struct {
	State  string         `json:"state"`
	Params map[string]any `json:"params,omitempty"`
	Action string         `json:"action"`
}

func (sc *stateChange) run(ctx context.Context, states []contract.ProviderState, action string) error {
	if sc.url == "" {
		return nil
	}
	for _, state := range states {
		payload, err := json.Marshal(stateChangeRequest{
			State:  state.Name,
			Params: state.Params,
			Action: action,
		})
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, sc.url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := sc.client.Do(req)
		if err != nil {
			return fmt.Errorf("state change %q (%s): %w", state.Name, action, err)
		}
		resp.Body.Close()
		if resp.StatusCode >= 400 {
			return fmt.Errorf("state change %q (%s): provider returned %d",
				state.Name, action, resp.StatusCode)
		}
	}
	return nil
}
