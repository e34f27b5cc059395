package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cenkalti/backoff/v4"

	"github.com/getpactd/pactd/pkg/contract"
)

// Source yields pact documents for verification.
type Source interface {
	// Describe names the source for diagnostics.
	Describe() string

	// Load fetches the source's pacts. Transient failures are retried
	// internally; an error here is terminal.
	Load(ctx context.Context) ([]*contract.Pact, error)
}

// FileSource loads a single pact file.
type FileSource struct {
	Path string
}

func (s FileSource) Describe() string { return "file " + s.Path }

func (s FileSource) Load(ctx context.Context) ([]*contract.Pact, error) {
	pact, err := contract.LoadFile(s.Path)
	if err != nil {
		return nil, err
	}
	return []*contract.Pact{pact}, nil
}

// DirectorySource loads every pact file under a directory. Glob defaults to
// "**/*.json" relative to the directory.
type DirectorySource struct {
	Dir  string
	Glob string
}

func (s DirectorySource) Describe() string { return "directory " + s.Dir }

func (s DirectorySource) Load(ctx context.Context) ([]*contract.Pact, error) {
	pattern := s.Glob
	if pattern == "" {
		pattern = "**/*.json"
	}
	matches, err := doublestar.Glob(os.DirFS(s.Dir), pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %q in %s: %w", pattern, s.Dir, err)
	}
	sort.Strings(matches)

	pacts := make([]*contract.Pact, 0, len(matches))
	for _, match := range matches {
		pact, err := contract.LoadFile(filepath.Join(s.Dir, match))
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", match, err)
		}
		pacts = append(pacts, pact)
	}
	return pacts, nil
}

// URLSource fetches a pact over HTTP, retrying transient failures.
type URLSource struct {
	URL     string
	Headers map[string]string

	client *http.Client
}

func (s URLSource) Describe() string { return "url " + s.URL }

func (s URLSource) Load(ctx context.Context) ([]*contract.Pact, error) {
	raw, err := fetchWithRetry(ctx, s.httpClient(), s.URL, s.Headers)
	if err != nil {
		return nil, err
	}
	pact, err := contract.Load(raw)
	if err != nil {
		return nil, fmt.Errorf("pact from %s: %w", s.URL, err)
	}
	return []*contract.Pact{pact}, nil
}

func (s URLSource) httpClient() *http.Client {
	if s.client != nil {
		return s.client
	}
	return http.DefaultClient
}

// BrokerSource fetches the latest pacts for a provider from a pact broker.
type BrokerSource struct {
	URL      string
	Provider string
	Token    string
	Username string
	Password string

	client *http.Client
}

func (s BrokerSource) Describe() string { return "broker " + s.URL }

// brokerIndex is the slice of the broker's HAL response we care about.
type brokerIndex struct {
	Links struct {
		Pacts []struct {
			Href string `json:"href"`
		} `json:"pb:pacts"`
	} `json:"_links"`
}

func (s BrokerSource) Load(ctx context.Context) ([]*contract.Pact, error) {
	index := fmt.Sprintf("%s/pacts/provider/%s/latest", s.URL, s.Provider)
	raw, err := fetchWithRetry(ctx, s.httpClient(), index, s.authHeaders())
	if err != nil {
		return nil, err
	}

	var idx brokerIndex
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, fmt.Errorf("broker index from %s: %w", index, err)
	}

	var pacts []*contract.Pact
	for _, link := range idx.Links.Pacts {
		raw, err := fetchWithRetry(ctx, s.httpClient(), link.Href, s.authHeaders())
		if err != nil {
			return nil, err
		}
		pact, err := contract.Load(raw)
		if err != nil {
			return nil, fmt.Errorf("pact from %s: %w", link.Href, err)
		}
		pacts = append(pacts, pact)
	}
	return pacts, nil
}

func (s BrokerSource) authHeaders() map[string]string {
	headers := map[string]string{"Accept": "application/hal+json, application/json"}
	if s.Token != "" {
		headers["Authorization"] = "Bearer " + s.Token
	}
	return headers
}

func (s BrokerSource) httpClient() *http.Client {
	if s.client != nil {
		return s.client
	}
	return http.DefaultClient
}

// fetchWithRetry GETs a URL, retrying connection errors and 5xx responses
// with capped exponential backoff. 4xx responses fail immediately.
func fetchWithRetry(ctx context.Context, client *http.Client, url string, headers map[string]string) ([]byte, error) {
	var body []byte

	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		for name, value := range headers {
			req.Header.Set(name, value)
		}

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
		case resp.StatusCode >= 400:
			return backoff.Permanent(fmt.Errorf("GET %s: status %d", url, resp.StatusCode))
		}

		body, err = io.ReadAll(resp.Body)
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxElapsedTime = 10 * time.Second
	if err := backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(policy, 3), ctx)); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	return body, nil
}
