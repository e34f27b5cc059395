package verifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/getpactd/pactd/pkg/contract"
	"github.com/getpactd/pactd/pkg/logging"
	"github.com/getpactd/pactd/pkg/matching"
)

// ErrNoSources is returned by Execute when no pact source was configured.
var ErrNoSources = errors.New("verifier: no pact sources configured")

// PluginDriver exercises interactions that declare a non-HTTP transport.
// Implemented by pkg/plugin; injected so the verifier never links plugin
// machinery it does not use.
type PluginDriver interface {
	Verify(ctx context.Context, transport Transport, interaction *contract.Interaction) ([]matching.Mismatch, error)
}

// Verifier drives one verification run against a provider.
type Verifier struct {
	log    *slog.Logger
	plugin PluginDriver

	provider    string
	transport   Transport
	sources     []Source
	stateURL    string
	filterExpr  string
	headers     map[string]string
	timeout     time.Duration
	concurrency int
	useH2C      bool

	publish         bool
	providerVersion string
	providerTags    []string
}

// Option customizes a Verifier at construction.
type Option func(*Verifier)

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) Option {
	return func(v *Verifier) {
		if log != nil {
			v.log = log
		}
	}
}

// WithPluginDriver wires the driver used for plugin-transport interactions.
func WithPluginDriver(d PluginDriver) Option {
	return func(v *Verifier) { v.plugin = d }
}

// New creates an unconfigured Verifier.
func New(opts ...Option) *Verifier {
	v := &Verifier{
		log:         logging.Nop(),
		headers:     make(map[string]string),
		timeout:     30 * time.Second,
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// SetProviderInfo configures the provider's name and main transport.
func (v *Verifier) SetProviderInfo(name, scheme, host string, port int, path string) {
	v.provider = name
	v.transport = Transport{Scheme: scheme, Host: host, Port: port, Path: path}
}

// Provider returns the configured provider name.
func (v *Verifier) Provider() string { return v.provider }

// AddSource appends a pact source.
func (v *Verifier) AddSource(s Source) { v.sources = append(v.sources, s) }

// AddFileSource appends a single pact file source.
func (v *Verifier) AddFileSource(path string) { v.AddSource(FileSource{Path: path}) }

// AddDirectorySource appends a directory source with the default glob.
func (v *Verifier) AddDirectorySource(dir string) { v.AddSource(DirectorySource{Dir: dir}) }

// AddURLSource appends a URL source.
func (v *Verifier) AddURLSource(url string) { v.AddSource(URLSource{URL: url}) }

// AddBrokerSource appends a broker source for this verifier's provider.
func (v *Verifier) AddBrokerSource(url, token string) {
	v.AddSource(BrokerSource{URL: url, Provider: v.provider, Token: token})
}

// SetStateChangeURL configures the provider-state endpoint. Empty disables
// state changes.
func (v *Verifier) SetStateChangeURL(url string) { v.stateURL = url }

// SetFilter restricts verification to interactions matching an expr-lang
// expression over description, states, and consumer.
func (v *Verifier) SetFilter(expression string) { v.filterExpr = expression }

// AddCustomHeader adds a header sent with every provider request.
func (v *Verifier) AddCustomHeader(name, value string) { v.headers[name] = value }

// SetRequestTimeout bounds each provider request.
func (v *Verifier) SetRequestTimeout(d time.Duration) {
	if d > 0 {
		v.timeout = d
	}
}

// SetConcurrency bounds how many interactions are exercised in parallel.
func (v *Verifier) SetConcurrency(n int) {
	if n > 0 {
		v.concurrency = n
	}
}

// SetUseH2C switches the provider client to cleartext HTTP/2.
func (v *Verifier) SetUseH2C(enabled bool) { v.useH2C = enabled }

// SetPluginDriver replaces the driver used for plugin-transport
// interactions.
func (v *Verifier) SetPluginDriver(d PluginDriver) { v.plugin = d }

// SetPublishOptions records the provider version and tags to publish with
// verification results. Publishing only happens when a broker source is
// configured.
func (v *Verifier) SetPublishOptions(providerVersion string, tags []string) {
	v.publish = true
	v.providerVersion = providerVersion
	v.providerTags = tags
}

// workItem is one interaction or message queued for verification.
type workItem struct {
	consumer    string
	interaction *contract.Interaction
	message     *contract.Message
}

// Execute runs the verification: gather, filter, exercise, aggregate. One
// interaction's failure never aborts the rest. The returned result lists
// every interaction; err is non-nil only when the run itself could not
// proceed (bad sources, bad filter).
func (v *Verifier) Execute(ctx context.Context) (*Result, error) {
	if len(v.sources) == 0 {
		return nil, ErrNoSources
	}

	filter, err := newInteractionFilter(v.filterExpr)
	if err != nil {
		return nil, err
	}

	var items []workItem
	for _, source := range v.sources {
		pacts, err := source.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", source.Describe(), err)
		}
		for _, pact := range pacts {
			consumer := pact.Consumer.Name
			for _, interaction := range pact.Interactions {
				if filter.keepInteraction(interaction, consumer) {
					items = append(items, workItem{consumer: consumer, interaction: interaction})
				}
			}
			for _, message := range pact.Messages {
				if filter.keepMessage(message, consumer) {
					items = append(items, workItem{consumer: consumer, message: message})
				}
			}
		}
	}

	v.log.Info("verification starting",
		"provider", v.provider,
		"interactions", len(items),
		"sources", len(v.sources))

	client := newHTTPClient(v.timeout, v.useH2C)
	states := &stateChange{url: v.stateURL, client: &http.Client{Timeout: v.timeout}}

	results := make([]InteractionResult, len(items))
	sem := make(chan struct{}, v.concurrency)
	var wg sync.WaitGroup
	for idx, item := range items {
		wg.Add(1)
		go func(idx int, item workItem) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[idx] = v.verifyOne(ctx, client, states, item)
		}(idx, item)
	}
	wg.Wait()

	result := &Result{Provider: v.provider, Interactions: results}
	v.log.Info("verification finished",
		"provider", v.provider,
		"passed", result.Passed(),
		"failed", result.Failed())

	if v.publish {
		// Result publication needs a broker to publish to; without one the
		// flag is recorded but nothing is sent.
		v.log.Debug("publish requested",
			"providerVersion", v.providerVersion,
			"tags", v.providerTags)
	}
	return result, nil
}

func (v *Verifier) verifyOne(ctx context.Context, client *http.Client, states *stateChange, item workItem) InteractionResult {
	if item.message != nil {
		return v.verifyMessage(ctx, client, states, item.consumer, item.message)
	}
	if item.interaction.Transport != "" {
		return v.verifyPlugin(ctx, item.consumer, item.interaction)
	}
	return v.verifyHTTP(ctx, client, states, item.consumer, item.interaction)
}

func (v *Verifier) verifyPlugin(ctx context.Context, consumer string, interaction *contract.Interaction) InteractionResult {
	result := InteractionResult{Consumer: consumer, Description: interaction.DisplayName()}
	if v.plugin == nil {
		result.Error = fmt.Sprintf("interaction requires the %q transport but no plugin driver is configured", interaction.Transport)
		return result
	}
	mismatches, err := v.plugin.Verify(ctx, v.transport, interaction)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Mismatches = mismatches
	return result
}
