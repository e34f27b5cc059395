package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/getpactd/pactd/pkg/bridge"
)

// verifyFlags is the flag state of one verify invocation.
type verifyFlags struct {
	configFile string

	provider string
	scheme   string
	host     string
	port     int
	basePath string

	dirs        []string
	files       []string
	urls        []string
	brokerURL   string
	brokerToken string

	stateURL    string
	filter      string
	headers     []string
	timeoutMs   int
	concurrency int
	h2c         bool
	pluginDir   string

	publishVersion string
	publishTags    []string
}

func newVerifyCmd(jsonOutput *bool) *cobra.Command {
	var flags verifyFlags

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Replay consumer contracts against a running provider",
		Long: `Replay consumer contracts against a running provider.

Contracts are gathered from the configured sources, every interaction is
sent to the provider, and the responses are matched against what each
consumer recorded. The command fails when any interaction mismatches.`,
		Example: `  # Verify pacts from a directory against a local provider
  pactd verify --provider order-api --port 8080 --dir ./pacts

  # Verify the provider's latest pacts from a broker
  pactd verify --provider order-api --port 8080 \
    --broker-url https://broker.example.com --broker-token $TOKEN

  # Drive the run from a config file, overriding the port
  pactd verify --config verify.yaml --port 9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, flags, *jsonOutput)
		},
	}

	cmd.Flags().StringVar(&flags.configFile, "config", "", "YAML file describing the verify run")
	cmd.Flags().StringVar(&flags.provider, "provider", "", "Provider name the contracts were written against")
	cmd.Flags().StringVar(&flags.scheme, "scheme", "http", "Provider scheme")
	cmd.Flags().StringVar(&flags.host, "host", "localhost", "Provider host")
	cmd.Flags().IntVar(&flags.port, "port", 8080, "Provider port")
	cmd.Flags().StringVar(&flags.basePath, "base-path", "", "Path prefix prepended to every interaction path")
	cmd.Flags().StringArrayVar(&flags.dirs, "dir", nil, "Directory of pact files (repeatable)")
	cmd.Flags().StringArrayVar(&flags.files, "file", nil, "Single pact file (repeatable)")
	cmd.Flags().StringArrayVar(&flags.urls, "url", nil, "Pact URL (repeatable)")
	cmd.Flags().StringVar(&flags.brokerURL, "broker-url", "", "Pact broker base URL")
	cmd.Flags().StringVar(&flags.brokerToken, "broker-token", "", "Pact broker bearer token")
	cmd.Flags().StringVar(&flags.stateURL, "state-url", "", "Provider state change endpoint")
	cmd.Flags().StringVar(&flags.filter, "filter", "", "Expression selecting which interactions to verify")
	cmd.Flags().StringArrayVar(&flags.headers, "header", nil, "Custom header name=value sent with every request (repeatable)")
	cmd.Flags().IntVar(&flags.timeoutMs, "timeout", 0, "Per-request timeout in milliseconds")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "How many interactions to exercise in parallel")
	cmd.Flags().BoolVar(&flags.h2c, "h2c", false, "Use cleartext HTTP/2 for provider requests")
	cmd.Flags().StringVar(&flags.pluginDir, "plugin-dir", "", "Directory of installed transport plugins")
	cmd.Flags().StringVar(&flags.publishVersion, "publish-version", "", "Provider version to publish results under")
	cmd.Flags().StringArrayVar(&flags.publishTags, "publish-tag", nil, "Tag to publish results with (repeatable)")
	return cmd
}

// mergeConfig folds a config file into the flag state. Flags the user set
// explicitly win; list-valued sources accumulate.
func mergeConfig(cmd *cobra.Command, flags *verifyFlags, cfg *verifyConfig) {
	if !cmd.Flags().Changed("provider") && cfg.Provider.Name != "" {
		flags.provider = cfg.Provider.Name
	}
	if !cmd.Flags().Changed("scheme") && cfg.Provider.Scheme != "" {
		flags.scheme = cfg.Provider.Scheme
	}
	if !cmd.Flags().Changed("host") && cfg.Provider.Host != "" {
		flags.host = cfg.Provider.Host
	}
	if !cmd.Flags().Changed("port") && cfg.Provider.Port != 0 {
		flags.port = cfg.Provider.Port
	}
	if !cmd.Flags().Changed("base-path") && cfg.Provider.Path != "" {
		flags.basePath = cfg.Provider.Path
	}
	flags.dirs = append(flags.dirs, cfg.Sources.Dirs...)
	flags.files = append(flags.files, cfg.Sources.Files...)
	flags.urls = append(flags.urls, cfg.Sources.URLs...)
	if flags.brokerURL == "" {
		flags.brokerURL = cfg.Sources.Broker.URL
		flags.brokerToken = cfg.Sources.Broker.Token
	}
	if flags.stateURL == "" {
		flags.stateURL = cfg.StateChangeURL
	}
	if flags.filter == "" {
		flags.filter = cfg.Filter
	}
	for name, value := range cfg.Headers {
		flags.headers = append(flags.headers, name+"="+value)
	}
	if flags.timeoutMs == 0 {
		flags.timeoutMs = cfg.TimeoutMs
	}
	if flags.concurrency == 0 {
		flags.concurrency = cfg.Concurrency
	}
	if !flags.h2c {
		flags.h2c = cfg.H2C
	}
	if flags.pluginDir == "" {
		flags.pluginDir = cfg.PluginDir
	}
	if flags.publishVersion == "" {
		flags.publishVersion = cfg.Publish.Version
		flags.publishTags = append(flags.publishTags, cfg.Publish.Tags...)
	}
}

func runVerify(cmd *cobra.Command, flags verifyFlags, jsonOutput bool) error {
	if flags.configFile != "" {
		cfg, err := loadVerifyConfig(flags.configFile)
		if err != nil {
			return err
		}
		mergeConfig(cmd, &flags, cfg)
	}
	if flags.provider == "" {
		return errors.New("a provider name is required (--provider or config file)")
	}

	h := bridge.NewVerifier()
	defer bridge.VerifierShutdown(h)

	if err := configureVerifier(h, flags); err != nil {
		return err
	}

	st := bridge.VerifierExecute(h)
	if st != bridge.StatusOK && st != bridge.StatusVerificationMismatch {
		return statusErr(st, h, "verification failed to run")
	}

	out, rst := bridge.VerifierResults(h)
	if !rst.Ok() {
		return statusErr(rst, h, "fetching results")
	}
	if err := printResults(cmd, out, jsonOutput); err != nil {
		return err
	}
	if st == bridge.StatusVerificationMismatch {
		return errors.New("verification completed with mismatches")
	}
	return nil
}

func configureVerifier(h bridge.Handle, flags verifyFlags) error {
	set := func(st bridge.Status, what string) error {
		return statusErr(st, h, what)
	}
	if err := set(bridge.VerifierSetProviderInfo(h, flags.provider, flags.scheme,
		flags.host, flags.port, flags.basePath), "provider info"); err != nil {
		return err
	}
	for _, dir := range flags.dirs {
		if err := set(bridge.VerifierAddDirectorySource(h, dir), "directory source"); err != nil {
			return err
		}
	}
	for _, file := range flags.files {
		if err := set(bridge.VerifierAddFileSource(h, file), "file source"); err != nil {
			return err
		}
	}
	for _, url := range flags.urls {
		if err := set(bridge.VerifierAddURLSource(h, url), "url source"); err != nil {
			return err
		}
	}
	if flags.brokerURL != "" {
		if err := set(bridge.VerifierAddBrokerSource(h, flags.brokerURL, flags.brokerToken), "broker source"); err != nil {
			return err
		}
	}
	if flags.stateURL != "" {
		if err := set(bridge.VerifierSetStateChangeURL(h, flags.stateURL), "state change url"); err != nil {
			return err
		}
	}
	if flags.filter != "" {
		if err := set(bridge.VerifierSetFilter(h, flags.filter), "filter"); err != nil {
			return err
		}
	}
	for _, header := range flags.headers {
		name, value, ok := strings.Cut(header, "=")
		if !ok {
			return fmt.Errorf("header %q is not name=value", header)
		}
		if err := set(bridge.VerifierAddCustomHeader(h, name, value), "custom header"); err != nil {
			return err
		}
	}
	if flags.timeoutMs > 0 {
		if err := set(bridge.VerifierSetRequestTimeout(h, flags.timeoutMs), "request timeout"); err != nil {
			return err
		}
	}
	if flags.concurrency > 0 {
		if err := set(bridge.VerifierSetConcurrency(h, flags.concurrency), "concurrency"); err != nil {
			return err
		}
	}
	if flags.h2c {
		if err := set(bridge.VerifierSetUseH2C(h, true), "h2c"); err != nil {
			return err
		}
	}
	if flags.pluginDir != "" {
		if err := set(bridge.VerifierSetPluginDirectory(h, flags.pluginDir), "plugin directory"); err != nil {
			return err
		}
	}
	if flags.publishVersion != "" {
		if err := set(bridge.VerifierSetPublishOptions(h, flags.publishVersion, flags.publishTags), "publish options"); err != nil {
			return err
		}
	}
	return nil
}

// reportedResult mirrors the JSON the boundary returns for a run.
type reportedResult struct {
	Provider     string `json:"provider"`
	Interactions []struct {
		Consumer    string `json:"consumer"`
		Description string `json:"description"`
		Mismatches  []struct {
			Type    string `json:"type"`
			Path    string `json:"path"`
			Message string `json:"mismatch"`
		} `json:"mismatches"`
		Error string `json:"error"`
	} `json:"interactions"`
}

func printResults(cmd *cobra.Command, rawJSON string, jsonOutput bool) error {
	if jsonOutput {
		cmd.Println(rawJSON)
		return nil
	}

	var result reportedResult
	if err := json.Unmarshal([]byte(rawJSON), &result); err != nil {
		return fmt.Errorf("results: %w", err)
	}

	passed, failed := 0, 0
	for _, ir := range result.Interactions {
		switch {
		case ir.Error != "":
			failed++
			cmd.Printf("ERROR %s: %s\n      %s\n", ir.Consumer, ir.Description, ir.Error)
		case len(ir.Mismatches) > 0:
			failed++
			cmd.Printf("FAIL  %s: %s\n", ir.Consumer, ir.Description)
			for _, m := range ir.Mismatches {
				if m.Path != "" {
					cmd.Printf("      %s at %s: %s\n", m.Type, m.Path, m.Message)
				} else {
					cmd.Printf("      %s: %s\n", m.Type, m.Message)
				}
			}
		default:
			passed++
			cmd.Printf("PASS  %s: %s\n", ir.Consumer, ir.Description)
		}
	}
	cmd.Printf("\n%s: %d passed, %d failed\n", result.Provider, passed, failed)
	return nil
}
