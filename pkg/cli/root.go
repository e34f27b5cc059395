package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/getpactd/pactd/pkg/bridge"
)

// BuildInfo carries the version identifiers injected at build time.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// NewRootCmd builds the pactd command tree. Commands carry their own flag
// state, so a fresh tree is safe to execute more than once per process.
func NewRootCmd(info BuildInfo) *cobra.Command {
	var (
		jsonOutput bool
		logLevel   string
	)

	rootCmd := &cobra.Command{
		Use:   "pactd",
		Short: "pactd verifies and serves consumer-driven contracts",
		Long: `pactd replays consumer contracts against real providers and serves
contracts as mock providers for consumer tests.

Contracts can come from local files and directories, plain URLs, or a
pact broker. Configuration can be provided via flags or a YAML file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Diagnostics go to stderr so stdout stays parseable. The sink
			// is process-wide and configure-once; later trees inherit it.
			if st := bridge.LogInit(); st.Ok() {
				bridge.LogAttachSink("stderr", logLevel)
				bridge.LogApply()
			}
		},
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output command results in JSON format")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Diagnostic level (debug, info, warn, error)")

	rootCmd.AddCommand(newVerifyCmd(&jsonOutput))
	rootCmd.AddCommand(newMockCmd())
	rootCmd.AddCommand(newVersionCmd(info))
	return rootCmd
}

// Execute runs the CLI. Called by main.main().
func Execute(info BuildInfo) {
	if err := NewRootCmd(info).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// statusErr converts a non-OK boundary status into an error, pulling the
// session's recorded detail when there is any.
func statusErr(st bridge.Status, h bridge.Handle, what string) error {
	if st.Ok() {
		return nil
	}
	if detail := bridge.LastError(h); detail != "" {
		return fmt.Errorf("%s: %s (%s)", what, detail, st)
	}
	return fmt.Errorf("%s: %s", what, st)
}
