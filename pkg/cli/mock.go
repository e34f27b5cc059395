package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/getpactd/pactd/pkg/bridge"
)

func newMockCmd() *cobra.Command {
	var (
		port     int
		writeDir string
		override bool
	)

	cmd := &cobra.Command{
		Use:   "mock <pact-file>",
		Short: "Serve a pact file as a mock provider",
		Long: `Serve a pact file as a mock provider.

The server plays back the pact's interactions for consumer tests and
runs until interrupted. On shutdown the command fails if any interaction
went unexercised or any unexpected request arrived.`,
		Example: `  # Serve a pact on an ephemeral port
  pactd mock ./pacts/web-order-api.json

  # Serve on a fixed port and rewrite the pact when everything matched
  pactd mock ./pacts/web-order-api.json --port 1234 --write-dir ./pacts`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMock(cmd, args[0], port, writeDir, override)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "Port to listen on (0 picks a free one)")
	cmd.Flags().StringVar(&writeDir, "write-dir", "", "Directory to write the pact to after a fully matched run")
	cmd.Flags().BoolVar(&override, "overwrite", false, "Replace an existing pact file instead of merging")
	return cmd
}

func runMock(cmd *cobra.Command, pactFile string, port int, writeDir string, overwrite bool) error {
	raw, err := os.ReadFile(pactFile)
	if err != nil {
		return err
	}

	h, st := bridge.CreateMockServer(string(raw), port)
	if !st.Ok() {
		return fmt.Errorf("starting mock server: %s", st)
	}
	defer bridge.MockServerShutdown(h)

	bound, st := bridge.MockServerPort(h)
	if err := statusErr(st, h, "mock server port"); err != nil {
		return err
	}
	cmd.Printf("mock provider listening on http://127.0.0.1:%d\n", bound)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	if !bridge.MockServerMatched(h) {
		if out, st := bridge.MockServerMismatches(h); st.Ok() {
			cmd.Println(out)
		}
		return errors.New("mock provider stopped with unmatched interactions")
	}

	cmd.Println("all interactions matched")
	if writeDir != "" {
		if st := bridge.MockServerWritePact(h, writeDir, overwrite); !st.Ok() {
			return statusErr(st, h, "writing pact")
		}
	}
	return nil
}
