package cli

import (
	"github.com/spf13/cobra"

	"github.com/getpactd/pactd/pkg/contract"
)

func newVersionCmd(info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("pactd %s (commit %s, built %s)\n", info.Version, info.Commit, info.BuildDate)
			cmd.Printf("pact library %s\n", contract.Version)
		},
	}
}
