// pactd CLI - contract verification and mock provider tooling
package main

import "github.com/getpactd/pactd/pkg/cli"

// Build-time variables set via ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	cli.Execute(cli.BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
	})
}
