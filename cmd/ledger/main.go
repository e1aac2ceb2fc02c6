// Command ledger runs the permissioned ledger from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/ledger/internal/cli"
)

// Build information injected via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	root := cli.NewRootCommand()
	root.Version = fmt.Sprintf("%s (commit: %s)", version, commit)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error [%s]: %v\n", cli.ErrorCode(err), err)
		os.Exit(cli.GetExitCode(err))
	}
}
