package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// These should be set via `go build` during a release.
var (
	GitCommit = "undefined"
	GitRef    = "no-ref"
	Version   = "local"
)

func main() {
	root := cobra.Command{
		Use:   "autosnap",
		Short: "Policy-driven lifecycle for EBS volume snapshots",
	}

	root.AddCommand(
		NewRunCommand(Version),
		NewVersionCommand(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
