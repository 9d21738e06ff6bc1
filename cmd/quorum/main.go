// Command quorum runs quorum-gated portfolio governance.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/quorum/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
