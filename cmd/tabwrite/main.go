// Command tabwrite dispatches updates to single-writer tables.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/tabwrite/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
