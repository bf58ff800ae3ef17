// Command tap runs audited workflows and inspects their recorded runs.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/thinkerbot/tap-sub003/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		if !cli.IsReported(err) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
