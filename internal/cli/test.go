package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/thinkerbot/tap-sub003/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run scenario tests",
		Long: `Run the scenario files (*.yaml) under a directory.

Each scenario runs its workflow with a fixed run id against an in-memory
store, checks the expected outcome and assertions, then compares a
snapshot of the trace, results and audit dump with golden/<name>.golden
next to the scenario when that file exists.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  tap test ./scenarios
  tap test ./scenarios --filter "fanout*"
  tap test ./scenarios --update
  tap test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if _, err := os.Stat(scenariosDir); os.IsNotExist(err) {
		return reportError(formatter, ErrCodeNotFound, ExitCommandError, "scenarios directory not found", fmt.Errorf("%s", scenariosDir))
	}

	suite, err := harness.RunSuite(cmd.Context(), scenariosDir, harness.SuiteOptions{
		Filter:  opts.Filter,
		Update:  opts.Update,
		Options: []harness.Option{harness.WithLogger(formatter.Logger())},
	})
	if err != nil {
		return reportError(formatter, ErrCodeGeneric, ExitCommandError, "failed to run scenarios", err)
	}

	if formatter.JSON() {
		return outputTestJSON(formatter, suite)
	}
	return outputTestText(formatter, suite)
}

// outputTestJSON outputs the suite result as JSON.
func outputTestJSON(f *OutputFormatter, suite *harness.SuiteResult) error {
	response := CLIResponse{Status: "ok", Data: suite}
	if suite.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeTestFailed,
			Message: fmt.Sprintf("%d scenario(s) failed", suite.Failed),
		}
	}
	if err := f.encode(response); err != nil {
		return err
	}

	if suite.Failed > 0 {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", suite.Failed))
	}
	return nil
}

// outputTestText outputs the suite result as text.
func outputTestText(f *OutputFormatter, suite *harness.SuiteResult) error {
	w := f.Writer

	if suite.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return nil
	}

	for _, o := range suite.Scenarios {
		status := "PASS"
		if !o.Pass {
			status = "FAIL"
		}
		switch o.Golden {
		case harness.GoldenUpdated:
			fmt.Fprintf(w, "%s %s (golden updated)\n", status, o.Name)
		case harness.GoldenMatch:
			fmt.Fprintf(w, "%s %s (golden match)\n", status, o.Name)
		default:
			fmt.Fprintf(w, "%s %s\n", status, o.Name)
		}
		for _, e := range o.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", suite.Passed, suite.Failed, suite.Total)

	if suite.Failed > 0 {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", suite.Failed))
	}

	fmt.Fprintln(w, "All scenarios passed")
	return nil
}
