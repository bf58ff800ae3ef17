package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/thinkerbot/tap-sub003/internal/audit"
	"github.com/thinkerbot/tap-sub003/internal/builder"
	"github.com/thinkerbot/tap-sub003/internal/engine"
	"github.com/thinkerbot/tap-sub003/internal/ir"
	"github.com/thinkerbot/tap-sub003/internal/metrics"
	"github.com/thinkerbot/tap-sub003/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database    string
	Dump        bool
	MaxSteps    int
	MetricsFile string

	// RunIDGenerator allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDGenerator engine.RunIDGenerator
}

// RunOutput is the outcome of a run.
type RunOutput struct {
	RunID     string        `json:"run_id"`
	Workflow  string        `json:"workflow"`
	Status    string        `json:"status"`
	Steps     int64         `json:"steps"`
	Remaining int           `json:"remaining,omitempty"`
	Results   []ResultEntry `json:"results"`
	Dump      string        `json:"dump,omitempty"`
}

// ResultEntry is one aggregated result.
type ResultEntry struct {
	Node  string `json:"node"`
	Value any    `json:"value"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <workflow>",
		Short: "Run a workflow",
		Long: `Build a workflow document (.yaml, .json or .cue) and run it until the
queue drains.

With --db every invocation result and its sources are recorded in a SQLite
database (created if it doesn't exist), so the run can later be inspected
with dump and trail. An interrupt stops the run after the current
invocation; a second interrupt terminates it.

Example:
  tap run ./workflow.yaml
  tap run --db ./tap.db --dump ./workflow.cue
  tap run --max-steps 100 --metrics-file ./tap.prom ./workflow.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database to record the run in")
	cmd.Flags().BoolVar(&opts.Dump, "dump", false, "print the audit dump of the results")
	cmd.Flags().IntVar(&opts.MaxSteps, "max-steps", 0, "invocation quota, overriding the workflow's (0 = workflow default)")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this file after the run")

	return cmd
}

func runWorkflow(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := formatter.Logger()

	w, err := LoadWorkflow(path)
	if err != nil {
		return reportError(formatter, loadErrorCode(err), ExitCommandError, "failed to load workflow", err)
	}
	if w.Name == "" {
		w.Name = workflowName(path)
	}
	hash, err := ir.WorkflowHash(w)
	if err != nil {
		return reportError(formatter, ErrCodeInvalid, ExitFailure, "failed to hash workflow", err)
	}

	var observers []engine.Observer
	if opts.Verbose {
		observers = append(observers, engine.NewLoggingObserver(logger))
	}

	var (
		st  *store.Store
		rec *store.Recorder
	)
	if opts.Database != "" {
		logger.Info("opening database", "path", opts.Database)
		st, err = store.Open(opts.Database)
		if err != nil {
			return reportError(formatter, ErrCodeNotFound, ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		rec = store.NewRecorder(st, store.WithWorkflow(w.Name, hash), store.WithRecorderLogger(logger))
		observers = append(observers, rec)
	}

	var reg *prometheus.Registry
	if opts.MetricsFile != "" {
		reg = prometheus.NewRegistry()
		m, err := metrics.NewObserver(reg)
		if err != nil {
			return reportError(formatter, ErrCodeGeneric, ExitCommandError, "failed to register metrics", err)
		}
		observers = append(observers, m)
	}

	maxSteps := w.MaxSteps
	if opts.MaxSteps > 0 {
		maxSteps = opts.MaxSteps
	}
	appOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithObserver(engine.NewCompositeObserver(observers...)),
		engine.WithMaxSteps(maxSteps),
		engine.WithDebug(opts.Debug),
		engine.WithErrorHook(engine.PrintErrorHook(cmd.ErrOrStderr())),
	}
	if opts.RunIDGenerator != nil {
		appOpts = append(appOpts, engine.WithRunID(opts.RunIDGenerator))
	}
	app := engine.NewApp(appOpts...)

	if _, err := builder.New(nil, builder.WithLogger(logger)).Build(app, w); err != nil {
		return reportError(formatter, ErrCodeInvalid, ExitFailure, "failed to build workflow", err)
	}

	// Use command's context if available (for testing), otherwise create one
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	stopSignals := handleSignals(ctx, app, logger)
	defer stopSignals()

	logger.Info("run starting", "run_id", app.RunID(), "workflow", w.Name, "queued", app.QueueLen())
	runErr := app.Run(ctx)
	cancelled := errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded)

	out := RunOutput{
		RunID:     app.RunID(),
		Workflow:  w.Name,
		Status:    ir.RunCompleted,
		Steps:     int64(app.Quota().Current()),
		Remaining: app.QueueLen(),
		Results:   collectResults(app),
	}
	if rec != nil {
		out.Steps = rec.Steps()
	}
	switch {
	case cancelled || (runErr == nil && out.Remaining > 0):
		out.Status = ir.RunStopped
		if st != nil {
			// The recorder marks a run completed when Run returns nil.
			if err := st.FinishRun(context.WithoutCancel(ctx), out.RunID, ir.RunStopped, "", out.Steps); err != nil {
				logger.Error("failed to mark run stopped", "run_id", out.RunID, "error", err)
			}
		}
	case runErr != nil:
		out.Status = ir.RunFailed
	}
	if opts.Dump {
		out.Dump = audit.DumpString(app.Aggregator().All()...)
	}

	if rec != nil {
		if err := rec.Err(); err != nil {
			logger.Error("audit recording failed", "run_id", out.RunID, "error", err)
		}
	}
	if reg != nil {
		if err := prometheus.WriteToTextfile(opts.MetricsFile, reg); err != nil {
			logger.Error("failed to write metrics", "path", opts.MetricsFile, "error", err)
		}
	}

	if runErr != nil && !cancelled {
		if formatter.JSON() {
			_ = formatter.encode(CLIResponse{
				Status: "error",
				Data:   out,
				Error: &CLIError{
					Code:    ErrCodeRunFailed,
					Message: runErr.Error(),
					Details: map[string]string{"kind": engine.ErrorKind(runErr)},
				},
				RunID: out.RunID,
			})
		} else {
			writeRunText(formatter, out)
		}
		// The error hook or the JSON response has reported runErr.
		exitErr := WrapExitError(ExitFailure, "run failed", runErr)
		exitErr.Reported = true
		return exitErr
	}

	if formatter.JSON() {
		return formatter.encode(CLIResponse{Status: "ok", Data: out, RunID: out.RunID})
	}
	writeRunText(formatter, out)
	return nil
}

// handleSignals stops app on the first interrupt and terminates it on the
// second. The returned func releases the signal handler.
func handleSignals(ctx context.Context, app *engine.App, logger *slog.Logger) func() {
	ctx, cancel := context.WithCancel(ctx)
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		stopped := false
		for {
			select {
			case sig := <-sigChan:
				if !stopped {
					logger.Info("received signal, stopping", "signal", sig)
					app.Stop()
					stopped = true
					continue
				}
				logger.Info("received signal, terminating", "signal", sig)
				app.Terminate()
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigChan) // Prevent signal handler leak
		cancel()
	}
}

// collectResults lists the aggregated results grouped by node.
func collectResults(app *engine.App) []ResultEntry {
	agg := app.Aggregator()
	out := []ResultEntry{}
	for _, n := range agg.Nodes() {
		for _, v := range agg.Values(n) {
			out = append(out, ResultEntry{Node: n.Name(), Value: v})
		}
	}
	return out
}

func writeRunText(f *OutputFormatter, out RunOutput) {
	w := f.Writer
	fmt.Fprintf(w, "run %s %s (%d steps", out.RunID, out.Status, out.Steps)
	if out.Remaining > 0 {
		fmt.Fprintf(w, ", %d queued", out.Remaining)
	}
	fmt.Fprintln(w, ")")
	for _, r := range out.Results {
		fmt.Fprintf(w, "%s: %s\n", r.Node, audit.FormatValue(r.Value))
	}
	if out.Dump != "" {
		fmt.Fprintln(w)
		fmt.Fprint(w, out.Dump)
	}
}

// reportError returns the ExitError for a failure, writing it as a JSON
// response first when output is JSON. Text-mode errors are printed by the
// caller of Execute.
func reportError(f *OutputFormatter, code string, exit int, message string, err error) error {
	exitErr := WrapExitError(exit, message, err)
	if f.JSON() {
		if outErr := f.Error(code, exitErr.Error(), nil); outErr != nil {
			return outErr
		}
	}
	return exitErr
}
