package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/thinkerbot/tap-sub003/internal/audit"
	"github.com/thinkerbot/tap-sub003/internal/ir"
	"github.com/thinkerbot/tap-sub003/internal/store"
)

// RunQueryOptions holds flags shared by commands reading a recorded run.
type RunQueryOptions struct {
	*RootOptions
	Database string
	RunID    string // empty selects the latest run
	Node     string // optional - filter results to one node
}

// DumpResult is the output of the dump command.
type DumpResult struct {
	Run     ir.RunRecord  `json:"run"`
	Results []ResultEntry `json:"results"`
	Dump    string        `json:"dump"`
}

// TrailEntry is the trail of one aggregated result.
type TrailEntry struct {
	Node     string `json:"node"`
	Position int    `json:"position"`
	Keys     []any  `json:"keys"`
	Values   []any  `json:"values"`
}

// TrailResult is the output of the trail command.
type TrailResult struct {
	Run    ir.RunRecord `json:"run"`
	Trails []TrailEntry `json:"trails"`
}

func addRunQueryFlags(cmd *cobra.Command, opts *RunQueryOptions) {
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id (defaults to the latest run)")
	cmd.Flags().StringVar(&opts.Node, "node", "", "only show results of this node")
}

// NewDumpCommand creates the dump command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunQueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the audit dump of a recorded run",
		Long: `Print the audit dump of a run recorded with tap run --db.

The dump lays out every aggregated result with the calls that produced
it, merges drawn as converging branches, exactly as the live run would
have rendered it.

Examples:
  tap dump --db ./tap.db
  tap dump --db ./tap.db --run 0190a6c1-...
  tap dump --db ./tap.db --node all --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(opts, cmd)
		},
	}
	addRunQueryFlags(cmd, opts)

	return cmd
}

// NewTrailCommand creates the trail command.
func NewTrailCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunQueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trail",
		Short: "Print the provenance trails of a recorded run",
		Long: `Print the trail of each aggregated result of a recorded run: the
keys (and values) of the audits it was built from, oldest first, with
merged inputs as nested lists.

Examples:
  tap trail --db ./tap.db
  tap trail --db ./tap.db --node all --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrail(opts, cmd)
		},
	}
	addRunQueryFlags(cmd, opts)

	return cmd
}

// readRun opens the database and reads the selected run.
func readRun(ctx context.Context, opts *RunQueryOptions) (*store.Run, error) {
	if _, err := os.Stat(opts.Database); err != nil {
		return nil, fmt.Errorf("database not found: %s", opts.Database)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	runID := opts.RunID
	if runID == "" {
		rec, err := st.LatestRun(ctx)
		if err != nil {
			return nil, fmt.Errorf("latest run: %w", err)
		}
		runID = rec.ID
	}
	return st.ReadRun(ctx, runID)
}

// selectResults returns the results of run, filtered to node when set.
func selectResults(run *store.Run, node string) []store.Result {
	if node == "" {
		return run.Results
	}
	var out []store.Result
	for _, r := range run.Results {
		if r.Node == node {
			out = append(out, r)
		}
	}
	return out
}

func runDump(opts *RunQueryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	run, err := readRun(cmd.Context(), opts)
	if err != nil {
		return reportError(formatter, ErrCodeNotFound, ExitCommandError, "failed to read run", err)
	}
	formatter.VerboseLog("Read run %s: %d audit(s), %d result(s)", run.Record.ID, len(run.Audits), len(run.Results))

	results := selectResults(run, opts.Node)
	audits := make([]*audit.Audit, len(results))
	entries := make([]ResultEntry, len(results))
	for i, r := range results {
		audits[i] = r.Audit
		entries[i] = ResultEntry{Node: r.Node, Value: r.Audit.Value()}
	}
	out := DumpResult{Run: run.Record, Results: entries, Dump: audit.DumpString(audits...)}

	if formatter.JSON() {
		return formatter.encode(CLIResponse{Status: "ok", Data: out, RunID: run.Record.ID})
	}

	w := formatter.Writer
	fmt.Fprintf(w, "run %s %s (workflow %s, %d steps)\n", out.Run.ID, out.Run.Status, out.Run.WorkflowName, out.Run.Steps)
	if out.Run.Error != "" {
		fmt.Fprintf(w, "error: %s\n", out.Run.Error)
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No results.")
		return nil
	}
	fmt.Fprintln(w)
	fmt.Fprint(w, out.Dump)
	return nil
}

func runTrail(opts *RunQueryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	run, err := readRun(cmd.Context(), opts)
	if err != nil {
		return reportError(formatter, ErrCodeNotFound, ExitCommandError, "failed to read run", err)
	}

	out := TrailResult{Run: run.Record, Trails: []TrailEntry{}}
	positions := make(map[string]int)
	for _, r := range selectResults(run, opts.Node) {
		out.Trails = append(out.Trails, TrailEntry{
			Node:     r.Node,
			Position: positions[r.Node],
			Keys:     audit.TrailKeys(r.Audit),
			Values:   audit.TrailValues(r.Audit),
		})
		positions[r.Node]++
	}

	if formatter.JSON() {
		return formatter.encode(CLIResponse{Status: "ok", Data: out, RunID: run.Record.ID})
	}

	w := formatter.Writer
	fmt.Fprintf(w, "run %s %s (workflow %s)\n", out.Run.ID, out.Run.Status, out.Run.WorkflowName)
	if len(out.Trails) == 0 {
		fmt.Fprintln(w, "No results.")
		return nil
	}
	for _, t := range out.Trails {
		fmt.Fprintf(w, "%s[%d]: %s\n", t.Node, t.Position, formatTrail(t.Keys))
		fmt.Fprintf(w, "  values: %s\n", audit.FormatValue(t.Values))
	}
	return nil
}

// formatTrail renders trail keys as canonical JSON, falling back to the
// printed form.
func formatTrail(keys []any) string {
	data, err := ir.MarshalCanonical(keys)
	if err != nil {
		return fmt.Sprint(keys)
	}
	return string(data)
}
