package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/thinkerbot/tap-sub003/internal/builder"
	"github.com/thinkerbot/tap-sub003/internal/compiler"
	"github.com/thinkerbot/tap-sub003/internal/engine"
	"github.com/thinkerbot/tap-sub003/internal/ir"
	"github.com/thinkerbot/tap-sub003/internal/nodes"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Manifest bool // include the build manifest in the output
}

// ValidationIssue is a single validation error.
type ValidationIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                    `json:"valid"`
	Workflow string                  `json:"workflow"`
	Hash     string                  `json:"hash,omitempty"`
	Nodes    int                     `json:"nodes"`
	Joins    int                     `json:"joins"`
	Errors   []ValidationIssue       `json:"errors,omitempty"`
	Warnings []compiler.CycleWarning `json:"warnings,omitempty"`
	Manifest *ir.Manifest            `json:"manifest,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <workflow>",
		Short: "Validate a workflow without running it",
		Long: `Validate a workflow document without running it.

Checks the join structure (cardinality, index references), resolves every
process against the builtin registry and wires the graph onto a scratch
App. Cycles in the join graph are reported as warnings.

Examples:
  tap validate ./workflow.yaml
  tap validate --format json --manifest ./workflow.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Manifest, "manifest", false, "print the build manifest")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	w, err := LoadWorkflow(path)
	if err != nil {
		return reportError(formatter, loadErrorCode(err), ExitCommandError, "failed to load workflow", err)
	}
	if w.Name == "" {
		w.Name = workflowName(path)
	}
	formatter.VerboseLog("Loaded workflow %s: %d node(s), %d join(s)", w.Name, len(w.Nodes), len(w.Joins))

	result := validateWorkflow(w, nodes.Default())
	if result.Valid {
		if hash, err := ir.WorkflowHash(w); err == nil {
			result.Hash = hash
		}
		if opts.Manifest {
			result.Manifest = ir.ManifestOf(w)
		}
	}

	if formatter.JSON() {
		resp := CLIResponse{Status: "ok", Data: result}
		if !result.Valid {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    ErrCodeInvalid,
				Message: fmt.Sprintf("%d validation error(s)", len(result.Errors)),
			}
		}
		if err := formatter.encode(resp); err != nil {
			return err
		}
	} else {
		writeValidationText(formatter.Writer, result)
	}

	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("workflow %s is invalid", w.Name))
	}
	return nil
}

// validateWorkflow checks w structurally and, when that passes, wires it
// onto a scratch App to resolve processes and join options.
func validateWorkflow(w *ir.Workflow, reg *nodes.Registry) ValidationResult {
	result := ValidationResult{
		Workflow: w.Name,
		Nodes:    len(w.Nodes),
		Joins:    len(w.Joins),
		Warnings: compiler.AnalyzeCycles(w),
	}

	for _, e := range w.Validate() {
		result.Errors = append(result.Errors, ValidationIssue{Field: e.Field, Message: e.Message})
	}
	if len(result.Errors) == 0 {
		app := engine.NewApp(engine.WithLogger(discardLogger()))
		if _, err := builder.New(reg, builder.WithLogger(discardLogger())).Build(app, w); err != nil {
			result.Errors = append(result.Errors, ValidationIssue{Field: "build", Message: err.Error()})
		}
	}

	result.Valid = len(result.Errors) == 0
	return result
}

func writeValidationText(w io.Writer, result ValidationResult) {
	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn.Message)
	}
	if !result.Valid {
		fmt.Fprintf(w, "Workflow %s is invalid:\n", result.Workflow)
		for _, e := range result.Errors {
			fmt.Fprintf(w, "  %s: %s\n", e.Field, e.Message)
		}
		return
	}
	fmt.Fprintf(w, "Workflow %s is valid (%d nodes, %d joins)\n", result.Workflow, result.Nodes, result.Joins)
	if result.Manifest != nil {
		for _, a := range result.Manifest.Actions() {
			fmt.Fprintf(w, "  %s\n", describeAction(a))
		}
	}
}

// describeAction renders a manifest action on one line.
func describeAction(a ir.Action) string {
	switch x := a.(type) {
	case ir.AddNode:
		return fmt.Sprintf("add_node %d %s", x.Node.IndexOf(x.Pos), x.Node.Process)
	case ir.AddJoin:
		return fmt.Sprintf("add_join %s %v -> %v", x.Join.Type, x.Join.Inputs, x.Join.Outputs)
	case ir.Enqueue:
		return fmt.Sprintf("enqueue %d (%d args)", x.Index, len(x.Args))
	default:
		return a.Op()
	}
}
