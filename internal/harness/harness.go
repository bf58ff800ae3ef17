package harness

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/thinkerbot/tap-sub003/internal/audit"
	"github.com/thinkerbot/tap-sub003/internal/builder"
	"github.com/thinkerbot/tap-sub003/internal/compiler"
	"github.com/thinkerbot/tap-sub003/internal/engine"
	"github.com/thinkerbot/tap-sub003/internal/ir"
	"github.com/thinkerbot/tap-sub003/internal/nodes"
	"github.com/thinkerbot/tap-sub003/internal/store"
)

// DefaultRunID is the run id of scenarios that do not set run_id.
const DefaultRunID = "test-run-default"

// Harness is the scenario execution environment: a fresh App with a fixed
// run id, recorded into an in-memory store.
type Harness struct {
	store    *store.Store
	app      *engine.App
	recorder *store.Recorder
	tracer   *tracer
	logger   *slog.Logger
	registry *nodes.Registry
}

// Option configures Run.
type Option func(*Harness)

// WithRegistry runs scenarios against a custom process registry instead of
// the builtins.
func WithRegistry(r *nodes.Registry) Option {
	return func(h *Harness) { h.registry = r }
}

// WithLogger sets the logger for the App and the recorder.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Execution flow:
//  1. Load the workflow and open an in-memory store
//  2. Build the workflow on an App observed by a recorder and a tracer
//  3. Enqueue the scenario's extra calls
//  4. Run to completion and check the outcome against Expect
//  5. Evaluate assertions
//
// The returned error covers setup failures (unloadable workflow, build
// errors). Run outcomes and failed assertions are reported in the Result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(h)
	}

	w, err := loadWorkflow(scenario)
	if err != nil {
		return nil, err
	}
	hash, err := ir.WorkflowHash(w)
	if err != nil {
		return nil, fmt.Errorf("failed to hash workflow: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()
	h.store = st

	h.recorder = store.NewRecorder(st, store.WithWorkflow(w.Name, hash), store.WithRecorderLogger(h.logger))
	h.tracer = &tracer{}

	maxSteps := w.MaxSteps
	if scenario.MaxSteps > 0 {
		maxSteps = scenario.MaxSteps
	}
	runID := scenario.RunID
	if runID == "" {
		runID = DefaultRunID
	}
	h.app = engine.NewApp(
		engine.WithRunID(engine.NewFixedGenerator(runID)),
		engine.WithLogger(h.logger),
		engine.WithObserver(engine.NewCompositeObserver(h.recorder, h.tracer)),
		engine.WithMaxSteps(maxSteps),
	)

	if _, err := builder.New(h.registry, builder.WithLogger(h.logger)).Build(h.app, w); err != nil {
		return nil, fmt.Errorf("failed to build workflow: %w", err)
	}
	if err := h.enqueue(scenario.Enqueue); err != nil {
		return nil, err
	}

	runErr := h.app.Run(ctx)

	result := NewResult(h.app.RunID())
	result.Trace = h.tracer.events()
	h.collect(result)
	if runErr != nil {
		result.RunError = runErr.Error()
		result.ErrorKind = engine.ErrorKind(runErr)
	}
	if err := h.recorder.Err(); err != nil {
		result.AddError(fmt.Sprintf("audit recording failed: %v", err))
	}
	checkOutcome(result, scenario.Expect)

	actx := &AssertionContext{Store: st, Ctx: ctx, App: h.app}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	h.logger.Info("scenario completed",
		"scenario", scenario.Name,
		"run_id", result.RunID,
		"invocations", h.recorder.Steps(),
		"pass", result.Pass,
	)
	return result, nil
}

func loadWorkflow(s *Scenario) (*ir.Workflow, error) {
	if s.Inline != nil {
		if s.Inline.Name == "" {
			w := *s.Inline
			w.Name = s.Name
			return &w, nil
		}
		return s.Inline, nil
	}
	w, err := compiler.Load(s.Workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow: %w", err)
	}
	return w, nil
}

// enqueue makes the scenario's extra calls, resolving nodes by name.
func (h *Harness) enqueue(steps []EnqueueStep) error {
	for i, step := range steps {
		node := h.app.Node(step.Node)
		if node == nil {
			return fmt.Errorf("enqueue[%d]: unknown node %q", i, step.Node)
		}
		args := make([]any, len(step.Args))
		for j, a := range step.Args {
			args[j] = normalize(a)
		}
		if err := h.app.Enq(node, args...); err != nil {
			return fmt.Errorf("enqueue[%d]: %w", i, err)
		}
	}
	return nil
}

// collect copies the aggregated results and their dump into result.
func (h *Harness) collect(result *Result) {
	agg := h.app.Aggregator()
	for _, n := range agg.Nodes() {
		for _, a := range agg.Audits(n) {
			result.Results = append(result.Results, NodeResult{Node: n.Name(), Value: a.Value()})
		}
	}
	result.Dump = audit.DumpString(agg.All()...)
}

// checkOutcome compares the run error against the expected outcome.
func checkOutcome(result *Result, expect *ExpectClause) {
	if expect == nil || expect.Error == "" {
		if result.RunError != "" {
			result.AddError(fmt.Sprintf("run failed: %s", result.RunError))
		}
		return
	}
	if result.RunError == "" {
		result.AddError(fmt.Sprintf("expected %s, run succeeded", expect.Error))
		return
	}
	if result.ErrorKind != expect.Error {
		result.AddError(fmt.Sprintf("expected %s, got %s: %s", expect.Error, result.ErrorKind, result.RunError))
	}
	if expect.Message != "" && !strings.Contains(result.RunError, expect.Message) {
		result.AddError(fmt.Sprintf("expected error containing %q, got %q", expect.Message, result.RunError))
	}
}

// normalize converts YAML-decoded values to the plain Go values processes
// receive from workflow inputs.
func normalize(v any) any {
	x, err := ir.FromGo(v)
	if err != nil {
		return v
	}
	return ir.ToGo(x)
}

// tracer is an engine.Observer collecting the invocation trace.
type tracer struct {
	engine.NoopObserver

	mu    sync.Mutex
	trace []TraceEvent
}

func (t *tracer) OnInvokeStart(_ context.Context, inv *engine.Invocation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trace = append(t.trace, TraceEvent{
		Type: EventInvocation,
		Node: inv.Node().Name(),
		Args: audit.Values(inv.Inputs()),
		Seq:  inv.Seq(),
	})
}

func (t *tracer) OnInvokeComplete(_ context.Context, inv *engine.Invocation, result *audit.Audit, err error, _ time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ev := TraceEvent{Type: EventCompletion, Node: inv.Node().Name(), Seq: inv.Seq()}
	if err != nil {
		ev.Error = err.Error()
	} else if result != nil {
		ev.Result = result.Value()
	}
	t.trace = append(t.trace, ev)
}

func (t *tracer) events() []TraceEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TraceEvent, len(t.trace))
	copy(out, t.trace)
	return out
}
