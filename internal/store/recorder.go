package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/thinkerbot/tap-sub003/internal/audit"
	"github.com/thinkerbot/tap-sub003/internal/engine"
	"github.com/thinkerbot/tap-sub003/internal/ir"
)

// Recorder is an engine.Observer that persists every audit a run produces.
//
// Node results are written when their invocation completes. Audits the
// engine builds without an invocation (root arguments, splat elements,
// join composites) are written the first time a recorded audit reaches
// them, always before the audits that cite them, so ordinals follow a
// topological order of the DAG.
//
// Observer callbacks cannot return errors. The first store failure is
// logged, kept for Err, and stops further recording.
type Recorder struct {
	engine.NoopObserver

	store  *Store
	logger *slog.Logger
	name   string
	hash   string

	mu       sync.Mutex
	begun    map[string]bool
	ids      map[*audit.Audit]string
	ordinal  int64
	position int64
	steps    int64
	err      error
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithRecorderLogger sets the logger used for store failures.
func WithRecorderLogger(l *slog.Logger) RecorderOption {
	return func(r *Recorder) { r.logger = l }
}

// WithWorkflow stamps recorded runs with the workflow's name and hash.
func WithWorkflow(name, hash string) RecorderOption {
	return func(r *Recorder) {
		r.name = name
		r.hash = hash
	}
}

// NewRecorder creates a Recorder writing to s.
func NewRecorder(s *Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:  s,
		logger: slog.Default(),
		begun:  make(map[string]bool),
		ids:    make(map[*audit.Audit]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Err returns the first store failure, or nil.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Steps returns the number of invocations recorded so far.
func (r *Recorder) Steps() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.steps
}

// ID returns the stored id of a, or "" if it has not been recorded.
func (r *Recorder) ID(a *audit.Audit) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ids[a]
}

// OnRunStart records the run as running.
func (r *Recorder) OnRunStart(ctx context.Context, runID string, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	r.begun[runID] = false
	// Run may start on an already cancelled ctx; the run is still recorded.
	r.fail(r.ensureRun(context.WithoutCancel(ctx), runID))
}

// OnRunEnd records the run outcome: failed when Run returned an error,
// completed otherwise. Callers that stopped a run with work still queued
// can overwrite the status with Store.FinishRun.
func (r *Recorder) OnRunEnd(ctx context.Context, runID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	status, msg := ir.RunCompleted, ""
	if err != nil {
		status, msg = ir.RunFailed, err.Error()
	}
	// A cancelled ctx must not stop the outcome being written.
	r.fail(r.store.FinishRun(context.WithoutCancel(ctx), runID, status, msg, r.steps))
}

// OnInvokeComplete records the result of a successful invocation and its
// unrecorded ancestry.
func (r *Recorder) OnInvokeComplete(ctx context.Context, inv *engine.Invocation, result *audit.Audit, _ error, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps++
	if r.err != nil || result == nil {
		return
	}
	if err := r.ensureRun(ctx, inv.RunID()); err != nil {
		r.fail(err)
		return
	}
	_, err := r.record(ctx, inv.RunID(), result, inv.Seq())
	r.fail(err)
}

// OnAggregate records that result reached the aggregator under node.
func (r *Recorder) OnAggregate(ctx context.Context, node *engine.Node, result *audit.Audit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	runID := node.App().RunID()
	if err := r.ensureRun(ctx, runID); err != nil {
		r.fail(err)
		return
	}
	id, err := r.record(ctx, runID, result, 0)
	if err != nil {
		r.fail(err)
		return
	}
	r.position++
	r.fail(r.store.WriteAggregate(ctx, ir.AggregateRecord{
		RunID:    runID,
		Node:     node.Name(),
		AuditID:  id,
		Position: r.position,
	}))
}

// ensureRun begins runID when audits arrive outside Run, as they do for
// App.Execute.
func (r *Recorder) ensureRun(ctx context.Context, runID string) error {
	if r.begun[runID] {
		return nil
	}
	err := r.store.BeginRun(ctx, ir.RunRecord{
		ID:           runID,
		WorkflowName: r.name,
		WorkflowHash: r.hash,
		Status:       ir.RunRunning,
	})
	if err == nil {
		r.begun[runID] = true
	}
	return err
}

// record writes a and every unrecorded ancestor, sources first, and
// returns the id of a. Only a is stamped with seq: ancestors reaching the
// store this way (root arguments, splat elements, join composites) were
// produced by no invocation and get seq 0. The walk is iterative so long
// chains do not grow the goroutine stack.
func (r *Recorder) record(ctx context.Context, runID string, a *audit.Audit, seq int64) (string, error) {
	if id, ok := r.ids[a]; ok {
		return id, nil
	}

	type frame struct {
		audit    *audit.Audit
		expanded bool
	}
	stack := []frame{{audit: a}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if _, done := r.ids[top.audit]; done {
			stack = stack[:len(stack)-1]
			continue
		}
		if !top.expanded {
			top.expanded = true
			srcs := top.audit.Sources()
			for i := len(srcs) - 1; i >= 0; i-- {
				if _, done := r.ids[srcs[i]]; !done {
					stack = append(stack, frame{audit: srcs[i]})
				}
			}
			continue
		}

		cur := top.audit
		stack = stack[:len(stack)-1]
		stamp := int64(0)
		if cur == a {
			stamp = seq
		}
		if err := r.write(ctx, runID, cur, stamp); err != nil {
			return "", err
		}
	}
	return r.ids[a], nil
}

func (r *Recorder) write(ctx context.Context, runID string, a *audit.Audit, seq int64) error {
	srcs := a.Sources()
	srcIDs := make([]string, len(srcs))
	for i, s := range srcs {
		srcIDs[i] = r.ids[s]
	}

	kind, key := marshalKey(a.Key())
	valueJSON, text := marshalValue(a.Value())
	repr := valueJSON
	if repr == "" {
		repr = text
	}

	ordinal := r.ordinal + 1
	id, err := ir.AuditID(runID, ordinal, kind+":"+key, repr, srcIDs)
	if err != nil {
		return err
	}
	err = r.store.WriteAudit(ctx, ir.AuditRecord{
		ID:        id,
		RunID:     runID,
		Ordinal:   ordinal,
		KeyKind:   kind,
		Key:       key,
		Seq:       seq,
		ValueJSON: valueJSON,
		ValueText: text,
		Sources:   srcIDs,
	})
	if err != nil {
		return err
	}
	r.ordinal = ordinal
	r.ids[a] = id
	return nil
}

// fail keeps the first error. Must be called with mu held.
func (r *Recorder) fail(err error) {
	if err == nil || r.err != nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		r.logger.Warn("audit recording cancelled", "error", err)
	} else {
		r.logger.Error("audit recording failed", "error", err)
	}
	r.err = err
}
