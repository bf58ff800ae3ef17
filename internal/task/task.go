package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/thinkerbot/tap-sub003/internal/audit"
	"github.com/thinkerbot/tap-sub003/internal/engine"
)

// ErrDuplicateTask is returned by Define when the name is already taken.
var ErrDuplicateTask = errors.New("task already defined")

// UnknownTaskError reports a dependency on a task that was never defined.
type UnknownTaskError struct {
	Name       string
	RequiredBy string
}

func (e *UnknownTaskError) Error() string {
	if e.RequiredBy == "" {
		return fmt.Sprintf("unknown task %q", e.Name)
	}
	return fmt.Sprintf("unknown task %q (required by %q)", e.Name, e.RequiredBy)
}

// Kind names the error class for logs and the CLI.
func (e *UnknownTaskError) Kind() string { return "UnknownTaskError" }

// Task is a named process that runs after its dependencies.
type Task struct {
	name string
	deps []string
	node *engine.Node
}

// Name returns the task name.
func (t *Task) Name() string { return t.name }

// Deps returns the names of the tasks t depends on, in declaration order.
func (t *Task) Deps() []string {
	out := make([]string, len(t.deps))
	copy(out, t.deps)
	return out
}

// Node returns the engine node backing the task.
func (t *Task) Node() *engine.Node { return t.node }

// Manager resolves tasks against an engine.App.
//
// Each task is backed by a node. Resolving a task resolves its dependencies
// first, depth first in declaration order, then executes the task inline
// with the dependency results as its arguments. A task runs at most once
// until Reset; later resolutions reuse the recorded result.
type Manager struct {
	app      *engine.App
	detector *CycleDetector
	logger   *slog.Logger
	calls    atomic.Uint64

	mu      sync.Mutex
	tasks   map[string]*Task
	order   []string
	results map[string]*audit.Audit
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for resolution events.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a Manager that defines its task nodes on app.
func NewManager(app *engine.App, opts ...Option) *Manager {
	m := &Manager{
		app:      app,
		detector: NewCycleDetector(),
		logger:   slog.Default(),
		tasks:    make(map[string]*Task),
		results:  make(map[string]*audit.Audit),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Define registers a task. The process must accept one argument per
// dependency. Dependencies need not be defined yet; they are checked when
// the task is resolved or by Validate.
func (m *Manager) Define(name string, proc engine.Process, deps ...string) (*Task, error) {
	if name == "" {
		return nil, errors.New("task name is required")
	}
	if proc == nil {
		return nil, fmt.Errorf("task %q: process is required", name)
	}
	if arity := proc.Arity(); !arity.Accepts(len(deps)) {
		return nil, &engine.ArityError{Node: name, Given: len(deps), Expected: arity}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[name]; ok {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateTask, name)
	}
	t := &Task{
		name: name,
		deps: append([]string(nil), deps...),
		node: m.app.NewNode(name, proc),
	}
	m.tasks[name] = t
	m.order = append(m.order, name)
	return t, nil
}

// Task returns the task with the given name, or nil.
func (m *Manager) Task(name string) *Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks[name]
}

// Tasks returns every task in definition order.
func (m *Manager) Tasks() []*Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Task, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.tasks[name])
	}
	return out
}

// Result returns the recorded result of a resolved task, or nil.
func (m *Manager) Result(name string) *audit.Audit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.results[name]
}

// Reset forgets every recorded result so tasks run again.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.results)
}

// Resolve runs name and, before it, every task it depends on that has not
// run yet. It returns the task's result audit, whose sources are the
// results of its dependencies.
func (m *Manager) Resolve(ctx context.Context, name string) (*audit.Audit, error) {
	key := fmt.Sprintf("%s/%d", m.app.RunID(), m.calls.Add(1))
	defer m.detector.Clear(key)
	return m.resolve(ctx, key, name, "")
}

func (m *Manager) resolve(ctx context.Context, key, name, requiredBy string) (*audit.Audit, error) {
	m.mu.Lock()
	t, ok := m.tasks[name]
	done := m.results[name]
	m.mu.Unlock()

	if !ok {
		return nil, &UnknownTaskError{Name: name, RequiredBy: requiredBy}
	}
	if done != nil {
		return done, nil
	}

	if err := m.detector.Enter(key, name); err != nil {
		return nil, err
	}
	defer m.detector.Leave(key, name)

	args := make([]any, 0, len(t.deps))
	for _, dep := range t.deps {
		res, err := m.resolve(ctx, key, dep, name)
		if err != nil {
			return nil, err
		}
		args = append(args, res)
	}

	m.logger.Debug("resolving task",
		"task", name,
		"deps", len(t.deps),
		"run_id", m.app.RunID(),
	)
	result, err := m.app.Execute(ctx, t.node, args...)
	if err != nil {
		return nil, fmt.Errorf("task %q: %w", name, err)
	}

	m.mu.Lock()
	m.results[name] = result
	m.mu.Unlock()
	return result, nil
}

// Validate checks every defined task for unknown dependencies and
// dependency cycles without running anything.
func (m *Manager) Validate() error {
	m.mu.Lock()
	graph := make(map[string][]string, len(m.tasks))
	for name, t := range m.tasks {
		graph[name] = t.deps
	}
	order := append([]string(nil), m.order...)
	m.mu.Unlock()

	detector := NewCycleDetector()
	checked := make(map[string]bool, len(graph))

	var visit func(name, requiredBy string) error
	visit = func(name, requiredBy string) error {
		deps, ok := graph[name]
		if !ok {
			return &UnknownTaskError{Name: name, RequiredBy: requiredBy}
		}
		if checked[name] {
			return nil
		}
		if err := detector.Enter("validate", name); err != nil {
			return err
		}
		for _, dep := range deps {
			if err := visit(dep, name); err != nil {
				return err
			}
		}
		detector.Leave("validate", name)
		checked[name] = true
		return nil
	}

	for _, name := range order {
		if err := visit(name, ""); err != nil {
			return err
		}
	}
	return nil
}
