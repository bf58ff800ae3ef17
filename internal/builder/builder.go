package builder

import (
	"fmt"
	"log/slog"

	"github.com/thinkerbot/tap-sub003/internal/engine"
	"github.com/thinkerbot/tap-sub003/internal/ir"
	"github.com/thinkerbot/tap-sub003/internal/nodes"
)

// Graph is a workflow wired onto an App.
type Graph struct {
	App   *engine.App
	Nodes map[int]*engine.Node // by workflow index
	Joins []engine.Join        // in declaration order
	Roots []int                // indices enqueued at start, in order
}

// Node returns the node at workflow index idx, or nil.
func (g *Graph) Node(idx int) *engine.Node { return g.Nodes[idx] }

// Builder turns workflow manifests into wired nodes and joins.
type Builder struct {
	registry *nodes.Registry
	logger   *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger used for build events.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// New creates a Builder resolving process names against reg. A nil reg
// uses the builtin registry.
func New(reg *nodes.Registry, opts ...Option) *Builder {
	if reg == nil {
		reg = nodes.Default()
	}
	b := &Builder{registry: reg, logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build validates w and wires it onto app. The root nodes are enqueued with
// their inputs; nothing runs until app.Run.
func (b *Builder) Build(app *engine.App, w *ir.Workflow) (*Graph, error) {
	if err := w.Err(); err != nil {
		return nil, fmt.Errorf("invalid workflow: %w", err)
	}
	g, err := b.Apply(app, ir.ManifestOf(w))
	if err != nil {
		return nil, err
	}
	b.logger.Debug("workflow built",
		"workflow", w.Name,
		"nodes", len(g.Nodes),
		"joins", len(g.Joins),
		"roots", g.Roots,
	)
	return g, nil
}

// Apply replays the actions of m against app in order.
func (b *Builder) Apply(app *engine.App, m *ir.Manifest) (*Graph, error) {
	g := &Graph{App: app, Nodes: make(map[int]*engine.Node)}

	for i, action := range m.Actions() {
		var err error
		switch a := action.(type) {
		case ir.AddNode:
			err = b.addNode(g, a)
		case ir.AddJoin:
			err = b.addJoin(g, a.Join)
		case ir.Enqueue:
			err = b.enqueue(g, a)
		default:
			err = fmt.Errorf("unknown action %T", action)
		}
		if err != nil {
			return nil, fmt.Errorf("action %d (%s): %w", i, action.Op(), err)
		}
	}
	return g, nil
}

func (b *Builder) addNode(g *Graph, a ir.AddNode) error {
	idx := a.Node.IndexOf(a.Pos)
	if _, ok := g.Nodes[idx]; ok {
		return fmt.Errorf("duplicate node index %d", idx)
	}

	name := a.Node.Name
	if name == "" {
		name = fmt.Sprintf("%s%d", a.Node.Process, idx)
	}
	if g.App.Node(name) != nil {
		return fmt.Errorf("duplicate node name %q", name)
	}

	proc, err := b.registry.New(a.Node.Process, a.Node.Params)
	if err != nil {
		return fmt.Errorf("node %q: %w", name, err)
	}

	node := g.App.NewNode(name, proc)
	for i := 0; i < a.Node.Batch; i++ {
		node.NewSibling()
	}
	g.Nodes[idx] = node
	return nil
}

func (b *Builder) addJoin(g *Graph, spec ir.JoinSpec) error {
	kind, err := engine.ParseJoinKind(spec.Type)
	if err != nil {
		return err
	}
	inputs, err := g.resolve(spec.Inputs)
	if err != nil {
		return fmt.Errorf("%s join inputs: %w", kind, err)
	}
	outputs, err := g.resolve(spec.Outputs)
	if err != nil {
		return fmt.Errorf("%s join outputs: %w", kind, err)
	}

	cfg := Config(kind, spec.Options)
	app := g.App

	var j engine.Join
	switch kind {
	case engine.KindSequence:
		if len(inputs) != 1 || len(outputs) != 1 {
			return cardinalityError(kind, spec)
		}
		j, err = app.NewSequence(spec.Name, inputs[0], outputs[0], cfg)
	case engine.KindFork:
		if len(inputs) != 1 {
			return cardinalityError(kind, spec)
		}
		j, err = app.NewFork(spec.Name, inputs[0], outputs, cfg)
	case engine.KindMerge:
		if len(outputs) != 1 {
			return cardinalityError(kind, spec)
		}
		j, err = app.NewMerge(spec.Name, inputs, outputs[0], cfg)
	case engine.KindSyncMerge:
		if len(outputs) != 1 {
			return cardinalityError(kind, spec)
		}
		j, err = app.NewSyncMerge(spec.Name, inputs, outputs[0], cfg)
	case engine.KindSwitch:
		var sel engine.Selector
		sel, err = Selector(spec.Select, len(outputs))
		if err != nil {
			return err
		}
		j, err = app.NewSwitch(spec.Name, inputs, outputs, sel, cfg)
	case engine.KindGate:
		j, err = app.NewGate(spec.Name, inputs, outputs, cfg)
	default:
		return fmt.Errorf("unsupported join kind %s", kind)
	}
	if err != nil {
		return err
	}
	g.Joins = append(g.Joins, j)
	return nil
}

func (b *Builder) enqueue(g *Graph, a ir.Enqueue) error {
	node := g.Nodes[a.Index]
	if node == nil {
		return fmt.Errorf("unknown node index %d", a.Index)
	}
	args := make([]any, len(a.Args))
	for i, v := range a.Args {
		args[i] = ir.ToGo(v)
	}

	var err error
	if len(node.Batch()) > 1 {
		err = g.App.EnqBatch(node, args...)
	} else {
		err = g.App.Enq(node, args...)
	}
	if err != nil {
		return err
	}
	g.Roots = append(g.Roots, a.Index)
	return nil
}

func (g *Graph) resolve(indices []int) ([]*engine.Node, error) {
	out := make([]*engine.Node, len(indices))
	for i, idx := range indices {
		n := g.Nodes[idx]
		if n == nil {
			return nil, fmt.Errorf("unknown node index %d", idx)
		}
		out[i] = n
	}
	return out, nil
}

func cardinalityError(kind engine.JoinKind, spec ir.JoinSpec) error {
	return &engine.WiringError{
		Join:     spec.Name,
		JoinKind: kind,
		Message:  fmt.Sprintf("%d inputs and %d outputs", len(spec.Inputs), len(spec.Outputs)),
	}
}

// Config converts join options to an engine config. Splat defaults to true
// for sync merges, whose combined results are usually consumed
// positionally, and to false for every other join.
func Config(kind engine.JoinKind, opts ir.JoinOptions) engine.JoinConfig {
	splat := kind == engine.KindSyncMerge
	if opts.Splat != nil {
		splat = *opts.Splat
	}
	return engine.JoinConfig{
		Stack:     opts.Stack,
		Iterate:   opts.Iterate,
		Splat:     splat,
		Enq:       opts.Enq,
		Unbatched: opts.Unbatched,
		Limit:     opts.Limit,
	}
}
