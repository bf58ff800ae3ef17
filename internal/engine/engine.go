package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thinkerbot/tap-sub003/internal/audit"
)

// State is the scheduler state reported by App.State.
type State int32

const (
	// StateReady means no run loop is active.
	StateReady State = 0
	// StateRunning means Run is executing queue entries.
	StateRunning State = 1
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "READY"
	case StateRunning:
		return "RUNNING"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// ErrorHook is called with every error that ends a Run, along with the
// App's debug flag.
type ErrorHook func(err error, debug bool)

// App is the scheduler: it owns the FIFO queue of pending entries, the
// run/stop/terminate state machine and the aggregator of terminal results.
//
// Thread-safety model:
//   - Enq, EnqBatch, Stop, Terminate, State, QueueLen and Aggregator are
//     safe from any goroutine, including from inside a node process.
//   - Run executes on one goroutine at a time; a second concurrent call is
//     a no-op.
//   - Nodes and joins are built before Run starts.
//
// INVARIANTS:
//   - The queue is strict FIFO. Joins in stack mode run their outputs
//     inline and therefore ahead of queued work.
//   - A failing entry is consumed; the entries behind it stay queued.
type App struct {
	queue      *entryQueue
	aggregator *Aggregator
	clock      *Clock
	quota      *QuotaEnforcer
	runID      string

	state              atomic.Int32
	stopRequested      atomic.Bool
	terminateRequested atomic.Bool

	logger    *slog.Logger
	observer  Observer
	debug     bool
	errorHook ErrorHook

	mu      sync.Mutex
	nodes   []*Node
	joins   []Join
	joinSeq int
}

// Option configures an App.
type Option func(*appConfig)

type appConfig struct {
	logger    *slog.Logger
	observers []Observer
	debug     bool
	errorHook ErrorHook
	maxSteps  int
	clock     *Clock
	runIDGen  RunIDGenerator
}

// WithLogger sets the logger used for run lifecycle and failure logs.
// Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *appConfig) { c.logger = l }
}

// WithObserver adds an observer. Multiple observers are called in the
// order they were added.
func WithObserver(o Observer) Option {
	return func(c *appConfig) { c.observers = append(c.observers, o) }
}

// WithDebug sets the debug flag passed to the error hook.
func WithDebug(debug bool) Option {
	return func(c *appConfig) { c.debug = debug }
}

// WithErrorHook sets the hook called with every error that ends a Run.
func WithErrorHook(h ErrorHook) Option {
	return func(c *appConfig) { c.errorHook = h }
}

// WithMaxSteps limits the number of node invocations over the App's
// lifetime. Zero (the default) disables the limit.
func WithMaxSteps(maxSteps int) Option {
	return func(c *appConfig) { c.maxSteps = maxSteps }
}

// WithClock sets the logical clock stamping invocations.
func WithClock(clock *Clock) Option {
	return func(c *appConfig) { c.clock = clock }
}

// WithRunID sets the generator for the App's run id.
// Default: UUIDv7Generator.
func WithRunID(gen RunIDGenerator) Option {
	return func(c *appConfig) { c.runIDGen = gen }
}

// NewApp creates a scheduler in the READY state with an empty queue.
func NewApp(opts ...Option) *App {
	cfg := appConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.clock == nil {
		cfg.clock = NewClock()
	}
	if cfg.runIDGen == nil {
		cfg.runIDGen = UUIDv7Generator{}
	}

	return &App{
		queue:      newEntryQueue(),
		aggregator: newAggregator(),
		clock:      cfg.clock,
		quota:      NewQuotaEnforcer(cfg.maxSteps),
		runID:      cfg.runIDGen.Generate(),
		logger:     cfg.logger,
		observer:   NewCompositeObserver(cfg.observers...),
		debug:      cfg.debug,
		errorHook:  cfg.errorHook,
	}
}

// RunID returns the id stamped on this App's audits and logs.
func (a *App) RunID() string { return a.runID }

// Clock returns the logical clock.
func (a *App) Clock() *Clock { return a.clock }

// Quota returns the invocation quota.
func (a *App) Quota() *QuotaEnforcer { return a.quota }

// Debug reports the debug flag.
func (a *App) Debug() bool { return a.debug }

// Aggregator returns the collection of terminal results.
func (a *App) Aggregator() *Aggregator { return a.aggregator }

// State returns READY or RUNNING.
func (a *App) State() State { return State(a.state.Load()) }

// QueueLen returns the number of pending entries.
func (a *App) QueueLen() int { return a.queue.Len() }

// Entries returns a snapshot of the pending entries, head first.
func (a *App) Entries() []Entry { return a.queue.Snapshot() }

// NewNode creates a node wrapping proc. Panics if proc is nil.
func (a *App) NewNode(name string, proc Process) *Node {
	if proc == nil {
		panic(fmt.Sprintf("engine: nil process for node %q", name))
	}
	n := &Node{app: a, name: name, proc: proc}
	n.batch = &batch{members: []*Node{n}}
	a.register(n)
	return n
}

// Nodes returns every node of the App, including batch siblings, in
// creation order.
func (a *App) Nodes() []*Node {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Node, len(a.nodes))
	copy(out, a.nodes)
	return out
}

// Node returns the node named name, or nil.
func (a *App) Node(name string) *Node {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, n := range a.nodes {
		if n.name == name {
			return n
		}
	}
	return nil
}

// Joins returns every join of the App in creation order.
func (a *App) Joins() []Join {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Join, len(a.joins))
	copy(out, a.joins)
	return out
}

func (a *App) register(n *Node) {
	a.mu.Lock()
	a.nodes = append(a.nodes, n)
	a.mu.Unlock()
}

// initJoin validates the wiring of a new join, fills its base and binds it
// to its inputs and outputs.
func (a *App) initJoin(base *joinBase, self Join, name string, kind JoinKind, cfg JoinConfig, inputs, outputs []*Node) error {
	wiringErr := func(format string, args ...any) error {
		return &WiringError{Join: name, JoinKind: kind, Message: fmt.Sprintf(format, args...)}
	}

	switch kind {
	case KindSequence:
		if len(inputs) != 1 || len(outputs) != 1 {
			return wiringErr("requires 1 input and 1 output (got %d, %d)", len(inputs), len(outputs))
		}
	case KindFork:
		if len(inputs) != 1 || len(outputs) == 0 {
			return wiringErr("requires 1 input and at least 1 output (got %d, %d)", len(inputs), len(outputs))
		}
	case KindMerge, KindSyncMerge:
		if len(inputs) == 0 || len(outputs) != 1 {
			return wiringErr("requires at least 1 input and 1 output (got %d, %d)", len(inputs), len(outputs))
		}
	case KindSwitch, KindGate:
		if len(inputs) == 0 || len(outputs) == 0 {
			return wiringErr("requires at least 1 input and 1 output (got %d, %d)", len(inputs), len(outputs))
		}
	}
	if cfg.Limit < 0 {
		return wiringErr("limit must not be negative (got %d)", cfg.Limit)
	}

	seen := make(map[*Node]bool, len(inputs))
	for _, n := range inputs {
		if n == nil {
			return wiringErr("nil input node")
		}
		if n.app != a {
			return wiringErr("input node %s belongs to another app", n.name)
		}
		if seen[n] {
			return wiringErr("duplicate input node %s", n.name)
		}
		seen[n] = true
	}
	for _, n := range outputs {
		if n == nil {
			return wiringErr("nil output node")
		}
		if n.app != a {
			return wiringErr("output node %s belongs to another app", n.name)
		}
	}

	a.mu.Lock()
	a.joinSeq++
	if name == "" {
		name = fmt.Sprintf("%s%d", kind, a.joinSeq)
	}
	a.joins = append(a.joins, self)
	a.mu.Unlock()

	*base = joinBase{
		app:     a,
		name:    name,
		kind:    kind,
		config:  cfg,
		inputs:  append([]*Node(nil), inputs...),
		outputs: append([]*Node(nil), outputs...),
	}
	for _, n := range base.inputs {
		n.bindOutput(self, cfg.Unbatched)
	}
	for _, n := range base.outputs {
		n.setInput(self)
	}
	return nil
}

// Enq appends a call of node to the queue. Arguments that are not already
// audits are wrapped in root audits keyed by their position.
//
// Enq is legal from any goroutine and in any state.
func (a *App) Enq(node *Node, args ...any) error {
	if err := a.checkNode(node); err != nil {
		return err
	}
	a.enqueue(EntryCall{Node: node, Args: wrapArgs(args)})
	return nil
}

// EnqBatch enqueues the same call for node and each of its batch siblings.
func (a *App) EnqBatch(node *Node, args ...any) error {
	if err := a.checkNode(node); err != nil {
		return err
	}
	audits := wrapArgs(args)
	for _, n := range node.Batch() {
		a.enqueue(EntryCall{Node: n, Args: audits})
	}
	return nil
}

func (a *App) checkNode(node *Node) error {
	if node == nil {
		return errors.New("enqueue: nil node")
	}
	if node.app != a {
		return fmt.Errorf("enqueue: node %s belongs to another app", node.name)
	}
	return nil
}

func wrapArgs(args []any) []*audit.Audit {
	out := make([]*audit.Audit, len(args))
	for i, arg := range args {
		if au, ok := arg.(*audit.Audit); ok && au != nil {
			out[i] = au
			continue
		}
		out[i] = audit.New(audit.Index(i), arg)
	}
	return out
}

func (a *App) enqueue(e Entry) {
	depth := a.queue.Enqueue(e)
	a.observer.OnEnqueue(a.runID, e, depth)
}

// Run executes queued entries until the queue is empty, a stop or
// terminate is requested, ctx is cancelled or an entry fails.
//
// Run is a no-op returning nil if the App is already RUNNING. It returns
// nil when the queue drains, on Stop and on Terminate; remaining entries
// stay queued and a later Run resumes them. When an entry fails, the error
// is passed to the error hook and returned, with the failing entry consumed
// and the rest of the queue intact.
//
// Stop and Terminate are latched. A request made while the App is READY is
// consumed by the next Run, which then returns nil without executing
// anything and leaves the queue as it was. Call Run again to drain it.
func (a *App) Run(ctx context.Context) error {
	_, err := a.run(ctx)
	return err
}

// run is Run, additionally reporting whether the loop ended because of a
// stop or terminate request.
func (a *App) run(ctx context.Context) (halted bool, err error) {
	if !a.state.CompareAndSwap(int32(StateReady), int32(StateRunning)) {
		return false, nil
	}
	a.observer.OnRunStart(ctx, a.runID, a.queue.Len())
	defer func() {
		a.state.Store(int32(StateReady))
		a.observer.OnRunEnd(ctx, a.runID, err)
	}()

	for {
		if a.stopRequested.CompareAndSwap(true, false) {
			a.logger.Info("run stopped", "run_id", a.runID, "remaining", a.queue.Len())
			return true, nil
		}
		if a.terminateRequested.CompareAndSwap(true, false) {
			a.logger.Info("run terminated", "run_id", a.runID, "remaining", a.queue.Len())
			return true, nil
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}

		entry, ok := a.queue.TryDequeue()
		if !ok {
			return false, nil
		}

		if err := a.execute(ctx, entry); err != nil {
			if errors.Is(err, ErrTerminated) {
				a.terminateRequested.Store(false)
				a.logger.Info("run terminated", "run_id", a.runID, "remaining", a.queue.Len())
				return true, nil
			}
			a.logEntryError(entry, err)
			if a.errorHook != nil {
				a.errorHook(err, a.debug)
			}
			return false, err
		}
	}
}

// Serve runs the App as a long-lived loop: it drains the queue, then waits
// for new entries, until ctx is cancelled, Stop or Terminate is requested,
// or an entry fails.
func (a *App) Serve(ctx context.Context) error {
	a.logger.Info("serve starting", "run_id", a.runID)
	for {
		halted, err := a.run(ctx)
		if err != nil {
			return err
		}
		if halted {
			return nil
		}

		select {
		case <-ctx.Done():
			a.logger.Info("serve stopping: context cancelled", "run_id", a.runID)
			return ctx.Err()
		case <-a.queue.Wait():
		}
	}
}

// Stop asks the run loop to return before the next entry. The current
// invocation finishes first; unstarted entries stay queued.
//
// The request is latched: if no run is active, the next Run returns
// immediately and clears it.
func (a *App) Stop() {
	a.stopRequested.Store(true)
	a.queue.notify()
}

// Terminate asks the run loop to unwind. It takes effect at the next loop
// boundary or at the next CheckTerminate inside a running process. Like
// Stop, the request is latched when no run is active.
func (a *App) Terminate() {
	a.terminateRequested.Store(true)
	a.queue.notify()
}

// CheckTerminate returns ErrTerminated if Terminate has been requested.
func (a *App) CheckTerminate() error {
	if a.terminateRequested.Load() {
		return ErrTerminated
	}
	return nil
}

// Execute invokes node immediately on the calling goroutine, outside the
// queue, and returns its result audit. Downstream joins behave as they do
// for queued calls.
func (a *App) Execute(ctx context.Context, node *Node, args ...any) (*audit.Audit, error) {
	if err := a.checkNode(node); err != nil {
		return nil, err
	}
	return a.call(ctx, node, wrapArgs(args))
}

func (a *App) execute(ctx context.Context, entry Entry) error {
	switch e := entry.(type) {
	case EntryCall:
		_, err := a.call(ctx, e.Node, e.Args)
		return err
	case EntryFlush:
		return e.Gate.flush(ctx, e.Generation)
	default:
		return fmt.Errorf("unknown queue entry %T", entry)
	}
}

// call invokes node with args and hands the result to its joins, or to the
// aggregator when no join is bound.
func (a *App) call(ctx context.Context, node *Node, args []*audit.Audit) (*audit.Audit, error) {
	if err := a.quota.Check(a.runID); err != nil {
		return nil, err
	}

	inv := &Invocation{
		ctx:    ctx,
		app:    a,
		node:   node,
		inputs: args,
		seq:    a.clock.Next(),
	}

	if arity := node.proc.Arity(); !arity.Accepts(len(args)) {
		return nil, &ArityError{Node: node.name, Given: len(args), Expected: arity}
	}

	a.observer.OnInvokeStart(ctx, inv)
	start := time.Now()
	value, err := callProcess(node.proc, inv, audit.Values(args))
	if err != nil {
		a.observer.OnInvokeComplete(ctx, inv, nil, err, time.Since(start))
		return nil, err
	}

	result := audit.New(audit.Ref{Name: node.name}, value, args...)
	a.observer.OnInvokeComplete(ctx, inv, result, nil, time.Since(start))

	joins := node.Joins()
	if len(joins) == 0 {
		a.aggregate(ctx, node, result)
		return result, nil
	}
	for _, j := range joins {
		if err := j.Receive(ctx, node, result); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (a *App) aggregate(ctx context.Context, node *Node, result *audit.Audit) {
	a.aggregator.add(node, result)
	a.observer.OnAggregate(ctx, node, result)
}

// logEntryError logs a failed entry with enough context to find it again.
func (a *App) logEntryError(entry Entry, err error) {
	switch e := entry.(type) {
	case EntryCall:
		a.logger.Error("call failed",
			"error", err,
			"kind", ErrorKind(err),
			"run_id", a.runID,
			"node", e.Node.name,
			"args", len(e.Args),
			"remaining", a.queue.Len(),
		)
	case EntryFlush:
		a.logger.Error("gate flush failed",
			"error", err,
			"kind", ErrorKind(err),
			"run_id", a.runID,
			"gate", e.Gate.name,
			"generation", e.Generation,
			"remaining", a.queue.Len(),
		)
	default:
		a.logger.Error("entry failed",
			"error", err,
			"run_id", a.runID,
			"entry", fmt.Sprintf("%T", entry),
		)
	}
}

// PrintErrorHook returns an ErrorHook that writes errors to w. In debug
// mode the stack of a panicking process is printed as well.
func PrintErrorHook(w io.Writer) ErrorHook {
	return func(err error, debug bool) {
		fmt.Fprintf(w, "error: %v\n", err)
		if !debug {
			return
		}
		var ne *NodeError
		if errors.As(err, &ne) && len(ne.Stack) > 0 {
			fmt.Fprintf(w, "%s\n", ne.Stack)
		}
	}
}
