package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/thinkerbot/tap-sub003/internal/audit"
)

// Observer receives callbacks from the App for logging, metrics and audit
// recording.
//
// Callbacks run synchronously on the run loop (OnEnqueue on whichever
// goroutine enqueued). Implementations should be fast and must not call
// back into Run.
type Observer interface {
	// OnRunStart is called when Run moves the App to RUNNING.
	OnRunStart(ctx context.Context, runID string, queued int)

	// OnRunEnd is called when Run returns the App to READY. err is the
	// error Run returns, nil for a drained queue, a stop or a terminate.
	OnRunEnd(ctx context.Context, runID string, err error)

	// OnEnqueue is called after an entry is appended to the queue.
	OnEnqueue(runID string, entry Entry, depth int)

	// OnInvokeStart is called before a node process runs.
	OnInvokeStart(ctx context.Context, inv *Invocation)

	// OnInvokeComplete is called after a node process returns, for both
	// successes and failures. result is nil when err is set.
	OnInvokeComplete(ctx context.Context, inv *Invocation, result *audit.Audit, err error, d time.Duration)

	// OnAggregate is called when a result lands in the aggregator.
	OnAggregate(ctx context.Context, node *Node, result *audit.Audit)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnRunStart(context.Context, string, int)    {}
func (NoopObserver) OnRunEnd(context.Context, string, error)    {}
func (NoopObserver) OnEnqueue(string, Entry, int)               {}
func (NoopObserver) OnInvokeStart(context.Context, *Invocation) {}
func (NoopObserver) OnInvokeComplete(context.Context, *Invocation, *audit.Audit, error, time.Duration) {
}
func (NoopObserver) OnAggregate(context.Context, *Node, *audit.Audit) {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnRunStart(ctx context.Context, runID string, queued int) {
	for _, o := range c.observers {
		o.OnRunStart(ctx, runID, queued)
	}
}

func (c *CompositeObserver) OnRunEnd(ctx context.Context, runID string, err error) {
	for _, o := range c.observers {
		o.OnRunEnd(ctx, runID, err)
	}
}

func (c *CompositeObserver) OnEnqueue(runID string, entry Entry, depth int) {
	for _, o := range c.observers {
		o.OnEnqueue(runID, entry, depth)
	}
}

func (c *CompositeObserver) OnInvokeStart(ctx context.Context, inv *Invocation) {
	for _, o := range c.observers {
		o.OnInvokeStart(ctx, inv)
	}
}

func (c *CompositeObserver) OnInvokeComplete(ctx context.Context, inv *Invocation, result *audit.Audit, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnInvokeComplete(ctx, inv, result, err, d)
	}
}

func (c *CompositeObserver) OnAggregate(ctx context.Context, node *Node, result *audit.Audit) {
	for _, o := range c.observers {
		o.OnAggregate(ctx, node, result)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs run and invocation
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnRunStart(ctx context.Context, runID string, queued int) {
	o.Logger.InfoContext(ctx, "run_start",
		slog.String("run_id", runID),
		slog.Int("queued", queued),
	)
}

func (o *LoggingObserver) OnRunEnd(ctx context.Context, runID string, err error) {
	if err != nil {
		o.Logger.ErrorContext(ctx, "run_failed",
			slog.String("run_id", runID),
			slog.String("kind", ErrorKind(err)),
			slog.Any("error", err),
		)
		return
	}
	o.Logger.InfoContext(ctx, "run_end", slog.String("run_id", runID))
}

func (o *LoggingObserver) OnEnqueue(runID string, entry Entry, depth int) {
	attrs := []any{
		slog.String("run_id", runID),
		slog.Int("depth", depth),
	}
	switch e := entry.(type) {
	case EntryCall:
		attrs = append(attrs, slog.String("node", e.Node.name), slog.Int("args", len(e.Args)))
	case EntryFlush:
		attrs = append(attrs, slog.String("gate", e.Gate.name), slog.Uint64("generation", e.Generation))
	}
	o.Logger.Debug("enqueue", attrs...)
}

func (o *LoggingObserver) OnInvokeStart(ctx context.Context, inv *Invocation) {
	o.Logger.DebugContext(ctx, "invoke_start",
		slog.String("run_id", inv.RunID()),
		slog.String("node", inv.node.name),
		slog.Int64("seq", inv.seq),
		slog.Int("args", len(inv.inputs)),
	)
}

func (o *LoggingObserver) OnInvokeComplete(ctx context.Context, inv *Invocation, result *audit.Audit, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "invoke_complete",
		slog.String("run_id", inv.RunID()),
		slog.String("node", inv.node.name),
		slog.Int64("seq", inv.seq),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnAggregate(ctx context.Context, node *Node, result *audit.Audit) {
	o.Logger.DebugContext(ctx, "aggregate",
		slog.String("node", node.name),
		slog.String("value", audit.FormatValue(result.Value())),
	)
}
