package engine

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
)

func newTestApp(t *testing.T, opts ...Option) *App {
	t.Helper()
	base := []Option{
		WithRunID(NewFixedGenerator("run-test")),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return NewApp(append(base, opts...)...)
}

// callLog records node invocations in order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) record(name string) {
	l.mu.Lock()
	l.calls = append(l.calls, name)
	l.mu.Unlock()
}

func (l *callLog) Names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

// suffix returns a unary process that records the call and appends
// ".<node>" to its argument.
func suffix(log *callLog) Process {
	return Unary(func(inv *Invocation, arg any) (any, error) {
		log.record(inv.Node().Name())
		return fmt.Sprintf("%v.%s", arg, inv.Node().Name()), nil
	})
}

// collect returns a variadic process that records the call and returns its
// arguments as a slice.
func collect(log *callLog) Process {
	return Variadic(0, func(inv *Invocation, args []any) (any, error) {
		log.record(inv.Node().Name())
		out := make([]any, len(args))
		copy(out, args)
		return out, nil
	})
}

// identity returns a unary process that records the call and returns its
// argument unchanged.
func identity(log *callLog) Process {
	return Unary(func(inv *Invocation, arg any) (any, error) {
		log.record(inv.Node().Name())
		return arg, nil
	})
}
