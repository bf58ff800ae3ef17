package testutil

import (
	"fmt"
	"sync"

	"github.com/thinkerbot/tap-sub003/internal/engine"
)

// Call is one recorded invocation.
type Call struct {
	Node string
	Seq  int64
	Args []any
}

// CallLog records invocations in the order they happen.
//
// Thread-safety: all methods are safe for concurrent use.
type CallLog struct {
	mu    sync.Mutex
	calls []Call
}

// NewCallLog creates an empty log.
func NewCallLog() *CallLog {
	return &CallLog{}
}

// Record appends the invocation.
func (l *CallLog) Record(inv *engine.Invocation, args []any) {
	c := Call{Node: inv.Node().Name(), Seq: inv.Seq(), Args: append([]any(nil), args...)}
	l.mu.Lock()
	l.calls = append(l.calls, c)
	l.mu.Unlock()
}

// Calls returns a copy of the recorded calls.
func (l *CallLog) Calls() []Call {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Call, len(l.calls))
	copy(out, l.calls)
	return out
}

// Names returns the invoked node names in order.
func (l *CallLog) Names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	for i, c := range l.calls {
		out[i] = c.Node
	}
	return out
}

// Reset empties the log for reuse.
func (l *CallLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = nil
}

// Suffix returns a unary process that records the call and appends
// ".<node>" to its argument.
func Suffix(log *CallLog) engine.Process {
	return engine.Unary(func(inv *engine.Invocation, arg any) (any, error) {
		log.Record(inv, []any{arg})
		return fmt.Sprintf("%v.%s", arg, inv.Node().Name()), nil
	})
}

// Collect returns a variadic process that records the call and returns its
// arguments as a slice.
func Collect(log *CallLog) engine.Process {
	return engine.Variadic(0, func(inv *engine.Invocation, args []any) (any, error) {
		log.Record(inv, args)
		return append([]any(nil), args...), nil
	})
}

// Fail returns a process that records the call and fails with msg.
func Fail(log *CallLog, msg string) engine.Process {
	return engine.Variadic(0, func(inv *engine.Invocation, args []any) (any, error) {
		log.Record(inv, args)
		return nil, fmt.Errorf("%s", msg)
	})
}
