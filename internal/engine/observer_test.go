package engine

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thinkerbot/tap-sub003/internal/audit"
)

type recordingObserver struct {
	NoopObserver

	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) add(ev string) {
	o.mu.Lock()
	o.events = append(o.events, ev)
	o.mu.Unlock()
}

func (o *recordingObserver) OnRunStart(_ context.Context, runID string, _ int) {
	o.add("run_start:" + runID)
}

func (o *recordingObserver) OnRunEnd(_ context.Context, _ string, err error) {
	o.add("run_end:" + ErrorKind(err))
}

func (o *recordingObserver) OnEnqueue(_ string, e Entry, _ int) {
	switch e := e.(type) {
	case EntryCall:
		o.add("enqueue:" + e.Node.Name())
	case EntryFlush:
		o.add("enqueue_flush:" + e.Gate.Name())
	}
}

func (o *recordingObserver) OnInvokeStart(_ context.Context, inv *Invocation) {
	o.add("start:" + inv.Node().Name())
}

func (o *recordingObserver) OnInvokeComplete(_ context.Context, inv *Invocation, _ *audit.Audit, err error, _ time.Duration) {
	if err != nil {
		o.add("fail:" + inv.Node().Name())
		return
	}
	o.add("complete:" + inv.Node().Name())
}

func (o *recordingObserver) OnAggregate(_ context.Context, n *Node, _ *audit.Audit) {
	o.add("aggregate:" + n.Name())
}

func (o *recordingObserver) Events() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.events...)
}

func TestObserver_LifecycleEvents(t *testing.T) {
	obs := &recordingObserver{}
	app := newTestApp(t, WithObserver(obs))
	a := app.NewNode("a", identity(&callLog{}))
	b := app.NewNode("b", identity(&callLog{}))
	_, err := app.NewGate("g", []*Node{a}, []*Node{b}, JoinConfig{})
	require.NoError(t, err)

	require.NoError(t, app.Enq(a, 1))
	require.NoError(t, app.Run(t.Context()))

	assert.Equal(t, []string{
		"enqueue:a",
		"run_start:run-test",
		"start:a",
		"complete:a",
		"enqueue_flush:g",
		"enqueue:b",
		"start:b",
		"complete:b",
		"aggregate:b",
		"run_end:",
	}, obs.Events())
}

func TestObserver_FailureEvents(t *testing.T) {
	obs := &recordingObserver{}
	app := newTestApp(t, WithObserver(obs))
	n := app.NewNode("bad", Nullary(func(*Invocation) (any, error) { return nil, errors.New("x") }))

	require.NoError(t, app.Enq(n))
	require.Error(t, app.Run(t.Context()))

	events := obs.Events()
	assert.Contains(t, events, "fail:bad")
	assert.Equal(t, "run_end:NodeError", events[len(events)-1])
}

func TestNewCompositeObserver(t *testing.T) {
	assert.Equal(t, NoopObserver{}, NewCompositeObserver())
	assert.Equal(t, NoopObserver{}, NewCompositeObserver(nil, nil))

	one := &recordingObserver{}
	assert.Same(t, one, NewCompositeObserver(nil, one))

	two := &recordingObserver{}
	app := newTestApp(t, WithObserver(one), WithObserver(two))
	n := app.NewNode("n", identity(&callLog{}))
	require.NoError(t, app.Enq(n, 1))
	require.NoError(t, app.Run(t.Context()))

	assert.Equal(t, one.Events(), two.Events())
	assert.NotEmpty(t, one.Events())
}

func TestLoggingObserver_WritesStructuredLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	app := newTestApp(t, WithObserver(NewLoggingObserver(logger)))
	n := app.NewNode("n", identity(&callLog{}))

	require.NoError(t, app.Enq(n, "v"))
	require.NoError(t, app.Run(t.Context()))

	out := buf.String()
	assert.Contains(t, out, "msg=run_start")
	assert.Contains(t, out, "run_id=run-test")
	assert.Contains(t, out, "msg=invoke_complete")
	assert.Contains(t, out, "node=n")
	assert.Contains(t, out, `value="\"v\""`)
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "", ErrorKind(nil))
	assert.Equal(t, "Terminated", ErrorKind(ErrTerminated))
	assert.Equal(t, "SwitchError", ErrorKind(&SwitchError{Index: 3}))
	assert.Equal(t, "SynchronizeError", ErrorKind(&SynchronizeError{Source: "a"}))
	assert.Equal(t, "WiringError", ErrorKind(&WiringError{JoinKind: KindFork}))
	assert.Equal(t, "ArityError", ErrorKind(&ArityError{Node: "n"}))
	assert.Equal(t, "Error", ErrorKind(errors.New("plain")))
}
