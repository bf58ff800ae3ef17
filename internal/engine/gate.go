package engine

import (
	"context"
	"sync"

	"github.com/thinkerbot/tap-sub003/internal/audit"
)

// Gate collects results from its inputs and releases them together to
// every output.
//
// The first arrival into an empty buffer queues an EntryFlush behind the
// work already pending, so the gate releases once the queue has drained
// everything that was scheduled before it, including work reached only
// transitively through other joins. With Limit set the buffer is released
// as soon as it holds Limit results; the flush entry queued for that buffer
// then finds a newer generation and does nothing.
//
// With Iterate each element of a sequence result is collected on its own.
// Release passes one composite audit keyed by the gate, or the members as
// positional arguments with Splat.
type Gate struct {
	joinBase

	mu         sync.Mutex
	buffer     []*audit.Audit
	generation uint64
}

// NewGate wires inputs to outputs through a collecting buffer.
func (a *App) NewGate(name string, inputs, outputs []*Node, cfg JoinConfig) (*Gate, error) {
	j := &Gate{}
	if err := a.initJoin(&j.joinBase, j, name, KindGate, cfg, inputs, outputs); err != nil {
		return nil, err
	}
	return j, nil
}

// Receive adds result to the buffer.
func (j *Gate) Receive(ctx context.Context, _ *Node, result *audit.Audit) error {
	items := []*audit.Audit{result}
	if j.config.Iterate {
		items = audit.Splat(result)
	}

	for _, it := range items {
		j.mu.Lock()
		if len(j.buffer) == 0 {
			j.app.enqueue(EntryFlush{Gate: j, Generation: j.generation})
		}
		j.buffer = append(j.buffer, it)
		full := j.config.Limit > 0 && len(j.buffer) >= j.config.Limit
		gen := j.generation
		j.mu.Unlock()

		if full {
			if err := j.flush(ctx, gen); err != nil {
				return err
			}
		}
	}
	return nil
}

// Generation returns the number of buffers released so far.
func (j *Gate) Generation() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.generation
}

// Pending returns the number of results waiting in the buffer.
func (j *Gate) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.buffer)
}

// flush releases the buffer if the gate is still on generation.
func (j *Gate) flush(ctx context.Context, generation uint64) error {
	j.mu.Lock()
	if generation != j.generation || len(j.buffer) == 0 {
		j.mu.Unlock()
		return nil
	}
	members := j.buffer
	j.buffer = nil
	j.generation++
	j.mu.Unlock()

	for _, out := range j.outputs {
		if err := j.release(ctx, out, members); err != nil {
			return err
		}
	}
	return nil
}
