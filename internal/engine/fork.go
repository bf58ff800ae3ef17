package engine

import (
	"context"

	"github.com/thinkerbot/tap-sub003/internal/audit"
)

// Fork dispatches every result of its input to each output independently.
// Outputs are dispatched in declaration order and do not wait on each other.
type Fork struct {
	joinBase
}

// NewFork wires input to every node in outputs.
func (a *App) NewFork(name string, input *Node, outputs []*Node, cfg JoinConfig) (*Fork, error) {
	j := &Fork{}
	if err := a.initJoin(&j.joinBase, j, name, KindFork, cfg, []*Node{input}, outputs); err != nil {
		return nil, err
	}
	return j, nil
}

// Receive dispatches result to each output.
func (j *Fork) Receive(ctx context.Context, _ *Node, result *audit.Audit) error {
	for _, out := range j.outputs {
		if err := j.dispatch(ctx, out, result); err != nil {
			return err
		}
	}
	return nil
}
