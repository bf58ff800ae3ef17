package engine

import (
	"context"

	"github.com/thinkerbot/tap-sub003/internal/audit"
)

// Sequence connects one input to one output. Every result received is
// dispatched to the output immediately.
type Sequence struct {
	joinBase
}

// NewSequence wires input to output.
func (a *App) NewSequence(name string, input, output *Node, cfg JoinConfig) (*Sequence, error) {
	j := &Sequence{}
	if err := a.initJoin(&j.joinBase, j, name, KindSequence, cfg, []*Node{input}, []*Node{output}); err != nil {
		return nil, err
	}
	return j, nil
}

// Receive dispatches result to the output.
func (j *Sequence) Receive(ctx context.Context, _ *Node, result *audit.Audit) error {
	return j.dispatch(ctx, j.outputs[0], result)
}
