package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Outcome pairs a batch item's result with its own error.
type Outcome struct {
	Result Result
	Err    error
}

// ProcessBatch runs independent windows across the worker pool. Item errors
// are reported per outcome; the returned error is only set when ctx ends
// before every item was processed. Windows of the same session are applied
// in no particular order.
func (p *Processor) ProcessBatch(ctx context.Context, inputs []Input) ([]Outcome, error) {
	out := make([]Outcome, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for i := range inputs {
		i := i
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := p.Process(inputs[i])
			out[i] = Outcome{Result: res, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, ctx.Err()
}
