// Package dispatch executes the filtered target set. Targets address
// distinct resources, so they run with bounded parallelism; a failure
// or timeout of one target never aborts its siblings. The run's
// aggregate status is derived from the per-target outcomes afterwards.
package dispatch

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opsrun-io/opsrun/internal/logging"
	"github.com/opsrun-io/opsrun/internal/ops"
	"github.com/opsrun-io/opsrun/internal/runner"
	"github.com/opsrun-io/opsrun/internal/state"
)

const defaultParallelism = 10

// Dispatcher drives a runner over the executable target set.
type Dispatcher struct {
	runner      runner.Runner
	parallelism int

	// now is swappable for tests.
	now func() time.Time
}

// New returns a dispatcher with the default parallelism.
func New(r runner.Runner) *Dispatcher {
	return &Dispatcher{runner: r, parallelism: defaultParallelism, now: time.Now}
}

// WithParallelism caps how many targets run concurrently.
func (d *Dispatcher) WithParallelism(n int) *Dispatcher {
	if n > 0 {
		d.parallelism = n
	}
	return d
}

// Execute runs every target to completion and returns one outcome per
// target, in input order. Each target gets its own timeout context; on
// timeout it is marked timed-out and not retried. Immediately after a
// target succeeds its fast-channel tags are written; a tag write
// failure is logged but does not demote the outcome.
func (d *Dispatcher) Execute(ctx context.Context, targets []ops.ResolvedTarget) []ops.Outcome {
	outcomes := make([]ops.Outcome, len(targets))

	// A plain Group: the first error must not cancel sibling targets.
	var g errgroup.Group
	g.SetLimit(d.parallelism)

	for i, rt := range targets {
		i, rt := i, rt
		g.Go(func() error {
			outcomes[i] = d.executeOne(ctx, rt)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (d *Dispatcher) executeOne(ctx context.Context, rt ops.ResolvedTarget) ops.Outcome {
	start := d.now()
	log := logging.With("logical_key", rt.LogicalKey, "action", rt.Action, "resource_id", rt.Resource.ID)
	log.Info("dispatching target", "wait", rt.Wait(), "timeout", rt.Timeout())

	tctx, cancel := context.WithTimeout(ctx, rt.Timeout())
	defer cancel()

	err := d.runner.Run(tctx, rt)
	elapsed := d.now().Sub(start)

	outcome := ops.Outcome{
		LogicalKey: rt.LogicalKey,
		Action:     rt.Action,
		Duration:   elapsed,
	}
	timedOut := errors.Is(err, context.DeadlineExceeded) ||
		(errors.Is(tctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil)
	switch {
	case err == nil:
		outcome.Kind = ops.OutcomeSuccess
	case timedOut:
		outcome.Kind = ops.OutcomeTimeout
		outcome.Detail = err.Error()
	default:
		outcome.Kind = ops.OutcomeFailure
		outcome.Detail = err.Error()
	}

	if outcome.Kind == ops.OutcomeSuccess {
		tags := state.OutcomeTags(rt.Action, outcome.Kind, d.now())
		// Written against the parent context: the per-target deadline
		// covers the action, not the bookkeeping.
		if werr := d.runner.WriteTags(ctx, rt.Resource.ID, tags); werr != nil {
			log.Warn("fast channel write failed after successful action", "error", werr)
		}
		log.Info("target succeeded", "duration", elapsed)
	} else {
		log.Error("target did not succeed", "outcome", outcome.Kind, "detail", outcome.Detail, "duration", elapsed)
	}

	return outcome
}
