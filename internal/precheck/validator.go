// Package precheck gates execution: it decides per target whether the
// requested action still needs to run, consulting the fast channel
// first and the durable record as fallback, then asks the runner
// whether the resource is ready. It performs no side effects.
package precheck

import (
	"context"

	"github.com/opsrun-io/opsrun/internal/logging"
	"github.com/opsrun-io/opsrun/internal/ops"
	"github.com/opsrun-io/opsrun/internal/runner"
	"github.com/opsrun-io/opsrun/internal/state"
)

// Decision is the gate's verdict for one target.
type Decision string

const (
	DecisionProceed            Decision = "proceed"
	DecisionAlreadySatisfied   Decision = "already-satisfied"
	DecisionPreconditionFailed Decision = "precondition-failed"
)

// Result pairs a resolved target with its decision.
type Result struct {
	Target   ops.ResolvedTarget
	Decision Decision
	Reason   string
}

// Evaluate applies the decision table to every resolved target.
//
// Precedence: a fast-channel tag set marking the action already applied
// wins outright (it is written first and is the cheaper query); with an
// unknown fast channel the durable record decides; a durable failure or
// absence means the action still needs to run, subject to the runner's
// readiness preflight.
func Evaluate(ctx context.Context, targets []ops.ResolvedTarget, rec *state.Record, r runner.Runner) []Result {
	results := make([]Result, 0, len(targets))
	for _, rt := range targets {
		results = append(results, evaluateOne(ctx, rt, rec, r))
	}
	return results
}

func evaluateOne(ctx context.Context, rt ops.ResolvedTarget, rec *state.Record, r runner.Runner) Result {
	tags, err := r.ReadTags(ctx, rt.Resource.ID)
	if err != nil {
		// An unreadable fast channel is treated as unknown, not fatal.
		logging.Warn("fast channel unreadable, falling back to durable record",
			"logical_key", rt.LogicalKey, "error", err)
		tags = nil
	}

	if state.TagsSatisfy(tags, rt.Action) {
		return Result{Target: rt, Decision: DecisionAlreadySatisfied,
			Reason: "fast channel marks action already applied"}
	}

	if !state.TagsPresent(tags) {
		if entry, ok := rec.Entries[rt.LogicalKey]; ok &&
			entry.LastAction == rt.Action && entry.LastOutcome == ops.OutcomeSuccess {
			return Result{Target: rt, Decision: DecisionAlreadySatisfied,
				Reason: "durable record marks action already applied"}
		}
	}

	if err := r.Preflight(ctx, rt); err != nil {
		return Result{Target: rt, Decision: DecisionPreconditionFailed, Reason: err.Error()}
	}

	return Result{Target: rt, Decision: DecisionProceed}
}

// Executable filters the proceed subset out of the results.
func Executable(results []Result) []ops.ResolvedTarget {
	var out []ops.ResolvedTarget
	for _, res := range results {
		if res.Decision == DecisionProceed {
			out = append(out, res.Target)
		}
	}
	return out
}
