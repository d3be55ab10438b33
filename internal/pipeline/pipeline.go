// Package pipeline wires the phases into one run-to-completion
// sequence: manifest resolution, snapshot read, inventory join,
// idempotency pre-check, dispatch, and dual-channel write-back. Each
// phase fully consumes the prior phase's output; all cross-run state
// lives in the external stores.
package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/opsrun-io/opsrun/internal/config"
	"github.com/opsrun-io/opsrun/internal/dispatch"
	"github.com/opsrun-io/opsrun/internal/inventory"
	"github.com/opsrun-io/opsrun/internal/logging"
	"github.com/opsrun-io/opsrun/internal/manifest"
	"github.com/opsrun-io/opsrun/internal/objstore"
	"github.com/opsrun-io/opsrun/internal/ops"
	"github.com/opsrun-io/opsrun/internal/precheck"
	"github.com/opsrun-io/opsrun/internal/runner"
	"github.com/opsrun-io/opsrun/internal/snapshot"
	"github.com/opsrun-io/opsrun/internal/state"
)

// Pipeline holds the externally-supplied collaborators. It carries no
// cross-invocation memory.
type Pipeline struct {
	cfg      config.Config
	store    objstore.Store
	registry *runner.Registry
}

func New(cfg config.Config, store objstore.Store, registry *runner.Registry) *Pipeline {
	return &Pipeline{cfg: cfg, store: store, registry: registry}
}

// Report is the structured result of one run.
type Report struct {
	RunID         string
	OperationType string
	Region        string

	// Unresolved lists logical keys that matched no live resource.
	Unresolved []string

	// Outcomes covers every resolved target: skipped ones
	// (already-satisfied, precondition-failed) and dispatched ones.
	Outcomes []ops.Outcome

	// DurableWriteFailed is set when actions ran but the state record
	// merge could not be written. The fast channel already reflects the
	// successes; the audit trail is incomplete until a later run's
	// merge catches up.
	DurableWriteFailed bool
}

// Failed reports whether the run must exit non-zero.
func (r *Report) Failed() bool {
	if r.DurableWriteFailed {
		return true
	}
	for _, o := range r.Outcomes {
		if !o.Kind.Satisfied() {
			return true
		}
	}
	return false
}

// resolution is the shared front half of every command: manifest →
// route → snapshot → join.
type resolution struct {
	op       *ops.Operation
	route    runner.Route
	resolved []ops.ResolvedTarget
}

func (p *Pipeline) resolve(ctx context.Context, manifestPath string) (*resolution, error) {
	op, err := manifest.Resolve(manifestPath, p.cfg.Scope)
	if err != nil {
		return nil, err
	}

	route, err := p.registry.Route(op.Type)
	if err != nil {
		return nil, err
	}

	reader := snapshot.NewReader(p.store, p.cfg.Bucket, p.cfg.Scope)
	table, err := reader.Load(ctx, op.Region, route.SnapshotType, route.NameAttr, route.StateAttr)
	if err != nil {
		return nil, err
	}

	return &resolution{
		op:       op,
		route:    route,
		resolved: inventory.Resolve(op.Targets, table),
	}, nil
}

// Run executes the full pipeline for one manifest. Fatal phase errors
// return before any state mutation; per-target failures are aggregated
// into the report instead.
func (p *Pipeline) Run(ctx context.Context, manifestPath string) (*Report, error) {
	runID := uuid.NewString()
	log := logging.With("run_id", runID)

	res, err := p.resolve(ctx, manifestPath)
	if err != nil {
		return nil, err
	}
	log.Info("operation resolved",
		"operation_type", res.op.Type, "region", res.op.Region, "targets", len(res.op.Targets))

	report := &Report{
		RunID:         runID,
		OperationType: res.op.Type,
		Region:        res.op.Region,
	}
	for _, rt := range res.resolved {
		if !rt.Resolved {
			report.Unresolved = append(report.Unresolved, rt.LogicalKey)
		}
	}

	executableCandidates, err := inventory.Executable(res.resolved)
	if err != nil {
		return nil, err
	}

	stateStore := state.NewStore(p.store, p.cfg.Bucket, p.cfg.Scope)
	record, err := stateStore.Read(ctx, res.op.Region, res.op.Type)
	if err != nil {
		return nil, fmt.Errorf("durable channel read failed: %w", err)
	}

	checks := precheck.Evaluate(ctx, executableCandidates, record, res.route.Runner)
	for _, c := range checks {
		switch c.Decision {
		case precheck.DecisionAlreadySatisfied:
			report.Outcomes = append(report.Outcomes, ops.Outcome{
				LogicalKey: c.Target.LogicalKey,
				Action:     c.Target.Action,
				Kind:       ops.OutcomeAlreadySatisfied,
				Detail:     c.Reason,
			})
		case precheck.DecisionPreconditionFailed:
			report.Outcomes = append(report.Outcomes, ops.Outcome{
				LogicalKey: c.Target.LogicalKey,
				Action:     c.Target.Action,
				Kind:       ops.OutcomePreconditionFailed,
				Detail:     c.Reason,
			})
		}
	}

	executable := precheck.Executable(checks)
	log.Info("pre-check complete",
		"executable", len(executable), "skipped", len(checks)-len(executable))

	dispatched := dispatch.New(res.route.Runner).Execute(ctx, executable)
	report.Outcomes = append(report.Outcomes, dispatched...)

	// Durable write-back covers only keys an action was attempted for.
	if len(dispatched) > 0 {
		touched := make(map[string]state.Entry, len(dispatched))
		for _, o := range dispatched {
			touched[o.LogicalKey] = state.Entry{
				LastAction:  o.Action,
				LastOutcome: o.Kind,
			}
		}
		if _, err := stateStore.Merge(ctx, res.op.Region, res.op.Type, runID, touched); err != nil {
			// The fast channel already reflects the successes, so the
			// resources are not operationally ambiguous, but the audit
			// trail is incomplete. Loud, and the run fails.
			log.Error("DURABLE STATE WRITE FAILED after actions completed; audit trail incomplete",
				"key", state.RecordKey(p.cfg.Bucket, p.cfg.Scope, res.op.Region, res.op.Type),
				"error", err)
			report.DurableWriteFailed = true
		}
	}

	return report, nil
}

// Plan runs resolution and the pre-check only, with no side effects.
func (p *Pipeline) Plan(ctx context.Context, manifestPath string) ([]precheck.Result, *ops.Operation, error) {
	res, err := p.resolve(ctx, manifestPath)
	if err != nil {
		return nil, nil, err
	}

	executableCandidates, err := inventory.Executable(res.resolved)
	if err != nil {
		return nil, nil, err
	}

	record, err := state.NewStore(p.store, p.cfg.Bucket, p.cfg.Scope).Read(ctx, res.op.Region, res.op.Type)
	if err != nil {
		return nil, nil, fmt.Errorf("durable channel read failed: %w", err)
	}

	return precheck.Evaluate(ctx, executableCandidates, record, res.route.Runner), res.op, nil
}

// Inventory renders the Ansible dynamic inventory for a manifest.
func (p *Pipeline) Inventory(ctx context.Context, manifestPath string) ([]byte, error) {
	res, err := p.resolve(ctx, manifestPath)
	if err != nil {
		return nil, err
	}
	if _, err := inventory.Executable(res.resolved); err != nil {
		return nil, err
	}
	return inventory.Render(res.route.InventoryGroup, res.resolved)
}
