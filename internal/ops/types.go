// Package ops holds the shared domain types that flow between pipeline
// phases: the operation manifest, resolved targets, and per-target
// execution outcomes.
package ops

import "time"

// Action is an imperative lifecycle action requested for a target.
type Action string

const (
	ActionStart Action = "start"
	ActionStop  Action = "stop"
)

// Valid reports whether the action is one the dispatcher knows how to route.
func (a Action) Valid() bool {
	return a == ActionStart || a == ActionStop
}

// DefaultTimeoutMinutes applies when a target omits timeout_minutes.
const DefaultTimeoutMinutes = 30

// Target is one entry of an operation manifest.
type Target struct {
	LogicalKey     string         `json:"logical_key"`
	Action         Action         `json:"action"`
	WaitForState   *bool          `json:"wait_for_state,omitempty"`
	TimeoutMinutes int            `json:"timeout_minutes,omitempty"`
	Params         map[string]any `json:"params,omitempty"`
}

// Wait returns the effective wait_for_state value (default true).
func (t Target) Wait() bool {
	if t.WaitForState == nil {
		return true
	}
	return *t.WaitForState
}

// Timeout returns the effective per-target timeout.
func (t Target) Timeout() time.Duration {
	m := t.TimeoutMinutes
	if m <= 0 {
		m = DefaultTimeoutMinutes
	}
	return time.Duration(m) * time.Minute
}

// Manifest is an operation request as supplied by the catalog layer.
// Immutable once read.
type Manifest struct {
	OperationType string   `json:"operation_type"`
	Targets       []Target `json:"targets"`
}

// Operation is a manifest bound to the region it was resolved in.
type Operation struct {
	Type    string
	Region  string
	Targets []Target
}

// Resource is a live infrastructure resource extracted from the
// provisioning snapshot.
type Resource struct {
	DisplayName string
	ID          string
	Kind        string // snapshot resource type, e.g. oci_database_autonomous_database
	State       string // provider lifecycle state at snapshot time
	Attributes  map[string]any
}

// ResolvedTarget is a manifest target joined to a live resource.
// Resolved is false when no snapshot record matched the logical key;
// such targets are reported but never executed.
type ResolvedTarget struct {
	Target
	Resolved bool
	Resource *Resource
}

// OutcomeKind classifies the terminal result of one target.
type OutcomeKind string

const (
	OutcomeSuccess            OutcomeKind = "success"
	OutcomeFailure            OutcomeKind = "failure"
	OutcomeTimeout            OutcomeKind = "timeout"
	OutcomeAlreadySatisfied   OutcomeKind = "already-satisfied"
	OutcomePreconditionFailed OutcomeKind = "precondition-failed"
)

// Satisfied reports whether the outcome counts toward a clean exit.
func (k OutcomeKind) Satisfied() bool {
	return k == OutcomeSuccess || k == OutcomeAlreadySatisfied
}

// Outcome is the recorded result for a single target in a single run.
type Outcome struct {
	LogicalKey string
	Action     Action
	Kind       OutcomeKind
	Detail     string
	Duration   time.Duration
}
