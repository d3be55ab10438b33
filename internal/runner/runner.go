// Package runner defines the action runner contract and the routing
// table that binds operation types to runners.
package runner

import (
	"context"

	"github.com/opsrun-io/opsrun/internal/ops"
	"github.com/opsrun-io/opsrun/internal/state"
)

// Runner executes one operation type's actions against live resources.
// Implementations also expose their provider's tagging API as the fast
// idempotency channel.
type Runner interface {
	state.TagStore

	// OperationType returns the manifest operation_type this runner serves.
	OperationType() string

	// Preflight checks that the resource is ready for the requested
	// action. A returned ops.PreconditionError marks the target
	// precondition-failed; it is not retried within the run.
	Preflight(ctx context.Context, rt ops.ResolvedTarget) error

	// Run performs the action, blocking until the resource reaches its
	// terminal state when the target asks to wait. The context carries
	// the per-target timeout.
	Run(ctx context.Context, rt ops.ResolvedTarget) error
}

// Route binds an operation type to its runner plus the snapshot-side
// metadata needed to resolve targets for it.
type Route struct {
	Runner Runner

	// SnapshotType is the provisioning resource type carrying this
	// operation's targets, e.g. oci_database_autonomous_database.
	SnapshotType string

	// NameAttr is the snapshot attribute holding the display name that
	// logical keys are matched against. A "tags.Name" form reaches one
	// level into a map attribute.
	NameAttr string

	// StateAttr is the snapshot attribute holding the provider
	// lifecycle state at snapshot time.
	StateAttr string

	// InventoryGroup is the host group operated targets are placed
	// under in the rendered dynamic inventory.
	InventoryGroup string
}
