// Package oci provides the adb-lifecycle action runner: start and stop
// of Autonomous Databases, with freeform tags as the fast idempotency
// channel.
package oci

import (
	"context"
	"fmt"
	"time"

	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/database"

	"github.com/opsrun-io/opsrun/internal/logging"
	"github.com/opsrun-io/opsrun/internal/ops"
	"github.com/opsrun-io/opsrun/internal/retry"
)

// pollInterval is how often lifecycle-state polls run while waiting for
// a terminal state. Variable so tests can shorten it.
var pollInterval = 15 * time.Second

// maxPollErrors bounds consecutive failed polls; past it the wait
// returns the underlying error instead of running out the full
// per-target timeout.
const maxPollErrors = 4

// databaseAPI is the subset of the OCI database client the runner uses.
type databaseAPI interface {
	GetAutonomousDatabase(ctx context.Context, req database.GetAutonomousDatabaseRequest) (database.GetAutonomousDatabaseResponse, error)
	StartAutonomousDatabase(ctx context.Context, req database.StartAutonomousDatabaseRequest) (database.StartAutonomousDatabaseResponse, error)
	StopAutonomousDatabase(ctx context.Context, req database.StopAutonomousDatabaseRequest) (database.StopAutonomousDatabaseResponse, error)
	UpdateAutonomousDatabase(ctx context.Context, req database.UpdateAutonomousDatabaseRequest) (database.UpdateAutonomousDatabaseResponse, error)
}

// ADBRunner serves the adb-lifecycle operation type. Resource ids are
// Autonomous Database OCIDs from the provisioning snapshot.
type ADBRunner struct {
	client databaseAPI
}

// NewADBRunner builds a runner using the default OCI configuration
// provider (instance principal or ~/.oci/config), pinned to the
// resource region.
func NewADBRunner(region string) (*ADBRunner, error) {
	client, err := database.NewDatabaseClientWithConfigurationProvider(common.DefaultConfigProvider())
	if err != nil {
		return nil, fmt.Errorf("unable to build OCI database client: %w", err)
	}
	client.SetRegion(region)
	return &ADBRunner{client: client}, nil
}

func (r *ADBRunner) OperationType() string { return "adb-lifecycle" }

// terminalState maps an action to the lifecycle state that satisfies it.
func terminalState(action ops.Action) database.AutonomousDatabaseLifecycleStateEnum {
	if action == ops.ActionStart {
		return database.AutonomousDatabaseLifecycleStateAvailable
	}
	return database.AutonomousDatabaseLifecycleStateStopped
}

// Preflight rejects databases in a state from which neither the action
// nor its terminal state is reachable without operator intervention.
func (r *ADBRunner) Preflight(ctx context.Context, rt ops.ResolvedTarget) error {
	adb, err := r.get(ctx, rt.Resource.ID)
	if err != nil {
		return err
	}
	switch adb.LifecycleState {
	case database.AutonomousDatabaseLifecycleStateAvailable,
		database.AutonomousDatabaseLifecycleStateStopped:
		return nil
	default:
		return ops.Preconditionf("autonomous database %s is %s, cannot %s now",
			rt.LogicalKey, adb.LifecycleState, rt.Action)
	}
}

func (r *ADBRunner) Run(ctx context.Context, rt ops.ResolvedTarget) error {
	adb, err := r.get(ctx, rt.Resource.ID)
	if err != nil {
		return err
	}
	want := terminalState(rt.Action)
	if adb.LifecycleState == want {
		return nil
	}

	switch rt.Action {
	case ops.ActionStart:
		err = retry.WithBackoff(ctx, nil, func() error {
			_, e := r.client.StartAutonomousDatabase(ctx, database.StartAutonomousDatabaseRequest{
				AutonomousDatabaseId: common.String(rt.Resource.ID),
			})
			return e
		}, retry.IsTransient)
	case ops.ActionStop:
		err = retry.WithBackoff(ctx, nil, func() error {
			_, e := r.client.StopAutonomousDatabase(ctx, database.StopAutonomousDatabaseRequest{
				AutonomousDatabaseId: common.String(rt.Resource.ID),
			})
			return e
		}, retry.IsTransient)
	default:
		return fmt.Errorf("action %q not supported for autonomous databases", rt.Action)
	}
	if err != nil {
		return fmt.Errorf("%s autonomous database %s: %w", rt.Action, rt.LogicalKey, err)
	}

	if !rt.Wait() {
		return nil
	}
	return r.waitForState(ctx, rt.Resource.ID, want)
}

func (r *ADBRunner) ReadTags(ctx context.Context, resourceID string) (map[string]string, error) {
	adb, err := r.get(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	return adb.FreeformTags, nil
}

// WriteTags merges the given tags into the database's freeform tags.
// Unrelated freeform tags are preserved.
func (r *ADBRunner) WriteTags(ctx context.Context, resourceID string, tags map[string]string) error {
	adb, err := r.get(ctx, resourceID)
	if err != nil {
		return err
	}
	merged := make(map[string]string, len(adb.FreeformTags)+len(tags))
	for k, v := range adb.FreeformTags {
		merged[k] = v
	}
	for k, v := range tags {
		merged[k] = v
	}
	_, err = r.client.UpdateAutonomousDatabase(ctx, database.UpdateAutonomousDatabaseRequest{
		AutonomousDatabaseId: common.String(resourceID),
		UpdateAutonomousDatabaseDetails: database.UpdateAutonomousDatabaseDetails{
			FreeformTags: merged,
		},
	})
	if err != nil {
		return fmt.Errorf("tag autonomous database %s: %w", resourceID, err)
	}
	return nil
}

func (r *ADBRunner) get(ctx context.Context, id string) (*database.AutonomousDatabase, error) {
	resp, err := r.client.GetAutonomousDatabase(ctx, database.GetAutonomousDatabaseRequest{
		AutonomousDatabaseId: common.String(id),
	})
	if err != nil {
		return nil, fmt.Errorf("get autonomous database %s: %w", id, err)
	}
	return &resp.AutonomousDatabase, nil
}

func (r *ADBRunner) waitForState(ctx context.Context, id string, want database.AutonomousDatabaseLifecycleStateEnum) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	failures := 0
	for {
		adb, err := r.get(ctx, id)
		if err != nil {
			failures++
			if failures >= maxPollErrors {
				return fmt.Errorf("waiting for autonomous database %s to reach %s: %w", id, want, err)
			}
			logging.Warn("lifecycle state poll failed", "resource_id", id, "error", err)
		} else {
			failures = 0
			if adb.LifecycleState == want {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for autonomous database %s to reach %s: %w", id, want, ctx.Err())
		case <-ticker.C:
		}
	}
}
