package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"

	"github.com/opsrun-io/opsrun/internal/logging"
	"github.com/opsrun-io/opsrun/internal/ops"
	"github.com/opsrun-io/opsrun/internal/retry"
)

// rdsAPI is the subset of the RDS client the runner uses. It satisfies
// rds.DescribeDBInstancesAPIClient so the SDK waiters accept it.
type rdsAPI interface {
	DescribeDBInstances(ctx context.Context, in *rds.DescribeDBInstancesInput, opts ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error)
	StartDBInstance(ctx context.Context, in *rds.StartDBInstanceInput, opts ...func(*rds.Options)) (*rds.StartDBInstanceOutput, error)
	StopDBInstance(ctx context.Context, in *rds.StopDBInstanceInput, opts ...func(*rds.Options)) (*rds.StopDBInstanceOutput, error)
	ListTagsForResource(ctx context.Context, in *rds.ListTagsForResourceInput, opts ...func(*rds.Options)) (*rds.ListTagsForResourceOutput, error)
	AddTagsToResource(ctx context.Context, in *rds.AddTagsToResourceInput, opts ...func(*rds.Options)) (*rds.AddTagsToResourceOutput, error)
}

// RDSRunner serves the rds-lifecycle operation type. Targets carry the
// DB instance identifier as resource id; tags are addressed through the
// instance ARN.
type RDSRunner struct {
	client rdsAPI
}

func NewRDSRunner(clients *Clients) *RDSRunner {
	return &RDSRunner{client: clients.RDS}
}

func (r *RDSRunner) OperationType() string { return "rds-lifecycle" }

// Preflight rejects instances in a transitional or terminal-unusable
// status. "available" and "stopped" are the only statuses an action can
// be applied from (or is already satisfied in).
func (r *RDSRunner) Preflight(ctx context.Context, rt ops.ResolvedTarget) error {
	inst, err := r.describe(ctx, rt.Resource.ID)
	if err != nil {
		return err
	}
	status := aws.ToString(inst.DBInstanceStatus)
	switch status {
	case "available", "stopped":
		return nil
	default:
		return ops.Preconditionf("db instance %s is %s, cannot %s now", rt.Resource.ID, status, rt.Action)
	}
}

func (r *RDSRunner) Run(ctx context.Context, rt ops.ResolvedTarget) error {
	inst, err := r.describe(ctx, rt.Resource.ID)
	if err != nil {
		return err
	}
	status := aws.ToString(inst.DBInstanceStatus)

	switch rt.Action {
	case ops.ActionStop:
		if status == "stopped" {
			return nil
		}
		err = retry.WithBackoff(ctx, nil, func() error {
			_, e := r.client.StopDBInstance(ctx, &rds.StopDBInstanceInput{
				DBInstanceIdentifier: aws.String(rt.Resource.ID),
			})
			return e
		}, retry.IsTransient)
		if err != nil {
			return fmt.Errorf("stop db instance %s: %w", rt.Resource.ID, err)
		}
		if rt.Wait() {
			return r.waitForStatus(ctx, rt.Resource.ID, "stopped")
		}
		return nil

	case ops.ActionStart:
		if status == "available" {
			return nil
		}
		err = retry.WithBackoff(ctx, nil, func() error {
			_, e := r.client.StartDBInstance(ctx, &rds.StartDBInstanceInput{
				DBInstanceIdentifier: aws.String(rt.Resource.ID),
			})
			return e
		}, retry.IsTransient)
		if err != nil {
			return fmt.Errorf("start db instance %s: %w", rt.Resource.ID, err)
		}
		if rt.Wait() {
			waiter := rds.NewDBInstanceAvailableWaiter(r.client)
			deadline := waitBudget(ctx)
			if err := waiter.Wait(ctx, &rds.DescribeDBInstancesInput{
				DBInstanceIdentifier: aws.String(rt.Resource.ID),
			}, deadline); err != nil {
				return fmt.Errorf("waiting for db instance %s to become available: %w", rt.Resource.ID, err)
			}
		}
		return nil

	default:
		return fmt.Errorf("action %q not supported for db instances", rt.Action)
	}
}

func (r *RDSRunner) ReadTags(ctx context.Context, resourceID string) (map[string]string, error) {
	inst, err := r.describe(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	out, err := r.client.ListTagsForResource(ctx, &rds.ListTagsForResourceInput{
		ResourceName: inst.DBInstanceArn,
	})
	if err != nil {
		return nil, fmt.Errorf("list tags for %s: %w", resourceID, err)
	}
	tags := make(map[string]string, len(out.TagList))
	for _, t := range out.TagList {
		tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return tags, nil
}

func (r *RDSRunner) WriteTags(ctx context.Context, resourceID string, tags map[string]string) error {
	inst, err := r.describe(ctx, resourceID)
	if err != nil {
		return err
	}
	tagList := make([]rdstypes.Tag, 0, len(tags))
	for k, v := range tags {
		tagList = append(tagList, rdstypes.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	_, err = r.client.AddTagsToResource(ctx, &rds.AddTagsToResourceInput{
		ResourceName: inst.DBInstanceArn,
		Tags:         tagList,
	})
	if err != nil {
		return fmt.Errorf("tag db instance %s: %w", resourceID, err)
	}
	return nil
}

func (r *RDSRunner) describe(ctx context.Context, id string) (*rdstypes.DBInstance, error) {
	out, err := r.client.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{
		DBInstanceIdentifier: aws.String(id),
	})
	if err != nil {
		return nil, fmt.Errorf("describe db instance %s: %w", id, err)
	}
	if len(out.DBInstances) == 0 {
		return nil, fmt.Errorf("db instance %s not found", id)
	}
	return &out.DBInstances[0], nil
}

// waitForStatus polls until the instance reaches the wanted status.
// There is no SDK waiter for "stopped".
func (r *RDSRunner) waitForStatus(ctx context.Context, id, want string) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	failures := 0
	for {
		inst, err := r.describe(ctx, id)
		if err != nil {
			failures++
			if failures >= maxPollErrors {
				return fmt.Errorf("waiting for db instance %s to reach %s: %w", id, want, err)
			}
			logging.Warn("db instance status poll failed", "resource_id", id, "error", err)
		} else {
			failures = 0
			if aws.ToString(inst.DBInstanceStatus) == want {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for db instance %s to reach %s: %w", id, want, ctx.Err())
		case <-ticker.C:
		}
	}
}

// waitBudget derives the waiter's max wait from the context deadline,
// defaulting to the manifest default when none is set.
func waitBudget(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d > 0 {
			return d
		}
	}
	return time.Duration(ops.DefaultTimeoutMinutes) * time.Minute
}
