package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/opsrun-io/opsrun/internal/ops"
	"github.com/opsrun-io/opsrun/internal/retry"
)

// ec2API is the subset of the EC2 client the runner uses. It satisfies
// ec2.DescribeInstancesAPIClient so the SDK waiters accept it.
type ec2API interface {
	DescribeInstances(ctx context.Context, in *ec2.DescribeInstancesInput, opts ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	StartInstances(ctx context.Context, in *ec2.StartInstancesInput, opts ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error)
	StopInstances(ctx context.Context, in *ec2.StopInstancesInput, opts ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error)
	DescribeTags(ctx context.Context, in *ec2.DescribeTagsInput, opts ...func(*ec2.Options)) (*ec2.DescribeTagsOutput, error)
	CreateTags(ctx context.Context, in *ec2.CreateTagsInput, opts ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error)
}

// EC2Runner serves the ec2-lifecycle operation type.
type EC2Runner struct {
	client ec2API
}

func NewEC2Runner(clients *Clients) *EC2Runner {
	return &EC2Runner{client: clients.EC2}
}

func (r *EC2Runner) OperationType() string { return "ec2-lifecycle" }

// Preflight rejects transitional and terminated instances.
func (r *EC2Runner) Preflight(ctx context.Context, rt ops.ResolvedTarget) error {
	state, err := r.instanceState(ctx, rt.Resource.ID)
	if err != nil {
		return err
	}
	switch state {
	case ec2types.InstanceStateNameRunning, ec2types.InstanceStateNameStopped:
		return nil
	case ec2types.InstanceStateNameTerminated:
		return ops.Preconditionf("instance %s is terminated", rt.Resource.ID)
	default:
		return ops.Preconditionf("instance %s is %s, cannot %s now", rt.Resource.ID, state, rt.Action)
	}
}

func (r *EC2Runner) Run(ctx context.Context, rt ops.ResolvedTarget) error {
	state, err := r.instanceState(ctx, rt.Resource.ID)
	if err != nil {
		return err
	}

	switch rt.Action {
	case ops.ActionStop:
		if state == ec2types.InstanceStateNameStopped {
			return nil
		}
		err = retry.WithBackoff(ctx, nil, func() error {
			_, e := r.client.StopInstances(ctx, &ec2.StopInstancesInput{
				InstanceIds: []string{rt.Resource.ID},
			})
			return e
		}, retry.IsTransient)
		if err != nil {
			return fmt.Errorf("stop instance %s: %w", rt.Resource.ID, err)
		}
		if rt.Wait() {
			waiter := ec2.NewInstanceStoppedWaiter(r.client)
			if err := waiter.Wait(ctx, describeInput(rt.Resource.ID), waitBudget(ctx)); err != nil {
				return fmt.Errorf("waiting for instance %s to stop: %w", rt.Resource.ID, err)
			}
		}
		return nil

	case ops.ActionStart:
		if state == ec2types.InstanceStateNameRunning {
			return nil
		}
		err = retry.WithBackoff(ctx, nil, func() error {
			_, e := r.client.StartInstances(ctx, &ec2.StartInstancesInput{
				InstanceIds: []string{rt.Resource.ID},
			})
			return e
		}, retry.IsTransient)
		if err != nil {
			return fmt.Errorf("start instance %s: %w", rt.Resource.ID, err)
		}
		if rt.Wait() {
			waiter := ec2.NewInstanceRunningWaiter(r.client)
			if err := waiter.Wait(ctx, describeInput(rt.Resource.ID), waitBudget(ctx)); err != nil {
				return fmt.Errorf("waiting for instance %s to run: %w", rt.Resource.ID, err)
			}
		}
		return nil

	default:
		return fmt.Errorf("action %q not supported for instances", rt.Action)
	}
}

func (r *EC2Runner) ReadTags(ctx context.Context, resourceID string) (map[string]string, error) {
	out, err := r.client.DescribeTags(ctx, &ec2.DescribeTagsInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("resource-id"), Values: []string{resourceID}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("describe tags for %s: %w", resourceID, err)
	}
	tags := make(map[string]string, len(out.Tags))
	for _, t := range out.Tags {
		tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return tags, nil
}

func (r *EC2Runner) WriteTags(ctx context.Context, resourceID string, tags map[string]string) error {
	tagList := make([]ec2types.Tag, 0, len(tags))
	for k, v := range tags {
		tagList = append(tagList, ec2types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	_, err := r.client.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{resourceID},
		Tags:      tagList,
	})
	if err != nil {
		return fmt.Errorf("tag instance %s: %w", resourceID, err)
	}
	return nil
}

func (r *EC2Runner) instanceState(ctx context.Context, id string) (ec2types.InstanceStateName, error) {
	out, err := r.client.DescribeInstances(ctx, describeInput(id))
	if err != nil {
		return "", fmt.Errorf("describe instance %s: %w", id, err)
	}
	for _, res := range out.Reservations {
		for _, inst := range res.Instances {
			if inst.State != nil {
				return inst.State.Name, nil
			}
		}
	}
	return "", fmt.Errorf("instance %s not found", id)
}

func describeInput(id string) *ec2.DescribeInstancesInput {
	return &ec2.DescribeInstancesInput{InstanceIds: []string{id}}
}
