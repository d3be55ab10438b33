// Package aws provides the action runners for AWS-scoped operations:
// rds-lifecycle for managed database instances and ec2-lifecycle for
// compute instances. Resource tags are the fast idempotency channel.
package aws

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/rds"
)

// pollInterval is how often lifecycle-state polls run while waiting for
// a terminal state the SDK has no waiter for. Variable so tests can
// shorten it.
var pollInterval = 15 * time.Second

// maxPollErrors bounds consecutive failed polls; past it the wait
// returns the underlying error instead of running out the full
// per-target timeout.
const maxPollErrors = 4

// Clients bundles the service clients the runners share.
type Clients struct {
	RDS *rds.Client
	EC2 *ec2.Client
}

// NewClients loads the default AWS configuration for the resource
// region and builds the service clients.
func NewClients(ctx context.Context, region string) (*Clients, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}
	return &Clients{
		RDS: rds.NewFromConfig(cfg),
		EC2: ec2.NewFromConfig(cfg),
	}, nil
}
