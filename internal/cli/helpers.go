package cli

import (
	"context"
	"fmt"

	"github.com/opsrun-io/opsrun/internal/config"
	"github.com/opsrun-io/opsrun/internal/manifest"
	"github.com/opsrun-io/opsrun/internal/objstore"
	"github.com/opsrun-io/opsrun/internal/ops"
	"github.com/opsrun-io/opsrun/internal/pipeline"
	"github.com/opsrun-io/opsrun/internal/runner"
	awsrunners "github.com/opsrun-io/opsrun/runners/aws"
	ocirunners "github.com/opsrun-io/opsrun/runners/oci"
)

func buildConfig() (config.Config, error) {
	cfg := config.Config{
		Scope:        flagScope,
		Bucket:       flagBucket,
		Namespace:    flagNamespace,
		BucketRegion: flagBucketRegion,
	}.FromEnv()
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// buildPipeline wires the object store and the action-routing table for
// the scope. The manifest is resolved once here (a pure read) to learn
// the resource region the runner clients must target.
func buildPipeline(ctx context.Context, cfg config.Config, manifestPath string) (*pipeline.Pipeline, error) {
	op, err := manifest.Resolve(manifestPath, cfg.Scope)
	if err != nil {
		return nil, err
	}

	registry := runner.NewRegistry()
	switch cfg.Scope {
	case "oci":
		adb, err := ocirunners.NewADBRunner(op.Region)
		if err != nil {
			return nil, err
		}
		registry.Register(adb.OperationType(), runner.Route{
			Runner:         adb,
			SnapshotType:   "oci_database_autonomous_database",
			NameAttr:       "display_name",
			StateAttr:      "lifecycle_state",
			InventoryGroup: "adb_instances",
		})
	case "aws":
		clients, err := awsrunners.NewClients(ctx, op.Region)
		if err != nil {
			return nil, err
		}
		rdsRunner := awsrunners.NewRDSRunner(clients)
		registry.Register(rdsRunner.OperationType(), runner.Route{
			Runner:         rdsRunner,
			SnapshotType:   "aws_db_instance",
			NameAttr:       "identifier",
			StateAttr:      "status",
			InventoryGroup: "rds_instances",
		})
		ec2Runner := awsrunners.NewEC2Runner(clients)
		registry.Register(ec2Runner.OperationType(), runner.Route{
			Runner:         ec2Runner,
			SnapshotType:   "aws_instance",
			NameAttr:       "tags.Name",
			StateAttr:      "instance_state",
			InventoryGroup: "ec2_instances",
		})
	default:
		return nil, fmt.Errorf("scope %q is not supported", cfg.Scope)
	}

	store, err := objstore.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return pipeline.New(cfg, store, registry), nil
}

// renderReport prints the per-target results the way operators read
// them in CI logs.
func renderReport(report *pipeline.Report) {
	for _, key := range report.Unresolved {
		fmt.Printf("  ? %s  (not found in provisioning snapshot)\n", key)
	}
	for _, o := range report.Outcomes {
		symbol := "✗"
		if o.Kind.Satisfied() {
			symbol = "✓"
		}
		line := fmt.Sprintf("  %s %s  %s → %s", symbol, o.LogicalKey, o.Action, o.Kind)
		if o.Detail != "" {
			line += "  (" + o.Detail + ")"
		}
		fmt.Println(line)
	}
}

func countOutcomes(outcomes []ops.Outcome, kind ops.OutcomeKind) int {
	n := 0
	for _, o := range outcomes {
		if o.Kind == kind {
			n++
		}
	}
	return n
}
