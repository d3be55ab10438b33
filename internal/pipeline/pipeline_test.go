package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsrun-io/opsrun/internal/config"
	"github.com/opsrun-io/opsrun/internal/objstore"
	"github.com/opsrun-io/opsrun/internal/ops"
	"github.com/opsrun-io/opsrun/internal/precheck"
	"github.com/opsrun-io/opsrun/internal/runner"
	"github.com/opsrun-io/opsrun/internal/state"
	"github.com/opsrun-io/opsrun/runners/null"
)

const tfstate = `{
  "version": 4,
  "resources": [
    {
      "mode": "managed",
      "type": "oci_database_autonomous_database",
      "name": "adb",
      "instances": [
        {"attributes": {"id": "ocid1..aaa", "display_name": "db-a", "lifecycle_state": "AVAILABLE"}},
        {"attributes": {"id": "ocid1..bbb", "display_name": "db-b", "lifecycle_state": "AVAILABLE"}}
      ]
    }
  ]
}`

type fixture struct {
	cfg      config.Config
	mem      *objstore.Mem
	runner   *null.Runner
	pipeline *Pipeline
	manifest string
}

// newFixture builds a complete oci-scope pipeline on the in-memory
// object store: a snapshot with db-a and db-b, a manifest asking to
// stop db-a, db-b, and a key that resolves to nothing.
func newFixture(t *testing.T, targets []ops.Target) *fixture {
	t.Helper()

	cfg := config.Config{
		Scope:        "oci",
		Bucket:       "proj",
		Namespace:    "ns",
		BucketRegion: "eu-frankfurt-1",
	}

	mem := objstore.NewMem()
	mem.Seed("proj/oci/eu-frankfurt-1/terraform.tfstate", []byte(tfstate))

	r := null.New("adb-lifecycle")
	registry := runner.NewRegistry()
	registry.Register("adb-lifecycle", runner.Route{
		Runner:         r,
		SnapshotType:   "oci_database_autonomous_database",
		NameAttr:       "display_name",
		StateAttr:      "lifecycle_state",
		InventoryGroup: "adb_instances",
	})

	dir := filepath.Join(t.TempDir(), "oci", "eu-frankfurt-1", "operations")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	raw, err := json.Marshal(ops.Manifest{OperationType: "adb-lifecycle", Targets: targets})
	require.NoError(t, err)
	path := filepath.Join(dir, "stop.json")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	return &fixture{
		cfg:      cfg,
		mem:      mem,
		runner:   r,
		pipeline: New(cfg, mem, registry),
		manifest: path,
	}
}

func stopTargets(keys ...string) []ops.Target {
	out := make([]ops.Target, 0, len(keys))
	for _, k := range keys {
		out = append(out, ops.Target{LogicalKey: k, Action: ops.ActionStop})
	}
	return out
}

func TestRunExecutesAndWritesBothChannels(t *testing.T) {
	f := newFixture(t, stopTargets("db-a", "db-b"))

	report, err := f.pipeline.Run(context.Background(), f.manifest)
	require.NoError(t, err)

	assert.False(t, report.Failed())
	assert.Equal(t, "adb-lifecycle", report.OperationType)
	assert.Equal(t, "eu-frankfurt-1", report.Region)
	assert.Empty(t, report.Unresolved)
	assert.ElementsMatch(t, []string{"db-a", "db-b"}, f.runner.Ran())

	// Fast channel holds the outcome per resource.
	tags, err := f.runner.ReadTags(context.Background(), "ocid1..aaa")
	require.NoError(t, err)
	assert.Equal(t, "stop", tags[state.TagLastAction])
	assert.Equal(t, "success", tags[state.TagLastOutcome])

	// Durable channel lands at the exact record key.
	raw, err := f.mem.Get(context.Background(),
		"proj/ansible/oci/eu-frankfurt-1/ansible-state-adb-lifecycle.json")
	require.NoError(t, err)

	var rec state.Record
	require.NoError(t, json.Unmarshal(raw, &rec))
	assert.Equal(t, report.RunID, rec.RunID)
	require.Contains(t, rec.Entries, "db-a")
	assert.Equal(t, ops.ActionStop, rec.Entries["db-a"].LastAction)
	assert.Equal(t, ops.OutcomeSuccess, rec.Entries["db-a"].LastOutcome)
	assert.Equal(t, 1, rec.Entries["db-a"].AttemptCount)
}

func TestRunIsIdempotentViaFastChannel(t *testing.T) {
	f := newFixture(t, stopTargets("db-a"))

	first, err := f.pipeline.Run(context.Background(), f.manifest)
	require.NoError(t, err)
	require.False(t, first.Failed())
	require.Equal(t, []string{"db-a"}, f.runner.Ran())

	second, err := f.pipeline.Run(context.Background(), f.manifest)
	require.NoError(t, err)

	assert.False(t, second.Failed())
	require.Len(t, second.Outcomes, 1)
	assert.Equal(t, ops.OutcomeAlreadySatisfied, second.Outcomes[0].Kind)
	// No second action ran.
	assert.Equal(t, []string{"db-a"}, f.runner.Ran())
}

func TestRunIsIdempotentViaDurableFallback(t *testing.T) {
	f := newFixture(t, stopTargets("db-a"))

	first, err := f.pipeline.Run(context.Background(), f.manifest)
	require.NoError(t, err)
	require.False(t, first.Failed())

	// Simulate a provider that lost the tags (or a runner without tag
	// support): the durable record alone must still short-circuit.
	f.runner.SeedTags("ocid1..aaa", nil)

	second, err := f.pipeline.Run(context.Background(), f.manifest)
	require.NoError(t, err)

	require.Len(t, second.Outcomes, 1)
	assert.Equal(t, ops.OutcomeAlreadySatisfied, second.Outcomes[0].Kind)
	assert.Contains(t, second.Outcomes[0].Detail, "durable record")
	assert.Equal(t, []string{"db-a"}, f.runner.Ran())
}

func TestRunPartialResolutionProceeds(t *testing.T) {
	f := newFixture(t, stopTargets("db-a", "ghost"))

	report, err := f.pipeline.Run(context.Background(), f.manifest)
	require.NoError(t, err)

	assert.Equal(t, []string{"ghost"}, report.Unresolved)
	assert.Equal(t, []string{"db-a"}, f.runner.Ran())
	assert.False(t, report.Failed())
}

func TestRunNothingResolvesIsFatal(t *testing.T) {
	f := newFixture(t, stopTargets("ghost-1", "ghost-2"))

	_, err := f.pipeline.Run(context.Background(), f.manifest)
	require.Error(t, err)
	assert.ErrorIs(t, err, ops.ErrNoResolvableTargets)
	assert.Empty(t, f.runner.Ran())
}

func TestRunAbsentSnapshotIsFatal(t *testing.T) {
	f := newFixture(t, stopTargets("db-a"))
	// Empty store: the snapshot object is gone, so the table is empty
	// and no target can resolve.
	f.pipeline.store = objstore.NewMem()

	_, err := f.pipeline.Run(context.Background(), f.manifest)
	require.Error(t, err)
	assert.ErrorIs(t, err, ops.ErrNoResolvableTargets)
}

func TestRunMixedOutcomesFailTheRun(t *testing.T) {
	f := newFixture(t, stopTargets("db-a", "db-b"))
	f.runner.RunErr = func(rt ops.ResolvedTarget) error {
		if rt.LogicalKey == "db-b" {
			return assert.AnError
		}
		return nil
	}

	report, err := f.pipeline.Run(context.Background(), f.manifest)
	require.NoError(t, err)

	assert.True(t, report.Failed())
	kinds := map[string]ops.OutcomeKind{}
	for _, o := range report.Outcomes {
		kinds[o.LogicalKey] = o.Kind
	}
	assert.Equal(t, ops.OutcomeSuccess, kinds["db-a"])
	assert.Equal(t, ops.OutcomeFailure, kinds["db-b"])

	// Both outcomes land in the durable record, failure included.
	raw, err := f.mem.Get(context.Background(),
		"proj/ansible/oci/eu-frankfurt-1/ansible-state-adb-lifecycle.json")
	require.NoError(t, err)
	var rec state.Record
	require.NoError(t, json.Unmarshal(raw, &rec))
	assert.Equal(t, ops.OutcomeFailure, rec.Entries["db-b"].LastOutcome)
}

func TestRunMergePreservesSiblingEntries(t *testing.T) {
	f := newFixture(t, stopTargets("db-a"))

	// A previous run recorded db-b; this run touches only db-a.
	prior, err := json.Marshal(state.Record{
		Version:       1,
		OperationType: "adb-lifecycle",
		Region:        "eu-frankfurt-1",
		Entries: map[string]state.Entry{
			"db-b": {LastAction: ops.ActionStart, LastOutcome: ops.OutcomeSuccess, AttemptCount: 2},
		},
	})
	require.NoError(t, err)
	f.mem.Seed("proj/ansible/oci/eu-frankfurt-1/ansible-state-adb-lifecycle.json", prior)

	_, err = f.pipeline.Run(context.Background(), f.manifest)
	require.NoError(t, err)

	raw, err := f.mem.Get(context.Background(),
		"proj/ansible/oci/eu-frankfurt-1/ansible-state-adb-lifecycle.json")
	require.NoError(t, err)
	var rec state.Record
	require.NoError(t, json.Unmarshal(raw, &rec))

	require.Contains(t, rec.Entries, "db-a")
	require.Contains(t, rec.Entries, "db-b")
	assert.Equal(t, 2, rec.Entries["db-b"].AttemptCount)
	assert.Equal(t, ops.ActionStart, rec.Entries["db-b"].LastAction)
}

func TestRunDurableWriteFailureIsLoudAndFailsRun(t *testing.T) {
	f := newFixture(t, stopTargets("db-a"))
	f.mem.FailPut = assert.AnError

	report, err := f.pipeline.Run(context.Background(), f.manifest)
	require.NoError(t, err)

	assert.True(t, report.DurableWriteFailed)
	assert.True(t, report.Failed())
	// The action itself completed and the fast channel reflects it.
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, ops.OutcomeSuccess, report.Outcomes[0].Kind)
	tags, err := f.runner.ReadTags(context.Background(), "ocid1..aaa")
	require.NoError(t, err)
	assert.Equal(t, "success", tags[state.TagLastOutcome])
}

func TestRunSkippedTargetsDoNotTouchDurableRecord(t *testing.T) {
	f := newFixture(t, stopTargets("db-a"))

	_, err := f.pipeline.Run(context.Background(), f.manifest)
	require.NoError(t, err)

	// Second run short-circuits on the fast channel; the record must
	// keep attempt_count 1 rather than counting the skip.
	_, err = f.pipeline.Run(context.Background(), f.manifest)
	require.NoError(t, err)

	raw, err := f.mem.Get(context.Background(),
		"proj/ansible/oci/eu-frankfurt-1/ansible-state-adb-lifecycle.json")
	require.NoError(t, err)
	var rec state.Record
	require.NoError(t, json.Unmarshal(raw, &rec))
	assert.Equal(t, 1, rec.Entries["db-a"].AttemptCount)
}

func TestRunPreconditionFailureFailsRun(t *testing.T) {
	f := newFixture(t, stopTargets("db-a"))
	f.runner.PreflightErr = func(rt ops.ResolvedTarget) error {
		return ops.Preconditionf("resource is UPDATING")
	}

	report, err := f.pipeline.Run(context.Background(), f.manifest)
	require.NoError(t, err)

	assert.True(t, report.Failed())
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, ops.OutcomePreconditionFailed, report.Outcomes[0].Kind)
	assert.Empty(t, f.runner.Ran())
}

func TestRunUnroutedOperationTypeIsFatal(t *testing.T) {
	f := newFixture(t, stopTargets("db-a"))
	f.pipeline.registry = runner.NewRegistry()

	_, err := f.pipeline.Run(context.Background(), f.manifest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not routed")
}

func TestPlanHasNoSideEffects(t *testing.T) {
	f := newFixture(t, stopTargets("db-a", "db-b"))

	checks, op, err := f.pipeline.Plan(context.Background(), f.manifest)
	require.NoError(t, err)

	assert.Equal(t, "adb-lifecycle", op.Type)
	require.Len(t, checks, 2)
	for _, c := range checks {
		assert.Equal(t, precheck.DecisionProceed, c.Decision)
	}

	assert.Empty(t, f.runner.Ran())
	_, err = f.mem.Get(context.Background(),
		"proj/ansible/oci/eu-frankfurt-1/ansible-state-adb-lifecycle.json")
	assert.ErrorIs(t, err, objstore.ErrNotExist)
}

func TestInventoryRendersResolvedHosts(t *testing.T) {
	f := newFixture(t, stopTargets("db-a", "ghost"))

	raw, err := f.pipeline.Inventory(context.Background(), f.manifest)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	hosts := doc["adb_instances"].(map[string]any)["hosts"].([]any)
	assert.Contains(t, hosts, "db-a")
	assert.NotContains(t, hosts, "ghost")
}
