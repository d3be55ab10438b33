package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsrun-io/opsrun/internal/ops"
)

func writeManifest(t *testing.T, rel, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestResolveExtractsRegionFromPath(t *testing.T) {
	path := writeManifest(t, "configs/oci/eu-frankfurt-1/operations/stop.json", `{
		"operation_type": "adb-lifecycle",
		"targets": [{"logical_key": "my-adb", "action": "stop"}]
	}`)

	op, err := Resolve(path, "oci")
	require.NoError(t, err)
	assert.Equal(t, "adb-lifecycle", op.Type)
	assert.Equal(t, "eu-frankfurt-1", op.Region)
	require.Len(t, op.Targets, 1)
	assert.Equal(t, "my-adb", op.Targets[0].LogicalKey)
	assert.Equal(t, ops.ActionStop, op.Targets[0].Action)
}

func TestResolveDefaults(t *testing.T) {
	path := writeManifest(t, "oci/us-ashburn-1/op.json", `{
		"operation_type": "adb-lifecycle",
		"targets": [{"logical_key": "db1", "action": "start"}]
	}`)

	op, err := Resolve(path, "oci")
	require.NoError(t, err)
	assert.True(t, op.Targets[0].Wait())
	assert.Equal(t, 30, ops.DefaultTimeoutMinutes)
	assert.Equal(t, ops.DefaultTimeoutMinutes*60, int(op.Targets[0].Timeout().Seconds()))
}

func TestResolveExplicitWaitAndTimeout(t *testing.T) {
	path := writeManifest(t, "oci/us-ashburn-1/op.json", `{
		"operation_type": "adb-lifecycle",
		"targets": [{"logical_key": "db1", "action": "stop", "wait_for_state": false, "timeout_minutes": 5}]
	}`)

	op, err := Resolve(path, "oci")
	require.NoError(t, err)
	assert.False(t, op.Targets[0].Wait())
	assert.Equal(t, 5*60, int(op.Targets[0].Timeout().Seconds()))
}

func TestResolveManifestNotFound(t *testing.T) {
	_, err := Resolve(filepath.Join(t.TempDir(), "oci", "r1", "nope.json"), "oci")
	require.Error(t, err)
	assert.ErrorIs(t, err, ops.ErrManifestNotFound)
}

func TestResolveMalformed(t *testing.T) {
	cases := map[string]string{
		"invalid json":   `{`,
		"no type":        `{"targets": [{"logical_key": "a", "action": "stop"}]}`,
		"no targets":     `{"operation_type": "adb-lifecycle", "targets": []}`,
		"no logical key": `{"operation_type": "adb-lifecycle", "targets": [{"action": "stop"}]}`,
		"bad action":     `{"operation_type": "adb-lifecycle", "targets": [{"logical_key": "a", "action": "reboot"}]}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeManifest(t, "oci/r1/op.json", content)
			_, err := Resolve(path, "oci")
			require.Error(t, err)
			assert.ErrorIs(t, err, ops.ErrManifestMalformed)
		})
	}
}

func TestResolveRegionUnresolvable(t *testing.T) {
	// Scope segment missing entirely.
	path := writeManifest(t, "configs/operations/op.json", `{
		"operation_type": "adb-lifecycle",
		"targets": [{"logical_key": "a", "action": "stop"}]
	}`)
	_, err := Resolve(path, "oci")
	require.Error(t, err)
	assert.ErrorIs(t, err, ops.ErrRegionUnresolvable)
}

func TestResolveRegionScopeDirectlyBeforeFile(t *testing.T) {
	// The segment after the scope is the file itself, not a region.
	path := writeManifest(t, "oci/op.json", `{
		"operation_type": "adb-lifecycle",
		"targets": [{"logical_key": "a", "action": "stop"}]
	}`)
	_, err := Resolve(path, "oci")
	require.Error(t, err)
	assert.ErrorIs(t, err, ops.ErrRegionUnresolvable)
}
