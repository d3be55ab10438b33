// Package manifest reads and validates operation manifests. Resolution
// is a pure read: no state is touched before the manifest is known to
// be well formed.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/opsrun-io/opsrun/internal/ops"
)

// Resolve loads the manifest at path and derives the operation region
// from the path itself: the segment immediately following the provider
// scope segment. A path like configs/oci/eu-frankfurt-1/operations/stop.json
// with scope "oci" resolves to region "eu-frankfurt-1".
func Resolve(path, scope string) (*ops.Operation, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ops.ErrManifestNotFound, path)
		}
		return nil, fmt.Errorf("%w: reading %s: %v", ops.ErrManifestNotFound, path, err)
	}

	var m ops.Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ops.ErrManifestMalformed, path, err)
	}
	if err := validate(&m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ops.ErrManifestMalformed, path, err)
	}

	region, err := regionFromPath(path, scope)
	if err != nil {
		return nil, err
	}

	return &ops.Operation{
		Type:    m.OperationType,
		Region:  region,
		Targets: m.Targets,
	}, nil
}

func validate(m *ops.Manifest) error {
	if m.OperationType == "" {
		return fmt.Errorf("operation_type is empty")
	}
	if len(m.Targets) == 0 {
		return fmt.Errorf("manifest has no targets")
	}
	for i, t := range m.Targets {
		if t.LogicalKey == "" {
			return fmt.Errorf("target %d has no logical_key", i)
		}
		if !t.Action.Valid() {
			return fmt.Errorf("target %q has unknown action %q", t.LogicalKey, t.Action)
		}
	}
	return nil
}

// regionFromPath extracts the region positionally. The scope segment
// must be followed by at least one more directory segment before the
// manifest file itself.
func regionFromPath(path, scope string) (string, error) {
	segs := strings.Split(filepath.ToSlash(filepath.Clean(path)), "/")
	for i, seg := range segs {
		if seg != scope {
			continue
		}
		// The region segment must exist and must not be the file name.
		if i+1 >= len(segs)-1 {
			break
		}
		return segs[i+1], nil
	}
	return "", fmt.Errorf("%w: no %q/<region>/ segment in %s", ops.ErrRegionUnresolvable, scope, path)
}
