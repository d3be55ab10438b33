// Package snapshot fetches and parses the provisioning snapshot: the
// Terraform state the declarative layer last wrote for a scope/region.
// The snapshot is read fresh every run and never cached.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/opsrun-io/opsrun/internal/logging"
	"github.com/opsrun-io/opsrun/internal/objstore"
	"github.com/opsrun-io/opsrun/internal/ops"
)

// FileName is the snapshot object's file name inside the scope/region
// prefix.
const FileName = "terraform.tfstate"

// Key returns the snapshot object key: {bucket}/{scope}/{region}/terraform.tfstate.
// The bucket name is used as an organizational prefix inside the path
// by convention shared with the provisioning layer.
func Key(bucket, scope, region string) string {
	return fmt.Sprintf("%s/%s/%s/%s", bucket, scope, region, FileName)
}

// Table maps display names to live resources of one kind.
type Table map[string]*ops.Resource

// Names lists the display names present, sorted, for reporting which
// targets could have matched.
func (t Table) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Terraform state shapes, limited to what resolution needs.
type tfState struct {
	Version   int          `json:"version"`
	Serial    int          `json:"serial"`
	Lineage   string       `json:"lineage"`
	Resources []tfResource `json:"resources"`
}

type tfResource struct {
	Mode      string       `json:"mode"`
	Type      string       `json:"type"`
	Name      string       `json:"name"`
	Instances []tfInstance `json:"instances"`
}

type tfInstance struct {
	Attributes map[string]any `json:"attributes"`
}

// Reader loads resource tables from the snapshot.
type Reader struct {
	store  objstore.Store
	bucket string
	scope  string
}

func NewReader(store objstore.Store, bucket, scope string) *Reader {
	return &Reader{store: store, bucket: bucket, scope: scope}
}

// Load fetches the snapshot for a region and extracts the resources of
// resourceType, keyed by the nameAttr attribute (falling back to the
// resource block name). An absent snapshot yields an empty table: a
// provisioning run simply has not happened yet. Malformed content or a
// failed read is ErrSnapshotUnreadable.
func (r *Reader) Load(ctx context.Context, region, resourceType, nameAttr, stateAttr string) (Table, error) {
	key := Key(r.bucket, r.scope, region)
	raw, err := r.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, objstore.ErrNotExist) {
			logging.Info("provisioning snapshot absent", "key", key)
			return Table{}, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", ops.ErrSnapshotUnreadable, key, err)
	}

	var st tfState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ops.ErrSnapshotUnreadable, key, err)
	}

	table := Table{}
	for _, res := range st.Resources {
		if res.Type != resourceType {
			continue
		}
		for _, inst := range res.Instances {
			name := attrString(inst.Attributes, nameAttr)
			if name == "" {
				name = res.Name
			}
			table[name] = &ops.Resource{
				DisplayName: name,
				ID:          attrString(inst.Attributes, "id"),
				Kind:        res.Type,
				State:       attrString(inst.Attributes, stateAttr),
				Attributes:  inst.Attributes,
			}
		}
	}
	logging.Debug("snapshot loaded", "key", key, "type", resourceType, "resources", len(table))
	return table, nil
}

// attrString reads a string attribute. A "map.key" form reaches one
// level into a map attribute (used for tag-derived names).
func attrString(attrs map[string]any, key string) string {
	if key == "" {
		return ""
	}
	if parent, child, ok := strings.Cut(key, "."); ok {
		m, _ := attrs[parent].(map[string]any)
		s, _ := m[child].(string)
		return s
	}
	s, _ := attrs[key].(string)
	return s
}
