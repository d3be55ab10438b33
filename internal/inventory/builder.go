// Package inventory joins manifest targets to live resources and
// renders the Ansible dynamic inventory the action playbooks consume.
package inventory

import (
	"encoding/json"
	"fmt"

	"github.com/opsrun-io/opsrun/internal/logging"
	"github.com/opsrun-io/opsrun/internal/ops"
	"github.com/opsrun-io/opsrun/internal/snapshot"
)

// Resolve joins every target's logical key against the resource table
// by exact display-name equality. Unmatched targets are kept with
// Resolved=false so they can be reported; they are never executed.
func Resolve(targets []ops.Target, table snapshot.Table) []ops.ResolvedTarget {
	resolved := make([]ops.ResolvedTarget, 0, len(targets))
	for _, t := range targets {
		rt := ops.ResolvedTarget{Target: t}
		if res, ok := table[t.LogicalKey]; ok {
			rt.Resolved = true
			rt.Resource = res
		} else {
			logging.Warn("target not found in provisioning snapshot",
				"logical_key", t.LogicalKey, "available", table.Names())
		}
		resolved = append(resolved, rt)
	}
	return resolved
}

// Executable returns the resolved subset. It fails only when zero
// targets resolved; a partially resolvable batch proceeds with what it
// has.
func Executable(resolved []ops.ResolvedTarget) ([]ops.ResolvedTarget, error) {
	var out []ops.ResolvedTarget
	for _, rt := range resolved {
		if rt.Resolved {
			out = append(out, rt)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %d target(s), none matched a live resource", ops.ErrNoResolvableTargets, len(resolved))
	}
	return out, nil
}

// Render produces the Ansible dynamic inventory document: resolved
// hosts under the operation's group, with per-host vars carrying both
// the target's request and the matched resource's identity.
func Render(group string, resolved []ops.ResolvedTarget) ([]byte, error) {
	hosts := []string{}
	hostvars := map[string]map[string]any{}

	for _, rt := range resolved {
		if !rt.Resolved {
			continue
		}
		hosts = append(hosts, rt.LogicalKey)
		vars := map[string]any{
			"ansible_connection": "local",
			"resource_id":        rt.Resource.ID,
			"resource_state":     rt.Resource.State,
			"action":             string(rt.Action),
			"wait_for_state":     rt.Wait(),
			"timeout_minutes":    int(rt.Timeout().Minutes()),
			"resource_tags":      resourceTags(rt.Resource.Attributes),
		}
		if dbName, ok := rt.Resource.Attributes["db_name"].(string); ok {
			vars["db_name"] = dbName
		}
		for k, v := range rt.Params {
			vars[k] = v
		}
		hostvars[rt.LogicalKey] = vars
	}

	doc := map[string]any{
		"_meta": map[string]any{"hostvars": hostvars},
		"all":   map[string]any{"children": []string{group}},
		group:   map[string]any{"hosts": hosts},
	}
	return json.MarshalIndent(doc, "", "  ")
}

// resourceTags extracts the provider tag map from the snapshot
// attributes: freeform_tags on OCI resources, tags on AWS ones. Absent
// tags render as an empty map.
func resourceTags(attrs map[string]any) map[string]any {
	for _, key := range []string{"freeform_tags", "tags"} {
		if m, ok := attrs[key].(map[string]any); ok {
			return m
		}
	}
	return map[string]any{}
}
