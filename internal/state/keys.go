// Package state is the dual-channel outcome store: a durable
// merge-on-write record per (bucket, operation type) in object storage,
// plus the per-resource tag fast channel.
package state

import "fmt"

// The durable records live under a fixed namespace segment inside the
// bucket, next to (not mixed with) the provisioning snapshots. The
// bucket name doubles as an organizational prefix inside the object
// path; that is a convention shared with the provisioning layer.
const (
	namespaceSegment = "ansible"
	recordPrefix     = "ansible-state-"
)

// RecordKey returns the durable record object key:
// {bucket}/ansible/{scope}/{region}/ansible-state-{operationType}.json
func RecordKey(bucket, scope, region, operationType string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s%s.json",
		bucket, namespaceSegment, scope, region, recordPrefix, operationType)
}
