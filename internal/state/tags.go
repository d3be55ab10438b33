package state

import (
	"context"
	"time"

	"github.com/opsrun-io/opsrun/internal/ops"
)

// Tag keys mirrored onto each resource right after its action
// completes. The tag set carries only the latest outcome; history lives
// in the durable record.
const (
	TagLastAction  = "opsrun-last-action"
	TagLastOutcome = "opsrun-last-outcome"
	TagUpdatedAt   = "opsrun-updated-at"
)

// TagStore is the fast idempotency channel: per-resource annotations
// read before execution and written immediately after a successful
// action, independent of the durable write. Runners implement it on top
// of their provider's tagging API.
type TagStore interface {
	ReadTags(ctx context.Context, resourceID string) (map[string]string, error)
	WriteTags(ctx context.Context, resourceID string, tags map[string]string) error
}

// OutcomeTags builds the fixed tag set for one outcome.
func OutcomeTags(action ops.Action, outcome ops.OutcomeKind, at time.Time) map[string]string {
	return map[string]string{
		TagLastAction:  string(action),
		TagLastOutcome: string(outcome),
		TagUpdatedAt:   at.UTC().Format(time.RFC3339),
	}
}

// TagsSatisfy reports whether a tag set marks the requested action as
// already applied successfully.
func TagsSatisfy(tags map[string]string, action ops.Action) bool {
	return tags[TagLastAction] == string(action) &&
		tags[TagLastOutcome] == string(ops.OutcomeSuccess)
}

// TagsPresent reports whether the tag set carries any opsrun markers at
// all. Present-but-different tags mean the latest action was something
// else, which is not the same as an unknown fast channel.
func TagsPresent(tags map[string]string) bool {
	_, ok := tags[TagLastAction]
	return ok
}
