// Package null provides a no-op action runner with an in-memory tag
// store. It backs tests and lets new operation types be wired before
// their real runner exists.
package null

import (
	"context"
	"sync"

	"github.com/opsrun-io/opsrun/internal/ops"
)

type Runner struct {
	op string

	mu   sync.Mutex
	tags map[string]map[string]string
	ran  []string

	// RunErr, when set, is consulted per target to inject failures.
	RunErr func(rt ops.ResolvedTarget) error

	// PreflightErr, when set, is consulted per target by Preflight.
	PreflightErr func(rt ops.ResolvedTarget) error

	// TagWriteErr, when set, makes every WriteTags call fail.
	TagWriteErr error
}

func New(operationType string) *Runner {
	return &Runner{
		op:   operationType,
		tags: make(map[string]map[string]string),
	}
}

func (r *Runner) OperationType() string { return r.op }

func (r *Runner) Preflight(ctx context.Context, rt ops.ResolvedTarget) error {
	if r.PreflightErr != nil {
		return r.PreflightErr(rt)
	}
	return nil
}

func (r *Runner) Run(ctx context.Context, rt ops.ResolvedTarget) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.RunErr != nil {
		if err := r.RunErr(rt); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ran = append(r.ran, rt.LogicalKey)
	return nil
}

func (r *Runner) ReadTags(ctx context.Context, resourceID string) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.tags[resourceID]))
	for k, v := range r.tags[resourceID] {
		out[k] = v
	}
	return out, nil
}

func (r *Runner) WriteTags(ctx context.Context, resourceID string, tags map[string]string) error {
	if r.TagWriteErr != nil {
		return r.TagWriteErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tags[resourceID] == nil {
		r.tags[resourceID] = make(map[string]string)
	}
	for k, v := range tags {
		r.tags[resourceID][k] = v
	}
	return nil
}

// Ran returns the logical keys Run completed for, in completion order.
func (r *Runner) Ran() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.ran))
	copy(out, r.ran)
	return out
}

// SeedTags installs a tag set directly, for wiring test fixtures.
func (r *Runner) SeedTags(resourceID string, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags[resourceID] = tags
}
