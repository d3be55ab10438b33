package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/opsrun-io/opsrun/internal/ops"
)

func TestOutcomeTags(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tags := OutcomeTags(ops.ActionStop, ops.OutcomeSuccess, at)
	assert.Equal(t, map[string]string{
		"opsrun-last-action":  "stop",
		"opsrun-last-outcome": "success",
		"opsrun-updated-at":   "2026-03-01T12:00:00Z",
	}, tags)
}

func TestTagsSatisfy(t *testing.T) {
	tags := OutcomeTags(ops.ActionStop, ops.OutcomeSuccess, time.Now())
	assert.True(t, TagsSatisfy(tags, ops.ActionStop))
	assert.False(t, TagsSatisfy(tags, ops.ActionStart))

	failed := OutcomeTags(ops.ActionStop, ops.OutcomeFailure, time.Now())
	assert.False(t, TagsSatisfy(failed, ops.ActionStop))

	assert.False(t, TagsSatisfy(nil, ops.ActionStop))
	assert.False(t, TagsSatisfy(map[string]string{"team": "data"}, ops.ActionStop))
}

func TestTagsPresent(t *testing.T) {
	assert.False(t, TagsPresent(nil))
	assert.False(t, TagsPresent(map[string]string{"team": "data"}))
	assert.True(t, TagsPresent(OutcomeTags(ops.ActionStart, ops.OutcomeFailure, time.Now())))
}
