package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opsrun-io/opsrun/internal/logging"
	"github.com/opsrun-io/opsrun/internal/objstore"
	"github.com/opsrun-io/opsrun/internal/ops"
)

// recordVersion is bumped only on incompatible schema changes.
const recordVersion = 1

// Entry is the latest recorded outcome for one logical key.
type Entry struct {
	LastAction   ops.Action      `json:"last_action"`
	LastOutcome  ops.OutcomeKind `json:"last_outcome"`
	Timestamp    time.Time       `json:"timestamp"`
	AttemptCount int             `json:"attempt_count"`
}

// Record is the durable channel document: one per (bucket scope,
// operation type), versioned, holding an entry per logical key ever
// touched.
type Record struct {
	Version       int              `json:"version"`
	OperationType string           `json:"operation_type"`
	Region        string           `json:"region"`
	RunID         string           `json:"run_id,omitempty"`
	UpdatedAt     time.Time        `json:"updated_at"`
	Entries       map[string]Entry `json:"entries"`
}

// Store reads and merge-writes durable records.
type Store struct {
	store  objstore.Store
	bucket string
	scope  string
}

// NewStore wires the durable channel onto an object store.
func NewStore(store objstore.Store, bucket, scope string) *Store {
	return &Store{store: store, bucket: bucket, scope: scope}
}

// Read fetches the record for an operation type and region. A missing
// object is the first run for that pair, not an error: an empty record
// is synthesized.
func (s *Store) Read(ctx context.Context, region, operationType string) (*Record, error) {
	key := RecordKey(s.bucket, s.scope, region, operationType)
	raw, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, objstore.ErrNotExist) {
			return emptyRecord(operationType, region), nil
		}
		return nil, fmt.Errorf("failed to read state record %s: %w", key, err)
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("state record %s is malformed: %w", key, err)
	}
	if rec.Entries == nil {
		rec.Entries = make(map[string]Entry)
	}
	return &rec, nil
}

// Merge overlays this run's entries onto the current remote record and
// writes the result back in full. The remote record is re-read here
// rather than reusing the copy read at the start of the run, so a
// concurrent writer for a sibling key window is as short as possible.
// Entries for untouched keys are always preserved. Attempt counts
// continue from whatever the remote record holds.
func (s *Store) Merge(ctx context.Context, region, operationType, runID string, touched map[string]Entry) (*Record, error) {
	rec, err := s.Read(ctx, region, operationType)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for key, e := range touched {
		e.AttemptCount = rec.Entries[key].AttemptCount + 1
		if e.Timestamp.IsZero() {
			e.Timestamp = now
		}
		rec.Entries[key] = e
	}
	rec.Version = recordVersion
	rec.OperationType = operationType
	rec.Region = region
	rec.RunID = runID
	rec.UpdatedAt = now

	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode state record: %w", err)
	}

	key := RecordKey(s.bucket, s.scope, region, operationType)
	if err := s.store.Put(ctx, key, raw); err != nil {
		return nil, fmt.Errorf("failed to write state record %s: %w", key, err)
	}
	logging.Debug("state record written", "key", key, "entries", len(rec.Entries), "touched", len(touched))
	return rec, nil
}

func emptyRecord(operationType, region string) *Record {
	return &Record{
		Version:       recordVersion,
		OperationType: operationType,
		Region:        region,
		Entries:       make(map[string]Entry),
	}
}
