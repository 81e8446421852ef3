// Package state persists the last observed state of every detected entity and
// classifies transitions against it.
package state

import (
	"bytes"
	"context"
	"sort"

	"studio-notifier/internal/models"
)

// Store is the persistence contract detectors depend on.
type Store interface {
	// GetPreviousState returns nil, nil when nothing was stored for the key.
	GetPreviousState(ctx context.Context, eventType, entityKey string) (*models.StateRecord, error)
	CompareState(ctx context.Context, eventType, entityKey string, newStateData map[string]interface{}) (*Comparison, error)
	// SaveState upserts by (eventType, entityKey) and refreshes last_checked_at.
	SaveState(ctx context.Context, eventType, entityKey, entityID string, stateData map[string]interface{}) error
	CleanupOldStates(ctx context.Context, eventType string, olderThanDays int) (int64, error)
}

// Change is the before/after value of one top-level state field.
type Change struct {
	Old interface{} `json:"old"`
	New interface{} `json:"new"`
}

// Comparison classifies new state against the stored record.
type Comparison struct {
	HasChanged    bool
	IsNew         bool
	PreviousState *models.StateRecord
	Changes       map[string]Change
	Hash          string
}

// ChangedFields returns the names of changed fields in sorted order.
func (c *Comparison) ChangedFields() []string {
	fields := make([]string, 0, len(c.Changes))
	for k := range c.Changes {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

// Compare classifies newStateData against prev. A missing prev is reported as
// new and never as changed, so a first sighting cannot trigger a notification.
func Compare(prev *models.StateRecord, newStateData map[string]interface{}) (*Comparison, error) {
	hash, err := Hash(newStateData)
	if err != nil {
		return nil, err
	}

	if prev == nil {
		return &Comparison{IsNew: true, Hash: hash, Changes: map[string]Change{}}, nil
	}

	changes, err := diff(prev.StateData, newStateData)
	if err != nil {
		return nil, err
	}

	return &Comparison{
		HasChanged:    prev.StateHash != hash,
		PreviousState: prev,
		Changes:       changes,
		Hash:          hash,
	}, nil
}

func diff(oldData, newData map[string]interface{}) (map[string]Change, error) {
	changes := map[string]Change{}
	keys := map[string]struct{}{}
	for k := range oldData {
		keys[k] = struct{}{}
	}
	for k := range newData {
		keys[k] = struct{}{}
	}

	for k := range keys {
		oldVal, oldOK := oldData[k]
		newVal, newOK := newData[k]
		if oldOK != newOK {
			changes[k] = Change{Old: oldVal, New: newVal}
			continue
		}
		equal, err := canonicalEqual(oldVal, newVal)
		if err != nil {
			return nil, err
		}
		if !equal {
			changes[k] = Change{Old: oldVal, New: newVal}
		}
	}
	return changes, nil
}

func canonicalEqual(a, b interface{}) (bool, error) {
	ca, err := Canonicalize(a)
	if err != nil {
		return false, err
	}
	cb, err := Canonicalize(b)
	if err != nil {
		return false, err
	}
	ba, err := marshalCanonical(ca)
	if err != nil {
		return false, err
	}
	bb, err := marshalCanonical(cb)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ba, bb), nil
}
