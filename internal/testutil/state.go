// Package testutil holds in-memory stand-ins for the Postgres-backed stores.
package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	apperrors "studio-notifier/internal/common/errors"
	"studio-notifier/internal/models"
	"studio-notifier/internal/state"
)

// MemoryStateStore implements state.Store in memory. State data is passed
// through JSON on save so reads behave like JSONB columns.
type MemoryStateStore struct {
	mu      sync.Mutex
	records map[string]*models.StateRecord
	nextID  int64
	Now     func() time.Time
	// Fail, when set, is consulted before every operation.
	Fail  func(op string) error
	Saves int
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		records: map[string]*models.StateRecord{},
		Now:     time.Now,
	}
}

func key(eventType, entityKey string) string {
	return eventType + "\x00" + entityKey
}

func (s *MemoryStateStore) fail(op string) error {
	if s.Fail == nil {
		return nil
	}
	if err := s.Fail(op); err != nil {
		return apperrors.NewStateStoreFailedError(op, err)
	}
	return nil
}

func (s *MemoryStateStore) GetPreviousState(_ context.Context, eventType, entityKey string) (*models.StateRecord, error) {
	if err := s.fail("get"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key(eventType, entityKey)]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStateStore) CompareState(ctx context.Context, eventType, entityKey string, newStateData map[string]interface{}) (*state.Comparison, error) {
	prev, err := s.GetPreviousState(ctx, eventType, entityKey)
	if err != nil {
		return nil, err
	}
	return state.Compare(prev, newStateData)
}

func (s *MemoryStateStore) SaveState(_ context.Context, eventType, entityKey, entityID string, stateData map[string]interface{}) error {
	if err := s.fail("save"); err != nil {
		return err
	}
	hash, err := state.Hash(stateData)
	if err != nil {
		return apperrors.NewStateStoreFailedError("hash", err)
	}
	raw, err := json.Marshal(stateData)
	if err != nil {
		return apperrors.NewStateStoreFailedError("encode", err)
	}
	var stored map[string]interface{}
	if err := json.Unmarshal(raw, &stored); err != nil {
		return apperrors.NewStateStoreFailedError("decode", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.Saves++
	k := key(eventType, entityKey)
	rec, ok := s.records[k]
	if !ok {
		s.nextID++
		rec = &models.StateRecord{ID: s.nextID, EventType: eventType, EntityKey: entityKey}
		s.records[k] = rec
	}
	rec.EntityID = entityID
	rec.StateData = stored
	rec.StateHash = hash
	rec.LastCheckedAt = s.Now()
	return nil
}

func (s *MemoryStateStore) CleanupOldStates(_ context.Context, eventType string, olderThanDays int) (int64, error) {
	if err := s.fail("cleanup"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.Now().AddDate(0, 0, -olderThanDays)
	var n int64
	for k, rec := range s.records {
		if rec.EventType == eventType && rec.LastCheckedAt.Before(cutoff) {
			delete(s.records, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored records for eventType.
func (s *MemoryStateStore) Len(eventType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range s.records {
		if rec.EventType == eventType {
			n++
		}
	}
	return n
}

// Get returns the stored record without consulting Fail.
func (s *MemoryStateStore) Get(eventType, entityKey string) *models.StateRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[key(eventType, entityKey)]
}

// FixedClock returns a settable time source.
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{t: t}
}

func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
