package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	apperrors "studio-notifier/internal/common/errors"
	"studio-notifier/internal/models"
)

// MemoryHistoryStore implements audit.HistoryStore in memory.
type MemoryHistoryStore struct {
	mu      sync.Mutex
	records []*models.HistoryRecord
	// FailCreate makes CreatePending return an error.
	FailCreate bool
}

func NewMemoryHistoryStore() *MemoryHistoryStore {
	return &MemoryHistoryStore{}
}

func (s *MemoryHistoryStore) CreatePending(_ context.Context, rec *models.HistoryRecord) (int64, error) {
	if s.FailCreate {
		return 0, apperrors.NewAuditStoreFailedError("history.insert", errors.New("insert refused"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	cp.ID = int64(len(s.records) + 1)
	cp.Status = models.HistoryPending
	cp.CreatedAt = time.Now().UTC()
	s.records = append(s.records, &cp)
	rec.ID = cp.ID
	rec.Status = cp.Status
	return cp.ID, nil
}

func (s *MemoryHistoryStore) MarkSent(_ context.Context, id int64, externalID string) error {
	return s.update(id, func(r *models.HistoryRecord) {
		now := time.Now().UTC()
		r.Status = models.HistorySent
		r.ExternalID = externalID
		r.SentAt = &now
	})
}

func (s *MemoryHistoryStore) MarkFailed(_ context.Context, id int64, reason string) error {
	return s.update(id, func(r *models.HistoryRecord) {
		r.Status = models.HistoryFailed
		r.Error = reason
	})
}

func (s *MemoryHistoryStore) update(id int64, fn func(*models.HistoryRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 1 || int(id) > len(s.records) {
		return apperrors.NewAuditStoreFailedError("history.update", errors.New("no such row"))
	}
	r := s.records[id-1]
	if r.Status != models.HistoryPending {
		return nil
	}
	fn(r)
	return nil
}

// Records returns copies of every stored row in insertion order.
func (s *MemoryHistoryStore) Records() []models.HistoryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.HistoryRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, *r)
	}
	return out
}

// MemoryJobRunStore implements audit.JobRunStore in memory.
type MemoryJobRunStore struct {
	mu   sync.Mutex
	runs map[string]*models.JobRun
	// Order keeps run ids in creation order.
	Order      []string
	FailCreate bool
}

func NewMemoryJobRunStore() *MemoryJobRunStore {
	return &MemoryJobRunStore{runs: map[string]*models.JobRun{}}
}

func (s *MemoryJobRunStore) Create(_ context.Context, run *models.JobRun) error {
	if s.FailCreate {
		return apperrors.NewAuditStoreFailedError("jobrun.insert", errors.New("insert refused"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *run
	s.runs[run.ID] = &cp
	s.Order = append(s.Order, run.ID)
	return nil
}

func (s *MemoryJobRunStore) Finish(_ context.Context, run *models.JobRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return apperrors.NewAuditStoreFailedError("jobrun.finish", errors.New("no such run"))
	}
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *MemoryJobRunStore) Get(id string) (models.JobRun, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return models.JobRun{}, false
	}
	return *r, true
}

// Last returns the most recently created run.
func (s *MemoryJobRunStore) Last() (models.JobRun, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Order) == 0 {
		return models.JobRun{}, false
	}
	return *s.runs[s.Order[len(s.Order)-1]], true
}

// MemoryRecipientStore implements audit.RecipientStore over a fixed list.
type MemoryRecipientStore struct {
	Recipients []models.Recipient
	Err        error
}

func (s *MemoryRecipientStore) ListByEventType(_ context.Context, eventType string) ([]models.Recipient, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	var out []models.Recipient
	for _, r := range s.Recipients {
		if r.Subscribes(eventType) {
			out = append(out, r)
		}
	}
	return out, nil
}
