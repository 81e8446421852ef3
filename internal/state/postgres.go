package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	apperrors "studio-notifier/internal/common/errors"
	"studio-notifier/internal/models"
)

const (
	selectStateQuery = `SELECT id, entity_id, state_data, state_hash, last_checked_at FROM notification_states WHERE event_type = $1 AND entity_key = $2`

	upsertStateQuery = `INSERT INTO notification_states (event_type, entity_key, entity_id, state_data, state_hash, last_checked_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (event_type, entity_key) DO UPDATE SET
	entity_id = EXCLUDED.entity_id,
	state_data = EXCLUDED.state_data,
	state_hash = EXCLUDED.state_hash,
	last_checked_at = EXCLUDED.last_checked_at`

	cleanupStateQuery = `DELETE FROM notification_states WHERE event_type = $1 AND last_checked_at < $2`
)

// PostgresStore keeps state rows in the notification_states table.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// WithClock overrides the time source used for last_checked_at and cleanup.
func (s *PostgresStore) WithClock(now func() time.Time) *PostgresStore {
	s.now = now
	return s
}

func (s *PostgresStore) GetPreviousState(ctx context.Context, eventType, entityKey string) (*models.StateRecord, error) {
	rec := &models.StateRecord{EventType: eventType, EntityKey: entityKey}
	var raw []byte
	err := s.db.QueryRowContext(ctx, selectStateQuery, eventType, entityKey).
		Scan(&rec.ID, &rec.EntityID, &raw, &rec.StateHash, &rec.LastCheckedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.NewStateStoreFailedError("get", err)
	}

	if err := json.Unmarshal(raw, &rec.StateData); err != nil {
		return nil, apperrors.NewStateStoreFailedError("decode", err)
	}
	return rec, nil
}

func (s *PostgresStore) CompareState(ctx context.Context, eventType, entityKey string, newStateData map[string]interface{}) (*Comparison, error) {
	prev, err := s.GetPreviousState(ctx, eventType, entityKey)
	if err != nil {
		return nil, err
	}
	cmp, err := Compare(prev, newStateData)
	if err != nil {
		return nil, apperrors.NewStateStoreFailedError("compare", err)
	}
	return cmp, nil
}

func (s *PostgresStore) SaveState(ctx context.Context, eventType, entityKey, entityID string, stateData map[string]interface{}) error {
	hash, err := Hash(stateData)
	if err != nil {
		return apperrors.NewStateStoreFailedError("hash", err)
	}
	raw, err := json.Marshal(stateData)
	if err != nil {
		return apperrors.NewStateStoreFailedError("encode", err)
	}

	if _, err := s.db.ExecContext(ctx, upsertStateQuery,
		eventType, entityKey, entityID, raw, hash, s.now().UTC(),
	); err != nil {
		return apperrors.NewStateStoreFailedError("save", err)
	}
	return nil
}

func (s *PostgresStore) CleanupOldStates(ctx context.Context, eventType string, olderThanDays int) (int64, error) {
	cutoff := s.now().UTC().AddDate(0, 0, -olderThanDays)
	res, err := s.db.ExecContext(ctx, cleanupStateQuery, eventType, cutoff)
	if err != nil {
		return 0, apperrors.NewStateStoreFailedError("cleanup", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.NewStateStoreFailedError("cleanup", err)
	}
	return n, nil
}
