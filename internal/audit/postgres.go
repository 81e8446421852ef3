package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	apperrors "studio-notifier/internal/common/errors"
	"studio-notifier/internal/models"

	"github.com/lib/pq"
)

const (
	insertHistoryQuery = `INSERT INTO notification_history
	(job_run_id, notification_type, event_type, entity_key, recipient_id, recipient_address, channel, status, payload, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	RETURNING id`

	markSentQuery = `UPDATE notification_history SET status = $2, external_id = $3, sent_at = $4
	WHERE id = $1 AND status = 'pending'`

	markFailedQuery = `UPDATE notification_history SET status = $2, error = $3
	WHERE id = $1 AND status = 'pending'`

	insertJobRunQuery = `INSERT INTO notification_job_runs (id, status, detectors, started_at)
	VALUES ($1, $2, $3, $4)`

	finishJobRunQuery = `UPDATE notification_job_runs
	SET status = $2, events_detected = $3, notifications_sent = $4, notifications_failed = $5, error = $6, finished_at = $7
	WHERE id = $1`

	selectRecipientsQuery = `SELECT id, name, email, phone, event_types, is_active
	FROM notification_recipients
	WHERE is_active = TRUE AND $1 = ANY(event_types)
	ORDER BY id`
)

// PostgresHistoryStore implements HistoryStore on notification_history.
type PostgresHistoryStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresHistoryStore(db *sql.DB) *PostgresHistoryStore {
	return &PostgresHistoryStore{db: db, now: time.Now}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func (s *PostgresHistoryStore) CreatePending(ctx context.Context, rec *models.HistoryRecord) (int64, error) {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return 0, apperrors.NewAuditStoreFailedError("history.encode", err)
	}
	if rec.Payload == nil {
		payload = []byte("{}")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	rec.Status = models.HistoryPending

	var id int64
	err = s.db.QueryRowContext(ctx, insertHistoryQuery,
		nullString(rec.JobRunID),
		rec.NotificationType,
		rec.EventType,
		rec.EntityKey,
		nullID(rec.RecipientID),
		rec.RecipientAddress,
		rec.Channel,
		rec.Status,
		payload,
		rec.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, apperrors.NewAuditStoreFailedError("history.insert", err)
	}
	rec.ID = id
	return id, nil
}

func (s *PostgresHistoryStore) MarkSent(ctx context.Context, id int64, externalID string) error {
	if _, err := s.db.ExecContext(ctx, markSentQuery, id, models.HistorySent, externalID, s.now().UTC()); err != nil {
		return apperrors.NewAuditStoreFailedError("history.sent", err)
	}
	return nil
}

func (s *PostgresHistoryStore) MarkFailed(ctx context.Context, id int64, reason string) error {
	if _, err := s.db.ExecContext(ctx, markFailedQuery, id, models.HistoryFailed, reason); err != nil {
		return apperrors.NewAuditStoreFailedError("history.failed", err)
	}
	return nil
}

// PostgresJobRunStore implements JobRunStore on notification_job_runs.
type PostgresJobRunStore struct {
	db *sql.DB
}

func NewPostgresJobRunStore(db *sql.DB) *PostgresJobRunStore {
	return &PostgresJobRunStore{db: db}
}

func (s *PostgresJobRunStore) Create(ctx context.Context, run *models.JobRun) error {
	if _, err := s.db.ExecContext(ctx, insertJobRunQuery,
		run.ID, run.Status, pq.Array(run.Detectors), run.StartedAt,
	); err != nil {
		return apperrors.NewAuditStoreFailedError("jobrun.insert", err)
	}
	return nil
}

func (s *PostgresJobRunStore) Finish(ctx context.Context, run *models.JobRun) error {
	if _, err := s.db.ExecContext(ctx, finishJobRunQuery,
		run.ID,
		run.Status,
		run.EventsDetected,
		run.NotificationsSent,
		run.NotificationsFailed,
		run.Error,
		run.FinishedAt,
	); err != nil {
		return apperrors.NewAuditStoreFailedError("jobrun.finish", err)
	}
	return nil
}

// PostgresRecipientStore reads notification_recipients.
type PostgresRecipientStore struct {
	db *sql.DB
}

func NewPostgresRecipientStore(db *sql.DB) *PostgresRecipientStore {
	return &PostgresRecipientStore{db: db}
}

func (s *PostgresRecipientStore) ListByEventType(ctx context.Context, eventType string) ([]models.Recipient, error) {
	rows, err := s.db.QueryContext(ctx, selectRecipientsQuery, eventType)
	if err != nil {
		return nil, apperrors.NewAuditStoreFailedError("recipients.list", err)
	}
	defer rows.Close()

	var out []models.Recipient
	for rows.Next() {
		var r models.Recipient
		var eventTypes pq.StringArray
		if err := rows.Scan(&r.ID, &r.Name, &r.Email, &r.Phone, &eventTypes, &r.IsActive); err != nil {
			return nil, apperrors.NewAuditStoreFailedError("recipients.scan", err)
		}
		r.EventTypes = []string(eventTypes)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAuditStoreFailedError("recipients.list", err)
	}
	return out, nil
}
