package audit

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	apperrors "studio-notifier/internal/common/errors"
	"studio-notifier/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestHistoryStore_Lifecycle(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewPostgresHistoryStore(db)
	fixed := time.Date(2025, 12, 8, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	mock.ExpectQuery(regexp.QuoteMeta(insertHistoryQuery)).
		WithArgs("run-1", models.TypeWaitlistSpotAvailable, models.EventWaitlistCapacity,
			"2025-12-08|18:00|Yoga", int64(3), "desk@studio.example", "email", models.HistoryPending,
			sqlmock.AnyArg(), fixed).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
	mock.ExpectExec(regexp.QuoteMeta(markSentQuery)).
		WithArgs(int64(42), models.HistorySent, "ses-123", fixed).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := &models.HistoryRecord{
		JobRunID:         "run-1",
		NotificationType: models.TypeWaitlistSpotAvailable,
		EventType:        models.EventWaitlistCapacity,
		EntityKey:        "2025-12-08|18:00|Yoga",
		RecipientID:      3,
		RecipientAddress: "desk@studio.example",
		Channel:          "email",
		Payload:          map[string]interface{}{"availableSpots": 1},
	}
	id, err := store.CreatePending(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, models.HistoryPending, rec.Status)

	require.NoError(t, store.MarkSent(context.Background(), id, "ses-123"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryStore_AdHocRowHasNullRun(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewPostgresHistoryStore(db)

	mock.ExpectQuery(regexp.QuoteMeta(insertHistoryQuery)).
		WithArgs(nil, models.TypeDocumentSigned, models.EventDocumentSigned, "doc-1", nil,
			"ops@studio.example", "email", models.HistoryPending, []byte("{}"), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	_, err := store.CreatePending(context.Background(), &models.HistoryRecord{
		NotificationType: models.TypeDocumentSigned,
		EventType:        models.EventDocumentSigned,
		EntityKey:        "doc-1",
		RecipientAddress: "ops@studio.example",
		Channel:          "email",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryStore_MarkFailed(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewPostgresHistoryStore(db)

	mock.ExpectExec(regexp.QuoteMeta(markFailedQuery)).
		WithArgs(int64(7), models.HistoryFailed, "provider rejected message").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.MarkFailed(context.Background(), 7, "provider rejected message"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryStore_InsertFailure(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewPostgresHistoryStore(db)

	mock.ExpectQuery(regexp.QuoteMeta(insertHistoryQuery)).WillReturnError(errors.New("relation does not exist"))

	_, err := store.CreatePending(context.Background(), &models.HistoryRecord{Channel: "email"})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeAuditStoreFailed))
}

func TestJobRunStore_CreateAndFinish(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewPostgresJobRunStore(db)
	started := time.Date(2025, 12, 8, 10, 0, 0, 0, time.UTC)
	finished := started.Add(3 * time.Second)

	mock.ExpectExec(regexp.QuoteMeta(insertJobRunQuery)).
		WithArgs("run-1", models.JobRunRunning, sqlmock.AnyArg(), started).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(finishJobRunQuery)).
		WithArgs("run-1", models.JobRunCompleted, 2, 3, 1, "", finished).
		WillReturnResult(sqlmock.NewResult(0, 1))

	run := &models.JobRun{
		ID:        "run-1",
		Status:    models.JobRunRunning,
		Detectors: []string{"waitlist_capacity", "new_lead"},
		StartedAt: started,
	}
	require.NoError(t, store.Create(context.Background(), run))

	run.Status = models.JobRunCompleted
	run.EventsDetected = 2
	run.NotificationsSent = 3
	run.NotificationsFailed = 1
	run.FinishedAt = &finished
	require.NoError(t, store.Finish(context.Background(), run))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecipientStore_ListByEventType(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewPostgresRecipientStore(db)

	rows := sqlmock.NewRows([]string{"id", "name", "email", "phone", "event_types", "is_active"}).
		AddRow(1, "Front Desk", "desk@studio.example", "", "{waitlist_capacity,birthday}", true).
		AddRow(2, "Owner", "", "0501234567", "{waitlist_capacity}", true)
	mock.ExpectQuery(regexp.QuoteMeta(selectRecipientsQuery)).
		WithArgs(models.EventWaitlistCapacity).
		WillReturnRows(rows)

	recipients, err := store.ListByEventType(context.Background(), models.EventWaitlistCapacity)
	require.NoError(t, err)
	require.Len(t, recipients, 2)
	assert.Equal(t, []string{"waitlist_capacity", "birthday"}, recipients[0].EventTypes)
	assert.Equal(t, "0501234567", recipients[1].Phone)
	assert.True(t, recipients[1].Subscribes(models.EventWaitlistCapacity))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecipientStore_QueryFailure(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewPostgresRecipientStore(db)

	mock.ExpectQuery(regexp.QuoteMeta(selectRecipientsQuery)).WillReturnError(errors.New("timeout"))

	_, err := store.ListByEventType(context.Background(), models.EventBirthday)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeAuditStoreFailed))
}
