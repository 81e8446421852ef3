package state

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	apperrors "studio-notifier/internal/common/errors"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 12, 8, 9, 0, 0, 0, time.UTC)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func newTestStore(db *sql.DB) *PostgresStore {
	return NewPostgresStore(db).WithClock(func() time.Time { return fixedNow })
}

func TestPostgresStore_GetPreviousState(t *testing.T) {
	t.Run("returns nil when absent", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectQuery(regexp.QuoteMeta(selectStateQuery)).
			WithArgs("waitlist_capacity", "2025-12-08|18:00|Yoga").
			WillReturnError(sql.ErrNoRows)

		rec, err := newTestStore(db).GetPreviousState(context.Background(), "waitlist_capacity", "2025-12-08|18:00|Yoga")
		assert.NoError(t, err)
		assert.Nil(t, rec)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("decodes stored state", func(t *testing.T) {
		db, mock := setupMockDB(t)
		rows := sqlmock.NewRows([]string{"id", "entity_id", "state_data", "state_hash", "last_checked_at"}).
			AddRow(11, "501", []byte(`{"availableSpots":0,"waitlistCount":1}`), "abc", fixedNow)
		mock.ExpectQuery(regexp.QuoteMeta(selectStateQuery)).
			WithArgs("waitlist_capacity", "k").
			WillReturnRows(rows)

		rec, err := newTestStore(db).GetPreviousState(context.Background(), "waitlist_capacity", "k")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, int64(11), rec.ID)
		assert.Equal(t, "501", rec.EntityID)
		assert.Equal(t, "abc", rec.StateHash)
		assert.Equal(t, float64(0), rec.StateData["availableSpots"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wraps driver errors as state store failures", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectQuery(regexp.QuoteMeta(selectStateQuery)).
			WithArgs("e", "k").
			WillReturnError(errors.New("connection refused"))

		_, err := newTestStore(db).GetPreviousState(context.Background(), "e", "k")
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeStateStoreFailed))
	})
}

func TestPostgresStore_CompareState(t *testing.T) {
	stored := map[string]interface{}{"a": 1, "b": 2}
	storedHash, err := Hash(stored)
	require.NoError(t, err)

	t.Run("cold start is new and unchanged", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectQuery(regexp.QuoteMeta(selectStateQuery)).
			WithArgs("e", "k").
			WillReturnError(sql.ErrNoRows)

		cmp, err := newTestStore(db).CompareState(context.Background(), "e", "k", map[string]interface{}{"a": 1})
		require.NoError(t, err)
		assert.True(t, cmp.IsNew)
		assert.False(t, cmp.HasChanged)
		assert.Nil(t, cmp.PreviousState)
	})

	t.Run("reordered state is unchanged", func(t *testing.T) {
		db, mock := setupMockDB(t)
		rows := sqlmock.NewRows([]string{"id", "entity_id", "state_data", "state_hash", "last_checked_at"}).
			AddRow(1, "", []byte(`{"b":2,"a":1}`), storedHash, fixedNow)
		mock.ExpectQuery(regexp.QuoteMeta(selectStateQuery)).
			WithArgs("e", "k").
			WillReturnRows(rows)

		cmp, err := newTestStore(db).CompareState(context.Background(), "e", "k", map[string]interface{}{"b": 2, "a": 1})
		require.NoError(t, err)
		assert.False(t, cmp.IsNew)
		assert.False(t, cmp.HasChanged)
		assert.Empty(t, cmp.Changes)
	})
}

func TestPostgresStore_SaveState(t *testing.T) {
	db, mock := setupMockDB(t)
	data := map[string]interface{}{"availableSpots": 1}
	hash, err := Hash(data)
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO notification_states`).
		WithArgs("waitlist_capacity", "k", "501", sqlmock.AnyArg(), hash, fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = newTestStore(db).SaveState(context.Background(), "waitlist_capacity", "k", "501", data)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveState_Failure(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectExec(`INSERT INTO notification_states`).
		WillReturnError(errors.New("disk full"))

	err := newTestStore(db).SaveState(context.Background(), "e", "k", "", map[string]interface{}{"x": 1})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeStateStoreFailed))
}

func TestPostgresStore_CleanupOldStates(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectExec(regexp.QuoteMeta(cleanupStateQuery)).
		WithArgs("waitlist_capacity", fixedNow.AddDate(0, 0, -14)).
		WillReturnResult(sqlmock.NewResult(0, 5))

	n, err := newTestStore(db).CleanupOldStates(context.Background(), "waitlist_capacity", 14)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
