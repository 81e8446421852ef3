package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"studio-notifier/internal/common/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisLocker_AcquireAndRelease(t *testing.T) {
	mr, client := setupMiniredis(t)
	locker := NewRedisLocker(client, "", 10*time.Minute, logger.NewTestLogger(t))

	unlock, ok, err := locker.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists(DefaultLockKey))
	assert.Equal(t, 10*time.Minute, mr.TTL(DefaultLockKey))

	_, ok, err = locker.TryLock(context.Background())
	require.NoError(t, err)
	assert.False(t, ok, "second holder must not acquire")

	unlock()
	assert.False(t, mr.Exists(DefaultLockKey))

	unlock2, ok, err := locker.TryLock(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	unlock2()
}

func TestRedisLocker_ExpiredLockIsNotStolenBack(t *testing.T) {
	mr, client := setupMiniredis(t)
	first := NewRedisLocker(client, "run-lock", time.Minute, logger.NewTestLogger(t))
	second := NewRedisLocker(client, "run-lock", time.Minute, logger.NewTestLogger(t))

	unlockFirst, ok, err := first.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	_, ok, err = second.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	unlockFirst()
	assert.True(t, mr.Exists("run-lock"), "stale holder must not release the new lock")
}

func TestRedisLocker_HeldElsewhere(t *testing.T) {
	client, mock := redismock.NewClientMock()
	locker := NewRedisLocker(client, "run-lock", time.Minute, logger.NewTestLogger(t))
	locker.newToken = func() string { return "token-1" }

	mock.ExpectSetNX("run-lock", "token-1", time.Minute).SetVal(false)

	unlock, ok, err := locker.TryLock(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, unlock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLocker_Error(t *testing.T) {
	client, mock := redismock.NewClientMock()
	locker := NewRedisLocker(client, "run-lock", time.Minute, logger.NewTestLogger(t))
	locker.newToken = func() string { return "token-1" }

	mock.ExpectSetNX("run-lock", "token-1", time.Minute).SetErr(errors.New("connection refused"))

	_, ok, err := locker.TryLock(context.Background())
	require.Error(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
