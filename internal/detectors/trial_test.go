package detectors

import (
	"context"
	"testing"
	"time"

	"studio-notifier/internal/common/logger"
	"studio-notifier/internal/feeds"
	"studio-notifier/internal/models"
	"studio-notifier/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrial_NewTrialsAndReminders(t *testing.T) {
	loc := studioLocation(t)
	clock := testutil.NewFixedClock(time.Date(2025, 12, 8, 10, 0, 0, 0, loc))
	store := testutil.NewMemoryStateStore()

	trials := []feeds.Trial{
		{ID: "t1", Name: "Noa", Phone: "0521111111", Date: "2025-12-08", Time: "18:00", EventName: "Yoga"},
		{ID: "t2", Name: "Gal", Date: "2025-12-12", Time: "08:00", EventName: "Spin"},
	}
	feed := &MockFeed{
		TrialsFunc: func(ctx context.Context) ([]feeds.Trial, error) { return trials, nil },
	}
	d := NewTrialDetector(feed, store, 24, logger.NewTestLogger(t), WithClock(clock.Now), WithLocation(loc))

	// first observation: baseline ids and adopt t1 as already reminded
	out, err := d.Detect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, out)
	rec := store.Get(models.EventTrial, reminderKey)
	require.NotNil(t, rec)
	assert.Equal(t, []interface{}{"t1"}, rec.StateData["reminderSentIds"])

	// a new trial booked for tomorrow morning
	trials = append(trials, feeds.Trial{ID: "t3", Name: "Roni", Phone: "0532222222", Date: "09/12/2025", Time: "07:00", EventName: "Pilates"})
	clock.Set(time.Date(2025, 12, 8, 10, 5, 0, 0, loc))
	out, err = d.Detect(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, models.TypeNewTrials, out[0].Type)
	assert.Equal(t, []string{"t3"}, out[0].Data["trialIds"])

	assert.Equal(t, models.TypeTrialReminder, out[1].Type)
	assert.Equal(t, "t3", out[1].EntityID)
	assert.Equal(t, "Roni", out[1].Recipients[0].Name)
	assert.Equal(t, "07:00", out[1].Data["time"])

	// polling again inside the window does not repeat the reminder
	clock.Set(time.Date(2025, 12, 8, 10, 10, 0, 0, loc))
	out, err = d.Detect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, out)

	// t2 enters the window days later and is reminded exactly once
	clock.Set(time.Date(2025, 12, 11, 9, 0, 0, 0, loc))
	out, err = d.Detect(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "t2", out[0].EntityID)
}

func TestTrial_PrunesRemindersForVanishedTrials(t *testing.T) {
	loc := studioLocation(t)
	clock := testutil.NewFixedClock(time.Date(2025, 12, 8, 10, 0, 0, 0, loc))
	store := testutil.NewMemoryStateStore()

	trials := []feeds.Trial{{ID: "t1", Date: "2025-12-08", Time: "18:00"}}
	feed := &MockFeed{
		TrialsFunc: func(ctx context.Context) ([]feeds.Trial, error) { return trials, nil },
	}
	d := NewTrialDetector(feed, store, 24, logger.NewNoOpLogger(), WithClock(clock.Now), WithLocation(loc))

	_, err := d.Detect(context.Background())
	require.NoError(t, err)

	trials = nil
	_, err = d.Detect(context.Background())
	require.NoError(t, err)

	rec := store.Get(models.EventTrial, reminderKey)
	require.NotNil(t, rec)
	assert.Empty(t, rec.StateData["reminderSentIds"])
}

func TestTrial_PastTrialsAreNotReminded(t *testing.T) {
	loc := studioLocation(t)
	clock := testutil.NewFixedClock(time.Date(2025, 12, 8, 10, 0, 0, 0, loc))
	store := testutil.NewMemoryStateStore()

	trials := []feeds.Trial{}
	feed := &MockFeed{
		TrialsFunc: func(ctx context.Context) ([]feeds.Trial, error) { return trials, nil },
	}
	d := NewTrialDetector(feed, store, 24, logger.NewNoOpLogger(), WithClock(clock.Now), WithLocation(loc))

	_, err := d.Detect(context.Background())
	require.NoError(t, err)

	trials = []feeds.Trial{{ID: "old", Date: "2025-12-08", Time: "08:00"}}
	out, err := d.Detect(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, models.TypeNewTrials, out[0].Type)
}
