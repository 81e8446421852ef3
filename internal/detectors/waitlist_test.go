package detectors

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "studio-notifier/internal/common/errors"
	"studio-notifier/internal/common/logger"
	"studio-notifier/internal/feeds"
	"studio-notifier/internal/models"
	"studio-notifier/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func danaWaitlist() []feeds.WaitlistEntry {
	return []feeds.WaitlistEntry{{
		Date:      "08/12/2025",
		Time:      "18:00",
		EventName: "Yoga",
		UserFK:    "7",
		Name:      "Dana",
		Phone:     "0501234567",
	}}
}

func yogaCapacity(maxMembers, bookings int) []feeds.SessionCapacity {
	return []feeds.SessionCapacity{{
		ID:         "501",
		Date:       "2025-12-08",
		Time:       "18:00:00",
		EventName:  "Yoga",
		MaxMembers: maxMembers,
		Bookings:   bookings,
	}}
}

type waitlistFixture struct {
	store    *testutil.MemoryStateStore
	feed     *MockFeed
	detector *WaitlistCapacityDetector
	bookings int
	max      int
}

func newWaitlistFixture(t *testing.T, waitlist []feeds.WaitlistEntry, max, bookings int) *waitlistFixture {
	f := &waitlistFixture{store: testutil.NewMemoryStateStore(), max: max, bookings: bookings}
	f.feed = &MockFeed{
		WaitlistFunc: func(ctx context.Context) ([]feeds.WaitlistEntry, error) { return waitlist, nil },
		ScheduleFunc: func(ctx context.Context) ([]feeds.SessionCapacity, error) {
			return yogaCapacity(f.max, f.bookings), nil
		},
	}
	clock := testutil.NewFixedClock(time.Date(2025, 12, 8, 10, 0, 0, 0, time.UTC))
	f.detector = NewWaitlistCapacityDetector(f.feed, f.store, logger.NewTestLogger(t), WithClock(clock.Now))
	return f
}

func (f *waitlistFixture) run(t *testing.T) []models.Notification {
	t.Helper()
	out, err := f.detector.Detect(context.Background())
	require.NoError(t, err)
	return out
}

func TestWaitlistCapacity_EndToEnd(t *testing.T) {
	f := newWaitlistFixture(t, danaWaitlist(), 10, 10)

	assert.Empty(t, f.run(t), "full session on first sighting must not notify")
	rec := f.store.Get(models.EventWaitlistCapacity, "2025-12-08|18:00|Yoga")
	require.NotNil(t, rec)
	assert.Equal(t, float64(0), rec.StateData["availableSpots"])

	f.bookings = 9
	out := f.run(t)
	require.Len(t, out, 1)

	n := out[0]
	assert.Equal(t, models.TypeWaitlistSpotAvailable, n.Type)
	assert.Equal(t, models.EventWaitlistCapacity, n.EventType)
	assert.Equal(t, "2025-12-08|18:00|Yoga", n.EntityKey)
	assert.Equal(t, "501", n.EntityID)
	require.Len(t, n.Recipients, 1)
	assert.Equal(t, "Dana", n.Recipients[0].Name)
	assert.Equal(t, "0501234567", n.Recipients[0].Phone)
	assert.Equal(t, 1, n.Recipients[0].Position)
	assert.Equal(t, 1, n.Data["availableSpots"])
	assert.Equal(t, 10, n.Data["maxMembers"])
	assert.Equal(t, 9, n.Data["bookings"])
	assert.Equal(t, "Yoga", n.Data["eventName"])
}

func TestWaitlistCapacity_SingleEdgeFire(t *testing.T) {
	f := newWaitlistFixture(t, danaWaitlist(), 10, 10)
	assert.Empty(t, f.run(t))

	f.bookings = 7
	assert.Len(t, f.run(t), 1)

	assert.Empty(t, f.run(t), "holding at 3 spots must not notify again")
}

func TestWaitlistCapacity_IrrelevantChangeSuppressed(t *testing.T) {
	f := newWaitlistFixture(t, danaWaitlist(), 10, 8)
	assert.Empty(t, f.run(t))

	f.bookings = 6
	assert.Empty(t, f.run(t), "2 to 4 spots is a change but not notifiable")

	rec := f.store.Get(models.EventWaitlistCapacity, "2025-12-08|18:00|Yoga")
	require.NotNil(t, rec)
	assert.Equal(t, float64(4), rec.StateData["availableSpots"])
}

func TestWaitlistCapacity_ColdStartSavesEveryEntity(t *testing.T) {
	store := testutil.NewMemoryStateStore()
	waitlist := []feeds.WaitlistEntry{
		{Date: "08/12/2025", Time: "18:00", EventName: "Yoga", UserFK: "7", Name: "Dana"},
		{Date: "08/12/2025", Time: "19:00", EventName: "Pilates", UserFK: "8", Name: "Omer"},
		{Date: "09/12/2025", Time: "07:30", EventName: "Spin", UserFK: "9", Name: "Lior"},
	}
	schedule := []feeds.SessionCapacity{
		{ID: "1", Date: "2025-12-08", Time: "18:00", EventName: "Yoga", MaxMembers: 10, Bookings: 3},
		{ID: "2", Date: "2025-12-08", Time: "19:00", EventName: "pilates", MaxMembers: 8, Bookings: 8},
		{ID: "3", Date: "2025-12-09", Time: "07:30", EventName: "Spin", MaxMembers: 12, Bookings: 1},
	}
	feed := &MockFeed{
		WaitlistFunc: func(ctx context.Context) ([]feeds.WaitlistEntry, error) { return waitlist, nil },
		ScheduleFunc: func(ctx context.Context) ([]feeds.SessionCapacity, error) { return schedule, nil },
	}
	d := NewWaitlistCapacityDetector(feed, store, logger.NewNoOpLogger())

	out, err := d.Detect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, 3, store.Len(models.EventWaitlistCapacity))
}

func TestWaitlistCapacity_RecipientsOrderedByPosition(t *testing.T) {
	waitlist := []feeds.WaitlistEntry{
		{Date: "08/12/2025", Time: "18:00", EventName: "Yoga", UserFK: "2", Name: "Second", Position: 2},
		{Date: "08/12/2025", Time: "18:00", EventName: "Yoga", UserFK: "3", Name: "Unranked"},
		{Date: "08/12/2025", Time: "18:00", EventName: "Yoga", UserFK: "1", Name: "First", Position: 1},
	}
	f := newWaitlistFixture(t, waitlist, 10, 10)
	assert.Empty(t, f.run(t))

	f.bookings = 9
	out := f.run(t)
	require.Len(t, out, 1)

	var names []string
	for _, r := range out[0].Recipients {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"First", "Second", "Unranked"}, names)
	assert.Equal(t, 3, out[0].Data["waitlistCount"])
}

func TestWaitlistCapacity_FetchErrorLeavesStateUntouched(t *testing.T) {
	store := testutil.NewMemoryStateStore()
	feed := &MockFeed{
		WaitlistFunc: func(ctx context.Context) ([]feeds.WaitlistEntry, error) { return danaWaitlist(), nil },
		ScheduleFunc: func(ctx context.Context) ([]feeds.SessionCapacity, error) {
			return nil, apperrors.NewUpstreamFetchFailedError(feeds.FeedSchedule, errors.New("timeout"))
		},
	}
	d := NewWaitlistCapacityDetector(feed, store, logger.NewNoOpLogger())

	out, err := d.Detect(context.Background())
	assert.Empty(t, out)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeUpstreamFetchFailed))
	assert.Equal(t, 0, store.Saves)
}

func TestWaitlistCapacity_StateStoreErrorPropagates(t *testing.T) {
	f := newWaitlistFixture(t, danaWaitlist(), 10, 10)
	f.store.Fail = func(op string) error { return errors.New("connection reset") }

	_, err := f.detector.Detect(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeStateStoreFailed))
}

func TestWaitlistCapacity_SessionWithoutScheduleIsSkipped(t *testing.T) {
	store := testutil.NewMemoryStateStore()
	feed := &MockFeed{
		WaitlistFunc: func(ctx context.Context) ([]feeds.WaitlistEntry, error) { return danaWaitlist(), nil },
		ScheduleFunc: func(ctx context.Context) ([]feeds.SessionCapacity, error) { return nil, nil },
	}
	d := NewWaitlistCapacityDetector(feed, store, logger.NewNoOpLogger())

	out, err := d.Detect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, 0, store.Len(models.EventWaitlistCapacity))
}
