// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio-notifier/internal/app"
	"studio-notifier/internal/common/config"
	"studio-notifier/internal/common/logger"
	"studio-notifier/internal/feeds"
	"studio-notifier/internal/models"
	"studio-notifier/internal/orchestrator"
	"studio-notifier/internal/testutil"
)

// ==========================
// Fakes
// ==========================

// feedServer serves the upstream feeds from mutable JSON bodies.
type feedServer struct {
	mu     sync.Mutex
	bodies map[string]string
}

func (f *feedServer) set(path, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[path] = body
}

func (f *feedServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	body, ok := f.bodies[r.URL.Path]
	f.mu.Unlock()
	if r.Header.Get("Authorization") != "Bearer feed-key" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if !ok {
		body = "[]"
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

type whatsAppServer struct {
	mu     sync.Mutex
	bodies []string
}

func (s *whatsAppServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	s.mu.Lock()
	s.bodies = append(s.bodies, r.PostForm.Get("Body"))
	n := len(s.bodies)
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{"sid": "SM" + strconv.Itoa(n), "status": "queued"})
}

type recordingSES struct {
	mu       sync.Mutex
	subjects []string
}

func (s *recordingSES) SendEmail(ctx context.Context, in *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subjects = append(s.subjects, aws.ToString(in.Message.Subject.Data))
	return &ses.SendEmailOutput{MessageId: aws.String("ses-msg")}, nil
}

type recordingSNS struct{}

func (recordingSNS) Publish(ctx context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	return &sns.PublishOutput{MessageId: aws.String("sns-msg")}, nil
}

// ==========================
// Setup
// ==========================

type harness struct {
	orch     *orchestrator.Orchestrator
	feeds    *feedServer
	whatsapp *whatsAppServer
	ses      *recordingSES
	history  *testutil.MemoryHistoryStore
	runs     *testutil.MemoryJobRunStore
	states   *testutil.MemoryStateStore
}

func newHarness(t *testing.T) *harness {
	log := logger.NewTestLogger(t)

	h := &harness{
		feeds:    &feedServer{bodies: map[string]string{}},
		whatsapp: &whatsAppServer{},
		ses:      &recordingSES{},
		history:  testutil.NewMemoryHistoryStore(),
		runs:     testutil.NewMemoryJobRunStore(),
		states:   testutil.NewMemoryStateStore(),
	}
	feedSrv := httptest.NewServer(h.feeds)
	t.Cleanup(feedSrv.Close)
	waSrv := httptest.NewServer(h.whatsapp)
	t.Cleanup(waSrv.Close)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := &config.Config{
		App: config.AppConfig{Name: "studio-notifier"},
		Channels: config.ChannelsConfig{
			Email: config.EmailChannelConfig{Enabled: true, FromEmail: "noreply@studio.example"},
			WhatsApp: config.WhatsAppChannelConfig{
				Enabled:     true,
				BaseURL:     waSrv.URL,
				AccountSID:  "AC123",
				AuthToken:   "token",
				From:        "+14155238886",
				Mode:        "freeform",
				CountryCode: "972",
				MaxRetries:  1,
			},
		},
		Detectors: map[string]config.DetectorConfig{
			config.DetectorBirthday:         {Enabled: false},
			config.DetectorMembershipExpiry: {Enabled: false},
		},
		Orchestrator: config.OrchestratorConfig{Timezone: "Asia/Jerusalem", SendTimeout: 5000},
	}

	client := feeds.NewClient(&feeds.Config{
		BaseURL:    feedSrv.URL,
		APIKey:     "feed-key",
		Timeout:    5 * time.Second,
		MaxRetries: 1,
		Paths: map[string]string{
			feeds.FeedWaitlist:    "/waitlist",
			feeds.FeedSchedule:    "/schedule",
			feeds.FeedLeads:       "/leads",
			feeds.FeedUsers:       "/users",
			feeds.FeedMemberships: "/memberships",
			feeds.FeedTrials:      "/trials",
		},
	}, log)

	h.orch = orchestrator.New(
		orchestrator.Config{FallbackEmail: "ops@studio.example", SendTimeout: 5 * time.Second},
		orchestrator.Dependencies{
			Detectors: app.BuildDetectors(cfg, client, h.states, log),
			Channels:  app.BuildChannels(cfg, h.ses, recordingSNS{}, log),
			States:    h.states,
			Recipients: &testutil.MemoryRecipientStore{Recipients: []models.Recipient{{
				ID:         1,
				Name:       "Front Desk",
				Email:      "desk@studio.example",
				Phone:      "050-765-4321",
				EventTypes: []string{models.EventWaitlistCapacity, models.EventNewLead},
				IsActive:   true,
			}}},
			History: h.history,
			JobRuns: h.runs,
			Locker:  orchestrator.NewRedisLocker(rdb, "", time.Minute, log),
		},
		log,
	)
	return h
}

const waitlistBody = `{"data": [
	{"id": 1, "user_fk": 501, "name": "Dana", "phone": "0521234567", "date": "10/12/2030", "time": "18:00", "event_name": "Yoga  Flow", "position": 1}
]}`

func scheduleBody(bookings int) string {
	return `[{"id": 77, "date": "2030-12-10", "time": "18:00:00", "event_name": "yoga flow", "maxMembers": 10, "bookings": ` +
		strconv.Itoa(bookings) + `}]`
}

// ==========================
// Scenarios
// ==========================

func TestFullCycle_WaitlistSpotAndNewLead(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.feeds.set("/waitlist", waitlistBody)
	h.feeds.set("/schedule", scheduleBody(10))
	h.feeds.set("/leads", `[{"id": "L1", "name": "Noa", "created_at": "2030-12-01T09:00:00Z"}]`)

	// first run observes the baseline and sends nothing
	result, err := h.orch.Run(ctx)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.EventsDetected)
	assert.Empty(t, h.history.Records())

	// a spot opens and a lead arrives
	h.feeds.set("/schedule", scheduleBody(9))
	h.feeds.set("/leads", `[{"id": "L1", "name": "Noa"}, {"id": "L2", "name": "Omer", "source": "instagram"}]`)

	result, err = h.orch.Run(ctx)
	require.NoError(t, err)
	h.orch.Wait()

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.EventsDetected)
	assert.Equal(t, 4, result.NotificationsSent, "two events to email and whatsapp")
	assert.Equal(t, 0, result.NotificationsFailed)

	records := h.history.Records()
	require.Len(t, records, 4)
	for _, r := range records {
		assert.Equal(t, models.HistorySent, r.Status)
		assert.Equal(t, result.RunID, r.JobRunID)
	}
	assert.Equal(t, models.TypeWaitlistSpotAvailable, records[0].NotificationType)
	assert.Equal(t, "2030-12-10|18:00|Yoga Flow", records[0].EntityKey)
	assert.Equal(t, models.TypeNewLeads, records[2].NotificationType)

	require.Len(t, h.whatsapp.bodies, 2)
	assert.Contains(t, h.whatsapp.bodies[0], "Dana")
	require.Len(t, h.ses.subjects, 2)

	run, ok := h.runs.Get(result.RunID)
	require.True(t, ok)
	assert.Equal(t, models.JobRunCompleted, run.Status)
	assert.Equal(t, 4, run.NotificationsSent)

	// unchanged feeds produce nothing on the next run
	result, err = h.orch.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.EventsDetected)
	assert.Len(t, h.history.Records(), 4)
}

func TestFullCycle_UpstreamOutageIsIsolated(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.feeds.set("/leads", `[{"id": 1}]`)
	_, err := h.orch.Run(ctx)
	require.NoError(t, err)

	h.feeds.set("/waitlist", `{"items": []}`)
	h.feeds.set("/leads", `[{"id": 1}, {"id": 2}]`)

	result, err := h.orch.Run(ctx)
	require.NoError(t, err)
	h.orch.Wait()

	assert.True(t, result.Success)
	assert.Contains(t, result.DetectorErrors[models.EventWaitlistCapacity], "INVALID_FEED_PAYLOAD")
	assert.Equal(t, 1, result.EventsDetected)
	assert.Equal(t, 2, result.NotificationsSent)
}
