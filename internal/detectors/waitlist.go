package detectors

import (
	"context"
	"sort"
	"strings"

	"studio-notifier/internal/common/logger"
	"studio-notifier/internal/feeds"
	"studio-notifier/internal/models"
	"studio-notifier/internal/state"
)

// WaitlistFeed supplies the two feeds joined by the waitlist detector.
type WaitlistFeed interface {
	Waitlist(ctx context.Context) ([]feeds.WaitlistEntry, error)
	Schedule(ctx context.Context) ([]feeds.SessionCapacity, error)
}

// session is a scheduled class that has people waiting for it.
type session struct {
	Key        string
	ID         string
	Date       string
	Time       string
	Title      string
	MaxMembers int
	Bookings   int
	Waitlist   []feeds.WaitlistEntry
}

func (s session) availableSpots() int {
	if spots := s.MaxMembers - s.Bookings; spots > 0 {
		return spots
	}
	return 0
}

// WaitlistCapacityDetector fires when a full session with a waitlist gains a
// free spot.
type WaitlistCapacityDetector struct {
	base
	feed WaitlistFeed
}

func NewWaitlistCapacityDetector(feed WaitlistFeed, store state.Store, log logger.Logger, opts ...Option) *WaitlistCapacityDetector {
	return &WaitlistCapacityDetector{
		base: newBase(models.EventWaitlistCapacity, store, log, opts),
		feed: feed,
	}
}

func (d *WaitlistCapacityDetector) Detect(ctx context.Context) ([]models.Notification, error) {
	return detectEntities(ctx, d.store, entityDetector[session]{
		EventType:        d.eventType,
		FetchCurrentData: d.fetchSessions,
		Identify: func(s session) (string, string) {
			return s.ID, s.Key
		},
		ExtractStateData: func(s session) map[string]interface{} {
			ids := make([]string, 0, len(s.Waitlist))
			for _, w := range s.Waitlist {
				ids = append(ids, w.UserFK.String())
			}
			return map[string]interface{}{
				"availableSpots":   s.availableSpots(),
				"hasAvailableSpot": s.availableSpots() > 0,
				"waitlistCount":    len(s.Waitlist),
				"waitlistUserIds":  ids,
			}
		},
		ShouldNotify: func(cmp *state.Comparison, s session) bool {
			if cmp.PreviousState == nil || len(s.Waitlist) == 0 {
				return false
			}
			prev, ok := number(cmp.PreviousState.StateData["availableSpots"])
			return ok && prev == 0 && s.availableSpots() > 0
		},
		BuildNotificationPayload: d.buildNotification,
	})
}

func joinKey(date, clock, title string) string {
	return date + "|" + clock + "|" + feeds.NormalizeTitle(title)
}

// fetchSessions joins the waitlist feed (DD/MM/YYYY) with the schedule feed
// (YYYY-MM-DD) on normalized date, time and title.
func (d *WaitlistCapacityDetector) fetchSessions(ctx context.Context) ([]session, error) {
	entries, err := d.feed.Waitlist(ctx)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	schedule, err := d.feed.Schedule(ctx)
	if err != nil {
		return nil, err
	}

	capacity := make(map[string]feeds.SessionCapacity, len(schedule))
	for _, c := range schedule {
		date, err := feeds.NormalizeDate(c.Date)
		if err != nil {
			d.logger.Warn("skipping schedule row with bad date", map[string]interface{}{"date": c.Date})
			continue
		}
		clock, err := feeds.NormalizeTime(c.Time)
		if err != nil {
			d.logger.Warn("skipping schedule row with bad time", map[string]interface{}{"time": c.Time})
			continue
		}
		capacity[joinKey(date, clock, c.EventName)] = c
	}

	byKey := map[string]*session{}
	var order []string
	for _, e := range entries {
		date, err := feeds.NormalizeDate(e.Date)
		if err != nil {
			d.logger.Warn("skipping waitlist entry with bad date", map[string]interface{}{"date": e.Date})
			continue
		}
		clock, err := feeds.NormalizeTime(e.Time)
		if err != nil {
			d.logger.Warn("skipping waitlist entry with bad time", map[string]interface{}{"time": e.Time})
			continue
		}
		jk := joinKey(date, clock, e.EventName)
		s, ok := byKey[jk]
		if !ok {
			title := strings.Join(strings.Fields(e.EventName), " ")
			s = &session{
				Key:   date + "|" + clock + "|" + title,
				Date:  date,
				Time:  clock,
				Title: title,
			}
			byKey[jk] = s
			order = append(order, jk)
		}
		s.Waitlist = append(s.Waitlist, e)
	}

	sessions := make([]session, 0, len(order))
	for _, jk := range order {
		s := byKey[jk]
		c, ok := capacity[jk]
		if !ok {
			d.logger.Debug("no schedule row for waitlisted session", map[string]interface{}{"entityKey": s.Key})
			continue
		}
		s.ID = c.ID.String()
		s.MaxMembers = c.MaxMembers
		s.Bookings = c.Bookings
		sortByPosition(s.Waitlist)
		sessions = append(sessions, *s)
	}
	return sessions, nil
}

// sortByPosition orders by explicit position, keeping feed order for entries
// without one.
func sortByPosition(entries []feeds.WaitlistEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		pi, pj := entries[i].Position, entries[j].Position
		if pi == 0 || pj == 0 {
			return pi != 0 && pj == 0
		}
		return pi < pj
	})
}

func (d *WaitlistCapacityDetector) buildNotification(_ *state.Comparison, s session) models.Notification {
	recipients := make([]models.Participant, 0, len(s.Waitlist))
	for i, w := range s.Waitlist {
		recipients = append(recipients, models.Participant{
			UserID:   w.UserFK.String(),
			Name:     w.Name,
			Phone:    w.Phone,
			Email:    w.Email,
			Position: i + 1,
		})
	}

	return models.Notification{
		Type:       models.TypeWaitlistSpotAvailable,
		EventType:  d.eventType,
		EntityID:   s.ID,
		EntityKey:  s.Key,
		Recipients: recipients,
		Data: map[string]interface{}{
			"availableSpots": s.availableSpots(),
			"maxMembers":     s.MaxMembers,
			"bookings":       s.Bookings,
			"date":           s.Date,
			"time":           s.Time,
			"eventName":      s.Title,
			"waitlistCount":  len(s.Waitlist),
		},
		Metadata: map[string]interface{}{
			"detectedAt": d.now().UTC(),
		},
	}
}
