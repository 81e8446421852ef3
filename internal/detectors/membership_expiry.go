package detectors

import (
	"context"
	"math"
	"time"

	"studio-notifier/internal/common/logger"
	"studio-notifier/internal/feeds"
	"studio-notifier/internal/models"
	"studio-notifier/internal/state"
)

type MembershipsFeed interface {
	Memberships(ctx context.Context) ([]feeds.Membership, error)
}

// MembershipExpiryDetector sends one digest per day of memberships ending
// within the lookahead.
type MembershipExpiryDetector struct {
	base
	feed          MembershipsFeed
	window        Window
	lookaheadDays int
}

func NewMembershipExpiryDetector(feed MembershipsFeed, store state.Store, window Window, lookaheadDays int, log logger.Logger, opts ...Option) *MembershipExpiryDetector {
	return &MembershipExpiryDetector{
		base:          newBase(models.EventMembershipExpiry, store, log, opts),
		feed:          feed,
		window:        window,
		lookaheadDays: lookaheadDays,
	}
}

func (d *MembershipExpiryDetector) Detect(ctx context.Context) ([]models.Notification, error) {
	now := d.localNow()
	if !d.window.Contains(now) {
		return nil, nil
	}

	memberships, err := d.feed.Memberships(ctx)
	if err != nil {
		return nil, err
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, d.loc)
	last := today.AddDate(0, 0, d.lookaheadDays)

	var items []digestItem
	for _, m := range memberships {
		if m.End == "" || m.ID == "" {
			continue
		}
		end, err := feeds.ParseDate(m.End, d.loc)
		if err != nil {
			d.logger.Debug("skipping unparseable membership end", map[string]interface{}{"membershipId": m.ID.String()})
			continue
		}
		endDay := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, d.loc)
		if endDay.Before(today) || endDay.After(last) {
			continue
		}
		items = append(items, digestItem{
			ID: m.ID.String(),
			Participant: models.Participant{
				UserID: m.UserFK.String(),
				Name:   m.Name,
				Phone:  m.Phone,
				Email:  m.Email,
			},
			Details: map[string]interface{}{
				"membershipType": m.MembershipTypeName,
				"endDate":        endDay.Format("2006-01-02"),
				"daysLeft":       int(math.Round(endDay.Sub(today).Hours() / 24)),
			},
		})
	}

	return d.dailyDigest(ctx, now, models.TypeMembershipExpiryDigest, items)
}
