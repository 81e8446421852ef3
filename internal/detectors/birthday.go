package detectors

import (
	"context"
	"time"

	"studio-notifier/internal/common/logger"
	"studio-notifier/internal/feeds"
	"studio-notifier/internal/models"
	"studio-notifier/internal/state"
)

type UsersFeed interface {
	Users(ctx context.Context) ([]feeds.User, error)
}

// BirthdayDetector sends one digest per day of members celebrating today.
type BirthdayDetector struct {
	base
	feed   UsersFeed
	window Window
}

func NewBirthdayDetector(feed UsersFeed, store state.Store, window Window, log logger.Logger, opts ...Option) *BirthdayDetector {
	return &BirthdayDetector{
		base:   newBase(models.EventBirthday, store, log, opts),
		feed:   feed,
		window: window,
	}
}

func (d *BirthdayDetector) Detect(ctx context.Context) ([]models.Notification, error) {
	now := d.localNow()
	if !d.window.Contains(now) {
		return nil, nil
	}

	users, err := d.feed.Users(ctx)
	if err != nil {
		return nil, err
	}

	var items []digestItem
	for _, u := range users {
		if u.Birthday == "" || u.ID == "" {
			continue
		}
		born, err := feeds.ParseDate(u.Birthday, d.loc)
		if err != nil {
			d.logger.Debug("skipping unparseable birthday", map[string]interface{}{"userId": u.ID.String()})
			continue
		}
		if !isBirthday(born, now) {
			continue
		}
		details := map[string]interface{}{"birthday": born.Format("2006-01-02")}
		if age := now.Year() - born.Year(); age > 0 {
			details["age"] = age
		}
		items = append(items, digestItem{
			ID: u.ID.String(),
			Participant: models.Participant{
				UserID: u.ID.String(),
				Name:   u.Name,
				Phone:  u.Phone,
				Email:  u.Email,
			},
			Details: details,
		})
	}

	return d.dailyDigest(ctx, now, models.TypeBirthdayDigest, items)
}

// isBirthday matches month and day. Feb 29 birthdays are celebrated on
// Feb 28 in non-leap years.
func isBirthday(born, today time.Time) bool {
	month, day := born.Month(), born.Day()
	if month == time.February && day == 29 && !isLeap(today.Year()) {
		day = 28
	}
	return today.Month() == month && today.Day() == day
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
