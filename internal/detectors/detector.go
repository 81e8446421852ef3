// Package detectors turns upstream snapshots into notifications by comparing
// them with the last observed state of every entity.
package detectors

import (
	"context"
	"time"

	"studio-notifier/internal/common/logger"
	"studio-notifier/internal/models"
	"studio-notifier/internal/state"
)

// Detector polls one upstream source and emits notifications for the
// transitions that matter to it.
type Detector interface {
	Name() string
	EventType() string
	Detect(ctx context.Context) ([]models.Notification, error)
}

// Clock returns the current time. Tests substitute a fixed one.
type Clock func() time.Time

type Option func(*base)

// WithClock sets the time source.
func WithClock(now Clock) Option {
	return func(b *base) { b.now = now }
}

// WithLocation sets the studio-local timezone used for windows and dates.
func WithLocation(loc *time.Location) Option {
	return func(b *base) {
		if loc != nil {
			b.loc = loc
		}
	}
}

type base struct {
	eventType string
	store     state.Store
	logger    logger.Logger
	now       Clock
	loc       *time.Location
}

func newBase(eventType string, store state.Store, log logger.Logger, opts []Option) base {
	b := base{
		eventType: eventType,
		store:     store,
		logger:    log.WithFields(map[string]interface{}{"detector": eventType}),
		now:       time.Now,
		loc:       time.UTC,
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b *base) Name() string      { return b.eventType }
func (b *base) EventType() string { return b.eventType }

func (b *base) localNow() time.Time {
	return b.now().In(b.loc)
}
