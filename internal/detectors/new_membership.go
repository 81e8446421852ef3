package detectors

import (
	"context"

	"studio-notifier/internal/common/logger"
	"studio-notifier/internal/feeds"
	"studio-notifier/internal/models"
	"studio-notifier/internal/state"
)

// NewMembershipDetector announces memberships created since the previous
// snapshot.
type NewMembershipDetector struct {
	base
	feed MembershipsFeed
}

func NewNewMembershipDetector(feed MembershipsFeed, store state.Store, log logger.Logger, opts ...Option) *NewMembershipDetector {
	return &NewMembershipDetector{
		base: newBase(models.EventNewMembership, store, log, opts),
		feed: feed,
	}
}

func (d *NewMembershipDetector) Detect(ctx context.Context) ([]models.Notification, error) {
	memberships, err := d.feed.Memberships(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]feeds.Membership, len(memberships))
	ids := make([]string, 0, len(memberships))
	for _, m := range memberships {
		byID[m.ID.String()] = m
		ids = append(ids, m.ID.String())
	}

	fresh, err := d.diffKnownIDs(ctx, knownIDsKey, ids)
	if err != nil || len(fresh) == 0 {
		return nil, err
	}

	recipients := make([]models.Participant, 0, len(fresh))
	details := make([]map[string]interface{}, 0, len(fresh))
	for _, id := range fresh {
		m := byID[id]
		recipients = append(recipients, models.Participant{
			UserID: m.UserFK.String(),
			Name:   m.Name,
			Phone:  m.Phone,
			Email:  m.Email,
		})
		details = append(details, map[string]interface{}{
			"id":             id,
			"name":           m.Name,
			"membershipType": m.MembershipTypeName,
			"start":          m.Start,
			"end":            m.End,
		})
	}

	return []models.Notification{{
		Type:       models.TypeNewMemberships,
		EventType:  d.eventType,
		EntityKey:  knownIDsKey,
		Recipients: recipients,
		Data: map[string]interface{}{
			"count":         len(fresh),
			"membershipIds": fresh,
			"memberships":   details,
		},
		Metadata: map[string]interface{}{"detectedAt": d.now().UTC()},
	}}, nil
}
