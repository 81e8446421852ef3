package detectors

import (
	"context"

	"studio-notifier/internal/common/logger"
	"studio-notifier/internal/feeds"
	"studio-notifier/internal/models"
	"studio-notifier/internal/state"
)

type LeadsFeed interface {
	Leads(ctx context.Context) ([]feeds.Lead, error)
}

// NewLeadDetector announces leads that were not in the previous snapshot.
type NewLeadDetector struct {
	base
	feed LeadsFeed
}

func NewNewLeadDetector(feed LeadsFeed, store state.Store, log logger.Logger, opts ...Option) *NewLeadDetector {
	return &NewLeadDetector{
		base: newBase(models.EventNewLead, store, log, opts),
		feed: feed,
	}
}

func (d *NewLeadDetector) Detect(ctx context.Context) ([]models.Notification, error) {
	leads, err := d.feed.Leads(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]feeds.Lead, len(leads))
	ids := make([]string, 0, len(leads))
	for _, l := range leads {
		byID[l.ID.String()] = l
		ids = append(ids, l.ID.String())
	}

	fresh, err := d.diffKnownIDs(ctx, knownIDsKey, ids)
	if err != nil || len(fresh) == 0 {
		return nil, err
	}

	recipients := make([]models.Participant, 0, len(fresh))
	details := make([]map[string]interface{}, 0, len(fresh))
	for _, id := range fresh {
		l := byID[id]
		recipients = append(recipients, models.Participant{
			UserID: id,
			Name:   l.Name,
			Phone:  l.Phone,
			Email:  l.Email,
		})
		details = append(details, map[string]interface{}{
			"id":        id,
			"name":      l.Name,
			"phone":     l.Phone,
			"email":     l.Email,
			"source":    l.Source,
			"status":    l.Status,
			"createdAt": l.CreatedAt,
		})
	}

	return []models.Notification{{
		Type:       models.TypeNewLeads,
		EventType:  d.eventType,
		EntityKey:  knownIDsKey,
		Recipients: recipients,
		Data: map[string]interface{}{
			"count":   len(fresh),
			"leadIds": fresh,
			"leads":   details,
		},
		Metadata: map[string]interface{}{"detectedAt": d.now().UTC()},
	}}, nil
}
