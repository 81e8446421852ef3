package detectors

import (
	"context"
	"time"

	"studio-notifier/internal/models"
)

// digestItem is one person announced in a daily digest.
type digestItem struct {
	ID          string
	Participant models.Participant
	Details     map[string]interface{}
}

// dailyDigest emits at most one notification per call listing the items
// not yet announced today. The state key is scoped to the local date, so
// each day starts with an empty notifiedIds list.
func (b *base) dailyDigest(ctx context.Context, today time.Time, notificationType string, items []digestItem) ([]models.Notification, error) {
	date := today.Format("2006-01-02")
	entityKey := b.eventType + ":" + date

	prev, err := b.store.GetPreviousState(ctx, b.eventType, entityKey)
	if err != nil {
		return nil, err
	}
	notified := map[string]struct{}{}
	if prev != nil {
		notified = stringSet(prev.StateData["notifiedIds"])
	}

	var fresh []digestItem
	for _, item := range items {
		if _, seen := notified[item.ID]; seen {
			continue
		}
		notified[item.ID] = struct{}{}
		fresh = append(fresh, item)
	}

	var out []models.Notification
	if len(fresh) > 0 {
		recipients := make([]models.Participant, 0, len(fresh))
		entries := make([]map[string]interface{}, 0, len(fresh))
		ids := make([]string, 0, len(fresh))
		for _, item := range fresh {
			recipients = append(recipients, item.Participant)
			ids = append(ids, item.ID)
			entry := map[string]interface{}{"id": item.ID, "name": item.Participant.Name}
			for k, v := range item.Details {
				entry[k] = v
			}
			entries = append(entries, entry)
		}
		out = append(out, models.Notification{
			Type:       notificationType,
			EventType:  b.eventType,
			EntityKey:  entityKey,
			Recipients: recipients,
			Data: map[string]interface{}{
				"date":  date,
				"count": len(fresh),
				"ids":   ids,
				"items": entries,
			},
			Metadata: map[string]interface{}{"detectedAt": b.now().UTC()},
		})
	}

	stateData := map[string]interface{}{
		"date":        date,
		"notifiedIds": setKeys(notified),
	}
	if err := b.store.SaveState(ctx, b.eventType, entityKey, "", stateData); err != nil {
		return out, err
	}
	return out, nil
}
