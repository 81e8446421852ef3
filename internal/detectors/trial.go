package detectors

import (
	"context"
	"time"

	"studio-notifier/internal/common/logger"
	"studio-notifier/internal/feeds"
	"studio-notifier/internal/models"
	"studio-notifier/internal/state"
)

const reminderKey = "reminders"

type TrialsFeed interface {
	Trials(ctx context.Context) ([]feeds.Trial, error)
}

// TrialDetector announces newly booked trial sessions and reminds once per
// trial shortly before it starts.
type TrialDetector struct {
	base
	feed          TrialsFeed
	reminderHours int
}

func NewTrialDetector(feed TrialsFeed, store state.Store, reminderHours int, log logger.Logger, opts ...Option) *TrialDetector {
	return &TrialDetector{
		base:          newBase(models.EventTrial, store, log, opts),
		feed:          feed,
		reminderHours: reminderHours,
	}
}

func (d *TrialDetector) Detect(ctx context.Context) ([]models.Notification, error) {
	trials, err := d.feed.Trials(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]feeds.Trial, len(trials))
	ids := make([]string, 0, len(trials))
	for _, tr := range trials {
		if tr.ID == "" {
			continue
		}
		byID[tr.ID.String()] = tr
		ids = append(ids, tr.ID.String())
	}

	var out []models.Notification

	fresh, err := d.diffKnownIDs(ctx, knownIDsKey, ids)
	if err != nil {
		return nil, err
	}
	if len(fresh) > 0 {
		out = append(out, d.newTrialsNotification(fresh, byID))
	}

	reminders, err := d.reminders(ctx, ids, byID)
	if err != nil {
		return out, err
	}
	return append(out, reminders...), nil
}

// reminders emits one reminder per trial starting within the next
// reminderHours that has not been reminded yet. The first observation only
// records in-window trials as reminded.
func (d *TrialDetector) reminders(ctx context.Context, ids []string, byID map[string]feeds.Trial) ([]models.Notification, error) {
	now := d.localNow()
	horizon := now.Add(time.Duration(d.reminderHours) * time.Hour)

	prev, err := d.store.GetPreviousState(ctx, d.eventType, reminderKey)
	if err != nil {
		return nil, err
	}
	sent := map[string]struct{}{}
	if prev != nil {
		sent = stringSet(prev.StateData["reminderSentIds"])
	}

	var out []models.Notification
	present := map[string]struct{}{}
	for _, id := range ids {
		present[id] = struct{}{}
		tr := byID[id]
		start, err := feeds.SessionStart(tr.Date, tr.Time, d.loc)
		if err != nil {
			d.logger.Debug("skipping trial with unparseable start", map[string]interface{}{"trialId": id})
			continue
		}
		if !start.After(now) || start.After(horizon) {
			continue
		}
		if _, done := sent[id]; done {
			continue
		}
		sent[id] = struct{}{}
		if prev == nil {
			continue
		}
		out = append(out, d.reminderNotification(tr, start, now))
	}

	for id := range sent {
		if _, ok := present[id]; !ok {
			delete(sent, id)
		}
	}

	stateData := map[string]interface{}{"reminderSentIds": setKeys(sent)}
	if err := d.store.SaveState(ctx, d.eventType, reminderKey, "", stateData); err != nil {
		return out, err
	}
	return out, nil
}

func (d *TrialDetector) newTrialsNotification(fresh []string, byID map[string]feeds.Trial) models.Notification {
	recipients := make([]models.Participant, 0, len(fresh))
	details := make([]map[string]interface{}, 0, len(fresh))
	for _, id := range fresh {
		tr := byID[id]
		recipients = append(recipients, participantFromTrial(tr))
		details = append(details, map[string]interface{}{
			"id":        id,
			"name":      tr.Name,
			"date":      tr.Date,
			"time":      tr.Time,
			"eventName": tr.EventName,
		})
	}
	return models.Notification{
		Type:       models.TypeNewTrials,
		EventType:  d.eventType,
		EntityKey:  knownIDsKey,
		Recipients: recipients,
		Data: map[string]interface{}{
			"count":    len(fresh),
			"trialIds": fresh,
			"trials":   details,
		},
		Metadata: map[string]interface{}{"detectedAt": d.now().UTC()},
	}
}

func (d *TrialDetector) reminderNotification(tr feeds.Trial, start, now time.Time) models.Notification {
	return models.Notification{
		Type:       models.TypeTrialReminder,
		EventType:  d.eventType,
		EntityID:   tr.ID.String(),
		EntityKey:  reminderKey,
		Recipients: []models.Participant{participantFromTrial(tr)},
		Data: map[string]interface{}{
			"trialId":     tr.ID.String(),
			"name":        tr.Name,
			"date":        start.Format("2006-01-02"),
			"time":        start.Format("15:04"),
			"eventName":   tr.EventName,
			"hoursUntil":  int(start.Sub(now).Hours()),
			"startsAtUtc": start.UTC().Format(time.RFC3339),
		},
		Metadata: map[string]interface{}{"detectedAt": d.now().UTC()},
	}
}

func participantFromTrial(tr feeds.Trial) models.Participant {
	return models.Participant{
		UserID: tr.UserFK.String(),
		Name:   tr.Name,
		Phone:  tr.Phone,
		Email:  tr.Email,
	}
}
