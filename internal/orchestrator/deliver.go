package orchestrator

import (
	"context"
	"fmt"

	"studio-notifier/internal/channels"
	apperrors "studio-notifier/internal/common/errors"
	"studio-notifier/internal/common/metrics"
	"studio-notifier/internal/models"
)

// recipientsFor returns the active subscribers of the notification's event
// type, or the fallback address when nobody subscribes.
func (o *Orchestrator) recipientsFor(ctx context.Context, eventType string) []models.Recipient {
	var recipients []models.Recipient
	if o.deps.Recipients != nil {
		list, err := o.deps.Recipients.ListByEventType(ctx, eventType)
		if err != nil {
			o.logger.Error("failed to load recipients, using fallback", map[string]interface{}{
				"eventType": eventType,
				"error":     err,
			})
		}
		for _, r := range list {
			if r.Subscribes(eventType) {
				recipients = append(recipients, r)
			}
		}
	}
	if len(recipients) == 0 && o.config.FallbackEmail != "" {
		recipients = []models.Recipient{{
			Name:       "Fallback",
			Email:      o.config.FallbackEmail,
			EventTypes: []string{eventType},
			IsActive:   true,
		}}
	}
	return recipients
}

// channelsFor picks the channels for one recipient. A phone goes to WhatsApp
// when configured, otherwise to SMS.
func (o *Orchestrator) channelsFor(r models.Recipient) []channels.Channel {
	var out []channels.Channel
	if r.Email != "" {
		out = append(out, o.configured(o.deps.Channels.Email, channels.ChannelEmail)...)
	}
	if r.Phone != "" {
		if wa := o.deps.Channels.WhatsApp; wa != nil && wa.IsConfigured() {
			out = append(out, wa)
		} else if sms := o.deps.Channels.SMS; sms != nil && sms.IsConfigured() {
			out = append(out, sms)
		} else {
			o.logger.Warn("no phone channel configured, skipping", map[string]interface{}{
				"recipientId": r.ID,
				"errorCode":   apperrors.ErrCodeChannelNotConfigured,
			})
		}
	}
	return out
}

func (o *Orchestrator) configured(ch channels.Channel, name string) []channels.Channel {
	if ch == nil || !ch.IsConfigured() {
		o.logger.Warn("channel not configured, skipping", map[string]interface{}{
			"channel":   name,
			"errorCode": apperrors.ErrCodeChannelNotConfigured,
		})
		return nil
	}
	return []channels.Channel{ch}
}

func (o *Orchestrator) deliver(ctx context.Context, runID string, n models.Notification, result *RunResult) {
	recipients := o.recipientsFor(ctx, n.EventType)
	if len(recipients) == 0 {
		o.logger.Warn("no recipients for notification", map[string]interface{}{
			"eventType": n.EventType,
			"entityKey": n.EntityKey,
		})
		return
	}

	for _, r := range recipients {
		for _, ch := range o.channelsFor(r) {
			if o.attempt(ctx, runID, n, r, ch) {
				result.NotificationsSent++
			} else {
				result.NotificationsFailed++
			}
		}
	}
}

// attempt performs one audited delivery and reports whether it succeeded.
func (o *Orchestrator) attempt(ctx context.Context, runID string, n models.Notification, r models.Recipient, ch channels.Channel) bool {
	address := r.Email
	if ch.Name() != channels.ChannelEmail {
		address = r.Phone
	}
	log := o.logger.WithFields(map[string]interface{}{
		"runId":     runID,
		"channel":   ch.Name(),
		"type":      n.Type,
		"entityKey": n.EntityKey,
	})

	rec := &models.HistoryRecord{
		JobRunID:         runID,
		NotificationType: n.Type,
		EventType:        n.EventType,
		EntityKey:        n.EntityKey,
		RecipientID:      r.ID,
		RecipientAddress: address,
		Channel:          ch.Name(),
		Payload:          n.Data,
	}
	historyID, err := o.deps.History.CreatePending(ctx, rec)
	if err != nil {
		log.WithError(err).Error("failed to record pending delivery", nil)
	}

	res := o.safeSend(ctx, ch, r, n)

	if res.Success {
		metrics.Deliveries.WithLabelValues(ch.Name(), models.HistorySent).Inc()
		if historyID != 0 {
			if err := o.deps.History.MarkSent(context.WithoutCancel(ctx), historyID, res.ExternalID); err != nil {
				log.WithError(err).Error("failed to mark delivery sent", map[string]interface{}{"historyId": historyID})
			}
		}
		log.Info("notification delivered", map[string]interface{}{"externalId": res.ExternalID})
		return true
	}

	metrics.Deliveries.WithLabelValues(ch.Name(), models.HistoryFailed).Inc()
	if historyID != 0 {
		if err := o.deps.History.MarkFailed(context.WithoutCancel(ctx), historyID, res.Error); err != nil {
			log.WithError(err).Error("failed to mark delivery failed", map[string]interface{}{"historyId": historyID})
		}
	}
	log.Warn("notification delivery failed", map[string]interface{}{
		"errorCode": apperrors.ErrCodeChannelDeliveryFailed,
		"error":     res.Error,
	})
	return false
}

func (o *Orchestrator) safeSend(ctx context.Context, ch channels.Channel, r models.Recipient, n models.Notification) (res channels.Result) {
	ctx, cancel := context.WithTimeout(ctx, o.config.SendTimeout)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			res = channels.Result{Success: false, Error: fmt.Sprintf("channel panicked: %v", p)}
		}
	}()
	return ch.Send(ctx, r, n)
}
