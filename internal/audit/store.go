// Package audit records delivery attempts and orchestrator runs, and reads
// the admin recipients subscribed to each event type.
package audit

import (
	"context"

	"studio-notifier/internal/models"
)

// HistoryStore persists one row per (notification, recipient, channel)
// attempt. Rows leave pending exactly once.
type HistoryStore interface {
	CreatePending(ctx context.Context, rec *models.HistoryRecord) (int64, error)
	MarkSent(ctx context.Context, id int64, externalID string) error
	MarkFailed(ctx context.Context, id int64, reason string) error
}

// JobRunStore persists one row per orchestrator invocation.
type JobRunStore interface {
	Create(ctx context.Context, run *models.JobRun) error
	Finish(ctx context.Context, run *models.JobRun) error
}

type RecipientStore interface {
	// ListByEventType returns active recipients subscribed to eventType.
	ListByEventType(ctx context.Context, eventType string) ([]models.Recipient, error)
}
