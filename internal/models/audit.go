package models

import "time"

// History statuses
const (
	HistoryPending = "pending"
	HistorySent    = "sent"
	HistoryFailed  = "failed"
)

// Job run statuses
const (
	JobRunRunning   = "running"
	JobRunCompleted = "completed"
	JobRunFailed    = "failed"
	JobRunSkipped   = "skipped"
)

// HistoryRecord is one delivery attempt of a notification to a recipient over
// a channel. It never changes after reaching sent or failed.
type HistoryRecord struct {
	ID               int64                  `json:"id"`
	JobRunID         string                 `json:"jobRunId,omitempty"`
	NotificationType string                 `json:"notificationType"`
	EventType        string                 `json:"eventType"`
	EntityKey        string                 `json:"entityKey"`
	RecipientID      int64                  `json:"recipientId,omitempty"`
	RecipientAddress string                 `json:"recipientAddress"`
	Channel          string                 `json:"channel"`
	Status           string                 `json:"status"`
	ExternalID       string                 `json:"externalId,omitempty"`
	Error            string                 `json:"error,omitempty"`
	Payload          map[string]interface{} `json:"payload,omitempty"`
	CreatedAt        time.Time              `json:"createdAt"`
	SentAt           *time.Time             `json:"sentAt,omitempty"`
}

// JobRun is one orchestrator invocation.
type JobRun struct {
	ID                  string     `json:"id"`
	Status              string     `json:"status"`
	Detectors           []string   `json:"detectors"`
	EventsDetected      int        `json:"eventsDetected"`
	NotificationsSent   int        `json:"notificationsSent"`
	NotificationsFailed int        `json:"notificationsFailed"`
	Error               string     `json:"error,omitempty"`
	StartedAt           time.Time  `json:"startedAt"`
	FinishedAt          *time.Time `json:"finishedAt,omitempty"`
}
