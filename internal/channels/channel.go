// Package channels delivers rendered notifications to admin recipients.
package channels

import (
	"context"

	"studio-notifier/internal/models"
)

const (
	ChannelEmail    = "email"
	ChannelWhatsApp = "whatsapp"
	ChannelSMS      = "sms"
)

// Result is the outcome of one delivery attempt. Expected failures are
// reported here rather than as errors.
type Result struct {
	Success    bool
	ExternalID string
	Error      string
}

// Rendered is a notification rendered for one channel. Variables are the
// positional values used by templated WhatsApp messages.
type Rendered struct {
	Subject   string
	HTML      string
	Text      string
	Variables []string
}

type Channel interface {
	Name() string
	IsConfigured() bool
	Send(ctx context.Context, recipient models.Recipient, n models.Notification) Result
	RenderTemplate(n models.Notification) Rendered
}

func failure(err error) Result {
	return Result{Success: false, Error: err.Error()}
}
