package channels

import (
	"context"
	"errors"
	"fmt"

	apperrors "studio-notifier/internal/common/errors"
	"studio-notifier/internal/common/logger"
	"studio-notifier/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESService is the subset of the SES client used for delivery.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type EmailConfig struct {
	Enabled   bool
	FromEmail string
	FromName  string
}

// EmailChannel sends notifications through Amazon SES.
type EmailChannel struct {
	config    EmailConfig
	sesClient SESService
	logger    logger.Logger
}

func NewEmailChannel(config EmailConfig, sesClient SESService, log logger.Logger) *EmailChannel {
	return &EmailChannel{
		config:    config,
		sesClient: sesClient,
		logger:    log.WithFields(map[string]interface{}{"channel": ChannelEmail}),
	}
}

func (c *EmailChannel) Name() string { return ChannelEmail }

func (c *EmailChannel) IsConfigured() bool {
	return c.config.Enabled && c.config.FromEmail != "" && c.sesClient != nil
}

func (c *EmailChannel) RenderTemplate(n models.Notification) Rendered {
	return Render(n)
}

func (c *EmailChannel) Send(ctx context.Context, recipient models.Recipient, n models.Notification) Result {
	if !c.IsConfigured() {
		return failure(apperrors.NewChannelNotConfiguredError(ChannelEmail))
	}
	if recipient.Email == "" {
		return failure(apperrors.NewChannelDeliveryFailedError(ChannelEmail, errors.New("recipient has no email address")))
	}

	msg := c.RenderTemplate(n)
	out, err := c.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{recipient.Email},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")},
				Html: &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")},
			},
		},
		Source: aws.String(c.source()),
	})
	if err != nil {
		c.logger.Error("email send failed", map[string]interface{}{
			"error":            err,
			"notificationType": n.Type,
		})
		return failure(apperrors.NewChannelDeliveryFailedError(ChannelEmail, err))
	}

	return Result{Success: true, ExternalID: aws.ToString(out.MessageId)}
}

func (c *EmailChannel) source() string {
	if c.config.FromName == "" {
		return c.config.FromEmail
	}
	return fmt.Sprintf("%s <%s>", c.config.FromName, c.config.FromEmail)
}
