package channels

import (
	"context"
	"fmt"

	apperrors "studio-notifier/internal/common/errors"
	"studio-notifier/internal/common/logger"
	"studio-notifier/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

const maxSMSLength = 1600

// SNSService is the subset of the SNS client used for SMS and alerts.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type SMSConfig struct {
	Enabled     bool
	SenderID    string
	CountryCode string
}

// SMSChannel sends text messages through Amazon SNS. It serves phone
// recipients when WhatsApp is not configured.
type SMSChannel struct {
	config    SMSConfig
	snsClient SNSService
	logger    logger.Logger
}

func NewSMSChannel(config SMSConfig, snsClient SNSService, log logger.Logger) *SMSChannel {
	return &SMSChannel{
		config:    config,
		snsClient: snsClient,
		logger:    log.WithFields(map[string]interface{}{"channel": ChannelSMS}),
	}
}

func (c *SMSChannel) Name() string { return ChannelSMS }

func (c *SMSChannel) IsConfigured() bool {
	return c.config.Enabled && c.snsClient != nil
}

func (c *SMSChannel) RenderTemplate(n models.Notification) Rendered {
	return Render(n)
}

func (c *SMSChannel) Send(ctx context.Context, recipient models.Recipient, n models.Notification) Result {
	if !c.IsConfigured() {
		return failure(apperrors.NewChannelNotConfiguredError(ChannelSMS))
	}
	to, err := NormalizePhone(recipient.Phone, c.config.CountryCode)
	if err != nil {
		return failure(apperrors.NewChannelDeliveryFailedError(ChannelSMS, fmt.Errorf("%w: %q", err, recipient.Phone)))
	}

	msg := c.RenderTemplate(n)
	text := msg.Subject + "\n" + msg.Text
	if runes := []rune(text); len(runes) > maxSMSLength {
		text = string(runes[:maxSMSLength])
	}

	attrs := map[string]snstypes.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
	}
	if c.config.SenderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = snstypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(c.config.SenderID),
		}
	}

	out, err := c.snsClient.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(to),
		Message:           aws.String(text),
		MessageAttributes: attrs,
	})
	if err != nil {
		c.logger.Error("SMS send failed", map[string]interface{}{"error": err, "notificationType": n.Type})
		return failure(apperrors.NewChannelDeliveryFailedError(ChannelSMS, err))
	}
	return Result{Success: true, ExternalID: aws.ToString(out.MessageId)}
}
