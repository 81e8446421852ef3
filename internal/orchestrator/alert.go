package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"studio-notifier/internal/channels"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// Alerter publishes the operational summary of a finished run.
type Alerter interface {
	Alert(ctx context.Context, result *RunResult) error
}

// SNSAlerter publishes run summaries to an SNS topic.
type SNSAlerter struct {
	snsClient channels.SNSService
	topicARN  string
	service   string
}

func NewSNSAlerter(snsClient channels.SNSService, topicARN, service string) *SNSAlerter {
	return &SNSAlerter{snsClient: snsClient, topicARN: topicARN, service: service}
}

func (a *SNSAlerter) Alert(ctx context.Context, result *RunResult) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode run summary: %w", err)
	}
	subject := fmt.Sprintf("%s: %d event(s), %d sent, %d failed",
		a.service, result.EventsDetected, result.NotificationsSent, result.NotificationsFailed)
	if len(subject) > 100 {
		subject = subject[:100]
	}

	_, err = a.snsClient.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(a.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("publish run summary: %w", err)
	}
	return nil
}
