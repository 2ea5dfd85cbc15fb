package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"incident-service/internal/domain/incident"
)

var ErrSNSNotConfigured = errors.New("sns alerts are not configured")

// SNSNotifier delivers incident alerts as SMS messages to the on-call phone
// number via AWS SNS.
type SNSNotifier struct {
	client      *sns.Client
	phoneNumber string
}

func NewSNSNotifierFromEnv(region, phoneNumber string) (*SNSNotifier, error) {
	accessKey := strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID"))
	secretKey := strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY"))

	if phoneNumber == "" || accessKey == "" || secretKey == "" {
		return nil, ErrSNSNotConfigured
	}

	awsCfg := aws.Config{
		Region:      region,
		Credentials: credentials.NewStaticCredentialsProvider(accessKey, secretKey, os.Getenv("AWS_SESSION_TOKEN")),
	}

	return &SNSNotifier{
		client:      sns.NewFromConfig(awsCfg),
		phoneNumber: phoneNumber,
	}, nil
}

func (n *SNSNotifier) Name() string { return "sns_sms" }

func (n *SNSNotifier) Notify(ctx context.Context, ev incident.Event) error {
	if n == nil || n.client == nil {
		return ErrSNSNotConfigured
	}

	message := alertMessage(ev)
	_, err := n.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(n.phoneNumber),
		Message:     aws.String(message),
		Subject:     aws.String("Traffic Incident Alert"),
	})
	if err != nil {
		return fmt.Errorf("sns publish failed: %w", err)
	}
	return nil
}

func alertMessage(ev incident.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "TRAFFIC INCIDENT: %s (%s severity)\n", strings.ToUpper(string(ev.Type)), ev.Severity)
	fmt.Fprintf(&b, "Source: %s\n", ev.SourceID)
	fmt.Fprintf(&b, "Confidence: %.0f%%\n", ev.Confidence*100)
	fmt.Fprintf(&b, "Time: %s\n", ev.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	if ev.Description != "" {
		fmt.Fprintf(&b, "Details: %s", ev.Description)
	}
	return b.String()
}
