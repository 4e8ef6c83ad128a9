// internal/intake/notify/notify.go

// Package notify reports submission outcomes over SES email and SNS SMS.
// Delivery is best-effort: failures are logged and never fail a submission
// that already reached the CRM.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"

	awsclient "crm-intake-workers/internal/common/aws"
	"crm-intake-workers/internal/common/config"
	"crm-intake-workers/internal/intake/history"
)

type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Notifier fans a submission outcome out to the enabled channels.
type Notifier struct {
	cfg    config.NotificationConfig
	ses    SESService
	sns    SNSService
	logger *zap.Logger
}

// NewNotifier builds AWS clients for the enabled channels. With every
// channel disabled the notifier is a no-op.
func NewNotifier(ctx context.Context, cfg config.NotificationConfig, logger *zap.Logger) (*Notifier, error) {
	n := &Notifier{cfg: cfg, logger: logger}

	if cfg.Email.Enabled {
		client, err := awsclient.NewSESClient(ctx, cfg.AWS.Region)
		if err != nil {
			return nil, fmt.Errorf("ses client: %w", err)
		}
		n.ses = client
	}
	if cfg.SMS.Enabled {
		client, err := awsclient.NewSNSClient(ctx, cfg.AWS.Region)
		if err != nil {
			return nil, fmt.Errorf("sns client: %w", err)
		}
		n.sns = client
	}
	return n, nil
}

// NewNotifierWithClients injects prebuilt channel clients.
func NewNotifierWithClients(cfg config.NotificationConfig, sesClient SESService, snsClient SNSService, logger *zap.Logger) *Notifier {
	return &Notifier{cfg: cfg, ses: sesClient, sns: snsClient, logger: logger}
}

// SubmissionOutcome reports one archived submission. Email goes out for
// every outcome; SMS is reserved for failed submissions.
func (n *Notifier) SubmissionOutcome(ctx context.Context, rec history.Record) {
	subject, body := ComposeOutcome(rec)

	if n.cfg.Email.Enabled && n.ses != nil && len(n.cfg.Email.Recipients) > 0 {
		if err := n.sendEmail(ctx, subject, body); err != nil {
			n.logger.Error("outcome email failed",
				zap.String("submission_id", rec.ID),
				zap.Error(err))
		}
	}

	if n.cfg.SMS.Enabled && n.sns != nil && !rec.Success && n.cfg.SMS.PhoneNumber != "" {
		if err := n.sendSMS(ctx, subject); err != nil {
			n.logger.Error("outcome sms failed",
				zap.String("submission_id", rec.ID),
				zap.Error(err))
		}
	}
}

// ComposeOutcome renders the notification subject and body.
func ComposeOutcome(rec history.Record) (string, string) {
	status := "succeeded"
	if !rec.Success {
		status = "FAILED"
	}

	customer := strings.TrimSpace(rec.CustomerCode + " " + rec.CustomerName)
	if customer == "" {
		customer = "unknown customer"
	}

	subject := fmt.Sprintf("[crm-intake] submission for %s %s", customer, status)

	lines := []string{
		"Submission " + rec.ID,
		"Customer: " + customer,
		"Submitted: " + rec.SubmittedAt.Format(time.RFC3339),
		"",
	}
	lines = append(lines, history.StepSummaries(rec.Steps)...)

	if len(rec.Warnings) > 0 {
		lines = append(lines, "", fmt.Sprintf("%d warning(s):", len(rec.Warnings)))
		for _, w := range rec.Warnings {
			lines = append(lines, fmt.Sprintf("- [%s] %s: %s", w.Stage, w.Field, w.Message))
		}
	}

	return subject, strings.Join(lines, "\n")
}

func (n *Notifier) sendEmail(ctx context.Context, subject, body string) error {
	_, err := n.ses.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &sestypes.Destination{
			ToAddresses: n.cfg.Email.Recipients,
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(subject)},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(n.cfg.Email.FromEmail),
	})
	return err
}

func (n *Notifier) sendSMS(ctx context.Context, message string) error {
	input := &sns.PublishInput{
		PhoneNumber: aws.String(n.cfg.SMS.PhoneNumber),
		Message:     aws.String(message),
	}
	if n.cfg.SMS.SMSSenderID != "" {
		input.MessageAttributes = map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(n.cfg.SMS.SMSSenderID),
			},
		}
	}
	_, err := n.sns.Publish(ctx, input)
	return err
}
