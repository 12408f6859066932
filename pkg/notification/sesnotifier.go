package notification

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	awscreds "github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ses"
)

const messageCharset = "UTF-8"

// SESConfig configures delivery through Amazon SES
type SESConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	From            string
}

// sesSender is the part of the SES client the notifier uses
type sesSender interface {
	SendEmail(input *ses.SendEmailInput) (*ses.SendEmailOutput, error)
}

// SESNotifier sends email through Amazon SES
type SESNotifier struct {
	from   string
	client sesSender
}

// NewSESNotifier creates an SES notifier. Static credentials are used when an
// access key is configured, otherwise the default AWS credential chain.
func NewSESNotifier(config SESConfig) (*SESNotifier, error) {
	if config.Region == "" {
		return nil, fmt.Errorf("ses region is required")
	}
	if config.From == "" {
		return nil, fmt.Errorf("ses sender address is required")
	}

	var creds *awscreds.Credentials
	if config.AccessKeyID != "" {
		creds = awscreds.NewStaticCredentials(config.AccessKeyID, config.SecretAccessKey, "")
	}
	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(config.Region),
		Credentials: creds,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}

	return &SESNotifier{from: config.From, client: ses.New(sess)}, nil
}

func (n *SESNotifier) Send(noticeType NoticeType, notification NotificationData, noticeTemplate NoticeTemplate) error {
	if notification.To == "" {
		return fmt.Errorf("email notification requires 'To' address")
	}

	rendered, err := render(notification, noticeTemplate)
	if err != nil {
		return err
	}

	body := &ses.Body{}
	if rendered.Html != "" {
		body.Html = &ses.Content{Charset: aws.String(messageCharset), Data: aws.String(rendered.Html)}
	}
	if rendered.Text != "" {
		body.Text = &ses.Content{Charset: aws.String(messageCharset), Data: aws.String(rendered.Text)}
	}

	input := &ses.SendEmailInput{
		Destination: &ses.Destination{
			ToAddresses: []*string{aws.String(notification.To)},
		},
		Message: &ses.Message{
			Body: body,
			Subject: &ses.Content{
				Charset: aws.String(messageCharset),
				Data:    aws.String(rendered.Subject),
			},
		},
		Source: aws.String(n.from),
	}

	if _, err := n.client.SendEmail(input); err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) {
			slog.Error("SES rejected email", "code", aerr.Code(), "message", aerr.Message(), "notice_type", noticeType)
			return fmt.Errorf("ses %s: %w", aerr.Code(), err)
		}
		slog.Error("Failed to send email via SES", "err", err, "notice_type", noticeType)
		return err
	}

	slog.Info("Email sent via SES", "to", notification.To, "notice_type", noticeType)
	return nil
}
