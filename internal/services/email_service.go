package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/chatforge/authkit/pkg/logger"
)

// EmailSender delivers one-time codes for the email MFA method
type EmailSender interface {
	SendMFACode(ctx context.Context, email, code string, expiryMinutes int) error
}

// AWSSESEmailService sends email via AWS SES
type AWSSESEmailService struct {
	client      *ses.Client
	fromAddress string
	logger      *slog.Logger
}

// NewAWSSESEmailService creates a new AWS SES email service
func NewAWSSESEmailService(ctx context.Context, region, fromAddress string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESEmailService{
		client:      ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

// SendMFACode sends a one-time verification code. The plaintext code exists
// only in this message; storage holds a bcrypt hash.
func (s *AWSSESEmailService) SendMFACode(ctx context.Context, email, code string, expiryMinutes int) error {
	subject := "Your verification code"
	textBody := fmt.Sprintf(
		"Your verification code is: %s\n\nThis code expires in %d minutes. If you did not request it, secure your account immediately.",
		code, expiryMinutes,
	)
	htmlBody := fmt.Sprintf(
		`<p>Your verification code is:</p><p style="font-size:24px;font-weight:bold;letter-spacing:4px">%s</p><p>This code expires in %d minutes. If you did not request it, secure your account immediately.</p>`,
		code, expiryMinutes,
	)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(textBody),
				},
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send MFA code email",
			slog.String("email", logger.SanitizedEmail(email)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send MFA code email: %w", err)
	}

	s.logger.Info("MFA code email sent",
		slog.String("email", logger.SanitizedEmail(email)),
		slog.String("message_id", aws.ToString(result.MessageId)))

	return nil
}
