package service

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	texttemplate "text/template"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"
)

// emailSender is the part of the SES client the service uses
type emailSender interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// EmailService sends account emails through Amazon SES.
// Without a sender address it is disabled and every send is a no-op.
type EmailService struct {
	client     emailSender
	fromEmail  string
	fromName   string
	appBaseURL string
	logger     *zap.Logger
}

// NewEmailService creates an email service; an empty fromEmail disables it
func NewEmailService(ctx context.Context, region, fromEmail, fromName, appBaseURL string, logger *zap.Logger) (*EmailService, error) {
	s := &EmailService{
		fromEmail:  fromEmail,
		fromName:   fromName,
		appBaseURL: appBaseURL,
		logger:     logger,
	}
	if fromEmail == "" {
		logger.Info("email service disabled: SES_FROM_EMAIL not configured")
		return s, nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	s.client = sesv2.NewFromConfig(cfg)

	logger.Info("email service enabled", zap.String("from", fromEmail), zap.String("region", region))
	return s, nil
}

// IsEnabled returns whether emails are actually sent
func (s *EmailService) IsEnabled() bool {
	return s != nil && s.client != nil
}

type emailData struct {
	Name string
	Link string
}

var (
	resetHTML = htmltemplate.Must(htmltemplate.New("reset").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
	<p>Hello {{.Name}},</p>
	<p>We received a request to reset your Kinship password. The link below is valid for one hour.</p>
	<p><a href="{{.Link}}">Reset your password</a></p>
	<p>If you didn't ask for this, you can ignore this email.</p>
</body>
</html>`))
	resetText = texttemplate.Must(texttemplate.New("reset").Parse(`Hello {{.Name}},

We received a request to reset your Kinship password. The link below is valid for one hour.

{{.Link}}

If you didn't ask for this, you can ignore this email.
`))
	welcomeHTML = htmltemplate.Must(htmltemplate.New("welcome").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
	<p>Welcome to Kinship, {{.Name}}!</p>
	<p>Your account and profile are ready. <a href="{{.Link}}">Sign in</a> to complete your details.</p>
</body>
</html>`))
	welcomeText = texttemplate.Must(texttemplate.New("welcome").Parse(`Welcome to Kinship, {{.Name}}!

Your account and profile are ready. Sign in to complete your details:
{{.Link}}
`))
)

// SendPasswordResetEmail sends the reset link for token
func (s *EmailService) SendPasswordResetEmail(ctx context.Context, toEmail, toName, token string) error {
	if s == nil {
		return nil
	}
	link := s.appBaseURL + "/reset-password?token=" + url.QueryEscape(token)
	return s.render(ctx, toEmail, "Reset your Kinship password", resetHTML, resetText, emailData{Name: toName, Link: link})
}

// SendWelcomeEmail greets a newly registered account
func (s *EmailService) SendWelcomeEmail(ctx context.Context, toEmail, toName string) error {
	if s == nil {
		return nil
	}
	return s.render(ctx, toEmail, "Welcome to Kinship", welcomeHTML, welcomeText, emailData{Name: toName, Link: s.appBaseURL + "/login"})
}

func (s *EmailService) render(ctx context.Context, toEmail, subject string, html *htmltemplate.Template, text *texttemplate.Template, data emailData) error {
	if !s.IsEnabled() {
		s.logger.Debug("skipping email, service disabled", zap.String("to", toEmail), zap.String("subject", subject))
		return nil
	}

	var htmlBody, textBody bytes.Buffer
	if err := html.Execute(&htmlBody, data); err != nil {
		return fmt.Errorf("failed to render email: %w", err)
	}
	if err := text.Execute(&textBody, data); err != nil {
		return fmt.Errorf("failed to render email: %w", err)
	}
	return s.send(ctx, toEmail, subject, htmlBody.String(), textBody.String())
}

func (s *EmailService) send(ctx context.Context, toEmail, subject, htmlBody, textBody string) error {
	fromAddress := s.fromEmail
	if s.fromName != "" {
		fromAddress = fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{toEmail},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(htmlBody), Charset: aws.String("UTF-8")},
					Text: &types.Content{Data: aws.String(textBody), Charset: aws.String("UTF-8")},
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", toEmail, err)
	}

	fields := []zap.Field{zap.String("to", toEmail), zap.String("subject", subject)}
	if result.MessageId != nil {
		fields = append(fields, zap.String("message_id", *result.MessageId))
	}
	s.logger.Info("email sent", fields...)
	return nil
}
