// Package notify delivers one-time codes to admins by email.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"backoffice-service/config"
	"backoffice-service/internal/models"
	"backoffice-service/internal/util"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

var otpTemplate = template.Must(template.New("otp").Parse(`<div style="font-family: 'Segoe UI', sans-serif; background-color: #f5f6f8; padding: 40px;">
  <div style="background-color: #ffffff; border-radius: 12px; padding: 32px; text-align: center;">
    <h2 style="margin-bottom: 8px;">{{.Title}}</h2>
    <p style="margin-bottom: 24px;">{{.Description}}</p>
    <div style="font-size: 28px; font-weight: bold; letter-spacing: 6px; padding: 12px; background-color: #f1f3f5; border-radius: 8px;">{{.Code}}</div>
    <p style="color: #555;">This code expires in {{.Minutes}} minutes.</p>
    <p style="color: #888; font-size: 14px;">If you did not request this code, you can safely ignore this email.</p>
  </div>
</div>`))

type otpTemplateData struct {
	Title       string
	Description string
	Code        string
	Minutes     int
}

// RenderOTPEmail builds the subject and HTML body for a code
func RenderOTPEmail(appName, code, purpose string, validFor time.Duration) (string, string, error) {
	data := otpTemplateData{Code: code, Minutes: int(validFor.Round(time.Minute).Minutes())}
	var subject string
	if purpose == models.OtpPurposeLogin {
		subject = "Login OTP"
		data.Title = "Sign in to " + appName
		data.Description = "You requested to sign in to " + appName + ". Your one-time code is:"
	} else {
		subject = "Account Verification OTP"
		data.Title = "Verify your account"
		data.Description = "To verify your account on " + appName + ", please use this one-time code:"
	}

	var body bytes.Buffer
	if err := otpTemplate.Execute(&body, data); err != nil {
		return "", "", err
	}
	return subject, body.String(), nil
}

// Mailer sends OTP emails over SMTP
type Mailer struct {
	from    string
	appName string
	send    func(msg *gomail.Message) error
	logger  *zap.Logger
}

// NewMailer creates a mailer for the configured SMTP relay
func NewMailer(cfg config.MailConfig) *Mailer {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	return &Mailer{
		from:    cfg.From,
		appName: cfg.AppName,
		send:    func(msg *gomail.Message) error { return dialer.DialAndSend(msg) },
		logger:  util.GetLogger(),
	}
}

// SendOTP emails the code of an OtpIssued event
func (m *Mailer) SendOTP(ctx context.Context, event *models.OtpIssuedEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	validFor := time.Until(event.ExpiresAt)
	if validFor <= 0 {
		m.logger.Warn("Skipping expired OTP notification", zap.String("email", event.Email))
		util.NotificationsSentTotal.WithLabelValues("expired").Inc()
		return nil
	}

	subject, body, err := RenderOTPEmail(m.appName, event.Code, event.Purpose, validFor)
	if err != nil {
		return fmt.Errorf("failed to render otp email: %w", err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", event.Email)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	if err := m.send(msg); err != nil {
		util.NotificationsSentTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("failed to send otp email: %w", err)
	}

	util.NotificationsSentTotal.WithLabelValues("sent").Inc()
	m.logger.Info("OTP email sent",
		zap.String("email", event.Email),
		zap.String("purpose", event.Purpose))
	return nil
}
