// Package email delivers transactional mail over SMTP or SendGrid.
package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const appName = "CryptoRafts"

// ErrNotConfigured is returned when no transport has enough settings to send.
var ErrNotConfigured = errors.New("email not configured")

// Config holds SMTP and SendGrid settings. SendGrid wins when APIKey is set.
type Config struct {
	Host      string
	Port      string
	Username  string
	Password  string
	From      string
	FromName  string
	EnableTLS bool
	// SendGrid
	APIKey string
}

// Message is a rendered email ready for delivery.
type Message struct {
	To      []string
	Subject string
	Text    string
	HTML    string
}

// Transport delivers a single message.
type Transport interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

// Service renders templates and hands messages to a Transport.
type Service struct {
	config    Config
	transport Transport
}

// NewService picks SendGrid when an API key is present and SMTP otherwise.
func NewService(config Config) *Service {
	var transport Transport
	if config.APIKey != "" {
		transport = &sendGridTransport{config: config, client: sendgrid.NewSendClient(config.APIKey)}
	} else {
		transport = &smtpTransport{
			config: config,
			server: config.Host + ":" + config.Port,
			auth:   smtp.PlainAuth("", config.Username, config.Password, config.Host),
		}
	}
	return &Service{config: config, transport: transport}
}

// NewServiceWithTransport is used by tests and alternative providers.
func NewServiceWithTransport(config Config, transport Transport) *Service {
	return &Service{config: config, transport: transport}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	if s == nil || s.config.From == "" {
		return false
	}
	if s.config.APIKey != "" {
		return true
	}
	return s.config.Host != "" && s.config.Port != ""
}

// Provider names the active transport.
func (s *Service) Provider() string {
	if s == nil || s.transport == nil {
		return ""
	}
	return s.transport.Name()
}

// SendEmail sends a plain text email
func (s *Service) SendEmail(ctx context.Context, to []string, subject, body string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	return s.transport.Send(ctx, Message{To: to, Subject: subject, Text: body})
}

// SendHTMLEmail sends an HTML email
func (s *Service) SendHTMLEmail(ctx context.Context, to []string, subject, htmlBody string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	return s.transport.Send(ctx, Message{To: to, Subject: subject, HTML: htmlBody})
}

type smtpTransport struct {
	config Config
	server string
	auth   smtp.Auth
}

func (t *smtpTransport) Name() string { return "smtp" }

func (t *smtpTransport) Send(_ context.Context, msg Message) error {
	from := t.config.From
	if t.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", t.config.FromName, t.config.From)
	}

	var body string
	if msg.HTML != "" {
		body = fmt.Sprintf(
			"To: %s\r\n"+
				"From: %s\r\n"+
				"Subject: %s\r\n"+
				"MIME-Version: 1.0\r\n"+
				"Content-Type: multipart/alternative; boundary=\"boundary-cryptorafts\"\r\n"+
				"\r\n"+
				"--boundary-cryptorafts\r\n"+
				"Content-Type: text/html; charset=UTF-8\r\n"+
				"\r\n"+
				"%s\r\n"+
				"--boundary-cryptorafts--",
			strings.Join(msg.To, ", "),
			from,
			msg.Subject,
			msg.HTML,
		)
	} else {
		body = fmt.Sprintf(
			"To: %s\r\n"+
				"From: %s\r\n"+
				"Subject: %s\r\n"+
				"Content-Type: text/plain; charset=UTF-8\r\n"+
				"\r\n"+
				"%s",
			strings.Join(msg.To, ", "),
			from,
			msg.Subject,
			msg.Text,
		)
	}
	return smtp.SendMail(t.server, t.auth, t.config.From, msg.To, []byte(body))
}

type sendGridTransport struct {
	config Config
	client *sendgrid.Client
}

func (t *sendGridTransport) Name() string { return "sendgrid" }

func (t *sendGridTransport) Send(ctx context.Context, msg Message) error {
	from := mail.NewEmail(t.config.FromName, t.config.From)
	for _, recipient := range msg.To {
		to := mail.NewEmail("", recipient)
		message := mail.NewSingleEmail(from, msg.Subject, to, msg.Text, msg.HTML)
		resp, err := t.client.SendWithContext(ctx, message)
		if err != nil {
			return fmt.Errorf("sendgrid send: %w", err)
		}
		if resp.StatusCode >= 300 {
			return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, resp.Body)
		}
	}
	return nil
}

// VerificationData holds data for verification email template
type VerificationData struct {
	AppName         string
	UserName        string
	VerificationURL string
}

// PasswordResetData holds data for password reset email template
type PasswordResetData struct {
	AppName  string
	UserName string
	ResetURL string
}

// TeamInvitationData holds data for the team invitation template.
type TeamInvitationData struct {
	AppName     string
	InviterName string
	TeamType    string
	MemberRole  string
	InviteURL   string
}

// DecisionData holds data for KYC/KYB decision notices.
type DecisionData struct {
	AppName  string
	UserName string
	Kind     string
	Approved bool
	Reason   string
}

// ProjectAcceptedData holds data for the pitch acceptance notice.
type ProjectAcceptedData struct {
	AppName         string
	FounderName     string
	ProjectName     string
	CounterpartName string
	RoomURL         string
}

// SendVerificationEmail sends an email verification link
func (s *Service) SendVerificationEmail(ctx context.Context, to, userName, verificationURL string) error {
	body, err := renderTemplate(verificationEmailTemplate, VerificationData{
		AppName:         appName,
		UserName:        userName,
		VerificationURL: verificationURL,
	})
	if err != nil {
		return fmt.Errorf("render template: %w", err)
	}
	return s.SendHTMLEmail(ctx, []string{to}, "Verify your email address", body)
}

// SendPasswordResetEmail sends a password reset link
func (s *Service) SendPasswordResetEmail(ctx context.Context, to, userName, resetURL string) error {
	body, err := renderTemplate(passwordResetEmailTemplate, PasswordResetData{
		AppName:  appName,
		UserName: userName,
		ResetURL: resetURL,
	})
	if err != nil {
		return fmt.Errorf("render template: %w", err)
	}
	return s.SendHTMLEmail(ctx, []string{to}, "Reset your password", body)
}

func (s *Service) SendTeamInvitationEmail(ctx context.Context, to string, data TeamInvitationData) error {
	data.AppName = appName
	body, err := renderTemplate(teamInvitationEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render template: %w", err)
	}
	return s.SendHTMLEmail(ctx, []string{to}, fmt.Sprintf("%s invited you to join their team on %s", data.InviterName, appName), body)
}

func (s *Service) SendDecisionEmail(ctx context.Context, to string, data DecisionData) error {
	data.AppName = appName
	body, err := renderTemplate(decisionEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render template: %w", err)
	}
	outcome := "rejected"
	if data.Approved {
		outcome = "approved"
	}
	return s.SendHTMLEmail(ctx, []string{to}, fmt.Sprintf("Your %s verification was %s", strings.ToUpper(data.Kind), outcome), body)
}

func (s *Service) SendProjectAcceptedEmail(ctx context.Context, to string, data ProjectAcceptedData) error {
	data.AppName = appName
	body, err := renderTemplate(projectAcceptedEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render template: %w", err)
	}
	return s.SendHTMLEmail(ctx, []string{to}, fmt.Sprintf("%s accepted %s", data.CounterpartName, data.ProjectName), body)
}

func renderTemplate(tmpl string, data any) (string, error) {
	t, err := template.New("layout").Parse(layoutTemplate)
	if err != nil {
		return "", err
	}
	if _, err := t.Parse(tmpl); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}
