package email

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTransport struct {
	sent []Message
	err  error
}

func (r *recordingTransport) Name() string { return "recording" }

func (r *recordingTransport) Send(_ context.Context, msg Message) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

var smtpConfig = Config{Host: "smtp.cryptorafts.test", Port: "587", From: "noreply@cryptorafts.com"}

func TestProviderSelection(t *testing.T) {
	for name, tc := range map[string]struct {
		cfg        Config
		configured bool
		provider   string
	}{
		"empty":                 {cfg: Config{}, provider: "smtp"},
		"smtp without host":     {cfg: Config{Port: "587", From: "a@b.io"}, provider: "smtp"},
		"smtp without from":     {cfg: Config{Host: "smtp.b.io", Port: "587"}, provider: "smtp"},
		"smtp":                  {cfg: smtpConfig, configured: true, provider: "smtp"},
		"sendgrid without from": {cfg: Config{APIKey: "SG.key"}, provider: "sendgrid"},
		"sendgrid":              {cfg: Config{APIKey: "SG.key", From: "noreply@cryptorafts.com"}, configured: true, provider: "sendgrid"},
		"sendgrid wins":         {cfg: Config{APIKey: "SG.key", Host: "smtp.b.io", Port: "25", From: "a@b.io"}, configured: true, provider: "sendgrid"},
	} {
		t.Run(name, func(t *testing.T) {
			svc := NewService(tc.cfg)
			assert.Equal(t, tc.configured, svc.IsConfigured())
			assert.Equal(t, tc.provider, svc.Provider())
		})
	}
}

func TestNilServiceIsUnconfigured(t *testing.T) {
	var svc *Service
	assert.False(t, svc.IsConfigured())
	assert.Empty(t, svc.Provider())
}

func TestTransactionalMails(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		send     func(*Service) error
		to       string
		subject  string
		contains []string
		excludes []string
	}{
		{
			name: "verification",
			send: func(s *Service) error {
				return s.SendVerificationEmail(ctx, "ada@orbit.io", "Ada", "https://app.cryptorafts.com/verify?token=v1")
			},
			to:       "ada@orbit.io",
			subject:  "Verify your email address",
			contains: []string{"<!DOCTYPE html>", "CryptoRafts", "Welcome, Ada!", "verify?token=v1", "24 hours"},
		},
		{
			name: "password reset",
			send: func(s *Service) error {
				return s.SendPasswordResetEmail(ctx, "ada@orbit.io", "Ada", "https://app.cryptorafts.com/reset?token=r1")
			},
			to:       "ada@orbit.io",
			subject:  "Reset your password",
			contains: []string{"Hi Ada", "reset?token=r1", "1 hour"},
		},
		{
			name: "team invitation",
			send: func(s *Service) error {
				return s.SendTeamInvitationEmail(ctx, "new@fund.io", TeamInvitationData{
					InviterName: "Vera",
					TeamType:    "vc",
					MemberRole:  "member",
					InviteURL:   "https://app.cryptorafts.com/invite/signup?token=t1",
				})
			},
			to:       "new@fund.io",
			subject:  "Vera invited you to join their team on CryptoRafts",
			contains: []string{"vc team as member", "invite/signup?token=t1", "7 days"},
		},
		{
			name: "kyc approved",
			send: func(s *Service) error {
				return s.SendDecisionEmail(ctx, "ada@orbit.io", DecisionData{UserName: "Ada", Kind: "kyc", Approved: true})
			},
			to:       "ada@orbit.io",
			subject:  "Your KYC verification was approved",
			contains: []string{"kyc verification was approved", "full access"},
			excludes: []string{"Reason:"},
		},
		{
			name: "kyb rejected with reason",
			send: func(s *Service) error {
				return s.SendDecisionEmail(ctx, "ops@orbit.io", DecisionData{UserName: "Orbit", Kind: "kyb", Reason: "registry extract expired"})
			},
			to:       "ops@orbit.io",
			subject:  "Your KYB verification was rejected",
			contains: []string{"not approved", "registry extract expired"},
		},
		{
			name: "project accepted",
			send: func(s *Service) error {
				return s.SendProjectAcceptedEmail(ctx, "ada@orbit.io", ProjectAcceptedData{
					FounderName:     "Ada",
					ProjectName:     "Orbit Lend",
					CounterpartName: "Vera Capital",
					RoomURL:         "https://app.cryptorafts.com/founder/messages?room=deal_1",
				})
			},
			to:       "ada@orbit.io",
			subject:  "Vera Capital accepted Orbit Lend",
			contains: []string{"Hi Ada", "Open Room", "messages?room=deal_1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &recordingTransport{}
			require.NoError(t, tt.send(NewServiceWithTransport(smtpConfig, transport)))
			require.Len(t, transport.sent, 1)

			msg := transport.sent[0]
			assert.Equal(t, []string{tt.to}, msg.To)
			assert.Equal(t, tt.subject, msg.Subject)
			assert.Empty(t, msg.Text)
			for _, want := range tt.contains {
				assert.Contains(t, msg.HTML, want)
			}
			for _, unwanted := range tt.excludes {
				assert.NotContains(t, msg.HTML, unwanted)
			}
		})
	}
}

func TestTemplateEscapesUserInput(t *testing.T) {
	transport := &recordingTransport{}
	svc := NewServiceWithTransport(smtpConfig, transport)

	require.NoError(t, svc.SendVerificationEmail(context.Background(), "x@orbit.io", "<script>alert(1)</script>", "https://app.cryptorafts.com/verify?token=v"))
	require.Len(t, transport.sent, 1)
	assert.NotContains(t, transport.sent[0].HTML, "<script>")
}

func TestPlainEmail(t *testing.T) {
	transport := &recordingTransport{}
	svc := NewServiceWithTransport(smtpConfig, transport)

	require.NoError(t, svc.SendEmail(context.Background(), []string{"a@orbit.io", "b@orbit.io"}, "Digest", "two new pitches"))
	require.Len(t, transport.sent, 1)
	assert.Equal(t, Message{To: []string{"a@orbit.io", "b@orbit.io"}, Subject: "Digest", Text: "two new pitches"}, transport.sent[0])
}

func TestSendFailures(t *testing.T) {
	ctx := context.Background()

	idle := &recordingTransport{}
	err := NewServiceWithTransport(Config{}, idle).SendPasswordResetEmail(ctx, "a@b.co", "A", "https://x/reset")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Empty(t, idle.sent)

	boom := errors.New("connection refused")
	failing := &recordingTransport{err: boom}
	err = NewServiceWithTransport(smtpConfig, failing).SendVerificationEmail(ctx, "a@b.co", "A", "https://x/verify")
	assert.ErrorIs(t, err, boom)
}
