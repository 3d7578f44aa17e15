package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"

	"cryptorafts/api/internal/email"
	"cryptorafts/api/internal/notify"
	"cryptorafts/api/internal/rbac"
	"cryptorafts/api/internal/store"

	"golang.org/x/sync/errgroup"
)

const approveAllConcurrency = 4

func (s *Service) PendingVerifications(ctx context.Context, session Session, kind string) ([]map[string]any, error) {
	if err := s.require(session, rbac.ActionAdmin); err != nil {
		return nil, err
	}
	if kind != "" && kind != VerificationKYC && kind != VerificationKYB {
		return nil, validationError("kind must be kyc or kyb", nil)
	}
	items, err := s.store.ListPendingVerifications(ctx, kind)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, verificationPayload(item))
	}
	return out, nil
}

type DecisionInput struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// DecideVerification approves or rejects a pending submission. Approval
// writes one attestation per document.
func (s *Service) DecideVerification(ctx context.Context, session Session, verificationID string, input DecisionInput) (map[string]any, error) {
	if err := s.require(session, rbac.ActionAdmin); err != nil {
		return nil, err
	}
	if err := allow(s.kycLimiter, session.UserID); err != nil {
		return nil, err
	}
	status := strings.ToLower(strings.TrimSpace(input.Status))
	reason := strings.TrimSpace(input.Reason)
	if status != statusVerified && status != statusRejected {
		return nil, validationError("status must be verified or rejected", nil)
	}
	if status == statusRejected && reason == "" {
		return nil, validationError("reason is required when rejecting", nil)
	}
	decided, err := s.decide(ctx, verificationID, status, reason, session.UserID)
	if err != nil {
		return nil, err
	}
	payload := verificationPayload(decided)
	if status == statusVerified {
		atts, err := s.store.ListAttestations(ctx, decided.ID)
		if err != nil {
			return nil, err
		}
		items := make([]map[string]any, 0, len(atts))
		for _, a := range atts {
			items = append(items, map[string]any{"documentName": a.DocumentName, "hash": a.Hash})
		}
		payload["attestations"] = items
	}
	return payload, nil
}

func (s *Service) decide(ctx context.Context, verificationID, status, reason, reviewerID string) (store.Verification, error) {
	current, err := s.store.GetVerification(ctx, verificationID)
	if err != nil {
		return store.Verification{}, err
	}
	if current.Status != statusPending {
		return store.Verification{}, domainError(http.StatusConflict, "ALREADY_DECIDED", "Verification has already been decided", nil)
	}
	var atts []store.Attestation
	if status == statusVerified {
		if atts, err = attestations(current); err != nil {
			return store.Verification{}, err
		}
	}
	decided, err := s.store.DecideVerification(ctx, verificationID, status, reason, reviewerID, atts)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Verification{}, domainError(http.StatusConflict, "ALREADY_DECIDED", "Verification has already been decided", nil)
	}
	if err != nil {
		return store.Verification{}, err
	}
	s.log.Info("verification decided", "verification", decided.ID, "user", decided.UserID, "kind", decided.Kind, "status", status, "reviewer", reviewerID)
	s.announceDecision(ctx, decided)
	return decided, nil
}

func (s *Service) announceDecision(ctx context.Context, v store.Verification) {
	user, err := s.store.GetUserByID(ctx, v.UserID)
	if err != nil {
		s.log.Warn("decision notice skipped", "user", v.UserID, "error", err.Error())
		return
	}
	kind := strings.ToUpper(v.Kind)
	approved := v.Status == statusVerified
	title := kind + " verified"
	body := "Your " + kind + " verification was approved."
	if !approved {
		title = kind + " rejected"
		body = "Your " + kind + " verification was rejected: " + v.Reason
	}
	dashboard := "/dashboard"
	if user.Role != "" {
		dashboard = "/" + user.Role + "/dashboard"
	}
	if err := s.notifier.Notify(ctx, store.Notification{
		UserID: user.ID,
		Type:   notify.TypeVerification,
		Title:  title,
		Body:   body,
		URL:    dashboard,
	}); err != nil {
		s.log.Warn("decision notification failed", "user", user.ID, "error", err.Error())
	}
	s.sendEmail("decision email", func(ctx context.Context, mail *email.Service) error {
		return mail.SendDecisionEmail(ctx, user.Email, email.DecisionData{
			AppName:  "CryptoRafts",
			UserName: user.DisplayName,
			Kind:     kind,
			Approved: approved,
			Reason:   v.Reason,
		})
	})
}

type ApproveAllResult struct {
	Approved int `json:"approved"`
	Failed   int `json:"failed"`
}

// ApproveAll verifies every pending KYC and KYB submission. Failures are
// logged and counted.
func (s *Service) ApproveAll(ctx context.Context, reviewerID string) (ApproveAllResult, error) {
	pending, err := s.store.ListPendingVerifications(ctx, "")
	if err != nil {
		return ApproveAllResult{}, err
	}
	var approved, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(approveAllConcurrency)
	for _, item := range pending {
		g.Go(func() error {
			if _, err := s.decide(gctx, item.ID, statusVerified, "Approved in bulk", reviewerID); err != nil {
				failed.Add(1)
				s.log.Warn("bulk approval failed", "verification", item.ID, "error", err.Error())
				return nil
			}
			approved.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return ApproveAllResult{Approved: int(approved.Load()), Failed: int(failed.Load())}, nil
}

// SetUserRole is the only way to grant admin.
func (s *Service) SetUserRole(ctx context.Context, userID, role string) error {
	role = strings.ToLower(strings.TrimSpace(role))
	if rbac.Normalize(role) == rbac.RoleNone {
		return validationError("unknown role", nil)
	}
	if userID == RaftAIUserID {
		return validationError("system user cannot change role", nil)
	}
	if err := s.store.UpdateUserRole(ctx, userID, role); err != nil {
		return err
	}
	s.log.Info("user role set", "user", userID, "role", role)
	return nil
}

func (s *Service) ListUsers(ctx context.Context, session Session, role string) ([]map[string]any, error) {
	if err := s.require(session, rbac.ActionAdmin); err != nil {
		return nil, err
	}
	users, err := s.store.ListUsersByRole(ctx, role)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(users))
	for _, u := range users {
		out = append(out, userPayload(u))
	}
	return out, nil
}

func (s *Service) AdminStats(ctx context.Context, session Session) (map[string]any, error) {
	if err := s.require(session, rbac.ActionAdmin); err != nil {
		return nil, err
	}
	stats, err := s.store.AdminStats(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"users":                stats.Users,
		"pendingVerifications": stats.PendingVerifications,
		"projects":             stats.Projects,
		"acceptedProjects":     stats.AcceptedProjects,
		"rooms":                stats.Rooms,
		"messages":             stats.Messages,
		"publishedPosts":       stats.PublishedPosts,
	}, nil
}
