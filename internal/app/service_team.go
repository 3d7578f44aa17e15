package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cryptorafts/api/internal/email"
	"cryptorafts/api/internal/notify"
	"cryptorafts/api/internal/rbac"
	"cryptorafts/api/internal/store"
	"cryptorafts/api/internal/util"
)

const (
	invitationTokenBytes = 32
	invitationTTL        = 7 * 24 * time.Hour
)

var teamTypes = map[string]bool{
	"vc": true, "founder": true, "exchange": true, "ido": true, "influencer": true, "agency": true,
}

var teamMemberRoles = map[string]bool{
	"admin": true, "member": true, "viewer": true,
}

type InvitationInput struct {
	TeamType   string `json:"teamType"`
	Email      string `json:"email"`
	MemberRole string `json:"role"`
}

func invitationPayload(inv store.TeamInvitation, link string) map[string]any {
	payload := map[string]any{
		"id":         inv.ID,
		"teamType":   inv.TeamType,
		"email":      inv.Email,
		"role":       inv.MemberRole,
		"status":     inv.Status,
		"expiresAt":  inv.ExpiresAt.UTC().Format(time.RFC3339),
		"acceptedAt": timeString(inv.AcceptedAt),
	}
	if link != "" {
		payload["inviteLink"] = link
	}
	return payload
}

func (s *Service) inviteLink(token string) string {
	return s.cfg.BaseURL + "/invite/signup?token=" + url.QueryEscape(token)
}

func generateInvitationToken() (string, error) {
	buf := make([]byte, invitationTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate invitation token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// InviteTeamMember invites an email address to the caller's team. An
// unexpired pending invitation is returned instead of sending another.
func (s *Service) InviteTeamMember(ctx context.Context, session Session, input InvitationInput) (map[string]any, error) {
	if err := s.require(session, rbac.ActionManageTeam); err != nil {
		return nil, err
	}
	teamType := strings.ToLower(strings.TrimSpace(input.TeamType))
	address := strings.ToLower(strings.TrimSpace(input.Email))
	memberRole := strings.ToLower(strings.TrimSpace(input.MemberRole))
	if memberRole == "" {
		memberRole = "member"
	}
	switch {
	case !teamTypes[teamType]:
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Invalid team type", nil)
	case address == "" || !strings.Contains(address, "@"):
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Valid email is required", nil)
	case !teamMemberRoles[memberRole]:
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Invalid role", nil)
	}

	member, err := s.store.GetTeamMemberByEmail(ctx, session.UserID, teamType, address)
	switch {
	case err == nil && member.Status == "active":
		return nil, domainError(http.StatusBadRequest, "ALREADY_MEMBER", "User is already a team member", nil)
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return nil, err
	}

	pending, err := s.store.FindPendingInvitation(ctx, session.UserID, teamType, address)
	if err == nil {
		payload := invitationPayload(pending, s.inviteLink(pending.Token))
		payload["message"] = "Invitation already sent"
		return payload, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	token, err := generateInvitationToken()
	if err != nil {
		return nil, err
	}
	invitation := store.TeamInvitation{
		ID:         util.NewID("inv"),
		TeamType:   teamType,
		OwnerID:    session.UserID,
		Email:      address,
		MemberRole: memberRole,
		Token:      token,
		Status:     "pending",
		ExpiresAt:  s.now().Add(invitationTTL),
	}
	memberID := member.ID
	if memberID == "" {
		memberID = util.NewID("tm")
	}
	if err := s.store.CreateInvitation(ctx, invitation, memberID); err != nil {
		return nil, err
	}
	link := s.inviteLink(token)
	s.log.Info("team invitation created", "owner", session.UserID, "team", teamType, "invitation", invitation.ID)
	s.sendEmail("invitation email", func(ctx context.Context, mail *email.Service) error {
		return mail.SendTeamInvitationEmail(ctx, address, email.TeamInvitationData{
			AppName:     "CryptoRafts",
			InviterName: session.UserName,
			TeamType:    teamType,
			MemberRole:  memberRole,
			InviteURL:   link,
		})
	})

	payload := invitationPayload(invitation, link)
	payload["message"] = "Invitation sent"
	if !s.EmailConfigured() {
		payload["devInviteToken"] = token
	}
	return payload, nil
}

// LookupInvitation lets the signup page show who is inviting. Used, expired
// or unknown tokens are all reported as not found.
func (s *Service) LookupInvitation(ctx context.Context, token string) (map[string]any, error) {
	inv, err := s.store.GetInvitationByToken(ctx, strings.TrimSpace(token))
	if err != nil {
		return nil, err
	}
	if inv.Status != "pending" || !inv.ExpiresAt.After(s.now()) {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Invitation not found or expired", nil)
	}
	return invitationPayload(inv, ""), nil
}

// AcceptInvitation activates the membership for the signed-in user. The
// account email must match the invited address.
func (s *Service) AcceptInvitation(ctx context.Context, session Session, token string) (map[string]any, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "token is required", nil)
	}
	inv, err := s.store.GetInvitationByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	user, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(user.Email, inv.Email) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Invitation was sent to a different email", nil)
	}
	accepted, err := s.store.AcceptInvitation(ctx, token, session.UserID, s.now())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainError(http.StatusGone, "INVITATION_EXPIRED", "Invitation is no longer valid", nil)
	}
	if err != nil {
		return nil, err
	}
	s.log.Info("team invitation accepted", "invitation", accepted.ID, "user", session.UserID)
	s.announceTeamJoin(ctx, accepted, user)
	return invitationPayload(accepted, ""), nil
}

func (s *Service) announceTeamJoin(ctx context.Context, inv store.TeamInvitation, member store.User) {
	name := member.DisplayName
	if name == "" {
		name = member.Email
	}
	if err := s.notifier.Notify(ctx, store.Notification{
		UserID: inv.OwnerID,
		Type:   notify.TypeTeamJoined,
		Title:  name + " joined your team",
		Body:   fmt.Sprintf("%s accepted your invitation to the %s team as %s.", member.Email, inv.TeamType, inv.MemberRole),
		URL:    "/" + inv.TeamType + "/team",
	}); err != nil {
		s.log.Warn("team join notification failed", "invitation", inv.ID, "error", err.Error())
	}
}

func (s *Service) ListTeam(ctx context.Context, session Session, teamType string) ([]map[string]any, error) {
	if err := s.require(session, rbac.ActionManageTeam); err != nil {
		return nil, err
	}
	teamType = strings.ToLower(strings.TrimSpace(teamType))
	if !teamTypes[teamType] {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Invalid team type", nil)
	}
	members, err := s.store.ListTeamMembers(ctx, session.UserID, teamType)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(members))
	for _, m := range members {
		out = append(out, map[string]any{
			"id":        m.ID,
			"userId":    m.UserID,
			"email":     m.Email,
			"role":      m.MemberRole,
			"status":    m.Status,
			"createdAt": m.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return out, nil
}
