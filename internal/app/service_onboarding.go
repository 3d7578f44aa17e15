package app

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"cryptorafts/api/internal/rbac"
	"cryptorafts/api/internal/store"
	"cryptorafts/api/internal/util"
)

const (
	VerificationKYC = "kyc"
	VerificationKYB = "kyb"

	statusPending  = "pending"
	statusVerified = "verified"
	statusRejected = "rejected"

	attestationSaltBytes = 16
)

func userPayload(u store.User) map[string]any {
	profile := u.Profile
	if profile == nil {
		profile = map[string]any{}
	}
	return map[string]any{
		"id":               u.ID,
		"displayName":      u.DisplayName,
		"email":            u.Email,
		"role":             u.Role,
		"kycStatus":        u.KYCStatus,
		"kybStatus":        u.KYBStatus,
		"profileCompleted": u.ProfileCompleted,
		"profile":          profile,
		"emailVerified":    u.IsEmailVerified,
		"createdAt":        u.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

func verificationPayload(v store.Verification) map[string]any {
	documents := v.Documents
	if documents == nil {
		documents = map[string]string{}
	}
	payload := map[string]any{
		"id":          v.ID,
		"userId":      v.UserID,
		"kind":        v.Kind,
		"status":      v.Status,
		"documents":   documents,
		"reason":      v.Reason,
		"reviewedBy":  v.ReviewedBy,
		"submittedAt": v.SubmittedAt.UTC().Format("2006-01-02T15:04:05Z"),
		"reviewedAt":  timeString(v.ReviewedAt),
	}
	if v.UserEmail != "" || v.UserName != "" {
		payload["userEmail"] = v.UserEmail
		payload["userName"] = v.UserName
	}
	return payload
}

// Me returns the signed-in user with their onboarding state.
func (s *Service) Me(ctx context.Context, session Session) (map[string]any, error) {
	user, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	payload := userPayload(user)
	payload["onboarding"] = onboardingStep(user)
	return payload, nil
}

// onboardingStep names the next screen a user has to complete.
func onboardingStep(u store.User) string {
	switch {
	case rbac.Normalize(u.Role) == rbac.RoleNone:
		return "role"
	case !u.ProfileCompleted:
		return "profile"
	case u.Role == string(rbac.RoleAdmin):
		return "done"
	case u.KYCStatus != statusVerified:
		return "kyc"
	case u.Role != string(rbac.RoleFounder) && u.Role != string(rbac.RoleInfluencer) && u.KYBStatus != statusVerified:
		return "kyb"
	default:
		return "done"
	}
}

// SelectRole sets the user's role once. Admin can never be self-selected.
func (s *Service) SelectRole(ctx context.Context, session Session, role string) (map[string]any, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if !rbac.Selectable(rbac.Normalize(role)) {
		return nil, validationError("role must be one of founder, vc, exchange, ido, influencer, agency", nil)
	}
	set, err := s.store.SetInitialRole(ctx, session.UserID, role)
	if err != nil {
		return nil, err
	}
	if !set {
		return nil, domainError(http.StatusConflict, "ROLE_ALREADY_SET", "Role has already been selected", nil)
	}
	s.log.Info("role selected", "user", session.UserID, "role", role)
	return s.Me(ctx, session)
}

type ProfileInput struct {
	DisplayName string         `json:"displayName"`
	Profile     map[string]any `json:"profile"`
}

func (s *Service) UpdateProfile(ctx context.Context, session Session, input ProfileInput) (map[string]any, error) {
	name := strings.TrimSpace(input.DisplayName)
	if name == "" {
		name = session.UserName
	}
	if name == "" {
		return nil, validationError("displayName is required", nil)
	}
	if len(name) > 120 {
		return nil, validationError("displayName is too long", nil)
	}
	profile := input.Profile
	if profile == nil {
		profile = map[string]any{}
	}
	if err := s.store.UpdateUserProfile(ctx, session.UserID, name, profile); err != nil {
		return nil, err
	}
	return s.Me(ctx, session)
}

type VerificationInput struct {
	Documents map[string]string `json:"documents"`
}

// SubmitVerification files a KYC or KYB request. Every document must be an
// upload the caller owns.
func (s *Service) SubmitVerification(ctx context.Context, session Session, kind string, input VerificationInput) (map[string]any, error) {
	if err := s.require(session, rbac.ActionVerify); err != nil {
		return nil, err
	}
	if kind != VerificationKYC && kind != VerificationKYB {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	if err := allow(s.kycLimiter, session.UserID); err != nil {
		return nil, err
	}
	if len(input.Documents) == 0 {
		return nil, validationError("at least one document is required", nil)
	}
	documents := make(map[string]string, len(input.Documents))
	for name, key := range input.Documents {
		name = strings.TrimSpace(name)
		key = strings.TrimSpace(key)
		if name == "" || key == "" {
			return nil, validationError("document names and keys must be non-empty", nil)
		}
		file, err := s.store.GetStoredFile(ctx, key)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && file.OwnerID != session.UserID) {
			return nil, validationError("unknown document", map[string]any{"document": name})
		}
		if err != nil {
			return nil, err
		}
		documents[name] = key
	}

	latest, err := s.store.LatestVerification(ctx, session.UserID, kind)
	switch {
	case err == nil && latest.Status == statusPending:
		return nil, domainError(http.StatusConflict, "ALREADY_PENDING", "A submission is already under review", verificationPayload(latest))
	case err == nil && latest.Status == statusVerified:
		return nil, domainError(http.StatusConflict, "ALREADY_VERIFIED", "Already verified", nil)
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return nil, err
	}

	item := store.Verification{
		ID:          util.NewID("ver"),
		UserID:      session.UserID,
		Kind:        kind,
		Status:      statusPending,
		Documents:   documents,
		SubmittedAt: s.now(),
	}
	if err := s.store.InsertVerification(ctx, item); err != nil {
		return nil, err
	}
	s.log.Info("verification submitted", "user", session.UserID, "kind", kind, "verification", item.ID)
	return verificationPayload(item), nil
}

func (s *Service) VerificationStatus(ctx context.Context, session Session, kind string) (map[string]any, error) {
	if kind != VerificationKYC && kind != VerificationKYB {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	latest, err := s.store.LatestVerification(ctx, session.UserID, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string]any{"kind": kind, "status": "not_submitted"}, nil
	}
	if err != nil {
		return nil, err
	}
	return verificationPayload(latest), nil
}

// attest salts and hashes one document reference. The hash covers the salt,
// the document name and the blob key.
func attest(verificationID, documentName, key string) (store.Attestation, error) {
	salt := make([]byte, attestationSaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return store.Attestation{}, fmt.Errorf("generate salt: %w", err)
	}
	sum := sha256.Sum256(append(salt, []byte(documentName+":"+key)...))
	return store.Attestation{
		ID:             util.NewID("att"),
		VerificationID: verificationID,
		DocumentName:   documentName,
		Salt:           hex.EncodeToString(salt),
		Hash:           hex.EncodeToString(sum[:]),
	}, nil
}

func attestations(v store.Verification) ([]store.Attestation, error) {
	names := make([]string, 0, len(v.Documents))
	for name := range v.Documents {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]store.Attestation, 0, len(names))
	for _, name := range names {
		a, err := attest(v.ID, name, v.Documents[name])
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
