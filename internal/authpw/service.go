// Package authpw handles email/password accounts: sign-up with email
// verification, sign-in and password reset. Verification and reset tokens
// are stored hashed; only the caller ever sees the raw value.
package authpw

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"cryptorafts/api/internal/auth"
	"cryptorafts/api/internal/rbac"
	"cryptorafts/api/internal/store"
	"cryptorafts/api/internal/util"

	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	// bcrypt ignores input past 72 bytes.
	maxPasswordBytes = 72
	verificationTTL  = 24 * time.Hour
	resetTTL         = time.Hour
)

var (
	ErrEmailExists        = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrMissingFields      = errors.New("email, password, and display name are required")
	ErrInvalidEmail       = errors.New("email address is invalid")
	ErrWeakPassword       = fmt.Errorf("password must be between %d and %d characters", minPasswordLength, maxPasswordBytes)
	ErrRoleNotSelectable  = errors.New("role is not selectable")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, id string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
	UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	VerifyUserEmail(ctx context.Context, token string) error
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error
	CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error
	GetPasswordReset(ctx context.Context, token string) (string, error)
	MarkPasswordResetUsed(ctx context.Context, token string) error
}

type Service struct {
	store     UserStore
	cost      int
	now       func() time.Time
	dummyHash []byte
}

type Option func(*Service)

// WithBcryptCost overrides bcrypt.DefaultCost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

func NewService(store UserStore, opts ...Option) *Service {
	s := &Service{store: store, cost: bcrypt.DefaultCost, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	// Sign-in for an unknown email still pays for one comparison.
	s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("cryptorafts-unknown-user"), s.cost)
	return s
}

// SignUpRequest carries an optional Role; users without one pick it during
// onboarding.
type SignUpRequest struct {
	Email       string
	Password    string
	DisplayName string
	Role        string
}

type SignUpResponse struct {
	UserID              string
	VerificationToken   string
	RequiresEmailVerify bool
}

func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*SignUpResponse, error) {
	email := normalizeEmail(req.Email)
	displayName := strings.TrimSpace(req.DisplayName)
	if email == "" || req.Password == "" || displayName == "" {
		return nil, ErrMissingFields
	}
	if !validEmail(email) {
		return nil, ErrInvalidEmail
	}
	if err := checkPassword(req.Password); err != nil {
		return nil, err
	}
	role := rbac.Role(strings.ToLower(strings.TrimSpace(req.Role)))
	if role != rbac.RoleNone && !rbac.Selectable(role) {
		return nil, ErrRoleNotSelectable
	}
	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrEmailExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("generate verification token: %w", err)
	}

	user := store.User{
		ID:                util.NewID("usr"),
		DisplayName:       displayName,
		Email:             email,
		PasswordHash:      string(hash),
		Role:              string(role),
		VerificationToken: auth.HashToken(token),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	if err := s.store.UpdateUserVerificationToken(ctx, user.ID, user.VerificationToken, s.now().Add(verificationTTL)); err != nil {
		return nil, fmt.Errorf("set verification expiry: %w", err)
	}

	return &SignUpResponse{
		UserID:              user.ID,
		VerificationToken:   token,
		RequiresEmailVerify: true,
	}, nil
}

// ResendVerification issues a fresh verification token for an unverified
// account. It returns an empty token when there is nothing to verify.
func (s *Service) ResendVerification(ctx context.Context, email string) (string, store.User, error) {
	user, err := s.store.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil || user.IsEmailVerified || user.DeactivatedAt != nil {
		return "", store.User{}, nil
	}
	token, err := generateToken()
	if err != nil {
		return "", store.User{}, err
	}
	if err := s.store.UpdateUserVerificationToken(ctx, user.ID, auth.HashToken(token), s.now().Add(verificationTTL)); err != nil {
		return "", store.User{}, fmt.Errorf("set verification token: %w", err)
	}
	return token, user, nil
}

type SignInRequest struct {
	Email    string
	Password string
}

type SignInResponse struct {
	User           store.User
	RequiresVerify bool
}

func (s *Service) SignIn(ctx context.Context, req SignInRequest) (*SignInResponse, error) {
	if req.Email == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByEmail(ctx, normalizeEmail(req.Email))
	if err != nil || user.PasswordHash == "" {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(req.Password))
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if user.DeactivatedAt != nil {
		return nil, ErrInvalidCredentials
	}
	return &SignInResponse{User: user, RequiresVerify: !user.IsEmailVerified}, nil
}

func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidToken
	}
	if err := s.store.VerifyUserEmail(ctx, auth.HashToken(token)); err != nil {
		return ErrInvalidToken
	}
	return nil
}

// RequestPasswordReset returns a reset token, or an empty token without an
// error when the email is unknown so callers cannot probe for accounts.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	user, err := s.store.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil || user.DeactivatedAt != nil {
		return "", nil
	}
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	if err := s.store.CreatePasswordReset(ctx, user.ID, auth.HashToken(token), s.now().Add(resetTTL)); err != nil {
		return "", fmt.Errorf("create password reset: %w", err)
	}
	return token, nil
}

type ResetPasswordRequest struct {
	Token       string
	NewPassword string
}

// ResetPassword sets a new password and returns the user it belongs to so
// the caller can revoke existing sessions.
func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) (string, error) {
	if strings.TrimSpace(req.Token) == "" {
		return "", ErrInvalidToken
	}
	if err := checkPassword(req.NewPassword); err != nil {
		return "", err
	}
	tokenHash := auth.HashToken(strings.TrimSpace(req.Token))
	userID, err := s.store.GetPasswordReset(ctx, tokenHash)
	if err != nil {
		return "", ErrInvalidToken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdateUserPassword(ctx, userID, string(hash)); err != nil {
		return "", fmt.Errorf("update password: %w", err)
	}
	// The password is already changed; a failed mark only leaves the token
	// valid until it expires.
	_ = s.store.MarkPasswordResetUsed(ctx, tokenHash)
	return userID, nil
}

func checkPassword(password string) error {
	if len(password) < minPasswordLength || len(password) > maxPasswordBytes {
		return ErrWeakPassword
	}
	return nil
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email && strings.Contains(email[strings.LastIndex(email, "@"):], ".")
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
