package app

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cryptorafts/api/internal/auth"
	"cryptorafts/api/internal/authpw"
	"cryptorafts/api/internal/blob"
	"cryptorafts/api/internal/blog"
	"cryptorafts/api/internal/config"
	"cryptorafts/api/internal/email"
	"cryptorafts/api/internal/export"
	"cryptorafts/api/internal/gitrepo"
	"cryptorafts/api/internal/logger"
	"cryptorafts/api/internal/notify"
	"cryptorafts/api/internal/pitch"
	"cryptorafts/api/internal/raftai"
	"cryptorafts/api/internal/ratelimit"
	"cryptorafts/api/internal/rbac"
	"cryptorafts/api/internal/search"
	"cryptorafts/api/internal/store"
	"cryptorafts/api/internal/util"
)

// RaftAIUserID is the seeded system user that sits in every deal room.
const RaftAIUserID = "raftai"

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	sessionStore
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, user store.User) error
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	ListUsersByRole(ctx context.Context, role string) ([]store.User, error)
	UpdateUserRole(ctx context.Context, userID, role string) error
	SetInitialRole(ctx context.Context, userID, role string) (bool, error)
	UpdateUserProfile(ctx context.Context, userID, displayName string, profile map[string]any) error
	UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	VerifyUserEmail(ctx context.Context, token string) error
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error
	CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error
	GetPasswordReset(ctx context.Context, token string) (string, error)
	MarkPasswordResetUsed(ctx context.Context, token string) error
	AdminStats(ctx context.Context) (store.AdminStats, error)

	InsertVerification(ctx context.Context, item store.Verification) error
	GetVerification(ctx context.Context, id string) (store.Verification, error)
	LatestVerification(ctx context.Context, userID, kind string) (store.Verification, error)
	ListPendingVerifications(ctx context.Context, kind string) ([]store.Verification, error)
	DecideVerification(ctx context.Context, id, status, reason, reviewerID string, attestations []store.Attestation) (store.Verification, error)
	ListAttestations(ctx context.Context, verificationID string) ([]store.Attestation, error)
	InsertStoredFile(ctx context.Context, file store.StoredFile) error
	GetStoredFile(ctx context.Context, key string) (store.StoredFile, error)

	InsertProject(ctx context.Context, item store.Project) error
	UpdateProject(ctx context.Context, item store.Project) error
	SubmitProject(ctx context.Context, projectID string) error
	GetProject(ctx context.Context, projectID string) (store.Project, error)
	ListProjectsByFounder(ctx context.Context, founderID string) ([]store.Project, error)
	ListDealflow(ctx context.Context, limit, offset int) ([]store.Project, error)
	SaveAnalysis(ctx context.Context, analysis store.ProjectAnalysis, listingOrder int, badges []string) error
	LatestAnalysis(ctx context.Context, projectID string) (store.ProjectAnalysis, error)
	ListAnalyses(ctx context.Context, projectID string, limit int) ([]store.ProjectAnalysis, error)
	AcceptProject(ctx context.Context, params store.AcceptProjectParams) (store.Room, bool, error)
	GetRelation(ctx context.Context, relationID string) (store.ProjectRelation, error)

	GetRoom(ctx context.Context, roomID string) (store.Room, error)
	ListRoomsForUser(ctx context.Context, userID string) ([]store.Room, error)
	ListRoomMembers(ctx context.Context, roomID string) ([]store.RoomMember, error)
	IsRoomMember(ctx context.Context, roomID, userID string) (bool, error)
	UpdateRoomMemory(ctx context.Context, roomID string, memory map[string]any) error
	InsertMessage(ctx context.Context, msg store.Message) (store.Message, bool, error)
	GetMessage(ctx context.Context, messageID string) (store.Message, error)
	ListMessages(ctx context.Context, roomID, before string, limit int) ([]store.Message, error)
	ToggleReaction(ctx context.Context, messageID, userID, emoji string) (bool, error)
	ListReactionCounts(ctx context.Context, roomID string) ([]store.ReactionCount, error)

	InsertNotification(ctx context.Context, item store.Notification) error
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]store.Notification, error)
	CountUnreadNotifications(ctx context.Context, userID string) (int, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID string) (bool, error)
	MarkAllNotificationsRead(ctx context.Context, userID string) (int, error)

	FindPendingInvitation(ctx context.Context, ownerID, teamType, email string) (store.TeamInvitation, error)
	GetInvitationByToken(ctx context.Context, token string) (store.TeamInvitation, error)
	CreateInvitation(ctx context.Context, invitation store.TeamInvitation, memberID string) error
	AcceptInvitation(ctx context.Context, token, userID string, now time.Time) (store.TeamInvitation, error)
	GetTeamMemberByEmail(ctx context.Context, ownerID, teamType, email string) (store.TeamMember, error)
	ListTeamMembers(ctx context.Context, ownerID, teamType string) ([]store.TeamMember, error)

	InsertBlogPost(ctx context.Context, post store.BlogPost) error
	UpdateBlogPost(ctx context.Context, post store.BlogPost) error
	DeleteBlogPost(ctx context.Context, postID string) error
	GetBlogPost(ctx context.Context, postID string) (store.BlogPost, error)
	GetBlogPostBySlug(ctx context.Context, slug string) (store.BlogPost, error)
	ListBlogPosts(ctx context.Context, filter store.BlogFilter) ([]store.BlogPost, error)
	ListDueScheduledPosts(ctx context.Context, now time.Time) ([]store.BlogPost, error)
	IncrementBlogCounter(ctx context.Context, postID, counter string) (int, error)
}

// sessionStore holds refresh tokens and the access token denylist. Redis in
// production, PostgreSQL otherwise.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	ConsumeRefreshSession(ctx context.Context, tokenHash string) (string, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeUserSessions(ctx context.Context, userID string) error
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
}

type gitService interface {
	Commit(postID string, content gitrepo.Content, author, message string) (store.CommitInfo, error)
	Head(postID string) (gitrepo.Content, store.CommitInfo, error)
	Revision(postID, hash string) (gitrepo.Content, store.CommitInfo, error)
	History(postID string, limit int) ([]store.CommitInfo, error)
	TagPublished(postID string, at time.Time) error
	Remove(postID string) error
}

type searchService interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexProject(record search.ProjectRecord)
	IndexPost(record search.PostRecord)
	DeletePost(id string)
}

// Deps are the collaborators of a Service. Only Store is required.
type Deps struct {
	Store     dataStore
	Sessions  sessionStore
	Git       gitService
	Search    searchService
	Notifier  *notify.Notifier
	Analyzer  *raftai.Analyzer
	Assistant *raftai.Assistant
	Blob      blob.Store
	Export    *export.Service
	Email     *email.Service
	Log       *logger.Logger
}

type Service struct {
	cfg        config.Config
	store      dataStore
	sessions   sessionStore
	git        gitService
	search     searchService
	notifier   *notify.Notifier
	analyzer   *raftai.Analyzer
	assistant  *raftai.Assistant
	blob       blob.Store
	export     *export.Service
	email      *email.Service
	authpw     *authpw.Service
	publisher  *blog.Publisher
	log        *logger.Logger
	aiLimiter  *ratelimit.Limiter
	kycLimiter *ratelimit.Limiter
	now        func() time.Time
}

func New(cfg config.Config, deps Deps) *Service {
	s := &Service{
		cfg:        cfg,
		store:      deps.Store,
		sessions:   deps.Sessions,
		git:        deps.Git,
		search:     deps.Search,
		notifier:   deps.Notifier,
		analyzer:   deps.Analyzer,
		assistant:  deps.Assistant,
		blob:       deps.Blob,
		export:     deps.Export,
		email:      deps.Email,
		log:        deps.Log,
		aiLimiter:  ratelimit.PerMinute(cfg.AIRateLimit),
		kycLimiter: ratelimit.PerMinute(cfg.KYCRateLimit),
		now:        func() time.Time { return time.Now().UTC() },
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	if s.sessions == nil {
		s.sessions = deps.Store
	}
	if s.notifier == nil {
		s.notifier = notify.New(deps.Store, nil, s.log)
	}
	if s.analyzer == nil {
		s.analyzer = raftai.NewAnalyzer(nil, pitch.NewEngine(pitch.DefaultTables()), s.log)
	}
	if s.assistant == nil {
		s.assistant = raftai.NewAssistant(nil, s.log)
	}
	if s.blob == nil {
		s.blob = blob.NewMemory()
	}
	if s.export == nil {
		s.export = export.NewService(nil)
	}
	if s.cfg.AnalysisCooldown <= 0 {
		s.cfg.AnalysisCooldown = 24 * time.Hour
	}
	if s.cfg.MaxUploadBytes <= 0 {
		s.cfg.MaxUploadBytes = 10 << 20
	}
	s.authpw = authpw.NewService(deps.Store)
	s.publisher = blog.NewPublisher(deps.Store, s.cfg.PublishInterval, s.log)
	s.publisher.OnPublished(s.onPublished)
	return s
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

// EmailConfigured reports whether outbound email is wired. Without it the
// auth handlers hand tokens back to the caller for local development.
func (s *Service) EmailConfigured() bool {
	return s.email.IsConfigured()
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) PingStorage(ctx context.Context) error {
	return s.blob.Ping(ctx)
}

// CreateSession issues tokens for a user who just authenticated.
func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return Session{}, auth.ErrInvalidToken
	}
	userID, err := s.sessions.ConsumeRefreshSession(ctx, auth.HashToken(refreshToken))
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	if user.DeactivatedAt != nil {
		return Session{}, auth.ErrInvalidToken
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		Role: user.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// SessionFromToken resolves an access token. Role comes from the user row,
// not the token, so role changes apply without re-login.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}
	if user.DeactivatedAt != nil {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		if err := s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			s.log.Warn("revoke access token failed", "user", session.UserID, "error", err.Error())
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			s.log.Warn("revoke refresh token failed", "user", session.UserID, "error", err.Error())
		}
	}
	return nil
}

// RevokeUserSessions signs a user out of every device. Access tokens already
// issued stay valid until they expire.
func (s *Service) RevokeUserSessions(ctx context.Context, userID string) error {
	if err := s.sessions.RevokeUserSessions(ctx, userID); err != nil {
		return err
	}
	s.log.Info("user sessions revoked", "user", userID)
	return nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

func (s *Service) require(session Session, action rbac.Action) error {
	if !s.Can(session.Role, action) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", map[string]any{"action": string(action)})
	}
	return nil
}

// allow applies a per-user rate limit and returns a 429 DomainError with
// retryAfter seconds when it trips.
func allow(limiter *ratelimit.Limiter, key string) error {
	if limiter == nil {
		return nil
	}
	ok, wait := limiter.Allow(key)
	if ok {
		return nil
	}
	seconds := int(wait.Round(time.Second) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return domainError(http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests", map[string]any{"retryAfter": seconds})
}

// background runs fn detached from the request so best-effort side effects
// survive the handler returning.
func (s *Service) background(op string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil && !errors.Is(err, email.ErrNotConfigured) {
			s.log.Warn("background task failed", "op", op, "error", err.Error())
		}
	}()
}

func (s *Service) sendEmail(op string, fn func(ctx context.Context, mail *email.Service) error) {
	if !s.email.IsConfigured() {
		return
	}
	mail := s.email
	s.background(op, func(ctx context.Context) error { return fn(ctx, mail) })
}

func (s *Service) mailVerification(address, name, token string) {
	link := s.cfg.BaseURL + "/verify-email?token=" + url.QueryEscape(token)
	s.sendEmail("verification email", func(ctx context.Context, mail *email.Service) error {
		return mail.SendVerificationEmail(ctx, address, name, link)
	})
}

func (s *Service) mailPasswordReset(address, token string) {
	link := s.cfg.BaseURL + "/reset-password?token=" + url.QueryEscape(token)
	s.sendEmail("password reset email", func(ctx context.Context, mail *email.Service) error {
		return mail.SendPasswordResetEmail(ctx, address, address, link)
	})
}

func timeString(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
