package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrConflict is returned when a write violates a unique constraint.
var ErrConflict = errors.New("conflict")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const userColumns = `
	id, email, display_name, password_hash, role, kyc_status, kyb_status, profile_completed, profile,
	is_email_verified, COALESCE(verification_token, ''), verification_expires_at, deactivated_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var user User
	var profileRaw []byte
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.PasswordHash,
		&user.Role,
		&user.KYCStatus,
		&user.KYBStatus,
		&user.ProfileCompleted,
		&profileRaw,
		&user.IsEmailVerified,
		&user.VerificationToken,
		&user.VerificationExpiresAt,
		&user.DeactivatedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return User{}, err
	}
	_ = json.Unmarshal(profileRaw, &user.Profile)
	return user, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	profile, err := encodeJSON(user.Profile, "{}")
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, display_name, password_hash, role, profile, is_email_verified, verification_token)
		VALUES ($1, LOWER($2), $3, $4, $5, $6::jsonb, $7, NULLIF($8, ''))
	`, user.ID, user.Email, user.DisplayName, user.PasswordHash, user.Role, profile, user.IsEmailVerified, user.VerificationToken)
	if err != nil {
		return wrapWriteError("insert user", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID))
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=LOWER($1)`, strings.TrimSpace(email)))
}

func (s *PostgresStore) ListUsersByRole(ctx context.Context, role string) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE ($1='' OR role=$1) AND deactivated_at IS NULL AND id <> 'raftai'
		ORDER BY created_at
	`, role)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		items = append(items, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateUserRole(ctx context.Context, userID, role string) error {
	return s.execOne(ctx, "update user role", `UPDATE users SET role=$2, updated_at=NOW() WHERE id=$1`, userID, role)
}

// SetInitialRole assigns a role only if the user has none yet. It reports
// whether the row changed.
func (s *PostgresStore) SetInitialRole(ctx context.Context, userID, role string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET role=$2, updated_at=NOW() WHERE id=$1 AND role=''`, userID, role)
	if err != nil {
		return false, fmt.Errorf("set initial role: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set initial role rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) UpdateUserProfile(ctx context.Context, userID, displayName string, profile map[string]any) error {
	encoded, err := encodeJSON(profile, "{}")
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	return s.execOne(ctx, "update user profile", `
		UPDATE users
		SET display_name=COALESCE(NULLIF($2, ''), display_name), profile=$3::jsonb, profile_completed=TRUE, updated_at=NOW()
		WHERE id=$1
	`, userID, displayName, encoded)
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	return s.execOne(ctx, "update verification token", `
		UPDATE users SET verification_token=$2, verification_expires_at=$3, updated_at=NOW() WHERE id=$1
	`, userID, token, expiresAt)
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	return s.execOne(ctx, "verify user email", `
		UPDATE users
		SET is_email_verified=TRUE, verification_token=NULL, verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	return s.execOne(ctx, "update user password", `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, userID, passwordHash)
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at) VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return wrapWriteError("insert password reset", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	return s.execOne(ctx, "mark password reset used", `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// ConsumeRefreshSession revokes a live refresh token and returns its owner.
// The UPDATE makes a token usable once even under concurrent refreshes.
func (s *PostgresStore) ConsumeRefreshSession(ctx context.Context, tokenHash string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		UPDATE refresh_sessions rs SET revoked_at=NOW()
		FROM users u
		WHERE rs.token_hash=$1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
			AND u.id = rs.user_id
			AND u.deactivated_at IS NULL
		RETURNING rs.user_id
	`, tokenHash).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", err
		}
		return "", fmt.Errorf("consume refresh session: %w", err)
	}
	return userID, nil
}

func (s *PostgresStore) RevokeUserSessions(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE user_id=$1 AND revoked_at IS NULL`, userID)
	if err != nil {
		return fmt.Errorf("revoke user sessions: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

func (s *PostgresStore) AdminStats(ctx context.Context) (AdminStats, error) {
	var stats AdminStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users WHERE id <> 'raftai'),
			(SELECT COUNT(*) FROM verifications WHERE status='pending'),
			(SELECT COUNT(*) FROM projects),
			(SELECT COUNT(*) FROM projects WHERE status='accepted'),
			(SELECT COUNT(*) FROM rooms),
			(SELECT COUNT(*) FROM messages),
			(SELECT COUNT(*) FROM blog_posts WHERE status='published')
	`).Scan(
		&stats.Users,
		&stats.PendingVerifications,
		&stats.Projects,
		&stats.AcceptedProjects,
		&stats.Rooms,
		&stats.Messages,
		&stats.PublishedPosts,
	)
	if err != nil {
		return AdminStats{}, fmt.Errorf("admin stats: %w", err)
	}
	return stats, nil
}

// execOne runs a write that must touch exactly one row; zero rows maps to
// sql.ErrNoRows.
func (s *PostgresStore) execOne(ctx context.Context, op, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrapWriteError(op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func wrapWriteError(op string, err error) error {
	if IsUniqueViolation(err) {
		return fmt.Errorf("%s: %w", op, ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsUniqueViolation reports whether err is a PostgreSQL unique_violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func encodeJSON(value any, empty string) (string, error) {
	switch v := value.(type) {
	case nil:
		return empty, nil
	case map[string]any:
		if v == nil {
			return empty, nil
		}
	case []string:
		if v == nil {
			return empty, nil
		}
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func encodeStrings(values []string) string {
	if values == nil {
		values = []string{}
	}
	encoded, _ := json.Marshal(values)
	return string(encoded)
}

func decodeStrings(raw []byte) []string {
	items := make([]string, 0)
	_ = json.Unmarshal(raw, &items)
	return items
}
