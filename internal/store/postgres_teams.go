package store

import (
	"context"
	"fmt"
	"time"
)

const invitationColumns = `id, team_type, owner_id, email, member_role, token, status, expires_at, created_at, accepted_at`

func scanInvitation(row rowScanner) (TeamInvitation, error) {
	var item TeamInvitation
	if err := row.Scan(
		&item.ID,
		&item.TeamType,
		&item.OwnerID,
		&item.Email,
		&item.MemberRole,
		&item.Token,
		&item.Status,
		&item.ExpiresAt,
		&item.CreatedAt,
		&item.AcceptedAt,
	); err != nil {
		return TeamInvitation{}, err
	}
	return item, nil
}

// FindPendingInvitation returns an unexpired pending invitation for email
// on the owner's team.
func (s *PostgresStore) FindPendingInvitation(ctx context.Context, ownerID, teamType, email string) (TeamInvitation, error) {
	return scanInvitation(s.db.QueryRowContext(ctx, `
		SELECT `+invitationColumns+`
		FROM team_invitations
		WHERE owner_id=$1 AND team_type=$2 AND email=$3 AND status='pending' AND expires_at > NOW()
		ORDER BY created_at DESC
		LIMIT 1
	`, ownerID, teamType, email))
}

func (s *PostgresStore) GetInvitationByToken(ctx context.Context, token string) (TeamInvitation, error) {
	return scanInvitation(s.db.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM team_invitations WHERE token=$1`, token))
}

// CreateInvitation inserts the invitation and the matching team_members row
// with status invited.
func (s *PostgresStore) CreateInvitation(ctx context.Context, invitation TeamInvitation, memberID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin invitation tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO team_invitations (id, team_type, owner_id, email, member_role, token, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7)
	`, invitation.ID, invitation.TeamType, invitation.OwnerID, invitation.Email, invitation.MemberRole, invitation.Token, invitation.ExpiresAt); err != nil {
		return wrapWriteError("insert invitation", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO team_members (id, team_type, owner_id, email, member_role, status, invitation_id)
		VALUES ($1, $2, $3, $4, $5, 'invited', $6)
		ON CONFLICT (owner_id, team_type, email)
		DO UPDATE SET member_role=EXCLUDED.member_role, invitation_id=EXCLUDED.invitation_id, status='invited'
	`, memberID, invitation.TeamType, invitation.OwnerID, invitation.Email, invitation.MemberRole, invitation.ID); err != nil {
		return fmt.Errorf("insert invited member: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit invitation: %w", err)
	}
	return nil
}

// AcceptInvitation activates the membership for userID. It fails with
// sql.ErrNoRows when the token is unknown, used or expired.
func (s *PostgresStore) AcceptInvitation(ctx context.Context, token, userID string, now time.Time) (TeamInvitation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return TeamInvitation{}, fmt.Errorf("begin accept invitation tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	invitation, err := scanInvitation(tx.QueryRowContext(ctx, `
		UPDATE team_invitations SET status='accepted', accepted_at=$2
		WHERE token=$1 AND status='pending' AND expires_at > $2
		RETURNING `+invitationColumns,
		token, now,
	))
	if err != nil {
		return TeamInvitation{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE team_members SET status='active', user_id=$2
		WHERE invitation_id=$1
	`, invitation.ID, userID); err != nil {
		return TeamInvitation{}, fmt.Errorf("activate team member: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return TeamInvitation{}, fmt.Errorf("commit accept invitation: %w", err)
	}
	return invitation, nil
}

func (s *PostgresStore) GetTeamMemberByEmail(ctx context.Context, ownerID, teamType, email string) (TeamMember, error) {
	var item TeamMember
	err := s.db.QueryRowContext(ctx, `
		SELECT id, team_type, owner_id, COALESCE(user_id, ''), email, member_role, status, COALESCE(invitation_id, ''), created_at
		FROM team_members
		WHERE owner_id=$1 AND team_type=$2 AND email=$3
	`, ownerID, teamType, email).Scan(
		&item.ID,
		&item.TeamType,
		&item.OwnerID,
		&item.UserID,
		&item.Email,
		&item.MemberRole,
		&item.Status,
		&item.InvitationID,
		&item.CreatedAt,
	)
	if err != nil {
		return TeamMember{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListTeamMembers(ctx context.Context, ownerID, teamType string) ([]TeamMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, team_type, owner_id, COALESCE(user_id, ''), email, member_role, status, COALESCE(invitation_id, ''), created_at
		FROM team_members
		WHERE owner_id=$1 AND ($2='' OR team_type=$2) AND status <> 'removed'
		ORDER BY created_at
	`, ownerID, teamType)
	if err != nil {
		return nil, fmt.Errorf("list team members: %w", err)
	}
	defer rows.Close()

	items := make([]TeamMember, 0)
	for rows.Next() {
		var item TeamMember
		if err := rows.Scan(
			&item.ID,
			&item.TeamType,
			&item.OwnerID,
			&item.UserID,
			&item.Email,
			&item.MemberRole,
			&item.Status,
			&item.InvitationID,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan team member: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate team members: %w", err)
	}
	return items, nil
}
