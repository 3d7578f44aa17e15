package store

import (
	"context"
	"encoding/json"
	"fmt"
)

const verificationColumns = `v.id, v.user_id, v.kind, v.status, v.documents, v.reason, COALESCE(v.reviewed_by, ''), v.submitted_at, v.reviewed_at, u.email, u.display_name`

func scanVerification(row rowScanner) (Verification, error) {
	var item Verification
	var documentsRaw []byte
	if err := row.Scan(
		&item.ID,
		&item.UserID,
		&item.Kind,
		&item.Status,
		&documentsRaw,
		&item.Reason,
		&item.ReviewedBy,
		&item.SubmittedAt,
		&item.ReviewedAt,
		&item.UserEmail,
		&item.UserName,
	); err != nil {
		return Verification{}, err
	}
	item.Documents = map[string]string{}
	_ = json.Unmarshal(documentsRaw, &item.Documents)
	return item, nil
}

// InsertVerification records a submission and moves the user's kyc/kyb
// status to pending in the same transaction.
func (s *PostgresStore) InsertVerification(ctx context.Context, item Verification) error {
	documents, err := json.Marshal(item.Documents)
	if err != nil {
		return fmt.Errorf("marshal verification documents: %w", err)
	}
	statusColumn, err := verificationStatusColumn(item.Kind)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin verification tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO verifications (id, user_id, kind, status, documents)
		VALUES ($1, $2, $3, 'pending', $4::jsonb)
	`, item.ID, item.UserID, item.Kind, string(documents)); err != nil {
		return wrapWriteError("insert verification", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE users SET `+statusColumn+`='pending', updated_at=NOW() WHERE id=$1`, item.UserID); err != nil {
		return fmt.Errorf("mark user verification pending: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit verification: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetVerification(ctx context.Context, id string) (Verification, error) {
	return scanVerification(s.db.QueryRowContext(ctx, `
		SELECT `+verificationColumns+`
		FROM verifications v
		JOIN users u ON u.id = v.user_id
		WHERE v.id=$1
	`, id))
}

func (s *PostgresStore) LatestVerification(ctx context.Context, userID, kind string) (Verification, error) {
	return scanVerification(s.db.QueryRowContext(ctx, `
		SELECT `+verificationColumns+`
		FROM verifications v
		JOIN users u ON u.id = v.user_id
		WHERE v.user_id=$1 AND v.kind=$2
		ORDER BY v.submitted_at DESC
		LIMIT 1
	`, userID, kind))
}

func (s *PostgresStore) ListPendingVerifications(ctx context.Context, kind string) ([]Verification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+verificationColumns+`
		FROM verifications v
		JOIN users u ON u.id = v.user_id
		WHERE v.status='pending' AND ($1='' OR v.kind=$1)
		ORDER BY v.submitted_at
	`, kind)
	if err != nil {
		return nil, fmt.Errorf("list pending verifications: %w", err)
	}
	defer rows.Close()

	items := make([]Verification, 0)
	for rows.Next() {
		item, err := scanVerification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan verification: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verifications: %w", err)
	}
	return items, nil
}

// DecideVerification applies an admin decision to a pending submission,
// stores any attestations and mirrors the status onto the user row.
func (s *PostgresStore) DecideVerification(ctx context.Context, id, status, reason, reviewerID string, attestations []Attestation) (Verification, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Verification{}, fmt.Errorf("begin decision tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var userID, kind string
	err = tx.QueryRowContext(ctx, `
		UPDATE verifications
		SET status=$2, reason=$3, reviewed_by=NULLIF($4, ''), reviewed_at=NOW()
		WHERE id=$1 AND status='pending'
		RETURNING user_id, kind
	`, id, status, reason, reviewerID).Scan(&userID, &kind)
	if err != nil {
		return Verification{}, err
	}

	for _, attestation := range attestations {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO verification_attestations (id, verification_id, document_name, salt, hash)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (verification_id, document_name) DO NOTHING
		`, attestation.ID, id, attestation.DocumentName, attestation.Salt, attestation.Hash); err != nil {
			return Verification{}, fmt.Errorf("insert attestation: %w", err)
		}
	}

	statusColumn, err := verificationStatusColumn(kind)
	if err != nil {
		return Verification{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE users SET `+statusColumn+`=$2, updated_at=NOW() WHERE id=$1`, userID, status); err != nil {
		return Verification{}, fmt.Errorf("update user verification status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Verification{}, fmt.Errorf("commit decision: %w", err)
	}
	return s.GetVerification(ctx, id)
}

func (s *PostgresStore) ListAttestations(ctx context.Context, verificationID string) ([]Attestation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, verification_id, document_name, salt, hash, created_at
		FROM verification_attestations
		WHERE verification_id=$1
		ORDER BY document_name
	`, verificationID)
	if err != nil {
		return nil, fmt.Errorf("list attestations: %w", err)
	}
	defer rows.Close()

	items := make([]Attestation, 0)
	for rows.Next() {
		var item Attestation
		if err := rows.Scan(&item.ID, &item.VerificationID, &item.DocumentName, &item.Salt, &item.Hash, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attestation: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attestations: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertStoredFile(ctx context.Context, file StoredFile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stored_files (key, owner_id, file_name, content_type, size, purpose)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, file.Key, file.OwnerID, file.FileName, file.ContentType, file.Size, file.Purpose)
	if err != nil {
		return wrapWriteError("insert stored file", err)
	}
	return nil
}

func (s *PostgresStore) GetStoredFile(ctx context.Context, key string) (StoredFile, error) {
	var file StoredFile
	err := s.db.QueryRowContext(ctx, `
		SELECT key, owner_id, file_name, content_type, size, purpose, created_at
		FROM stored_files WHERE key=$1
	`, key).Scan(&file.Key, &file.OwnerID, &file.FileName, &file.ContentType, &file.Size, &file.Purpose, &file.CreatedAt)
	if err != nil {
		return StoredFile{}, err
	}
	return file, nil
}

func verificationStatusColumn(kind string) (string, error) {
	switch kind {
	case "kyc":
		return "kyc_status", nil
	case "kyb":
		return "kyb_status", nil
	default:
		return "", fmt.Errorf("unknown verification kind %q", kind)
	}
}
