package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

const projectColumns = `
	p.id, p.founder_id, p.name, p.sector, p.stage, p.chain, p.summary, p.team_size, p.traction, p.tokenomics, p.docs,
	p.status, p.rating, p.score, p.listing_order, p.badges, p.submitted_at, p.created_at, p.updated_at, u.display_name`

func scanProject(row rowScanner) (Project, error) {
	var item Project
	var tractionRaw, tokenomicsRaw, docsRaw, badgesRaw []byte
	if err := row.Scan(
		&item.ID,
		&item.FounderID,
		&item.Name,
		&item.Sector,
		&item.Stage,
		&item.Chain,
		&item.Summary,
		&item.TeamSize,
		&tractionRaw,
		&tokenomicsRaw,
		&docsRaw,
		&item.Status,
		&item.Rating,
		&item.Score,
		&item.ListingOrder,
		&badgesRaw,
		&item.SubmittedAt,
		&item.CreatedAt,
		&item.UpdatedAt,
		&item.FounderName,
	); err != nil {
		return Project{}, err
	}
	_ = json.Unmarshal(tractionRaw, &item.Traction)
	_ = json.Unmarshal(docsRaw, &item.Docs)
	if len(tokenomicsRaw) > 0 && string(tokenomicsRaw) != "null" {
		var tokenomics Tokenomics
		if err := json.Unmarshal(tokenomicsRaw, &tokenomics); err == nil {
			item.Tokenomics = &tokenomics
		}
	}
	item.Badges = decodeStrings(badgesRaw)
	return item, nil
}

func (s *PostgresStore) InsertProject(ctx context.Context, item Project) error {
	traction, docs, tokenomics, err := encodeProjectJSON(item)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projects (id, founder_id, name, sector, stage, chain, summary, team_size, traction, tokenomics, docs, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10::jsonb, $11::jsonb, 'draft')
	`, item.ID, item.FounderID, item.Name, item.Sector, item.Stage, item.Chain, item.Summary, item.TeamSize, traction, tokenomics, docs)
	if err != nil {
		return wrapWriteError("insert project", err)
	}
	return nil
}

func (s *PostgresStore) UpdateProject(ctx context.Context, item Project) error {
	traction, docs, tokenomics, err := encodeProjectJSON(item)
	if err != nil {
		return err
	}
	return s.execOne(ctx, "update project", `
		UPDATE projects
		SET name=$2, sector=$3, stage=$4, chain=$5, summary=$6, team_size=$7,
			traction=$8::jsonb, tokenomics=$9::jsonb, docs=$10::jsonb, updated_at=NOW()
		WHERE id=$1
	`, item.ID, item.Name, item.Sector, item.Stage, item.Chain, item.Summary, item.TeamSize, traction, tokenomics, docs)
}

func (s *PostgresStore) SubmitProject(ctx context.Context, projectID string) error {
	return s.execOne(ctx, "submit project", `
		UPDATE projects SET status='submitted', submitted_at=NOW(), updated_at=NOW()
		WHERE id=$1 AND status='draft'
	`, projectID)
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID string) (Project, error) {
	return scanProject(s.db.QueryRowContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects p
		JOIN users u ON u.id = p.founder_id
		WHERE p.id=$1
	`, projectID))
}

func (s *PostgresStore) ListProjectsByFounder(ctx context.Context, founderID string) ([]Project, error) {
	return s.queryProjects(ctx, "list founder projects", `
		SELECT `+projectColumns+`
		FROM projects p
		JOIN users u ON u.id = p.founder_id
		WHERE p.founder_id=$1
		ORDER BY p.created_at DESC
	`, founderID)
}

// ListDealflow returns submitted and accepted projects ordered for investor
// browsing.
func (s *PostgresStore) ListDealflow(ctx context.Context, limit, offset int) ([]Project, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryProjects(ctx, "list dealflow", `
		SELECT `+projectColumns+`
		FROM projects p
		JOIN users u ON u.id = p.founder_id
		WHERE p.status IN ('submitted', 'accepted')
		ORDER BY p.listing_order DESC, p.submitted_at DESC NULLS LAST
		LIMIT $1 OFFSET $2
	`, limit, offset)
}

func (s *PostgresStore) ListAllProjects(ctx context.Context) ([]Project, error) {
	return s.queryProjects(ctx, "list projects", `
		SELECT `+projectColumns+`
		FROM projects p
		JOIN users u ON u.id = p.founder_id
		ORDER BY p.created_at
	`)
}

func (s *PostgresStore) queryProjects(ctx context.Context, op, query string, args ...any) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		item, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return items, nil
}

// SaveAnalysis appends an analysis and copies its outcome onto the project.
// Earlier analyses are kept.
func (s *PostgresStore) SaveAnalysis(ctx context.Context, analysis ProjectAnalysis, listingOrder int, badges []string) error {
	components, err := json.Marshal(analysis.Components)
	if err != nil {
		return fmt.Errorf("marshal analysis components: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin analysis tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO project_analyses (id, project_id, score, rating, confidence, components, summary, strengths, weaknesses, risks, recommendations, source)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8::jsonb, $9::jsonb, $10::jsonb, $11::jsonb, $12)
	`,
		analysis.ID,
		analysis.ProjectID,
		analysis.Score,
		analysis.Rating,
		analysis.Confidence,
		string(components),
		analysis.Summary,
		encodeStrings(analysis.Strengths),
		encodeStrings(analysis.Weaknesses),
		encodeStrings(analysis.Risks),
		encodeStrings(analysis.Recommendations),
		analysis.Source,
	); err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE projects SET score=$2, rating=$3, listing_order=$4, badges=$5::jsonb, updated_at=NOW() WHERE id=$1
	`, analysis.ProjectID, analysis.Score, analysis.Rating, listingOrder, encodeStrings(badges)); err != nil {
		return fmt.Errorf("update project score: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit analysis: %w", err)
	}
	return nil
}

func (s *PostgresStore) LatestAnalysis(ctx context.Context, projectID string) (ProjectAnalysis, error) {
	items, err := s.ListAnalyses(ctx, projectID, 1)
	if err != nil {
		return ProjectAnalysis{}, err
	}
	if len(items) == 0 {
		return ProjectAnalysis{}, sql.ErrNoRows
	}
	return items[0], nil
}

func (s *PostgresStore) ListAnalyses(ctx context.Context, projectID string, limit int) ([]ProjectAnalysis, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, score, rating, confidence, components, summary, strengths, weaknesses, risks, recommendations, source, created_at
		FROM project_analyses
		WHERE project_id=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	items := make([]ProjectAnalysis, 0)
	for rows.Next() {
		var item ProjectAnalysis
		var componentsRaw, strengthsRaw, weaknessesRaw, risksRaw, recommendationsRaw []byte
		if err := rows.Scan(
			&item.ID,
			&item.ProjectID,
			&item.Score,
			&item.Rating,
			&item.Confidence,
			&componentsRaw,
			&item.Summary,
			&strengthsRaw,
			&weaknessesRaw,
			&risksRaw,
			&recommendationsRaw,
			&item.Source,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		item.Components = map[string]int{}
		_ = json.Unmarshal(componentsRaw, &item.Components)
		item.Strengths = decodeStrings(strengthsRaw)
		item.Weaknesses = decodeStrings(weaknessesRaw)
		item.Risks = decodeStrings(risksRaw)
		item.Recommendations = decodeStrings(recommendationsRaw)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analyses: %w", err)
	}
	return items, nil
}

// AcceptProjectParams describes one counterpart accepting a pitch.
type AcceptProjectParams struct {
	ProjectID       string
	FounderID       string
	CounterpartID   string
	CounterpartRole string
	RelationID      string
	Room            Room
	Members         []RoomMember
	SystemMessage   Message
}

// AcceptProject marks the project accepted, upserts the relation and opens
// the deal room in one transaction. Repeating the call reuses the existing
// room and does not post a second system message; created reports whether
// the room was new.
func (s *PostgresStore) AcceptProject(ctx context.Context, params AcceptProjectParams) (room Room, created bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Room{}, false, fmt.Errorf("begin accept tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE projects SET status='accepted', updated_at=NOW() WHERE id=$1 AND status <> 'accepted'
	`, params.ProjectID); err != nil {
		return Room{}, false, fmt.Errorf("mark project accepted: %w", err)
	}

	memory, err := encodeJSON(params.Room.RaftAIMemory, "{}")
	if err != nil {
		return Room{}, false, fmt.Errorf("marshal raftai memory: %w", err)
	}
	result, err := tx.ExecContext(ctx, `
		INSERT INTO rooms (id, type, name, project_id, created_by, raftai_memory)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)
		ON CONFLICT (id) DO NOTHING
	`, params.Room.ID, params.Room.Type, params.Room.Name, params.ProjectID, params.CounterpartID, memory)
	if err != nil {
		return Room{}, false, fmt.Errorf("insert room: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return Room{}, false, fmt.Errorf("insert room rows: %w", err)
	}
	created = inserted > 0

	for _, member := range params.Members {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO room_members (room_id, user_id, member_role)
			VALUES ($1, $2, $3)
			ON CONFLICT (room_id, user_id) DO NOTHING
		`, params.Room.ID, member.UserID, member.MemberRole); err != nil {
			return Room{}, false, fmt.Errorf("insert room member: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO project_relations (id, project_id, founder_id, counterpart_id, counterpart_role, status, room_id)
		VALUES ($1, $2, $3, $4, $5, 'accepted', $6)
		ON CONFLICT (id) DO UPDATE SET status='accepted', room_id=EXCLUDED.room_id, updated_at=NOW()
	`, params.RelationID, params.ProjectID, params.FounderID, params.CounterpartID, params.CounterpartRole, params.Room.ID); err != nil {
		return Room{}, false, fmt.Errorf("upsert project relation: %w", err)
	}

	if created && params.SystemMessage.ID != "" {
		msg := params.SystemMessage
		msg.RoomID = params.Room.ID
		if _, _, err := insertMessageTx(ctx, tx, msg); err != nil {
			return Room{}, false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return Room{}, false, fmt.Errorf("commit accept: %w", err)
	}

	room, err = s.GetRoom(ctx, params.Room.ID)
	if err != nil {
		return Room{}, false, fmt.Errorf("reload room: %w", err)
	}
	return room, created, nil
}

func (s *PostgresStore) GetRelation(ctx context.Context, relationID string) (ProjectRelation, error) {
	var item ProjectRelation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, founder_id, counterpart_id, counterpart_role, status, COALESCE(room_id, ''), created_at, updated_at
		FROM project_relations WHERE id=$1
	`, relationID).Scan(
		&item.ID,
		&item.ProjectID,
		&item.FounderID,
		&item.CounterpartID,
		&item.CounterpartRole,
		&item.Status,
		&item.RoomID,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return ProjectRelation{}, err
	}
	return item, nil
}

func encodeProjectJSON(item Project) (traction, docs string, tokenomics *string, err error) {
	tractionRaw, err := json.Marshal(item.Traction)
	if err != nil {
		return "", "", nil, fmt.Errorf("marshal traction: %w", err)
	}
	docsRaw, err := json.Marshal(item.Docs)
	if err != nil {
		return "", "", nil, fmt.Errorf("marshal docs: %w", err)
	}
	if item.Tokenomics != nil {
		raw, err := json.Marshal(item.Tokenomics)
		if err != nil {
			return "", "", nil, fmt.Errorf("marshal tokenomics: %w", err)
		}
		encoded := string(raw)
		tokenomics = &encoded
	}
	return string(tractionRaw), string(docsRaw), tokenomics, nil
}
