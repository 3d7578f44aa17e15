package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	projectVector = "to_tsvector('english', p.name || ' ' || p.summary)"
	postVector    = "to_tsvector('english', b.title || ' ' || b.content)"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; without Postgres nothing else works either.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs a UNION ALL across projects and published posts ranked with
// ts_rank. The vector expressions match the GIN indexes in the migrations.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultProject {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'project'::text AS type, p.id, p.name AS title,
				ts_headline('english', p.summary, %[1]s, 'MaxFragments=1,MaxWords=30') AS snippet,
				''::text AS slug, p.sector AS category, p.rating AS rating,
				ts_rank(%[2]s, %[1]s) AS rank
			FROM projects p
			WHERE p.status <> 'draft' AND %[2]s @@ %[1]s`, tsQuery, projectVector))
	}
	if q.FilterType == "" || q.FilterType == ResultPost {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'post'::text AS type, b.id, b.title,
				ts_headline('english', b.content, %[1]s, 'MaxFragments=1,MaxWords=30') AS snippet,
				b.slug, b.category, ''::text AS rating,
				ts_rank(%[2]s, %[1]s) AS rank
			FROM blog_posts b
			WHERE b.status = 'published' AND %[2]s @@ %[1]s`, tsQuery, postVector))
	}
	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	union := strings.Join(subQueries, " UNION ALL ")
	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub", union)
	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, slug, category, rating
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`, union, limit, offset)

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, q.Text).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, q.Text)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.Slug, &r.Category, &r.Rating); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every searchable record for a full reindex.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ProjectRecord, []PostRecord, error) {
	projectRows, err := p.db.QueryContext(ctx, `
		SELECT id, name, summary, sector, stage, chain, rating, score, status
		FROM projects
		WHERE status <> 'draft'
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load projects: %w", err)
	}
	defer projectRows.Close()

	projects := make([]ProjectRecord, 0)
	for projectRows.Next() {
		var r ProjectRecord
		if err := projectRows.Scan(&r.ID, &r.Name, &r.Summary, &r.Sector, &r.Stage, &r.Chain, &r.Rating, &r.Score, &r.Status); err != nil {
			return nil, nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, r)
	}
	if err := projectRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate projects: %w", err)
	}

	postRows, err := p.db.QueryContext(ctx, `
		SELECT id, slug, title, excerpt, content, category, tags, status
		FROM blog_posts
		WHERE status = 'published'
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load posts: %w", err)
	}
	defer postRows.Close()

	posts := make([]PostRecord, 0)
	for postRows.Next() {
		var r PostRecord
		var tags []byte
		if err := postRows.Scan(&r.ID, &r.Slug, &r.Title, &r.Excerpt, &r.Content, &r.Category, &tags, &r.Status); err != nil {
			return nil, nil, fmt.Errorf("scan post: %w", err)
		}
		r.Tags = []string{}
		if len(tags) > 0 {
			if err := json.Unmarshal(tags, &r.Tags); err != nil {
				return nil, nil, fmt.Errorf("decode post tags: %w", err)
			}
		}
		posts = append(posts, r)
	}
	if err := postRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate posts: %w", err)
	}
	return projects, posts, nil
}
