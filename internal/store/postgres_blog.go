package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const blogColumns = `
	b.id, b.slug, b.title, b.content, b.excerpt, b.category, b.tags, b.featured, b.status, COALESCE(b.author_id, ''),
	COALESCE(u.display_name, ''), b.scheduled_for, b.published_at, b.reading_time, b.views, b.likes, b.shares,
	b.platform_selection, b.platform_status, b.revision_hash, b.created_at, b.updated_at`

func scanBlogPost(row rowScanner) (BlogPost, error) {
	var item BlogPost
	var tagsRaw, platformsRaw, statusRaw []byte
	if err := row.Scan(
		&item.ID,
		&item.Slug,
		&item.Title,
		&item.Content,
		&item.Excerpt,
		&item.Category,
		&tagsRaw,
		&item.Featured,
		&item.Status,
		&item.AuthorID,
		&item.AuthorName,
		&item.ScheduledFor,
		&item.PublishedAt,
		&item.ReadingTime,
		&item.Views,
		&item.Likes,
		&item.Shares,
		&platformsRaw,
		&statusRaw,
		&item.RevisionHash,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return BlogPost{}, err
	}
	item.Tags = decodeStrings(tagsRaw)
	item.PlatformSelection = decodeStrings(platformsRaw)
	item.PlatformStatus = map[string]PlatformStatus{}
	_ = json.Unmarshal(statusRaw, &item.PlatformStatus)
	return item, nil
}

func (s *PostgresStore) InsertBlogPost(ctx context.Context, post BlogPost) error {
	platformStatus, err := json.Marshal(post.PlatformStatus)
	if err != nil {
		return fmt.Errorf("marshal platform status: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO blog_posts (
			id, slug, title, content, excerpt, category, tags, featured, status, author_id,
			scheduled_for, published_at, reading_time, platform_selection, platform_status, revision_hash
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, NULLIF($10, ''), $11, $12, $13, $14::jsonb, $15::jsonb, $16)
	`,
		post.ID,
		post.Slug,
		post.Title,
		post.Content,
		post.Excerpt,
		post.Category,
		encodeStrings(post.Tags),
		post.Featured,
		post.Status,
		post.AuthorID,
		post.ScheduledFor,
		post.PublishedAt,
		post.ReadingTime,
		encodeStrings(post.PlatformSelection),
		nullJSON(platformStatus),
		post.RevisionHash,
	)
	if err != nil {
		return wrapWriteError("insert blog post", err)
	}
	return nil
}

func (s *PostgresStore) UpdateBlogPost(ctx context.Context, post BlogPost) error {
	platformStatus, err := json.Marshal(post.PlatformStatus)
	if err != nil {
		return fmt.Errorf("marshal platform status: %w", err)
	}
	return s.execOne(ctx, "update blog post", `
		UPDATE blog_posts
		SET slug=$2, title=$3, content=$4, excerpt=$5, category=$6, tags=$7::jsonb, featured=$8, status=$9,
			scheduled_for=$10, published_at=$11, reading_time=$12, platform_selection=$13::jsonb,
			platform_status=$14::jsonb, revision_hash=$15, updated_at=NOW()
		WHERE id=$1
	`,
		post.ID,
		post.Slug,
		post.Title,
		post.Content,
		post.Excerpt,
		post.Category,
		encodeStrings(post.Tags),
		post.Featured,
		post.Status,
		post.ScheduledFor,
		post.PublishedAt,
		post.ReadingTime,
		encodeStrings(post.PlatformSelection),
		nullJSON(platformStatus),
		post.RevisionHash,
	)
}

func (s *PostgresStore) DeleteBlogPost(ctx context.Context, postID string) error {
	return s.execOne(ctx, "delete blog post", `DELETE FROM blog_posts WHERE id=$1`, postID)
}

func (s *PostgresStore) GetBlogPost(ctx context.Context, postID string) (BlogPost, error) {
	return scanBlogPost(s.db.QueryRowContext(ctx, `
		SELECT `+blogColumns+`
		FROM blog_posts b
		LEFT JOIN users u ON u.id = b.author_id
		WHERE b.id=$1
	`, postID))
}

func (s *PostgresStore) GetBlogPostBySlug(ctx context.Context, slug string) (BlogPost, error) {
	return scanBlogPost(s.db.QueryRowContext(ctx, `
		SELECT `+blogColumns+`
		FROM blog_posts b
		LEFT JOIN users u ON u.id = b.author_id
		WHERE b.slug=$1
	`, slug))
}

func (s *PostgresStore) ListBlogPosts(ctx context.Context, filter BlogFilter) ([]BlogPost, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var featured any
	if filter.Featured != nil {
		featured = *filter.Featured
	}
	return s.queryBlogPosts(ctx, "list blog posts", `
		SELECT `+blogColumns+`
		FROM blog_posts b
		LEFT JOIN users u ON u.id = b.author_id
		WHERE ($1='' OR b.status=$1)
		  AND ($2='' OR b.category=$2)
		  AND ($3::boolean IS NULL OR b.featured=$3::boolean)
		  AND ($4='' OR b.title ILIKE '%' || $4 || '%' OR b.excerpt ILIKE '%' || $4 || '%' OR b.content ILIKE '%' || $4 || '%')
		  AND ($5='' OR b.tags ? $5)
		ORDER BY b.created_at DESC
		LIMIT $6 OFFSET $7
	`, filter.Status, filter.Category, featured, filter.Search, filter.Tag, limit, filter.Offset)
}

// ListDueScheduledPosts returns scheduled posts whose time has come.
func (s *PostgresStore) ListDueScheduledPosts(ctx context.Context, now time.Time) ([]BlogPost, error) {
	return s.queryBlogPosts(ctx, "list due posts", `
		SELECT `+blogColumns+`
		FROM blog_posts b
		LEFT JOIN users u ON u.id = b.author_id
		WHERE b.status='scheduled' AND b.scheduled_for <= $1
		ORDER BY b.scheduled_for
	`, now)
}

func (s *PostgresStore) queryBlogPosts(ctx context.Context, op, query string, args ...any) ([]BlogPost, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	items := make([]BlogPost, 0)
	for rows.Next() {
		item, err := scanBlogPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan blog post: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blog posts: %w", err)
	}
	return items, nil
}

// IncrementBlogCounter bumps views, likes or shares on a published post.
func (s *PostgresStore) IncrementBlogCounter(ctx context.Context, postID, counter string) (int, error) {
	var column string
	switch counter {
	case "views", "likes", "shares":
		column = counter
	default:
		return 0, fmt.Errorf("unknown blog counter %q", counter)
	}
	var value int
	err := s.db.QueryRowContext(ctx, `
		UPDATE blog_posts SET `+column+`=`+column+`+1 WHERE id=$1 AND status='published' RETURNING `+column,
		postID,
	).Scan(&value)
	if err != nil {
		return 0, err
	}
	return value, nil
}

func nullJSON(raw []byte) string {
	if len(raw) == 0 || string(raw) == "null" {
		return "{}"
	}
	return string(raw)
}
