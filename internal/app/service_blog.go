package app

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cryptorafts/api/internal/blog"
	"cryptorafts/api/internal/gitrepo"
	"cryptorafts/api/internal/rbac"
	"cryptorafts/api/internal/search"
	"cryptorafts/api/internal/store"
	"cryptorafts/api/internal/util"
)

const (
	maxSlugAttempts = 50
	maxTags         = 10
	defaultBlogPage = 20
	maxBlogPage     = 100
)

type BlogInput struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Excerpt  string   `json:"excerpt"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
	Featured bool     `json:"featured"`
}

type PublishInput struct {
	ScheduleFor *time.Time `json:"scheduleFor"`
	Platforms   []string   `json:"platforms"`
}

func blogPayload(p store.BlogPost, withContent bool) map[string]any {
	platformStatus := p.PlatformStatus
	if platformStatus == nil {
		platformStatus = map[string]store.PlatformStatus{}
	}
	payload := map[string]any{
		"id":             p.ID,
		"slug":           p.Slug,
		"title":          p.Title,
		"excerpt":        p.Excerpt,
		"category":       p.Category,
		"tags":           nonNilStrings(p.Tags),
		"featured":       p.Featured,
		"status":         p.Status,
		"authorId":       p.AuthorID,
		"authorName":     p.AuthorName,
		"scheduledFor":   timeString(p.ScheduledFor),
		"publishedAt":    timeString(p.PublishedAt),
		"readingTime":    p.ReadingTime,
		"views":          p.Views,
		"likes":          p.Likes,
		"shares":         p.Shares,
		"platforms":      nonNilStrings(p.PlatformSelection),
		"platformStatus": platformStatus,
		"revision":       p.RevisionHash,
		"createdAt":      p.CreatedAt.UTC().Format(time.RFC3339),
		"updatedAt":      p.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if withContent {
		payload["content"] = p.Content
	}
	return payload
}

func commitPayload(c store.CommitInfo) map[string]any {
	return map[string]any{
		"hash":      c.Hash,
		"message":   c.Message,
		"author":    c.Author,
		"createdAt": c.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func postRecord(p store.BlogPost) search.PostRecord {
	return search.PostRecord{
		ID:       p.ID,
		Slug:     p.Slug,
		Title:    p.Title,
		Excerpt:  p.Excerpt,
		Content:  blog.StripHTML(p.Content),
		Category: p.Category,
		Tags:     nonNilStrings(p.Tags),
		Status:   p.Status,
	}
}

func (s *Service) indexPost(p store.BlogPost) {
	if s.search != nil {
		s.search.IndexPost(postRecord(p))
	}
}

func postContent(p store.BlogPost) gitrepo.Content {
	return gitrepo.Content{
		Title:    p.Title,
		Content:  p.Content,
		Excerpt:  p.Excerpt,
		Category: p.Category,
		Tags:     nonNilStrings(p.Tags),
	}
}

// Publisher moves scheduled posts live; cmd/api starts its ticker.
func (s *Service) Publisher() *blog.Publisher {
	return s.publisher
}

// onPublished runs after a scheduled post goes live.
func (s *Service) onPublished(_ context.Context, post store.BlogPost) {
	if s.git != nil && post.PublishedAt != nil {
		if err := s.git.TagPublished(post.ID, *post.PublishedAt); err != nil && !errors.Is(err, gitrepo.ErrNoHistory) {
			s.log.Warn("tag published revision failed", "post", post.ID, "error", err.Error())
		}
	}
	s.indexPost(post)
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := map[string]bool{}
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

func validateBlogInput(input BlogInput) (BlogInput, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.Category = strings.TrimSpace(input.Category)
	input.Excerpt = strings.TrimSpace(input.Excerpt)
	input.Tags = normalizeTags(input.Tags)
	problems := blog.Validate(blog.Draft{Title: input.Title, Content: input.Content, Category: input.Category})
	if len(input.Tags) > maxTags {
		problems = append(problems, fmt.Sprintf("Too many tags (max %d)", maxTags))
	}
	if len(problems) > 0 {
		return input, validationError(problems[0], map[string]any{"errors": problems})
	}
	if input.Excerpt == "" {
		input.Excerpt = blog.Excerpt(blog.StripHTML(input.Content))
	}
	return input, nil
}

// uniqueSlug returns base, or base-N for the first N not taken by another
// post.
func (s *Service) uniqueSlug(ctx context.Context, base, postID string) (string, error) {
	if base == "" {
		base = "post"
	}
	candidate := base
	for i := 2; i <= maxSlugAttempts+1; i++ {
		existing, err := s.store.GetBlogPostBySlug(ctx, candidate)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && existing.ID == postID) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return "", domainError(http.StatusConflict, "SLUG_TAKEN", "Could not find a free slug", nil)
}

func (s *Service) commitPost(post store.BlogPost, author, message string) (string, error) {
	if s.git == nil {
		return "", nil
	}
	info, err := s.git.Commit(post.ID, postContent(post), author, message)
	if err != nil {
		return "", err
	}
	return info.Hash, nil
}

func (s *Service) CreatePost(ctx context.Context, session Session, input BlogInput) (map[string]any, error) {
	if err := s.require(session, rbac.ActionManageBlog); err != nil {
		return nil, err
	}
	input, err := validateBlogInput(input)
	if err != nil {
		return nil, err
	}
	slug, err := s.uniqueSlug(ctx, blog.Slugify(input.Title), "")
	if err != nil {
		return nil, err
	}
	post := store.BlogPost{
		ID:             util.NewID("post"),
		Slug:           slug,
		Title:          input.Title,
		Content:        input.Content,
		Excerpt:        input.Excerpt,
		Category:       input.Category,
		Tags:           input.Tags,
		Featured:       input.Featured,
		Status:         blog.StatusDraft,
		AuthorID:       session.UserID,
		AuthorName:     session.UserName,
		ReadingTime:    blog.ReadingTime(blog.StripHTML(input.Content)),
		PlatformStatus: map[string]store.PlatformStatus{},
	}
	hash, err := s.commitPost(post, session.UserName, "Create post")
	if err != nil {
		return nil, err
	}
	post.RevisionHash = hash
	if err := s.store.InsertBlogPost(ctx, post); err != nil {
		if s.git != nil {
			_ = s.git.Remove(post.ID)
		}
		return nil, err
	}
	s.log.Info("blog post created", "post", post.ID, "slug", post.Slug, "author", session.UserID)
	created, err := s.store.GetBlogPost(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	return blogPayload(created, true), nil
}

func (s *Service) UpdatePost(ctx context.Context, session Session, postID string, input BlogInput) (map[string]any, error) {
	if err := s.require(session, rbac.ActionManageBlog); err != nil {
		return nil, err
	}
	post, err := s.store.GetBlogPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	input, err = validateBlogInput(input)
	if err != nil {
		return nil, err
	}
	// Published slugs are permanent links.
	if post.Status != blog.StatusPublished && input.Title != post.Title {
		if post.Slug, err = s.uniqueSlug(ctx, blog.Slugify(input.Title), post.ID); err != nil {
			return nil, err
		}
	}
	post.Title = input.Title
	post.Content = input.Content
	post.Excerpt = input.Excerpt
	post.Category = input.Category
	post.Tags = input.Tags
	post.Featured = input.Featured
	post.ReadingTime = blog.ReadingTime(blog.StripHTML(input.Content))
	hash, err := s.commitPost(post, session.UserName, "Update post")
	if err != nil {
		return nil, err
	}
	if hash != "" {
		post.RevisionHash = hash
	}
	if err := s.store.UpdateBlogPost(ctx, post); err != nil {
		return nil, err
	}
	updated, err := s.store.GetBlogPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	s.indexPost(updated)
	return blogPayload(updated, true), nil
}

func (s *Service) DeletePost(ctx context.Context, session Session, postID string) error {
	if err := s.require(session, rbac.ActionManageBlog); err != nil {
		return err
	}
	if err := s.store.DeleteBlogPost(ctx, postID); err != nil {
		return err
	}
	if s.git != nil {
		if err := s.git.Remove(postID); err != nil {
			s.log.Warn("remove post history failed", "post", postID, "error", err.Error())
		}
	}
	if s.search != nil {
		s.search.DeletePost(postID)
	}
	s.log.Info("blog post deleted", "post", postID, "by", session.UserID)
	return nil
}

// PublishPost puts a post live now, or schedules it when scheduleFor lies in
// the future.
func (s *Service) PublishPost(ctx context.Context, session Session, postID string, input PublishInput) (map[string]any, error) {
	if err := s.require(session, rbac.ActionManageBlog); err != nil {
		return nil, err
	}
	post, err := s.store.GetBlogPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	platforms := make([]string, 0, len(input.Platforms))
	for _, p := range input.Platforms {
		p = strings.ToLower(strings.TrimSpace(p))
		if !blog.Platforms[p] {
			return nil, validationError("unknown platform", map[string]any{"platform": p})
		}
		platforms = append(platforms, p)
	}
	if len(platforms) > 0 {
		post.PlatformSelection = platforms
	}

	now := s.now()
	if input.ScheduleFor != nil && input.ScheduleFor.After(now) {
		at := input.ScheduleFor.UTC()
		post.Status = blog.StatusScheduled
		post.ScheduledFor = &at
		if err := s.store.UpdateBlogPost(ctx, post); err != nil {
			return nil, err
		}
		s.log.Info("blog post scheduled", "post", post.ID, "at", at.Format(time.RFC3339))
		s.indexPost(post)
		return blogPayload(post, false), nil
	}

	post.ScheduledFor = nil
	blog.MarkPublished(&post, now)
	if err := s.store.UpdateBlogPost(ctx, post); err != nil {
		return nil, err
	}
	s.log.Info("blog post published", "post", post.ID, "slug", post.Slug)
	s.onPublished(ctx, post)
	return blogPayload(post, false), nil
}

// UnpublishPost returns a post to draft and drops it from search.
func (s *Service) UnpublishPost(ctx context.Context, session Session, postID string) (map[string]any, error) {
	if err := s.require(session, rbac.ActionManageBlog); err != nil {
		return nil, err
	}
	post, err := s.store.GetBlogPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	post.Status = blog.StatusDraft
	post.ScheduledFor = nil
	if err := s.store.UpdateBlogPost(ctx, post); err != nil {
		return nil, err
	}
	s.indexPost(post)
	return blogPayload(post, false), nil
}

func (s *Service) AdminListPosts(ctx context.Context, session Session, filter store.BlogFilter) ([]map[string]any, error) {
	if err := s.require(session, rbac.ActionManageBlog); err != nil {
		return nil, err
	}
	return s.listPosts(ctx, filter)
}

func (s *Service) AdminGetPost(ctx context.Context, session Session, postID string) (map[string]any, error) {
	if err := s.require(session, rbac.ActionManageBlog); err != nil {
		return nil, err
	}
	post, err := s.store.GetBlogPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	return blogPayload(post, true), nil
}

func (s *Service) listPosts(ctx context.Context, filter store.BlogFilter) ([]map[string]any, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultBlogPage
	}
	if filter.Limit > maxBlogPage {
		filter.Limit = maxBlogPage
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	posts, err := s.store.ListBlogPosts(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(posts))
	for _, p := range posts {
		out = append(out, blogPayload(p, false))
	}
	return out, nil
}

func (s *Service) requireHistory(session Session) error {
	if err := s.require(session, rbac.ActionManageBlog); err != nil {
		return err
	}
	if s.git == nil {
		return domainError(http.StatusServiceUnavailable, "HISTORY_UNAVAILABLE", "Revision history is not configured", nil)
	}
	return nil
}

func (s *Service) PostRevisions(ctx context.Context, session Session, postID string) ([]map[string]any, error) {
	if err := s.requireHistory(session); err != nil {
		return nil, err
	}
	if _, err := s.store.GetBlogPost(ctx, postID); err != nil {
		return nil, err
	}
	history, err := s.git.History(postID, 50)
	if errors.Is(err, gitrepo.ErrNoHistory) {
		return []map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(history))
	for _, c := range history {
		out = append(out, commitPayload(c))
	}
	return out, nil
}

func (s *Service) PostRevision(ctx context.Context, session Session, postID, hash string) (map[string]any, error) {
	if err := s.requireHistory(session); err != nil {
		return nil, err
	}
	content, info, err := s.git.Revision(postID, hash)
	if err != nil {
		return nil, err
	}
	return map[string]any{"revision": commitPayload(info), "content": content}, nil
}

// ComparePostRevisions lists the fields that differ between two revisions.
func (s *Service) ComparePostRevisions(ctx context.Context, session Session, postID, fromHash, toHash string) (map[string]any, error) {
	if err := s.requireHistory(session); err != nil {
		return nil, err
	}
	if fromHash == "" || toHash == "" {
		return nil, validationError("from and to are required", nil)
	}
	from, fromInfo, err := s.git.Revision(postID, fromHash)
	if err != nil {
		return nil, err
	}
	to, toInfo, err := s.git.Revision(postID, toHash)
	if err != nil {
		return nil, err
	}
	changes := gitrepo.DiffFields(from, to)
	items := make([]map[string]any, 0, len(changes))
	for _, c := range changes {
		items = append(items, map[string]any{"field": c.Field, "before": c.Before, "after": c.After})
	}
	return map[string]any{
		"from":    commitPayload(fromInfo),
		"to":      commitPayload(toInfo),
		"changes": items,
	}, nil
}

// ListPublishedPosts is the public blog index.
func (s *Service) ListPublishedPosts(ctx context.Context, filter store.BlogFilter) ([]map[string]any, error) {
	filter.Status = blog.StatusPublished
	return s.listPosts(ctx, filter)
}

// ReadPost returns a published post by slug and counts the view.
func (s *Service) ReadPost(ctx context.Context, slug string) (map[string]any, error) {
	post, err := s.publishedPost(ctx, slug)
	if err != nil {
		return nil, err
	}
	views, err := s.store.IncrementBlogCounter(ctx, post.ID, "views")
	if err != nil {
		s.log.Warn("count view failed", "post", post.ID, "error", err.Error())
	} else {
		post.Views = views
	}
	return blogPayload(post, true), nil
}

// CountEngagement bumps likes or shares on a published post.
func (s *Service) CountEngagement(ctx context.Context, slug, counter string) (map[string]any, error) {
	if counter != "likes" && counter != "shares" {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	post, err := s.publishedPost(ctx, slug)
	if err != nil {
		return nil, err
	}
	value, err := s.store.IncrementBlogCounter(ctx, post.ID, counter)
	if err != nil {
		return nil, err
	}
	return map[string]any{"id": post.ID, counter: value}, nil
}

func (s *Service) publishedPost(ctx context.Context, slug string) (store.BlogPost, error) {
	post, err := s.store.GetBlogPostBySlug(ctx, strings.TrimSpace(slug))
	if err != nil {
		return store.BlogPost{}, err
	}
	if post.Status != blog.StatusPublished {
		return store.BlogPost{}, sql.ErrNoRows
	}
	return post, nil
}

// RunScheduledPublish is the cron entry point. It only runs when the
// caller presents CRON_SECRET.
func (s *Service) RunScheduledPublish(ctx context.Context, secret string) (int, error) {
	if s.cfg.CronSecret == "" {
		return 0, domainError(http.StatusServiceUnavailable, "CRON_DISABLED", "CRON_SECRET is not configured", nil)
	}
	if subtle.ConstantTimeCompare([]byte(secret), []byte(s.cfg.CronSecret)) != 1 {
		return 0, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
	}
	return s.publisher.PublishDue(ctx)
}
