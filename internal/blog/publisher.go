package blog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cryptorafts/api/internal/logger"
	"cryptorafts/api/internal/store"
)

const (
	StatusDraft     = "draft"
	StatusScheduled = "scheduled"
	StatusPublished = "published"

	PlatformWebsite = "website"
)

// Platforms that may be selected when publishing. Only the website is posted
// by this service; the rest are recorded as pending.
var Platforms = map[string]bool{
	PlatformWebsite: true,
	"linkedin":      true,
	"twitter":       true,
	"medium":        true,
	"telegram":      true,
}

// MarkPublished sets the post live at now and records platform status.
func MarkPublished(post *store.BlogPost, now time.Time) {
	post.Status = StatusPublished
	if post.PublishedAt == nil {
		t := now
		post.PublishedAt = &t
	}
	selection := post.PlatformSelection
	if len(selection) == 0 {
		selection = []string{PlatformWebsite}
		post.PlatformSelection = selection
	}
	status := make(map[string]store.PlatformStatus, len(selection))
	for _, platform := range selection {
		if platform == PlatformWebsite {
			t := now
			status[platform] = store.PlatformStatus{Posted: true, PostedAt: &t}
			continue
		}
		status[platform] = store.PlatformStatus{Posted: false}
	}
	post.PlatformStatus = status
}

// PostStore is the persistence the publisher needs.
type PostStore interface {
	ListDueScheduledPosts(ctx context.Context, now time.Time) ([]store.BlogPost, error)
	UpdateBlogPost(ctx context.Context, post store.BlogPost) error
}

// Publisher moves scheduled posts to published once their time has come.
type Publisher struct {
	store     PostStore
	interval  time.Duration
	log       *logger.Logger
	now       func() time.Time
	published func(ctx context.Context, post store.BlogPost)

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func NewPublisher(st PostStore, interval time.Duration, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.Nop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Publisher{
		store:    st,
		interval: interval,
		log:      log.With("component", "blog_publisher"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// OnPublished registers a callback run after each post goes live.
func (p *Publisher) OnPublished(fn func(ctx context.Context, post store.BlogPost)) {
	p.published = fn
}

// PublishDue publishes every due post and returns how many went live. A
// failing post is logged and skipped.
func (p *Publisher) PublishDue(ctx context.Context) (int, error) {
	now := p.now()
	due, err := p.store.ListDueScheduledPosts(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list due posts: %w", err)
	}
	count := 0
	for _, post := range due {
		MarkPublished(&post, now)
		if err := p.store.UpdateBlogPost(ctx, post); err != nil {
			p.log.Error("publish scheduled post failed", "post_id", post.ID, "error", err)
			continue
		}
		count++
		p.log.Info("scheduled post published", "post_id", post.ID, "slug", post.Slug)
		if p.published != nil {
			p.published(ctx, post)
		}
	}
	return count, nil
}

// Start runs PublishDue on every tick until Stop is called or ctx ends.
func (p *Publisher) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		return
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.loop(ctx, p.stop, p.done)
}

func (p *Publisher) loop(ctx context.Context, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if _, err := p.PublishDue(ctx); err != nil {
				p.log.Warn("scheduled publish run failed", "error", err)
			}
		}
	}
}

// Stop ends the loop and waits for an in-flight run to finish.
func (p *Publisher) Stop() {
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.stop, p.done = nil, nil
	p.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}
