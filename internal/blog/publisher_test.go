package blog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cryptorafts/api/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type memoryPosts struct {
	mu      sync.Mutex
	posts   []store.BlogPost
	failIDs map[string]bool
	listed  int
}

func (m *memoryPosts) ListDueScheduledPosts(_ context.Context, now time.Time) ([]store.BlogPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listed++
	due := make([]store.BlogPost, 0)
	for _, post := range m.posts {
		if post.Status == StatusScheduled && post.ScheduledFor != nil && !post.ScheduledFor.After(now) {
			due = append(due, post)
		}
	}
	return due, nil
}

func (m *memoryPosts) UpdateBlogPost(_ context.Context, post store.BlogPost) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failIDs[post.ID] {
		return errors.New("update failed")
	}
	for i := range m.posts {
		if m.posts[i].ID == post.ID {
			m.posts[i] = post
		}
	}
	return nil
}

func (m *memoryPosts) get(id string) store.BlogPost {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, post := range m.posts {
		if post.ID == id {
			return post
		}
	}
	return store.BlogPost{}
}

func at(t time.Time) *time.Time { return &t }

func TestPublishDueOnlyPublishesDuePosts(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	posts := &memoryPosts{
		failIDs: map[string]bool{"post_fail": true},
		posts: []store.BlogPost{
			{ID: "post_due", Status: StatusScheduled, ScheduledFor: at(now.Add(-time.Minute)), PlatformSelection: []string{"website", "linkedin"}},
			{ID: "post_later", Status: StatusScheduled, ScheduledFor: at(now.Add(time.Hour))},
			{ID: "post_draft", Status: StatusDraft},
			{ID: "post_fail", Status: StatusScheduled, ScheduledFor: at(now.Add(-time.Hour))},
		},
	}
	p := NewPublisher(posts, time.Minute, nil)
	p.now = func() time.Time { return now }
	var hooked []string
	p.OnPublished(func(_ context.Context, post store.BlogPost) { hooked = append(hooked, post.ID) })

	count, err := p.PublishDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, []string{"post_due"}, hooked)

	due := posts.get("post_due")
	assert.Equal(t, StatusPublished, due.Status)
	require.NotNil(t, due.PublishedAt)
	assert.True(t, due.PublishedAt.Equal(now))
	assert.True(t, due.PlatformStatus["website"].Posted)
	assert.False(t, due.PlatformStatus["linkedin"].Posted)

	assert.Equal(t, StatusScheduled, posts.get("post_later").Status)
	assert.Equal(t, StatusDraft, posts.get("post_draft").Status)
	assert.Equal(t, StatusScheduled, posts.get("post_fail").Status)
}

func TestMarkPublishedDefaultsToWebsite(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	post := store.BlogPost{ID: "post_1", Status: StatusDraft}
	MarkPublished(&post, now)
	assert.Equal(t, []string{"website"}, post.PlatformSelection)
	assert.Len(t, post.PlatformStatus, 1)
	assert.True(t, post.PlatformStatus["website"].Posted)
}

func TestPublisherStartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	posts := &memoryPosts{}
	p := NewPublisher(posts, 5*time.Millisecond, nil)
	p.Start(context.Background())
	p.Start(context.Background())

	assert.Eventually(t, func() bool {
		posts.mu.Lock()
		defer posts.mu.Unlock()
		return posts.listed > 0
	}, time.Second, 5*time.Millisecond)

	p.Stop()
	p.Stop()
}
