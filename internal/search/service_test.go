package search

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeIndex struct {
	mu       sync.Mutex
	healthy  bool
	err      error
	results  []Result
	projects []ProjectRecord
	posts    []PostRecord
	deleted  []string
}

func (f *fakeIndex) Healthy() bool { return f.healthy }

func (f *fakeIndex) Search(context.Context, Query) ([]Result, int, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.results, len(f.results), nil
}

func (f *fakeIndex) IndexProjects(records []ProjectRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects = append(f.projects, records...)
	return nil
}

func (f *fakeIndex) IndexPosts(records []PostRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, records...)
	return nil
}

func (f *fakeIndex) DeleteProject(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeIndex) DeletePost(id string) error { return f.DeleteProject(id) }

type fakeFallback struct {
	calls   int
	results []Result
	err     error
}

func (f *fakeFallback) Healthy() bool { return true }

func (f *fakeFallback) Search(context.Context, Query) ([]Result, int, error) {
	f.calls++
	return f.results, len(f.results), f.err
}

type fakeLoader struct {
	projects []ProjectRecord
	posts    []PostRecord
}

func (f fakeLoader) LoadAllRecords(context.Context) ([]ProjectRecord, []PostRecord, error) {
	return f.projects, f.posts, nil
}

func TestSearchPrefersHealthyIndex(t *testing.T) {
	index := &fakeIndex{healthy: true, results: []Result{{Type: ResultProject, ID: "prj_1"}}}
	fallback := &fakeFallback{}
	svc := newService(index, fallback, nil, nil)

	resp := svc.Search(context.Background(), Query{Text: "defi"})
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "defi", resp.Query)
	assert.Zero(t, fallback.calls)
}

func TestSearchFallsBack(t *testing.T) {
	fallback := &fakeFallback{results: []Result{{Type: ResultPost, ID: "post_1"}}}

	unhealthy := newService(&fakeIndex{healthy: false}, fallback, nil, nil)
	resp := unhealthy.Search(context.Background(), Query{Text: "launch"})
	assert.Equal(t, "post_1", resp.Results[0].ID)

	failing := newService(&fakeIndex{healthy: true, err: errors.New("boom")}, fallback, nil, nil)
	resp = failing.Search(context.Background(), Query{Text: "launch"})
	assert.Len(t, resp.Results, 1)
	assert.Equal(t, 2, fallback.calls)

	broken := newService(nil, &fakeFallback{err: errors.New("db down")}, nil, nil)
	resp = broken.Search(context.Background(), Query{Text: "launch"})
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
}

func TestIndexingRespectsVisibility(t *testing.T) {
	defer goleak.VerifyNone(t)

	index := &fakeIndex{healthy: true}
	svc := newService(index, nil, nil, nil)

	svc.IndexProject(ProjectRecord{ID: "prj_draft", Status: "draft"})
	svc.IndexProject(ProjectRecord{ID: "prj_live", Status: "submitted"})
	svc.IndexPost(PostRecord{ID: "post_draft", Status: "draft"})
	svc.IndexPost(PostRecord{ID: "post_live", Status: "published"})
	svc.Wait()

	require.Len(t, index.projects, 1)
	assert.Equal(t, "prj_live", index.projects[0].ID)
	require.Len(t, index.posts, 1)
	assert.Equal(t, "post_live", index.posts[0].ID)
	assert.ElementsMatch(t, []string{"prj_draft", "post_draft"}, index.deleted)
}

func TestIndexingSkippedWithoutIndex(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc := newService(nil, nil, nil, nil)
	svc.IndexProject(ProjectRecord{ID: "prj_1", Status: "submitted"})
	svc.Wait()

	_, err := svc.ReindexAll(context.Background())
	assert.ErrorIs(t, err, ErrIndexUnavailable)
}

func TestReindexAll(t *testing.T) {
	index := &fakeIndex{healthy: true}
	loader := fakeLoader{
		projects: []ProjectRecord{{ID: "prj_1"}, {ID: "prj_2"}},
		posts:    []PostRecord{{ID: "post_1"}},
	}
	svc := newService(index, nil, loader, nil)

	counts, err := svc.ReindexAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReindexCounts{Projects: 2, Posts: 1}, counts)
	assert.Len(t, index.projects, 2)
}

func TestDecodeHitPrefersHighlight(t *testing.T) {
	raw := func(v any) json.RawMessage {
		b, _ := json.Marshal(v)
		return b
	}
	hit := meili.Hit{
		"id":      raw("post_1"),
		"slug":    raw("hello-world"),
		"title":   raw("Hello World"),
		"excerpt": raw("An intro"),
		"tags":    raw([]string{"intro"}),
		"_formatted": raw(map[string]any{
			"title": "<mark>Hello</mark> World",
			"tags":  []string{"intro"},
		}),
	}

	doc, err := decodeHit(hit)
	require.NoError(t, err)
	got := doc.result(ResultPost)
	assert.Equal(t, Result{
		Type:    ResultPost,
		ID:      "post_1",
		Title:   "<mark>Hello</mark> World",
		Snippet: "An intro",
		Slug:    "hello-world",
	}, got)
}
