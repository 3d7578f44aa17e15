package search

import (
	"context"
	"errors"
	"sync"

	"cryptorafts/api/internal/logger"
)

// ErrIndexUnavailable is returned by ReindexAll when Meilisearch is not
// configured or not reachable.
var ErrIndexUnavailable = errors.New("search index unavailable")

// Index is a search backend that also accepts writes.
type Index interface {
	Searcher
	IndexProjects(records []ProjectRecord) error
	IndexPosts(records []PostRecord) error
	DeleteProject(id string) error
	DeletePost(id string) error
}

// RecordLoader reads every searchable record from the primary store.
type RecordLoader interface {
	LoadAllRecords(ctx context.Context) ([]ProjectRecord, []PostRecord, error)
}

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	index    Index
	fallback Searcher
	loader   RecordLoader
	log      *logger.Logger
	pending  sync.WaitGroup
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, pgfts *PgFTS, log *logger.Logger) *Service {
	var index Index
	if meili != nil {
		index = meili
	}
	var fallback Searcher
	var loader RecordLoader
	if pgfts != nil {
		fallback = pgfts
		loader = pgfts
	}
	return newService(index, fallback, loader, log)
}

func newService(index Index, fallback Searcher, loader RecordLoader, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{index: index, fallback: fallback, loader: loader, log: log.With("component", "search")}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
// Errors are logged and produce an empty response.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.index != nil && s.index.Healthy() {
		results, total, err := s.index.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.log.Warn("meilisearch error, falling back to pgfts", "error", err)
	}
	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.log.Error("pgfts search failed", "error", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexProject pushes a project to the index in the background. Drafts are
// removed instead.
func (s *Service) IndexProject(record ProjectRecord) {
	if !record.Searchable() {
		s.async("delete project", record.ID, func(idx Index) error { return idx.DeleteProject(record.ID) })
		return
	}
	s.async("index project", record.ID, func(idx Index) error { return idx.IndexProjects([]ProjectRecord{record}) })
}

// IndexPost pushes a post to the index in the background. Unpublished posts
// are removed instead.
func (s *Service) IndexPost(record PostRecord) {
	if !record.Searchable() {
		s.DeletePost(record.ID)
		return
	}
	s.async("index post", record.ID, func(idx Index) error { return idx.IndexPosts([]PostRecord{record}) })
}

func (s *Service) DeletePost(id string) {
	s.async("delete post", id, func(idx Index) error { return idx.DeletePost(id) })
}

func (s *Service) async(op, id string, fn func(Index) error) {
	if s.index == nil || !s.index.Healthy() {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := fn(s.index); err != nil {
			s.log.Warn(op+" failed", "id", id, "error", err)
		}
	}()
}

// Wait blocks until background index writes have finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

// ReindexCounts reports how many records a reindex pushed.
type ReindexCounts struct {
	Projects int `json:"projects"`
	Posts    int `json:"posts"`
}

// ReindexAll reloads every searchable record from PostgreSQL into
// Meilisearch.
func (s *Service) ReindexAll(ctx context.Context) (ReindexCounts, error) {
	if s.index == nil || !s.index.Healthy() || s.loader == nil {
		return ReindexCounts{}, ErrIndexUnavailable
	}
	projects, posts, err := s.loader.LoadAllRecords(ctx)
	if err != nil {
		return ReindexCounts{}, err
	}
	if err := s.index.IndexProjects(projects); err != nil {
		return ReindexCounts{}, err
	}
	if err := s.index.IndexPosts(posts); err != nil {
		return ReindexCounts{Projects: len(projects)}, err
	}
	s.log.Info("reindex complete", "projects", len(projects), "posts", len(posts))
	return ReindexCounts{Projects: len(projects), Posts: len(posts)}, nil
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
