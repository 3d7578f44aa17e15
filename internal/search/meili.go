package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"cryptorafts/api/internal/logger"

	meili "github.com/meilisearch/meilisearch-go"
)

const healthInterval = 10 * time.Second

var errUnhealthy = errors.New("meilisearch unhealthy")

// index describes one Meilisearch index and the result type its hits map to.
type index struct {
	uid        string
	kind       ResultType
	filterable []string
	searchable []string
	sortable   []string
}

var (
	projectIndex = index{
		uid:        "cryptorafts_projects",
		kind:       ResultProject,
		filterable: []string{"sector", "stage", "chain", "rating", "status"},
		searchable: []string{"name", "summary", "sector", "chain"},
		sortable:   []string{"score"},
	}
	postIndex = index{
		uid:        "cryptorafts_posts",
		kind:       ResultPost,
		filterable: []string{"category", "tags", "status"},
		searchable: []string{"title", "excerpt", "content", "tags"},
	}
	indexes = []index{projectIndex, postIndex}
)

func indexByUID(uid string) (index, bool) {
	for _, idx := range indexes {
		if idx.uid == uid {
			return idx, true
		}
	}
	return index{}, false
}

// Meili implements Searcher on Meilisearch. A background probe flips the
// health flag so callers fall back to PostgreSQL while it is down.
type Meili struct {
	client  meili.ServiceManager
	log     *logger.Logger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili never fails on an unreachable server; the probe keeps trying.
func NewMeili(url, apiKey string, log *logger.Logger) *Meili {
	if log == nil {
		log = logger.Nop()
	}
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		log:    log.With("component", "meilisearch"),
		done:   make(chan struct{}),
	}
	if m.probe() {
		m.configure()
	} else {
		m.log.Warn("meilisearch unavailable at startup", "url", url)
	}
	go m.watch()
	return m
}

func (m *Meili) probe() bool {
	_, err := m.client.Health()
	m.healthy.Store(err == nil)
	return err == nil
}

func (m *Meili) watch() {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			was := m.healthy.Load()
			if m.probe() && !was {
				m.log.Info("meilisearch back, reapplying index settings")
				m.configure()
			}
		}
	}
}

// configure creates the indexes and applies their attribute settings.
// Creating an existing index fails harmlessly.
func (m *Meili) configure() {
	for _, idx := range indexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: idx.uid, PrimaryKey: "id"}); err != nil {
			m.log.Debug("create index", "index", idx.uid, "error", err)
		}
		handle := m.client.Index(idx.uid)

		filterable := make([]interface{}, 0, len(idx.filterable))
		for _, attr := range idx.filterable {
			filterable = append(filterable, attr)
		}
		if _, err := handle.UpdateFilterableAttributes(&filterable); err != nil {
			m.log.Warn("filterable attributes", "index", idx.uid, "error", err)
		}
		searchable := idx.searchable
		if _, err := handle.UpdateSearchableAttributes(&searchable); err != nil {
			m.log.Warn("searchable attributes", "index", idx.uid, "error", err)
		}
		if len(idx.sortable) == 0 {
			continue
		}
		sortable := idx.sortable
		if _, err := handle.UpdateSortableAttributes(&sortable); err != nil {
			m.log.Warn("sortable attributes", "index", idx.uid, "error", err)
		}
	}
}

func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search runs one multi-search across the selected indexes. A transport
// error marks the client unhealthy until the next successful probe.
func (m *Meili) Search(_ context.Context, q Query) ([]Result, int, error) {
	if !m.Healthy() {
		return nil, 0, errUnhealthy
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	queries := make([]*meili.SearchRequest, 0, len(indexes))
	for _, idx := range indexes {
		if q.FilterType != "" && q.FilterType != idx.kind {
			continue
		}
		queries = append(queries, &meili.SearchRequest{
			IndexUID:              idx.uid,
			Query:                 q.Text,
			Limit:                 int64(limit),
			Offset:                int64(q.Offset),
			AttributesToHighlight: []string{"*"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
		})
	}
	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{Queries: queries})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var (
		results []Result
		total   int
	)
	for _, res := range resp.Results {
		idx, ok := indexByUID(res.IndexUID)
		if !ok {
			continue
		}
		total += int(res.EstimatedTotalHits)
		for _, hit := range res.Hits {
			doc, err := decodeHit(hit)
			if err != nil {
				m.log.Debug("skip undecodable hit", "index", idx.uid, "error", err)
				continue
			}
			results = append(results, doc.result(idx.kind))
		}
	}
	return results, total, nil
}

// hitDoc holds the union of indexed fields for both indexes, plus the
// highlighted copies Meilisearch returns under _formatted.
type hitDoc struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Summary   string         `json:"summary"`
	Sector    string         `json:"sector"`
	Rating    string         `json:"rating"`
	Title     string         `json:"title"`
	Excerpt   string         `json:"excerpt"`
	Slug      string         `json:"slug"`
	Category  string         `json:"category"`
	Formatted map[string]any `json:"_formatted"`
}

func decodeHit(hit meili.Hit) (hitDoc, error) {
	raw, err := json.Marshal(hit)
	if err != nil {
		return hitDoc{}, err
	}
	var doc hitDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return hitDoc{}, err
	}
	return doc, nil
}

// highlighted prefers the marked-up field and falls back to the plain one.
func (d hitDoc) highlighted(key, plain string) string {
	if v, ok := d.Formatted[key].(string); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return plain
}

func (d hitDoc) result(kind ResultType) Result {
	r := Result{Type: kind, ID: d.ID}
	switch kind {
	case ResultProject:
		r.Title = d.highlighted("name", d.Name)
		r.Snippet = d.highlighted("summary", d.Summary)
		r.Category = d.Sector
		r.Rating = d.Rating
	case ResultPost:
		r.Title = d.highlighted("title", d.Title)
		r.Snippet = d.highlighted("excerpt", d.Excerpt)
		r.Slug = d.Slug
		r.Category = d.Category
	}
	return r
}

func (m *Meili) IndexProjects(records []ProjectRecord) error {
	return m.add(projectIndex, records, len(records))
}

func (m *Meili) IndexPosts(records []PostRecord) error {
	return m.add(postIndex, records, len(records))
}

func (m *Meili) add(idx index, docs any, n int) error {
	if n == 0 {
		return nil
	}
	if _, err := m.client.Index(idx.uid).AddDocuments(docs, nil); err != nil {
		return fmt.Errorf("index %s: %w", idx.uid, err)
	}
	return nil
}

func (m *Meili) DeleteProject(id string) error {
	return m.remove(projectIndex, id)
}

func (m *Meili) DeletePost(id string) error {
	return m.remove(postIndex, id)
}

func (m *Meili) remove(idx index, id string) error {
	if _, err := m.client.Index(idx.uid).DeleteDocument(id, nil); err != nil {
		return fmt.Errorf("delete %s from %s: %w", id, idx.uid, err)
	}
	return nil
}
