// Package search indexes projects and published blog posts in Meilisearch,
// falling back to PostgreSQL full-text search.
package search

import "context"

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultProject ResultType = "project"
	ResultPost    ResultType = "post"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type     ResultType `json:"type"`
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Snippet  string     `json:"snippet"`
	Slug     string     `json:"slug,omitempty"`
	Category string     `json:"category,omitempty"`
	Rating   string     `json:"rating,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// ProjectRecord is the data we index for a submitted project.
type ProjectRecord struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Summary string `json:"summary"`
	Sector  string `json:"sector"`
	Stage   string `json:"stage"`
	Chain   string `json:"chain"`
	Rating  string `json:"rating"`
	Score   int    `json:"score"`
	Status  string `json:"status"`
}

// Searchable reports whether the project may appear in results.
func (p ProjectRecord) Searchable() bool {
	return p.Status != "" && p.Status != "draft"
}

// PostRecord is the data we index for a blog post.
type PostRecord struct {
	ID       string   `json:"id"`
	Slug     string   `json:"slug"`
	Title    string   `json:"title"`
	Excerpt  string   `json:"excerpt"`
	Content  string   `json:"content"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
	Status   string   `json:"status"`
}

// Searchable reports whether the post may appear in results.
func (p PostRecord) Searchable() bool {
	return p.Status == "published"
}
