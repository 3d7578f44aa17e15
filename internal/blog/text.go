// Package blog holds blog post text helpers, validation and the scheduled
// publisher.
package blog

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	WordsPerMinute   = 200
	ExcerptLength    = 160
	MinTitleLength   = 10
	MaxTitleLength   = 150
	MinContentLength = 100
	MaxContentLength = 100000
	MaxLinks         = 20
)

var (
	tagPattern     = regexp.MustCompile(`<[^>]*>`)
	nonSlugPattern = regexp.MustCompile(`[^a-z0-9]+`)
	linkPattern    = regexp.MustCompile(`<a\s+href`)
	spamPatterns   = []*regexp.Regexp{
		regexp.MustCompile(`(?i)buy\s+now`),
		regexp.MustCompile(`(?i)limited\s+time\s+offer`),
		regexp.MustCompile(`(?i)act\s+fast`),
		regexp.MustCompile(`(?i)click\s+here`),
		regexp.MustCompile(`(?i)guaranteed\s+profit`),
		regexp.MustCompile(`(?i)make\s+money\s+fast`),
		regexp.MustCompile(`(?i)risk\s+free`),
		regexp.MustCompile(`(?i)no\s+credit\s+check`),
		regexp.MustCompile(`(?i)urgent\s+act\s+now`),
		regexp.MustCompile(`(?i)get\s+rich\s+quick`),
	}
)

// Slugify lowercases the title and collapses every run of other characters
// into a single hyphen.
func Slugify(title string) string {
	slug := nonSlugPattern.ReplaceAllString(strings.ToLower(title), "-")
	return strings.Trim(slug, "-")
}

// StripHTML removes markup tags.
func StripHTML(content string) string {
	return tagPattern.ReplaceAllString(content, "")
}

// ReadingTime returns whole minutes at 200 words per minute, at least one.
func ReadingTime(content string) int {
	words := len(strings.Fields(StripHTML(content)))
	if words == 0 {
		return 1
	}
	return int(math.Ceil(float64(words) / WordsPerMinute))
}

// Excerpt returns the first 160 characters of the text, with "..." when cut.
func Excerpt(content string) string {
	text := StripHTML(content)
	if utf8.RuneCountInString(text) <= ExcerptLength {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:ExcerptLength])) + "..."
}

// Draft is the editable part of a post.
type Draft struct {
	Title    string
	Content  string
	Category string
}

// Validate returns every problem with the draft. An empty slice means it can
// be saved.
func Validate(d Draft) []string {
	problems := make([]string, 0)
	title := strings.TrimSpace(d.Title)
	text := strings.TrimSpace(StripHTML(d.Content))

	if title == "" {
		problems = append(problems, "Title is required")
	}
	if strings.TrimSpace(d.Content) == "" {
		problems = append(problems, "Content is required")
	}
	if strings.TrimSpace(d.Category) == "" {
		problems = append(problems, "Category is required")
	}
	if title != "" && utf8.RuneCountInString(title) < MinTitleLength {
		problems = append(problems, "Title must be at least 10 characters")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		problems = append(problems, "Title must be less than 150 characters")
	}
	if utf8.RuneCountInString(text) < MinContentLength {
		problems = append(problems, "Content must be at least 100 characters")
	}
	if utf8.RuneCountInString(text) > MaxContentLength {
		problems = append(problems, "Content is too long (max 100,000 characters)")
	}

	for _, pattern := range spamPatterns {
		if pattern.MatchString(title) {
			problems = append(problems, "Title contains spam-like content")
			break
		}
	}
	spam := 0
	for _, pattern := range spamPatterns {
		spam += len(pattern.FindAllStringIndex(text, -1))
	}
	if spam >= 3 {
		problems = append(problems, "Content contains multiple spam indicators")
	}
	if len(linkPattern.FindAllStringIndex(d.Content, -1)) > MaxLinks {
		problems = append(problems, "Too many links in content (max 20)")
	}
	return problems
}
