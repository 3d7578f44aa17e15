// Package gitrepo keeps the revision history of blog posts in one git
// repository per post. Each revision is a single post.json commit on main.
package gitrepo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"cryptorafts/api/internal/store"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const (
	contentFile   = "post.json"
	mainBranch    = "main"
	defaultAuthor = "CryptoRafts"
	signerDomain  = "local.cryptorafts.com"
)

var (
	ErrNoHistory       = errors.New("post has no revision history")
	ErrUnknownRevision = errors.New("unknown revision")
)

var mainRef = plumbing.NewBranchReferenceName(mainBranch)

// Content is the versioned part of a post.
type Content struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Excerpt  string   `json:"excerpt"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

type Service struct {
	baseDir string
	mu      sync.Mutex
	posts   map[string]*sync.Mutex
	now     func() time.Time
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		posts:   make(map[string]*sync.Mutex),
		now:     time.Now,
	}
}

// locked runs fn while holding the post's mutex. Repositories are opened
// fresh for every call.
func (s *Service) locked(postID string, fn func() error) error {
	s.mu.Lock()
	lock, ok := s.posts[postID]
	if !ok {
		lock = &sync.Mutex{}
		s.posts[postID] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn()
}

// Commit records content as the newest revision, creating the repository on
// first use. Content equal to the head returns the head without committing.
func (s *Service) Commit(postID string, content Content, author, message string) (store.CommitInfo, error) {
	var info store.CommitInfo
	err := s.locked(postID, func() error {
		repo, err := s.openOrInit(postID)
		if err != nil {
			return err
		}
		if head, err := headCommit(repo); err == nil {
			if current, err := decodeCommit(head); err == nil && !HasChanges(current, content) {
				info = commitInfo(head)
				return nil
			}
		}
		created, err := s.write(repo, content, author, message)
		if err != nil {
			return err
		}
		info = commitInfo(created)
		return nil
	})
	return info, err
}

// Head returns the newest revision.
func (s *Service) Head(postID string) (Content, store.CommitInfo, error) {
	return s.read(postID, func(repo *git.Repository) (*object.Commit, error) {
		return headCommit(repo)
	})
}

// Revision returns one revision by full or abbreviated hash.
func (s *Service) Revision(postID, hash string) (Content, store.CommitInfo, error) {
	return s.read(postID, func(repo *git.Repository) (*object.Commit, error) {
		return lookupCommit(repo, hash)
	})
}

func (s *Service) read(postID string, pick func(*git.Repository) (*object.Commit, error)) (Content, store.CommitInfo, error) {
	var (
		content Content
		info    store.CommitInfo
	)
	err := s.locked(postID, func() error {
		repo, err := s.open(postID)
		if err != nil {
			return err
		}
		c, err := pick(repo)
		if err != nil {
			return err
		}
		if content, err = decodeCommit(c); err != nil {
			return err
		}
		info = commitInfo(c)
		return nil
	})
	return content, info, err
}

// History lists revisions newest first. A limit of zero returns all.
func (s *Service) History(postID string, limit int) ([]store.CommitInfo, error) {
	items := make([]store.CommitInfo, 0)
	err := s.locked(postID, func() error {
		repo, err := s.open(postID)
		if err != nil {
			return err
		}
		head, err := headCommit(repo)
		if err != nil {
			return err
		}
		iter, err := repo.Log(&git.LogOptions{From: head.Hash})
		if err != nil {
			return fmt.Errorf("read log: %w", err)
		}
		defer iter.Close()

		err = iter.ForEach(func(c *object.Commit) error {
			items = append(items, commitInfo(c))
			if limit > 0 && len(items) == limit {
				return io.EOF
			}
			return nil
		})
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("walk log: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// TagPublished tags the head as published-<UTC timestamp>. Tagging the same
// instant twice is a no-op.
func (s *Service) TagPublished(postID string, at time.Time) error {
	return s.locked(postID, func() error {
		repo, err := s.open(postID)
		if err != nil {
			return err
		}
		head, err := headCommit(repo)
		if err != nil {
			return err
		}
		name := "published-" + at.UTC().Format("20060102T150405")
		_, err = repo.CreateTag(name, head.Hash, &git.CreateTagOptions{
			Tagger:  signature("publisher", at),
			Message: name,
		})
		if err != nil && !errors.Is(err, git.ErrTagExists) {
			return fmt.Errorf("tag %s: %w", name, err)
		}
		return nil
	})
}

// Remove deletes the post's repository.
func (s *Service) Remove(postID string) error {
	return s.locked(postID, func() error {
		if err := os.RemoveAll(s.repoPath(postID)); err != nil {
			return fmt.Errorf("remove history of %s: %w", postID, err)
		}
		return nil
	})
}

func (s *Service) repoPath(postID string) string {
	return filepath.Join(s.baseDir, filepath.Base(postID))
}

func (s *Service) open(postID string) (*git.Repository, error) {
	repo, err := git.PlainOpen(s.repoPath(postID))
	switch {
	case errors.Is(err, git.ErrRepositoryNotExists):
		return nil, ErrNoHistory
	case err != nil:
		return nil, fmt.Errorf("open history of %s: %w", postID, err)
	}
	return repo, nil
}

func (s *Service) openOrInit(postID string) (*git.Repository, error) {
	repo, err := s.open(postID)
	if !errors.Is(err, ErrNoHistory) {
		return repo, err
	}
	path := s.repoPath(postID)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	repo, err = git.PlainInitWithOptions(path, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: mainRef},
	})
	if err != nil {
		return nil, fmt.Errorf("init history of %s: %w", postID, err)
	}
	return repo, nil
}

// write stores content through the worktree filesystem and commits it.
func (s *Service) write(repo *git.Repository, content Content, author, message string) (*object.Commit, error) {
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("worktree: %w", err)
	}
	payload, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode post: %w", err)
	}

	f, err := wt.Filesystem.Create(contentFile)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", contentFile, err)
	}
	_, werr := f.Write(append(payload, '\n'))
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return nil, fmt.Errorf("write %s: %w", contentFile, werr)
	}
	if _, err := wt.Add(contentFile); err != nil {
		return nil, fmt.Errorf("stage %s: %w", contentFile, err)
	}

	if strings.TrimSpace(author) == "" {
		author = defaultAuthor
	}
	hash, err := wt.Commit(message, &git.CommitOptions{Author: signature(author, s.now())})
	if err != nil {
		return nil, fmt.Errorf("commit post: %w", err)
	}
	c, err := repo.CommitObject(hash)
	if err != nil {
		return nil, fmt.Errorf("load commit %s: %w", hash, err)
	}
	return c, nil
}

func headCommit(repo *git.Repository) (*object.Commit, error) {
	ref, err := repo.Reference(mainRef, true)
	switch {
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		return nil, ErrNoHistory
	case err != nil:
		return nil, fmt.Errorf("resolve %s: %w", mainBranch, err)
	}
	c, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("load head: %w", err)
	}
	return c, nil
}

// lookupCommit accepts a full 40-character hash or any unambiguous prefix.
func lookupCommit(repo *git.Repository, hash string) (*object.Commit, error) {
	target := plumbing.NewHash(hash)
	if len(hash) != 40 {
		resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
		if err != nil {
			return nil, fmt.Errorf("revision %s: %w", hash, ErrUnknownRevision)
		}
		target = *resolved
	}
	c, err := repo.CommitObject(target)
	switch {
	case errors.Is(err, plumbing.ErrObjectNotFound):
		return nil, fmt.Errorf("revision %s: %w", hash, ErrUnknownRevision)
	case err != nil:
		return nil, fmt.Errorf("load revision %s: %w", hash, err)
	}
	return c, nil
}

func decodeCommit(c *object.Commit) (Content, error) {
	file, err := c.File(contentFile)
	if err != nil {
		return Content{}, fmt.Errorf("%s at %s: %w", contentFile, c.Hash, err)
	}
	raw, err := file.Contents()
	if err != nil {
		return Content{}, fmt.Errorf("read %s: %w", contentFile, err)
	}
	var content Content
	if err := json.Unmarshal([]byte(raw), &content); err != nil {
		return Content{}, fmt.Errorf("decode %s: %w", contentFile, err)
	}
	return content, nil
}

func commitInfo(c *object.Commit) store.CommitInfo {
	return store.CommitInfo{
		Hash:      c.Hash.String()[:7],
		Message:   strings.TrimSpace(c.Message),
		Author:    c.Author.Name,
		CreatedAt: c.Author.When,
	}
}

// signature derives a local address from the display name.
func signature(name string, when time.Time) *object.Signature {
	local := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == ' ', r == '-', r == '_':
			return '.'
		}
		return -1
	}, name)
	if local == "" {
		local = "user"
	}
	return &object.Signature{Name: name, Email: local + "@" + signerDomain, When: when}
}

// FieldChange is one field that differs between two revisions.
type FieldChange struct {
	Field  string `json:"field"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// DiffFields lists changed fields in display order.
func DiffFields(from, to Content) []FieldChange {
	changes := make([]FieldChange, 0, 5)
	add := func(field, before, after string) {
		if before != after {
			changes = append(changes, FieldChange{Field: field, Before: before, After: after})
		}
	}
	add("title", from.Title, to.Title)
	add("excerpt", from.Excerpt, to.Excerpt)
	add("category", from.Category, to.Category)
	add("tags", strings.Join(from.Tags, ", "), strings.Join(to.Tags, ", "))
	add("content", from.Content, to.Content)
	return changes
}

func HasChanges(from, to Content) bool {
	return from.Title != to.Title ||
		from.Content != to.Content ||
		from.Excerpt != to.Excerpt ||
		from.Category != to.Category ||
		!slices.Equal(from.Tags, to.Tags)
}
