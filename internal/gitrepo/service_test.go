package gitrepo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
)

func TestPostHistoryLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	initial := Content{
		Title:    "Launching on Base",
		Content:  "First draft.",
		Excerpt:  "First draft.",
		Category: "announcements",
		Tags:     []string{"base", "launch"},
	}
	first, err := svc.Commit("post_1", initial, "Avery Stone", "Create post")
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if len(first.Hash) != 7 {
		t.Fatalf("expected short hash, got %q", first.Hash)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "post_1", contentFile)); err != nil {
		t.Fatalf("content file missing: %v", err)
	}

	updated := initial
	updated.Content = "Second draft with more detail."
	second, err := svc.Commit("post_1", updated, "Avery Stone", "Update post")
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if second.Hash == first.Hash {
		t.Fatal("expected a new revision")
	}

	again, err := svc.Commit("post_1", updated, "Avery Stone", "No-op save")
	if err != nil {
		t.Fatalf("Commit() unchanged error = %v", err)
	}
	if again.Hash != second.Hash {
		t.Fatalf("unchanged content should not create a commit: %s != %s", again.Hash, second.Hash)
	}

	history, err := svc.History("post_1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 revisions, got %d", len(history))
	}
	if history[0].Message != "Update post" || history[1].Message != "Create post" {
		t.Fatalf("unexpected history order: %+v", history)
	}
	if history[0].Author != "Avery Stone" {
		t.Fatalf("unexpected author %q", history[0].Author)
	}

	old, info, err := svc.Revision("post_1", first.Hash)
	if err != nil {
		t.Fatalf("Revision() error = %v", err)
	}
	if old.Content != "First draft." || info.Hash != first.Hash {
		t.Fatalf("unexpected revision: %+v %+v", old, info)
	}

	head, headInfo, err := svc.Head("post_1")
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}
	if head.Content != updated.Content || headInfo.Hash != second.Hash {
		t.Fatalf("unexpected head: %+v", head)
	}

	limited, err := svc.History("post_1", 1)
	if err != nil {
		t.Fatalf("History() limited error = %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 revision, got %d", len(limited))
	}
}

func TestMissingHistory(t *testing.T) {
	svc := New(t.TempDir())
	if _, err := svc.History("post_missing", 10); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("History() error = %v, want ErrNoHistory", err)
	}
	if _, _, err := svc.Head("post_missing"); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("Head() error = %v, want ErrNoHistory", err)
	}
}

func TestTagPublishedAndRemove(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)
	if _, err := svc.Commit("post_1", Content{Title: "T", Content: "Body"}, "", "Create post"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	at := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	if err := svc.TagPublished("post_1", at); err != nil {
		t.Fatalf("TagPublished() error = %v", err)
	}
	if err := svc.TagPublished("post_1", at); err != nil {
		t.Fatalf("TagPublished() repeat error = %v", err)
	}

	repo, err := git.PlainOpen(filepath.Join(tempDir, "post_1"))
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	if _, err := repo.Tag("published-20260501T093000"); err != nil {
		t.Fatalf("tag missing: %v", err)
	}

	if err := svc.Remove("post_1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := svc.History("post_1", 0); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("History() after remove error = %v", err)
	}
}

func TestDiffFields(t *testing.T) {
	from := Content{Title: "A", Content: "body", Tags: []string{"x"}}
	to := Content{Title: "B", Content: "body", Tags: []string{"x", "y"}, Category: "news"}

	changes := DiffFields(from, to)
	fields := make([]string, 0, len(changes))
	for _, c := range changes {
		fields = append(fields, c.Field)
	}
	if strings.Join(fields, ",") != "title,category,tags" {
		t.Fatalf("unexpected fields %v", fields)
	}
	if changes[2].Before != "x" || changes[2].After != "x, y" {
		t.Fatalf("unexpected tags change %+v", changes[2])
	}
	if HasChanges(from, from) {
		t.Fatal("identical content reported as changed")
	}
}

func TestConcurrentCommitsSamePost(t *testing.T) {
	svc := New(t.TempDir())

	const writers = 12
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			next := Content{Title: "Post", Content: fmt.Sprintf("body-%02d", idx)}
			if _, err := svc.Commit("post_1", next, "Avery", fmt.Sprintf("Commit %02d", idx)); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			t.Fatalf("Commit() concurrent error = %v", err)
		}
	}

	history, err := svc.History("post_1", 100)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != writers {
		t.Fatalf("expected %d commits in history, got %d", writers, len(history))
	}

	head, _, err := svc.Head("post_1")
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}
	if !strings.HasPrefix(head.Content, "body-") {
		t.Fatalf("unexpected head content after concurrent commits: %+v", head)
	}
}

func TestRevisionUnknownHash(t *testing.T) {
	svc := New(t.TempDir())
	if _, err := svc.Commit("post_9", Content{Title: "Only revision", Content: "Body."}, "", "Create post"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if _, _, err := svc.Revision("post_9", "deadbee"); !errors.Is(err, ErrUnknownRevision) {
		t.Fatalf("expected ErrUnknownRevision for short hash, got %v", err)
	}
	if _, _, err := svc.Revision("post_9", strings.Repeat("ab", 20)); !errors.Is(err, ErrUnknownRevision) {
		t.Fatalf("expected ErrUnknownRevision for full hash, got %v", err)
	}
}
