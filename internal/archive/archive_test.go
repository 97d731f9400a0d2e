package archive

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"paperpedia/api/internal/store"
)

func sampleView(id, title string) store.ArticleView {
	return store.ArticleView{
		ID:         id,
		AuthorID:   "u1",
		AuthorName: "Ada Lovelace",
		Title:      title,
		Content:    "Notes on the analytical engine.",
		CreatedAt:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Tags:       []string{"history", "computing"},
		References: []store.ReferenceView{{ID: "r1", Title: "Difference Engine"}},
	}
}

func TestRecordAndLookup(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "archive")
	svc := New(dir)

	commit, err := svc.Record(sampleView("a-1", "Analytical Engine"))
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if len(commit.Hash) != 7 {
		t.Fatalf("expected short hash, got %q", commit.Hash)
	}
	if commit.Author != "Ada Lovelace" || !strings.Contains(commit.Message, "Analytical Engine") {
		t.Fatalf("unexpected commit %+v", commit)
	}
	if _, err := os.Stat(filepath.Join(dir, "articles", "a-1.json")); err != nil {
		t.Fatalf("snapshot file missing: %v", err)
	}

	if _, err := svc.Record(sampleView("a-2", "Second")); err != nil {
		t.Fatalf("Record(second) error = %v", err)
	}

	entry, err := svc.Lookup("a-1")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if entry == nil {
		t.Fatal("expected archive entry")
	}
	if entry.Commit.Hash != commit.Hash {
		t.Fatalf("expected lookup to find commit %s, got %s", commit.Hash, entry.Commit.Hash)
	}
	if entry.Article.Title != "Analytical Engine" || len(entry.Article.References) != 1 || entry.Article.References[0].Title != "Difference Engine" {
		t.Fatalf("unexpected snapshot %+v", entry.Article)
	}

	history, err := svc.History(0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 || !strings.Contains(history[0].Message, "Second") {
		t.Fatalf("unexpected history %+v", history)
	}
}

func TestLookupMissing(t *testing.T) {
	svc := New(filepath.Join(t.TempDir(), "never-created"))
	entry, err := svc.Lookup("a-1")
	if err != nil || entry != nil {
		t.Fatalf("Lookup() on missing repo = %v, %v", entry, err)
	}
	history, err := svc.History(10)
	if err != nil || len(history) != 0 {
		t.Fatalf("History() on missing repo = %v, %v", history, err)
	}

	if _, err := svc.Record(sampleView("a-1", "Only")); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	entry, err = svc.Lookup("other")
	if err != nil || entry != nil {
		t.Fatalf("Lookup(unknown) = %v, %v", entry, err)
	}
}

func TestConcurrentRecords(t *testing.T) {
	svc := New(t.TempDir())

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			if _, err := svc.Record(sampleView(id, "Title "+id)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Record() error = %v", err)
	}

	history, err := svc.History(3)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected limited history of 3, got %d", len(history))
	}
}

func TestSanitizeHelpers(t *testing.T) {
	if got := sanitizeFileName("../etc/passwd"); got != "___etc_passwd" {
		t.Fatalf("sanitizeFileName() = %q", got)
	}
	if got := sanitizeEmail("Ada Lovelace"); got != "Ada.Lovelace" {
		t.Fatalf("sanitizeEmail() = %q", got)
	}
	if got := sanitizeEmail("!!!"); got != "user" {
		t.Fatalf("sanitizeEmail() = %q", got)
	}
}
