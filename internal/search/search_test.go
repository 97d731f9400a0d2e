package search

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	meili "github.com/meilisearch/meilisearch-go"

	"paperpedia/api/internal/logging"
	"paperpedia/api/internal/store"
)

type fakeBackend struct {
	healthy bool
	results []Result
	err     error
	calls   int
}

func (f *fakeBackend) Healthy() bool { return f.healthy }
func (f *fakeBackend) Search(context.Context, Query) ([]Result, int, error) {
	f.calls++
	return f.results, len(f.results), f.err
}

type fakeIndex struct {
	healthy bool
	mu      sync.Mutex
	records []ArticleRecord
	err     error
}

func (f *fakeIndex) Healthy() bool { return f.healthy }
func (f *fakeIndex) IndexArticle(r ArticleRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, r)
	return f.err
}
func (f *fakeIndex) IndexArticles(rs []ArticleRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rs...)
	return f.err
}
func (f *fakeIndex) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

type fakeViews struct {
	views []store.ArticleView
	err   error
}

func (f fakeViews) AllViews(context.Context) ([]store.ArticleView, error) { return f.views, f.err }

func TestSearchPrefersHealthyPrimary(t *testing.T) {
	primary := &fakeBackend{healthy: true, results: []Result{{ID: "m1"}}}
	fallback := &fakeBackend{healthy: true, results: []Result{{ID: "p1"}}}
	s := &Service{primary: primary, fallback: fallback, log: logging.Discard()}

	resp, err := s.Search(context.Background(), Query{Text: "graphs"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Engine != "meilisearch" || len(resp.Results) != 1 || resp.Results[0].ID != "m1" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if fallback.calls != 0 {
		t.Fatal("fallback must not run when primary succeeds")
	}
}

func TestSearchFallsBack(t *testing.T) {
	fallback := &fakeBackend{healthy: true, results: []Result{{ID: "p1"}}}

	cases := map[string]backend{
		"unhealthy": &fakeBackend{healthy: false},
		"erroring":  &fakeBackend{healthy: true, err: errors.New("timeout")},
	}
	for name, primary := range cases {
		t.Run(name, func(t *testing.T) {
			s := &Service{primary: primary, fallback: fallback, log: logging.Discard()}
			resp, err := s.Search(context.Background(), Query{Text: "graphs"})
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			if resp.Engine != "postgres" || len(resp.Results) != 1 || resp.Results[0].ID != "p1" {
				t.Fatalf("unexpected response %+v", resp)
			}
		})
	}
}

func TestSearchNeverReturnsNilResults(t *testing.T) {
	s := &Service{fallback: &fakeBackend{healthy: true}, log: logging.Discard()}
	resp, err := s.Search(context.Background(), Query{Text: "x"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Results == nil {
		t.Fatal("expected empty results slice")
	}

	empty, err := NewService(nil, nil, logging.Discard()).Search(context.Background(), Query{Text: "x"})
	if err != nil {
		t.Fatalf("search without backends: %v", err)
	}
	if empty.Results == nil || empty.Engine != "none" {
		t.Fatalf("unexpected response %+v", empty)
	}
}

func TestSearchReportsBackendFailure(t *testing.T) {
	dbDown := errors.New("db down")
	cases := map[string]*Service{
		"fallback fails": {
			primary:  &fakeBackend{healthy: true, err: errors.New("timeout")},
			fallback: &fakeBackend{healthy: true, err: dbDown},
		},
		"only postgres": {fallback: &fakeBackend{healthy: true, err: dbDown}},
		"only meilisearch": {primary: &fakeBackend{healthy: true, err: dbDown}},
	}
	for name, s := range cases {
		t.Run(name, func(t *testing.T) {
			s.log = logging.Discard()
			_, err := s.Search(context.Background(), Query{Text: "graphs"})
			var storageErr *store.StorageError
			if !errors.As(err, &storageErr) {
				t.Fatalf("expected storage error, got %v", err)
			}
			if !errors.Is(err, dbDown) {
				t.Fatalf("cause not wrapped: %v", err)
			}
		})
	}
}

func TestSearchPassesContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fallback := &ctxBackend{}
	s := &Service{fallback: fallback, log: logging.Discard()}

	if _, err := s.Search(ctx, Query{Text: "graphs"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation to reach the backend, got %v", err)
	}
}

type ctxBackend struct{}

func (ctxBackend) Healthy() bool { return true }
func (ctxBackend) Search(ctx context.Context, _ Query) ([]Result, int, error) {
	return nil, 0, ctx.Err()
}

func TestIndexArticleFireAndForget(t *testing.T) {
	idx := &fakeIndex{healthy: true}
	s := &Service{index: idx, log: logging.Discard()}

	s.IndexArticle(store.ArticleView{ID: "a1", Title: "T", Upvoters: []string{"u1", "u2"}, Downvoters: []string{"u3"}})

	deadline := time.Now().Add(time.Second)
	for idx.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if idx.count() != 1 {
		t.Fatal("expected article to be indexed")
	}
	if idx.records[0].Score != 1 || idx.records[0].Tags == nil {
		t.Fatalf("unexpected record %+v", idx.records[0])
	}

	unhealthy := &fakeIndex{healthy: false}
	(&Service{index: unhealthy, log: logging.Discard()}).IndexArticle(store.ArticleView{ID: "a2"})
	time.Sleep(10 * time.Millisecond)
	if unhealthy.count() != 0 {
		t.Fatal("unhealthy index must be skipped")
	}
}

func TestReindexAll(t *testing.T) {
	idx := &fakeIndex{healthy: true}
	s := &Service{index: idx, log: logging.Discard()}

	n, err := s.ReindexAll(context.Background(), fakeViews{views: []store.ArticleView{{ID: "a"}, {ID: "b"}}})
	if err != nil || n != 2 || idx.count() != 2 {
		t.Fatalf("ReindexAll() = %d, %v (indexed %d)", n, err, idx.count())
	}

	if _, err := s.ReindexAll(context.Background(), fakeViews{err: errors.New("boom")}); err == nil {
		t.Fatal("expected load error")
	}
	if _, err := NewService(nil, nil, logging.Discard()).ReindexAll(context.Background(), fakeViews{}); err == nil {
		t.Fatal("expected error without meilisearch")
	}
}

func TestHitToResult(t *testing.T) {
	hit := meili.Hit{
		"id":         json.RawMessage(`"a1"`),
		"title":      json.RawMessage(`"Graph Theory"`),
		"excerpt":    json.RawMessage(`"Vertices and edges"`),
		"authorName": json.RawMessage(`"ada"`),
		"tags":       json.RawMessage(`["math","graphs"]`),
		"_formatted": json.RawMessage(`{"title":"<mark>Graph</mark> Theory","score":3}`),
	}
	r := hitToResult(hit)
	if r.ID != "a1" || r.Title != "<mark>Graph</mark> Theory" || r.Snippet != "Vertices and edges" || r.AuthorName != "ada" {
		t.Fatalf("unexpected result %+v", r)
	}
	if strings.Join(r.Tags, ",") != "math,graphs" {
		t.Fatalf("unexpected tags %v", r.Tags)
	}
}

func TestExcerpt(t *testing.T) {
	if got := excerpt("  short\n text ", 20); got != "short text" {
		t.Fatalf("excerpt() = %q", got)
	}
	long := strings.Repeat("word ", 100)
	got := excerpt(long, 42)
	if !strings.HasSuffix(got, "…") || len([]rune(got)) > 43 || strings.HasSuffix(strings.TrimSuffix(got, "…"), " ") {
		t.Fatalf("excerpt() = %q", got)
	}
}
