package article

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"paperpedia/api/internal/archive"
	"paperpedia/api/internal/logging"
	"paperpedia/api/internal/store"
	"paperpedia/api/internal/tagquery"
	"paperpedia/api/internal/validation"
)

type voteKey struct{ article, user string }

// memoryStore keeps articles in maps and evaluates tag predicates in memory.
type memoryStore struct {
	mu       sync.Mutex
	articles map[string]store.Article
	votes    map[voteKey]bool
	nextID   int

	createFn func(context.Context, store.NewArticle) (store.Article, error)
	viewsFn  func(context.Context, string, int) ([]store.ArticleView, error)
}

func newMemoryStore() *memoryStore {
	return &memoryStore{articles: map[string]store.Article{}, votes: map[voteKey]bool{}}
}

func (m *memoryStore) CreateArticle(ctx context.Context, input store.NewArticle) (store.Article, error) {
	if m.createFn != nil {
		return m.createFn(ctx, input)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.articles {
		if a.Title == input.Title {
			return store.Article{}, &store.DuplicateTitleError{Title: input.Title}
		}
	}
	var missing []string
	for _, ref := range input.References {
		if _, ok := m.articles[ref]; !ok {
			missing = append(missing, ref)
		}
	}
	if len(missing) > 0 {
		return store.Article{}, &store.InvalidReferenceError{Missing: missing}
	}
	m.nextID++
	created := store.Article{
		ID:         fmt.Sprintf("article-%d", m.nextID),
		AuthorID:   input.AuthorID,
		Title:      input.Title,
		Content:    input.Content,
		Tags:       input.Tags,
		References: input.References,
	}
	m.articles[created.ID] = created
	return created, nil
}

func (m *memoryStore) ArticleByID(_ context.Context, id string) (*store.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.articles[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *memoryStore) TagsFor(_ context.Context, id string) ([]store.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var tags []store.Tag
	for _, name := range m.articles[id].Tags {
		tags = append(tags, store.Tag{ArticleID: id, Name: name})
	}
	return tags, nil
}

func (m *memoryStore) ReferencesFor(_ context.Context, id string) ([]store.Reference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var refs []store.Reference
	for _, to := range m.articles[id].References {
		refs = append(refs, store.Reference{ArticleID: id, ToArticleID: to, ToTitle: m.articles[to].Title})
	}
	return refs, nil
}

func (m *memoryStore) view(a store.Article) store.ArticleView {
	v := store.ArticleView{ID: a.ID, AuthorID: a.AuthorID, Title: a.Title, Content: a.Content, Tags: a.Tags}
	for _, to := range a.References {
		v.References = append(v.References, store.ReferenceView{ID: to, Title: m.articles[to].Title})
	}
	for key, up := range m.votes {
		if key.article != a.ID {
			continue
		}
		if up {
			v.Upvoters = append(v.Upvoters, key.user)
		} else {
			v.Downvoters = append(v.Downvoters, key.user)
		}
	}
	return v
}

func (m *memoryStore) selectViews(match func(store.Article) bool, limit int) []store.ArticleView {
	m.mu.Lock()
	defer m.mu.Unlock()
	var views []store.ArticleView
	for _, a := range m.articles {
		if match(a) {
			views = append(views, m.view(a))
		}
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Title < views[j].Title })
	if limit > 0 && len(views) > limit {
		views = views[:limit]
	}
	return views
}

func (m *memoryStore) ViewsByTitle(ctx context.Context, query string, limit int) ([]store.ArticleView, error) {
	if m.viewsFn != nil {
		return m.viewsFn(ctx, query, limit)
	}
	if query == "" {
		return nil, nil
	}
	needle := strings.ToLower(query)
	return m.selectViews(func(a store.Article) bool {
		return strings.Contains(strings.ToLower(a.Title), needle)
	}, limit), nil
}

func (m *memoryStore) ViewByID(_ context.Context, id string) (*store.ArticleView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.articles[id]
	if !ok {
		return nil, nil
	}
	v := m.view(a)
	return &v, nil
}

func (m *memoryStore) ViewsMatchingTags(_ context.Context, node tagquery.Node, limit int) ([]store.ArticleView, error) {
	if err := node.Validate(); err != nil {
		return nil, err
	}
	return m.selectViews(func(a store.Article) bool { return node.Matches(a.Tags) }, limit), nil
}

func (m *memoryStore) VoteOf(_ context.Context, articleID, userID string) (store.VoteState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	up, ok := m.votes[voteKey{articleID, userID}]
	switch {
	case !ok:
		return store.NotVoted, nil
	case up:
		return store.Upvoted, nil
	default:
		return store.Downvoted, nil
	}
}

func (m *memoryStore) UpsertVote(_ context.Context, articleID, userID string, up bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.articles[articleID]; !ok {
		return store.ErrArticleNotFound
	}
	m.votes[voteKey{articleID, userID}] = up
	return nil
}

func (m *memoryStore) DeleteVote(_ context.Context, articleID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.votes, voteKey{articleID, userID})
	return nil
}

type recordingIndexer struct {
	mu    sync.Mutex
	views []store.ArticleView
}

func (r *recordingIndexer) IndexArticle(view store.ArticleView) {
	r.mu.Lock()
	r.views = append(r.views, view)
	r.mu.Unlock()
}

type recordingArchiver struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (r *recordingArchiver) Record(view store.ArticleView) (archive.CommitInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return archive.CommitInfo{}, r.err
	}
	r.ids = append(r.ids, view.ID)
	return archive.CommitInfo{Hash: "abc123"}, nil
}

func newTestService(s *memoryStore, opts ...Option) *Service {
	return newService(s, append([]Option{WithLogger(logging.Discard())}, opts...)...)
}

func TestCreateReturnsArticleAndRunsHooks(t *testing.T) {
	mem := newMemoryStore()
	indexer := &recordingIndexer{}
	archiver := &recordingArchiver{}
	service := newTestService(mem, WithIndexer(indexer), WithArchiver(archiver))
	ctx := context.Background()

	base, err := service.Create(ctx, "u1", CreateInput{Title: "Base"})
	if err != nil {
		t.Fatalf("Create(base) error = %v", err)
	}
	service.Wait()

	created, err := service.Create(ctx, "u1", CreateInput{
		Title:      "  Derived  ",
		Content:    "body",
		Tags:       []string{" go ", "db"},
		References: []string{base.ID},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.Title != "Derived" {
		t.Fatalf("expected trimmed title, got %q", created.Title)
	}
	if strings.Join(created.Tags, ",") != "go,db" || len(created.References) != 1 || created.References[0] != base.ID {
		t.Fatalf("unexpected created article %+v", created)
	}

	service.Wait()
	if len(indexer.views) != 2 || indexer.views[1].Title != "Derived" {
		t.Fatalf("expected both articles indexed, got %+v", indexer.views)
	}
	if len(indexer.views[1].References) != 1 || indexer.views[1].References[0].Title != "Base" {
		t.Fatalf("expected indexed view to carry reference titles, got %+v", indexer.views[1].References)
	}
	if len(archiver.ids) != 2 {
		t.Fatalf("expected two archive commits, got %v", archiver.ids)
	}
}

func TestCreateArchiveFailureDoesNotFailCreate(t *testing.T) {
	mem := newMemoryStore()
	service := newTestService(mem, WithArchiver(&recordingArchiver{err: errors.New("disk full")}))

	if _, err := service.Create(context.Background(), "u1", CreateInput{Title: "Resilient"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	service.Wait()
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name  string
		input CreateInput
		field string
	}{
		{name: "blank title", input: CreateInput{Title: "   "}, field: "title"},
		{name: "empty tag", input: CreateInput{Title: "T", Tags: []string{"ok", " "}}, field: "tags[1]"},
		{name: "empty reference", input: CreateInput{Title: "T", References: []string{""}}, field: "references[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := newMemoryStore()
			mem.createFn = func(context.Context, store.NewArticle) (store.Article, error) {
				t.Fatal("store must not be called for invalid input")
				return store.Article{}, nil
			}
			_, err := newTestService(mem).Create(context.Background(), "u1", tt.input)
			var verr *validation.Error
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if verr.Fields[0].Field != tt.field {
				t.Fatalf("expected field %q, got %+v", tt.field, verr.Fields)
			}
		})
	}
}

func TestCreatePropagatesDomainErrors(t *testing.T) {
	mem := newMemoryStore()
	service := newTestService(mem)
	ctx := context.Background()

	if _, err := service.Create(ctx, "u1", CreateInput{Title: "Dup"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	_, err := service.Create(ctx, "u2", CreateInput{Title: "Dup"})
	var dupErr *store.DuplicateTitleError
	if !errors.As(err, &dupErr) || dupErr.Title != "Dup" {
		t.Fatalf("expected DuplicateTitleError for Dup, got %v", err)
	}

	_, err = service.Create(ctx, "u1", CreateInput{Title: "Refs", References: []string{"nope", "also-nope"}})
	var refErr *store.InvalidReferenceError
	if !errors.As(err, &refErr) || len(refErr.Missing) != 2 {
		t.Fatalf("expected InvalidReferenceError listing two ids, got %v", err)
	}
	if views, _ := service.ViewsByTitle(ctx, "Refs"); len(views) != 0 {
		t.Fatalf("expected nothing persisted, got %+v", views)
	}
}

func TestViewsByTitleNeverNil(t *testing.T) {
	service := newTestService(newMemoryStore())
	views, err := service.ViewsByTitle(context.Background(), "missing")
	if err != nil {
		t.Fatalf("ViewsByTitle() error = %v", err)
	}
	if views == nil || len(views) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", views)
	}
}

func TestViewsByTitlePassesStorageErrors(t *testing.T) {
	mem := newMemoryStore()
	storageErr := &store.StorageError{Op: "query article views", Err: errors.New("conn reset")}
	mem.viewsFn = func(context.Context, string, int) ([]store.ArticleView, error) { return nil, storageErr }

	_, err := newTestService(mem).ViewsByTitle(context.Background(), "x")
	if !errors.Is(err, storageErr) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestViewsByTitleUsesSearchLimit(t *testing.T) {
	mem := newMemoryStore()
	var gotLimit int
	mem.viewsFn = func(_ context.Context, _ string, limit int) ([]store.ArticleView, error) {
		gotLimit = limit
		return nil, nil
	}
	if _, err := newTestService(mem, WithSearchLimit(7)).ViewsByTitle(context.Background(), "x"); err != nil {
		t.Fatalf("ViewsByTitle() error = %v", err)
	}
	if gotLimit != 7 {
		t.Fatalf("expected limit 7, got %d", gotLimit)
	}
}

func TestReadsReturnNilWhenAbsent(t *testing.T) {
	mem := newMemoryStore()
	service := newTestService(mem)
	ctx := context.Background()

	created, err := service.Create(ctx, "u1", CreateInput{Title: "Lonely"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if a, err := service.ByID(ctx, "missing"); err != nil || a != nil {
		t.Fatalf("ByID(missing) = %v, %v", a, err)
	}
	if a, err := service.ByID(ctx, created.ID); err != nil || a == nil || a.Title != "Lonely" {
		t.Fatalf("ByID() = %v, %v", a, err)
	}
	if tags, err := service.TagsFor(ctx, created.ID); err != nil || tags != nil {
		t.Fatalf("TagsFor() = %v, %v; want nil", tags, err)
	}
	if refs, err := service.ReferencesFor(ctx, created.ID); err != nil || refs != nil {
		t.Fatalf("ReferencesFor() = %v, %v; want nil", refs, err)
	}
	if v, err := service.ViewByID(ctx, "missing"); err != nil || v != nil {
		t.Fatalf("ViewByID(missing) = %v, %v", v, err)
	}
}

func TestSearchByTagsFourArticleFixture(t *testing.T) {
	mem := newMemoryStore()
	service := newTestService(mem)
	ctx := context.Background()

	for title, tags := range map[string][]string{"AB": {"A", "B"}, "OnlyA": {"A"}, "OnlyB": {"B"}, "None": nil} {
		if _, err := service.Create(ctx, "u1", CreateInput{Title: title, Tags: tags}); err != nil {
			t.Fatalf("Create(%s) error = %v", title, err)
		}
	}

	tests := []struct {
		query string
		want  string
	}{
		{query: `{"AND": ["A", "B"]}`, want: "AB"},
		{query: `{"OR": ["A", "B"]}`, want: "AB,OnlyA,OnlyB"},
		{query: `{"not": "A"}`, want: "None,OnlyB"},
		{query: `"A"`, want: "AB,OnlyA"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			views, err := service.SearchByTags(ctx, []byte(tt.query))
			if err != nil {
				t.Fatalf("SearchByTags() error = %v", err)
			}
			titles := make([]string, 0, len(views))
			for _, v := range views {
				titles = append(titles, v.Title)
			}
			if got := strings.Join(titles, ","); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestSearchByTagsMalformed(t *testing.T) {
	service := newTestService(newMemoryStore())
	for _, raw := range []string{`{}`, `{"XOR": ["A"]}`, `[]`, `not json`} {
		views, err := service.SearchByTags(context.Background(), []byte(raw))
		var malformed *tagquery.MalformedQueryError
		if !errors.As(err, &malformed) {
			t.Fatalf("%s: expected MalformedQueryError, got %v (views %v)", raw, err, views)
		}
	}
}

func TestSearchByTagsEmptyResultNotNil(t *testing.T) {
	views, err := newTestService(newMemoryStore()).SearchByTags(context.Background(), []byte(`"nothing"`))
	if err != nil {
		t.Fatalf("SearchByTags() error = %v", err)
	}
	if views == nil {
		t.Fatal("expected empty non-nil slice")
	}
}
