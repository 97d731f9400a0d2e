package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"paperpedia/api/internal/archive"
	"paperpedia/api/internal/article"
	"paperpedia/api/internal/auth"
	"paperpedia/api/internal/config"
	"paperpedia/api/internal/export"
	"paperpedia/api/internal/logging"
	"paperpedia/api/internal/registration"
	"paperpedia/api/internal/search"
	"paperpedia/api/internal/store"
)

const testSecret = "test-secret"

type fakeArticles struct {
	createFn        func(context.Context, string, article.CreateInput) (store.Article, error)
	byIDFn          func(context.Context, string) (*store.Article, error)
	tagsForFn       func(context.Context, string) ([]store.Tag, error)
	referencesForFn func(context.Context, string) ([]store.Reference, error)
	viewsByTitleFn  func(context.Context, string) ([]store.ArticleView, error)
	searchByTagsFn  func(context.Context, []byte) ([]store.ArticleView, error)
	hasVotedFn      func(context.Context, string, string) (store.VoteState, error)
	voteFn          func(context.Context, string, string, article.Action) (store.VoteState, error)
}

func (f *fakeArticles) Create(ctx context.Context, authorID string, input article.CreateInput) (store.Article, error) {
	if f.createFn != nil {
		return f.createFn(ctx, authorID, input)
	}
	return store.Article{ID: "a1", AuthorID: authorID, Title: input.Title}, nil
}

func (f *fakeArticles) ByID(ctx context.Context, id string) (*store.Article, error) {
	if f.byIDFn != nil {
		return f.byIDFn(ctx, id)
	}
	return nil, nil
}

func (f *fakeArticles) TagsFor(ctx context.Context, id string) ([]store.Tag, error) {
	if f.tagsForFn != nil {
		return f.tagsForFn(ctx, id)
	}
	return nil, nil
}

func (f *fakeArticles) ReferencesFor(ctx context.Context, id string) ([]store.Reference, error) {
	if f.referencesForFn != nil {
		return f.referencesForFn(ctx, id)
	}
	return nil, nil
}

func (f *fakeArticles) ViewsByTitle(ctx context.Context, query string) ([]store.ArticleView, error) {
	if f.viewsByTitleFn != nil {
		return f.viewsByTitleFn(ctx, query)
	}
	return []store.ArticleView{}, nil
}

func (f *fakeArticles) SearchByTags(ctx context.Context, raw []byte) ([]store.ArticleView, error) {
	if f.searchByTagsFn != nil {
		return f.searchByTagsFn(ctx, raw)
	}
	return []store.ArticleView{}, nil
}

func (f *fakeArticles) HasVoted(ctx context.Context, userID, articleID string) (store.VoteState, error) {
	if f.hasVotedFn != nil {
		return f.hasVotedFn(ctx, userID, articleID)
	}
	return store.NotVoted, nil
}

func (f *fakeArticles) Vote(ctx context.Context, articleID, userID string, action article.Action) (store.VoteState, error) {
	if f.voteFn != nil {
		return f.voteFn(ctx, articleID, userID, action)
	}
	return store.NotVoted, nil
}

type fakeRegistrar struct {
	registerFn     func(context.Context, registration.RegisterInput) (registration.RegisterResult, error)
	verifyFn       func(context.Context, string) (store.User, error)
	authenticateFn func(context.Context, string, string) (store.User, error)
}

func (f *fakeRegistrar) Register(ctx context.Context, input registration.RegisterInput) (registration.RegisterResult, error) {
	if f.registerFn != nil {
		return f.registerFn(ctx, input)
	}
	return registration.RegisterResult{Token: "verify-token", ExpiresIn: 5 * time.Minute}, nil
}

func (f *fakeRegistrar) Verify(ctx context.Context, token string) (store.User, error) {
	if f.verifyFn != nil {
		return f.verifyFn(ctx, token)
	}
	return store.User{}, registration.ErrInvalidVerification
}

func (f *fakeRegistrar) Authenticate(ctx context.Context, email, password string) (store.User, error) {
	if f.authenticateFn != nil {
		return f.authenticateFn(ctx, email, password)
	}
	return store.User{}, registration.ErrInvalidCredentials
}

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: make(map[string]string)}
}

func (f *fakeSessions) SaveRefreshSession(_ context.Context, tokenHash, userID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[tokenHash] = userID
	return nil
}

func (f *fakeSessions) LookupRefreshSession(_ context.Context, tokenHash string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.sessions[tokenHash]
	if !ok {
		return "", store.ErrSessionNotFound
	}
	return userID, nil
}

func (f *fakeSessions) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, tokenHash)
	return nil
}

func (f *fakeSessions) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

type fakeUsers struct {
	users map[string]store.User
}

func (f *fakeUsers) UserByID(_ context.Context, id string) (*store.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

type fakeSearch struct {
	lastQuery search.Query
	err       error
}

func (f *fakeSearch) Search(_ context.Context, q search.Query) (search.Response, error) {
	f.lastQuery = q
	if f.err != nil {
		return search.Response{}, f.err
	}
	return search.Response{Results: []search.Result{{ID: "a1", Title: "Graphs"}}, Total: 1, Query: q.Text, Engine: "postgres"}, nil
}

type fakeArchive struct {
	entries map[string]archive.Entry
}

func (f *fakeArchive) Lookup(articleID string) (*archive.Entry, error) {
	entry, ok := f.entries[articleID]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

type fakeExporter struct {
	exportFn func(context.Context, export.Request) (*export.Result, error)
}

func (f *fakeExporter) Export(ctx context.Context, req export.Request) (*export.Result, error) {
	if f.exportFn != nil {
		return f.exportFn(ctx, req)
	}
	return nil, errors.New("not implemented")
}

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

var testUser = store.User{
	ID:        "user-1",
	Username:  "ada",
	Email:     "ada@example.com",
	Active:    true,
	CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
}

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.JWTSecret = testSecret
	cfg.AccessTTL = time.Hour
	cfg.RefreshTTL = 24 * time.Hour
	cfg.SearchLimit = 25
	return cfg
}

func testDependencies() Dependencies {
	return Dependencies{
		Articles: &fakeArticles{},
		Registry: &fakeRegistrar{},
		Sessions: newFakeSessions(),
		Users:    &fakeUsers{users: map[string]store.User{testUser.ID: testUser}},
		Search:   &fakeSearch{},
		Archive:  &fakeArchive{},
		Exporter: &fakeExporter{},
		Checks: map[string]Pinger{
			"database": pingerFunc(func(context.Context) error { return nil }),
		},
	}
}

func newTestServer(cfg config.Config, deps Dependencies) *HTTPServer {
	svc := NewService(cfg, deps, logging.Discard())
	return NewHTTPServer(svc, logging.Discard())
}

func accessToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.IssueToken([]byte(testSecret), auth.NewClaims(userID, "ada", time.Now(), time.Hour))
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func serve(server *HTTPServer, method, path, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}
