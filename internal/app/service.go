package app

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"paperpedia/api/internal/archive"
	"paperpedia/api/internal/article"
	"paperpedia/api/internal/auth"
	"paperpedia/api/internal/config"
	"paperpedia/api/internal/export"
	"paperpedia/api/internal/registration"
	"paperpedia/api/internal/search"
	"paperpedia/api/internal/store"
)

type Articles interface {
	Create(ctx context.Context, authorID string, input article.CreateInput) (store.Article, error)
	ByID(ctx context.Context, id string) (*store.Article, error)
	TagsFor(ctx context.Context, id string) ([]store.Tag, error)
	ReferencesFor(ctx context.Context, id string) ([]store.Reference, error)
	ViewsByTitle(ctx context.Context, query string) ([]store.ArticleView, error)
	SearchByTags(ctx context.Context, raw []byte) ([]store.ArticleView, error)
	HasVoted(ctx context.Context, userID, articleID string) (store.VoteState, error)
	Vote(ctx context.Context, articleID, userID string, action article.Action) (store.VoteState, error)
}

type Registrar interface {
	Register(ctx context.Context, input registration.RegisterInput) (registration.RegisterResult, error)
	Verify(ctx context.Context, token string) (store.User, error)
	Authenticate(ctx context.Context, email, password string) (store.User, error)
}

// SessionStore keeps refresh sessions keyed by token hash.
type SessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (string, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type Users interface {
	UserByID(ctx context.Context, id string) (*store.User, error)
}

type Searcher interface {
	Search(ctx context.Context, q search.Query) (search.Response, error)
}

type Archive interface {
	Lookup(articleID string) (*archive.Entry, error)
}

type Exporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Dependencies struct {
	Articles Articles
	Registry Registrar
	Sessions SessionStore
	Users    Users
	Search   Searcher
	Archive  Archive
	Exporter Exporter
	// Readiness checks by name; "database" at minimum.
	Checks map[string]Pinger
	// MailDelivers is false when verification mail is only logged.
	MailDelivers bool
}

type Service struct {
	cfg      config.Config
	deps     Dependencies
	verifier *auth.Verifier
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewService(cfg config.Config, deps Dependencies, log logrus.FieldLogger) *Service {
	return &Service{
		cfg:      cfg,
		deps:     deps,
		verifier: auth.NewVerifier(cfg.JWTSecret),
		log:      log,
		now:      time.Now,
	}
}

type Session struct {
	Token        string
	RefreshToken string
	ExpiresAt    time.Time
	User         store.User
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.deps.Registry.Authenticate(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates the refresh token: the presented one is revoked before a
// new pair is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return Session{}, store.ErrSessionNotFound
	}
	tokenHash := auth.HashToken(refreshToken)
	userID, err := s.deps.Sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.deps.Sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	user, err := s.deps.Users.UserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	if user == nil || !user.Active {
		return Session{}, store.ErrSessionNotFound
	}
	return s.issueSession(ctx, *user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := s.now()
	claims := auth.NewClaims(user.ID, user.Username, now, s.cfg.AccessTTL)
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), claims)
	if err != nil {
		return Session{}, err
	}

	refresh, err := auth.NewRefreshToken()
	if err != nil {
		return Session{}, err
	}
	if err := s.deps.Sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		ExpiresAt:    claims.ExpiresAt.Time,
		User:         user,
	}, nil
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil
	}
	return s.deps.Sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
}

// Authenticate resolves a bearer token to a user id.
func (s *Service) Authenticate(token string) (string, error) {
	return s.verifier.UserID(token)
}

func (s *Service) CurrentUser(ctx context.Context, userID string) (store.User, error) {
	user, err := s.deps.Users.UserByID(ctx, userID)
	if err != nil {
		return store.User{}, err
	}
	if user == nil || !user.Active {
		return store.User{}, auth.ErrInvalidToken
	}
	return *user, nil
}

// Ready runs every readiness check and reports per-check status.
func (s *Service) Ready(ctx context.Context) (bool, map[string]any) {
	ok := true
	checks := make(map[string]any, len(s.deps.Checks))
	for name, pinger := range s.deps.Checks {
		if err := pinger.Ping(ctx); err != nil {
			ok = false
			s.log.WithError(err).WithField("check", name).Warn("readiness check failed")
			checks[name] = map[string]any{"status": "error"}
			continue
		}
		checks[name] = map[string]any{"status": "ok"}
	}
	return ok, checks
}
