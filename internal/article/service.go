// Package article is the domain layer for articles: aggregated reads, the
// transactional create path and per-user voting.
package article

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"paperpedia/api/internal/archive"
	"paperpedia/api/internal/store"
	"paperpedia/api/internal/tagquery"
	"paperpedia/api/internal/validation"
)

const defaultSearchLimit = 50

type dataStore interface {
	CreateArticle(context.Context, store.NewArticle) (store.Article, error)
	ArticleByID(context.Context, string) (*store.Article, error)
	TagsFor(context.Context, string) ([]store.Tag, error)
	ReferencesFor(context.Context, string) ([]store.Reference, error)
	ViewsByTitle(context.Context, string, int) ([]store.ArticleView, error)
	ViewByID(context.Context, string) (*store.ArticleView, error)
	ViewsMatchingTags(context.Context, tagquery.Node, int) ([]store.ArticleView, error)
	VoteOf(context.Context, string, string) (store.VoteState, error)
	UpsertVote(context.Context, string, string, bool) error
	DeleteVote(context.Context, string, string) error
}

// Indexer receives every newly created article. Implementations must not block.
type Indexer interface {
	IndexArticle(store.ArticleView)
}

type Archiver interface {
	Record(store.ArticleView) (archive.CommitInfo, error)
}

type Service struct {
	store       dataStore
	validate    *validation.Validator
	indexer     Indexer
	archiver    Archiver
	log         logrus.FieldLogger
	searchLimit int
	background  sync.WaitGroup
}

type Option func(*Service)

func WithIndexer(indexer Indexer) Option {
	return func(s *Service) { s.indexer = indexer }
}

func WithArchiver(archiver Archiver) Option {
	return func(s *Service) { s.archiver = archiver }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Service) { s.log = log }
}

func WithSearchLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.searchLimit = limit
		}
	}
}

func NewService(dataStore *store.PostgresStore, opts ...Option) *Service {
	return newService(dataStore, opts...)
}

func newService(dataStore dataStore, opts ...Option) *Service {
	s := &Service{
		store:       dataStore,
		validate:    validation.New(),
		log:         logrus.StandardLogger(),
		searchLimit: defaultSearchLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateInput struct {
	Title      string   `json:"title" validate:"required,max=300"`
	Content    string   `json:"content" validate:"max=200000"`
	Tags       []string `json:"tags" validate:"max=64,dive,required,max=64"`
	References []string `json:"references" validate:"max=256,dive,required"`
}

// Create validates the input and persists the article with its tags and
// references atomically. Search indexing and archiving run afterwards and
// never affect the result.
func (s *Service) Create(ctx context.Context, authorID string, input CreateInput) (store.Article, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.Tags = trimAll(input.Tags)
	input.References = trimAll(input.References)
	if err := s.validate.Struct(input); err != nil {
		return store.Article{}, err
	}

	created, err := s.store.CreateArticle(ctx, store.NewArticle{
		Title:      input.Title,
		Content:    input.Content,
		AuthorID:   authorID,
		Tags:       input.Tags,
		References: input.References,
	})
	if err != nil {
		return store.Article{}, err
	}

	s.afterCreate(created.ID)
	return created, nil
}

func (s *Service) afterCreate(articleID string) {
	if s.indexer == nil && s.archiver == nil {
		return
	}
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		log := s.log.WithField("article_id", articleID)
		view, err := s.store.ViewByID(ctx, articleID)
		if err != nil {
			log.WithError(err).Warn("load created article for post-commit hooks")
			return
		}
		if view == nil {
			log.Warn("created article vanished before post-commit hooks")
			return
		}
		if s.indexer != nil {
			s.indexer.IndexArticle(*view)
		}
		if s.archiver != nil {
			commit, err := s.archiver.Record(*view)
			if err != nil {
				log.WithError(err).Warn("archive article")
				return
			}
			log.WithField("commit", commit.Hash).Debug("article archived")
		}
	}()
}

// Wait blocks until post-commit work started by Create has finished.
func (s *Service) Wait() {
	s.background.Wait()
}

// ViewsByTitle returns aggregated views whose title contains query. It never
// returns nil, and no match is not an error.
func (s *Service) ViewsByTitle(ctx context.Context, query string) ([]store.ArticleView, error) {
	views, err := s.store.ViewsByTitle(ctx, strings.TrimSpace(query), s.searchLimit)
	if err != nil {
		return nil, err
	}
	if views == nil {
		views = []store.ArticleView{}
	}
	return views, nil
}

// ByID returns the raw article, or nil when it does not exist.
func (s *Service) ByID(ctx context.Context, id string) (*store.Article, error) {
	return s.store.ArticleByID(ctx, id)
}

func (s *Service) ViewByID(ctx context.Context, id string) (*store.ArticleView, error) {
	return s.store.ViewByID(ctx, id)
}

// TagsFor returns nil when the article has no tags.
func (s *Service) TagsFor(ctx context.Context, id string) ([]store.Tag, error) {
	return s.store.TagsFor(ctx, id)
}

// ReferencesFor returns nil when the article references nothing.
func (s *Service) ReferencesFor(ctx context.Context, id string) ([]store.Reference, error) {
	return s.store.ReferencesFor(ctx, id)
}

func (s *Service) HasVoted(ctx context.Context, userID, articleID string) (store.VoteState, error) {
	return s.store.VoteOf(ctx, articleID, userID)
}

// SearchByTags parses a JSON tag expression and returns the matching views.
func (s *Service) SearchByTags(ctx context.Context, raw []byte) ([]store.ArticleView, error) {
	node, err := tagquery.Parse(raw)
	if err != nil {
		return nil, err
	}
	return s.SearchByPredicate(ctx, node)
}

func (s *Service) SearchByPredicate(ctx context.Context, node tagquery.Node) ([]store.ArticleView, error) {
	views, err := s.store.ViewsMatchingTags(ctx, node, s.searchLimit)
	if err != nil {
		return nil, err
	}
	if views == nil {
		views = []store.ArticleView{}
	}
	return views, nil
}

func trimAll(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.TrimSpace(v)
	}
	return out
}
