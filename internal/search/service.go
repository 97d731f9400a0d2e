package search

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"paperpedia/api/internal/store"
)

type backend interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

type articleIndex interface {
	Healthy() bool
	IndexArticle(ArticleRecord) error
	IndexArticles([]ArticleRecord) error
}

type viewSource interface {
	AllViews(ctx context.Context) ([]store.ArticleView, error)
}

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	primary  backend
	index    articleIndex
	fallback backend
	log      logrus.FieldLogger
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS, log logrus.FieldLogger) *Service {
	s := &Service{log: log}
	if meili != nil {
		s.primary = meili
		s.index = meili
	}
	if pgfts != nil {
		s.fallback = pgfts
	}
	return s
}

// Search returns an empty response with engine "none" when no backend is configured.
// A failure of the last backend tried is returned as a *store.StorageError.
func (s *Service) Search(ctx context.Context, q Query) (Response, error) {
	if s.primary != nil && s.primary.Healthy() {
		results, total, err := s.primary.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Engine: "meilisearch"}, nil
		}
		if s.fallback == nil {
			return Response{}, &store.StorageError{Op: "full-text search", Err: err}
		}
		s.log.WithError(err).Warn("meilisearch error, falling back to postgres")
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text, Engine: "none"}, nil
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		return Response{}, &store.StorageError{Op: "full-text search", Err: err}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Engine: "postgres"}, nil
}

// IndexArticle indexes a created article (fire-and-forget to Meilisearch).
func (s *Service) IndexArticle(view store.ArticleView) {
	if s.index == nil || !s.index.Healthy() {
		return
	}
	record := RecordFromView(view)
	go func() {
		if err := s.index.IndexArticle(record); err != nil {
			s.log.WithError(err).WithField("article_id", record.ID).Warn("index article")
		}
	}()
}

// ReindexAll pushes every article into Meilisearch and returns how many were sent.
func (s *Service) ReindexAll(ctx context.Context, source viewSource) (int, error) {
	if s.index == nil || !s.index.Healthy() {
		return 0, fmt.Errorf("meilisearch is not available")
	}
	views, err := source.AllViews(ctx)
	if err != nil {
		return 0, fmt.Errorf("load articles: %w", err)
	}
	records := make([]ArticleRecord, 0, len(views))
	for _, view := range views {
		records = append(records, RecordFromView(view))
	}
	if err := s.index.IndexArticles(records); err != nil {
		return 0, fmt.Errorf("index articles: %w", err)
	}
	return len(records), nil
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
