package export

import (
	"context"
	"fmt"

	"paperpedia/api/internal/store"
)

type viewSource interface {
	ViewByID(ctx context.Context, id string) (*store.ArticleView, error)
}

type pdfRenderer func(ctx context.Context, html string) ([]byte, error)

// Service provides article export functionality
type Service struct {
	store     viewSource
	renderPDF pdfRenderer
}

type Option func(*Service)

// WithChromePath pins the browser binary used for PDF output.
func WithChromePath(path string) Option {
	return func(s *Service) {
		s.renderPDF = chromePDF(path)
	}
}

func NewService(store viewSource, opts ...Option) *Service {
	s := &Service{store: store, renderPDF: chromePDF("")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	view, err := s.store.ViewByID(ctx, req.ArticleID)
	if err != nil {
		return nil, fmt.Errorf("load article: %w", err)
	}
	if view == nil {
		return nil, store.ErrArticleNotFound
	}

	html, err := RenderArticleHTML(templateData(*view))
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	name := sanitizeFilename(view.Title)
	switch req.Format {
	case FormatHTML:
		return &Result{Data: []byte(html), Filename: name + ".html", MimeType: "text/html; charset=utf-8"}, nil
	case FormatPDF:
		data, err := s.renderPDF(ctx, html)
		if err != nil {
			return nil, err
		}
		return &Result{Data: data, Filename: name + ".pdf", MimeType: "application/pdf"}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
}

func templateData(view store.ArticleView) TemplateData {
	data := TemplateData{
		Title:      view.Title,
		AuthorName: view.AuthorName,
		CreatedAt:  view.CreatedAt,
		Score:      view.Score(),
		Tags:       view.Tags,
		Paragraphs: paragraphs(view.Content),
	}
	for _, ref := range view.References {
		data.References = append(data.References, TemplateReference{ID: ref.ID, Title: ref.Title})
	}
	return data
}
