// Package search provides full-text article search. Meilisearch serves
// queries while it is healthy; Postgres full-text search covers the rest.
package search

import (
	"strings"
	"unicode/utf8"

	"paperpedia/api/internal/store"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Snippet    string   `json:"snippet"`
	AuthorName string   `json:"authorName"`
	Tags       []string `json:"tags"`
}

// Query describes a search request.
type Query struct {
	Text   string
	Tag    string // empty = any
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Engine  string   `json:"engine"`
}

// ArticleRecord is the data we index for an article.
type ArticleRecord struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Excerpt    string   `json:"excerpt"`
	Tags       []string `json:"tags"`
	AuthorID   string   `json:"authorId"`
	AuthorName string   `json:"authorName"`
	Score      int      `json:"score"`
}

const excerptRunes = 240

func RecordFromView(view store.ArticleView) ArticleRecord {
	tags := view.Tags
	if tags == nil {
		tags = []string{}
	}
	return ArticleRecord{
		ID:         view.ID,
		Title:      view.Title,
		Content:    view.Content,
		Excerpt:    excerpt(view.Content, excerptRunes),
		Tags:       tags,
		AuthorID:   view.AuthorID,
		AuthorName: view.AuthorName,
		Score:      view.Score(),
	}
}

// excerpt cuts s to at most n runes on a word boundary when one is near.
func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:n])
	if i := strings.LastIndexByte(cut, ' '); i > n/2 {
		cut = cut[:i]
	}
	return cut + "…"
}
