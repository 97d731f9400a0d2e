package app

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"paperpedia/api/internal/article"
	"paperpedia/api/internal/export"
	"paperpedia/api/internal/search"
)

func (s *HTTPServer) handleCreateArticle(w http.ResponseWriter, r *http.Request) {
	var body article.CreateInput
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	created, err := s.service.deps.Articles.Create(r.Context(), userIDFrom(r.Context()), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, articlePayload(created))
}

func (s *HTTPServer) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	found, err := s.service.deps.Articles.ByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if found == nil {
		writeJSON(w, http.StatusNotFound, nil)
		return
	}
	writeJSON(w, http.StatusOK, articlePayload(*found))
}

// handleArticleTags answers JSON null when the article has no tags.
func (s *HTTPServer) handleArticleTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.service.deps.Articles.TagsFor(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var payload []tagJSON
	for _, tag := range tags {
		payload = append(payload, tagJSON{ArticleID: tag.ArticleID, Name: tag.Name})
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleArticleReferences(w http.ResponseWriter, r *http.Request) {
	refs, err := s.service.deps.Articles.ReferencesFor(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var payload []referenceJSON
	for _, ref := range refs {
		payload = append(payload, referenceJSON{ArticleID: ref.ArticleID, ToArticleID: ref.ToArticleID, ToTitle: ref.ToTitle})
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleGetVote(w http.ResponseWriter, r *http.Request) {
	state, err := s.service.deps.Articles.HasVoted(r.Context(), userIDFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"vote": state.String()})
}

func (s *HTTPServer) handlePutVote(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Value string `json:"value"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	action, err := article.ParseAction(body.Value)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	state, err := s.service.deps.Articles.Vote(r.Context(), chi.URLParam(r, "id"), userIDFrom(r.Context()), action)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"vote": state.String()})
}

func (s *HTTPServer) handleArchive(w http.ResponseWriter, r *http.Request) {
	if s.service.deps.Archive == nil {
		writeError(w, http.StatusServiceUnavailable, "ARCHIVE_UNAVAILABLE", "Archive is not configured", nil)
		return
	}
	entry, err := s.service.deps.Archive.Lookup(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if entry == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Article has not been archived", nil)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	result, err := s.service.deps.Exporter.Export(r.Context(), export.Request{
		ArticleID: chi.URLParam(r, "id"),
		Format:    format,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleSearchTitle(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query string `json:"query"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	views, err := s.service.deps.Articles.ViewsByTitle(r.Context(), body.Query)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewPayloads(views))
}

// handleSearchTags takes the tag expression itself as the request body.
func (s *HTTPServer) handleSearchTags(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	views, err := s.service.deps.Articles.SearchByTags(r.Context(), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewPayloads(views))
}

func (s *HTTPServer) handleFullText(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	text := strings.TrimSpace(query.Get("q"))
	if text == "" {
		writeJSON(w, http.StatusOK, search.Response{Results: []search.Result{}, Query: text})
		return
	}
	limit := queryInt(query.Get("limit"), s.service.cfg.SearchLimit, 1, 100)
	offset := queryInt(query.Get("offset"), 0, 0, 10000)

	resp, err := s.service.deps.Search.Search(r.Context(), search.Query{
		Text:   text,
		Tag:    strings.TrimSpace(query.Get("tag")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func queryInt(raw string, fallback, lo, hi int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		n = fallback
	}
	return max(lo, min(n, hi))
}
