package app

import (
	"time"

	"paperpedia/api/internal/store"
)

type articleJSON struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"authorId"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
	Tags       []string  `json:"tags,omitempty"`
	References []string  `json:"references,omitempty"`
}

func articlePayload(a store.Article) articleJSON {
	return articleJSON{
		ID:         a.ID,
		AuthorID:   a.AuthorID,
		Title:      a.Title,
		Content:    a.Content,
		CreatedAt:  a.CreatedAt,
		Tags:       a.Tags,
		References: a.References,
	}
}

type viewJSON struct {
	ID         string                `json:"id"`
	Title      string                `json:"title"`
	Content    string                `json:"content"`
	AuthorID   string                `json:"authorId"`
	AuthorName string                `json:"authorName"`
	CreatedAt  time.Time             `json:"createdAt"`
	Tags       []string              `json:"tags"`
	References []store.ReferenceView `json:"references"`
	Upvoters   []string              `json:"upvoters"`
	Downvoters []string              `json:"downvoters"`
	Score      int                   `json:"score"`
}

func viewPayloads(views []store.ArticleView) []viewJSON {
	out := make([]viewJSON, 0, len(views))
	for _, v := range views {
		out = append(out, viewJSON{
			ID:         v.ID,
			Title:      v.Title,
			Content:    v.Content,
			AuthorID:   v.AuthorID,
			AuthorName: v.AuthorName,
			CreatedAt:  v.CreatedAt,
			Tags:       orEmpty(v.Tags),
			References: orEmptyRefs(v.References),
			Upvoters:   orEmpty(v.Upvoters),
			Downvoters: orEmpty(v.Downvoters),
			Score:      v.Score(),
		})
	}
	return out
}

type tagJSON struct {
	ArticleID string `json:"articleId"`
	Name      string `json:"tagName"`
}

type referenceJSON struct {
	ArticleID   string `json:"articleId"`
	ToArticleID string `json:"toArticleId"`
	ToTitle     string `json:"toTitle"`
}

// userJSON never carries the email or password hash.
type userJSON struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
}

func userPayload(u store.User) userJSON {
	return userJSON{ID: u.ID, Username: u.Username, CreatedAt: u.CreatedAt}
}

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"token":        session.Token,
		"refreshToken": session.RefreshToken,
		"expiresAt":    session.ExpiresAt,
		"user":         userPayload(session.User),
	}
}

func orEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func orEmptyRefs(values []store.ReferenceView) []store.ReferenceView {
	if values == nil {
		return []store.ReferenceView{}
	}
	return values
}
