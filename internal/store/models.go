package store

import "time"

type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
}

type Article struct {
	ID        string
	AuthorID  string
	Title     string
	Content   string
	CreatedAt time.Time
	// Set on the value returned by CreateArticle.
	Tags       []string
	References []string
}

type NewArticle struct {
	Title      string
	Content    string
	AuthorID   string
	Tags       []string
	References []string
}

type Tag struct {
	ArticleID string
	Name      string
}

type Reference struct {
	ArticleID   string
	ToArticleID string
	ToTitle     string
}

type ReferenceView struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ArticleView is an article joined with its tags, outbound references and voters.
type ArticleView struct {
	ID         string
	AuthorID   string
	AuthorName string
	Title      string
	Content    string
	CreatedAt  time.Time
	Tags       []string
	References []ReferenceView
	Upvoters   []string
	Downvoters []string
}

func (v ArticleView) Score() int {
	return len(v.Upvoters) - len(v.Downvoters)
}

// VoteState is the tri-state answer to "has this user voted on this article".
type VoteState int

const (
	NotVoted VoteState = iota
	Upvoted
	Downvoted
)

func (s VoteState) String() string {
	switch s {
	case Upvoted:
		return "up"
	case Downvoted:
		return "down"
	default:
		return "none"
	}
}
