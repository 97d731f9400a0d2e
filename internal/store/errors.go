package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrArticleNotFound = errors.New("article not found")
	ErrEmailTaken      = errors.New("email already in use")
	ErrSessionNotFound = errors.New("session not found or expired")
	ErrUserNotFound    = errors.New("user not found")
)

const (
	sqlStateUniqueViolation     = "23505"
	sqlStateForeignKeyViolation = "23503"

	constraintArticleTitle = "articles_title_key"
	constraintActiveEmail  = "users_active_email_key"
	constraintVoteArticle  = "votes_article_id_fkey"
	constraintVoteUser     = "votes_user_id_fkey"
)

type DuplicateTitleError struct {
	Title string
}

func (e *DuplicateTitleError) Error() string {
	return fmt.Sprintf("an article titled %q already exists", e.Title)
}

type InvalidReferenceError struct {
	Missing []string
}

func (e *InvalidReferenceError) Error() string {
	return "referenced articles do not exist: " + strings.Join(e.Missing, ", ")
}

// StorageError wraps a datastore failure. Error() names the operation only,
// so query text and driver detail stay out of anything shown to callers.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage failure: " + e.Op
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageError(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// pgViolation reports the constraint name when err is a Postgres error with the given SQLSTATE.
func pgViolation(err error, code string) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == code {
		return pgErr.ConstraintName, true
	}
	return "", false
}

// voteViolation maps a foreign key failure on votes to the missing row it
// names, or returns nil.
func voteViolation(err error) error {
	constraint, ok := pgViolation(err, sqlStateForeignKeyViolation)
	if !ok {
		return nil
	}
	switch constraint {
	case constraintVoteArticle:
		return ErrArticleNotFound
	case constraintVoteUser:
		return ErrUserNotFound
	}
	return nil
}
