package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"paperpedia/api/internal/tagquery"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateArticle runs the whole creation in one transaction: title check,
// reference check, article row, tag rows, reference rows, commit. Any
// failure rolls everything back. The articles_title_key constraint catches
// a concurrent insert of the same title that slipped past the check.
func (s *PostgresStore) CreateArticle(ctx context.Context, input NewArticle) (Article, error) {
	tags := uniqueStrings(input.Tags)
	references := uniqueStrings(input.References)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Article{}, storageError("begin article transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	var taken bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM articles WHERE title = $1)`, input.Title).Scan(&taken); err != nil {
		return Article{}, storageError("check article title", err)
	}
	if taken {
		return Article{}, &DuplicateTitleError{Title: input.Title}
	}

	if missing, err := missingArticles(ctx, tx, references); err != nil {
		return Article{}, err
	} else if len(missing) > 0 {
		return Article{}, &InvalidReferenceError{Missing: missing}
	}

	article := Article{
		ID:       uuid.NewString(),
		AuthorID: input.AuthorID,
		Title:    input.Title,
		Content:  input.Content,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO articles (article_id, author_id, title, content)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, article.ID, article.AuthorID, article.Title, article.Content).Scan(&article.CreatedAt)
	if err != nil {
		if constraint, ok := pgViolation(err, sqlStateUniqueViolation); ok && constraint == constraintArticleTitle {
			return Article{}, &DuplicateTitleError{Title: input.Title}
		}
		return Article{}, storageError("insert article", err)
	}

	if len(tags) > 0 {
		query, args := bulkPairs(`INSERT INTO tags (article_id, tag_name) VALUES `, article.ID, tags)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return Article{}, storageError("insert tags", err)
		}
	}
	if len(references) > 0 {
		query, args := bulkPairs(`INSERT INTO article_references (article_id, to_article_id) VALUES `, article.ID, references)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return Article{}, storageError("insert references", err)
		}
	}

	if err := tx.Commit(); err != nil {
		if constraint, ok := pgViolation(err, sqlStateUniqueViolation); ok && constraint == constraintArticleTitle {
			return Article{}, &DuplicateTitleError{Title: input.Title}
		}
		return Article{}, storageError("commit article", err)
	}

	article.Tags = tags
	article.References = references
	return article, nil
}

// missingArticles returns the ids from wanted that have no article row, in input order.
func missingArticles(ctx context.Context, tx *sql.Tx, wanted []string) ([]string, error) {
	if len(wanted) == 0 {
		return nil, nil
	}
	rows, err := tx.QueryContext(ctx, `SELECT article_id FROM articles WHERE article_id = ANY($1)`, wanted)
	if err != nil {
		return nil, storageError("check references", err)
	}
	defer rows.Close()

	found := make(map[string]struct{}, len(wanted))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storageError("scan reference", err)
		}
		found[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("check references", err)
	}

	var missing []string
	for _, id := range wanted {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// bulkPairs builds a multi-row VALUES list where every row shares $1.
func bulkPairs(prefix, shared string, values []string) (string, []any) {
	var b strings.Builder
	b.WriteString(prefix)
	args := make([]any, 0, len(values)+1)
	args = append(args, shared)
	for i, value := range values {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "($1, $%d)", i+2)
		args = append(args, value)
	}
	return b.String(), args
}

func uniqueStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

// ArticleByID returns nil when no article has the id.
func (s *PostgresStore) ArticleByID(ctx context.Context, id string) (*Article, error) {
	var article Article
	err := s.db.QueryRowContext(ctx, `
		SELECT article_id, author_id, title, content, created_at
		FROM articles
		WHERE article_id = $1
	`, id).Scan(&article.ID, &article.AuthorID, &article.Title, &article.Content, &article.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError("get article", err)
	}
	return &article, nil
}

// TagsFor returns nil when the article has no tags.
func (s *PostgresStore) TagsFor(ctx context.Context, articleID string) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT article_id, tag_name
		FROM tags
		WHERE article_id = $1
		ORDER BY tag_name
	`, articleID)
	if err != nil {
		return nil, storageError("list tags", err)
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		var tag Tag
		if err := rows.Scan(&tag.ArticleID, &tag.Name); err != nil {
			return nil, storageError("scan tag", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list tags", err)
	}
	return tags, nil
}

// ReferencesFor returns nil when the article references nothing.
func (s *PostgresStore) ReferencesFor(ctx context.Context, articleID string) ([]Reference, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.article_id, r.to_article_id, a.title
		FROM article_references r
		JOIN articles a ON a.article_id = r.to_article_id
		WHERE r.article_id = $1
		ORDER BY a.title
	`, articleID)
	if err != nil {
		return nil, storageError("list references", err)
	}
	defer rows.Close()

	var references []Reference
	for rows.Next() {
		var ref Reference
		if err := rows.Scan(&ref.ArticleID, &ref.ToArticleID, &ref.ToTitle); err != nil {
			return nil, storageError("scan reference", err)
		}
		references = append(references, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list references", err)
	}
	return references, nil
}

const articleViewsQuery = `
	WITH matched AS (
		SELECT a.article_id, a.author_id, COALESCE(u.username, '') AS author_name,
			a.title, a.content, a.created_at
		FROM articles a
		LEFT JOIN users u ON u.id = a.author_id
		WHERE %s
		ORDER BY a.title
		%s
	),
	tag_sets AS (
		SELECT t.article_id, jsonb_agg(DISTINCT t.tag_name ORDER BY t.tag_name) AS tags
		FROM tags t
		JOIN matched m ON m.article_id = t.article_id
		GROUP BY t.article_id
	),
	reference_sets AS (
		SELECT r.article_id,
			jsonb_agg(DISTINCT jsonb_build_object('id', r.to_article_id, 'title', ra.title)) AS refs
		FROM article_references r
		JOIN matched m ON m.article_id = r.article_id
		JOIN articles ra ON ra.article_id = r.to_article_id
		GROUP BY r.article_id
	),
	vote_sets AS (
		SELECT v.article_id,
			jsonb_agg(DISTINCT v.user_id) FILTER (WHERE v.value) AS upvoters,
			jsonb_agg(DISTINCT v.user_id) FILTER (WHERE NOT v.value) AS downvoters
		FROM votes v
		JOIN matched m ON m.article_id = v.article_id
		GROUP BY v.article_id
	)
	SELECT m.article_id, m.author_id, m.author_name, m.title, m.content, m.created_at,
		COALESCE(ts.tags, '[]'::jsonb),
		COALESCE(rs.refs, '[]'::jsonb),
		COALESCE(vs.upvoters, '[]'::jsonb),
		COALESCE(vs.downvoters, '[]'::jsonb)
	FROM matched m
	LEFT JOIN tag_sets ts ON ts.article_id = m.article_id
	LEFT JOIN reference_sets rs ON rs.article_id = m.article_id
	LEFT JOIN vote_sets vs ON vs.article_id = m.article_id
	ORDER BY m.title
`

// ViewsByTitle matches titles case-insensitively by substring. No match is an
// empty slice, never an error.
func (s *PostgresStore) ViewsByTitle(ctx context.Context, query string, limit int) ([]ArticleView, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []ArticleView{}, nil
	}
	pattern := "%" + escapeLike(query) + "%"
	return s.queryViews(ctx, `a.title ILIKE $1 ESCAPE '\'`, []any{pattern}, limit)
}

// ViewByID returns nil when the article does not exist.
func (s *PostgresStore) ViewByID(ctx context.Context, id string) (*ArticleView, error) {
	views, err := s.queryViews(ctx, `a.article_id = $1`, []any{id}, 1)
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, nil
	}
	return &views[0], nil
}

// ViewsMatchingTags selects articles satisfying the predicate tree.
func (s *PostgresStore) ViewsMatchingTags(ctx context.Context, predicate tagquery.Node, limit int) ([]ArticleView, error) {
	filter, err := tagquery.Compile(predicate, 1)
	if err != nil {
		return nil, err
	}
	return s.queryViews(ctx, filter.SQL, filter.Args, limit)
}

// AllViews loads every article; used to rebuild the search index.
func (s *PostgresStore) AllViews(ctx context.Context) ([]ArticleView, error) {
	return s.queryViews(ctx, "TRUE", nil, 0)
}

func (s *PostgresStore) queryViews(ctx context.Context, where string, args []any, limit int) ([]ArticleView, error) {
	limitClause := ""
	if limit > 0 {
		args = append(args, limit)
		limitClause = fmt.Sprintf("LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(articleViewsQuery, where, limitClause), args...)
	if err != nil {
		return nil, storageError("query article views", err)
	}
	defer rows.Close()

	views := []ArticleView{}
	for rows.Next() {
		var view ArticleView
		var tags, refs, upvoters, downvoters []byte
		if err := rows.Scan(
			&view.ID, &view.AuthorID, &view.AuthorName, &view.Title, &view.Content, &view.CreatedAt,
			&tags, &refs, &upvoters, &downvoters,
		); err != nil {
			return nil, storageError("scan article view", err)
		}
		if err := unpackView(&view, tags, refs, upvoters, downvoters); err != nil {
			return nil, storageError("decode article view", err)
		}
		views = append(views, view)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("query article views", err)
	}
	return views, nil
}

func unpackView(view *ArticleView, tags, refs, upvoters, downvoters []byte) error {
	view.Tags = []string{}
	view.References = []ReferenceView{}
	view.Upvoters = []string{}
	view.Downvoters = []string{}

	if err := json.Unmarshal(tags, &view.Tags); err != nil {
		return fmt.Errorf("tags: %w", err)
	}
	if err := json.Unmarshal(refs, &view.References); err != nil {
		return fmt.Errorf("references: %w", err)
	}
	if err := json.Unmarshal(upvoters, &view.Upvoters); err != nil {
		return fmt.Errorf("upvoters: %w", err)
	}
	if err := json.Unmarshal(downvoters, &view.Downvoters); err != nil {
		return fmt.Errorf("downvoters: %w", err)
	}
	sort.Slice(view.References, func(i, j int) bool {
		if view.References[i].Title == view.References[j].Title {
			return view.References[i].ID < view.References[j].ID
		}
		return view.References[i].Title < view.References[j].Title
	})
	sort.Strings(view.Upvoters)
	sort.Strings(view.Downvoters)
	return nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}

// VoteOf reports the stored vote of userID on articleID, or NotVoted.
func (s *PostgresStore) VoteOf(ctx context.Context, articleID, userID string) (VoteState, error) {
	var up bool
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM votes WHERE article_id = $1 AND user_id = $2
	`, articleID, userID).Scan(&up)
	if errors.Is(err, sql.ErrNoRows) {
		return NotVoted, nil
	}
	if err != nil {
		return NotVoted, storageError("get vote", err)
	}
	if up {
		return Upvoted, nil
	}
	return Downvoted, nil
}

// UpsertVote records the vote in a single statement; an existing vote by the
// same user on the same article is overwritten in place.
func (s *PostgresStore) UpsertVote(ctx context.Context, articleID, userID string, up bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO votes (article_id, user_id, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (article_id, user_id)
		DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, articleID, userID, up)
	if err != nil {
		if missing := voteViolation(err); missing != nil {
			return missing
		}
		return storageError("upsert vote", err)
	}
	return nil
}

// DeleteVote is idempotent: deleting a vote that does not exist succeeds.
func (s *PostgresStore) DeleteVote(ctx context.Context, articleID, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM votes WHERE article_id = $1 AND user_id = $2`, articleID, userID); err != nil {
		return storageError("delete vote", err)
	}
	return nil
}
