package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// PgFTS searches the generated articles.fts column.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; without Postgres nothing else works either.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search ranks articles with ts_rank over plainto_tsquery and builds
// snippets with ts_headline.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := "a.fts @@ plainto_tsquery('english', $1)"
	args := []any{q.Text}
	if q.Tag != "" {
		where += " AND EXISTS (SELECT 1 FROM tags t WHERE t.article_id = a.article_id AND t.tag_name = $2)"
		args = append(args, q.Tag)
	}

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM articles a WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT a.article_id, a.title,
			ts_headline('english', a.content, plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30,StartSel=<mark>,StopSel=</mark>'),
			COALESCE(u.username, ''),
			COALESCE((SELECT jsonb_agg(t.tag_name ORDER BY t.tag_name) FROM tags t WHERE t.article_id = a.article_id), '[]'::jsonb)
		FROM articles a
		LEFT JOIN users u ON u.id = a.author_id
		WHERE %s
		ORDER BY ts_rank(a.fts, plainto_tsquery('english', $1)) DESC, a.title
		LIMIT %d OFFSET %d`, where, limit, offset), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var tags []byte
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.AuthorName, &tags); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		if err := json.Unmarshal(tags, &r.Tags); err != nil {
			return nil, 0, fmt.Errorf("pgfts decode tags: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}
