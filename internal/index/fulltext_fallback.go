//go:build !sqlite_fts5

package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/starford/quire/internal/search"
)

func initFTS(conn *sql.DB) error {
	// FTS5 not compiled in; search scans a plain table with LIKE.
	_, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS fulltext (
			id    INTEGER PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			body  TEXT NOT NULL DEFAULT '',
			tags  TEXT NOT NULL DEFAULT '[]'
		);
	`)
	return err
}

func ftsUpsert(ctx context.Context, tx *sql.Tx, id int, title, body string, tags []string) error {
	tagsJSON, _ := json.Marshal(tags)
	_, err := tx.ExecContext(ctx, `
		INSERT INTO fulltext (id, title, body, tags) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, body = excluded.body, tags = excluded.tags
	`, id, title, body, string(tagsJSON))
	if err != nil {
		return fmt.Errorf("index: upsert fulltext: %w", err)
	}
	return nil
}

func ftsDelete(ctx context.Context, conn *sql.DB, id int) error {
	if _, err := conn.ExecContext(ctx, `DELETE FROM fulltext WHERE id = ?`, id); err != nil {
		return fmt.Errorf("index: delete fulltext: %w", err)
	}
	return nil
}

// ftsQuery requires every term to appear somewhere in the document and
// scores by occurrence count, weighting the title double.
func ftsQuery(ctx context.Context, conn *sql.DB, terms []string, limit int) ([]search.Hit, error) {
	var (
		where []string
		args  []any
	)
	for _, t := range terms {
		like := "%" + t + "%"
		where = append(where, "(lower(title) LIKE ? OR lower(body) LIKE ? OR lower(tags) LIKE ?)")
		args = append(args, like, like, like)
	}
	rows, err := conn.QueryContext(ctx,
		`SELECT id, title, body FROM fulltext WHERE `+strings.Join(where, " AND "), args...)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	out := make([]search.Hit, 0)
	for rows.Next() {
		var (
			h    search.Hit
			body string
		)
		if err := rows.Scan(&h.ID, &h.Title, &body); err != nil {
			return nil, err
		}
		title, lbody := strings.ToLower(h.Title), strings.ToLower(body)
		for _, t := range terms {
			h.Score += 2*float64(strings.Count(title, t)) + float64(strings.Count(lbody, t))
		}
		h.Snippet = snippet(body, terms)
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
