//go:build sqlite_fts5

package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/quire/internal/search"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS dataobjs_fts USING fts5(
			id UNINDEXED,
			title,
			body,
			tags,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(ctx context.Context, tx *sql.Tx, id int, title, body string, tags []string) error {
	_, _ = tx.ExecContext(ctx, `DELETE FROM dataobjs_fts WHERE id = ?`, id)
	_, err := tx.ExecContext(ctx, `INSERT INTO dataobjs_fts (id, title, body, tags) VALUES (?, ?, ?, ?)`,
		id, title, body, strings.Join(tags, " "))
	if err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(ctx context.Context, conn *sql.DB, id int) error {
	if _, err := conn.ExecContext(ctx, `DELETE FROM dataobjs_fts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("index: delete fts: %w", err)
	}
	return nil
}

// ftsQuery matches every term as a quoted phrase prefix and ranks with bm25,
// weighting the title double.
func ftsQuery(ctx context.Context, conn *sql.DB, terms []string, limit int) ([]search.Hit, error) {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"*`
	}
	rows, err := conn.QueryContext(ctx, `
		SELECT id,
		       title,
		       snippet(dataobjs_fts, 2, '<b>', '</b>', '...', 16),
		       -bm25(dataobjs_fts, 0.0, 2.0, 1.0, 1.0)
		FROM dataobjs_fts
		WHERE dataobjs_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, strings.Join(quoted, " "), limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	out := make([]search.Hit, 0)
	for rows.Next() {
		var h search.Hit
		if err := rows.Scan(&h.ID, &h.Title, &h.Snippet, &h.Score); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
