package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/models"
)

const idCounter = "dataobj_id"

// Sort orders accepted by Filter.
const (
	SortDateDesc = "date_desc"
	SortDateAsc  = "date_asc"
	SortTitle    = "title"
	SortID       = "id"
)

// Filter selects rows for Query. Zero values mean "no constraint".
type Filter struct {
	Types  []models.Type
	Path   *string // exact folder; "" is the root folder
	Tag    *string
	Limit  int
	Offset int
	Sort   string
}

const summaryColumns = `id, type, title, tags, path, date, url, description, external_id`

// NextID allocates the next document id. Ids are never handed out twice,
// even after the document they named is deleted.
func (db *DB) NextID() (int, error) {
	db.idMu.Lock()
	defer db.idMu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	var id int
	err = tx.QueryRow(`UPDATE counters SET value = value + 1 WHERE name = ? RETURNING value`, idCounter).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("index: next id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("index: commit next id: %w", err)
	}
	return id, nil
}

// EnsureCounter raises the id counter to at least n.
func (db *DB) EnsureCounter(n int) error {
	db.idMu.Lock()
	defer db.idMu.Unlock()
	_, err := db.conn.Exec(`UPDATE counters SET value = max(value, ?) WHERE name = ?`, n, idCounter)
	if err != nil {
		return fmt.Errorf("index: ensure counter: %w", err)
	}
	return nil
}

// Upsert inserts or replaces the record for s.
func (db *DB) Upsert(s models.Summary, checksum string) error {
	tags := s.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, _ := json.Marshal(tags)

	_, err := db.conn.Exec(`
		INSERT INTO dataobjs (id, type, title, tags, path, date, url, description, external_id, checksum)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type        = excluded.type,
			title       = excluded.title,
			tags        = excluded.tags,
			path        = excluded.path,
			date        = excluded.date,
			url         = excluded.url,
			description = excluded.description,
			external_id = excluded.external_id,
			checksum    = excluded.checksum
	`, s.ID, string(s.Type), s.Title, string(tagsJSON), s.Path, s.Date.Unix(), s.URL, s.Desc, s.ExternalID, checksum)
	if err != nil {
		return fmt.Errorf("index: upsert %d: %w", s.ID, err)
	}
	return nil
}

// Remove deletes the record for id, returning apperr.ErrNotFound if there was none.
func (db *DB) Remove(id int) error {
	res, err := db.conn.Exec(`DELETE FROM dataobjs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("index: remove %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("index: record %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// Get returns the record for id.
func (db *DB) Get(id int) (*models.Summary, error) {
	row := db.conn.QueryRow(`SELECT `+summaryColumns+` FROM dataobjs WHERE id = ?`, id)
	s, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: record %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get %d: %w", id, err)
	}
	return &s, nil
}

// Query returns the records matching f and the total count before paging.
func (db *DB) Query(f Filter) ([]models.Summary, int, error) {
	var (
		where []string
		args  []any
	)
	if len(f.Types) > 0 {
		marks := make([]string, len(f.Types))
		for i, t := range f.Types {
			marks[i] = "?"
			args = append(args, string(t))
		}
		where = append(where, "type IN ("+strings.Join(marks, ", ")+")")
	}
	if f.Path != nil {
		where = append(where, "path = ?")
		args = append(args, models.NormalizePath(*f.Path))
	}
	if f.Tag != nil {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(dataobjs.tags) WHERE value = ?)")
		args = append(args, *f.Tag)
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM dataobjs`+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count: %w", err)
	}

	order := "date DESC, id DESC"
	switch f.Sort {
	case SortDateAsc:
		order = "date ASC, id ASC"
	case SortTitle:
		order = "title COLLATE NOCASE ASC, id ASC"
	case SortID:
		order = "id ASC"
	}
	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}

	q := `SELECT ` + summaryColumns + ` FROM dataobjs` + cond + ` ORDER BY ` + order + ` LIMIT ? OFFSET ?`
	rows, err := db.conn.Query(q, append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: query: %w", err)
	}
	defer rows.Close()

	out := make([]models.Summary, 0)
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("index: scan: %w", err)
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// MaxDate returns the newest date among records of type t, or the zero time.
func (db *DB) MaxDate(t models.Type) (time.Time, error) {
	var v sql.NullInt64
	if err := db.conn.QueryRow(`SELECT max(date) FROM dataobjs WHERE type = ?`, string(t)).Scan(&v); err != nil {
		return time.Time{}, fmt.Errorf("index: max date: %w", err)
	}
	if !v.Valid {
		return time.Time{}, nil
	}
	return time.Unix(v.Int64, 0).UTC(), nil
}

// ExternalIDs returns the set of external ids already stored for type t.
func (db *DB) ExternalIDs(t models.Type) (map[string]struct{}, error) {
	rows, err := db.conn.Query(`SELECT external_id FROM dataobjs WHERE type = ? AND external_id != ''`, string(t))
	if err != nil {
		return nil, fmt.Errorf("index: external ids: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

// AllChecksums returns id -> checksum for every record.
func (db *DB) AllChecksums() (map[int]string, error) {
	rows, err := db.conn.Query(`SELECT id, checksum FROM dataobjs`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[int]string)
	for rows.Next() {
		var (
			id int
			cs string
		)
		if err := rows.Scan(&id, &cs); err != nil {
			return nil, err
		}
		out[id] = cs
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(sc scanner) (models.Summary, error) {
	var (
		s        models.Summary
		typ      string
		tagsJSON string
		date     int64
	)
	if err := sc.Scan(&s.ID, &typ, &s.Title, &tagsJSON, &s.Path, &date, &s.URL, &s.Desc, &s.ExternalID); err != nil {
		return s, err
	}
	s.Type = models.Type(typ)
	s.Date = time.Unix(date, 0).UTC()
	if err := json.Unmarshal([]byte(tagsJSON), &s.Tags); err != nil || s.Tags == nil {
		s.Tags = []string{}
	}
	return s, nil
}
