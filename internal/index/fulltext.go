package index

import (
	"context"
	"strings"
	"unicode"

	"github.com/orsinium-labs/stopwords"

	"github.com/starford/quire/internal/search"
)

const snippetRadius = 64

var english = stopwords.MustGet("en")

// FullText is the embedded search engine backed by the index database.
type FullText struct {
	db *DB
}

// NewFullText returns the SQLite search engine for db.
func NewFullText(db *DB) *FullText {
	return &FullText{db: db}
}

var _ search.Engine = (*FullText)(nil)

// Index replaces the searchable text of doc.
func (f *FullText) Index(ctx context.Context, doc search.Document) error {
	tx, err := f.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	body := doc.Text
	if doc.Desc != "" {
		body = doc.Desc + "\n" + body
	}
	if err := ftsUpsert(ctx, tx, doc.ID, doc.Title, body, doc.Tags); err != nil {
		return err
	}
	return tx.Commit()
}

// Remove drops the searchable text of id.
func (f *FullText) Remove(ctx context.Context, id int) error {
	return ftsDelete(ctx, f.db.conn, id)
}

// Query searches for text and returns up to limit ranked hits.
func (f *FullText) Query(ctx context.Context, text string, limit int) ([]search.Hit, error) {
	terms := queryTerms(text)
	if len(terms) == 0 {
		return []search.Hit{}, nil
	}
	if limit <= 0 {
		limit = 20
	}
	return ftsQuery(ctx, f.db.conn, terms, limit)
}

// queryTerms splits text into lowercase words. Stop words are dropped unless
// nothing else remains.
func queryTerms(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var kept []string
	for _, w := range words {
		if !english.Contains(w) {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		return words
	}
	return kept
}

// snippet cuts a window of body around the first occurrence of any term.
// Positions are counted in runes of body so case folding cannot shift them.
func snippet(body string, terms []string) string {
	runes := []rune(body)
	folded := make([]rune, len(runes))
	for i, r := range runes {
		folded[i] = unicode.ToLower(r)
	}
	pos := -1
	for _, t := range terms {
		if i := indexRunes(folded, []rune(t)); i >= 0 && (pos < 0 || i < pos) {
			pos = i
		}
	}
	if pos < 0 {
		if len(runes) > 2*snippetRadius {
			return string(runes[:2*snippetRadius]) + "..."
		}
		return body
	}
	start, end := pos-snippetRadius, pos+snippetRadius
	prefix, suffix := "...", "..."
	if start <= 0 {
		start, prefix = 0, ""
	}
	if end >= len(runes) {
		end, suffix = len(runes), ""
	}
	return prefix + string(runes[start:end]) + suffix
}

// indexRunes returns the index of the first sub in s, or -1.
func indexRunes(s, sub []rune) int {
	if len(sub) == 0 {
		return -1
	}
	for i := 0; i+len(sub) <= len(s); i++ {
		match := true
		for j, r := range sub {
			if s[i+j] != r {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
