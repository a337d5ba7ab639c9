// Package search keeps an optional full-text projection of the document store
// in step with it.
package search

import (
	"context"

	"github.com/starford/quire/internal/models"
)

// Document is the searchable projection of a DataObj.
type Document struct {
	ID    int
	Type  models.Type
	Title string
	Tags  []string
	URL   string
	Desc  string
	Text  string // plain text of the content body
}

// Hit is one ranked search result.
type Hit struct {
	ID      int     `json:"id"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// Engine is a full-text backend.
type Engine interface {
	Index(ctx context.Context, doc Document) error
	Remove(ctx context.Context, id int) error
	Query(ctx context.Context, text string, limit int) ([]Hit, error)
}

// DocumentOf builds the searchable projection of obj.
func DocumentOf(obj *models.DataObj) Document {
	return Document{
		ID:    obj.ID,
		Type:  obj.Type,
		Title: obj.Title,
		Tags:  obj.Tags,
		URL:   obj.URL,
		Desc:  obj.Desc,
		Text:  PlainText(obj.Content),
	}
}
