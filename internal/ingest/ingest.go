// Package ingest turns web pages into bookmark DataObjs, either one URL at a
// time or by pulling new items from an external bookmarking service.
package ingest

import (
	"context"
	"net/url"
	"time"

	"github.com/starford/quire/internal/models"
)

// Page is a fetched remote resource.
type Page struct {
	URL         *url.URL // final URL after redirects
	ContentType string
	Body        []byte
}

// Article is the main content extracted from an HTML page.
type Article struct {
	Title       string
	Excerpt     string
	ContentHTML string
}

// Fetcher retrieves remote resources. Transport failures, timeouts and
// non-2xx responses are reported as apperr.ErrUpstream.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Page, error)
}

// Extractor pulls the readable article out of an HTML document.
type Extractor interface {
	Extract(html []byte, pageURL *url.URL) (*Article, error)
}

// Converter renders article HTML as Markdown.
type Converter interface {
	Convert(html string) (string, error)
}

// Inserter stores a new DataObj and returns its id.
type Inserter interface {
	Insert(ctx context.Context, obj *models.DataObj) (int, error)
}

// Source is an external bookmarking service.
type Source interface {
	Name() string
	// Retrieve returns items added or changed after since. A zero since means everything.
	Retrieve(ctx context.Context, since time.Time) ([]models.ExternalItem, error)
}

// Ledger answers what has already been ingested.
type Ledger interface {
	MaxDate(t models.Type) (time.Time, error)
	ExternalIDs(t models.Type) (map[string]struct{}, error)
}

// BookmarkRequest describes a bookmark to build. Empty Title and Desc are
// filled from the fetched page.
type BookmarkRequest struct {
	URL        string      `json:"url"`
	Title      string      `json:"title,omitempty"`
	Desc       string      `json:"desc,omitempty"`
	Tags       []string    `json:"tags,omitempty"`
	Path       string      `json:"path,omitempty"`
	Type       models.Type `json:"-"`
	ExternalID string      `json:"-"`
}
