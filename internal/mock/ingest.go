// Package mock provides function-field fakes of the ingestion interfaces.
package mock

import (
	"context"
	"net/url"
	"time"

	"github.com/starford/quire/internal/ingest"
	"github.com/starford/quire/internal/models"
)

var (
	_ ingest.Fetcher   = (*Fetcher)(nil)
	_ ingest.Extractor = (*Extractor)(nil)
	_ ingest.Converter = (*Converter)(nil)
	_ ingest.Inserter  = (*Inserter)(nil)
	_ ingest.Source    = (*Source)(nil)
	_ ingest.Ledger    = (*Ledger)(nil)
)

// Fetcher is a mock implementation of ingest.Fetcher.
type Fetcher struct {
	FetchFn func(ctx context.Context, rawURL string) (*ingest.Page, error)
}

func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*ingest.Page, error) {
	return f.FetchFn(ctx, rawURL)
}

// Extractor is a mock implementation of ingest.Extractor.
type Extractor struct {
	ExtractFn func(html []byte, pageURL *url.URL) (*ingest.Article, error)
}

func (e *Extractor) Extract(html []byte, pageURL *url.URL) (*ingest.Article, error) {
	return e.ExtractFn(html, pageURL)
}

// Converter is a mock implementation of ingest.Converter.
type Converter struct {
	ConvertFn func(html string) (string, error)
}

func (c *Converter) Convert(html string) (string, error) {
	return c.ConvertFn(html)
}

// Inserter is a mock implementation of ingest.Inserter.
type Inserter struct {
	InsertFn func(ctx context.Context, obj *models.DataObj) (int, error)
}

func (i *Inserter) Insert(ctx context.Context, obj *models.DataObj) (int, error) {
	return i.InsertFn(ctx, obj)
}

// Source is a mock implementation of ingest.Source.
type Source struct {
	NameFn     func() string
	RetrieveFn func(ctx context.Context, since time.Time) ([]models.ExternalItem, error)
}

func (s *Source) Name() string {
	if s.NameFn == nil {
		return "mock"
	}
	return s.NameFn()
}

func (s *Source) Retrieve(ctx context.Context, since time.Time) ([]models.ExternalItem, error) {
	return s.RetrieveFn(ctx, since)
}

// Ledger is a mock implementation of ingest.Ledger.
type Ledger struct {
	MaxDateFn     func(t models.Type) (time.Time, error)
	ExternalIDsFn func(t models.Type) (map[string]struct{}, error)
}

func (l *Ledger) MaxDate(t models.Type) (time.Time, error) {
	return l.MaxDateFn(t)
}

func (l *Ledger) ExternalIDs(t models.Type) (map[string]struct{}, error) {
	return l.ExternalIDsFn(t)
}
