package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"strings"

	"github.com/starford/quire/internal/models"
)

// Pipeline builds bookmarks from URLs and hands them to an Inserter.
type Pipeline struct {
	fetcher   Fetcher
	extractor Extractor
	converter Converter
	inserter  Inserter
	logger    *slog.Logger
}

// NewPipeline wires a pipeline.
func NewPipeline(f Fetcher, e Extractor, c Converter, ins Inserter, logger *slog.Logger) *Pipeline {
	return &Pipeline{fetcher: f, extractor: e, converter: c, inserter: ins, logger: logger}
}

// Build fetches req.URL and returns an unsaved bookmark. HTML pages contribute
// title, excerpt and Markdown content; other resources keep an empty body.
func (p *Pipeline) Build(ctx context.Context, req BookmarkRequest) (*models.DataObj, error) {
	typ := req.Type
	if typ == "" {
		typ = models.TypeBookmark
	}
	obj := &models.DataObj{
		Type:       typ,
		URL:        strings.TrimSpace(req.URL),
		Title:      strings.TrimSpace(req.Title),
		Desc:       strings.TrimSpace(req.Desc),
		Tags:       req.Tags,
		Path:       req.Path,
		ExternalID: req.ExternalID,
	}
	// Reject malformed input before any network traffic.
	if err := obj.Validate(); err != nil {
		return nil, err
	}

	page, err := p.fetcher.Fetch(ctx, obj.URL)
	if err != nil {
		return nil, err
	}
	if isHTML(page.ContentType, page.Body) {
		p.fillFromHTML(obj, page)
	}
	if obj.Title == "" {
		obj.Title = obj.URL
	}
	return obj, nil
}

func (p *Pipeline) fillFromHTML(obj *models.DataObj, page *Page) {
	meta := readMeta(page.Body)
	art, err := p.extractor.Extract(page.Body, page.URL)
	if err != nil {
		p.logger.Warn("ingest: extract failed", slog.String("url", obj.URL), slog.String("error", err.Error()))
		art = &Article{}
	}
	if obj.Title == "" {
		obj.Title = firstNonEmpty(art.Title, meta.Title)
	}
	if obj.Desc == "" {
		obj.Desc = firstNonEmpty(art.Excerpt, meta.Description)
	}
	content, err := p.converter.Convert(art.ContentHTML)
	if err != nil {
		p.logger.Warn("ingest: convert failed", slog.String("url", obj.URL), slog.String("error", err.Error()))
		return
	}
	obj.Content = content
}

// Add builds the bookmark for req and stores it. The returned object carries
// its id even when the error only reports an index inconsistency.
func (p *Pipeline) Add(ctx context.Context, req BookmarkRequest) (*models.DataObj, error) {
	obj, err := p.Build(ctx, req)
	if err != nil {
		return nil, err
	}
	if _, err := p.inserter.Insert(ctx, obj); err != nil {
		if obj.ID == 0 {
			return nil, fmt.Errorf("ingest: insert: %w", err)
		}
		return obj, err
	}
	p.logger.Info("ingest: bookmark added", slog.Int("id", obj.ID), slog.String("url", obj.URL))
	return obj, nil
}

func isHTML(contentType string, body []byte) bool {
	if contentType != "" {
		mt, _, err := mime.ParseMediaType(contentType)
		return err == nil && (mt == "text/html" || mt == "application/xhtml+xml")
	}
	head := strings.ToLower(string(body[:min(len(body), 512)]))
	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
