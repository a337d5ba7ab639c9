package ingest

import (
	"bytes"
	"errors"
	"net/url"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/go-shiori/go-readability"
	"github.com/markusmobius/go-trafilatura"
	"golang.org/x/net/html"
)

var errEmptyHTML = errors.New("ingest: empty HTML input")

var (
	_ Extractor = (*ReadabilityExtractor)(nil)
	_ Extractor = (*TrafilaturaExtractor)(nil)
	_ Converter = (*MarkdownConverter)(nil)
)

// ReadabilityExtractor extracts articles with go-readability.
type ReadabilityExtractor struct{}

// Extract returns the main article of doc.
func (ReadabilityExtractor) Extract(doc []byte, pageURL *url.URL) (*Article, error) {
	if len(bytes.TrimSpace(doc)) == 0 {
		return nil, errEmptyHTML
	}
	article, err := readability.FromReader(bytes.NewReader(doc), pageURL)
	if err != nil {
		return nil, err
	}
	return &Article{
		Title:       strings.TrimSpace(article.Title),
		Excerpt:     strings.TrimSpace(article.Excerpt),
		ContentHTML: article.Content,
	}, nil
}

// TrafilaturaExtractor extracts articles with go-trafilatura.
type TrafilaturaExtractor struct{}

// Extract returns the main article of doc.
func (TrafilaturaExtractor) Extract(doc []byte, pageURL *url.URL) (*Article, error) {
	if len(bytes.TrimSpace(doc)) == 0 {
		return nil, errEmptyHTML
	}
	result, err := trafilatura.Extract(bytes.NewReader(doc), trafilatura.Options{
		EnableFallback: true,
		OriginalURL:    pageURL,
	})
	if err != nil {
		return nil, err
	}
	var content string
	if result.ContentNode != nil {
		var buf bytes.Buffer
		if err := html.Render(&buf, result.ContentNode); err != nil {
			return nil, err
		}
		content = buf.String()
	}
	return &Article{
		Title:       strings.TrimSpace(result.Metadata.Title),
		Excerpt:     strings.TrimSpace(result.Metadata.Description),
		ContentHTML: content,
	}, nil
}

// Extractor names accepted by NewExtractor.
const (
	ExtractorReadability = "readability"
	ExtractorTrafilatura = "trafilatura"
)

// NewExtractor returns the extractor registered under name. An empty name
// selects readability.
func NewExtractor(name string) (Extractor, error) {
	switch name {
	case "", ExtractorReadability:
		return ReadabilityExtractor{}, nil
	case ExtractorTrafilatura:
		return TrafilaturaExtractor{}, nil
	}
	return nil, errors.New("ingest: unknown extractor " + name)
}

// MarkdownConverter converts HTML to CommonMark with table support.
type MarkdownConverter struct {
	conv *converter.Converter
}

// NewMarkdownConverter creates a converter.
func NewMarkdownConverter() *MarkdownConverter {
	return &MarkdownConverter{conv: converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)}
}

// Convert transforms HTML into Markdown. Blank input yields "".
func (c *MarkdownConverter) Convert(doc string) (string, error) {
	if strings.TrimSpace(doc) == "" {
		return "", nil
	}
	md, err := c.conv.ConvertString(doc)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(md) + "\n", nil
}
