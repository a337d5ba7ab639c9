package ingest

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// pageMeta is what the document head says about itself.
type pageMeta struct {
	Title       string
	Description string
}

// readMeta reads <title> and description meta tags, preferring OpenGraph.
func readMeta(doc []byte) pageMeta {
	d, err := goquery.NewDocumentFromReader(bytes.NewReader(doc))
	if err != nil {
		return pageMeta{}
	}
	attr := func(selector string) string {
		v, _ := d.Find(selector).First().Attr("content")
		return strings.TrimSpace(v)
	}
	m := pageMeta{
		Title:       attr(`meta[property="og:title"]`),
		Description: attr(`meta[property="og:description"]`),
	}
	if m.Title == "" {
		m.Title = strings.TrimSpace(d.Find("head title").First().Text())
	}
	if m.Description == "" {
		m.Description = attr(`meta[name="description"]`)
	}
	return m
}
