// Package elastic implements search.Engine on an Elasticsearch cluster.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/search"
)

const mapping = `{
  "mappings": {
    "properties": {
      "type":  {"type": "keyword"},
      "title": {"type": "text"},
      "tags":  {"type": "keyword"},
      "url":   {"type": "keyword", "index": false},
      "desc":  {"type": "text"},
      "content": {"type": "text"}
    }
  }
}`

// Config holds connection settings.
type Config struct {
	Addresses []string
	Username  string
	Password  string
	Index     string
	Transport http.RoundTripper
}

// Engine stores documents in a single Elasticsearch index.
type Engine struct {
	es    *elasticsearch.Client
	index string

	mu    sync.Mutex
	ready bool
}

var _ search.Engine = (*Engine)(nil)

// New creates an Engine. The index is created on first use.
func New(cfg Config) (*Engine, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("elastic: new client: %w", err)
	}
	index := cfg.Index
	if index == "" {
		index = "quire"
	}
	return &Engine{es: es, index: index}, nil
}

type source struct {
	Type    string   `json:"type"`
	Title   string   `json:"title"`
	Tags    []string `json:"tags"`
	URL     string   `json:"url,omitempty"`
	Desc    string   `json:"desc,omitempty"`
	Content string   `json:"content"`
}

// Index stores doc under its id.
func (e *Engine) Index(ctx context.Context, doc search.Document) error {
	if err := e.ensureIndex(ctx); err != nil {
		return err
	}
	body, err := json.Marshal(source{
		Type:    string(doc.Type),
		Title:   doc.Title,
		Tags:    doc.Tags,
		URL:     doc.URL,
		Desc:    doc.Desc,
		Content: doc.Text,
	})
	if err != nil {
		return fmt.Errorf("elastic: encode %d: %w", doc.ID, err)
	}
	res, err := e.es.Index(e.index, bytes.NewReader(body),
		e.es.Index.WithContext(ctx),
		e.es.Index.WithDocumentID(strconv.Itoa(doc.ID)),
		e.es.Index.WithRefresh("wait_for"),
	)
	if err := check("index", res, err); err != nil {
		return err
	}
	res.Body.Close()
	return nil
}

// Remove deletes the document for id. A missing document is not an error.
func (e *Engine) Remove(ctx context.Context, id int) error {
	res, err := e.es.Delete(e.index, strconv.Itoa(id), e.es.Delete.WithContext(ctx))
	if err == nil && res.StatusCode == http.StatusNotFound {
		res.Body.Close()
		return nil
	}
	if err := check("delete", res, err); err != nil {
		return err
	}
	res.Body.Close()
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID        string              `json:"_id"`
			Score     float64             `json:"_score"`
			Source    source              `json:"_source"`
			Highlight map[string][]string `json:"highlight"`
		} `json:"hits"`
	} `json:"hits"`
}

// Query runs a fuzzy multi-field match.
func (e *Engine) Query(ctx context.Context, text string, limit int) ([]search.Hit, error) {
	q := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":     text,
				"fields":    []string{"title^2", "tags^2", "desc", "content"},
				"fuzziness": "AUTO",
			},
		},
		"highlight": map[string]any{
			"fields": map[string]any{
				"content": map[string]any{"fragment_size": 150, "number_of_fragments": 1},
				"desc":    map[string]any{"fragment_size": 150, "number_of_fragments": 1},
			},
		},
	}
	body, _ := json.Marshal(q)
	res, err := e.es.Search(
		e.es.Search.WithContext(ctx),
		e.es.Search.WithIndex(e.index),
		e.es.Search.WithBody(bytes.NewReader(body)),
		e.es.Search.WithSize(limit),
	)
	if err == nil && res.StatusCode == http.StatusNotFound {
		// Nothing indexed yet.
		res.Body.Close()
		return []search.Hit{}, nil
	}
	if err := check("search", res, err); err != nil {
		return nil, err
	}
	defer res.Body.Close()

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("elastic: decode search: %w", err)
	}
	out := make([]search.Hit, 0, len(sr.Hits.Hits))
	for _, h := range sr.Hits.Hits {
		id, err := strconv.Atoi(h.ID)
		if err != nil {
			continue
		}
		snippet := strings.Join(h.Highlight["content"], " ")
		if snippet == "" {
			snippet = strings.Join(h.Highlight["desc"], " ")
		}
		out = append(out, search.Hit{ID: id, Title: h.Source.Title, Snippet: snippet, Score: h.Score})
	}
	return out, nil
}

func (e *Engine) ensureIndex(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ready {
		return nil
	}
	res, err := e.es.Indices.Exists([]string{e.index}, e.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return apperr.Upstream(fmt.Errorf("elastic: index exists: %w", err))
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		res, err = e.es.Indices.Create(e.index,
			e.es.Indices.Create.WithContext(ctx),
			e.es.Indices.Create.WithBody(strings.NewReader(mapping)),
		)
		if err := check("create index", res, err); err != nil {
			return err
		}
		res.Body.Close()
	}
	e.ready = true
	return nil
}

// check converts transport failures and error responses into upstream errors.
// Error responses are closed; successful ones are left to the caller.
func check(op string, res *esapi.Response, err error) error {
	if err != nil {
		return apperr.Upstream(fmt.Errorf("elastic: %s: %w", op, err))
	}
	if res.IsError() {
		defer res.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return apperr.Upstream(fmt.Errorf("elastic: %s: %s: %s", op, res.Status(), bytes.TrimSpace(msg)))
	}
	return nil
}
