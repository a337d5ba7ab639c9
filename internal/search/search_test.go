package search

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/quire/internal/models"
)

type fakeEngine struct {
	docs     map[int]Document
	indexErr error
	hits     []Hit
}

func (f *fakeEngine) Index(_ context.Context, doc Document) error {
	if f.indexErr != nil {
		return f.indexErr
	}
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeEngine) Remove(_ context.Context, id int) error {
	delete(f.docs, id)
	return nil
}

func (f *fakeEngine) Query(context.Context, string, int) ([]Hit, error) {
	return f.hits, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPlainText(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"empty", "", ""},
		{"heading and emphasis", "# Title\n\nSome *bold* and `code`.", "Title Some bold and code."},
		{"link", "See [the docs](https://example.com) now", "See the docs now"},
		{"list", "- one\n- two\n", "one two"},
		{"fenced code", "```go\nfmt.Println(1)\n```\n", "fmt.Println(1)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, PlainText(tc.in))
		})
	}
}

func TestDisabledSynchronizer(t *testing.T) {
	s := NewSynchronizer(nil, discard())
	assert.False(t, s.Enabled())

	s.Index(context.Background(), &models.DataObj{ID: 1})
	s.Remove(context.Background(), 1)

	hits, err := s.Query(context.Background(), "anything", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSynchronizerForwards(t *testing.T) {
	eng := &fakeEngine{docs: map[int]Document{}, hits: []Hit{{ID: 3, Score: 1}}}
	s := NewSynchronizer(eng, discard())

	s.Index(context.Background(), &models.DataObj{ID: 3, Title: "T", Content: "**hi**"})
	require.Contains(t, eng.docs, 3)
	assert.Equal(t, "hi", eng.docs[3].Text)

	hits, err := s.Query(context.Background(), "hi", 0)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	s.Remove(context.Background(), 3)
	assert.NotContains(t, eng.docs, 3)
}

func TestSynchronizerSwallowsIndexErrors(t *testing.T) {
	eng := &fakeEngine{docs: map[int]Document{}, indexErr: errors.New("boom")}
	s := NewSynchronizer(eng, discard())
	assert.NotPanics(t, func() {
		s.Index(context.Background(), &models.DataObj{ID: 1})
	})
	assert.Empty(t, eng.docs)
}
