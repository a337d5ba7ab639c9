package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/dataobj"
	"github.com/starford/quire/internal/docstore"
	"github.com/starford/quire/internal/folders"
	"github.com/starford/quire/internal/index"
	"github.com/starford/quire/internal/ingest"
	"github.com/starford/quire/internal/mock"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/search"
	"github.com/starford/quire/internal/testutil"
)

func staticFetcher(pages map[string]string) *mock.Fetcher {
	return &mock.Fetcher{FetchFn: func(_ context.Context, raw string) (*ingest.Page, error) {
		body, ok := pages[raw]
		if !ok {
			return nil, apperr.Upstream(errors.New("HTTP 404"))
		}
		u, _ := url.Parse(raw)
		return &ingest.Page{URL: u, ContentType: "text/html", Body: []byte(body)}, nil
	}}
}

func fixedSource(items ...models.ExternalItem) (*mock.Source, *[]time.Time) {
	var (
		mu    sync.Mutex
		calls []time.Time
	)
	src := &mock.Source{RetrieveFn: func(_ context.Context, since time.Time) ([]models.ExternalItem, error) {
		mu.Lock()
		calls = append(calls, since)
		mu.Unlock()
		return items, nil
	}}
	return src, &calls
}

var pocketItems = []models.ExternalItem{
	{ID: "101", URL: "http://example.com/a", Title: "A", Excerpt: "about a", IsArticle: true, AddedAt: time.Unix(100, 0)},
	{ID: "102", URL: "http://example.com/b", Title: "B", Excerpt: "about b", IsArticle: false, AddedAt: time.Unix(200, 0)},
	{ID: "103", URL: "http://example.com/c", Title: "C", Archived: true, AddedAt: time.Unix(300, 0)},
}

func TestSyncer_IdempotentAgainstRealStore(t *testing.T) {
	env := testutil.NewEnv(t)
	pages := map[string]string{
		"http://example.com/a": `<html><head><title>Page A</title></head><body><p>alpha text</p></body></html>`,
		"http://example.com/b": `<html><head><title>Page B</title></head><body><p>beta text</p></body></html>`,
	}
	p := ingest.NewPipeline(staticFetcher(pages), ingest.ReadabilityExtractor{}, ingest.NewMarkdownConverter(), env.Svc, discard())
	src, calls := fixedSource(pocketItems...)
	s := ingest.NewSyncer(src, p, env.DB, 0, discard())

	rep, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Received)
	assert.Equal(t, 2, rep.Inserted)
	assert.Equal(t, 1, rep.Archived)
	assert.True(t, rep.Since.IsZero(), "first run starts at the epoch")

	rows, _, err := env.Svc.GetAll(context.Background(), index.Filter{Types: []models.Type{models.TypeExternalBookmark}, Sort: index.SortID})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "101", rows[0].ExternalID)
	assert.Equal(t, "A", rows[0].Title)
	assert.Equal(t, "about a", rows[0].Desc)
	assert.Equal(t, "B", rows[1].Title)

	rep, err = s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Inserted)
	assert.Equal(t, 2, rep.Duplicates)
	require.Len(t, *calls, 2)
	assert.False(t, (*calls)[1].IsZero(), "second run passes the watermark")

	_, total, _ := env.Svc.GetAll(context.Background(), index.Filter{})
	assert.Equal(t, 2, total)
}

func TestSyncer_FetchFailureUsesServiceMetadata(t *testing.T) {
	var inserted []*models.DataObj
	ins := &mock.Inserter{InsertFn: func(_ context.Context, obj *models.DataObj) (int, error) {
		inserted = append(inserted, obj)
		return len(inserted), nil
	}}
	p := ingest.NewPipeline(staticFetcher(nil), ingest.ReadabilityExtractor{}, ingest.NewMarkdownConverter(), ins, discard())
	src, _ := fixedSource(pocketItems[0])
	ledger := &mock.Ledger{
		MaxDateFn:     func(models.Type) (time.Time, error) { return time.Time{}, nil },
		ExternalIDsFn: func(models.Type) (map[string]struct{}, error) { return map[string]struct{}{}, nil },
	}

	rep, err := ingest.NewSyncer(src, p, ledger, 0, discard()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Inserted)
	assert.Equal(t, 1, rep.Degraded)
	require.Len(t, inserted, 1)
	assert.Equal(t, "A", inserted[0].Title)
	assert.Equal(t, "about a", inserted[0].Desc)
	assert.Equal(t, models.TypeExternalBookmark, inserted[0].Type)
}

func TestSyncer_SourceErrorSurfaces(t *testing.T) {
	src := &mock.Source{RetrieveFn: func(context.Context, time.Time) ([]models.ExternalItem, error) {
		return nil, apperr.Upstream(errors.New("HTTP 503"))
	}}
	ledger := &mock.Ledger{
		MaxDateFn:     func(models.Type) (time.Time, error) { return time.Unix(500, 0), nil },
		ExternalIDsFn: func(models.Type) (map[string]struct{}, error) { return map[string]struct{}{}, nil },
	}
	_, err := ingest.NewSyncer(src, nil, ledger, 0, discard()).Run(context.Background())
	assert.True(t, apperr.IsRetryable(err))
}

func TestSyncer_DuplicatesInOneBatch(t *testing.T) {
	count := 0
	ins := &mock.Inserter{InsertFn: func(context.Context, *models.DataObj) (int, error) {
		count++
		return count, nil
	}}
	p := ingest.NewPipeline(staticFetcher(nil), ingest.ReadabilityExtractor{}, ingest.NewMarkdownConverter(), ins, discard())
	src, _ := fixedSource(pocketItems[0], pocketItems[0])
	ledger := &mock.Ledger{
		MaxDateFn:     func(models.Type) (time.Time, error) { return time.Time{}, nil },
		ExternalIDsFn: func(models.Type) (map[string]struct{}, error) { return map[string]struct{}{}, nil },
	}
	rep, err := ingest.NewSyncer(src, p, ledger, 0, discard()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, rep.Duplicates)
}

func TestSyncer_CancelledContext(t *testing.T) {
	p := ingest.NewPipeline(staticFetcher(nil), ingest.ReadabilityExtractor{}, ingest.NewMarkdownConverter(), nil, discard())
	src, _ := fixedSource(pocketItems[0], pocketItems[1])
	ledger := &mock.Ledger{
		MaxDateFn:     func(models.Type) (time.Time, error) { return time.Time{}, nil },
		ExternalIDsFn: func(models.Type) (map[string]struct{}, error) { return map[string]struct{}{}, nil },
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ingest.NewSyncer(src, p, ledger, 1, discard()).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// flakyIndex fails the first metadata upsert.
type flakyIndex struct {
	*index.DB
	mu     sync.Mutex
	failed bool
}

func (f *flakyIndex) Upsert(s models.Summary, checksum string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.failed {
		f.failed = true
		return errors.New("database is locked")
	}
	return f.DB.Upsert(s, checksum)
}

func TestSyncer_IndexFailureDoesNotDuplicate(t *testing.T) {
	pages := map[string]string{
		"http://example.com/a": `<html><head><title>Page A</title></head><body><p>alpha text</p></body></html>`,
		"http://example.com/b": `<html><head><title>Page B</title></head><body><p>beta text</p></body></html>`,
	}
	for _, withReconcile := range []bool{false, true} {
		t.Run(fmt.Sprintf("reconcile=%v", withReconcile), func(t *testing.T) {
			_, fs := testutil.TestFS(t)
			db := testutil.TestDB(t)
			docs := docstore.New(fs)
			svc := dataobj.New(docs, folders.New(fs, docs), &flakyIndex{DB: db},
				search.NewSynchronizer(nil, discard()), discard())
			p := ingest.NewPipeline(staticFetcher(pages), ingest.ReadabilityExtractor{}, ingest.NewMarkdownConverter(), svc, discard())
			src, _ := fixedSource(pocketItems...)

			var opts []ingest.SyncerOption
			reconciled := 0
			if withReconcile {
				opts = append(opts, ingest.WithReconcile(func(ctx context.Context) error {
					reconciled++
					_, err := svc.Rebuild(ctx, false)
					return err
				}))
			}
			s := ingest.NewSyncer(src, p, db, 0, discard(), opts...)

			rep, err := s.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 2, rep.Inserted)

			rep, err = s.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 0, rep.Inserted)
			assert.Equal(t, 2, rep.Duplicates)

			entries, err := docs.ListAll()
			require.NoError(t, err)
			assert.Len(t, entries, 2)

			if withReconcile {
				assert.Equal(t, 1, reconciled)
				ids, err := db.ExternalIDs(models.TypeExternalBookmark)
				require.NoError(t, err)
				assert.Len(t, ids, 2)
			}
		})
	}
}
