package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/models"
)

// SyncReport summarises one Syncer run.
type SyncReport struct {
	Since      time.Time `json:"since"`
	Received   int       `json:"received"`
	Inserted   int       `json:"inserted"`
	Archived   int       `json:"archived"`
	Duplicates int       `json:"duplicates"`
	Degraded   int       `json:"degraded"` // inserted without page content
	Failed     int       `json:"failed"`
}

// Syncer pulls new items from an external Source into the store.
type Syncer struct {
	source    Source
	pipeline  *Pipeline
	ledger    Ledger
	limiter   *rate.Limiter
	logger    *slog.Logger
	reconcile func(ctx context.Context) error

	mu sync.Mutex
	// unindexed holds external ids stored on disk whose metadata record is
	// missing, so the ledger does not know them yet.
	unindexed map[string]struct{}
}

// SyncerOption configures a Syncer.
type SyncerOption func(*Syncer)

// WithReconcile sets fn to repair the ledger before a run that follows a
// metadata index failure.
func WithReconcile(fn func(ctx context.Context) error) SyncerOption {
	return func(s *Syncer) { s.reconcile = fn }
}

// NewSyncer creates a syncer that fetches at most perSecond pages per second.
// A non-positive rate disables pacing.
func NewSyncer(src Source, p *Pipeline, ledger Ledger, perSecond float64, logger *slog.Logger, opts ...SyncerOption) *Syncer {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	s := &Syncer{
		source:    src,
		pipeline:  p,
		ledger:    ledger,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    logger,
		unindexed: make(map[string]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run asks the source for everything newer than the newest external bookmark
// already stored and inserts what is new. Items already ingested (by external
// id) and items archived at the source are skipped, so repeated runs are
// idempotent. Runs are serialized.
func (s *Syncer) Run(ctx context.Context) (SyncReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rep SyncReport
	if len(s.unindexed) > 0 && s.reconcile != nil {
		if err := s.reconcile(ctx); err != nil {
			s.logger.Warn("sync: reconcile failed", slog.String("source", s.source.Name()),
				slog.String("error", err.Error()))
		} else {
			clear(s.unindexed)
		}
	}
	since, err := s.ledger.MaxDate(models.TypeExternalBookmark)
	if err != nil {
		return rep, err
	}
	known, err := s.ledger.ExternalIDs(models.TypeExternalBookmark)
	if err != nil {
		return rep, err
	}
	if known == nil {
		known = make(map[string]struct{})
	}
	for id := range s.unindexed {
		known[id] = struct{}{}
	}
	rep.Since = since

	items, err := s.source.Retrieve(ctx, since)
	if err != nil {
		return rep, err
	}
	rep.Received = len(items)
	sort.SliceStable(items, func(i, j int) bool { return items[i].AddedAt.Before(items[j].AddedAt) })

	for _, item := range items {
		if item.Archived {
			rep.Archived++
			continue
		}
		if _, dup := known[item.ID]; dup {
			rep.Duplicates++
			continue
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return rep, err
		}

		obj, degraded, err := s.build(ctx, item)
		if err != nil {
			if ctx.Err() != nil {
				return rep, ctx.Err()
			}
			s.logger.Warn("sync: item rejected", slog.String("source", s.source.Name()),
				slog.String("external_id", item.ID), slog.String("error", err.Error()))
			rep.Failed++
			continue
		}
		_, err = s.pipeline.inserter.Insert(ctx, obj)
		switch {
		case errors.Is(err, apperr.ErrIndexInconsistency):
			s.unindexed[item.ID] = struct{}{}
		case err != nil:
			s.logger.Warn("sync: insert failed", slog.String("source", s.source.Name()),
				slog.String("external_id", item.ID), slog.String("error", err.Error()))
			rep.Failed++
			continue
		}
		known[item.ID] = struct{}{}
		rep.Inserted++
		if degraded {
			rep.Degraded++
		}
	}

	s.logger.Info("sync: done",
		slog.String("source", s.source.Name()),
		slog.Int("received", rep.Received),
		slog.Int("inserted", rep.Inserted),
		slog.Int("duplicates", rep.Duplicates),
		slog.Int("failed", rep.Failed))
	return rep, nil
}

// build turns item into a bookmark. When the page cannot be fetched the
// service-provided title and excerpt are used instead.
func (s *Syncer) build(ctx context.Context, item models.ExternalItem) (*models.DataObj, bool, error) {
	req := BookmarkRequest{
		URL:        strings.TrimSpace(item.URL),
		Title:      item.Title,
		Type:       models.TypeExternalBookmark,
		ExternalID: item.ID,
	}
	if item.IsArticle {
		req.Desc = item.Excerpt
	}
	obj, err := s.pipeline.Build(ctx, req)
	if err == nil {
		return obj, false, nil
	}
	if !apperr.IsRetryable(err) {
		return nil, false, err
	}
	s.logger.Warn("sync: page fetch failed, using service metadata",
		slog.String("url", req.URL), slog.String("error", err.Error()))
	obj = &models.DataObj{
		Type:       models.TypeExternalBookmark,
		URL:        req.URL,
		Title:      firstNonEmpty(strings.TrimSpace(item.Title), req.URL),
		Desc:       req.Desc,
		ExternalID: item.ID,
	}
	return obj, true, nil
}
