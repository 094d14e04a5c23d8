package movement

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/tunechart/internal/domain/model"
	"github.com/okian/tunechart/pkg/logger"
	"github.com/okian/tunechart/pkg/metrics"
)

// Store is the chart history the writer reads and replaces.
type Store interface {
	// PreviousSnapshot returns the nearest snapshot strictly before week,
	// or nil when there is none.
	PreviousSnapshot(ctx context.Context, groupID string, c model.Category, week time.Time) (*model.ChartSnapshot, error)
	// PriorAppearances summarises each entry's appearances before week.
	PriorAppearances(ctx context.Context, groupID string, c model.Category, week time.Time) (map[string]Prior, error)
	// ReplaceWeek deletes the (group, week, category) rows and inserts
	// records in one transaction. It returns the keys of the deleted rows.
	ReplaceWeek(ctx context.Context, groupID string, c model.Category, week time.Time, records []model.ChartEntryRecord) ([]string, error)
}

// Invalidator marks derived per-entry caches stale.
type Invalidator interface {
	Invalidate(ctx context.Context, groupID string, c model.Category, entryKey string) error
}

// Writer persists chart snapshots with their derived metrics.
type Writer struct {
	store       Store
	invalidator Invalidator
	logger      logger.Logger
}

// Option configures a Writer.
type Option func(*Writer)

// WithLogger sets the writer logger.
func WithLogger(l logger.Logger) Option {
	return func(w *Writer) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWriter creates a Writer. invalidator may be nil.
func NewWriter(store Store, invalidator Invalidator, opts ...Option) *Writer {
	w := &Writer{
		store:       store,
		invalidator: invalidator,
		logger:      logger.Get().Named("movement"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write computes and atomically replaces the records of one snapshot, then
// invalidates every touched entry: those written and those the replaced
// rows held. Invalidation failures are logged only.
func (w *Writer) Write(ctx context.Context, snap model.ChartSnapshot) ([]model.ChartEntryRecord, error) {
	if snap.GroupID == "" {
		return nil, ErrEmptyGroup
	}
	start := time.Now()

	prev, err := w.store.PreviousSnapshot(ctx, snap.GroupID, snap.Category, snap.WeekStart)
	if err != nil {
		return nil, fmt.Errorf("previous snapshot: %w", err)
	}
	prior, err := w.store.PriorAppearances(ctx, snap.GroupID, snap.Category, snap.WeekStart)
	if err != nil {
		return nil, fmt.Errorf("prior appearances: %w", err)
	}

	records := Compute(snap, prev, prior)
	removed, err := w.store.ReplaceWeek(ctx, snap.GroupID, snap.Category, snap.WeekStart, records)
	if err != nil {
		return nil, fmt.Errorf("replace %s week: %w", snap.Category, err)
	}
	metrics.RecordChartEntriesWritten(string(snap.Category), len(records))
	metrics.RecordChartWriteLatency(float64(time.Since(start).Milliseconds()))

	w.invalidate(ctx, snap.GroupID, snap.Category, touchedKeys(records, removed))
	return records, nil
}

// touchedKeys returns the written keys followed by removed keys that were
// not rewritten, without duplicates.
func touchedKeys(records []model.ChartEntryRecord, removed []string) []string {
	seen := make(map[string]struct{}, len(records)+len(removed))
	keys := make([]string, 0, len(records)+len(removed))
	for _, r := range records {
		if _, ok := seen[r.EntryKey]; !ok {
			seen[r.EntryKey] = struct{}{}
			keys = append(keys, r.EntryKey)
		}
	}
	for _, k := range removed {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	return keys
}

func (w *Writer) invalidate(ctx context.Context, groupID string, c model.Category, keys []string) {
	if w.invalidator == nil {
		return
	}
	for _, key := range keys {
		if err := w.invalidator.Invalidate(ctx, groupID, c, key); err != nil {
			metrics.RecordInvalidationFailure()
			w.logger.Warn(ctx, "stats invalidation failed",
				logger.String("group", groupID),
				logger.String("category", string(c)),
				logger.String("entry_key", key),
				logger.Error(err),
			)
		}
	}
}

// WriteAll writes each category concurrently. Categories touch disjoint rows.
// The returned records are ordered by category then position.
func (w *Writer) WriteAll(ctx context.Context, snaps map[model.Category]model.ChartSnapshot) ([]model.ChartEntryRecord, error) {
	var (
		mu  sync.Mutex
		out []model.ChartEntryRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, snap := range snaps {
		g.Go(func() error {
			recs, err := w.Write(gctx, snap)
			if err != nil {
				return err
			}
			mu.Lock()
			out = append(out, recs...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rank := make(map[model.Category]int)
	for i, c := range model.Categories() {
		rank[c] = i
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return rank[out[i].Category] < rank[out[j].Category]
		}
		return out[i].Position < out[j].Position
	})
	return out, nil
}
