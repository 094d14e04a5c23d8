package entrystats

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/tunechart/internal/domain/model"
	"github.com/okian/tunechart/internal/domain/scoring"
	"github.com/okian/tunechart/pkg/logger"
	"github.com/okian/tunechart/pkg/metrics"
)

// Store persists stats and driver rows and exposes the history they derive from.
type Store interface {
	GetStats(ctx context.Context, groupID string, c model.Category, key string) (model.EntryStats, bool, error)
	ListStats(ctx context.Context, groupID string, c model.Category) (map[string]model.EntryStats, error)
	UpsertStats(ctx context.Context, s model.EntryStats) error
	MarkStatsStale(ctx context.Context, groupID string, c model.Category, key string) error

	GetDriver(ctx context.Context, groupID string, c model.Category, key string) (model.MajorDriver, bool, error)
	UpsertDriver(ctx context.Context, d model.MajorDriver) error
	MarkDriverStale(ctx context.Context, groupID string, c model.Category, key string) error

	// EntryHistory returns an entry's metrics records ordered by week.
	EntryHistory(ctx context.Context, groupID string, c model.Category, key string) ([]model.ChartEntryRecord, error)
	// ChartedKeys returns every entry key that has appeared on a chart.
	ChartedKeys(ctx context.Context, groupID string, c model.Category) ([]string, error)
	// LatestWeek returns the group's most recent generated week.
	LatestWeek(ctx context.Context, groupID string) (time.Time, bool, error)
	// EntryContributions returns the raw member rows for an entry.
	EntryContributions(ctx context.Context, groupID string, c model.Category, key string) ([]model.Contribution, error)
}

// Cache serves entry stats, recomputing rows that are missing or stale.
type Cache struct {
	store  Store
	now    func() time.Time
	logger logger.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the cache logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCache creates a Cache over store.
func NewCache(store Store, opts ...Option) *Cache {
	c := &Cache{
		store:  store,
		now:    time.Now,
		logger: logger.Get().Named("entrystats"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the stats for one entry. Stale or missing rows are recomputed
// from history and written back with the stale flag cleared.
func (c *Cache) Get(ctx context.Context, groupID string, cat model.Category, key string) (model.EntryStats, error) {
	latest, _, err := c.store.LatestWeek(ctx, groupID)
	if err != nil {
		return model.EntryStats{}, fmt.Errorf("latest week: %w", err)
	}

	row, ok, err := c.store.GetStats(ctx, groupID, cat, key)
	if err != nil {
		return model.EntryStats{}, fmt.Errorf("get stats: %w", err)
	}
	if ok && !row.Stale {
		metrics.RecordStatsCacheLookup("hit")
		refresh(&row, latest, c.now())
		return row, nil
	}
	return c.recompute(ctx, groupID, cat, key, latest)
}

func (c *Cache) recompute(ctx context.Context, groupID string, cat model.Category, key string, latest time.Time) (model.EntryStats, error) {
	history, err := c.store.EntryHistory(ctx, groupID, cat, key)
	if err != nil {
		return model.EntryStats{}, fmt.Errorf("entry history: %w", err)
	}
	if len(history) == 0 {
		metrics.RecordStatsCacheLookup("miss")
		return model.EntryStats{}, ErrNotCharted
	}

	now := c.now()
	s := Compute(history, latest, now)
	s.GroupID, s.Category, s.EntryKey = groupID, cat, key
	s.ComputedAt = now.UTC()
	if err := c.store.UpsertStats(ctx, s); err != nil {
		return model.EntryStats{}, fmt.Errorf("upsert stats: %w", err)
	}
	metrics.RecordStatsCacheLookup("recompute")
	c.logger.Debug(ctx, "entry stats recomputed",
		logger.String("group", groupID),
		logger.String("category", string(cat)),
		logger.String("entry_key", key),
		logger.Int("weeks", s.TotalWeeksCharting),
	)
	return s, nil
}

// All returns fresh stats for every charted entry of a category.
func (c *Cache) All(ctx context.Context, groupID string, cat model.Category) ([]model.EntryStats, error) {
	latest, _, err := c.store.LatestWeek(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("latest week: %w", err)
	}
	keys, err := c.store.ChartedKeys(ctx, groupID, cat)
	if err != nil {
		return nil, fmt.Errorf("charted keys: %w", err)
	}
	rows, err := c.store.ListStats(ctx, groupID, cat)
	if err != nil {
		return nil, fmt.Errorf("list stats: %w", err)
	}

	now := c.now()
	out := make([]model.EntryStats, 0, len(keys))
	for _, k := range keys {
		if row, ok := rows[k]; ok && !row.Stale {
			refresh(&row, latest, now)
			out = append(out, row)
			continue
		}
		s, err := c.recompute(ctx, groupID, cat, k, latest)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Invalidate marks an entry's positional stats stale.
func (c *Cache) Invalidate(ctx context.Context, groupID string, cat model.Category, key string) error {
	return c.store.MarkStatsStale(ctx, groupID, cat, key)
}

// InvalidateDriver marks an entry's major driver stale. Drivers change when
// raw member rows change, not when chart positions do.
func (c *Cache) InvalidateDriver(ctx context.Context, groupID string, cat model.Category, key string) error {
	return c.store.MarkDriverStale(ctx, groupID, cat, key)
}

// Driver returns the member contributing most to an entry under the
// group's scoring mode.
func (c *Cache) Driver(ctx context.Context, group model.Group, cat model.Category, key string) (model.MajorDriver, error) {
	row, ok, err := c.store.GetDriver(ctx, group.ID, cat, key)
	if err != nil {
		return model.MajorDriver{}, fmt.Errorf("get driver: %w", err)
	}
	if ok && !row.Stale {
		return row, nil
	}

	mode, err := scoring.ModeFor(group.ScoringMode)
	if err != nil {
		return model.MajorDriver{}, err
	}
	rows, err := c.store.EntryContributions(ctx, group.ID, cat, key)
	if err != nil {
		return model.MajorDriver{}, fmt.Errorf("entry contributions: %w", err)
	}
	d, found := TopDriver(mode, rows)
	if !found {
		return model.MajorDriver{}, ErrNotCharted
	}
	d.GroupID = group.ID
	d.Category = cat
	d.EntryKey = key
	d.ComputedAt = c.now().UTC()
	if err := c.store.UpsertDriver(ctx, d); err != nil {
		return model.MajorDriver{}, fmt.Errorf("upsert driver: %w", err)
	}
	return d, nil
}
