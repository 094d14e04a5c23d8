// Package service wires aggregation, the metrics cache and the records engine
// into the operations served by the HTTP API and the admin CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/tunechart/internal/adapters/mq/worker"
	"github.com/okian/tunechart/internal/domain/aggregate"
	"github.com/okian/tunechart/internal/domain/dedupe"
	"github.com/okian/tunechart/internal/domain/entrystats"
	"github.com/okian/tunechart/internal/domain/model"
	"github.com/okian/tunechart/internal/domain/movement"
	"github.com/okian/tunechart/internal/domain/records"
	"github.com/okian/tunechart/internal/domain/types"
	"github.com/okian/tunechart/pkg/logger"
	"github.com/okian/tunechart/pkg/metrics"
)

// Store is everything the service and its components persist through.
type Store interface {
	movement.Store
	entrystats.Store
	records.Store

	GetGroup(ctx context.Context, id string) (model.Group, error)
	ListGroups(ctx context.Context) ([]model.Group, error)
	ReplaceWeeklyEntries(ctx context.Context, groupID string, week time.Time, entries []model.WeeklyEntry) error
	ChartRecords(ctx context.Context, groupID string, week time.Time, c model.Category) ([]model.ChartEntryRecord, error)
}

// Service implements the chart operations.
type Service struct {
	store   Store
	fetcher worker.Fetcher

	aggregator *aggregate.Aggregator
	writer     *movement.Writer
	stats      *entrystats.Cache
	records    *records.Engine
	guard      dedupe.Guard

	// Configuration
	fetchConcurrency int
	backfillDelay    time.Duration
	maxRangeWeeks    int
	recordsLease     time.Duration
	candidateLimit   int
	minMembers       int
	now              func() time.Time

	mu      sync.RWMutex
	lastRun *lastRun

	logger logger.Logger
}

type lastRun struct {
	GroupID string
	Week    time.Time
	RunID   string
	At      time.Time
	Err     string
}

// New constructs a Service over store, fetching listening data with fetcher.
func New(store Store, fetcher worker.Fetcher, opts ...Option) *Service {
	s := &Service{
		store:            store,
		fetcher:          fetcher,
		fetchConcurrency: worker.DefaultWorkerCount,
		backfillDelay:    time.Second,
		maxRangeWeeks:    52,
		recordsLease:     records.DefaultLease,
		candidateLimit:   records.DefaultCandidateLimit,
		minMembers:       records.DefaultMinMembers,
		now:              time.Now,
		logger:           logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}

	pool := worker.NewPool(s.fetchConcurrency, fetcher, worker.WithPoolLogger(s.logger.Named("workers")))
	s.aggregator = aggregate.New(pool, aggregate.WithLogger(s.logger.Named("aggregator")))
	s.stats = entrystats.NewCache(store,
		entrystats.WithClock(s.now),
		entrystats.WithLogger(s.logger.Named("entrystats")),
	)
	s.writer = movement.NewWriter(store, s.stats, movement.WithLogger(s.logger.Named("movement")))
	s.records = records.NewEngine(store, s.stats,
		records.WithLease(s.recordsLease),
		records.WithCandidateLimit(s.candidateLimit),
		records.WithMinMembers(s.minMembers),
		records.WithClock(s.now),
		records.WithLogger(s.logger.Named("records")),
	)
	s.guard = dedupe.NewInMemoryGuard(dedupe.WithClock(s.now))

	s.logger.Info(context.Background(), "chart service ready",
		logger.Int("fetchConcurrency", s.fetchConcurrency),
		logger.Duration("backfillDelay", s.backfillDelay),
		logger.Duration("recordsLease", s.recordsLease),
	)
	return s
}

// GetChartSnapshot returns a group's chart for the week containing week.
// A zero week selects the latest generated week.
func (s *Service) GetChartSnapshot(ctx context.Context, groupID string, week time.Time, c model.Category) (types.Chart, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return types.Chart{}, err
	}
	if week.IsZero() {
		latest, ok, err := s.store.LatestWeek(ctx, groupID)
		if err != nil {
			return types.Chart{}, err
		}
		if !ok {
			return types.Chart{}, fmt.Errorf("group %s has no charts: %w", groupID, entrystats.ErrNotCharted)
		}
		week = latest
	}
	week = model.WeekStart(week, group.TrackingDayOfWeek)

	recs, err := s.store.ChartRecords(ctx, groupID, week, c)
	if err != nil {
		return types.Chart{}, err
	}
	return types.NewChart(groupID, week, c, recs), nil
}

// GetEntryStats returns an entry's stats, recomputing them when stale, with
// its major driver attached when one can be determined.
func (s *Service) GetEntryStats(ctx context.Context, groupID string, c model.Category, key string) (types.EntryStats, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return types.EntryStats{}, err
	}
	st, err := s.stats.Get(ctx, groupID, c, key)
	if err != nil {
		return types.EntryStats{}, err
	}

	d, err := s.stats.Driver(ctx, group, c, key)
	switch {
	case err == nil:
		return types.NewEntryStats(st, &d), nil
	case errors.Is(err, entrystats.ErrNotCharted):
		return types.NewEntryStats(st, nil), nil
	}
	return types.EntryStats{}, err
}

// GetRecords returns the group's records snapshot.
func (s *Service) GetRecords(ctx context.Context, groupID string) (*records.Snapshot, error) {
	if _, err := s.store.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	return s.records.Get(ctx, groupID)
}

// RefreshRecords runs the records engine outside a regeneration.
func (s *Service) RefreshRecords(ctx context.Context, groupID string, force bool) (*records.Snapshot, error) {
	if _, err := s.store.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	return s.records.Run(ctx, groupID, records.RunOptions{Force: force})
}

// RegenerateWeek rebuilds one week: aggregate, persist raw rows, write the
// metrics cache, then refresh records incrementally. Members in exclude are
// not fetched and count as failed. On *aggregate.AbortError nothing is written.
func (s *Service) RegenerateWeek(ctx context.Context, groupID string, week time.Time, exclude []string) (types.WeekResult, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return types.WeekResult{}, err
	}
	week = model.WeekStart(week, group.TrackingDayOfWeek)

	res, recs, err := s.regenerate(ctx, group, week, exclude)
	if err != nil {
		return res, err
	}
	if latest, ok, err := s.store.LatestWeek(ctx, group.ID); err == nil && ok && latest.After(week) {
		res.LaterWeeksStale = true
		s.logger.Warn(ctx, "later weeks keep movement from the previous version of this week",
			logger.String("group", group.ID),
			logger.String("week", res.Week),
			logger.String("latest", latest.Format(types.DateLayout)),
		)
	}

	snap, err := s.records.Run(ctx, group.ID, records.RunOptions{Hint: recs, Force: true})
	res.RecordsStatus = s.recordsOutcome(ctx, group.ID, snap, err)
	return res, nil
}

// RegenerateRange rebuilds the weeksBack most recent complete weeks, oldest
// first, pausing between weeks. It stops at the first failed week. Records
// are recomputed in full once at the end when at least one week was written.
func (s *Service) RegenerateRange(ctx context.Context, groupID string, weeksBack int) (types.RangeResult, error) {
	if weeksBack < 1 || weeksBack > s.maxRangeWeeks {
		return types.RangeResult{}, fmt.Errorf("%w: weeks back must be within 1..%d, got %d", ErrInvalidRange, s.maxRangeWeeks, weeksBack)
	}
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return types.RangeResult{}, err
	}

	rangeKey := group.ID + "@range"
	if !s.guard.Acquire(ctx, rangeKey) {
		return types.RangeResult{}, fmt.Errorf("group %s range: %w", group.ID, ErrRegenerationInProgress)
	}
	defer s.guard.Release(ctx, rangeKey)

	current := model.WeekStart(s.now(), group.TrackingDayOfWeek)
	out := types.RangeResult{GroupID: group.ID}
	log := s.logger.With(logger.String("group", group.ID), logger.Int("weeks", weeksBack))
	log.Info(ctx, "range regeneration started")

	var runErr error
	for i := weeksBack; i >= 1; i-- {
		week := current.AddDate(0, 0, -7*i)
		res, _, err := s.regenerate(ctx, group, week, nil)
		if err != nil {
			metrics.RecordBackfillWeek("failed")
			out.FailedWeek = week.Format(types.DateLayout)
			out.Error = err.Error()
			runErr = fmt.Errorf("week %s: %w", out.FailedWeek, err)
			log.Error(ctx, "range regeneration stopped", logger.String("week", out.FailedWeek), logger.Error(err))
			break
		}
		metrics.RecordBackfillWeek("ok")
		out.Weeks = append(out.Weeks, res)
		log.Info(ctx, "range week done", logger.String("week", res.Week), logger.Int("remaining", i-1))

		if i > 1 && s.backfillDelay > 0 {
			if err := sleep(ctx, s.backfillDelay); err != nil {
				runErr = err
				break
			}
		}
	}

	if len(out.Weeks) > 0 {
		snap, err := s.records.Run(ctx, group.ID, records.RunOptions{Force: true})
		out.RecordsStatus = s.recordsOutcome(ctx, group.ID, snap, err)
	}
	return out, runErr
}

// regenerate runs the write path of one week under the in-flight guard.
func (s *Service) regenerate(ctx context.Context, group model.Group, week time.Time, exclude []string) (types.WeekResult, []model.ChartEntryRecord, error) {
	key := dedupe.Key(group.ID, week)
	if !s.guard.Acquire(ctx, key) {
		return types.WeekResult{}, nil, fmt.Errorf("%s: %w", key, ErrRegenerationInProgress)
	}
	defer s.guard.Release(ctx, key)

	runID := uuid.NewString()
	out := types.WeekResult{GroupID: group.ID, Week: week.Format(types.DateLayout), RunID: runID}
	log := s.logger.With(
		logger.String("group", group.ID),
		logger.String("week", out.Week),
		logger.String("run_id", runID),
	)

	recs, failed, err := s.writeWeek(ctx, log, group, week, exclude)
	s.remember(group.ID, week, runID, err)
	if err != nil {
		var abort *aggregate.AbortError
		if errors.As(err, &abort) {
			out.Failed = abort.Failed
		}
		return out, nil, err
	}

	out.Failed = failed
	out.Entries = make(map[string]int, 3)
	for _, c := range model.Categories() {
		out.Entries[string(c)] = 0
	}
	for _, r := range recs {
		out.Entries[string(r.Category)]++
	}
	log.Info(ctx, "week regenerated", logger.Int("records", len(recs)), logger.Strings("failed", failed))
	return out, recs, nil
}

func (s *Service) writeWeek(ctx context.Context, log logger.Logger, group model.Group, week time.Time, exclude []string) ([]model.ChartEntryRecord, []string, error) {
	members, err := s.store.Members(ctx, group.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("load members: %w", err)
	}
	if len(members) == 0 {
		return nil, nil, fmt.Errorf("group %s: %w", group.ID, ErrNoMembers)
	}

	res, err := s.aggregator.Run(ctx, group, members, week, exclude)
	if err != nil {
		return nil, nil, err
	}

	previous := s.chartedKeys(ctx, group.ID, res.Week)
	if err := s.store.ReplaceWeeklyEntries(ctx, group.ID, res.Week, res.Entries); err != nil {
		return nil, nil, fmt.Errorf("replace weekly entries: %w", err)
	}
	s.invalidateDrivers(ctx, log, group.ID, res.Entries, previous)

	recs, err := s.writer.WriteAll(ctx, res.Snapshots)
	if err != nil {
		return nil, nil, err
	}
	return recs, res.Failed, nil
}

type entryRef struct {
	category model.Category
	key      string
}

// chartedKeys lists what the week charted before this regeneration, so
// drivers of entries that drop out are refreshed too.
func (s *Service) chartedKeys(ctx context.Context, groupID string, week time.Time) []entryRef {
	var out []entryRef
	for _, c := range model.Categories() {
		recs, err := s.store.ChartRecords(ctx, groupID, week, c)
		if err != nil {
			continue
		}
		for _, r := range recs {
			out = append(out, entryRef{category: c, key: r.EntryKey})
		}
	}
	return out
}

// invalidateDrivers marks drivers stale for every entry whose raw rows may
// have changed. Failures are logged and skipped.
func (s *Service) invalidateDrivers(ctx context.Context, log logger.Logger, groupID string, entries []model.WeeklyEntry, previous []entryRef) {
	seen := make(map[entryRef]bool, len(entries)+len(previous))
	refs := make([]entryRef, 0, len(entries)+len(previous))
	add := func(r entryRef) {
		if !seen[r] {
			seen[r] = true
			refs = append(refs, r)
		}
	}
	for _, e := range entries {
		add(entryRef{category: e.Category, key: e.EntryKey})
	}
	for _, r := range previous {
		add(r)
	}

	for _, r := range refs {
		if err := s.stats.InvalidateDriver(ctx, groupID, r.category, r.key); err != nil {
			metrics.RecordInvalidationFailure()
			log.Warn(ctx, "driver invalidation failed",
				logger.String("category", string(r.category)),
				logger.String("entry", r.key),
				logger.Error(err),
			)
		}
	}
}

// recordsOutcome reports a records run without failing the regeneration:
// the charts are already written and records heal on the next run.
func (s *Service) recordsOutcome(ctx context.Context, groupID string, snap *records.Snapshot, err error) string {
	switch {
	case err == nil && snap != nil:
		return string(snap.Status)
	case errors.Is(err, records.ErrInProgress):
		s.logger.Info(ctx, "records run skipped, another run holds the lease", logger.String("group", groupID))
		return string(records.StatusCalculating)
	case err != nil:
		s.logger.Warn(ctx, "records run failed", logger.String("group", groupID), logger.Error(err))
		return string(records.StatusFailed)
	}
	return string(records.StatusNone)
}

func (s *Service) remember(groupID string, week time.Time, runID string, err error) {
	r := &lastRun{GroupID: groupID, Week: week, RunID: runID, At: s.now().UTC()}
	if err != nil {
		r.Err = err.Error()
	}
	s.mu.Lock()
	s.lastRun = r
	s.mu.Unlock()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]interface{} {
	stats := map[string]interface{}{
		"fetchConcurrency": s.fetchConcurrency,
		"backfillDelayMs":  s.backfillDelay.Milliseconds(),
		"maxRangeWeeks":    s.maxRangeWeeks,
		"recordsLeaseSec":  int64(s.recordsLease.Seconds()),
	}

	if groups, err := s.store.ListGroups(ctx); err == nil {
		stats["groups"] = len(groups)
		metrics.UpdateGroupsTotal(len(groups))
	} else {
		s.logger.Warn(ctx, "list groups failed", logger.Error(err))
	}

	held := s.guard.Held()
	inFlight := make([]string, 0, len(held))
	for _, c := range held {
		inFlight = append(inFlight, c.Key)
	}
	sort.Strings(inFlight)
	stats["inFlight"] = inFlight

	s.mu.RLock()
	if r := s.lastRun; r != nil {
		last := map[string]interface{}{
			"group": r.GroupID,
			"week":  r.Week.Format(types.DateLayout),
			"runId": r.RunID,
			"at":    r.At,
		}
		if r.Err != "" {
			last["error"] = r.Err
		}
		stats["lastRegeneration"] = last
	}
	s.mu.RUnlock()

	return stats
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
