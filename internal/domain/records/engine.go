package records

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/tunechart/internal/domain/model"
	"github.com/okian/tunechart/pkg/logger"
	"github.com/okian/tunechart/pkg/metrics"
)

// DefaultLease is how long a calculation or a completed snapshot stays fresh.
const DefaultLease = time.Hour

// Store loads the engine inputs and persists snapshots.
type Store interface {
	GetRecords(ctx context.Context, groupID string) (*Snapshot, error)
	SaveRecords(ctx context.Context, s *Snapshot) error
	// AcquireRecordsLease atomically marks the group calculating unless a
	// calculation started after staleBefore still holds it.
	AcquireRecordsLease(ctx context.Context, groupID, runID string, startedAt, staleBefore time.Time) (bool, error)

	Members(ctx context.Context, groupID string) ([]model.Member, error)
	ChartHistory(ctx context.Context, groupID string, c model.Category) ([]model.ChartEntryRecord, error)
	Contributions(ctx context.Context, groupID string) ([]model.Contribution, error)
}

// StatsSource serves fresh entry stats for a whole category.
type StatsSource interface {
	All(ctx context.Context, groupID string, c model.Category) ([]model.EntryStats, error)
}

// RunOptions controls one run.
type RunOptions struct {
	// Hint lists the records just written; it enables the incremental path.
	Hint []model.ChartEntryRecord
	// Force ignores the freshness of a completed snapshot.
	Force bool
}

// Engine computes and stores records snapshots.
type Engine struct {
	store          Store
	stats          StatsSource
	lease          time.Duration
	candidateLimit int
	minMembers     int
	now            func() time.Time
	logger         logger.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLease sets the calculation and freshness lease.
func WithLease(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.lease = d
		}
	}
}

// WithCandidateLimit bounds the full streak pass.
func WithCandidateLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.candidateLimit = n
		}
	}
}

// WithMinMembers sets the group size below which per-user records are skipped.
func WithMinMembers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.minMembers = n
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an Engine.
func NewEngine(store Store, stats StatsSource, opts ...Option) *Engine {
	e := &Engine{
		store:          store,
		stats:          stats,
		lease:          DefaultLease,
		candidateLimit: DefaultCandidateLimit,
		minMembers:     DefaultMinMembers,
		now:            time.Now,
		logger:         logger.Get().Named("records"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Get returns the stored snapshot, or an empty one with status none.
func (e *Engine) Get(ctx context.Context, groupID string) (*Snapshot, error) {
	s, err := e.store.GetRecords(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return &Snapshot{GroupID: groupID, Status: StatusNone}, nil
	}
	return s, nil
}

type inputs struct {
	members       []model.Member
	stats         map[model.Category][]model.EntryStats
	history       map[model.Category][]model.ChartEntryRecord
	contributions []model.Contribution
}

// Run recomputes the group's records if the lease allows it. A fresh
// completed snapshot is returned unchanged unless opts.Force is set.
func (e *Engine) Run(ctx context.Context, groupID string, opts RunOptions) (*Snapshot, error) {
	prev, err := e.store.GetRecords(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	now := e.now().UTC()
	ok, err := Eligible(prev, now, e.lease, opts.Force)
	if err != nil {
		return prev, err
	}
	if !ok {
		return prev, nil
	}

	runID := uuid.NewString()
	acquired, err := e.store.AcquireRecordsLease(ctx, groupID, runID, now, now.Add(-e.lease))
	if err != nil {
		return nil, fmt.Errorf("acquire lease: %w", err)
	}
	if !acquired {
		return prev, ErrInProgress
	}

	log := e.logger.With(logger.String("group", groupID), logger.String("run_id", runID))
	log.Info(ctx, "records run started", logger.Int("hint", len(opts.Hint)), logger.Bool("force", opts.Force))

	snap, err := e.compute(ctx, groupID, prev, opts.Hint)
	if err != nil {
		e.fail(ctx, log, groupID, runID, now, prev, err)
		return nil, err
	}

	done := e.now().UTC()
	snap.Status = StatusCompleted
	snap.RunID = runID
	snap.CalculationStartedAt = now
	snap.CompletedAt = done
	snap.UpdatedAt = done
	snap.Error = ""
	if err := e.store.SaveRecords(ctx, snap); err != nil {
		e.fail(ctx, log, groupID, runID, now, prev, err)
		return nil, fmt.Errorf("save records: %w", err)
	}

	metrics.RecordRecordsRun(string(snap.Mode), "ok")
	metrics.RecordRecordsDuration(float64(done.Sub(now).Milliseconds()))
	log.Info(ctx, "records run completed", logger.String("mode", string(snap.Mode)), logger.Duration("took", done.Sub(now)))
	return snap, nil
}

func (e *Engine) compute(ctx context.Context, groupID string, prev *Snapshot, hint []model.ChartEntryRecord) (*Snapshot, error) {
	in, err := e.load(ctx, groupID)
	if err != nil {
		return nil, err
	}

	var prevStreaks map[model.Category]*StreakRecords
	if Valid(prev) {
		prevStreaks = prev.Streaks
	} else if len(hint) > 0 {
		e.logger.Debug(ctx, "previous records unusable, running full", logger.String("group", groupID))
	}

	var (
		parts Parts
		mode  RunMode
	)
	// Phases write disjoint fields of parts.
	var g errgroup.Group
	g.Go(func() error { parts.Aggregates = AggregateScan(in.stats); return nil })
	g.Go(func() error { parts.Counts = CountAggregations(in.stats); return nil })
	g.Go(func() error {
		parts.Streaks, mode = ComputeStreaks(in.history, prevStreaks, hint, e.candidateLimit)
		return nil
	})
	g.Go(func() error { parts.Popularity = Popularity(in.stats, in.contributions); return nil })
	g.Go(func() error { parts.Artists = ArtistRollups(in.stats); return nil })
	g.Go(func() error {
		parts.Users = UserSuperlatives(in.members, in.contributions, in.history, e.minMembers)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap := Merge(prev, groupID, parts)
	snap.Mode = mode
	return snap, nil
}

// load reads every input concurrently.
func (e *Engine) load(ctx context.Context, groupID string) (*inputs, error) {
	in := &inputs{
		stats:   make(map[model.Category][]model.EntryStats, 3),
		history: make(map[model.Category][]model.ChartEntryRecord, 3),
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		m, err := e.store.Members(gctx, groupID)
		if err != nil {
			return fmt.Errorf("members: %w", err)
		}
		in.members = m
		return nil
	})
	g.Go(func() error {
		c, err := e.store.Contributions(gctx, groupID)
		if err != nil {
			return fmt.Errorf("contributions: %w", err)
		}
		in.contributions = c
		return nil
	})
	for _, c := range model.Categories() {
		g.Go(func() error {
			h, err := e.store.ChartHistory(gctx, groupID, c)
			if err != nil {
				return fmt.Errorf("%s history: %w", c, err)
			}
			mu.Lock()
			in.history[c] = h
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Stats recompute writes back to the store; keep it sequential.
	for _, c := range model.Categories() {
		s, err := e.stats.All(ctx, groupID, c)
		if err != nil {
			return nil, fmt.Errorf("%s stats: %w", c, err)
		}
		in.stats[c] = s
	}
	return in, nil
}

// fail records the failure while keeping the previous records visible.
func (e *Engine) fail(ctx context.Context, log logger.Logger, groupID, runID string, started time.Time, prev *Snapshot, cause error) {
	metrics.RecordRecordsRun("unknown", "failed")
	log.Error(ctx, "records run failed", logger.Error(cause))

	s := &Snapshot{GroupID: groupID}
	if prev != nil {
		cp := *prev
		s = &cp
	}
	s.Status = StatusFailed
	s.RunID = runID
	s.CalculationStartedAt = started
	s.UpdatedAt = e.now().UTC()
	s.Error = cause.Error()
	if err := e.store.SaveRecords(ctx, s); err != nil {
		log.Warn(ctx, "could not record failed run", logger.Error(err))
	}
}
