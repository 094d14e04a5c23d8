package aggregate

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/tunechart/internal/domain/model"
	"github.com/okian/tunechart/internal/domain/scoring"
	"github.com/okian/tunechart/pkg/logger"
	"github.com/okian/tunechart/pkg/metrics"
)

// Collector fetches every member's week and returns results aligned with
// the input. It must not return before every fetch has finished.
type Collector interface {
	Collect(ctx context.Context, members []model.Member, week time.Time) []model.FetchResult
}

// Result is the outcome of a successful run.
type Result struct {
	Week      time.Time
	Snapshots map[model.Category]model.ChartSnapshot
	// Entries are the raw per-member scored rows backing the snapshots.
	Entries []model.WeeklyEntry
	// Failed lists members whose fetch failed but stayed under the threshold.
	Failed []string
}

// Aggregator builds a group's charts for one week.
type Aggregator struct {
	collector Collector
	logger    logger.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the aggregator logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an Aggregator over collector.
func New(collector Collector, opts ...Option) *Aggregator {
	a := &Aggregator{
		collector: collector,
		logger:    logger.Get().Named("aggregator"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run fetches every non-excluded member, applies the failure policy and
// merges the surviving lists into one snapshot per category. On abort it
// returns an *AbortError and nothing should be written.
func (a *Aggregator) Run(ctx context.Context, group model.Group, members []model.Member, week time.Time, excluded []string) (*Result, error) {
	mode, err := scoring.ModeFor(group.ScoringMode)
	if err != nil {
		metrics.RecordAggregationRun("error")
		return nil, fmt.Errorf("group %s: %w", group.ID, err)
	}
	week = model.WeekStart(week, group.TrackingDayOfWeek)
	log := a.logger.With(logger.String("group", group.ID), logger.Time("week", week))

	skip := make(map[string]bool, len(excluded))
	for _, id := range excluded {
		skip[id] = true
	}
	fetch := make([]model.Member, 0, len(members))
	var skipped []string
	for _, m := range members {
		if skip[m.UserID] {
			skipped = append(skipped, m.UserID)
			continue
		}
		fetch = append(fetch, m)
	}

	results := a.collector.Collect(ctx, fetch, week)

	var failed []string
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r.Member.UserID)
		}
	}

	if ShouldAbort(len(members), len(failed), len(skipped)) {
		all := append(append([]string{}, failed...), skipped...)
		log.Error(ctx, "aggregation aborted",
			logger.Int("members", len(members)),
			logger.Strings("failed", failed),
			logger.Strings("excluded", skipped),
		)
		metrics.RecordAggregationRun("aborted")
		return nil, &AbortError{Failed: all}
	}

	res := &Result{
		Week:      week,
		Snapshots: make(map[model.Category]model.ChartSnapshot, 3),
		Failed:    failed,
	}
	for _, c := range model.Categories() {
		var lists []MemberList
		for _, r := range results {
			if r.Err != nil {
				continue
			}
			list, entries := a.scoreMember(ctx, log, group.ID, week, c, r)
			lists = append(lists, list)
			res.Entries = append(res.Entries, entries...)
		}
		res.Snapshots[c] = model.ChartSnapshot{
			GroupID:   group.ID,
			WeekStart: week,
			Category:  c,
			Entries:   Merge(mode, lists, group.ChartSize),
		}
	}

	log.Info(ctx, "aggregation complete",
		logger.String("mode", string(mode.Name())),
		logger.Int("members", len(fetch)),
		logger.Int("failed", len(failed)),
		logger.Int("raw_entries", len(res.Entries)),
	)
	metrics.RecordAggregationRun("ok")
	return res, nil
}

// scoreMember scores one member's list, dropping malformed and duplicate
// items. The first occurrence of a key wins.
func (a *Aggregator) scoreMember(ctx context.Context, log logger.Logger, groupID string, week time.Time, c model.Category, r model.FetchResult) (MemberList, []model.WeeklyEntry) {
	list := MemberList{UserID: r.Member.UserID}
	var entries []model.WeeklyEntry
	seen := make(map[string]bool)

	for _, s := range scoring.ScoreList(r.Listening.ByCategory(c)) {
		key := model.EntryKey(c, s.Item.Name, s.Item.Artist)
		if key == "" || s.Item.Playcount < 0 {
			log.Warn(ctx, "skipping malformed item",
				logger.String("user", r.Member.UserID),
				logger.String("category", string(c)),
				logger.Int("position", s.Position),
			)
			continue
		}
		if seen[key] {
			log.Warn(ctx, "skipping duplicate item",
				logger.String("user", r.Member.UserID),
				logger.String("category", string(c)),
				logger.String("entry_key", key),
			)
			continue
		}
		seen[key] = true

		list.Items = append(list.Items, KeyedItem{EntryKey: key, Scored: s})
		entries = append(entries, model.WeeklyEntry{
			GroupID:       groupID,
			UserID:        r.Member.UserID,
			WeekStart:     week,
			Category:      c,
			EntryKey:      key,
			DisplayName:   s.Item.Name,
			DisplayArtist: s.Item.Artist,
			Playcount:     s.Item.Playcount,
			Position:      s.Position,
			Score:         s.Score,
		})
	}
	return list, entries
}
