package records_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/tunechart/internal/domain/model"
	"github.com/okian/tunechart/internal/domain/records"
	logging "github.com/okian/tunechart/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() { //nolint:gochecknoinits // logger must exist before engines are built
	_ = logging.Init()
}

type fakeStore struct {
	mu        sync.Mutex
	snap      *records.Snapshot
	saves     int
	members   []model.Member
	history   map[model.Category][]model.ChartEntryRecord
	failHist  error
	leaseHeld bool
}

func (f *fakeStore) GetRecords(context.Context, string) (*records.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snap == nil {
		return nil, nil
	}
	cp := *f.snap
	return &cp, nil
}

func (f *fakeStore) SaveRecords(_ context.Context, s *records.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.snap = &cp
	f.saves++
	return nil
}

func (f *fakeStore) AcquireRecordsLease(_ context.Context, groupID, runID string, startedAt, _ time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.leaseHeld {
		return false, nil
	}
	if f.snap == nil {
		f.snap = &records.Snapshot{GroupID: groupID}
	}
	f.snap.Status = records.StatusCalculating
	f.snap.RunID = runID
	f.snap.CalculationStartedAt = startedAt
	return true, nil
}

func (f *fakeStore) Members(context.Context, string) ([]model.Member, error) { return f.members, nil }

func (f *fakeStore) ChartHistory(_ context.Context, _ string, c model.Category) ([]model.ChartEntryRecord, error) {
	if f.failHist != nil {
		return nil, f.failHist
	}
	return f.history[c], nil
}

func (f *fakeStore) Contributions(context.Context, string) ([]model.Contribution, error) {
	return nil, nil
}

type fakeStats struct{}

func (fakeStats) All(context.Context, string, model.Category) ([]model.EntryStats, error) {
	return nil, nil
}

func TestEngineRun(t *testing.T) {
	Convey("Given an engine over a group with a long-running #1", t, func() {
		h := hist(model.CategoryTracks, "hit", run(1, 8, 1))
		store := &fakeStore{
			members: []model.Member{{UserID: "u1"}, {UserID: "u2"}},
			history: map[model.Category][]model.ChartEntryRecord{model.CategoryTracks: h},
		}
		now := wk(9)
		clock := func() time.Time { return now }
		engine := records.NewEngine(store, fakeStats{}, records.WithClock(clock), records.WithLease(time.Hour))
		ctx := context.Background()

		Convey("When no snapshot exists", func() {
			snap, err := engine.Run(ctx, "g", records.RunOptions{})
			So(err, ShouldBeNil)

			Convey("Then a full run completes and is stored", func() {
				So(snap.Status, ShouldEqual, records.StatusCompleted)
				So(snap.Mode, ShouldEqual, records.RunFull)
				So(snap.RunID, ShouldNotBeEmpty)
				So(snap.Streaks[model.CategoryTracks].ConsecutiveAtOne.Value, ShouldEqual, 8)
				So(store.snap.Status, ShouldEqual, records.StatusCompleted)
			})

			Convey("Then per-user records are skipped for a two member group", func() {
				So(snap.Users, ShouldBeNil)
			})

			Convey("Then a second unforced run returns the cached snapshot", func() {
				again, err := engine.Run(ctx, "g", records.RunOptions{})
				So(err, ShouldBeNil)
				So(again.RunID, ShouldEqual, snap.RunID)
				So(store.saves, ShouldEqual, 1)
			})

			Convey("Then a forced run with a hint is incremental and keeps the holder", func() {
				store.history[model.CategoryTracks] = append(h,
					hist(model.CategoryTracks, "rival", run(1, 3, 1))...)
				hint := []model.ChartEntryRecord{{Category: model.CategoryTracks, EntryKey: "rival", Position: 1}}

				next, err := engine.Run(ctx, "g", records.RunOptions{Hint: hint, Force: true})
				So(err, ShouldBeNil)
				So(next.Mode, ShouldEqual, records.RunIncremental)
				So(next.RunID, ShouldNotEqual, snap.RunID)
				So(next.Streaks[model.CategoryTracks].ConsecutiveAtOne.EntryKey, ShouldEqual, "hit")
			})
		})

		Convey("When another calculation holds the lease", func() {
			store.snap = &records.Snapshot{GroupID: "g", Status: records.StatusCalculating, CalculationStartedAt: now.Add(-time.Minute)}
			_, err := engine.Run(ctx, "g", records.RunOptions{Force: true})
			So(errors.Is(err, records.ErrInProgress), ShouldBeTrue)
		})

		Convey("When the lease is taken between check and acquire", func() {
			store.leaseHeld = true
			_, err := engine.Run(ctx, "g", records.RunOptions{})
			So(errors.Is(err, records.ErrInProgress), ShouldBeTrue)
		})

		Convey("When loading history fails", func() {
			store.failHist = errors.New("db gone")
			_, err := engine.Run(ctx, "g", records.RunOptions{})

			Convey("Then the run is recorded as failed", func() {
				So(err, ShouldNotBeNil)
				So(store.snap.Status, ShouldEqual, records.StatusFailed)
				So(store.snap.Error, ShouldContainSubstring, "db gone")
			})
		})

		Convey("When reading before any run", func() {
			s, err := engine.Get(ctx, "g")
			So(err, ShouldBeNil)
			So(s.Status, ShouldEqual, records.StatusNone)
		})
	})
}
