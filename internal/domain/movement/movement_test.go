package movement_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/tunechart/internal/domain/model"
	"github.com/okian/tunechart/internal/domain/movement"
	logging "github.com/okian/tunechart/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() { //nolint:gochecknoinits // logger must exist before writers are built
	_ = logging.Init()
}

var (
	w1 = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	w2 = w1.Add(model.Week)
)

func snapshot(week time.Time, keys ...string) model.ChartSnapshot {
	s := model.ChartSnapshot{GroupID: "g", WeekStart: week, Category: model.CategoryArtists}
	for i, k := range keys {
		s.Entries = append(s.Entries, model.ChartEntry{EntryKey: k, DisplayName: k, Position: i + 1, Playcount: 10 * (i + 1), Score: float64(i + 1)})
	}
	return s
}

func TestCompute(t *testing.T) {
	Convey("Given last week's chart", t, func() {
		prev := snapshot(w1, "a", "b", "c", "d", "e")

		Convey("When an entry climbs from 5 to 2 and another falls from 2 to 5", func() {
			cur := snapshot(w2, "x", "e", "c", "d", "b")
			prior := map[string]movement.Prior{
				"b": {Weeks: 1, Highest: 2}, "c": {Weeks: 1, Highest: 3},
				"d": {Weeks: 1, Highest: 4}, "e": {Weeks: 1, Highest: 5},
			}
			recs := movement.Compute(cur, &prev, prior)

			Convey("Then position change is negative when climbing", func() {
				So(*recs[1].PositionChange, ShouldEqual, -3)
				So(*recs[4].PositionChange, ShouldEqual, 3)
			})

			Convey("Then play and score deltas follow current minus previous", func() {
				So(*recs[1].PlaysChange, ShouldEqual, 20-50)
				So(*recs[1].ScoreChange, ShouldEqual, 2.0-5.0)
			})

			Convey("Then a first appearance is new with no deltas", func() {
				So(recs[0].EntryType, ShouldEqual, model.EntryTypeNew)
				So(recs[0].PositionChange, ShouldBeNil)
				So(recs[0].TotalWeeksAppeared, ShouldEqual, 1)
				So(recs[0].HighestPosition, ShouldEqual, 1)
			})

			Convey("Then continuing entries count history and keep the best position", func() {
				So(recs[1].EntryType, ShouldEqual, model.EntryTypeContinuing)
				So(recs[1].TotalWeeksAppeared, ShouldEqual, 2)
				So(recs[1].HighestPosition, ShouldEqual, 2)
				So(recs[4].HighestPosition, ShouldEqual, 2)
			})
		})

		Convey("When an old entry returns after missing last week", func() {
			cur := snapshot(w2, "z")
			recs := movement.Compute(cur, &prev, map[string]movement.Prior{"z": {Weeks: 3, Highest: 1}})

			So(recs[0].EntryType, ShouldEqual, model.EntryTypeReEntry)
			So(recs[0].PositionChange, ShouldBeNil)
			So(recs[0].TotalWeeksAppeared, ShouldEqual, 4)
			So(recs[0].HighestPosition, ShouldEqual, 1)
		})
	})

	Convey("Given no previous chart", t, func() {
		recs := movement.Compute(snapshot(w1, "a"), nil, nil)
		So(recs[0].EntryType, ShouldEqual, model.EntryTypeNew)
	})
}

type fakeStore struct {
	mu       sync.Mutex
	prev     map[model.Category]*model.ChartSnapshot
	replaced map[model.Category][]model.ChartEntryRecord
	failOn   model.Category
}

func (f *fakeStore) PreviousSnapshot(_ context.Context, _ string, c model.Category, _ time.Time) (*model.ChartSnapshot, error) {
	return f.prev[c], nil
}

func (f *fakeStore) PriorAppearances(context.Context, string, model.Category, time.Time) (map[string]movement.Prior, error) {
	return nil, nil
}

func (f *fakeStore) ReplaceWeek(_ context.Context, _ string, c model.Category, _ time.Time, recs []model.ChartEntryRecord) ([]string, error) {
	if c == f.failOn {
		return nil, errors.New("disk full")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var removed []string
	for _, r := range f.replaced[c] {
		removed = append(removed, r.EntryKey)
	}
	f.replaced[c] = recs
	return removed, nil
}

type fakeInvalidator struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakeInvalidator) Invalidate(_ context.Context, _ string, _ model.Category, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	if key == "bad" {
		return errors.New("locked")
	}
	return nil
}

func TestWriter(t *testing.T) {
	Convey("Given a writer over a fake store", t, func() {
		store := &fakeStore{replaced: make(map[model.Category][]model.ChartEntryRecord)}
		inv := &fakeInvalidator{}
		w := movement.NewWriter(store, inv)

		Convey("When writing a snapshot whose invalidation partly fails", func() {
			recs, err := w.Write(context.Background(), snapshot(w1, "a", "bad", "c"))

			Convey("Then the write still succeeds and every key was attempted", func() {
				So(err, ShouldBeNil)
				So(len(recs), ShouldEqual, 3)
				So(store.replaced[model.CategoryArtists], ShouldResemble, recs)
				So(inv.keys, ShouldResemble, []string{"a", "bad", "c"})
			})
		})

		Convey("When rewriting a week that loses an entry", func() {
			_, err := w.Write(context.Background(), snapshot(w1, "a", "b"))
			So(err, ShouldBeNil)
			inv.keys = nil

			_, err = w.Write(context.Background(), snapshot(w1, "c", "a"))
			So(err, ShouldBeNil)

			Convey("Then the dropped entry is invalidated along with the written ones", func() {
				So(inv.keys, ShouldResemble, []string{"c", "a", "b"})
			})
		})

		Convey("When writing all categories", func() {
			snaps := map[model.Category]model.ChartSnapshot{}
			for _, c := range model.Categories() {
				s := snapshot(w1, "k1", "k2")
				s.Category = c
				snaps[c] = s
			}
			recs, err := w.WriteAll(context.Background(), snaps)

			Convey("Then each category is replaced and output is ordered", func() {
				So(err, ShouldBeNil)
				So(len(store.replaced), ShouldEqual, 3)
				So(len(recs), ShouldEqual, 6)
				So(recs[0].Category, ShouldEqual, model.CategoryArtists)
				So(recs[5].Category, ShouldEqual, model.CategoryAlbums)
				So(recs[5].Position, ShouldEqual, 2)
			})
		})

		Convey("When one category fails to persist", func() {
			store.failOn = model.CategoryTracks
			snaps := map[model.Category]model.ChartSnapshot{model.CategoryTracks: {GroupID: "g", Category: model.CategoryTracks}}
			_, err := w.WriteAll(context.Background(), snaps)
			So(err, ShouldNotBeNil)
		})

		Convey("When the snapshot has no group", func() {
			_, err := w.Write(context.Background(), model.ChartSnapshot{})
			So(errors.Is(err, movement.ErrEmptyGroup), ShouldBeTrue)
		})
	})
}
