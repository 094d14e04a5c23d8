package types_test

import (
	"testing"
	"time"

	"github.com/okian/tunechart/internal/domain/model"
	types "github.com/okian/tunechart/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNewChart(t *testing.T) {
	Convey("Given stored chart rows", t, func() {
		week := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
		up := -3
		recs := []model.ChartEntryRecord{
			{EntryKey: "a|x", DisplayName: "A", DisplayArtist: "X", Position: 1, Playcount: 30, Score: 4, Contributors: 2,
				PositionChange: &up, TotalWeeksAppeared: 4, HighestPosition: 1},
			{EntryKey: "b|y", DisplayName: "B", Position: 2, EntryType: model.EntryTypeNew, TotalWeeksAppeared: 1, HighestPosition: 2},
		}

		Convey("When converting them", func() {
			c := types.NewChart("g1", week, model.CategoryTracks, recs)

			Convey("Then the header and rows carry over", func() {
				So(c.Week, ShouldEqual, "2024-03-04")
				So(c.Category, ShouldEqual, "tracks")
				So(len(c.Entries), ShouldEqual, 2)
				So(*c.Entries[0].PositionChange, ShouldEqual, -3)
				So(c.Entries[0].Peak, ShouldEqual, 1)
				So(c.Entries[1].PositionChange, ShouldBeNil)
				So(c.Entries[1].EntryType, ShouldEqual, "new")
			})
		})

		Convey("When there are no rows", func() {
			c := types.NewChart("g1", week, model.CategoryTracks, nil)
			So(c.Entries, ShouldNotBeNil)
			So(c.Entries, ShouldBeEmpty)
		})
	})
}

func TestNewEntryStats(t *testing.T) {
	Convey("Given a stats row", t, func() {
		w := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
		st := model.EntryStats{GroupID: "g1", Category: model.CategoryArtists, EntryKey: "low", DisplayName: "Low",
			PeakPosition: 2, DebutWeek: w, LatestAppearance: w, TotalWeeksCharting: 1}

		Convey("Then zero dates are omitted and the driver is optional", func() {
			v := types.NewEntryStats(st, nil)
			So(v.DebutWeek, ShouldEqual, "2024-03-04")
			So(v.StreakStart, ShouldEqual, "")
			So(v.MajorDriver, ShouldBeNil)

			v = types.NewEntryStats(st, &model.MajorDriver{UserID: "u1", Username: "ann", Contribution: 9})
			So(v.MajorDriver.Username, ShouldEqual, "ann")
		})
	})
}
