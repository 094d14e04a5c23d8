package model_test

import (
	"testing"
	"time"

	"github.com/okian/tunechart/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestEntryKey(t *testing.T) {
	Convey("Given raw item names", t, func() {
		Convey("When keying an artist", func() {
			So(model.EntryKey(model.CategoryArtists, "  Radiohead ", ""), ShouldEqual, "radiohead")
			So(model.EntryKey(model.CategoryArtists, "RADIOHEAD", "ignored"), ShouldEqual, "radiohead")
		})

		Convey("When keying a track", func() {
			key := model.EntryKey(model.CategoryTracks, "Karma  Police", " Radiohead")
			So(key, ShouldEqual, "karma police|radiohead")
			So(model.EntryKey(model.CategoryTracks, "karma police", "RADIOHEAD"), ShouldEqual, key)
		})

		Convey("When the name is blank", func() {
			So(model.EntryKey(model.CategoryAlbums, "   ", "x"), ShouldEqual, "")
		})
	})
}

func TestWeekStart(t *testing.T) {
	Convey("Given a timestamp on a Wednesday afternoon", t, func() {
		ts := time.Date(2024, 3, 13, 15, 30, 0, 0, time.UTC)

		Convey("Then a Monday cadence normalises to the previous Monday midnight", func() {
			So(model.WeekStart(ts, time.Monday), ShouldEqual, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC))
		})

		Convey("Then a Wednesday cadence normalises to the same day", func() {
			So(model.WeekStart(ts, time.Wednesday), ShouldEqual, time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC))
		})

		Convey("Then a Thursday cadence goes back six days", func() {
			So(model.WeekStart(ts, time.Thursday), ShouldEqual, time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC))
		})

		Convey("Then non-UTC inputs are converted first", func() {
			loc := time.FixedZone("UTC+10", 10*3600)
			local := time.Date(2024, 3, 11, 5, 0, 0, 0, loc) // Sunday 19:00 UTC
			So(model.WeekStart(local, time.Monday), ShouldEqual, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC))
		})
	})
}

func TestCategoriesAndParsing(t *testing.T) {
	Convey("Given the category helpers", t, func() {
		So(model.Categories(), ShouldResemble, []model.Category{model.CategoryArtists, model.CategoryTracks, model.CategoryAlbums})

		c, err := model.ParseCategory("tracks")
		So(err, ShouldBeNil)
		So(c, ShouldEqual, model.CategoryTracks)

		_, err = model.ParseCategory("genres")
		So(err, ShouldNotBeNil)
	})

	Convey("Given a snapshot", t, func() {
		snap := &model.ChartSnapshot{Entries: []model.ChartEntry{{EntryKey: "a", Position: 1}}}
		e, ok := snap.Find("a")
		So(ok, ShouldBeTrue)
		So(e.Position, ShouldEqual, 1)

		_, ok = snap.Find("b")
		So(ok, ShouldBeFalse)

		var nilSnap *model.ChartSnapshot
		_, ok = nilSnap.Find("a")
		So(ok, ShouldBeFalse)
	})
}
