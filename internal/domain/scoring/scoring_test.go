package scoring_test

import (
	"errors"
	"testing"

	"github.com/okian/tunechart/internal/domain/model"
	"github.com/okian/tunechart/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func TestPositionScore(t *testing.T) {
	Convey("Given the position score curve", t, func() {
		Convey("Then boundary positions land on exact values", func() {
			So(scoring.PositionScore(1), ShouldEqual, 2.00)
			So(scoring.PositionScore(2), ShouldEqual, 1.95)
			So(scoring.PositionScore(21), ShouldEqual, 1.00)
			So(scoring.PositionScore(22), ShouldAlmostEqual, 0.9875, 1e-12)
			So(scoring.PositionScore(61), ShouldAlmostEqual, 0.5, 1e-12)
			So(scoring.PositionScore(100), ShouldAlmostEqual, 0.0125, 1e-12)
			So(scoring.PositionScore(101), ShouldEqual, 0.0)
			So(scoring.PositionScore(250), ShouldEqual, 0.0)
		})

		Convey("Then invalid positions score zero", func() {
			So(scoring.PositionScore(0), ShouldEqual, 0.0)
			So(scoring.PositionScore(-3), ShouldEqual, 0.0)
		})

		Convey("Then the curve never increases", func() {
			for p := 1; p <= scoring.Window; p++ {
				So(scoring.PositionScore(p), ShouldBeGreaterThanOrEqualTo, scoring.PositionScore(p+1))
			}
		})

		Convey("Then every scored position is strictly positive", func() {
			for p := 1; p <= scoring.Window; p++ {
				So(scoring.PositionScore(p), ShouldBeGreaterThan, 0)
			}
		})
	})
}

func TestScoreList(t *testing.T) {
	Convey("Given a ranked list longer than the window", t, func() {
		items := make([]model.RankedItem, 130)
		for i := range items {
			items[i] = model.RankedItem{Name: "item", Playcount: 200 - i}
		}

		Convey("When scoring it", func() {
			scored := scoring.ScoreList(items)

			Convey("Then only the window is kept", func() {
				So(len(scored), ShouldEqual, scoring.Window)
			})

			Convey("Then positions follow list order", func() {
				So(scored[0].Position, ShouldEqual, 1)
				So(scored[0].Score, ShouldEqual, 2.0)
				So(scored[20].Position, ShouldEqual, 21)
				So(scored[20].Score, ShouldEqual, 1.0)
				So(scored[99].Position, ShouldEqual, 100)
			})
		})
	})

	Convey("Given an empty list", t, func() {
		So(scoring.ScoreList(nil), ShouldBeEmpty)
	})
}

func TestModes(t *testing.T) {
	Convey("Given a scored item", t, func() {
		s := scoring.Scored{Item: model.RankedItem{Name: "x", Playcount: 50}, Position: 1, Score: 2.0}

		Convey("When using plays_only", func() {
			m, err := scoring.ModeFor(model.ModePlaysOnly)
			So(err, ShouldBeNil)
			So(m.Name(), ShouldEqual, model.ModePlaysOnly)
			So(m.Contribution(s), ShouldEqual, 50.0)
		})

		Convey("When using vs", func() {
			m, err := scoring.ModeFor(model.ModeVS)
			So(err, ShouldBeNil)
			So(m.Contribution(s), ShouldEqual, 2.0)
		})

		Convey("When using vs_weighted", func() {
			m, err := scoring.ModeFor(model.ModeVSWeighted)
			So(err, ShouldBeNil)
			So(m.Contribution(s), ShouldEqual, 100.0)
		})

		Convey("When the mode is empty it falls back to vs", func() {
			m, err := scoring.ModeFor("")
			So(err, ShouldBeNil)
			So(m.Name(), ShouldEqual, model.ModeVS)
		})

		Convey("When the mode is unknown", func() {
			_, err := scoring.ModeFor("median")
			So(errors.Is(err, scoring.ErrUnknownMode), ShouldBeTrue)
		})
	})
}
