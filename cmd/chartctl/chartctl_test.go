package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/gofrs/flock"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/tunechart/internal/domain/types"
)

const (
	artistsJSON = `{"weeklyartistchart":{"artist":[{"name":"Low","playcount":"9"}]}}`
	tracksJSON  = `{"weeklytrackchart":{"track":[
		{"artist":{"#text":"Low"},"name":"Lullaby","playcount":"7"},
		{"artist":{"#text":"Low"},"name":"Words","playcount":"2"}
	]}}`
	albumsJSON = `{"weeklyalbumchart":{"album":[]}}`
)

// env points the CLI at a temp database and a fake listening source.
func env(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("method") {
		case "user.getweeklyartistchart":
			_, _ = w.Write([]byte(artistsJSON))
		case "user.getweeklytrackchart":
			_, _ = w.Write([]byte(tracksJSON))
		default:
			_, _ = w.Write([]byte(albumsJSON))
		}
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	t.Setenv("TUNECHART_DATABASE_PATH", filepath.Join(dir, "charts.db"))
	t.Setenv("TUNECHART_LASTFM_API_KEY", "key")
	t.Setenv("TUNECHART_LASTFM_BASE_URL", srv.URL)
	t.Setenv("TUNECHART_SOURCE_REQUESTS_PER_SECOND", "1000")
	t.Setenv("TUNECHART_BACKFILL_DELAY_MS", "0")
	t.Setenv("TUNECHART_LOG_LEVEL", "error")
	t.Setenv("TUNECHART_CONFIG", "")
	return dir
}

func execute(args ...string) (string, error) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestGroupCommands(t *testing.T) {
	Convey("Given an empty database", t, func() {
		env(t)

		Convey("When a group and members are created", func() {
			_, err := execute("group", "set", "g1", "--name", "Friends", "--day", "mon")
			So(err, ShouldBeNil)
			_, err = execute("member", "add", "g1", "u1", "ann")
			So(err, ShouldBeNil)
			_, err = execute("member", "add", "g1", "u2", "bob", "--session-key", "sk")
			So(err, ShouldBeNil)

			Convey("Then they are listed", func() {
				out, err := execute("group", "list")
				So(err, ShouldBeNil)
				So(out, ShouldContainSubstring, "Friends")
				So(out, ShouldContainSubstring, "monday")

				out, err = execute("member", "list", "g1")
				So(err, ShouldBeNil)
				So(out, ShouldContainSubstring, "ann")
				So(out, ShouldContainSubstring, "bob")
			})

			Convey("Then a member can be removed", func() {
				_, err := execute("member", "remove", "g1", "u2")
				So(err, ShouldBeNil)
				_, err = execute("member", "remove", "g1", "u2")
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When the settings are invalid", func() {
			_, err := execute("group", "set", "g2", "--mode", "median")
			So(err, ShouldNotBeNil)
			_, err = execute("group", "set", "g2", "--day", "someday")
			So(err, ShouldNotBeNil)
			_, err = execute("group", "set", "g2", "--size", "0")
			So(err, ShouldNotBeNil)
		})

		Convey("When adding a member to a missing group", func() {
			_, err := execute("member", "add", "nope", "u1", "ann")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestRegenerateCommands(t *testing.T) {
	Convey("Given a group of two listeners", t, func() {
		dir := env(t)
		_, err := execute("group", "set", "g1")
		So(err, ShouldBeNil)
		_, err = execute("member", "add", "g1", "u1", "ann")
		So(err, ShouldBeNil)
		_, err = execute("member", "add", "g1", "u2", "bob")
		So(err, ShouldBeNil)

		Convey("When a week is regenerated", func() {
			out, err := execute("regenerate", "week", "g1", "2024-03-06")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "2024-03-04")
			So(out, ShouldContainSubstring, "records: completed")

			Convey("Then the chart prints", func() {
				out, err := execute("chart", "g1", "tracks", "--week", "2024-03-04")
				So(err, ShouldBeNil)
				So(out, ShouldContainSubstring, "Lullaby")
				So(out, ShouldContainSubstring, "NEW")
			})

			Convey("Then the chart prints as JSON", func() {
				out, err := execute("chart", "g1", "tracks", "--json")
				So(err, ShouldBeNil)

				var chart types.Chart
				So(json.Unmarshal([]byte(out), &chart), ShouldBeNil)
				So(chart.Week, ShouldEqual, "2024-03-04")
				So(len(chart.Entries), ShouldEqual, 2)
				So(chart.Entries[0].Playcount, ShouldEqual, 14)
			})

			Convey("Then entry stats and records print", func() {
				out, err := execute("entry", "g1", "tracks", "lullaby|low")
				So(err, ShouldBeNil)
				So(out, ShouldContainSubstring, `"peak_position": 1`)

				out, err = execute("records", "g1")
				So(err, ShouldBeNil)
				So(out, ShouldContainSubstring, `"status": "completed"`)

				out, err = execute("records", "g1", "--refresh")
				So(err, ShouldBeNil)
				So(out, ShouldContainSubstring, `"status": "completed"`)
			})
		})

		Convey("When another process holds the group lock", func() {
			So(os.MkdirAll(filepath.Join(dir, "locks"), 0o755), ShouldBeNil)
			lock := flock.New(filepath.Join(dir, "locks", "g1.lock"))
			ok, err := lock.TryLock()
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			defer func() { _ = lock.Unlock() }()

			_, err = execute("regenerate", "week", "g1", "2024-03-06")
			So(errors.Is(err, errGroupLocked), ShouldBeTrue)
		})

		Convey("When the arguments are malformed", func() {
			_, err := execute("regenerate", "week", "g1", "last-week")
			So(err, ShouldNotBeNil)
			_, err = execute("regenerate", "range", "g1", "many")
			So(err, ShouldNotBeNil)
			_, err = execute("chart", "g1", "genres")
			So(err, ShouldNotBeNil)
		})
	})
}
