package api_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/okian/tunechart/internal/adapters/http/api"
	"github.com/okian/tunechart/internal/adapters/repository"
	service "github.com/okian/tunechart/internal/app"
	"github.com/okian/tunechart/internal/domain/aggregate"
	"github.com/okian/tunechart/internal/domain/entrystats"
	"github.com/okian/tunechart/internal/domain/model"
	"github.com/okian/tunechart/internal/domain/records"
	"github.com/okian/tunechart/internal/domain/types"
	logging "github.com/okian/tunechart/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() { //nolint:gochecknoinits // handlers log through the global logger
	_ = logging.Init()
}

type mockDeps struct {
	gotGroup   string
	gotWeek    time.Time
	gotKey     string
	gotCat     model.Category
	gotExclude []string
	gotBack    int

	chartErr   error
	entryErr   error
	recordsErr error
	weekErr    error
	rangeRes   types.RangeResult
	rangeErr   error
}

func (m *mockDeps) GetChartSnapshot(_ context.Context, groupID string, week time.Time, c model.Category) (types.Chart, error) {
	m.gotGroup, m.gotWeek, m.gotCat = groupID, week, c
	if m.chartErr != nil {
		return types.Chart{}, m.chartErr
	}
	return types.NewChart(groupID, week, c, []model.ChartEntryRecord{{EntryKey: "a", DisplayName: "A", Position: 1}}), nil
}

func (m *mockDeps) GetEntryStats(_ context.Context, groupID string, c model.Category, key string) (types.EntryStats, error) {
	m.gotGroup, m.gotCat, m.gotKey = groupID, c, key
	if m.entryErr != nil {
		return types.EntryStats{}, m.entryErr
	}
	return types.EntryStats{GroupID: groupID, EntryKey: key, PeakPosition: 1}, nil
}

func (m *mockDeps) GetRecords(_ context.Context, groupID string) (*records.Snapshot, error) {
	m.gotGroup = groupID
	if m.recordsErr != nil {
		return nil, m.recordsErr
	}
	return &records.Snapshot{GroupID: groupID, Status: records.StatusNone}, nil
}

func (m *mockDeps) RegenerateWeek(_ context.Context, groupID string, week time.Time, exclude []string) (types.WeekResult, error) {
	m.gotGroup, m.gotWeek, m.gotExclude = groupID, week, exclude
	if m.weekErr != nil {
		return types.WeekResult{}, m.weekErr
	}
	return types.WeekResult{GroupID: groupID, Week: week.Format(types.DateLayout), RunID: "run"}, nil
}

func (m *mockDeps) RegenerateRange(_ context.Context, groupID string, weeksBack int) (types.RangeResult, error) {
	m.gotGroup, m.gotBack = groupID, weeksBack
	return m.rangeRes, m.rangeErr
}

type mockStats struct{}

func (mockStats) GetStats(context.Context) map[string]interface{} {
	return map[string]interface{}{"groups": 2}
}

type mockPinger struct{ err error }

func (p *mockPinger) Ping(context.Context) error { return p.err }

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(w *httptest.ResponseRecorder) types.ErrorResponse {
	var out types.ErrorResponse
	So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
	return out
}

func TestHealthAndStats(t *testing.T) {
	Convey("Given a server", t, func() {
		pinger := &mockPinger{}
		h := api.NewServer(&mockDeps{}, mockStats{}, pinger).Handler()

		Convey("Then /healthz reports ok", func() {
			w := serve(h, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"ok"`)
		})

		Convey("Then /healthz fails when the store is down", func() {
			pinger.err = errors.New("disk gone")
			w := serve(h, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("Then /metrics exposes the registry", func() {
			w := serve(h, http.MethodGet, "/metrics", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then /stats echoes the provider", func() {
			w := serve(h, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"groups":2`)
		})

		Convey("Then the API contract is served", func() {
			w := serve(h, http.MethodGet, "/openapi.yaml", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then unknown routes are 404", func() {
			w := serve(h, http.MethodGet, "/groups", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestCharts(t *testing.T) {
	Convey("Given a server", t, func() {
		deps := &mockDeps{}
		h := api.NewServer(deps, mockStats{}, nil).Handler()

		Convey("When a chart is requested for a week", func() {
			w := serve(h, http.MethodGet, "/groups/g1/charts/tracks?week=2024-03-04", "")

			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.gotGroup, ShouldEqual, "g1")
			So(deps.gotCat, ShouldEqual, model.CategoryTracks)
			So(deps.gotWeek, ShouldEqual, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC))

			var chart types.Chart
			So(json.Unmarshal(w.Body.Bytes(), &chart), ShouldBeNil)
			So(chart.Week, ShouldEqual, "2024-03-04")
			So(len(chart.Entries), ShouldEqual, 1)
		})

		Convey("When no week is given the zero week is passed through", func() {
			w := serve(h, http.MethodGet, "/groups/g1/charts/artists", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.gotWeek.IsZero(), ShouldBeTrue)
		})

		Convey("When the category is unknown", func() {
			w := serve(h, http.MethodGet, "/groups/g1/charts/genres", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decodeError(w).Code, ShouldEqual, "bad_request")
		})

		Convey("When the week is malformed", func() {
			w := serve(h, http.MethodGet, "/groups/g1/charts/tracks?week=last", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the week was never generated", func() {
			deps.chartErr = fmt.Errorf("chart: %w", repository.ErrNotFound)
			w := serve(h, http.MethodGet, "/groups/g1/charts/tracks?week=2024-03-04", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When the store fails", func() {
			deps.chartErr = errors.New("database is locked")
			w := serve(h, http.MethodGet, "/groups/g1/charts/tracks", "")
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			So(decodeError(w).Code, ShouldEqual, "internal_error")
		})
	})
}

func TestEntriesAndRecords(t *testing.T) {
	Convey("Given a server", t, func() {
		deps := &mockDeps{}
		h := api.NewServer(deps, mockStats{}, nil).Handler()

		Convey("When an escaped track key is requested", func() {
			w := serve(h, http.MethodGet, "/groups/g1/entries/tracks/karma%20police%7Cradiohead", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.gotKey, ShouldEqual, "karma police|radiohead")
			So(w.Body.String(), ShouldContainSubstring, `"peak_position":1`)
		})

		Convey("When the entry never charted", func() {
			deps.entryErr = entrystats.ErrNotCharted
			w := serve(h, http.MethodGet, "/groups/g1/entries/artists/nobody", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When records are requested", func() {
			w := serve(h, http.MethodGet, "/groups/g1/records", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"status":"none"`)
		})

		Convey("When the group is unknown", func() {
			deps.recordsErr = repository.ErrNotFound
			w := serve(h, http.MethodGet, "/groups/zz/records", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestRegenerate(t *testing.T) {
	Convey("Given a server", t, func() {
		deps := &mockDeps{}
		h := api.NewServer(deps, mockStats{}, nil).Handler()

		Convey("When a week is regenerated with exclusions", func() {
			w := serve(h, http.MethodPost, "/groups/g1/regenerate", `{"week":"2024-03-06","exclude":["u2"]}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.gotWeek, ShouldEqual, time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC))
			So(deps.gotExclude, ShouldResemble, []string{"u2"})
			So(w.Body.String(), ShouldContainSubstring, `"run_id":"run"`)
		})

		Convey("When the body is invalid", func() {
			So(serve(h, http.MethodPost, "/groups/g1/regenerate", `{`).Code, ShouldEqual, http.StatusBadRequest)
			So(serve(h, http.MethodPost, "/groups/g1/regenerate", `{}`).Code, ShouldEqual, http.StatusBadRequest)
			So(serve(h, http.MethodPost, "/groups/g1/regenerate", `{"week":"03/06/2024"}`).Code, ShouldEqual, http.StatusBadRequest)
			So(serve(h, http.MethodPost, "/groups/g1/regenerate", `{"week":"2024-03-06","exclude":[""]}`).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When too many members fail", func() {
			deps.weekErr = &aggregate.AbortError{Failed: []string{"u1", "u3"}}
			w := serve(h, http.MethodPost, "/groups/g1/regenerate", `{"week":"2024-03-04"}`)
			So(w.Code, ShouldEqual, http.StatusConflict)

			body := decodeError(w)
			So(body.Code, ShouldEqual, "too_many_failures")
			So(body.FailedMembers, ShouldResemble, []string{"u1", "u3"})
		})

		Convey("When the week is already being regenerated", func() {
			deps.weekErr = fmt.Errorf("g1: %w", service.ErrRegenerationInProgress)
			w := serve(h, http.MethodPost, "/groups/g1/regenerate", `{"week":"2024-03-04"}`)
			So(w.Code, ShouldEqual, http.StatusConflict)
			So(decodeError(w).Code, ShouldEqual, "in_progress")
		})

		Convey("When a range is regenerated", func() {
			deps.rangeRes = types.RangeResult{GroupID: "g1", Weeks: []types.WeekResult{{Week: "2024-03-04"}}}
			w := serve(h, http.MethodPost, "/groups/g1/regenerate-range", `{"weeks_back":1}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.gotBack, ShouldEqual, 1)
		})

		Convey("When the range is missing", func() {
			w := serve(h, http.MethodPost, "/groups/g1/regenerate-range", `{"weeks_back":0}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the range exceeds the limit", func() {
			deps.rangeErr = fmt.Errorf("%w: too many", service.ErrInvalidRange)
			w := serve(h, http.MethodPost, "/groups/g1/regenerate-range", `{"weeks_back":99}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the range stops at a failed week", func() {
			deps.rangeRes = types.RangeResult{GroupID: "g1", FailedWeek: "2024-03-11", Error: "too many member fetch failures"}
			deps.rangeErr = fmt.Errorf("week 2024-03-11: %w", &aggregate.AbortError{Failed: []string{"u2"}})
			w := serve(h, http.MethodPost, "/groups/g1/regenerate-range", `{"weeks_back":2}`)
			So(w.Code, ShouldEqual, http.StatusConflict)
			So(w.Body.String(), ShouldContainSubstring, `"failed_week":"2024-03-11"`)
		})
	})
}
