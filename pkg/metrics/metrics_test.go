package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given a manager on its own registry", t, func() {
		registry := prometheus.NewRegistry()
		manager := NewManager(WithPrometheusRegistry(registry))

		Convey("Then it should be created successfully", func() {
			So(manager, ShouldNotBeNil)
			So(manager.registry, ShouldEqual, registry)
		})

		Convey("Then metric names carry the namespace and subsystem", func() {
			manager.aggregationRuns.WithLabelValues("written").Inc()
			families, err := registry.Gather()
			So(err, ShouldBeNil)
			found := false
			for _, f := range families {
				if f.GetName() == "tunechart_charts_aggregation_runs_total" {
					found = true
				}
			}
			So(found, ShouldBeTrue)
		})

		Convey("Then a nil registry keeps the previous one", func() {
			m := &Manager{registry: registry}
			WithPrometheusRegistry(nil)(m)
			So(m.registry, ShouldEqual, registry)
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metric helpers", t, func() {
		Convey("When recording aggregation outcomes", func() {
			before := testutil.ToFloat64(globalManager.aggregationRuns.WithLabelValues("aborted"))
			RecordAggregationRun("aborted")
			RecordAggregationRun("aborted")

			Convey("Then the counter moves", func() {
				after := testutil.ToFloat64(globalManager.aggregationRuns.WithLabelValues("aborted"))
				So(after-before, ShouldEqual, 2)
			})
		})

		Convey("When recording chart writes", func() {
			before := testutil.ToFloat64(globalManager.chartEntriesWritten.WithLabelValues("tracks"))
			RecordChartEntriesWritten("tracks", 10)
			So(testutil.ToFloat64(globalManager.chartEntriesWritten.WithLabelValues("tracks"))-before, ShouldEqual, 10)
		})

		Convey("When recording everything else", func() {
			So(func() {
				RecordMemberFetchLatency(120)
				RecordMemberFetchFailure("not_found")
				RecordSourceRequest("user.getweeklyartistchart", "ok")
				RecordSourceRetry("rate_limited")
				UpdateCircuitBreakerState("lastfm", 0)
				RecordChartWriteLatency(3)
				RecordBackfillWeek("written")
				RecordInvalidationFailure()
				RecordStatsCacheLookup("hit")
				RecordRecordsRun("full", "completed")
				RecordRecordsDuration(40)
				UpdateQueueSize(3)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				UpdateWorkerActiveCount(3)
				RecordWorkerProcessingLatency(15)
				UpdateGroupsTotal(2)
				RecordHTTPRequest("records", "GET", "200")
				RecordHTTPRequestDuration("records", "GET", "200", 5)
				RecordErrorByComponent("aggregate", "abort")
				RecordErrorByType("server_error", "high")
				RecordErrorByEndpoint("records", "GET", "not_found")
				RecordErrorLatency("http", "not_found", 2)
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.4)
			}, ShouldNotPanic)
		})

		Convey("When gathering the custom registry", func() {
			RecordStatsCacheLookup("recompute")
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			names := make([]string, 0, len(families))
			for _, f := range families {
				names = append(names, f.GetName())
			}
			So(strings.Join(names, ","), ShouldContainSubstring, "tunechart_charts_stats_cache_lookups_total")
		})
	})
}
