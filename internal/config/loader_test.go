package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okian/tunechart/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		clearConfigEnvVars(t)

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldResemble, config.New())
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			t.Setenv("TUNECHART_ADDR", ":8080")
			t.Setenv("TUNECHART_FETCH_CONCURRENCY", "5")
			t.Setenv("TUNECHART_SOURCE_REQUESTS_PER_SECOND", "2.5")
			t.Setenv("TUNECHART_LASTFM_API_KEY", "abc")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.FetchConcurrency, convey.ShouldEqual, 5)
				convey.So(cfg.SourceRequestsPerSecond, convey.ShouldEqual, 2.5)
				convey.So(cfg.LastFMAPIKey, convey.ShouldEqual, "abc")
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			path := writeFile(t, dir, "config.yaml", `
addr: ":9090"
database_path: /tmp/charts.db
max_range_weeks: 12
backfill_delay_ms: 0
`)
			t.Setenv("TUNECHART_CONFIG", path)
			t.Setenv("TUNECHART_MAX_RANGE_WEEKS", "20")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.DatabasePath, convey.ShouldEqual, "/tmp/charts.db")
				convey.So(cfg.MaxRangeWeeks, convey.ShouldEqual, 20)
				convey.So(cfg.BackfillDelayMS, convey.ShouldEqual, 0)
				convey.So(cfg.RecordsLeaseMinutes, convey.ShouldEqual, 60)
			})
		})

		convey.Convey("When a .env file is given", func() {
			path := writeFile(t, dir, "test.env", "TUNECHART_LASTFM_API_KEY=from-dotenv\nTUNECHART_ADDR=:7000\n")
			t.Setenv("TUNECHART_ENV_FILE", path)
			t.Setenv("TUNECHART_ADDR", ":7001")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it fills unset variables only", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.LastFMAPIKey, convey.ShouldEqual, "from-dotenv")
				convey.So(cfg.Addr, convey.ShouldEqual, ":7001")
			})
			_ = os.Unsetenv("TUNECHART_LASTFM_API_KEY")
		})

		convey.Convey("When the .env file is missing", func() {
			t.Setenv("TUNECHART_ENV_FILE", filepath.Join(dir, "nope.env"))
			cfg, err := config.Load(ctx)
			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			t.Setenv("TUNECHART_CONFIG", writeFile(t, dir, "bad.yaml", `invalid: yaml: content: [`))
			cfg, err := config.Load(ctx)

			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When loading config with non-existent file", func() {
			t.Setenv("TUNECHART_CONFIG", "/non/existent/file.yaml")
			cfg, err := config.Load(ctx)

			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When loading config with empty addr", func() {
			t.Setenv("TUNECHART_ADDR", "")
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "Addr")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			t.Setenv("TUNECHART_FETCH_CONCURRENCY", "not_a_number")
			cfg, err := config.Load(ctx)

			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When a value is out of range", func() {
			t.Setenv("TUNECHART_MAX_RANGE_WEEKS", "0")
			_, err := config.Load(ctx)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}

// Helper functions.

func clearConfigEnvVars(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, "TUNECHART_") {
			t.Setenv(name, "")
			_ = os.Unsetenv(name)
		}
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}
