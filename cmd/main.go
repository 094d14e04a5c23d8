package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/tunechart/internal/adapters/http/api"
	"github.com/okian/tunechart/internal/adapters/repository"
	"github.com/okian/tunechart/internal/adapters/source/lastfm"
	app "github.com/okian/tunechart/internal/app"
	"github.com/okian/tunechart/internal/config"
	"github.com/okian/tunechart/pkg/logger"
	"github.com/okian/tunechart/pkg/metrics"
)

// HTTP server timeout constants. Regenerations fetch every member from the
// listening source, so writes get more room than reads.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Minute
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 30 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Get().Error(ctx, "tunechart exited", logger.Error(err))
		_ = logger.Sync()
		stop()
		os.Exit(1)
	}
	_ = logger.Sync()
}

// components is everything run starts and later tears down.
type components struct {
	store  *repository.Store
	svc    *app.Service
	server *http.Server
}

func (c *components) Close() error {
	return c.store.Close()
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	if err := logger.InitWithFormat(cfg.LogFormat); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	if cfg.LastFMAPIKey == "" {
		log.Warn(ctx, "no listening source API key configured; regenerations will fail")
	}

	c, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Error(ctx, "close store failed", logger.Error(err))
		}
	}()

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, c.svc)

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := c.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := c.server.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// build opens the store and wires the source client, service and router.
func build(ctx context.Context, cfg *config.Config) (*components, error) {
	store, err := repository.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	source := lastfm.New(cfg.LastFMAPIKey,
		lastfm.WithBaseURL(cfg.LastFMBaseURL),
		lastfm.WithSharedSecret(cfg.LastFMSharedSecret),
		lastfm.WithRequestsPerSecond(cfg.SourceRequestsPerSecond),
		lastfm.WithMaxAttempts(cfg.SourceMaxAttempts),
		lastfm.WithBackoff(cfg.SourceBaseDelay(), cfg.SourceRateLimitDelay()),
		lastfm.WithHTTPClient(&http.Client{Timeout: cfg.SourceTimeout()}),
	)

	svc := app.New(store, source,
		app.WithFetchConcurrency(cfg.FetchConcurrency),
		app.WithBackfillDelay(cfg.BackfillDelay()),
		app.WithMaxRangeWeeks(cfg.MaxRangeWeeks),
		app.WithRecordsLease(cfg.RecordsLease()),
		app.WithCandidateLimit(cfg.RecordsCandidateLimit),
		app.WithMinMembers(cfg.MinMembersForUserRecords),
	)

	apiServer := api.NewServer(svc, svc, store)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           apiServer.Handler(),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return &components{store: store, svc: svc, server: srv}, nil
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater refreshes service gauges such as the group count.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = svc.GetStats(ctx)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
