package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"github.com/okian/tunechart/internal/adapters/repository"
	"github.com/okian/tunechart/internal/adapters/source/lastfm"
	app "github.com/okian/tunechart/internal/app"
	"github.com/okian/tunechart/internal/config"
	"github.com/okian/tunechart/pkg/logger"
)

// errGroupLocked is returned when another process regenerates the group.
var errGroupLocked = errors.New("group is locked by another chartctl process")

type commandContext struct {
	configFlag *string

	once  sync.Once
	cfg   *config.Config
	store *repository.Store
	svc   *app.Service
	err   error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

// ensure loads configuration and opens the store once per invocation.
func (c *commandContext) ensure(ctx context.Context) error {
	c.once.Do(func() {
		if path := strings.TrimSpace(*c.configFlag); path != "" {
			if err := os.Setenv(config.EnvConfigFile, path); err != nil {
				c.err = err
				return
			}
		}
		cfg, err := config.Load(ctx)
		if err != nil {
			c.err = err
			return
		}
		if err := logger.InitWithFormat(cfg.LogFormat); err != nil {
			c.err = err
			return
		}
		if err := logger.SetLevelString(cfg.LogLevel); err != nil {
			_ = logger.SetLevelString("warn")
		}

		store, err := repository.Open(ctx, cfg.DatabasePath)
		if err != nil {
			c.err = err
			return
		}
		source := lastfm.New(cfg.LastFMAPIKey,
			lastfm.WithBaseURL(cfg.LastFMBaseURL),
			lastfm.WithSharedSecret(cfg.LastFMSharedSecret),
			lastfm.WithRequestsPerSecond(cfg.SourceRequestsPerSecond),
			lastfm.WithMaxAttempts(cfg.SourceMaxAttempts),
			lastfm.WithBackoff(cfg.SourceBaseDelay(), cfg.SourceRateLimitDelay()),
			lastfm.WithHTTPClient(&http.Client{Timeout: cfg.SourceTimeout()}),
		)
		c.cfg = cfg
		c.store = store
		c.svc = app.New(store, source,
			app.WithFetchConcurrency(cfg.FetchConcurrency),
			app.WithBackfillDelay(cfg.BackfillDelay()),
			app.WithMaxRangeWeeks(cfg.MaxRangeWeeks),
			app.WithRecordsLease(cfg.RecordsLease()),
			app.WithCandidateLimit(cfg.RecordsCandidateLimit),
			app.WithMinMembers(cfg.MinMembersForUserRecords),
		)
	})
	return c.err
}

func (c *commandContext) close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}

// lockGroup takes the cross-process lock of a group next to the database.
func (c *commandContext) lockGroup(groupID string) (*flock.Flock, error) {
	dir := filepath.Join(filepath.Dir(c.cfg.DatabasePath), "locks")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	lock := flock.New(filepath.Join(dir, groupID+".lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock group %s: %w", groupID, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", groupID, errGroupLocked)
	}
	return lock, nil
}
