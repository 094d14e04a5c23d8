// Package lastfm fetches members' weekly top lists from the Last.fm API.
package lastfm

import (
	"context"
	"crypto/md5" //nolint:gosec // Last.fm request signatures are defined as md5
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/okian/tunechart/internal/domain/model"
	"github.com/okian/tunechart/internal/domain/scoring"
	"github.com/okian/tunechart/pkg/logger"
	"github.com/okian/tunechart/pkg/metrics"
)

const (
	DefaultBaseURL = "https://ws.audioscrobbler.com/2.0/"

	defaultRequestsPerSecond = 5
	defaultMaxAttempts       = 4
	defaultBaseDelay         = 500 * time.Millisecond
	defaultRateLimitDelay    = 2 * time.Second
	defaultMaxDelay          = 30 * time.Second
	defaultTimeout           = 10 * time.Second

	maxBodyBytes = 4 << 20
	breakerName  = "lastfm"

	methodArtistChart = "user.getweeklyartistchart"
	methodTrackChart  = "user.getweeklytrackchart"
	methodAlbumChart  = "user.getweeklyalbumchart"
)

// Client is a paced, retrying, circuit-broken Last.fm client.
type Client struct {
	apiKey         string
	secret         string
	baseURL        string
	http           *http.Client
	rps            float64
	limiter        *rate.Limiter
	breaker        *gobreaker.CircuitBreaker[[]byte]
	maxAttempts    int
	baseDelay      time.Duration
	rateLimitDelay time.Duration
	maxDelay       time.Duration
	logger         logger.Logger
}

// New creates a client for apiKey.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:         apiKey,
		baseURL:        DefaultBaseURL,
		http:           &http.Client{Timeout: defaultTimeout},
		rps:            defaultRequestsPerSecond,
		maxAttempts:    defaultMaxAttempts,
		baseDelay:      defaultBaseDelay,
		rateLimitDelay: defaultRateLimitDelay,
		maxDelay:       defaultMaxDelay,
		logger:         logger.Get().Named("lastfm"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.limiter = rate.NewLimiter(rate.Limit(c.rps), 1)
	c.breaker = c.newBreaker()
	return c
}

func (c *Client) newBreaker() *gobreaker.CircuitBreaker[[]byte] {
	metrics.UpdateCircuitBreakerState(breakerName, stateToFloat(gobreaker.StateClosed))
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 5 {
				return true
			}
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn(context.Background(), "circuit breaker state change",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
			metrics.UpdateCircuitBreakerState(name, stateToFloat(to))
		},
		// Unknown accounts and bad requests say nothing about the API's health.
		IsSuccessful: func(err error) bool {
			return err == nil || !Retryable(err)
		},
	})
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	}
	return -1
}

// FetchWeek returns member's top artists, tracks and albums for the seven
// days starting at week, each ranked by playcount and capped at 100 items.
func (c *Client) FetchWeek(ctx context.Context, member model.Member, week time.Time) (model.WeeklyListening, error) {
	from := week.UTC()
	to := from.Add(model.Week)

	var (
		out model.WeeklyListening
		err error
	)
	if out.TopArtists, err = c.weeklyChart(ctx, methodArtistChart, model.CategoryArtists, member, from, to); err != nil {
		return model.WeeklyListening{}, err
	}
	if out.TopTracks, err = c.weeklyChart(ctx, methodTrackChart, model.CategoryTracks, member, from, to); err != nil {
		return model.WeeklyListening{}, err
	}
	if out.TopAlbums, err = c.weeklyChart(ctx, methodAlbumChart, model.CategoryAlbums, member, from, to); err != nil {
		return model.WeeklyListening{}, err
	}
	return out, nil
}

func (c *Client) weeklyChart(ctx context.Context, method string, cat model.Category, member model.Member, from, to time.Time) ([]model.RankedItem, error) {
	params := url.Values{}
	params.Set("method", method)
	params.Set("user", member.Username)
	params.Set("from", strconv.FormatInt(from.Unix(), 10))
	params.Set("to", strconv.FormatInt(to.Unix(), 10))
	if member.SessionKey != "" && c.secret != "" {
		params.Set("sk", member.SessionKey)
	}

	body, err := c.call(ctx, params)
	if err != nil {
		return nil, err
	}

	var resp chartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%s: decode: %w: %v", method, ErrBadResponse, err)
	}
	items, skipped := rankedItems(resp.items(cat), cat)
	if skipped > 0 {
		c.logger.Warn(ctx, "skipped unreadable chart items",
			logger.String("method", method),
			logger.String("user", member.Username),
			logger.Int("skipped", skipped),
		)
	}
	return items, nil
}

// call performs one API call, retrying transient failures with exponential
// backoff. Rate limiting backs off from a larger base and honours Retry-After.
func (c *Client) call(ctx context.Context, params url.Values) ([]byte, error) {
	method := params.Get("method")
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		body, err := c.once(ctx, params)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !Retryable(err) || attempt == c.maxAttempts {
			break
		}

		delay := c.backoff(attempt, err)
		metrics.RecordSourceRetry(retryReason(err))
		c.logger.Warn(ctx, "retrying lastfm call",
			logger.String("method", method),
			logger.String("user", params.Get("user")),
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Error(err),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if Retryable(lastErr) {
		return nil, fmt.Errorf("%s after %d attempts: %w", method, c.maxAttempts, lastErr)
	}
	return nil, lastErr
}

func (c *Client) once(ctx context.Context, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, params)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.RecordSourceRequest(params.Get("method"), "rejected")
		return nil, fmt.Errorf("%s: %w", params.Get("method"), err)
	}
	return body, err
}

func (c *Client) backoff(attempt int, err error) time.Duration {
	base := c.baseDelay
	if errors.Is(err, ErrRateLimited) {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
			return min(apiErr.RetryAfter, c.maxDelay)
		}
		base = c.rateLimitDelay
	}
	return min(base<<(attempt-1), c.maxDelay)
}

func (c *Client) do(ctx context.Context, params url.Values) ([]byte, error) {
	method := params.Get("method")
	q := url.Values{}
	for k, v := range params {
		q[k] = append([]string(nil), v...)
	}
	q.Set("api_key", c.apiKey)
	if q.Get("sk") != "" {
		q.Set("api_sig", sign(q, c.secret))
	}
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", method, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		metrics.RecordSourceRequest(method, "transport_error")
		return nil, fmt.Errorf("%s: %w: %v", method, ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.RecordSourceRequest(method, "transport_error")
		return nil, fmt.Errorf("%s: read body: %w: %v", method, ErrUnavailable, err)
	}

	var apiErr struct {
		Error   int    `json:"error"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &apiErr)

	if resp.StatusCode == http.StatusOK && apiErr.Error == 0 {
		metrics.RecordSourceRequest(method, "ok")
		return body, nil
	}

	e := &APIError{
		Method:     method,
		StatusCode: resp.StatusCode,
		Code:       apiErr.Error,
		Message:    apiErr.Message,
		kind:       classify(resp.StatusCode, apiErr.Error),
	}
	if errors.Is(e.kind, ErrRateLimited) {
		e.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	}
	metrics.RecordSourceRequest(method, retryReason(e))
	return nil, e
}

// sign builds the api_sig of a session-authenticated call: md5 over the
// sorted name/value pairs followed by the shared secret.
func sign(q url.Values, secret string) string {
	keys := make([]string, 0, len(q))
	for k := range q {
		if k == "format" || k == "callback" || k == "api_sig" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(q.Get(k))
	}
	b.WriteString(secret)
	sum := md5.Sum([]byte(b.String())) //nolint:gosec // see import
	return hex.EncodeToString(sum[:])
}

func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

func retryReason(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrAccountNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrBadResponse):
		return "bad_response"
	}
	return "unavailable"
}

// rankedItems converts API rows, skipping unreadable playcounts, then orders
// by playcount desc (API order breaks ties) and keeps the scoring window.
func rankedItems(items []chartItem, cat model.Category) ([]model.RankedItem, int) {
	out := make([]model.RankedItem, 0, len(items))
	skipped := 0
	for _, it := range items {
		pc, err := strconv.Atoi(strings.TrimSpace(string(it.Playcount)))
		if err != nil {
			skipped++
			continue
		}
		item := model.RankedItem{Name: it.Name, Playcount: pc}
		if cat != model.CategoryArtists {
			item.Artist = it.Artist.Name
		}
		out = append(out, item)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Playcount > out[j].Playcount })
	if len(out) > scoring.Window {
		out = out[:scoring.Window]
	}
	return out, skipped
}
