// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"

	"github.com/okian/tunechart/internal/adapters/http/swagger"
	"github.com/okian/tunechart/internal/domain/aggregate"
	"github.com/okian/tunechart/internal/domain/model"
	"github.com/okian/tunechart/internal/domain/records"
	"github.com/okian/tunechart/internal/domain/types"
	"github.com/okian/tunechart/pkg/logger"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	GetChartSnapshot(ctx context.Context, groupID string, week time.Time, c model.Category) (types.Chart, error)
	GetEntryStats(ctx context.Context, groupID string, c model.Category, key string) (types.EntryStats, error)
	GetRecords(ctx context.Context, groupID string) (*records.Snapshot, error)
	RegenerateWeek(ctx context.Context, groupID string, week time.Time, exclude []string) (types.WeekResult, error)
	RegenerateRange(ctx context.Context, groupID string, weeksBack int) (types.RangeResult, error)
}

// Server wires HTTP routes for the chart API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	chartsHandler     *ChartsHandler
	entriesHandler    *EntriesHandler
	recordsHandler    *RecordsHandler
	regenerateHandler *RegenerateHandler

	logger logger.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, pinger Pinger, opts ...Option) *Server {
	s := &Server{
		healthHandler:     NewHealthHandler(pinger),
		statsHandler:      NewStatsHandler(statsProvider),
		chartsHandler:     NewChartsHandler(deps),
		entriesHandler:    NewEntriesHandler(deps),
		recordsHandler:    NewRecordsHandler(deps),
		regenerateHandler: NewRegenerateHandler(deps),
		logger:            logger.Get().Named("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the router serving every route.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(s.logger))
	swagger.Register(r)
	s.Register(r)
	return r
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(r chi.Router) {
	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/metrics", s.healthHandler.HandleMetrics)
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	r.Route("/groups/{group}", func(r chi.Router) {
		r.Get("/charts/{category}", MetricsMiddleware(s.chartsHandler.HandleGetChart, "charts"))
		r.Get("/entries/{category}/{key}", MetricsMiddleware(s.entriesHandler.HandleGetEntry, "entries"))
		r.Get("/records", MetricsMiddleware(s.recordsHandler.HandleGetRecords, "records"))
		r.Post("/regenerate", MetricsMiddleware(s.regenerateHandler.HandleRegenerateWeek, "regenerate"))
		r.Post("/regenerate-range", MetricsMiddleware(s.regenerateHandler.HandleRegenerateRange, "regenerate_range"))
	})
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func decode(r *http.Request, op string, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return WrapKind(op, ErrBadRequest, err)
	}
	if err := validate.Struct(v); err != nil {
		return WrapKind(op, ErrBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError classifies err and writes the error body. Aborted runs list
// the members that failed so the caller can retry with them excluded.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	body := types.ErrorResponse{Code: code, Error: err.Error()}
	if abort := asAbort(err); abort != nil {
		body.FailedMembers = abort.Failed
	}
	if status >= statusInternalError {
		logger.Get().Named("api").Error(r.Context(), "request failed",
			logger.String("path", r.URL.Path),
			logger.Error(err),
		)
	}
	writeJSON(w, status, body)
}

func asAbort(err error) *aggregate.AbortError {
	var abort *aggregate.AbortError
	if errors.As(err, &abort) {
		return abort
	}
	return nil
}

func parseCategory(op string, r *http.Request) (model.Category, error) {
	c, err := model.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		return "", WrapKind(op, ErrBadRequest, err)
	}
	return c, nil
}
