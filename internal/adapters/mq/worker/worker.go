// Package worker runs the bounded pool that fetches member listening data.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/okian/tunechart/internal/adapters/mq/queue"
	"github.com/okian/tunechart/internal/domain/model"
	"github.com/okian/tunechart/pkg/logger"
	"github.com/okian/tunechart/pkg/metrics"
)

// DefaultWorkerCount bounds concurrent source calls per aggregation run.
const DefaultWorkerCount = 3

// Fetcher loads one member's listening data for a week.
type Fetcher interface {
	FetchWeek(ctx context.Context, member model.Member, week time.Time) (model.WeeklyListening, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, member model.Member, week time.Time) (model.WeeklyListening, error)

// FetchWeek calls f.
func (f FetcherFunc) FetchWeek(ctx context.Context, member model.Member, week time.Time) (model.WeeklyListening, error) {
	return f(ctx, member, week)
}

// Sink receives the result of one job.
type Sink func(index int, result model.FetchResult)

// InMemoryWorker pulls jobs off a queue until it is closed and drained.
type InMemoryWorker struct {
	jobs    <-chan queue.Job
	fetcher Fetcher
	name    string
	logger  logger.Logger
}

// NewInMemoryWorker creates a worker reading from jobs.
func NewInMemoryWorker(jobs <-chan queue.Job, fetcher Fetcher, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		jobs:    jobs,
		fetcher: fetcher,
		name:    "worker",
		logger:  logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run processes jobs until the queue is closed. Every received job yields
// exactly one call to sink, even after ctx is cancelled.
func (w *InMemoryWorker) Run(ctx context.Context, sink Sink) {
	for job := range w.jobs {
		metrics.RecordQueueDequeue()
		sink(job.Index, w.process(ctx, job))
	}
}

func (w *InMemoryWorker) process(ctx context.Context, job queue.Job) model.FetchResult {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	res := model.FetchResult{Member: job.Member}
	if err := ctx.Err(); err != nil {
		res.Err = err
		metrics.RecordMemberFetchFailure("cancelled")
		return res
	}

	listening, err := w.fetcher.FetchWeek(ctx, job.Member, job.Week)
	metrics.RecordMemberFetchLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		res.Err = fmt.Errorf("fetch %s: %w", job.Member.Username, err)
		metrics.RecordMemberFetchFailure(failureReason(err))
		w.logger.Warn(ctx, "member fetch failed",
			logger.String("user", job.Member.UserID),
			logger.Time("week", job.Week),
			logger.Error(err),
		)
		return res
	}
	res.Listening = listening
	return res
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	return "source_error"
}

// Pool fans a week's member fetches out over a fixed number of workers.
type Pool struct {
	workerCount int
	fetcher     Fetcher
	logger      logger.Logger
}

// NewPool creates a pool. A non-positive workerCount uses DefaultWorkerCount.
func NewPool(workerCount int, fetcher Fetcher, opts ...PoolOption) *Pool {
	if workerCount < 1 {
		workerCount = DefaultWorkerCount
	}
	p := &Pool{
		workerCount: workerCount,
		fetcher:     fetcher,
		logger:      logger.Get().Named("worker-pool"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Size returns the configured concurrency bound.
func (p *Pool) Size() int { return p.workerCount }

// Collect fetches every member's week and returns results aligned with
// members. It returns only after every job has produced a result.
func (p *Pool) Collect(ctx context.Context, members []model.Member, week time.Time) []model.FetchResult {
	results := make([]model.FetchResult, len(members))
	if len(members) == 0 {
		return results
	}

	q := queue.NewInMemoryQueue(queue.WithCapacity(len(members)))
	for i, m := range members {
		if !q.Enqueue(ctx, queue.Job{Index: i, Member: m, Week: week}) {
			err := ctx.Err()
			if err == nil {
				err = queue.ErrQueueFull
			}
			results[i] = model.FetchResult{Member: m, Err: err}
		}
	}
	_ = q.Close()

	n := min(p.workerCount, len(members))
	metrics.UpdateWorkerActiveCount(n)
	defer metrics.UpdateWorkerActiveCount(0)

	sink := func(index int, r model.FetchResult) { results[index] = r }

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		w := NewInMemoryWorker(q.Dequeue(), p.fetcher,
			WithName("worker-"+strconv.Itoa(i)),
			WithLogger(p.logger),
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx, sink)
		}()
	}
	wg.Wait()

	p.logger.Debug(ctx, "member fetches collected",
		logger.Int("members", len(members)),
		logger.Int("workers", n),
		logger.Time("week", week),
	)
	return results
}
