// Package ratelimit serializes calls to the external AI judge through a single
// FIFO consumer that keeps a minimum spacing between dispatches.
package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"talentmatch/internal/common/logger"
	"talentmatch/internal/common/metrics"

	"golang.org/x/time/rate"
)

var (
	// ErrRateLimited marks an upstream quota rejection (HTTP 429).
	ErrRateLimited = errors.New("RATE_LIMITED")
	ErrClosed      = errors.New("rate limit queue closed")
)

// DefaultMinInterval follows the judge's quota of two requests per minute.
const DefaultMinInterval = 30 * time.Second

// Task is one unit of work dispatched through the queue.
type Task func(ctx context.Context) error

type request struct {
	ctx    context.Context
	task   Task
	result chan error
}

// Queue is a single-consumer task queue with minimum inter-dispatch spacing.
type Queue struct {
	limiter     *rate.Limiter
	minInterval time.Duration
	tasks       chan *request
	done        chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup

	timeNow       func() time.Time
	sleep         func(ctx context.Context, d time.Duration) error
	isRateLimited func(error) bool
	logger        logger.Logger
}

// Option customizes a Queue.
type Option func(*Queue)

// WithClock injects the time source and sleeper. Tests pass a fake clock
// whose sleep advances time instead of blocking.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(q *Queue) {
		q.timeNow = now
		q.sleep = sleep
	}
}

// WithRateLimitClassifier overrides how rate-limit errors are recognised.
func WithRateLimitClassifier(fn func(error) bool) Option {
	return func(q *Queue) {
		q.isRateLimited = fn
	}
}

func WithLogger(log logger.Logger) Option {
	return func(q *Queue) {
		q.logger = log
	}
}

// New starts the drain loop. Close must be called to stop it.
func New(minInterval time.Duration, opts ...Option) *Queue {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}

	q := &Queue{
		limiter:       rate.NewLimiter(rate.Every(minInterval), 1),
		minInterval:   minInterval,
		tasks:         make(chan *request, 256),
		done:          make(chan struct{}),
		timeNow:       time.Now,
		sleep:         sleepContext,
		isRateLimited: IsRateLimited,
		logger:        logger.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = q.logger.WithFields(map[string]interface{}{"component": "ratelimit"})

	q.wg.Add(1)
	go q.drain()

	return q
}

// Execute enqueues task and blocks until it has run or ctx is done.
func (q *Queue) Execute(ctx context.Context, task Task) error {
	req := &request{ctx: ctx, task: task, result: make(chan error, 1)}

	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	select {
	case q.tasks <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrClosed
	}

	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExecuteWithRetry retries task with exponential backoff, but only while it
// fails with a rate-limit error. Any other error is returned immediately.
func (q *Queue) ExecuteWithRetry(ctx context.Context, task Task, maxRetries int, baseDelay time.Duration) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = q.Execute(ctx, task)
		if err == nil || !q.isRateLimited(err) || attempt >= maxRetries {
			return err
		}

		delay := baseDelay * time.Duration(1<<uint(attempt))
		q.logger.Warn("rate limited by upstream, backing off", map[string]interface{}{
			"attempt":    attempt + 1,
			"maxRetries": maxRetries,
			"delay":      delay.String(),
		})
		if serr := q.sleep(ctx, delay); serr != nil {
			return serr
		}
	}
}

// Close stops the drain loop. Queued tasks that have not started fail with ErrClosed.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
	q.wg.Wait()
}

func (q *Queue) drain() {
	defer q.wg.Done()

	for {
		select {
		case <-q.done:
			q.rejectPending()
			return
		case req := <-q.tasks:
			q.dispatch(req)
		}
	}
}

func (q *Queue) dispatch(req *request) {
	if err := req.ctx.Err(); err != nil {
		req.result <- err
		return
	}

	now := q.timeNow()
	reservation := q.limiter.ReserveN(now, 1)
	wait := reservation.DelayFrom(now)
	if wait > 0 {
		metrics.RateLimitWait.Observe(wait.Seconds())
		q.logger.Debug("spacing ai call", map[string]interface{}{"wait": wait.String()})
		if err := q.sleep(req.ctx, wait); err != nil {
			reservation.CancelAt(q.timeNow())
			req.result <- err
			return
		}
	}

	req.result <- req.task(req.ctx)
}

func (q *Queue) rejectPending() {
	for {
		select {
		case req := <-q.tasks:
			req.result <- ErrClosed
		default:
			return
		}
	}
}

// IsRateLimited recognises ErrRateLimited and errors that carry HTTP status 429.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var status interface{ HTTPStatus() int }
	return errors.As(err, &status) && status.HTTPStatus() == http.StatusTooManyRequests
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
