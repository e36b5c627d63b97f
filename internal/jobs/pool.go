// internal/jobs/pool.go
package jobs

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"talentmatch/internal/common/errors"
	"talentmatch/internal/common/logger"
	"talentmatch/internal/common/metrics"
	"talentmatch/internal/common/observability"
	"talentmatch/internal/models"

	"go.opentelemetry.io/otel/codes"
)

var ErrShutdownTimeout = stderrors.New("JOB_POOL_SHUTDOWN_TIMEOUT")

const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

// PoolStore is the persistence the pool needs.
type PoolStore interface {
	ClaimPendingJobs(ctx context.Context, limit int, jobTypes []models.JobType) ([]models.BackgroundJob, error)
	UpdateJobProgress(ctx context.Context, id string, progress int) error
	CompleteJob(ctx context.Context, id string, result json.RawMessage) error
	RequeueJob(ctx context.Context, id, errMsg string) error
	FailJob(ctx context.Context, id, errMsg string) error
}

// Notifier is told when a job reaches a terminal state.
type Notifier interface {
	SendJobCompletionEmail(ctx context.Context, userEmail, jobType, outcome, errMsg string) error
}

type PoolConfig struct {
	PollInterval    time.Duration
	Concurrency     int
	ShutdownTimeout time.Duration
}

func (c *PoolConfig) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 3
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}

type Pool struct {
	store      PoolStore
	registry   *Registry
	notifier   Notifier
	obs        *observability.Observability
	errHandler *errors.ErrorHandler
	cfg        PoolConfig
	logger     logger.Logger

	sem chan struct{}
	wg  sync.WaitGroup
}

// NewPool builds a pool. notifier and obs may be nil.
func NewPool(store PoolStore, registry *Registry, notifier Notifier, obs *observability.Observability, cfg PoolConfig, log logger.Logger) *Pool {
	cfg.applyDefaults()
	if obs == nil {
		obs = observability.NewNoop()
	}
	log = log.WithFields(map[string]interface{}{"component": "job_pool"})
	return &Pool{
		store:      store,
		registry:   registry,
		notifier:   notifier,
		obs:        obs,
		errHandler: errors.NewErrorHandler(log),
		cfg:        cfg,
		logger:     log,
		sem:        make(chan struct{}, cfg.Concurrency),
	}
}

// Run polls until ctx is cancelled, then waits for in-flight jobs up to
// the shutdown timeout. In-flight jobs are not cancelled.
func (p *Pool) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	p.logger.Info("job pool started", map[string]interface{}{
		"concurrency":  p.cfg.Concurrency,
		"pollInterval": p.cfg.PollInterval.String(),
		"jobTypes":     p.registry.Types(),
	})

	for {
		if _, err := p.Poll(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error("job poll failed", map[string]interface{}{"error": err.Error()})
		}

		select {
		case <-ctx.Done():
			return p.shutdown()
		case <-ticker.C:
		}
	}
}

// Poll claims as many pending jobs as there are free slots and starts them.
// It returns the number of jobs started.
func (p *Pool) Poll(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	free := cap(p.sem) - len(p.sem)
	if free <= 0 {
		return 0, nil
	}

	// Only claim what this worker can run; other types wait for a worker that has them.
	claimed, err := p.store.ClaimPendingJobs(ctx, free, p.registry.Types())
	if err != nil {
		return 0, err
	}

	jobCtx := context.WithoutCancel(ctx)
	for i := range claimed {
		job := claimed[i]
		p.sem <- struct{}{}
		p.wg.Add(1)
		go func() {
			defer func() {
				<-p.sem
				p.wg.Done()
			}()
			p.process(jobCtx, &job)
		}()
	}
	return len(claimed), nil
}

// Wait blocks until every started job has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) shutdown() error {
	p.logger.Info("job pool stopping, waiting for in-flight jobs", nil)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("job pool stopped", nil)
		return nil
	case <-time.After(p.cfg.ShutdownTimeout):
		return ErrShutdownTimeout
	}
}

func (p *Pool) process(ctx context.Context, job *models.BackgroundJob) {
	jobType := string(job.JobType)
	log := p.logger.WithFields(map[string]interface{}{
		"jobId":   job.ID,
		"jobType": jobType,
		"attempt": job.Attempts,
	})

	ctx, span := p.obs.StartJobSpan(ctx, jobType, job.ID, job.Attempts)
	defer span.End()

	metrics.JobsActive.WithLabelValues(jobType).Inc()
	defer metrics.JobsActive.WithLabelValues(jobType).Dec()

	log.Info("job started", nil)
	start := time.Now()
	result, err := p.execute(ctx, job, log)
	elapsed := time.Since(start)
	metrics.JobDuration.WithLabelValues(jobType).Observe(elapsed.Seconds())

	if err == nil {
		err = p.complete(ctx, job, result)
		if err == nil {
			span.SetStatus(codes.Ok, "")
			metrics.JobsCompleted.WithLabelValues(jobType).Inc()
			p.obs.RecordJobProcessed(ctx, jobType, OutcomeCompleted)
			p.obs.RecordJobDuration(ctx, jobType, elapsed, OutcomeCompleted)
			log.Info("job completed", map[string]interface{}{"duration_ms": elapsed.Milliseconds()})
			p.notify(ctx, job, OutcomeCompleted, "")
			return
		}
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	stdErr, retry := p.errHandler.HandleJobError(errors.JobFailure{
		JobID:       job.ID,
		JobType:     jobType,
		Attempts:    job.Attempts,
		MaxAttempts: job.MaxAttempts,
	}, err)
	msg := stdErr.Message
	if stdErr.Details != "" {
		msg += ": " + stdErr.Details
	}

	if retry {
		if err := p.store.RequeueJob(ctx, job.ID, msg); err != nil {
			log.Error("failed to requeue job", map[string]interface{}{"error": err.Error()})
			return
		}
		metrics.JobsRetried.WithLabelValues(jobType).Inc()
		p.obs.RecordJobProcessed(ctx, jobType, "retried")
		return
	}

	if err := p.store.FailJob(ctx, job.ID, msg); err != nil {
		log.Error("failed to mark job failed", map[string]interface{}{"error": err.Error()})
		return
	}
	metrics.JobsFailed.WithLabelValues(jobType, string(stdErr.Code)).Inc()
	p.obs.RecordJobProcessed(ctx, jobType, OutcomeFailed)
	p.obs.RecordJobDuration(ctx, jobType, elapsed, OutcomeFailed)
	p.notify(ctx, job, OutcomeFailed, msg)
}

// execute runs the handler, turning a panic into an ordinary failure.
func (p *Pool) execute(ctx context.Context, job *models.BackgroundJob, log logger.Logger) (result interface{}, err error) {
	h, ok := p.registry.Lookup(job.JobType)
	if !ok {
		return nil, fmt.Errorf("no handler registered for job type %s", job.JobType)
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("job handler panicked", map[string]interface{}{"panic": fmt.Sprint(r)})
			result, err = nil, errors.NewJobFailedError(string(job.JobType), fmt.Errorf("panic: %v", r))
		}
	}()

	return h.Handle(ctx, job, &progressReporter{store: p.store, jobID: job.ID, logger: log})
}

func (p *Pool) complete(ctx context.Context, job *models.BackgroundJob, result interface{}) error {
	var raw json.RawMessage
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("encode job result: %w", err)
		}
		raw = data
	}
	return p.store.CompleteJob(ctx, job.ID, raw)
}

// notify never affects the job outcome.
func (p *Pool) notify(ctx context.Context, job *models.BackgroundJob, outcome, errMsg string) {
	if p.notifier == nil || job.UserEmail == nil || *job.UserEmail == "" {
		return
	}
	if err := p.notifier.SendJobCompletionEmail(ctx, *job.UserEmail, string(job.JobType), outcome, errMsg); err != nil {
		p.logger.Warn("job notification failed", map[string]interface{}{
			"jobId": job.ID,
			"error": err.Error(),
		})
	}
}

type progressReporter struct {
	store  PoolStore
	jobID  string
	logger logger.Logger
}

func (r *progressReporter) Report(ctx context.Context, pct int) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	if err := r.store.UpdateJobProgress(ctx, r.jobID, pct); err != nil {
		r.logger.Warn("failed to report job progress", map[string]interface{}{"progress": pct, "error": err.Error()})
	}
}
