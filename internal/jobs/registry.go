// Package jobs runs background work stored as rows in background_jobs:
// a Queue to enqueue and poll status, a Registry of handlers by job type
// and a Pool that claims and executes pending rows.
package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"talentmatch/internal/models"
)

// Progress lets a handler publish its completion percentage.
type Progress interface {
	Report(ctx context.Context, pct int)
}

// Handler executes one job. The returned value is stored as the job result.
type Handler interface {
	Handle(ctx context.Context, job *models.BackgroundJob, progress Progress) (interface{}, error)
}

type HandlerFunc func(ctx context.Context, job *models.BackgroundJob, progress Progress) (interface{}, error)

func (f HandlerFunc) Handle(ctx context.Context, job *models.BackgroundJob, progress Progress) (interface{}, error) {
	return f(ctx, job, progress)
}

type Registry struct {
	mu       sync.RWMutex
	handlers map[models.JobType]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[models.JobType]Handler)}
}

// Register binds a handler to a job type. Registering a type twice panics.
func (r *Registry) Register(jobType models.JobType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[jobType]; exists {
		panic(fmt.Sprintf("jobs: handler for %q already registered", jobType))
	}
	r.handlers[jobType] = h
}

func (r *Registry) Lookup(jobType models.JobType) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}

// Types lists registered job types in name order.
func (r *Registry) Types() []models.JobType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.JobType, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
