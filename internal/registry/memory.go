package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/scribehook/api/internal/model"
)

// MemoryRegistry keeps jobs in a map guarded by a single lock.
// Jobs do not survive a restart.
type MemoryRegistry struct {
	mu   sync.RWMutex
	jobs map[string]*model.Job
	now  func() time.Time
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		jobs: make(map[string]*model.Job),
		now:  time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (r *MemoryRegistry) WithClock(now func() time.Time) *MemoryRegistry {
	r.now = now
	return r
}

func (r *MemoryRegistry) Create(_ context.Context, id string, meta model.SourceMetadata) (*model.Job, error) {
	if id == "" {
		return nil, fmt.Errorf("create job: empty id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[id]; exists {
		return nil, ErrAlreadyExists
	}
	if meta.StartedAt.IsZero() {
		meta.StartedAt = r.now()
	}
	job := model.NewJob(id, meta)
	r.jobs[id] = job
	return job.Clone(), nil
}

func (r *MemoryRegistry) Get(_ context.Context, id string) (*model.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return job.Clone(), nil
}

func (r *MemoryRegistry) Complete(_ context.Context, id string, result json.RawMessage) (*model.Job, bool, error) {
	return r.transition(id, func(job *model.Job, at time.Time) bool {
		return job.Complete(result, at)
	})
}

func (r *MemoryRegistry) Fail(_ context.Context, id string, reason string) (*model.Job, bool, error) {
	return r.transition(id, func(job *model.Job, at time.Time) bool {
		return job.Fail(reason, at)
	})
}

func (r *MemoryRegistry) transition(id string, apply func(*model.Job, time.Time) bool) (*model.Job, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, false, ErrNotFound
	}
	applied := apply(job, r.now())
	return job.Clone(), applied, nil
}

func (r *MemoryRegistry) Discard(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[id]; !ok {
		return ErrNotFound
	}
	delete(r.jobs, id)
	return nil
}

func (r *MemoryRegistry) SetProviderRequestID(_ context.Context, id, providerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return ErrNotFound
	}
	job.ProviderRequestID = providerID
	return nil
}

func (r *MemoryRegistry) Evict(_ context.Context, policy RetentionPolicy) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	evicted := 0
	for id, job := range r.jobs {
		if policy.Expired(job, now) {
			delete(r.jobs, id)
			evicted++
		}
	}
	return evicted, nil
}

func (r *MemoryRegistry) Len(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs), nil
}
