// Package registry owns asynchronous transcription jobs from creation until
// they are evicted by the retention sweep.
//
// Every implementation enforces the same rules: an id is created once, a job
// only ever moves from processing to a terminal status, and the first terminal
// transition wins. Callers always receive copies, never the stored record.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/scribehook/api/internal/model"
)

var (
	ErrNotFound      = errors.New("job not found")
	ErrAlreadyExists = errors.New("job already exists")
)

// Registry is the store behind the webhook receiver and the status endpoint.
type Registry interface {
	// Create inserts a processing job. The returned job is a copy.
	Create(ctx context.Context, id string, meta model.SourceMetadata) (*model.Job, error)
	Get(ctx context.Context, id string) (*model.Job, error)
	// Complete stores the transcript. applied is false when the job was
	// already terminal, in which case the job is returned unchanged.
	Complete(ctx context.Context, id string, result json.RawMessage) (job *model.Job, applied bool, err error)
	Fail(ctx context.Context, id string, reason string) (job *model.Job, applied bool, err error)
	// Discard removes a job whose id was never handed out.
	Discard(ctx context.Context, id string) error
	SetProviderRequestID(ctx context.Context, id, providerID string) error
	Evict(ctx context.Context, policy RetentionPolicy) (int, error)
	Len(ctx context.Context) (int, error)
}

// RetentionPolicy decides which jobs the sweep removes. A zero duration
// disables that half of the policy.
type RetentionPolicy struct {
	// Terminal jobs are removed this long after completion.
	Retention time.Duration
	// Processing jobs are removed this long after submission. They are
	// never marked failed.
	StaleAfter time.Duration
}

// Expired reports whether job should be evicted at now.
func (p RetentionPolicy) Expired(job *model.Job, now time.Time) bool {
	if job.Status.IsTerminal() {
		if p.Retention <= 0 || job.CompletedAt == nil {
			return false
		}
		return now.Sub(*job.CompletedAt) >= p.Retention
	}
	if p.StaleAfter <= 0 {
		return false
	}
	return now.Sub(job.Source.StartedAt) >= p.StaleAfter
}
