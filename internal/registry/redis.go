package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scribehook/api/internal/model"
)

const (
	redisKeyPrefix   = "transcription:job:"
	redisMaxAttempts = 5
)

// RedisRegistry stores each job as a JSON document under its own key.
// Transitions run in an optimistic WATCH transaction so concurrent webhook
// deliveries still resolve to a single winner.
type RedisRegistry struct {
	client *redis.Client
	policy RetentionPolicy
	now    func() time.Time
	// beforeEvict runs inside the eviction transaction, after the job was
	// read and found expired. Tests use it to race a transition.
	beforeEvict func(id string)
}

// NewRedisRegistry creates a registry on top of an existing client. Keys
// expire on the same schedule the sweep would apply.
func NewRedisRegistry(client *redis.Client, policy RetentionPolicy) *RedisRegistry {
	return &RedisRegistry{client: client, policy: policy, now: time.Now}
}

func redisKey(id string) string {
	return redisKeyPrefix + id
}

func (r *RedisRegistry) Create(ctx context.Context, id string, meta model.SourceMetadata) (*model.Job, error) {
	if id == "" {
		return nil, fmt.Errorf("create job: empty id")
	}
	if meta.StartedAt.IsZero() {
		meta.StartedAt = r.now()
	}
	job := model.NewJob(id, meta)

	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}

	ok, err := r.client.SetNX(ctx, redisKey(id), data, r.policy.StaleAfter).Result()
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyExists
	}
	return job, nil
}

func (r *RedisRegistry) Get(ctx context.Context, id string) (*model.Job, error) {
	return r.load(ctx, r.client, id)
}

type redisGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *RedisRegistry) load(ctx context.Context, c redisGetter, id string) (*model.Job, error) {
	val, err := c.Get(ctx, redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	var job model.Job
	if err := json.Unmarshal(val, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}

func (r *RedisRegistry) Complete(ctx context.Context, id string, result json.RawMessage) (*model.Job, bool, error) {
	return r.transition(ctx, id, func(job *model.Job, at time.Time) bool {
		return job.Complete(result, at)
	})
}

func (r *RedisRegistry) Fail(ctx context.Context, id string, reason string) (*model.Job, bool, error) {
	return r.transition(ctx, id, func(job *model.Job, at time.Time) bool {
		return job.Fail(reason, at)
	})
}

// transition writes terminal jobs with the retention TTL. A zero retention
// keeps terminal jobs forever, matching the memory backend.
func (r *RedisRegistry) transition(ctx context.Context, id string, apply func(*model.Job, time.Time) bool) (*model.Job, bool, error) {
	var ttl time.Duration
	if r.policy.Retention > 0 {
		ttl = r.policy.Retention
	}
	return r.update(ctx, id, ttl, func(job *model.Job) bool {
		return apply(job, r.now())
	})
}

// update reads, mutates and writes a job inside WATCH. mutate reports
// whether anything changed; unchanged jobs are not written back. ttl is
// passed to SET as is: 0 clears the expiry, redis.KeepTTL keeps it.
func (r *RedisRegistry) update(ctx context.Context, id string, ttl time.Duration, mutate func(*model.Job) bool) (*model.Job, bool, error) {
	key := redisKey(id)

	var (
		result  *model.Job
		applied bool
	)
	txf := func(tx *redis.Tx) error {
		job, err := r.load(ctx, tx, id)
		if err != nil {
			return err
		}
		applied = mutate(job)
		result = job
		if !applied {
			return nil
		}

		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, ttl)
			return nil
		})
		return err
	}

	for i := 0; i < redisMaxAttempts; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return result, applied, nil
	}
	return nil, false, fmt.Errorf("update job %s: too much contention", id)
}

func (r *RedisRegistry) Discard(ctx context.Context, id string) error {
	n, err := r.client.Del(ctx, redisKey(id)).Result()
	if err != nil {
		return fmt.Errorf("discard job: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RedisRegistry) SetProviderRequestID(ctx context.Context, id, providerID string) error {
	_, _, err := r.update(ctx, id, redis.KeepTTL, func(job *model.Job) bool {
		job.ProviderRequestID = providerID
		return true
	})
	return err
}

// Evict scans every job key and deletes expired ones. Key TTLs already cover
// the common case; this catches records written under an older policy.
// Each delete runs under WATCH, so a job that changes after it was read is
// left for the next sweep.
func (r *RedisRegistry) Evict(ctx context.Context, policy RetentionPolicy) (int, error) {
	now := r.now()
	evicted := 0

	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		id := key[len(redisKeyPrefix):]

		deleted, err := r.evictOne(ctx, id, policy, now)
		if err != nil {
			return evicted, err
		}
		if deleted {
			evicted++
		}
	}
	if err := iter.Err(); err != nil {
		return evicted, fmt.Errorf("scan jobs: %w", err)
	}
	return evicted, nil
}

func (r *RedisRegistry) evictOne(ctx context.Context, id string, policy RetentionPolicy, now time.Time) (bool, error) {
	key := redisKey(id)
	deleted := false

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		job, err := r.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if !policy.Expired(job, now) {
			return nil
		}
		if r.beforeEvict != nil {
			r.beforeEvict(id)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		if err == nil {
			deleted = true
		}
		return err
	}, key)

	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, redis.TxFailedErr):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("evict job: %w", err)
	}
	return deleted, nil
}

func (r *RedisRegistry) Len(ctx context.Context) (int, error) {
	count := 0
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("scan jobs: %w", err)
	}
	return count, nil
}
