package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/scribehook/api/internal/service"
)

const (
	TaskTypeSweep = "retention:sweep"
	QueueSweep    = "maintenance"
)

// Sweeper runs one retention pass
type Sweeper interface {
	Sweep(ctx context.Context) (*service.SweepResult, error)
}

// SweepWorker evicts expired jobs and media, either as an asynq task or on
// an in-process ticker.
type SweepWorker struct {
	sweeper Sweeper
	log     zerolog.Logger
}

func NewSweepWorker(sweeper Sweeper, log zerolog.Logger) *SweepWorker {
	return &SweepWorker{
		sweeper: sweeper,
		log:     log.With().Str("component", "sweep_worker").Logger(),
	}
}

// NewSweepTask builds the periodic task registered with the scheduler.
func NewSweepTask() *asynq.Task {
	payload, _ := json.Marshal(map[string]string{"reason": "scheduled"})
	return asynq.NewTask(TaskTypeSweep, payload, asynq.Queue(QueueSweep), asynq.MaxRetry(1), asynq.Timeout(5*time.Minute))
}

// ProcessTask handles a scheduled sweep task
func (w *SweepWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	res, err := w.sweeper.Sweep(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("sweep failed")
		return fmt.Errorf("retention sweep: %w", err)
	}
	w.log.Debug().Int("jobs", res.Jobs).Int("files", res.Files).Msg("sweep task done")
	return nil
}

// Run sweeps every interval until ctx is cancelled. Used when no Redis is
// available for the asynq scheduler.
func (w *SweepWorker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.sweeper.Sweep(ctx); err != nil {
				w.log.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}

// Cronspec converts an interval into an asynq scheduler spec.
func Cronspec(interval time.Duration) string {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return "@every " + interval.String()
}
