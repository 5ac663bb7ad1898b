package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/scribehook/api/internal/media"
	"github.com/scribehook/api/internal/registry"
)

// SweepResult reports what one retention pass removed
type SweepResult struct {
	Jobs  int `json:"jobs"`
	Files int `json:"files"`
}

// RetentionService evicts expired jobs and old local media. It never
// changes a job's status.
type RetentionService struct {
	registry       registry.Registry
	store          *media.LocalStore
	policy         registry.RetentionPolicy
	mediaRetention time.Duration
	log            zerolog.Logger
}

func NewRetentionService(reg registry.Registry, store *media.LocalStore, policy registry.RetentionPolicy, mediaRetention time.Duration, log zerolog.Logger) *RetentionService {
	return &RetentionService{
		registry:       reg,
		store:          store,
		policy:         policy,
		mediaRetention: mediaRetention,
		log:            log.With().Str("component", "retention").Logger(),
	}
}

// Sweep runs one retention pass.
func (s *RetentionService) Sweep(ctx context.Context) (*SweepResult, error) {
	jobs, err := s.registry.Evict(ctx, s.policy)
	if err != nil {
		return nil, fmt.Errorf("evict jobs: %w", err)
	}

	files := 0
	if s.store != nil {
		files, err = s.store.PurgeOlderThan(s.mediaRetention)
		if err != nil {
			return &SweepResult{Jobs: jobs}, fmt.Errorf("purge media: %w", err)
		}
	}

	if jobs > 0 || files > 0 {
		s.log.Info().Int("jobs", jobs).Int("files", files).Msg("retention sweep")
	}
	return &SweepResult{Jobs: jobs, Files: files}, nil
}

// Cleanup deletes every local upload regardless of age.
func (s *RetentionService) Cleanup() (int, error) {
	n, err := s.store.Purge()
	if err != nil {
		return n, fmt.Errorf("cleanup uploads: %w", err)
	}
	s.log.Info().Int("deleted", n).Msg("uploads cleaned")
	return n, nil
}
