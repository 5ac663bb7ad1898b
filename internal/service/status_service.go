package service

import (
	"context"
	"errors"

	"github.com/scribehook/api/internal/apperror"
	"github.com/scribehook/api/internal/model"
	"github.com/scribehook/api/internal/registry"
)

// StatusService answers poll queries from the registry
type StatusService struct {
	registry registry.Registry
}

func NewStatusService(reg registry.Registry) *StatusService {
	return &StatusService{registry: reg}
}

// Query returns the snapshot for requestID.
func (s *StatusService) Query(ctx context.Context, requestID string) (*model.StatusResponse, error) {
	job, err := s.Job(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return model.NewStatusResponse(job), nil
}

// Job returns a copy of the job for requestID.
func (s *StatusService) Job(ctx context.Context, requestID string) (*model.Job, error) {
	if requestID == "" {
		return nil, apperror.Validation("request id is required")
	}
	job, err := s.registry.Get(ctx, requestID)
	if errors.Is(err, registry.ErrNotFound) {
		return nil, apperror.NotFound("job not found").WithDetail("requestId", requestID)
	}
	if err != nil {
		return nil, apperror.Internal("failed to read job", err)
	}
	return job, nil
}

// Count returns how many jobs the registry holds.
func (s *StatusService) Count(ctx context.Context) (int, error) {
	return s.registry.Len(ctx)
}
