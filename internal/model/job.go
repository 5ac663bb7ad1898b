package model

import (
	"encoding/json"
	"time"
)

// SourceMetadata describes the media a job was submitted for.
// It is fixed at creation time.
type SourceMetadata struct {
	FileName        string    `json:"fileName"`
	VideoID         string    `json:"videoId"`
	VideoURL        string    `json:"videoUrl,omitempty"`
	DurationSeconds float64   `json:"durationSeconds"`
	StartedAt       time.Time `json:"startedAt"`
}

// Job tracks one asynchronous transcription from submission to webhook
type Job struct {
	ID                string          `json:"id"`
	Status            JobStatus       `json:"status"`
	Source            SourceMetadata  `json:"source"`
	ProviderRequestID string          `json:"providerRequestId,omitempty"`
	Transcription     json.RawMessage `json:"transcription,omitempty"`
	Error             string          `json:"error,omitempty"`
	CompletedAt       *time.Time      `json:"completedAt,omitempty"`
}

// NewJob creates a job in the processing state.
func NewJob(id string, meta SourceMetadata) *Job {
	return &Job{
		ID:     id,
		Status: JobStatusProcessing,
		Source: meta,
	}
}

// Clone returns a deep copy so callers never share the result buffer
// or the completion timestamp with the registry.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	if j.Transcription != nil {
		cp.Transcription = append(json.RawMessage(nil), j.Transcription...)
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// Complete moves the job to completed. It reports false and leaves the job
// untouched when the job is already terminal.
func (j *Job) Complete(result json.RawMessage, at time.Time) bool {
	if !j.Status.CanTransitionTo(JobStatusCompleted) {
		return false
	}
	j.Status = JobStatusCompleted
	j.Transcription = append(json.RawMessage(nil), result...)
	j.CompletedAt = &at
	return true
}

// Fail moves the job to failed. Same terminal rule as Complete.
func (j *Job) Fail(reason string, at time.Time) bool {
	if !j.Status.CanTransitionTo(JobStatusFailed) {
		return false
	}
	j.Status = JobStatusFailed
	j.Error = reason
	j.CompletedAt = &at
	return true
}
