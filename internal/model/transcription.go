package model

import (
	"encoding/json"
	"time"
)

// TranscribeResponse is returned by POST /api/transcribe.
// Transcription is set on the synchronous path, RequestID on the asynchronous one.
type TranscribeResponse struct {
	Success       bool            `json:"success"`
	UseWebhook    bool            `json:"useWebhook"`
	RequestID     string          `json:"requestId,omitempty"`
	FileName      string          `json:"fileName"`
	VideoURL      string          `json:"videoUrl,omitempty"`
	VideoID       string          `json:"videoId"`
	Duration      float64         `json:"duration"`
	Transcription json.RawMessage `json:"transcription,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// StatusResponse is the snapshot returned by the status endpoint
type StatusResponse struct {
	RequestID     string          `json:"requestId"`
	Status        JobStatus       `json:"status"`
	FileName      string          `json:"fileName"`
	VideoURL      string          `json:"videoUrl,omitempty"`
	VideoID       string          `json:"videoId"`
	Transcription json.RawMessage `json:"transcription,omitempty"`
	Error         string          `json:"error,omitempty"`
	StartedAt     time.Time       `json:"startedAt"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
}

// NewStatusResponse builds the snapshot for a job. The transcript is only
// exposed once the job has completed.
func NewStatusResponse(job *Job) *StatusResponse {
	resp := &StatusResponse{
		RequestID:   job.ID,
		Status:      job.Status,
		FileName:    job.Source.FileName,
		VideoURL:    job.Source.VideoURL,
		VideoID:     job.Source.VideoID,
		StartedAt:   job.Source.StartedAt,
		CompletedAt: job.CompletedAt,
	}
	switch job.Status {
	case JobStatusCompleted:
		resp.Transcription = job.Transcription
	case JobStatusFailed:
		resp.Error = job.Error
	}
	return resp
}

// WebhookPayload is the callback body sent by the provider
type WebhookPayload struct {
	Type string       `json:"type" validate:"required,oneof=speech_to_text_transcription speech_to_text_transcription_failed"`
	Data *WebhookData `json:"data" validate:"required"`
}

// WebhookData carries the correlation id and either a transcript or an error
type WebhookData struct {
	RequestID       string           `json:"request_id"`
	WebhookMetadata *WebhookMetadata `json:"webhook_metadata,omitempty"`
	Transcription   json.RawMessage  `json:"transcription,omitempty"`
	Error           *WebhookError    `json:"error,omitempty"`
}

// WebhookMetadata is echoed back by the provider exactly as it was sent
// with the submission.
type WebhookMetadata struct {
	RequestID string `json:"request_id"`
}

// WebhookError describes a provider-side transcription failure
type WebhookError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message" validate:"required"`
}

// CorrelationID returns the id the callback refers to. The echoed metadata
// takes precedence over the provider's own request id.
func (d *WebhookData) CorrelationID() string {
	if d.WebhookMetadata != nil && d.WebhookMetadata.RequestID != "" {
		return d.WebhookMetadata.RequestID
	}
	return d.RequestID
}

// WebhookAck is the success body returned to the provider
type WebhookAck struct {
	Success bool      `json:"success"`
	Applied bool      `json:"applied"`
	Status  JobStatus `json:"status"`
}

// HealthResponse is returned by the health endpoints
type HealthResponse struct {
	Status            string `json:"status"`
	APIKeyConfigured  bool   `json:"apiKeyConfigured"`
	WebhookConfigured bool   `json:"webhookConfigured"`
	SignatureRequired bool   `json:"signatureRequired"`
	Registry          string `json:"registry"`
	Jobs              int    `json:"jobs"`
}

// CleanupResponse is returned by POST /api/cleanup
type CleanupResponse struct {
	Success      bool `json:"success"`
	DeletedCount int  `json:"deletedCount"`
}
