package model

// Job status
type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// IsValid reports whether s is one of the known statuses.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// CanTransitionTo enforces the only edge of the state machine:
// processing -> completed | failed.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	return s == JobStatusProcessing && next.IsTerminal()
}

// Submission modes chosen by the decision engine
type SubmissionMode string

const (
	ModeSynchronous  SubmissionMode = "synchronous"
	ModeAsynchronous SubmissionMode = "asynchronous"
)

// Webhook payload discriminators
const (
	WebhookTypeTranscription       = "speech_to_text_transcription"
	WebhookTypeTranscriptionFailed = "speech_to_text_transcription_failed"
)
