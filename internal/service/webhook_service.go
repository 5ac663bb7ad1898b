package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/scribehook/api/internal/apperror"
	"github.com/scribehook/api/internal/model"
	"github.com/scribehook/api/internal/registry"
)

// StatusNotifier is told about every applied terminal transition
type StatusNotifier interface {
	NotifyStatus(job *model.Job)
}

// WebhookService authenticates provider callbacks and applies them to the
// registry.
type WebhookService struct {
	registry  registry.Registry
	validator *validator.Validate
	secret    []byte
	notifier  StatusNotifier
	log       zerolog.Logger
}

// NewWebhookService creates the receiver. An empty secret disables
// signature checks. notifier may be nil.
func NewWebhookService(reg registry.Registry, v *validator.Validate, secret string, notifier StatusNotifier, log zerolog.Logger) *WebhookService {
	s := &WebhookService{
		registry:  reg,
		validator: v,
		secret:    []byte(secret),
		notifier:  notifier,
		log:       log.With().Str("component", "webhook").Logger(),
	}
	if len(s.secret) == 0 {
		s.log.Warn().Msg("webhook secret not configured, callbacks are accepted unsigned")
	}
	return s
}

// SignatureRequired reports whether callbacks must be signed.
func (s *WebhookService) SignatureRequired() bool {
	return len(s.secret) > 0
}

// Handle processes one callback. rawBody must be the exact bytes received.
func (s *WebhookService) Handle(ctx context.Context, rawBody []byte, signature string) (*model.WebhookAck, error) {
	if err := s.verify(rawBody, signature); err != nil {
		return nil, err
	}

	payload, err := s.parse(rawBody)
	if err != nil {
		return nil, err
	}

	id := payload.Data.CorrelationID()
	log := s.log.With().Str("request_id", id).Str("type", payload.Type).Logger()

	var (
		job     *model.Job
		applied bool
	)
	switch payload.Type {
	case model.WebhookTypeTranscriptionFailed:
		job, applied, err = s.registry.Fail(ctx, id, payload.Data.Error.Message)
	default:
		job, applied, err = s.registry.Complete(ctx, id, payload.Data.Transcription)
	}
	if errors.Is(err, registry.ErrNotFound) {
		log.Warn().Msg("callback for unknown job")
		return nil, apperror.NotFound("no job with this request id").WithDetail("requestId", id)
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to apply callback")
		return nil, apperror.Internal("failed to apply callback", err)
	}

	if applied {
		log.Info().Str("status", string(job.Status)).Msg("callback applied")
		if s.notifier != nil {
			s.notifier.NotifyStatus(job)
		}
	} else {
		log.Info().Str("status", string(job.Status)).Msg("duplicate callback ignored")
	}

	return &model.WebhookAck{Success: true, Applied: applied, Status: job.Status}, nil
}

// verify checks the hex HMAC-SHA256 of the raw body. A "sha256=" prefix is
// accepted. Comparison is constant time.
func (s *WebhookService) verify(rawBody []byte, signature string) error {
	if !s.SignatureRequired() {
		return nil
	}

	signature = strings.TrimSpace(signature)
	if signature == "" {
		return apperror.Authentication("missing webhook signature")
	}
	signature = strings.TrimPrefix(signature, "sha256=")

	got, err := hex.DecodeString(signature)
	if err != nil {
		return apperror.Authentication("invalid webhook signature")
	}
	if !hmac.Equal(got, Sign(s.secret, rawBody)) {
		return apperror.Authentication("invalid webhook signature")
	}
	return nil
}

// Sign computes the raw HMAC-SHA256 of body with secret.
func Sign(secret, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return mac.Sum(nil)
}

// SignHex is Sign encoded the way the signature header carries it.
func SignHex(secret string, body []byte) string {
	return hex.EncodeToString(Sign([]byte(secret), body))
}

func (s *WebhookService) parse(rawBody []byte) (*model.WebhookPayload, error) {
	var payload model.WebhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, apperror.Validation("invalid JSON payload").WithDetail("technicalDetails", err.Error())
	}
	if err := s.validator.Struct(&payload); err != nil {
		return nil, validationError("invalid webhook payload", err)
	}

	data := payload.Data
	if data.CorrelationID() == "" {
		return nil, apperror.Validation("missing request_id")
	}

	switch payload.Type {
	case model.WebhookTypeTranscription:
		if isNullJSON(data.Transcription) {
			return nil, apperror.Validation("missing transcription")
		}
	case model.WebhookTypeTranscriptionFailed:
		if data.Error == nil || data.Error.Message == "" {
			return nil, apperror.Validation("missing error")
		}
	}
	return &payload, nil
}

func isNullJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// validationError converts validator errors into a validation apperror
// with per-field details.
func validationError(message string, err error) *apperror.Error {
	e := apperror.Validation(message)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			e.WithDetail(fe.Namespace(), fe.Tag())
		}
		return e
	}
	return e.WithDetail("technicalDetails", err.Error())
}
