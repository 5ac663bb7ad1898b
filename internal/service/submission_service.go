package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/scribehook/api/internal/apperror"
	"github.com/scribehook/api/internal/auth"
	"github.com/scribehook/api/internal/client"
	"github.com/scribehook/api/internal/media"
	"github.com/scribehook/api/internal/model"
	"github.com/scribehook/api/internal/registry"
)

// DefaultDurationThreshold is the longest input transcribed inline, in seconds.
const DefaultDurationThreshold = 600

// DurationProber reads media duration in seconds
type DurationProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// AudioConverter extracts an audio track ready for the provider
type AudioConverter interface {
	ToMP3(ctx context.Context, inputPath string) (string, error)
}

// Upload is one file received by the submit endpoint
type Upload struct {
	FileName    string `validate:"required"`
	ContentType string
	Size        int64 `validate:"gte=0"`
	Body        io.Reader
}

// SubmissionConfig holds the knobs of the decision engine
type SubmissionConfig struct {
	DurationThreshold float64
	SyncTimeout       time.Duration
	// SubmitTimeout bounds the webhook-mode provider call.
	SubmitTimeout time.Duration
	// MediaTimeout bounds each conversion and probe.
	MediaTimeout time.Duration
	// CallbackConfigured is true when the provider can reach our webhook.
	CallbackConfigured bool
	PresignTTL         time.Duration
}

// SubmissionService decides between inline and webhook transcription and
// drives the provider call.
type SubmissionService struct {
	registry    registry.Registry
	transcriber client.Transcriber
	prober      DurationProber
	converter   AudioConverter
	store       *media.LocalStore
	links       *auth.LinkSigner
	archive     client.StorageClient
	cfg         SubmissionConfig
	now         func() time.Time
	log         zerolog.Logger
}

// NewSubmissionService wires the submission flow. archive may be nil, in
// which case media is served from local disk.
func NewSubmissionService(
	reg registry.Registry,
	transcriber client.Transcriber,
	prober DurationProber,
	converter AudioConverter,
	store *media.LocalStore,
	links *auth.LinkSigner,
	archive client.StorageClient,
	cfg SubmissionConfig,
	log zerolog.Logger,
) *SubmissionService {
	if cfg.DurationThreshold <= 0 {
		cfg.DurationThreshold = DefaultDurationThreshold
	}
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = 10 * time.Minute
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 2 * time.Minute
	}
	if cfg.MediaTimeout <= 0 {
		cfg.MediaTimeout = 10 * time.Minute
	}
	return &SubmissionService{
		registry:    reg,
		transcriber: transcriber,
		prober:      prober,
		converter:   converter,
		store:       store,
		links:       links,
		archive:     archive,
		cfg:         cfg,
		now:         time.Now,
		log:         log.With().Str("component", "submission").Logger(),
	}
}

// Decide picks the completion path for a probed duration.
func (s *SubmissionService) Decide(durationSeconds float64, callbackConfigured bool) model.SubmissionMode {
	return Decide(durationSeconds, callbackConfigured, s.cfg.DurationThreshold)
}

// Decide is the pure decision rule: inputs up to threshold, or any input
// when no callback endpoint exists, are transcribed inline. A duration that
// is not a finite number is treated as short.
func Decide(durationSeconds float64, callbackConfigured bool, threshold float64) model.SubmissionMode {
	if !callbackConfigured {
		return model.ModeSynchronous
	}
	if math.IsNaN(durationSeconds) || math.IsInf(durationSeconds, 0) {
		return model.ModeSynchronous
	}
	if durationSeconds <= threshold {
		return model.ModeSynchronous
	}
	return model.ModeAsynchronous
}

// NewCorrelationID returns a fresh, globally unique request id.
func NewCorrelationID(now time.Time) string {
	return fmt.Sprintf("req_%d-%s", now.UnixMilli(), uuid.New().String())
}

func newVideoID(now time.Time, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	return fmt.Sprintf("%d-%s%s", now.UnixMilli(), uuid.New().String()[:8], ext)
}

// Submit stores the upload, probes it and transcribes it either inline or
// through the webhook path.
func (s *SubmissionService) Submit(ctx context.Context, up Upload) (*model.TranscribeResponse, error) {
	if up.FileName == "" || up.Body == nil {
		return nil, apperror.Validation("a media file is required")
	}
	if !s.transcriber.IsConfigured() {
		return nil, apperror.Internal("transcription provider is not configured", nil).
			WithDetail("suggestion", "Set ELEVENLABS_API_KEY and restart the server.")
	}

	started := s.now()
	videoID := newVideoID(started, up.FileName)

	videoPath, err := s.store.Save(videoID, up.Body)
	if err != nil {
		return nil, apperror.Internal("failed to store upload", err)
	}

	// The stored upload is only kept once a response is on its way.
	keep := false
	defer func() {
		if !keep {
			s.store.Remove(videoPath)
		}
	}()

	audioPath := videoPath
	if media.NeedsConversion(up.FileName) {
		s.log.Info().Str("video_id", videoID).Msg("converting to mp3")
		converted, err := s.convert(ctx, videoPath)
		if err != nil {
			return nil, classifyProviderError("conversion failed", err)
		}
		audioPath = converted
		defer s.store.Remove(converted)
	}

	duration, err := s.probe(ctx, audioPath)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, classifyProviderError("media probe timed out", err)
	}
	if err != nil {
		return nil, apperror.Validation("could not read media duration").
			WithDetail("technicalDetails", err.Error())
	}

	mode := s.Decide(duration, s.cfg.CallbackConfigured)
	s.log.Info().
		Str("video_id", videoID).
		Float64("duration", duration).
		Float64("threshold", s.cfg.DurationThreshold).
		Bool("callback_configured", s.cfg.CallbackConfigured).
		Str("mode", string(mode)).
		Msg("submission decided")

	videoURL, archived, err := s.publish(ctx, videoID, videoPath, up.ContentType)
	if err != nil {
		return nil, err
	}

	resp := &model.TranscribeResponse{
		Success:  true,
		FileName: up.FileName,
		VideoURL: videoURL,
		VideoID:  videoID,
		Duration: duration,
	}

	switch mode {
	case model.ModeAsynchronous:
		id, err := s.submitAsync(ctx, audioPath, model.SourceMetadata{
			FileName:        up.FileName,
			VideoID:         videoID,
			VideoURL:        videoURL,
			DurationSeconds: duration,
			StartedAt:       started,
		})
		if err != nil {
			s.unpublish(videoID, archived)
			return nil, err
		}
		resp.UseWebhook = true
		resp.RequestID = id

	default:
		transcript, err := s.transcribeSync(ctx, audioPath)
		if err != nil {
			s.unpublish(videoID, archived)
			return nil, err
		}
		resp.Transcription = transcript
	}

	keep = !archived
	resp.Timestamp = s.now()
	return resp, nil
}

func (s *SubmissionService) convert(ctx context.Context, videoPath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.MediaTimeout)
	defer cancel()
	out, err := s.converter.ToMP3(ctx, videoPath)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("timeout after %s: %w", s.cfg.MediaTimeout, context.DeadlineExceeded)
	}
	return out, err
}

func (s *SubmissionService) probe(ctx context.Context, path string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.MediaTimeout)
	defer cancel()
	d, err := s.prober.Duration(ctx, path)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return 0, fmt.Errorf("timeout after %s: %w", s.cfg.MediaTimeout, context.DeadlineExceeded)
	}
	return d, err
}

func (s *SubmissionService) transcribeSync(ctx context.Context, audioPath string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SyncTimeout)
	defer cancel()

	start := s.now()
	transcript, err := s.transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, classifyProviderError("transcription timed out", fmt.Errorf("timeout after %s: %w", s.cfg.SyncTimeout, err))
		}
		return nil, classifyProviderError("transcription failed", err)
	}
	s.log.Info().Dur("elapsed", s.now().Sub(start)).Msg("synchronous transcription complete")
	return transcript, nil
}

// submitAsync creates the job before calling the provider, so a webhook
// can never arrive for an id the registry does not know yet. If the
// provider refuses, the job is discarded; its id was never returned.
func (s *SubmissionService) submitAsync(ctx context.Context, audioPath string, meta model.SourceMetadata) (string, error) {
	id := NewCorrelationID(meta.StartedAt)
	if _, err := s.registry.Create(ctx, id, meta); err != nil {
		return "", apperror.Internal("failed to create job", err)
	}

	ack, err := s.submit(ctx, audioPath, id)
	if err != nil {
		if derr := s.registry.Discard(context.WithoutCancel(ctx), id); derr != nil {
			s.log.Error().Err(derr).Str("request_id", id).Msg("failed to discard job")
		}
		return "", classifyProviderError("transcription submission failed", err)
	}

	if ack.RequestID != "" {
		if err := s.registry.SetProviderRequestID(ctx, id, ack.RequestID); err != nil {
			s.log.Warn().Err(err).Str("request_id", id).Msg("failed to record provider request id")
		}
	}
	s.log.Info().
		Str("request_id", id).
		Str("provider_request_id", ack.RequestID).
		Msg("asynchronous transcription submitted")
	return id, nil
}

func (s *SubmissionService) submit(ctx context.Context, audioPath, id string) (*client.SubmitResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SubmitTimeout)
	defer cancel()
	ack, err := s.transcriber.Submit(ctx, audioPath, id)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("timeout after %s: %w", s.cfg.SubmitTimeout, context.DeadlineExceeded)
	}
	return ack, err
}

// publish makes the original media playable. With object storage the file
// is uploaded and a presigned URL returned; otherwise a local link is built.
func (s *SubmissionService) publish(ctx context.Context, videoID, videoPath, contentType string) (string, bool, error) {
	if s.archive == nil {
		url, err := s.links.URL(videoID)
		if err != nil {
			return "", false, apperror.Internal("failed to build media link", err)
		}
		return url, false, nil
	}

	f, err := os.Open(videoPath)
	if err != nil {
		return "", false, apperror.Internal("failed to open upload", err)
	}
	defer f.Close()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := archiveKey(videoID)
	if _, err := s.archive.Upload(ctx, key, f, contentType); err != nil {
		return "", false, apperror.Upstream("failed to archive media", err)
	}
	url, err := s.archive.GetSignedURL(ctx, key, s.cfg.PresignTTL)
	if err != nil {
		s.unpublish(videoID, true)
		return "", false, apperror.Upstream("failed to sign media URL", err)
	}
	return url, true, nil
}

func (s *SubmissionService) unpublish(videoID string, archived bool) {
	if !archived {
		return
	}
	if err := s.archive.Delete(context.Background(), archiveKey(videoID)); err != nil {
		s.log.Warn().Err(err).Str("video_id", videoID).Msg("failed to remove archived media")
	}
}

func archiveKey(videoID string) string {
	return "media/" + videoID
}
