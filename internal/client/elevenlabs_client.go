package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/scribehook/api/internal/config"
)

const speechToTextPath = "/v1/speech-to-text"

// Transcriber defines the speech-to-text operations the submission flow needs
type Transcriber interface {
	// Transcribe blocks until the provider returns the transcript.
	Transcribe(ctx context.Context, audioPath string) (json.RawMessage, error)
	// Submit hands the file over for webhook delivery. correlationID is
	// echoed back in the callback's webhook_metadata.
	Submit(ctx context.Context, audioPath, correlationID string) (*SubmitResult, error)
	IsConfigured() bool
}

// SubmitResult is the provider's acknowledgement of an async request
type SubmitResult struct {
	Message         string `json:"message"`
	RequestID       string `json:"request_id"`
	TranscriptionID string `json:"transcription_id,omitempty"`
}

// APIError is a non-2xx response from the provider
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("elevenlabs API error (status %d): %s", e.StatusCode, e.Body)
}

// StatusCode extracts the provider HTTP status from err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// ElevenLabsClient implements Transcriber for the ElevenLabs Scribe API
type ElevenLabsClient struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	modelID        string
	diarize        bool
	tagAudioEvents bool
	log            zerolog.Logger
}

// NewElevenLabsClient creates a new ElevenLabs API client. Request lifetime
// is bounded by the caller's context, not by the HTTP client.
func NewElevenLabsClient(cfg *config.ElevenLabsConfig, log zerolog.Logger) *ElevenLabsClient {
	return &ElevenLabsClient{
		httpClient:     &http.Client{},
		baseURL:        cfg.BaseURL,
		apiKey:         cfg.APIKey,
		modelID:        cfg.ModelID,
		diarize:        cfg.Diarize,
		tagAudioEvents: cfg.TagAudioEvents,
		log:            log.With().Str("component", "elevenlabs").Logger(),
	}
}

func (c *ElevenLabsClient) Transcribe(ctx context.Context, audioPath string) (json.RawMessage, error) {
	var result json.RawMessage
	if err := c.postAudio(ctx, audioPath, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *ElevenLabsClient) Submit(ctx context.Context, audioPath, correlationID string) (*SubmitResult, error) {
	meta, err := json.Marshal(map[string]string{"request_id": correlationID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal webhook metadata: %w", err)
	}
	fields := map[string]string{
		"webhook":          "true",
		"webhook_metadata": string(meta),
	}

	var result SubmitResult
	if err := c.postAudio(ctx, audioPath, fields, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *ElevenLabsClient) IsConfigured() bool {
	return c.apiKey != ""
}

// postAudio streams audioPath as a multipart upload together with the
// model options and any extra fields.
func (c *ElevenLabsClient) postAudio(ctx context.Context, audioPath string, extra map[string]string, result interface{}) error {
	f, err := os.Open(audioPath)
	if err != nil {
		return fmt.Errorf("failed to open audio: %w", err)
	}
	defer f.Close()

	fields := map[string]string{
		"model_id":         c.modelID,
		"diarize":          strconv.FormatBool(c.diarize),
		"tag_audio_events": strconv.FormatBool(c.tagAudioEvents),
	}
	for k, v := range extra {
		fields[k] = v
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(mw, fields, filepath.Base(audioPath), f))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+speechToTextPath, pr)
	if err != nil {
		pr.Close()
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return c.doRequest(req, result)
}

func writeForm(mw *multipart.Writer, fields map[string]string, fileName string, file io.Reader) error {
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName))
	h.Set("Content-Type", "audio/mpeg")
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	return mw.Close()
}

// doRequest executes an HTTP request and parses the response
func (c *ElevenLabsClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	c.log.Debug().Str("method", req.Method).Str("url", req.URL.String()).Msg("request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error().Err(err).Str("url", req.URL.String()).Msg("request failed")
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	c.log.Info().
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Int("bytes", len(respBody)).
		Msg("response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
