// Package pollclient is a Go client for the transcription API. It uploads
// media and, for webhook-completed jobs, polls the status endpoint until the
// job reaches a terminal state or the attempt budget runs out.
package pollclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultInterval    = 5 * time.Second
	DefaultMaxAttempts = 120

	statusPath = "/api/transcription/status/"
	submitPath = "/api/transcribe"
)

var (
	// ErrPollTimeout is returned when the attempt budget is exhausted while
	// the job is still processing.
	ErrPollTimeout = errors.New("transcription poll timed out")
	// ErrJobFailed is returned when the server reports the job as failed.
	ErrJobFailed = errors.New("transcription failed")
	// ErrProtocol is returned for responses the client does not understand.
	ErrProtocol = errors.New("unexpected server response")
)

// Job statuses reported by the server
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// StatusSnapshot mirrors the status endpoint's body
type StatusSnapshot struct {
	RequestID     string          `json:"requestId"`
	Status        string          `json:"status"`
	FileName      string          `json:"fileName"`
	VideoURL      string          `json:"videoUrl,omitempty"`
	VideoID       string          `json:"videoId"`
	Transcription json.RawMessage `json:"transcription,omitempty"`
	Error         string          `json:"error,omitempty"`
	StartedAt     time.Time       `json:"startedAt"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
}

// SubmitResponse mirrors the submit endpoint's body
type SubmitResponse struct {
	Success       bool            `json:"success"`
	UseWebhook    bool            `json:"useWebhook"`
	RequestID     string          `json:"requestId,omitempty"`
	FileName      string          `json:"fileName"`
	VideoURL      string          `json:"videoUrl,omitempty"`
	VideoID       string          `json:"videoId"`
	Duration      float64         `json:"duration"`
	Transcription json.RawMessage `json:"transcription,omitempty"`
}

// Progress describes one non-terminal poll
type Progress struct {
	Attempt     int
	MaxAttempts int
	Status      string
}

// JobError carries the server's failure reason. It matches ErrJobFailed
// with errors.Is.
type JobError struct {
	RequestID string
	Reason    string
}

func (e *JobError) Error() string {
	return fmt.Sprintf("transcription %s failed: %s", e.RequestID, e.Reason)
}

func (e *JobError) Is(target error) bool { return target == ErrJobFailed }

// APIError is a non-2xx response carrying the server's error envelope
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d, %s): %s", e.StatusCode, e.Code, e.Message)
}

// Client talks to one transcription API base URL
type Client struct {
	baseURL     string
	httpClient  *http.Client
	interval    time.Duration
	maxAttempts int
	log         zerolog.Logger
}

// Option customises a Client
type Option func(*Client)

// WithInterval sets the delay between status polls.
func WithInterval(d time.Duration) Option {
	return func(c *Client) { c.interval = d }
}

// WithMaxAttempts sets the poll budget.
func WithMaxAttempts(n int) Option {
	return func(c *Client) { c.maxAttempts = n }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: 30 * time.Minute},
		interval:    DefaultInterval,
		maxAttempts: DefaultMaxAttempts,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = DefaultMaxAttempts
	}
	return c
}

// Status fetches one snapshot.
func (c *Client) Status(ctx context.Context, requestID string) (*StatusSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+statusPath+requestID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var snap StatusSnapshot
	if err := c.do(req, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Poll queries the status endpoint until the job completes, fails, or the
// attempt budget is spent. onProgress, if non-nil, is called after every
// non-terminal response. Cancelling ctx stops the loop; the server-side job
// is left untouched either way.
func (c *Client) Poll(ctx context.Context, requestID string, onProgress func(Progress)) (*StatusSnapshot, error) {
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		snap, err := c.Status(ctx, requestID)
		if err != nil {
			return nil, err
		}

		switch snap.Status {
		case StatusCompleted:
			return snap, nil
		case StatusFailed:
			return snap, &JobError{RequestID: requestID, Reason: snap.Error}
		case StatusProcessing:
			if onProgress != nil {
				onProgress(Progress{Attempt: attempt, MaxAttempts: c.maxAttempts, Status: snap.Status})
			}
		default:
			return nil, fmt.Errorf("%w: status %q", ErrProtocol, snap.Status)
		}

		if attempt == c.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.interval):
		}
	}

	c.log.Warn().Str("request_id", requestID).Int("attempts", c.maxAttempts).Msg("poll budget exhausted")
	return nil, fmt.Errorf("%w after %d attempts", ErrPollTimeout, c.maxAttempts)
}

// Submit uploads the file at path as the "video" form field. The body is
// streamed from disk.
func (c *Client) Submit(ctx context.Context, path string) (*SubmitResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeVideoPart(mw, filepath.Base(path), contentTypeFor(path), f))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+submitPath, pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp SubmitResponse
	if err := c.do(req, &resp); err != nil {
		pr.CloseWithError(err)
		return nil, err
	}
	return &resp, nil
}

func writeVideoPart(mw *multipart.Writer, fileName, contentType string, file io.Reader) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="video"; filename=%q`, fileName))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	return mw.Close()
}

// Transcribe submits path and, when the server chose webhook delivery,
// polls until the transcript is available.
func (c *Client) Transcribe(ctx context.Context, path string, onProgress func(Progress)) (json.RawMessage, error) {
	sub, err := c.Submit(ctx, path)
	if err != nil {
		return nil, err
	}
	if !sub.UseWebhook {
		return sub.Transcription, nil
	}
	if sub.RequestID == "" {
		return nil, fmt.Errorf("%w: async submission without requestId", ErrProtocol)
	}

	snap, err := c.Poll(ctx, sub.RequestID, onProgress)
	if err != nil {
		return nil, err
	}
	return snap.Transcription, nil
}

func (c *Client) do(req *http.Request, result interface{}) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(respBody, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		} else {
			apiErr.Message = string(respBody)
		}
		return apiErr
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return nil
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".avi":
		return "video/x-msvideo"
	case ".mkv":
		return "video/x-matroska"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".m4a":
		return "audio/x-m4a"
	}
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "application/octet-stream"
}
