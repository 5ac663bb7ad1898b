package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/scribehook/api/internal/auth"
	"github.com/scribehook/api/internal/client"
	"github.com/scribehook/api/internal/handler"
	"github.com/scribehook/api/internal/media"
	"github.com/scribehook/api/internal/registry"
	"github.com/scribehook/api/internal/server"
	"github.com/scribehook/api/internal/service"
	ws "github.com/scribehook/api/internal/websocket"
)

const (
	testWebhookSecret = "whsec_e2e"
	testLinkSecret    = "link-secret-for-e2e"
	signatureHeader   = "xi-signature"
)

// stubTranscriber stands in for the provider. Submissions are recorded so
// tests can play the provider's callback.
type stubTranscriber struct {
	mu         sync.Mutex
	submitted  []string
	submitErr  error
	transcript json.RawMessage
}

func (s *stubTranscriber) Transcribe(ctx context.Context, audioPath string) (json.RawMessage, error) {
	return s.transcript, nil
}

func (s *stubTranscriber) Submit(ctx context.Context, audioPath, correlationID string) (*client.SubmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	s.submitted = append(s.submitted, correlationID)
	return &client.SubmitResult{Message: "accepted", RequestID: "el_" + correlationID}, nil
}

func (s *stubTranscriber) IsConfigured() bool { return true }

type stubProber struct{ duration float64 }

func (p stubProber) Duration(ctx context.Context, path string) (float64, error) {
	return p.duration, nil
}

type stubConverter struct{}

func (stubConverter) ToMP3(ctx context.Context, inputPath string) (string, error) {
	out := strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ".mp3"
	return out, os.WriteFile(out, []byte("mp3"), 0o644)
}

type appOptions struct {
	duration        float64
	callbackEnabled bool
	webhookSecret   string
	linkSecret      string
	// redis runs the registry on an in-process miniredis
	redis bool
}

// testApp holds all components needed for testing
type testApp struct {
	app         *fiber.App
	reg         registry.Registry
	store       *media.LocalStore
	links       *auth.LinkSigner
	transcriber *stubTranscriber
	hub         *ws.Hub
}

// setupApp builds the same app as cmd/server with the provider and ffmpeg
// replaced by stubs. Long media (900s) with a callback URL goes async.
func setupApp(t *testing.T) *testApp {
	return setupAppWith(t, appOptions{
		duration:        900,
		callbackEnabled: true,
		webhookSecret:   testWebhookSecret,
		linkSecret:      testLinkSecret,
	})
}

func setupAppWith(t *testing.T, opts appOptions) *testApp {
	t.Helper()

	log := zerolog.Nop()
	store, err := media.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	var reg registry.Registry = registry.NewMemoryRegistry()
	registryName := "memory"
	var pinger handler.Pinger
	if opts.redis {
		mini, err := miniredis.Run()
		if err != nil {
			t.Fatalf("failed to start miniredis: %v", err)
		}
		t.Cleanup(mini.Close)
		rc := redis.NewClient(&redis.Options{Addr: mini.Addr()})
		t.Cleanup(func() { rc.Close() })

		reg = registry.NewRedisRegistry(rc, registry.RetentionPolicy{Retention: time.Hour, StaleAfter: time.Hour})
		registryName = "redis"
		pinger = server.RedisPinger{Client: rc}
	}

	links := auth.NewLinkSigner(opts.linkSecret, time.Hour)
	transcriber := &stubTranscriber{transcript: json.RawMessage(`{"text":"inline transcript"}`)}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := ws.NewHub(log)
	go hub.Run(ctx)

	validate := validator.New()
	submission := service.NewSubmissionService(
		reg, transcriber, stubProber{duration: opts.duration}, stubConverter{}, store, links, nil,
		service.SubmissionConfig{
			DurationThreshold:  600,
			SyncTimeout:        5 * time.Second,
			CallbackConfigured: opts.callbackEnabled,
		},
		log,
	)
	webhook := service.NewWebhookService(reg, validate, opts.webhookSecret, hub, log)
	status := service.NewStatusService(reg)
	retention := service.NewRetentionService(reg, store, registry.RetentionPolicy{
		Retention:  24 * time.Hour,
		StaleAfter: 24 * time.Hour,
	}, 24*time.Hour, log)

	app := server.New(server.Deps{
		Submission: submission,
		Webhook:    webhook,
		Status:     status,
		Retention:  retention,
		Store:      store,
		Links:      links,
		Hub:        hub,
		Validator:  validate,
		Health: handler.HealthInfo{
			APIKeyConfigured:  true,
			WebhookConfigured: opts.callbackEnabled,
			SignatureRequired: webhook.SignatureRequired(),
			Registry:          registryName,
		},
		Pinger:          pinger,
		SignatureHeader: signatureHeader,
		BodyLimit:       50 * 1024 * 1024,
		Log:             log,
	})

	return &testApp{
		app:         app,
		reg:         reg,
		store:       store,
		links:       links,
		transcriber: transcriber,
		hub:         hub,
	}
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doUpload posts a multipart "video" field to /api/transcribe.
func doUpload(t *testing.T, app *fiber.App, fileName, contentType string, data []byte) *http.Response {
	t.Helper()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="video"; filename="%s"`, fileName))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req, err := http.NewRequest(http.MethodPost, "/api/transcribe", body)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	return resp
}

// sendWebhook posts body to the webhook endpoint, signed with secret when
// secret is non-empty.
func sendWebhook(t *testing.T, app *fiber.App, body, secret string) *http.Response {
	t.Helper()
	headers := map[string]string{}
	if secret != "" {
		headers[signatureHeader] = service.SignHex(secret, []byte(body))
	}
	resp, err := doRequest(app, http.MethodPost, "/api/webhook/transcription", body, headers)
	if err != nil {
		t.Fatalf("webhook request failed: %v", err)
	}
	return resp
}

func completionPayload(requestID, text string) string {
	return fmt.Sprintf(`{"type":"speech_to_text_transcription","data":{"request_id":"el_provider","webhook_metadata":{"request_id":%q},"transcription":{"language_code":"en","text":%q}}}`, requestID, text)
}

func failurePayload(requestID, message string) string {
	return fmt.Sprintf(`{"type":"speech_to_text_transcription_failed","data":{"webhook_metadata":{"request_id":%q},"error":{"message":%q}}}`, requestID, message)
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// errorCode extracts error.code from an error envelope.
func errorCode(body map[string]interface{}) string {
	e, ok := body["error"].(map[string]interface{})
	if !ok {
		return ""
	}
	code, _ := e["code"].(string)
	return code
}

// getStatus queries the status endpoint for requestID.
func getStatus(t *testing.T, app *fiber.App, requestID string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := doRequest(app, http.MethodGet, "/api/transcription/status/"+requestID, "", nil)
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}
	return resp, parseJSON(t, resp)
}
