package service

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/scribehook/api/internal/auth"
	"github.com/scribehook/api/internal/client"
	"github.com/scribehook/api/internal/media"
	"github.com/scribehook/api/internal/model"
	"github.com/scribehook/api/internal/registry"
)

type fakeTranscriber struct {
	mu          sync.Mutex
	transcript  json.RawMessage
	err         error
	submitErr   error
	providerID  string
	submittedID string
	syncCalls   int
	asyncCalls  int
	// onSubmit runs before Submit returns, while the job is already created
	onSubmit func(correlationID string)
	// hang makes Submit wait for its context, like a provider that never answers
	hang bool
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.transcript, nil
}

func (f *fakeTranscriber) Submit(ctx context.Context, audioPath, correlationID string) (*client.SubmitResult, error) {
	f.mu.Lock()
	f.asyncCalls++
	f.submittedID = correlationID
	hook := f.onSubmit
	f.mu.Unlock()

	if hook != nil {
		hook(correlationID)
	}
	if f.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &client.SubmitResult{Message: "accepted", RequestID: f.providerID}, nil
}

func (f *fakeTranscriber) IsConfigured() bool { return true }

type fakeProber struct {
	duration float64
	err      error
	hang     bool
}

func (f *fakeProber) Duration(ctx context.Context, path string) (float64, error) {
	if f.hang {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	return f.duration, f.err
}

// fakeConverter writes an empty .mp3 next to the input
type fakeConverter struct {
	calls int
}

func (f *fakeConverter) ToMP3(ctx context.Context, inputPath string) (string, error) {
	f.calls++
	out := strings.TrimSuffix(inputPath, ".mp4") + ".mp3"
	return out, os.WriteFile(out, []byte("mp3"), 0o644)
}

type recordingNotifier struct {
	mu   sync.Mutex
	jobs []*model.Job
}

func (n *recordingNotifier) NotifyStatus(job *model.Job) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.jobs = append(n.jobs, job)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.jobs)
}

type fixture struct {
	reg         *registry.MemoryRegistry
	store       *media.LocalStore
	transcriber *fakeTranscriber
	prober      *fakeProber
	converter   *fakeConverter
	submission  *SubmissionService
	webhook     *WebhookService
	status      *StatusService
	notifier    *recordingNotifier
}

const testSecret = "whsec_test"

func newFixture(t *testing.T, duration float64, callbackConfigured bool) *fixture {
	t.Helper()

	store, err := media.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		reg:         registry.NewMemoryRegistry(),
		store:       store,
		transcriber: &fakeTranscriber{transcript: json.RawMessage(`{"text":"hello"}`), providerID: "el_123"},
		prober:      &fakeProber{duration: duration},
		converter:   &fakeConverter{},
		notifier:    &recordingNotifier{},
	}
	f.submission = NewSubmissionService(
		f.reg, f.transcriber, f.prober, f.converter, store,
		auth.NewLinkSigner("", time.Hour), nil,
		SubmissionConfig{DurationThreshold: 600, SyncTimeout: time.Second, CallbackConfigured: callbackConfigured},
		zerolog.Nop(),
	)
	f.webhook = NewWebhookService(f.reg, validator.New(), testSecret, f.notifier, zerolog.Nop())
	f.status = NewStatusService(f.reg)
	return f
}

func upload(name string) Upload {
	return Upload{FileName: name, ContentType: "video/mp4", Size: 4, Body: strings.NewReader("data")}
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	return len(entries)
}

var errProvider = errors.New("provider unavailable")
