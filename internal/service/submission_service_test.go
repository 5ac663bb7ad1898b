package service

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/scribehook/api/internal/apperror"
	"github.com/scribehook/api/internal/client"
	"github.com/scribehook/api/internal/model"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name      string
		duration  float64
		callback  bool
		wantAsync bool
	}{
		{"short with callback", 120, true, false},
		{"exactly threshold", 600, true, false},
		{"just over threshold", 600.01, true, true},
		{"long with callback", 900, true, true},
		{"long without callback", 5000, false, false},
		{"short without callback", 10, false, false},
		{"nan", math.NaN(), true, false},
		{"infinite", math.Inf(1), true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode := Decide(tt.duration, tt.callback, DefaultDurationThreshold)
			if (mode == model.ModeAsynchronous) != tt.wantAsync {
				t.Errorf("expected async=%v, got %s", tt.wantAsync, mode)
			}
		})
	}
}

func TestSubmit_SynchronousLeavesRegistryUntouched(t *testing.T) {
	f := newFixture(t, 120, true)

	resp, err := f.submission.Submit(context.Background(), upload("talk.mp4"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if resp.UseWebhook || resp.RequestID != "" {
		t.Errorf("expected synchronous response, got %+v", resp)
	}
	if string(resp.Transcription) != `{"text":"hello"}` {
		t.Errorf("unexpected transcript %s", resp.Transcription)
	}
	if n, _ := f.reg.Len(context.Background()); n != 0 {
		t.Errorf("expected no job for synchronous path, got %d", n)
	}
	if f.converter.calls != 1 {
		t.Errorf("expected video to be converted once, got %d", f.converter.calls)
	}
	if !strings.HasPrefix(resp.VideoURL, "/api/video/") || !strings.HasSuffix(resp.VideoID, ".mp4") {
		t.Errorf("unexpected video link %s / %s", resp.VideoURL, resp.VideoID)
	}
	// Only the original video remains; the converted audio is removed.
	if n := countFiles(t, f.store.Dir()); n != 1 {
		t.Errorf("expected 1 stored file, got %d", n)
	}
}

func TestSubmit_AsynchronousCreatesJobBeforeProviderCall(t *testing.T) {
	f := newFixture(t, 900, true)

	var seenDuringSubmit *model.Job
	f.transcriber.onSubmit = func(id string) {
		seenDuringSubmit, _ = f.reg.Get(context.Background(), id)
	}

	resp, err := f.submission.Submit(context.Background(), upload("lecture.mp3"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !resp.UseWebhook || resp.RequestID == "" {
		t.Fatalf("expected async response, got %+v", resp)
	}
	if resp.Transcription != nil {
		t.Error("async response must not carry a transcript")
	}
	if seenDuringSubmit == nil {
		t.Fatal("expected job to exist while the provider call was in flight")
	}
	if f.transcriber.submittedID != resp.RequestID {
		t.Errorf("provider got %s, client got %s", f.transcriber.submittedID, resp.RequestID)
	}

	job, err := f.reg.Get(context.Background(), resp.RequestID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != model.JobStatusProcessing {
		t.Errorf("expected processing, got %s", job.Status)
	}
	if job.ProviderRequestID != "el_123" {
		t.Errorf("expected provider id recorded, got %q", job.ProviderRequestID)
	}
	if job.Source.FileName != "lecture.mp3" || job.Source.DurationSeconds != 900 {
		t.Errorf("unexpected source metadata %+v", job.Source)
	}
	if f.converter.calls != 0 {
		t.Errorf("expected mp3 not to be converted, got %d calls", f.converter.calls)
	}
}

func TestSubmit_AsynchronousProviderFailureLeavesNoJob(t *testing.T) {
	f := newFixture(t, 900, true)
	f.transcriber.submitErr = errProvider

	_, err := f.submission.Submit(context.Background(), upload("lecture.mp4"))
	if !apperror.IsKind(err, apperror.KindUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if n, _ := f.reg.Len(context.Background()); n != 0 {
		t.Errorf("expected no orphaned job, got %d", n)
	}
	if n := countFiles(t, f.store.Dir()); n != 0 {
		t.Errorf("expected stored files to be removed, got %d", n)
	}
}

func TestSubmit_AsynchronousProviderHangTimesOut(t *testing.T) {
	f := newFixture(t, 900, true)
	f.transcriber.hang = true
	f.submission.cfg.SubmitTimeout = 50 * time.Millisecond

	done := make(chan error, 1)
	go func() {
		_, err := f.submission.Submit(context.Background(), upload("lecture.mp3"))
		done <- err
	}()

	select {
	case err := <-done:
		if !apperror.IsKind(err, apperror.KindTimeout) {
			t.Fatalf("expected timeout error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("submit still blocked after the submit timeout")
	}
	if n, _ := f.reg.Len(context.Background()); n != 0 {
		t.Errorf("expected timed out job to be discarded, got %d", n)
	}
	if n := countFiles(t, f.store.Dir()); n != 0 {
		t.Errorf("expected stored files to be removed, got %d", n)
	}
}

func TestSubmit_ProbeHangTimesOut(t *testing.T) {
	f := newFixture(t, 900, true)
	f.prober.hang = true
	f.submission.cfg.MediaTimeout = 50 * time.Millisecond

	done := make(chan error, 1)
	go func() {
		_, err := f.submission.Submit(context.Background(), upload("lecture.mp3"))
		done <- err
	}()

	select {
	case err := <-done:
		if !apperror.IsKind(err, apperror.KindTimeout) {
			t.Fatalf("expected timeout error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("submit still blocked after the media timeout")
	}
	if f.transcriber.asyncCalls != 0 || f.transcriber.syncCalls != 0 {
		t.Error("provider must not be called when probing fails")
	}
}

func TestSubmit_LongInputWithoutCallbackIsSynchronous(t *testing.T) {
	f := newFixture(t, 5000, false)

	resp, err := f.submission.Submit(context.Background(), upload("long.mp3"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if resp.UseWebhook {
		t.Error("expected synchronous path without callback")
	}
	if f.transcriber.asyncCalls != 0 || f.transcriber.syncCalls != 1 {
		t.Errorf("unexpected provider calls sync=%d async=%d", f.transcriber.syncCalls, f.transcriber.asyncCalls)
	}
}

func TestSubmit_ProbeFailureIsValidation(t *testing.T) {
	f := newFixture(t, 0, true)
	f.prober.err = errors.New("moov atom not found")

	_, err := f.submission.Submit(context.Background(), upload("broken.mp3"))
	if !apperror.IsKind(err, apperror.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSubmit_MissingFile(t *testing.T) {
	f := newFixture(t, 10, true)

	_, err := f.submission.Submit(context.Background(), Upload{})
	if !apperror.IsKind(err, apperror.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSubmit_SyncProviderErrorIsClassified(t *testing.T) {
	f := newFixture(t, 30, true)
	f.transcriber.err = &client.APIError{StatusCode: http.StatusUnauthorized, Body: `{"detail":"invalid_api_key"}`}

	_, err := f.submission.Submit(context.Background(), upload("clip.mp3"))
	e := apperror.As(err)
	if e.Kind != apperror.KindUpstream || e.Message != "Authentication failed" {
		t.Fatalf("expected classified auth failure, got %v", err)
	}
	if e.Details["technicalDetails"] == "" || e.Details["suggestion"] == nil {
		t.Errorf("expected technical details and suggestion, got %v", e.Details)
	}
}

func TestClassifyProviderError(t *testing.T) {
	tests := []struct {
		err       error
		wantTitle string
		wantKind  apperror.Kind
	}{
		{errors.New("request timeout"), "Request timeout", apperror.KindTimeout},
		{context.DeadlineExceeded, "Request timeout", apperror.KindTimeout},
		{errors.New("file size exceeds"), "File too large", apperror.KindUpstream},
		{errors.New("unknown format"), "Unsupported format", apperror.KindUpstream},
		{&client.APIError{StatusCode: http.StatusTooManyRequests}, "API quota exceeded", apperror.KindUpstream},
		{errors.New("boom"), "transcription failed", apperror.KindUpstream},
	}

	for _, tt := range tests {
		e := classifyProviderError("transcription failed", tt.err)
		if e.Message != tt.wantTitle || e.Kind != tt.wantKind {
			t.Errorf("%v: expected %s/%s, got %s/%s", tt.err, tt.wantKind, tt.wantTitle, e.Kind, e.Message)
		}
	}
}

func TestNewCorrelationID_Unique(t *testing.T) {
	now := time.Now()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewCorrelationID(now)
		if !strings.HasPrefix(id, "req_") {
			t.Fatalf("unexpected id format %s", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}
