package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLinkSigner_RoundTrip(t *testing.T) {
	s := NewLinkSigner("secret", time.Hour)

	token, err := s.Sign("v1.mp4")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := s.Validate(token, "v1.mp4"); err != nil {
		t.Errorf("expected valid token, got %v", err)
	}
	if err := s.Validate(token, "v2.mp4"); !errors.Is(err, ErrLinkMismatch) {
		t.Errorf("expected ErrLinkMismatch, got %v", err)
	}
}

func TestLinkSigner_RejectsWrongSecretAndExpired(t *testing.T) {
	s := NewLinkSigner("secret", time.Minute)
	token, _ := s.Sign("v1.mp4")

	other := NewLinkSigner("other", time.Minute)
	if err := other.Validate(token, "v1.mp4"); err == nil {
		t.Error("expected token signed with another secret to be rejected")
	}

	s.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if err := s.Validate(token, "v1.mp4"); err == nil {
		t.Error("expected expired token to be rejected")
	}
}

func TestLinkSigner_Disabled(t *testing.T) {
	s := NewLinkSigner("", time.Hour)

	url, err := s.URL("v1.mp4")
	if err != nil {
		t.Fatalf("url: %v", err)
	}
	if url != "/api/video/v1.mp4" {
		t.Errorf("expected unsigned url, got %s", url)
	}
	if err := s.Validate("", "v1.mp4"); err != nil {
		t.Errorf("expected disabled signer to accept anything, got %v", err)
	}
}

func TestLinkSigner_URLCarriesToken(t *testing.T) {
	s := NewLinkSigner("secret", time.Hour)

	url, err := s.URL("v1.mp4")
	if err != nil {
		t.Fatalf("url: %v", err)
	}
	prefix := "/api/video/v1.mp4?token="
	if !strings.HasPrefix(url, prefix) {
		t.Fatalf("expected signed url, got %s", url)
	}
	if err := s.Validate(strings.TrimPrefix(url, prefix), "v1.mp4"); err != nil {
		t.Errorf("expected token from url to validate, got %v", err)
	}
}
