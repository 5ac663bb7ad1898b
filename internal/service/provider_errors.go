package service

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/scribehook/api/internal/apperror"
	"github.com/scribehook/api/internal/client"
)

const largeFileSuggestion = "For large files (600MB+), consider converting to audio-only format or compressing before upload."

// classifyProviderError turns a provider or tooling failure into an
// upstream error with a user-facing message. The raw error text goes into
// technicalDetails.
func classifyProviderError(fallback string, err error) *apperror.Error {
	msg := strings.ToLower(err.Error())

	var (
		kind    = apperror.KindUpstream
		title   = fallback
		message = "An error occurred during transcription. Please try again."
	)

	switch {
	case errors.Is(err, context.DeadlineExceeded) || strings.Contains(msg, "timeout"):
		kind = apperror.KindTimeout
		title = "Request timeout"
		message = "The file is too large and took too long to process. Try a shorter video, compress the file, or convert it to a lower quality audio format such as MP3."
	case strings.Contains(msg, "file size") || client.StatusCode(err) == http.StatusRequestEntityTooLarge:
		title = "File too large"
		message = "The file exceeds the maximum size limit. Please use a smaller file."
	case strings.Contains(msg, "format"):
		title = "Unsupported format"
		message = "This file format is not supported. Please use MP4, MOV, AVI, MKV, MP3, or WAV."
	case strings.Contains(msg, "quota") || strings.Contains(msg, "limit") || client.StatusCode(err) == http.StatusTooManyRequests:
		title = "API quota exceeded"
		message = "The provider API quota has been exceeded. Please try again later."
	case client.StatusCode(err) == http.StatusUnauthorized:
		title = "Authentication failed"
		message = "Invalid API key. Please check your ElevenLabs API configuration."
	}

	e := &apperror.Error{Kind: kind, Message: title, Cause: err}
	return e.
		WithDetail("userMessage", message).
		WithDetail("technicalDetails", err.Error()).
		WithDetail("suggestion", largeFileSuggestion)
}
