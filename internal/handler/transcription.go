package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/scribehook/api/internal/service"
	"github.com/scribehook/api/pkg/response"
)

// allowedMediaTypes are the upload content types the submit endpoint accepts
var allowedMediaTypes = map[string]bool{
	"video/mp4":        true,
	"video/quicktime":  true,
	"video/x-msvideo":  true,
	"video/x-matroska": true,
	"audio/mpeg":       true,
	"audio/wav":        true,
	"audio/mp3":        true,
	"audio/x-m4a":      true,
	"audio/mp4":        true,
}

type TranscriptionHandler struct {
	submission *service.SubmissionService
	status     *service.StatusService
	validator  *validator.Validate
	maxUpload  int64
}

func NewTranscriptionHandler(submission *service.SubmissionService, status *service.StatusService, v *validator.Validate, maxUpload int64) *TranscriptionHandler {
	return &TranscriptionHandler{
		submission: submission,
		status:     status,
		validator:  v,
		maxUpload:  maxUpload,
	}
}

// Transcribe handles POST /api/transcribe
// @Summary      Transcribe media
// @Description  Upload a video or audio file. Short files are transcribed inline; long files return a requestId to poll.
// @Tags         Transcription
// @Accept       multipart/form-data
// @Produce      json
// @Param        video formData file true "Video or audio file"
// @Success      200 {object} model.TranscribeResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Failure      504 {object} response.ErrorResponse
// @Router       /api/transcribe [post]
func (h *TranscriptionHandler) Transcribe(c *fiber.Ctx) error {
	file, err := c.FormFile("video")
	if err != nil {
		return response.ValidationError(c, "No file uploaded", nil)
	}

	if h.maxUpload > 0 && file.Size > h.maxUpload {
		return response.ValidationError(c, "File size exceeds upload limit", map[string]interface{}{
			"maxSize":  h.maxUpload,
			"fileSize": file.Size,
		})
	}

	contentType := file.Header.Get("Content-Type")
	if !allowedMediaTypes[contentType] {
		return response.ValidationError(c, "Invalid file type. Only video and audio files are allowed.", map[string]interface{}{
			"contentType": contentType,
		})
	}

	f, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open file")
	}
	defer f.Close()

	up := service.Upload{
		FileName:    file.Filename,
		ContentType: contentType,
		Size:        file.Size,
		Body:        f,
	}
	if err := h.validator.Struct(&up); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.submission.Submit(c.UserContext(), up)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, result)
}

// Status handles GET /api/transcription/status/:requestId
// @Summary      Transcription status
// @Description  Poll an asynchronous transcription. The transcript is only present once status is completed.
// @Tags         Transcription
// @Produce      json
// @Param        requestId path string true "Request ID"
// @Success      200 {object} model.StatusResponse
// @Failure      404 {object} response.ErrorResponse
// @Router       /api/transcription/status/{requestId} [get]
func (h *TranscriptionHandler) Status(c *fiber.Ctx) error {
	result, err := h.status.Query(c.UserContext(), c.Params("requestId"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, result)
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		fields := make(map[string]string)
		for _, e := range validationErrors {
			fields[e.Field()] = e.Tag()
		}
		return fields
	}
	return nil
}
