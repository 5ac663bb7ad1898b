package handler

import (
	"errors"
	"os"

	"github.com/gofiber/fiber/v2"

	"github.com/scribehook/api/internal/media"
	"github.com/scribehook/api/internal/model"
	"github.com/scribehook/api/internal/service"
	"github.com/scribehook/api/pkg/response"
)

type MediaHandler struct {
	store     *media.LocalStore
	retention *service.RetentionService
}

func NewMediaHandler(store *media.LocalStore, retention *service.RetentionService) *MediaHandler {
	return &MediaHandler{
		store:     store,
		retention: retention,
	}
}

// Video handles GET /api/video/:filename
// @Summary      Stream media
// @Description  Serves an uploaded file with HTTP byte-range support
// @Tags         Media
// @Produce      octet-stream
// @Param        filename path  string true  "Video ID"
// @Param        token    query string false "Signed link token"
// @Success      200
// @Success      206
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Router       /api/video/{filename} [get]
func (h *MediaHandler) Video(c *fiber.Ctx) error {
	path, err := h.store.Path(c.Params("filename"))
	if err != nil {
		return response.NotFound(c, "Video not found")
	}

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && info.IsDir()) {
		return response.NotFound(c, "Video not found")
	}
	if err != nil {
		return response.ServiceError(c, "Failed to read video")
	}

	c.Set(fiber.HeaderAcceptRanges, "bytes")
	return c.SendFile(path)
}

// Cleanup handles POST /api/cleanup
// @Summary      Delete uploads
// @Description  Removes every locally stored upload
// @Tags         Media
// @Produce      json
// @Success      200 {object} model.CleanupResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /api/cleanup [post]
func (h *MediaHandler) Cleanup(c *fiber.Ctx) error {
	n, err := h.retention.Cleanup()
	if err != nil {
		return response.ServiceError(c, "Cleanup failed")
	}
	return response.OK(c, model.CleanupResponse{Success: true, DeletedCount: n})
}
