package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/scribehook/api/internal/model"
	"github.com/scribehook/api/internal/service"
)

// Pinger checks a backing dependency such as Redis
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthInfo is the static part of the health report
type HealthInfo struct {
	APIKeyConfigured  bool
	WebhookConfigured bool
	SignatureRequired bool
	Registry          string
}

type HealthHandler struct {
	info   HealthInfo
	status *service.StatusService
	pinger Pinger
}

// NewHealthHandler creates the health endpoint. pinger may be nil.
func NewHealthHandler(info HealthInfo, status *service.StatusService, pinger Pinger) *HealthHandler {
	return &HealthHandler{info: info, status: status, pinger: pinger}
}

// Health handles GET /health and GET /api/health
// @Summary      Health check
// @Tags         Health
// @Produce      json
// @Success      200 {object} model.HealthResponse
// @Failure      503 {object} model.HealthResponse
// @Router       /api/health [get]
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	resp := model.HealthResponse{
		Status:            "ok",
		APIKeyConfigured:  h.info.APIKeyConfigured,
		WebhookConfigured: h.info.WebhookConfigured,
		SignatureRequired: h.info.SignatureRequired,
		Registry:          h.info.Registry,
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	if h.pinger != nil {
		if err := h.pinger.Ping(ctx); err != nil {
			resp.Status = "degraded"
			return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
		}
	}

	n, err := h.status.Count(ctx)
	if err != nil {
		resp.Status = "degraded"
		return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
	}
	resp.Jobs = n

	return c.JSON(resp)
}
