package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/scribehook/api/internal/service"
	"github.com/scribehook/api/pkg/response"
)

const defaultSignatureHeader = "xi-signature"

type WebhookHandler struct {
	service         *service.WebhookService
	signatureHeader string
}

func NewWebhookHandler(svc *service.WebhookService, signatureHeader string) *WebhookHandler {
	if signatureHeader == "" {
		signatureHeader = defaultSignatureHeader
	}
	return &WebhookHandler{
		service:         svc,
		signatureHeader: signatureHeader,
	}
}

// Transcription handles POST /api/webhook/transcription
// @Summary      Provider callback
// @Description  Receives the transcription result for an asynchronous job. Signed with HMAC-SHA256 over the raw body when a secret is configured.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        xi-signature header string false "Hex HMAC-SHA256 of the raw body"
// @Success      200 {object} model.WebhookAck
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /api/webhook/transcription [post]
func (h *WebhookHandler) Transcription(c *fiber.Ctx) error {
	// c.Body is only valid for the lifetime of the handler.
	body := append([]byte(nil), c.Body()...)

	ack, err := h.service.Handle(c.UserContext(), body, c.Get(h.signatureHeader))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, ack)
}
