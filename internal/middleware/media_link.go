package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/scribehook/api/internal/auth"
	"github.com/scribehook/api/pkg/response"
)

// MediaLinkMiddleware guards media playback with signed link tokens
type MediaLinkMiddleware struct {
	signer *auth.LinkSigner
	param  string
}

// NewMediaLinkMiddleware checks the token against the route parameter param.
func NewMediaLinkMiddleware(signer *auth.LinkSigner, param string) *MediaLinkMiddleware {
	return &MediaLinkMiddleware{
		signer: signer,
		param:  param,
	}
}

// Authenticate validates ?token= (or a Bearer header) for the requested
// file. It is a pass-through when signing is disabled.
func (m *MediaLinkMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !m.signer.Enabled() {
			return c.Next()
		}

		token := c.Query("token")
		if token == "" {
			parts := strings.SplitN(c.Get("Authorization"), " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
				token = parts[1]
			}
		}
		if token == "" {
			return response.Unauthorized(c, "Missing media token")
		}

		if err := m.signer.Validate(token, c.Params(m.param)); err != nil {
			return response.Unauthorized(c, "Invalid or expired media token")
		}
		return c.Next()
	}
}
