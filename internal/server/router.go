package server

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/scribehook/api/internal/apperror"
	"github.com/scribehook/api/internal/auth"
	"github.com/scribehook/api/internal/handler"
	"github.com/scribehook/api/internal/media"
	"github.com/scribehook/api/internal/middleware"
	"github.com/scribehook/api/internal/model"
	"github.com/scribehook/api/internal/service"
	ws "github.com/scribehook/api/internal/websocket"
	"github.com/scribehook/api/pkg/response"
)

// Deps is everything the HTTP surface needs
type Deps struct {
	Submission *service.SubmissionService
	Webhook    *service.WebhookService
	Status     *service.StatusService
	Retention  *service.RetentionService
	Store      *media.LocalStore
	Links      *auth.LinkSigner
	Hub        *ws.Hub
	Validator  *validator.Validate
	Health     handler.HealthInfo
	Pinger     handler.Pinger // nil when no Redis

	SignatureHeader string
	BodyLimit       int   // bytes
	MaxUpload       int64 // bytes, 0 = BodyLimit
	CORSOrigins     string
	Debug           bool
	Log             zerolog.Logger
	AccessLog       bool
}

// New builds the fiber app with every route mounted.
func New(d Deps) *fiber.App {
	if d.Validator == nil {
		d.Validator = validator.New()
	}
	if d.CORSOrigins == "" {
		d.CORSOrigins = "*"
	}
	maxUpload := d.MaxUpload
	if maxUpload <= 0 {
		maxUpload = int64(d.BodyLimit)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          errorHandler(d.Log),
		BodyLimit:             d.BodyLimit,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	if d.AccessLog {
		logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
		if d.Debug {
			logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${reqHeaders}\n"
		}
		app.Use(fiberlogger.New(fiberlogger.Config{
			Format: logFormat,
		}))
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: d.CORSOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization," + d.SignatureHeader,
	}))

	transcriptionHandler := handler.NewTranscriptionHandler(d.Submission, d.Status, d.Validator, maxUpload)
	webhookHandler := handler.NewWebhookHandler(d.Webhook, d.SignatureHeader)
	mediaHandler := handler.NewMediaHandler(d.Store, d.Retention)
	healthHandler := handler.NewHealthHandler(d.Health, d.Status, d.Pinger)
	mediaLink := middleware.NewMediaLinkMiddleware(d.Links, "filename")

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})
	app.Get("/health", healthHandler.Health)

	api := app.Group("/api")
	api.Get("/health", healthHandler.Health)
	api.Post("/transcribe", transcriptionHandler.Transcribe)
	api.Get("/transcription/status/:requestId", transcriptionHandler.Status)
	api.Post("/webhook/transcription", webhookHandler.Transcription)
	api.Get("/video/:filename", mediaLink.Authenticate(), mediaHandler.Video)
	api.Post("/cleanup", mediaHandler.Cleanup)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/transcriptions/:requestId", websocket.New(func(c *websocket.Conn) {
		requestID := c.Params("requestId")
		d.Hub.HandleConnection(c, requestID, func() (*model.Job, error) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return d.Status.Job(ctx, requestID)
		})
	}))

	return app
}

func errorHandler(log zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code := response.CodeServiceError
			switch {
			case fe.Code == fiber.StatusNotFound:
				code = response.CodeNotFound
			case fe.Code < 500:
				code = response.CodeValidationError
			}
			return response.Error(c, fe.Code, code, fe.Message, nil)
		}

		appErr := apperror.As(err)
		if appErr.HTTPStatus() >= 500 {
			log.Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
		}
		return response.FromError(c, appErr)
	}
}

// RedisPinger adapts a go-redis client to handler.Pinger.
type RedisPinger struct {
	Client *redis.Client
}

func (p RedisPinger) Ping(ctx context.Context) error {
	return p.Client.Ping(ctx).Err()
}
