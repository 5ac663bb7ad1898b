package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/scribehook/api/internal/auth"
	"github.com/scribehook/api/internal/client"
	"github.com/scribehook/api/internal/config"
	"github.com/scribehook/api/internal/handler"
	"github.com/scribehook/api/internal/logger"
	"github.com/scribehook/api/internal/media"
	"github.com/scribehook/api/internal/registry"
	"github.com/scribehook/api/internal/server"
	"github.com/scribehook/api/internal/service"
	ws "github.com/scribehook/api/internal/websocket"
	"github.com/scribehook/api/internal/worker"
)

// @title          ScribeHook API
// @version        1.0
// @description    Media transcription with inline and webhook completion.
// @BasePath       /
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New(logger.Config{})
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}

	log := logger.New(logger.Config{
		Level:  cfg.Server.LogLevel,
		Format: cfg.Server.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis is optional: it backs the registry and the asynq sweep scheduler
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis not available")
		}
	}

	policy := registry.RetentionPolicy{
		Retention:  cfg.Registry.Retention,
		StaleAfter: cfg.Registry.StaleAfter,
	}

	var reg registry.Registry
	registryName := "memory"
	if strings.EqualFold(cfg.Registry.Backend, "redis") && redisClient != nil {
		reg = registry.NewRedisRegistry(redisClient, policy)
		registryName = "redis"
	} else {
		if strings.EqualFold(cfg.Registry.Backend, "redis") {
			log.Warn().Msg("registry backend redis requested but redis is disabled, using memory")
		}
		reg = registry.NewMemoryRegistry()
	}

	store, err := media.NewLocalStore(cfg.Media.UploadDir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.Media.UploadDir).Msg("failed to prepare upload directory")
	}

	// Object storage is optional - media is served from disk when absent
	var archive client.StorageClient
	if cfg.Storage.AccessKeyID != "" && cfg.Storage.SecretAccessKey != "" {
		s3Client, err := client.NewS3Client(&cfg.Storage)
		if err != nil {
			log.Warn().Err(err).Msg("object storage not initialized")
		} else {
			archive = s3Client
		}
	} else {
		log.Info().Msg("object storage not configured, serving media from disk")
	}

	links := auth.NewLinkSigner(cfg.Media.LinkSecret, cfg.Media.LinkTTL)
	if !links.Enabled() {
		log.Warn().Msg("media link secret not set, video links are unauthenticated")
	}

	transcriber := client.NewElevenLabsClient(&cfg.ElevenLabs, log)
	if !transcriber.IsConfigured() {
		log.Warn().Msg("ELEVENLABS_API_KEY not set, transcription requests will fail")
	}
	if cfg.Webhook.Configured() && cfg.Webhook.Secret == "" {
		log.Warn().Msg("webhook secret not set, callbacks are accepted unsigned")
	}

	validate := validator.New()

	hub := ws.NewHub(log)
	go hub.Run(ctx)

	submissionService := service.NewSubmissionService(
		reg,
		transcriber,
		media.NewProber(cfg.Media.FFprobePath),
		media.NewConverter(cfg.Media.FFmpegPath),
		store,
		links,
		archive,
		service.SubmissionConfig{
			DurationThreshold:  cfg.Transcription.DurationThreshold,
			SyncTimeout:        cfg.Transcription.SyncTimeout,
			SubmitTimeout:      cfg.Transcription.SubmitTimeout,
			MediaTimeout:       cfg.Transcription.MediaTimeout,
			CallbackConfigured: cfg.Webhook.Configured(),
			PresignTTL:         cfg.Storage.PresignTTL,
		},
		log,
	)
	webhookService := service.NewWebhookService(reg, validate, cfg.Webhook.Secret, hub, log)
	statusService := service.NewStatusService(reg)
	retentionService := service.NewRetentionService(reg, store, policy, cfg.Media.Retention, log)

	deps := server.Deps{
		Submission: submissionService,
		Webhook:    webhookService,
		Status:     statusService,
		Retention:  retentionService,
		Store:      store,
		Links:      links,
		Hub:        hub,
		Validator:  validate,
		Health: handler.HealthInfo{
			APIKeyConfigured:  transcriber.IsConfigured(),
			WebhookConfigured: cfg.Webhook.Configured(),
			SignatureRequired: webhookService.SignatureRequired(),
			Registry:          registryName,
		},
		SignatureHeader: cfg.Webhook.SignatureHeader,
		BodyLimit:       cfg.Server.BodyLimitMB * 1024 * 1024,
		CORSOrigins:     cfg.Server.CORSOrigins,
		Debug:           strings.EqualFold(cfg.Server.LogLevel, "debug"),
		Log:             log,
		AccessLog:       true,
	}
	if redisClient != nil {
		deps.Pinger = server.RedisPinger{Client: redisClient}
	}
	app := server.New(deps)

	// Retention sweep: asynq scheduler when Redis is on, ticker otherwise
	sweepWorker := worker.NewSweepWorker(retentionService, log)
	if cfg.Redis.Enabled {
		go startSweepScheduler(cfg, log)
		go startWorkerServer(cfg, log, sweepWorker)
	} else {
		go sweepWorker.Run(ctx, cfg.Registry.SweepInterval)
	}

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
	}()

	addr := ":" + cfg.Server.Port
	log.Info().
		Str("addr", addr).
		Float64("duration_threshold", cfg.Transcription.DurationThreshold).
		Bool("webhook_configured", cfg.Webhook.Configured()).
		Str("registry", registryName).
		Msg("server starting")
	if err := app.Listen(addr); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func redisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}

func asynqLogLevel(level string) asynq.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return asynq.DebugLevel
	case "warn":
		return asynq.WarnLevel
	case "error":
		return asynq.ErrorLevel
	default:
		return asynq.InfoLevel
	}
}

func startWorkerServer(cfg *config.Config, log zerolog.Logger, sweepWorker *worker.SweepWorker) {
	srv := asynq.NewServer(
		redisOpt(cfg),
		asynq.Config{
			Concurrency: 1,
			Queues: map[string]int{
				worker.QueueSweep: 1,
			},
			LogLevel: asynqLogLevel(cfg.Server.LogLevel),
			Logger:   logger.AsynqLogger{L: logger.Component(log, "asynq")},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(worker.TaskTypeSweep, sweepWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Error().Err(err).Msg("asynq worker error")
	}
}

func startSweepScheduler(cfg *config.Config, log zerolog.Logger) {
	scheduler := asynq.NewScheduler(redisOpt(cfg), &asynq.SchedulerOpts{
		LogLevel: asynqLogLevel(cfg.Server.LogLevel),
		Logger:   logger.AsynqLogger{L: logger.Component(log, "asynq_scheduler")},
	})

	spec := worker.Cronspec(cfg.Registry.SweepInterval)
	if _, err := scheduler.Register(spec, worker.NewSweepTask()); err != nil {
		log.Error().Err(err).Str("spec", spec).Msg("failed to register sweep task")
		return
	}
	if err := scheduler.Run(); err != nil {
		log.Error().Err(err).Msg("asynq scheduler error")
	}
}
