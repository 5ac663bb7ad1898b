package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envFile is loaded before anything else when present. Variables already
// set in the environment win.
var envFile = ".env"

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server        ServerConfig
	Transcription TranscriptionConfig
	ElevenLabs    ElevenLabsConfig
	Webhook       WebhookConfig
	Media         MediaConfig
	Storage       StorageConfig
	Registry      RegistryConfig
	Redis         RedisConfig
}

type ServerConfig struct {
	Port        string
	Env         string
	LogLevel    string
	LogFormat   string
	PublicURL   string
	BodyLimitMB int
	CORSOrigins string
}

type TranscriptionConfig struct {
	DurationThreshold float64 // seconds
	SyncTimeout       time.Duration
	// SubmitTimeout bounds the webhook-mode provider call.
	SubmitTimeout time.Duration
	// MediaTimeout bounds each ffprobe/ffmpeg run.
	MediaTimeout time.Duration
}

type ElevenLabsConfig struct {
	APIKey         string
	BaseURL        string
	ModelID        string
	Diarize        bool
	TagAudioEvents bool
}

type WebhookConfig struct {
	URL             string
	Secret          string
	SignatureHeader string
}

// Configured reports whether the provider can call back into this service.
func (w WebhookConfig) Configured() bool {
	return w.URL != ""
}

type MediaConfig struct {
	UploadDir   string
	LinkSecret  string
	LinkTTL     time.Duration
	FFmpegPath  string
	FFprobePath string
	Retention   time.Duration
}

type StorageConfig struct {
	Endpoint        string
	Region          string
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
	PresignTTL      time.Duration
}

type RegistryConfig struct {
	Backend       string // memory | redis
	Retention     time.Duration
	StaleAfter    time.Duration
	SweepInterval time.Duration
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

func Load() (*Config, error) {
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("ELEVENLABS_API_KEY")
	readSecret("WEBHOOK_SECRET")
	readSecret("MEDIA_LINK_SECRET")
	readSecret("REDIS_PASSWORD")
	readSecret("STORAGE_ACCESS_KEY_ID")
	readSecret("STORAGE_SECRET_ACCESS_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "PORT", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.log_format", "LOG_FORMAT")
	_ = viper.BindEnv("server.public_url", "PUBLIC_URL")
	_ = viper.BindEnv("server.body_limit_mb", "BODY_LIMIT_MB")
	_ = viper.BindEnv("server.cors_origins", "CORS_ORIGINS")
	_ = viper.BindEnv("transcription.duration_threshold", "DURATION_THRESHOLD")
	_ = viper.BindEnv("transcription.sync_timeout", "SYNC_TIMEOUT")
	_ = viper.BindEnv("transcription.submit_timeout", "SUBMIT_TIMEOUT")
	_ = viper.BindEnv("transcription.media_timeout", "MEDIA_TIMEOUT")
	_ = viper.BindEnv("elevenlabs.api_key", "ELEVENLABS_API_KEY")
	_ = viper.BindEnv("elevenlabs.base_url", "ELEVENLABS_BASE_URL")
	_ = viper.BindEnv("elevenlabs.model_id", "ELEVENLABS_MODEL_ID")
	_ = viper.BindEnv("elevenlabs.diarize", "ELEVENLABS_DIARIZE")
	_ = viper.BindEnv("elevenlabs.tag_audio_events", "ELEVENLABS_TAG_AUDIO_EVENTS")
	_ = viper.BindEnv("webhook.url", "WEBHOOK_URL")
	_ = viper.BindEnv("webhook.secret", "WEBHOOK_SECRET")
	_ = viper.BindEnv("webhook.signature_header", "WEBHOOK_SIGNATURE_HEADER")
	_ = viper.BindEnv("media.upload_dir", "UPLOAD_DIR")
	_ = viper.BindEnv("media.link_secret", "MEDIA_LINK_SECRET")
	_ = viper.BindEnv("media.link_ttl", "MEDIA_LINK_TTL")
	_ = viper.BindEnv("media.ffmpeg_path", "FFMPEG_PATH")
	_ = viper.BindEnv("media.ffprobe_path", "FFPROBE_PATH")
	_ = viper.BindEnv("media.retention", "MEDIA_RETENTION")
	_ = viper.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	_ = viper.BindEnv("storage.region", "STORAGE_REGION")
	_ = viper.BindEnv("storage.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("storage.access_key_id", "STORAGE_ACCESS_KEY_ID")
	_ = viper.BindEnv("storage.secret_access_key", "STORAGE_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("storage.bucket_name", "STORAGE_BUCKET_NAME")
	_ = viper.BindEnv("storage.public_url", "STORAGE_PUBLIC_URL")
	_ = viper.BindEnv("storage.presign_ttl", "STORAGE_PRESIGN_TTL")
	_ = viper.BindEnv("registry.backend", "REGISTRY_BACKEND")
	_ = viper.BindEnv("registry.retention", "REGISTRY_RETENTION")
	_ = viper.BindEnv("registry.stale_after", "REGISTRY_STALE_AFTER")
	_ = viper.BindEnv("registry.sweep_interval", "REGISTRY_SWEEP_INTERVAL")
	_ = viper.BindEnv("redis.enabled", "REDIS_ENABLED")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")

	// Defaults
	viper.SetDefault("server.port", "3001")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("server.log_format", "json")
	viper.SetDefault("server.body_limit_mb", 10*1024)
	viper.SetDefault("server.cors_origins", "*")

	viper.SetDefault("transcription.duration_threshold", 600)
	viper.SetDefault("transcription.sync_timeout", 10*time.Minute)
	viper.SetDefault("transcription.submit_timeout", 2*time.Minute)
	viper.SetDefault("transcription.media_timeout", 10*time.Minute)

	// ElevenLabs defaults
	viper.SetDefault("elevenlabs.base_url", "https://api.elevenlabs.io")
	viper.SetDefault("elevenlabs.model_id", "scribe_v1")
	viper.SetDefault("elevenlabs.diarize", true)
	viper.SetDefault("elevenlabs.tag_audio_events", true)

	viper.SetDefault("webhook.signature_header", "xi-signature")

	// Media defaults
	viper.SetDefault("media.upload_dir", "uploads")
	viper.SetDefault("media.link_ttl", 24*time.Hour)
	viper.SetDefault("media.ffmpeg_path", "ffmpeg")
	viper.SetDefault("media.ffprobe_path", "ffprobe")
	viper.SetDefault("media.retention", 24*time.Hour)

	viper.SetDefault("storage.region", "auto")
	viper.SetDefault("storage.presign_ttl", 24*time.Hour)

	// Registry defaults
	viper.SetDefault("registry.backend", "memory")
	viper.SetDefault("registry.retention", 24*time.Hour)
	viper.SetDefault("registry.stale_after", 24*time.Hour)
	viper.SetDefault("registry.sweep_interval", 10*time.Minute)

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:        viper.GetString("server.port"),
			Env:         viper.GetString("server.env"),
			LogLevel:    viper.GetString("server.log_level"),
			LogFormat:   viper.GetString("server.log_format"),
			PublicURL:   viper.GetString("server.public_url"),
			BodyLimitMB: viper.GetInt("server.body_limit_mb"),
			CORSOrigins: viper.GetString("server.cors_origins"),
		},
		Transcription: TranscriptionConfig{
			DurationThreshold: viper.GetFloat64("transcription.duration_threshold"),
			SyncTimeout:       viper.GetDuration("transcription.sync_timeout"),
			SubmitTimeout:     viper.GetDuration("transcription.submit_timeout"),
			MediaTimeout:      viper.GetDuration("transcription.media_timeout"),
		},
		ElevenLabs: ElevenLabsConfig{
			APIKey:         viper.GetString("elevenlabs.api_key"),
			BaseURL:        viper.GetString("elevenlabs.base_url"),
			ModelID:        viper.GetString("elevenlabs.model_id"),
			Diarize:        viper.GetBool("elevenlabs.diarize"),
			TagAudioEvents: viper.GetBool("elevenlabs.tag_audio_events"),
		},
		Webhook: WebhookConfig{
			URL:             viper.GetString("webhook.url"),
			Secret:          viper.GetString("webhook.secret"),
			SignatureHeader: viper.GetString("webhook.signature_header"),
		},
		Media: MediaConfig{
			UploadDir:   viper.GetString("media.upload_dir"),
			LinkSecret:  viper.GetString("media.link_secret"),
			LinkTTL:     viper.GetDuration("media.link_ttl"),
			FFmpegPath:  viper.GetString("media.ffmpeg_path"),
			FFprobePath: viper.GetString("media.ffprobe_path"),
			Retention:   viper.GetDuration("media.retention"),
		},
		Storage: StorageConfig{
			Endpoint:        viper.GetString("storage.endpoint"),
			Region:          viper.GetString("storage.region"),
			AccountID:       viper.GetString("storage.account_id"),
			AccessKeyID:     viper.GetString("storage.access_key_id"),
			SecretAccessKey: viper.GetString("storage.secret_access_key"),
			BucketName:      viper.GetString("storage.bucket_name"),
			PublicURL:       viper.GetString("storage.public_url"),
			PresignTTL:      viper.GetDuration("storage.presign_ttl"),
		},
		Registry: RegistryConfig{
			Backend:       viper.GetString("registry.backend"),
			Retention:     viper.GetDuration("registry.retention"),
			StaleAfter:    viper.GetDuration("registry.stale_after"),
			SweepInterval: viper.GetDuration("registry.sweep_interval"),
		},
		Redis: RedisConfig{
			Enabled:  viper.GetBool("redis.enabled"),
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
	}

	return cfg, nil
}
