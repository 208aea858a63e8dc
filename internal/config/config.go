// Package config loads worker configuration from environment variables.
package config

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
)

// Config holds every environment-sourced setting named in the spec, plus the
// ambient knobs (log rotation, shutdown grace, optional Redis/S3 wiring)
// that a production deployment of this worker needs but spec.md leaves to
// the implementer.
type Config struct {
	DatabaseURL   string `env:"DATABASE_URL, required" validate:"required"`
	OpenAIAPIKey  string `env:"OPENAI_API_KEY, required" validate:"required"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL, default=https://api.openai.com/v1"`
	DataDir       string `env:"DATA_DIR, default=/app/data" validate:"required"`

	// SceneDetectPython/SceneDetectScript locate the PySceneDetect helper
	// the Scenes stage shells out to.
	SceneDetectPython string        `env:"SCENE_DETECT_PYTHON, default=python3"`
	SceneDetectScript string        `env:"SCENE_DETECT_SCRIPT, default=scripts/scene_detect.py"`
	SceneDetectTimeout time.Duration `env:"SCENE_DETECT_TIMEOUT_SEC, default=300s"`

	WorkerPollMS        int `env:"WORKER_POLL_MS, default=1500" validate:"min=1"`
	WorkerMaxAttempts   int `env:"WORKER_MAX_ATTEMPTS, default=3" validate:"min=1"`
	WorkerShutdownGrace int `env:"WORKER_SHUTDOWN_GRACE_MS, default=30000" validate:"min=0"`

	LogLevel      string `env:"LOG_LEVEL, default=INFO"`
	LogFile       string `env:"LOG_FILE, default=worker/log.log"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB, default=5" validate:"min=1"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS, default=3" validate:"min=0"`

	MaxFramesPerVideo  int `env:"MAX_FRAMES_PER_VIDEO, default=50" validate:"min=1"`
	VisionMaxConcurrent int `env:"VISION_MAX_CONCURRENT, default=5" validate:"min=1"`

	EnableTranscription bool `env:"ENABLE_TRANSCRIPTION, default=true"`
	EnableVisionAnalysis bool `env:"ENABLE_VISION_ANALYSIS, default=true"`
	EnableEmbeddings     bool `env:"ENABLE_EMBEDDINGS, default=true"`

	WorkerDevHTTP  bool `env:"WORKER_DEV_HTTP, default=false"`
	WorkerHTTPPort int  `env:"WORKER_HTTP_PORT, default=8000" validate:"min=1,max=65535"`

	// RedisURL, when set, backs a short-lived cache for the health view's
	// /stats counters. Entirely optional: the health view falls back to the
	// gateway directly when it is unset or unreachable.
	RedisURL string `env:"REDIS_URL"`

	// S3Bucket/S3Region gate the optional post-completion artifact mirror.
	// Both must be set for it to activate.
	S3Bucket           string `env:"S3_BUCKET"`
	S3Region           string `env:"S3_REGION"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
}

// S3Enabled reports whether the optional artifact mirror has enough
// configuration to activate.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// RedisEnabled reports whether the optional stats cache has enough
// configuration to activate.
func (c *Config) RedisEnabled() bool {
	return c.RedisURL != ""
}

// Load reads configuration from the environment and validates it.
func Load(ctx context.Context) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process(ctx, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
