// Command worker is the video-qa-worker process: it claims pipeline jobs
// from Postgres and drives each one through normalize -> transcribe ->
// scenes -> frames -> vision -> embeddings (spec.md §4), adapted from
// byron-the-bulb-cinema-chat's cmd/main.go runWorker entrypoint.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/arcanous/video-qa-worker/internal/artifactmirror"
	"github.com/arcanous/video-qa-worker/internal/config"
	"github.com/arcanous/video-qa-worker/internal/datadir"
	"github.com/arcanous/video-qa-worker/internal/health"
	"github.com/arcanous/video-qa-worker/internal/jobcontroller"
	"github.com/arcanous/video-qa-worker/internal/logging"
	"github.com/arcanous/video-qa-worker/internal/media"
	"github.com/arcanous/video-qa-worker/internal/orchestrator"
	"github.com/arcanous/video-qa-worker/internal/storage"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		FilePath:   cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})

	gw, err := storage.NewPostgresGateway(cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	defer gw.Close()

	if err := gw.AutoMigrate(); err != nil {
		logger.WithError(err).Fatal("failed to run auto-migration")
	}
	logger.Info("database connection established")

	dd := datadir.New(cfg.DataDir)
	if err := dd.EnsureDirs(); err != nil {
		logger.WithError(err).Fatal("failed to prepare data directory")
	}

	openaiClient, err := media.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	if err != nil {
		logger.WithError(err).Fatal("failed to build OpenAI-compatible media client")
	}

	collaborators := orchestrator.Collaborators{
		Gateway:          gw,
		DataDir:          dd,
		Transcoder:       media.NewFFmpegTranscoder(),
		SceneDetector:    media.NewPySceneDetector(cfg.SceneDetectPython, cfg.SceneDetectScript, cfg.SceneDetectTimeout),
		FrameExtractor:   media.NewFFmpegFrameExtractor(),
		PerceptualHasher: media.NewDCTPerceptualHasher(),
		Transcriber:      openaiClient,
		VisionCaptioner:  openaiClient,
		Embedder:         openaiClient,

		MaxFramesPerVideo:   cfg.MaxFramesPerVideo,
		VisionMaxConcurrent: cfg.VisionMaxConcurrent,
		Toggles: orchestrator.StageToggles{
			Transcription: cfg.EnableTranscription,
			Vision:        cfg.EnableVisionAnalysis,
			Embeddings:    cfg.EnableEmbeddings,
		},
	}

	var mirror *artifactmirror.Mirror
	if cfg.S3Enabled() {
		mirror, err = artifactmirror.New(ctx, artifactmirror.Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}, dd, logger)
		if err != nil {
			logger.WithError(err).Warn("artifact mirror disabled: failed to initialize S3 client")
			mirror = nil
		} else {
			logger.Info("artifact mirror enabled")
		}
	}

	controller := jobcontroller.New(gw, collaborators, jobcontroller.Config{
		PollInterval: time.Duration(cfg.WorkerPollMS) * time.Millisecond,
		MaxAttempts:  cfg.WorkerMaxAttempts,
		WorkerID:     workerID(),
	}, logger)
	if mirror != nil {
		controller.OnJobDone = mirror.MirrorVideo
	}

	var healthServer *health.Server
	if cfg.WorkerDevHTTP {
		var cache *health.StatsCache
		if cfg.RedisEnabled() {
			cache, err = health.NewStatsCache(ctx, cfg.RedisURL, logger)
			if err != nil {
				logger.WithError(err).Warn("stats cache disabled: failed to connect to Redis")
				cache = nil
			}
		}
		healthServer = health.New(gw, cache, logger, addrFromPort(cfg.WorkerHTTPPort))
		go func() {
			if err := healthServer.ListenAndServe(); err != nil {
				logger.WithError(err).Error("health server exited unexpectedly")
			}
		}()
		logger.WithField("port", cfg.WorkerHTTPPort).Info("dev health server listening")
	}

	logger.Info("worker ready, entering claim loop")
	if err := controller.Run(ctx); err != nil {
		logger.WithError(err).Error("job controller exited with error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.WorkerShutdownGrace)*time.Millisecond)
	defer cancel()
	if healthServer != nil {
		if err := healthServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("health server shutdown error")
		}
	}
	logger.Info("worker shut down cleanly")
}

func workerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return host + "-" + strconv.Itoa(os.Getpid())
}

func addrFromPort(port int) string {
	return ":" + strconv.Itoa(port)
}
