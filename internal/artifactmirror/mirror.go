// Package artifactmirror is an optional, best-effort post-completion
// durability layer: once a job reaches done, it copies the normalized
// video and extracted keyframes to S3. It is never part of the
// pipeline's correctness surface (SPEC_FULL.md §6) — failures here are
// logged as warnings and never turn a done job back into a failure.
package artifactmirror

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"github.com/arcanous/video-qa-worker/internal/datadir"
)

// Config holds the S3 destination and optional static credentials,
// mirrored from maauso-infinitetalk-api's S3Config. Endpoint is normally
// empty (real AWS); tests point it at an httptest server.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// Mirror uploads a video's normalized artifact and keyframes to S3 after
// it completes, best-effort.
type Mirror struct {
	client *s3.Client
	bucket string
	dd     datadir.Root
	log    *logrus.Logger
}

// New builds a Mirror. It loads AWS configuration once at startup,
// following NewS3Storage's config-then-client construction.
func New(ctx context.Context, cfg Config, dd datadir.Root, log *logrus.Logger) (*Mirror, error) {
	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("artifactmirror: load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &Mirror{
		client: s3.NewFromConfig(awsCfg, clientOpts...),
		bucket: cfg.Bucket,
		dd:     dd,
		log:    log,
	}, nil
}

// MirrorVideo uploads the normalized video and every extracted keyframe
// for videoID under processed/{video_id}/* and frames/{video_id}/*. Each
// file is uploaded independently; a failure on one file is logged and
// does not stop the rest from being attempted.
func (m *Mirror) MirrorVideo(ctx context.Context, videoID string) {
	entry := m.log.WithField("video_id", videoID)

	normalizedPath := m.dd.NormalizedPath(videoID)
	if err := m.uploadFile(ctx, normalizedPath, fmt.Sprintf("processed/%s/normalized.mp4", videoID)); err != nil {
		entry.WithError(err).Warn("artifactmirror: failed to mirror normalized video")
	}

	framesDir := m.dd.FramesDir(videoID)
	entries, err := os.ReadDir(framesDir)
	if err != nil {
		if !os.IsNotExist(err) {
			entry.WithError(err).Warn("artifactmirror: failed to list frames directory")
		}
		return
	}

	for _, f := range entries {
		if f.IsDir() {
			continue
		}
		key := fmt.Sprintf("frames/%s/%s", videoID, f.Name())
		if err := m.uploadFile(ctx, filepath.Join(framesDir, f.Name()), key); err != nil {
			entry.WithError(err).WithField("file", f.Name()).Warn("artifactmirror: failed to mirror frame")
		}
	}
}

func (m *Mirror) uploadFile(ctx context.Context, path, key string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}
