// Package stage implements the six idempotent pipeline stages of spec.md
// §4.D: each reads prior state from the storage gateway, skips if already
// complete for the video, otherwise performs work via a media primitive and
// writes results back through the gateway.
package stage

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/arcanous/video-qa-worker/internal/datadir"
	"github.com/arcanous/video-qa-worker/internal/media"
	"github.com/arcanous/video-qa-worker/internal/stageerr"
	"github.com/arcanous/video-qa-worker/internal/storage"
)

// Normalize transcodes the uploaded video to the normalized 720p30 + 16kHz
// mono audio artifacts, skipping if they already exist for this video.
func Normalize(ctx context.Context, gw storage.Gateway, dd datadir.Root, transcoder media.Transcoder, videoID string) error {
	video, err := gw.GetVideo(ctx, videoID)
	if err != nil {
		return stageerr.Fatal(fmt.Errorf("normalize: %w", err))
	}

	normalizedPath := dd.NormalizedPath(videoID)
	audioPath := dd.AudioPath(videoID)

	if video.NormalizedPath != nil && *video.NormalizedPath == normalizedPath {
		if _, err := os.Stat(normalizedPath); err == nil {
			return nil
		}
	}

	if err := dd.EnsureVideoDirs(videoID); err != nil {
		return stageerr.Fatal(err)
	}

	inputPath := dd.Resolve(video.OriginalPath)
	if _, err := os.Stat(inputPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return stageerr.Fatal(fmt.Errorf("normalize: input file missing: %s", inputPath))
		}
		return stageerr.Retryable(fmt.Errorf("normalize: stat input file: %w", err))
	}

	durationSec, err := transcoder.Transcode(ctx, inputPath, normalizedPath, audioPath)
	if err != nil {
		return stageerr.Retryable(fmt.Errorf("normalize: transcode failed: %w", err))
	}

	if err := gw.UpdateVideoNormalized(ctx, videoID, normalizedPath, durationSec); err != nil {
		if storage.IsTransient(err) {
			return stageerr.Retryable(fmt.Errorf("normalize: update video row: %w", err))
		}
		return stageerr.Fatal(fmt.Errorf("normalize: update video row: %w", err))
	}
	return nil
}
