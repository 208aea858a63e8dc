package stage

import (
	"context"
	"fmt"

	"github.com/arcanous/video-qa-worker/internal/datadir"
	"github.com/arcanous/video-qa-worker/internal/ids"
	"github.com/arcanous/video-qa-worker/internal/media"
	"github.com/arcanous/video-qa-worker/internal/stageerr"
	"github.com/arcanous/video-qa-worker/internal/storage"
)

// Scenes splits the normalized video into scene boundaries, skipping if
// scene rows already exist for this video.
func Scenes(ctx context.Context, gw storage.Gateway, dd datadir.Root, detector media.SceneDetector, videoID string) error {
	has, err := gw.HasScenes(ctx, videoID)
	if err != nil {
		return classifyGatewayErr("scenes: check existing scenes", err)
	}
	if has {
		return nil
	}

	spans, err := detector.DetectScenes(ctx, dd.NormalizedPath(videoID))
	if err != nil {
		return stageerr.Retryable(fmt.Errorf("scenes: detect scenes: %w", err))
	}
	if len(spans) == 0 {
		return stageerr.Fatal(fmt.Errorf("scenes: detector returned zero scenes"))
	}

	rows := make([]storage.Scene, 0, len(spans))
	for i, span := range spans {
		rows = append(rows, storage.Scene{
			ID:      ids.Scene(videoID, i),
			VideoID: videoID,
			Idx:     i,
			TStart:  span.TStart,
			TEnd:    span.TEnd,
		})
	}

	if err := gw.BulkInsertScenes(ctx, rows); err != nil {
		return classifyGatewayErr("scenes: insert scenes", err)
	}
	return nil
}
