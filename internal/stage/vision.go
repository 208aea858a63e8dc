package stage

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/arcanous/video-qa-worker/internal/ids"
	"github.com/arcanous/video-qa-worker/internal/media"
	"github.com/arcanous/video-qa-worker/internal/storage"
	"github.com/sirupsen/logrus"
)

// visionPerFrameRetryLimit bounds local retries of a single frame's vision
// call before it is skipped with a warning (spec.md §4.D.5/§7 "per-item
// soft" failure).
const visionPerFrameRetryLimit = 2

// Vision captions every frame lacking one, bounded to maxConcurrent
// in-flight calls via a counting semaphore — the pattern
// other_examples' Bobarinn-video-genie worker.go implements as a
// channel-based withSemaphore helper, here built on
// golang.org/x/sync/semaphore.Weighted instead of a bespoke channel.
// Completion order is unconstrained; persisted order is by frame index.
func Vision(ctx context.Context, gw storage.Gateway, captioner media.VisionCaptioner, maxConcurrent int, log *logrus.Entry, videoID string) error {
	frames, err := gw.FramesWithoutCaption(ctx, videoID)
	if err != nil {
		return classifyGatewayErr("vision: load frames without caption", err)
	}
	if len(frames) == 0 {
		return nil
	}

	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	sem := semaphore.NewWeighted(int64(maxConcurrent))

	results := make([]*storage.FrameCaption, len(frames))
	var wg sync.WaitGroup

	for i, frame := range frames {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context cancelled while waiting for a slot: stop dispatching
			// new work and let already-dispatched calls finish.
			break
		}
		wg.Add(1)
		go func(i int, frame storage.Frame) {
			defer wg.Done()
			defer sem.Release(1)

			caption, ok := captionFrameWithRetry(ctx, captioner, frame, log)
			if ok {
				results[i] = caption
			}
		}(i, frame)
	}
	wg.Wait()

	missing := 0
	for _, r := range results {
		if r == nil {
			missing++
		}
	}
	// Fallback: if every concurrent dispatch produced nothing (suggesting
	// the concurrent path itself is failing, not individual frames), retry
	// sequentially before giving up on the remaining frames.
	if missing == len(frames) {
		for i, frame := range frames {
			caption, ok := captionFrameWithRetry(ctx, captioner, frame, log)
			if ok {
				results[i] = caption
			}
		}
	}

	rows := make([]storage.FrameCaption, 0, len(results))
	for _, r := range results {
		if r != nil {
			rows = append(rows, *r)
		}
	}
	if err := gw.BulkInsertCaptions(ctx, rows); err != nil {
		return classifyGatewayErr("vision: insert captions", err)
	}
	return nil
}

func captionFrameWithRetry(ctx context.Context, captioner media.VisionCaptioner, frame storage.Frame, log *logrus.Entry) (*storage.FrameCaption, bool) {
	var lastErr error
	for attempt := 0; attempt <= visionPerFrameRetryLimit; attempt++ {
		result, err := captioner.Caption(ctx, frame.Path)
		if err == nil {
			controls := make([]storage.Control, 0, len(result.Controls))
			for _, c := range result.Controls {
				controls = append(controls, storage.Control{Type: c.Type, Label: c.Label, Position: c.Position})
			}
			textOnScreen := make([]storage.TextOnScreen, 0, len(result.TextOnScreen))
			for _, t := range result.TextOnScreen {
				textOnScreen = append(textOnScreen, storage.TextOnScreen{Text: t.Text, Position: t.Position})
			}
			return &storage.FrameCaption{
				ID:      ids.Caption(frame.ID),
				FrameID: frame.ID,
				Caption: result.Caption,
				Entities: storage.Entities{
					Controls:     controls,
					TextOnScreen: textOnScreen,
				},
			}, true
		}
		lastErr = err
	}

	if log != nil {
		log.WithField("frame_id", frame.ID).Warnf("vision: skipping frame after %d failed attempts: %v", visionPerFrameRetryLimit+1, lastErr)
	}
	return nil, false
}
