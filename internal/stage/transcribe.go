package stage

import (
	"context"
	"fmt"
	"time"

	"github.com/arcanous/video-qa-worker/internal/datadir"
	"github.com/arcanous/video-qa-worker/internal/ids"
	"github.com/arcanous/video-qa-worker/internal/media"
	"github.com/arcanous/video-qa-worker/internal/stageerr"
	"github.com/arcanous/video-qa-worker/internal/storage"
	"github.com/arcanous/video-qa-worker/internal/subtitle"
)

// Transcribe converts the normalized audio track into transcript segments,
// skipping if any already exist for this video, and writes the SRT
// sidecar alongside them.
func Transcribe(ctx context.Context, gw storage.Gateway, dd datadir.Root, transcriber media.Transcriber, videoID string) error {
	has, err := gw.HasTranscriptSegments(ctx, videoID)
	if err != nil {
		return classifyGatewayErr("transcribe: check existing segments", err)
	}
	if has {
		return nil
	}

	audioPath := dd.AudioPath(videoID)
	spans, err := transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		return stageerr.Retryable(fmt.Errorf("transcribe: %w", err))
	}

	rows := make([]storage.TranscriptSegment, 0, len(spans))
	entries := make([]subtitle.Entry, 0, len(spans))
	for i, span := range spans {
		rows = append(rows, storage.TranscriptSegment{
			ID:      ids.Segment(videoID, i),
			VideoID: videoID,
			TStart:  span.TStart,
			TEnd:    span.TEnd,
			Text:    span.Text,
		})
		entries = append(entries, subtitle.Entry{
			Start: secondsToDuration(span.TStart),
			End:   secondsToDuration(span.TEnd),
			Text:  span.Text,
		})
	}

	if err := gw.BulkInsertSegments(ctx, rows); err != nil {
		return classifyGatewayErr("transcribe: insert segments", err)
	}

	if err := subtitle.WriteFile(dd.SubtitlePath(videoID), entries); err != nil {
		return stageerr.Fatal(fmt.Errorf("transcribe: write subtitle sidecar: %w", err))
	}
	return nil
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func classifyGatewayErr(context string, err error) error {
	if storage.IsTransient(err) {
		return stageerr.Retryable(fmt.Errorf("%s: %w", context, err))
	}
	return stageerr.Fatal(fmt.Errorf("%s: %w", context, err))
}
