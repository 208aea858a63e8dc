package stage

import (
	"context"
	"fmt"

	"github.com/arcanous/video-qa-worker/internal/media"
	"github.com/arcanous/video-qa-worker/internal/stageerr"
	"github.com/arcanous/video-qa-worker/internal/storage"
)

// embeddingBatchSize is the maximum number of strings sent to Embed in one
// call (spec.md §4.D.6).
const embeddingBatchSize = 100

// Embeddings fills the null embedding columns of transcript segments and
// frame captions for this video, batching requests in groups of at most
// embeddingBatchSize.
func Embeddings(ctx context.Context, gw storage.Gateway, embedder media.Embedder, videoID string) error {
	segments, err := gw.SegmentsWithoutEmbedding(ctx, videoID)
	if err != nil {
		return classifyGatewayErr("embeddings: load segments without embedding", err)
	}
	if err := embedSegments(ctx, gw, embedder, segments); err != nil {
		return err
	}

	captions, err := gw.CaptionsWithoutEmbedding(ctx, videoID)
	if err != nil {
		return classifyGatewayErr("embeddings: load captions without embedding", err)
	}
	return embedCaptions(ctx, gw, embedder, captions)
}

func embedSegments(ctx context.Context, gw storage.Gateway, embedder media.Embedder, segments []storage.TranscriptSegment) error {
	for start := 0; start < len(segments); start += embeddingBatchSize {
		end := start + embeddingBatchSize
		if end > len(segments) {
			end = len(segments)
		}
		batch := segments[start:end]

		texts := make([]string, len(batch))
		for i, s := range batch {
			texts[i] = s.Text
		}

		vectors, err := embedder.Embed(ctx, texts)
		if err != nil {
			return stageerr.Retryable(fmt.Errorf("embeddings: embed segment batch: %w", err))
		}

		for i, s := range batch {
			if i >= len(vectors) || vectors[i] == nil {
				continue
			}
			if err := gw.UpdateSegmentEmbedding(ctx, s.ID, vectors[i]); err != nil {
				return classifyGatewayErr("embeddings: update segment embedding", err)
			}
		}
	}
	return nil
}

func embedCaptions(ctx context.Context, gw storage.Gateway, embedder media.Embedder, captions []storage.FrameCaption) error {
	for start := 0; start < len(captions); start += embeddingBatchSize {
		end := start + embeddingBatchSize
		if end > len(captions) {
			end = len(captions)
		}
		batch := captions[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Caption
		}

		vectors, err := embedder.Embed(ctx, texts)
		if err != nil {
			return stageerr.Retryable(fmt.Errorf("embeddings: embed caption batch: %w", err))
		}

		for i, c := range batch {
			if i >= len(vectors) || vectors[i] == nil {
				continue
			}
			if err := gw.UpdateCaptionEmbedding(ctx, c.ID, vectors[i]); err != nil {
				return classifyGatewayErr("embeddings: update caption embedding", err)
			}
		}
	}
	return nil
}
