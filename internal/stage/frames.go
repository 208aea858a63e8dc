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

// dedupHammingThreshold is the maximum Hamming distance at which two frames
// are still considered duplicates (spec.md §4.D.4: accept only if distance
// to every already-accepted frame is strictly greater than 6).
const dedupHammingThreshold = 6

// selectCandidateScenes picks up to maxFrames scene indices out of n total
// scenes, always including the first and last, with the remaining slots
// spread as evenly as possible by index: selected[i] = round(i*(n-1)/(k-1))
// for i = 0..k-1, deduplicated while preserving ascending order.
func selectCandidateScenes(n, maxFrames int) []int {
	if n <= maxFrames {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}

	k := maxFrames
	if k <= 1 {
		return []int{0}
	}

	seen := make(map[int]bool, k)
	var out []int
	for i := 0; i < k; i++ {
		idx := roundDiv(i*(n-1), k-1)
		if !seen[idx] {
			seen[idx] = true
			out = append(out, idx)
		}
	}
	return out
}

// roundDiv computes round(a/b) for non-negative a, b using integer math.
func roundDiv(a, b int) int {
	if b == 0 {
		return 0
	}
	return (a + b/2) / b
}

type candidateFrame struct {
	sceneIdx int
	tFrame   float64
	path     string
	phash    string
	forced   bool
}

// Frames extracts and deduplicates frames for each selected scene, skipping
// if frame rows already exist for this video.
func Frames(ctx context.Context, gw storage.Gateway, dd datadir.Root, extractor media.FrameExtractor, hasher media.PerceptualHasher, maxFramesPerVideo int, videoID string) error {
	has, err := gw.HasFrames(ctx, videoID)
	if err != nil {
		return classifyGatewayErr("frames: check existing frames", err)
	}
	if has {
		return nil
	}

	scenes, err := gw.ScenesForVideo(ctx, videoID)
	if err != nil {
		return classifyGatewayErr("frames: load scenes", err)
	}
	if len(scenes) == 0 {
		return stageerr.Fatal(fmt.Errorf("frames: no scenes found for video %s", videoID))
	}

	selected := selectCandidateScenes(len(scenes), maxFramesPerVideo)
	firstSelected := selected[0]
	lastSelected := selected[len(selected)-1]

	candidates := make([]candidateFrame, 0, len(selected))
	for _, sceneIdx := range selected {
		scene := scenes[sceneIdx]
		midpoint := (scene.TStart + scene.TEnd) / 2.0
		outPath := dd.FramePath(videoID, sceneIdx)

		if err := extractor.ExtractFrame(ctx, dd.NormalizedPath(videoID), midpoint, outPath); err != nil {
			return stageerr.Retryable(fmt.Errorf("frames: extract frame for scene %d: %w", sceneIdx, err))
		}

		hash, err := hasher.Hash(outPath)
		if err != nil {
			return stageerr.Retryable(fmt.Errorf("frames: hash frame for scene %d: %w", sceneIdx, err))
		}

		candidates = append(candidates, candidateFrame{
			sceneIdx: sceneIdx,
			tFrame:   midpoint,
			path:     outPath,
			phash:    hash,
			forced:   sceneIdx == firstSelected || sceneIdx == lastSelected,
		})
	}

	accepted := dedupeCandidates(candidates)

	rows := make([]storage.Frame, 0, len(accepted))
	for i, c := range accepted {
		scene := scenes[c.sceneIdx]
		rows = append(rows, storage.Frame{
			ID:      ids.Frame(videoID, i),
			VideoID: videoID,
			SceneID: scene.ID,
			Idx:     i,
			TFrame:  c.tFrame,
			Path:    c.path,
			Phash:   c.phash,
		})
	}

	if err := gw.BulkInsertFrames(ctx, rows); err != nil {
		return classifyGatewayErr("frames: insert frames", err)
	}
	return nil
}

// dedupeCandidates iterates candidates in scene order, accepting a
// candidate if its hash is more than dedupHammingThreshold away from every
// already-accepted hash. Forced candidates (first/last selected scene) are
// always retained.
func dedupeCandidates(candidates []candidateFrame) []candidateFrame {
	var accepted []candidateFrame
	for _, c := range candidates {
		if c.forced {
			accepted = append(accepted, c)
			continue
		}

		keep := true
		for _, a := range accepted {
			if media.HammingDistance64(c.phash, a.phash) <= dedupHammingThreshold {
				keep = false
				break
			}
		}
		if keep {
			accepted = append(accepted, c)
		}
	}
	return accepted
}
