// Package datadir resolves the on-disk layout under the worker's data root
// (spec.md §6 filesystem layout), grounded on the path-joining and
// directory-creation style of byron-the-bulb-cinema-chat's
// internal/scenedetect/scenedetect.go ExtractKeyframes.
package datadir

import (
	"fmt"
	"os"
	"path/filepath"
)

// Root is the data directory the worker reads from and writes under.
type Root struct {
	base string
}

// New returns a Root rooted at base (config.Config.DataDir).
func New(base string) Root {
	return Root{base: base}
}

// Uploads is where the external uploader places original media.
func (r Root) Uploads() string {
	return filepath.Join(r.base, "uploads")
}

// Resolve joins a video's stored original_path (already relative to the
// data root) against the configured root.
func (r Root) Resolve(relativePath string) string {
	return filepath.Join(r.base, relativePath)
}

// ProcessedDir is the per-video working directory for derived artifacts.
func (r Root) ProcessedDir(videoID string) string {
	return filepath.Join(r.base, "processed", videoID)
}

// NormalizedPath is the stage-1 transcode output.
func (r Root) NormalizedPath(videoID string) string {
	return filepath.Join(r.ProcessedDir(videoID), "normalized.mp4")
}

// AudioPath is the extracted mono PCM track handed to the transcription
// capability.
func (r Root) AudioPath(videoID string) string {
	return filepath.Join(r.ProcessedDir(videoID), "audio.wav")
}

// FramesDir is the per-video directory of extracted scene keyframes.
func (r Root) FramesDir(videoID string) string {
	return filepath.Join(r.base, "frames", videoID)
}

// FramePath names the keyframe file for one scene index.
func (r Root) FramePath(videoID string, sceneIdx int) string {
	return filepath.Join(r.FramesDir(videoID), fmt.Sprintf("scene_%03d.jpg", sceneIdx))
}

// SubsDir is where SRT sidecars are written.
func (r Root) SubsDir() string {
	return filepath.Join(r.base, "subs")
}

// SubtitlePath names the SRT sidecar for a video.
func (r Root) SubtitlePath(videoID string) string {
	return filepath.Join(r.SubsDir(), videoID+".srt")
}

// EnsureDirs creates every directory the pipeline writes into, so stages
// never need their own os.MkdirAll calls for top-level directories.
func (r Root) EnsureDirs() error {
	dirs := []string{r.Uploads(), filepath.Join(r.base, "processed"), filepath.Join(r.base, "frames"), r.SubsDir()}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("datadir: failed to create %s: %w", d, err)
		}
	}
	return nil
}

// EnsureVideoDirs creates the per-video directories (processed/{id},
// frames/{id}) used by a given video's stages.
func (r Root) EnsureVideoDirs(videoID string) error {
	dirs := []string{r.ProcessedDir(videoID), r.FramesDir(videoID)}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("datadir: failed to create %s: %w", d, err)
		}
	}
	return nil
}
