// Package media defines the abstract capability interfaces the pipeline
// stages consume (spec.md §4.C): transcode, scene-detect, frame-extract,
// perceptual-hash, transcribe, vision-caption, embed. Concrete adapters in
// this package satisfy them over ffmpeg, a PySceneDetect subprocess, and an
// OpenAI-compatible HTTP API; stages never depend on a concrete adapter.
package media

import "context"

// SceneSpan is one detected scene boundary, a half-open time interval.
type SceneSpan struct {
	TStart float64
	TEnd   float64
}

// TranscriptSpan is one contiguous utterance recognized from audio.
type TranscriptSpan struct {
	TStart float64
	TEnd   float64
	Text   string
}

// Control is one detected on-screen UI control.
type Control struct {
	Type     string `json:"type"`
	Label    string `json:"label"`
	Position string `json:"position"`
}

// TextOnScreen is one detected piece of on-screen text.
type TextOnScreen struct {
	Text     string `json:"text"`
	Position string `json:"position"`
}

// VisionResult is the structured payload a VisionCaptioner returns,
// conforming to the §6 schema.
type VisionResult struct {
	Caption      string         `json:"caption" validate:"required"`
	Controls     []Control      `json:"controls" validate:"dive"`
	TextOnScreen []TextOnScreen `json:"text_on_screen" validate:"dive"`
}

// Transcoder produces a normalized 720p30 video and a 16kHz mono audio
// track from an arbitrary input, reporting the resulting duration.
type Transcoder interface {
	Transcode(ctx context.Context, inputPath, normalizedPath, audioPath string) (durationSec float64, err error)
}

// SceneDetector splits a video into adjacent half-open scene intervals.
type SceneDetector interface {
	DetectScenes(ctx context.Context, videoPath string) ([]SceneSpan, error)
}

// FrameExtractor writes a single JPEG still at the requested timestamp.
type FrameExtractor interface {
	ExtractFrame(ctx context.Context, videoPath string, timestampSec float64, outputPath string) error
}

// PerceptualHasher computes a 64-bit perceptual hash of an image, encoded
// as a hex string, such that Hamming distance correlates with perceptual
// similarity.
type PerceptualHasher interface {
	Hash(imagePath string) (string, error)
}

// Transcriber converts an audio track into an ordered list of utterances.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) ([]TranscriptSpan, error)
}

// VisionCaptioner analyzes a single frame image.
type VisionCaptioner interface {
	Caption(ctx context.Context, imagePath string) (VisionResult, error)
}

// Embedder converts a batch of strings into fixed-dimension vectors,
// preserving input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
