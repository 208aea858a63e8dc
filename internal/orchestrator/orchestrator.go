// Package orchestrator runs the six pipeline stages in fixed order for one
// (job_id, video_id) pair and translates per-stage failures into a
// job-level Outcome (spec.md §4.E).
package orchestrator

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/arcanous/video-qa-worker/internal/datadir"
	"github.com/arcanous/video-qa-worker/internal/logging"
	"github.com/arcanous/video-qa-worker/internal/media"
	"github.com/arcanous/video-qa-worker/internal/stage"
	"github.com/arcanous/video-qa-worker/internal/stageerr"
	"github.com/arcanous/video-qa-worker/internal/storage"
)

// Outcome is the job-level result the job controller acts on.
type Outcome int

const (
	// OutcomeDone means every stage completed successfully.
	OutcomeDone Outcome = iota
	// OutcomeRetryable means a stage failed transiently; the controller
	// should requeue the job if attempts remain.
	OutcomeRetryable
	// OutcomeFatal means a stage failed permanently; the controller should
	// fail the job outright.
	OutcomeFatal
)

// StageToggles controls which optional stages run, mirroring
// enable_transcription/enable_vision_analysis/enable_embeddings (spec.md
// §6 configuration).
type StageToggles struct {
	Transcription bool
	Vision        bool
	Embeddings    bool
}

// Collaborators bundles everything a stage needs, constructed once at
// process start (Design Note §9: "global client objects -> injected
// collaborators") and threaded through Run explicitly.
type Collaborators struct {
	Gateway          storage.Gateway
	DataDir          datadir.Root
	Transcoder       media.Transcoder
	SceneDetector    media.SceneDetector
	FrameExtractor   media.FrameExtractor
	PerceptualHasher media.PerceptualHasher
	Transcriber      media.Transcriber
	VisionCaptioner  media.VisionCaptioner
	Embedder         media.Embedder

	MaxFramesPerVideo   int
	VisionMaxConcurrent int
	Toggles             StageToggles
}

// Run drives videoID through NORMALIZE -> TRANSCRIBE -> SCENES -> FRAMES ->
// VISION -> EMBEDDINGS, logging a milestone after each stage, and returns
// the job-level outcome together with the triggering stage error (nil on
// OutcomeDone) so the caller can record what actually failed.
func Run(ctx context.Context, c Collaborators, log *logrus.Entry, videoID string) (Outcome, error) {
	if err := stage.Normalize(ctx, c.Gateway, c.DataDir, c.Transcoder, videoID); err != nil {
		return outcomeFor(err), err
	}
	logging.Emit(log, logging.MilestoneNormalized)

	if c.Toggles.Transcription {
		if err := stage.Transcribe(ctx, c.Gateway, c.DataDir, c.Transcriber, videoID); err != nil {
			return outcomeFor(err), err
		}
	}
	logging.Emit(log, logging.MilestoneTranscribed)

	if err := stage.Scenes(ctx, c.Gateway, c.DataDir, c.SceneDetector, videoID); err != nil {
		return outcomeFor(err), err
	}
	logging.Emit(log, logging.MilestoneScenes)

	if err := stage.Frames(ctx, c.Gateway, c.DataDir, c.FrameExtractor, c.PerceptualHasher, c.MaxFramesPerVideo, videoID); err != nil {
		return outcomeFor(err), err
	}
	logging.Emit(log, logging.MilestoneFrames)

	if c.Toggles.Vision {
		if err := stage.Vision(ctx, c.Gateway, c.VisionCaptioner, c.VisionMaxConcurrent, log, videoID); err != nil {
			return outcomeFor(err), err
		}
	}
	logging.Emit(log, logging.MilestoneVision)

	if c.Toggles.Embeddings {
		if err := stage.Embeddings(ctx, c.Gateway, c.Embedder, videoID); err != nil {
			return outcomeFor(err), err
		}
	}
	logging.Emit(log, logging.MilestoneEmbeddings)

	return OutcomeDone, nil
}

func outcomeFor(err error) Outcome {
	if stageerr.IsFatal(err) {
		return OutcomeFatal
	}
	return OutcomeRetryable
}
