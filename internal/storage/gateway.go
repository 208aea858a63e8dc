// Package storage is the storage gateway (spec.md §4.B): a narrow, typed
// set of operations over a pooled connection to the relational store. It is
// the only part of the system that knows SQL.
package storage

import "context"

// ClaimedJob is the result of a successful ClaimNextJob.
type ClaimedJob struct {
	JobID   string
	VideoID string
}

// QueueStats is the read-only counters view for the health view (spec.md
// §4.G/§6 /stats).
type QueueStats struct {
	PendingJobs    int64 `json:"pending_jobs"`
	ProcessingJobs int64 `json:"processing_jobs"`
	DoneJobs       int64 `json:"done_jobs"`
	FailedJobs     int64 `json:"failed_jobs"`
	ReadyVideos    int64 `json:"ready_videos"`
}

// QueuedJob is one row of the health view's /jobs/peek projection.
type QueuedJob struct {
	JobID     string `json:"job_id"`
	VideoID   string `json:"video_id"`
	Attempts  int    `json:"attempts"`
	CreatedAt string `json:"created_at"`
}

// Gateway is the capability interface Design Note §9 calls for in place of
// the source's duck-typed storage adapter. Concrete implementations
// (relational, or a fake for tests) satisfy this interface; every other
// package in the core depends on it, never on *gorm.DB directly.
type Gateway interface {
	// ClaimNextJob atomically selects one pending job in FIFO order,
	// skipping rows locked by concurrent workers, transitions it to
	// processing, and increments attempts. Returns (nil, nil) when the
	// queue is empty.
	ClaimNextJob(ctx context.Context, claimedBy string) (*ClaimedJob, error)

	// FailJob sets status=failed and stores a truncated error message.
	FailJob(ctx context.Context, jobID string, message string) error

	// RequeueJob resets a job to pending after a retryable failure,
	// preserving its attempts counter and recording the last error.
	RequeueJob(ctx context.Context, jobID string, message string) error

	// GetJobAttempts returns the current attempts counter for a job, used
	// by the job controller to decide between requeue and fail.
	GetJobAttempts(ctx context.Context, jobID string) (int, error)

	// CompleteJob sets status=done and marks the parent video ready.
	CompleteJob(ctx context.Context, jobID, videoID string) error

	// FetchVideoPath returns original_path, or ErrNotFound.
	FetchVideoPath(ctx context.Context, videoID string) (string, error)

	// GetVideo returns the full video row, or ErrNotFound. Stages use it to
	// read normalized_path/duration_sec for their skip clauses.
	GetVideo(ctx context.Context, videoID string) (*Video, error)

	// UpdateVideoNormalized records stage-1 output.
	UpdateVideoNormalized(ctx context.Context, videoID, normalizedPath string, durationSec float64) error

	// HasScenes reports whether any scene rows exist for the video, used by
	// the Scenes stage's skip clause.
	HasScenes(ctx context.Context, videoID string) (bool, error)
	BulkInsertScenes(ctx context.Context, rows []Scene) error
	ScenesForVideo(ctx context.Context, videoID string) ([]Scene, error)

	// HasFrames reports whether any frame rows exist for the video.
	HasFrames(ctx context.Context, videoID string) (bool, error)
	BulkInsertFrames(ctx context.Context, rows []Frame) error
	FramesWithoutCaption(ctx context.Context, videoID string) ([]Frame, error)

	// HasTranscriptSegments reports whether any segment rows exist for the
	// video, used by the Transcribe stage's skip clause.
	HasTranscriptSegments(ctx context.Context, videoID string) (bool, error)
	BulkInsertSegments(ctx context.Context, rows []TranscriptSegment) error
	SegmentsWithoutEmbedding(ctx context.Context, videoID string) ([]TranscriptSegment, error)
	UpdateSegmentEmbedding(ctx context.Context, id string, vector []float32) error

	BulkInsertCaptions(ctx context.Context, rows []FrameCaption) error
	CaptionsWithoutEmbedding(ctx context.Context, videoID string) ([]FrameCaption, error)
	UpdateCaptionEmbedding(ctx context.Context, id string, vector []float32) error

	// PeekQueue and Stats back the read-only health view.
	PeekQueue(ctx context.Context, limit int) ([]QueuedJob, error)
	Stats(ctx context.Context) (QueueStats, error)

	// Ping verifies connectivity for the liveness health-check.
	Ping(ctx context.Context) error
}
