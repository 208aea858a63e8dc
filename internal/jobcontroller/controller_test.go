package jobcontroller

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcanous/video-qa-worker/internal/datadir"
	"github.com/arcanous/video-qa-worker/internal/media"
	"github.com/arcanous/video-qa-worker/internal/orchestrator"
	"github.com/arcanous/video-qa-worker/internal/storage"
)

type noopTranscoder struct{}

func (noopTranscoder) Transcode(ctx context.Context, inputPath, normalizedPath, audioPath string) (float64, error) {
	return 1, nil
}

type noopSceneDetector struct{}

func (noopSceneDetector) DetectScenes(ctx context.Context, videoPath string) ([]media.SceneSpan, error) {
	return []media.SceneSpan{{TStart: 0, TEnd: 1}}, nil
}

type noopFrameExtractor struct{}

func (noopFrameExtractor) ExtractFrame(ctx context.Context, videoPath string, timestampSec float64, outputPath string) error {
	return nil
}

type noopHasher struct{}

func (noopHasher) Hash(imagePath string) (string, error) { return "0000000000000000", nil }

// fakeGateway is a minimal in-memory storage.Gateway for exercising the
// claim loop and retry/fail bookkeeping in isolation from a real database.
type fakeGateway struct {
	jobs     []*fakeJob
	attempts map[string]int
	failed   map[string]string
	requeued map[string]string
	done     map[string]bool
	scenes   []storage.Scene

	claimErr error
}

type fakeJob struct {
	jobID, videoID string
	claimed        bool
}

func newFakeGateway(videoIDs ...string) *fakeGateway {
	g := &fakeGateway{
		attempts: map[string]int{},
		failed:   map[string]string{},
		requeued: map[string]string{},
		done:     map[string]bool{},
	}
	for _, id := range videoIDs {
		g.jobs = append(g.jobs, &fakeJob{jobID: "job_" + id, videoID: id})
	}
	return g
}

func (g *fakeGateway) ClaimNextJob(ctx context.Context, claimedBy string) (*storage.ClaimedJob, error) {
	if g.claimErr != nil {
		return nil, g.claimErr
	}
	for _, j := range g.jobs {
		if !j.claimed {
			j.claimed = true
			g.attempts[j.jobID]++
			return &storage.ClaimedJob{JobID: j.jobID, VideoID: j.videoID}, nil
		}
	}
	return nil, nil
}

func (g *fakeGateway) FailJob(ctx context.Context, jobID, message string) error {
	g.failed[jobID] = message
	return nil
}

func (g *fakeGateway) RequeueJob(ctx context.Context, jobID, message string) error {
	g.requeued[jobID] = message
	for _, j := range g.jobs {
		if j.jobID == jobID {
			j.claimed = false
		}
	}
	return nil
}

func (g *fakeGateway) GetJobAttempts(ctx context.Context, jobID string) (int, error) {
	return g.attempts[jobID], nil
}

func (g *fakeGateway) CompleteJob(ctx context.Context, jobID, videoID string) error {
	g.done[jobID] = true
	return nil
}

func (g *fakeGateway) FetchVideoPath(ctx context.Context, videoID string) (string, error) {
	return "uploads/" + videoID + ".mp4", nil
}

func (g *fakeGateway) GetVideo(ctx context.Context, videoID string) (*storage.Video, error) {
	return &storage.Video{ID: videoID, OriginalPath: "uploads/" + videoID + ".mp4"}, nil
}

func (g *fakeGateway) UpdateVideoNormalized(ctx context.Context, videoID, normalizedPath string, durationSec float64) error {
	return nil
}
func (g *fakeGateway) HasScenes(ctx context.Context, videoID string) (bool, error) { return false, nil }
func (g *fakeGateway) BulkInsertScenes(ctx context.Context, rows []storage.Scene) error {
	g.scenes = append(g.scenes, rows...)
	return nil
}
func (g *fakeGateway) ScenesForVideo(ctx context.Context, videoID string) ([]storage.Scene, error) {
	return g.scenes, nil
}
func (g *fakeGateway) HasFrames(ctx context.Context, videoID string) (bool, error) { return false, nil }
func (g *fakeGateway) BulkInsertFrames(ctx context.Context, rows []storage.Frame) error {
	return nil
}
func (g *fakeGateway) FramesWithoutCaption(ctx context.Context, videoID string) ([]storage.Frame, error) {
	return nil, nil
}
func (g *fakeGateway) HasTranscriptSegments(ctx context.Context, videoID string) (bool, error) {
	return false, nil
}
func (g *fakeGateway) BulkInsertSegments(ctx context.Context, rows []storage.TranscriptSegment) error {
	return nil
}
func (g *fakeGateway) SegmentsWithoutEmbedding(ctx context.Context, videoID string) ([]storage.TranscriptSegment, error) {
	return nil, nil
}
func (g *fakeGateway) UpdateSegmentEmbedding(ctx context.Context, id string, vector []float32) error {
	return nil
}
func (g *fakeGateway) BulkInsertCaptions(ctx context.Context, rows []storage.FrameCaption) error {
	return nil
}
func (g *fakeGateway) CaptionsWithoutEmbedding(ctx context.Context, videoID string) ([]storage.FrameCaption, error) {
	return nil, nil
}
func (g *fakeGateway) UpdateCaptionEmbedding(ctx context.Context, id string, vector []float32) error {
	return nil
}
func (g *fakeGateway) PeekQueue(ctx context.Context, limit int) ([]storage.QueuedJob, error) {
	return nil, nil
}
func (g *fakeGateway) Stats(ctx context.Context) (storage.QueueStats, error) {
	return storage.QueueStats{}, nil
}
func (g *fakeGateway) Ping(ctx context.Context) error { return nil }

func testCollaborators(gw storage.Gateway, base string) orchestrator.Collaborators {
	dd := datadir.New(base)
	_ = dd.EnsureDirs()
	return orchestrator.Collaborators{
		Gateway:          gw,
		DataDir:          dd,
		Transcoder:       noopTranscoder{},
		SceneDetector:    noopSceneDetector{},
		FrameExtractor:   noopFrameExtractor{},
		PerceptualHasher: noopHasher{},
	}
}

func TestController_ClaimsAndCompletesHappyPathJob(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "uploads"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "uploads", "vid_1.mp4"), []byte("x"), 0o644))

	gw := newFakeGateway("vid_1")
	c := New(gw, testCollaborators(gw, base), Config{PollInterval: 5 * time.Millisecond, MaxAttempts: 3}, logrus.New())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return gw.done["job_vid_1"] }, 500*time.Millisecond, 5*time.Millisecond)
	cancel()
	<-done
}

func TestController_FatalStageFailurePersistsTheActualStageError(t *testing.T) {
	base := t.TempDir()
	// No uploads/vid_1.mp4 written, so Normalize fails fatally on the
	// missing input file instead of completing.
	gw := newFakeGateway("vid_1")
	c := New(gw, testCollaborators(gw, base), Config{PollInterval: 5 * time.Millisecond, MaxAttempts: 3}, logrus.New())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return gw.failed["job_vid_1"] != "" }, 500*time.Millisecond, 5*time.Millisecond)
	cancel()
	<-done

	assert.Contains(t, gw.failed["job_vid_1"], "normalize: input file missing")
	assert.NotEqual(t, "fatal stage failure", gw.failed["job_vid_1"])
}

func TestController_EmptyQueueBacksOffAndStopsOnCancel(t *testing.T) {
	gw := newFakeGateway()
	c := New(gw, testCollaborators(gw, t.TempDir()), Config{PollInterval: 5 * time.Millisecond, MaxAttempts: 3}, logrus.New())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.Run(ctx)
	assert.NoError(t, err)
}

func TestController_RetryableFailureRequeuesUnderMaxAttempts(t *testing.T) {
	base := t.TempDir()
	gw := newFakeGateway("vid_1")
	entry := logrus.NewEntry(logrus.New())

	c := &Controller{gw: gw, collaborators: testCollaborators(gw, base), cfg: Config{MaxAttempts: 3}, log: logrus.New()}
	gw.attempts["job_vid_1"] = 1

	stageErr := errors.New("normalize: ffmpeg exited with status 1")
	c.handleRetryable(context.Background(), &storage.ClaimedJob{JobID: "job_vid_1", VideoID: "vid_1"}, entry, stageErr)

	assert.Equal(t, "normalize: ffmpeg exited with status 1", gw.requeued["job_vid_1"])
	assert.NotContains(t, gw.failed, "job_vid_1")
}

func TestController_RetryableFailureFailsJobAtMaxAttempts(t *testing.T) {
	base := t.TempDir()
	gw := newFakeGateway("vid_1")
	entry := logrus.NewEntry(logrus.New())

	c := &Controller{gw: gw, collaborators: testCollaborators(gw, base), cfg: Config{MaxAttempts: 3}, log: logrus.New()}
	gw.attempts["job_vid_1"] = 3

	stageErr := errors.New("transcribe: openai: rate limited")
	c.handleRetryable(context.Background(), &storage.ClaimedJob{JobID: "job_vid_1", VideoID: "vid_1"}, entry, stageErr)

	assert.Equal(t, "transcribe: openai: rate limited", gw.failed["job_vid_1"])
	assert.NotContains(t, gw.requeued, "job_vid_1")
}

func TestNextBackoff_DoublesAndCaps(t *testing.T) {
	d := 1 * time.Second
	d = nextBackoff(d)
	assert.Equal(t, 2*time.Second, d)
	d = nextBackoff(maxBackoff)
	assert.Equal(t, maxBackoff, d)
}

func TestController_RunReturnsPromptlyOnImmediateCancel(t *testing.T) {
	gw := newFakeGateway("vid_1")
	c := New(gw, testCollaborators(gw, t.TempDir()), Config{PollInterval: 50 * time.Millisecond}, logrus.New())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := c.Run(ctx)
	assert.NoError(t, err)
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}
