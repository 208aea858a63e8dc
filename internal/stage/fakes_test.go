package stage

import (
	"context"

	"github.com/pgvector/pgvector-go"

	"github.com/arcanous/video-qa-worker/internal/media"
	"github.com/arcanous/video-qa-worker/internal/storage"
)

// fakeGateway is an in-memory storage.Gateway used across stage tests,
// grounded on the hand-written fake style maauso-infinitetalk-api's
// internal/job package tests use in place of a real database.
type fakeGateway struct {
	videos   map[string]*storage.Video
	scenes   map[string][]storage.Scene
	frames   map[string][]storage.Frame
	segments map[string][]storage.TranscriptSegment
	captions map[string][]storage.FrameCaption
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		videos:   map[string]*storage.Video{},
		scenes:   map[string][]storage.Scene{},
		frames:   map[string][]storage.Frame{},
		segments: map[string][]storage.TranscriptSegment{},
		captions: map[string][]storage.FrameCaption{},
	}
}

func (f *fakeGateway) ClaimNextJob(ctx context.Context, claimedBy string) (*storage.ClaimedJob, error) {
	return nil, nil
}
func (f *fakeGateway) FailJob(ctx context.Context, jobID string, message string) error    { return nil }
func (f *fakeGateway) RequeueJob(ctx context.Context, jobID string, message string) error { return nil }
func (f *fakeGateway) GetJobAttempts(ctx context.Context, jobID string) (int, error)       { return 0, nil }
func (f *fakeGateway) CompleteJob(ctx context.Context, jobID, videoID string) error        { return nil }

func (f *fakeGateway) FetchVideoPath(ctx context.Context, videoID string) (string, error) {
	v, ok := f.videos[videoID]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v.OriginalPath, nil
}

func (f *fakeGateway) GetVideo(ctx context.Context, videoID string) (*storage.Video, error) {
	v, ok := f.videos[videoID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return v, nil
}

func (f *fakeGateway) UpdateVideoNormalized(ctx context.Context, videoID, normalizedPath string, durationSec float64) error {
	v := f.videos[videoID]
	v.NormalizedPath = &normalizedPath
	v.DurationSec = &durationSec
	return nil
}

func (f *fakeGateway) HasScenes(ctx context.Context, videoID string) (bool, error) {
	return len(f.scenes[videoID]) > 0, nil
}
func (f *fakeGateway) BulkInsertScenes(ctx context.Context, rows []storage.Scene) error {
	f.scenes[rows[0].VideoID] = append(f.scenes[rows[0].VideoID], rows...)
	return nil
}
func (f *fakeGateway) ScenesForVideo(ctx context.Context, videoID string) ([]storage.Scene, error) {
	return f.scenes[videoID], nil
}

func (f *fakeGateway) HasFrames(ctx context.Context, videoID string) (bool, error) {
	return len(f.frames[videoID]) > 0, nil
}
func (f *fakeGateway) BulkInsertFrames(ctx context.Context, rows []storage.Frame) error {
	if len(rows) == 0 {
		return nil
	}
	f.frames[rows[0].VideoID] = append(f.frames[rows[0].VideoID], rows...)
	return nil
}
func (f *fakeGateway) FramesWithoutCaption(ctx context.Context, videoID string) ([]storage.Frame, error) {
	captioned := map[string]bool{}
	for _, c := range f.captions[videoID] {
		captioned[c.FrameID] = true
	}
	var out []storage.Frame
	for _, fr := range f.frames[videoID] {
		if !captioned[fr.ID] {
			out = append(out, fr)
		}
	}
	return out, nil
}

func (f *fakeGateway) HasTranscriptSegments(ctx context.Context, videoID string) (bool, error) {
	return len(f.segments[videoID]) > 0, nil
}
func (f *fakeGateway) BulkInsertSegments(ctx context.Context, rows []storage.TranscriptSegment) error {
	if len(rows) == 0 {
		return nil
	}
	f.segments[rows[0].VideoID] = append(f.segments[rows[0].VideoID], rows...)
	return nil
}
func (f *fakeGateway) SegmentsWithoutEmbedding(ctx context.Context, videoID string) ([]storage.TranscriptSegment, error) {
	var out []storage.TranscriptSegment
	for _, s := range f.segments[videoID] {
		if s.Embedding == nil {
			out = append(out, s)
		}
	}
	return out, nil
}
func (f *fakeGateway) UpdateSegmentEmbedding(ctx context.Context, id string, vector []float32) error {
	for videoID, segs := range f.segments {
		for i := range segs {
			if segs[i].ID == id {
				f.segments[videoID][i].Embedding = vectorPtr(vector)
				return nil
			}
		}
	}
	return storage.ErrNotFound
}

func (f *fakeGateway) BulkInsertCaptions(ctx context.Context, rows []storage.FrameCaption) error {
	if len(rows) == 0 {
		return nil
	}
	videoID := frameVideoID(f, rows[0].FrameID)
	f.captions[videoID] = append(f.captions[videoID], rows...)
	return nil
}
func (f *fakeGateway) CaptionsWithoutEmbedding(ctx context.Context, videoID string) ([]storage.FrameCaption, error) {
	var out []storage.FrameCaption
	for _, c := range f.captions[videoID] {
		if c.Embedding == nil {
			out = append(out, c)
		}
	}
	return out, nil
}
func (f *fakeGateway) UpdateCaptionEmbedding(ctx context.Context, id string, vector []float32) error {
	for videoID, caps := range f.captions {
		for i := range caps {
			if caps[i].ID == id {
				f.captions[videoID][i].Embedding = vectorPtr(vector)
				return nil
			}
		}
	}
	return storage.ErrNotFound
}

func (f *fakeGateway) PeekQueue(ctx context.Context, limit int) ([]storage.QueuedJob, error) {
	return nil, nil
}
func (f *fakeGateway) Stats(ctx context.Context) (storage.QueueStats, error) {
	return storage.QueueStats{}, nil
}
func (f *fakeGateway) Ping(ctx context.Context) error { return nil }

func frameVideoID(f *fakeGateway, frameID string) string {
	for videoID, frames := range f.frames {
		for _, fr := range frames {
			if fr.ID == frameID {
				return videoID
			}
		}
	}
	return ""
}

func vectorPtr(v []float32) *pgvector.Vector {
	vec := pgvector.NewVector(v)
	return &vec
}

// fakeSceneDetector returns a fixed list of spans.
type fakeSceneDetector struct {
	spans []media.SceneSpan
	err   error
}

func (d *fakeSceneDetector) DetectScenes(ctx context.Context, videoPath string) ([]media.SceneSpan, error) {
	return d.spans, d.err
}

// fakeTranscriber returns a fixed list of spans.
type fakeTranscriber struct {
	spans []media.TranscriptSpan
	err   error
}

func (t *fakeTranscriber) Transcribe(ctx context.Context, audioPath string) ([]media.TranscriptSpan, error) {
	return t.spans, t.err
}

// fakeTranscoder records calls and returns a fixed duration.
type fakeTranscoder struct {
	duration float64
	err      error
	calls    int
}

func (tc *fakeTranscoder) Transcode(ctx context.Context, inputPath, normalizedPath, audioPath string) (float64, error) {
	tc.calls++
	return tc.duration, tc.err
}

// fakeFrameExtractor writes no file; it only returns the configured error.
type fakeFrameExtractor struct {
	err error
}

func (e *fakeFrameExtractor) ExtractFrame(ctx context.Context, videoPath string, timestampSec float64, outputPath string) error {
	return e.err
}

// fakeHasher returns hashes from a lookup keyed by output path. Every
// unconfigured path gets the same fixed hash; calls counts those lookups.
type fakeHasher struct {
	hashes map[string]string
	calls  int
}

func (h *fakeHasher) Hash(imagePath string) (string, error) {
	if hash, ok := h.hashes[imagePath]; ok {
		return hash, nil
	}
	h.calls++
	return "ffffffffffff0000", nil
}

// fakeCaptioner returns a fixed result or fails for configured paths.
type fakeCaptioner struct {
	failPaths map[string]int
	attempts  map[string]int
}

func (c *fakeCaptioner) Caption(ctx context.Context, imagePath string) (media.VisionResult, error) {
	if c.attempts == nil {
		c.attempts = map[string]int{}
	}
	c.attempts[imagePath]++
	if limit, ok := c.failPaths[imagePath]; ok && c.attempts[imagePath] <= limit {
		return media.VisionResult{}, errAlways
	}
	return media.VisionResult{Caption: "a screen", Controls: nil, TextOnScreen: nil}, nil
}

var errAlways = &staticErr{"vision call failed"}

type staticErr struct{ msg string }

func (e *staticErr) Error() string { return e.msg }

// fakeEmbedder returns a deterministic vector per input string.
type fakeEmbedder struct {
	err error
}

func (e *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}
