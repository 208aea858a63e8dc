package stage

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcanous/video-qa-worker/internal/datadir"
	"github.com/arcanous/video-qa-worker/internal/media"
	"github.com/arcanous/video-qa-worker/internal/storage"
)

func TestTranscribe_InsertsSegmentsAndWritesSRT(t *testing.T) {
	base := t.TempDir()
	dd := datadir.New(base)
	require.NoError(t, dd.EnsureDirs())

	gw := newFakeGateway()
	tr := &fakeTranscriber{spans: []media.TranscriptSpan{
		{TStart: 0, TEnd: 6, Text: "hello"},
		{TStart: 6, TEnd: 12, Text: "world"},
	}}

	err := Transcribe(context.Background(), gw, dd, tr, "vid_1")
	require.NoError(t, err)

	segs := gw.segments["vid_1"]
	require.Len(t, segs, 2)
	assert.Equal(t, "vid_1_segment_000", segs[0].ID)
	assert.Equal(t, "vid_1_segment_001", segs[1].ID)

	data, err := os.ReadFile(dd.SubtitlePath("vid_1"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, string(data), "1\n00:00:00,000")
}

func TestTranscribe_SkipsWhenSegmentsExist(t *testing.T) {
	base := t.TempDir()
	dd := datadir.New(base)
	require.NoError(t, dd.EnsureDirs())

	gw := newFakeGateway()
	gw.segments["vid_1"] = []storage.TranscriptSegment{
		{ID: "vid_1_segment_000", VideoID: "vid_1", TStart: 0, TEnd: 1, Text: "preexisting"},
	}

	tr := &fakeTranscriber{spans: []media.TranscriptSpan{{TStart: 0, TEnd: 1, Text: "should not run"}}}

	err := Transcribe(context.Background(), gw, dd, tr, "vid_1")
	require.NoError(t, err)
	assert.Len(t, gw.segments["vid_1"], 1)
	assert.Equal(t, "preexisting", gw.segments["vid_1"][0].Text)
}
