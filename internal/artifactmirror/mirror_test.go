package artifactmirror

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcanous/video-qa-worker/internal/datadir"
)

func newTestMirror(t *testing.T, server *httptest.Server, dd datadir.Root) *Mirror {
	t.Helper()
	m, err := New(context.Background(), Config{
		Bucket:          "test-bucket",
		Region:          "us-east-1",
		Endpoint:        server.URL,
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
	}, dd, logrus.New())
	require.NoError(t, err)
	return m
}

func TestMirrorVideo_UploadsNormalizedAndFrames(t *testing.T) {
	var mu sync.Mutex
	var uploadedKeys []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusOK)
			return
		}
		mu.Lock()
		uploadedKeys = append(uploadedKeys, r.URL.Path)
		mu.Unlock()
		_, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	base := t.TempDir()
	dd := datadir.New(base)
	require.NoError(t, dd.EnsureDirs())
	require.NoError(t, dd.EnsureVideoDirs("vid_1"))

	require.NoError(t, os.WriteFile(dd.NormalizedPath("vid_1"), []byte("normalized"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dd.FramesDir("vid_1"), "scene_000.jpg"), []byte("frame0"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dd.FramesDir("vid_1"), "scene_001.jpg"), []byte("frame1"), 0o644))

	m := newTestMirror(t, server, dd)
	m.MirrorVideo(context.Background(), "vid_1")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, uploadedKeys, 3)
	joined := strings.Join(uploadedKeys, ",")
	assert.Contains(t, joined, "processed/vid_1/normalized.mp4")
	assert.Contains(t, joined, "frames/vid_1/scene_000.jpg")
	assert.Contains(t, joined, "frames/vid_1/scene_001.jpg")
}

func TestMirrorVideo_MissingFramesDirIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	base := t.TempDir()
	dd := datadir.New(base)
	require.NoError(t, dd.EnsureDirs())

	m := newTestMirror(t, server, dd)
	m.MirrorVideo(context.Background(), "vid_missing")
}
