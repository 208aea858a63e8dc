package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// FFmpegTranscoder shells out to ffmpeg/ffprobe, adapted from
// byron-the-bulb-cinema-chat's internal/ffmpeg/ffmpeg.go FFmpegClient: the
// same ffprobe-duration-then-ffmpeg-transcode shape, generalized to the
// fixed 720p30 video / 16kHz mono audio targets spec.md §4.C requires.
type FFmpegTranscoder struct {
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpegTranscoder builds a transcoder that shells out to the ffmpeg and
// ffprobe binaries found on PATH.
func NewFFmpegTranscoder() *FFmpegTranscoder {
	return &FFmpegTranscoder{ffmpegPath: "ffmpeg", ffprobePath: "ffprobe"}
}

// Transcode writes a 720p30 video track and a 16kHz mono audio track,
// returning the probed duration of the input.
func (f *FFmpegTranscoder) Transcode(ctx context.Context, inputPath, normalizedPath, audioPath string) (float64, error) {
	duration, err := f.probeDuration(ctx, inputPath)
	if err != nil {
		return 0, fmt.Errorf("ffmpeg: probe duration: %w", err)
	}

	videoCmd := exec.CommandContext(ctx, f.ffmpegPath,
		"-y",
		"-i", inputPath,
		"-vf", "scale=-2:720",
		"-r", "30",
		"-c:v", "libx264",
		"-c:a", "aac",
		normalizedPath,
	)
	if out, err := videoCmd.CombinedOutput(); err != nil {
		return 0, fmt.Errorf("ffmpeg: transcode video failed: %w, output: %s", err, string(out))
	}

	audioCmd := exec.CommandContext(ctx, f.ffmpegPath,
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		audioPath,
	)
	if out, err := audioCmd.CombinedOutput(); err != nil {
		return 0, fmt.Errorf("ffmpeg: extract audio failed: %w, output: %s", err, string(out))
	}

	return duration, nil
}

func (f *FFmpegTranscoder) probeDuration(ctx context.Context, videoPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, f.ffprobePath,
		"-v", "quiet",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w, stderr: %s", err, stderr.String())
	}

	durationStr := strings.TrimSpace(out.String())
	duration, err := strconv.ParseFloat(durationStr, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}
	return duration, nil
}

// FFmpegFrameExtractor writes a single JPEG still at a given timestamp,
// adapted from the teacher's ExtractKeyframes single-frame ffmpeg
// invocation in internal/scenedetect/scenedetect.go.
type FFmpegFrameExtractor struct {
	ffmpegPath string
}

// NewFFmpegFrameExtractor builds a frame extractor using the ffmpeg binary
// found on PATH.
func NewFFmpegFrameExtractor() *FFmpegFrameExtractor {
	return &FFmpegFrameExtractor{ffmpegPath: "ffmpeg"}
}

func (f *FFmpegFrameExtractor) ExtractFrame(ctx context.Context, videoPath string, timestampSec float64, outputPath string) error {
	cmd := exec.CommandContext(ctx, f.ffmpegPath,
		"-ss", fmt.Sprintf("%.3f", timestampSec),
		"-i", videoPath,
		"-vframes", "1",
		"-q:v", "2",
		"-y",
		outputPath,
	)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg: failed to extract frame at %.3fs: %w, output: %s", timestampSec, err, string(out))
	}
	return nil
}
