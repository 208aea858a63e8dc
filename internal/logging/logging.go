// Package logging configures the worker's structured, rotating log output
// and defines the per-job pipeline milestones named in spec.md §6.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Milestone is one of the named log events emitted once per job, in order.
type Milestone string

const (
	MilestoneClaimed     Milestone = "CLAIMED"
	MilestoneNormalized  Milestone = "NORMALIZED"
	MilestoneTranscribed Milestone = "TRANSCRIBED"
	MilestoneScenes      Milestone = "SCENES"
	MilestoneFrames      Milestone = "FRAMES"
	MilestoneVision      Milestone = "VISION"
	MilestoneEmbeddings  Milestone = "EMBEDDINGS"
	MilestoneReady       Milestone = "READY"
	MilestoneFailed      Milestone = "FAILED"
)

// Options configures New.
type Options struct {
	Level      string
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
}

// New builds a logrus.Logger that writes structured, leveled entries to both
// stderr and a size-rotated log file (5MB x 3 by default, per spec.md §6).
// A zero-value FilePath disables file rotation and logs to stderr only,
// which test and local-dev callers rely on.
func New(opts Options) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetLevel(parseLevel(opts.Level))

	if opts.FilePath == "" {
		log.SetOutput(os.Stderr)
		return log
	}

	if dir := filepath.Dir(opts.FilePath); dir != "." {
		_ = os.MkdirAll(dir, 0o755)
	}

	rotator := &lumberjack.Logger{
		Filename:   opts.FilePath,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		Compress:   false,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotator))
	return log
}

func parseLevel(level string) logrus.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return logrus.DebugLevel
	case "WARN", "WARNING":
		return logrus.WarnLevel
	case "ERROR":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Job returns a logger scoped to one job/video pair, used to emit the fixed
// milestone sequence CLAIMED -> ... -> READY|FAILED.
func Job(log *logrus.Logger, jobID, videoID string) *logrus.Entry {
	return log.WithFields(logrus.Fields{"job_id": jobID, "video_id": videoID})
}

// Emit logs a single milestone line for a job.
func Emit(entry *logrus.Entry, milestone Milestone) {
	entry.WithField("milestone", string(milestone)).Info(string(milestone))
}
