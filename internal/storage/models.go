package storage

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/pgvector/pgvector-go"
)

// VideoStatus is the explicit tagged variant for Video.status (Design Note
// §9: "dynamic schema -> explicit variants"). The gateway maps it to/from a
// plain string at the SQL boundary; nothing above the gateway ever compares
// against a bare string.
type VideoStatus string

const (
	VideoStatusUploaded   VideoStatus = "uploaded"
	VideoStatusProcessing VideoStatus = "processing"
	VideoStatusReady      VideoStatus = "ready"
	VideoStatusFailed     VideoStatus = "failed"
)

// JobStatus is the explicit tagged variant for Job.status.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusFailed     JobStatus = "failed"
)

// Video identifies one uploaded media blob and tracks whole-pipeline
// completion. Rows are created by the external uploader; the core only
// updates normalized_path/duration_sec/status.
type Video struct {
	ID              string     `gorm:"column:id;primaryKey"`
	OriginalPath    string     `gorm:"column:original_path;not null"`
	Status          VideoStatus `gorm:"column:status;not null;default:uploaded"`
	NormalizedPath  *string    `gorm:"column:normalized_path"`
	DurationSec     *float64   `gorm:"column:duration_sec"`
	CreatedAt       time.Time  `gorm:"column:created_at;not null;autoCreateTime"`
}

func (Video) TableName() string { return "videos" }

// Job is one execution-attempt grouping for one video; the row the job
// controller claims from.
type Job struct {
	ID        string    `gorm:"column:id;primaryKey"`
	VideoID   string    `gorm:"column:video_id;not null;index"`
	Status    JobStatus `gorm:"column:status;not null;default:pending"`
	Attempts  int       `gorm:"column:attempts;not null;default:0"`
	Error     *string   `gorm:"column:error"`
	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime"`

	// ClaimedBy/ClaimedAt are observational only (SPEC_FULL.md §3): they let
	// an operator see which worker instance holds a `processing` job and
	// are the columns a future lease-expiry reaper (spec.md §9 open
	// question) would need. Nothing in the core reads them back.
	ClaimedBy *string    `gorm:"column:claimed_by"`
	ClaimedAt *time.Time `gorm:"column:claimed_at"`
}

func (Job) TableName() string { return "jobs" }

// Scene is a half-open time interval of the normalized video.
type Scene struct {
	ID      string  `gorm:"column:id;primaryKey"`
	VideoID string  `gorm:"column:video_id;not null;uniqueIndex:idx_scenes_video_idx"`
	Idx     int     `gorm:"column:idx;not null;uniqueIndex:idx_scenes_video_idx"`
	TStart  float64 `gorm:"column:t_start;not null"`
	TEnd    float64 `gorm:"column:t_end;not null"`
}

func (Scene) TableName() string { return "scenes" }

// Frame is one still image sampled inside a scene.
type Frame struct {
	ID      string  `gorm:"column:id;primaryKey"`
	VideoID string  `gorm:"column:video_id;not null;index"`
	SceneID string  `gorm:"column:scene_id;not null;index"`
	Idx     int     `gorm:"column:idx;not null"`
	TFrame  float64 `gorm:"column:t_frame;not null"`
	Path    string  `gorm:"column:path;not null"`
	Phash   string  `gorm:"column:phash;not null"`
}

func (Frame) TableName() string { return "frames" }

// TranscriptSegment is one contiguous utterance from the audio.
type TranscriptSegment struct {
	ID        string           `gorm:"column:id;primaryKey"`
	VideoID   string           `gorm:"column:video_id;not null;uniqueIndex:idx_segments_video_span"`
	TStart    float64          `gorm:"column:t_start;not null;uniqueIndex:idx_segments_video_span"`
	TEnd      float64          `gorm:"column:t_end;not null;uniqueIndex:idx_segments_video_span"`
	Text      string           `gorm:"column:text;not null"`
	Embedding *pgvector.Vector `gorm:"column:embedding;type:vector(1536)"`
}

func (TranscriptSegment) TableName() string { return "transcript_segments" }

// Control is one detected on-screen UI control, part of FrameCaption.Entities.
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

// Entities is the structured JSON payload attached to a FrameCaption,
// conforming to the §6 vision-capability schema.
type Entities struct {
	Controls     []Control      `json:"controls"`
	TextOnScreen []TextOnScreen `json:"text_on_screen"`
}

// Scan implements sql.Scanner.
func (e *Entities) Scan(value interface{}) error {
	if value == nil {
		*e = Entities{Controls: []Control{}, TextOnScreen: []TextOnScreen{}}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			bytes = []byte(s)
		} else {
			return nil
		}
	}
	return json.Unmarshal(bytes, e)
}

// Value implements driver.Valuer.
func (e Entities) Value() (driver.Value, error) {
	return json.Marshal(e)
}

// FrameCaption is the AI vision analysis of one frame.
type FrameCaption struct {
	ID        string           `gorm:"column:id;primaryKey"`
	FrameID   string           `gorm:"column:frame_id;not null;index"`
	Caption   string           `gorm:"column:caption;not null"`
	Entities  Entities         `gorm:"column:entities;type:jsonb"`
	Embedding *pgvector.Vector `gorm:"column:embedding;type:vector(1536)"`
}

func (FrameCaption) TableName() string { return "frame_captions" }
