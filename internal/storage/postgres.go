package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// pgvectorVector adapts a plain embedding slice to the column type the
// TranscriptSegment/FrameCaption models declare.
func pgvectorVector(vector []float32) *pgvector.Vector {
	v := pgvector.NewVector(vector)
	return &v
}

// errorMessageMaxLen bounds the truncated message stored on a failed job.
const errorMessageMaxLen = 2000

// PostgresGateway is the Gateway implementation backed by GORM over
// gorm.io/driver/postgres, adapted from byron-the-bulb-cinema-chat's
// internal/database/database.go connection-pool setup.
type PostgresGateway struct {
	db *gorm.DB
}

// NewPostgresGateway opens a pooled connection to the relational store.
func NewPostgresGateway(dsn string) (*PostgresGateway, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("storage: failed to connect: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("storage: failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &PostgresGateway{db: db}, nil
}

// Close releases the underlying connection pool.
func (g *PostgresGateway) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AutoMigrate creates/updates tables from the GORM models. The worker's
// entry point runs it once at startup, before entering the claim loop, and
// exits if it fails.
func (g *PostgresGateway) AutoMigrate() error {
	return g.db.AutoMigrate(
		&Video{}, &Job{}, &Scene{}, &Frame{}, &TranscriptSegment{}, &FrameCaption{},
	)
}

func (g *PostgresGateway) Ping(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// ClaimNextJob claims one pending job in FIFO-by-creation-time order under
// SELECT ... FOR UPDATE SKIP LOCKED, exactly as
// yungbote-neurobridge-backend's internal/repos/job_run.go ClaimNextRunnable
// does — the one place in the retrieval pack that implements this pattern
// over GORM. It is the sole enforcement mechanism behind Invariant 3 ("at
// most one processing Job row per video, cluster-wide"): SKIP LOCKED means
// concurrent workers never block on each other and never double-claim.
func (g *PostgresGateway) ClaimNextJob(ctx context.Context, claimedBy string) (*ClaimedJob, error) {
	var claimed *ClaimedJob
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job Job
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", JobStatusPending).
			Order("created_at ASC").
			Limit(1).
			Take(&job).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		updates := map[string]interface{}{
			"status":     JobStatusProcessing,
			"attempts":   job.Attempts + 1,
			"claimed_by": claimedBy,
			"claimed_at": now,
		}
		if err := tx.Model(&Job{}).Where("id = ?", job.ID).Updates(updates).Error; err != nil {
			return err
		}

		claimed = &ClaimedJob{JobID: job.ID, VideoID: job.VideoID}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func (g *PostgresGateway) FailJob(ctx context.Context, jobID string, message string) error {
	msg := truncate(message, errorMessageMaxLen)
	return g.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{"status": JobStatusFailed, "error": msg}).Error
}

func (g *PostgresGateway) RequeueJob(ctx context.Context, jobID string, message string) error {
	msg := truncate(message, errorMessageMaxLen)
	return g.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"status":     JobStatusPending,
			"error":      msg,
			"claimed_by": nil,
			"claimed_at": nil,
		}).Error
}

func (g *PostgresGateway) GetJobAttempts(ctx context.Context, jobID string) (int, error) {
	var job Job
	err := g.db.WithContext(ctx).Select("attempts").Where("id = ?", jobID).Take(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return job.Attempts, nil
}

func (g *PostgresGateway) CompleteJob(ctx context.Context, jobID, videoID string) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Job{}).Where("id = ?", jobID).
			Update("status", JobStatusDone).Error; err != nil {
			return err
		}
		return tx.Model(&Video{}).Where("id = ?", videoID).
			Update("status", VideoStatusReady).Error
	})
}

func (g *PostgresGateway) FetchVideoPath(ctx context.Context, videoID string) (string, error) {
	var video Video
	err := g.db.WithContext(ctx).Select("original_path").Where("id = ?", videoID).Take(&video).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return video.OriginalPath, nil
}

func (g *PostgresGateway) GetVideo(ctx context.Context, videoID string) (*Video, error) {
	var video Video
	err := g.db.WithContext(ctx).Where("id = ?", videoID).Take(&video).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &video, nil
}

func (g *PostgresGateway) UpdateVideoNormalized(ctx context.Context, videoID, normalizedPath string, durationSec float64) error {
	return g.db.WithContext(ctx).Model(&Video{}).Where("id = ?", videoID).
		Updates(map[string]interface{}{
			"normalized_path": normalizedPath,
			"duration_sec":    durationSec,
			"status":          VideoStatusProcessing,
		}).Error
}

func (g *PostgresGateway) HasScenes(ctx context.Context, videoID string) (bool, error) {
	return g.rowExists(ctx, &Scene{}, videoID)
}

func (g *PostgresGateway) HasFrames(ctx context.Context, videoID string) (bool, error) {
	return g.rowExists(ctx, &Frame{}, videoID)
}

func (g *PostgresGateway) HasTranscriptSegments(ctx context.Context, videoID string) (bool, error) {
	return g.rowExists(ctx, &TranscriptSegment{}, videoID)
}

func (g *PostgresGateway) rowExists(ctx context.Context, model interface{}, videoID string) (bool, error) {
	var count int64
	if err := g.db.WithContext(ctx).Model(model).Where("video_id = ?", videoID).Limit(1).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// BulkInsertScenes is conflict-tolerant on (video_id, idx): a retried stage
// that already inserted some scenes silently skips the duplicates.
func (g *PostgresGateway) BulkInsertScenes(ctx context.Context, rows []Scene) error {
	if len(rows) == 0 {
		return nil
	}
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "video_id"}, {Name: "idx"}},
		DoNothing: true,
	}).Create(&rows).Error
}

func (g *PostgresGateway) ScenesForVideo(ctx context.Context, videoID string) ([]Scene, error) {
	var scenes []Scene
	err := g.db.WithContext(ctx).Where("video_id = ?", videoID).Order("idx ASC").Find(&scenes).Error
	return scenes, err
}

// BulkInsertFrames is conflict-tolerant on the primary key (frame IDs are
// derived deterministically, so a duplicate ID means the same candidate was
// already persisted).
func (g *PostgresGateway) BulkInsertFrames(ctx context.Context, rows []Frame) error {
	if len(rows) == 0 {
		return nil
	}
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&rows).Error
}

func (g *PostgresGateway) FramesWithoutCaption(ctx context.Context, videoID string) ([]Frame, error) {
	var frames []Frame
	err := g.db.WithContext(ctx).
		Where("video_id = ? AND id NOT IN (?)", videoID,
			g.db.Model(&FrameCaption{}).Select("frame_id")).
		Order("idx ASC").
		Find(&frames).Error
	return frames, err
}

func (g *PostgresGateway) BulkInsertSegments(ctx context.Context, rows []TranscriptSegment) error {
	if len(rows) == 0 {
		return nil
	}
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&rows).Error
}

func (g *PostgresGateway) SegmentsWithoutEmbedding(ctx context.Context, videoID string) ([]TranscriptSegment, error) {
	var segments []TranscriptSegment
	err := g.db.WithContext(ctx).
		Where("video_id = ? AND embedding IS NULL", videoID).
		Order("t_start ASC").
		Find(&segments).Error
	return segments, err
}

func (g *PostgresGateway) UpdateSegmentEmbedding(ctx context.Context, id string, vector []float32) error {
	v := pgvectorVector(vector)
	return g.db.WithContext(ctx).Model(&TranscriptSegment{}).Where("id = ?", id).
		Update("embedding", v).Error
}

func (g *PostgresGateway) BulkInsertCaptions(ctx context.Context, rows []FrameCaption) error {
	if len(rows) == 0 {
		return nil
	}
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&rows).Error
}

func (g *PostgresGateway) CaptionsWithoutEmbedding(ctx context.Context, videoID string) ([]FrameCaption, error) {
	var captions []FrameCaption
	err := g.db.WithContext(ctx).
		Joins("JOIN frames ON frames.id = frame_captions.frame_id").
		Where("frames.video_id = ? AND frame_captions.embedding IS NULL", videoID).
		Find(&captions).Error
	return captions, err
}

func (g *PostgresGateway) UpdateCaptionEmbedding(ctx context.Context, id string, vector []float32) error {
	v := pgvectorVector(vector)
	return g.db.WithContext(ctx).Model(&FrameCaption{}).Where("id = ?", id).
		Update("embedding", v).Error
}

func (g *PostgresGateway) PeekQueue(ctx context.Context, limit int) ([]QueuedJob, error) {
	var jobs []Job
	err := g.db.WithContext(ctx).
		Where("status = ?", JobStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	out := make([]QueuedJob, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, QueuedJob{
			JobID:     j.ID,
			VideoID:   j.VideoID,
			Attempts:  j.Attempts,
			CreatedAt: j.CreatedAt.Format(time.RFC3339),
		})
	}
	return out, nil
}

func (g *PostgresGateway) Stats(ctx context.Context) (QueueStats, error) {
	var stats QueueStats
	var err error
	tx := g.db.WithContext(ctx)

	if err = tx.Model(&Job{}).Where("status = ?", JobStatusPending).Count(&stats.PendingJobs).Error; err != nil {
		return stats, err
	}
	if err = tx.Model(&Job{}).Where("status = ?", JobStatusProcessing).Count(&stats.ProcessingJobs).Error; err != nil {
		return stats, err
	}
	if err = tx.Model(&Job{}).Where("status = ?", JobStatusDone).Count(&stats.DoneJobs).Error; err != nil {
		return stats, err
	}
	if err = tx.Model(&Job{}).Where("status = ?", JobStatusFailed).Count(&stats.FailedJobs).Error; err != nil {
		return stats, err
	}
	if err = tx.Model(&Video{}).Where("status = ?", VideoStatusReady).Count(&stats.ReadyVideos).Error; err != nil {
		return stats, err
	}
	return stats, nil
}
