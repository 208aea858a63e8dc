// Package jobcontroller owns the worker's top-level claim/run/retry loop
// (spec.md §4.F): periodic polling, atomic claim, attempt/backoff
// bookkeeping, and graceful shutdown.
package jobcontroller

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arcanous/video-qa-worker/internal/logging"
	"github.com/arcanous/video-qa-worker/internal/orchestrator"
	"github.com/arcanous/video-qa-worker/internal/storage"
)

// maxBackoff caps the exponential backoff applied after consecutive empty
// polls.
const maxBackoff = 30 * time.Second

// Config configures one Controller instance.
type Config struct {
	PollInterval time.Duration
	MaxAttempts  int
	WorkerID     string
}

// Controller runs the claim loop against a Gateway, handing each claimed
// job to the orchestrator and translating its Outcome back into gateway
// bookkeeping calls.
type Controller struct {
	gw            storage.Gateway
	collaborators orchestrator.Collaborators
	cfg           Config
	log           *logrus.Logger

	// OnJobDone, if set, is called asynchronously after a job reaches
	// done. It backs the optional artifact mirror (SPEC_FULL.md §6) and
	// is never allowed to affect job/video status.
	OnJobDone func(ctx context.Context, videoID string)
}

// New builds a Controller. collaborators.Gateway must equal gw; it is
// threaded separately only so the controller can call claim/complete/fail
// methods that are not part of the per-stage Collaborators surface.
func New(gw storage.Gateway, collaborators orchestrator.Collaborators, cfg Config, log *logrus.Logger) *Controller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 1500 * time.Millisecond
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Controller{gw: gw, collaborators: collaborators, cfg: cfg, log: log}
}

// Run blocks, claiming and processing jobs until ctx is cancelled. On
// cancellation it stops claiming new jobs and returns once any in-flight
// job reaches its next checkpoint.
func (c *Controller) Run(ctx context.Context) error {
	backoff := c.cfg.PollInterval

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		claimed, err := c.gw.ClaimNextJob(ctx, c.cfg.WorkerID)
		if err != nil {
			c.log.WithError(err).Error("jobcontroller: claim failed")
			if !sleep(ctx, backoff) {
				return nil
			}
			backoff = nextBackoff(backoff)
			continue
		}

		if claimed == nil {
			if !sleep(ctx, backoff) {
				return nil
			}
			backoff = nextBackoff(backoff)
			continue
		}

		backoff = c.cfg.PollInterval
		c.processJob(ctx, claimed)
	}
}

func (c *Controller) processJob(ctx context.Context, claimed *storage.ClaimedJob) {
	entry := logging.Job(c.log, claimed.JobID, claimed.VideoID)
	logging.Emit(entry, logging.MilestoneClaimed)

	outcome, stageErr := orchestrator.Run(ctx, c.collaborators, entry, claimed.VideoID)

	switch outcome {
	case orchestrator.OutcomeDone:
		if err := c.gw.CompleteJob(ctx, claimed.JobID, claimed.VideoID); err != nil {
			entry.WithError(err).Error("jobcontroller: failed to mark job complete")
			return
		}
		logging.Emit(entry, logging.MilestoneReady)
		if c.OnJobDone != nil {
			go c.OnJobDone(context.Background(), claimed.VideoID)
		}

	case orchestrator.OutcomeRetryable:
		c.handleRetryable(ctx, claimed, entry, stageErr)

	case orchestrator.OutcomeFatal:
		if err := c.gw.FailJob(ctx, claimed.JobID, stageErr.Error()); err != nil {
			entry.WithError(err).Error("jobcontroller: failed to mark job failed")
		}
		logging.Emit(entry, logging.MilestoneFailed)
	}
}

func (c *Controller) handleRetryable(ctx context.Context, claimed *storage.ClaimedJob, entry *logrus.Entry, stageErr error) {
	attempts, err := c.gw.GetJobAttempts(ctx, claimed.JobID)
	if err != nil {
		entry.WithError(err).Warn("jobcontroller: could not read attempts, treating as exhausted")
		attempts = c.cfg.MaxAttempts
	}

	if attempts < c.cfg.MaxAttempts {
		if err := c.gw.RequeueJob(ctx, claimed.JobID, stageErr.Error()); err != nil {
			entry.WithError(err).Error("jobcontroller: failed to requeue job")
		}
		return
	}

	if err := c.gw.FailJob(ctx, claimed.JobID, stageErr.Error()); err != nil {
		entry.WithError(err).Error("jobcontroller: failed to mark job failed")
	}
	logging.Emit(entry, logging.MilestoneFailed)
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func nextBackoff(d time.Duration) time.Duration {
	next := d * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
