// Package processor runs the background polling loop that drains pending
// batch jobs through the ingestion engine.
package processor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/caresignal/adherence/internal/clock"
	eventdomain "github.com/caresignal/adherence/internal/event/domain"
	jobdomain "github.com/caresignal/adherence/internal/job/domain"
	"github.com/caresignal/adherence/internal/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Jobs    jobdomain.Store
	Events  eventdomain.Service
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`
	Config  Config           `optional:"true"`
}

type Worker struct {
	log     *zap.Logger
	jobs    jobdomain.Store
	events  eventdomain.Service
	clock   clock.Clock
	metrics *metrics.Metrics
	cfg     Config
}

func NewWorker(p Params) *Worker {
	return &Worker{
		log:     p.Log.Named("job.processor"),
		jobs:    p.Jobs,
		events:  p.Events,
		clock:   p.Clock,
		metrics: p.Metrics,
		cfg:     p.Config.withDefaults(),
	}
}

// RunForever polls on a fixed interval until ctx is canceled.
func (w *Worker) RunForever(ctx context.Context) {
	w.log.Info("job processor started",
		zap.Duration("poll_interval", w.cfg.PollInterval),
		zap.Int("batch_size", w.cfg.BatchSize),
	)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := w.RunOnce(ctx); err != nil {
			w.log.Warn("job poll failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			w.log.Info("job processor stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce claims and processes one tick's worth of pending jobs, oldest
// first, sequentially. A single job's failure never aborts the rest of the
// tick; cancellation is observed between jobs, so each job's status write
// stays the atomic unit of shutdown safety.
func (w *Worker) RunOnce(ctx context.Context) error {
	jobs, err := w.jobs.PendingOldestFirst(ctx, w.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, job := range jobs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.processJob(ctx, job)
	}

	return nil
}

func (w *Worker) processJob(ctx context.Context, job *jobdomain.BatchJob) {
	log := w.log.With(zap.String("job_id", job.ID.String()))

	claimed, err := w.jobs.Claim(ctx, job.ID)
	if err != nil {
		log.Warn("job claim failed", zap.Error(err))
		return
	}
	if !claimed {
		// Another poller transitioned the job first.
		return
	}

	req, err := jobdomain.DecodePayload(job.Payload)
	if err != nil {
		w.fail(ctx, job, err, log)
		return
	}

	result, err := w.events.ProcessBatch(ctx, req)
	if err != nil {
		w.fail(ctx, job, err, log)
		return
	}

	raw, err := json.Marshal(result)
	if err != nil {
		w.fail(ctx, job, err, log)
		return
	}

	if err := w.jobs.MarkCompleted(ctx, job.ID, datatypes.JSON(raw), w.clock.Now()); err != nil {
		log.Error("mark completed failed", zap.Error(err))
		return
	}

	w.metrics.RecordJobProcessed(ctx, string(jobdomain.StatusCompleted))
	log.Info("job completed", zap.Int("processed", result.TotalProcessed))
}

func (w *Worker) fail(ctx context.Context, job *jobdomain.BatchJob, cause error, log *zap.Logger) {
	if err := w.jobs.MarkFailed(ctx, job.ID, cause.Error()); err != nil {
		log.Error("mark failed failed", zap.Error(err))
		return
	}
	w.metrics.RecordJobProcessed(ctx, string(jobdomain.StatusFailed))
	log.Warn("job failed", zap.Error(cause))
}
