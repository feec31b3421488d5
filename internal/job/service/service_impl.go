package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/caresignal/adherence/internal/clock"
	eventdomain "github.com/caresignal/adherence/internal/event/domain"
	jobdomain "github.com/caresignal/adherence/internal/job/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Jobs  jobdomain.Store
	Clock clock.Clock
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	jobs  jobdomain.Store
	clock clock.Clock
}

func NewService(p ServiceParam) jobdomain.Service {
	return &Service{
		log:   p.Log.Named("job.service"),
		genID: p.GenID,
		jobs:  p.Jobs,
		clock: p.Clock,
	}
}

// Enqueue persists the batch as a pending job and returns its id. It is a
// pure write-and-return: processing happens later on the poller.
func (s *Service) Enqueue(ctx context.Context, req eventdomain.BatchRequest) (snowflake.ID, error) {
	payload, err := jobdomain.EncodePayload(req)
	if err != nil {
		return 0, fmt.Errorf("encode batch payload: %w", err)
	}

	job := &jobdomain.BatchJob{
		ID:        s.genID.Generate(),
		Status:    jobdomain.StatusPending,
		Payload:   payload,
		CreatedAt: s.clock.Now(),
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		return 0, err
	}

	s.log.Info("batch job queued",
		zap.String("job_id", job.ID.String()),
		zap.Int("event_count", len(req.Events)),
	)

	return job.ID, nil
}

// Status reports the current job state, including the deserialized ingestion
// result once the job has completed.
func (s *Service) Status(ctx context.Context, jobID snowflake.ID) (*jobdomain.StatusResponse, error) {
	job, err := s.jobs.Find(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, jobdomain.ErrJobNotFound
	}

	resp := &jobdomain.StatusResponse{
		JobID:        job.ID.String(),
		Status:       job.Status,
		CreatedAt:    job.CreatedAt,
		ProcessedAt:  job.ProcessedAt,
		ErrorMessage: job.ErrorMessage,
		RetryCount:   job.RetryCount,
	}

	if job.Status == jobdomain.StatusCompleted && len(job.Result) > 0 {
		var result eventdomain.BatchResult
		if err := json.Unmarshal(job.Result, &result); err != nil {
			return nil, fmt.Errorf("decode job result: %w", err)
		}
		resp.Result = &result
	}

	return resp, nil
}
