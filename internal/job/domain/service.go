package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	eventdomain "github.com/caresignal/adherence/internal/event/domain"
)

// StatusResponse is the externally visible state of a queued job.
type StatusResponse struct {
	JobID        string                   `json:"jobId"`
	Status       Status                   `json:"status"`
	CreatedAt    time.Time                `json:"createdAt"`
	ProcessedAt  *time.Time               `json:"processedAt,omitempty"`
	Result       *eventdomain.BatchResult `json:"result,omitempty"`
	ErrorMessage string                   `json:"errorMessage,omitempty"`
	RetryCount   int                      `json:"retryCount"`
}

// Service queues batches for asynchronous processing and reports job state.
// Enqueue never blocks on processing.
type Service interface {
	Enqueue(context.Context, eventdomain.BatchRequest) (snowflake.ID, error)
	Status(ctx context.Context, jobID snowflake.ID) (*StatusResponse, error)
}

var (
	ErrJobNotFound    = errors.New("job_not_found")
	ErrPayloadVersion = errors.New("unsupported_payload_version")
)
