package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Store is the durable job store.
//
// Claim is a conditional pending→processing transition: it succeeds only if
// the job is still pending, so concurrent pollers cannot both process the
// same job.
type Store interface {
	Create(ctx context.Context, job *BatchJob) error
	Find(ctx context.Context, id snowflake.ID) (*BatchJob, error)
	PendingOldestFirst(ctx context.Context, limit int) ([]*BatchJob, error)
	Claim(ctx context.Context, id snowflake.ID) (bool, error)
	MarkCompleted(ctx context.Context, id snowflake.ID, result datatypes.JSON, processedAt time.Time) error
	MarkFailed(ctx context.Context, id snowflake.ID, message string) error
}
