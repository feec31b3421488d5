package domain

import (
	"context"
	"time"
)

// Store is the durable event store. Insert returns ErrDuplicateEvent when the
// external-id unique index rejects the row; that constraint, not any
// in-memory check, is the source of truth for deduplication.
type Store interface {
	Exists(ctx context.Context, externalEventID string) (bool, error)
	Insert(ctx context.Context, event *UsageEvent) error
	CountForPatientOnDate(ctx context.Context, patientID string, day time.Time) (int64, error)
}
