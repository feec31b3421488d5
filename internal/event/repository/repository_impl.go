package repository

import (
	"context"
	"time"

	eventdomain "github.com/caresignal/adherence/internal/event/domain"
	pkgdb "github.com/caresignal/adherence/pkg/db"
	"gorm.io/gorm"
)

type store struct {
	db *gorm.DB
}

// New returns a gorm-backed event store.
func New(db *gorm.DB) eventdomain.Store {
	return &store{db: db}
}

func (s *store) Exists(ctx context.Context, externalEventID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&eventdomain.UsageEvent{}).
		Where("external_event_id = ?", externalEventID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *store) Insert(ctx context.Context, event *eventdomain.UsageEvent) error {
	err := s.db.WithContext(ctx).Create(event).Error
	if err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return eventdomain.ErrDuplicateEvent
		}
		return err
	}
	return nil
}

func (s *store) CountForPatientOnDate(ctx context.Context, patientID string, day time.Time) (int64, error) {
	day = day.UTC()
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	var count int64
	err := s.db.WithContext(ctx).
		Model(&eventdomain.UsageEvent{}).
		Where("patient_id = ? AND timestamp >= ? AND timestamp < ?", patientID, start, end).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
