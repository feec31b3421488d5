package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	jobdomain "github.com/caresignal/adherence/internal/job/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type store struct {
	db *gorm.DB
}

// New returns a gorm-backed job store.
func New(db *gorm.DB) jobdomain.Store {
	return &store{db: db}
}

func (s *store) Create(ctx context.Context, job *jobdomain.BatchJob) error {
	return s.db.WithContext(ctx).Create(job).Error
}

func (s *store) Find(ctx context.Context, id snowflake.ID) (*jobdomain.BatchJob, error) {
	var job jobdomain.BatchJob
	err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

func (s *store) PendingOldestFirst(ctx context.Context, limit int) ([]*jobdomain.BatchJob, error) {
	var jobs []*jobdomain.BatchJob
	err := s.db.WithContext(ctx).
		Where("status = ?", jobdomain.StatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

func (s *store) Claim(ctx context.Context, id snowflake.ID) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&jobdomain.BatchJob{}).
		Where("id = ? AND status = ?", id, jobdomain.StatusPending).
		Update("status", jobdomain.StatusProcessing)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *store) MarkCompleted(ctx context.Context, id snowflake.ID, result datatypes.JSON, processedAt time.Time) error {
	return s.db.WithContext(ctx).
		Model(&jobdomain.BatchJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       jobdomain.StatusCompleted,
			"result":       result,
			"processed_at": processedAt,
		}).Error
}

func (s *store) MarkFailed(ctx context.Context, id snowflake.ID, message string) error {
	return s.db.WithContext(ctx).
		Model(&jobdomain.BatchJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        jobdomain.StatusFailed,
			"error_message": message,
			"retry_count":   gorm.Expr("retry_count + 1"),
		}).Error
}
