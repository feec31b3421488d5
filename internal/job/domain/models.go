// Package domain contains persistence models for queued batch jobs.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status is the lifecycle state of a batch job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// BatchJob stores a queued ingestion batch together with its processing
// outcome. Jobs are never deleted; a failed job stays failed until some
// external action re-submits the batch.
type BatchJob struct {
	ID           snowflake.ID   `gorm:"primaryKey"`
	Status       Status         `gorm:"type:text;not null;index"`
	Payload      datatypes.JSON `gorm:"not null"`
	Result       datatypes.JSON
	ErrorMessage string         `gorm:"type:text"`
	RetryCount   int            `gorm:"not null;default:0"`
	CreatedAt    time.Time      `gorm:"not null;index"`
	ProcessedAt  *time.Time
}

// TableName sets the database table name.
func (BatchJob) TableName() string { return "batch_jobs" }
