// Package domain contains persistence models for device usage ingestion.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// UsageEvent stores a single device-reported usage event (e.g. an inhaler puff).
// Rows are append-only; ExternalEventID is the caller-supplied idempotency key
// and its uniqueness is enforced by the database index.
type UsageEvent struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	ExternalEventID string       `gorm:"type:text;not null;uniqueIndex" json:"externalEventId"`
	PatientID       string       `gorm:"type:text;not null;index:idx_usage_events_patient_ts" json:"patientId"`
	DeviceID        string       `gorm:"type:text;not null" json:"deviceId"`
	EventType       string       `gorm:"type:text;not null" json:"eventType"`
	Timestamp       time.Time    `gorm:"not null;index:idx_usage_events_patient_ts" json:"timestamp"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"createdAt"`
}

// TableName sets the database table name.
func (UsageEvent) TableName() string { return "usage_events" }
