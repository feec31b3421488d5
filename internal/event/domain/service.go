package domain

import (
	"context"
	"errors"
	"time"
)

// EventSubmission is a single device-reported event inside a batch.
type EventSubmission struct {
	ExternalEventID string    `json:"externalEventId"`
	PatientID       string    `json:"patientId"`
	DeviceID        string    `json:"deviceId"`
	EventType       string    `json:"eventType"`
	Timestamp       time.Time `json:"timestamp"`
}

// BatchRequest is an ordered batch of event submissions.
type BatchRequest struct {
	Events []EventSubmission `json:"events"`
}

// BatchResult reports the outcome of an ingested batch.
//
// UpdatedAdherenceScore is the score of the first submission's patient and is
// kept for the documented response shape. AdherenceScores carries one score
// per distinct patient in the batch, so mixed-patient batches are not
// silently collapsed onto the first patient.
type BatchResult struct {
	TotalProcessed        int                `json:"totalProcessed"`
	ProcessedEventIDs     []string           `json:"processedEventIds"`
	UpdatedAdherenceScore float64            `json:"updatedAdherenceScore"`
	AdherenceScores       map[string]float64 `json:"adherenceScores"`
}

type Service interface {
	ProcessBatch(context.Context, BatchRequest) (*BatchResult, error)
	DailyAdherenceScore(ctx context.Context, patientID string) (float64, error)
}

var (
	ErrEmptyBatch     = errors.New("empty_batch")
	ErrDuplicateEvent = errors.New("duplicate_event")
)
