package domain

import (
	"encoding/json"
	"fmt"

	eventdomain "github.com/caresignal/adherence/internal/event/domain"
	"gorm.io/datatypes"
)

// PayloadVersion is the current batch payload schema version.
const PayloadVersion = 1

// Payload is the versioned envelope persisted for a queued batch. The
// explicit version makes schema drift across deployments a detectable
// decode error instead of silent corruption.
type Payload struct {
	Version int                           `json:"version"`
	Events  []eventdomain.EventSubmission `json:"events"`
}

// EncodePayload wraps a batch request in the current envelope version.
func EncodePayload(req eventdomain.BatchRequest) (datatypes.JSON, error) {
	raw, err := json.Marshal(Payload{
		Version: PayloadVersion,
		Events:  req.Events,
	})
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// DecodePayload parses a stored payload and rejects unknown versions.
func DecodePayload(raw datatypes.JSON) (eventdomain.BatchRequest, error) {
	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return eventdomain.BatchRequest{}, fmt.Errorf("decode batch payload: %w", err)
	}
	if payload.Version != PayloadVersion {
		return eventdomain.BatchRequest{}, fmt.Errorf("%w: got %d, want %d",
			ErrPayloadVersion, payload.Version, PayloadVersion)
	}
	return eventdomain.BatchRequest{Events: payload.Events}, nil
}
