package server

import (
	"fmt"
	"strings"

	eventdomain "github.com/caresignal/adherence/internal/event/domain"
)

// validateBatch enforces the batch contract before the core is invoked: a
// non-empty batch whose submissions all carry an external id, patient id,
// device id, event type and a non-zero timestamp.
func validateBatch(req eventdomain.BatchRequest) *ValidationErrors {
	if len(req.Events) == 0 {
		return &ValidationErrors{Errors: []ValidationError{{
			Field:   "events",
			Code:    "empty_batch",
			Message: "events batch cannot be empty",
		}}}
	}

	var errs []ValidationError
	for i, sub := range req.Events {
		field := func(name string) string {
			return fmt.Sprintf("events[%d].%s", i, name)
		}

		if strings.TrimSpace(sub.ExternalEventID) == "" {
			errs = append(errs, ValidationError{
				Field:   field("externalEventId"),
				Code:    "required",
				Message: fmt.Sprintf("events[%d]: externalEventId must not be empty", i),
			})
		}
		if strings.TrimSpace(sub.PatientID) == "" {
			errs = append(errs, ValidationError{
				Field:   field("patientId"),
				Code:    "required",
				Message: fmt.Sprintf("events[%d]: patientId must not be empty", i),
			})
		}
		if strings.TrimSpace(sub.DeviceID) == "" {
			errs = append(errs, ValidationError{
				Field:   field("deviceId"),
				Code:    "required",
				Message: fmt.Sprintf("events[%d]: deviceId must not be empty", i),
			})
		}
		if strings.TrimSpace(sub.EventType) == "" {
			errs = append(errs, ValidationError{
				Field:   field("eventType"),
				Code:    "required",
				Message: fmt.Sprintf("events[%d]: eventType must not be empty", i),
			})
		}
		if sub.Timestamp.IsZero() {
			errs = append(errs, ValidationError{
				Field:   field("timestamp"),
				Code:    "required",
				Message: fmt.Sprintf("events[%d]: timestamp must be set", i),
			})
		}
	}

	if len(errs) > 0 {
		return &ValidationErrors{Errors: errs}
	}
	return nil
}
