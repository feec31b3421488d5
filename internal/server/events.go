package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	eventdomain "github.com/caresignal/adherence/internal/event/domain"
	jobdomain "github.com/caresignal/adherence/internal/job/domain"
	"github.com/caresignal/adherence/internal/ratelimit"
	"go.uber.org/zap"
)

// BatchQueuedResponse acknowledges an asynchronously queued batch.
type BatchQueuedResponse struct {
	JobID      string `json:"jobId"`
	Message    string `json:"message"`
	EventCount int    `json:"eventCount"`
}

// AdherenceScoreResponse carries a patient's daily adherence score.
type AdherenceScoreResponse struct {
	PatientID    string    `json:"patientId"`
	Score        float64   `json:"score"`
	CalculatedAt time.Time `json:"calculatedAt"`
	Description  string    `json:"description"`
}

// PostBatch ingests a batch of usage events. The batch is processed
// synchronously unless async=true is passed, in which case it is queued and
// a job id is returned.
func (s *Server) PostBatch(c *gin.Context) {
	var req eventdomain.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, &ValidationErrors{Errors: []ValidationError{{
			Field:   "request",
			Code:    "invalid_request",
			Message: "request body must be a valid batch of events",
		}}})
		return
	}

	if verrs := validateBatch(req); verrs != nil {
		AbortWithError(c, verrs)
		return
	}

	if !s.ingestAllowed(c, req) {
		return
	}

	if async, _ := strconv.ParseBool(c.Query("async")); async {
		jobID, err := s.jobsvc.Enqueue(c.Request.Context(), req)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusAccepted, BatchQueuedResponse{
			JobID:      jobID.String(),
			Message:    "Batch has been queued for processing",
			EventCount: len(req.Events),
		})
		return
	}

	result, err := s.eventsvc.ProcessBatch(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ingestAllowed checks the endpoint-wide bucket and one bucket per distinct
// device in the batch. On a denied bucket it writes the 429 response and
// returns false. A Redis transport failure fails open: ingestion must not
// depend on the limiter being reachable.
func (s *Server) ingestAllowed(c *gin.Context, req eventdomain.BatchRequest) bool {
	if !s.limiter.Enabled() {
		return true
	}

	ctx := c.Request.Context()
	if err := s.limiter.AllowEndpoint(ctx); err != nil {
		return s.limitCheckFailed(c, err)
	}

	seen := make(map[string]struct{})
	for _, sub := range req.Events {
		deviceID := strings.TrimSpace(sub.DeviceID)
		if _, ok := seen[deviceID]; ok {
			continue
		}
		seen[deviceID] = struct{}{}

		if err := s.limiter.AllowDevice(ctx, deviceID); err != nil {
			return s.limitCheckFailed(c, err)
		}
	}
	return true
}

func (s *Server) limitCheckFailed(c *gin.Context, err error) bool {
	var limitErr *ratelimit.LimitError
	if errors.As(err, &limitErr) {
		if limitErr.RetryAfter > 0 {
			seconds := int(math.Ceil(limitErr.RetryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(seconds))
		}
		AbortWithError(c, limitErr)
		return false
	}

	s.log.Warn("rate limit check failed", zap.Error(err))
	return true
}

// GetBatchStatus reports the state of a queued batch job.
func (s *Server) GetBatchStatus(c *gin.Context) {
	jobID, err := snowflake.ParseString(strings.TrimSpace(c.Param("jobId")))
	if err != nil {
		AbortWithError(c, jobdomain.ErrJobNotFound)
		return
	}

	status, err := s.jobsvc.Status(c.Request.Context(), jobID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// GetDailyAdherenceScore returns today's adherence score for a patient.
func (s *Server) GetDailyAdherenceScore(c *gin.Context) {
	patientID := strings.TrimSpace(c.Param("patientId"))
	if patientID == "" {
		AbortWithError(c, &ValidationErrors{Errors: []ValidationError{{
			Field:   "patientId",
			Code:    "required",
			Message: "patientId must not be empty",
		}}})
		return
	}

	score, err := s.eventsvc.DailyAdherenceScore(c.Request.Context(), patientID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, AdherenceScoreResponse{
		PatientID:    patientID,
		Score:        score,
		CalculatedAt: s.clock.Now(),
		Description:  adherenceDescription(score),
	})
}

func adherenceDescription(score float64) string {
	switch {
	case score >= 100:
		return "Excellent adherence"
	case score >= 75:
		return "Good adherence"
	case score >= 50:
		return "Fair adherence"
	default:
		return "Poor adherence"
	}
}
