package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/caresignal/adherence/internal/cache"
	"github.com/caresignal/adherence/internal/clock"
	eventdomain "github.com/caresignal/adherence/internal/event/domain"
	"github.com/caresignal/adherence/internal/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// requiredDailyCount is the expected number of doses per calendar day.
const requiredDailyCount = 4

type ServiceParam struct {
	fx.In

	Log     *zap.Logger
	GenID   *snowflake.Node
	Events  eventdomain.Store
	Clock   clock.Clock
	Metrics *metrics.Metrics        `optional:"true"`
	Dedup   *cache.IngestDedupCache `optional:"true"`
}

type Service struct {
	log     *zap.Logger
	genID   *snowflake.Node
	events  eventdomain.Store
	clock   clock.Clock
	metrics *metrics.Metrics
	dedup   *cache.IngestDedupCache
}

func NewService(p ServiceParam) eventdomain.Service {
	return &Service{
		log:     p.Log.Named("event.service"),
		genID:   p.GenID,
		events:  p.Events,
		clock:   p.Clock,
		metrics: p.Metrics,
		dedup:   p.Dedup,
	}
}

// ProcessBatch deduplicates and persists a batch of event submissions in
// submission order, then recomputes the daily adherence score for every
// patient referenced by the batch.
//
// There is no multi-row transaction around the inserts: a storage failure
// mid-batch leaves earlier rows committed, so the batch-level guarantee is
// at-least-once. Re-submitting the same batch is safe because every insert is
// idempotent on ExternalEventID.
func (s *Service) ProcessBatch(
	ctx context.Context,
	req eventdomain.BatchRequest,
) (*eventdomain.BatchResult, error) {

	if len(req.Events) == 0 {
		return nil, eventdomain.ErrEmptyBatch
	}

	seen := make(map[string]struct{}, len(req.Events))
	processed := make([]string, 0, len(req.Events))

	for _, sub := range req.Events {
		externalID := strings.TrimSpace(sub.ExternalEventID)

		if _, ok := seen[externalID]; ok {
			s.metrics.RecordEventDeduplicated(ctx)
			continue
		}

		if s.dedup.Seen(externalID) {
			seen[externalID] = struct{}{}
			s.metrics.RecordEventDeduplicated(ctx)
			continue
		}

		exists, err := s.events.Exists(ctx, externalID)
		if err != nil {
			return nil, err
		}
		if exists {
			seen[externalID] = struct{}{}
			s.dedup.MarkSeen(externalID)
			s.metrics.RecordEventDeduplicated(ctx)
			continue
		}

		record := &eventdomain.UsageEvent{
			ID:              s.genID.Generate(),
			ExternalEventID: externalID,
			PatientID:       strings.TrimSpace(sub.PatientID),
			DeviceID:        strings.TrimSpace(sub.DeviceID),
			EventType:       strings.TrimSpace(sub.EventType),
			Timestamp:       sub.Timestamp.UTC(),
			CreatedAt:       s.clock.Now(),
		}

		if err := s.events.Insert(ctx, record); err != nil {
			// A concurrent ingestion won the race on the unique index.
			if errors.Is(err, eventdomain.ErrDuplicateEvent) {
				seen[externalID] = struct{}{}
				s.dedup.MarkSeen(externalID)
				s.metrics.RecordEventDeduplicated(ctx)
				continue
			}
			return nil, err
		}

		seen[externalID] = struct{}{}
		s.dedup.MarkSeen(externalID)
		processed = append(processed, externalID)
		s.metrics.RecordEventIngested(ctx, record.EventType)
	}

	scores, err := s.scoreBatchPatients(ctx, req.Events)
	if err != nil {
		return nil, err
	}

	firstPatient := strings.TrimSpace(req.Events[0].PatientID)

	s.log.Info("batch processed",
		zap.Int("submitted", len(req.Events)),
		zap.Int("processed", len(processed)),
		zap.Int("patients", len(scores)),
	)

	return &eventdomain.BatchResult{
		TotalProcessed:        len(processed),
		ProcessedEventIDs:     processed,
		UpdatedAdherenceScore: scores[firstPatient],
		AdherenceScores:       scores,
	}, nil
}

func (s *Service) scoreBatchPatients(
	ctx context.Context,
	events []eventdomain.EventSubmission,
) (map[string]float64, error) {

	scores := make(map[string]float64)
	for _, sub := range events {
		patientID := strings.TrimSpace(sub.PatientID)
		if _, ok := scores[patientID]; ok {
			continue
		}
		score, err := s.DailyAdherenceScore(ctx, patientID)
		if err != nil {
			return nil, err
		}
		scores[patientID] = score
	}
	return scores, nil
}

// DailyAdherenceScore returns eventsToday / requiredDailyCount * 100 for the
// current UTC calendar day. The score is not clamped; values above 100
// indicate over-use.
func (s *Service) DailyAdherenceScore(ctx context.Context, patientID string) (float64, error) {
	count, err := s.events.CountForPatientOnDate(ctx, patientID, s.clock.Now())
	if err != nil {
		return 0, err
	}
	return float64(count) / requiredDailyCount * 100, nil
}
