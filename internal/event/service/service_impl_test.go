package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/caresignal/adherence/internal/cache"
	"github.com/caresignal/adherence/internal/clock"
	eventdomain "github.com/caresignal/adherence/internal/event/domain"
	"github.com/caresignal/adherence/internal/event/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2025, 6, 12, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (eventdomain.Service, eventdomain.Store, *clock.FakeClock) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&eventdomain.UsageEvent{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	store := repository.New(db)
	clk := clock.NewFakeClock(testNow)

	svc := NewService(ServiceParam{
		Log:    zap.NewNop(),
		GenID:  node,
		Events: store,
		Clock:  clk,
	})

	return svc, store, clk
}

func submission(externalID, patientID string, ts time.Time) eventdomain.EventSubmission {
	return eventdomain.EventSubmission{
		ExternalEventID: externalID,
		PatientID:       patientID,
		DeviceID:        "dev1",
		EventType:       "puff",
		Timestamp:       ts,
	}
}

var seedNode, _ = snowflake.NewNode(9)

func seedEvent(t *testing.T, store eventdomain.Store, externalID, patientID string, ts time.Time) {
	t.Helper()

	require.NoError(t, store.Insert(context.Background(), &eventdomain.UsageEvent{
		ID:              seedNode.Generate(),
		ExternalEventID: externalID,
		PatientID:       patientID,
		DeviceID:        "dev1",
		EventType:       "puff",
		Timestamp:       ts,
		CreatedAt:       ts,
	}))
}

func TestProcessBatch_EmptyBatch(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.ProcessBatch(context.Background(), eventdomain.BatchRequest{})
	assert.ErrorIs(t, err, eventdomain.ErrEmptyBatch)
}

func TestProcessBatch_IntraBatchDuplicate(t *testing.T) {
	svc, store, _ := newTestService(t)

	result, err := svc.ProcessBatch(context.Background(), eventdomain.BatchRequest{
		Events: []eventdomain.EventSubmission{
			submission("evt-1", "patient-1", testNow),
			submission("evt-1", "patient-1", testNow),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.TotalProcessed)
	assert.Equal(t, []string{"evt-1"}, result.ProcessedEventIDs)

	exists, err := store.Exists(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestProcessBatch_CrossBatchIdempotence(t *testing.T) {
	svc, store, _ := newTestService(t)

	batch := eventdomain.BatchRequest{
		Events: []eventdomain.EventSubmission{
			submission("evt-1", "patient-1", testNow),
			submission("evt-2", "patient-1", testNow),
		},
	}

	first, err := svc.ProcessBatch(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 2, first.TotalProcessed)

	second, err := svc.ProcessBatch(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 0, second.TotalProcessed)
	assert.Empty(t, second.ProcessedEventIDs)

	count, err := store.CountForPatientOnDate(context.Background(), "patient-1", testNow)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestProcessBatch_ScoreReflectsJustIngestedEvents(t *testing.T) {
	svc, store, _ := newTestService(t)

	// Two prior events today: score would be 50 before this batch.
	seedEvent(t, store, "prior-1", "patient-1", testNow.Add(-2*time.Hour))
	seedEvent(t, store, "prior-2", "patient-1", testNow.Add(-1*time.Hour))

	result, err := svc.ProcessBatch(context.Background(), eventdomain.BatchRequest{
		Events: []eventdomain.EventSubmission{
			submission("evt-3", "patient-1", testNow),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.TotalProcessed)
	assert.Equal(t, 75.0, result.UpdatedAdherenceScore)
}

func TestProcessBatch_MultiPatientScores(t *testing.T) {
	svc, _, _ := newTestService(t)

	result, err := svc.ProcessBatch(context.Background(), eventdomain.BatchRequest{
		Events: []eventdomain.EventSubmission{
			submission("evt-a", "patient-a", testNow),
			submission("evt-b", "patient-b", testNow),
			submission("evt-c", "patient-b", testNow),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalProcessed)
	assert.Len(t, result.AdherenceScores, 2)
	assert.Equal(t, 25.0, result.AdherenceScores["patient-a"])
	assert.Equal(t, 50.0, result.AdherenceScores["patient-b"])

	// The documented top-level score is the first submission's patient.
	assert.Equal(t, 25.0, result.UpdatedAdherenceScore)
}

func TestDailyAdherenceScore(t *testing.T) {
	tests := []struct {
		name     string
		events   int
		expected float64
	}{
		{"no events", 0, 0},
		{"one event", 1, 25},
		{"full schedule", 4, 100},
		{"over-use is not clamped", 5, 125},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := newTestService(t)

			for i := 0; i < tt.events; i++ {
				seedEvent(t, store, "evt-"+string(rune('a'+i)), "patient-1", testNow.Add(time.Duration(i)*time.Minute))
			}

			score, err := svc.DailyAdherenceScore(context.Background(), "patient-1")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, score)
		})
	}
}

func TestDailyAdherenceScore_OnlyCountsToday(t *testing.T) {
	svc, store, _ := newTestService(t)

	seedEvent(t, store, "yesterday", "patient-1", testNow.Add(-24*time.Hour))
	seedEvent(t, store, "tomorrow", "patient-1", testNow.Add(24*time.Hour))
	seedEvent(t, store, "today", "patient-1", testNow)

	score, err := svc.DailyAdherenceScore(context.Background(), "patient-1")
	require.NoError(t, err)
	assert.Equal(t, 25.0, score)
}

func TestDailyAdherenceScore_OnlyCountsRequestedPatient(t *testing.T) {
	svc, store, _ := newTestService(t)

	seedEvent(t, store, "other-1", "patient-2", testNow)
	seedEvent(t, store, "other-2", "patient-2", testNow)
	seedEvent(t, store, "mine", "patient-1", testNow)

	score, err := svc.DailyAdherenceScore(context.Background(), "patient-1")
	require.NoError(t, err)
	assert.Equal(t, 25.0, score)
}

// countingStore wraps a Store and counts existence probes.
type countingStore struct {
	eventdomain.Store
	existsCalls int
}

func (s *countingStore) Exists(ctx context.Context, externalID string) (bool, error) {
	s.existsCalls++
	return s.Store.Exists(ctx, externalID)
}

func TestProcessBatch_DedupCacheSkipsExistenceProbe(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&eventdomain.UsageEvent{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	store := &countingStore{Store: repository.New(db)}
	svc := NewService(ServiceParam{
		Log:    zap.NewNop(),
		GenID:  node,
		Events: store,
		Clock:  clock.NewFakeClock(testNow),
		Dedup:  cache.NewIngestDedupCache(),
	})

	batch := eventdomain.BatchRequest{Events: []eventdomain.EventSubmission{
		submission("evt-1", "patient-1", testNow),
	}}

	first, err := svc.ProcessBatch(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 1, first.TotalProcessed)
	probesAfterFirst := store.existsCalls

	second, err := svc.ProcessBatch(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 0, second.TotalProcessed)

	// The resubmission is answered from the dedup cache without another probe.
	assert.Equal(t, probesAfterFirst, store.existsCalls)
}
