package processor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/caresignal/adherence/internal/clock"
	eventdomain "github.com/caresignal/adherence/internal/event/domain"
	eventrepository "github.com/caresignal/adherence/internal/event/repository"
	eventservice "github.com/caresignal/adherence/internal/event/service"
	jobdomain "github.com/caresignal/adherence/internal/job/domain"
	jobrepository "github.com/caresignal/adherence/internal/job/repository"
	jobservice "github.com/caresignal/adherence/internal/job/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var testNow = time.Date(2025, 6, 12, 10, 0, 0, 0, time.UTC)

type fixture struct {
	worker *Worker
	jobSvc jobdomain.Service
	jobs   jobdomain.Store
	events eventdomain.Store
	clk    *clock.FakeClock
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&eventdomain.UsageEvent{}, &jobdomain.BatchJob{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(testNow)
	log := zap.NewNop()

	eventStore := eventrepository.New(db)
	eventSvc := eventservice.NewService(eventservice.ServiceParam{
		Log:    log,
		GenID:  node,
		Events: eventStore,
		Clock:  clk,
	})

	jobStore := jobrepository.New(db)
	jobSvc := jobservice.NewService(jobservice.ServiceParam{
		Log:   log,
		GenID: node,
		Jobs:  jobStore,
		Clock: clk,
	})

	worker := NewWorker(Params{
		Log:    log,
		Jobs:   jobStore,
		Events: eventSvc,
		Clock:  clk,
		Config: cfg,
	})

	return &fixture{
		worker: worker,
		jobSvc: jobSvc,
		jobs:   jobStore,
		events: eventStore,
		clk:    clk,
	}
}

func batchOf(ids ...string) eventdomain.BatchRequest {
	events := make([]eventdomain.EventSubmission, 0, len(ids))
	for _, id := range ids {
		events = append(events, eventdomain.EventSubmission{
			ExternalEventID: id,
			PatientID:       "patient-1",
			DeviceID:        "dev1",
			EventType:       "puff",
			Timestamp:       testNow,
		})
	}
	return eventdomain.BatchRequest{Events: events}
}

func TestRunOnce_CompletesPendingJob(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	jobID, err := f.jobSvc.Enqueue(ctx, batchOf("evt-1", "evt-2"))
	require.NoError(t, err)

	require.NoError(t, f.worker.RunOnce(ctx))

	job, err := f.jobs.Find(ctx, jobID)
	require.NoError(t, err)
	require.NotNil(t, job)

	assert.Equal(t, jobdomain.StatusCompleted, job.Status)
	require.NotNil(t, job.ProcessedAt)
	assert.Empty(t, job.ErrorMessage)
	assert.Equal(t, 0, job.RetryCount)

	// The stored result has the same shape the synchronous path returns.
	var result eventdomain.BatchResult
	require.NoError(t, json.Unmarshal(job.Result, &result))
	assert.Equal(t, 2, result.TotalProcessed)
	assert.Equal(t, []string{"evt-1", "evt-2"}, result.ProcessedEventIDs)
	assert.Equal(t, 50.0, result.UpdatedAdherenceScore)

	exists, err := f.events.Exists(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRunOnce_MalformedPayloadFailsJob(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	bad := &jobdomain.BatchJob{
		ID:        node.Generate(),
		Status:    jobdomain.StatusPending,
		Payload:   datatypes.JSON(`{broken`),
		CreatedAt: testNow,
	}
	require.NoError(t, f.jobs.Create(ctx, bad))

	require.NoError(t, f.worker.RunOnce(ctx))

	job, err := f.jobs.Find(ctx, bad.ID)
	require.NoError(t, err)
	require.NotNil(t, job)

	assert.Equal(t, jobdomain.StatusFailed, job.Status)
	assert.Equal(t, 1, job.RetryCount)
	assert.NotEmpty(t, job.ErrorMessage)
}

func TestRunOnce_UnknownPayloadVersionFailsJob(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	stale := &jobdomain.BatchJob{
		ID:        node.Generate(),
		Status:    jobdomain.StatusPending,
		Payload:   datatypes.JSON(`{"version":99,"events":[]}`),
		CreatedAt: testNow,
	}
	require.NoError(t, f.jobs.Create(ctx, stale))

	require.NoError(t, f.worker.RunOnce(ctx))

	job, err := f.jobs.Find(ctx, stale.ID)
	require.NoError(t, err)
	require.NotNil(t, job)

	assert.Equal(t, jobdomain.StatusFailed, job.Status)
	assert.Equal(t, 1, job.RetryCount)
	assert.Contains(t, job.ErrorMessage, "unsupported_payload_version")
}

func TestRunOnce_OneFailureDoesNotAbortTheTick(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	node, err := snowflake.NewNode(4)
	require.NoError(t, err)

	bad := &jobdomain.BatchJob{
		ID:        node.Generate(),
		Status:    jobdomain.StatusPending,
		Payload:   datatypes.JSON(`{broken`),
		CreatedAt: testNow,
	}
	require.NoError(t, f.jobs.Create(ctx, bad))

	f.clk.Advance(time.Second)
	goodID, err := f.jobSvc.Enqueue(ctx, batchOf("evt-ok"))
	require.NoError(t, err)

	require.NoError(t, f.worker.RunOnce(ctx))

	badJob, err := f.jobs.Find(ctx, bad.ID)
	require.NoError(t, err)
	assert.Equal(t, jobdomain.StatusFailed, badJob.Status)

	goodJob, err := f.jobs.Find(ctx, goodID)
	require.NoError(t, err)
	assert.Equal(t, jobdomain.StatusCompleted, goodJob.Status)
}

func TestRunOnce_ProcessesOldestFirstWithinBatchSize(t *testing.T) {
	f := newFixture(t, Config{BatchSize: 1})
	ctx := context.Background()

	oldID, err := f.jobSvc.Enqueue(ctx, batchOf("evt-old"))
	require.NoError(t, err)

	f.clk.Advance(time.Minute)
	newID, err := f.jobSvc.Enqueue(ctx, batchOf("evt-new"))
	require.NoError(t, err)

	require.NoError(t, f.worker.RunOnce(ctx))

	oldJob, err := f.jobs.Find(ctx, oldID)
	require.NoError(t, err)
	assert.Equal(t, jobdomain.StatusCompleted, oldJob.Status)

	newJob, err := f.jobs.Find(ctx, newID)
	require.NoError(t, err)
	assert.Equal(t, jobdomain.StatusPending, newJob.Status)
}

func TestRunOnce_DuplicateSubmissionAcrossSyncAndAsync(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	// The same external id arrives on the synchronous path first.
	require.NoError(t, f.events.Insert(ctx, &eventdomain.UsageEvent{
		ID:              snowflake.ID(777),
		ExternalEventID: "evt-race",
		PatientID:       "patient-1",
		DeviceID:        "dev1",
		EventType:       "puff",
		Timestamp:       testNow,
		CreatedAt:       testNow,
	}))

	jobID, err := f.jobSvc.Enqueue(ctx, batchOf("evt-race"))
	require.NoError(t, err)

	require.NoError(t, f.worker.RunOnce(ctx))

	job, err := f.jobs.Find(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, jobdomain.StatusCompleted, job.Status)

	var result eventdomain.BatchResult
	require.NoError(t, json.Unmarshal(job.Result, &result))
	assert.Equal(t, 0, result.TotalProcessed)
	assert.Empty(t, result.ProcessedEventIDs)
}

func TestRunForever_StopsOnCancel(t *testing.T) {
	f := newFixture(t, Config{PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		f.worker.RunForever(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}
