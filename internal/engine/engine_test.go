package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudorch/orchestrator/internal/model"
	"github.com/cloudorch/orchestrator/internal/provider"
)

func testConfig() Config {
	return Config{
		MaxWorkers:            4,
		MaxPerJob:             2,
		MaxPerRoute:           2,
		MaxAttempts:           3,
		ReadyQueueCapacity:    100,
		FileDeadline:          time.Second,
		DedupWindow:           time.Minute,
		ProgressFlush:         0,
		MaxActiveJobsPerOwner: 10,
		MaxFileListSize:       1000,
	}
}

func seedObjects(t *testing.T, adapter *provider.MockAdapter, container string, keys ...string) {
	t.Helper()
	for _, key := range keys {
		adapter.Seed(container, model.ObjectRef{Key: key, SizeBytes: 42}, []byte("payload:"+key))
	}
}

func newTestEngine(t *testing.T) (*Engine, *provider.MockAdapter, *provider.MockAdapter) {
	t.Helper()
	src := provider.NewMockAdapter()
	dst := provider.NewMockAdapter()
	providers := map[provider.Name]provider.Adapter{
		provider.Name("mock-src"): src,
		provider.Name("mock-dst"): dst,
	}
	e := New(testConfig(), NewMemJobStore(), providers, nil, nil, nil, nil, nil)
	return e, src, dst
}

func awaitTerminal(t *testing.T, e *Engine, jobID string) model.MigrationJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := e.Get(jobID, "owner-1", true)
		require.NoError(t, err)
		if job.Status.IsTerminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state", jobID)
	return model.MigrationJob{}
}

// S1: every file copies cleanly; the job completes with full progress and
// every file VERIFIED.
func TestEngine_HappyPath(t *testing.T) {
	e, src, _ := newTestEngine(t)
	seedObjects(t, src, "bucket-a", "a.txt", "b.txt", "c.txt")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer e.Stop()

	job, err := e.Create(ctx, CreateRequest{
		SourceProvider:  "mock-src",
		DestProvider:    "mock-dst",
		SourceContainer: "bucket-a",
		DestContainer:   "bucket-b",
		FileList:        []string{"a.txt", "b.txt", "c.txt"},
		Owner:           "owner-1",
	})
	require.NoError(t, err)

	final := awaitTerminal(t, e, job.JobID)
	assert.Equal(t, model.JobCompleted, final.Status)
	assert.Equal(t, float64(100), final.ProgressPercentage)
	for _, f := range final.Files {
		assert.Equal(t, model.TransferVerified, f.State)
	}
}

// S2: one file is missing at the source (NOT_FOUND, non-retryable) so it
// fails after exactly one attempt while the rest complete; the job ends
// PARTIALLY_FAILED and every file is accounted for.
func TestEngine_PartialFailureNonRetryable(t *testing.T) {
	e, src, _ := newTestEngine(t)
	seedObjects(t, src, "bucket-a", "a.txt", "c.txt")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer e.Stop()

	job, err := e.Create(ctx, CreateRequest{
		SourceProvider:  "mock-src",
		DestProvider:    "mock-dst",
		SourceContainer: "bucket-a",
		DestContainer:   "bucket-b",
		FileList:        []string{"a.txt", "missing.txt", "c.txt"},
		Owner:           "owner-1",
	})
	require.NoError(t, err)

	final := awaitTerminal(t, e, job.JobID)
	assert.Equal(t, model.JobPartiallyFailed, final.Status)

	counts := model.CountFiles(final.Files)
	assert.Equal(t, 2, counts.Completed)
	assert.Equal(t, 1, counts.Failed)
	assert.Equal(t, len(final.Files), counts.Total())

	for _, f := range final.Files {
		if f.SourceKey == "missing.txt" {
			assert.Equal(t, model.TransferFailed, f.State)
			assert.Equal(t, 1, f.Attempts, "NOT_FOUND must not be retried")
		}
	}
}

// S3: cancelling a job before any of its files has started marks every file
// SKIPPED and the job reaches CANCELLED without losing track of any file.
func TestEngine_CancelPending(t *testing.T) {
	e, src, _ := newTestEngine(t)
	seedObjects(t, src, "bucket-a", "a.txt", "b.txt")

	ctx := context.Background()
	// Not started: e.Start is never called, so the job stays PENDING with
	// every file QUEUED until cancelled.
	job, err := e.Create(ctx, CreateRequest{
		SourceProvider:  "mock-src",
		DestProvider:    "mock-dst",
		SourceContainer: "bucket-a",
		DestContainer:   "bucket-b",
		FileList:        []string{"a.txt", "b.txt"},
		Owner:           "owner-1",
	})
	require.NoError(t, err)

	require.NoError(t, e.Cancel(job.JobID, "owner-1", false))

	final, err := e.Get(job.JobID, "owner-1", false)
	require.NoError(t, err)
	assert.Equal(t, model.JobCancelled, final.Status)
	for _, f := range final.Files {
		assert.Equal(t, model.TransferSkipped, f.State)
	}

	err = e.Cancel(job.JobID, "owner-1", false)
	assert.Error(t, err, "cancelling an already-terminal job is a conflict")
}

// Resubmitting the identical request within the dedup window returns the
// original job rather than creating a second one.
func TestEngine_CreateIsIdempotentWithinDedupWindow(t *testing.T) {
	e, src, _ := newTestEngine(t)
	seedObjects(t, src, "bucket-a", "a.txt")

	ctx := context.Background()
	req := CreateRequest{
		SourceProvider:  "mock-src",
		DestProvider:    "mock-dst",
		SourceContainer: "bucket-a",
		DestContainer:   "bucket-b",
		FileList:        []string{"a.txt"},
		Owner:           "owner-1",
	}

	first, err := e.Create(ctx, req)
	require.NoError(t, err)

	second, err := e.Create(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.JobID, second.JobID)
	assert.Len(t, e.List("owner-1", false), 1)
}

// Progress is monotonically non-decreasing across the lifetime of a job.
func TestEngine_ProgressIsMonotonic(t *testing.T) {
	e, src, _ := newTestEngine(t)
	seedObjects(t, src, "bucket-a", "a.txt", "b.txt", "c.txt", "d.txt")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer e.Stop()

	job, err := e.Create(ctx, CreateRequest{
		SourceProvider:  "mock-src",
		DestProvider:    "mock-dst",
		SourceContainer: "bucket-a",
		DestContainer:   "bucket-b",
		FileList:        []string{"a.txt", "b.txt", "c.txt", "d.txt"},
		Owner:           "owner-1",
	})
	require.NoError(t, err)

	last := 0.0
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		current, err := e.Get(job.JobID, "owner-1", true)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, current.ProgressPercentage, last)
		last = current.ProgressPercentage
		if current.Status.IsTerminal() {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	assert.Equal(t, float64(100), last)
}

// Creating a job against an unknown provider is rejected before anything
// is persisted or enqueued.
func TestEngine_CreateRejectsUnknownProvider(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Create(ctx, CreateRequest{
		SourceProvider:  "does-not-exist",
		DestProvider:    "mock-dst",
		SourceContainer: "bucket-a",
		DestContainer:   "bucket-b",
		FileList:        []string{"a.txt"},
		Owner:           "owner-1",
	})
	assert.Error(t, err)
	assert.Empty(t, e.List("owner-1", false))
}

// A caller cannot see or cancel another owner's job.
func TestEngine_JobVisibilityIsScopedToOwner(t *testing.T) {
	e, src, _ := newTestEngine(t)
	seedObjects(t, src, "bucket-a", "a.txt")

	ctx := context.Background()
	job, err := e.Create(ctx, CreateRequest{
		SourceProvider:  "mock-src",
		DestProvider:    "mock-dst",
		SourceContainer: "bucket-a",
		DestContainer:   "bucket-b",
		FileList:        []string{"a.txt"},
		Owner:           "owner-1",
	})
	require.NoError(t, err)

	_, err = e.Get(job.JobID, "owner-2", false)
	assert.Error(t, err)

	err = e.Cancel(job.JobID, "owner-2", false)
	assert.Error(t, err)

	_, err = e.Get(job.JobID, "owner-2", true)
	assert.NoError(t, err, "an admin can see any job")
}

// Resume restores PENDING/RUNNING jobs from the store and re-drives them
// to completion without the caller creating them again.
func TestEngine_ResumeReDrivesPersistedJobs(t *testing.T) {
	store := NewMemJobStore()
	src := provider.NewMockAdapter()
	dst := provider.NewMockAdapter()
	seedObjects(t, src, "bucket-a", "a.txt", "b.txt")

	providers := map[provider.Name]provider.Adapter{
		provider.Name("mock-src"): src,
		provider.Name("mock-dst"): dst,
	}

	// Simulate a prior process having persisted a RUNNING job with one
	// file still IN_FLIGHT (an interrupted transfer) before restart.
	job := model.MigrationJob{
		JobID:           "resumed-job",
		SourceProvider:  "mock-src",
		DestProvider:    "mock-dst",
		SourceContainer: "bucket-a",
		DestContainer:   "bucket-b",
		FileList:        []string{"a.txt", "b.txt"},
		Files: []model.FileTransfer{
			{SourceKey: "a.txt", DestKey: "a.txt", State: model.TransferInFlight},
			{SourceKey: "b.txt", DestKey: "b.txt", State: model.TransferQueued},
		},
		Priority: model.JobPriorityNormal,
		Status:   model.JobRunning,
		Owner:    "owner-1",
	}
	require.NoError(t, store.Put(job))

	e := New(testConfig(), store, providers, nil, nil, nil, nil, nil)
	require.NoError(t, e.Resume(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer e.Stop()

	final := awaitTerminal(t, e, "resumed-job")
	assert.Equal(t, model.JobCompleted, final.Status)
}
