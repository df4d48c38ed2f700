// Package engine implements the Migration Engine (C6): creation,
// durable persistence, priority scheduling, bounded-concurrency
// execution, retry, cancellation, and event emission for cross-provider
// migration jobs. It is, per spec §4.6, the heart of the system.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/google/uuid"

	"github.com/cloudorch/orchestrator/internal/catalog"
	"github.com/cloudorch/orchestrator/internal/circuit"
	"github.com/cloudorch/orchestrator/internal/eventbus"
	"github.com/cloudorch/orchestrator/internal/metrics"
	"github.com/cloudorch/orchestrator/internal/model"
	"github.com/cloudorch/orchestrator/internal/provider"
	"github.com/cloudorch/orchestrator/pkg/orcherr"
)

const component = "engine"

// Config tunes the engine's concurrency limits, retry policy, and
// durability knobs. Values normally come from internal/config.EngineConfig.
type Config struct {
	MaxWorkers            int
	MaxPerJob             int
	MaxPerRoute           int
	MaxAttempts           int
	ReadyQueueCapacity    int
	FileDeadline          time.Duration
	DedupWindow           time.Duration
	ProgressFlush         time.Duration
	MaxActiveJobsPerOwner int
	MaxFileListSize       int
}

func (c Config) withDefaults() Config {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 16
	}
	if c.MaxPerJob <= 0 {
		c.MaxPerJob = 4
	}
	if c.MaxPerRoute <= 0 {
		c.MaxPerRoute = 4
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.ReadyQueueCapacity <= 0 {
		c.ReadyQueueCapacity = 500
	}
	if c.FileDeadline <= 0 {
		c.FileDeadline = 60 * time.Second
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = 5 * time.Minute
	}
	if c.ProgressFlush <= 0 {
		c.ProgressFlush = 2 * time.Second
	}
	if c.MaxActiveJobsPerOwner <= 0 {
		c.MaxActiveJobsPerOwner = 10
	}
	if c.MaxFileListSize <= 0 {
		c.MaxFileListSize = 10000
	}
	return c
}

// jobHandle is the live, lockable view of one MigrationJob. Per spec §5,
// "MigrationJob state transitions are guarded by a per-job lock" — mu is
// that lock, held for every read or write of job.
type jobHandle struct {
	mu           sync.Mutex
	job          model.MigrationJob
	cancelled    bool
	lastProgress time.Time
}

func (h *jobHandle) snapshot() model.MigrationJob {
	h.mu.Lock()
	defer h.mu.Unlock()
	return copyJob(h.job)
}

func copyJob(job model.MigrationJob) model.MigrationJob {
	out := job
	out.Files = append([]model.FileTransfer(nil), job.Files...)
	out.FileList = append([]string(nil), job.FileList...)
	return out
}

func (h *jobHandle) isCancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

func (h *jobHandle) requestCancel() {
	h.mu.Lock()
	h.cancelled = true
	h.mu.Unlock()
}

// Engine is the Migration Engine. One Engine serves every configured
// provider route; its ready queue and worker pool are process-wide.
type Engine struct {
	cfg       Config
	store     JobStore
	providers map[provider.Name]provider.Adapter
	bus       *eventbus.Bus
	catalog   *catalog.Catalog
	breakers  *circuit.Manager
	metrics   *metrics.Collector
	logger    *slog.Logger

	queue     *queue
	globalSem *semaphore.Weighted

	routeMu   sync.Mutex
	routeSems map[string]*semaphore.Weighted

	jobsMu sync.RWMutex
	jobs   map[string]*jobHandle

	ownerMu     sync.Mutex
	ownerActive map[string]int

	dedupMu sync.Mutex
	dedup   map[string]dedupEntry

	wg sync.WaitGroup
}

type dedupEntry struct {
	jobID   string
	expires time.Time
}

// New builds an Engine. providers must contain every adapter the engine
// may be asked to move objects between. bus and cat may be nil in tests
// that do not exercise event emission or catalog updates.
func New(cfg Config, store JobStore, providers map[provider.Name]provider.Adapter, bus *eventbus.Bus, cat *catalog.Catalog, breakers *circuit.Manager, collector *metrics.Collector, logger *slog.Logger) *Engine {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if breakers == nil {
		breakers = circuit.NewManager(circuit.Config{})
	}
	return &Engine{
		cfg:         cfg,
		store:       store,
		providers:   providers,
		bus:         bus,
		catalog:     cat,
		breakers:    breakers,
		metrics:     collector,
		logger:      logger,
		queue:       newQueue(cfg.ReadyQueueCapacity),
		globalSem:   semaphore.NewWeighted(int64(cfg.MaxWorkers)),
		routeSems:   make(map[string]*semaphore.Weighted),
		jobs:        make(map[string]*jobHandle),
		ownerActive: make(map[string]int),
		dedup:       make(map[string]dedupEntry),
	}
}

func (e *Engine) routeSemaphore(routeKey string) *semaphore.Weighted {
	e.routeMu.Lock()
	defer e.routeMu.Unlock()
	sem, ok := e.routeSems[routeKey]
	if !ok {
		sem = semaphore.NewWeighted(int64(e.cfg.MaxPerRoute))
		e.routeSems[routeKey] = sem
	}
	return sem
}

// Resume reloads every PENDING or RUNNING job from the store, moves any
// file found IN_FLIGHT back to QUEUED (the in-flight worker that was
// processing it is gone, per spec §4.6 "Durability"), and re-enqueues the
// job, bypassing the ready queue's capacity check since a resumed job's
// durability is non-negotiable.
func (e *Engine) Resume(ctx context.Context) error {
	jobs, err := e.store.List()
	if err != nil {
		return fmt.Errorf("list jobs for resume: %w", err)
	}
	for _, job := range jobs {
		if job.Status.IsTerminal() {
			continue
		}
		for i := range job.Files {
			if job.Files[i].State == model.TransferInFlight {
				job.Files[i].State = model.TransferQueued
			}
		}
		if err := e.store.Put(job); err != nil {
			return fmt.Errorf("persist resumed job %s: %w", job.JobID, err)
		}

		h := &jobHandle{job: job}
		e.jobsMu.Lock()
		e.jobs[job.JobID] = h
		e.jobsMu.Unlock()

		e.ownerMu.Lock()
		e.ownerActive[job.Owner]++
		e.ownerMu.Unlock()

		e.queue.pushUnbounded(job.JobID, job.Priority)
		e.logger.Info("resumed migration job", slog.String("job_id", job.JobID), slog.String("status", string(job.Status)))
	}
	return nil
}

// Start launches the fixed-size worker pool that drains the ready queue.
// Each worker runs one job to completion before picking up the next.
func (e *Engine) Start(ctx context.Context) {
	for i := 0; i < e.cfg.MaxWorkers; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for {
				jobID, ok := e.queue.pop(ctx)
				if !ok {
					return
				}
				e.runJob(ctx, jobID)
			}
		}()
	}
}

// Stop closes the ready queue and waits for in-flight workers to return.
// Workers observe queue closure at their next dequeue and exit; a job
// already running finishes its current file transfer before Stop returns.
func (e *Engine) Stop() {
	e.queue.close()
	e.wg.Wait()
}

// CreateRequest is a migration creation request as accepted by the
// Control API, already resolved to concrete container names.
type CreateRequest struct {
	SourceProvider  provider.Name
	DestProvider    provider.Name
	SourceContainer string
	DestContainer   string
	FileList        []string
	Priority        model.JobPriority
	Owner           string
}

func dedupKey(req CreateRequest) string {
	h := sha256.New()
	h.Write([]byte(req.Owner))
	h.Write([]byte{0})
	h.Write([]byte(req.SourceProvider))
	h.Write([]byte{0})
	h.Write([]byte(req.DestProvider))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(req.FileList, "\x1f")))
	return hex.EncodeToString(h.Sum(nil))
}

// Create validates req, persists a new PENDING MigrationJob with its
// FileTransfers QUEUED, and enqueues it onto the ready queue. Re-
// submitting the identical (owner, source, dest, file_list) within the
// configured dedup window returns the job already created for it instead
// of creating a duplicate.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (model.MigrationJob, error) {
	if err := e.validateCreate(req); err != nil {
		return model.MigrationJob{}, err
	}

	key := dedupKey(req)
	e.dedupMu.Lock()
	if entry, ok := e.dedup[key]; ok && time.Now().Before(entry.expires) {
		e.dedupMu.Unlock()
		existing, found, err := e.store.Get(entry.jobID)
		if err == nil && found {
			return existing, nil
		}
	} else {
		e.dedupMu.Unlock()
	}

	srcAdapter := e.providers[req.SourceProvider]
	if _, err := srcAdapter.Stat(ctx, req.SourceContainer, req.FileList[0]); err != nil {
		code := orcherr.CodeOf(err)
		if code == orcherr.CodeForbidden || code == orcherr.CodeProviderUnavailable {
			return model.MigrationJob{}, err
		}
		// NOT_FOUND on the representative file still proves the
		// container is reachable; the file itself fails later as its
		// own FileTransfer, same as any other missing object (S2).
	}

	e.ownerMu.Lock()
	if e.ownerActive[req.Owner] >= e.cfg.MaxActiveJobsPerOwner {
		e.ownerMu.Unlock()
		return model.MigrationJob{}, orcherr.Overloaded(component, "owner has reached the active migration job cap").
			WithContext("owner", req.Owner)
	}
	e.ownerActive[req.Owner]++
	e.ownerMu.Unlock()

	now := time.Now()
	files := make([]model.FileTransfer, len(req.FileList))
	for i, key := range req.FileList {
		files[i] = model.FileTransfer{SourceKey: key, DestKey: key, State: model.TransferQueued}
	}

	job := model.MigrationJob{
		JobID:           uuid.NewString(),
		SourceProvider:  string(req.SourceProvider),
		DestProvider:    string(req.DestProvider),
		SourceContainer: req.SourceContainer,
		DestContainer:   req.DestContainer,
		FileList:        append([]string(nil), req.FileList...),
		Files:           files,
		Priority:        normalizePriority(req.Priority),
		Status:          model.JobPending,
		CreatedAt:       now,
		Owner:           req.Owner,
		DedupKey:        key,
	}

	if err := e.store.Put(job); err != nil {
		e.ownerMu.Lock()
		e.ownerActive[req.Owner]--
		e.ownerMu.Unlock()
		return model.MigrationJob{}, orcherr.Internal(component, "failed to persist migration job").WithCause(err)
	}

	h := &jobHandle{job: job}
	e.jobsMu.Lock()
	e.jobs[job.JobID] = h
	e.jobsMu.Unlock()

	if err := e.queue.push(job.JobID, job.Priority); err != nil {
		e.jobsMu.Lock()
		delete(e.jobs, job.JobID)
		e.jobsMu.Unlock()
		_ = e.store.Delete(job.JobID)
		e.ownerMu.Lock()
		e.ownerActive[req.Owner]--
		e.ownerMu.Unlock()
		return model.MigrationJob{}, err
	}

	e.dedupMu.Lock()
	e.dedup[key] = dedupEntry{jobID: job.JobID, expires: now.Add(e.cfg.DedupWindow)}
	e.dedupMu.Unlock()

	return job, nil
}

func normalizePriority(p model.JobPriority) model.JobPriority {
	switch p {
	case model.JobPriorityHigh, model.JobPriorityLow:
		return p
	default:
		return model.JobPriorityNormal
	}
}

func (e *Engine) validateCreate(req CreateRequest) error {
	if _, ok := e.providers[req.SourceProvider]; !ok {
		return orcherr.InvalidArgument(component, "unknown source provider").WithContext("provider", string(req.SourceProvider))
	}
	if _, ok := e.providers[req.DestProvider]; !ok {
		return orcherr.InvalidArgument(component, "unknown destination provider").WithContext("provider", string(req.DestProvider))
	}
	if req.SourceContainer == "" || req.DestContainer == "" {
		return orcherr.InvalidArgument(component, "source and destination containers are required")
	}
	if len(req.FileList) == 0 {
		return orcherr.InvalidArgument(component, "file_list must not be empty")
	}
	if len(req.FileList) > e.cfg.MaxFileListSize {
		return orcherr.InvalidArgument(component, "file_list exceeds the configured maximum").
			WithContext("max_file_list_size", fmt.Sprint(e.cfg.MaxFileListSize))
	}
	if req.Owner == "" {
		return orcherr.InvalidArgument(component, "owner is required")
	}
	return nil
}

// Get returns the job identified by jobID, restricted to what principal
// may see: an admin may look up any job, anyone else only their own.
func (e *Engine) Get(jobID, principalID string, isAdmin bool) (model.MigrationJob, error) {
	e.jobsMu.RLock()
	h, ok := e.jobs[jobID]
	e.jobsMu.RUnlock()
	if !ok {
		return model.MigrationJob{}, orcherr.NotFound(component, "migration job not found").WithContext("job_id", jobID)
	}
	job := h.snapshot()
	if !isAdmin && job.Owner != principalID {
		return model.MigrationJob{}, orcherr.NotFound(component, "migration job not found").WithContext("job_id", jobID)
	}
	return job, nil
}

// List returns every job visible to principal: every job for an admin,
// only the caller's own jobs otherwise.
func (e *Engine) List(principalID string, isAdmin bool) []model.MigrationJob {
	e.jobsMu.RLock()
	handles := make([]*jobHandle, 0, len(e.jobs))
	for _, h := range e.jobs {
		handles = append(handles, h)
	}
	e.jobsMu.RUnlock()

	out := make([]model.MigrationJob, 0, len(handles))
	for _, h := range handles {
		job := h.snapshot()
		if isAdmin || job.Owner == principalID {
			out = append(out, job)
		}
	}
	return out
}

// Cancel requests cancellation of jobID. Queued files not yet started are
// marked SKIPPED immediately; in-flight files finish or fail their
// current attempt and are counted. A job already in a terminal state
// cannot be cancelled: cancelling it is a CONFLICT that leaves state
// unchanged.
func (e *Engine) Cancel(jobID, principalID string, isAdmin bool) error {
	e.jobsMu.RLock()
	h, ok := e.jobs[jobID]
	e.jobsMu.RUnlock()
	if !ok {
		return orcherr.NotFound(component, "migration job not found").WithContext("job_id", jobID)
	}

	h.mu.Lock()
	owner := h.job.Owner
	status := h.job.Status
	h.mu.Unlock()

	if !isAdmin && owner != principalID {
		return orcherr.NotFound(component, "migration job not found").WithContext("job_id", jobID)
	}
	if status.IsTerminal() {
		return orcherr.Conflict(component, "migration job has already reached a terminal state").
			WithContext("job_id", jobID).WithContext("status", string(status))
	}

	h.requestCancel()

	h.mu.Lock()
	pending := h.job.Status == model.JobPending
	if pending {
		for i := range h.job.Files {
			if h.job.Files[i].State == model.TransferQueued {
				h.job.Files[i].State = model.TransferSkipped
			}
		}
		h.job.Status = model.JobCancelled
		now := time.Now()
		h.job.CompletedAt = &now
		h.job.ProgressPercentage = model.ProgressPercentage(h.job.Files)
		job := copyJob(h.job)
		h.mu.Unlock()

		e.persistSnapshot(job)
		e.decrementOwner(job.Owner)
		e.publishJobEvent(job, "migration.cancelled", nil)
		return nil
	}
	h.mu.Unlock()

	// A RUNNING job's workers observe the cancellation flag between
	// files and finalize the job once they drain; see runJob/finalizeJob.
	return nil
}

func (e *Engine) decrementOwner(owner string) {
	e.ownerMu.Lock()
	if e.ownerActive[owner] > 0 {
		e.ownerActive[owner]--
	}
	e.ownerMu.Unlock()
}

func (e *Engine) persistSnapshot(job model.MigrationJob) {
	if err := e.store.Put(job); err != nil {
		e.logger.Error("failed to persist migration job", slog.String("job_id", job.JobID), slog.Any("error", err))
	}
}

// runJob marks jobID RUNNING, fans its QUEUED files out to at most
// min(file_count, MaxPerJob) concurrent transfers (each additionally
// gated by the engine-wide and per-route semaphores), and finalizes the
// job's terminal status once every file has left QUEUED/IN_FLIGHT.
func (e *Engine) runJob(ctx context.Context, jobID string) {
	e.jobsMu.RLock()
	h, ok := e.jobs[jobID]
	e.jobsMu.RUnlock()
	if !ok {
		return
	}

	h.mu.Lock()
	if h.job.Status.IsTerminal() {
		h.mu.Unlock()
		return
	}
	h.job.Status = model.JobRunning
	now := time.Now()
	h.job.StartedAt = &now
	job := copyJob(h.job)
	h.mu.Unlock()

	e.persistSnapshot(job)
	e.publishJobEvent(job, "migration.started", nil)

	total := len(job.Files)
	parallelism := e.cfg.MaxPerJob
	if parallelism > total {
		parallelism = total
	}
	if parallelism < 1 {
		parallelism = 1
	}
	localSem := semaphore.NewWeighted(int64(parallelism))

	routeKey := circuit.RouteKey(job.SourceProvider, job.DestProvider)
	var g errgroup.Group
	for idx := range job.Files {
		idx := idx

		h.mu.Lock()
		state := h.job.Files[idx].State
		h.mu.Unlock()
		if state != model.TransferQueued {
			continue
		}

		if h.isCancelled() {
			e.setFileState(h, idx, model.TransferSkipped, "")
			continue
		}

		if err := localSem.Acquire(ctx, 1); err != nil {
			continue
		}

		g.Go(func() error {
			defer localSem.Release(1)

			if err := e.globalSem.Acquire(ctx, 1); err != nil {
				return nil
			}
			defer e.globalSem.Release(1)

			routeSem := e.routeSemaphore(routeKey)
			if err := routeSem.Acquire(ctx, 1); err != nil {
				return nil
			}
			defer routeSem.Release(1)

			e.transferFile(ctx, h, idx)
			return nil
		})
	}
	_ = g.Wait()

	e.finalizeJob(h)
}
