package engine

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/cloudorch/orchestrator/internal/circuit"
	"github.com/cloudorch/orchestrator/internal/model"
	"github.com/cloudorch/orchestrator/internal/provider"
	"github.com/cloudorch/orchestrator/pkg/orcherr"
)

// setFileState transitions h.job.Files[idx] to state, persists the job,
// and republishes its progress. Used both by the happy path and by the
// cancellation paths that skip files without attempting them.
func (e *Engine) setFileState(h *jobHandle, idx int, state model.TransferState, lastError string) {
	h.mu.Lock()
	h.job.Files[idx].State = state
	if lastError != "" {
		h.job.Files[idx].LastError = lastError
	}
	h.job.ProgressPercentage = model.ProgressPercentage(h.job.Files)
	job := copyJob(h.job)
	h.mu.Unlock()

	e.maybeFlushProgress(h, job)
}

// maybeFlushProgress persists job and emits a progress event, but no more
// often than cfg.ProgressFlush, so a large job's many file completions
// don't each trigger a store write and an event.
func (e *Engine) maybeFlushProgress(h *jobHandle, job model.MigrationJob) {
	h.mu.Lock()
	flush := time.Since(h.lastProgress) >= e.cfg.ProgressFlush
	if flush {
		h.lastProgress = time.Now()
	}
	h.mu.Unlock()

	if !flush {
		return
	}
	e.persistSnapshot(job)
	e.publishJobEvent(job, "migration.progress", map[string]interface{}{
		"progress_percentage": job.ProgressPercentage,
	})
}

func (e *Engine) publishJobEvent(job model.MigrationJob, eventType string, extra map[string]interface{}) {
	if e.bus == nil {
		return
	}
	payload := map[string]interface{}{
		"job_id":              job.JobID,
		"status":              string(job.Status),
		"progress_percentage": job.ProgressPercentage,
		"owner":               job.Owner,
	}
	for k, v := range extra {
		payload[k] = v
	}
	e.bus.Publish(model.Event{Type: eventType, Payload: payload})
	if e.metrics != nil {
		e.metrics.RecordEventPublished(eventType)
	}
}

// isRetryable classifies which orcherr codes get another attempt, per
// spec §4.6's retry policy: TRANSIENT retries up to MaxAttempts; a
// QUOTA_EXCEEDED-origin OVERLOADED (surfaced by the provider adapter
// boundary, not the ready queue) gets exactly one extra, longer-delayed
// retry; everything else fails the file after its first attempt.
func isRetryable(code orcherr.Code, attempt int) (retry bool, delay time.Duration) {
	switch code {
	case orcherr.CodeTransient:
		return true, backoffDelay(attempt)
	case orcherr.CodeOverloaded:
		return attempt == 1, 5 * time.Second
	default:
		return false, 0
	}
}

func backoffDelay(attempt int) time.Duration {
	d := 500 * time.Millisecond
	for i := 1; i < attempt && d < 5*time.Second; i++ {
		d *= 2
	}
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	jitter := time.Duration(float64(d) * 0.2 * (rand.Float64()*2 - 1))
	return d + jitter
}

// transferFile drives one FileTransfer's state machine to a terminal
// state (VERIFIED or FAILED), retrying TRANSIENT and once-only
// QUOTA_EXCEEDED failures per the policy above, and checking for
// cancellation between attempts.
func (e *Engine) transferFile(ctx context.Context, h *jobHandle, idx int) {
	h.mu.Lock()
	job := h.job
	srcProvider := provider.Name(job.SourceProvider)
	destProvider := provider.Name(job.DestProvider)
	srcContainer := job.SourceContainer
	destContainer := job.DestContainer
	file := job.Files[idx]
	h.mu.Unlock()

	src, ok := e.providers[srcProvider]
	if !ok {
		e.setFileState(h, idx, model.TransferFailed, "source provider not configured")
		return
	}
	dest, ok := e.providers[destProvider]
	if !ok {
		e.setFileState(h, idx, model.TransferFailed, "destination provider not configured")
		return
	}

	breaker := e.breakers.GetBreakerForRoute(string(srcProvider), string(destProvider))

	attempt := file.Attempts
	for {
		if h.isCancelled() {
			e.setFileState(h, idx, model.TransferSkipped, "")
			return
		}

		attempt++
		h.mu.Lock()
		h.job.Files[idx].State = model.TransferInFlight
		h.job.Files[idx].Attempts = attempt
		h.mu.Unlock()

		start := time.Now()
		fileCtx, cancel := context.WithTimeout(ctx, e.cfg.FileDeadline)
		ref, err := e.attemptFile(fileCtx, breaker, src, dest, srcContainer, destContainer, file.SourceKey, file.DestKey)
		cancel()
		duration := time.Since(start)

		if e.metrics != nil {
			errCode := ""
			if err != nil {
				errCode = string(orcherr.CodeOf(err))
			}
			e.metrics.RecordProviderCall(string(destProvider), "copy_object", duration, errCode)
		}

		if err == nil {
			if e.metrics != nil {
				e.metrics.RecordTransfer(string(srcProvider), string(destProvider), duration, ref.SizeBytes)
			}
			h.mu.Lock()
			h.job.Files[idx].State = model.TransferVerified
			h.job.Files[idx].BytesTransferred = ref.SizeBytes
			h.job.Files[idx].LastError = ""
			h.job.ProgressPercentage = model.ProgressPercentage(h.job.Files)
			jobCopy := copyJob(h.job)
			h.mu.Unlock()
			e.maybeFlushProgress(h, jobCopy)
			e.publishJobEvent(jobCopy, "migration.file_completed", map[string]interface{}{
				"source_key": file.SourceKey,
				"dest_key":   file.DestKey,
				"bytes":      ref.SizeBytes,
			})
			return
		}

		code := orcherr.CodeOf(err)
		retry, delay := isRetryable(code, attempt)
		if !retry || attempt >= e.cfg.MaxAttempts {
			e.setFileState(h, idx, model.TransferFailed, err.Error())
			e.publishJobEvent(h.snapshot(), "migration.file_failed", map[string]interface{}{
				"source_key": file.SourceKey,
				"dest_key":   file.DestKey,
				"error":      err.Error(),
			})
			return
		}

		h.mu.Lock()
		h.job.Files[idx].State = model.TransferQueued
		h.job.Files[idx].LastError = err.Error()
		h.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// attemptFile performs one copy attempt through the destination
// provider's circuit breaker, translating a tripped breaker into the
// same OVERLOADED code the ready-queue capacity check uses.
func (e *Engine) attemptFile(ctx context.Context, breaker *circuit.CircuitBreaker, src, dest provider.Adapter, srcContainer, destContainer, srcKey, destKey string) (model.ObjectRef, error) {
	var ref model.ObjectRef
	err := breaker.ExecuteWithContext(ctx, func(ctx context.Context) error {
		var copyErr error
		ref, copyErr = dest.CopyObject(ctx, src, provider.CopyOptions{
			SourceContainer: srcContainer,
			SourceKey:       srcKey,
			DestContainer:   destContainer,
			DestKey:         destKey,
		})
		return copyErr
	})
	if err != nil {
		if isBreakerTrip(err) {
			return model.ObjectRef{}, orcherr.Overloaded(component, "destination route is circuit-broken").WithCause(err)
		}
		return model.ObjectRef{}, err
	}
	return ref, nil
}

func isBreakerTrip(err error) bool {
	return errors.Is(err, circuit.ErrOpenState) || errors.Is(err, circuit.ErrTooManyRequests)
}

// finalizeJob computes the job's terminal status from its files' final
// states and persists/publishes it. Called once every FileTransfer has
// left QUEUED/IN_FLIGHT.
func (e *Engine) finalizeJob(h *jobHandle) {
	h.mu.Lock()
	counts := model.CountFiles(h.job.Files)
	if counts.Queued > 0 || counts.InFlight > 0 {
		// A worker returned early (context cancellation at shutdown)
		// before every file reached a terminal state; leave the job
		// RUNNING so a future Resume can pick up the remainder.
		h.mu.Unlock()
		return
	}

	cancelled := h.cancelled
	switch {
	case cancelled:
		h.job.Status = model.JobCancelled
	case counts.Failed == 0:
		h.job.Status = model.JobCompleted
	case counts.Completed == 0 && counts.Skipped == 0:
		h.job.Status = model.JobFailed
	default:
		h.job.Status = model.JobPartiallyFailed
	}
	h.job.ProgressPercentage = model.ProgressPercentage(h.job.Files)
	now := time.Now()
	h.job.CompletedAt = &now
	job := copyJob(h.job)
	h.mu.Unlock()

	e.persistSnapshot(job)
	e.decrementOwner(job.Owner)

	if e.catalog != nil {
		e.catalog.ApplyMigration(job, false)
	}

	eventType := "migration.completed"
	switch job.Status {
	case model.JobFailed:
		eventType = "migration.failed"
	case model.JobPartiallyFailed:
		eventType = "migration.partially_failed"
	case model.JobCancelled:
		eventType = "migration.cancelled"
	}
	e.publishJobEvent(job, eventType, nil)

	e.logger.Info("migration job finalized",
		slog.String("job_id", job.JobID),
		slog.String("status", string(job.Status)),
		slog.Int("completed", counts.Completed),
		slog.Int("failed", counts.Failed),
		slog.Int("skipped", counts.Skipped),
	)
}
