package engine

import (
	"context"
	"sync"

	"github.com/cloudorch/orchestrator/internal/model"
	"github.com/cloudorch/orchestrator/pkg/orcherr"
)

// queue is the Migration Engine's ready queue: priority-ordered (high >
// normal > low), FIFO within a priority band, capped at a hard capacity.
// Pushing past capacity fails with OVERLOADED rather than blocking, per
// the backpressure policy in spec §5.
type queue struct {
	mu       sync.Mutex
	high     []string
	normal   []string
	low      []string
	capacity int

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

func newQueue(capacity int) *queue {
	if capacity <= 0 {
		capacity = 1000
	}
	return &queue{
		capacity: capacity,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

func (q *queue) len() int {
	return len(q.high) + len(q.normal) + len(q.low)
}

// push enqueues jobID at the band matching priority. It fails with
// OVERLOADED, without mutating the queue, once len == capacity.
func (q *queue) push(jobID string, priority model.JobPriority) error {
	q.mu.Lock()
	if q.len() >= q.capacity {
		q.mu.Unlock()
		return orcherr.Overloaded("engine", "ready queue is at capacity").
			WithContext("job_id", jobID)
	}
	switch priority {
	case model.JobPriorityHigh:
		q.high = append(q.high, jobID)
	case model.JobPriorityLow:
		q.low = append(q.low, jobID)
	default:
		q.normal = append(q.normal, jobID)
	}
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// pushUnbounded enqueues jobID ignoring the capacity check, used only to
// resume PENDING/RUNNING jobs found in the store at startup: durability
// requires they resume regardless of current queue pressure.
func (q *queue) pushUnbounded(jobID string, priority model.JobPriority) {
	q.mu.Lock()
	switch priority {
	case model.JobPriorityHigh:
		q.high = append(q.high, jobID)
	case model.JobPriorityLow:
		q.low = append(q.low, jobID)
	default:
		q.normal = append(q.normal, jobID)
	}
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *queue) tryPop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, bucket := range []*[]string{&q.high, &q.normal, &q.low} {
		if len(*bucket) > 0 {
			id := (*bucket)[0]
			*bucket = (*bucket)[1:]
			return id, true
		}
	}
	return "", false
}

// pop blocks until a job is ready, the queue is closed, or ctx is done.
func (q *queue) pop(ctx context.Context) (string, bool) {
	for {
		if id, ok := q.tryPop(); ok {
			return id, true
		}
		select {
		case <-q.wake:
			continue
		case <-q.done:
			return "", false
		case <-ctx.Done():
			return "", false
		}
	}
}

func (q *queue) close() {
	q.once.Do(func() { close(q.done) })
}
