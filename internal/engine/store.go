package engine

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.etcd.io/bbolt"

	"github.com/cloudorch/orchestrator/internal/model"
)

// JobStore persists MigrationJobs (with their FileTransfer children
// embedded) so that a restart can resume PENDING and RUNNING jobs per
// spec §4.6 "Durability". Per the open question resolution, the
// production implementation is bbolt-backed; tests use the in-memory one.
type JobStore interface {
	Put(job model.MigrationJob) error
	Get(jobID string) (model.MigrationJob, bool, error)
	List() ([]model.MigrationJob, error)
	Delete(jobID string) error
}

// MemJobStore is an in-memory JobStore, safe for concurrent use.
type MemJobStore struct {
	mu   sync.RWMutex
	jobs map[string]model.MigrationJob
}

// NewMemJobStore builds an empty in-memory job store.
func NewMemJobStore() *MemJobStore {
	return &MemJobStore{jobs: make(map[string]model.MigrationJob)}
}

func (s *MemJobStore) Put(job model.MigrationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.JobID] = job
	return nil
}

func (s *MemJobStore) Get(jobID string) (model.MigrationJob, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	return job, ok, nil
}

func (s *MemJobStore) List() ([]model.MigrationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.MigrationJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job)
	}
	return out, nil
}

func (s *MemJobStore) Delete(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobID)
	return nil
}

// migrationJobsBucket is the bbolt bucket named in the open question
// resolution's persisted state layout: one row per job, JSON-encoded,
// keyed by job_id. FileTransfers are embedded in the same value rather
// than split into a side bucket, since a FileTransfer never outlives its
// job and the whole job is always read and written as one unit.
var migrationJobsBucket = []byte("migration_jobs")

// BoltJobStore is the production JobStore, backed by a bbolt database
// file per spec §6's "Persisted state layout".
type BoltJobStore struct {
	db *bbolt.DB
}

// OpenBoltJobStore opens (creating if necessary) a bbolt database at path
// and ensures the migration_jobs bucket exists.
func OpenBoltJobStore(path string) (*BoltJobStore, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open engine store: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(migrationJobsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init engine store: %w", err)
	}
	return &BoltJobStore{db: db}, nil
}

// Close releases the underlying database file.
func (s *BoltJobStore) Close() error {
	return s.db.Close()
}

func (s *BoltJobStore) Put(job model.MigrationJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(migrationJobsBucket).Put([]byte(job.JobID), data)
	})
}

func (s *BoltJobStore) Get(jobID string) (model.MigrationJob, bool, error) {
	var job model.MigrationJob
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(migrationJobsBucket).Get([]byte(jobID))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &job)
	})
	if err != nil {
		return model.MigrationJob{}, false, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return job, found, nil
}

func (s *BoltJobStore) List() ([]model.MigrationJob, error) {
	var out []model.MigrationJob
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(migrationJobsBucket).ForEach(func(_, data []byte) error {
			var job model.MigrationJob
			if err := json.Unmarshal(data, &job); err != nil {
				return err
			}
			out = append(out, job)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return out, nil
}

func (s *BoltJobStore) Delete(jobID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(migrationJobsBucket).Delete([]byte(jobID))
	})
}
