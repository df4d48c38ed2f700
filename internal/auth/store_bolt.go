package auth

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/cloudorch/orchestrator/internal/model"
)

// principalsBucket is the bbolt bucket named in the open question
// resolution's persisted state layout: one row per principal, JSON-
// encoded, keyed by principal_id.
var principalsBucket = []byte("principals")

// BoltStore is the production Store, backed by a bbolt database file.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens (creating if necessary) a bbolt database at path
// and ensures the principals bucket exists.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open auth store: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(principalsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init auth store: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Close releases the underlying database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// storedPrincipal mirrors model.Principal but keeps the hashed
// credential in the encoding: model.Principal tags it `json:"-"` so API
// responses never echo it back, but the store must still persist it.
type storedPrincipal struct {
	ID               string     `json:"id"`
	Role             model.Role `json:"role"`
	HashedCredential string     `json:"hashed_credential"`
}

func (s *BoltStore) Get(principalID string) (model.Principal, bool, error) {
	var stored storedPrincipal
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(principalsBucket).Get([]byte(principalID))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &stored)
	})
	if err != nil {
		return model.Principal{}, false, fmt.Errorf("get principal %s: %w", principalID, err)
	}
	principal := model.Principal{ID: stored.ID, Role: stored.Role, HashedCredential: stored.HashedCredential}
	return principal, found, nil
}

func (s *BoltStore) Put(principal model.Principal) error {
	data, err := json.Marshal(storedPrincipal{
		ID:               principal.ID,
		Role:             principal.Role,
		HashedCredential: principal.HashedCredential,
	})
	if err != nil {
		return fmt.Errorf("marshal principal: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(principalsBucket).Put([]byte(principal.ID), data)
	})
}
