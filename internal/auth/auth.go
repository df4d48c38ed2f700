// Package auth implements the Auth/Identity component: principal
// registration with salted credential hashing, login issuing a signed
// bearer token, and the role-gate the Control API calls on every
// state-changing endpoint.
package auth

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/cloudorch/orchestrator/internal/model"
	"github.com/cloudorch/orchestrator/pkg/orcherr"
)

const component = "auth"

const defaultTokenTTL = 24 * time.Hour

// Store persists principals. A bbolt-backed implementation is used in
// production; tests use an in-memory one.
type Store interface {
	Get(principalID string) (model.Principal, bool, error)
	Put(principal model.Principal) error
}

// MemStore is an in-memory Store, safe for concurrent use.
type MemStore struct {
	mu         sync.RWMutex
	principals map[string]model.Principal
}

// NewMemStore builds an empty in-memory principal store.
func NewMemStore() *MemStore {
	return &MemStore{principals: make(map[string]model.Principal)}
}

func (s *MemStore) Get(principalID string) (model.Principal, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.principals[principalID]
	return p, ok, nil
}

func (s *MemStore) Put(principal model.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.principals[principal.ID] = principal
	return nil
}

// Service implements register/login/validate/require against a Store,
// signing bearer tokens with an HMAC secret.
type Service struct {
	store      Store
	secret     []byte
	tokenTTL   time.Duration
	bcryptCost int
}

// Config tunes token lifetime and bcrypt cost.
type Config struct {
	Secret     []byte
	TokenTTL   time.Duration
	BcryptCost int
}

// New builds a Service. config.Secret must be non-empty; it signs every
// bearer token this service issues or validates.
func New(store Store, config Config) *Service {
	ttl := config.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	cost := config.BcryptCost
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{store: store, secret: config.Secret, tokenTTL: ttl, bcryptCost: cost}
}

// claims is the bearer token's payload: principal_id, role, and
// expires_at, embedded per the spec's token contract.
type claims struct {
	jwt.RegisteredClaims
	Role model.Role `json:"role"`
}

// Register stores a salted, computationally expensive hash of
// credential under principalID. Re-registering an existing principal is
// a CONFLICT, never a silent overwrite.
func (s *Service) Register(principalID, credential string, role model.Role) (model.Principal, error) {
	if _, exists, _ := s.store.Get(principalID); exists {
		return model.Principal{}, orcherr.Conflict(component, "principal already registered").
			WithContext("principal_id", principalID)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(credential), s.bcryptCost)
	if err != nil {
		return model.Principal{}, orcherr.Internal(component, "failed to hash credential").WithCause(err)
	}

	principal := model.Principal{ID: principalID, Role: role, HashedCredential: string(hashed)}
	if err := s.store.Put(principal); err != nil {
		return model.Principal{}, orcherr.Internal(component, "failed to persist principal").WithCause(err)
	}
	return principal, nil
}

// Login verifies credential against the stored hash and returns a signed
// bearer token embedding principal_id, role, and expires_at.
func (s *Service) Login(principalID, credential string) (string, error) {
	principal, exists, err := s.store.Get(principalID)
	if err != nil {
		return "", orcherr.Internal(component, "failed to look up principal").WithCause(err)
	}
	if !exists {
		return "", orcherr.Unauthenticated(component, "unknown principal or credential")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(principal.HashedCredential), []byte(credential)); err != nil {
		return "", orcherr.Unauthenticated(component, "unknown principal or credential")
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
		Role: principal.Role,
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", orcherr.Internal(component, "failed to sign bearer token").WithCause(err)
	}
	return signed, nil
}

// Validate rejects expired, malformed, or signature-mismatched tokens
// and otherwise returns the Principal it encodes.
func (s *Service) Validate(bearerToken string) (model.Principal, error) {
	parsed, err := jwt.ParseWithClaims(bearerToken, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return model.Principal{}, orcherr.Unauthenticated(component, "invalid or expired bearer token")
	}

	c, ok := parsed.Claims.(*claims)
	if !ok {
		return model.Principal{}, orcherr.Unauthenticated(component, "invalid bearer token claims")
	}

	return model.Principal{ID: c.Subject, Role: c.Role}, nil
}

// Require validates bearerToken and checks the resulting principal's role
// against required, the gate every state-changing Control API endpoint
// calls before doing any work.
func (s *Service) Require(bearerToken string, required model.Role) (model.Principal, error) {
	principal, err := s.Validate(bearerToken)
	if err != nil {
		return model.Principal{}, err
	}
	if !principal.Role.Allows(required) {
		return model.Principal{}, orcherr.Forbidden(component, "principal's role does not permit this operation").
			WithContext("principal_id", principal.ID).
			WithContext("required_role", string(required))
	}
	return principal, nil
}
