package controlapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cloudorch/orchestrator/internal/auth"
	"github.com/cloudorch/orchestrator/internal/catalog"
	"github.com/cloudorch/orchestrator/internal/circuit"
	"github.com/cloudorch/orchestrator/internal/costmodel"
	"github.com/cloudorch/orchestrator/internal/engine"
	"github.com/cloudorch/orchestrator/internal/eventbus"
	"github.com/cloudorch/orchestrator/internal/model"
	"github.com/cloudorch/orchestrator/internal/placement"
	"github.com/cloudorch/orchestrator/internal/predictor"
	"github.com/cloudorch/orchestrator/internal/provider"
)

func testServer(t *testing.T) *Server {
	t.Helper()

	authSvc := auth.New(auth.NewMemStore(), auth.Config{Secret: []byte("test-secret"), BcryptCost: 4})
	cat := catalog.New()
	costs := costmodel.NewDefault()
	pred := predictor.New("", nil)
	classifier := placement.New(costs, pred, placement.Config{})
	bus := eventbus.New(eventbus.Config{})
	t.Cleanup(bus.Close)

	mockSrc := provider.NewMockAdapter()
	mockDst := provider.NewMockAdapter()
	providers := map[provider.Name]provider.Adapter{
		"mock-src": mockSrc,
		"mock-dst": mockDst,
	}

	store := engine.NewMemJobStore()
	breakers := circuit.NewManager(circuit.Config{})
	eng := engine.New(engine.Config{}, store, providers, bus, cat, breakers, nil, nil)

	return New(DefaultConfig(), authSvc, cat, classifier, costs, eng, bus, nil, nil, nil, providers, nil)
}

func registerAndLogin(t *testing.T, s *Server, id string, role model.Role) string {
	t.Helper()
	if _, err := s.authSvc.Register(id, "hunter2", role); err != nil {
		t.Fatalf("Register(%s): %v", id, err)
	}
	token, err := s.authSvc.Login(id, "hunter2")
	if err != nil {
		t.Fatalf("Login(%s): %v", id, err)
	}
	return token
}

func TestHandleRegisterAndLogin(t *testing.T) {
	s := testServer(t)

	body, _ := json.Marshal(registerRequest{PrincipalID: "alice", Credential: "hunter2", Role: model.RoleUser})
	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.handleRegister(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	loginBody, _ := json.Marshal(loginRequest{PrincipalID: "alice", Credential: "hunter2"})
	req = httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(loginBody))
	w = httptest.NewRecorder()
	s.handleLogin(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp loginResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Token == "" {
		t.Error("expected a non-empty bearer token")
	}
}

func TestHandleLoginRejectsWrongCredential(t *testing.T) {
	s := testServer(t)
	registerAndLogin(t, s, "bob", model.RoleViewer)

	body, _ := json.Marshal(loginRequest{PrincipalID: "bob", Credential: "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.handleLogin(w, req)

	if w.Code == http.StatusOK {
		t.Fatal("expected login with a wrong credential to fail")
	}
}

func TestRequireRoleRejectsMissingToken(t *testing.T) {
	s := testServer(t)
	handler := s.requireRole(model.RoleViewer, s.handleCatalogObjects)

	req := httptest.NewRequest(http.MethodGet, "/catalog/objects", nil)
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without a bearer token, got %d", w.Code)
	}
}

func TestRequireRoleRejectsInsufficientRole(t *testing.T) {
	s := testServer(t)
	token := registerAndLogin(t, s, "viewer-1", model.RoleViewer)

	handler := s.requireRole(model.RoleAdmin, s.handleCatalogRefresh)
	req := httptest.NewRequest(http.MethodPost, "/catalog/refresh", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for a viewer hitting an admin route, got %d", w.Code)
	}
}

func TestHandleCatalogObjectsPagination(t *testing.T) {
	s := testServer(t)

	adapter := s.providers["mock-src"].(*provider.MockAdapter)
	for i := 0; i < 5; i++ {
		adapter.Seed("bucket", model.ObjectRef{
			Provider:  "mock-src",
			Container: "bucket",
			Key:       string(rune('a' + i)),
			SizeBytes: 10,
		}, []byte("x"))
	}
	if _, err := s.cat.Refresh(context.Background(), "mock-src", adapter, []string{"bucket"}, time.Now()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	token := registerAndLogin(t, s, "viewer-2", model.RoleViewer)
	req := httptest.NewRequest(http.MethodGet, "/catalog/objects?limit=2", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.requireRole(model.RoleViewer, s.handleCatalogObjects)(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp catalogObjectsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Objects) != 2 {
		t.Fatalf("expected a 2-object page, got %d", len(resp.Objects))
	}
	if resp.NextCursor == "" {
		t.Error("expected a next cursor since more objects remain")
	}
}

func TestHandleMigrationsCreateRequiresUserRole(t *testing.T) {
	s := testServer(t)
	token := registerAndLogin(t, s, "viewer-3", model.RoleViewer)

	body, _ := json.Marshal(createMigrationRequest{
		SourceProvider:  "mock-src",
		DestProvider:    "mock-dst",
		SourceContainer: "bucket",
		DestContainer:   "bucket",
		FileList:        []string{"a"},
	})
	req := httptest.NewRequest(http.MethodPost, "/migrations", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.requireRole(model.RoleViewer, s.handleMigrationsCollection)(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for a viewer creating a migration, got %d", w.Code)
	}
}

func TestHandleMigrationByIDNotFoundForUnknownJob(t *testing.T) {
	s := testServer(t)
	token := registerAndLogin(t, s, "viewer-4", model.RoleViewer)

	req := httptest.NewRequest(http.MethodGet, "/migrations/does-not-exist", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.requireRole(model.RoleViewer, s.handleMigrationByID)(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown job id, got %d", w.Code)
	}
}

func TestHandleHealthWithoutMonitor(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	var resp healthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("expected status=healthy, got %s", resp.Status)
	}
}
