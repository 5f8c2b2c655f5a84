package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"keyward.io/internal/audit"
	"keyward.io/internal/auth"
	"keyward.io/internal/httpapi"
	"keyward.io/internal/store/memory"
)

type apiFixture struct {
	handler   http.Handler
	directory *auth.Directory
	store     *memory.Directory
	recorder  *audit.Recorder
	log       *memory.AuditLog
}

func newAPIFixture(t *testing.T) apiFixture {
	t.Helper()
	dirStore := memory.NewDirectory()
	directory := auth.NewDirectory(dirStore)
	if err := directory.EnsureDefaultRoles(context.Background()); err != nil {
		t.Fatalf("EnsureDefaultRoles: %v", err)
	}
	codec, err := auth.NewCodec("httpapi-test-secret", auth.WithIssuer("keyward"))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	log := memory.NewAuditLog()
	recorder := audit.NewRecorder(log, audit.WithWorkers(1))
	t.Cleanup(recorder.Close)

	service := auth.NewService(directory, codec, recorder)
	api := httpapi.New(service, directory, codec, recorder, httpapi.ReadyProbe{}, httpapi.Options{}, "test")
	return apiFixture{handler: api.Handler(), directory: directory, store: dirStore, recorder: recorder, log: log}
}

func (f apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "192.0.2.10:4455"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return out
}

func registerUser(t *testing.T, f apiFixture, username, email, password string) {
	t.Helper()
	rr := f.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username": username, "email": email, "password": password,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register %s: expected 201, got %d: %s", username, rr.Code, rr.Body.String())
	}
}

func loginUser(t *testing.T, f apiFixture, username, password string) string {
	t.Helper()
	rr := f.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username": username, "password": password,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d: %s", username, rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("expected token in login response")
	}
	return token
}

// promoteToAdmin grants the ADMIN role through the store; the HTTP surface
// deliberately has no role-management endpoint.
func promoteToAdmin(t *testing.T, f apiFixture, username string) {
	t.Helper()
	ctx := context.Background()
	p, err := f.store.FindByUsername(ctx, username)
	if err != nil {
		t.Fatalf("FindByUsername: %v", err)
	}
	role, err := f.store.FindRoleByName(ctx, auth.RoleAdmin)
	if err != nil {
		t.Fatalf("FindRoleByName: %v", err)
	}
	p.Roles = append(p.Roles, *role)
	if err := f.store.Update(ctx, p); err != nil {
		t.Fatalf("store update: %v", err)
	}
}

func timeHourAgo() time.Time {
	return time.Now().UTC().Add(-time.Hour)
}

func TestRegisterLoginProfileFlow(t *testing.T) {
	f := newAPIFixture(t)
	registerUser(t, f, "alice", "alice@example.com", "s3cret-password")

	// Wrong password: uniform 401 plus a FAILURE audit event.
	rr := f.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username": "alice", "password": "wrong",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error"] != "Invalid credentials" {
		t.Fatalf("unexpected error body: %v", body)
	}

	token := loginUser(t, f, "alice", "s3cret-password")

	rr = f.do(t, http.MethodGet, "/user/profile", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("profile: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["username"] != "alice" || body["email"] != "alice@example.com" {
		t.Fatalf("unexpected profile: %v", body)
	}

	f.recorder.Flush()
	failed, err := f.log.RecentFailedLogins(context.Background(), "alice", timeHourAgo())
	if err != nil {
		t.Fatalf("RecentFailedLogins: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("expected 1 failed login recorded, got %d", len(failed))
	}
}

func TestDuplicateRegistration(t *testing.T) {
	f := newAPIFixture(t)
	registerUser(t, f, "alice", "alice@example.com", "s3cret-password")

	rr := f.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username": "alice", "email": "other@example.com", "password": "pw-123456",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error"] != "Username already exists" {
		t.Fatalf("unexpected error body: %v", body)
	}
}

func TestProfileRequiresAuthentication(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.do(t, http.MethodGet, "/user/profile", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
	if rr.Header().Get("WWW-Authenticate") == "" {
		t.Fatal("expected WWW-Authenticate header")
	}

	rr = f.do(t, http.MethodGet, "/user/profile", "not-a-real-token", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", rr.Code)
	}
}

func TestAdminEndpointsRequireAdminRole(t *testing.T) {
	f := newAPIFixture(t)
	registerUser(t, f, "alice", "alice@example.com", "s3cret-password")
	token := loginUser(t, f, "alice", "s3cret-password")

	for _, path := range []string{"/admin/users", "/admin/stats", "/audit"} {
		rr := f.do(t, http.MethodGet, path, token, nil)
		if rr.Code != http.StatusForbidden {
			t.Errorf("%s: expected 403 for USER token, got %d", path, rr.Code)
		}
	}
}

func TestUpdateProfile(t *testing.T) {
	f := newAPIFixture(t)
	registerUser(t, f, "alice", "alice@example.com", "s3cret-password")
	token := loginUser(t, f, "alice", "s3cret-password")

	rr := f.do(t, http.MethodPut, "/user/profile", token, map[string]string{
		"email": "new@example.com",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if body := decodeBody(t, rr); body["email"] != "new@example.com" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestDisabledAccountTokenStopsWorking(t *testing.T) {
	f := newAPIFixture(t)
	registerUser(t, f, "alice", "alice@example.com", "s3cret-password")
	token := loginUser(t, f, "alice", "s3cret-password")

	disabled := false
	if _, err := f.directory.Update(context.Background(), "alice", auth.PrincipalUpdate{Enabled: &disabled}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	rr := f.do(t, http.MethodGet, "/user/profile", token, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after disable, got %d", rr.Code)
	}
}

func TestUnknownPathDefaultDeny(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.do(t, http.MethodGet, "/internal/debug", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown path without identity, got %d", rr.Code)
	}
}

func TestHealthEndpointsArePublic(t *testing.T) {
	f := newAPIFixture(t)
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rr := f.do(t, http.MethodGet, path, "", nil)
		if rr.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rr.Code)
		}
	}
}
