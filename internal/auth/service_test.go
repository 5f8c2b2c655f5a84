package auth_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"keyward.io/internal/audit"
	"keyward.io/internal/auth"
	"keyward.io/internal/store/memory"
)

type serviceFixture struct {
	service   *auth.Service
	directory *auth.Directory
	recorder  *audit.Recorder
	log       *memory.AuditLog
}

func newServiceFixture(t *testing.T) serviceFixture {
	t.Helper()
	directory := auth.NewDirectory(memory.NewDirectory())
	if err := directory.EnsureDefaultRoles(context.Background()); err != nil {
		t.Fatalf("EnsureDefaultRoles: %v", err)
	}
	codec, err := auth.NewCodec("service-test-secret", auth.WithIssuer("keyward"))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	log := memory.NewAuditLog()
	// A single worker makes Flush an exact barrier.
	recorder := audit.NewRecorder(log, audit.WithWorkers(1))
	t.Cleanup(recorder.Close)
	return serviceFixture{
		service:   auth.NewService(directory, codec, recorder),
		directory: directory,
		recorder:  recorder,
		log:       log,
	}
}

func (f serviceFixture) eventsFor(t *testing.T, username string) []audit.Event {
	t.Helper()
	f.recorder.Flush()
	events, err := f.log.RecentForUser(context.Background(), username, 50)
	if err != nil {
		t.Fatalf("RecentForUser: %v", err)
	}
	return events
}

func register(t *testing.T, f serviceFixture, username, email, password string) {
	t.Helper()
	err := f.service.Register(context.Background(), auth.RegisterInput{
		Username: username,
		Email:    email,
		Password: password,
	}, audit.RequestMeta{IPAddress: "192.0.2.1", UserAgent: "test-agent"})
	if err != nil {
		t.Fatalf("Register %s: %v", username, err)
	}
}

func TestRegisterThenLogin(t *testing.T) {
	f := newServiceFixture(t)
	register(t, f, "alice", "alice@example.com", "s3cret-password")

	result, err := f.service.Login(context.Background(), "alice", "s3cret-password", audit.RequestMeta{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if result.Token == "" || result.Type != "Bearer" {
		t.Fatalf("unexpected login result: %+v", result)
	}
	if len(result.Roles) != 1 || result.Roles[0] != auth.RoleUser {
		t.Fatalf("expected roles [USER], got %v", result.Roles)
	}
	if !result.ExpiresAt.After(result.IssuedAt) {
		t.Fatal("expiry must follow issuance")
	}

	events := f.eventsFor(t, "alice")
	if len(events) != 2 {
		t.Fatalf("expected exactly 2 events (register, login), got %d", len(events))
	}
}

func TestLoginFailuresAreUniform(t *testing.T) {
	f := newServiceFixture(t)
	register(t, f, "alice", "alice@example.com", "s3cret-password")

	_, errUnknown := f.service.Login(context.Background(), "mallory", "whatever", audit.RequestMeta{})
	_, errWrongPw := f.service.Login(context.Background(), "alice", "wrong-password", audit.RequestMeta{})

	if !errors.Is(errUnknown, auth.ErrInvalidCredentials) {
		t.Fatalf("unknown user: expected ErrInvalidCredentials, got %v", errUnknown)
	}
	if !errors.Is(errWrongPw, auth.ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", errWrongPw)
	}
	if errUnknown.Error() != errWrongPw.Error() {
		t.Fatal("failure causes must be indistinguishable to the caller")
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	f := newServiceFixture(t)
	register(t, f, "alice", "alice@example.com", "s3cret-password")

	disabled := false
	if _, err := f.directory.Update(context.Background(), "alice", auth.PrincipalUpdate{Enabled: &disabled}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	_, err := f.service.Login(context.Background(), "alice", "s3cret-password", audit.RequestMeta{})
	if !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for disabled account, got %v", err)
	}
}

func TestFailedLoginRecordsFailureEvent(t *testing.T) {
	f := newServiceFixture(t)
	register(t, f, "alice", "alice@example.com", "s3cret-password")

	if _, err := f.service.Login(context.Background(), "alice", "wrong-password", audit.RequestMeta{IPAddress: "192.0.2.7"}); err == nil {
		t.Fatal("expected login failure")
	}

	f.recorder.Flush()
	failed, err := f.log.RecentFailedLogins(context.Background(), "alice", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("RecentFailedLogins: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("expected 1 failed login event, got %d", len(failed))
	}
	ev := failed[0]
	if ev.Status != audit.StatusFailure || ev.Action != audit.ActionLogin || ev.EventType != audit.TypeAuthentication {
		t.Fatalf("unexpected event shape: %+v", ev)
	}
	if ev.IPAddress != "192.0.2.7" {
		t.Fatalf("expected request attribution, got %q", ev.IPAddress)
	}
}

func TestLoginSuccessEventIncludesRoles(t *testing.T) {
	f := newServiceFixture(t)
	register(t, f, "alice", "alice@example.com", "s3cret-password")

	if _, err := f.service.Login(context.Background(), "alice", "s3cret-password", audit.RequestMeta{}); err != nil {
		t.Fatalf("Login: %v", err)
	}

	events := f.eventsFor(t, "alice")
	var login *audit.Event
	for i := range events {
		if events[i].Action == audit.ActionLogin && events[i].Status == audit.StatusSuccess {
			login = &events[i]
		}
	}
	if login == nil {
		t.Fatal("expected a SUCCESS login event")
	}
	if !strings.Contains(login.Details, "Roles: [USER]") {
		t.Fatalf("expected resolved roles in details, got %q", login.Details)
	}
}

// unreachableDirectory simulates an infrastructure failure on the existence
// check while delegating everything else.
type unreachableDirectory struct {
	auth.DirectoryStore
	err error
}

func (s unreachableDirectory) ExistsByUsername(context.Context, string) (bool, error) {
	return false, s.err
}

func TestRegisterStoreErrorRecordsErrorEvent(t *testing.T) {
	store := unreachableDirectory{
		DirectoryStore: memory.NewDirectory(),
		err:            errors.New("connection refused"),
	}
	directory := auth.NewDirectory(store)
	if err := directory.EnsureDefaultRoles(context.Background()); err != nil {
		t.Fatalf("EnsureDefaultRoles: %v", err)
	}
	codec, err := auth.NewCodec("service-test-secret")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	log := memory.NewAuditLog()
	recorder := audit.NewRecorder(log, audit.WithWorkers(1))
	t.Cleanup(recorder.Close)
	service := auth.NewService(directory, codec, recorder)

	regErr := service.Register(context.Background(), auth.RegisterInput{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "s3cret-password",
	}, audit.RequestMeta{})
	if regErr == nil {
		t.Fatal("expected registration to fail")
	}

	recorder.Flush()
	events, err := log.RecentForUser(context.Background(), "alice", 50)
	if err != nil {
		t.Fatalf("RecentForUser: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Status != audit.StatusError {
		t.Fatalf("expected ERROR status for infrastructure failure, got %q", ev.Status)
	}
	if !strings.Contains(ev.Details, "connection refused") {
		t.Fatalf("expected the causing error in details, got %q", ev.Details)
	}
}

func TestDuplicateRegistrationRecordsFailure(t *testing.T) {
	f := newServiceFixture(t)
	register(t, f, "alice", "alice@example.com", "s3cret-password")

	err := f.service.Register(context.Background(), auth.RegisterInput{
		Username: "alice",
		Email:    "second@example.com",
		Password: "pw-123456",
	}, audit.RequestMeta{})
	if !errors.Is(err, auth.ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}

	events := f.eventsFor(t, "alice")
	// register success + register failure: exactly one terminal event each.
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Status != audit.StatusFailure && events[1].Status != audit.StatusFailure {
		t.Fatal("expected a FAILURE registration event")
	}
}
