package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"keyward.io/internal/audit"
)

// Service implements the authentication flow: registration and credential
// login. Every call emits exactly one terminal audit event describing its
// outcome.
type Service struct {
	directory *Directory
	codec     *Codec
	recorder  *audit.Recorder
}

// NewService wires the authentication flow over a directory, token codec,
// and audit recorder.
func NewService(directory *Directory, codec *Codec, recorder *audit.Recorder) *Service {
	return &Service{directory: directory, codec: codec, recorder: recorder}
}

// RegisterInput is the payload for account registration.
type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult is the successful login response: the bearer token and the
// identity snapshot taken at issuance.
type LoginResult struct {
	Token     string    `json:"token"`
	Type      string    `json:"type"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Roles     []string  `json:"roles"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Register creates a new account with the default USER role. Duplicate
// username or email surfaces as the corresponding sentinel so callers can
// report the conflict precisely.
func (s *Service) Register(ctx context.Context, in RegisterInput, meta audit.RequestMeta) error {
	p := &Principal{Username: in.Username, Email: in.Email}
	err := s.directory.Create(ctx, p, in.Password)
	if err != nil {
		status, reason := registerFailureClass(err)
		s.recorder.Record(audit.Event{
			Username:  in.Username,
			EventType: audit.TypeRegistration,
			Action:    audit.ActionRegister,
			Details:   fmt.Sprintf("Registration failed for username: %s. Reason: %s", in.Username, reason),
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
			Status:    status,
		})
		return err
	}

	s.recorder.Record(audit.Event{
		Username:  p.Username,
		EventType: audit.TypeRegistration,
		Action:    audit.ActionRegister,
		Details:   fmt.Sprintf("User registered successfully with email: %s", p.Email),
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Status:    audit.StatusSuccess,
	})
	return nil
}

// registerFailureClass separates expected rejections from infrastructure
// errors: duplicates and bad input audit as FAILURE, anything else as ERROR
// carrying the underlying cause.
func registerFailureClass(err error) (status, reason string) {
	switch {
	case errors.Is(err, ErrDuplicateUsername):
		return audit.StatusFailure, "username already exists"
	case errors.Is(err, ErrDuplicateEmail):
		return audit.StatusFailure, "email already exists"
	case errors.Is(err, ErrInvalidInput):
		return audit.StatusFailure, "invalid input"
	default:
		return audit.StatusError, err.Error()
	}
}

// Login authenticates the credentials and issues a token. Unknown username,
// wrong password, and inactive account all surface as ErrInvalidCredentials;
// the audit record carries the real reason.
func (s *Service) Login(ctx context.Context, username, password string, meta audit.RequestMeta) (LoginResult, error) {
	fail := func(reason string) (LoginResult, error) {
		s.recorder.Record(audit.Event{
			Username:  username,
			EventType: audit.TypeAuthentication,
			Action:    audit.ActionLogin,
			Details:   fmt.Sprintf("Login failed for username: %s. Reason: %s", username, reason),
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
			Status:    audit.StatusFailure,
		})
		return LoginResult{}, ErrInvalidCredentials
	}

	p, err := s.directory.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fail("user not found")
		}
		s.recorder.Record(audit.Event{
			Username:  username,
			EventType: audit.TypeAuthentication,
			Action:    audit.ActionLogin,
			Details:   fmt.Sprintf("Login failed for username: %s. Reason: lookup error", username),
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
			Status:    audit.StatusError,
		})
		return LoginResult{}, err
	}
	if !s.directory.VerifyPassword(p, password) {
		return fail("bad credentials")
	}
	if !p.IsActive() {
		return fail("account inactive")
	}

	roles := p.RoleNames()
	token, issuedAt, expiresAt, err := s.codec.Issue(p.Username, roles)
	if err != nil {
		s.recorder.Record(audit.Event{
			Username:  p.Username,
			EventType: audit.TypeAuthentication,
			Action:    audit.ActionLogin,
			Details:   fmt.Sprintf("Login failed for username: %s. Reason: token issuance error", p.Username),
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
			Status:    audit.StatusError,
		})
		return LoginResult{}, err
	}

	s.recorder.Record(audit.Event{
		Username:  p.Username,
		EventType: audit.TypeAuthentication,
		Action:    audit.ActionLogin,
		Details:   fmt.Sprintf("User logged in successfully. Roles: %v", roles),
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Status:    audit.StatusSuccess,
	})

	return LoginResult{
		Token:     token,
		Type:      "Bearer",
		Username:  p.Username,
		Email:     p.Email,
		Roles:     roles,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}
