package auth

import "errors"

var (
	// ErrInvalidInput marks malformed input rejected before any state change.
	ErrInvalidInput = errors.New("auth: invalid input")
	// ErrNotFound indicates the requested principal or role does not exist.
	ErrNotFound = errors.New("auth: not found")
	// ErrDuplicateUsername indicates a registration conflict on username.
	ErrDuplicateUsername = errors.New("auth: username already exists")
	// ErrDuplicateEmail indicates a registration conflict on email.
	ErrDuplicateEmail = errors.New("auth: email already exists")
	// ErrInvalidCredentials covers unknown user, wrong secret, and disabled or
	// locked accounts. The cases are deliberately indistinguishable to callers;
	// the audit trail carries the real reason.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrInvalidToken indicates the token failed signature, subject, or expiry
	// validation.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrTokenMalformed indicates the token could not be parsed at all.
	ErrTokenMalformed = errors.New("auth: malformed token")
)
