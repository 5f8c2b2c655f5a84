// Package audit records security-relevant activity: authentications,
// registrations, profile access, and administrative operations. Recording is
// asynchronous and never blocks or fails the operation being recorded.
package audit

import "time"

// Event outcome statuses.
const (
	StatusSuccess = "SUCCESS"
	StatusFailure = "FAILURE"
	StatusError   = "ERROR"
)

// Event type categories.
const (
	TypeAuthentication = "USER_AUTHENTICATION"
	TypeRegistration   = "USER_REGISTRATION"
	TypeProfile        = "USER_PROFILE"
	TypeAdminOperation = "ADMIN_OPERATION"
)

// Action names. Kept stable because queries filter on them; the failed-login
// feed selects on ActionLogin specifically.
const (
	ActionLogin           = "LOGIN"
	ActionRegister        = "REGISTER"
	ActionProfileView     = "PROFILE_VIEW"
	ActionProfileUpdate   = "PROFILE_UPDATE"
	ActionViewAllUsers    = "VIEW_ALL_USERS"
	ActionDeleteUser      = "DELETE_USER"
	ActionViewSystemStats = "VIEW_SYSTEM_STATS"
)

// AnonymousUser is recorded when no authenticated identity is available.
const AnonymousUser = "anonymous"

const (
	maxDetailsRunes  = 500
	truncationMarker = "..."
)

// Event is one immutable audit record. Events reference usernames by value,
// not by principal key, so they survive account deletion. ResourceType and
// ResourceID are set only for resource-scoped events (e.g. user deletion).
type Event struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	EventType    string    `json:"eventType"`
	Action       string    `json:"action"`
	Details      string    `json:"details,omitempty"`
	IPAddress    string    `json:"ipAddress,omitempty"`
	UserAgent    string    `json:"userAgent,omitempty"`
	ResourceType string    `json:"resourceType,omitempty"`
	ResourceID   string    `json:"resourceId,omitempty"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
}

// TruncateDetails bounds a detail string to 500 runes; longer strings are cut
// so that the result, including the trailing "...", is exactly 500 runes.
func TruncateDetails(s string) string {
	runes := []rune(s)
	if len(runes) <= maxDetailsRunes {
		return s
	}
	return string(runes[:maxDetailsRunes-len(truncationMarker)]) + truncationMarker
}

// RequestMeta carries the request-scoped attribution recorded alongside an
// event.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// Filter selects events for a query. Zero-valued fields match everything.
type Filter struct {
	Username  string
	EventType string
	Action    string
	Status    string
	From      time.Time
	To        time.Time
}

// Page describes pagination for query results.
type Page struct {
	Number int
	Size   int
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Number < 0 {
		p.Number = 0
	}
	if p.Size <= 0 {
		p.Size = defaultPageSize
	}
	if p.Size > maxPageSize {
		p.Size = maxPageSize
	}
	return p
}

// Result is one page of query results, newest first.
type Result struct {
	Items []Event `json:"items"`
	Total int64   `json:"total"`
	Page  int     `json:"page"`
	Size  int     `json:"size"`
}
