package audit

import (
	"context"
	"time"
)

// Store persists audit events. Implementations must return query results
// newest first.
type Store interface {
	Append(ctx context.Context, ev Event) error
	Query(ctx context.Context, f Filter, page Page) (Result, error)
	RecentForUser(ctx context.Context, username string, limit int) ([]Event, error)
	// RecentFailedLogins returns failed login attempts for the user since the
	// given instant, newest first.
	RecentFailedLogins(ctx context.Context, username string, since time.Time) ([]Event, error)
}
