package auth

import "context"

// DirectoryStore describes the persistence operations the principal
// directory requires. Uniqueness of username and email is enforced by the
// backing store; violations surface as ErrDuplicateUsername or
// ErrDuplicateEmail, never as a generic failure.
type DirectoryStore interface {
	FindByUsername(ctx context.Context, username string) (*Principal, error)
	FindByEmail(ctx context.Context, email string) (*Principal, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, p *Principal) error
	Update(ctx context.Context, p *Principal) error
	// Delete removes the principal and reports whether it existed. Audit
	// events reference usernames by value and survive deletion.
	Delete(ctx context.Context, username string) (bool, error)
	ListAll(ctx context.Context) ([]*Principal, error)

	FindRoleByName(ctx context.Context, name string) (*Role, error)
	// EnsureRole creates the role if absent; existing roles are untouched.
	EnsureRole(ctx context.Context, role Role) error
}
