package auth

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Directory manages the principal catalog: creation, mutation, lookup, and
// the default role set. All writes pass through here so hashing and
// timestamping stay uniform across storage backends.
type Directory struct {
	store  DirectoryStore
	hasher Hasher
	now    func() time.Time
}

// DirectoryOption configures a Directory.
type DirectoryOption func(*Directory)

// WithHasher overrides the password hasher (bcrypt by default).
func WithHasher(h Hasher) DirectoryOption {
	return func(d *Directory) {
		if h != nil {
			d.hasher = h
		}
	}
}

// WithDirectoryClock overrides the time source (useful for tests).
func WithDirectoryClock(fn func() time.Time) DirectoryOption {
	return func(d *Directory) {
		if fn != nil {
			d.now = fn
		}
	}
}

// NewDirectory constructs a Directory over the given store.
func NewDirectory(store DirectoryStore, opts ...DirectoryOption) *Directory {
	d := &Directory{
		store:  store,
		hasher: BcryptHasher{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// EnsureDefaultRoles creates the built-in roles if absent. Safe to call on
// every startup; existing roles are never modified.
func (d *Directory) EnsureDefaultRoles(ctx context.Context) error {
	for _, role := range DefaultRoles() {
		if err := d.store.EnsureRole(ctx, role); err != nil {
			return fmt.Errorf("ensure role %s: %w", role.Name, err)
		}
	}
	return nil
}

// Create registers a new principal. The plaintext password is hashed before
// anything touches the store, the account starts fully active, and the
// default USER role is attached when the caller supplies no roles.
func (d *Directory) Create(ctx context.Context, p *Principal, password string) error {
	if p == nil {
		return fmt.Errorf("%w: principal is nil", ErrInvalidInput)
	}
	p.Username = strings.TrimSpace(p.Username)
	p.Email = strings.TrimSpace(p.Email)
	if p.Username == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if p.Email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidInput)
	}

	if exists, err := d.store.ExistsByUsername(ctx, p.Username); err != nil {
		return err
	} else if exists {
		return ErrDuplicateUsername
	}
	if exists, err := d.store.ExistsByEmail(ctx, p.Email); err != nil {
		return err
	} else if exists {
		return ErrDuplicateEmail
	}

	digest, err := d.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	p.PasswordHash = digest

	if len(p.Roles) == 0 {
		role, err := d.store.FindRoleByName(ctx, RoleUser)
		if err != nil {
			return fmt.Errorf("resolve default role: %w", err)
		}
		p.Roles = []Role{*role}
	}

	now := d.now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.Enabled = true
	p.AccountNonExpired = true
	p.AccountNonLocked = true
	p.CredentialsNonExpired = true

	return d.store.Create(ctx, p)
}

// PrincipalUpdate describes a partial update. Nil fields are left unchanged.
type PrincipalUpdate struct {
	Email                 *string
	Password              *string
	Enabled               *bool
	AccountNonExpired     *bool
	AccountNonLocked      *bool
	CredentialsNonExpired *bool
}

// Update applies a partial update to the named principal. The stored digest
// is preserved unless the supplied password actually differs from the current
// one; submitting the same plaintext does not burn a rehash.
func (d *Directory) Update(ctx context.Context, username string, upd PrincipalUpdate) (*Principal, error) {
	p, err := d.store.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	if upd.Email != nil {
		email := strings.TrimSpace(*upd.Email)
		if email == "" {
			return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
		}
		if email != p.Email {
			if exists, err := d.store.ExistsByEmail(ctx, email); err != nil {
				return nil, err
			} else if exists {
				return nil, ErrDuplicateEmail
			}
			p.Email = email
		}
	}
	if upd.Password != nil && strings.TrimSpace(*upd.Password) != "" {
		if !d.hasher.Verify(*upd.Password, p.PasswordHash) {
			digest, err := d.hasher.Hash(*upd.Password)
			if err != nil {
				return nil, fmt.Errorf("hash password: %w", err)
			}
			p.PasswordHash = digest
		}
	}
	if upd.Enabled != nil {
		p.Enabled = *upd.Enabled
	}
	if upd.AccountNonExpired != nil {
		p.AccountNonExpired = *upd.AccountNonExpired
	}
	if upd.AccountNonLocked != nil {
		p.AccountNonLocked = *upd.AccountNonLocked
	}
	if upd.CredentialsNonExpired != nil {
		p.CredentialsNonExpired = *upd.CredentialsNonExpired
	}

	p.UpdatedAt = d.now().UTC()
	if err := d.store.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes the named principal and reports whether it existed.
func (d *Directory) Delete(ctx context.Context, username string) (bool, error) {
	return d.store.Delete(ctx, strings.TrimSpace(username))
}

// FindByUsername looks up a principal by username.
func (d *Directory) FindByUsername(ctx context.Context, username string) (*Principal, error) {
	return d.store.FindByUsername(ctx, strings.TrimSpace(username))
}

// ListAll returns every principal in the directory.
func (d *Directory) ListAll(ctx context.Context) ([]*Principal, error) {
	return d.store.ListAll(ctx)
}

// VerifyPassword checks a plaintext password against the principal's digest.
func (d *Directory) VerifyPassword(p *Principal, password string) bool {
	return d.hasher.Verify(password, p.PasswordHash)
}
