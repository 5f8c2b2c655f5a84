package auth

import "time"

// Default roles seeded at startup. Authentication cannot succeed before both
// exist. Role names are treated as immutable once referenced: renaming a role
// breaks the meaning of historical audit records, and nothing here prevents
// it at the storage layer.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// Role is a named permission bucket assigned to principals.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// DefaultRoles returns the built-in roles ensured idempotently at startup.
func DefaultRoles() []Role {
	return []Role{
		{Name: RoleUser, Description: "Default user role"},
		{Name: RoleAdmin, Description: "Administrator role"},
	}
}

// Principal represents an account capable of authenticating: credentials
// digest, role set, and account-status flags. The plaintext secret is never
// stored.
type Principal struct {
	ID                    string    `json:"id"`
	Username              string    `json:"username"`
	Email                 string    `json:"email"`
	PasswordHash          string    `json:"-"`
	Roles                 []Role    `json:"roles"`
	Enabled               bool      `json:"enabled"`
	AccountNonExpired     bool      `json:"account_non_expired"`
	AccountNonLocked      bool      `json:"account_non_locked"`
	CredentialsNonExpired bool      `json:"credentials_non_expired"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// IsActive reports whether every status flag permits authentication. Checked
// both at token issuance and again on every request, so disabling an account
// invalidates outstanding tokens immediately.
func (p *Principal) IsActive() bool {
	return p.Enabled && p.AccountNonExpired && p.AccountNonLocked && p.CredentialsNonExpired
}

// HasRole reports whether the principal holds the named role.
func (p *Principal) HasRole(name string) bool {
	for _, r := range p.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the principal holds at least one of the named
// roles.
func (p *Principal) HasAnyRole(names ...string) bool {
	for _, name := range names {
		if p.HasRole(name) {
			return true
		}
	}
	return false
}

// HasAllRoles reports whether the principal holds every named role.
func (p *Principal) HasAllRoles(names ...string) bool {
	for _, name := range names {
		if !p.HasRole(name) {
			return false
		}
	}
	return true
}

// RoleNames returns the principal's role names in declaration order.
func (p *Principal) RoleNames() []string {
	out := make([]string, 0, len(p.Roles))
	for _, r := range p.Roles {
		out = append(out, r.Name)
	}
	return out
}
