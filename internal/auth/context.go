package auth

import "context"

// Identity is the authenticated identity established for a single request.
// It travels as a context value through the request-handling call chain; the
// service keeps no per-thread or global notion of "current user".
type Identity struct {
	Username string
	Roles    []string
}

// HasRole reports whether the identity carries the named role.
func (id Identity) HasRole(name string) bool {
	for _, r := range id.Roles {
		if r == name {
			return true
		}
	}
	return false
}

type identityContextKey struct{}

// ContextWithIdentity attaches the authenticated identity to the context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	if !ok || id.Username == "" {
		return Identity{}, false
	}
	return id, true
}
