package httpapi

import (
	"net/http"
	"strings"

	"keyward.io/internal/auth"
	"keyward.io/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// routeRule binds a path pattern to the roles allowed through. Rules are
// checked in order; the first match wins and unmatched paths are denied.
type routeRule struct {
	prefix string // trailing slash means prefix match, otherwise exact
	roles  []string
	public bool
}

var routeRules = []routeRule{
	{prefix: "/auth/", public: true},
	{prefix: "/healthz", public: true},
	{prefix: "/readyz", public: true},
	{prefix: "/metrics", public: true},
	{prefix: "/user/", roles: []string{auth.RoleUser}},
	{prefix: "/admin/", roles: []string{auth.RoleAdmin}},
	{prefix: "/audit", roles: []string{auth.RoleAdmin}},
	{prefix: "/audit/", roles: []string{auth.RoleAdmin}},
}

func matchRule(path string) (routeRule, bool) {
	for _, rule := range routeRules {
		if strings.HasSuffix(rule.prefix, "/") {
			if strings.HasPrefix(path, rule.prefix) {
				return rule, true
			}
			continue
		}
		if path == rule.prefix {
			return rule, true
		}
	}
	return routeRule{}, false
}

// withAuth establishes the request identity from the bearer token, when one
// is present and valid, and enforces the route rules. Any defect in the
// credential leaves the request unauthenticated rather than failing it
// outright; enforcement then rejects it only if the route requires identity.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := a.authenticate(r); ok {
			r = r.WithContext(auth.ContextWithIdentity(r.Context(), id))
		}

		rule, ok := matchRule(r.URL.Path)
		if !ok {
			// Default deny: unknown paths require authentication and never
			// match a role.
			if _, authed := auth.IdentityFromContext(r.Context()); !authed {
				unauthorized(w, r)
				return
			}
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		if rule.public {
			next.ServeHTTP(w, r)
			return
		}

		id, authed := auth.IdentityFromContext(r.Context())
		if !authed {
			unauthorized(w, r)
			return
		}
		allowed := false
		for _, role := range rule.roles {
			if id.HasRole(role) {
				allowed = true
				break
			}
		}
		if !allowed {
			writeError(w, r, http.StatusForbidden, "insufficient role")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authenticate resolves the bearer token to an identity. Every failure mode,
// including a panic from a hostile token, degrades to unauthenticated.
func (a *API) authenticate(r *http.Request) (id auth.Identity, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			obs.Log(map[string]any{
				"level": "error",
				"msg":   "token_authentication_panic",
				"panic": rec,
			})
			id, ok = auth.Identity{}, false
		}
	}()

	token, found := extractBearerToken(r.Header.Get(authHeader))
	if !found {
		return auth.Identity{}, false
	}

	subject, err := a.codec.ExtractSubject(token)
	if err != nil {
		return auth.Identity{}, false
	}
	p, err := a.directory.FindByUsername(r.Context(), subject)
	if err != nil {
		return auth.Identity{}, false
	}
	if err := a.codec.Verify(token, p.Username); err != nil {
		return auth.Identity{}, false
	}
	if !p.IsActive() {
		return auth.Identity{}, false
	}
	return auth.Identity{Username: p.Username, Roles: p.RoleNames()}, true
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", false
	}
	return token, true
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	writeError(w, r, http.StatusUnauthorized, "authentication required")
}
