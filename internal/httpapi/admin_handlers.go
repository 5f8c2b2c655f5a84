package httpapi

import (
	"net/http"
	"strings"

	"keyward.io/internal/audit"
	"keyward.io/internal/auth"
)

func (a *API) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	id, _ := auth.IdentityFromContext(r.Context())

	users, err := a.directory.ListAll(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	a.recorder.Record(audit.Event{
		Username:  id.Username,
		EventType: audit.TypeAdminOperation,
		Action:    audit.ActionViewAllUsers,
		Details:   "Admin viewed all users",
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
		Status:    audit.StatusSuccess,
	})

	out := make([]profileResponse, 0, len(users))
	for _, u := range users {
		out = append(out, principalProfile(u))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"users": out,
		"total": len(out),
	})
}

func (a *API) handleAdminUserResource(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimPrefix(r.URL.Path, "/admin/users/")
	if username == "" || strings.Contains(username, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	id, _ := auth.IdentityFromContext(r.Context())

	existed, err := a.directory.Delete(r.Context(), username)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if !existed {
		a.recorder.Record(audit.Event{
			Username:     id.Username,
			EventType:    audit.TypeAdminOperation,
			Action:       audit.ActionDeleteUser,
			Details:      "Admin attempted to delete missing user: " + username,
			IPAddress:    clientIP(r),
			UserAgent:    r.UserAgent(),
			ResourceType: "user",
			ResourceID:   username,
			Status:       audit.StatusFailure,
		})
		writeError(w, r, http.StatusNotFound, "User not found")
		return
	}

	a.recorder.Record(audit.Event{
		Username:     id.Username,
		EventType:    audit.TypeAdminOperation,
		Action:       audit.ActionDeleteUser,
		Details:      "Admin deleted user: " + username,
		IPAddress:    clientIP(r),
		UserAgent:    r.UserAgent(),
		ResourceType: "user",
		ResourceID:   username,
		Status:       audit.StatusSuccess,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "User deleted successfully",
		"username": username,
	})
}

func (a *API) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	id, _ := auth.IdentityFromContext(r.Context())

	users, err := a.directory.ListAll(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	enabled := 0
	for _, u := range users {
		if u.Enabled {
			enabled++
		}
	}

	a.recorder.Record(audit.Event{
		Username:  id.Username,
		EventType: audit.TypeAdminOperation,
		Action:    audit.ActionViewSystemStats,
		Details:   "Admin viewed system statistics",
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
		Status:    audit.StatusSuccess,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"totalUsers":    len(users),
		"enabledUsers":  enabled,
		"disabledUsers": len(users) - enabled,
	})
}
