package httpapi

import (
	"errors"
	"net/http"
	"time"

	"keyward.io/internal/audit"
	"keyward.io/internal/auth"
)

type profileResponse struct {
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	Roles     []string `json:"roles"`
	Enabled   bool     `json:"enabled"`
	CreatedAt string   `json:"createdAt"`
	UpdatedAt string   `json:"updatedAt"`
}

type profileUpdateRequest struct {
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.getProfile(w, r)
	case http.MethodPut:
		a.updateProfile(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (a *API) getProfile(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	p, err := a.directory.FindByUsername(r.Context(), id.Username)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "User not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	a.recorder.Record(audit.Event{
		Username:  id.Username,
		EventType: audit.TypeProfile,
		Action:    audit.ActionProfileView,
		Details:   "User viewed own profile",
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
		Status:    audit.StatusSuccess,
	})

	writeJSON(w, http.StatusOK, principalProfile(p))
}

func (a *API) updateProfile(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())

	var req profileUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	p, err := a.directory.Update(r.Context(), id.Username, auth.PrincipalUpdate{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		a.recorder.Record(audit.Event{
			Username:  id.Username,
			EventType: audit.TypeProfile,
			Action:    audit.ActionProfileUpdate,
			Details:   "Profile update failed: " + err.Error(),
			IPAddress: clientIP(r),
			UserAgent: r.UserAgent(),
			Status:    audit.StatusFailure,
		})
		switch {
		case errors.Is(err, auth.ErrNotFound):
			writeError(w, r, http.StatusNotFound, "User not found")
		case errors.Is(err, auth.ErrDuplicateEmail):
			writeError(w, r, http.StatusBadRequest, "Email already exists")
		case errors.Is(err, auth.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, err.Error())
		default:
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}

	a.recorder.Record(audit.Event{
		Username:  id.Username,
		EventType: audit.TypeProfile,
		Action:    audit.ActionProfileUpdate,
		Details:   "User updated own profile",
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
		Status:    audit.StatusSuccess,
	})

	writeJSON(w, http.StatusOK, principalProfile(p))
}

func principalProfile(p *auth.Principal) profileResponse {
	return profileResponse{
		Username:  p.Username,
		Email:     p.Email,
		Roles:     p.RoleNames(),
		Enabled:   p.Enabled,
		CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
