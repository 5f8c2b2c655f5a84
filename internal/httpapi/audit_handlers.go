package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"keyward.io/internal/audit"
)

// Accepted timestamp layouts for audit query parameters.
var auditTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseAuditTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range auditTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parsePage(r *http.Request) audit.Page {
	q := r.URL.Query()
	page := audit.Page{}
	if v, err := strconv.Atoi(q.Get("page")); err == nil {
		page.Number = v
	}
	if v, err := strconv.Atoi(q.Get("size")); err == nil {
		page.Size = v
	}
	return page.Normalize()
}

func (a *API) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	result, err := a.recorder.Query(r.Context(), audit.Filter{}, parsePage(r))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleAuditSubtree routes /audit/... paths:
//
//	/audit/user/{username}
//	/audit/user/{username}/recent?limit=N
//	/audit/user/{username}/failed-logins?since=RFC3339
//	/audit/type/{eventType}
//	/audit/date-range?start=...&end=...
//	/audit/search?username=&event_type=&action=&status=&from=&to=
func (a *API) handleAuditSubtree(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/audit/")
	parts := strings.Split(rest, "/")

	switch {
	case parts[0] == "user" && len(parts) == 2 && parts[1] != "":
		a.auditForUser(w, r, parts[1])
	case parts[0] == "user" && len(parts) == 3 && parts[2] == "recent":
		a.auditRecentForUser(w, r, parts[1])
	case parts[0] == "user" && len(parts) == 3 && parts[2] == "failed-logins":
		a.auditFailedLogins(w, r, parts[1])
	case parts[0] == "type" && len(parts) == 2 && parts[1] != "":
		a.auditByType(w, r, parts[1])
	case parts[0] == "date-range" && len(parts) == 1:
		a.auditByDateRange(w, r)
	case parts[0] == "search" && len(parts) == 1:
		a.auditSearch(w, r)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) auditForUser(w http.ResponseWriter, r *http.Request, username string) {
	result, err := a.recorder.Query(r.Context(), audit.Filter{Username: username}, parsePage(r))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) auditRecentForUser(w http.ResponseWriter, r *http.Request, username string) {
	limit := 0
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		limit = v
	}
	events, err := a.recorder.RecentForUser(r.Context(), username, limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"username": username,
		"items":    events,
	})
}

func (a *API) auditFailedLogins(w http.ResponseWriter, r *http.Request, username string) {
	since := time.Now().UTC().Add(-time.Hour)
	if t, ok := parseAuditTime(r.URL.Query().Get("since")); ok {
		since = t
	}
	events, err := a.recorder.RecentFailedLogins(r.Context(), username, since)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"username": username,
		"since":    since.Format(time.RFC3339),
		"count":    len(events),
		"items":    events,
	})
}

func (a *API) auditByType(w http.ResponseWriter, r *http.Request, eventType string) {
	result, err := a.recorder.Query(r.Context(), audit.Filter{EventType: eventType}, parsePage(r))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) auditByDateRange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, okStart := parseAuditTime(q.Get("start"))
	end, okEnd := parseAuditTime(q.Get("end"))
	if !okStart || !okEnd {
		writeError(w, r, http.StatusBadRequest, "start and end are required (RFC3339)")
		return
	}
	if end.Before(start) {
		writeError(w, r, http.StatusBadRequest, "end must not precede start")
		return
	}
	// Bounds are inclusive.
	result, err := a.recorder.Query(r.Context(), audit.Filter{From: start, To: end}, parsePage(r))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) auditSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := audit.Filter{
		Username:  strings.TrimSpace(q.Get("username")),
		EventType: strings.TrimSpace(q.Get("event_type")),
		Action:    strings.TrimSpace(q.Get("action")),
		Status:    strings.TrimSpace(q.Get("status")),
	}
	if t, ok := parseAuditTime(q.Get("from")); ok {
		f.From = t
	}
	if t, ok := parseAuditTime(q.Get("to")); ok {
		f.To = t
	}
	result, err := a.recorder.Query(r.Context(), f, parsePage(r))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
