// Package httpapi is the HTTP surface: authentication endpoints, the
// profile resource, admin operations, and the audit query API. Access control
// is enforced by explicit middleware over an ordered route table; handlers
// only read the already-established identity from the request context.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"

	"keyward.io/internal/audit"
	"keyward.io/internal/auth"
	"keyward.io/internal/obs"
)

// ReadyProbe reports whether the backing store is reachable.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options tunes the middleware chain.
type Options struct {
	RateLimitEnabled bool
	RatePerSecond    int
	RateBurst        int
	MaxBodyBytes     int64
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	service    *auth.Service
	directory  *auth.Directory
	codec      *auth.Codec
	recorder   *audit.Recorder
	readyProbe ReadyProbe
	opts       Options
	version    string
}

func New(service *auth.Service, directory *auth.Directory, codec *auth.Codec, recorder *audit.Recorder, rp ReadyProbe, opts Options, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		service:    service,
		directory:  directory,
		codec:      codec,
		recorder:   recorder,
		readyProbe: rp,
		opts:       opts,
		version:    version,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/auth/register", a.handleRegister)
	a.mux.HandleFunc("/auth/login", a.handleLogin)

	a.mux.HandleFunc("/user/profile", a.handleProfile)

	a.mux.HandleFunc("/admin/users", a.handleAdminUsers)
	a.mux.HandleFunc("/admin/users/", a.handleAdminUserResource)
	a.mux.HandleFunc("/admin/stats", a.handleAdminStats)

	a.mux.HandleFunc("/audit", a.handleAuditQuery)
	a.mux.HandleFunc("/audit/", a.handleAuditSubtree)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})

	return a
}

// Handler returns the full middleware chain around the mux. Order matters:
// identity is established before handlers run, and logging sees the final
// status code.
func (a *API) Handler() http.Handler {
	maxBody := a.opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}

	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, maxBody)
	if a.opts.RateLimitEnabled {
		h = RateLimit(h, a.opts.RateBurst, a.opts.RatePerSecond)
	}
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// requestMeta captures the attribution recorded with audit events.
func requestMeta(r *http.Request) audit.RequestMeta {
	return audit.RequestMeta{
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	}
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "keyward-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}
