// Package memory provides in-memory implementations of the directory and
// audit stores. Used for local development and tests; nothing survives a
// restart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"keyward.io/internal/audit"
	"keyward.io/internal/auth"
	"keyward.io/internal/ids"
)

// Directory is a mutex-guarded in-memory auth.DirectoryStore.
type Directory struct {
	mu    sync.RWMutex
	users map[string]*auth.Principal // keyed by username
	roles map[string]*auth.Role      // keyed by role name
}

// NewDirectory returns an empty in-memory directory store.
func NewDirectory() *Directory {
	return &Directory{
		users: make(map[string]*auth.Principal),
		roles: make(map[string]*auth.Role),
	}
}

func clonePrincipal(p *auth.Principal) *auth.Principal {
	cp := *p
	cp.Roles = append([]auth.Role(nil), p.Roles...)
	return &cp
}

func (d *Directory) FindByUsername(_ context.Context, username string) (*auth.Principal, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.users[username]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return clonePrincipal(p), nil
}

func (d *Directory) FindByEmail(_ context.Context, email string) (*auth.Principal, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, p := range d.users {
		if strings.EqualFold(p.Email, email) {
			return clonePrincipal(p), nil
		}
	}
	return nil, auth.ErrNotFound
}

func (d *Directory) ExistsByUsername(_ context.Context, username string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.users[username]
	return ok, nil
}

func (d *Directory) ExistsByEmail(_ context.Context, email string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, p := range d.users {
		if strings.EqualFold(p.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (d *Directory) Create(_ context.Context, p *auth.Principal) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[p.Username]; ok {
		return auth.ErrDuplicateUsername
	}
	for _, existing := range d.users {
		if strings.EqualFold(existing.Email, p.Email) {
			return auth.ErrDuplicateEmail
		}
	}
	if p.ID == "" {
		p.ID = ids.New()
	}
	d.users[p.Username] = clonePrincipal(p)
	return nil
}

func (d *Directory) Update(_ context.Context, p *auth.Principal) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[p.Username]; !ok {
		return auth.ErrNotFound
	}
	for name, existing := range d.users {
		if name != p.Username && strings.EqualFold(existing.Email, p.Email) {
			return auth.ErrDuplicateEmail
		}
	}
	d.users[p.Username] = clonePrincipal(p)
	return nil
}

func (d *Directory) Delete(_ context.Context, username string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[username]; !ok {
		return false, nil
	}
	delete(d.users, username)
	return true, nil
}

func (d *Directory) ListAll(_ context.Context) ([]*auth.Principal, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*auth.Principal, 0, len(d.users))
	for _, p := range d.users {
		out = append(out, clonePrincipal(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (d *Directory) FindRoleByName(_ context.Context, name string) (*auth.Role, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.roles[name]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (d *Directory) EnsureRole(_ context.Context, role auth.Role) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.roles[role.Name]; ok {
		return nil
	}
	if role.ID == "" {
		role.ID = ids.New()
	}
	if role.CreatedAt.IsZero() {
		role.CreatedAt = time.Now().UTC()
	}
	d.roles[role.Name] = &role
	return nil
}

// AuditLog is a mutex-guarded in-memory audit.Store. Events are kept in
// arrival order and queried newest first.
type AuditLog struct {
	mu     sync.RWMutex
	events []audit.Event
}

// NewAuditLog returns an empty in-memory audit store.
func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

func (a *AuditLog) Append(_ context.Context, ev audit.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
	return nil
}

func (a *AuditLog) matching(f audit.Filter) []audit.Event {
	out := make([]audit.Event, 0)
	for _, ev := range a.events {
		if f.Username != "" && ev.Username != f.Username {
			continue
		}
		if f.EventType != "" && ev.EventType != f.EventType {
			continue
		}
		if f.Action != "" && ev.Action != f.Action {
			continue
		}
		if f.Status != "" && ev.Status != f.Status {
			continue
		}
		if !f.From.IsZero() && ev.CreatedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && ev.CreatedAt.After(f.To) {
			continue
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (a *AuditLog) Query(_ context.Context, f audit.Filter, page audit.Page) (audit.Result, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	page = page.Normalize()
	matched := a.matching(f)
	total := int64(len(matched))

	start := page.Number * page.Size
	if start > len(matched) {
		start = len(matched)
	}
	end := start + page.Size
	if end > len(matched) {
		end = len(matched)
	}
	return audit.Result{
		Items: matched[start:end],
		Total: total,
		Page:  page.Number,
		Size:  page.Size,
	}, nil
}

func (a *AuditLog) RecentForUser(_ context.Context, username string, limit int) ([]audit.Event, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	matched := a.matching(audit.Filter{Username: username})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (a *AuditLog) RecentFailedLogins(_ context.Context, username string, since time.Time) ([]audit.Event, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	matched := a.matching(audit.Filter{
		Username:  username,
		EventType: audit.TypeAuthentication,
		Action:    audit.ActionLogin,
		Status:    audit.StatusFailure,
		From:      since,
	})
	return matched, nil
}
