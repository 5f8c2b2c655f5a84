package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"keyward.io/internal/audit"
	"keyward.io/internal/ids"
)

var _ audit.Store = (*Store)(nil)

func (s *Store) Append(ctx context.Context, ev audit.Event) error {
	if ev.ID == "" {
		ev.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_events (id, username, event_type, action, details, ip_address, user_agent, resource_type, resource_id, status, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, ev.ID, ev.Username, ev.EventType, ev.Action, ev.Details, ev.IPAddress, ev.UserAgent, ev.ResourceType, ev.ResourceID, ev.Status, ev.CreatedAt)
	return err
}

// auditWhere builds the WHERE clause for a filter; zero-valued fields are
// skipped.
func auditWhere(f audit.Filter) (string, []any) {
	var (
		clauses []string
		args    []any
		idx     = 1
	)
	add := func(expr string, val any) {
		clauses = append(clauses, fmt.Sprintf(expr, idx))
		args = append(args, val)
		idx++
	}
	if f.Username != "" {
		add("username = $%d", f.Username)
	}
	if f.EventType != "" {
		add("event_type = $%d", f.EventType)
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at <= $%d", f.To)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "where " + strings.Join(clauses, " and "), args
}

const auditColumns = `id, username, event_type, action, details, coalesce(ip_address,''), coalesce(user_agent,''), coalesce(resource_type,''), coalesce(resource_id,''), status, created_at`

func (s *Store) Query(ctx context.Context, f audit.Filter, page audit.Page) (audit.Result, error) {
	page = page.Normalize()
	where, args := auditWhere(f)

	var total int64
	if err := s.db.QueryRowContext(ctx,
		"select count(*) from audit_events "+where, args...).Scan(&total); err != nil {
		return audit.Result{}, err
	}

	query := fmt.Sprintf(
		"select %s from audit_events %s order by created_at desc limit $%d offset $%d",
		auditColumns, where, len(args)+1, len(args)+2)
	rows, err := s.db.QueryContext(ctx, query, append(args, page.Size, page.Number*page.Size)...)
	if err != nil {
		return audit.Result{}, err
	}
	defer rows.Close()

	items, err := scanEvents(rows)
	if err != nil {
		return audit.Result{}, err
	}
	return audit.Result{Items: items, Total: total, Page: page.Number, Size: page.Size}, nil
}

func (s *Store) RecentForUser(ctx context.Context, username string, limit int) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		select %s from audit_events
		where username = $1
		order by created_at desc
		limit $2
	`, auditColumns), username, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *Store) RecentFailedLogins(ctx context.Context, username string, since time.Time) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		select %s from audit_events
		where username = $1 and event_type = $2 and action = $3 and status = $4 and created_at >= $5
		order by created_at desc
	`, auditColumns), username, audit.TypeAuthentication, audit.ActionLogin, audit.StatusFailure, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var out []audit.Event
	for rows.Next() {
		var ev audit.Event
		if err := rows.Scan(&ev.ID, &ev.Username, &ev.EventType, &ev.Action, &ev.Details,
			&ev.IPAddress, &ev.UserAgent, &ev.ResourceType, &ev.ResourceID, &ev.Status, &ev.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
