package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"keyward.io/internal/auth"
	"keyward.io/internal/ids"
)

// Unique constraints created by the initial migration. Violation mapping
// relies on these names staying in sync with the schema.
const (
	constraintUsername = "users_username_key"
	constraintEmail    = "users_email_key"
)

var _ auth.DirectoryStore = (*Store)(nil)

func mapUserConflict(err error) error {
	pgErr, ok := maybePgError(err)
	if !ok || pgErr.Code != pgErrUniqueViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case constraintUsername:
		return auth.ErrDuplicateUsername
	case constraintEmail:
		return auth.ErrDuplicateEmail
	default:
		return err
	}
}

func (s *Store) FindByUsername(ctx context.Context, username string) (*auth.Principal, error) {
	return s.findUser(ctx, `where u.username = $1`, username)
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*auth.Principal, error) {
	return s.findUser(ctx, `where lower(u.email) = lower($1)`, email)
}

func (s *Store) findUser(ctx context.Context, where string, arg any) (*auth.Principal, error) {
	rows, err := s.db.QueryContext(ctx, `
		select u.id, u.username, u.email, u.password_hash,
		       u.enabled, u.account_non_expired, u.account_non_locked, u.credentials_non_expired,
		       u.created_at, u.updated_at,
		       r.id, r.name, r.description, r.created_at
		from users u
		left join user_roles ur on ur.user_id = u.id
		left join roles r on r.id = ur.role_id
	`+where, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	principals, err := foldUserRows(rows)
	if err != nil {
		return nil, err
	}
	if len(principals) == 0 {
		return nil, auth.ErrNotFound
	}
	return principals[0], nil
}

func (s *Store) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return s.exists(ctx, `select 1 from users where username = $1`, username)
}

func (s *Store) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return s.exists(ctx, `select 1 from users where lower(email) = lower($1)`, email)
}

func (s *Store) exists(ctx context.Context, query string, arg any) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Create(ctx context.Context, p *auth.Principal) error {
	if p.ID == "" {
		p.ID = ids.New()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into users (id, username, email, password_hash,
		                   enabled, account_non_expired, account_non_locked, credentials_non_expired,
		                   created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, p.ID, p.Username, p.Email, p.PasswordHash,
		p.Enabled, p.AccountNonExpired, p.AccountNonLocked, p.CredentialsNonExpired,
		p.CreatedAt, p.UpdatedAt); err != nil {
		return mapUserConflict(err)
	}

	for _, role := range p.Roles {
		if _, err := tx.ExecContext(ctx, `
			insert into user_roles (user_id, role_id) values ($1, $2)
		`, p.ID, role.ID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) Update(ctx context.Context, p *auth.Principal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update users
		set email = $2, password_hash = $3,
		    enabled = $4, account_non_expired = $5, account_non_locked = $6, credentials_non_expired = $7,
		    updated_at = $8
		where username = $1
	`, p.Username, p.Email, p.PasswordHash,
		p.Enabled, p.AccountNonExpired, p.AccountNonLocked, p.CredentialsNonExpired,
		p.UpdatedAt)
	if err != nil {
		return mapUserConflict(err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}

	// Replace the role links wholesale; the set is small.
	if _, err := tx.ExecContext(ctx, `delete from user_roles where user_id = $1`, p.ID); err != nil {
		return err
	}
	for _, role := range p.Roles {
		if _, err := tx.ExecContext(ctx, `
			insert into user_roles (user_id, role_id) values ($1, $2)
		`, p.ID, role.ID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) Delete(ctx context.Context, username string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `delete from users where username = $1`, username)
	if err != nil {
		return false, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return aff > 0, nil
}

func (s *Store) ListAll(ctx context.Context) ([]*auth.Principal, error) {
	rows, err := s.db.QueryContext(ctx, `
		select u.id, u.username, u.email, u.password_hash,
		       u.enabled, u.account_non_expired, u.account_non_locked, u.credentials_non_expired,
		       u.created_at, u.updated_at,
		       r.id, r.name, r.description, r.created_at
		from users u
		left join user_roles ur on ur.user_id = u.id
		left join roles r on r.id = ur.role_id
		order by u.username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return foldUserRows(rows)
}

// foldUserRows collapses the user-role join into one Principal per user,
// preserving username order.
func foldUserRows(rows *sql.Rows) ([]*auth.Principal, error) {
	byID := make(map[string]*auth.Principal)
	var order []string
	for rows.Next() {
		var (
			p        auth.Principal
			roleID   sql.NullString
			roleName sql.NullString
			roleDesc sql.NullString
			roleAt   sql.NullTime
		)
		if err := rows.Scan(&p.ID, &p.Username, &p.Email, &p.PasswordHash,
			&p.Enabled, &p.AccountNonExpired, &p.AccountNonLocked, &p.CredentialsNonExpired,
			&p.CreatedAt, &p.UpdatedAt,
			&roleID, &roleName, &roleDesc, &roleAt); err != nil {
			return nil, err
		}
		existing, ok := byID[p.ID]
		if !ok {
			cp := p
			byID[p.ID] = &cp
			order = append(order, p.ID)
			existing = &cp
		}
		if roleID.Valid {
			role := auth.Role{ID: roleID.String, Name: roleName.String}
			if roleDesc.Valid {
				role.Description = roleDesc.String
			}
			if roleAt.Valid {
				role.CreatedAt = roleAt.Time
			}
			existing.Roles = append(existing.Roles, role)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*auth.Principal, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *Store) FindRoleByName(ctx context.Context, name string) (*auth.Role, error) {
	var (
		role auth.Role
		desc sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, name, description, created_at
		from roles
		where name = $1
	`, name).Scan(&role.ID, &role.Name, &desc, &role.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: role %s", auth.ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	if desc.Valid {
		role.Description = desc.String
	}
	return &role, nil
}

func (s *Store) EnsureRole(ctx context.Context, role auth.Role) error {
	if role.ID == "" {
		role.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into roles (id, name, description, created_at)
		values ($1, $2, $3, now())
		on conflict (name) do nothing
	`, role.ID, role.Name, role.Description)
	return err
}
