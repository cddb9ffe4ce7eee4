// Package pg is the PostgreSQL store. Per-user role mutations run in one
// transaction holding the user's row lock (select ... for update).
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/rasyiqi-code/breaktool-sub003/internal/domain"
	"github.com/rasyiqi-code/breaktool-sub003/internal/engine"
	"github.com/rasyiqi-code/breaktool-sub003/internal/ids"
	"github.com/rasyiqi-code/breaktool-sub003/internal/roles"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
	pgErrCheckViolation      = "23514"
)

var errNoDB = errors.New("database connection unavailable")

type Store struct {
	db *sql.DB
}

var (
	_ roles.Store  = (*Store)(nil)
	_ engine.Store = (*Store)(nil)
)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

const userColumns = `id, primary_role, active_role, role_switched_at, trust_score, badges,
	verification_status, vendor_status, helpful_votes_received, created_at`

const grantColumns = `id, user_id, role, is_active, granted_at, granted_by`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u         domain.User
		switched  sql.NullTime
		rawBadges []byte
	)
	if err := row.Scan(&u.ID, &u.PrimaryRole, &u.ActiveRole, &switched, &u.TrustScore, &rawBadges,
		&u.VerificationStatus, &u.VendorStatus, &u.HelpfulVotesReceived, &u.CreatedAt); err != nil {
		return domain.User{}, err
	}
	if switched.Valid {
		at := switched.Time.UTC()
		u.RoleSwitchedAt = &at
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.Badges = []string{}
	if len(rawBadges) > 0 {
		if err := json.Unmarshal(rawBadges, &u.Badges); err != nil {
			return domain.User{}, fmt.Errorf("decode badges: %w", err)
		}
	}
	return u, nil
}

func scanGrant(row rowScanner) (domain.RoleGrant, error) {
	var (
		g         domain.RoleGrant
		grantedBy sql.NullString
	)
	if err := row.Scan(&g.ID, &g.UserID, &g.Role, &g.IsActive, &g.GrantedAt, &grantedBy); err != nil {
		return domain.RoleGrant{}, err
	}
	g.GrantedAt = g.GrantedAt.UTC()
	g.GrantedBy = grantedBy.String
	return g, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listGrants(ctx context.Context, q querier, userID string) ([]domain.RoleGrant, error) {
	rows, err := q.QueryContext(ctx, `
		select `+grantColumns+`
		from role_grants
		where user_id = $1
		order by granted_at desc, role
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RoleGrant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// EnsureUser creates the user with primary and active role "user" plus an
// active user grant. Existing users are returned unchanged.
func (s *Store) EnsureUser(ctx context.Context, userID string, createdAt time.Time) (domain.User, error) {
	if s.db == nil {
		return domain.User{}, errNoDB
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.User{}, fmt.Errorf("%w: user_id is required", domain.ErrInvalidInput)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into users (id, primary_role, active_role, created_at)
		values ($1, 'user', 'user', $2)
		on conflict (id) do nothing
	`, userID, createdAt.UTC()); err != nil {
		return domain.User{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		insert into role_grants (id, user_id, role, is_active, granted_at, granted_by)
		values ($1, $2, 'user', true, $3, null)
		on conflict (user_id, role) do nothing
	`, ids.New(), userID, createdAt.UTC()); err != nil {
		return domain.User{}, err
	}
	u, err := scanUser(tx.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, userID))
	if err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (domain.User, error) {
	if s.db == nil {
		return domain.User{}, errNoDB
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, err
}

func (s *Store) ListGrants(ctx context.Context, userID string) ([]domain.RoleGrant, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, `select exists(select 1 from users where id = $1)`, userID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrUserNotFound
	}
	return listGrants(ctx, s.db, userID)
}

// UpdateUser locks the user row for the duration of fn. Writes made through
// the Tx are committed together when fn returns nil.
func (s *Store) UpdateUser(ctx context.Context, userID string, fn func(tx roles.Tx) error) error {
	if s.db == nil {
		return errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	u, err := scanUser(tx.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1 for update`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrUserNotFound
	}
	if err != nil {
		return err
	}
	grants, err := listGrants(ctx, tx, userID)
	if err != nil {
		return err
	}

	if err := fn(&pgTx{tx: tx, user: u, grants: grants}); err != nil {
		return err
	}
	return tx.Commit()
}

type pgTx struct {
	tx     *sql.Tx
	user   domain.User
	grants []domain.RoleGrant
}

func (t *pgTx) User() domain.User {
	u := t.user
	u.Badges = append([]string{}, t.user.Badges...)
	return u
}

func (t *pgTx) Grants() []domain.RoleGrant {
	return append([]domain.RoleGrant(nil), t.grants...)
}

func (t *pgTx) PutGrant(ctx context.Context, g domain.RoleGrant) (domain.RoleGrant, error) {
	if g.ID == "" {
		g.ID = ids.New()
	}
	stored, err := scanGrant(t.tx.QueryRowContext(ctx, `
		insert into role_grants (id, user_id, role, is_active, granted_at, granted_by)
		values ($1, $2, $3, $4, $5, $6)
		on conflict (user_id, role) do update
		set is_active = excluded.is_active,
		    granted_at = excluded.granted_at,
		    granted_by = excluded.granted_by
		returning `+grantColumns,
		g.ID, t.user.ID, string(g.Role), g.IsActive, g.GrantedAt.UTC(), nullIfEmpty(g.GrantedBy)))
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrCheckViolation {
			return domain.RoleGrant{}, fmt.Errorf("%w: %s", domain.ErrInvalidRole, g.Role)
		}
		return domain.RoleGrant{}, err
	}
	replaced := false
	for i := range t.grants {
		if t.grants[i].Role == stored.Role {
			t.grants[i] = stored
			replaced = true
		}
	}
	if !replaced {
		t.grants = append([]domain.RoleGrant{stored}, t.grants...)
	}
	return stored, nil
}

func (t *pgTx) SetActiveRole(ctx context.Context, role domain.Role, switchedAt *time.Time) error {
	var at sql.NullTime
	if switchedAt != nil {
		at = sql.NullTime{Time: switchedAt.UTC(), Valid: true}
	}
	if _, err := t.tx.ExecContext(ctx, `
		update users
		set active_role = $2, role_switched_at = coalesce($3, role_switched_at)
		where id = $1
	`, t.user.ID, string(role), at); err != nil {
		return err
	}
	t.user.ActiveRole = role
	if switchedAt != nil {
		stamp := switchedAt.UTC()
		t.user.RoleSwitchedAt = &stamp
	}
	return nil
}

func (t *pgTx) SetVerificationStatus(ctx context.Context, status domain.ApplicationStatus) error {
	if _, err := t.tx.ExecContext(ctx, `update users set verification_status = $2 where id = $1`, t.user.ID, string(status)); err != nil {
		return err
	}
	t.user.VerificationStatus = status
	return nil
}

func (t *pgTx) SetVendorStatus(ctx context.Context, status domain.ApplicationStatus) error {
	if _, err := t.tx.ExecContext(ctx, `update users set vendor_status = $2 where id = $1`, t.user.ID, string(status)); err != nil {
		return err
	}
	t.user.VendorStatus = status
	return nil
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
