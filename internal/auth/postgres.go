package auth

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"automationstation.io/internal/ids"
)

var _ Store = (*PGStore)(nil)

const pgUniqueViolation = "23505"

// PGStore implements Store using PostgreSQL through database/sql.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users() UserStore       { return &userStore{db: s.db} }
func (s *PGStore) Roles() RoleStore       { return &roleStore{db: s.db} }
func (s *PGStore) Audit() AuditStore      { return &auditStore{db: s.db} }
func (s *PGStore) Settings() SettingStore { return &settingStore{db: s.db} }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// User store ---------------------------------------------------------------

type userStore struct{ db *sql.DB }

const userColumns = `id, username, email, coalesce(password_hash, ''), coalesce(full_name, ''),
	coalesce(title, ''), coalesce(profile_picture, ''), is_sso_user, coalesce(sso_provider, ''),
	coalesce(sso_user_id, ''), is_active, created_at, updated_at, last_login`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var (
		u         User
		lastLogin sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FullName,
		&u.Title, &u.ProfilePicture, &u.IsSSOUser, &u.SSOProvider,
		&u.SSOUserID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt, &lastLogin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	return &u, nil
}

func (s *userStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, username, email, password_hash, full_name, title, is_sso_user, is_active)
		 values($1,$2,$3,$4,nullif($5,''),nullif($6,''),false,true)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.FullName, u.Title,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateIdentity
		}
		return err
	}
	return nil
}

func (s *userStore) Provision(ctx context.Context, u *User, defaultRole string) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`insert into users(id, username, email, password_hash, full_name, profile_picture,
		                   is_sso_user, sso_provider, sso_user_id, is_active, last_login)
		 values($1,$2,$3,null,nullif($4,''),nullif($5,''),true,$6,$7,true,now())`,
		u.ID, u.Username, u.Email, u.FullName, u.ProfilePicture, u.SSOProvider, u.SSOUserID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateIdentity
		}
		return err
	}
	if defaultRole != "" {
		_, err = tx.ExecContext(ctx,
			`insert into user_roles(user_id, role_name) values($1,$2) on conflict do nothing`,
			u.ID, defaultRole,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *userStore) Find(ctx context.Context, id string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id))
}

func (s *userStore) FindActive(ctx context.Context, id string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1 and is_active`, id))
}

func (s *userStore) FindActiveByUsername(ctx context.Context, username string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where username=$1 and is_active`, username))
}

func (s *userStore) FindBySSO(ctx context.Context, ssoUserID, email string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where sso_user_id=$1 or email=$2
		 order by (sso_user_id=$1) desc limit 1`, ssoUserID, email))
}

func (s *userStore) List(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+userColumns+` from users order by created_at desc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *userStore) UpdateProfile(ctx context.Context, id, fullName, title, picture string) error {
	_, err := s.db.ExecContext(ctx,
		`update users set full_name=nullif($2,''), title=nullif($3,''),
		        profile_picture=nullif($4,''), updated_at=now() where id=$1`,
		id, fullName, title, picture,
	)
	return err
}

func (s *userStore) RefreshFromSSO(ctx context.Context, id, fullName, picture string) error {
	_, err := s.db.ExecContext(ctx,
		`update users set full_name=coalesce(nullif($2,''), full_name),
		        profile_picture=coalesce(nullif($3,''), profile_picture),
		        last_login=now(), updated_at=now() where id=$1`,
		id, fullName, picture,
	)
	return err
}

func (s *userStore) TouchLastLogin(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`update users set last_login=now(), updated_at=now() where id=$1`, id)
	return err
}

func (s *userStore) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`update users set is_active=$2, updated_at=now() where id=$1`, id, active)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *userStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from users where id=$1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Role store ---------------------------------------------------------------

type roleStore struct{ db *sql.DB }

func (s *roleStore) Assign(ctx context.Context, a RoleAssignment) error {
	_, err := s.db.ExecContext(ctx,
		`insert into user_roles(user_id, role_name, assigned_by)
		 values($1,$2,nullif($3,'')) on conflict (user_id, role_name) do nothing`,
		a.UserID, a.RoleName, a.AssignedBy,
	)
	return err
}

func (s *roleStore) Remove(ctx context.Context, userID, roleName string) error {
	_, err := s.db.ExecContext(ctx,
		`delete from user_roles where user_id=$1 and role_name=$2`, userID, roleName)
	return err
}

func (s *roleStore) ListForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`select role_name from user_roles where user_id=$1 order by role_name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (s *roleStore) Has(ctx context.Context, userID, roleName string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from user_roles where user_id=$1 and role_name=$2)`,
		userID, roleName,
	).Scan(&exists)
	return exists, err
}

// Audit store --------------------------------------------------------------

type auditStore struct{ db *sql.DB }

func (s *auditStore) Append(ctx context.Context, e *AuditEntry) error {
	if e.ID == "" {
		e.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into audit_logs(id, user_id, action, entity_type, entity_id, details, ip_address, user_agent)
		 values($1,nullif($2,''),$3,$4,nullif($5,''),nullif($6,''),nullif($7,''),nullif($8,''))`,
		e.ID, e.UserID, e.Action, e.EntityType, e.EntityID, e.Details, e.IPAddress, e.UserAgent,
	)
	return err
}

func (s *auditStore) List(ctx context.Context, limit int) ([]*AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, coalesce(user_id, ''), action, entity_type, coalesce(entity_id, ''),
		        coalesce(details, ''), coalesce(ip_address, ''), coalesce(user_agent, ''), created_at
		 from audit_logs order by created_at desc limit $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.EntityType, &e.EntityID,
			&e.Details, &e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Setting store ------------------------------------------------------------

type settingStore struct{ db *sql.DB }

func (s *settingStore) List(ctx context.Context) ([]Setting, error) {
	rows, err := s.db.QueryContext(ctx,
		`select config_key, config_value, config_type, coalesce(description, ''),
		        is_editable, updated_at, coalesce(updated_by, '')
		 from app_config where is_editable order by config_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var settings []Setting
	for rows.Next() {
		var st Setting
		if err := rows.Scan(&st.Key, &st.Value, &st.Type, &st.Description,
			&st.IsEditable, &st.UpdatedAt, &st.UpdatedBy); err != nil {
			return nil, err
		}
		settings = append(settings, st)
	}
	return settings, rows.Err()
}

func (s *settingStore) Update(ctx context.Context, key, value, updatedBy string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`update app_config set config_value=$2, updated_by=$3, updated_at=now()
		 where config_key=$1 and is_editable`, key, value, updatedBy)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
