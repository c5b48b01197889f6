package account

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/unkani/unkani/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func conn(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// -- users --

type userRepoPG struct{ pool *pgxpool.Pool }

func NewUserRepoPG(pool *pgxpool.Pool) UserRepository {
	return &userRepoPG{pool: pool}
}

func (r *userRepoPG) conn(ctx context.Context) queryable { return conn(ctx, r.pool) }

const userCols = `id, username, first_name, last_name, password_hash,
	previous_password_hash, token_secret, role_id, confirmed, active,
	created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName,
		&u.PasswordHash, &u.PreviousPasswordHash, &u.TokenSecret, &u.RoleID,
		&u.Confirmed, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	return &u, err
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO users (id, username, first_name, last_name, password_hash,
			previous_password_hash, token_secret, role_id, confirmed, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		u.ID, u.Username, u.FirstName, u.LastName, u.PasswordHash,
		u.PreviousPasswordHash, u.TokenSecret, u.RoleID, u.Confirmed, u.Active)
	return err
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

func (r *userRepoPG) GetByActiveEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `
		SELECT u.id, u.username, u.first_name, u.last_name, u.password_hash,
			u.previous_password_hash, u.token_secret, u.role_id, u.confirmed,
			u.active, u.created_at, u.updated_at
		FROM users u
		JOIN email_address e ON e.user_id = u.id AND e.active
		WHERE e.email = UPPER(TRIM($1))
		LIMIT 1`, email))
}

func (r *userRepoPG) Update(ctx context.Context, u *User) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE users SET username=$2, first_name=$3, last_name=$4,
			password_hash=$5, previous_password_hash=$6, role_id=$7,
			confirmed=$8, active=$9, updated_at=NOW()
		WHERE id = $1`,
		u.ID, u.Username, u.FirstName, u.LastName, u.PasswordHash,
		u.PreviousPasswordHash, u.RoleID, u.Confirmed, u.Active)
	return err
}

func (r *userRepoPG) UpdateTokenSecret(ctx context.Context, id uuid.UUID, secret string) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE users SET token_secret=$2, updated_at=NOW() WHERE id = $1`, id, secret)
	return err
}

func (r *userRepoPG) SetConfirmed(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE users SET confirmed=TRUE, updated_at=NOW() WHERE id = $1`, id)
	return err
}

func (r *userRepoPG) List(ctx context.Context, limit, offset int) ([]*User, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+userCols+` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, u)
	}
	return items, total, nil
}

func (r *userRepoPG) AddEmail(ctx context.Context, e *EmailAddress) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.Email = NormalizeEmail(e.Email)
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO email_address (id, user_id, email, is_primary, active)
		VALUES ($1,$2,$3,$4,$5)`,
		e.ID, e.UserID, e.Email, e.Primary, e.Active)
	return err
}

func (r *userRepoPG) EmailsByUser(ctx context.Context, userID uuid.UUID) ([]*EmailAddress, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, user_id, email, is_primary, active, created_at
		FROM email_address WHERE user_id = $1 ORDER BY is_primary DESC, created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*EmailAddress
	for rows.Next() {
		var e EmailAddress
		if err := rows.Scan(&e.ID, &e.UserID, &e.Email, &e.Primary, &e.Active, &e.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &e)
	}
	return items, nil
}

func (r *userRepoPG) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM email_address WHERE email = UPPER(TRIM($1)) AND active)`,
		email).Scan(&exists)
	return exists, err
}

// -- roles & permissions --

type roleRepoPG struct{ pool *pgxpool.Pool }

func NewRoleRepoPG(pool *pgxpool.Pool) RoleRepository {
	return &roleRepoPG{pool: pool}
}

func (r *roleRepoPG) conn(ctx context.Context) queryable { return conn(ctx, r.pool) }

const roleCols = `id, name, level, is_default, created_at`

func scanRole(row pgx.Row) (*Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Level, &role.Default, &role.CreatedAt)
	return &role, err
}

func (r *roleRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Role, error) {
	return scanRole(r.conn(ctx).QueryRow(ctx,
		`SELECT `+roleCols+` FROM role WHERE id = $1`, id))
}

func (r *roleRepoPG) GetByName(ctx context.Context, name string) (*Role, error) {
	return scanRole(r.conn(ctx).QueryRow(ctx,
		`SELECT `+roleCols+` FROM role WHERE name = $1`, name))
}

func (r *roleRepoPG) GetDefault(ctx context.Context) (*Role, error) {
	return scanRole(r.conn(ctx).QueryRow(ctx,
		`SELECT `+roleCols+` FROM role WHERE is_default LIMIT 1`))
}

func (r *roleRepoPG) PermissionNames(ctx context.Context, roleID uuid.UUID) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT p.name
		FROM role_app_permission rp
		JOIN app_permission p ON p.id = rp.app_permission_id
		WHERE rp.role_id = $1`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

func (r *roleRepoPG) Upsert(ctx context.Context, role *Role) error {
	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO role (id, name, level, is_default)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (name) DO UPDATE SET level=EXCLUDED.level, is_default=EXCLUDED.is_default
		RETURNING id`,
		role.ID, role.Name, role.Level, role.Default).Scan(&role.ID)
}

func (r *roleRepoPG) Grant(ctx context.Context, roleID, permissionID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO role_app_permission (role_id, app_permission_id)
		VALUES ($1,$2) ON CONFLICT DO NOTHING`, roleID, permissionID)
	return err
}

type appPermissionRepoPG struct{ pool *pgxpool.Pool }

func NewAppPermissionRepoPG(pool *pgxpool.Pool) AppPermissionRepository {
	return &appPermissionRepoPG{pool: pool}
}

func (r *appPermissionRepoPG) conn(ctx context.Context) queryable { return conn(ctx, r.pool) }

func (r *appPermissionRepoPG) GetByName(ctx context.Context, name string) (*AppPermission, error) {
	var p AppPermission
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id, name FROM app_permission WHERE name = $1`, name).Scan(&p.ID, &p.Name)
	return &p, err
}

func (r *appPermissionRepoPG) List(ctx context.Context) ([]*AppPermission, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT id, name FROM app_permission ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*AppPermission
	for rows.Next() {
		var p AppPermission
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, err
		}
		items = append(items, &p)
	}
	return items, nil
}

func (r *appPermissionRepoPG) Upsert(ctx context.Context, p *AppPermission) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO app_permission (id, name)
		VALUES ($1,$2)
		ON CONFLICT (name) DO UPDATE SET name=EXCLUDED.name
		RETURNING id`,
		p.ID, p.Name).Scan(&p.ID)
}
