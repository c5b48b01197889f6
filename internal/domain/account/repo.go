package account

import (
	"context"

	"github.com/google/uuid"
)

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	// GetByActiveEmail matches the normalized email against active email
	// records only.
	GetByActiveEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, u *User) error
	UpdateTokenSecret(ctx context.Context, id uuid.UUID, secret string) error
	SetConfirmed(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*User, int, error)
	AddEmail(ctx context.Context, e *EmailAddress) error
	EmailsByUser(ctx context.Context, userID uuid.UUID) ([]*EmailAddress, error)
	EmailExists(ctx context.Context, email string) (bool, error)
}

type RoleRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Role, error)
	GetByName(ctx context.Context, name string) (*Role, error)
	// GetDefault returns the role carrying the default flag.
	GetDefault(ctx context.Context) (*Role, error)
	// PermissionNames returns the names of every permission granted to the role.
	PermissionNames(ctx context.Context, roleID uuid.UUID) ([]string, error)
	Upsert(ctx context.Context, r *Role) error
	Grant(ctx context.Context, roleID, permissionID uuid.UUID) error
}

type AppPermissionRepository interface {
	GetByName(ctx context.Context, name string) (*AppPermission, error)
	List(ctx context.Context) ([]*AppPermission, error)
	Upsert(ctx context.Context, p *AppPermission) error
}
