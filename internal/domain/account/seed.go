package account

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/unkani/unkani/internal/platform/auth"
)

// Permission names known to the application. Route guards reference these
// constants; the seeder creates the matching rows.
const (
	PermUserCreate   = "user:create"
	PermUserRead     = "user:read"
	PermUserUpdate   = "user:update"
	PermUserDelete   = "user:delete"
	PermRoleRead     = "role:read"
	PermAppGroupRead = "appgroup:read"
)

const (
	RoleSuperAdmin = "Super Admin"
	RoleAdmin      = "Admin"
	RoleUser       = "User"
)

var permissionRegistry = []string{
	PermUserCreate, PermUserRead, PermUserUpdate, PermUserDelete,
	PermRoleRead, PermAppGroupRead,
}

// roleRegistry fixes each role's grants. The User role is the default every
// new registration lands on; its members act only on their own records, which
// handlers enforce without a permission.
var roleRegistry = []struct {
	name    string
	level   int
	def     bool
	granted []string
}{
	{RoleSuperAdmin, 100, false, permissionRegistry},
	{RoleAdmin, 50, false, []string{PermUserCreate, PermUserRead, PermUserUpdate, PermUserDelete, PermRoleRead, PermAppGroupRead}},
	{RoleUser, 10, true, nil},
}

// Seed creates the permission registry, the role hierarchy and its grants,
// and optionally a confirmed Super Admin bootstrap user. Safe to run
// repeatedly; everything upserts by name.
func (s *Service) Seed(ctx context.Context, adminEmail, adminPassword string) error {
	permIDs := make(map[string]uuid.UUID, len(permissionRegistry))
	for _, name := range permissionRegistry {
		p := &AppPermission{Name: name}
		if err := s.perms.Upsert(ctx, p); err != nil {
			return fmt.Errorf("seed permission %s: %w", name, err)
		}
		permIDs[name] = p.ID
	}

	var superAdmin *Role
	for _, entry := range roleRegistry {
		role := &Role{Name: entry.name, Level: entry.level, Default: entry.def}
		if err := s.roles.Upsert(ctx, role); err != nil {
			return fmt.Errorf("seed role %s: %w", entry.name, err)
		}
		for _, perm := range entry.granted {
			if err := s.roles.Grant(ctx, role.ID, permIDs[perm]); err != nil {
				return fmt.Errorf("grant %s to %s: %w", perm, entry.name, err)
			}
		}
		if entry.name == RoleSuperAdmin {
			superAdmin = role
		}
	}
	s.log.Info().Int("permissions", len(permissionRegistry)).Int("roles", len(roleRegistry)).
		Msg("registry seeded")

	if adminEmail == "" || adminPassword == "" {
		return nil
	}
	return s.seedAdmin(ctx, superAdmin, adminEmail, adminPassword)
}

func (s *Service) seedAdmin(ctx context.Context, role *Role, email, password string) error {
	taken, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return fmt.Errorf("check admin email: %w", err)
	}
	if taken {
		return nil
	}

	hash, err := auth.HashPassword(password, s.cost)
	if err != nil {
		return err
	}
	admin := &User{
		ID:           uuid.New(),
		Username:     NormalizeEmail(email),
		PasswordHash: hash,
		TokenSecret:  uuid.NewString(),
		RoleID:       &role.ID,
		Confirmed:    true,
		Active:       true,
	}
	if err := s.users.Create(ctx, admin); err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	addr := &EmailAddress{UserID: admin.ID, Email: email, Primary: true, Active: true}
	if err := s.users.AddEmail(ctx, addr); err != nil {
		return fmt.Errorf("create admin email: %w", err)
	}
	s.log.Info().Str("user_id", admin.ID.String()).Msg("admin user seeded")
	return nil
}
