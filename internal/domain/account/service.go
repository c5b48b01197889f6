package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/unkani/unkani/internal/platform/auth"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrEmailTaken     = errors.New("email address already registered")
	ErrPasswordReused = errors.New("new password matches a previous password")
)

// Service owns account state and doubles as the credential store for the
// authentication pipeline.
type Service struct {
	users UserRepository
	roles RoleRepository
	perms AppPermissionRepository
	cost  int
	log   zerolog.Logger
}

func NewService(users UserRepository, roles RoleRepository, perms AppPermissionRepository, bcryptCost int, log zerolog.Logger) *Service {
	return &Service{users: users, roles: roles, perms: perms, cost: bcryptCost, log: log}
}

func toAccount(u *User) *auth.Account {
	return &auth.Account{
		ID:           u.ID,
		PasswordHash: u.PasswordHash,
		TokenSecret:  u.TokenSecret,
		Confirmed:    u.Confirmed,
		Active:       u.Active,
	}
}

// AccountByID loads the credential view of a user. A missing user is
// (nil, nil), not an error.
func (s *Service) AccountByID(ctx context.Context, id uuid.UUID) (*auth.Account, error) {
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", id, err)
	}
	return toAccount(u), nil
}

// AccountByEmail looks a user up by a case-insensitive, trimmed match against
// active email records.
func (s *Service) AccountByEmail(ctx context.Context, email string) (*auth.Account, error) {
	u, err := s.users.GetByActiveEmail(ctx, email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load user by email: %w", err)
	}
	return toAccount(u), nil
}

// ResolveIdentity builds the permission set for an authenticated user. A
// broken role reference silently falls back to the default role; a store with
// no default role is corrupt and resolution fails closed.
func (s *Service) ResolveIdentity(ctx context.Context, id uuid.UUID) (*auth.Identity, error) {
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		s.log.Error().Str("user_id", id.String()).
			Msg("integrity incident: authenticated user missing from store")
		return nil, auth.ErrIntegrity
	}
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", id, err)
	}

	var role *Role
	if u.RoleID != nil {
		role, err = s.roles.GetByID(ctx, *u.RoleID)
		if errors.Is(err, pgx.ErrNoRows) {
			s.log.Warn().Str("user_id", id.String()).Str("role_id", u.RoleID.String()).
				Msg("user references missing role, falling back to default")
			role = nil
		} else if err != nil {
			return nil, fmt.Errorf("load role: %w", err)
		}
	}
	if role == nil {
		role, err = s.roles.GetDefault(ctx)
		if errors.Is(err, pgx.ErrNoRows) {
			s.log.Error().Str("user_id", id.String()).
				Msg("integrity incident: no default role configured")
			return nil, auth.ErrIntegrity
		}
		if err != nil {
			return nil, fmt.Errorf("load default role: %w", err)
		}
	}

	names, err := s.roles.PermissionNames(ctx, role.ID)
	if err != nil {
		return nil, fmt.Errorf("load permissions for role %s: %w", role.Name, err)
	}
	permissions := make(map[string]bool, len(names))
	for _, name := range names {
		permissions[name] = true
	}
	return &auth.Identity{UserID: u.ID, Role: role.Name, Permissions: permissions}, nil
}

// RegisterInput carries the fields accepted at registration.
type RegisterInput struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// Register creates an unconfirmed, active user on the default role with the
// given address as the primary active email. The caller is responsible for
// delivering a confirmation token.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	email := NormalizeEmail(in.Email)
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if in.Password == "" {
		return nil, fmt.Errorf("password is required")
	}
	taken, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if taken {
		return nil, ErrEmailTaken
	}

	hash, err := auth.HashPassword(in.Password, s.cost)
	if err != nil {
		return nil, err
	}
	defaultRole, err := s.roles.GetDefault(ctx)
	if errors.Is(err, pgx.ErrNoRows) {
		s.log.Error().Msg("integrity incident: no default role configured")
		return nil, auth.ErrIntegrity
	}
	if err != nil {
		return nil, fmt.Errorf("load default role: %w", err)
	}

	username := strings.TrimSpace(in.Username)
	if username == "" {
		username = email
	}
	u := &User{
		ID:           uuid.New(),
		Username:     username,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		PasswordHash: hash,
		TokenSecret:  uuid.NewString(),
		RoleID:       &defaultRole.ID,
		Confirmed:    false,
		Active:       true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	addr := &EmailAddress{UserID: u.ID, Email: email, Primary: true, Active: true}
	if err := s.users.AddEmail(ctx, addr); err != nil {
		return nil, fmt.Errorf("create email address: %w", err)
	}
	s.log.Info().Str("user_id", u.ID.String()).Msg("user registered")
	return u, nil
}

// Confirm marks the user's account confirmed. Confirming an already confirmed
// account is a no-op.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) error {
	if _, err := s.GetUser(ctx, id); err != nil {
		return err
	}
	if err := s.users.SetConfirmed(ctx, id); err != nil {
		return fmt.Errorf("confirm user %s: %w", id, err)
	}
	s.log.Info().Str("user_id", id.String()).Msg("user confirmed")
	return nil
}

// RevokeTokens rotates the user's token secret, invalidating every previously
// issued token. The rotation is persisted before return so no verifier can
// accept a stale token afterwards.
func (s *Service) RevokeTokens(ctx context.Context, id uuid.UUID) error {
	if err := s.users.UpdateTokenSecret(ctx, id, uuid.NewString()); err != nil {
		return fmt.Errorf("rotate token secret for %s: %w", id, err)
	}
	s.log.Info().Str("user_id", id.String()).Msg("tokens revoked")
	return nil
}

// ChangePassword verifies the current password, rejects reuse of the current
// or previous password, and stores the new hash while retaining the old one.
func (s *Service) ChangePassword(ctx context.Context, id uuid.UUID, current, newPassword string) error {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if !auth.VerifyPassword(u.PasswordHash, current) {
		return auth.ErrInvalidCredentials
	}
	if newPassword == "" {
		return fmt.Errorf("password is required")
	}
	if auth.VerifyPassword(u.PasswordHash, newPassword) || auth.VerifyLastPassword(u.PreviousPasswordHash, newPassword) {
		return ErrPasswordReused
	}
	hash, err := auth.HashPassword(newPassword, s.cost)
	if err != nil {
		return err
	}
	u.SetPassword(hash)
	if err := s.users.Update(ctx, u); err != nil {
		return fmt.Errorf("update user %s: %w", id, err)
	}
	return nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", id, err)
	}
	return u, nil
}

func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]*User, int, error) {
	return s.users.List(ctx, limit, offset)
}

func (s *Service) UserEmails(ctx context.Context, id uuid.UUID) ([]*EmailAddress, error) {
	return s.users.EmailsByUser(ctx, id)
}
