package auth

import (
	"context"

	"github.com/google/uuid"
)

// Account is the credential store's view of a user, limited to what the
// authentication pipeline needs. The account domain owns the full record.
type Account struct {
	ID           uuid.UUID
	PasswordHash string
	TokenSecret  string
	Confirmed    bool
	Active       bool
}

// AccountSource resolves accounts by id. It is the minimal dependency of the
// token verifier.
type AccountSource interface {
	// AccountByID returns (nil, nil) when no account exists with the id.
	AccountByID(ctx context.Context, id uuid.UUID) (*Account, error)
}

// Store is the credential store consumed by the authentication dispatcher.
// It is implemented by the account service.
type Store interface {
	AccountSource

	// AccountByEmail looks up an account by a case-insensitive, trimmed match
	// restricted to active email records. Returns (nil, nil) when none match.
	AccountByEmail(ctx context.Context, email string) (*Account, error)

	// ResolveIdentity loads the account's role, falling back to the default
	// role when the reference is broken, and aggregates the permission set the
	// role grants. Resolution is idempotent. A store whose default role is
	// missing fails closed with an integrity Error.
	ResolveIdentity(ctx context.Context, id uuid.UUID) (*Identity, error)
}
