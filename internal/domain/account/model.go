package account

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User maps to the users table. PasswordHash and TokenSecret never leave the
// service boundary; handlers serialize users through userResponse.
type User struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	Username             string     `db:"username" json:"username"`
	FirstName            string     `db:"first_name" json:"first_name"`
	LastName             string     `db:"last_name" json:"last_name"`
	PasswordHash         string     `db:"password_hash" json:"-"`
	PreviousPasswordHash string     `db:"previous_password_hash" json:"-"`
	TokenSecret          string     `db:"token_secret" json:"-"`
	RoleID               *uuid.UUID `db:"role_id" json:"role_id,omitempty"`
	Confirmed            bool       `db:"confirmed" json:"confirmed"`
	Active               bool       `db:"active" json:"active"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// SetPassword records a new password hash and retains the prior one so
// "was this my last password" checks keep working after a change.
func (u *User) SetPassword(hash string) {
	u.PreviousPasswordHash = u.PasswordHash
	u.PasswordHash = hash
}

// EmailAddress maps to the email_address table. A user owns any number of
// addresses; authentication considers only active ones and at most one is
// primary.
type EmailAddress struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Email     string    `db:"email" json:"email"`
	Primary   bool      `db:"is_primary" json:"primary"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Role maps to the role table. Exactly one role carries the default flag;
// users whose role reference is missing or broken resolve to it.
type Role struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Level     int       `db:"level" json:"level"`
	Default   bool      `db:"is_default" json:"default"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AppPermission maps to the app_permission table. The set of permissions is
// fixed at deploy time by the seed registry; roles reference them through
// role_app_permission.
type AppPermission struct {
	ID   uuid.UUID `db:"id" json:"id"`
	Name string    `db:"name" json:"name"`
}

// NormalizeEmail canonicalizes an email for storage and lookup: surrounding
// whitespace stripped, upper-cased. All email comparison happens on this form.
func NormalizeEmail(email string) string {
	return strings.ToUpper(strings.TrimSpace(email))
}
