package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a plaintext password with bcrypt. Each hash carries its
// own random salt, so hashing the same password twice yields different values.
func HashPassword(plain string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether candidate matches the stored hash. An empty
// hash means no password is set and never verifies. The comparison is
// constant-time inside bcrypt.
func VerifyPassword(storedHash, candidate string) bool {
	if storedHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(candidate)) == nil
}

// VerifyLastPassword mirrors VerifyPassword against the retained previous
// password hash, for flows that need to compare against the last password.
func VerifyLastPassword(previousHash, candidate string) bool {
	return VerifyPassword(previousHash, candidate)
}
