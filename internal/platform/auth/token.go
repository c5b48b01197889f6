package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// confirmationAudience separates account-confirmation tokens from bearer
// tokens; the two are never interchangeable even though both are signed JWTs.
const confirmationAudience = "unkani:confirm"

// TokenService issues and verifies signed, time-limited bearer tokens. The
// signing key is derived from a process-wide secret combined with the
// account's token secret: rotating the account secret invalidates every
// previously issued token without keeping a blocklist. A verifier therefore
// cannot distinguish a revoked token from a forged one; that information
// hiding is intentional.
type TokenService struct {
	secret   []byte
	ttl      time.Duration
	accounts AccountSource
	now      func() time.Time
}

func NewTokenService(secret []byte, ttl time.Duration, accounts AccountSource) *TokenService {
	return &TokenService{
		secret:   secret,
		ttl:      ttl,
		accounts: accounts,
		now:      time.Now,
	}
}

// TTL returns the validity window applied to issued tokens.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

func (s *TokenService) signingKey(tokenSecret string) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(tokenSecret))
	return mac.Sum(nil)
}

// Issue encodes the account id and issuance time into a signed token. Issuance
// does not mutate persisted state.
func (s *TokenService) Issue(acct *Account) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:  acct.ID.String(),
		IssuedAt: jwt.NewNumericDate(s.now()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey(acct.TokenSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify decodes and validates a bearer token. The returned flag reports
// expiry: (nil, false) for a malformed or forged token, (account, true) when
// the signature is valid but the validity window has elapsed, and
// (account, false) for a usable token. The error is non-nil only when the
// credential store itself fails.
//
// The expiry window is checked against issuance time after the signature
// verifies, so an expired token still identifies its account; clients can
// distinguish "re-authenticate" from "re-request".
func (s *TokenService) Verify(ctx context.Context, tokenStr string) (*Account, bool, error) {
	var (
		acct     *Account
		storeErr error
	)

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithoutClaimsValidation(),
	)
	claims := &jwt.RegisteredClaims{}
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		sub, err := t.Claims.GetSubject()
		if err != nil || sub == "" {
			return nil, fmt.Errorf("token has no subject")
		}
		id, err := uuid.Parse(sub)
		if err != nil {
			return nil, fmt.Errorf("malformed token subject")
		}
		a, err := s.accounts.AccountByID(ctx, id)
		if err != nil {
			storeErr = err
			return nil, err
		}
		if a == nil {
			return nil, fmt.Errorf("no account matching token subject")
		}
		acct = a
		return s.signingKey(a.TokenSecret), nil
	})

	if storeErr != nil {
		return nil, false, fmt.Errorf("verify token: %w", storeErr)
	}
	if err != nil || !token.Valid {
		return nil, false, nil
	}
	if claims.IssuedAt == nil {
		return nil, false, nil
	}
	if s.now().Sub(claims.IssuedAt.Time) > s.ttl {
		return acct, true, nil
	}
	return acct, false, nil
}

// IssueConfirmation creates a signed, timed token binding the user id for
// account confirmation. Confirmation tokens are signed with the process
// secret alone so they survive bearer-token revocation.
func (s *TokenService) IssueConfirmation(id uuid.UUID, ttl time.Duration) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   id.String(),
		Audience:  jwt.ClaimStrings{confirmationAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign confirmation token: %w", err)
	}
	return signed, nil
}

// VerifyConfirmation validates a confirmation token and returns the bound
// user id. Expired, malformed, or forged tokens all fail.
func (s *TokenService) VerifyConfirmation(tokenStr string) (uuid.UUID, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithAudience(confirmationAudience),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return uuid.Nil, fmt.Errorf("invalid confirmation token")
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid confirmation token")
	}
	return id, nil
}
