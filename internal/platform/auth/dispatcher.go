package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Authenticate returns the authentication entry point for API routes. It
// inspects the Authorization header and dispatches on scheme: Basic
// credentials are checked first, and only when no Basic credentials are
// present is a bearer token considered. A request carrying neither proceeds
// anonymously; endpoint middleware decides whether anonymity is acceptable.
//
// Failures are terminal. A bad password never falls through to the token
// path, and no partial identity is ever attached.
func Authenticate(store Store, tokens *TokenService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if email, password, ok := c.Request().BasicAuth(); ok {
				acct, err := verifyBasic(c, store, email, password)
				if err != nil {
					return reject(c, err)
				}
				return establish(c, next, store, acct, MethodBasic)
			}

			tokenStr, ok := bearerToken(c)
			if !ok {
				return next(c)
			}
			acct, err := verifyToken(c, tokens, tokenStr)
			if err != nil {
				return reject(c, err)
			}
			return establish(c, next, store, acct, MethodToken)
		}
	}
}

// verifyBasic authenticates an email/password pair. Checks run in a fixed
// order and the first failure wins: missing email, unknown user, wrong
// password, unconfirmed account, deactivated account.
func verifyBasic(c echo.Context, store Store, email, password string) (*Account, error) {
	if strings.TrimSpace(email) == "" {
		return nil, ErrMissingEmail
	}
	acct, err := store.AccountByEmail(c.Request().Context(), email)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, ErrUserNotFound
	}
	if !VerifyPassword(acct.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if !acct.Confirmed {
		return nil, ErrUnconfirmedAccount
	}
	if !acct.Active {
		return nil, ErrInactiveAccount
	}
	return acct, nil
}

// verifyToken authenticates a bearer token. A revoked token fails exactly like
// a forged one; the verifier cannot tell them apart. The active flag is not
// checked here: deactivation gates password logins, while cutting off issued
// tokens is what revocation is for.
func verifyToken(c echo.Context, tokens *TokenService, tokenStr string) (*Account, error) {
	acct, expired, err := tokens.Verify(c.Request().Context(), tokenStr)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, ErrInvalidToken
	}
	if expired {
		return nil, ErrTokenExpired
	}
	if !acct.Confirmed {
		return nil, ErrUnconfirmedAccount
	}
	return acct, nil
}

// establish resolves the request identity from the verified account, attaches
// it to the request context, and flags the request for the API response hook.
func establish(c echo.Context, next echo.HandlerFunc, store Store, acct *Account, method Method) error {
	ident, err := store.ResolveIdentity(c.Request().Context(), acct.ID)
	if err != nil {
		return reject(c, err)
	}
	ident.Method = method
	ctx := WithIdentity(c.Request().Context(), ident)
	c.SetRequest(c.Request().WithContext(ctx))
	markAPIRequest(c)
	return next(c)
}

// bearerToken extracts the credential from a Bearer Authorization header. An
// empty credential is treated as no credential at all.
func bearerToken(c echo.Context) (string, bool) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", false
	}
	return token, true
}

// reject terminates the request with the failure's status and a structured
// body carrying the stable error code. The body is written directly so the
// code field survives; the framework's error handler would collapse it to a
// bare message.
func reject(c echo.Context, err error) error {
	authErr, ok := AsError(err)
	if !ok {
		return err
	}
	if authErr.HTTPStatus() == http.StatusUnauthorized {
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer realm="unkani"`)
	}
	return c.JSON(authErr.HTTPStatus(), authErr)
}
