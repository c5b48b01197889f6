package account

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/unkani/unkani/internal/platform/auth"
	"github.com/unkani/unkani/pkg/pagination"
)

// Confirmation tokens are short-lived; the link is meant to be clicked from a
// freshly sent email.
const confirmationTTL = time.Hour

type Handler struct {
	svc    *Service
	tokens *auth.TokenService
}

func NewHandler(svc *Service, tokens *auth.TokenService) *Handler {
	return &Handler{svc: svc, tokens: tokens}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/tokens", h.IssueToken, auth.RequireMethod(auth.MethodBasic))
	api.DELETE("/tokens", h.RevokeTokens, auth.RequireMethod(auth.MethodToken))

	api.POST("/users", h.Register)
	api.POST("/users/confirm", h.Confirm)
	api.GET("/users/me", h.CurrentUser, auth.RequireAuth())
	api.PUT("/users/me/password", h.ChangePassword, auth.RequireAuth())

	admin := api.Group("", auth.RequirePermission(PermUserRead))
	admin.GET("/users", h.ListUsers)
	admin.GET("/users/:id", h.GetUser)
}

type userResponse struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Role      string    `json:"role,omitempty"`
	Confirmed bool      `json:"confirmed"`
	Active    bool      `json:"active"`
	Emails    []string  `json:"emails,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func newUserResponse(u *User, emails []*EmailAddress) userResponse {
	resp := userResponse{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Confirmed: u.Confirmed,
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
	}
	for _, e := range emails {
		if e.Active {
			resp.Emails = append(resp.Emails, e.Email)
		}
	}
	return resp
}

// IssueToken exchanges verified Basic credentials for a bearer token. Tokens
// can only be minted from a password, never from another token.
func (h *Handler) IssueToken(c echo.Context) error {
	ident := auth.IdentityFromContext(c.Request().Context())
	acct, err := h.svc.AccountByID(c.Request().Context(), ident.UserID)
	if err != nil {
		return err
	}
	if acct == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "account no longer exists")
	}
	token, err := h.tokens.Issue(acct)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"token":      token,
		"expires_in": int(h.tokens.TTL().Seconds()),
	})
}

// RevokeTokens invalidates every token the caller has ever been issued,
// including the one authenticating this request.
func (h *Handler) RevokeTokens(c echo.Context) error {
	ident := auth.IdentityFromContext(c.Request().Context())
	if err := h.svc.RevokeTokens(c.Request().Context(), ident.UserID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Register creates an unconfirmed account and returns a confirmation token.
// The account cannot authenticate until the token is redeemed.
func (h *Handler) Register(c echo.Context) error {
	var in RegisterInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := h.svc.Register(c.Request().Context(), in)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		if _, ok := auth.AsError(err); ok {
			return err
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	confirmation, err := h.tokens.IssueConfirmation(u.ID, confirmationTTL)
	if err != nil {
		return err
	}
	emails, err := h.svc.UserEmails(c.Request().Context(), u.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"user":               newUserResponse(u, emails),
		"confirmation_token": confirmation,
	})
}

// Confirm redeems a confirmation token and activates Basic authentication for
// the bound account.
func (h *Handler) Confirm(c echo.Context) error {
	var in struct {
		Token string `json:"token"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	id, err := h.tokens.VerifyConfirmation(in.Token)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid or expired confirmation token")
	}
	if err := h.svc.Confirm(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid or expired confirmation token")
		}
		return err
	}
	u, err := h.svc.GetUser(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newUserResponse(u, nil))
}

func (h *Handler) CurrentUser(c echo.Context) error {
	ident := auth.IdentityFromContext(c.Request().Context())
	u, err := h.svc.GetUser(c.Request().Context(), ident.UserID)
	if err != nil {
		return err
	}
	emails, err := h.svc.UserEmails(c.Request().Context(), u.ID)
	if err != nil {
		return err
	}
	resp := newUserResponse(u, emails)
	resp.Role = ident.Role
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) ChangePassword(c echo.Context) error {
	var in struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ident := auth.IdentityFromContext(c.Request().Context())
	err := h.svc.ChangePassword(c.Request().Context(), ident.UserID, in.CurrentPassword, in.NewPassword)
	switch {
	case err == nil:
		return c.NoContent(http.StatusNoContent)
	case errors.Is(err, auth.ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, "current password could not be verified")
	case errors.Is(err, ErrPasswordReused):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusUnauthorized, "account no longer exists")
	default:
		return err
	}
}

func (h *Handler) ListUsers(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListUsers(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	users := make([]userResponse, len(items))
	for i, u := range items {
		users[i] = newUserResponse(u, nil)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(users, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetUser(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	u, err := h.svc.GetUser(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		return err
	}
	emails, err := h.svc.UserEmails(c.Request().Context(), u.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newUserResponse(u, emails))
}
