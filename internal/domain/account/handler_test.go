package account

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/unkani/unkani/internal/platform/auth"
)

// newTestServer wires the handler behind the real authentication middleware so
// tests exercise the full pipeline end to end.
func newTestServer(t *testing.T) (*echo.Echo, *serviceFixture, *auth.TokenService) {
	t.Helper()
	users := newFakeUserRepo()
	roles := newFakeRoleRepo()
	roles.add(RoleUser, 10, true)
	roles.add(RoleAdmin, 50, false, PermUserRead, PermUserCreate)
	fx := &serviceFixture{
		svc:   NewService(users, roles, newFakePermRepo(), bcrypt.MinCost, zerolog.Nop()),
		users: users,
		roles: roles,
	}
	tokens := auth.NewTokenService([]byte("test-secret"), time.Hour, fx.svc)

	e := echo.New()
	api := e.Group("/api/v1", auth.Authenticate(fx.svc, tokens))
	NewHandler(fx.svc, tokens).RegisterRoutes(api)
	return e, fx, tokens
}

func doJSON(e *echo.Echo, method, path, body string, setAuth func(*http.Request)) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if setAuth != nil {
		setAuth(req)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func authErrorCode(t *testing.T, rec *httptest.ResponseRecorder) auth.Code {
	t.Helper()
	var body struct {
		Code auth.Code `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body.Code
}

func TestRegisterConfirmTokenLifecycle(t *testing.T) {
	e, _, _ := newTestServer(t)

	// Register.
	rec := doJSON(e, http.MethodPost, "/api/v1/users",
		`{"email":"alice@example.com","password":"hunter2","first_name":"Alice"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created struct {
		User              userResponse `json:"user"`
		ConfirmationToken string       `json:"confirmation_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	if created.User.Confirmed {
		t.Error("new user should be unconfirmed")
	}
	if created.ConfirmationToken == "" {
		t.Fatal("registration returned no confirmation token")
	}

	basic := func(r *http.Request) { r.SetBasicAuth("alice@example.com", "hunter2") }

	// Unconfirmed accounts cannot authenticate.
	rec = doJSON(e, http.MethodPost, "/api/v1/tokens", "", basic)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("pre-confirmation token issue status = %d", rec.Code)
	}
	if code := authErrorCode(t, rec); code != auth.CodeUnconfirmedAccount {
		t.Errorf("error code = %q, want %q", code, auth.CodeUnconfirmedAccount)
	}

	// Confirm.
	rec = doJSON(e, http.MethodPost, "/api/v1/users/confirm",
		`{"token":"`+created.ConfirmationToken+`"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm status = %d (body: %s)", rec.Code, rec.Body.String())
	}

	// Issue a bearer token with Basic credentials.
	rec = doJSON(e, http.MethodPost, "/api/v1/tokens", "", basic)
	if rec.Code != http.StatusOK {
		t.Fatalf("token issue status = %d (body: %s)", rec.Code, rec.Body.String())
	}
	var issued struct {
		Token     string `json:"token"`
		ExpiresIn int    `json:"expires_in"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &issued); err != nil {
		t.Fatalf("decode token response: %v", err)
	}
	if issued.Token == "" || issued.ExpiresIn != 3600 {
		t.Errorf("token response = %+v, want token with 3600s expiry", issued)
	}

	bearer := func(r *http.Request) {
		r.Header.Set(echo.HeaderAuthorization, "Bearer "+issued.Token)
	}

	// The token authenticates /users/me.
	rec = doJSON(e, http.MethodGet, "/api/v1/users/me", "", bearer)
	if rec.Code != http.StatusOK {
		t.Fatalf("users/me status = %d (body: %s)", rec.Code, rec.Body.String())
	}
	var me userResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &me); err != nil {
		t.Fatalf("decode users/me: %v", err)
	}
	if me.ID != created.User.ID || me.Role != RoleUser {
		t.Errorf("users/me = %+v, want registered user on default role", me)
	}
	if len(me.Emails) != 1 || me.Emails[0] != "ALICE@EXAMPLE.COM" {
		t.Errorf("emails = %v, want normalized registration address", me.Emails)
	}

	// Revoke; the token that authorized the revocation dies with the rest.
	rec = doJSON(e, http.MethodDelete, "/api/v1/tokens", "", bearer)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("revoke status = %d (body: %s)", rec.Code, rec.Body.String())
	}
	rec = doJSON(e, http.MethodGet, "/api/v1/users/me", "", bearer)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("post-revocation status = %d, want 401", rec.Code)
	}
	if code := authErrorCode(t, rec); code != auth.CodeInvalidToken {
		t.Errorf("post-revocation code = %q, want %q", code, auth.CodeInvalidToken)
	}
}

func TestIssueToken_RequiresBasic(t *testing.T) {
	e, fx, tokens := newTestServer(t)
	u := fx.register(t, "alice@example.com", "hunter2")
	if err := fx.svc.Confirm(context.Background(), u.ID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	acct, err := fx.svc.AccountByID(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("AccountByID: %v", err)
	}
	bearerToken, err := tokens.Issue(acct)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	rec := doJSON(e, http.MethodPost, "/api/v1/tokens", "", func(r *http.Request) {
		r.Header.Set(echo.HeaderAuthorization, "Bearer "+bearerToken)
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("token-for-token status = %d, want 401", rec.Code)
	}

	rec = doJSON(e, http.MethodPost, "/api/v1/tokens", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous token issue status = %d, want 401", rec.Code)
	}
}

func TestRegister_DuplicateEmailConflict(t *testing.T) {
	e, fx, _ := newTestServer(t)
	fx.register(t, "alice@example.com", "hunter2")

	rec := doJSON(e, http.MethodPost, "/api/v1/users",
		`{"email":"ALICE@example.com","password":"other"}`, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate registration status = %d, want 409", rec.Code)
	}
}

func TestConfirm_BadToken(t *testing.T) {
	e, _, _ := newTestServer(t)
	rec := doJSON(e, http.MethodPost, "/api/v1/users/confirm", `{"token":"garbage"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad confirmation token status = %d, want 400", rec.Code)
	}
}

func TestListUsers_PermissionGate(t *testing.T) {
	e, fx, tokens := newTestServer(t)

	regular := fx.register(t, "alice@example.com", "hunter2")
	if err := fx.svc.Confirm(context.Background(), regular.ID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	admin := fx.register(t, "root@example.com", "hunter2")
	adminRole, err := fx.roles.GetByName(context.Background(), RoleAdmin)
	if err != nil {
		t.Fatalf("GetByName: %v", err)
	}
	admin.RoleID = &adminRole.ID
	if err := fx.users.Update(context.Background(), admin); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := fx.svc.Confirm(context.Background(), admin.ID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	issueFor := func(email string) string {
		acct, err := fx.svc.AccountByEmail(context.Background(), email)
		if err != nil || acct == nil {
			t.Fatalf("AccountByEmail(%s): %v", email, err)
		}
		tok, err := tokens.Issue(acct)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		return tok
	}

	rec := doJSON(e, http.MethodGet, "/api/v1/users", "", func(r *http.Request) {
		r.Header.Set(echo.HeaderAuthorization, "Bearer "+issueFor("alice@example.com"))
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("regular user list status = %d, want 403", rec.Code)
	}

	rec = doJSON(e, http.MethodGet, "/api/v1/users", "", func(r *http.Request) {
		r.Header.Set(echo.HeaderAuthorization, "Bearer "+issueFor("root@example.com"))
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("admin list status = %d (body: %s)", rec.Code, rec.Body.String())
	}
	var page struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if page.Total != 2 {
		t.Errorf("total = %d, want 2", page.Total)
	}
}

func TestChangePassword_Endpoint(t *testing.T) {
	e, fx, tokens := newTestServer(t)
	u := fx.register(t, "alice@example.com", "hunter2")
	if err := fx.svc.Confirm(context.Background(), u.ID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	acct, err := fx.svc.AccountByID(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("AccountByID: %v", err)
	}
	tok, err := tokens.Issue(acct)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	bearer := func(r *http.Request) {
		r.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
	}

	rec := doJSON(e, http.MethodPut, "/api/v1/users/me/password",
		`{"current_password":"wrong","new_password":"hunter3"}`, bearer)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong current password status = %d, want 401", rec.Code)
	}

	rec = doJSON(e, http.MethodPut, "/api/v1/users/me/password",
		`{"current_password":"hunter2","new_password":"hunter3"}`, bearer)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("change password status = %d (body: %s)", rec.Code, rec.Body.String())
	}

	// Basic auth now requires the new password.
	rec = doJSON(e, http.MethodPost, "/api/v1/tokens", "", func(r *http.Request) {
		r.SetBasicAuth("alice@example.com", "hunter2")
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("old password still accepted, status = %d", rec.Code)
	}
	rec = doJSON(e, http.MethodPost, "/api/v1/tokens", "", func(r *http.Request) {
		r.SetBasicAuth("alice@example.com", "hunter3")
	})
	if rec.Code != http.StatusOK {
		t.Errorf("new password rejected, status = %d (body: %s)", rec.Code, rec.Body.String())
	}
}
