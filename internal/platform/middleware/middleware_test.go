package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestRequestID_GeneratesNew(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		rid := c.Get("request_id").(string)
		if rid == "" {
			t.Error("expected request_id to be generated")
		}
		return c.String(http.StatusOK, "ok")
	}

	if err := RequestID()(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "my-custom-id")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		rid := c.Get("request_id").(string)
		if rid != "my-custom-id" {
			t.Errorf("expected my-custom-id, got %s", rid)
		}
		return c.String(http.StatusOK, "ok")
	}

	RequestID()(handler)(c)

	if rec.Header().Get(RequestIDHeader) != "my-custom-id" {
		t.Errorf("expected my-custom-id in response header, got %s", rec.Header().Get(RequestIDHeader))
	}
}

func TestLogger_LogsRequest(t *testing.T) {
	logger := zerolog.New(os.Stderr).With().Logger()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}

	if err := Logger(logger)(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRecovery_RecoversPanic(t *testing.T) {
	logger := zerolog.Nop()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		panic("boom")
	}

	err := Recovery(logger)(handler)(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 HTTPError, got %v", err)
	}
}

func TestAPIHeaders_ForcesMediaType(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}

	if err := APIHeaders()(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rec.Header().Get(echo.HeaderContentType); got != FHIRMediaType {
		t.Errorf("Content-Type = %q, want %q", got, FHIRMediaType)
	}
	if got := rec.Header().Get("Charset"); got != "UTF-8" {
		t.Errorf("Charset = %q, want UTF-8", got)
	}
}

func TestAPIHeaders_StripsSessionCookie(t *testing.T) {
	tests := []struct {
		name        string
		apiAuth     bool
		wantSession bool
	}{
		{"authenticated request loses session cookie", true, false},
		{"unauthenticated request keeps cookies", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			if tt.apiAuth {
				c.Set("api_auth", true)
			}

			handler := func(c echo.Context) error {
				c.SetCookie(&http.Cookie{Name: "session", Value: "abc123"})
				c.SetCookie(&http.Cookie{Name: "theme", Value: "dark"})
				return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
			}

			if err := APIHeaders()(handler)(c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			var hasSession, hasTheme bool
			for _, cookie := range rec.Header().Values(echo.HeaderSetCookie) {
				if strings.HasPrefix(cookie, "session=") {
					hasSession = true
				}
				if strings.HasPrefix(cookie, "theme=") {
					hasTheme = true
				}
			}
			if hasSession != tt.wantSession {
				t.Errorf("session cookie present = %v, want %v", hasSession, tt.wantSession)
			}
			if !hasTheme {
				t.Error("non-session cookie should always survive")
			}
		})
	}
}
