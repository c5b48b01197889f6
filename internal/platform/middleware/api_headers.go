package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/unkani/unkani/internal/platform/auth"
)

// FHIRMediaType is the canonical media type for all API responses.
const FHIRMediaType = "application/fhir+json; charset=UTF-8"

// APIHeaders forces the API's canonical content type on every response and,
// for requests that authenticated through the API pipeline, strips any session
// cookie from the outbound response. API calls must never establish or renew
// browser session state.
//
// The Content-Type is set before the handler runs: echo's JSON serializer only
// writes a content type when none is present, so the canonical value wins.
func APIHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set(echo.HeaderContentType, FHIRMediaType)
			h.Set("Charset", "UTF-8")

			// Cookies are added by handlers, so the session cookie can only be
			// removed once the response is about to be written.
			c.Response().Before(func() {
				if !auth.IsAPIRequest(c) {
					return
				}
				header := c.Response().Header()
				cookies := header.Values(echo.HeaderSetCookie)
				if len(cookies) == 0 {
					return
				}
				header.Del(echo.HeaderSetCookie)
				for _, cookie := range cookies {
					if strings.HasPrefix(cookie, "session=") {
						continue
					}
					header.Add(echo.HeaderSetCookie, cookie)
				}
			})

			return next(c)
		}
	}
}
