package middleware

// identity.go holds the helpers that move the authenticated CurrentUser
// through the echo context.  Handlers read it with CurrentUser; JWTAuth is
// the only writer.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/egfr-calculator/internal/auth"
)

const currentUserKey = "current_user"

// CurrentUser returns the authenticated caller, if any.
func CurrentUser(c echo.Context) (auth.CurrentUser, bool) {
	u, ok := c.Get(currentUserKey).(auth.CurrentUser)
	return u, ok && u.ID != ""
}

// SetCurrentUser stores u in the context.
func SetCurrentUser(c echo.Context, u auth.CurrentUser) { c.Set(currentUserKey, u) }

// userID returns the caller's id or "anon" for unauthenticated requests.
func userID(c echo.Context) string {
	if u, ok := CurrentUser(c); ok {
		return u.ID
	}
	return "anon"
}
