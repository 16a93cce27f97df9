package middleware // reusable HTTP middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/egfr-calculator/internal/auth"
)

// Authenticator resolves an access token to the user it was issued for.
type Authenticator interface {
	Authenticate(accessToken string) (auth.CurrentUser, error)
}

// JWTAuth validates the Bearer access token and stores the resulting
// CurrentUser in the context.  Requests without a valid token get a 401.
func JWTAuth(a Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token", "code": auth.CodeInvalidToken})
			}
			u, err := a.Authenticate(strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")))
			if err != nil {
				var ae *auth.Error
				if errors.As(err, &ae) {
					return c.JSON(ae.Status(), echo.Map{"error": ae.Message, "code": ae.Code})
				}
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			SetCurrentUser(c, u)
			return next(c)
		}
	}
}
