package handler // handler defines the HTTP handlers of the API

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/egfr-calculator/internal/auth"
	"github.com/iliyamo/egfr-calculator/internal/clinical"
	"github.com/iliyamo/egfr-calculator/internal/middleware"
	"github.com/iliyamo/egfr-calculator/internal/repository"
)

// requestTimeout bounds the store calls of a single request.
const requestTimeout = 5 * time.Second

func withTimeout(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

var errNoUser = errors.New("no authenticated user in context")

// currentUser returns the caller set by JWTAuth.
func currentUser(c echo.Context) (auth.CurrentUser, error) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return auth.CurrentUser{}, errNoUser
	}
	return u, nil
}

// writeError maps a service error onto the response.
func writeError(c echo.Context, err error) error {
	if fields := clinical.FieldErrors(err); len(fields) > 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation failed", "fields": fields})
	}
	var ae *auth.Error
	switch {
	case errors.As(err, &ae):
		return c.JSON(ae.Status(), echo.Map{"error": ae.Message, "code": ae.Code})
	case errors.Is(err, errNoUser):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, context.DeadlineExceeded):
		c.Set(middleware.ErrorKey, err)
		return c.JSON(http.StatusGatewayTimeout, echo.Map{"error": "request timed out"})
	}
	c.Set(middleware.ErrorKey, err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

// flexString accepts a JSON string, number or null, keeping the literal
// text so form validation sees exactly what the client sent.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*f = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*f = flexString(n.String())
	}
	return nil
}

func (f flexString) String() string { return string(f) }
