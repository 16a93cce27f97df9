package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/egfr-calculator/internal/auth"
	"github.com/iliyamo/egfr-calculator/internal/model"
	"github.com/iliyamo/egfr-calculator/internal/service"
)

// ProfileHandler reads and writes the caller's profile.  A JSON null in a
// request body clears the field; an omitted field is left alone by PATCH
// and cleared by PUT.
type ProfileHandler struct {
	Profiles *service.ProfileService
}

func NewProfileHandler(p *service.ProfileService) *ProfileHandler {
	return &ProfileHandler{Profiles: p}
}

func (h *ProfileHandler) Get(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return writeError(c, err)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	v, err := h.Profiles.Get(ctx, u)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *ProfileHandler) Patch(c echo.Context) error {
	return h.write(c, h.Profiles.Update)
}

func (h *ProfileHandler) Put(c echo.Context) error {
	return h.write(c, h.Profiles.Replace)
}

type profileWriter func(ctx context.Context, u auth.CurrentUser, p model.ProfilePatch) (service.ProfileView, error)

func (h *ProfileHandler) write(c echo.Context, fn profileWriter) error {
	u, err := currentUser(c)
	if err != nil {
		return writeError(c, err)
	}
	var patch model.ProfilePatch
	if err := c.Bind(&patch); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	v, err := fn(ctx, u, patch)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, v)
}
