package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/egfr-calculator/internal/service"
)

// MeHandler returns everything the client loads after sign-in.
type MeHandler struct {
	Profiles *service.ProfileService
	Analyses *service.AnalysisService
}

func (h *MeHandler) Get(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return writeError(c, err)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	data, err := service.LoadUserData(ctx, u, h.Profiles, h.Analyses)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, data)
}
