package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/egfr-calculator/internal/service"
)

// AnalysisHandler manages the caller's saved analyses.  Every route runs
// behind JWTAuth.
type AnalysisHandler struct {
	Analyses *service.AnalysisService
}

func NewAnalysisHandler(a *service.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{Analyses: a}
}

// Create calculates and saves an analysis.
func (h *AnalysisHandler) Create(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return writeError(c, err)
	}
	var req calcReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	rec, err := h.Analyses.Save(ctx, u, req.form())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, rec)
}

// List returns the caller's analyses, newest first.
func (h *AnalysisHandler) List(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return writeError(c, err)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	recs, err := h.Analyses.List(ctx, u)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": recs, "count": len(recs)})
}

// Get returns one of the caller's analyses.
func (h *AnalysisHandler) Get(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return writeError(c, err)
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	rec, err := h.Analyses.Get(ctx, u, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

// Delete removes one of the caller's analyses.
func (h *AnalysisHandler) Delete(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return writeError(c, err)
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	if err := h.Analyses.Delete(ctx, u, id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Stats summarises the caller's analyses.
func (h *AnalysisHandler) Stats(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return writeError(c, err)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	st, err := h.Analyses.Stats(ctx, u)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}
