package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/egfr-calculator/internal/clinical"
	"github.com/iliyamo/egfr-calculator/internal/service"
)

// calcReq is the calculator form.  Numeric fields accept either JSON
// numbers or the strings the user typed.
type calcReq struct {
	Name           string     `json:"name"`
	Sex            string     `json:"sex"`
	Age            flexString `json:"age"`
	Height         flexString `json:"height"`
	Weight         flexString `json:"weight"`
	Creatinine     flexString `json:"creatinine"`
	CreatinineUnit string     `json:"creatinineUnit"`
	Formula        string     `json:"formula"`
	Race           string     `json:"race"`
}

func (r calcReq) form() clinical.RawForm {
	return clinical.RawForm{
		Name:           r.Name,
		Sex:            r.Sex,
		Age:            r.Age.String(),
		Height:         r.Height.String(),
		Weight:         r.Weight.String(),
		Creatinine:     r.Creatinine.String(),
		CreatinineUnit: r.CreatinineUnit,
		Formula:        r.Formula,
		Race:           r.Race,
	}
}

// EGFRHandler serves the anonymous calculator endpoints.
type EGFRHandler struct {
	Analyses *service.AnalysisService
}

func NewEGFRHandler(a *service.AnalysisService) *EGFRHandler { return &EGFRHandler{Analyses: a} }

// Calculate evaluates a form without saving it.
func (h *EGFRHandler) Calculate(c echo.Context) error {
	var req calcReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	p, err := h.Analyses.Calculate(req.form())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// Stages returns the CKD classification table.
func (h *EGFRHandler) Stages(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"stages": clinical.StageBands()})
}
