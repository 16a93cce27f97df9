package clinical

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/iliyamo/egfr-calculator/internal/model"
)

// Domain bounds for patient input.  Each range is (0, max].
const (
	MaxAgeYears = 120
	MaxHeightCm = 300
	MaxWeightKg = 500
)

// ValidationError reports one rejected form field.  It is returned before
// any calculation runs; several of them are combined with errors.Join.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Message }

// FieldErrors flattens err into the ValidationErrors it carries, following
// both single and joined wrapping.  It returns nil when there are none.
func FieldErrors(err error) []*ValidationError {
	var out []*ValidationError
	switch x := err.(type) {
	case *ValidationError:
		out = append(out, x)
	case interface{ Unwrap() []error }:
		for _, e := range x.Unwrap() {
			out = append(out, FieldErrors(e)...)
		}
	case interface{ Unwrap() error }:
		out = append(out, FieldErrors(x.Unwrap())...)
	}
	return out
}

// RawForm is the calculator form exactly as the user typed it.
type RawForm struct {
	Name           string
	Sex            string
	Age            string
	Height         string
	Weight         string
	Creatinine     string
	CreatinineUnit string
	Formula        string
	Race           string // only read by the 2009 equation
}

// PatientInput is a validated calculation request.
type PatientInput struct {
	Name           string
	Sex            Sex
	AgeYears       float64
	HeightCm       model.Optional[float64]
	WeightKg       model.Optional[float64]
	Creatinine     float64
	CreatinineUnit Unit
	Formula        Formula
	Black          bool
}

// ParseForm validates a raw form.  Creatinine and age are required; height
// and weight are optional but must be in range when given.  All field
// problems are reported together.
func ParseForm(f RawForm) (PatientInput, error) {
	var (
		in   PatientInput
		errs []error
	)
	fail := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	in.Name = strings.TrimSpace(f.Name)

	if strings.TrimSpace(f.Sex) == "" {
		fail("sex", "is required")
	} else if s, err := ParseSex(f.Sex); err != nil {
		fail("sex", "must be male or female")
	} else {
		in.Sex = s
	}

	if u, err := ParseUnit(f.CreatinineUnit); err != nil {
		fail("creatinineUnit", "must be umol/L or mg/dL")
	} else {
		in.CreatinineUnit = u
	}

	if v, ok, msg := parseNumber(f.Creatinine); !ok {
		fail("creatinine", "%s", msg)
	} else if v <= 0 {
		fail("creatinine", "must be greater than 0")
	} else {
		in.Creatinine = v
	}

	if v, ok, msg := parseNumber(f.Age); !ok {
		fail("age", "%s", msg)
	} else if v <= 0 || v > MaxAgeYears {
		fail("age", "must be in (0, %d]", MaxAgeYears)
	} else {
		in.AgeYears = v
	}

	if strings.TrimSpace(f.Height) != "" {
		if v, ok, msg := parseNumber(f.Height); !ok {
			fail("height", "%s", msg)
		} else if v <= 0 || v > MaxHeightCm {
			fail("height", "must be in (0, %d]", MaxHeightCm)
		} else {
			in.HeightCm = model.Some(v)
		}
	}

	if strings.TrimSpace(f.Weight) != "" {
		if v, ok, msg := parseNumber(f.Weight); !ok {
			fail("weight", "%s", msg)
		} else if v <= 0 || v > MaxWeightKg {
			fail("weight", "must be in (0, %d]", MaxWeightKg)
		} else {
			in.WeightKg = model.Some(v)
		}
	}

	if fm, err := ParseFormula(f.Formula); err != nil {
		fail("formula", "must be %s or %s", CKDEPI2021, CKDEPI2009)
	} else {
		in.Formula = fm
	}

	switch strings.ToLower(strings.TrimSpace(f.Race)) {
	case "", "other":
	case "black":
		in.Black = true
	default:
		fail("race", "must be black or other")
	}

	if len(errs) > 0 {
		return PatientInput{}, errors.Join(errs...)
	}
	return in, nil
}

// parseNumber accepts a decimal comma as well as a point.
func parseNumber(s string) (float64, bool, string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, "is required"
	}
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, "must be a number"
	}
	return v, true, ""
}

// Result is the outcome of evaluating a PatientInput.
type Result struct {
	EGFR           float64 // unrounded, mL/min/1.73m²
	CreatinineMgDl float64
	Formula        Formula
	Classification
}

// Evaluate converts creatinine to mg/dL, applies the requested equation and
// classifies the result.  The stage is derived from the unrounded value.
func Evaluate(in PatientInput) Result {
	mg := ToMgPerDl(in.Creatinine, in.CreatinineUnit)
	var egfr float64
	if in.Formula == CKDEPI2009 {
		egfr = ComputeEGFRLegacy(in.Sex, in.Black, in.AgeYears, mg)
	} else {
		egfr = ComputeEGFR(in.Sex, in.AgeYears, mg)
	}
	formula := in.Formula
	if formula == "" {
		formula = CKDEPI2021
	}
	return Result{EGFR: egfr, CreatinineMgDl: mg, Formula: formula, Classification: Classify(egfr)}
}
