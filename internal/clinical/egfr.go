package clinical

import (
	"fmt"
	"math"
	"strings"
)

// Sex selects the sex-specific coefficients of the equation.
type Sex int

const (
	Male Sex = iota
	Female
)

func (s Sex) String() string {
	if s == Female {
		return "female"
	}
	return "male"
}

// ParseSex accepts "male"/"female" and their one-letter forms.
func ParseSex(s string) (Sex, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "male", "m":
		return Male, nil
	case "female", "f":
		return Female, nil
	}
	return 0, fmt.Errorf("unknown sex %q", s)
}

// Formula names an eGFR equation.
type Formula string

const (
	// CKDEPI2021 is the race-free 2021 refit and the default.
	CKDEPI2021 Formula = "ckd-epi-2021"
	// CKDEPI2009 is the superseded equation with a race coefficient.  It is
	// only used when a caller asks for it by name.
	CKDEPI2009 Formula = "ckd-epi-2009"
)

// ParseFormula maps an empty string to CKDEPI2021.
func ParseFormula(s string) (Formula, error) {
	switch Formula(strings.ToLower(strings.TrimSpace(s))) {
	case "", CKDEPI2021:
		return CKDEPI2021, nil
	case CKDEPI2009:
		return CKDEPI2009, nil
	}
	return "", fmt.Errorf("unknown formula %q", s)
}

// ComputeEGFR evaluates the CKD-EPI 2021 equation and returns eGFR in
// mL/min/1.73m², unrounded.  creatinineMgDl and ageYears must be positive.
func ComputeEGFR(sex Sex, ageYears, creatinineMgDl float64) float64 {
	k, alpha, sexFactor := 0.9, -0.302, 1.0
	if sex == Female {
		k, alpha, sexFactor = 0.7, -0.241, 1.012
	}
	ratio := creatinineMgDl / k
	part1 := math.Pow(math.Min(ratio, 1), alpha)
	part2 := math.Pow(math.Max(ratio, 1), -1.200)
	ageFactor := math.Pow(0.9938, ageYears)
	return 142 * part1 * part2 * ageFactor * sexFactor
}

// ComputeEGFRLegacy evaluates the 2009 CKD-EPI equation.  black applies the
// 1.159 race coefficient of that equation.
func ComputeEGFRLegacy(sex Sex, black bool, ageYears, creatinineMgDl float64) float64 {
	k, alpha, base := 0.9, -0.411, 141.0
	if sex == Female {
		k, alpha, base = 0.7, -0.329, 144.0
	}
	ratio := creatinineMgDl / k
	exp := alpha
	if ratio > 1 {
		exp = -1.209
	}
	v := base * math.Pow(ratio, exp) * math.Pow(0.993, ageYears)
	if black {
		v *= 1.159
	}
	return v
}
