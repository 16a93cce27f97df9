// Package clinical holds the calculation engine: creatinine unit
// conversion, the CKD-EPI eGFR equation, CKD stage classification, BMI and
// the assembly of persistable analysis records.  Everything here is pure
// and synchronous; callers validate raw input with ParseForm first.
package clinical

import (
	"fmt"
	"math"
	"strings"
)

// CreatinineFactor is the number of µmol/L in one mg/dL of creatinine.
const CreatinineFactor = 88.4

// Unit tags how a creatinine concentration must be interpreted.
type Unit int

const (
	UnitMicromolPerL Unit = iota // µmol/L, the default entry unit
	UnitMgPerDl                  // mg/dL, the unit the equation expects
)

func (u Unit) String() string {
	if u == UnitMgPerDl {
		return "mg/dL"
	}
	return "umol/L"
}

// ParseUnit accepts the common spellings of both units.  An empty string
// selects µmol/L.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "")) {
	case "", "umol/l", "µmol/l", "μmol/l", "mkmol/l", "micromol/l", "umol":
		return UnitMicromolPerL, nil
	case "mg/dl", "mgdl", "mg":
		return UnitMgPerDl, nil
	}
	return 0, fmt.Errorf("unknown creatinine unit %q", s)
}

// ToMgPerDl converts v from the given unit to mg/dL.
func ToMgPerDl(v float64, from Unit) float64 {
	if from == UnitMgPerDl {
		return v
	}
	return v / CreatinineFactor
}

// ToMicromolPerL converts v from the given unit to µmol/L.
func ToMicromolPerL(v float64, from Unit) float64 {
	if from == UnitMicromolPerL {
		return v
	}
	return v * CreatinineFactor
}

// Round rounds v half away from zero to the given number of decimal places.
// It is applied at output boundaries only.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
