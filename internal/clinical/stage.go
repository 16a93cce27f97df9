package clinical

import "fmt"

// Stage is a CKD stage, 1 (healthiest) through 5.
type Stage int

const (
	Stage1 Stage = iota + 1
	Stage2
	Stage3
	Stage4
	Stage5
)

func (s Stage) String() string { return fmt.Sprintf("Stage %d", int(s)) }

// Risk returns the description paired with the stage.
func (s Stage) Risk() string {
	switch s {
	case Stage1:
		return "Normal or increased eGFR"
	case Stage2:
		return "Mild decrease"
	case Stage3:
		return "Moderate decrease"
	case Stage4:
		return "Severe decrease"
	}
	return "End-stage renal failure"
}

// Classification pairs a stage with its risk description.
type Classification struct {
	Stage Stage  `json:"stage"`
	Risk  string `json:"risk"`
}

// StageBand describes one row of the classification table.  Max is the
// exclusive upper bound; zero means unbounded.
type StageBand struct {
	Stage Stage   `json:"stage"`
	Label string  `json:"label"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max,omitempty"`
	Risk  string  `json:"risk"`
}

// lower bounds, evaluated high to low; anything below the last is Stage 5
var stageFloors = []struct {
	min   float64
	stage Stage
}{
	{90, Stage1},
	{60, Stage2},
	{30, Stage3},
	{15, Stage4},
}

// Classify maps an eGFR value to its stage.  Each lower bound is inclusive,
// so exactly 90 is Stage 1 and exactly 60 is Stage 2.  Any value below 15,
// including zero, negatives and NaN, is Stage 5.
func Classify(egfr float64) Classification {
	for _, f := range stageFloors {
		if egfr >= f.min {
			return Classification{Stage: f.stage, Risk: f.stage.Risk()}
		}
	}
	return Classification{Stage: Stage5, Risk: Stage5.Risk()}
}

// StageBands returns the classification table for reference displays.
func StageBands() []StageBand {
	out := make([]StageBand, 0, len(stageFloors)+1)
	var upper float64
	for _, f := range stageFloors {
		out = append(out, StageBand{Stage: f.stage, Label: f.stage.String(), Min: f.min, Max: upper, Risk: f.stage.Risk()})
		upper = f.min
	}
	return append(out, StageBand{Stage: Stage5, Label: Stage5.String(), Min: 0, Max: upper, Risk: Stage5.Risk()})
}
