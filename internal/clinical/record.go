package clinical

import (
	"errors"
	"time"

	"github.com/iliyamo/egfr-calculator/internal/model"
)

// Fixed anthropometrics used when neither the form nor the profile has them.
const (
	DefaultHeightCm = 170.0
	DefaultWeightKg = 70.0
)

// Anthropometrics are previously known height and weight, usually taken
// from the user's profile.
type Anthropometrics struct {
	HeightCm model.Optional[float64]
	WeightKg model.Optional[float64]
}

// FromProfile extracts the profile's height and weight.  A nil profile
// yields empty values.
func FromProfile(p *model.UserProfile) Anthropometrics {
	if p == nil {
		return Anthropometrics{}
	}
	return Anthropometrics{HeightCm: model.FromPtr(p.HeightCm), WeightKg: model.FromPtr(p.WeightKg)}
}

// RecordBuilder assembles AnalysisRecords.  With RequireAnthropometrics
// unset, a missing height or weight is filled from the known values and then
// from the fixed defaults, and the record is flagged as defaulted.  With it
// set, a missing value is a ValidationError.
type RecordBuilder struct {
	RequireAnthropometrics bool
	Now                    func() time.Time
}

// Build assembles a record for userID.  Creatinine is stored in µmol/L at
// full precision, eGFR rounded to two decimals and BMI to one.  The id is
// left for the store.
func (b RecordBuilder) Build(userID string, in PatientInput, res Result, known Anthropometrics) (model.AnalysisRecord, error) {
	height, hDefaulted := resolve(in.HeightCm, known.HeightCm, DefaultHeightCm)
	weight, wDefaulted := resolve(in.WeightKg, known.WeightKg, DefaultWeightKg)
	if b.RequireAnthropometrics {
		var errs []error
		if !in.HeightCm.IsSet() {
			errs = append(errs, &ValidationError{Field: "height", Message: "is required"})
		}
		if !in.WeightKg.IsSet() {
			errs = append(errs, &ValidationError{Field: "weight", Message: "is required"})
		}
		if len(errs) > 0 {
			return model.AnalysisRecord{}, errors.Join(errs...)
		}
	}
	bmi, _ := ComputeBMI(model.Some(height), model.Some(weight))

	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	return model.AnalysisRecord{
		UserID:                   userID,
		Name:                     in.Name,
		Age:                      in.AgeYears,
		Sex:                      in.Sex.String(),
		HeightCm:                 height,
		WeightKg:                 weight,
		AnthropometricsDefaulted: hDefaulted || wDefaulted,
		BMI:                      Round(bmi, 1),
		CreatinineUmolL:          ToMicromolPerL(in.Creatinine, in.CreatinineUnit),
		EnteredUnit:              in.CreatinineUnit.String(),
		Formula:                  string(res.Formula),
		Result: model.AnalysisResult{
			EGFR:        Round(res.EGFR, 2),
			Stage:       res.Stage.String(),
			StageNumber: int(res.Stage),
			Risk:        res.Risk,
		},
		CreatedAt: now().UTC(),
	}, nil
}

func resolve(entered, known model.Optional[float64], def float64) (float64, bool) {
	if v, ok := entered.Get(); ok {
		return v, false
	}
	if v, ok := known.Get(); ok && v > 0 {
		return v, true
	}
	return def, true
}
