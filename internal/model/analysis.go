package model

import "time"

// AnalysisResult is the computed part of an analysis.  Stage holds the label
// ("Stage 1" .. "Stage 5") and StageNumber its ordinal so that clients can
// colour or sort without parsing the label.
type AnalysisResult struct {
	EGFR        float64 `json:"eGFR"`
	Stage       string  `json:"stage"`
	StageNumber int     `json:"stageNumber"`
	Risk        string  `json:"risk"`
}

// AnalysisRecord is one saved calculation in the `analyses` collection.  A
// record is created once, listed by owner and deleted by its owner; it is
// never updated in place.
//
// Fields:
//  ID                       – assigned by the store on creation.
//  UserID                   – owning user; every list/delete is scoped to it.
//  Name                     – optional patient display name.
//  Age                      – age in years.
//  Sex                      – "male" or "female".
//  HeightCm, WeightKg       – anthropometrics used for BMI.
//  AnthropometricsDefaulted – true when height or weight came from a fallback.
//  BMI                      – body-mass index rounded to one decimal.
//  CreatinineUmolL          – creatinine, always stored in µmol/L.
//  EnteredUnit              – unit the creatinine was entered in.
//  Formula                  – equation used, "ckd-epi-2021" unless requested otherwise.
//  Result                   – eGFR, stage and risk description.
//  CreatedAt                – creation timestamp, immutable.
type AnalysisRecord struct {
	ID                       string         `json:"id,omitempty"`
	UserID                   string         `json:"userId"`
	Name                     string         `json:"name,omitempty"`
	Age                      float64        `json:"age"`
	Sex                      string         `json:"sex"`
	HeightCm                 float64        `json:"heightCm"`
	WeightKg                 float64        `json:"weightKg"`
	AnthropometricsDefaulted bool           `json:"anthropometricsDefaulted,omitempty"`
	BMI                      float64        `json:"bmi"`
	CreatinineUmolL          float64        `json:"creatinineUmolL"`
	EnteredUnit              string         `json:"enteredUnit"`
	Formula                  string         `json:"formula"`
	Result                   AnalysisResult `json:"result"`
	CreatedAt                time.Time      `json:"createdAt"`
}

// UserStats summarises a user's analyses.  Averages are zero when Total is zero.
type UserStats struct {
	UserID           string     `json:"userId"`
	Total            int        `json:"totalAnalyses"`
	AverageBMI       float64    `json:"averageBMI"`
	AverageEGFR      float64    `json:"averageEGFR"`
	LastAnalysisDate *time.Time `json:"lastAnalysisDate,omitempty"`
}
