// Package service holds the application operations behind the HTTP layer:
// calculating and saving analyses, user stats, profiles, and loading a
// user's data after sign-in.  Every operation that needs identity takes an
// auth.CurrentUser argument.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/egfr-calculator/internal/auth"
	"github.com/iliyamo/egfr-calculator/internal/clinical"
	"github.com/iliyamo/egfr-calculator/internal/model"
	"github.com/iliyamo/egfr-calculator/internal/queue"
	"github.com/iliyamo/egfr-calculator/internal/repository"
)

// Preview is the result of a calculation that is not saved.
type Preview struct {
	EGFR            float64  `json:"eGFR"`
	Stage           string   `json:"stage"`
	StageNumber     int      `json:"stageNumber"`
	Risk            string   `json:"risk"`
	Formula         string   `json:"formula"`
	CreatinineMgDl  float64  `json:"creatinineMgDl"`
	CreatinineUmolL float64  `json:"creatinineUmolL"`
	BMI             *float64 `json:"bmi,omitempty"`
	BMICategory     string   `json:"bmiCategory,omitempty"`
}

// AnalysisService runs calculations and manages saved analyses.
type AnalysisService struct {
	Analyses   *repository.AnalysisRepo
	Profiles   *repository.ProfileRepo
	Builder    clinical.RecordBuilder
	Publisher  queue.Publisher
	Projection StatsCache
	Log        zerolog.Logger
}

// Calculate validates and evaluates a form without persisting anything.
func (s *AnalysisService) Calculate(form clinical.RawForm) (Preview, error) {
	in, err := clinical.ParseForm(form)
	if err != nil {
		return Preview{}, err
	}
	return preview(in, clinical.Evaluate(in)), nil
}

func preview(in clinical.PatientInput, res clinical.Result) Preview {
	p := Preview{
		EGFR:            clinical.Round(res.EGFR, 2),
		Stage:           res.Stage.String(),
		StageNumber:     int(res.Stage),
		Risk:            res.Risk,
		Formula:         string(res.Formula),
		CreatinineMgDl:  clinical.Round(res.CreatinineMgDl, 3),
		CreatinineUmolL: clinical.Round(clinical.ToMicromolPerL(in.Creatinine, in.CreatinineUnit), 1),
	}
	if bmi, ok := clinical.ComputeBMI(in.HeightCm, in.WeightKg); ok {
		v := clinical.Round(bmi, 1)
		p.BMI = &v
		p.BMICategory = clinical.BMICategory(v)
	}
	return p
}

// Save validates, evaluates and stores a calculation for user.  Missing
// height and weight are resolved from the user's profile according to the
// builder's policy.
func (s *AnalysisService) Save(ctx context.Context, user auth.CurrentUser, form clinical.RawForm) (model.AnalysisRecord, error) {
	in, err := clinical.ParseForm(form)
	if err != nil {
		return model.AnalysisRecord{}, err
	}
	res := clinical.Evaluate(in)

	var known clinical.Anthropometrics
	if !in.HeightCm.IsSet() || !in.WeightKg.IsSet() {
		p, err := s.Profiles.Get(ctx, user.ID)
		switch {
		case err == nil:
			known = clinical.FromProfile(&p)
		case !errors.Is(err, repository.ErrNotFound):
			return model.AnalysisRecord{}, err
		}
	}

	rec, err := s.Builder.Build(user.ID, in, res, known)
	if err != nil {
		return model.AnalysisRecord{}, err
	}
	rec, err = s.Analyses.Add(ctx, rec)
	if err != nil {
		return model.AnalysisRecord{}, err
	}
	s.Log.Info().Str("user_id", user.ID).Str("analysis_id", rec.ID).Str("stage", rec.Result.Stage).Msg("analysis saved")

	s.changed(ctx, queue.AnalysisEvent{
		Type:       queue.AnalysisSaved,
		AnalysisID: rec.ID,
		UserID:     user.ID,
		EGFR:       rec.Result.EGFR,
		Stage:      rec.Result.Stage,
	})
	return rec, nil
}

// List returns user's analyses, newest first.
func (s *AnalysisService) List(ctx context.Context, user auth.CurrentUser) ([]model.AnalysisRecord, error) {
	return s.Analyses.ListByUser(ctx, user.ID)
}

// Get returns one of user's analyses.
func (s *AnalysisService) Get(ctx context.Context, user auth.CurrentUser, id string) (model.AnalysisRecord, error) {
	return s.Analyses.Get(ctx, user.ID, id)
}

// Delete removes one of user's analyses.
func (s *AnalysisService) Delete(ctx context.Context, user auth.CurrentUser, id string) error {
	if err := s.Analyses.Delete(ctx, user.ID, id); err != nil {
		return err
	}
	s.Log.Info().Str("user_id", user.ID).Str("analysis_id", id).Msg("analysis deleted")
	s.changed(ctx, queue.AnalysisEvent{Type: queue.AnalysisDeleted, AnalysisID: id, UserID: user.ID})
	return nil
}

// Stats returns user's summary, from the projection when it is present.
func (s *AnalysisService) Stats(ctx context.Context, user auth.CurrentUser) (model.UserStats, error) {
	if st, ok := s.stats().Get(ctx, user.ID); ok {
		return st, nil
	}
	return s.RefreshStats(ctx, user.ID)
}

// RefreshStats recomputes userID's summary and stores the projection.
func (s *AnalysisService) RefreshStats(ctx context.Context, userID string) (model.UserStats, error) {
	recs, err := s.Analyses.ListByUser(ctx, userID)
	if err != nil {
		return model.UserStats{}, err
	}
	st := ComputeStats(userID, recs)
	s.stats().Put(ctx, st)
	return st, nil
}

// HandleEvent is the queue consumer's handler: it rebuilds the projection
// of the event's owner.
func (s *AnalysisService) HandleEvent(ctx context.Context, ev queue.AnalysisEvent) error {
	_, err := s.RefreshStats(ctx, ev.UserID)
	return err
}

// changed drops the stale projection and announces the event.  Publishing
// failures are logged by the publisher and otherwise ignored.
func (s *AnalysisService) changed(ctx context.Context, ev queue.AnalysisEvent) {
	s.stats().Invalidate(ctx, ev.UserID)
	if s.Publisher == nil {
		return
	}
	ev.OccurredAt = time.Now().UTC()
	_ = s.Publisher.Publish(ctx, ev)
}

func (s *AnalysisService) stats() StatsCache {
	if s.Projection == nil {
		return noStats{}
	}
	return s.Projection
}

type noStats struct{}

func (noStats) Get(context.Context, string) (model.UserStats, bool) { return model.UserStats{}, false }
func (noStats) Put(context.Context, model.UserStats)                {}
func (noStats) Invalidate(context.Context, string)                  {}
