package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/egfr-calculator/internal/auth"
	"github.com/iliyamo/egfr-calculator/internal/clinical"
	"github.com/iliyamo/egfr-calculator/internal/docstore"
	"github.com/iliyamo/egfr-calculator/internal/model"
	"github.com/iliyamo/egfr-calculator/internal/queue"
	"github.com/iliyamo/egfr-calculator/internal/repository"
)

var (
	ann = auth.CurrentUser{ID: "u-ann", Email: "ann@clinic.org"}
	bob = auth.CurrentUser{ID: "u-bob", Email: "bob@clinic.org"}
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.AnalysisEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.AnalysisEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

// mapStats is an in-memory StatsCache.
type mapStats struct {
	mu sync.Mutex
	m  map[string]model.UserStats
}

func (c *mapStats) Get(_ context.Context, id string) (model.UserStats, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.m[id]
	return st, ok
}

func (c *mapStats) Put(_ context.Context, st model.UserStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[st.UserID] = st
}

func (c *mapStats) Invalidate(_ context.Context, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, id)
}

type fixture struct {
	analyses *AnalysisService
	profiles *ProfileService
	pub      *recordingPublisher
	stats    *mapStats
}

func newFixture(requireAnthro bool) fixture {
	store := docstore.NewMemory()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return now.Add(time.Duration(tick) * time.Minute)
	}
	pub := &recordingPublisher{}
	stats := &mapStats{m: map[string]model.UserStats{}}
	profiles := repository.NewProfileRepo(store)
	return fixture{
		analyses: &AnalysisService{
			Analyses:   repository.NewAnalysisRepo(store),
			Profiles:   profiles,
			Builder:    clinical.RecordBuilder{RequireAnthropometrics: requireAnthro, Now: clock},
			Publisher:  pub,
			Projection: stats,
			Log:        zerolog.Nop(),
		},
		profiles: &ProfileService{Profiles: profiles, Now: func() time.Time { return now }},
		pub:      pub,
		stats:    stats,
	}
}

var maleForm = clinical.RawForm{Sex: "male", Age: "50", Creatinine: "1.0", CreatinineUnit: "mg/dL", Height: "180", Weight: "81"}

func TestCalculate(t *testing.T) {
	f := newFixture(false)

	p, err := f.analyses.Calculate(maleForm)
	require.NoError(t, err)
	assert.Equal(t, 91.69, p.EGFR)
	assert.Equal(t, "Stage 1", p.Stage)
	assert.Equal(t, 1, p.StageNumber)
	assert.Equal(t, 88.4, p.CreatinineUmolL)
	require.NotNil(t, p.BMI)
	assert.Equal(t, 25.0, *p.BMI)
	assert.Equal(t, "Overweight", p.BMICategory)

	_, err = f.analyses.Calculate(clinical.RawForm{Sex: "male", Age: "50"})
	fields := clinical.FieldErrors(err)
	require.Len(t, fields, 1)
	assert.Equal(t, "creatinine", fields[0].Field)
}

func TestSave_UsesProfileAnthropometrics(t *testing.T) {
	ctx := context.Background()
	f := newFixture(false)
	_, err := f.profiles.Update(ctx, ann, model.ProfilePatch{HeightCm: model.Some(160.0), WeightKg: model.Some(64.0)})
	require.NoError(t, err)

	form := maleForm
	form.Height, form.Weight = "", ""
	rec, err := f.analyses.Save(ctx, ann, form)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, ann.ID, rec.UserID)
	assert.Equal(t, 160.0, rec.HeightCm)
	assert.Equal(t, 64.0, rec.WeightKg)
	assert.True(t, rec.AnthropometricsDefaulted)
	assert.Equal(t, 25.0, rec.BMI)

	require.Len(t, f.pub.events, 1)
	assert.Equal(t, queue.AnalysisSaved, f.pub.events[0].Type)
	assert.Equal(t, rec.ID, f.pub.events[0].AnalysisID)
}

func TestSave_DefaultsWithoutProfile(t *testing.T) {
	f := newFixture(false)
	form := maleForm
	form.Height, form.Weight = "", ""
	rec, err := f.analyses.Save(context.Background(), bob, form)
	require.NoError(t, err)
	assert.Equal(t, clinical.DefaultHeightCm, rec.HeightCm)
	assert.Equal(t, clinical.DefaultWeightKg, rec.WeightKg)
}

func TestSave_RequirePolicy(t *testing.T) {
	f := newFixture(true)
	form := maleForm
	form.Weight = ""
	_, err := f.analyses.Save(context.Background(), ann, form)
	fields := clinical.FieldErrors(err)
	require.Len(t, fields, 1)
	assert.Equal(t, "weight", fields[0].Field)
	assert.Empty(t, f.pub.events)
}

func TestListDeleteAndOwnership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(false)
	first, err := f.analyses.Save(ctx, ann, maleForm)
	require.NoError(t, err)
	second, err := f.analyses.Save(ctx, ann, maleForm)
	require.NoError(t, err)
	foreign, err := f.analyses.Save(ctx, bob, maleForm)
	require.NoError(t, err)

	list, err := f.analyses.List(ctx, ann)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest first")
	assert.Equal(t, first.ID, list[1].ID)

	assert.ErrorIs(t, f.analyses.Delete(ctx, ann, foreign.ID), repository.ErrForbidden)
	_, err = f.analyses.Get(ctx, ann, foreign.ID)
	assert.ErrorIs(t, err, repository.ErrForbidden)

	require.NoError(t, f.analyses.Delete(ctx, ann, first.ID))
	assert.Equal(t, queue.AnalysisDeleted, f.pub.events[len(f.pub.events)-1].Type)
	list, err = f.analyses.List(ctx, ann)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(false)

	st, err := f.analyses.Stats(ctx, ann)
	require.NoError(t, err)
	assert.Equal(t, model.UserStats{UserID: ann.ID}, st)

	_, err = f.analyses.Save(ctx, ann, maleForm)
	require.NoError(t, err)
	_, ok := f.stats.Get(ctx, ann.ID)
	assert.False(t, ok, "save invalidates the projection")

	low := maleForm
	low.Creatinine = "4.0"
	last, err := f.analyses.Save(ctx, ann, low)
	require.NoError(t, err)

	st, err = f.analyses.Stats(ctx, ann)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 25.0, st.AverageBMI)
	require.NotNil(t, st.LastAnalysisDate)
	assert.True(t, last.CreatedAt.Equal(*st.LastAnalysisDate))

	cached, ok := f.stats.Get(ctx, ann.ID)
	require.True(t, ok)
	assert.Equal(t, st, cached)
}

func TestHandleEventRefreshesProjection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(false)
	_, err := f.analyses.Save(ctx, ann, maleForm)
	require.NoError(t, err)

	require.NoError(t, f.analyses.HandleEvent(ctx, queue.AnalysisEvent{Type: queue.AnalysisSaved, UserID: ann.ID}))
	st, ok := f.stats.Get(ctx, ann.ID)
	require.True(t, ok)
	assert.Equal(t, 1, st.Total)
}

func TestComputeStats(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	recs := []model.AnalysisRecord{
		{BMI: 20, Result: model.AnalysisResult{EGFR: 100}, CreatedAt: t0},
		{BMI: 30, Result: model.AnalysisResult{EGFR: 50}, CreatedAt: t0.Add(48 * time.Hour)},
		{BMI: 25, Result: model.AnalysisResult{EGFR: 61}, CreatedAt: t0.Add(24 * time.Hour)},
	}
	st := ComputeStats("u", recs)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 25.0, st.AverageBMI)
	assert.Equal(t, 70.33, st.AverageEGFR)
	assert.True(t, t0.Add(48*time.Hour).Equal(*st.LastAnalysisDate))
}

func TestProfileService(t *testing.T) {
	ctx := context.Background()
	f := newFixture(false)

	_, err := f.profiles.Get(ctx, ann)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	v, err := f.profiles.Update(ctx, ann, model.ProfilePatch{
		Name:      model.Some("  Ann  "),
		Sex:       model.Some("F"),
		BirthDate: model.Some("1980-06-02"),
		HeightCm:  model.Some(165.0),
		WeightKg:  model.Some(60.0),
	})
	require.NoError(t, err)
	assert.Equal(t, "Ann", *v.Name)
	assert.Equal(t, "female", *v.Sex)
	assert.Equal(t, ann.Email, v.Email)
	require.NotNil(t, v.AgeYears)
	assert.Equal(t, 44, *v.AgeYears, "birthday is the day after now")
	require.NotNil(t, v.BMI)
	assert.Equal(t, 22.0, *v.BMI)
	assert.Equal(t, "Normal weight", v.BMICategory)

	v, err = f.profiles.Replace(ctx, ann, model.ProfilePatch{Name: model.Some("Ann B")})
	require.NoError(t, err)
	assert.Equal(t, "Ann B", *v.Name)
	assert.Nil(t, v.HeightCm)
	assert.Nil(t, v.BMI)
	assert.Nil(t, v.AgeYears)
}

func TestProfileService_Validation(t *testing.T) {
	f := newFixture(false)
	_, err := f.profiles.Update(context.Background(), ann, model.ProfilePatch{
		HeightCm:  model.Some(0.0),
		WeightKg:  model.Some(900.0),
		Sex:       model.Some("x"),
		BirthDate: model.Some("2999-01-01"),
	})
	var names []string
	for _, fe := range clinical.FieldErrors(err) {
		names = append(names, fe.Field)
	}
	assert.ElementsMatch(t, []string{"heightCm", "weightKg", "sex", "birthDate"}, names)
}

func TestLoadUserData(t *testing.T) {
	ctx := context.Background()
	f := newFixture(false)

	d, err := LoadUserData(ctx, ann, f.profiles, f.analyses)
	require.NoError(t, err)
	assert.Nil(t, d.Profile)
	assert.NotNil(t, d.Analyses)
	assert.Empty(t, d.Analyses)

	_, err = f.profiles.Update(ctx, ann, model.ProfilePatch{Name: model.Some("Ann")})
	require.NoError(t, err)
	_, err = f.analyses.Save(ctx, ann, maleForm)
	require.NoError(t, err)

	d, err = LoadUserData(ctx, ann, f.profiles, f.analyses)
	require.NoError(t, err)
	require.NotNil(t, d.Profile)
	assert.Equal(t, "Ann", *d.Profile.Name)
	assert.Len(t, d.Analyses, 1)
	assert.Equal(t, ann, d.User)
}

func TestRedisStatsCache_NilClientIsNoop(t *testing.T) {
	c := NewRedisStatsCache(nil, 0, zerolog.Nop())
	c.Put(context.Background(), model.UserStats{UserID: "u"})
	_, ok := c.Get(context.Background(), "u")
	assert.False(t, ok)
	c.Invalidate(context.Background(), "u")
}
