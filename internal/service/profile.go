package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/egfr-calculator/internal/auth"
	"github.com/iliyamo/egfr-calculator/internal/clinical"
	"github.com/iliyamo/egfr-calculator/internal/model"
	"github.com/iliyamo/egfr-calculator/internal/repository"
)

const birthDateLayout = "2006-01-02"

// ProfileView is a stored profile plus the values derived from it.
type ProfileView struct {
	model.UserProfile
	BMI         *float64 `json:"bmi,omitempty"`
	BMICategory string   `json:"bmiCategory,omitempty"`
	AgeYears    *int     `json:"ageYears,omitempty"`
}

// ProfileService reads and edits the caller's own profile.
type ProfileService struct {
	Profiles *repository.ProfileRepo
	Now      func() time.Time
}

func (s *ProfileService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Get returns user's profile or repository.ErrNotFound.
func (s *ProfileService) Get(ctx context.Context, user auth.CurrentUser) (ProfileView, error) {
	p, err := s.Profiles.Get(ctx, user.ID)
	if err != nil {
		return ProfileView{}, err
	}
	return s.view(p), nil
}

// Update applies patch to user's profile, creating it when needed.
func (s *ProfileService) Update(ctx context.Context, user auth.CurrentUser, patch model.ProfilePatch) (ProfileView, error) {
	if err := s.validate(&patch); err != nil {
		return ProfileView{}, err
	}
	p, err := s.Profiles.Upsert(ctx, user.ID, user.Email, patch, s.now())
	if err != nil {
		return ProfileView{}, err
	}
	return s.view(p), nil
}

// Replace overwrites user's profile: fields missing from patch are removed.
func (s *ProfileService) Replace(ctx context.Context, user auth.CurrentUser, patch model.ProfilePatch) (ProfileView, error) {
	return s.Update(ctx, user, patch.Replacing())
}

// validate checks every set field and normalizes sex to its canonical form.
func (s *ProfileService) validate(p *model.ProfilePatch) error {
	var errs []error
	fail := func(field, format string, args ...any) {
		errs = append(errs, &clinical.ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}
	if v, ok := p.HeightCm.Get(); ok && (v <= 0 || v > clinical.MaxHeightCm) {
		fail("heightCm", "must be in (0, %d]", clinical.MaxHeightCm)
	}
	if v, ok := p.WeightKg.Get(); ok && (v <= 0 || v > clinical.MaxWeightKg) {
		fail("weightKg", "must be in (0, %d]", clinical.MaxWeightKg)
	}
	if v, ok := p.Sex.Get(); ok {
		if sx, err := clinical.ParseSex(v); err != nil {
			fail("sex", "must be male or female")
		} else {
			p.Sex = model.Some(sx.String())
		}
	}
	if v, ok := p.BirthDate.Get(); ok {
		d, err := time.Parse(birthDateLayout, strings.TrimSpace(v))
		switch {
		case err != nil:
			fail("birthDate", "must be a date in YYYY-MM-DD form")
		case d.After(s.now()):
			fail("birthDate", "must not be in the future")
		default:
			p.BirthDate = model.Some(d.Format(birthDateLayout))
		}
	}
	for _, f := range []struct {
		name string
		v    *model.Optional[string]
	}{{"name", &p.Name}, {"position", &p.Position}, {"contactPhone", &p.ContactPhone}} {
		if v, ok := f.v.Get(); ok {
			if v = strings.TrimSpace(v); v == "" {
				*f.v = model.Cleared[string]()
			} else {
				*f.v = model.Some(v)
			}
		}
	}
	return errors.Join(errs...)
}

func (s *ProfileService) view(p model.UserProfile) ProfileView {
	v := ProfileView{UserProfile: p}
	if bmi, ok := clinical.ComputeBMI(model.FromPtr(p.HeightCm), model.FromPtr(p.WeightKg)); ok {
		b := clinical.Round(bmi, 1)
		v.BMI = &b
		v.BMICategory = clinical.BMICategory(b)
	}
	if p.BirthDate != nil {
		if d, err := time.Parse(birthDateLayout, *p.BirthDate); err == nil {
			age := ageAt(d, s.now())
			v.AgeYears = &age
		}
	}
	return v
}

// ageAt returns completed years between birth and now.
func ageAt(birth, now time.Time) int {
	years := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		years--
	}
	return years
}
