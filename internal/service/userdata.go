package service

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/egfr-calculator/internal/auth"
	"github.com/iliyamo/egfr-calculator/internal/model"
	"github.com/iliyamo/egfr-calculator/internal/repository"
)

// UserData is everything the client shows right after sign-in.
type UserData struct {
	User     auth.CurrentUser       `json:"user"`
	Profile  *ProfileView           `json:"profile"`
	Analyses []model.AnalysisRecord `json:"analyses"`
}

// LoadUserData fetches user's profile and analyses concurrently.  A missing
// profile is not an error.
func LoadUserData(ctx context.Context, user auth.CurrentUser, profiles *ProfileService, analyses *AnalysisService) (UserData, error) {
	out := UserData{User: user}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := profiles.Get(gctx, user)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		out.Profile = &p
		return nil
	})
	g.Go(func() error {
		recs, err := analyses.List(gctx, user)
		out.Analyses = recs
		return err
	})
	if err := g.Wait(); err != nil {
		return UserData{}, err
	}
	if out.Analyses == nil {
		out.Analyses = []model.AnalysisRecord{}
	}
	return out, nil
}
