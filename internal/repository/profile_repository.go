package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/egfr-calculator/internal/docstore"
	"github.com/iliyamo/egfr-calculator/internal/model"
)

// ProfileRepo persists user profiles keyed by the owner's user id.
type ProfileRepo struct{ Store docstore.Store }

func NewProfileRepo(s docstore.Store) *ProfileRepo { return &ProfileRepo{Store: s} }

// Get returns the profile of userID.  Profiles written before they were
// keyed by user id are found through their userId field.
func (r *ProfileRepo) Get(ctx context.Context, userID string) (model.UserProfile, error) {
	d, err := r.Store.Get(ctx, docstore.UserProfiles, userID)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		if d, err = r.legacy(ctx, userID); err != nil {
			return model.UserProfile{}, err
		}
	case err != nil:
		return model.UserProfile{}, wrap("get", docstore.UserProfiles, err)
	}
	var p model.UserProfile
	if err := docstore.Decode(d, &p); err != nil {
		return model.UserProfile{}, wrap("get", docstore.UserProfiles, err)
	}
	if p.UserID == "" {
		p.UserID = userID
	}
	return p, nil
}

// legacy finds a profile of userID stored under some other document id.
func (r *ProfileRepo) legacy(ctx context.Context, userID string) (docstore.Document, error) {
	docs, err := r.Store.Query(ctx, docstore.UserProfiles, docstore.Where("userId", userID))
	if err != nil {
		return nil, wrap("query", docstore.UserProfiles, err)
	}
	for _, d := range docs {
		if d.ID() != userID {
			return d, nil
		}
	}
	return nil, ErrNotFound
}

// Upsert applies patch to the profile of userID, creating the profile when
// it does not exist yet.  A legacy profile stored under another id is
// patched in place.  Cleared fields are removed; updatedAt is always
// refreshed and createdAt is only written on creation.
func (r *ProfileRepo) Upsert(ctx context.Context, userID, email string, patch model.ProfilePatch, now time.Time) (model.UserProfile, error) {
	set, unset := patch.Fields()
	ts, err := docstore.EncodeValue(now.UTC())
	if err != nil {
		return model.UserProfile{}, err
	}
	upd := docstore.Patch{Set: docstore.Document{"updatedAt": ts}, Unset: unset}
	for k, v := range set {
		upd.Set[k] = v
	}

	err = r.Store.Update(ctx, docstore.UserProfiles, userID, upd)
	if errors.Is(err, docstore.ErrNotFound) {
		switch old, lerr := r.legacy(ctx, userID); {
		case lerr == nil:
			err = r.Store.Update(ctx, docstore.UserProfiles, old.ID(), upd)
		case !errors.Is(lerr, ErrNotFound):
			return model.UserProfile{}, lerr
		}
	}
	if errors.Is(err, docstore.ErrNotFound) {
		created := docstore.Document{"userId": userID, "createdAt": ts, "updatedAt": ts}
		if email != "" {
			created["email"] = email
		}
		for k, v := range set {
			created[k] = v
		}
		err = r.Store.Create(ctx, docstore.UserProfiles, userID, created)
		if errors.Is(err, docstore.ErrAlreadyExists) {
			// Lost a race with a concurrent creation.
			err = r.Store.Update(ctx, docstore.UserProfiles, userID, upd)
		}
	}
	if err != nil {
		return model.UserProfile{}, wrap("upsert", docstore.UserProfiles, err)
	}
	return r.Get(ctx, userID)
}

// MigrationReport summarises a MigrateKeys run.
type MigrationReport struct {
	Total    int
	Migrated int
	Skipped  int
	Failed   int
	Errors   []error
}

// MigrateKeys rewrites profiles whose document id is not their owner's user
// id so that they are keyed by it.  Documents without a userId, already
// keyed correctly, or whose target id is taken are skipped.
func (r *ProfileRepo) MigrateKeys(ctx context.Context) (MigrationReport, error) {
	docs, err := r.Store.Query(ctx, docstore.UserProfiles, docstore.Filter{})
	if err != nil {
		return MigrationReport{}, wrap("query", docstore.UserProfiles, err)
	}
	rep := MigrationReport{Total: len(docs)}
	for _, d := range docs {
		id := d.ID()
		userID, _ := d["userId"].(string)
		if userID == "" || userID == id {
			rep.Skipped++
			continue
		}
		err := r.Store.Create(ctx, docstore.UserProfiles, userID, d)
		switch {
		case errors.Is(err, docstore.ErrAlreadyExists):
			rep.Skipped++
			continue
		case err != nil:
			rep.Failed++
			rep.Errors = append(rep.Errors, fmt.Errorf("migrate %s -> %s: %w", id, userID, err))
			continue
		}
		if err := r.Store.Delete(ctx, docstore.UserProfiles, id); err != nil {
			rep.Failed++
			rep.Errors = append(rep.Errors, fmt.Errorf("remove %s: %w", id, err))
			continue
		}
		rep.Migrated++
	}
	return rep, nil
}
