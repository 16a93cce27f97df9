package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/egfr-calculator/internal/docstore"
	"github.com/iliyamo/egfr-calculator/internal/model"
	"github.com/iliyamo/egfr-calculator/internal/utils"
)

// UserRepo persists accounts: the user record in `users` and the login
// credential in `credentials`, keyed by normalized email.
type UserRepo struct{ Store docstore.Store }

func NewUserRepo(s docstore.Store) *UserRepo { return &UserRepo{Store: s} }

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// Create hashes the password and registers a new account.  The credential
// is written first with an insert-only create so two concurrent
// registrations for one email cannot both succeed.
func (r *UserRepo) Create(ctx context.Context, email, password string, cost int) (model.User, error) {
	email = NormalizeEmail(email)
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return model.User{}, err
	}
	u := model.User{ID: uuid.NewString(), Email: email, CreatedAt: time.Now().UTC()}

	cred, err := docstore.Encode(model.Credential{UserID: u.ID, PasswordHash: hash})
	if err != nil {
		return model.User{}, err
	}
	if err := r.Store.Create(ctx, docstore.Credentials, email, cred); err != nil {
		if errors.Is(err, docstore.ErrAlreadyExists) {
			return model.User{}, ErrEmailExists
		}
		return model.User{}, wrap("create", docstore.Credentials, err)
	}

	doc, err := docstore.Encode(u)
	if err != nil {
		return model.User{}, err
	}
	if err := r.Store.Set(ctx, docstore.Users, u.ID, doc); err != nil {
		// Release the email so the user can retry.
		_ = r.Store.Delete(ctx, docstore.Credentials, email)
		return model.User{}, wrap("create", docstore.Users, err)
	}
	return u, nil
}

// GetByEmail fetches an account and its credential by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, model.Credential, error) {
	email = NormalizeEmail(email)
	d, err := r.Store.Get(ctx, docstore.Credentials, email)
	if err != nil {
		return model.User{}, model.Credential{}, wrap("get", docstore.Credentials, err)
	}
	var cred model.Credential
	if err := docstore.Decode(d, &cred); err != nil {
		return model.User{}, model.Credential{}, wrap("get", docstore.Credentials, err)
	}
	u, err := r.GetByID(ctx, cred.UserID)
	if err != nil {
		return model.User{}, model.Credential{}, err
	}
	return u, cred, nil
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	d, err := r.Store.Get(ctx, docstore.Users, id)
	if err != nil {
		return model.User{}, wrap("get", docstore.Users, err)
	}
	var u model.User
	if err := docstore.Decode(d, &u); err != nil {
		return model.User{}, wrap("get", docstore.Users, err)
	}
	return u, nil
}

// TouchLastLogin records a successful sign-in.
func (r *UserRepo) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	v, err := docstore.EncodeValue(at.UTC())
	if err != nil {
		return err
	}
	err = r.Store.Update(ctx, docstore.Users, id, docstore.Patch{Set: docstore.Document{"lastLoginAt": v}})
	return wrap("update", docstore.Users, err)
}
