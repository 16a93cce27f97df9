package repository

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/egfr-calculator/internal/docstore"
	"github.com/iliyamo/egfr-calculator/internal/model"
)

// SessionRepo persists and validates refresh tokens.  Only the token hash is
// stored; it doubles as the document id.
type SessionRepo struct{ Store docstore.Store }

func NewSessionRepo(s docstore.Store) *SessionRepo { return &SessionRepo{Store: s} }

// StoreRefresh records a refresh token hash for userID.
func (r *SessionRepo) StoreRefresh(ctx context.Context, userID, tokenHash string, exp time.Time) error {
	doc, err := docstore.Encode(model.Session{UserID: userID, ExpiresAt: exp.UTC(), CreatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return wrap("create", docstore.Sessions, r.Store.Create(ctx, docstore.Sessions, tokenHash, doc))
}

// ValidateRefresh returns the owner of a non-revoked, non-expired token and
// ErrNotFound otherwise.
func (r *SessionRepo) ValidateRefresh(ctx context.Context, tokenHash string) (string, error) {
	d, err := r.Store.Get(ctx, docstore.Sessions, tokenHash)
	if err != nil {
		return "", wrap("get", docstore.Sessions, err)
	}
	var s model.Session
	if err := docstore.Decode(d, &s); err != nil {
		return "", wrap("get", docstore.Sessions, err)
	}
	if s.RevokedAt != nil || time.Now().UTC().After(s.ExpiresAt) {
		return "", ErrNotFound
	}
	return s.UserID, nil
}

// Consume validates a token and removes it so it cannot be used again.  Of
// concurrent calls with the same token only one succeeds; the others get
// ErrNotFound.
func (r *SessionRepo) Consume(ctx context.Context, tokenHash string) (string, error) {
	userID, err := r.ValidateRefresh(ctx, tokenHash)
	if err != nil {
		return "", err
	}
	if err := r.Store.Delete(ctx, docstore.Sessions, tokenHash); err != nil {
		return "", wrap("delete", docstore.Sessions, err)
	}
	return userID, nil
}

// RevokeByHash marks a token as revoked.  Unknown tokens are ignored.
func (r *SessionRepo) RevokeByHash(ctx context.Context, tokenHash string) error {
	err := r.revoke(ctx, tokenHash)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// RevokeAllForUser revokes every active token of userID.
func (r *SessionRepo) RevokeAllForUser(ctx context.Context, userID string) error {
	docs, err := r.Store.Query(ctx, docstore.Sessions, docstore.Where("userId", userID))
	if err != nil {
		return wrap("query", docstore.Sessions, err)
	}
	for _, d := range docs {
		if _, revoked := d["revokedAt"]; revoked {
			continue
		}
		if err := r.revoke(ctx, d.ID()); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return nil
}

func (r *SessionRepo) revoke(ctx context.Context, id string) error {
	v, err := docstore.EncodeValue(time.Now().UTC())
	if err != nil {
		return err
	}
	err = r.Store.Update(ctx, docstore.Sessions, id, docstore.Patch{Set: docstore.Document{"revokedAt": v}})
	return wrap("update", docstore.Sessions, err)
}
