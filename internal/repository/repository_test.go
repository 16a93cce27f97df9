package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/egfr-calculator/internal/docstore"
	"github.com/iliyamo/egfr-calculator/internal/model"
	"github.com/iliyamo/egfr-calculator/internal/utils"
)

// failingStore fails every call with err.
type failingStore struct {
	docstore.Store
	err error
}

func (f failingStore) Get(context.Context, string, string) (docstore.Document, error) {
	return nil, f.err
}

func (f failingStore) Query(context.Context, string, docstore.Filter) ([]docstore.Document, error) {
	return nil, f.err
}

func TestUserRepo_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	r := NewUserRepo(docstore.NewMemory())

	u, err := r.Create(ctx, "  Ann@Example.COM ", "secret1", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "ann@example.com", u.Email)

	got, cred, err := r.GetByEmail(ctx, "ANN@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, u.ID, cred.UserID)
	assert.True(t, utils.VerifyPassword(cred.PasswordHash, "secret1"))

	_, err = r.Create(ctx, "ann@example.com", "other12", bcrypt.MinCost)
	assert.ErrorIs(t, err, ErrEmailExists)

	_, _, err = r.GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepo_TouchLastLogin(t *testing.T) {
	ctx := context.Background()
	r := NewUserRepo(docstore.NewMemory())
	u, err := r.Create(ctx, "a@b.c", "secret1", bcrypt.MinCost)
	require.NoError(t, err)
	assert.Nil(t, u.LastLoginAt)

	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, r.TouchLastLogin(ctx, u.ID, at))

	got, err := r.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastLoginAt)
	assert.True(t, at.Equal(*got.LastLoginAt))
}

func TestSessionRepo(t *testing.T) {
	ctx := context.Background()
	r := NewSessionRepo(docstore.NewMemory())

	require.NoError(t, r.StoreRefresh(ctx, "u1", "h1", time.Now().Add(time.Hour)))
	require.NoError(t, r.StoreRefresh(ctx, "u1", "h2", time.Now().Add(time.Hour)))
	require.NoError(t, r.StoreRefresh(ctx, "u1", "old", time.Now().Add(-time.Hour)))

	uid, err := r.ValidateRefresh(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "u1", uid)

	_, err = r.ValidateRefresh(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.ValidateRefresh(ctx, "unknown")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, r.RevokeByHash(ctx, "h1"))
	_, err = r.ValidateRefresh(ctx, "h1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, r.RevokeByHash(ctx, "unknown"))

	require.NoError(t, r.RevokeAllForUser(ctx, "u1"))
	_, err = r.ValidateRefresh(ctx, "h2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionRepo_ConsumeOnce(t *testing.T) {
	ctx := context.Background()
	r := NewSessionRepo(docstore.NewMemory())
	require.NoError(t, r.StoreRefresh(ctx, "u1", "h1", time.Now().Add(time.Hour)))
	require.NoError(t, r.StoreRefresh(ctx, "u1", "old", time.Now().Add(-time.Hour)))

	const callers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			uid, err := r.Consume(ctx, "h1")
			if err != nil {
				assert.ErrorIs(t, err, ErrNotFound)
				return
			}
			assert.Equal(t, "u1", uid)
			mu.Lock()
			wins++
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	_, err := r.Consume(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProfileRepo_UpsertCreatesThenPatches(t *testing.T) {
	ctx := context.Background()
	r := NewProfileRepo(docstore.NewMemory())
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := r.Get(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	p, err := r.Upsert(ctx, "u1", "a@b.c", model.ProfilePatch{
		Name:     model.Some("Ann"),
		Position: model.Some("nurse"),
		HeightCm: model.Some(170.0),
		WeightKg: model.Cleared[float64](),
	}, t0)
	require.NoError(t, err)
	assert.Equal(t, "u1", p.UserID)
	assert.Equal(t, "a@b.c", p.Email)
	require.NotNil(t, p.Name)
	assert.Equal(t, "Ann", *p.Name)
	assert.Nil(t, p.WeightKg)
	assert.True(t, t0.Equal(p.CreatedAt))

	t1 := t0.Add(time.Hour)
	p, err = r.Upsert(ctx, "u1", "a@b.c", model.ProfilePatch{
		Position: model.Cleared[string](),
		WeightKg: model.Some(65.5),
	}, t1)
	require.NoError(t, err)
	assert.Equal(t, "Ann", *p.Name, "absent fields are untouched")
	assert.Nil(t, p.Position, "cleared fields are removed")
	require.NotNil(t, p.WeightKg)
	assert.Equal(t, 65.5, *p.WeightKg)
	assert.True(t, t0.Equal(p.CreatedAt), "createdAt is preserved")
	assert.True(t, t1.Equal(p.UpdatedAt))
}

func TestProfileRepo_LegacyKeysAndMigration(t *testing.T) {
	ctx := context.Background()
	s := docstore.NewMemory()
	r := NewProfileRepo(s)

	require.NoError(t, s.Set(ctx, docstore.UserProfiles, "random-1", docstore.Document{"userId": "u1", "name": "Ann"}))
	require.NoError(t, s.Set(ctx, docstore.UserProfiles, "u2", docstore.Document{"userId": "u2"}))
	require.NoError(t, s.Set(ctx, docstore.UserProfiles, "orphan", docstore.Document{"name": "x"}))
	require.NoError(t, s.Set(ctx, docstore.UserProfiles, "random-3", docstore.Document{"userId": "u2"}))

	p, err := r.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ann", *p.Name)

	rep, err := r.MigrateKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, MigrationReport{Total: 4, Migrated: 1, Skipped: 3}, rep)

	d, err := s.Get(ctx, docstore.UserProfiles, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ann", d["name"])
	_, err = s.Get(ctx, docstore.UserProfiles, "random-1")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestProfileRepo_UpsertPatchesLegacyProfile(t *testing.T) {
	ctx := context.Background()
	s := docstore.NewMemory()
	r := NewProfileRepo(s)
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.Set(ctx, docstore.UserProfiles, "random-1",
		docstore.Document{"userId": "u1", "name": "Ann", "heightCm": 180.0}))

	p, err := r.Upsert(ctx, "u1", "ann@x.org", model.ProfilePatch{Position: model.Some("nurse")}, now)
	require.NoError(t, err)
	require.NotNil(t, p.Name)
	assert.Equal(t, "Ann", *p.Name)
	require.NotNil(t, p.HeightCm)
	assert.Equal(t, 180.0, *p.HeightCm)
	require.NotNil(t, p.Position)
	assert.Equal(t, "nurse", *p.Position)

	// no second document appears under the user id
	_, err = s.Get(ctx, docstore.UserProfiles, "u1")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
	d, err := s.Get(ctx, docstore.UserProfiles, "random-1")
	require.NoError(t, err)
	assert.Equal(t, "nurse", d["position"])

	_, err = r.Upsert(ctx, "u1", "", model.ProfilePatch{HeightCm: model.Cleared[float64]()}, now)
	require.NoError(t, err)
	p, err = r.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, p.HeightCm)
	assert.Equal(t, "Ann", *p.Name)

	_, err = r.Get(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAnalysisRepo_OwnerScoping(t *testing.T) {
	ctx := context.Background()
	r := NewAnalysisRepo(docstore.NewMemory())
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 3; i++ {
		rec, err := r.Add(ctx, model.AnalysisRecord{UserID: "u1", CreatedAt: base.Add(time.Duration(i) * time.Hour)})
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}
	other, err := r.Add(ctx, model.AnalysisRecord{UserID: "u2", CreatedAt: base})
	require.NoError(t, err)

	list, err := r.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{list[0].ID, list[1].ID, list[2].ID})

	_, err = r.Get(ctx, "u1", other.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, r.Delete(ctx, "u1", other.ID), ErrForbidden)
	assert.ErrorIs(t, r.Delete(ctx, "u1", "missing"), ErrNotFound)

	require.NoError(t, r.Delete(ctx, "u1", ids[0]))
	list, err = r.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	still, err := r.Get(ctx, "u2", other.ID)
	require.NoError(t, err)
	assert.Equal(t, "u2", still.UserID)
}

func TestPersistenceErrorWrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	r := NewAnalysisRepo(failingStore{err: cause})

	_, err := r.ListByUser(context.Background(), "u1")
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "query", pe.Op)
	assert.Equal(t, docstore.Analyses, pe.Collection)
	assert.ErrorIs(t, err, cause)
}
