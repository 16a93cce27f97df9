package repository

import (
	"context"
	"sort"

	"github.com/iliyamo/egfr-calculator/internal/docstore"
	"github.com/iliyamo/egfr-calculator/internal/model"
)

// AnalysisRepo persists saved calculations.  Every read and delete is
// scoped to the owning user.
type AnalysisRepo struct{ Store docstore.Store }

func NewAnalysisRepo(s docstore.Store) *AnalysisRepo { return &AnalysisRepo{Store: s} }

// Add stores rec under a generated id and returns it with the id set.
func (r *AnalysisRepo) Add(ctx context.Context, rec model.AnalysisRecord) (model.AnalysisRecord, error) {
	doc, err := docstore.Encode(rec)
	if err != nil {
		return model.AnalysisRecord{}, err
	}
	id, err := r.Store.Add(ctx, docstore.Analyses, doc)
	if err != nil {
		return model.AnalysisRecord{}, wrap("add", docstore.Analyses, err)
	}
	rec.ID = id
	return rec, nil
}

// ListByUser returns userID's analyses, newest first.
func (r *AnalysisRepo) ListByUser(ctx context.Context, userID string) ([]model.AnalysisRecord, error) {
	docs, err := r.Store.Query(ctx, docstore.Analyses, docstore.Where("userId", userID))
	if err != nil {
		return nil, wrap("query", docstore.Analyses, err)
	}
	out := make([]model.AnalysisRecord, 0, len(docs))
	for _, d := range docs {
		var rec model.AnalysisRecord
		if err := docstore.Decode(d, &rec); err != nil {
			return nil, wrap("query", docstore.Analyses, err)
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Get returns one analysis.  ErrForbidden is returned when it belongs to
// another user.
func (r *AnalysisRepo) Get(ctx context.Context, userID, id string) (model.AnalysisRecord, error) {
	d, err := r.Store.Get(ctx, docstore.Analyses, id)
	if err != nil {
		return model.AnalysisRecord{}, wrap("get", docstore.Analyses, err)
	}
	var rec model.AnalysisRecord
	if err := docstore.Decode(d, &rec); err != nil {
		return model.AnalysisRecord{}, wrap("get", docstore.Analyses, err)
	}
	if rec.UserID != userID {
		return model.AnalysisRecord{}, ErrForbidden
	}
	return rec, nil
}

// Delete removes one of userID's analyses.
func (r *AnalysisRepo) Delete(ctx context.Context, userID, id string) error {
	if _, err := r.Get(ctx, userID, id); err != nil {
		return err
	}
	return wrap("delete", docstore.Analyses, r.Store.Delete(ctx, docstore.Analyses, id))
}
