package budget

import (
	"context"
	"errors"
	"time"
)

// SuggestLimit caps the number of templates returned by Suggest.
const SuggestLimit = 20

// ActivityTemplate remembers an (activity, means) pair a center has used, so
// the next budget can be filled from suggestions.
type ActivityTemplate struct {
	CenterID          string
	KeyActivity       string
	MeansType         string
	NomenclatureCode  string
	NomenclatureLabel string
	FinancingCategory FinancingCategory
	UsageCount        int
	LastUsedAt        time.Time
}

// TemplateStore persists activity templates, keyed by
// (centerID, keyActivity, meansType).
type TemplateStore interface {
	// RecordUsage increments the usage count of the matching template, or
	// creates it with a count of 1 seeded from the line's nomenclature.
	RecordUsage(ctx context.Context, centerID string, line ExpenseLine) error

	// Suggest matches query case-insensitively against keyActivity and
	// meansType (all templates when query is empty), most used first.
	Suggest(ctx context.Context, centerID, query string, limit int) ([]ActivityTemplate, error)
}

// UsageRecorder is the side channel the engine notifies after a budget write
// commits. Its errors are logged by the engine and never returned to callers.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, centerID string, lines []ExpenseLine) error
}

// DirectRecorder writes usage straight into a TemplateStore.
type DirectRecorder struct {
	Templates TemplateStore
}

// RecordUsage records every line, continuing past failures.
func (r *DirectRecorder) RecordUsage(ctx context.Context, centerID string, lines []ExpenseLine) error {
	var errs []error
	for _, l := range lines {
		if err := r.Templates.RecordUsage(ctx, centerID, l); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
