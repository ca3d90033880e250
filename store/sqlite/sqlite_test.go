package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/paa-engine/budget"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.SaveCenter(context.Background(), budget.Center{ID: "center-1", Code: "CS-041", Name: "Kalinzi"}))
	return s
}

func testBudget(id, code string) *budget.Budget {
	now := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	return &budget.Budget{
		ID:            id,
		Code:          code,
		Name:          "PAA 2025",
		Description:   "Q1 plan",
		FiscalYear:    2025,
		Kind:          budget.KindOperating,
		Status:        budget.StatusDraft,
		CenterID:      "center-1",
		CreatedBy:     "owner-1",
		DeclaredTotal: decimal.RequireFromString("1234.50"),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func testLine(id, budgetID, activity string) budget.ExpenseLine {
	return budget.ExpenseLine{
		ID:                id,
		BudgetID:          budgetID,
		KeyActivity:       activity,
		MeansType:         "Fuel",
		Quantity:          decimal.RequireFromString("2.5"),
		Frequency:         decimal.NewFromInt(12),
		UnitCost:          decimal.RequireFromString("1000.10"),
		ComputedAmount:    decimal.RequireFromString("30003"),
		NomenclatureCode:  "6061",
		NomenclatureLabel: "Carburant",
		FinancingCategory: budget.CategoryPBF,
	}
}

// =============================================================================
// BUDGET TESTS
// =============================================================================

func TestStore_BudgetRoundTrip(t *testing.T) {
	// GIVEN: A budget with revenue and lines
	// WHEN: Stored and read back
	// THEN: Decimals keep their exact value and children keep their order
	s := newTestStore(t)
	ctx := context.Background()

	b := testBudget("b1", "BUD-2025-041-001")
	require.NoError(t, s.CreateBudget(ctx, b))
	assert.Equal(t, int64(1), b.Version)

	require.NoError(t, s.ReplaceRevenue(ctx, "b1", []budget.RevenueSource{
		{ID: "r1", BudgetID: "b1", FundingType: budget.FundingStateBudget, Nature: "Dotation", Amount: decimal.RequireFromString("0.10")},
		{ID: "r2", BudgetID: "b1", FundingType: budget.FundingDonations, Amount: decimal.NewFromInt(500)},
	}))
	require.NoError(t, s.ReplaceExpenseLines(ctx, "b1", []budget.ExpenseLine{
		testLine("l2", "b1", "Second"),
		testLine("l1", "b1", "First"),
	}))

	got, err := s.GetBudget(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "BUD-2025-041-001", got.Code)
	assert.Equal(t, "1234.5", got.DeclaredTotal.String())
	assert.True(t, got.CreatedAt.Equal(b.CreatedAt))
	assert.Nil(t, got.ValidatedBy)

	require.Len(t, got.Revenue, 2)
	assert.Equal(t, "0.1", got.Revenue[0].Amount.String())
	assert.Equal(t, "Dotation", got.Revenue[0].Nature)

	require.Len(t, got.Lines, 2)
	assert.Equal(t, "l2", got.Lines[0].ID)
	assert.Equal(t, "2.5", got.Lines[0].Quantity.String())
	assert.Equal(t, "1000.1", got.Lines[0].UnitCost.String())
	assert.Equal(t, budget.CategoryPBF, got.Lines[0].FinancingCategory)
}

func TestStore_GetMissingReturnsNil(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetBudget(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_DuplicateCode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateBudget(ctx, testBudget("b1", "BUD-2025-041-001")))

	err := s.CreateBudget(ctx, testBudget("b2", "BUD-2025-041-001"))
	assert.ErrorIs(t, err, budget.ErrDuplicateCode)
}

func TestStore_VersionGuard(t *testing.T) {
	// GIVEN: Two copies read at version 1
	// WHEN: Both are written
	// THEN: The second write loses
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateBudget(ctx, testBudget("b1", "C1")))

	first, err := s.GetBudget(ctx, "b1")
	require.NoError(t, err)
	second, err := s.GetBudget(ctx, "b1")
	require.NoError(t, err)

	first.Name = "first"
	require.NoError(t, s.UpdateBudget(ctx, first))
	assert.Equal(t, int64(2), first.Version)

	second.Name = "second"
	assert.ErrorIs(t, s.UpdateBudget(ctx, second), budget.ErrConcurrentModification)

	got, err := s.GetBudget(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "first", got.Name)
	assert.Equal(t, int64(2), got.Version)
}

func TestStore_ApprovalSnapshotRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	b := testBudget("b1", "C1")
	require.NoError(t, s.CreateBudget(ctx, b))

	by := "reviewer-1"
	at := time.Date(2025, time.April, 2, 10, 30, 0, 0, time.UTC)
	amount := decimal.RequireFromString("1234.50")
	b.Status = budget.StatusValidated
	b.ValidatedBy, b.ValidatedAt, b.ValidatedAmount = &by, &at, &amount
	require.NoError(t, s.UpdateBudget(ctx, b))

	got, err := s.GetBudget(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, got.ValidatedBy)
	assert.Equal(t, by, *got.ValidatedBy)
	require.NotNil(t, got.ValidatedAt)
	assert.True(t, got.ValidatedAt.Equal(at))
	require.NotNil(t, got.ValidatedAmount)
	assert.True(t, got.ValidatedAmount.Equal(amount))
	assert.NoError(t, got.CheckInvariants())
}

func TestStore_LineEditsAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateBudget(ctx, testBudget("b1", "C1")))
	require.NoError(t, s.ReplaceExpenseLines(ctx, "b1", []budget.ExpenseLine{testLine("l1", "b1", "A")}))
	require.NoError(t, s.AddExpenseLine(ctx, testLine("l2", "b1", "B")))
	require.NoError(t, s.DeleteExpenseLine(ctx, "b1", "l1"))

	got, err := s.GetBudget(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, "l2", got.Lines[0].ID)

	require.NoError(t, s.ReplaceExpenseLines(ctx, "b1", nil))
	got, err = s.GetBudget(ctx, "b1")
	require.NoError(t, err)
	assert.Empty(t, got.Lines)

	require.NoError(t, s.DeleteBudget(ctx, "b1"))
	got, err = s.GetBudget(ctx, "b1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_List(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := testBudget("b1", "BUD-2025-041-001")
	newer := testBudget("b2", "BUD-2025-041-002")
	newer.CreatedAt = older.CreatedAt.Add(time.Hour)
	newer.Status = budget.StatusPendingValidation
	other := testBudget("b3", "BUD-2024-041-001")
	other.FiscalYear = 2024
	other.CreatedBy = "owner-2"
	for _, b := range []*budget.Budget{older, newer, other} {
		require.NoError(t, s.CreateBudget(ctx, b))
	}

	all, err := s.ListBudgets(ctx, budget.BudgetFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "b2", all[0].ID)

	pending, err := s.ListBudgets(ctx, budget.BudgetFilter{Status: budget.StatusPendingValidation})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "b2", pending[0].ID)

	byOwner, err := s.ListBudgets(ctx, budget.BudgetFilter{CreatedBy: "owner-2", CenterID: "center-1"})
	require.NoError(t, err)
	require.Len(t, byOwner, 1)
	assert.Equal(t, "b3", byOwner[0].ID)
}

func TestStore_ListOrdersSubSecondTimestamps(t *testing.T) {
	// GIVEN: One budget on a whole second and one 100ms later
	// WHEN: Listing
	// THEN: The later one comes first
	s := newTestStore(t)
	ctx := context.Background()

	onSecond := testBudget("b1", "BUD-2025-041-002")
	later := testBudget("b2", "BUD-2025-041-001")
	later.CreatedAt = onSecond.CreatedAt.Add(100 * time.Millisecond)
	require.NoError(t, s.CreateBudget(ctx, onSecond))
	require.NoError(t, s.CreateBudget(ctx, later))

	all, err := s.ListBudgets(ctx, budget.BudgetFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b2", all[0].ID)
	assert.True(t, all[0].CreatedAt.Equal(later.CreatedAt))
}

func TestStore_MaxCodeSequence(t *testing.T) {
	// GIVEN: Codes under several prefixes, with gaps
	// WHEN: Reading the highest sequence for one prefix
	// THEN: Only that exact prefix counts, compared numerically
	s := newTestStore(t)
	ctx := context.Background()
	for i, code := range []string{
		"BUD-2025-041-001",
		"BUD-2025-041-1000",
		"BUD-2025-041-007",
		"BUD-2025-0410-2000",
		"BUD-2024-041-3000",
	} {
		require.NoError(t, s.CreateBudget(ctx, testBudget(fmt.Sprintf("b%d", i), code)))
	}

	n, err := s.MaxCodeSequence(ctx, "BUD-2025-041-")
	require.NoError(t, err)
	assert.Equal(t, 1000, n)

	n, err = s.MaxCodeSequence(ctx, "BUD-2026-041-")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_WithTxRollsBack(t *testing.T) {
	// GIVEN: A transaction that writes then fails
	// WHEN: It returns an error
	// THEN: Nothing it wrote is visible
	s := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx budget.Store) error {
		if err := tx.CreateBudget(ctx, testBudget("b1", "C1")); err != nil {
			return err
		}
		if err := tx.ReplaceExpenseLines(ctx, "b1", []budget.ExpenseLine{testLine("l1", "b1", "A")}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetBudget(ctx, "b1")
	require.NoError(t, err)
	assert.Nil(t, got)

	err = s.WithTx(ctx, func(tx budget.Store) error {
		return tx.CreateBudget(ctx, testBudget("b1", "C1"))
	})
	require.NoError(t, err)
	got, err = s.GetBudget(ctx, "b1")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

// =============================================================================
// CENTER AND TEMPLATE TESTS
// =============================================================================

func TestStore_Centers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveCenter(ctx, budget.Center{ID: "center-2", Code: "HD-002", Name: "Gitega"}))
	require.NoError(t, s.SaveCenter(ctx, budget.Center{ID: "center-1", Code: "CS-041", Name: "Kalinzi II"}))

	c, err := s.GetCenter(ctx, "center-1")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "Kalinzi II", c.Name)

	missing, err := s.GetCenter(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, err := s.ListCenters(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Gitega", all[0].Name)
}

func TestStore_TemplateUsageAndSuggest(t *testing.T) {
	// GIVEN: Lines recorded with repeats
	// WHEN: Suggesting with and without a query
	// THEN: Counts accumulate and results are most used first
	s := newTestStore(t)
	ctx := context.Background()

	record := func(activity, means string) {
		l := testLine("", "", activity)
		l.MeansType = means
		require.NoError(t, s.RecordUsage(ctx, "center-1", l))
	}
	record("Vaccination", "Fuel")
	record("Outreach", "Allowances")
	record("Outreach", "Allowances")
	record("Outreach", "Allowances")

	got, err := s.Suggest(ctx, "center-1", "", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Outreach", got[0].KeyActivity)
	assert.Equal(t, 3, got[0].UsageCount)
	assert.Equal(t, "6061", got[0].NomenclatureCode)
	assert.Equal(t, budget.CategoryPBF, got[0].FinancingCategory)
	assert.False(t, got[0].LastUsedAt.IsZero())

	got, err = s.Suggest(ctx, "center-1", "FUEL", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Vaccination", got[0].KeyActivity)

	got, err = s.Suggest(ctx, "center-1", "", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = s.Suggest(ctx, "center-2", "", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_SuggestFoldsAccentedCapitals(t *testing.T) {
	// GIVEN: Templates whose names start with accented capitals
	// WHEN: Suggesting in any case
	// THEN: Every spelling matches, as strings.ToLower would
	s := newTestStore(t)
	ctx := context.Background()
	education := testLine("", "", "Éducation sanitaire")
	education.MeansType = "Affiches"
	require.NoError(t, s.RecordUsage(ctx, "center-1", education))
	equipment := testLine("", "", "Maintenance")
	equipment.MeansType = "ÉQUIPEMENT médical"
	require.NoError(t, s.RecordUsage(ctx, "center-1", equipment))

	for _, q := range []string{"éducation", "ÉDUCATION", "Éducation", "SANITAIRE"} {
		got, err := s.Suggest(ctx, "center-1", q, 10)
		require.NoError(t, err)
		require.Len(t, got, 1, q)
		assert.Equal(t, "Éducation sanitaire", got[0].KeyActivity, q)
	}

	got, err := s.Suggest(ctx, "center-1", "équipement", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ÉQUIPEMENT médical", got[0].MeansType)
}

func TestStore_SuggestEscapesWildcards(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, activity := range []string{"100% coverage", "1000 coverage", "a_b", "axb"} {
		require.NoError(t, s.RecordUsage(ctx, "center-1", testLine("", "", activity)))
	}

	got, err := s.Suggest(ctx, "center-1", "0%", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "100% coverage", got[0].KeyActivity)

	got, err = s.Suggest(ctx, "center-1", "_", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a_b", got[0].KeyActivity)
}

func TestStore_Reset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateBudget(ctx, testBudget("b1", "C1")))
	require.NoError(t, s.RecordUsage(ctx, "center-1", testLine("", "", "A")))

	require.NoError(t, s.Reset(ctx))

	all, err := s.ListBudgets(ctx, budget.BudgetFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
	centers, err := s.ListCenters(ctx)
	require.NoError(t, err)
	assert.Empty(t, centers)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50\% \_x\\`, escapeLike(`50% _x\`))
}
