package budget_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/paa-engine/budget"
	"github.com/warp/paa-engine/budget/store"
	"github.com/warp/paa-engine/log"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var (
	owner    = budget.Actor{ID: "owner-1", Roles: []budget.Role{budget.RoleCenterOwner}}
	stranger = budget.Actor{ID: "owner-2", Roles: []budget.Role{budget.RoleCenterOwner}}
	reviewer = budget.Actor{ID: "reviewer-1", Roles: []budget.Role{budget.RoleReviewer}}
	admin    = budget.Actor{ID: "admin-1", Roles: []budget.Role{budget.RoleAdmin}}
)

type fixture struct {
	engine *budget.Engine
	mem    *store.Memory
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	require.NoError(t, mem.SaveCenter(context.Background(), budget.Center{ID: "center-1", Code: "CS-041", Name: "Kalinzi"}))

	f := &fixture{mem: mem, now: time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)}
	e := budget.NewEngine(mem, mem, mem)
	e.Logger = log.Discard()
	e.Now = func() time.Time { return f.now }
	f.engine = e
	return f
}

func header(name string, year int) budget.Header {
	return budget.Header{Name: name, Description: "Q1 plan", FiscalYear: year, Kind: budget.KindOperating}
}

func coveredRevenue() []budget.RevenueSource {
	return []budget.RevenueSource{
		revenue(budget.FundingStateBudget, "100000"),
		revenue(budget.FundingPerformanceBased, "50000"),
	}
}

// coveredLines totals 90000: 50000 state, 40000 PBF.
func coveredLines() []budget.ExpenseLine {
	fuel := line(budget.CategoryStateBudget, "1", "1", "50000")
	fuel.KeyActivity, fuel.MeansType = "Outreach", "Fuel"
	bonus := line(budget.CategoryPBF, "2", "1", "20000")
	bonus.KeyActivity, bonus.MeansType = "Vaccination", "Bonuses"
	return []budget.ExpenseLine{fuel, bonus}
}

func (f *fixture) create(t *testing.T) *budget.Budget {
	t.Helper()
	b, err := f.engine.Create(context.Background(), owner, "center-1", header("PAA 2025", 2025), coveredRevenue(), coveredLines())
	require.NoError(t, err)
	return b
}

func (f *fixture) submitted(t *testing.T) *budget.Budget {
	t.Helper()
	b := f.create(t)
	b, err := f.engine.Submit(context.Background(), owner, b.ID)
	require.NoError(t, err)
	return b
}

func assertKind(t *testing.T, want budget.ErrorKind, err error) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, want, budget.KindOf(err), err.Error())
}

type failingRecorder struct{ calls int }

func (r *failingRecorder) RecordUsage(context.Context, string, []budget.ExpenseLine) error {
	r.calls++
	return errors.New("template store unavailable")
}

// =============================================================================
// CREATE TESTS
// =============================================================================

func TestCreate_DraftWithCodeAndTotals(t *testing.T) {
	// GIVEN: A covered payload
	// WHEN: The center owner creates a budget
	// THEN: It is a DRAFT with a minted code and computed amounts
	f := newFixture(t)
	b := f.create(t)

	assert.Equal(t, budget.StatusDraft, b.Status)
	assert.Equal(t, "BUD-2025-041-001", b.Code)
	assert.Equal(t, owner.ID, b.CreatedBy)
	assert.Equal(t, int64(1), b.Version)
	assert.True(t, b.DeclaredTotal.Equal(dec("90000")))
	require.Len(t, b.Lines, 2)
	assert.True(t, b.Lines[1].ComputedAmount.Equal(dec("40000")))
	for _, l := range b.Lines {
		assert.NotEmpty(t, l.ID)
		assert.Equal(t, b.ID, l.BudgetID)
	}
	assert.Nil(t, b.ValidatedBy)

	stored, err := f.engine.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Revenue, 2)
	assert.Len(t, stored.Lines, 2)
}

func TestCreate_EmptyLines(t *testing.T) {
	f := newFixture(t)
	b, err := f.engine.Create(context.Background(), owner, "center-1", header("Empty", 2025), nil, nil)
	require.NoError(t, err)
	assert.True(t, b.DeclaredTotal.IsZero())

	s, err := f.engine.Summary(context.Background(), b.ID)
	require.NoError(t, err)
	assert.True(t, s.Coverage.OK)
}

func TestCreate_UncoveredStoresNothing(t *testing.T) {
	// GIVEN: Expense exceeding own resources revenue
	// WHEN: Creating
	// THEN: InvalidContent with the violation, and nothing is persisted
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.engine.Create(ctx, owner, "center-1", header("Short", 2025),
		[]budget.RevenueSource{revenue(budget.FundingOwnResources, "10000")},
		[]budget.ExpenseLine{line(budget.CategoryOwnResources, "2", "1", "6000")})
	assertKind(t, budget.KindInvalidContent, err)

	var cov *budget.CoverageError
	require.True(t, errors.As(err, &cov))
	assert.Equal(t, budget.CategoryOwnResources, cov.Violations[0].Category)

	all, err := f.engine.List(ctx, budget.BudgetFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreate_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Create(ctx, reviewer, "center-1", header("X", 2025), nil, nil)
	assertKind(t, budget.KindUnauthorized, err)

	_, err = f.engine.Create(ctx, owner, "center-missing", header("X", 2025), nil, nil)
	assertKind(t, budget.KindNotFound, err)

	_, err = f.engine.Create(ctx, owner, "center-1", header("  ", 2025), nil, nil)
	assertKind(t, budget.KindInvalidContent, err)

	_, err = f.engine.Create(ctx, owner, "center-1", header("X", 1999), nil, nil)
	var ce *budget.ContentError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "fiscal_year", ce.Field)

	bad := line(budget.CategoryPBF, "0", "1", "10")
	_, err = f.engine.Create(ctx, owner, "center-1", header("X", 2025), nil, []budget.ExpenseLine{bad})
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "expense_lines[0].quantity", ce.Field)

	_, err = f.engine.Create(ctx, owner, "center-1", header("X", 2025),
		[]budget.RevenueSource{revenue("LOTTERY", "10")}, nil)
	assertKind(t, budget.KindInvalidContent, err)
}

func TestCreate_AdminMayCreate(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Create(context.Background(), admin, "center-1", header("X", 2025), nil, nil)
	assert.NoError(t, err)
}

func TestCreate_CodesSequencePerYearAndCenter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.mem.SaveCenter(ctx, budget.Center{ID: "center-2", Code: "HD-002"}))

	var codes []string
	for _, c := range []struct {
		center string
		year   int
	}{
		{"center-1", 2025},
		{"center-1", 2025},
		{"center-1", 2026},
		{"center-2", 2025},
	} {
		b, err := f.engine.Create(ctx, owner, c.center, header("X", c.year), nil, nil)
		require.NoError(t, err)
		codes = append(codes, b.Code)
	}
	assert.Equal(t, []string{"BUD-2025-041-001", "BUD-2025-041-002", "BUD-2026-041-001", "BUD-2025-002-001"}, codes)
}

func TestCreate_DeletedBudgetsDoNotBlockMinting(t *testing.T) {
	// GIVEN: Ten budgets for one year and center, the first five deleted
	// WHEN: Creating three more
	// THEN: Each gets the next code after the highest still stored
	f := newFixture(t)
	ctx := context.Background()

	var created []*budget.Budget
	for i := 0; i < 10; i++ {
		created = append(created, f.create(t))
	}
	require.GreaterOrEqual(t, 5, f.engine.MintAttempts)
	for _, b := range created[:5] {
		require.NoError(t, f.engine.Delete(ctx, admin, b.ID))
	}

	var codes []string
	for i := 0; i < 3; i++ {
		codes = append(codes, f.create(t).Code)
	}
	assert.Equal(t, []string{"BUD-2025-041-011", "BUD-2025-041-012", "BUD-2025-041-013"}, codes)
}

func TestCreate_SequenceFollowsHighestCode(t *testing.T) {
	// GIVEN: 001..003 with 002 deleted
	// WHEN: Creating again
	// THEN: 004 is minted, the gap is not refilled
	f := newFixture(t)
	ctx := context.Background()
	f.create(t)
	second := f.create(t)
	f.create(t)
	require.NoError(t, f.engine.Delete(ctx, admin, second.ID))

	assert.Equal(t, "BUD-2025-041-004", f.create(t).Code)
}

// staleSequence under-reports the highest code sequence for its first
// stale reads, as a second writer inserting between read and insert would.
type staleSequence struct {
	*store.Memory
	stale int
}

func (s *staleSequence) WithTx(ctx context.Context, fn func(budget.Store) error) error {
	return s.Memory.WithTx(ctx, func(tx budget.Store) error {
		return fn(&staleTx{Store: tx, seq: s})
	})
}

type staleTx struct {
	budget.Store
	seq *staleSequence
}

func (t *staleTx) MaxCodeSequence(ctx context.Context, prefix string) (int, error) {
	n, err := t.Store.MaxCodeSequence(ctx, prefix)
	if t.seq.stale > 0 {
		t.seq.stale--
		return n - 1, err
	}
	return n, err
}

func TestCreate_RetriesConcurrentCollision(t *testing.T) {
	// GIVEN: 001 stored and one stale sequence read
	// WHEN: Creating
	// THEN: 001 collides, the retry rereads and mints 002
	f := newFixture(t)
	f.create(t)
	f.engine.Store = &staleSequence{Memory: f.mem, stale: 1}

	assert.Equal(t, "BUD-2025-041-002", f.create(t).Code)
}

func TestCreate_GivesUpAfterMintAttempts(t *testing.T) {
	f := newFixture(t)
	f.create(t)
	f.engine.Store = &staleSequence{Memory: f.mem, stale: 10}
	f.engine.MintAttempts = 2

	_, err := f.engine.Create(context.Background(), owner, "center-1", header("X", 2025), nil, nil)
	assertKind(t, budget.KindConflict, err)
	assert.True(t, errors.Is(err, budget.ErrDuplicateCode))
}

func TestCreate_TemplateFailureDoesNotFailWrite(t *testing.T) {
	// GIVEN: A usage recorder that always fails
	// WHEN: Creating a budget with lines
	// THEN: The budget is created and the recorder was called
	f := newFixture(t)
	rec := &failingRecorder{}
	f.engine.Usage = rec

	b := f.create(t)
	assert.NotEmpty(t, b.ID)
	assert.Equal(t, 1, rec.calls)
}

func TestCreate_RecordsTemplates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t)
	f.create(t)

	templates, err := f.engine.Suggest(ctx, "center-1", "")
	require.NoError(t, err)
	require.Len(t, templates, 2)
	for _, tmpl := range templates {
		assert.Equal(t, 2, tmpl.UsageCount)
	}

	templates, err = f.engine.Suggest(ctx, "center-1", "  VACC ")
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, "Bonuses", templates[0].MeansType)
	assert.Equal(t, budget.CategoryPBF, templates[0].FinancingCategory)

	templates, err = f.engine.Suggest(ctx, "center-2", "")
	require.NoError(t, err)
	assert.Empty(t, templates)
}

// =============================================================================
// EDITING TESTS
// =============================================================================

func TestUpdate_HeaderOnlyKeepsCollections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t)

	name := "Renamed"
	got, err := f.engine.Update(ctx, owner, b.ID, budget.UpdateInput{Header: &budget.HeaderPatch{Name: &name}})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Len(t, got.Lines, 2)
	assert.True(t, got.DeclaredTotal.Equal(dec("90000")))
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, b.Code, got.Code)
}

func TestUpdate_EmptyLinesClearCollection(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)

	got, err := f.engine.Update(context.Background(), owner, b.ID, budget.UpdateInput{Lines: []budget.ExpenseLine{}})
	require.NoError(t, err)
	assert.Empty(t, got.Lines)
	assert.True(t, got.DeclaredTotal.IsZero())
	assert.Len(t, got.Revenue, 2)
}

func TestUpdate_RevenueCutChecksStoredLines(t *testing.T) {
	// GIVEN: A covered budget
	// WHEN: Replacing revenue with too little, lines untouched
	// THEN: InvalidContent and the stored budget is unchanged
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t)

	_, err := f.engine.Update(ctx, owner, b.ID, budget.UpdateInput{
		Revenue: []budget.RevenueSource{revenue(budget.FundingStateBudget, "100000")},
	})
	assertKind(t, budget.KindInvalidContent, err)

	stored, err := f.engine.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Revenue, 2)
	assert.Equal(t, int64(1), stored.Version)
}

func TestUpdate_FiscalYearChangeKeepsCode(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)

	year := 2026
	got, err := f.engine.Update(context.Background(), owner, b.ID, budget.UpdateInput{Header: &budget.HeaderPatch{FiscalYear: &year}})
	require.NoError(t, err)
	assert.Equal(t, 2026, got.FiscalYear)
	assert.Equal(t, "BUD-2025-041-001", got.Code)
}

func TestUpdate_PreconditionOrder(t *testing.T) {
	// GIVEN: A validated budget
	// WHEN: A non-creator edits it
	// THEN: Unauthorized wins over Conflict; missing budgets are NotFound first
	f := newFixture(t)
	ctx := context.Background()
	b := f.submitted(t)
	_, err := f.engine.Validate(ctx, reviewer, b.ID)
	require.NoError(t, err)

	name := "x"
	patch := budget.UpdateInput{Header: &budget.HeaderPatch{Name: &name}}

	_, err = f.engine.Update(ctx, stranger, "missing", patch)
	assertKind(t, budget.KindNotFound, err)

	_, err = f.engine.Update(ctx, stranger, b.ID, patch)
	assertKind(t, budget.KindUnauthorized, err)

	_, err = f.engine.Update(ctx, owner, b.ID, patch)
	assertKind(t, budget.KindConflict, err)
}

func TestUpdate_PendingIsEditable(t *testing.T) {
	f := newFixture(t)
	b := f.submitted(t)

	desc := "revised"
	got, err := f.engine.Update(context.Background(), owner, b.ID, budget.UpdateInput{Header: &budget.HeaderPatch{Description: &desc}})
	require.NoError(t, err)
	assert.Equal(t, budget.StatusPendingValidation, got.Status)
}

func TestAddExpenseLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t)

	extra := line(budget.CategoryStateBudget, "1", "1", "30000")
	got, err := f.engine.AddExpenseLine(ctx, owner, b.ID, extra)
	require.NoError(t, err)
	assert.Len(t, got.Lines, 3)
	assert.True(t, got.DeclaredTotal.Equal(dec("120000")))

	tooMuch := line(budget.CategoryStateBudget, "1", "1", "30000")
	_, err = f.engine.AddExpenseLine(ctx, owner, b.ID, tooMuch)
	assertKind(t, budget.KindInvalidContent, err)

	_, err = f.engine.AddExpenseLine(ctx, stranger, b.ID, extra)
	assertKind(t, budget.KindUnauthorized, err)
}

func TestRemoveExpenseLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t)

	got, err := f.engine.RemoveExpenseLine(ctx, owner, b.ID, b.Lines[0].ID)
	require.NoError(t, err)
	require.Len(t, got.Lines, 1)
	assert.True(t, got.DeclaredTotal.Equal(dec("40000")))

	_, err = f.engine.RemoveExpenseLine(ctx, owner, b.ID, "missing")
	assertKind(t, budget.KindNotFound, err)
}

// =============================================================================
// TRANSITION TESTS
// =============================================================================

func TestSubmit_Twice(t *testing.T) {
	// GIVEN: A submitted budget
	// WHEN: Submitting again
	// THEN: InvalidState
	f := newFixture(t)
	b := f.submitted(t)
	assert.Equal(t, budget.StatusPendingValidation, b.Status)

	_, err := f.engine.Submit(context.Background(), owner, b.ID)
	assertKind(t, budget.KindInvalidState, err)
	var te *budget.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, budget.StatusPendingValidation, te.From)
}

func TestSubmit_OnlyCreator(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)
	_, err := f.engine.Submit(context.Background(), stranger, b.ID)
	assertKind(t, budget.KindUnauthorized, err)
}

func TestValidate_SnapshotsApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.submitted(t)
	f.now = f.now.Add(48 * time.Hour)

	got, err := f.engine.Validate(ctx, reviewer, b.ID)
	require.NoError(t, err)
	assert.Equal(t, budget.StatusValidated, got.Status)
	require.NotNil(t, got.ValidatedBy)
	assert.Equal(t, reviewer.ID, *got.ValidatedBy)
	require.NotNil(t, got.ValidatedAt)
	assert.True(t, got.ValidatedAt.Equal(f.now))
	require.NotNil(t, got.ValidatedAmount)
	assert.True(t, got.ValidatedAmount.Equal(dec("90000")))
	assert.NoError(t, got.CheckInvariants())
}

func TestValidate_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	draft := f.create(t)

	_, err := f.engine.Validate(ctx, owner, draft.ID)
	assertKind(t, budget.KindUnauthorized, err)

	_, err = f.engine.Validate(ctx, reviewer, draft.ID)
	assertKind(t, budget.KindInvalidState, err)

	_, err = f.engine.Validate(ctx, reviewer, "missing")
	assertKind(t, budget.KindNotFound, err)
}

func TestValidated_IsImmutable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.submitted(t)
	b, err := f.engine.Validate(ctx, reviewer, b.ID)
	require.NoError(t, err)

	_, err = f.engine.AddExpenseLine(ctx, owner, b.ID, line(budget.CategoryPBF, "1", "1", "1"))
	assertKind(t, budget.KindConflict, err)

	_, err = f.engine.RemoveExpenseLine(ctx, owner, b.ID, b.Lines[0].ID)
	assertKind(t, budget.KindConflict, err)

	_, err = f.engine.Reject(ctx, reviewer, b.ID, "late")
	assertKind(t, budget.KindInvalidState, err)

	assertKind(t, budget.KindConflict, f.engine.Delete(ctx, admin, b.ID))
}

func TestReject_AppendsReason(t *testing.T) {
	f := newFixture(t)
	b := f.submitted(t)

	got, err := f.engine.Reject(context.Background(), reviewer, b.ID, "Missing receipts")
	require.NoError(t, err)
	assert.Equal(t, budget.StatusRejected, got.Status)
	assert.Equal(t, "Q1 plan\nRejection reason: Missing receipts", got.Description)
}

func TestReject_EmptyReasonKeepsDescription(t *testing.T) {
	f := newFixture(t)
	b := f.submitted(t)

	got, err := f.engine.Reject(context.Background(), reviewer, b.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "Q1 plan", got.Description)
}

func TestRejected_EditReopensThenResubmit(t *testing.T) {
	// GIVEN: A rejected budget
	// WHEN: Submitting directly, then editing and submitting
	// THEN: The direct submit fails, the edit reopens it as DRAFT
	f := newFixture(t)
	ctx := context.Background()
	b := f.submitted(t)
	_, err := f.engine.Reject(ctx, reviewer, b.ID, "Fix fuel")
	require.NoError(t, err)

	_, err = f.engine.Submit(ctx, owner, b.ID)
	assertKind(t, budget.KindInvalidState, err)

	got, err := f.engine.RemoveExpenseLine(ctx, owner, b.ID, b.Lines[0].ID)
	require.NoError(t, err)
	assert.Equal(t, budget.StatusDraft, got.Status)

	got, err = f.engine.Submit(ctx, owner, b.ID)
	require.NoError(t, err)
	assert.Equal(t, budget.StatusPendingValidation, got.Status)
}

// =============================================================================
// DELETE TESTS
// =============================================================================

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.submitted(t)

	assertKind(t, budget.KindUnauthorized, f.engine.Delete(ctx, owner, b.ID))
	assertKind(t, budget.KindNotFound, f.engine.Delete(ctx, admin, "missing"))

	require.NoError(t, f.engine.Delete(ctx, admin, b.ID))
	_, err := f.engine.Get(ctx, b.ID)
	assertKind(t, budget.KindNotFound, err)
}

// =============================================================================
// READ TESTS
// =============================================================================

func TestList_Filters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t)
	f.submitted(t)

	all, err := f.engine.List(ctx, budget.BudgetFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "BUD-2025-041-002", all[0].Code)

	pending, err := f.engine.List(ctx, budget.BudgetFilter{Status: budget.StatusPendingValidation})
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	none, err := f.engine.List(ctx, budget.BudgetFilter{FiscalYear: 2024})
	require.NoError(t, err)
	assert.Empty(t, none)

	mine, err := f.engine.List(ctx, budget.BudgetFilter{CreatedBy: owner.ID, CenterID: "center-1"})
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

func TestSummary_Breakdown(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)

	s, err := f.engine.Summary(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Code, s.Code)
	assert.True(t, s.TotalRevenue.Equal(dec("150000")))
	assert.True(t, s.TotalExpense.Equal(dec("90000")))
	assert.True(t, s.Coverage.OK)

	require.Len(t, s.Categories, 2)
	pbf := s.Categories[0]
	assert.Equal(t, budget.CategoryPBF, pbf.Category)
	assert.True(t, pbf.Balance.Equal(dec("10000")))
	assert.True(t, pbf.Covered)
}

func TestPreview_ReportsWithoutFailing(t *testing.T) {
	f := newFixture(t)

	totals, err := f.engine.Preview(
		[]budget.RevenueSource{revenue(budget.FundingOwnResources, "10000")},
		[]budget.ExpenseLine{line(budget.CategoryOwnResources, "2", "1", "6000")},
	)
	require.NoError(t, err)
	assert.False(t, totals.Coverage.OK)
	require.Len(t, totals.Categories, 1)
	assert.False(t, totals.Categories[0].Covered)
	assert.True(t, totals.Categories[0].Balance.Equal(dec("-2000")))

	_, err = f.engine.Preview(nil, []budget.ExpenseLine{line("NOPE", "1", "1", "1")})
	assertKind(t, budget.KindInvalidContent, err)
}
