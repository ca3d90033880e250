/*
engine.go - Budget lifecycle: creation, editing and approval

PURPOSE:
  Orchestrates every state-changing operation on a Budget. Each operation
  loads, checks, recomputes and writes inside one store transaction, then
  notifies the activity template side channel after the commit.

STATE MACHINE:
  ┌───────┐  Submit   ┌────────────────────┐  Validate  ┌───────────┐
  │ DRAFT │ ────────▶ │ PENDING_VALIDATION │ ─────────▶ │ VALIDATED │
  └───────┘           └────────────────────┘            └───────────┘
      ▲                        │ Reject
      │ Update/AddLine/        ▼
      │ RemoveLine       ┌──────────┐
      └───────────────── │ REJECTED │
                         └──────────┘

  ARCHIVED exists for administrative tooling and is never entered here.
  Editing a REJECTED budget reopens it as DRAFT, from where it can be
  submitted again.

AUTHORIZATION:
  Create:            CENTER_OWNER or ADMIN
  Update/Submit/...: the budget's creator
  Validate/Reject:   REVIEWER
  Delete:            ADMIN

COVERAGE:
  Create, Update (when a collection changes), AddExpenseLine and Submit run
  ValidateOrFail before writing. Validate re-checks against stored lines.
  Summary and Preview report coverage without failing.

CODE MINTING:
  Read the highest sequence under the code prefix, format, insert. Gaps
  left by deleted budgets are never refilled, so they cannot collide. The
  unique index on code turns a concurrent insert into ErrDuplicateCode;
  Create rereads and tries again, at most MintAttempts times.

EXAMPLE:
  engine := budget.NewEngine(store, store, store)
  b, err := engine.Create(ctx, owner, "center-1", header, sources, lines)
  b, err = engine.Submit(ctx, owner, b.ID)
  b, err = engine.Validate(ctx, reviewer, b.ID)
*/
package budget

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/paa-engine/log"
)

const rejectionPrefix = "Rejection reason: "

type Engine struct {
	Store     TxStore
	Centers   CenterDirectory
	Templates TemplateStore
	Coverage  *CoverageValidator

	// Usage is notified after successful writes of expense lines. Nil disables it.
	Usage UsageRecorder

	Logger       *log.Logger
	Now          func() time.Time
	MintAttempts int
}

// NewEngine wires an engine with the default coverage table and a
// DirectRecorder over templates.
func NewEngine(store TxStore, centers CenterDirectory, templates TemplateStore) *Engine {
	e := &Engine{
		Store:        store,
		Centers:      centers,
		Templates:    templates,
		Coverage:     NewCoverageValidator(nil),
		Logger:       log.New(log.DefaultConfig()).WithComponent(log.ComponentEngine),
		Now:          time.Now,
		MintAttempts: DefaultMintAttempts,
	}
	if templates != nil {
		e.Usage = &DirectRecorder{Templates: templates}
	}
	return e
}

// =============================================================================
// CREATE
// =============================================================================

func (e *Engine) Create(
	ctx context.Context,
	actor Actor,
	centerID string,
	header Header,
	sources []RevenueSource,
	lines []ExpenseLine,
) (*Budget, error) {
	if !actor.Has(RoleCenterOwner) && !actor.Has(RoleAdmin) {
		return nil, unauthorized("actor %s may not create budgets", actor.ID)
	}
	if err := validateHeader(header); err != nil {
		return nil, err
	}
	if err := validateSources(sources); err != nil {
		return nil, err
	}
	if err := validateLines(lines); err != nil {
		return nil, err
	}
	if err := e.Coverage.ValidateOrFail(sources, lines); err != nil {
		return nil, err
	}

	center, err := e.Centers.GetCenter(ctx, centerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load center: %w", err)
	}
	if center == nil {
		return nil, notFound("center", centerID)
	}

	now := e.Now().UTC()
	b := &Budget{
		ID:            uuid.NewString(),
		Name:          strings.TrimSpace(header.Name),
		Description:   header.Description,
		FiscalYear:    header.FiscalYear,
		Kind:          header.Kind,
		Status:        StatusDraft,
		CenterID:      center.ID,
		CreatedBy:     actor.ID,
		DeclaredTotal: TotalExpense(lines),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	b.Revenue = prepareSources(b.ID, sources)
	b.Lines = prepareLines(b.ID, lines)

	attempts := e.MintAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		err = e.Store.WithTx(ctx, func(tx Store) error {
			highest, err := tx.MaxCodeSequence(ctx, CodePrefix(b.FiscalYear, center.Code))
			if err != nil {
				return fmt.Errorf("failed to read code sequence: %w", err)
			}
			b.Code = MintCode(b.FiscalYear, highest, center.Code)

			if err := tx.CreateBudget(ctx, b); err != nil {
				return err
			}
			if err := tx.ReplaceRevenue(ctx, b.ID, b.Revenue); err != nil {
				return fmt.Errorf("failed to store revenue: %w", err)
			}
			if err := tx.ReplaceExpenseLines(ctx, b.ID, b.Lines); err != nil {
				return fmt.Errorf("failed to store expense lines: %w", err)
			}
			return nil
		})
		if !errors.Is(err, ErrDuplicateCode) {
			break
		}
		e.Logger.WarnContext(ctx, "Budget code collision, retrying",
			log.FieldBudgetCode, b.Code,
			log.FieldAttempt, attempt+1)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create budget: %w", err)
	}

	e.Logger.InfoContext(ctx, "Budget created",
		log.FieldOperation, log.OpCreate,
		log.FieldBudgetID, b.ID,
		log.FieldBudgetCode, b.Code,
		log.FieldCenterID, b.CenterID,
		log.FieldActor, actor.ID)

	e.recordUsage(ctx, b, b.Lines)
	return b, nil
}

// =============================================================================
// EDITING
// =============================================================================

// UpdateInput carries an update. A nil slice leaves that collection as
// stored; a non-nil slice (even empty) replaces it wholesale.
type UpdateInput struct {
	Header  *HeaderPatch
	Revenue []RevenueSource
	Lines   []ExpenseLine
}

func (e *Engine) Update(ctx context.Context, actor Actor, budgetID string, in UpdateInput) (*Budget, error) {
	var updated *Budget
	err := e.Store.WithTx(ctx, func(tx Store) error {
		b, err := e.loadEditable(ctx, tx, actor, budgetID)
		if err != nil {
			return err
		}

		in.Header.apply(b)
		if err := validateHeader(Header{Name: b.Name, FiscalYear: b.FiscalYear, Kind: b.Kind}); err != nil {
			return err
		}
		b.Name = strings.TrimSpace(b.Name)

		if in.Revenue != nil || in.Lines != nil {
			sources, lines := b.Revenue, b.Lines
			if in.Revenue != nil {
				if err := validateSources(in.Revenue); err != nil {
					return err
				}
				sources = prepareSources(b.ID, in.Revenue)
			}
			if in.Lines != nil {
				if err := validateLines(in.Lines); err != nil {
					return err
				}
				lines = prepareLines(b.ID, in.Lines)
			}

			if err := e.Coverage.ValidateOrFail(sources, lines); err != nil {
				return err
			}

			if in.Revenue != nil {
				if err := tx.ReplaceRevenue(ctx, b.ID, sources); err != nil {
					return fmt.Errorf("failed to replace revenue: %w", err)
				}
			}
			if in.Lines != nil {
				if err := tx.ReplaceExpenseLines(ctx, b.ID, lines); err != nil {
					return fmt.Errorf("failed to replace expense lines: %w", err)
				}
			}
			b.Revenue, b.Lines = sources, lines
			b.DeclaredTotal = TotalExpense(lines)
		}

		if err := e.save(ctx, tx, b); err != nil {
			return err
		}
		updated = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.Logger.InfoContext(ctx, "Budget updated",
		log.FieldOperation, log.OpUpdate,
		log.FieldBudgetID, updated.ID,
		log.FieldActor, actor.ID)

	if in.Lines != nil {
		e.recordUsage(ctx, updated, updated.Lines)
	}
	return updated, nil
}

// AddExpenseLine appends one line to a budget's existing set.
func (e *Engine) AddExpenseLine(ctx context.Context, actor Actor, budgetID string, line ExpenseLine) (*Budget, error) {
	if err := validateLines([]ExpenseLine{line}); err != nil {
		return nil, err
	}

	var updated *Budget
	var added ExpenseLine
	err := e.Store.WithTx(ctx, func(tx Store) error {
		b, err := e.loadEditable(ctx, tx, actor, budgetID)
		if err != nil {
			return err
		}

		added = prepareLines(b.ID, []ExpenseLine{line})[0]
		lines := append(append([]ExpenseLine{}, b.Lines...), added)
		if err := e.Coverage.ValidateOrFail(b.Revenue, lines); err != nil {
			return err
		}

		if err := tx.AddExpenseLine(ctx, added); err != nil {
			return fmt.Errorf("failed to add expense line: %w", err)
		}
		b.Lines = lines
		b.DeclaredTotal = TotalExpense(lines)

		if err := e.save(ctx, tx, b); err != nil {
			return err
		}
		updated = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.recordUsage(ctx, updated, []ExpenseLine{added})
	return updated, nil
}

// RemoveExpenseLine deletes one line. Removal only lowers expense, so no
// coverage check is needed.
func (e *Engine) RemoveExpenseLine(ctx context.Context, actor Actor, budgetID, lineID string) (*Budget, error) {
	var updated *Budget
	err := e.Store.WithTx(ctx, func(tx Store) error {
		b, err := e.loadEditable(ctx, tx, actor, budgetID)
		if err != nil {
			return err
		}

		lines := make([]ExpenseLine, 0, len(b.Lines))
		for _, l := range b.Lines {
			if l.ID != lineID {
				lines = append(lines, l)
			}
		}
		if len(lines) == len(b.Lines) {
			return notFound("expense line", lineID)
		}

		if err := tx.DeleteExpenseLine(ctx, b.ID, lineID); err != nil {
			return fmt.Errorf("failed to delete expense line: %w", err)
		}
		b.Lines = lines
		b.DeclaredTotal = TotalExpense(lines)

		if err := e.save(ctx, tx, b); err != nil {
			return err
		}
		updated = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// loadEditable applies the shared editing preconditions, in order:
// existence, ownership, mutability.
func (e *Engine) loadEditable(ctx context.Context, tx Store, actor Actor, budgetID string) (*Budget, error) {
	b, err := e.load(ctx, tx, budgetID)
	if err != nil {
		return nil, err
	}
	if b.CreatedBy != actor.ID {
		return nil, unauthorized("actor %s is not the creator of budget %s", actor.ID, b.ID)
	}
	if !b.Status.Editable() {
		return nil, immutable(b)
	}
	if b.Status == StatusRejected {
		b.Status = StatusDraft
	}
	return b, nil
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Submit sends a DRAFT budget for review after re-checking stored content.
func (e *Engine) Submit(ctx context.Context, actor Actor, budgetID string) (*Budget, error) {
	return e.transition(ctx, actor, budgetID, log.OpSubmit, func(b *Budget) error {
		if b.CreatedBy != actor.ID {
			return unauthorized("actor %s is not the creator of budget %s", actor.ID, b.ID)
		}
		if b.Status != StatusDraft {
			return &TransitionError{BudgetID: b.ID, From: b.Status, Action: "submit"}
		}
		if err := e.Coverage.ValidateOrFail(b.Revenue, b.Lines); err != nil {
			return err
		}
		b.Status = StatusPendingValidation
		return nil
	})
}

// Validate approves a pending budget and snapshots its declared total.
func (e *Engine) Validate(ctx context.Context, actor Actor, budgetID string) (*Budget, error) {
	if !actor.Has(RoleReviewer) {
		return nil, unauthorized("actor %s may not validate budgets", actor.ID)
	}
	return e.transition(ctx, actor, budgetID, log.OpValidate, func(b *Budget) error {
		if b.Status != StatusPendingValidation {
			return &TransitionError{BudgetID: b.ID, From: b.Status, Action: "validate"}
		}
		if err := e.Coverage.ValidateOrFail(b.Revenue, b.Lines); err != nil {
			return err
		}

		at := e.Now().UTC()
		by := actor.ID
		amount := b.DeclaredTotal
		b.Status = StatusValidated
		b.ValidatedBy = &by
		b.ValidatedAt = &at
		b.ValidatedAmount = &amount
		return nil
	})
}

// Reject returns a pending budget to its owner. A non-empty reason is
// appended to the description on its own line.
func (e *Engine) Reject(ctx context.Context, actor Actor, budgetID, reason string) (*Budget, error) {
	if !actor.Has(RoleReviewer) {
		return nil, unauthorized("actor %s may not reject budgets", actor.ID)
	}
	return e.transition(ctx, actor, budgetID, log.OpReject, func(b *Budget) error {
		if b.Status != StatusPendingValidation {
			return &TransitionError{BudgetID: b.ID, From: b.Status, Action: "reject"}
		}
		b.Status = StatusRejected
		b.Description = appendRejection(b.Description, reason)
		return nil
	})
}

func (e *Engine) transition(
	ctx context.Context,
	actor Actor,
	budgetID string,
	op string,
	apply func(b *Budget) error,
) (*Budget, error) {
	var updated *Budget
	err := e.Store.WithTx(ctx, func(tx Store) error {
		b, err := e.load(ctx, tx, budgetID)
		if err != nil {
			return err
		}
		if err := apply(b); err != nil {
			return err
		}
		if err := e.save(ctx, tx, b); err != nil {
			return err
		}
		updated = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.Logger.InfoContext(ctx, "Budget status changed",
		log.FieldOperation, op,
		log.FieldBudgetID, updated.ID,
		log.FieldStatus, string(updated.Status),
		log.FieldActor, actor.ID)
	return updated, nil
}

func appendRejection(description, reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return description
	}
	if description == "" {
		return rejectionPrefix + reason
	}
	return description + "\n" + rejectionPrefix + reason
}

// =============================================================================
// DELETE
// =============================================================================

// Delete removes a budget that has not been approved or archived.
func (e *Engine) Delete(ctx context.Context, actor Actor, budgetID string) error {
	if !actor.Has(RoleAdmin) {
		return unauthorized("actor %s may not delete budgets", actor.ID)
	}
	err := e.Store.WithTx(ctx, func(tx Store) error {
		b, err := e.load(ctx, tx, budgetID)
		if err != nil {
			return err
		}
		if !b.Status.Editable() {
			return immutable(b)
		}
		return tx.DeleteBudget(ctx, b.ID)
	})
	if err != nil {
		return err
	}

	e.Logger.InfoContext(ctx, "Budget deleted",
		log.FieldOperation, log.OpDelete,
		log.FieldBudgetID, budgetID,
		log.FieldActor, actor.ID)
	return nil
}

// =============================================================================
// READS
// =============================================================================

func (e *Engine) Get(ctx context.Context, budgetID string) (*Budget, error) {
	return e.load(ctx, e.Store, budgetID)
}

func (e *Engine) List(ctx context.Context, filter BudgetFilter) ([]Budget, error) {
	budgets, err := e.Store.ListBudgets(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list budgets: %w", err)
	}
	return budgets, nil
}

// Suggest returns the center's most used activity templates matching query.
func (e *Engine) Suggest(ctx context.Context, centerID, query string) ([]ActivityTemplate, error) {
	if e.Templates == nil {
		return nil, nil
	}
	return e.Templates.Suggest(ctx, centerID, strings.TrimSpace(query), SuggestLimit)
}

// =============================================================================
// HELPERS
// =============================================================================

func (e *Engine) load(ctx context.Context, s Store, budgetID string) (*Budget, error) {
	b, err := s.GetBudget(ctx, budgetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load budget: %w", err)
	}
	if b == nil {
		return nil, notFound("budget", budgetID)
	}
	return b, nil
}

func (e *Engine) save(ctx context.Context, tx Store, b *Budget) error {
	b.UpdatedAt = e.Now().UTC()
	if err := b.CheckInvariants(); err != nil {
		return err
	}
	if err := tx.UpdateBudget(ctx, b); err != nil {
		if errors.Is(err, ErrConcurrentModification) {
			return fmt.Errorf("budget %s: %w", b.ID, err)
		}
		return fmt.Errorf("failed to save budget: %w", err)
	}
	return nil
}

// recordUsage runs after commit. Failures are logged, never returned.
func (e *Engine) recordUsage(ctx context.Context, b *Budget, lines []ExpenseLine) {
	if e.Usage == nil || len(lines) == 0 {
		return
	}
	if err := e.Usage.RecordUsage(ctx, b.CenterID, lines); err != nil {
		e.Logger.WarnContext(ctx, "Failed to record activity template usage",
			log.FieldOperation, log.OpRecord,
			log.FieldBudgetID, b.ID,
			log.FieldCenterID, b.CenterID,
			log.FieldLines, len(lines),
			log.FieldError, err)
	}
}

func prepareSources(budgetID string, sources []RevenueSource) []RevenueSource {
	out := make([]RevenueSource, len(sources))
	for i, s := range sources {
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		s.BudgetID = budgetID
		out[i] = s
	}
	return out
}

func prepareLines(budgetID string, lines []ExpenseLine) []ExpenseLine {
	out := withComputedAmounts(lines)
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = uuid.NewString()
		}
		out[i].BudgetID = budgetID
	}
	return out
}

// =============================================================================
// CONTENT VALIDATION
// =============================================================================

const (
	minFiscalYear = 2000
	maxFiscalYear = 2100
)

func validateHeader(h Header) error {
	if strings.TrimSpace(h.Name) == "" {
		return invalidField("name", "must not be empty")
	}
	if h.FiscalYear < minFiscalYear || h.FiscalYear > maxFiscalYear {
		return invalidField("fiscal_year", "must be between %d and %d, got %d", minFiscalYear, maxFiscalYear, h.FiscalYear)
	}
	if !h.Kind.Valid() {
		return invalidField("budget_kind", "unknown kind %q", h.Kind)
	}
	return nil
}

func validateSources(sources []RevenueSource) error {
	for i, s := range sources {
		field := fmt.Sprintf("revenue_sources[%d]", i)
		if !s.FundingType.Valid() {
			return invalidField(field+".funding_type", "unknown funding type %q", s.FundingType)
		}
		if s.Amount.IsNegative() {
			return invalidField(field+".amount", "must not be negative, got %s", s.Amount)
		}
	}
	return nil
}

func validateLines(lines []ExpenseLine) error {
	for i, l := range lines {
		field := fmt.Sprintf("expense_lines[%d]", i)
		if strings.TrimSpace(l.KeyActivity) == "" {
			return invalidField(field+".key_activity", "must not be empty")
		}
		if strings.TrimSpace(l.MeansType) == "" {
			return invalidField(field+".means_type", "must not be empty")
		}
		if !l.Quantity.IsPositive() {
			return invalidField(field+".quantity", "must be positive, got %s", l.Quantity)
		}
		if !l.Frequency.IsPositive() {
			return invalidField(field+".frequency", "must be positive, got %s", l.Frequency)
		}
		if l.UnitCost.IsNegative() {
			return invalidField(field+".unit_cost", "must not be negative, got %s", l.UnitCost)
		}
		if !l.FinancingCategory.Valid() {
			return invalidField(field+".financing_category", "unknown category %q", l.FinancingCategory)
		}
	}
	return nil
}

// ParseAmount parses a decimal-as-string field, rejecting non-numeric input.
func ParseAmount(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, invalidField(field, "not a number: %q", s)
	}
	return d, nil
}
