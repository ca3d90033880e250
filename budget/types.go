/*
Package budget provides the annual budget (PAA) lifecycle and coverage engine.

PURPOSE:
  A health center declares, once per fiscal year, where its money comes from
  (revenue sources, by funding type) and what it plans to spend it on (expense
  lines, by activity and financing category). This package computes the
  derived totals, checks that every financing category is covered by its
  matching revenue, mints human-readable budget codes, and drives the budget
  through its approval workflow.

KEY CONCEPTS IN THIS FILE (types.go):
  - Budget: The aggregate root, sole writer of its two child collections
  - RevenueSource: Declared incoming money, replaced wholesale
  - ExpenseLine: Planned spending; amount is always derived
  - Actor: Who is calling, and with which roles

DESIGN PRINCIPLES:
  1. Precision: Every amount is a decimal.Decimal, never a float
  2. Derived fields are stored: ComputedAmount and DeclaredTotal are
     recomputed on every write, never accepted from callers
  3. Approval fields (ValidatedBy/At/Amount) exist only on VALIDATED budgets

SEE ALSO:
  - money.go: Totals and per-bucket aggregation
  - coverage.go: Funding type to financing category coverage check
  - engine.go: State machine and authorization
*/
package budget

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ENUMS
// =============================================================================

type Status string

const (
	StatusDraft             Status = "DRAFT"
	StatusPendingValidation Status = "PENDING_VALIDATION"
	StatusValidated         Status = "VALIDATED"
	StatusRejected          Status = "REJECTED"
	StatusArchived          Status = "ARCHIVED" // administrative only, never reached by the engine
)

// Editable reports whether the budget content may still change.
func (s Status) Editable() bool {
	return s != StatusValidated && s != StatusArchived
}

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPendingValidation, StatusValidated, StatusRejected, StatusArchived:
		return true
	}
	return false
}

type Kind string

const (
	KindOperating      Kind = "OPERATING"
	KindCapital        Kind = "CAPITAL"
	KindHumanResources Kind = "HUMAN_RESOURCES"
	KindEquipment      Kind = "EQUIPMENT"
	KindMaintenance    Kind = "MAINTENANCE"
	KindTraining       Kind = "TRAINING"
)

func (k Kind) Valid() bool {
	switch k {
	case KindOperating, KindCapital, KindHumanResources, KindEquipment, KindMaintenance, KindTraining:
		return true
	}
	return false
}

// FundingType classifies where declared revenue comes from.
type FundingType string

const (
	FundingStateBudget             FundingType = "STATE_BUDGET"
	FundingOwnResources            FundingType = "OWN_RESOURCES"
	FundingTechnicalPartner        FundingType = "TECHNICAL_PARTNER"
	FundingDonations               FundingType = "DONATIONS"
	FundingPerformanceBased        FundingType = "PERFORMANCE_BASED_FINANCING"
	FundingUniversalHealthCoverage FundingType = "UNIVERSAL_HEALTH_COVERAGE"
	FundingBankBalance             FundingType = "BANK_BALANCE"
	FundingReceivableReimbursement FundingType = "RECEIVABLE_REIMBURSEMENT"
)

var allFundingTypes = []FundingType{
	FundingStateBudget,
	FundingOwnResources,
	FundingTechnicalPartner,
	FundingDonations,
	FundingPerformanceBased,
	FundingUniversalHealthCoverage,
	FundingBankBalance,
	FundingReceivableReimbursement,
}

func (f FundingType) Valid() bool {
	for _, v := range allFundingTypes {
		if v == f {
			return true
		}
	}
	return false
}

// FinancingCategory is the bucket an expense line draws against.
type FinancingCategory string

const (
	CategoryPBF          FinancingCategory = "PBF"
	CategoryUHC          FinancingCategory = "UHC"
	CategoryOwnResources FinancingCategory = "OWN_RESOURCES_SHORT"
	CategoryStateBudget  FinancingCategory = "STATE_BUDGET_SHORT"
	CategoryOther        FinancingCategory = "OTHER"
)

// AllCategories lists financing categories in reporting order.
var AllCategories = []FinancingCategory{
	CategoryPBF,
	CategoryUHC,
	CategoryOwnResources,
	CategoryStateBudget,
	CategoryOther,
}

func (c FinancingCategory) Valid() bool {
	for _, v := range AllCategories {
		if v == c {
			return true
		}
	}
	return false
}

// =============================================================================
// AGGREGATE
// =============================================================================

type Budget struct {
	ID          string
	Code        string
	Name        string
	Description string
	FiscalYear  int
	Kind        Kind
	Status      Status
	CenterID    string
	CreatedBy   string

	// Approval snapshot, set only when Status == VALIDATED
	ValidatedBy     *string
	ValidatedAt     *time.Time
	ValidatedAmount *decimal.Decimal

	// Total of expense lines at last computation
	DeclaredTotal decimal.Decimal

	// Optimistic concurrency counter, bumped on every write
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time

	Revenue []RevenueSource
	Lines   []ExpenseLine
}

// CheckInvariants verifies that the approval fields agree with Status.
func (b *Budget) CheckInvariants() error {
	approved := b.ValidatedBy != nil || b.ValidatedAt != nil || b.ValidatedAmount != nil
	complete := b.ValidatedBy != nil && b.ValidatedAt != nil && b.ValidatedAmount != nil

	if b.Status == StatusValidated && !complete {
		return fmt.Errorf("budget %s: validated without approval snapshot", b.ID)
	}
	if b.Status != StatusValidated && approved {
		return fmt.Errorf("budget %s: approval snapshot present in status %s", b.ID, b.Status)
	}
	return nil
}

type RevenueSource struct {
	ID          string
	BudgetID    string
	FundingType FundingType
	Nature      string
	Amount      decimal.Decimal
}

type ExpenseLine struct {
	ID                string
	BudgetID          string
	KeyActivity       string
	MeansType         string
	Quantity          decimal.Decimal
	Frequency         decimal.Decimal
	UnitCost          decimal.Decimal
	ComputedAmount    decimal.Decimal
	NomenclatureCode  string
	NomenclatureLabel string
	FinancingCategory FinancingCategory
}

// Header carries the scalar fields supplied on create.
type Header struct {
	Name        string
	Description string
	FiscalYear  int
	Kind        Kind
}

// HeaderPatch carries the optional scalar fields supplied on update.
type HeaderPatch struct {
	Name        *string
	Description *string
	FiscalYear  *int
	Kind        *Kind
}

func (p *HeaderPatch) apply(b *Budget) {
	if p == nil {
		return
	}
	if p.Name != nil {
		b.Name = *p.Name
	}
	if p.Description != nil {
		b.Description = *p.Description
	}
	if p.FiscalYear != nil {
		b.FiscalYear = *p.FiscalYear
	}
	if p.Kind != nil {
		b.Kind = *p.Kind
	}
}

// =============================================================================
// ACTORS
// =============================================================================

type Role string

const (
	RoleCenterOwner Role = "CENTER_OWNER" // chef de centre: create, edit, submit
	RoleReviewer    Role = "REVIEWER"     // régisseur: validate, reject
	RoleAdmin       Role = "ADMIN"        // maintenance, deletion
)

// Actor is the authenticated caller, resolved by the transport layer.
type Actor struct {
	ID    string
	Roles []Role
}

func (a Actor) Has(role Role) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Center is the slice of the organizational directory the engine reads.
type Center struct {
	ID        string
	Code      string
	Name      string
	CreatedAt time.Time
}
