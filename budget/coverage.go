/*
coverage.go - Per-category financial coverage check

PURPOSE:
  Money declared as going out of a financing category must not exceed the
  money declared as coming into it. Revenue is declared by funding type, so a
  lookup table first folds funding types into financing categories.

FUNDING MAPPING:
  STATE_BUDGET                 -> STATE_BUDGET_SHORT
  OWN_RESOURCES                -> OWN_RESOURCES_SHORT
  TECHNICAL_PARTNER            -> OTHER
  DONATIONS                    -> OTHER
  PERFORMANCE_BASED_FINANCING  -> PBF
  UNIVERSAL_HEALTH_COVERAGE    -> UHC
  BANK_BALANCE                 -> (none)
  RECEIVABLE_REIMBURSEMENT     -> (none)

  A funding type with no entry still feeds the category whose name equals its
  own value, if any. BANK_BALANCE and RECEIVABLE_REIMBURSEMENT match nothing
  and therefore fund no category.

TWO ENTRY POINTS:
  Check:          preview, never fails, returns diagnostics
  ValidateOrFail: write paths, returns *CoverageError on any violation
*/
package budget

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FundingMapping folds funding types into financing categories.
type FundingMapping map[FundingType]FinancingCategory

// DefaultFundingMapping returns the production table.
//
// BANK_BALANCE and RECEIVABLE_REIMBURSEMENT are left unmapped: money declared
// under them is not counted toward any category. This may be a gap rather
// than intent; change the table, not the checker, if that is decided.
func DefaultFundingMapping() FundingMapping {
	return FundingMapping{
		FundingStateBudget:             CategoryStateBudget,
		FundingOwnResources:            CategoryOwnResources,
		FundingTechnicalPartner:        CategoryOther,
		FundingDonations:               CategoryOther,
		FundingPerformanceBased:        CategoryPBF,
		FundingUniversalHealthCoverage: CategoryUHC,
	}
}

// categoryFor resolves the category a funding type pays into.
func (m FundingMapping) categoryFor(ft FundingType) (FinancingCategory, bool) {
	if c, ok := m[ft]; ok {
		return c, true
	}
	if c := FinancingCategory(ft); c.Valid() {
		return c, true
	}
	return "", false
}

// RevenueByCategory folds per-type revenue into per-category pools.
func (m FundingMapping) RevenueByCategory(revenueByType map[FundingType]decimal.Decimal) map[FinancingCategory]decimal.Decimal {
	out := make(map[FinancingCategory]decimal.Decimal)
	for ft, amount := range revenueByType {
		if c, ok := m.categoryFor(ft); ok {
			out[c] = out[c].Add(amount)
		}
	}
	return out
}

// Violation is one over-spent financing category.
type Violation struct {
	Category FinancingCategory
	Expense  decimal.Decimal
	Revenue  decimal.Decimal
}

func (v Violation) Shortfall() decimal.Decimal {
	return v.Expense.Sub(v.Revenue)
}

func (v Violation) String() string {
	return fmt.Sprintf("%s expense %s exceeds revenue %s", v.Category, v.Expense.String(), v.Revenue.String())
}

type CoverageResult struct {
	OK         bool
	Violations []Violation
}

// Messages renders one diagnostic line per violation.
func (r CoverageResult) Messages() []string {
	msgs := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		msgs[i] = v.String()
	}
	return msgs
}

type CoverageValidator struct {
	Mapping FundingMapping
}

func NewCoverageValidator(mapping FundingMapping) *CoverageValidator {
	if mapping == nil {
		mapping = DefaultFundingMapping()
	}
	return &CoverageValidator{Mapping: mapping}
}

// Check compares expense to mapped revenue for every category with expense.
// Violations are reported in AllCategories order.
func (cv *CoverageValidator) Check(
	revenueByType map[FundingType]decimal.Decimal,
	expenseByCategory map[FinancingCategory]decimal.Decimal,
) CoverageResult {
	pools := cv.Mapping.RevenueByCategory(revenueByType)

	var violations []Violation
	for _, c := range orderedCategories(expenseByCategory) {
		expense := expenseByCategory[c]
		if expense.IsZero() {
			continue
		}
		revenue := pools[c]
		if expense.GreaterThan(revenue) {
			violations = append(violations, Violation{Category: c, Expense: expense, Revenue: revenue})
		}
	}

	return CoverageResult{OK: len(violations) == 0, Violations: violations}
}

// CheckCollections aggregates and checks in one call.
func (cv *CoverageValidator) CheckCollections(sources []RevenueSource, lines []ExpenseLine) CoverageResult {
	return cv.Check(AggregateRevenueByType(sources), AggregateExpenseByCategory(lines))
}

// ValidateOrFail returns a *CoverageError naming every violation.
func (cv *CoverageValidator) ValidateOrFail(sources []RevenueSource, lines []ExpenseLine) error {
	res := cv.CheckCollections(sources, lines)
	if res.OK {
		return nil
	}
	return &CoverageError{Violations: res.Violations}
}

// orderedCategories returns known categories first, then any unknown keys.
func orderedCategories(m map[FinancingCategory]decimal.Decimal) []FinancingCategory {
	out := make([]FinancingCategory, 0, len(m))
	for _, c := range AllCategories {
		if _, ok := m[c]; ok {
			out = append(out, c)
		}
	}
	for c := range m {
		if !c.Valid() {
			out = append(out, c)
		}
	}
	return out
}
