package budget

import (
	"context"

	"github.com/shopspring/decimal"
)

// CategoryCoverage is one row of the per-category breakdown.
type CategoryCoverage struct {
	Category FinancingCategory
	Expense  decimal.Decimal
	Revenue  decimal.Decimal
	Balance  decimal.Decimal // Revenue - Expense
	Covered  bool
}

// Totals is the computed money picture of a revenue/expense pair.
type Totals struct {
	TotalRevenue      decimal.Decimal
	TotalExpense      decimal.Decimal
	RevenueByType     map[FundingType]decimal.Decimal
	ExpenseByCategory map[FinancingCategory]decimal.Decimal
	Categories        []CategoryCoverage
	Coverage          CoverageResult
}

// Summary is the read-only preview of a stored budget.
type Summary struct {
	BudgetID      string
	Code          string
	Name          string
	FiscalYear    int
	Status        Status
	CenterID      string
	DeclaredTotal decimal.Decimal
	Totals
}

// Summary reports totals, breakdowns and coverage for a stored budget.
// A coverage failure is part of the result, not an error.
func (e *Engine) Summary(ctx context.Context, budgetID string) (*Summary, error) {
	b, err := e.Get(ctx, budgetID)
	if err != nil {
		return nil, err
	}
	return &Summary{
		BudgetID:      b.ID,
		Code:          b.Code,
		Name:          b.Name,
		FiscalYear:    b.FiscalYear,
		Status:        b.Status,
		CenterID:      b.CenterID,
		DeclaredTotal: b.DeclaredTotal,
		Totals:        e.totals(b.Revenue, b.Lines),
	}, nil
}

// Preview computes the same picture for an unsaved payload.
func (e *Engine) Preview(sources []RevenueSource, lines []ExpenseLine) (*Totals, error) {
	if err := validateSources(sources); err != nil {
		return nil, err
	}
	if err := validateLines(lines); err != nil {
		return nil, err
	}
	t := e.totals(sources, lines)
	return &t, nil
}

func (e *Engine) totals(sources []RevenueSource, lines []ExpenseLine) Totals {
	byType := AggregateRevenueByType(sources)
	byCategory := AggregateExpenseByCategory(lines)
	pools := e.Coverage.Mapping.RevenueByCategory(byType)

	var rows []CategoryCoverage
	for _, c := range AllCategories {
		expense, hasExpense := byCategory[c]
		revenue, hasRevenue := pools[c]
		if !hasExpense && !hasRevenue {
			continue
		}
		rows = append(rows, CategoryCoverage{
			Category: c,
			Expense:  expense,
			Revenue:  revenue,
			Balance:  revenue.Sub(expense),
			Covered:  !expense.GreaterThan(revenue),
		})
	}

	return Totals{
		TotalRevenue:      TotalRevenue(sources),
		TotalExpense:      TotalExpense(lines),
		RevenueByType:     byType,
		ExpenseByCategory: byCategory,
		Categories:        rows,
		Coverage:          e.Coverage.Check(byType, byCategory),
	}
}
