/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the budget domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request / *Input: Request body types from clients

MONEY:
  Amounts, quantities and frequencies travel as JSON strings ("12500.50")
  in both directions. Inputs are parsed with budget.ParseAmount so a
  malformed number is reported against its field.

OPTIONAL COLLECTIONS:
  UpdateBudgetRequest uses pointers to slices. An absent key leaves the
  stored collection alone; "[]" clears it.

VALIDATION:
  Parsing happens here, business validation in the engine.

SEE ALSO:
  - handlers.go: Uses these types
  - budget/types.go: Domain model
*/
package api

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/paa-engine/budget"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

type RevenueSourceInput struct {
	FundingType string `json:"funding_type"`
	Nature      string `json:"nature"`
	Amount      string `json:"amount"`
}

type ExpenseLineInput struct {
	KeyActivity       string `json:"key_activity"`
	MeansType         string `json:"means_type"`
	Quantity          string `json:"quantity"`
	Frequency         string `json:"frequency"`
	UnitCost          string `json:"unit_cost"`
	NomenclatureCode  string `json:"nomenclature_code"`
	NomenclatureLabel string `json:"nomenclature_label"`
	FinancingCategory string `json:"financing_category"`
}

// CreateBudgetRequest is the request to create a budget.
type CreateBudgetRequest struct {
	CenterID       string               `json:"center_id"`
	Name           string               `json:"name"`
	Description    string               `json:"description"`
	FiscalYear     int                  `json:"fiscal_year"`
	BudgetKind     string               `json:"budget_kind"`
	RevenueSources []RevenueSourceInput `json:"revenue_sources"`
	ExpenseLines   []ExpenseLineInput   `json:"expense_lines"`
}

// UpdateBudgetRequest is a partial update; nil fields are left unchanged.
type UpdateBudgetRequest struct {
	Name           *string               `json:"name"`
	Description    *string               `json:"description"`
	FiscalYear     *int                  `json:"fiscal_year"`
	BudgetKind     *string               `json:"budget_kind"`
	RevenueSources *[]RevenueSourceInput `json:"revenue_sources"`
	ExpenseLines   *[]ExpenseLineInput   `json:"expense_lines"`
}

// PreviewRequest is an unsaved revenue/expense payload.
type PreviewRequest struct {
	RevenueSources []RevenueSourceInput `json:"revenue_sources"`
	ExpenseLines   []ExpenseLineInput   `json:"expense_lines"`
}

type RejectBudgetRequest struct {
	Reason string `json:"reason"`
}

type CreateCenterRequest struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type RevenueSourceDTO struct {
	ID          string          `json:"id"`
	FundingType string          `json:"funding_type"`
	Nature      string          `json:"nature"`
	Amount      decimal.Decimal `json:"amount"`
}

type ExpenseLineDTO struct {
	ID                string          `json:"id"`
	KeyActivity       string          `json:"key_activity"`
	MeansType         string          `json:"means_type"`
	Quantity          decimal.Decimal `json:"quantity"`
	Frequency         decimal.Decimal `json:"frequency"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	ComputedAmount    decimal.Decimal `json:"computed_amount"`
	NomenclatureCode  string          `json:"nomenclature_code,omitempty"`
	NomenclatureLabel string          `json:"nomenclature_label,omitempty"`
	FinancingCategory string          `json:"financing_category"`
}

// BudgetDTO represents a budget in API responses. List responses omit the
// collections.
type BudgetDTO struct {
	ID              string             `json:"id"`
	Code            string             `json:"code"`
	Name            string             `json:"name"`
	Description     string             `json:"description"`
	FiscalYear      int                `json:"fiscal_year"`
	BudgetKind      string             `json:"budget_kind"`
	Status          string             `json:"status"`
	CenterID        string             `json:"center_id"`
	CreatedBy       string             `json:"created_by"`
	DeclaredTotal   decimal.Decimal    `json:"declared_total"`
	ValidatedBy     *string            `json:"validated_by,omitempty"`
	ValidatedAt     string             `json:"validated_at,omitempty"`
	ValidatedAmount *decimal.Decimal   `json:"validated_amount,omitempty"`
	Version         int64              `json:"version"`
	CreatedAt       string             `json:"created_at"`
	UpdatedAt       string             `json:"updated_at"`
	RevenueSources  []RevenueSourceDTO `json:"revenue_sources,omitempty"`
	ExpenseLines    []ExpenseLineDTO   `json:"expense_lines,omitempty"`
}

type ViolationDTO struct {
	Category  string          `json:"category"`
	Expense   decimal.Decimal `json:"expense"`
	Revenue   decimal.Decimal `json:"revenue"`
	Shortfall decimal.Decimal `json:"shortfall"`
	Message   string          `json:"message"`
}

type CategoryCoverageDTO struct {
	Category string          `json:"category"`
	Expense  decimal.Decimal `json:"expense"`
	Revenue  decimal.Decimal `json:"revenue"`
	Balance  decimal.Decimal `json:"balance"`
	Covered  bool            `json:"covered"`
}

// TotalsDTO is the money picture shared by summary and preview.
type TotalsDTO struct {
	TotalRevenue      decimal.Decimal            `json:"total_revenue"`
	TotalExpense      decimal.Decimal            `json:"total_expense"`
	RevenueByType     map[string]decimal.Decimal `json:"revenue_by_type"`
	ExpenseByCategory map[string]decimal.Decimal `json:"expense_by_category"`
	Categories        []CategoryCoverageDTO      `json:"categories"`
	CoverageOK        bool                       `json:"coverage_ok"`
	Violations        []ViolationDTO             `json:"violations"`
}

type SummaryDTO struct {
	BudgetID      string          `json:"budget_id"`
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	FiscalYear    int             `json:"fiscal_year"`
	Status        string          `json:"status"`
	CenterID      string          `json:"center_id"`
	DeclaredTotal decimal.Decimal `json:"declared_total"`
	TotalsDTO
}

type TemplateDTO struct {
	KeyActivity       string `json:"key_activity"`
	MeansType         string `json:"means_type"`
	NomenclatureCode  string `json:"nomenclature_code,omitempty"`
	NomenclatureLabel string `json:"nomenclature_label,omitempty"`
	FinancingCategory string `json:"financing_category"`
	UsageCount        int    `json:"usage_count"`
	LastUsedAt        string `json:"last_used_at"`
}

type CenterDTO struct {
	ID        string `json:"id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at,omitempty"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error      string         `json:"error"`
	Kind       string         `json:"kind,omitempty"`
	Details    any            `json:"details,omitempty"`
	Violations []ViolationDTO `json:"violations,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toRevenueSources(inputs []RevenueSourceInput) ([]budget.RevenueSource, error) {
	sources := make([]budget.RevenueSource, len(inputs))
	for i, in := range inputs {
		amount, err := budget.ParseAmount(fmt.Sprintf("revenue_sources[%d].amount", i), in.Amount)
		if err != nil {
			return nil, err
		}
		sources[i] = budget.RevenueSource{
			FundingType: budget.FundingType(in.FundingType),
			Nature:      in.Nature,
			Amount:      amount,
		}
	}
	return sources, nil
}

func toExpenseLine(field string, in ExpenseLineInput) (budget.ExpenseLine, error) {
	line := budget.ExpenseLine{
		KeyActivity:       in.KeyActivity,
		MeansType:         in.MeansType,
		NomenclatureCode:  in.NomenclatureCode,
		NomenclatureLabel: in.NomenclatureLabel,
		FinancingCategory: budget.FinancingCategory(in.FinancingCategory),
	}
	var err error
	if line.Quantity, err = budget.ParseAmount(field+".quantity", in.Quantity); err != nil {
		return line, err
	}
	if line.Frequency, err = budget.ParseAmount(field+".frequency", in.Frequency); err != nil {
		return line, err
	}
	if line.UnitCost, err = budget.ParseAmount(field+".unit_cost", in.UnitCost); err != nil {
		return line, err
	}
	return line, nil
}

func toExpenseLines(inputs []ExpenseLineInput) ([]budget.ExpenseLine, error) {
	lines := make([]budget.ExpenseLine, len(inputs))
	for i, in := range inputs {
		line, err := toExpenseLine(fmt.Sprintf("expense_lines[%d]", i), in)
		if err != nil {
			return nil, err
		}
		lines[i] = line
	}
	return lines, nil
}

func toBudgetDTO(b *budget.Budget) BudgetDTO {
	dto := BudgetDTO{
		ID:              b.ID,
		Code:            b.Code,
		Name:            b.Name,
		Description:     b.Description,
		FiscalYear:      b.FiscalYear,
		BudgetKind:      string(b.Kind),
		Status:          string(b.Status),
		CenterID:        b.CenterID,
		CreatedBy:       b.CreatedBy,
		DeclaredTotal:   b.DeclaredTotal,
		ValidatedBy:     b.ValidatedBy,
		ValidatedAmount: b.ValidatedAmount,
		Version:         b.Version,
		CreatedAt:       b.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       b.UpdatedAt.Format(time.RFC3339),
	}
	if b.ValidatedAt != nil {
		dto.ValidatedAt = b.ValidatedAt.Format(time.RFC3339)
	}
	for _, s := range b.Revenue {
		dto.RevenueSources = append(dto.RevenueSources, RevenueSourceDTO{
			ID:          s.ID,
			FundingType: string(s.FundingType),
			Nature:      s.Nature,
			Amount:      s.Amount,
		})
	}
	for _, l := range b.Lines {
		dto.ExpenseLines = append(dto.ExpenseLines, ExpenseLineDTO{
			ID:                l.ID,
			KeyActivity:       l.KeyActivity,
			MeansType:         l.MeansType,
			Quantity:          l.Quantity,
			Frequency:         l.Frequency,
			UnitCost:          l.UnitCost,
			ComputedAmount:    l.Amount(),
			NomenclatureCode:  l.NomenclatureCode,
			NomenclatureLabel: l.NomenclatureLabel,
			FinancingCategory: string(l.FinancingCategory),
		})
	}
	return dto
}

func toViolationDTOs(violations []budget.Violation) []ViolationDTO {
	dtos := make([]ViolationDTO, len(violations))
	for i, v := range violations {
		dtos[i] = ViolationDTO{
			Category:  string(v.Category),
			Expense:   v.Expense,
			Revenue:   v.Revenue,
			Shortfall: v.Shortfall(),
			Message:   v.String(),
		}
	}
	return dtos
}

func toTotalsDTO(t budget.Totals) TotalsDTO {
	dto := TotalsDTO{
		TotalRevenue:      t.TotalRevenue,
		TotalExpense:      t.TotalExpense,
		RevenueByType:     make(map[string]decimal.Decimal, len(t.RevenueByType)),
		ExpenseByCategory: make(map[string]decimal.Decimal, len(t.ExpenseByCategory)),
		Categories:        make([]CategoryCoverageDTO, len(t.Categories)),
		CoverageOK:        t.Coverage.OK,
		Violations:        toViolationDTOs(t.Coverage.Violations),
	}
	for k, v := range t.RevenueByType {
		dto.RevenueByType[string(k)] = v
	}
	for k, v := range t.ExpenseByCategory {
		dto.ExpenseByCategory[string(k)] = v
	}
	for i, c := range t.Categories {
		dto.Categories[i] = CategoryCoverageDTO{
			Category: string(c.Category),
			Expense:  c.Expense,
			Revenue:  c.Revenue,
			Balance:  c.Balance,
			Covered:  c.Covered,
		}
	}
	return dto
}

func toTemplateDTO(t budget.ActivityTemplate) TemplateDTO {
	return TemplateDTO{
		KeyActivity:       t.KeyActivity,
		MeansType:         t.MeansType,
		NomenclatureCode:  t.NomenclatureCode,
		NomenclatureLabel: t.NomenclatureLabel,
		FinancingCategory: string(t.FinancingCategory),
		UsageCount:        t.UsageCount,
		LastUsedAt:        t.LastUsedAt.Format(time.RFC3339),
	}
}

func toCenterDTO(c budget.Center) CenterDTO {
	dto := CenterDTO{ID: c.ID, Code: c.Code, Name: c.Name}
	if !c.CreatedAt.IsZero() {
		dto.CreatedAt = c.CreatedAt.Format(time.RFC3339)
	}
	return dto
}
