package budget

import "github.com/shopspring/decimal"

// LineAmount returns quantity × frequency × unit cost, unrounded.
func LineAmount(quantity, frequency, unitCost decimal.Decimal) decimal.Decimal {
	return quantity.Mul(frequency).Mul(unitCost)
}

// Amount recomputes the line amount from its inputs, ignoring ComputedAmount.
func (l ExpenseLine) Amount() decimal.Decimal {
	return LineAmount(l.Quantity, l.Frequency, l.UnitCost)
}

// AggregateRevenueByType sums amounts per funding type.
// Types with no source are absent from the map; consumers read them as zero.
func AggregateRevenueByType(sources []RevenueSource) map[FundingType]decimal.Decimal {
	out := make(map[FundingType]decimal.Decimal)
	for _, s := range sources {
		out[s.FundingType] = out[s.FundingType].Add(s.Amount)
	}
	return out
}

// AggregateExpenseByCategory sums line amounts per financing category.
func AggregateExpenseByCategory(lines []ExpenseLine) map[FinancingCategory]decimal.Decimal {
	out := make(map[FinancingCategory]decimal.Decimal)
	for _, l := range lines {
		out[l.FinancingCategory] = out[l.FinancingCategory].Add(l.Amount())
	}
	return out
}

func TotalRevenue(sources []RevenueSource) decimal.Decimal {
	total := decimal.Zero
	for _, s := range sources {
		total = total.Add(s.Amount)
	}
	return total
}

func TotalExpense(lines []ExpenseLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount())
	}
	return total
}

// withComputedAmounts returns a copy of lines with ComputedAmount refreshed.
func withComputedAmounts(lines []ExpenseLine) []ExpenseLine {
	out := make([]ExpenseLine, len(lines))
	for i, l := range lines {
		l.ComputedAmount = l.Amount()
		out[i] = l
	}
	return out
}
