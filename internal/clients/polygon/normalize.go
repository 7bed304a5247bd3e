package polygon

import (
	"github.com/openfund/fundament/internal/domain"
)

// NormalizeIncome maps Polygon income statement fields into the canonical
// record. Pure and total: missing fields yield nil, never an error.
func (c *Client) NormalizeIncome(raw domain.RawPeriod) domain.CanonicalPeriod {
	m := raw.Income
	return domain.CanonicalPeriod{
		EndDate:      raw.EndDate,
		FiscalPeriod: raw.FiscalPeriod,
		FiscalYear:   raw.FiscalYear,

		Revenues:          domain.SafeFloat(m, "revenues"),
		OperatingIncome:   domain.SafeFloat(m, "operating_income_loss"),
		NetIncome:         domain.SafeFloat(m, "net_income_loss"),
		CostOfRevenue:     domain.SafeFloat(m, "cost_of_revenue"),
		GrossProfit:       domain.SafeFloat(m, "gross_profit"),
		OperatingExpenses: domain.SafeFloat(m, "operating_expenses"),
		EBITDA:            domain.SafeFloat(m, "ebitda"),
		EBIT:              domain.SafeFloat(m, "operating_income_loss"),
		InterestExpense:   domain.SafeFloat(m, "interest_expense_operating", "interest_expense"),
	}
}

// NormalizeBalance maps Polygon balance sheet fields into the canonical
// record. Cash falls through a fixed chain of Polygon names; the first
// present value wins, nothing is merged.
func (c *Client) NormalizeBalance(raw domain.RawPeriod) domain.CanonicalPeriod {
	m := raw.Balance
	return domain.CanonicalPeriod{
		EndDate:      raw.EndDate,
		FiscalPeriod: raw.FiscalPeriod,
		FiscalYear:   raw.FiscalYear,

		CurrentAssets:      domain.SafeFloat(m, "current_assets"),
		CurrentLiabilities: domain.SafeFloat(m, "current_liabilities"),
		FixedAssets:        domain.SafeFloat(m, "fixed_assets"),
		TotalAssets:        domain.SafeFloat(m, "assets"),
		TotalLiabilities:   domain.SafeFloat(m, "liabilities"),
		Equity:             domain.SafeFloat(m, "equity"),
		CashAndEquivalents: domain.SafeFloat(m, "cash_and_equivalents", "cash_and_short_term_investments", "cash"),

		ShortLongTermDebtTotal: domain.SafeFloat(m, "short_long_term_debt_total", "total_debt"),
		CurrentDebt:            domain.SafeFloat(m, "debt_current", "current_debt"),
		ShortTermDebt:          domain.SafeFloat(m, "short_term_debt"),
		CurrentLongTermDebt:    domain.SafeFloat(m, "current_long_term_debt"),
		LongTermDebt:           domain.SafeFloat(m, "long_term_debt"),
		LongTermDebtNoncurrent: domain.SafeFloat(m, "long_term_debt_noncurrent"),
	}
}
