package yahoo

import (
	"github.com/openfund/fundament/internal/domain"
)

// NormalizeIncome maps Yahoo income statement fields into the canonical
// record. Pure and total: missing fields yield nil, never an error.
func (c *Client) NormalizeIncome(raw domain.RawPeriod) domain.CanonicalPeriod {
	m := raw.Income
	return domain.CanonicalPeriod{
		EndDate:      raw.EndDate,
		FiscalPeriod: raw.FiscalPeriod,
		FiscalYear:   raw.FiscalYear,

		Revenues:          domain.SafeFloat(m, "Total Revenue"),
		OperatingIncome:   domain.SafeFloat(m, "Operating Income"),
		NetIncome:         domain.SafeFloat(m, "Net Income"),
		CostOfRevenue:     domain.SafeFloat(m, "Cost Of Revenue"),
		GrossProfit:       domain.SafeFloat(m, "Gross Profit"),
		OperatingExpenses: domain.SafeFloat(m, "Operating Expense"),
		EBITDA:            domain.SafeFloat(m, "EBITDA"),
		EBIT:              domain.SafeFloat(m, "EBIT", "Operating Income"),
		InterestExpense:   domain.SafeFloat(m, "Interest Expense"),
	}
}

// NormalizeBalance maps Yahoo balance sheet fields into the canonical
// record. Yahoo often reports debt and cash only under combined names, so
// several canonical fields fall through fixed chains; the first present
// name wins.
func (c *Client) NormalizeBalance(raw domain.RawPeriod) domain.CanonicalPeriod {
	m := raw.Balance
	return domain.CanonicalPeriod{
		EndDate:      raw.EndDate,
		FiscalPeriod: raw.FiscalPeriod,
		FiscalYear:   raw.FiscalYear,

		CurrentAssets:      domain.SafeFloat(m, "Current Assets"),
		CurrentLiabilities: domain.SafeFloat(m, "Current Liabilities"),
		FixedAssets:        domain.SafeFloat(m, "Net PPE"),
		TotalAssets:        domain.SafeFloat(m, "Total Assets"),
		TotalLiabilities:   domain.SafeFloat(m, "Total Liabilities Net Minority Interest"),
		Equity:             domain.SafeFloat(m, "Stockholders Equity"),
		CashAndEquivalents: domain.SafeFloat(m, "Cash And Cash Equivalents", "Cash Cash Equivalents And Short Term Investments"),

		ShortLongTermDebtTotal: domain.SafeFloat(m, "Total Debt"),
		CurrentDebt:            domain.SafeFloat(m, "Current Debt", "Current Debt And Capital Lease Obligation"),
		ShortTermDebt:          domain.SafeFloat(m, "Short Term Debt"),
		CurrentLongTermDebt:    domain.SafeFloat(m, "Current Long Term Debt"),
		LongTermDebt:           domain.SafeFloat(m, "Long Term Debt", "Long Term Debt And Capital Lease Obligation"),
		LongTermDebtNoncurrent: domain.SafeFloat(m, "Long Term Debt Noncurrent"),
	}
}
