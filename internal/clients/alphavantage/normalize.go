package alphavantage

import (
	"github.com/openfund/fundament/internal/domain"
)

// NormalizeIncome maps Alpha Vantage income statement fields into the
// canonical record. Report values arrive as strings with "None" as the
// null sentinel; the safe-cast lookup scrubs them to nil.
func (c *Client) NormalizeIncome(raw domain.RawPeriod) domain.CanonicalPeriod {
	m := raw.Income
	return domain.CanonicalPeriod{
		EndDate:      raw.EndDate,
		FiscalPeriod: raw.FiscalPeriod,
		FiscalYear:   raw.FiscalYear,

		Revenues:          domain.SafeFloat(m, "totalRevenue"),
		OperatingIncome:   domain.SafeFloat(m, "operatingIncome"),
		NetIncome:         domain.SafeFloat(m, "netIncome"),
		CostOfRevenue:     domain.SafeFloat(m, "costOfRevenue"),
		GrossProfit:       domain.SafeFloat(m, "grossProfit"),
		OperatingExpenses: domain.SafeFloat(m, "operatingExpenses"),
		EBITDA:            domain.SafeFloat(m, "ebitda"),
		EBIT:              domain.SafeFloat(m, "ebit", "operatingIncome"),
		InterestExpense:   domain.SafeFloat(m, "interestExpense"),
	}
}

// NormalizeBalance maps Alpha Vantage balance sheet fields into the
// canonical record. Alpha Vantage is the only provider that reports the
// full set of individual debt components.
func (c *Client) NormalizeBalance(raw domain.RawPeriod) domain.CanonicalPeriod {
	m := raw.Balance
	return domain.CanonicalPeriod{
		EndDate:      raw.EndDate,
		FiscalPeriod: raw.FiscalPeriod,
		FiscalYear:   raw.FiscalYear,

		CurrentAssets:      domain.SafeFloat(m, "totalCurrentAssets"),
		CurrentLiabilities: domain.SafeFloat(m, "totalCurrentLiabilities"),
		FixedAssets:        domain.SafeFloat(m, "propertyPlantEquipment"),
		TotalAssets:        domain.SafeFloat(m, "totalAssets"),
		TotalLiabilities:   domain.SafeFloat(m, "totalLiabilities"),
		Equity:             domain.SafeFloat(m, "totalShareholderEquity"),
		CashAndEquivalents: domain.SafeFloat(m, "cashAndCashEquivalentsAtCarryingValue", "cashAndShortTermInvestments"),

		ShortLongTermDebtTotal: domain.SafeFloat(m, "shortLongTermDebtTotal"),
		CurrentDebt:            domain.SafeFloat(m, "currentDebt"),
		ShortTermDebt:          domain.SafeFloat(m, "shortTermDebt"),
		CurrentLongTermDebt:    domain.SafeFloat(m, "currentLongTermDebt"),
		LongTermDebt:           domain.SafeFloat(m, "longTermDebt"),
		LongTermDebtNoncurrent: domain.SafeFloat(m, "longTermDebtNoncurrent"),
	}
}
