// Package fundamentals aggregates provider data and derives value-investing
// metrics from it.
package fundamentals

import (
	"fmt"

	"github.com/openfund/fundament/internal/domain"
)

// CalculateMetrics derives ROCE, Enterprise Value and Earnings Yield from
// one reporting period plus optional market reference data.
//
// Pure function: no I/O, no persistence. Every substitution or
// missing-data decision is recorded as a note, in calculation order, and
// the notes are part of the result contract.
func CalculateMetrics(ticker string, timeframe domain.Timeframe, period domain.CanonicalPeriod, ref *domain.TickerReference) domain.MetricsResult {
	notes := []string{}

	currentAssets := orZero(period.CurrentAssets)
	currentLiabilities := orZero(period.CurrentLiabilities)
	totalAssets := orZero(period.TotalAssets)

	workingCapital := currentAssets - currentLiabilities
	capitalEmployed := totalAssets - currentLiabilities

	// ROCE = Operating Income / (Total Assets - Current Liabilities)
	var roce *float64
	switch {
	case period.OperatingIncome == nil:
		notes = append(notes, "Operating income not available")
	case capitalEmployed == 0:
		notes = append(notes, "Capital employed is zero - cannot calculate ROCE")
	default:
		roce = domain.Float(*period.OperatingIncome / capitalEmployed)
	}

	// Operating income is the EBIT proxy throughout.
	ebit := period.OperatingIncome

	// current_debt and short_term_debt are synonymous across providers;
	// substitute one for the other rather than losing the value.
	currentDebt := period.CurrentDebt
	if currentDebt == nil && period.ShortTermDebt != nil {
		currentDebt = period.ShortTermDebt
		notes = append(notes, "Current debt using short_term_debt (synonymous terms)")
	}

	// Derive the noncurrent long-term portion when not reported. The
	// derived value is kept even when non-positive; the note is only
	// added for a positive derivation.
	ltdNoncurrent := period.LongTermDebtNoncurrent
	if ltdNoncurrent == nil {
		if period.ShortLongTermDebtTotal != nil && currentDebt != nil {
			derived := *period.ShortLongTermDebtTotal - *currentDebt
			ltdNoncurrent = &derived
			if derived > 0 {
				notes = append(notes, "Long-term debt noncurrent calculated from total_debt - current_debt")
			}
		} else if period.LongTermDebt != nil && period.CurrentLongTermDebt != nil {
			derived := *period.LongTermDebt - *period.CurrentLongTermDebt
			ltdNoncurrent = &derived
			if derived > 0 {
				notes = append(notes, "Long-term debt noncurrent calculated from long_term_debt - current_long_term_debt")
			}
		}
	}

	var marketCap, sharesOutstanding, stockPrice *float64
	if ref != nil {
		marketCap = ref.MarketCap
		sharesOutstanding = ref.WeightedSharesOutstanding
		if marketCap != nil && *marketCap != 0 && sharesOutstanding != nil && *sharesOutstanding > 0 {
			stockPrice = domain.Float(*marketCap / *sharesOutstanding)
		}
	}

	totalDebt := calculateTotalDebt(currentDebt, period.LongTermDebt, period.ShortLongTermDebtTotal)
	enterpriseValue := calculateEnterpriseValue(marketCap, totalDebt, period.CashAndEquivalents)

	if period.CashAndEquivalents == nil || *period.CashAndEquivalents == 0 {
		notes = append(notes, "Cash and cash equivalents not reported separately - EV calculation may be overstated")
	}

	earningsYield := calculateEarningsYield(ebit, enterpriseValue)

	if enterpriseValue == nil || *enterpriseValue == 0 {
		notes = append(notes, "Enterprise value not available - cannot calculate earnings yield")
	} else if ebit == nil || *ebit == 0 {
		notes = append(notes, "EBIT not available - cannot calculate earnings yield")
	}

	return domain.MetricsResult{
		Ticker: ticker,
		Date:   period.EndDate,
		Period: string(timeframe),

		ROCE:            roce,
		ROCEPercent:     percentString(roce),
		WorkingCapital:  workingCapital,
		CapitalEmployed: capitalEmployed,

		EarningsYield:        earningsYield,
		EarningsYieldPercent: percentString(earningsYield),
		EBIT:                 ebit,

		EnterpriseValue: enterpriseValue,
		MarketCap:       marketCap,

		StockPrice:         stockPrice,
		SharesOutstanding:  sharesOutstanding,
		TotalDebt:          totalDebt,
		CashAndEquivalents: period.CashAndEquivalents,

		TotalAssets:        totalAssets,
		CurrentLiabilities: currentLiabilities,

		ShortLongTermDebtTotal: period.ShortLongTermDebtTotal,
		CurrentDebt:            currentDebt,
		ShortTermDebt:          period.ShortTermDebt,
		CurrentLongTermDebt:    period.CurrentLongTermDebt,
		LongTermDebt:           period.LongTermDebt,
		LongTermDebtNoncurrent: ltdNoncurrent,

		Notes: notes,
	}
}

// calculateTotalDebt prefers the directly reported total over summing
// components. A reported total is used verbatim, never cross-checked
// against the components.
func calculateTotalDebt(currentDebt, longTermDebt, shortLongTermDebtTotal *float64) float64 {
	if shortLongTermDebtTotal != nil {
		return *shortLongTermDebtTotal
	}
	return orZero(currentDebt) + orZero(longTermDebt)
}

// calculateEnterpriseValue = Market Cap + Total Debt - Cash. Without a
// usable market cap there is no EV; missing cash counts as zero, which
// overstates EV (the caller records a note).
func calculateEnterpriseValue(marketCap *float64, totalDebt float64, cash *float64) *float64 {
	if marketCap == nil || *marketCap == 0 {
		return nil
	}
	return domain.Float(*marketCap + totalDebt - orZero(cash))
}

// calculateEarningsYield = EBIT / Enterprise Value.
func calculateEarningsYield(ebit, enterpriseValue *float64) *float64 {
	if ebit == nil || *ebit == 0 || enterpriseValue == nil || *enterpriseValue == 0 {
		return nil
	}
	return domain.Float(*ebit / *enterpriseValue)
}

// percentString renders a ratio as "12.50%". A zero ratio renders as
// absent, matching the ratio fields' omission semantics.
func percentString(v *float64) *string {
	if v == nil || *v == 0 {
		return nil
	}
	s := fmt.Sprintf("%.2f%%", *v*100)
	return &s
}

func orZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
