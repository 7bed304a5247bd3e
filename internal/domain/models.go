// Package domain provides core domain models and types.
package domain

// Timeframe selects annual or quarterly reporting periods.
type Timeframe string

const (
	TimeframeAnnual    Timeframe = "annual"
	TimeframeQuarterly Timeframe = "quarterly"
)

// Valid reports whether the timeframe is a known value.
func (t Timeframe) Valid() bool {
	return t == TimeframeAnnual || t == TimeframeQuarterly
}

// CanonicalPeriod is the provider-agnostic normalized financial record for
// one reporting period of one ticker. All monetary fields are pointers:
// nil means the provider did not report the value. Adapters scrub
// provider-native sentinels (null, NaN, "None") at normalization time, so
// a non-nil value is always a finite number.
type CanonicalPeriod struct {
	Ticker       string `json:"ticker"`
	EndDate      string `json:"end_date"`
	FiscalPeriod string `json:"fiscal_period"` // FY, Q1..Q4
	FiscalYear   string `json:"fiscal_year"`

	// Income statement
	Revenues          *float64 `json:"revenues,omitempty"`
	OperatingIncome   *float64 `json:"operating_income,omitempty"` // EBIT proxy
	NetIncome         *float64 `json:"net_income,omitempty"`
	CostOfRevenue     *float64 `json:"cost_of_revenue,omitempty"`
	GrossProfit       *float64 `json:"gross_profit,omitempty"`
	OperatingExpenses *float64 `json:"operating_expenses,omitempty"`
	EBITDA            *float64 `json:"ebitda,omitempty"`
	EBIT              *float64 `json:"ebit,omitempty"`
	InterestExpense   *float64 `json:"interest_expense,omitempty"`

	// Balance sheet
	CurrentAssets      *float64 `json:"current_assets,omitempty"`
	CurrentLiabilities *float64 `json:"current_liabilities,omitempty"`
	FixedAssets        *float64 `json:"fixed_assets,omitempty"`
	TotalAssets        *float64 `json:"total_assets,omitempty"`
	TotalLiabilities   *float64 `json:"total_liabilities,omitempty"`
	Equity             *float64 `json:"equity,omitempty"`
	CashAndEquivalents *float64 `json:"cash_and_equivalents,omitempty"`

	// Debt components, kept individually for transparency
	ShortLongTermDebtTotal *float64 `json:"short_long_term_debt_total,omitempty"`
	CurrentDebt            *float64 `json:"current_debt,omitempty"`
	ShortTermDebt          *float64 `json:"short_term_debt,omitempty"`
	CurrentLongTermDebt    *float64 `json:"current_long_term_debt,omitempty"`
	LongTermDebt           *float64 `json:"long_term_debt,omitempty"`
	LongTermDebtNoncurrent *float64 `json:"long_term_debt_noncurrent,omitempty"`
}

// Merge copies every non-nil field of other into p. Identity fields are
// taken from other when p's are empty. Used by the aggregator to combine
// an adapter's income and balance normalization output.
func (p *CanonicalPeriod) Merge(other CanonicalPeriod) {
	if p.Ticker == "" {
		p.Ticker = other.Ticker
	}
	if p.EndDate == "" {
		p.EndDate = other.EndDate
	}
	if p.FiscalPeriod == "" {
		p.FiscalPeriod = other.FiscalPeriod
	}
	if p.FiscalYear == "" {
		p.FiscalYear = other.FiscalYear
	}

	fields := []struct {
		dst **float64
		src *float64
	}{
		{&p.Revenues, other.Revenues},
		{&p.OperatingIncome, other.OperatingIncome},
		{&p.NetIncome, other.NetIncome},
		{&p.CostOfRevenue, other.CostOfRevenue},
		{&p.GrossProfit, other.GrossProfit},
		{&p.OperatingExpenses, other.OperatingExpenses},
		{&p.EBITDA, other.EBITDA},
		{&p.EBIT, other.EBIT},
		{&p.InterestExpense, other.InterestExpense},
		{&p.CurrentAssets, other.CurrentAssets},
		{&p.CurrentLiabilities, other.CurrentLiabilities},
		{&p.FixedAssets, other.FixedAssets},
		{&p.TotalAssets, other.TotalAssets},
		{&p.TotalLiabilities, other.TotalLiabilities},
		{&p.Equity, other.Equity},
		{&p.CashAndEquivalents, other.CashAndEquivalents},
		{&p.ShortLongTermDebtTotal, other.ShortLongTermDebtTotal},
		{&p.CurrentDebt, other.CurrentDebt},
		{&p.ShortTermDebt, other.ShortTermDebt},
		{&p.CurrentLongTermDebt, other.CurrentLongTermDebt},
		{&p.LongTermDebt, other.LongTermDebt},
		{&p.LongTermDebtNoncurrent, other.LongTermDebtNoncurrent},
	}
	for _, f := range fields {
		if *f.dst == nil && f.src != nil {
			*f.dst = f.src
		}
	}
}

// TickerReference is point-in-time market reference data for one ticker.
// When a provider reports only a single shares-outstanding figure, both
// aliases are populated from it.
type TickerReference struct {
	Ticker                      string   `json:"ticker"`
	MarketCap                   *float64 `json:"market_cap,omitempty"`
	ShareClassSharesOutstanding *float64 `json:"share_class_shares_outstanding,omitempty"`
	WeightedSharesOutstanding   *float64 `json:"weighted_shares_outstanding,omitempty"`
}

// MetricsResult holds metrics derived from one CanonicalPeriod plus an
// optional TickerReference. Computed on demand, never persisted. Notes
// record every substitution or missing-data decision in calculation order
// and are part of the result contract.
type MetricsResult struct {
	Ticker string `json:"ticker"`
	Date   string `json:"date"`
	Period string `json:"period"`

	ROCE            *float64 `json:"roce,omitempty"`
	ROCEPercent     *string  `json:"roce_percent,omitempty"`
	WorkingCapital  float64  `json:"working_capital"`
	CapitalEmployed float64  `json:"capital_employed"`

	EarningsYield        *float64 `json:"earnings_yield,omitempty"`
	EarningsYieldPercent *string  `json:"earnings_yield_percent,omitempty"`
	EBIT                 *float64 `json:"ebit,omitempty"`

	EnterpriseValue *float64 `json:"enterprise_value,omitempty"`
	MarketCap       *float64 `json:"market_cap,omitempty"`

	StockPrice         *float64 `json:"stock_price,omitempty"`
	SharesOutstanding  *float64 `json:"shares_outstanding,omitempty"`
	TotalDebt          float64  `json:"total_debt"`
	CashAndEquivalents *float64 `json:"cash_and_equivalents,omitempty"`

	TotalAssets        float64 `json:"total_assets"`
	CurrentLiabilities float64 `json:"current_liabilities"`

	ShortLongTermDebtTotal *float64 `json:"short_long_term_debt_total,omitempty"`
	CurrentDebt            *float64 `json:"current_debt,omitempty"`
	ShortTermDebt          *float64 `json:"short_term_debt,omitempty"`
	CurrentLongTermDebt    *float64 `json:"current_long_term_debt,omitempty"`
	LongTermDebt           *float64 `json:"long_term_debt,omitempty"`
	LongTermDebtNoncurrent *float64 `json:"long_term_debt_noncurrent,omitempty"`

	Notes []string `json:"notes"`
}

// Quote is a real-time quote from the brokerage connection.
type Quote struct {
	Symbol    string   `json:"symbol"`
	Last      *float64 `json:"last,omitempty"`
	Bid       *float64 `json:"bid,omitempty"`
	Ask       *float64 `json:"ask,omitempty"`
	Volume    *float64 `json:"volume,omitempty"`
	Timestamp int64    `json:"timestamp,omitempty"`
}

// Float returns a pointer to v. Convenience for building optional fields.
func Float(v float64) *float64 {
	return &v
}
