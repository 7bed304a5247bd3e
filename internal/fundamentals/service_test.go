package fundamentals

import (
	"context"
	"errors"
	"testing"

	"github.com/openfund/fundament/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient is a scriptable provider adapter for aggregator tests.
type fakeClient struct {
	provider   domain.Provider
	periods    []domain.RawPeriod
	periodsErr error
	ref        *domain.TickerReference
	refErr     error
	calls      int
}

func (f *fakeClient) Provider() domain.Provider { return f.provider }

func (f *fakeClient) FetchPeriods(ctx context.Context, ticker string, timeframe domain.Timeframe, limit int) ([]domain.RawPeriod, error) {
	f.calls++
	return f.periods, f.periodsErr
}

func (f *fakeClient) FetchReference(ctx context.Context, ticker string) (*domain.TickerReference, error) {
	return f.ref, f.refErr
}

func (f *fakeClient) NormalizeIncome(raw domain.RawPeriod) domain.CanonicalPeriod {
	return domain.CanonicalPeriod{
		EndDate:         raw.EndDate,
		FiscalPeriod:    raw.FiscalPeriod,
		FiscalYear:      raw.FiscalYear,
		Revenues:        domain.SafeFloat(raw.Income, "revenues"),
		OperatingIncome: domain.SafeFloat(raw.Income, "operating_income"),
	}
}

func (f *fakeClient) NormalizeBalance(raw domain.RawPeriod) domain.CanonicalPeriod {
	return domain.CanonicalPeriod{
		EndDate:            raw.EndDate,
		TotalAssets:        domain.SafeFloat(raw.Balance, "total_assets"),
		CurrentLiabilities: domain.SafeFloat(raw.Balance, "current_liabilities"),
	}
}

func rawPeriod() domain.RawPeriod {
	return domain.RawPeriod{
		EndDate:      "2023-12-31",
		FiscalPeriod: "FY",
		FiscalYear:   "2023",
		Income: map[string]interface{}{
			"revenues":         1000.0,
			"operating_income": 100.0,
		},
		Balance: map[string]interface{}{
			"total_assets":        800.0,
			"current_liabilities": 300.0,
		},
	}
}

func TestGetFinancialsMergesIncomeAndBalance(t *testing.T) {
	svc := NewService(domain.ProviderYahoo, true, zerolog.Nop())
	svc.Register(&fakeClient{provider: domain.ProviderYahoo, periods: []domain.RawPeriod{rawPeriod()}})

	result, err := svc.GetFinancials(context.Background(), "AAPL", "", domain.TimeframeAnnual, 4)
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderYahoo, result.ProviderUsed)
	require.Len(t, result.Periods, 1)

	period := result.Periods[0]
	assert.Equal(t, "AAPL", period.Ticker)
	// Income and balance normalizations are combined into one record.
	require.NotNil(t, period.Revenues)
	assert.Equal(t, 1000.0, *period.Revenues)
	require.NotNil(t, period.TotalAssets)
	assert.Equal(t, 800.0, *period.TotalAssets)
}

func TestGetFinancialsUnknownProviderIsError(t *testing.T) {
	svc := NewService(domain.ProviderYahoo, true, zerolog.Nop())
	svc.Register(&fakeClient{provider: domain.ProviderYahoo, periods: []domain.RawPeriod{rawPeriod()}})

	_, err := svc.GetFinancials(context.Background(), "AAPL", "bloomberg", domain.TimeframeAnnual, 4)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNoData)
}

func TestGetFinancialsYFinanceAlias(t *testing.T) {
	yahoo := &fakeClient{provider: domain.ProviderYahoo, periods: []domain.RawPeriod{rawPeriod()}}
	svc := NewService(domain.ProviderPolygon, true, zerolog.Nop())
	svc.Register(yahoo)

	result, err := svc.GetFinancials(context.Background(), "AAPL", "yfinance", domain.TimeframeAnnual, 4)
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderYahoo, result.ProviderUsed)
}

func TestGetFinancialsDegradesWhenProviderUnregistered(t *testing.T) {
	yahoo := &fakeClient{provider: domain.ProviderYahoo, periods: []domain.RawPeriod{rawPeriod()}}
	// Polygon is the default but never registered (no API key).
	svc := NewService(domain.ProviderPolygon, true, zerolog.Nop())
	svc.Register(yahoo)

	result, err := svc.GetFinancials(context.Background(), "AAPL", "", domain.TimeframeAnnual, 4)
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderYahoo, result.ProviderUsed)
	assert.Equal(t, 1, yahoo.calls)
}

func TestGetFinancialsFallbackOnPrimaryError(t *testing.T) {
	polygon := &fakeClient{
		provider:   domain.ProviderPolygon,
		periodsErr: domain.RateLimitError{Provider: domain.ProviderPolygon, Message: "quota"},
	}
	yahoo := &fakeClient{provider: domain.ProviderYahoo, periods: []domain.RawPeriod{rawPeriod()}}

	svc := NewService(domain.ProviderPolygon, true, zerolog.Nop())
	svc.Register(polygon)
	svc.Register(yahoo)

	result, err := svc.GetFinancials(context.Background(), "AAPL", "", domain.TimeframeAnnual, 4)
	require.NoError(t, err)
	// The response reports which provider actually served the data.
	assert.Equal(t, domain.ProviderYahoo, result.ProviderUsed)
	assert.Equal(t, 1, polygon.calls)
	assert.Equal(t, 1, yahoo.calls)
}

func TestGetFinancialsFallbackOnEmptyPrimary(t *testing.T) {
	polygon := &fakeClient{provider: domain.ProviderPolygon, periods: nil}
	yahoo := &fakeClient{provider: domain.ProviderYahoo, periods: []domain.RawPeriod{rawPeriod()}}

	svc := NewService(domain.ProviderPolygon, true, zerolog.Nop())
	svc.Register(polygon)
	svc.Register(yahoo)

	result, err := svc.GetFinancials(context.Background(), "AAPL", "", domain.TimeframeAnnual, 4)
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderYahoo, result.ProviderUsed)
}

func TestGetFinancialsBothTiersFailCollapsesToErrNoData(t *testing.T) {
	polygon := &fakeClient{
		provider:   domain.ProviderPolygon,
		periodsErr: domain.AuthError{Provider: domain.ProviderPolygon, Message: "bad key"},
	}
	yahoo := &fakeClient{
		provider:   domain.ProviderYahoo,
		periodsErr: errors.New("connection reset"),
	}

	svc := NewService(domain.ProviderPolygon, true, zerolog.Nop())
	svc.Register(polygon)
	svc.Register(yahoo)

	_, err := svc.GetFinancials(context.Background(), "AAPL", "", domain.TimeframeAnnual, 4)
	// Fallback failure details never leak to the caller.
	assert.ErrorIs(t, err, domain.ErrNoData)
}

func TestGetFinancialsNoFallbackWhenDisabled(t *testing.T) {
	polygon := &fakeClient{
		provider:   domain.ProviderPolygon,
		periodsErr: domain.TransientError{Provider: domain.ProviderPolygon, Err: errors.New("timeout")},
	}
	yahoo := &fakeClient{provider: domain.ProviderYahoo, periods: []domain.RawPeriod{rawPeriod()}}

	svc := NewService(domain.ProviderPolygon, false, zerolog.Nop())
	svc.Register(polygon)
	svc.Register(yahoo)

	_, err := svc.GetFinancials(context.Background(), "AAPL", "", domain.TimeframeAnnual, 4)
	assert.ErrorIs(t, err, domain.ErrNoData)
	assert.Equal(t, 0, yahoo.calls)
}

func TestGetFinancialsYahooPrimaryFailsWithoutRetry(t *testing.T) {
	yahoo := &fakeClient{
		provider:   domain.ProviderYahoo,
		periodsErr: errors.New("boom"),
	}

	svc := NewService(domain.ProviderYahoo, true, zerolog.Nop())
	svc.Register(yahoo)

	_, err := svc.GetFinancials(context.Background(), "AAPL", "", domain.TimeframeAnnual, 4)
	assert.ErrorIs(t, err, domain.ErrNoData)
	// No second attempt against the same provider.
	assert.Equal(t, 1, yahoo.calls)
}

func TestGetMetricsUsesLatestPeriodAndReference(t *testing.T) {
	yahoo := &fakeClient{
		provider: domain.ProviderYahoo,
		periods:  []domain.RawPeriod{rawPeriod()},
		ref: &domain.TickerReference{
			Ticker:                    "AAPL",
			MarketCap:                 domain.Float(2000.0),
			WeightedSharesOutstanding: domain.Float(100.0),
		},
	}

	svc := NewService(domain.ProviderYahoo, true, zerolog.Nop())
	svc.Register(yahoo)

	m, used, err := svc.GetMetrics(context.Background(), "AAPL", "", domain.TimeframeAnnual)
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderYahoo, used)

	// ROCE = 100 / (800 - 300)
	require.NotNil(t, m.ROCE)
	assert.InDelta(t, 0.2, *m.ROCE, 1e-9)
	require.NotNil(t, m.MarketCap)
	assert.Equal(t, 2000.0, *m.MarketCap)
}

func TestGetMetricsWithoutReferenceData(t *testing.T) {
	yahoo := &fakeClient{
		provider: domain.ProviderYahoo,
		periods:  []domain.RawPeriod{rawPeriod()},
		refErr:   errors.New("quoteSummary unavailable"),
	}

	svc := NewService(domain.ProviderYahoo, true, zerolog.Nop())
	svc.Register(yahoo)

	m, _, err := svc.GetMetrics(context.Background(), "AAPL", "", domain.TimeframeAnnual)
	require.NoError(t, err)

	// Metrics still computed; the missing market cap shows up as notes.
	assert.Nil(t, m.EnterpriseValue)
	assert.Contains(t, m.Notes, "Enterprise value not available - cannot calculate earnings yield")
}

func TestGetReferenceFallback(t *testing.T) {
	polygon := &fakeClient{
		provider: domain.ProviderPolygon,
		refErr:   domain.RateLimitError{Provider: domain.ProviderPolygon, Message: "quota"},
	}
	yahoo := &fakeClient{
		provider: domain.ProviderYahoo,
		ref:      &domain.TickerReference{Ticker: "AAPL", MarketCap: domain.Float(123.0)},
	}

	svc := NewService(domain.ProviderPolygon, true, zerolog.Nop())
	svc.Register(polygon)
	svc.Register(yahoo)

	ref, used, err := svc.GetReference(context.Background(), "AAPL", "")
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderYahoo, used)
	require.NotNil(t, ref.MarketCap)
	assert.Equal(t, 123.0, *ref.MarketCap)
}
