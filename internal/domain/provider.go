package domain

import (
	"context"
	"fmt"
	"strings"
)

// Provider identifies an upstream financial-data provider.
type Provider string

const (
	// ProviderPolygon requires a paid API key and relies on a deprecated
	// financials endpoint.
	ProviderPolygon Provider = "polygon"
	// ProviderYahoo is free and keyless. It is the default and the
	// ultimate fallback for the aggregator.
	ProviderYahoo Provider = "yahoo"
	// ProviderAlphaVantage is free-tier limited to 25 requests per day.
	ProviderAlphaVantage Provider = "alphavantage"
)

// ParseProvider resolves a provider name to the closed enumeration.
// "yfinance" is accepted as a legacy alias for yahoo. Unknown names are
// an error; there is no silent fallthrough to the default.
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "polygon":
		return ProviderPolygon, nil
	case "yahoo", "yfinance":
		return ProviderYahoo, nil
	case "alphavantage":
		return ProviderAlphaVantage, nil
	default:
		return "", fmt.Errorf("unknown provider %q", s)
	}
}

// RawPeriod is one reporting period as fetched from a provider, before
// normalization. Income and Balance hold provider-native field names and
// values; normalizers look fields up with a safe-cast helper so absent,
// null and sentinel values propagate as absence, never as an error.
type RawPeriod struct {
	EndDate      string
	FiscalPeriod string
	FiscalYear   string
	Income       map[string]interface{}
	Balance      map[string]interface{}
}

// ProviderClient is the four-function adapter contract consumed by the
// aggregator. Any additional provider can be added by implementing it.
//
// FetchPeriods returns raw periods most recent first, or an empty slice
// when the provider has no data for the ticker. NormalizeIncome and
// NormalizeBalance are pure, total functions: they never fail, missing
// input fields simply yield nil canonical fields.
type ProviderClient interface {
	Provider() Provider
	FetchPeriods(ctx context.Context, ticker string, timeframe Timeframe, limit int) ([]RawPeriod, error)
	FetchReference(ctx context.Context, ticker string) (*TickerReference, error)
	NormalizeIncome(raw RawPeriod) CanonicalPeriod
	NormalizeBalance(raw RawPeriod) CanonicalPeriod
}
