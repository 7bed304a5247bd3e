package yahoo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openfund/fundament/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(serverURL string) *Client {
	c := NewClient(nil, zerolog.Nop())
	c.baseURL = serverURL
	c.cookieURL = serverURL
	return c
}

const timeseriesBody = `{
	"timeseries": {
		"result": [
			{
				"meta": {"symbol": ["AAPL"], "type": ["annualTotalRevenue"]},
				"annualTotalRevenue": [
					{"asOfDate": "2022-09-30", "reportedValue": {"raw": 394328000000, "fmt": "394.33B"}},
					{"asOfDate": "2023-09-30", "reportedValue": {"raw": 383285000000, "fmt": "383.29B"}}
				]
			},
			{
				"meta": {"symbol": ["AAPL"], "type": ["annualOperatingIncome"]},
				"annualOperatingIncome": [
					{"asOfDate": "2023-09-30", "reportedValue": {"raw": 114301000000, "fmt": "114.30B"}}
				]
			},
			{
				"meta": {"symbol": ["AAPL"], "type": ["annualTotalAssets"]},
				"annualTotalAssets": [
					{"asOfDate": "2023-09-30", "reportedValue": {"raw": 352583000000, "fmt": "352.58B"}},
					null
				]
			}
		],
		"error": null
	}
}`

func TestFetchPeriods(t *testing.T) {
	var gotUserAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserAgent = r.Header.Get("User-Agent")
		assert.Contains(t, r.URL.Path, "/finance/timeseries/AAPL")
		assert.Contains(t, r.URL.Query().Get("type"), "annualTotalRevenue")
		w.Write([]byte(timeseriesBody))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	periods, err := client.FetchPeriods(context.Background(), "AAPL", domain.TimeframeAnnual, 4)
	require.NoError(t, err)
	require.Len(t, periods, 2)

	// Most recent first.
	assert.Equal(t, "2023-09-30", periods[0].EndDate)
	assert.Equal(t, "FY", periods[0].FiscalPeriod)
	assert.Equal(t, "2023", periods[0].FiscalYear)
	assert.Equal(t, 383285000000.0, periods[0].Income["Total Revenue"])
	assert.Equal(t, 114301000000.0, periods[0].Income["Operating Income"])
	assert.Equal(t, 352583000000.0, periods[0].Balance["Total Assets"])

	assert.Equal(t, "2022-09-30", periods[1].EndDate)
	assert.Equal(t, 394328000000.0, periods[1].Income["Total Revenue"])
	// 2022 has no operating income data point.
	_, ok := periods[1].Income["Operating Income"]
	assert.False(t, ok)

	// Yahoo rejects the default Go User-Agent.
	assert.Contains(t, gotUserAgent, "Mozilla")
}

func TestFetchPeriodsLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(timeseriesBody))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	periods, err := client.FetchPeriods(context.Background(), "AAPL", domain.TimeframeAnnual, 1)
	require.NoError(t, err)
	require.Len(t, periods, 1)
	assert.Equal(t, "2023-09-30", periods[0].EndDate)
}

func TestFetchPeriodsErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		errType interface{}
	}{
		{"rate limited", http.StatusTooManyRequests, domain.RateLimitError{}},
		{"not found", http.StatusNotFound, domain.NotFoundError{}},
		{"server error", http.StatusInternalServerError, domain.TransientError{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := newTestClient(server.URL)

			_, err := client.FetchPeriods(context.Background(), "AAPL", domain.TimeframeAnnual, 4)
			require.Error(t, err)
			assert.IsType(t, tt.errType, err)
		})
	}
}

func TestFetchReference(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v1/test/getcrumb":
			w.Write([]byte("test-crumb"))
		case r.URL.Path == "/v10/finance/quoteSummary/AAPL":
			assert.Equal(t, "test-crumb", r.URL.Query().Get("crumb"))
			w.Write([]byte(`{
				"quoteSummary": {
					"result": [{
						"price": {
							"marketCap": {"raw": 3000000000000},
							"regularMarketPrice": {"raw": 195.0}
						},
						"defaultKeyStatistics": {
							"sharesOutstanding": {"raw": 15400000000}
						}
					}],
					"error": null
				}
			}`))
		default:
			// Cookie seed request.
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	ref, err := client.FetchReference(context.Background(), "AAPL")
	require.NoError(t, err)
	require.NotNil(t, ref.MarketCap)
	assert.Equal(t, 3000000000000.0, *ref.MarketCap)
	require.NotNil(t, ref.ShareClassSharesOutstanding)
	assert.Equal(t, 15400000000.0, *ref.ShareClassSharesOutstanding)
	// Single shares figure populates both aliases.
	require.NotNil(t, ref.WeightedSharesOutstanding)
	assert.Equal(t, 15400000000.0, *ref.WeightedSharesOutstanding)
}

func TestFetchReferenceDerivesMarketCap(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v1/test/getcrumb":
			w.Write([]byte("test-crumb"))
		default:
			w.Write([]byte(`{
				"quoteSummary": {
					"result": [{
						"price": {"regularMarketPrice": {"raw": 100.0}},
						"defaultKeyStatistics": {"sharesOutstanding": {"raw": 2000000}}
					}],
					"error": null
				}
			}`))
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	ref, err := client.FetchReference(context.Background(), "XYZ")
	require.NoError(t, err)
	require.NotNil(t, ref.MarketCap)
	assert.Equal(t, 200000000.0, *ref.MarketCap)
}

func TestProvider(t *testing.T) {
	client := NewClient(nil, zerolog.Nop())
	assert.Equal(t, domain.ProviderYahoo, client.Provider())
}
