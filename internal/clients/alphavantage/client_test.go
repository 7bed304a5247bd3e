package alphavantage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openfund/fundament/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewClient tests client creation.
func TestNewClient(t *testing.T) {
	client := NewClient("test-key", nil, zerolog.Nop())

	assert.NotNil(t, client)
	assert.Equal(t, "test-key", client.apiKey)
	assert.Equal(t, 25, client.GetRemainingRequests())
}

// TestRateLimiting tests the daily quota enforcement.
func TestRateLimiting(t *testing.T) {
	client := NewClient("test-key", nil, zerolog.Nop())

	// Simulate using all requests
	for i := 0; i < 25; i++ {
		remaining := client.GetRemainingRequests()
		assert.Equal(t, 25-i, remaining)
		err := client.checkRateLimit()
		require.NoError(t, err)
	}

	// 26th request should fail proactively, without an upstream call
	err := client.checkRateLimit()
	assert.Error(t, err)
	assert.IsType(t, domain.RateLimitError{}, err)
}

// TestResetDailyCounter tests counter reset.
func TestResetDailyCounter(t *testing.T) {
	client := NewClient("test-key", nil, zerolog.Nop())

	// Use some requests
	for i := 0; i < 10; i++ {
		_ = client.checkRateLimit()
	}
	assert.Equal(t, 15, client.GetRemainingRequests())

	// Reset
	client.ResetDailyCounter()
	assert.Equal(t, 25, client.GetRemainingRequests())
}

// TestCaching tests the memo cache.
func TestCaching(t *testing.T) {
	client := NewClient("test-key", nil, zerolog.Nop())

	testData := "test data"
	client.setCache("test-key", testData, time.Hour)

	cached, ok := client.getFromCache("test-key")
	assert.True(t, ok)
	assert.Equal(t, testData, cached)

	_, ok = client.getFromCache("non-existent")
	assert.False(t, ok)
}

// TestCacheExpiration tests memo cache expiration.
func TestCacheExpiration(t *testing.T) {
	client := NewClient("test-key", nil, zerolog.Nop())

	client.setCache("test-key", "test data", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, ok := client.getFromCache("test-key")
	assert.False(t, ok)
}

// TestClearCache tests cache clearing.
func TestClearCache(t *testing.T) {
	client := NewClient("test-key", nil, zerolog.Nop())

	client.setCache("key1", "data1", time.Hour)
	client.setCache("key2", "data2", time.Hour)

	client.ClearCache()

	_, ok1 := client.getFromCache("key1")
	_, ok2 := client.getFromCache("key2")
	assert.False(t, ok1)
	assert.False(t, ok2)
}

// TestBuildCacheKey tests cache key generation.
func TestBuildCacheKey(t *testing.T) {
	tests := []struct {
		name     string
		function string
		params   map[string]string
	}{
		{
			name:     "Simple function",
			function: "OVERVIEW",
			params:   map[string]string{"symbol": "IBM"},
		},
		{
			name:     "With apikey excluded",
			function: "INCOME_STATEMENT",
			params: map[string]string{
				"symbol": "MSFT",
				"apikey": "secret", // Should be excluded
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := buildCacheKey(tt.function, tt.params)
			assert.Contains(t, key, tt.function)
			assert.NotContains(t, key, "apikey=")
		})
	}
}

// TestAPIErrorDetection tests detection of soft error responses.
func TestAPIErrorDetection(t *testing.T) {
	client := NewClient("test-key", nil, zerolog.Nop())

	tests := []struct {
		name        string
		body        string
		expectError bool
		errorType   error
	}{
		{
			name:        "Rate limit note",
			body:        `{"Note": "API call frequency is limited"}`,
			expectError: true,
			errorType:   domain.RateLimitError{},
		},
		{
			name:        "Information message",
			body:        `{"Information": "25 requests per day limit reached"}`,
			expectError: true,
			errorType:   domain.RateLimitError{},
		},
		{
			name:        "Error message",
			body:        `{"Error Message": "Invalid symbol"}`,
			expectError: true,
			errorType:   domain.NotFoundError{},
		},
		{
			name:        "Thank you message",
			body:        `Thank you for using Alpha Vantage!`,
			expectError: true,
			errorType:   domain.RateLimitError{},
		},
		{
			name:        "Valid response",
			body:        `{"symbol": "IBM"}`,
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.checkAPIError([]byte(tt.body), "IBM")
			if tt.expectError {
				require.Error(t, err)
				if tt.errorType != nil {
					assert.IsType(t, tt.errorType, err)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestNextLocalMidnight tests the quota reset time calculation. The
// boundary must be midnight of the next local calendar day, not UTC: in
// any other zone a UTC boundary would roll the counter hours off the day
// the scheduled reset job fires on.
func TestNextLocalMidnight(t *testing.T) {
	now := time.Now()
	midnight := nextLocalMidnight()

	assert.True(t, midnight.After(now))
	assert.True(t, midnight.Sub(now) <= 24*time.Hour)

	y, m, d := now.AddDate(0, 0, 1).Date()
	assert.Equal(t, time.Date(y, m, d, 0, 0, 0, 0, time.Local), midnight)
}

// TestQuotaResetAtLocalBoundary verifies a counter with a reset time in
// the past rolls over on the next quota check.
func TestQuotaResetAtLocalBoundary(t *testing.T) {
	client := NewClient("test-key", nil, zerolog.Nop())

	client.mu.Lock()
	client.requestCount = dailyLimit
	client.resetAt = time.Now().Add(-time.Minute)
	client.mu.Unlock()

	assert.Equal(t, dailyLimit, client.GetRemainingRequests())

	client.mu.Lock()
	nextReset := client.resetAt
	client.mu.Unlock()
	assert.Equal(t, nextLocalMidnight(), nextReset)
}

// TestFetchPeriods tests pairing of income and balance reports.
func TestFetchPeriods(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("function") {
		case "INCOME_STATEMENT":
			w.Write([]byte(`{
				"symbol": "IBM",
				"annualReports": [
					{
						"fiscalDateEnding": "2023-12-31",
						"totalRevenue": "60000000000",
						"operatingIncome": "9000000000",
						"netIncome": "7200000000",
						"ebitda": "None"
					}
				],
				"quarterlyReports": []
			}`))
		case "BALANCE_SHEET":
			w.Write([]byte(`{
				"symbol": "IBM",
				"annualReports": [
					{
						"fiscalDateEnding": "2023-12-31",
						"totalAssets": "135000000000",
						"totalCurrentLiabilities": "34000000000",
						"shortLongTermDebtTotal": "55000000000"
					}
				],
				"quarterlyReports": []
			}`))
		}
	}))
	defer server.Close()

	client := NewClient("test-key", nil, zerolog.Nop())
	client.baseURL = server.URL
	client.spacing = 0

	periods, err := client.FetchPeriods(context.Background(), "IBM", domain.TimeframeAnnual, 4)
	require.NoError(t, err)
	require.Len(t, periods, 1)

	assert.Equal(t, "2023-12-31", periods[0].EndDate)
	assert.Equal(t, "FY", periods[0].FiscalPeriod)
	assert.Equal(t, "2023", periods[0].FiscalYear)
	assert.Equal(t, "60000000000", periods[0].Income["totalRevenue"])
	assert.Equal(t, "135000000000", periods[0].Balance["totalAssets"])

	// A financials fetch costs two quota requests.
	assert.Equal(t, 23, client.GetRemainingRequests())
}

// TestFetchPeriodsQuotaPrecheck verifies the fetch fails proactively when
// fewer than two requests remain.
func TestFetchPeriodsQuotaPrecheck(t *testing.T) {
	client := NewClient("test-key", nil, zerolog.Nop())
	for i := 0; i < 24; i++ {
		require.NoError(t, client.checkRateLimit())
	}
	require.Equal(t, 1, client.GetRemainingRequests())

	_, err := client.FetchPeriods(context.Background(), "IBM", domain.TimeframeAnnual, 4)
	require.Error(t, err)
	assert.IsType(t, domain.RateLimitError{}, err)
	// The failed precheck must not consume the last request.
	assert.Equal(t, 1, client.GetRemainingRequests())
}

// TestFetchPeriodsNoAPIKey tests the missing-credential path.
func TestFetchPeriodsNoAPIKey(t *testing.T) {
	client := NewClient("", nil, zerolog.Nop())

	_, err := client.FetchPeriods(context.Background(), "IBM", domain.TimeframeAnnual, 4)
	require.Error(t, err)
	assert.IsType(t, domain.AuthError{}, err)
}

// TestFetchReference tests the OVERVIEW fetch.
func TestFetchReference(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "OVERVIEW", r.URL.Query().Get("function"))
		w.Write([]byte(`{
			"Symbol": "IBM",
			"MarketCapitalization": "125000000000",
			"SharesOutstanding": "920000000"
		}`))
	}))
	defer server.Close()

	client := NewClient("test-key", nil, zerolog.Nop())
	client.baseURL = server.URL

	ref, err := client.FetchReference(context.Background(), "IBM")
	require.NoError(t, err)
	require.NotNil(t, ref.MarketCap)
	assert.Equal(t, 125000000000.0, *ref.MarketCap)
	require.NotNil(t, ref.ShareClassSharesOutstanding)
	assert.Equal(t, 920000000.0, *ref.ShareClassSharesOutstanding)
	// Single shares figure populates both aliases.
	require.NotNil(t, ref.WeightedSharesOutstanding)
	assert.Equal(t, 920000000.0, *ref.WeightedSharesOutstanding)
}

// TestProvider verifies the adapter identity.
func TestProvider(t *testing.T) {
	client := NewClient("key", nil, zerolog.Nop())
	assert.Equal(t, domain.ProviderAlphaVantage, client.Provider())
}
