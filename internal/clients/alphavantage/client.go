// Package alphavantage provides a client for the Alpha Vantage fundamentals
// API with free-tier rate limiting (25 requests/day, strict spacing).
package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/openfund/fundament/internal/clientdata"
	"github.com/openfund/fundament/internal/domain"
	"github.com/rs/zerolog"
)

const (
	cacheTable = "alphavantage_financials"

	// Free tier quota. Exceeding it returns soft errors (HTTP 200 with a
	// "Note" body), so the quota is enforced locally before each call.
	dailyLimit = 25

	// Free tier allows 5 requests/minute; 12s spacing keeps us under it.
	minInterval = 12 * time.Second
)

// cacheEntry is an in-memory memo cache entry.
type cacheEntry struct {
	data      interface{}
	expiresAt time.Time
}

// Client for the Alpha Vantage API.
//
// Rate limiting is self-imposed and proactive: the daily counter is
// checked and incremented atomically before each upstream call, and a
// quota violation surfaces as a rate-limit error without burning a
// request upstream.
type Client struct {
	apiKey    string
	baseURL   string
	client    *http.Client
	log       zerolog.Logger
	cacheRepo *clientdata.Repository

	mu           sync.Mutex
	requestCount int
	resetAt      time.Time
	lastRequest  time.Time
	spacing      time.Duration

	cacheMu   sync.RWMutex
	memoCache map[string]cacheEntry
}

// NewClient creates a new Alpha Vantage client.
// cacheRepo is optional - if nil, persistent caching is disabled.
func NewClient(apiKey string, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	return &Client{
		apiKey:    apiKey,
		baseURL:   "https://www.alphavantage.co/query",
		client:    &http.Client{Timeout: 30 * time.Second},
		log:       log.With().Str("client", "alphavantage").Logger(),
		cacheRepo: cacheRepo,
		resetAt:   nextLocalMidnight(),
		spacing:   minInterval,
		memoCache: make(map[string]cacheEntry),
	}
}

// Provider identifies this adapter.
func (c *Client) Provider() domain.Provider {
	return domain.ProviderAlphaVantage
}

// nextLocalMidnight returns the next local-time midnight. The free-tier
// quota rolls over with the local calendar day, the same boundary the
// scheduled reset job fires on.
func nextLocalMidnight() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local).AddDate(0, 0, 1)
}

// GetRemainingRequests returns how many requests are left in today's quota.
func (c *Client) GetRemainingRequests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maybeResetLocked()
	return dailyLimit - c.requestCount
}

// ResetDailyCounter resets the daily request counter. Called by the
// scheduler at local midnight and available for manual resets.
func (c *Client) ResetDailyCounter() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestCount = 0
	c.resetAt = nextLocalMidnight()
	c.log.Info().Msg("Daily request counter reset")
}

// maybeResetLocked rolls the counter over if the reset time has passed.
// Caller must hold c.mu.
func (c *Client) maybeResetLocked() {
	if time.Now().After(c.resetAt) {
		c.requestCount = 0
		c.resetAt = nextLocalMidnight()
	}
}

// checkRateLimit atomically checks the daily quota and claims one request.
// Check and increment happen under one lock so concurrent callers can
// never jointly exceed the quota.
func (c *Client) checkRateLimit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maybeResetLocked()

	if c.requestCount >= dailyLimit {
		return domain.RateLimitError{
			Provider: domain.ProviderAlphaVantage,
			Message:  fmt.Sprintf("daily limit of %d requests reached, resets at %s", dailyLimit, c.resetAt.Format(time.RFC3339)),
		}
	}
	c.requestCount++
	return nil
}

// waitInterval blocks until the minimum request spacing has elapsed.
func (c *Client) waitInterval() {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.lastRequest)
	if elapsed < c.spacing && !c.lastRequest.IsZero() {
		time.Sleep(c.spacing - elapsed)
	}
	c.lastRequest = time.Now()
}

// buildCacheKey generates a deterministic cache key from function and
// params. The apikey param is excluded so keys are safe to log and store.
func buildCacheKey(function string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "apikey" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(function)
	for _, k := range keys {
		sb.WriteString("&")
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(params[k])
	}
	return sb.String()
}

// setCache stores data in the in-memory memo cache.
func (c *Client) setCache(key string, data interface{}, ttl time.Duration) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.memoCache[key] = cacheEntry{data: data, expiresAt: time.Now().Add(ttl)}
}

// getFromCache retrieves unexpired data from the memo cache.
func (c *Client) getFromCache(key string) (interface{}, bool) {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	entry, ok := c.memoCache[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.data, true
}

// ClearCache drops all memo cache entries.
func (c *Client) ClearCache() {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.memoCache = make(map[string]cacheEntry)
}

// checkAPIError detects Alpha Vantage soft errors: the API returns
// HTTP 200 with an explanatory body when the quota is exhausted or the
// symbol is unknown.
func (c *Client) checkAPIError(body []byte, ticker string) error {
	text := string(body)
	if strings.Contains(text, "Thank you for using Alpha Vantage") {
		return domain.RateLimitError{Provider: domain.ProviderAlphaVantage, Message: "premium endpoint or quota exhausted"}
	}

	var probe map[string]interface{}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil
	}
	if note, ok := probe["Note"].(string); ok {
		return domain.RateLimitError{Provider: domain.ProviderAlphaVantage, Message: note}
	}
	if info, ok := probe["Information"].(string); ok {
		return domain.RateLimitError{Provider: domain.ProviderAlphaVantage, Message: info}
	}
	if _, ok := probe["Error Message"]; ok {
		return domain.NotFoundError{Provider: domain.ProviderAlphaVantage, Ticker: ticker}
	}
	return nil
}

// doRequest performs one rate-limited API call, consulting the memo
// cache first. A memo hit does not consume quota.
func (c *Client) doRequest(ctx context.Context, function, ticker string, ttl time.Duration) ([]byte, error) {
	params := map[string]string{"symbol": ticker}
	cacheKey := buildCacheKey(function, params)

	if cached, ok := c.getFromCache(cacheKey); ok {
		if body, ok := cached.([]byte); ok {
			c.log.Debug().Str("function", function).Str("ticker", ticker).Msg("Memo cache hit")
			return body, nil
		}
	}

	if err := c.checkRateLimit(); err != nil {
		return nil, err
	}
	c.waitInterval()

	endpoint := fmt.Sprintf("%s?function=%s&symbol=%s&apikey=%s",
		c.baseURL, function, url.QueryEscape(ticker), c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.TransientError{Provider: domain.ProviderAlphaVantage, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, domain.AuthError{Provider: domain.ProviderAlphaVantage, Message: fmt.Sprintf("status %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, domain.RateLimitError{Provider: domain.ProviderAlphaVantage, Message: "HTTP 429 from API"}
	case resp.StatusCode != http.StatusOK:
		return nil, domain.TransientError{
			Provider: domain.ProviderAlphaVantage,
			Err:      fmt.Errorf("API returned status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.TransientError{Provider: domain.ProviderAlphaVantage, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if err := c.checkAPIError(body, ticker); err != nil {
		return nil, err
	}

	c.setCache(cacheKey, body, ttl)
	return body, nil
}

// statementResponse mirrors INCOME_STATEMENT and BALANCE_SHEET payloads.
// Report values are strings, with "None" as the null sentinel; fields are
// kept as raw maps so normalization scrubs them uniformly.
type statementResponse struct {
	Symbol           string                   `json:"symbol"`
	AnnualReports    []map[string]interface{} `json:"annualReports"`
	QuarterlyReports []map[string]interface{} `json:"quarterlyReports"`
}

// FetchPeriods fetches income statement and balance sheet reports and
// pairs them by fiscal period end date, most recent first.
//
// This costs two quota requests, checked up front so a partially
// exhausted quota never burns one request and fails on the second.
func (c *Client) FetchPeriods(ctx context.Context, ticker string, timeframe domain.Timeframe, limit int) ([]domain.RawPeriod, error) {
	if c.apiKey == "" {
		return nil, domain.AuthError{Provider: domain.ProviderAlphaVantage, Message: "API key not configured"}
	}

	persistentKey := fmt.Sprintf("%s:%s:%d", ticker, timeframe, limit)

	if c.cacheRepo != nil {
		data, err := c.cacheRepo.GetIfFresh(cacheTable, persistentKey)
		if err == nil && data != nil {
			var cached []domain.RawPeriod
			if err := json.Unmarshal(data, &cached); err == nil {
				c.log.Debug().Str("ticker", ticker).Msg("Cache hit")
				return cached, nil
			}
		}
	}

	if remaining := c.GetRemainingRequests(); remaining < 2 {
		err := domain.RateLimitError{
			Provider: domain.ProviderAlphaVantage,
			Message:  fmt.Sprintf("financials fetch needs 2 requests, %d remaining today", remaining),
		}
		if stale, ok := c.getStalePeriods(persistentKey); ok {
			c.log.Warn().Str("ticker", ticker).Msg("Quota exhausted, using stale cached financials")
			return stale, nil
		}
		return nil, err
	}

	incomeBody, err := c.doRequest(ctx, "INCOME_STATEMENT", ticker, clientdata.TTLFinancials)
	if err != nil {
		return c.staleOrError(persistentKey, ticker, err)
	}
	balanceBody, err := c.doRequest(ctx, "BALANCE_SHEET", ticker, clientdata.TTLFinancials)
	if err != nil {
		return c.staleOrError(persistentKey, ticker, err)
	}

	var income, balance statementResponse
	if err := json.Unmarshal(incomeBody, &income); err != nil {
		return nil, domain.TransientError{Provider: domain.ProviderAlphaVantage, Err: fmt.Errorf("failed to parse income statement: %w", err)}
	}
	if err := json.Unmarshal(balanceBody, &balance); err != nil {
		return nil, domain.TransientError{Provider: domain.ProviderAlphaVantage, Err: fmt.Errorf("failed to parse balance sheet: %w", err)}
	}

	incomeReports := income.AnnualReports
	balanceReports := balance.AnnualReports
	if timeframe == domain.TimeframeQuarterly {
		incomeReports = income.QuarterlyReports
		balanceReports = balance.QuarterlyReports
	}

	balanceByDate := make(map[string]map[string]interface{}, len(balanceReports))
	for _, report := range balanceReports {
		if date, ok := report["fiscalDateEnding"].(string); ok {
			balanceByDate[date] = report
		}
	}

	periods := make([]domain.RawPeriod, 0, len(incomeReports))
	for i, report := range incomeReports {
		if limit > 0 && len(periods) >= limit {
			break
		}
		date, _ := report["fiscalDateEnding"].(string)

		raw := domain.RawPeriod{
			EndDate: date,
			Income:  report,
			Balance: balanceByDate[date],
		}
		if timeframe == domain.TimeframeQuarterly {
			raw.FiscalPeriod = fmt.Sprintf("Q%d", (i%4)+1)
		} else {
			raw.FiscalPeriod = "FY"
		}
		if len(date) >= 4 {
			raw.FiscalYear = date[:4]
		}
		periods = append(periods, raw)
	}

	if c.cacheRepo != nil && len(periods) > 0 {
		if err := c.cacheRepo.Store(cacheTable, persistentKey, periods, clientdata.TTLFinancials); err != nil {
			c.log.Warn().Err(err).Str("ticker", ticker).Msg("Failed to cache financials")
		}
	}

	c.log.Info().Str("ticker", ticker).Int("periods", len(periods)).Msg("Fetched financials")
	return periods, nil
}

// FetchReference fetches market cap and shares outstanding from the
// OVERVIEW function (one quota request).
func (c *Client) FetchReference(ctx context.Context, ticker string) (*domain.TickerReference, error) {
	if c.apiKey == "" {
		return nil, domain.AuthError{Provider: domain.ProviderAlphaVantage, Message: "API key not configured"}
	}

	cacheKey := "alphavantage:" + ticker

	if c.cacheRepo != nil {
		data, err := c.cacheRepo.GetIfFresh("ticker_reference", cacheKey)
		if err == nil && data != nil {
			var cached domain.TickerReference
			if err := json.Unmarshal(data, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	body, err := c.doRequest(ctx, "OVERVIEW", ticker, clientdata.TTLReference)
	if err != nil {
		if c.cacheRepo != nil {
			if data, cerr := c.cacheRepo.Get("ticker_reference", cacheKey); cerr == nil && data != nil {
				var cached domain.TickerReference
				if jerr := json.Unmarshal(data, &cached); jerr == nil {
					c.log.Warn().Err(err).Str("ticker", ticker).Msg("API failed, using stale cached reference")
					return &cached, nil
				}
			}
		}
		return nil, err
	}

	var overview map[string]interface{}
	if err := json.Unmarshal(body, &overview); err != nil {
		return nil, domain.TransientError{Provider: domain.ProviderAlphaVantage, Err: fmt.Errorf("failed to parse overview: %w", err)}
	}
	if len(overview) == 0 {
		return nil, domain.NotFoundError{Provider: domain.ProviderAlphaVantage, Ticker: ticker}
	}

	shares := domain.SafeFloat(overview, "SharesOutstanding")
	ref := &domain.TickerReference{
		Ticker:                      ticker,
		MarketCap:                   domain.SafeFloat(overview, "MarketCapitalization"),
		ShareClassSharesOutstanding: shares,
		WeightedSharesOutstanding:   shares,
	}

	if c.cacheRepo != nil {
		if err := c.cacheRepo.Store("ticker_reference", cacheKey, ref, clientdata.TTLReference); err != nil {
			c.log.Warn().Err(err).Str("ticker", ticker).Msg("Failed to cache reference data")
		}
	}

	return ref, nil
}

// staleOrError returns stale cached periods if available, otherwise err.
func (c *Client) staleOrError(persistentKey, ticker string, err error) ([]domain.RawPeriod, error) {
	if stale, ok := c.getStalePeriods(persistentKey); ok {
		c.log.Warn().Err(err).Str("ticker", ticker).Msg("API failed, using stale cached financials")
		return stale, nil
	}
	return nil, err
}

// getStalePeriods retrieves cached periods even if expired.
func (c *Client) getStalePeriods(cacheKey string) ([]domain.RawPeriod, bool) {
	if c.cacheRepo == nil {
		return nil, false
	}

	data, err := c.cacheRepo.Get(cacheTable, cacheKey)
	if err != nil || data == nil {
		return nil, false
	}

	var cached []domain.RawPeriod
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, false
	}
	return cached, true
}
