// Package yahoo provides a client for Yahoo Finance fundamentals and
// quote data. Yahoo is keyless and serves as the ultimate fallback
// provider.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
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
	cacheTable = "yahoo_financials"

	// Yahoo blocks the default Go User-Agent; a browser one is required.
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// Minimum spacing between requests. Yahoo has no published quota but
	// throttles aggressive clients, so we self-impose a polite interval.
	minInterval = 500 * time.Millisecond
)

// Client for the Yahoo Finance API (fundamentals timeseries + quoteSummary).
type Client struct {
	baseURL   string
	cookieURL string
	client    *http.Client
	log       zerolog.Logger
	cacheRepo *clientdata.Repository

	mu          sync.Mutex
	lastRequest time.Time
	crumb       string
}

// NewClient creates a new Yahoo Finance client.
// cacheRepo is optional - if nil, caching is disabled.
func NewClient(cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		baseURL:   "https://query1.finance.yahoo.com",
		cookieURL: "https://fc.yahoo.com",
		client: &http.Client{
			Timeout: 15 * time.Second,
			Jar:     jar,
		},
		log:       log.With().Str("client", "yahoo").Logger(),
		cacheRepo: cacheRepo,
	}
}

// Provider identifies this adapter.
func (c *Client) Provider() domain.Provider {
	return domain.ProviderYahoo
}

// waitInterval blocks until the minimum request spacing has elapsed.
// Concurrent callers serialize behind the mutex, which keeps the spacing
// accurate under contention.
func (c *Client) waitInterval() {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.lastRequest)
	if elapsed < minInterval {
		time.Sleep(minInterval - elapsed)
	}
	c.lastRequest = time.Now()
}

// incomeTypes maps timeseries type names to the field names normalization
// looks up. The timeframe prefix (annual/quarterly) is prepended per request.
var incomeTypes = map[string]string{
	"TotalRevenue":     "Total Revenue",
	"OperatingIncome":  "Operating Income",
	"EBITDA":           "EBITDA",
	"EBIT":             "EBIT",
	"NetIncome":        "Net Income",
	"CostOfRevenue":    "Cost Of Revenue",
	"GrossProfit":      "Gross Profit",
	"OperatingExpense": "Operating Expense",
	"InterestExpense":  "Interest Expense",
}

var balanceTypes = map[string]string{
	"CurrentAssets":                       "Current Assets",
	"CurrentLiabilities":                  "Current Liabilities",
	"NetPPE":                              "Net PPE",
	"TotalAssets":                         "Total Assets",
	"TotalLiabilitiesNetMinorityInterest": "Total Liabilities Net Minority Interest",
	"StockholdersEquity":                  "Stockholders Equity",
	"CashAndCashEquivalents":              "Cash And Cash Equivalents",
	"CashCashEquivalentsAndShortTermInvestments": "Cash Cash Equivalents And Short Term Investments",
	"TotalDebt":     "Total Debt",
	"CurrentDebt":   "Current Debt",
	"ShortTermDebt": "Short Term Debt",
	"CurrentDebtAndCapitalLeaseObligation":  "Current Debt And Capital Lease Obligation",
	"CurrentCapitalLeaseObligation":         "Current Capital Lease Obligation",
	"LongTermDebt":                          "Long Term Debt",
	"LongTermDebtAndCapitalLeaseObligation": "Long Term Debt And Capital Lease Obligation",
}

// FetchPeriods fetches reporting periods via the fundamentals timeseries
// API, most recent first. Income and balance series are requested in one
// call and regrouped by period end date.
func (c *Client) FetchPeriods(ctx context.Context, ticker string, timeframe domain.Timeframe, limit int) ([]domain.RawPeriod, error) {
	cacheKey := fmt.Sprintf("%s:%s:%d", ticker, timeframe, limit)

	if c.cacheRepo != nil {
		data, err := c.cacheRepo.GetIfFresh(cacheTable, cacheKey)
		if err == nil && data != nil {
			var cached []domain.RawPeriod
			if err := json.Unmarshal(data, &cached); err == nil {
				c.log.Debug().Str("ticker", ticker).Msg("Cache hit")
				return cached, nil
			}
		}
	}

	prefix := "annual"
	if timeframe == domain.TimeframeQuarterly {
		prefix = "quarterly"
	}

	types := make([]string, 0, len(incomeTypes)+len(balanceTypes))
	for t := range incomeTypes {
		types = append(types, prefix+t)
	}
	for t := range balanceTypes {
		types = append(types, prefix+t)
	}
	sort.Strings(types)

	now := time.Now()
	endpoint := fmt.Sprintf(
		"%s/ws/fundamentals-timeseries/v1/finance/timeseries/%s?symbol=%s&type=%s&period1=%d&period2=%d",
		c.baseURL,
		url.PathEscape(ticker),
		url.QueryEscape(ticker),
		strings.Join(types, ","),
		now.AddDate(-6, 0, 0).Unix(),
		now.Unix(),
	)

	c.waitInterval()

	body, err := c.get(ctx, endpoint, ticker)
	if err != nil {
		if stale, ok := c.getStalePeriods(cacheKey); ok {
			c.log.Warn().Err(err).Str("ticker", ticker).Msg("API failed, using stale cached financials")
			return stale, nil
		}
		return nil, err
	}

	periods, err := parseTimeseries(body, timeframe, limit)
	if err != nil {
		if stale, ok := c.getStalePeriods(cacheKey); ok {
			c.log.Warn().Err(err).Str("ticker", ticker).Msg("Parse failed, using stale cached financials")
			return stale, nil
		}
		return nil, domain.TransientError{Provider: domain.ProviderYahoo, Err: err}
	}

	if c.cacheRepo != nil && len(periods) > 0 {
		if err := c.cacheRepo.Store(cacheTable, cacheKey, periods, clientdata.TTLFinancials); err != nil {
			c.log.Warn().Err(err).Str("ticker", ticker).Msg("Failed to cache financials")
		}
	}

	c.log.Info().Str("ticker", ticker).Int("periods", len(periods)).Msg("Fetched financials")
	return periods, nil
}

// timeseriesEnvelope is the outer shape of a timeseries response. Each
// result carries its data points under a key equal to the series type, so
// results are decoded in two passes.
type timeseriesEnvelope struct {
	Timeseries struct {
		Result []json.RawMessage `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"timeseries"`
}

type timeseriesPoint struct {
	AsOfDate      string `json:"asOfDate"`
	ReportedValue *struct {
		Raw *float64 `json:"raw"`
	} `json:"reportedValue"`
}

// parseTimeseries regroups per-type series into per-period raw records,
// most recent first.
func parseTimeseries(body []byte, timeframe domain.Timeframe, limit int) ([]domain.RawPeriod, error) {
	var envelope timeseriesEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse timeseries response: %w", err)
	}
	if envelope.Timeseries.Error != nil {
		return nil, fmt.Errorf("timeseries error: %s", envelope.Timeseries.Error.Description)
	}

	prefix := "annual"
	if timeframe == domain.TimeframeQuarterly {
		prefix = "quarterly"
	}

	byDate := make(map[string]*domain.RawPeriod)

	for _, rawResult := range envelope.Timeseries.Result {
		var meta struct {
			Meta struct {
				Type []string `json:"type"`
			} `json:"meta"`
		}
		if err := json.Unmarshal(rawResult, &meta); err != nil || len(meta.Meta.Type) == 0 {
			continue
		}
		seriesType := meta.Meta.Type[0]
		baseType := strings.TrimPrefix(seriesType, prefix)

		field, isIncome := incomeTypes[baseType]
		if !isIncome {
			var isBalance bool
			field, isBalance = balanceTypes[baseType]
			if !isBalance {
				continue
			}
		}

		var series map[string]json.RawMessage
		if err := json.Unmarshal(rawResult, &series); err != nil {
			continue
		}
		var points []*timeseriesPoint
		if err := json.Unmarshal(series[seriesType], &points); err != nil {
			continue
		}

		for _, p := range points {
			if p == nil || p.AsOfDate == "" || p.ReportedValue == nil || p.ReportedValue.Raw == nil {
				continue
			}
			period, ok := byDate[p.AsOfDate]
			if !ok {
				period = &domain.RawPeriod{
					EndDate: p.AsOfDate,
					Income:  make(map[string]interface{}),
					Balance: make(map[string]interface{}),
				}
				byDate[p.AsOfDate] = period
			}
			if isIncome {
				period.Income[field] = *p.ReportedValue.Raw
			} else {
				period.Balance[field] = *p.ReportedValue.Raw
			}
		}
	}

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	if limit > 0 && len(dates) > limit {
		dates = dates[:limit]
	}

	periods := make([]domain.RawPeriod, 0, len(dates))
	for i, d := range dates {
		p := byDate[d]
		if timeframe == domain.TimeframeQuarterly {
			p.FiscalPeriod = fmt.Sprintf("Q%d", (i%4)+1)
		} else {
			p.FiscalPeriod = "FY"
		}
		if len(d) >= 4 {
			p.FiscalYear = d[:4]
		}
		periods = append(periods, *p)
	}

	return periods, nil
}

// quoteSummaryResponse mirrors the v10 quoteSummary payload for the
// price and defaultKeyStatistics modules.
type quoteSummaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			Price *struct {
				MarketCap          *rawValue `json:"marketCap"`
				RegularMarketPrice *rawValue `json:"regularMarketPrice"`
			} `json:"price"`
			DefaultKeyStatistics *struct {
				SharesOutstanding *rawValue `json:"sharesOutstanding"`
			} `json:"defaultKeyStatistics"`
		} `json:"result"`
		Error *struct {
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteSummary"`
}

type rawValue struct {
	Raw *float64 `json:"raw"`
}

// FetchReference fetches market cap and shares outstanding via the
// quoteSummary API. The endpoint requires a session crumb, obtained once
// and reused.
func (c *Client) FetchReference(ctx context.Context, ticker string) (*domain.TickerReference, error) {
	cacheKey := "yahoo:" + ticker

	if c.cacheRepo != nil {
		data, err := c.cacheRepo.GetIfFresh("ticker_reference", cacheKey)
		if err == nil && data != nil {
			var cached domain.TickerReference
			if err := json.Unmarshal(data, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	crumb, err := c.ensureCrumb(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf(
		"%s/v10/finance/quoteSummary/%s?modules=price,defaultKeyStatistics&crumb=%s",
		c.baseURL, url.PathEscape(ticker), url.QueryEscape(crumb),
	)

	c.waitInterval()

	body, err := c.get(ctx, endpoint, ticker)
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

	var parsed quoteSummaryResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, domain.TransientError{Provider: domain.ProviderYahoo, Err: fmt.Errorf("failed to parse quoteSummary: %w", err)}
	}
	if len(parsed.QuoteSummary.Result) == 0 {
		return nil, domain.NotFoundError{Provider: domain.ProviderYahoo, Ticker: ticker}
	}

	result := parsed.QuoteSummary.Result[0]
	ref := &domain.TickerReference{Ticker: ticker}

	var price *float64
	if result.Price != nil {
		if result.Price.MarketCap != nil {
			ref.MarketCap = result.Price.MarketCap.Raw
		}
		if result.Price.RegularMarketPrice != nil {
			price = result.Price.RegularMarketPrice.Raw
		}
	}
	if result.DefaultKeyStatistics != nil && result.DefaultKeyStatistics.SharesOutstanding != nil {
		shares := result.DefaultKeyStatistics.SharesOutstanding.Raw
		ref.ShareClassSharesOutstanding = shares
		ref.WeightedSharesOutstanding = shares

		// Derive market cap from price * shares when not reported directly.
		if ref.MarketCap == nil && price != nil && shares != nil {
			ref.MarketCap = domain.Float(*price * *shares)
		}
	}

	if c.cacheRepo != nil {
		if err := c.cacheRepo.Store("ticker_reference", cacheKey, ref, clientdata.TTLReference); err != nil {
			c.log.Warn().Err(err).Str("ticker", ticker).Msg("Failed to cache reference data")
		}
	}

	return ref, nil
}

// ensureCrumb performs the cookie + crumb handshake once per client. The
// seed request against fc.yahoo.com intentionally fails with a 404; its
// only purpose is to populate the cookie jar.
func (c *Client) ensureCrumb(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.crumb != "" {
		return c.crumb, nil
	}

	seedReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cookieURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build cookie request: %w", err)
	}
	seedReq.Header.Set("User-Agent", userAgent)
	if resp, err := c.client.Do(seedReq); err == nil {
		resp.Body.Close()
	}

	crumbReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/test/getcrumb", nil)
	if err != nil {
		return "", fmt.Errorf("failed to build crumb request: %w", err)
	}
	crumbReq.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(crumbReq)
	if err != nil {
		return "", domain.TransientError{Provider: domain.ProviderYahoo, Err: fmt.Errorf("crumb request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", domain.TransientError{
			Provider: domain.ProviderYahoo,
			Err:      fmt.Errorf("crumb request returned status %d", resp.StatusCode),
		}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", domain.TransientError{Provider: domain.ProviderYahoo, Err: fmt.Errorf("failed to read crumb: %w", err)}
	}
	crumb := strings.TrimSpace(string(raw))
	if crumb == "" {
		return "", domain.TransientError{Provider: domain.ProviderYahoo, Err: fmt.Errorf("empty crumb")}
	}

	c.crumb = crumb
	return crumb, nil
}

// get performs a GET with the browser User-Agent and maps HTTP failures
// to the adapter error taxonomy.
func (c *Client) get(ctx context.Context, endpoint, ticker string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.TransientError{Provider: domain.ProviderYahoo, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, domain.RateLimitError{Provider: domain.ProviderYahoo, Message: "HTTP 429 from API"}
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.NotFoundError{Provider: domain.ProviderYahoo, Ticker: ticker}
	case resp.StatusCode != http.StatusOK:
		return nil, domain.TransientError{
			Provider: domain.ProviderYahoo,
			Err:      fmt.Errorf("API returned status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.TransientError{Provider: domain.ProviderYahoo, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	return body, nil
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
