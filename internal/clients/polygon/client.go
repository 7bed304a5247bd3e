// Package polygon provides a client for the Polygon.io fundamentals and
// reference APIs.
package polygon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/openfund/fundament/internal/clientdata"
	"github.com/openfund/fundament/internal/domain"
	"github.com/rs/zerolog"
)

const cacheTable = "polygon_financials"

// Client for the Polygon.io REST API.
//
// The financials endpoint (vX/reference/financials) is marked experimental
// upstream and requires a paid key for most tickers.
type Client struct {
	apiKey    string
	baseURL   string
	client    *http.Client
	log       zerolog.Logger
	cacheRepo *clientdata.Repository
}

// NewClient creates a new Polygon.io client.
// cacheRepo is optional - if nil, caching is disabled.
func NewClient(apiKey string, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	return &Client{
		apiKey:    apiKey,
		baseURL:   "https://api.polygon.io",
		client:    &http.Client{Timeout: 15 * time.Second},
		log:       log.With().Str("client", "polygon").Logger(),
		cacheRepo: cacheRepo,
	}
}

// Provider identifies this adapter.
func (c *Client) Provider() domain.Provider {
	return domain.ProviderPolygon
}

// financialsResponse mirrors the vX/reference/financials payload shape.
// Statement line items arrive wrapped as {"value": N, "unit": ..., "label": ...}.
type financialsResponse struct {
	Results []struct {
		EndDate      string `json:"end_date"`
		FiscalPeriod string `json:"fiscal_period"`
		FiscalYear   string `json:"fiscal_year"`
		Financials   struct {
			IncomeStatement map[string]struct {
				Value *float64 `json:"value"`
			} `json:"income_statement"`
			BalanceSheet map[string]struct {
				Value *float64 `json:"value"`
			} `json:"balance_sheet"`
		} `json:"financials"`
	} `json:"results"`
	Status string `json:"status"`
}

// FetchPeriods fetches reporting periods for a ticker, most recent first.
// Responses are cached persistently; on upstream failure a stale cached
// copy is returned if one exists (stale data > no data).
func (c *Client) FetchPeriods(ctx context.Context, ticker string, timeframe domain.Timeframe, limit int) ([]domain.RawPeriod, error) {
	if c.apiKey == "" {
		return nil, domain.AuthError{Provider: domain.ProviderPolygon, Message: "API key not configured"}
	}

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

	endpoint := fmt.Sprintf("%s/vX/reference/financials?ticker=%s&timeframe=%s&limit=%d&apiKey=%s",
		c.baseURL, url.QueryEscape(ticker), timeframe, limit, c.apiKey)

	var parsed financialsResponse
	if err := c.getJSON(ctx, endpoint, ticker, &parsed); err != nil {
		if stale, ok := c.getStalePeriods(cacheKey); ok {
			c.log.Warn().Err(err).Str("ticker", ticker).Msg("API failed, using stale cached financials")
			return stale, nil
		}
		return nil, err
	}

	periods := make([]domain.RawPeriod, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		raw := domain.RawPeriod{
			EndDate:      r.EndDate,
			FiscalPeriod: r.FiscalPeriod,
			FiscalYear:   r.FiscalYear,
			Income:       make(map[string]interface{}, len(r.Financials.IncomeStatement)),
			Balance:      make(map[string]interface{}, len(r.Financials.BalanceSheet)),
		}
		// Unwrap the {"value": N} envelopes so normalization sees flat maps.
		for field, item := range r.Financials.IncomeStatement {
			if item.Value != nil {
				raw.Income[field] = *item.Value
			}
		}
		for field, item := range r.Financials.BalanceSheet {
			if item.Value != nil {
				raw.Balance[field] = *item.Value
			}
		}
		periods = append(periods, raw)
	}

	if c.cacheRepo != nil && len(periods) > 0 {
		if err := c.cacheRepo.Store(cacheTable, cacheKey, periods, clientdata.TTLFinancials); err != nil {
			c.log.Warn().Err(err).Str("ticker", ticker).Msg("Failed to cache financials")
		}
	}

	c.log.Info().Str("ticker", ticker).Int("periods", len(periods)).Msg("Fetched financials")
	return periods, nil
}

// referenceResponse mirrors v3/reference/tickers/{ticker}.
type referenceResponse struct {
	Results struct {
		Ticker                      string   `json:"ticker"`
		MarketCap                   *float64 `json:"market_cap"`
		ShareClassSharesOutstanding *float64 `json:"share_class_shares_outstanding"`
		WeightedSharesOutstanding   *float64 `json:"weighted_shares_outstanding"`
	} `json:"results"`
}

// FetchReference fetches market cap and shares outstanding for a ticker.
func (c *Client) FetchReference(ctx context.Context, ticker string) (*domain.TickerReference, error) {
	if c.apiKey == "" {
		return nil, domain.AuthError{Provider: domain.ProviderPolygon, Message: "API key not configured"}
	}

	cacheKey := "polygon:" + ticker

	if c.cacheRepo != nil {
		data, err := c.cacheRepo.GetIfFresh("ticker_reference", cacheKey)
		if err == nil && data != nil {
			var cached domain.TickerReference
			if err := json.Unmarshal(data, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	endpoint := fmt.Sprintf("%s/v3/reference/tickers/%s?apiKey=%s",
		c.baseURL, url.PathEscape(ticker), c.apiKey)

	var parsed referenceResponse
	if err := c.getJSON(ctx, endpoint, ticker, &parsed); err != nil {
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

	ref := &domain.TickerReference{
		Ticker:                      ticker,
		MarketCap:                   parsed.Results.MarketCap,
		ShareClassSharesOutstanding: parsed.Results.ShareClassSharesOutstanding,
		WeightedSharesOutstanding:   parsed.Results.WeightedSharesOutstanding,
	}

	if c.cacheRepo != nil {
		if err := c.cacheRepo.Store("ticker_reference", cacheKey, ref, clientdata.TTLReference); err != nil {
			c.log.Warn().Err(err).Str("ticker", ticker).Msg("Failed to cache reference data")
		}
	}

	return ref, nil
}

// getJSON performs a GET and decodes the response, mapping HTTP failures
// to the adapter error taxonomy.
func (c *Client) getJSON(ctx context.Context, endpoint, ticker string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		// Timeouts, DNS and connection failures all surface here.
		return domain.TransientError{Provider: domain.ProviderPolygon, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.AuthError{Provider: domain.ProviderPolygon, Message: fmt.Sprintf("status %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.RateLimitError{Provider: domain.ProviderPolygon, Message: "HTTP 429 from API"}
	case resp.StatusCode == http.StatusNotFound:
		return domain.NotFoundError{Provider: domain.ProviderPolygon, Ticker: ticker}
	case resp.StatusCode != http.StatusOK:
		return domain.TransientError{
			Provider: domain.ProviderPolygon,
			Err:      fmt.Errorf("API returned status %d", resp.StatusCode),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.TransientError{Provider: domain.ProviderPolygon, Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	return nil
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
