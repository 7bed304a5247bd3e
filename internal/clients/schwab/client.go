// Package schwab provides the OAuth2 token lifecycle and real-time quote
// client for the Schwab brokerage API.
package schwab

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openfund/fundament/internal/domain"
	"github.com/openfund/fundament/internal/tokenstore"
	"github.com/rs/zerolog"
)

// Client for the Schwab API. Token material lives in the encrypted store;
// the client only holds the app credential pair.
type Client struct {
	appKey      string
	appSecret   string
	redirectURI string

	baseURL       string
	marketDataURL string
	client        *http.Client
	store         *tokenstore.Store
	log           zerolog.Logger

	// Serializes refreshes so concurrent callers don't burn the same
	// refresh token twice.
	mu sync.Mutex
}

// NewClient creates a new Schwab client.
func NewClient(appKey, appSecret, redirectURI string, store *tokenstore.Store, log zerolog.Logger) *Client {
	return &Client{
		appKey:        appKey,
		appSecret:     appSecret,
		redirectURI:   redirectURI,
		baseURL:       "https://api.schwabapi.com/v1",
		marketDataURL: "https://api.schwabapi.com/marketdata/v1",
		client:        &http.Client{Timeout: 30 * time.Second},
		store:         store,
		log:           log.With().Str("client", "schwab").Logger(),
	}
}

// Configured reports whether the app credential pair is present.
func (c *Client) Configured() bool {
	return c.appKey != "" && c.appSecret != ""
}

// AuthorizeURL builds the user consent URL with a fresh random state
// token. The caller must verify the same state comes back on the
// callback before exchanging the code.
func (c *Client) AuthorizeURL() (authURL, state string) {
	state = uuid.NewString()
	params := url.Values{
		"response_type": {"code"},
		"client_id":     {c.appKey},
		"redirect_uri":  {c.redirectURI},
		"state":         {state},
	}
	return c.baseURL + "/oauth/authorize?" + params.Encode(), state
}

// tokenResponse mirrors the Schwab token endpoint payload.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	ExpiresIn    int64  `json:"expires_in"`
	Error        string `json:"error"`
}

// ExchangeCode trades an authorization code for tokens and persists them.
func (c *Client) ExchangeCode(ctx context.Context, code string) error {
	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {c.redirectURI},
	}
	tokens, err := c.tokenRequest(ctx, form)
	if err != nil {
		return err
	}

	if err := c.store.Save(*tokens); err != nil {
		return err
	}
	c.log.Info().Msg("Authorization code exchanged, tokens stored")
	return nil
}

// Refresh trades the stored refresh token for a new token set.
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.refreshLocked(ctx)
	return err
}

// refreshLocked returns the freshly saved token set so callers can use
// it directly instead of re-reading the store. Caller holds c.mu.
func (c *Client) refreshLocked(ctx context.Context) (*tokenstore.Tokens, error) {
	tokens, err := c.store.Load()
	if err != nil {
		return nil, err
	}
	if tokens == nil || !tokens.IsRefreshValid() {
		return nil, domain.AuthError{Provider: "schwab", Message: "no valid refresh token, re-authorization required"}
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {tokens.RefreshToken},
	}
	fresh, err := c.tokenRequest(ctx, form)
	if err != nil {
		return nil, err
	}

	if err := c.store.Save(*fresh); err != nil {
		return nil, err
	}
	c.log.Info().Msg("Access token refreshed")
	return fresh, nil
}

// tokenRequest posts to the token endpoint with HTTP Basic app
// credentials and decodes the response.
func (c *Client) tokenRequest(ctx context.Context, form url.Values) (*tokenstore.Tokens, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}

	basic := base64.StdEncoding.EncodeToString([]byte(c.appKey + ":" + c.appSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.TransientError{Provider: "schwab", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.TransientError{Provider: "schwab", Err: fmt.Errorf("failed to read token response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, domain.AuthError{
			Provider: "schwab",
			Message:  fmt.Sprintf("token endpoint returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if parsed.Error != "" {
		return nil, domain.AuthError{Provider: "schwab", Message: parsed.Error}
	}

	return &tokenstore.Tokens{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
		TokenType:    parsed.TokenType,
		Scope:        parsed.Scope,
		ExpiresIn:    parsed.ExpiresIn,
	}, nil
}

// GetValidAccessToken returns a usable access token, refreshing
// transparently when the stored one is expired or about to expire.
func (c *Client) GetValidAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tokens, err := c.store.Load()
	if err != nil {
		return "", err
	}
	if tokens == nil {
		return "", domain.AuthError{Provider: "schwab", Message: "not authorized, complete the OAuth flow first"}
	}

	if tokens.IsAccessExpired() {
		if !tokens.IsRefreshValid() {
			return "", domain.AuthError{Provider: "schwab", Message: "refresh token expired, re-authorization required"}
		}
		tokens, err = c.refreshLocked(ctx)
		if err != nil {
			return "", err
		}
	}

	return tokens.AccessToken, nil
}

// Status summarizes the token lifecycle for the OAuth status endpoint.
type Status struct {
	Configured       bool  `json:"configured"`
	Connected        bool  `json:"connected"`
	AccessExpired    bool  `json:"access_expired"`
	RefreshValid     bool  `json:"refresh_valid"`
	AccessExpiresAt  int64 `json:"access_expires_at,omitempty"`
	RefreshExpiresAt int64 `json:"refresh_expires_at,omitempty"`
}

// GetStatus reports the current token lifecycle state without touching
// the upstream API.
func (c *Client) GetStatus() Status {
	status := Status{Configured: c.Configured()}

	tokens, err := c.store.Load()
	if err != nil || tokens == nil {
		return status
	}

	status.Connected = tokens.IsRefreshValid()
	status.AccessExpired = tokens.IsAccessExpired()
	status.RefreshValid = tokens.IsRefreshValid()
	status.AccessExpiresAt = tokens.AccessExpiresAt
	status.RefreshExpiresAt = tokens.RefreshExpiresAt
	return status
}

// Disconnect deletes the stored tokens, requiring a new OAuth flow.
// Takes the refresh lock so a concurrent refresh cannot resurrect the
// token file mid-delete.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Delete()
}

// quotesResponse maps symbol -> quote envelope.
type quotesResponse map[string]struct {
	Quote struct {
		LastPrice   *float64 `json:"lastPrice"`
		BidPrice    *float64 `json:"bidPrice"`
		AskPrice    *float64 `json:"askPrice"`
		TotalVolume *float64 `json:"totalVolume"`
		QuoteTime   int64    `json:"quoteTime"`
	} `json:"quote"`
}

// GetQuotes fetches real-time quotes for a set of symbols.
func (c *Client) GetQuotes(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	if len(symbols) == 0 {
		return map[string]domain.Quote{}, nil
	}

	token, err := c.GetValidAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/quotes?symbols=%s&fields=quote",
		c.marketDataURL, url.QueryEscape(strings.Join(symbols, ",")))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build quotes request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.TransientError{Provider: "schwab", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, domain.AuthError{Provider: "schwab", Message: "access token rejected"}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, domain.RateLimitError{Provider: "schwab", Message: "HTTP 429 from API"}
	case resp.StatusCode != http.StatusOK:
		return nil, domain.TransientError{
			Provider: "schwab",
			Err:      fmt.Errorf("quotes endpoint returned status %d", resp.StatusCode),
		}
	}

	var parsed quotesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, domain.TransientError{Provider: "schwab", Err: fmt.Errorf("failed to parse quotes: %w", err)}
	}

	quotes := make(map[string]domain.Quote, len(parsed))
	for symbol, envelope := range parsed {
		quotes[symbol] = domain.Quote{
			Symbol:    symbol,
			Last:      envelope.Quote.LastPrice,
			Bid:       envelope.Quote.BidPrice,
			Ask:       envelope.Quote.AskPrice,
			Volume:    envelope.Quote.TotalVolume,
			Timestamp: envelope.Quote.QuoteTime,
		}
	}
	return quotes, nil
}

// GetQuote fetches one real-time quote.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	quotes, err := c.GetQuotes(ctx, []string{symbol})
	if err != nil {
		return nil, err
	}
	quote, ok := quotes[symbol]
	if !ok {
		return nil, domain.NotFoundError{Provider: "schwab", Ticker: symbol}
	}
	return &quote, nil
}
