package server

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfund/fundament/internal/clients/schwab"
	"github.com/openfund/fundament/internal/domain"
)

// stateTTL bounds how long an issued OAuth state is accepted on callback.
const stateTTL = 10 * time.Minute

// OAuthHandlers handles the Schwab OAuth flow and quote endpoints.
type OAuthHandlers struct {
	schwab      *schwab.Client
	frontendURL string
	log         zerolog.Logger

	// Issued states awaiting callback, keyed by state token.
	mu            sync.Mutex
	pendingStates map[string]time.Time
}

// NewOAuthHandlers creates the OAuth handlers.
func NewOAuthHandlers(client *schwab.Client, frontendURL string, log zerolog.Logger) *OAuthHandlers {
	return &OAuthHandlers{
		schwab:        client,
		frontendURL:   frontendURL,
		log:           log.With().Str("component", "oauth_handlers").Logger(),
		pendingStates: make(map[string]time.Time),
	}
}

// HandleConnect starts the OAuth flow.
// GET /api/v1/oauth/connect
func (h *OAuthHandlers) HandleConnect(w http.ResponseWriter, r *http.Request) {
	if !h.schwab.Configured() {
		writeDetail(w, http.StatusServiceUnavailable, "Schwab credentials not configured")
		return
	}

	authURL, state := h.schwab.AuthorizeURL()
	h.rememberState(state)

	writeJSON(w, http.StatusOK, map[string]string{
		"authorization_url": authURL,
		"state":             state,
	})
}

// rememberState records an issued state and prunes expired ones.
func (h *OAuthHandlers) rememberState(state string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	for s, issued := range h.pendingStates {
		if now.Sub(issued) > stateTTL {
			delete(h.pendingStates, s)
		}
	}
	h.pendingStates[state] = now
}

// consumeState verifies and single-uses a callback state.
func (h *OAuthHandlers) consumeState(state string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	issued, ok := h.pendingStates[state]
	if !ok {
		return false
	}
	delete(h.pendingStates, state)
	return time.Since(issued) <= stateTTL
}

// redirectFrontend sends the browser back to the frontend with a status
// marker in the query string.
func (h *OAuthHandlers) redirectFrontend(w http.ResponseWriter, r *http.Request, params url.Values) {
	http.Redirect(w, r, h.frontendURL+"/?"+params.Encode(), http.StatusTemporaryRedirect)
}

// HandleCallback completes the OAuth flow. Schwab redirects the user here
// with either a code or an error; either way the user lands back on the
// frontend.
// GET /api/v1/oauth/callback?code=&state=&error=
func (h *OAuthHandlers) HandleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if errParam := query.Get("error"); errParam != "" {
		h.log.Warn().Str("error", errParam).Msg("OAuth authorization denied")
		h.redirectFrontend(w, r, url.Values{"schwab": {"denied"}, "error": {errParam}})
		return
	}

	code := query.Get("code")
	if code == "" {
		h.redirectFrontend(w, r, url.Values{"schwab": {"error"}, "message": {"no_code"}})
		return
	}

	if !h.consumeState(query.Get("state")) {
		h.log.Warn().Msg("OAuth callback with unknown or expired state")
		h.redirectFrontend(w, r, url.Values{"schwab": {"error"}, "message": {"state_mismatch"}})
		return
	}

	if err := h.schwab.ExchangeCode(r.Context(), code); err != nil {
		h.log.Error().Err(err).Msg("Code exchange failed")
		h.redirectFrontend(w, r, url.Values{"schwab": {"error"}, "message": {err.Error()}})
		return
	}

	h.redirectFrontend(w, r, url.Values{"schwab": {"connected"}})
}

// HandleStatus reports the token lifecycle state.
// GET /api/v1/oauth/status
func (h *OAuthHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.schwab.GetStatus())
}

// HandleDisconnect deletes the stored tokens.
// POST /api/v1/oauth/disconnect
func (h *OAuthHandlers) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.schwab.Disconnect(); err != nil {
		h.log.Error().Err(err).Msg("Failed to delete tokens")
		writeDetail(w, http.StatusInternalServerError, "failed to disconnect")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

// HandleRefresh forces a token refresh.
// POST /api/v1/oauth/refresh
func (h *OAuthHandlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.schwab.Refresh(r.Context()); err != nil {
		h.writeQuoteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

// HandleQuote serves one real-time quote.
// GET /api/v1/oauth/quote/{symbol}
func (h *OAuthHandlers) HandleQuote(w http.ResponseWriter, r *http.Request) {
	symbol := tickerPath(r, "symbol")
	if symbol == "" {
		writeDetail(w, http.StatusBadRequest, "symbol is required")
		return
	}

	quote, err := h.schwab.GetQuote(r.Context(), symbol)
	if err != nil {
		h.writeQuoteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// HandleQuotes serves a batch of real-time quotes.
// GET /api/v1/oauth/quotes?symbols=AAPL,MSFT
func (h *OAuthHandlers) HandleQuotes(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("symbols")
	var symbols []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			symbols = append(symbols, s)
		}
	}
	if len(symbols) == 0 {
		writeDetail(w, http.StatusBadRequest, "symbols is required")
		return
	}

	quotes, err := h.schwab.GetQuotes(r.Context(), symbols)
	if err != nil {
		h.writeQuoteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quotes)
}

// writeQuoteError maps Schwab client errors onto HTTP status codes.
func (h *OAuthHandlers) writeQuoteError(w http.ResponseWriter, err error) {
	var authErr domain.AuthError
	var notFound domain.NotFoundError
	var rateLimit domain.RateLimitError

	switch {
	case errors.As(err, &authErr):
		writeDetail(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &notFound):
		writeDetail(w, http.StatusNotFound, err.Error())
	case errors.As(err, &rateLimit):
		writeDetail(w, http.StatusTooManyRequests, err.Error())
	default:
		writeDetail(w, http.StatusBadGateway, err.Error())
	}
}
