package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/openfund/fundament/internal/domain"
)

// handleRoot returns API information
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Fundament API",
		"version": "1.0.0",
		"providers": map[string]interface{}{
			"supported": []string{"yahoo", "alphavantage", "polygon"},
			"default":   string(domain.ProviderYahoo),
		},
		"endpoints": map[string]string{
			"health":     "/health",
			"financials": "/api/v1/financials/{ticker}?timeframe=annual&limit=1",
			"metrics":    "/api/v1/metrics/{ticker}?timeframe=annual",
			"reference":  "/api/v1/reference/{ticker}",
		},
	})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"version": "1.0.0",
		"service": "fundament",
	})
}

// tickerPath extracts and canonicalizes a symbol-like path parameter.
func tickerPath(r *http.Request, name string) string {
	return strings.ToUpper(strings.TrimSpace(chi.URLParam(r, name)))
}

// tickerParam extracts and canonicalizes the ticker path parameter.
func tickerParam(r *http.Request) string {
	return tickerPath(r, "ticker")
}

// timeframeParam parses the timeframe query parameter, defaulting to annual.
func timeframeParam(r *http.Request) (domain.Timeframe, bool) {
	raw := r.URL.Query().Get("timeframe")
	if raw == "" {
		return domain.TimeframeAnnual, true
	}
	tf := domain.Timeframe(strings.ToLower(raw))
	return tf, tf.Valid()
}

// limitParam parses the limit query parameter, defaulting to 1, bounded 1..10.
func limitParam(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 1, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > 10 {
		return 0, false
	}
	return limit, true
}

// handleFinancials serves normalized reporting periods for a ticker.
// GET /api/v1/financials/{ticker}?timeframe=annual&limit=1&provider=
func (s *Server) handleFinancials(w http.ResponseWriter, r *http.Request) {
	ticker := tickerParam(r)
	if ticker == "" {
		writeDetail(w, http.StatusBadRequest, "ticker is required")
		return
	}

	timeframe, ok := timeframeParam(r)
	if !ok {
		writeDetail(w, http.StatusBadRequest, "timeframe must be 'annual' or 'quarterly'")
		return
	}

	limit, ok := limitParam(r)
	if !ok {
		writeDetail(w, http.StatusBadRequest, "limit must be between 1 and 10")
		return
	}

	result, err := s.fundamentals.GetFinancials(r.Context(), ticker, r.URL.Query().Get("provider"), timeframe, limit)
	if err != nil {
		s.writeFinancialError(w, ticker, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// metricsResponse tags the computed metrics with the provider that served
// the underlying period.
type metricsResponse struct {
	*domain.MetricsResult
	ProviderUsed domain.Provider `json:"provider_used"`
}

// handleMetrics serves derived metrics for a ticker's latest period.
// GET /api/v1/metrics/{ticker}?timeframe=annual&provider=
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	ticker := tickerParam(r)
	if ticker == "" {
		writeDetail(w, http.StatusBadRequest, "ticker is required")
		return
	}

	timeframe, ok := timeframeParam(r)
	if !ok {
		writeDetail(w, http.StatusBadRequest, "timeframe must be 'annual' or 'quarterly'")
		return
	}

	metrics, used, err := s.fundamentals.GetMetrics(r.Context(), ticker, r.URL.Query().Get("provider"), timeframe)
	if err != nil {
		s.writeFinancialError(w, ticker, err)
		return
	}

	writeJSON(w, http.StatusOK, metricsResponse{MetricsResult: metrics, ProviderUsed: used})
}

// referenceResponse tags reference data with the serving provider.
type referenceResponse struct {
	*domain.TickerReference
	ProviderUsed domain.Provider `json:"provider_used"`
}

// handleReference serves market reference data for a ticker.
// GET /api/v1/reference/{ticker}?provider=
func (s *Server) handleReference(w http.ResponseWriter, r *http.Request) {
	ticker := tickerParam(r)
	if ticker == "" {
		writeDetail(w, http.StatusBadRequest, "ticker is required")
		return
	}

	ref, used, err := s.fundamentals.GetReference(r.Context(), ticker, r.URL.Query().Get("provider"))
	if err != nil {
		s.writeFinancialError(w, ticker, err)
		return
	}

	writeJSON(w, http.StatusOK, referenceResponse{TickerReference: ref, ProviderUsed: used})
}

// writeFinancialError maps aggregator errors to HTTP responses. All
// provider failures arrive collapsed into ErrNoData (404); anything else
// is a request-shape problem (400).
func (s *Server) writeFinancialError(w http.ResponseWriter, ticker string, err error) {
	if errors.Is(err, domain.ErrNoData) {
		writeDetail(w, http.StatusNotFound, "No financial data found for ticker "+ticker)
		return
	}
	writeDetail(w, http.StatusBadRequest, err.Error())
}
