package fundamentals

import (
	"context"

	"github.com/openfund/fundament/internal/domain"
	"github.com/rs/zerolog"
)

// Service aggregates data across provider adapters with two-tier
// fallback. Tier one resolves which provider to ask (explicit override,
// else configured default, degrading to the keyless provider when the
// requested one has no credential). Tier two falls back to Yahoo exactly
// once when the primary attempt fails or returns nothing.
type Service struct {
	clients         map[domain.Provider]domain.ProviderClient
	defaultProvider domain.Provider
	enableFallback  bool
	log             zerolog.Logger
}

// NewService creates the aggregator. Adapters are attached with Register;
// only adapters with working credentials should be registered.
func NewService(defaultProvider domain.Provider, enableFallback bool, log zerolog.Logger) *Service {
	return &Service{
		clients:         make(map[domain.Provider]domain.ProviderClient),
		defaultProvider: defaultProvider,
		enableFallback:  enableFallback,
		log:             log.With().Str("component", "fundamentals").Logger(),
	}
}

// Register attaches a provider adapter.
func (s *Service) Register(client domain.ProviderClient) {
	s.clients[client.Provider()] = client
}

// FinancialsResult is the aggregated response for one ticker: normalized
// periods plus which provider actually served the data.
type FinancialsResult struct {
	Ticker       string                   `json:"ticker"`
	ProviderUsed domain.Provider          `json:"provider_used"`
	Timeframe    domain.Timeframe         `json:"timeframe"`
	Periods      []domain.CanonicalPeriod `json:"periods"`
}

// resolveProvider picks the provider for a request. An unknown override
// name is an error, never a silent fallthrough to the default. A known
// but unregistered provider (missing API key) degrades to Yahoo with a
// warning.
func (s *Service) resolveProvider(override string) (domain.Provider, error) {
	requested := s.defaultProvider
	if override != "" {
		p, err := domain.ParseProvider(override)
		if err != nil {
			return "", err
		}
		requested = p
	}

	if _, ok := s.clients[requested]; !ok {
		s.log.Warn().
			Str("requested", string(requested)).
			Msg("Provider not configured, degrading to yahoo")
		requested = domain.ProviderYahoo
	}
	return requested, nil
}

// GetFinancials fetches and normalizes reporting periods for a ticker.
// providerOverride may be empty. All provider failures collapse into
// domain.ErrNoData at this boundary.
func (s *Service) GetFinancials(ctx context.Context, ticker, providerOverride string, timeframe domain.Timeframe, limit int) (*FinancialsResult, error) {
	provider, err := s.resolveProvider(providerOverride)
	if err != nil {
		return nil, err
	}

	raws, used, err := s.fetchWithFallback(ctx, ticker, provider, timeframe, limit)
	if err != nil {
		return nil, err
	}

	client := s.clients[used]
	periods := make([]domain.CanonicalPeriod, 0, len(raws))
	for _, raw := range raws {
		period := client.NormalizeIncome(raw)
		period.Merge(client.NormalizeBalance(raw))
		period.Ticker = ticker
		periods = append(periods, period)
	}

	return &FinancialsResult{
		Ticker:       ticker,
		ProviderUsed: used,
		Timeframe:    timeframe,
		Periods:      periods,
	}, nil
}

// fetchWithFallback runs the primary attempt and at most one fallback to
// Yahoo. Fallback failure details are logged, not propagated: the caller
// sees ErrNoData regardless of why both tiers failed.
func (s *Service) fetchWithFallback(ctx context.Context, ticker string, provider domain.Provider, timeframe domain.Timeframe, limit int) ([]domain.RawPeriod, domain.Provider, error) {
	client, ok := s.clients[provider]
	if ok {
		raws, err := client.FetchPeriods(ctx, ticker, timeframe, limit)
		if err == nil && len(raws) > 0 {
			return raws, provider, nil
		}
		if err != nil {
			s.log.Warn().
				Err(err).
				Str("provider", string(provider)).
				Str("ticker", ticker).
				Msg("Primary provider failed")
		} else {
			s.log.Warn().
				Str("provider", string(provider)).
				Str("ticker", ticker).
				Msg("Primary provider returned no periods")
		}
	}

	if !s.enableFallback || provider == domain.ProviderYahoo {
		return nil, "", domain.ErrNoData
	}

	fallback, ok := s.clients[domain.ProviderYahoo]
	if !ok {
		return nil, "", domain.ErrNoData
	}

	raws, err := fallback.FetchPeriods(ctx, ticker, timeframe, limit)
	if err != nil || len(raws) == 0 {
		if err != nil {
			s.log.Warn().Err(err).Str("ticker", ticker).Msg("Fallback provider failed")
		}
		return nil, "", domain.ErrNoData
	}

	s.log.Info().
		Str("primary", string(provider)).
		Str("ticker", ticker).
		Msg("Fell back to yahoo")
	return raws, domain.ProviderYahoo, nil
}

// GetReference fetches market reference data with the same two-tier
// fallback as financials.
func (s *Service) GetReference(ctx context.Context, ticker, providerOverride string) (*domain.TickerReference, domain.Provider, error) {
	provider, err := s.resolveProvider(providerOverride)
	if err != nil {
		return nil, "", err
	}

	if client, ok := s.clients[provider]; ok {
		ref, err := client.FetchReference(ctx, ticker)
		if err == nil && ref != nil {
			return ref, provider, nil
		}
		if err != nil {
			s.log.Warn().
				Err(err).
				Str("provider", string(provider)).
				Str("ticker", ticker).
				Msg("Primary provider failed for reference data")
		}
	}

	if !s.enableFallback || provider == domain.ProviderYahoo {
		return nil, "", domain.ErrNoData
	}

	fallback, ok := s.clients[domain.ProviderYahoo]
	if !ok {
		return nil, "", domain.ErrNoData
	}

	ref, err := fallback.FetchReference(ctx, ticker)
	if err != nil || ref == nil {
		if err != nil {
			s.log.Warn().Err(err).Str("ticker", ticker).Msg("Fallback provider failed for reference data")
		}
		return nil, "", domain.ErrNoData
	}
	return ref, domain.ProviderYahoo, nil
}

// GetMetrics computes derived metrics from the latest reporting period.
// Reference data is best effort: when no provider can serve it the
// metrics are still computed and the notes explain what is missing.
func (s *Service) GetMetrics(ctx context.Context, ticker, providerOverride string, timeframe domain.Timeframe) (*domain.MetricsResult, domain.Provider, error) {
	fin, err := s.GetFinancials(ctx, ticker, providerOverride, timeframe, 1)
	if err != nil {
		return nil, "", err
	}
	if len(fin.Periods) == 0 {
		return nil, "", domain.ErrNoData
	}

	ref, _, refErr := s.GetReference(ctx, ticker, providerOverride)
	if refErr != nil {
		s.log.Warn().
			Err(refErr).
			Str("ticker", ticker).
			Msg("No reference data, computing metrics without market cap")
		ref = nil
	}

	metrics := CalculateMetrics(ticker, timeframe, fin.Periods[0], ref)
	return &metrics, fin.ProviderUsed, nil
}
