package domain

import (
	"errors"
	"fmt"
)

// ErrNoData is the aggregator's single outward failure signal. All
// adapter-level error kinds collapse into it at the aggregator boundary;
// HTTP handlers translate it to a 404-style response.
var ErrNoData = errors.New("no data available")

// NotFoundError means the ticker is unknown to the provider. Non-retriable;
// surfaced to the caller as "no data".
type NotFoundError struct {
	Provider Provider
	Ticker   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s: no data found for ticker %s", e.Provider, e.Ticker)
}

// RateLimitError means a provider-side or self-imposed quota was exceeded.
// Retriable via fallback to another provider, never via immediate retry.
type RateLimitError struct {
	Provider Provider
	Message  string
}

func (e RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limit exceeded: %s", e.Provider, e.Message)
}

// AuthError means the provider credential is missing or invalid. Triggers
// fallback to the always-available free provider.
type AuthError struct {
	Provider Provider
	Message  string
}

func (e AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %s", e.Provider, e.Message)
}

// TransientError wraps timeouts and connection failures. Retriable via
// fallback only; blind immediate retry of the same provider is never done.
type TransientError struct {
	Provider Provider
	Err      error
}

func (e TransientError) Error() string {
	return fmt.Sprintf("%s: transient error: %v", e.Provider, e.Err)
}

func (e TransientError) Unwrap() error {
	return e.Err
}
