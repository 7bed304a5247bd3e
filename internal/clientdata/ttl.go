package clientdata

import "time"

// TTL constants for cached provider payloads.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// Fundamentals update with quarterly filings; a day of staleness is
	// irrelevant for annual/quarterly statement data.
	TTLFinancials = 24 * time.Hour

	// Market cap and shares outstanding move with the market, keep short.
	TTLReference = time.Hour
)
