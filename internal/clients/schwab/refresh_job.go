package schwab

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// RefreshJob proactively refreshes the access token so interactive
// requests never pay the refresh latency. Scheduled hourly; Schwab access
// tokens live 30 minutes, so most runs find an expired token to renew.
type RefreshJob struct {
	client *Client
	log    zerolog.Logger
}

// NewRefreshJob creates the token refresh job.
func NewRefreshJob(client *Client, log zerolog.Logger) *RefreshJob {
	return &RefreshJob{
		client: client,
		log:    log.With().Str("job", "schwab_token_refresh").Logger(),
	}
}

// Run refreshes the access token when one is stored and refreshable.
// A missing token set is not an error: the user simply has not connected.
func (j *RefreshJob) Run() error {
	tokens, err := j.client.store.Load()
	if err != nil {
		return err
	}
	if tokens == nil {
		j.log.Debug().Msg("No tokens stored, nothing to refresh")
		return nil
	}
	if !tokens.IsRefreshValid() {
		j.log.Warn().Msg("Refresh token expired, re-authorization required")
		return nil
	}
	if !tokens.IsAccessExpired() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return j.client.Refresh(ctx)
}

// Name returns the job name for scheduling and logging.
func (j *RefreshJob) Name() string {
	return "schwab_token_refresh"
}
