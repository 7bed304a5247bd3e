package alphavantage

import (
	"github.com/rs/zerolog"
)

// QuotaResetJob resets the daily request counter. Scheduled at local
// midnight, when the free-tier quota rolls over.
type QuotaResetJob struct {
	client *Client
	log    zerolog.Logger
}

// NewQuotaResetJob creates the reset job for a client.
func NewQuotaResetJob(client *Client, log zerolog.Logger) *QuotaResetJob {
	return &QuotaResetJob{
		client: client,
		log:    log.With().Str("job", "alphavantage_quota_reset").Logger(),
	}
}

// Run resets the counter. The client also self-resets lazily on its next
// request, so a missed run is not fatal.
func (j *QuotaResetJob) Run() error {
	j.client.ResetDailyCounter()
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *QuotaResetJob) Name() string {
	return "alphavantage_quota_reset"
}
