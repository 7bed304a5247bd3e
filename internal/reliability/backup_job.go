package reliability

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// BackupJob runs the nightly backup and rotation cycle.
type BackupJob struct {
	service       *BackupService
	retentionDays int
	log           zerolog.Logger
}

// NewBackupJob creates the nightly backup job.
func NewBackupJob(service *BackupService, retentionDays int, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		service:       service,
		retentionDays: retentionDays,
		log:           log.With().Str("job", "r2_backup").Logger(),
	}
}

// Run creates and uploads a backup, then rotates old ones. Rotation
// failure is logged but does not fail the job; the backup itself is the
// critical part.
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := j.service.CreateAndUploadBackup(ctx); err != nil {
		return err
	}

	if err := j.service.RotateOldBackups(ctx, j.retentionDays); err != nil {
		j.log.Error().Err(err).Msg("Backup rotation failed")
	}
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *BackupJob) Name() string {
	return "r2_backup"
}
