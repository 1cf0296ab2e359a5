package scheduler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dchernov/ibfolio/internal/reliability"
)

// BackupJob uploads a database backup and rotates old ones
type BackupJob struct {
	backups       *reliability.BackupService
	retentionDays int
	log           zerolog.Logger
}

// NewBackupJob creates a new backup job
func NewBackupJob(backups *reliability.BackupService, retentionDays int, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		backups:       backups,
		retentionDays: retentionDays,
		log:           log.With().Str("job", "backup").Logger(),
	}
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "backup"
}

// Run creates, uploads, and rotates backups
func (j *BackupJob) Run(ctx context.Context) error {
	if err := j.backups.CreateAndUploadBackup(ctx); err != nil {
		return fmt.Errorf("backup upload failed: %w", err)
	}

	// Rotation failure leaves extra backups behind, nothing is lost
	if err := j.backups.RotateOldBackups(ctx, j.retentionDays); err != nil {
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}

	return nil
}
