package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dchernov/ibfolio/internal/modules/snapshot"
)

// SnapshotJob builds and persists a portfolio snapshot on schedule
type SnapshotJob struct {
	service *snapshot.Service
	log     zerolog.Logger
}

// NewSnapshotJob creates a new snapshot job
func NewSnapshotJob(service *snapshot.Service, log zerolog.Logger) *SnapshotJob {
	return &SnapshotJob{
		service: service,
		log:     log.With().Str("job", "snapshot").Logger(),
	}
}

// Name returns the job name
func (j *SnapshotJob) Name() string {
	return "snapshot"
}

// Run builds one snapshot end to end
func (j *SnapshotJob) Run(ctx context.Context) error {
	startTime := time.Now()

	snap, err := j.service.Build(ctx)
	if err != nil {
		return fmt.Errorf("snapshot build failed: %w", err)
	}

	j.log.Info().
		Int64("snapshot_id", snap.ID).
		Int("positions", len(snap.Positions)).
		Dur("duration", time.Since(startTime)).
		Msg("Scheduled snapshot completed")

	return nil
}
