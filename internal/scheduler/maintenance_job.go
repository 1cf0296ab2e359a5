package scheduler

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/dchernov/ibfolio/internal/reliability"
)

// MaintenanceJob runs periodic database maintenance
type MaintenanceJob struct {
	maintenance *reliability.MaintenanceService
	log         zerolog.Logger
}

// NewMaintenanceJob creates a new maintenance job
func NewMaintenanceJob(maintenance *reliability.MaintenanceService, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		maintenance: maintenance,
		log:         log.With().Str("job", "maintenance").Logger(),
	}
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// Run executes one maintenance pass
func (j *MaintenanceJob) Run(ctx context.Context) error {
	return j.maintenance.Run(ctx)
}
