package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dchernov/ibfolio/internal/database"
)

// MaintenanceService keeps the snapshot database healthy over long
// unattended runs: integrity check, WAL truncation, size reporting.
type MaintenanceService struct {
	db  *database.DB
	log zerolog.Logger
}

// NewMaintenanceService creates a maintenance service
func NewMaintenanceService(db *database.DB, log zerolog.Logger) *MaintenanceService {
	return &MaintenanceService{
		db:  db,
		log: log.With().Str("service", "maintenance").Logger(),
	}
}

// Run executes one maintenance pass
func (s *MaintenanceService) Run(ctx context.Context) error {
	startTime := time.Now()

	if err := s.db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	if err := s.db.WALCheckpoint("TRUNCATE"); err != nil {
		// Not critical; the autocheckpoint will catch up
		s.log.Warn().Err(err).Msg("WAL checkpoint failed")
	}

	if stats, err := s.db.GetStats(); err == nil {
		s.log.Info().
			Int64("size_bytes", stats.SizeBytes).
			Int64("wal_bytes", stats.WALSizeBytes).
			Int64("freelist_pages", stats.FreelistCount).
			Dur("duration_ms", time.Since(startTime)).
			Msg("Maintenance completed")
	}

	return nil
}
