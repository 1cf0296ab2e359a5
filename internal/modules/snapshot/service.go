package snapshot

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dchernov/ibfolio/internal/modules/performance"
)

// Metric names computed by the service on top of the ledger figures
const (
	MetricPortfolioVolatility = "portfolio_volatility"
	MetricSharpeRatio         = "sharpe_ratio"
)

// Service orchestrates the snapshot pipeline: resolve header, assemble
// rows, derive portfolio risk metrics, persist.
type Service struct {
	client    GatewayClient
	assembler *Assembler
	resolver  *HeaderResolver
	repo      *Repository
	watchlist []string
	log       zerolog.Logger
}

// NewService creates a snapshot service
func NewService(
	client GatewayClient,
	assembler *Assembler,
	resolver *HeaderResolver,
	repo *Repository,
	watchlist []string,
	log zerolog.Logger,
) *Service {
	return &Service{
		client:    client,
		assembler: assembler,
		resolver:  resolver,
		repo:      repo,
		watchlist: watchlist,
		log:       log.With().Str("service", "snapshot").Logger(),
	}
}

// Build runs one full snapshot computation and persists the result.
// Account-level and transport-level failures abort the run; per-instrument
// failures have already been absorbed by the assembler.
func (s *Service) Build(ctx context.Context) (*Snapshot, error) {
	runID := uuid.NewString()
	log := s.log.With().Str("run_id", runID).Logger()

	accountID, err := s.client.PrimaryAccountID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve account: %w", err)
	}

	header, err := s.resolver.Resolve(ctx, accountID)
	if err != nil {
		return nil, err
	}

	result, err := s.assembler.Assemble(ctx, accountID, s.watchlist)
	if err != nil {
		return nil, err
	}

	s.applyRiskMetrics(header, result)

	snap := &Snapshot{
		Header:    *header,
		Positions: result.Rows,
	}

	id, err := s.repo.Save(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to persist snapshot: %w", err)
	}
	snap.ID = id

	log.Info().
		Int64("id", id).
		Str("account", header.Account).
		Int("positions", len(snap.Positions)).
		Msg("Snapshot built")

	return snap, nil
}

// applyRiskMetrics adds portfolio volatility and Sharpe ratio to the
// header metrics when enough history survived assembly.
func (s *Service) applyRiskMetrics(header *Header, result *Result) {
	series := make([][]float64, 0, len(result.Rows))
	weights := make([]float64, 0, len(result.Rows))

	for _, row := range result.Rows {
		weight := 0.0
		if row.WeightPct != nil {
			weight = *row.WeightPct
		} else if row.MarketValue != nil && header.PortfolioValue != 0 {
			weight = *row.MarketValue / header.PortfolioValue
		}
		series = append(series, result.DailyReturns[row.Conid])
		weights = append(weights, weight)
	}

	combined := performance.WeightedReturnSeries(series, weights)
	if combined == nil {
		return
	}

	if header.Metrics == nil {
		header.Metrics = make(map[string]float64)
	}
	if vol := performance.AnnualizedVolatility(combined); vol != nil {
		header.Metrics[MetricPortfolioVolatility] = *vol
	}
	if sharpe := performance.SharpeRatio(combined, 0); sharpe != nil {
		header.Metrics[MetricSharpeRatio] = *sharpe
	}
}

// Get returns one persisted snapshot by id
func (s *Service) Get(id int64) (*Snapshot, error) {
	return s.repo.Get(id)
}

// List returns all persisted snapshots
func (s *Service) List() ([]Snapshot, error) {
	return s.repo.List()
}

// Delete removes a persisted snapshot and its positions
func (s *Service) Delete(id int64) error {
	return s.repo.Delete(id)
}
