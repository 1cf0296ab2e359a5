package snapshot

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dchernov/ibfolio/internal/clients/ibgateway"
	"github.com/dchernov/ibfolio/internal/modules/marketdata"
	"github.com/dchernov/ibfolio/internal/modules/performance"
)

// maxPositionPages bounds the pagination loop against a misbehaving
// upstream that never returns an empty page
const maxPositionPages = 100

// Trailing-return lookbacks computed per position
const (
	lookback30D = 30
	lookback60D = 60
)

// Assembler joins positions, decoded market data, and computed
// performance into snapshot rows. It is stateless and safely re-runnable.
type Assembler struct {
	client        GatewayClient
	decoder       *marketdata.Decoder
	historyPeriod string
	concurrency   int
	log           zerolog.Logger
}

// NewAssembler creates an assembler.
// concurrency bounds the parallel per-instrument history fetches so the
// local gateway process is not overwhelmed.
func NewAssembler(client GatewayClient, decoder *marketdata.Decoder, historyPeriod string, concurrency int, log zerolog.Logger) *Assembler {
	if concurrency < 1 {
		concurrency = 1
	}
	if historyPeriod == "" {
		historyPeriod = "60d"
	}

	return &Assembler{
		client:        client,
		decoder:       decoder,
		historyPeriod: historyPeriod,
		concurrency:   concurrency,
		log:           log.With().Str("component", "assembler").Logger(),
	}
}

// Result is the output of one assembly run. DailyReturns carries the
// per-conid return series used for portfolio-level risk metrics.
type Result struct {
	Rows         []PositionRow
	DailyReturns map[int64][]float64
}

// Assemble produces one row per held instrument for the account.
// watchlist, when non-empty, drops positions whose resolved symbol is not
// a member. Per-instrument history failures are logged and leave that
// row's trailing returns nil; they never fail the run.
func (a *Assembler) Assemble(ctx context.Context, accountID string, watchlist []string) (*Result, error) {
	positions, err := a.fetchAllPositions(ctx, accountID)
	if err != nil {
		return nil, err
	}

	filtered := filterPositions(positions, watchlist)

	a.log.Info().
		Str("account", accountID).
		Int("total", len(positions)).
		Int("surviving", len(filtered)).
		Msg("Fetched positions")

	if len(filtered) == 0 {
		return &Result{Rows: []PositionRow{}, DailyReturns: map[int64][]float64{}}, nil
	}

	conids := distinctConids(filtered)

	// One batched request for all surviving conids; this is the
	// synchronization point before per-instrument history work.
	ticks, err := a.client.MarketSnapshot(ctx, conids, a.decoder.Table().Codes())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch market snapshot: %w", err)
	}

	perf, returns := a.fetchPerformance(ctx, conids)

	rows := make([]PositionRow, 0, len(filtered))
	for _, pos := range filtered {
		quote := a.decoder.Decode(ticks[pos.Conid])
		rows = append(rows, mergeRow(pos, quote, perf[pos.Conid]))
	}

	return &Result{Rows: rows, DailyReturns: returns}, nil
}

// fetchAllPositions drives the pagination loop: pages are fetched until
// the upstream returns an empty page.
func (a *Assembler) fetchAllPositions(ctx context.Context, accountID string) ([]ibgateway.Position, error) {
	var all []ibgateway.Position

	for page := 0; page < maxPositionPages; page++ {
		batch, err := a.client.Positions(ctx, accountID, page)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch positions page %d: %w", page, err)
		}
		if len(batch) == 0 {
			return all, nil
		}
		all = append(all, batch...)
	}

	return nil, fmt.Errorf("position pagination did not terminate after %d pages", maxPositionPages)
}

// perfPair holds the computed trailing returns for one conid
type perfPair struct {
	perf30D *float64
	perf60D *float64
}

// fetchPerformance fetches bar history for each conid with bounded
// concurrency and computes trailing returns. Failures are isolated per
// instrument.
func (a *Assembler) fetchPerformance(ctx context.Context, conids []int64) (map[int64]perfPair, map[int64][]float64) {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		perf    = make(map[int64]perfPair, len(conids))
		returns = make(map[int64][]float64, len(conids))
		sem     = make(chan struct{}, a.concurrency)
	)

	for _, conid := range conids {
		wg.Add(1)
		sem <- struct{}{}

		go func(conid int64) {
			defer wg.Done()
			defer func() { <-sem }()

			bars, err := a.client.DailyBars(ctx, conid, a.historyPeriod)
			if err != nil {
				a.log.Warn().
					Err(err).
					Int64("conid", conid).
					Msg("History fetch failed, trailing returns left empty")
				return
			}

			pair := perfPair{
				perf30D: performance.TrailingReturn(bars, lookback30D),
				perf60D: performance.TrailingReturn(bars, lookback60D),
			}
			series := performance.DailyReturns(bars)

			mu.Lock()
			perf[conid] = pair
			returns[conid] = series
			mu.Unlock()
		}(conid)
	}

	wg.Wait()
	return perf, returns
}

// mergeRow combines a raw position, its decoded quote, and computed
// performance into one snapshot row.
func mergeRow(pos ibgateway.Position, quote marketdata.Quote, perf perfPair) PositionRow {
	// Symbol preference: decoded snapshot field, then position ticker,
	// then contract description, never empty-typed
	symbol := quote.Symbol
	if symbol == "" {
		symbol = pos.Ticker
	}
	if symbol == "" {
		symbol = pos.ContractDesc
	}

	avgCost := quote.AvgPrice
	if avgCost == nil && pos.AvgCost != 0 {
		c := pos.AvgCost
		avgCost = &c
	}

	marketValue := quote.MarketValue
	if marketValue == nil && pos.MktValue != 0 {
		v := pos.MktValue
		marketValue = &v
	}

	return PositionRow{
		Conid:            pos.Conid,
		Symbol:           symbol,
		Name:             quote.Name,
		Quantity:         pos.Quantity,
		LastPrice:        quote.LastPrice,
		AvgCost:          avgCost,
		MarketValue:      marketValue,
		WeightPct:        quote.WeightPct,
		UnrealizedPnLPct: quote.UnrealizedPnLPct,
		DailyChangePct:   quote.ChangePct,
		Perf30D:          perf.perf30D,
		Perf60D:          perf.perf60D,
		Currency:         pos.Currency,
		PERatio:          quote.PERatio,
	}
}

// filterPositions applies the watchlist. An empty watchlist passes all
// positions; order is preserved.
func filterPositions(positions []ibgateway.Position, watchlist []string) []ibgateway.Position {
	if len(watchlist) == 0 {
		return positions
	}

	allowed := make(map[string]struct{}, len(watchlist))
	for _, symbol := range watchlist {
		allowed[symbol] = struct{}{}
	}

	var filtered []ibgateway.Position
	for _, pos := range positions {
		symbol := pos.Ticker
		if symbol == "" {
			symbol = pos.ContractDesc
		}
		if _, ok := allowed[symbol]; ok {
			filtered = append(filtered, pos)
		}
	}
	return filtered
}

// distinctConids returns the unique conids in first-seen order
func distinctConids(positions []ibgateway.Position) []int64 {
	seen := make(map[int64]struct{}, len(positions))
	conids := make([]int64, 0, len(positions))
	for _, pos := range positions {
		if _, ok := seen[pos.Conid]; ok {
			continue
		}
		seen[pos.Conid] = struct{}{}
		conids = append(conids, pos.Conid)
	}
	return conids
}
