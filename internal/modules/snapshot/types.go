// Package snapshot assembles and persists point-in-time portfolio
// snapshots from upstream positions, market data, and account ledgers.
package snapshot

import (
	"context"

	"github.com/dchernov/ibfolio/internal/clients/ibgateway"
)

// GatewayClient is the upstream surface the snapshot pipeline consumes.
// Satisfied by *ibgateway.Client; mocked in tests.
type GatewayClient interface {
	PrimaryAccountID(ctx context.Context) (string, error)
	Positions(ctx context.Context, accountID string, page int) ([]ibgateway.Position, error)
	MarketSnapshot(ctx context.Context, conids []int64, fieldIDs []int) (map[int64]ibgateway.TickSnapshot, error)
	DailyBars(ctx context.Context, conid int64, period string) ([]ibgateway.Bar, error)
	AccountMeta(ctx context.Context, accountID string) (*ibgateway.AccountMeta, error)
	Ledger(ctx context.Context, accountID string) (map[string]ibgateway.LedgerEntry, error)
}

// PositionRow is one holding in a snapshot.
// Pointer fields are absent when upstream omitted the data; percentage
// fields are fractions (0.0967 for 9.67%).
type PositionRow struct {
	Conid            int64    `json:"conid"`
	Symbol           string   `json:"symbol"`
	Name             string   `json:"name,omitempty"`
	Quantity         float64  `json:"quantity"`
	LastPrice        *float64 `json:"last_price,omitempty"`
	AvgCost          *float64 `json:"avg_cost,omitempty"`
	MarketValue      *float64 `json:"market_value,omitempty"`
	WeightPct        *float64 `json:"weight_pct,omitempty"`
	UnrealizedPnLPct *float64 `json:"unrealized_pnl_pct,omitempty"`
	DailyChangePct   *float64 `json:"daily_change_pct,omitempty"`
	Perf30D          *float64 `json:"perf_30d,omitempty"`
	Perf60D          *float64 `json:"perf_60d,omitempty"`
	Currency         string   `json:"currency"`
	PERatio          *float64 `json:"pe_ratio,omitempty"`
}

// Header is the portfolio-level summary of a snapshot.
// Metrics carries the open-ended set of account-level balance and risk
// figures; the upstream schema for these is unstable, so they are a map
// rather than fixed columns.
type Header struct {
	Period         string             `json:"period"`       // MM/DD/YYYY in the reporting timezone, "" when unknown
	Generated      string             `json:"generated"`    // display timestamp, "" when unknown
	OwnerName      string             `json:"name"`
	Account        string             `json:"account"`
	CustomerType   string             `json:"customer_type"`
	AccountType    string             `json:"account_type,omitempty"`
	BaseCurrency   string             `json:"base_currency"`
	Cash           float64            `json:"cash"`
	PortfolioValue float64            `json:"portfolio_value"`
	Metrics        map[string]float64 `json:"metrics,omitempty"`
}

// Snapshot is one immutable computation run: header plus positions.
// Recomputation always produces a new snapshot, never an update.
type Snapshot struct {
	ID        int64         `json:"id"`
	Header    Header        `json:"header"`
	Positions []PositionRow `json:"positions"`
	CreatedAt string        `json:"created_at,omitempty"`
}
