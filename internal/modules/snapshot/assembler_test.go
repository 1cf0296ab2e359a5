package snapshot

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dchernov/ibfolio/internal/clients/ibgateway"
	"github.com/dchernov/ibfolio/internal/modules/marketdata"
)

func newTestAssembler(gw *mockGateway) *Assembler {
	return NewAssembler(gw, marketdata.NewDecoder(nil), "60d", 2, zerolog.Nop())
}

func TestAssemble_PaginatesUntilEmptyPage(t *testing.T) {
	gw := &mockGateway{}
	ctx := context.Background()

	gw.On("Positions", ctx, "U1", 0).Return([]ibgateway.Position{
		{Conid: 1, Ticker: "AAPL", Quantity: 10, Currency: "USD"},
	}, nil)
	gw.On("Positions", ctx, "U1", 1).Return([]ibgateway.Position{
		{Conid: 2, Ticker: "MSFT", Quantity: 5, Currency: "USD"},
	}, nil)
	gw.On("Positions", ctx, "U1", 2).Return([]ibgateway.Position{}, nil)

	gw.On("MarketSnapshot", ctx, []int64{1, 2}, mock.Anything).
		Return(map[int64]ibgateway.TickSnapshot{}, nil)
	gw.On("DailyBars", ctx, mock.Anything, "60d").Return([]ibgateway.Bar{}, nil)

	result, err := newTestAssembler(gw).Assemble(ctx, "U1", nil)
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, "AAPL", result.Rows[0].Symbol)
	assert.Equal(t, "MSFT", result.Rows[1].Symbol)
	gw.AssertExpectations(t)
}

func TestAssemble_WatchlistFilter(t *testing.T) {
	gw := &mockGateway{}
	ctx := context.Background()

	gw.On("Positions", ctx, "U1", 0).Return([]ibgateway.Position{
		{Conid: 1, Ticker: "AAPL", Quantity: 10, Currency: "USD"},
		{Conid: 2, Ticker: "MSFT", Quantity: 5, Currency: "USD"},
		{Conid: 3, ContractDesc: "TSM", Quantity: 3, Currency: "USD"},
	}, nil)
	gw.On("Positions", ctx, "U1", 1).Return([]ibgateway.Position{}, nil)

	gw.On("MarketSnapshot", ctx, []int64{1, 3}, mock.Anything).
		Return(map[int64]ibgateway.TickSnapshot{}, nil)
	gw.On("DailyBars", ctx, mock.Anything, "60d").Return([]ibgateway.Bar{}, nil)

	result, err := newTestAssembler(gw).Assemble(ctx, "U1", []string{"AAPL", "TSM"})
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, "AAPL", result.Rows[0].Symbol)
	assert.Equal(t, "TSM", result.Rows[1].Symbol)
}

func TestAssemble_ZeroSurvivorsShortCircuits(t *testing.T) {
	gw := &mockGateway{}
	ctx := context.Background()

	gw.On("Positions", ctx, "U1", 0).Return([]ibgateway.Position{
		{Conid: 1, Ticker: "AAPL", Quantity: 10, Currency: "USD"},
	}, nil)
	gw.On("Positions", ctx, "U1", 1).Return([]ibgateway.Position{}, nil)

	result, err := newTestAssembler(gw).Assemble(ctx, "U1", []string{"NVDA"})
	require.NoError(t, err)
	assert.Empty(t, result.Rows)

	gw.AssertNotCalled(t, "MarketSnapshot", mock.Anything, mock.Anything, mock.Anything)
	gw.AssertNotCalled(t, "DailyBars", mock.Anything, mock.Anything, mock.Anything)
}

func TestAssemble_MergesQuoteAndPerformance(t *testing.T) {
	gw := &mockGateway{}
	ctx := context.Background()

	gw.On("Positions", ctx, "U1", 0).Return([]ibgateway.Position{
		{Conid: 1, Ticker: "AMAT", Quantity: 12, Currency: "USD", AvgCost: 64.02},
	}, nil)
	gw.On("Positions", ctx, "U1", 1).Return([]ibgateway.Position{}, nil)

	gw.On("MarketSnapshot", ctx, []int64{1}, mock.Anything).
		Return(map[int64]ibgateway.TickSnapshot{
			1: {
				"31":   "226.01",
				"55":   "AMAT",
				"73":   "2712.12",
				"80":   "252.73",
				"83":   "1.25",
				"7051": "APPLIED MATERIALS INC",
				"7290": "28.4",
				"7639": "9.67",
			},
		}, nil)

	// 61 ascending closes so both lookbacks resolve
	closes := make([]float64, 61)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	gw.On("DailyBars", ctx, int64(1), "60d").Return(ascendingBars(closes...), nil)

	result, err := newTestAssembler(gw).Assemble(ctx, "U1", nil)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)

	row := result.Rows[0]
	assert.Equal(t, "AMAT", row.Symbol)
	assert.Equal(t, "APPLIED MATERIALS INC", row.Name)
	assert.Equal(t, 12.0, row.Quantity)
	require.NotNil(t, row.LastPrice)
	assert.Equal(t, 226.01, *row.LastPrice)
	require.NotNil(t, row.UnrealizedPnLPct)
	assert.InDelta(t, 2.5273, *row.UnrealizedPnLPct, 1e-9)
	require.NotNil(t, row.WeightPct)
	assert.InDelta(t, 0.0967, *row.WeightPct, 1e-9)
	require.NotNil(t, row.Perf30D)
	assert.InDelta(t, closes[60]/closes[30]-1, *row.Perf30D, 1e-9)
	require.NotNil(t, row.Perf60D)
	assert.InDelta(t, closes[60]/closes[0]-1, *row.Perf60D, 1e-9)
	assert.NotEmpty(t, result.DailyReturns[1])
}

func TestAssemble_HistoryFailureIsolatedPerInstrument(t *testing.T) {
	gw := &mockGateway{}
	ctx := context.Background()

	gw.On("Positions", ctx, "U1", 0).Return([]ibgateway.Position{
		{Conid: 1, Ticker: "AAPL", Quantity: 10, Currency: "USD"},
		{Conid: 2, Ticker: "MSFT", Quantity: 5, Currency: "USD"},
	}, nil)
	gw.On("Positions", ctx, "U1", 1).Return([]ibgateway.Position{}, nil)

	gw.On("MarketSnapshot", ctx, []int64{1, 2}, mock.Anything).
		Return(map[int64]ibgateway.TickSnapshot{}, nil)

	gw.On("DailyBars", ctx, int64(1), "60d").
		Return(nil, errors.New("no market data permissions"))

	closes := make([]float64, 61)
	for i := range closes {
		closes[i] = 50 + float64(i)
	}
	gw.On("DailyBars", ctx, int64(2), "60d").Return(ascendingBars(closes...), nil)

	result, err := newTestAssembler(gw).Assemble(ctx, "U1", nil)
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)

	assert.Nil(t, result.Rows[0].Perf30D)
	assert.Nil(t, result.Rows[0].Perf60D)
	assert.NotNil(t, result.Rows[1].Perf30D)
	assert.NotNil(t, result.Rows[1].Perf60D)
}

func TestAssemble_SymbolPreferenceOrder(t *testing.T) {
	gw := &mockGateway{}
	ctx := context.Background()

	gw.On("Positions", ctx, "U1", 0).Return([]ibgateway.Position{
		{Conid: 1, Ticker: "TICK", ContractDesc: "DESC1", Quantity: 1, Currency: "USD"},
		{Conid: 2, Ticker: "", ContractDesc: "DESC2", Quantity: 1, Currency: "USD"},
		{Conid: 3, Ticker: "", ContractDesc: "", Quantity: 1, Currency: "USD"},
	}, nil)
	gw.On("Positions", ctx, "U1", 1).Return([]ibgateway.Position{}, nil)

	gw.On("MarketSnapshot", ctx, mock.Anything, mock.Anything).
		Return(map[int64]ibgateway.TickSnapshot{
			1: {"55": "SNAP"},
		}, nil)
	gw.On("DailyBars", ctx, mock.Anything, "60d").Return([]ibgateway.Bar{}, nil)

	result, err := newTestAssembler(gw).Assemble(ctx, "U1", nil)
	require.NoError(t, err)
	require.Len(t, result.Rows, 3)

	assert.Equal(t, "SNAP", result.Rows[0].Symbol)  // decoded field wins
	assert.Equal(t, "DESC2", result.Rows[1].Symbol) // falls back to contract desc
	assert.Equal(t, "", result.Rows[2].Symbol)      // empty, never missing
}

func TestAssemble_PositionsErrorPropagates(t *testing.T) {
	gw := &mockGateway{}
	ctx := context.Background()

	gw.On("Positions", ctx, "U1", 0).
		Return(nil, ibgateway.ErrUnavailable)

	_, err := newTestAssembler(gw).Assemble(ctx, "U1", nil)
	assert.ErrorIs(t, err, ibgateway.ErrUnavailable)
}
