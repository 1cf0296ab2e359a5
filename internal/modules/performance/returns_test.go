package performance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dchernov/ibfolio/internal/clients/ibgateway"
)

// barsWithCloses builds an ascending daily series with the given closes
func barsWithCloses(closes ...float64) []ibgateway.Bar {
	bars := make([]ibgateway.Bar, len(closes))
	for i, c := range closes {
		bars[i] = ibgateway.Bar{Close: c, Timestamp: int64(i) * 86400000}
	}
	return bars
}

func TestTrailingReturn_InsufficientHistory(t *testing.T) {
	tests := []struct {
		name     string
		bars     []ibgateway.Bar
		lookback int
	}{
		{"empty series", nil, 30},
		{"length equals lookback", barsWithCloses(1, 2, 3), 3},
		{"length below lookback", barsWithCloses(1, 2), 30},
		{"zero lookback", barsWithCloses(1, 2, 3), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, TrailingReturn(tt.bars, tt.lookback))
		})
	}
}

func TestTrailingReturn_ExactFormula(t *testing.T) {
	// 40 bars; lookback 30 selects closes at indices -1 and -31
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	bars := barsWithCloses(closes...)

	got := TrailingReturn(bars, 30)
	require.NotNil(t, got)

	want := closes[len(closes)-1]/closes[len(closes)-31] - 1.0
	assert.Equal(t, want, *got)
}

func TestTrailingReturn_SimpleGain(t *testing.T) {
	bars := barsWithCloses(100, 101, 102, 110)

	got := TrailingReturn(bars, 3)
	require.NotNil(t, got)
	assert.InDelta(t, 0.10, *got, 1e-9)
}

func TestTrailingReturn_ZeroOrMissingClose(t *testing.T) {
	t.Run("zero reference close", func(t *testing.T) {
		bars := barsWithCloses(0, 101, 102, 110)
		assert.Nil(t, TrailingReturn(bars, 3))
	})

	t.Run("zero latest close", func(t *testing.T) {
		bars := barsWithCloses(100, 101, 102, 0)
		assert.Nil(t, TrailingReturn(bars, 3))
	})
}

func TestTrailingReturn_RejectsUnorderedBars(t *testing.T) {
	bars := []ibgateway.Bar{
		{Close: 100, Timestamp: 3000},
		{Close: 105, Timestamp: 2000},
		{Close: 102, Timestamp: 1000},
		{Close: 110, Timestamp: 4000},
	}

	assert.Nil(t, TrailingReturn(bars, 2))
}

func TestDailyReturns(t *testing.T) {
	bars := barsWithCloses(100, 110, 99, 0, 120)

	returns := DailyReturns(bars)
	// Pairs involving the zero close are skipped
	require.Len(t, returns, 2)
	assert.InDelta(t, 0.10, returns[0], 1e-9)
	assert.InDelta(t, -0.10, returns[1], 1e-9)
}

func TestAnnualizedVolatility(t *testing.T) {
	assert.Nil(t, AnnualizedVolatility(nil))
	assert.Nil(t, AnnualizedVolatility([]float64{0.01}))

	vol := AnnualizedVolatility([]float64{0.01, -0.01, 0.02, -0.02})
	require.NotNil(t, vol)
	assert.Greater(t, *vol, 0.0)
}

func TestSharpeRatio(t *testing.T) {
	assert.Nil(t, SharpeRatio(nil, 0.04))

	// Constant series has zero volatility
	assert.Nil(t, SharpeRatio([]float64{0.01, 0.01, 0.01}, 0.04))

	sharpe := SharpeRatio([]float64{0.01, 0.005, -0.002, 0.008}, 0.0)
	require.NotNil(t, sharpe)
	assert.Greater(t, *sharpe, 0.0)
}

func TestWeightedReturnSeries(t *testing.T) {
	t.Run("aligned on most recent observation", func(t *testing.T) {
		series := [][]float64{
			{0.01, 0.02, 0.03},
			{0.10, 0.20},
		}
		combined := WeightedReturnSeries(series, []float64{0.5, 0.5})

		require.Len(t, combined, 2)
		assert.InDelta(t, 0.5*0.02+0.5*0.10, combined[0], 1e-9)
		assert.InDelta(t, 0.5*0.03+0.5*0.20, combined[1], 1e-9)
	})

	t.Run("empty series ignored with its weight", func(t *testing.T) {
		series := [][]float64{
			{0.02, 0.04},
			nil,
		}
		combined := WeightedReturnSeries(series, []float64{0.25, 0.75})

		require.Len(t, combined, 2)
		assert.InDelta(t, 0.02, combined[0], 1e-9)
		assert.InDelta(t, 0.04, combined[1], 1e-9)
	})

	t.Run("mismatched lengths", func(t *testing.T) {
		assert.Nil(t, WeightedReturnSeries([][]float64{{0.1}}, []float64{0.5, 0.5}))
	})
}
