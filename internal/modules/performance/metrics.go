package performance

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/dchernov/ibfolio/internal/clients/ibgateway"
)

// tradingDaysPerYear is the annualization factor for daily return series
const tradingDaysPerYear = 252

// DailyReturns converts a bar series into consecutive close-to-close
// fractional returns. Pairs involving a zero close are skipped.
func DailyReturns(bars []ibgateway.Bar) []float64 {
	if len(bars) < 2 {
		return nil
	}

	returns := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		curr := bars[i].Close
		if prev == 0 || curr == 0 {
			continue
		}
		returns = append(returns, curr/prev-1.0)
	}
	return returns
}

// AnnualizedVolatility computes the annualized standard deviation of a
// daily return series. Returns nil when fewer than two observations exist.
func AnnualizedVolatility(returns []float64) *float64 {
	if len(returns) < 2 {
		return nil
	}

	vol := stat.StdDev(returns, nil) * math.Sqrt(tradingDaysPerYear)
	return &vol
}

// SharpeRatio computes the annualized Sharpe ratio of a daily return
// series against an annual risk-free rate. Returns nil when volatility
// is undefined or zero.
func SharpeRatio(returns []float64, annualRiskFree float64) *float64 {
	vol := AnnualizedVolatility(returns)
	if vol == nil || *vol == 0 {
		return nil
	}

	annualized := stat.Mean(returns, nil) * tradingDaysPerYear
	sharpe := (annualized - annualRiskFree) / *vol
	return &sharpe
}

// WeightedReturnSeries combines per-instrument daily return series into a
// single portfolio series using the given weights. Series are aligned on
// their most recent observation and truncated to the shortest length;
// instruments with no returns are ignored along with their weight.
func WeightedReturnSeries(series [][]float64, weights []float64) []float64 {
	if len(series) == 0 || len(series) != len(weights) {
		return nil
	}

	minLen := 0
	totalWeight := 0.0
	for i, s := range series {
		if len(s) == 0 || weights[i] == 0 {
			continue
		}
		if minLen == 0 || len(s) < minLen {
			minLen = len(s)
		}
		totalWeight += weights[i]
	}
	if minLen == 0 || totalWeight == 0 {
		return nil
	}

	combined := make([]float64, minLen)
	for i, s := range series {
		if len(s) == 0 || weights[i] == 0 {
			continue
		}
		offset := len(s) - minLen
		w := weights[i] / totalWeight
		for j := 0; j < minLen; j++ {
			combined[j] += w * s[offset+j]
		}
	}
	return combined
}
