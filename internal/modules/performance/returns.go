// Package performance computes trailing returns and risk metrics from
// daily bar series.
package performance

import (
	"github.com/dchernov/ibfolio/internal/clients/ibgateway"
)

// TrailingReturn computes the fractional price change between the latest
// close and the close lookbackDays bars earlier.
//
// Bars must be ordered oldest to newest; ordering is checked rather than
// assumed, since the upstream history endpoint only usually returns
// ascending series. Returns nil when:
//   - len(bars) <= lookbackDays (insufficient history)
//   - either selected close is missing (zero) or the reference close is zero
//   - bar timestamps are not monotonically non-decreasing
func TrailingReturn(bars []ibgateway.Bar, lookbackDays int) *float64 {
	if lookbackDays <= 0 || len(bars) <= lookbackDays {
		return nil
	}

	if !ascending(bars) {
		return nil
	}

	latest := bars[len(bars)-1].Close
	reference := bars[len(bars)-1-lookbackDays].Close

	if latest == 0 || reference == 0 {
		return nil
	}

	result := latest/reference - 1.0
	return &result
}

// ascending reports whether bar timestamps are monotonically non-decreasing
func ascending(bars []ibgateway.Bar) bool {
	for i := 1; i < len(bars); i++ {
		if bars[i].Timestamp < bars[i-1].Timestamp {
			return false
		}
	}
	return true
}
