package formulas

import (
	"github.com/markcheno/go-talib"
)

// SMA calculates a simple moving average over the given period and returns
// the last value, or nil when the series is too short.
func SMA(values []float64, period int) *float64 {
	if period < 1 || len(values) < period {
		return nil
	}

	out := talib.Sma(values, period)
	return lastValid(out)
}

// WMA calculates a linearly weighted moving average over the given period
// and returns the last value, or nil when the series is too short.
func WMA(values []float64, period int) *float64 {
	if period < 1 || len(values) < period {
		return nil
	}

	out := talib.Wma(values, period)
	return lastValid(out)
}

// SMASeries returns the full simple moving average series; entries before
// the window fills are not meaningful.
func SMASeries(values []float64, period int) []float64 {
	if period < 1 || len(values) < period {
		return nil
	}
	return talib.Sma(values, period)
}

// WMASeries returns the full weighted moving average series.
func WMASeries(values []float64, period int) []float64 {
	if period < 1 || len(values) < period {
		return nil
	}
	return talib.Wma(values, period)
}

func lastValid(series []float64) *float64 {
	if len(series) == 0 {
		return nil
	}
	v := series[len(series)-1]
	if isNaN(v) {
		return nil
	}
	return &v
}

// isNaN checks if a float64 is NaN
func isNaN(f float64) bool {
	return f != f
}
