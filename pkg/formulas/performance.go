package formulas

import "math"

// MaxDrawdown calculates the maximum peak-to-trough drawdown of an equity
// curve as a positive fraction (0.25 = 25% loss from peak).
func MaxDrawdown(equity []float64) float64 {
	if len(equity) < 2 {
		return 0
	}

	maxDD := 0.0
	peak := equity[0]
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			dd := (peak - v) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// AnnualizedReturn calculates the compound annual growth rate of an equity
// curve sampled at daily frequency.
func AnnualizedReturn(equity []float64) float64 {
	if len(equity) < 2 || equity[0] <= 0 {
		return 0
	}

	total := equity[len(equity)-1] / equity[0]
	if total <= 0 {
		return -1
	}
	years := float64(len(equity)-1) / TradingDaysPerYear
	if years <= 0 {
		return 0
	}
	return math.Pow(total, 1/years) - 1
}

// SharpeRatio calculates the annualized Sharpe ratio of daily returns
// against a constant annual risk-free rate.
func SharpeRatio(dailyReturns []float64, riskFreeAnnual float64) float64 {
	if len(dailyReturns) < 2 {
		return 0
	}

	sd := StdDev(dailyReturns)
	if sd == 0 {
		return 0
	}
	dailyRF := riskFreeAnnual / TradingDaysPerYear
	return (Mean(dailyReturns) - dailyRF) / sd * math.Sqrt(TradingDaysPerYear)
}
