package formulas

import (
	"math"
	"testing"
)

func TestReturns(t *testing.T) {
	tests := []struct {
		name     string
		prices   []float64
		expected []float64
	}{
		{
			name:     "empty series",
			prices:   []float64{},
			expected: nil,
		},
		{
			name:     "single price",
			prices:   []float64{100},
			expected: nil,
		},
		{
			name:     "rising prices",
			prices:   []float64{100, 110, 121},
			expected: []float64{0.10, 0.10},
		},
		{
			name:     "zero price guarded",
			prices:   []float64{0, 100},
			expected: []float64{0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Returns(tt.prices)
			if len(got) != len(tt.expected) {
				t.Fatalf("Returns() length = %d, want %d", len(got), len(tt.expected))
			}
			for i := range got {
				if math.Abs(got[i]-tt.expected[i]) > 1e-9 {
					t.Errorf("Returns()[%d] = %v, want %v", i, got[i], tt.expected[i])
				}
			}
		})
	}
}

func TestRealizedVolatility(t *testing.T) {
	// Constant returns have zero variance
	flat := make([]float64, 30)
	for i := range flat {
		flat[i] = 0.001
	}
	if got := RealizedVolatility(flat); got != 0 {
		t.Errorf("RealizedVolatility(constant) = %v, want 0", got)
	}

	// Alternating +1%/-1% daily returns: stddev ~0.01005, annualized ~0.1596
	alt := make([]float64, 40)
	for i := range alt {
		if i%2 == 0 {
			alt[i] = 0.01
		} else {
			alt[i] = -0.01
		}
	}
	got := RealizedVolatility(alt)
	if math.Abs(got-0.01005*math.Sqrt(252)) > 0.01 {
		t.Errorf("RealizedVolatility(alternating) = %v", got)
	}
}

func TestZScore(t *testing.T) {
	baseline := []float64{1, 2, 3, 4, 5}

	z, ok := ZScore(3, baseline)
	if !ok {
		t.Fatal("ZScore() ok = false, want true")
	}
	if math.Abs(z) > 1e-9 {
		t.Errorf("ZScore(mean) = %v, want 0", z)
	}

	// Zero variance baseline carries no signal
	_, ok = ZScore(1, []float64{2, 2, 2, 2})
	if ok {
		t.Error("ZScore(zero-variance) ok = true, want false")
	}

	// Too-short baseline
	_, ok = ZScore(1, []float64{2})
	if ok {
		t.Error("ZScore(short baseline) ok = true, want false")
	}
}

func TestSMA(t *testing.T) {
	prices := []float64{1, 2, 3, 4, 5}

	got := SMA(prices, 3)
	if got == nil {
		t.Fatal("SMA() = nil, want value")
	}
	if math.Abs(*got-4.0) > 1e-9 {
		t.Errorf("SMA() = %v, want 4.0", *got)
	}

	if got := SMA(prices, 10); got != nil {
		t.Errorf("SMA(insufficient) = %v, want nil", *got)
	}
}

func TestWMA(t *testing.T) {
	prices := []float64{1, 2, 3, 4}

	// WMA(3) over last window [2,3,4] = (2*1 + 3*2 + 4*3)/6 = 20/6
	got := WMA(prices, 3)
	if got == nil {
		t.Fatal("WMA() = nil, want value")
	}
	if math.Abs(*got-20.0/6.0) > 1e-9 {
		t.Errorf("WMA() = %v, want %v", *got, 20.0/6.0)
	}
}

func TestMaxDrawdown(t *testing.T) {
	tests := []struct {
		name     string
		equity   []float64
		expected float64
	}{
		{"monotone rise", []float64{100, 110, 120}, 0},
		{"single dip", []float64{100, 80, 120}, 0.20},
		{"deepest later", []float64{100, 90, 120, 60}, 0.50},
		{"too short", []float64{100}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MaxDrawdown(tt.equity)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("MaxDrawdown() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestAnnualizedReturn(t *testing.T) {
	// Exactly one year of bars doubling the equity
	equity := make([]float64, TradingDaysPerYear+1)
	for i := range equity {
		equity[i] = 100 * (1 + float64(i)/TradingDaysPerYear)
	}
	got := AnnualizedReturn(equity)
	if math.Abs(got-1.0) > 1e-9 {
		t.Errorf("AnnualizedReturn(doubling year) = %v, want 1.0", got)
	}
}
