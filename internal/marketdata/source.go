// Package marketdata loads and serves aligned daily bar histories. Bars
// come in from CSV files or the bar database and are validated once, up
// front; the engine then reads them through domain.BarSource without ever
// touching I/O mid-run.
package marketdata

import (
	"fmt"
	"time"

	"github.com/akrotiri/helmsman/internal/domain"
)

// AlignedSource is an in-memory, immutable bar history covering every
// symbol of a universe. Construction fails on ragged series, misaligned
// timestamps, duplicates or out-of-order bars; a run over an AlignedSource
// can trust its data completely.
type AlignedSource struct {
	bars    map[string][]domain.Bar
	symbols []string
	n       int
}

// NewAlignedSource validates and freezes per-symbol series into a source.
// Every listed symbol must be present with the same length, and bar i of
// every symbol must carry the same strictly-increasing timestamp.
func NewAlignedSource(series map[string][]domain.Bar, symbols []string) (*AlignedSource, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no symbols")
	}

	n := -1
	for _, symbol := range symbols {
		bars, ok := series[symbol]
		if !ok || len(bars) == 0 {
			return nil, fmt.Errorf("no bars for symbol %s", symbol)
		}
		if n == -1 {
			n = len(bars)
		} else if len(bars) != n {
			return nil, fmt.Errorf("symbol %s has %d bars, expected %d", symbol, len(bars), n)
		}
	}

	reference := series[symbols[0]]
	var prev time.Time
	for i := 0; i < n; i++ {
		ts := reference[i].Timestamp
		if !prev.IsZero() && !ts.After(prev) {
			return nil, fmt.Errorf("bar %d timestamp %s not after previous %s", i, ts, prev)
		}
		prev = ts

		for _, symbol := range symbols {
			bar := series[symbol][i]
			if err := bar.Validate(); err != nil {
				return nil, fmt.Errorf("symbol %s bar %d: %w", symbol, i, err)
			}
			if !bar.Timestamp.Equal(ts) {
				return nil, fmt.Errorf("symbol %s bar %d timestamp %s misaligned with %s", symbol, i, bar.Timestamp, ts)
			}
		}
	}

	frozen := make(map[string][]domain.Bar, len(symbols))
	for _, symbol := range symbols {
		bars := make([]domain.Bar, n)
		copy(bars, series[symbol])
		frozen[symbol] = bars
	}
	return &AlignedSource{bars: frozen, symbols: append([]string(nil), symbols...), n: n}, nil
}

// NumBars implements domain.BarSource.
func (s *AlignedSource) NumBars() int {
	return s.n
}

// Bar implements domain.BarSource.
func (s *AlignedSource) Bar(symbol string, i int) (domain.Bar, error) {
	bars, ok := s.bars[symbol]
	if !ok {
		return domain.Bar{}, fmt.Errorf("unknown symbol %s", symbol)
	}
	if i < 0 || i >= s.n {
		return domain.Bar{}, fmt.Errorf("bar index %d out of range [0, %d)", i, s.n)
	}
	return bars[i], nil
}

// Symbols returns the symbols this source covers.
func (s *AlignedSource) Symbols() []string {
	return append([]string(nil), s.symbols...)
}

// Slice returns a source over the first n bars, for replaying a prefix of
// a history. It shares the underlying bars.
func (s *AlignedSource) Slice(n int) (*AlignedSource, error) {
	if n <= 0 || n > s.n {
		return nil, fmt.Errorf("slice length %d out of range (0, %d]", n, s.n)
	}
	return &AlignedSource{bars: s.bars, symbols: s.symbols, n: n}, nil
}
