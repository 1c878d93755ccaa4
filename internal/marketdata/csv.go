package marketdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/akrotiri/helmsman/internal/domain"
)

// csvLayout is the expected date format of the first CSV column.
const csvLayout = "2006-01-02"

// ReadBarsCSV parses one symbol's daily bars from r. The expected columns
// are date,open,high,low,close,volume; a header row is detected by a
// non-parsable first field and skipped. Rows must already be in
// chronological order.
func ReadBarsCSV(r io.Reader, symbol string) ([]domain.Bar, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 6

	var bars []domain.Bar
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv for %s: %w", symbol, err)
		}
		line++

		timestamp, err := time.Parse(csvLayout, strings.TrimSpace(record[0]))
		if err != nil {
			if line == 1 {
				continue // header row
			}
			return nil, fmt.Errorf("csv for %s line %d: bad date %q", symbol, line, record[0])
		}

		fields := make([]float64, 5)
		for i := 0; i < 5; i++ {
			fields[i], err = strconv.ParseFloat(strings.TrimSpace(record[i+1]), 64)
			if err != nil {
				return nil, fmt.Errorf("csv for %s line %d: bad number %q", symbol, line, record[i+1])
			}
		}

		bar := domain.Bar{
			Symbol:    symbol,
			Timestamp: timestamp.UTC(),
			Open:      fields[0],
			High:      fields[1],
			Low:       fields[2],
			Close:     fields[3],
			Volume:    fields[4],
		}
		if err := bar.Validate(); err != nil {
			return nil, fmt.Errorf("csv for %s line %d: %w", symbol, line, err)
		}
		bars = append(bars, bar)
	}

	if len(bars) == 0 {
		return nil, fmt.Errorf("csv for %s contains no bars", symbol)
	}
	return bars, nil
}

// LoadCSVDir builds an aligned source from a directory holding one
// <SYMBOL>.csv file per universe symbol.
func LoadCSVDir(dir string, symbols []string) (*AlignedSource, error) {
	series := make(map[string][]domain.Bar, len(symbols))
	for _, symbol := range symbols {
		path := filepath.Join(dir, symbol+".csv")
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening bars for %s: %w", symbol, err)
		}
		bars, err := ReadBarsCSV(f, symbol)
		f.Close()
		if err != nil {
			return nil, err
		}
		series[symbol] = bars
	}
	return NewAlignedSource(series, symbols)
}
