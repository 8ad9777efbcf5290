package bars

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
)

// barRecord is the Parquet schema for cached, validated bar data.
type barRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

// Cache stores processed bar series as Parquet files so repeated backtests
// over the same range skip re-validation of the raw source.
type Cache struct {
	Dir string
}

// NewCache creates a Cache rooted at the given directory.
func NewCache(dir string) *Cache {
	return &Cache{Dir: dir}
}

// Write persists the series under a key derived from its symbol and date
// range.
func (c *Cache) Write(s *Series) error {
	if s.Len() == 0 {
		return nil
	}
	records := make([]barRecord, 0, s.Len())
	for _, b := range s.Bars() {
		records = append(records, barRecord{
			Symbol:    b.Symbol,
			Timestamp: b.Timestamp.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}

	path := c.path(s.Symbol(), s.At(0).Timestamp, s.At(s.Len()-1).Timestamp)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := parquet.WriteFile(path, records); err != nil {
		return fmt.Errorf("writing bar cache %s: %w", path, err)
	}
	return nil
}

// Read loads a previously cached series for the symbol and date range.
// A cache miss returns an error wrapping os.ErrNotExist.
func (c *Cache) Read(symbol string, start, end time.Time) (*Series, error) {
	path := c.path(symbol, start, end)
	rows, err := parquet.ReadFile[barRecord](path)
	if err != nil {
		return nil, fmt.Errorf("reading bar cache %s: %w", path, err)
	}

	records := make([]Record, 0, len(rows))
	for _, r := range rows {
		records = append(records, Record{
			Timestamp: time.UnixMilli(r.Timestamp).UTC(),
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		})
	}
	// Cached data was validated before writing; revalidating keeps a
	// corrupted file from slipping through.
	return Load(symbol, records, 0)
}

// path returns the cache file location.
// Layout: <Dir>/<SYMBOL>_<YYYYMMDD>_<YYYYMMDD>.parquet
func (c *Cache) path(symbol string, start, end time.Time) string {
	name := fmt.Sprintf("%s_%s_%s.parquet",
		strings.ToUpper(symbol), start.Format("20060102"), end.Format("20060102"))
	return filepath.Join(c.Dir, name)
}
