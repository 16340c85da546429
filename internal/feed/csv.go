// Package feed loads price and external metric series from CSV files.
package feed

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"crypto-trader/internal/errors"
	"crypto-trader/internal/models"
)

// Timestamp parses RFC3339, date-time, date, or Unix seconds/milliseconds.
type Timestamp struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// UnmarshalCSV implements gocsv.TypeUnmarshaller.
func (t *Timestamp) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e12 {
			t.Time = time.UnixMilli(n).UTC()
		} else {
			t.Time = time.Unix(n, 0).UTC()
		}
		return nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

// Metric is an optional numeric cell; blank cells are absent.
type Metric struct {
	Value float64
	Valid bool
}

// UnmarshalCSV implements gocsv.TypeUnmarshaller.
func (m *Metric) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*m = Metric{}
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", s, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		*m = Metric{}
		return nil
	}
	*m = Metric{Value: v, Valid: true}
	return nil
}

type priceRow struct {
	Timestamp Timestamp `csv:"timestamp"`
	Price     float64   `csv:"price"`
	Volume    Metric    `csv:"volume"`
}

type externalRow struct {
	Timestamp         Timestamp `csv:"timestamp"`
	ActiveAddresses   Metric    `csv:"active_addresses"`
	TransactionVolume Metric    `csv:"transaction_volume"`
	ExchangeFlow      Metric    `csv:"exchange_flow"`
	SOPR              Metric    `csv:"sopr"`
	FearGreed         Metric    `csv:"fear_greed"`
	SocialSentiment   Metric    `csv:"social_sentiment"`
	BTCCorrelation    Metric    `csv:"btc_correlation"`
}

// ReadPrices parses a timestamp,price,volume CSV. Rows are sorted by time;
// the series constructor rejects duplicates and invalid values. A missing
// volume column or cell reads as zero.
func ReadPrices(r io.Reader) (*models.PriceSeries, error) {
	var rows []*priceRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "failed to parse price csv: "+err.Error())
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Timestamp.Before(rows[j].Timestamp.Time)
	})

	points := make([]models.PricePoint, len(rows))
	for i, row := range rows {
		points[i] = models.PricePoint{
			Timestamp: row.Timestamp.Time,
			Price:     row.Price,
			Volume:    row.Volume.Value,
		}
	}
	return models.NewPriceSeries(points)
}

// ReadExternal parses a timestamp,<metric>... CSV into external series.
// Columns are matched by name; unknown columns are ignored and blank cells
// are skipped, so each metric keeps its own length.
func ReadExternal(r io.Reader) (models.ExternalSeries, error) {
	var rows []*externalRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return models.ExternalSeries{}, errors.Wrap(errors.ErrInvalidInput, "failed to parse external csv: "+err.Error())
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Timestamp.Before(rows[j].Timestamp.Time)
	})

	var ext models.ExternalSeries
	appendValid := func(dst *[]float64, m Metric) {
		if m.Valid {
			*dst = append(*dst, m.Value)
		}
	}
	for _, row := range rows {
		appendValid(&ext.ActiveAddresses, row.ActiveAddresses)
		appendValid(&ext.TransactionVolume, row.TransactionVolume)
		appendValid(&ext.ExchangeFlow, row.ExchangeFlow)
		appendValid(&ext.SOPR, row.SOPR)
		appendValid(&ext.FearGreed, row.FearGreed)
		appendValid(&ext.SocialSentiment, row.SocialSentiment)
		appendValid(&ext.BTCCorrelation, row.BTCCorrelation)
	}
	return ext, nil
}

// Dir resolves per-symbol CSV files in a data directory: <SYMBOL>.csv for
// prices and <SYMBOL>_external.csv for external metrics.
type Dir string

// PricePath returns the price file path for symbol.
func (d Dir) PricePath(symbol string) string {
	return filepath.Join(string(d), strings.ToUpper(symbol)+".csv")
}

// ExternalPath returns the external metrics file path for symbol.
func (d Dir) ExternalPath(symbol string) string {
	return filepath.Join(string(d), strings.ToUpper(symbol)+"_external.csv")
}

// Prices loads the price series for symbol.
func (d Dir) Prices(symbol string) (*models.PriceSeries, error) {
	return ReadPricesFile(d.PricePath(symbol))
}

// External loads the external series for symbol. A missing file yields
// empty series.
func (d Dir) External(symbol string) (models.ExternalSeries, error) {
	path := d.ExternalPath(symbol)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return models.ExternalSeries{}, nil
	}
	return ReadExternalFile(path)
}

// ReadPricesFile loads a price series from path.
func ReadPricesFile(path string) (*models.PriceSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open price file: %w", err)
	}
	defer f.Close()

	series, err := ReadPrices(f)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return series, nil
}

// ReadExternalFile loads external series from path.
func ReadExternalFile(path string) (models.ExternalSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.ExternalSeries{}, fmt.Errorf("failed to open external file: %w", err)
	}
	defer f.Close()

	ext, err := ReadExternal(f)
	if err != nil {
		return models.ExternalSeries{}, errors.Wrapf(err, "%s", path)
	}
	return ext, nil
}
