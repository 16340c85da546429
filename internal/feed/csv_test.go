package feed

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"crypto-trader/internal/errors"
)

func TestReadPrices(t *testing.T) {
	in := `timestamp,price,volume
2024-01-01T02:00:00Z,102.5,30
2024-01-01T00:00:00Z,100,10
1704070800,101,
`
	series, err := ReadPrices(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadPrices: %v", err)
	}

	prices := series.Prices()
	if len(prices) != 3 || prices[0] != 100 || prices[1] != 101 || prices[2] != 102.5 {
		t.Errorf("prices = %v, want sorted [100 101 102.5]", prices)
	}
	volumes := series.Volumes()
	if volumes[1] != 0 {
		t.Errorf("blank volume = %v, want 0", volumes[1])
	}
	if want := time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC); !series.Timestamps()[1].Equal(want) {
		t.Errorf("unix timestamp parsed as %v", series.Timestamps()[1])
	}
}

func TestReadPricesRejects(t *testing.T) {
	tests := map[string]string{
		"bad timestamp":     "timestamp,price,volume\nyesterday,100,1\n",
		"duplicate time":    "timestamp,price,volume\n2024-01-01,100,1\n2024-01-01,101,1\n",
		"non-positive":      "timestamp,price,volume\n2024-01-01,0,1\n",
		"empty":             "timestamp,price,volume\n",
		"negative volume":   "timestamp,price,volume\n2024-01-01,10,-1\n",
		"unparseable price": "timestamp,price,volume\n2024-01-01,abc,1\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ReadPrices(strings.NewReader(in)); !errors.Is(err, errors.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestReadExternal(t *testing.T) {
	in := `timestamp,fear_greed,sopr,unknown_metric
2024-01-02,40,,7
2024-01-01,20,1.01,8
`
	ext, err := ReadExternal(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadExternal: %v", err)
	}
	if len(ext.FearGreed) != 2 || ext.FearGreed[0] != 20 || ext.FearGreed[1] != 40 {
		t.Errorf("fear_greed = %v", ext.FearGreed)
	}
	if len(ext.SOPR) != 1 || ext.SOPR[0] != 1.01 {
		t.Errorf("blank cells must be skipped: sopr = %v", ext.SOPR)
	}
	if len(ext.ActiveAddresses) != 0 {
		t.Errorf("absent column must stay empty: %v", ext.ActiveAddresses)
	}
}

func TestDir(t *testing.T) {
	dir := t.TempDir()
	prices := "timestamp,price,volume\n2024-01-01,100,1\n2024-01-02,101,1\n"
	if err := os.WriteFile(filepath.Join(dir, "BTC.csv"), []byte(prices), 0644); err != nil {
		t.Fatal(err)
	}

	d := Dir(dir)
	series, err := d.Prices("btc")
	if err != nil {
		t.Fatalf("Prices: %v", err)
	}
	if series.Len() != 2 {
		t.Errorf("Len = %d, want 2", series.Len())
	}

	ext, err := d.External("BTC")
	if err != nil || len(ext.FearGreed) != 0 {
		t.Errorf("missing external file should yield empty series, got %v, %v", ext, err)
	}

	if _, err := d.Prices("ETH"); err == nil {
		t.Error("expected error for missing price file")
	}
}
