package indicators

import (
	"context"
	"math"
	"sort"
	"testing"
	"time"

	"crypto-trader/internal/analysis"
	"crypto-trader/internal/errors"
	"crypto-trader/internal/models"
)

func floatsEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-9 {
			return false
		}
	}
	return true
}

func testSeries(t *testing.T, prices []float64) *models.PriceSeries {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]models.PricePoint, len(prices))
	for i, p := range prices {
		points[i] = models.PricePoint{Timestamp: base.Add(time.Duration(i) * time.Hour), Price: p, Volume: 1000 + float64(i)}
	}
	series, err := models.NewPriceSeries(points)
	if err != nil {
		t.Fatalf("NewPriceSeries: %v", err)
	}
	return series
}

func wave(n int) []float64 {
	prices := make([]float64, n)
	for i := range prices {
		prices[i] = 100 + 10*math.Sin(float64(i)/3) + float64(i)*0.1
	}
	return prices
}

func TestSMA(t *testing.T) {
	got, err := SMAValues([]float64{100, 102, 101, 105, 103}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []float64{101, 101.5, 103, 104}
	if !floatsEqual(got, want) {
		t.Errorf("SMA(2) = %v, want %v", got, want)
	}
}

func TestEMAPeriodOneIsIdentity(t *testing.T) {
	prices := []float64{100, 102, 101, 105, 103}
	got, err := EMAValues(prices, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !floatsEqual(got, prices) {
		t.Errorf("EMA(1) = %v, want %v", got, prices)
	}
}

func TestEMASeededWithFirstPrice(t *testing.T) {
	got, _ := EMAValues([]float64{10, 20}, 3)
	// alpha = 0.5
	if !floatsEqual(got, []float64{10, 15}) {
		t.Errorf("EMA(3) = %v, want [10 15]", got)
	}
}

func TestRSIInsufficientData(t *testing.T) {
	_, err := RSIValues([]float64{100, 102, 101, 105, 103}, 14)
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
}

func TestInvalidPeriod(t *testing.T) {
	if _, err := SMAValues([]float64{1, 2, 3}, 0); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("expected invalid input for zero period, got %v", err)
	}
}

func TestRSIAllGains(t *testing.T) {
	prices := make([]float64, 20)
	for i := range prices {
		prices[i] = float64(100 + i)
	}
	got, _ := RSIValues(prices, 14)
	for _, v := range got {
		if v != 100 {
			t.Fatalf("RSI of monotonically rising series = %v, want 100", v)
		}
	}
}

func TestMACDLengths(t *testing.T) {
	prices := wave(60)
	res, err := MACDValues(prices, 12, 26, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.MACD) != 60-26+1 {
		t.Errorf("len(MACD) = %d, want %d", len(res.MACD), 60-26+1)
	}
	if len(res.Signal) != len(res.MACD)-8 || len(res.Histogram) != len(res.Signal) {
		t.Errorf("signal/histogram lengths = %d/%d", len(res.Signal), len(res.Histogram))
	}
	last := len(res.Histogram) - 1
	if math.Abs(res.Histogram[last]-(res.MACD[len(res.MACD)-1]-res.Signal[last])) > 1e-9 {
		t.Error("histogram must be MACD minus signal on the trailing range")
	}

	if _, err := MACDValues(prices[:30], 12, 26, 9); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
}

func TestBollinger(t *testing.T) {
	band, err := BollingerValues([]float64{1, 2, 3, 4}, 4, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sd := math.Sqrt(1.25)
	if !floatsEqual(band.Upper, []float64{2.5 + 2*sd}) || !floatsEqual(band.Lower, []float64{2.5 - 2*sd}) {
		t.Errorf("bands = %v/%v", band.Upper, band.Lower)
	}
	if !floatsEqual(band.Bandwidth, []float64{4 * sd / 2.5}) {
		t.Errorf("bandwidth = %v", band.Bandwidth)
	}
}

func TestOBVAndVWAP(t *testing.T) {
	prices := []float64{10, 11, 11, 9}
	volumes := []float64{100, 50, 70, 20}

	obv, _ := OBVValues(prices, volumes)
	if !floatsEqual(obv, []float64{100, 150, 150, 130}) {
		t.Errorf("OBV = %v", obv)
	}

	vwap, _ := VWAPValues(prices, volumes)
	if math.Abs(vwap[1]-(10*100+11*50)/150.0) > 1e-9 {
		t.Errorf("VWAP[1] = %v", vwap[1])
	}

	zero, _ := VWAPValues([]float64{5, 6}, []float64{0, 0})
	if !floatsEqual(zero, []float64{5, 6}) {
		t.Errorf("VWAP with zero volume = %v, want prices", zero)
	}
}

func TestIchimokuAlignment(t *testing.T) {
	prices := wave(80)
	res, err := IchimokuValues(prices, 9, 26, 52)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Tenkan) != 72 || len(res.Kijun) != 55 || len(res.SenkouB) != 29 {
		t.Errorf("lengths tenkan=%d kijun=%d senkouB=%d", len(res.Tenkan), len(res.Kijun), len(res.SenkouB))
	}
	if len(res.SenkouA) != len(res.Kijun) || len(res.Chikou) != 80-26 {
		t.Errorf("lengths senkouA=%d chikou=%d", len(res.SenkouA), len(res.Chikou))
	}
	want := (res.Tenkan[len(res.Tenkan)-1] + res.Kijun[len(res.Kijun)-1]) / 2
	if res.SenkouA[len(res.SenkouA)-1] != want {
		t.Error("senkou A must pair the latest tenkan and kijun values")
	}
}

func TestIchimokuRejectsUnorderedPeriods(t *testing.T) {
	prices := wave(80)
	for _, p := range [][3]int{{30, 9, 52}, {9, 60, 52}, {0, 26, 52}} {
		if _, err := IchimokuValues(prices, p[0], p[1], p[2]); !errors.Is(err, ErrInvalidPeriod) {
			t.Errorf("IchimokuValues(%v): expected ErrInvalidPeriod, got %v", p, err)
		}
	}
	if _, err := NewIchimoku(30, 9, 52).Calculate(testSeries(t, prices)); !errors.Is(err, ErrInvalidPeriod) {
		t.Errorf("Calculate: expected ErrInvalidPeriod, got %v", err)
	}
}

func TestFibonacci(t *testing.T) {
	levels := Fibonacci([]float64{100, 200, 150})
	if levels[0].Price != 200 || levels[6].Price != 100 {
		t.Errorf("0%%/100%% levels = %v/%v", levels[0].Price, levels[6].Price)
	}
	if math.Abs(levels[3].Price-150) > 1e-9 {
		t.Errorf("50%% level = %v, want 150", levels[3].Price)
	}

	flat := Fibonacci([]float64{42, 42})
	for _, l := range flat {
		if l.Price != 42 {
			t.Fatalf("flat series level = %v, want 42", l.Price)
		}
	}
}

func TestSupportResistance(t *testing.T) {
	prices := make([]float64, 0, 80)
	for i := 0; i < 20; i++ {
		prices = append(prices, 110+float64(i%3))
	}
	prices = append(prices, 100) // index 20, the support candidate
	for i := 0; i < 20; i++ {
		prices = append(prices, 110+float64(i%3))
	}
	for i := 0; i < 4; i++ {
		prices = append(prices, 100.05) // within 0.1%
	}

	levels := SupportResistance(prices, 20, 2)
	var found bool
	for _, l := range levels {
		if l.Type == analysis.LevelSupport && l.Price == 100 {
			found = true
			if l.Strength != 4 {
				t.Errorf("strength = %d, want 4", l.Strength)
			}
		}
	}
	if !found {
		t.Fatalf("support at 100 not found in %v", levels)
	}
	for i := 1; i < len(levels); i++ {
		if levels[i].Strength > levels[i-1].Strength {
			t.Error("levels must be sorted by strength descending")
		}
	}
}

func TestListIndicators(t *testing.T) {
	names := NewDefaultEngine(1).ListIndicators()
	if len(names) != 14 {
		t.Fatalf("expected 14 indicators, got %d: %v", len(names), names)
	}
	if !sort.StringsAreSorted(names) {
		t.Errorf("names not sorted: %v", names)
	}
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		seen[name] = true
	}
	for _, want := range []string{"rsi", "macd", "sma_20", "ema_26"} {
		if !seen[want] {
			t.Errorf("%s missing from %v", want, names)
		}
	}
}

func TestEngineCompute(t *testing.T) {
	series := testSeries(t, wave(120))
	engine := NewDefaultEngine(4)

	set, err := engine.Compute(context.Background(), series)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	for _, key := range []string{KeyRSI, KeyMACDHistogram, KeyBollingerUpper, KeyStochasticK, KeyVolatility, KeyOBV, KeyVWAP, KeyIchimokuSenkouB, "sma_20", "ema_12"} {
		if _, ok := set.Latest(key); !ok {
			t.Errorf("missing indicator %s", key)
		}
	}
	if len(set.Series(KeyRSI)) != 120-14 {
		t.Errorf("len(rsi) = %d", len(set.Series(KeyRSI)))
	}
	if _, ok := set.Band("bollinger"); !ok {
		t.Error("bollinger band missing")
	}
	if len(set.Fibonacci) != len(FibonacciRatios) {
		t.Error("fibonacci levels missing")
	}
}

func TestEngineOmitsIndicatorsWithoutWarmup(t *testing.T) {
	series := testSeries(t, []float64{100, 102, 101, 105, 103})
	set, err := NewDefaultEngine(2).Compute(context.Background(), series)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if _, ok := set.Latest(KeyRSI); ok {
		t.Error("rsi should be omitted for a 5-point series")
	}
	if _, ok := set.Latest(KeyOBV); !ok {
		t.Error("obv should be present for any series")
	}
}

func TestEngineCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewDefaultEngine(2).Compute(ctx, testSeries(t, wave(60))); err == nil {
		t.Error("expected context error")
	}
}
