package indicators

import (
	"crypto-trader/internal/models"
)

// MACDResult holds the MACD line, signal line and histogram. The MACD line
// starts where the slow EMA does; signal and histogram are shorter by the
// signal warm-up.
type MACDResult struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// MACDValues calculates Moving Average Convergence Divergence.
func MACDValues(prices []float64, fast, slow, signal int) (*MACDResult, error) {
	if fast <= 0 || signal <= 0 || fast >= slow {
		return nil, ErrInvalidPeriod
	}
	if err := checkPeriod(slow, len(prices), slow+signal-1); err != nil {
		return nil, err
	}

	fastEMA, err := EMAValues(prices, fast)
	if err != nil {
		return nil, err
	}
	slowEMA, err := EMAValues(prices, slow)
	if err != nil {
		return nil, err
	}

	macdLine := make([]float64, len(prices)-slow+1)
	for i := slow - 1; i < len(prices); i++ {
		macdLine[i-slow+1] = fastEMA[i] - slowEMA[i]
	}

	signalEMA, err := EMAValues(macdLine, signal)
	if err != nil {
		return nil, err
	}
	signalLine := signalEMA[signal-1:]

	offset := len(macdLine) - len(signalLine)
	histogram := make([]float64, len(signalLine))
	for i := range signalLine {
		histogram[i] = macdLine[offset+i] - signalLine[i]
	}

	return &MACDResult{
		MACD:      macdLine,
		Signal:    signalLine,
		Histogram: histogram,
	}, nil
}

// IchimokuResult holds the Ichimoku Kinko Hyo lines.
type IchimokuResult struct {
	Tenkan  []float64
	Kijun   []float64
	SenkouA []float64
	SenkouB []float64
	Chikou  []float64
}

func midpoints(prices []float64, period int) []float64 {
	if len(prices) < period {
		return nil
	}
	result := make([]float64, len(prices)-period+1)
	for i := period - 1; i < len(prices); i++ {
		window := prices[i-period+1 : i+1]
		result[i-period+1] = (highest(window) + lowest(window)) / 2
	}
	return result
}

// IchimokuValues calculates the Ichimoku lines over a price-only series.
// The periods must satisfy tenkan <= kijun <= senkou. Senkou A covers the
// kijun range; Chikou is the series without its last kijun points.
func IchimokuValues(prices []float64, tenkan, kijun, senkou int) (*IchimokuResult, error) {
	if tenkan <= 0 || tenkan > kijun || kijun > senkou {
		return nil, ErrInvalidPeriod
	}
	if err := checkPeriod(senkou, len(prices), senkou); err != nil {
		return nil, err
	}

	result := &IchimokuResult{
		Tenkan:  midpoints(prices, tenkan),
		Kijun:   midpoints(prices, kijun),
		SenkouB: midpoints(prices, senkou),
	}

	offset := len(result.Tenkan) - len(result.Kijun)
	result.SenkouA = make([]float64, len(result.Kijun))
	for i, k := range result.Kijun {
		result.SenkouA[i] = (result.Tenkan[offset+i] + k) / 2
	}

	if len(prices) > kijun {
		result.Chikou = append([]float64(nil), prices[:len(prices)-kijun]...)
	}
	return result, nil
}

// MACD calculates Moving Average Convergence Divergence.
type MACD struct {
	fast   int
	slow   int
	signal int
}

// NewMACD creates a new MACD indicator.
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{fast: fast, slow: slow, signal: signal}
}

func (m *MACD) Name() string {
	return "macd"
}

func (m *MACD) Period() int {
	return m.slow + m.signal - 1
}

func (m *MACD) Calculate(series *models.PriceSeries) (map[string][]float64, error) {
	res, err := MACDValues(series.Prices(), m.fast, m.slow, m.signal)
	if err != nil {
		return nil, err
	}
	return map[string][]float64{
		KeyMACD:          res.MACD,
		KeyMACDSignal:    res.Signal,
		KeyMACDHistogram: res.Histogram,
	}, nil
}

// Ichimoku calculates the Ichimoku Cloud.
type Ichimoku struct {
	tenkan int
	kijun  int
	senkou int
}

// NewIchimoku creates a new Ichimoku indicator.
func NewIchimoku(tenkan, kijun, senkou int) *Ichimoku {
	return &Ichimoku{tenkan: tenkan, kijun: kijun, senkou: senkou}
}

func (i *Ichimoku) Name() string {
	return "ichimoku"
}

func (i *Ichimoku) Period() int {
	return i.senkou
}

func (i *Ichimoku) Calculate(series *models.PriceSeries) (map[string][]float64, error) {
	res, err := IchimokuValues(series.Prices(), i.tenkan, i.kijun, i.senkou)
	if err != nil {
		return nil, err
	}
	return map[string][]float64{
		KeyIchimokuTenkan:  res.Tenkan,
		KeyIchimokuKijun:   res.Kijun,
		KeyIchimokuSenkouA: res.SenkouA,
		KeyIchimokuSenkouB: res.SenkouB,
		KeyIchimokuChikou:  res.Chikou,
	}, nil
}
