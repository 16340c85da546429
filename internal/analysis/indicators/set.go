package indicators

import (
	"crypto-trader/internal/analysis"
)

// Keys of the sequences stored in an IndicatorSet.
const (
	KeyRSI                = "rsi"
	KeyMACD               = "macd"
	KeyMACDSignal         = "macd_signal"
	KeyMACDHistogram      = "macd_histogram"
	KeyBollingerUpper     = "bollinger_upper"
	KeyBollingerMiddle    = "bollinger_middle"
	KeyBollingerLower     = "bollinger_lower"
	KeyBollingerBandwidth = "bollinger_bandwidth"
	KeyStochasticK        = "stochastic_k"
	KeyStochasticD        = "stochastic_d"
	KeyWilliamsR          = "williams_r"
	KeyCCI                = "cci"
	KeyATR                = "atr"
	KeyOBV                = "obv"
	KeyVWAP               = "vwap"
	KeyVolatility         = "volatility"
	KeyIchimokuTenkan     = "ichimoku_tenkan"
	KeyIchimokuKijun      = "ichimoku_kijun"
	KeyIchimokuSenkouA    = "ichimoku_senkou_a"
	KeyIchimokuSenkouB    = "ichimoku_senkou_b"
	KeyIchimokuChikou     = "ichimoku_chikou"
)

// IndicatorSet holds every computed indicator for one price series.
// Sequences are aligned to the end of the series and may differ in length;
// read them with Latest and Back rather than absolute offsets.
type IndicatorSet struct {
	Values    map[string][]float64      `json:"values"`
	Fibonacci []analysis.FibonacciLevel `json:"fibonacci"`
	Levels    []analysis.Level          `json:"levels"`
}

// NewIndicatorSet creates an empty set.
func NewIndicatorSet() *IndicatorSet {
	return &IndicatorSet{Values: make(map[string][]float64)}
}

// Series returns the named sequence, or nil.
func (s *IndicatorSet) Series(name string) []float64 {
	if s == nil {
		return nil
	}
	return s.Values[name]
}

// Latest returns the most recent value of the named sequence.
func (s *IndicatorSet) Latest(name string) (float64, bool) {
	return s.Back(name, 0)
}

// Back returns the value k steps before the most recent one.
func (s *IndicatorSet) Back(name string, k int) (float64, bool) {
	values := s.Series(name)
	if k < 0 || len(values) <= k {
		return 0, false
	}
	return values[len(values)-1-k], true
}

// Band assembles the structured band stored under prefix (e.g. "bollinger").
func (s *IndicatorSet) Band(prefix string) (*Band, bool) {
	band := &Band{
		Upper:     s.Series(prefix + "_upper"),
		Middle:    s.Series(prefix + "_middle"),
		Lower:     s.Series(prefix + "_lower"),
		Bandwidth: s.Series(prefix + "_bandwidth"),
	}
	if band.Middle == nil {
		return nil, false
	}
	return band, true
}

// Support returns the support levels, strongest first.
func (s *IndicatorSet) Support() []analysis.Level {
	return s.levelsOf(analysis.LevelSupport)
}

// Resistance returns the resistance levels, strongest first.
func (s *IndicatorSet) Resistance() []analysis.Level {
	return s.levelsOf(analysis.LevelResistance)
}

func (s *IndicatorSet) levelsOf(t analysis.LevelType) []analysis.Level {
	var out []analysis.Level
	for _, l := range s.Levels {
		if l.Type == t {
			out = append(out, l)
		}
	}
	return out
}
