// Package features assembles indicator outputs and injected market data into
// a normalized feature bundle for the scoring model.
package features

import (
	"crypto-trader/internal/analysis/indicators"
	"crypto-trader/internal/models"
)

// Feature names.
const (
	Prices            = "prices"
	Volumes           = "volumes"
	ActiveAddresses   = "active_addresses"
	TransactionVolume = "transaction_volume"
	ExchangeFlow      = "exchange_flow"
	SOPR              = "sopr"
	FearGreed         = "fear_greed"
	SocialSentiment   = "social_sentiment"
	BTCCorrelation    = "btc_correlation"
	TimeOfDay         = "time_of_day"
	DayOfWeek         = "day_of_week"
)

// indicatorFeatures are copied from the IndicatorSet when present.
var indicatorFeatures = []string{
	indicators.KeyRSI,
	indicators.KeyMACD,
	indicators.KeyMACDSignal,
	indicators.KeyMACDHistogram,
	indicators.KeyBollingerUpper,
	indicators.KeyBollingerMiddle,
	indicators.KeyBollingerLower,
	indicators.KeyStochasticK,
	indicators.KeyVolatility,
}

// Bundle holds per-feature sequences. Normalized and Raw share keys; the
// Passthrough features are never scaled.
type Bundle struct {
	Normalized  map[string][]float64 `json:"normalized"`
	Raw         map[string][]float64 `json:"raw"`
	Passthrough map[string][]float64 `json:"passthrough"`
	LatestPrice float64              `json:"latest_price"`
}

// Latest returns the most recent raw value of a feature.
func (b *Bundle) Latest(name string) (float64, bool) {
	return b.Back(name, 0)
}

// Back returns the raw value k steps before the most recent one, indexing
// against the feature's own length.
func (b *Bundle) Back(name string, k int) (float64, bool) {
	values := b.Raw[name]
	if k < 0 || len(values) <= k {
		return 0, false
	}
	return values[len(values)-1-k], true
}

// Engine builds feature bundles.
type Engine struct{}

// NewEngine creates a feature engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Build assembles the bundle for one analysis pass. No resampling is done;
// external series of any length are accepted as they are.
func (e *Engine) Build(series *models.PriceSeries, set *indicators.IndicatorSet, external models.ExternalSeries) *Bundle {
	raw := map[string][]float64{
		Prices:  series.Prices(),
		Volumes: series.Volumes(),
	}

	for _, name := range indicatorFeatures {
		if values := set.Series(name); len(values) > 0 {
			raw[name] = values
		}
	}

	for name, values := range map[string][]float64{
		ActiveAddresses:   external.ActiveAddresses,
		TransactionVolume: external.TransactionVolume,
		ExchangeFlow:      external.ExchangeFlow,
		SOPR:              external.SOPR,
		FearGreed:         external.FearGreed,
		SocialSentiment:   external.SocialSentiment,
		BTCCorrelation:    external.BTCCorrelation,
	} {
		if len(values) > 0 {
			raw[name] = values
		}
	}

	normalized := make(map[string][]float64, len(raw))
	for name, values := range raw {
		normalized[name] = MinMax(values)
	}

	timestamps := series.Timestamps()
	timeOfDay := make([]float64, len(timestamps))
	dayOfWeek := make([]float64, len(timestamps))
	for i, ts := range timestamps {
		ts = ts.UTC()
		timeOfDay[i] = float64(ts.Hour()) + float64(ts.Minute())/60
		dayOfWeek[i] = float64(ts.Weekday())
	}

	return &Bundle{
		Normalized: normalized,
		Raw:        raw,
		Passthrough: map[string][]float64{
			TimeOfDay: timeOfDay,
			DayOfWeek: dayOfWeek,
		},
		LatestPrice: series.Latest().Price,
	}
}

// MinMax scales values into [0, 1]. A zero-range sequence becomes all zeros.
func MinMax(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}

	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	span := hi - lo
	if span == 0 {
		return out
	}
	for i, v := range values {
		out[i] = (v - lo) / span
	}
	return out
}
