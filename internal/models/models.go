// Package models provides domain models for the trading application.
package models

import (
	"time"

	"crypto-trader/internal/errors"
)

// Side represents the side of a trade or signal.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
	SideHold Side = "HOLD"
)

// Valid reports whether the side can be executed by the ledger.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Direction represents the predicted direction of price movement.
type Direction string

const (
	Bullish Direction = "BULLISH"
	Bearish Direction = "BEARISH"
	Neutral Direction = "NEUTRAL"
)

// PricePoint is a single observation in a price series.
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
}

// PriceSeries is an immutable, time-ordered sequence of price points.
type PriceSeries struct {
	points []PricePoint
}

// NewPriceSeries validates points and builds a series from a copy of them.
// Timestamps must be strictly increasing, prices positive and volumes non-negative.
func NewPriceSeries(points []PricePoint) (*PriceSeries, error) {
	if len(points) == 0 {
		return nil, errors.NewValidationError("points", 0, "price series must not be empty")
	}
	for i, p := range points {
		if p.Price <= 0 {
			return nil, errors.NewValidationError("price", p.Price, "price must be positive")
		}
		if p.Volume < 0 {
			return nil, errors.NewValidationError("volume", p.Volume, "volume must be non-negative")
		}
		if i > 0 && !p.Timestamp.After(points[i-1].Timestamp) {
			return nil, errors.NewValidationError("timestamp", p.Timestamp, "timestamps must be strictly increasing")
		}
	}
	cp := make([]PricePoint, len(points))
	copy(cp, points)
	return &PriceSeries{points: cp}, nil
}

// Len returns the number of points.
func (s *PriceSeries) Len() int {
	return len(s.points)
}

// Points returns a copy of the underlying points.
func (s *PriceSeries) Points() []PricePoint {
	cp := make([]PricePoint, len(s.points))
	copy(cp, s.points)
	return cp
}

// Prices returns the price column.
func (s *PriceSeries) Prices() []float64 {
	out := make([]float64, len(s.points))
	for i, p := range s.points {
		out[i] = p.Price
	}
	return out
}

// Volumes returns the volume column.
func (s *PriceSeries) Volumes() []float64 {
	out := make([]float64, len(s.points))
	for i, p := range s.points {
		out[i] = p.Volume
	}
	return out
}

// Timestamps returns the timestamp column.
func (s *PriceSeries) Timestamps() []time.Time {
	out := make([]time.Time, len(s.points))
	for i, p := range s.points {
		out[i] = p.Timestamp
	}
	return out
}

// Latest returns the most recent point.
func (s *PriceSeries) Latest() PricePoint {
	return s.points[len(s.points)-1]
}

// ExternalSeries holds injected on-chain and sentiment inputs. Any field may be
// empty and lengths need not match the price series.
type ExternalSeries struct {
	ActiveAddresses   []float64 `json:"active_addresses,omitempty" yaml:"active_addresses,omitempty"`
	TransactionVolume []float64 `json:"transaction_volume,omitempty" yaml:"transaction_volume,omitempty"`
	ExchangeFlow      []float64 `json:"exchange_flow,omitempty" yaml:"exchange_flow,omitempty"`
	SOPR              []float64 `json:"sopr,omitempty" yaml:"sopr,omitempty"`
	FearGreed         []float64 `json:"fear_greed,omitempty" yaml:"fear_greed,omitempty"`
	SocialSentiment   []float64 `json:"social_sentiment,omitempty" yaml:"social_sentiment,omitempty"`
	BTCCorrelation    []float64 `json:"btc_correlation,omitempty" yaml:"btc_correlation,omitempty"`
}

// SupportResistance holds projected price levels.
type SupportResistance struct {
	Support    []float64 `json:"support"`
	Resistance []float64 `json:"resistance"`
}

// ScoreComponents breaks a prediction into its weighted inputs.
type ScoreComponents struct {
	Technical  float64 `json:"technical"`
	Sentiment  float64 `json:"sentiment"`
	OnChain    float64 `json:"on_chain"`
	Volatility float64 `json:"volatility"`
	Combined   float64 `json:"combined"`
}

// Prediction is the output of the scoring model. It is never persisted.
type Prediction struct {
	Symbol            string            `json:"symbol"`
	Profile           string            `json:"profile"`
	Direction         Direction         `json:"direction"`
	Confidence        float64           `json:"confidence"`
	Probability       float64           `json:"probability"`
	CurrentPrice      float64           `json:"current_price"`
	TargetPrice       float64           `json:"target_price"`
	SupportResistance SupportResistance `json:"support_resistance"`
	RiskReward        float64           `json:"risk_reward"`
	Components        ScoreComponents   `json:"components"`
	Timestamp         time.Time         `json:"timestamp"`
}

// Signal is a trade recommendation derived from a prediction.
type Signal struct {
	Symbol          string    `json:"symbol"`
	Type            Side      `json:"type"`
	Confidence      float64   `json:"confidence"` // 0-100
	EntryPrice      float64   `json:"entry_price"`
	TargetPrice     float64   `json:"target_price"`
	StopLoss        float64   `json:"stop_loss"`
	RiskRewardRatio float64   `json:"risk_reward_ratio"`
	Reasoning       string    `json:"reasoning"`
	CreatedAt       time.Time `json:"created_at"`
}
