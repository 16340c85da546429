// Package scoring combines engineered features into a directional prediction.
package scoring

import (
	"math"
	"time"

	"crypto-trader/internal/analysis/features"
	"crypto-trader/internal/analysis/indicators"
	"crypto-trader/internal/models"
)

// Weights defines the contribution of each sub-score to the combined score.
type Weights struct {
	Technical  float64
	Sentiment  float64
	OnChain    float64
	Volatility float64
}

// DefaultWeights returns the fixed ensemble weights.
func DefaultWeights() Weights {
	return Weights{
		Technical:  0.40,
		Sentiment:  0.20,
		OnChain:    0.25,
		Volatility: 0.15,
	}
}

// Scoring constants.
const (
	DirectionThreshold = 0.1
	MinConfidence      = 0.6
	MaxConfidence      = 0.95
	MaxPriceChange     = 0.05 // projection at combined score ±1
	PivotLookback      = 20
	PivotRatio         = 0.382
)

// Scorer produces predictions from feature bundles.
type Scorer struct {
	profile Profile
	weights Weights
	now     func() time.Time
}

// NewScorer creates a scorer for the named profile.
func NewScorer(profileName string) (*Scorer, error) {
	profile, err := LookupProfile(profileName)
	if err != nil {
		return nil, err
	}
	return &Scorer{
		profile: profile,
		weights: DefaultWeights(),
		now:     time.Now,
	}, nil
}

// Profile returns the scorer's profile.
func (s *Scorer) Profile() Profile {
	return s.profile
}

// Predict scores a bundle. Missing inputs contribute nothing.
func (s *Scorer) Predict(symbol string, bundle *features.Bundle) *models.Prediction {
	c := models.ScoreComponents{
		Technical:  TechnicalScore(bundle),
		Sentiment:  SentimentScore(bundle),
		OnChain:    OnChainScore(bundle),
		Volatility: VolatilityScore(bundle),
	}
	c.Combined = c.Technical*s.weights.Technical +
		c.Sentiment*s.weights.Sentiment +
		c.OnChain*s.weights.OnChain +
		c.Volatility*s.weights.Volatility

	confidence := Confidence(c.Combined)
	priceChange := c.Combined * MaxPriceChange

	return &models.Prediction{
		Symbol:            symbol,
		Profile:           s.profile.Name,
		Direction:         DirectionOf(c.Combined),
		Confidence:        confidence,
		Probability:       confidence,
		CurrentPrice:      bundle.LatestPrice,
		TargetPrice:       bundle.LatestPrice * (1 + priceChange),
		SupportResistance: PivotLevels(bundle.Raw[features.Prices]),
		RiskReward:        projectedRiskReward(priceChange),
		Components:        c,
		Timestamp:         s.now(),
	}
}

// DirectionOf maps a combined score to a direction.
func DirectionOf(score float64) models.Direction {
	switch {
	case score > DirectionThreshold:
		return models.Bullish
	case score < -DirectionThreshold:
		return models.Bearish
	default:
		return models.Neutral
	}
}

// Confidence is |score| clamped to [MinConfidence, MaxConfidence].
func Confidence(score float64) float64 {
	return math.Min(MaxConfidence, math.Max(MinConfidence, math.Abs(score)))
}

func projectedRiskReward(priceChange float64) float64 {
	if math.Abs(priceChange) > 0.02 {
		return math.Abs(priceChange) / 0.01
	}
	return 1.5
}

func clamp(score float64) float64 {
	return math.Max(-1, math.Min(1, score))
}

// TechnicalScore rates RSI extremes, MACD histogram momentum and price
// position relative to the Bollinger bands.
func TechnicalScore(b *features.Bundle) float64 {
	var score float64

	if rsi, ok := b.Latest(indicators.KeyRSI); ok {
		if rsi < 30 {
			score += 0.3
		} else if rsi > 70 {
			score -= 0.3
		}
	}

	hist, okHist := b.Latest(indicators.KeyMACDHistogram)
	prev, okPrev := b.Back(indicators.KeyMACDHistogram, 1)
	if okHist && okPrev {
		if hist > prev {
			score += 0.2
		} else {
			score -= 0.2
		}
	}

	price := b.LatestPrice
	lower, okLower := b.Latest(indicators.KeyBollingerLower)
	upper, okUpper := b.Latest(indicators.KeyBollingerUpper)
	if okLower && okUpper {
		if price < lower {
			score += 0.2
		} else if price > upper {
			score -= 0.2
		}
	}

	return clamp(score)
}

// SentimentScore treats fear/greed extremes as contrarian and social
// sentiment as direct.
func SentimentScore(b *features.Bundle) float64 {
	var score float64

	if fg, ok := b.Latest(features.FearGreed); ok {
		if fg < 25 {
			score += 0.3
		} else if fg > 75 {
			score -= 0.3
		}
	}
	if sentiment, ok := b.Latest(features.SocialSentiment); ok {
		score += sentiment * 0.4
	}

	return clamp(score)
}

// OnChainScore rates address growth, exchange net flow and SOPR.
func OnChainScore(b *features.Bundle) float64 {
	var score float64

	current, okCur := b.Latest(features.ActiveAddresses)
	previous, okPrev := b.Back(features.ActiveAddresses, 1)
	if okCur && okPrev {
		if current > previous {
			score += 0.2
		} else {
			score -= 0.2
		}
	}

	// Net outflow from exchanges (negative flow) is bullish.
	if flow, ok := b.Latest(features.ExchangeFlow); ok {
		score -= flow * 0.3
	}

	if sopr, ok := b.Latest(features.SOPR); ok {
		if sopr > 1.05 {
			score -= 0.2
		} else if sopr < 0.98 {
			score += 0.2
		}
	}

	return clamp(score)
}

// VolatilityScore compares current volatility with the series average.
func VolatilityScore(b *features.Bundle) float64 {
	vol := b.Raw[indicators.KeyVolatility]
	if len(vol) == 0 {
		return 0
	}

	current := vol[len(vol)-1]
	var total float64
	for _, v := range vol {
		total += v
	}
	avg := total / float64(len(vol))

	switch {
	case current > avg*1.5:
		return 0.1
	case current < avg*0.7:
		return -0.1
	default:
		return 0
	}
}

// PivotLevels derives support and resistance from the pivot point of the
// trailing PivotLookback prices.
func PivotLevels(prices []float64) models.SupportResistance {
	if len(prices) == 0 {
		return models.SupportResistance{}
	}

	recent := prices
	if len(recent) > PivotLookback {
		recent = recent[len(recent)-PivotLookback:]
	}
	high, low := recent[0], recent[0]
	for _, p := range recent[1:] {
		high = math.Max(high, p)
		low = math.Min(low, p)
	}
	last := prices[len(prices)-1]
	pivot := (high + low + last) / 3
	span := high - low

	return models.SupportResistance{
		Support:    []float64{low, pivot - span*PivotRatio},
		Resistance: []float64{high, pivot + span*PivotRatio},
	}
}
