// Package signals turns predictions into trade recommendations gated by
// confidence and risk/reward.
package signals

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"crypto-trader/internal/analysis/indicators"
	"crypto-trader/internal/models"
)

// Config holds signal generation thresholds.
type Config struct {
	MinConfidence float64 // exclusive, 0-1
	MinRiskReward float64
	TargetPercent float64
	StopPercent   float64
}

// DefaultConfig returns the standard thresholds: confidence above 70%,
// risk/reward of at least 1.5, a 5% target and a 3% stop.
func DefaultConfig() Config {
	return Config{
		MinConfidence: 0.7,
		MinRiskReward: 1.5,
		TargetPercent: 0.05,
		StopPercent:   0.03,
	}
}

// Generator produces signals.
type Generator struct {
	cfg Config
	now func() time.Time
}

// NewGenerator creates a signal generator.
func NewGenerator(cfg Config) *Generator {
	return &Generator{cfg: cfg, now: time.Now}
}

// Generate returns a BUY or SELL signal for a trade-worthy prediction, or nil.
// The indicator set only contributes to the reasoning text and may be nil.
func (g *Generator) Generate(pred *models.Prediction, set *indicators.IndicatorSet) *models.Signal {
	if pred == nil || pred.Confidence <= g.cfg.MinConfidence {
		return nil
	}

	entry := pred.CurrentPrice
	if entry <= 0 {
		return nil
	}

	var side models.Side
	var target, stop, riskReward float64
	switch pred.Direction {
	case models.Bullish:
		side = models.SideBuy
		target = entry * (1 + g.cfg.TargetPercent)
		stop = entry * (1 - g.cfg.StopPercent)
		if entry-stop <= 0 {
			return nil
		}
		riskReward = (target - entry) / (entry - stop)
	case models.Bearish:
		side = models.SideSell
		target = entry * (1 - g.cfg.TargetPercent)
		stop = entry * (1 + g.cfg.StopPercent)
		if stop-entry <= 0 {
			return nil
		}
		riskReward = (entry - target) / (stop - entry)
	default:
		return nil
	}

	if riskReward < g.cfg.MinRiskReward {
		return nil
	}

	return &models.Signal{
		Symbol:          pred.Symbol,
		Type:            side,
		Confidence:      pred.Confidence * 100,
		EntryPrice:      entry,
		TargetPrice:     target,
		StopLoss:        stop,
		RiskRewardRatio: riskReward,
		Reasoning:       Reasoning(pred, set),
		CreatedAt:       g.now(),
	}
}

// Reasoning lists the contributing factors in human-readable form.
func Reasoning(pred *models.Prediction, set *indicators.IndicatorSet) string {
	var reasons []string

	if pred.Confidence > 0.8 {
		reasons = append(reasons, fmt.Sprintf("High AI confidence (%.1f%%)", pred.Confidence*100))
	}

	if rsi, ok := set.Latest(indicators.KeyRSI); ok {
		if rsi < 30 {
			reasons = append(reasons, "RSI oversold")
		} else if rsi > 70 {
			reasons = append(reasons, "RSI overbought")
		}
	}

	hist, okHist := set.Latest(indicators.KeyMACDHistogram)
	prev, okPrev := set.Back(indicators.KeyMACDHistogram, 1)
	if okHist && okPrev {
		if hist > 0 && prev <= 0 {
			reasons = append(reasons, "MACD bullish crossover")
		} else if hist < 0 && prev >= 0 {
			reasons = append(reasons, "MACD bearish crossover")
		}
	}

	if len(reasons) == 0 {
		return "AI model prediction"
	}
	return strings.Join(reasons, ", ")
}

// Rank orders signals by confidence, highest first, breaking ties on
// risk/reward ratio.
func Rank(signals []*models.Signal) []*models.Signal {
	ranked := make([]*models.Signal, 0, len(signals))
	for _, s := range signals {
		if s != nil {
			ranked = append(ranked, s)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Confidence != ranked[j].Confidence {
			return ranked[i].Confidence > ranked[j].Confidence
		}
		return ranked[i].RiskRewardRatio > ranked[j].RiskRewardRatio
	})
	return ranked
}
