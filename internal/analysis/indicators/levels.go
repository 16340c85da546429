package indicators

import (
	"math"
	"sort"

	"crypto-trader/internal/analysis"
)

// Support/resistance defaults.
const (
	DefaultLevelWindow      = 20
	DefaultLevelMinStrength = 2
	DefaultLevelTolerance   = 0.001
	MaxLevels               = 10
)

// FibonacciRatios are the retracement (<= 1) and extension (> 1) ratios
// measured down from the swing high.
var FibonacciRatios = []float64{0, 0.236, 0.382, 0.5, 0.618, 0.786, 1, 1.618, 2.618}

// Fibonacci calculates retracement levels between the series' swing high and
// swing low. A flat series puts every level at the price.
func Fibonacci(prices []float64) []analysis.FibonacciLevel {
	if len(prices) == 0 {
		return nil
	}
	hi, lo := highest(prices), lowest(prices)
	span := hi - lo

	levels := make([]analysis.FibonacciLevel, len(FibonacciRatios))
	for i, r := range FibonacciRatios {
		levels[i] = analysis.FibonacciLevel{Ratio: r, Price: hi - span*r}
	}
	return levels
}

// SupportResistance finds local extrema within ±window points and keeps those
// touched by more than minStrength later closes (within 0.1%). Levels are
// sorted by strength, strongest first, and capped at MaxLevels.
func SupportResistance(prices []float64, window, minStrength int) []analysis.Level {
	if window <= 0 || len(prices) < 2*window+1 {
		return nil
	}

	var levels []analysis.Level
	for i := window; i < len(prices)-window; i++ {
		around := prices[i-window : i+window+1]
		p := prices[i]

		if p == highest(around) {
			if s := levelStrength(prices, p, i); s > minStrength {
				levels = append(levels, analysis.Level{Price: p, Type: analysis.LevelResistance, Strength: s, Index: i})
			}
		}
		if p == lowest(around) {
			if s := levelStrength(prices, p, i); s > minStrength {
				levels = append(levels, analysis.Level{Price: p, Type: analysis.LevelSupport, Strength: s, Index: i})
			}
		}
	}

	sort.SliceStable(levels, func(a, b int) bool {
		return levels[a].Strength > levels[b].Strength
	})
	if len(levels) > MaxLevels {
		levels = levels[:MaxLevels]
	}
	return levels
}

// levelStrength counts closes after index that fall within tolerance of level.
func levelStrength(prices []float64, level float64, index int) int {
	var touches int
	for _, p := range prices[index+1:] {
		if math.Abs(p-level)/level < DefaultLevelTolerance {
			touches++
		}
	}
	return touches
}
