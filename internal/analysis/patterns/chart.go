// Package patterns provides chart pattern detection over price series.
package patterns

import (
	"math"

	"crypto-trader/internal/analysis"
	"crypto-trader/internal/models"
)

// Pattern names.
const (
	HeadAndShoulders    = "Head and Shoulders"
	DoubleTop           = "Double Top"
	DoubleBottom        = "Double Bottom"
	AscendingTriangle   = "Ascending Triangle"
	DescendingTriangle  = "Descending Triangle"
	SymmetricalTriangle = "Symmetrical Triangle"
)

// ChartPatternDetector detects chart patterns in the trailing part of a
// price series.
type ChartPatternDetector struct {
	swingStrength    int     // points on each side a swing must beat
	tolerancePercent float64 // tolerance for level matching
	flatSlope        float64 // |slope| below this is flat
	hsWindow         int
	doubleWindow     int
	triangleWindow   int
}

// NewChartPatternDetector creates a new chart pattern detector.
func NewChartPatternDetector() *ChartPatternDetector {
	return &ChartPatternDetector{
		swingStrength:    3,
		tolerancePercent: 0.02, // 2% tolerance
		flatSlope:        0.1,
		hsWindow:         20,
		doubleWindow:     30,
		triangleWindow:   15,
	}
}

func (d *ChartPatternDetector) Name() string {
	return "ChartPatternDetector"
}

// SwingPoint represents a swing high or low point.
type SwingPoint struct {
	Index int
	Price float64
}

// Detect runs every pattern check independently; several patterns may be
// reported for the same window. Indices refer to the full series.
func (d *ChartPatternDetector) Detect(prices []float64) []analysis.Pattern {
	var patterns []analysis.Pattern

	if p := d.detectHeadAndShoulders(prices); p != nil {
		patterns = append(patterns, *p)
	}
	if p := d.detectDoubleTop(prices); p != nil {
		patterns = append(patterns, *p)
	}
	if p := d.detectDoubleBottom(prices); p != nil {
		patterns = append(patterns, *p)
	}
	patterns = append(patterns, d.detectTriangles(prices)...)

	return patterns
}

// trailing returns the last n prices and the offset of the window in prices.
func trailing(prices []float64, n int) ([]float64, int) {
	if len(prices) <= n {
		return prices, 0
	}
	return prices[len(prices)-n:], len(prices) - n
}

// findPeaks returns points strictly greater than every neighbour within
// swingStrength positions.
func (d *ChartPatternDetector) findPeaks(prices []float64) []SwingPoint {
	return d.findSwings(prices, func(p, q float64) bool { return q >= p })
}

// findTroughs returns points strictly lower than every neighbour within
// swingStrength positions.
func (d *ChartPatternDetector) findTroughs(prices []float64) []SwingPoint {
	return d.findSwings(prices, func(p, q float64) bool { return q <= p })
}

func (d *ChartPatternDetector) findSwings(prices []float64, beaten func(p, q float64) bool) []SwingPoint {
	var swings []SwingPoint
	for i := d.swingStrength; i < len(prices)-d.swingStrength; i++ {
		isSwing := true
		for j := i - d.swingStrength; j <= i+d.swingStrength; j++ {
			if j != i && beaten(prices[i], prices[j]) {
				isSwing = false
				break
			}
		}
		if isSwing {
			swings = append(swings, SwingPoint{Index: i, Price: prices[i]})
		}
	}
	return swings
}

// pricesEqual reports whether p2 is within tolerance of p1.
func (d *ChartPatternDetector) pricesEqual(p1, p2 float64) bool {
	if p1 == 0 {
		return p2 == 0
	}
	return math.Abs(p1-p2)/p1 < d.tolerancePercent
}

// detectHeadAndShoulders checks the last three peaks of the trailing window.
func (d *ChartPatternDetector) detectHeadAndShoulders(prices []float64) *analysis.Pattern {
	if len(prices) < d.hsWindow {
		return nil
	}
	window, offset := trailing(prices, d.hsWindow)
	peaks := d.findPeaks(window)
	if len(peaks) < 3 {
		return nil
	}

	left, head, right := peaks[len(peaks)-3], peaks[len(peaks)-2], peaks[len(peaks)-1]
	if head.Price <= left.Price || head.Price <= right.Price {
		return nil
	}
	if !d.pricesEqual(left.Price, right.Price) {
		return nil
	}

	return &analysis.Pattern{
		Name:        HeadAndShoulders,
		Type:        analysis.PatternTypeChart,
		Direction:   models.Bearish,
		Confidence:  0.75,
		TargetPrice: math.Min(left.Price, right.Price),
		StartIndex:  offset + left.Index,
		EndIndex:    offset + right.Index,
	}
}

// detectDoubleTop compares the last two peaks of the trailing window.
func (d *ChartPatternDetector) detectDoubleTop(prices []float64) *analysis.Pattern {
	window, offset := trailing(prices, d.doubleWindow)
	peaks := d.findPeaks(window)
	if len(peaks) < 2 {
		return nil
	}

	first, second := peaks[len(peaks)-2], peaks[len(peaks)-1]
	if !d.pricesEqual(first.Price, second.Price) {
		return nil
	}

	return &analysis.Pattern{
		Name:        DoubleTop,
		Type:        analysis.PatternTypeChart,
		Direction:   models.Bearish,
		Confidence:  0.65,
		TargetPrice: math.Min(first.Price, second.Price) * 0.95,
		StartIndex:  offset + first.Index,
		EndIndex:    offset + second.Index,
	}
}

// detectDoubleBottom compares the last two troughs of the trailing window.
func (d *ChartPatternDetector) detectDoubleBottom(prices []float64) *analysis.Pattern {
	window, offset := trailing(prices, d.doubleWindow)
	troughs := d.findTroughs(window)
	if len(troughs) < 2 {
		return nil
	}

	first, second := troughs[len(troughs)-2], troughs[len(troughs)-1]
	if !d.pricesEqual(first.Price, second.Price) {
		return nil
	}

	return &analysis.Pattern{
		Name:        DoubleBottom,
		Type:        analysis.PatternTypeChart,
		Direction:   models.Bullish,
		Confidence:  0.65,
		TargetPrice: math.Max(first.Price, second.Price) * 1.05,
		StartIndex:  offset + first.Index,
		EndIndex:    offset + second.Index,
	}
}

// slope is the per-point change between the first and last swing.
func slope(swings []SwingPoint) float64 {
	first, last := swings[0], swings[len(swings)-1]
	if last.Index == first.Index {
		return 0
	}
	return (last.Price - first.Price) / float64(last.Index-first.Index)
}

// detectTriangles classifies the trendlines through the trailing window's
// peaks and troughs. Each triangle variant is checked on its own.
func (d *ChartPatternDetector) detectTriangles(prices []float64) []analysis.Pattern {
	if len(prices) < d.triangleWindow {
		return nil
	}
	window, offset := trailing(prices, d.triangleWindow)
	peaks := d.findPeaks(window)
	troughs := d.findTroughs(window)
	if len(peaks) < 2 || len(troughs) < 2 {
		return nil
	}

	peakSlope := slope(peaks)
	troughSlope := slope(troughs)
	flat := func(s float64) bool { return math.Abs(s) < d.flatSlope }
	rising := func(s float64) bool { return s > d.flatSlope }
	falling := func(s float64) bool { return s < -d.flatSlope }

	start := offset + min(peaks[0].Index, troughs[0].Index)
	end := offset + max(peaks[len(peaks)-1].Index, troughs[len(troughs)-1].Index)
	pattern := func(name string, dir models.Direction, confidence, target float64) analysis.Pattern {
		return analysis.Pattern{
			Name:        name,
			Type:        analysis.PatternTypeChart,
			Direction:   dir,
			Confidence:  confidence,
			TargetPrice: target,
			StartIndex:  start,
			EndIndex:    end,
		}
	}

	var patterns []analysis.Pattern
	if flat(peakSlope) && rising(troughSlope) {
		patterns = append(patterns, pattern(AscendingTriangle, models.Bullish, 0.7, peaks[0].Price*1.05))
	}
	if flat(troughSlope) && falling(peakSlope) {
		patterns = append(patterns, pattern(DescendingTriangle, models.Bearish, 0.7, troughs[0].Price*0.95))
	}
	if falling(peakSlope) && rising(troughSlope) {
		patterns = append(patterns, pattern(SymmetricalTriangle, models.Neutral, 0.6, (peaks[0].Price+troughs[0].Price)/2))
	}
	return patterns
}
