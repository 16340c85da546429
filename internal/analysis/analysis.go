// Package analysis provides technical analysis functionality including indicators,
// pattern detection, feature engineering, scoring and signal generation.
package analysis

import (
	"crypto-trader/internal/models"
)

// PatternDetector defines the interface for pattern detection.
type PatternDetector interface {
	Name() string
	Detect(prices []float64) []Pattern
}

// Pattern represents a detected chart pattern.
type Pattern struct {
	Name        string           `json:"name"`
	Type        PatternType      `json:"type"`
	Direction   models.Direction `json:"direction"`
	Confidence  float64          `json:"confidence"`
	TargetPrice float64          `json:"target_price"`
	StartIndex  int              `json:"start_index"`
	EndIndex    int              `json:"end_index"`
}

// PatternType represents the type of pattern.
type PatternType string

const (
	PatternTypeChart PatternType = "chart"
)

// Level represents a support or resistance level.
type Level struct {
	Price    float64   `json:"price"`
	Type     LevelType `json:"type"`
	Strength int       `json:"strength"`
	Index    int       `json:"index"`
}

// LevelType represents the type of price level.
type LevelType string

const (
	LevelSupport    LevelType = "support"
	LevelResistance LevelType = "resistance"
)

// FibonacciLevel is one retracement or extension level.
type FibonacciLevel struct {
	Ratio float64 `json:"ratio"`
	Price float64 `json:"price"`
}
