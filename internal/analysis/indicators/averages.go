package indicators

import (
	"fmt"

	"crypto-trader/internal/models"
)

// SMAValues returns the simple moving average. The result has
// len(values)-period+1 elements, aligned to the end of the input.
func SMAValues(values []float64, period int) ([]float64, error) {
	if err := checkPeriod(period, len(values), period); err != nil {
		return nil, err
	}

	result := make([]float64, len(values)-period+1)
	window := sum(values[:period])
	result[0] = window / float64(period)
	for i := period; i < len(values); i++ {
		window += values[i] - values[i-period]
		result[i-period+1] = window / float64(period)
	}
	return result, nil
}

// EMAValues returns the exponential moving average seeded with the first
// value. The result has the same length as the input.
func EMAValues(values []float64, period int) ([]float64, error) {
	if err := checkPeriod(period, len(values), 1); err != nil {
		return nil, err
	}

	alpha := 2.0 / float64(period+1)
	result := make([]float64, len(values))
	result[0] = values[0]
	for i := 1; i < len(values); i++ {
		result[i] = values[i]*alpha + result[i-1]*(1-alpha)
	}
	return result, nil
}

// SMA calculates the Simple Moving Average.
type SMA struct {
	period int
}

// NewSMA creates a new SMA indicator.
func NewSMA(period int) *SMA {
	return &SMA{period: period}
}

func (s *SMA) Name() string {
	return fmt.Sprintf("sma_%d", s.period)
}

func (s *SMA) Period() int {
	return s.period
}

func (s *SMA) Calculate(series *models.PriceSeries) ([]float64, error) {
	return SMAValues(series.Prices(), s.period)
}

// EMA calculates the Exponential Moving Average.
type EMA struct {
	period int
}

// NewEMA creates a new EMA indicator.
func NewEMA(period int) *EMA {
	return &EMA{period: period}
}

func (e *EMA) Name() string {
	return fmt.Sprintf("ema_%d", e.period)
}

func (e *EMA) Period() int {
	return e.period
}

func (e *EMA) Calculate(series *models.PriceSeries) ([]float64, error) {
	return EMAValues(series.Prices(), e.period)
}
