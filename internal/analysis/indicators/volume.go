package indicators

import (
	"crypto-trader/internal/models"
)

// OBVValues calculates On-Balance Volume starting from the first volume.
func OBVValues(prices, volumes []float64) ([]float64, error) {
	if len(prices) == 0 || len(volumes) != len(prices) {
		return nil, ErrInsufficientData
	}

	result := make([]float64, len(prices))
	result[0] = volumes[0]
	for i := 1; i < len(prices); i++ {
		switch {
		case prices[i] > prices[i-1]:
			result[i] = result[i-1] + volumes[i]
		case prices[i] < prices[i-1]:
			result[i] = result[i-1] - volumes[i]
		default:
			result[i] = result[i-1]
		}
	}
	return result, nil
}

// VWAPValues calculates the cumulative volume-weighted average price. While
// cumulative volume is zero the price itself is reported.
func VWAPValues(prices, volumes []float64) ([]float64, error) {
	if len(prices) == 0 || len(volumes) != len(prices) {
		return nil, ErrInsufficientData
	}

	result := make([]float64, len(prices))
	var cumVolume, cumPV float64
	for i := range prices {
		cumVolume += volumes[i]
		cumPV += prices[i] * volumes[i]
		if cumVolume == 0 {
			result[i] = prices[i]
			continue
		}
		result[i] = cumPV / cumVolume
	}
	return result, nil
}

// OBV calculates On-Balance Volume.
type OBV struct{}

// NewOBV creates a new OBV indicator.
func NewOBV() *OBV {
	return &OBV{}
}

func (o *OBV) Name() string {
	return "obv"
}

func (o *OBV) Period() int {
	return 1
}

func (o *OBV) Calculate(series *models.PriceSeries) ([]float64, error) {
	return OBVValues(series.Prices(), series.Volumes())
}

// VWAP calculates the Volume Weighted Average Price.
type VWAP struct{}

// NewVWAP creates a new VWAP indicator.
func NewVWAP() *VWAP {
	return &VWAP{}
}

func (v *VWAP) Name() string {
	return "vwap"
}

func (v *VWAP) Period() int {
	return 1
}

func (v *VWAP) Calculate(series *models.PriceSeries) ([]float64, error) {
	return VWAPValues(series.Prices(), series.Volumes())
}
