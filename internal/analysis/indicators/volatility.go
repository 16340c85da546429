package indicators

import (
	"math"

	"crypto-trader/internal/models"
)

// TradingDaysPerYear annualizes rolling volatility.
const TradingDaysPerYear = 252

// Band is a structured band snapshot: upper, middle and lower lines plus the
// relative bandwidth.
type Band struct {
	Upper     []float64
	Middle    []float64
	Lower     []float64
	Bandwidth []float64
}

// BollingerValues calculates Bollinger Bands using the population standard
// deviation. A flat window collapses the bands onto the middle line.
func BollingerValues(prices []float64, period int, k float64) (*Band, error) {
	middle, err := SMAValues(prices, period)
	if err != nil {
		return nil, err
	}

	band := &Band{
		Upper:     make([]float64, len(middle)),
		Middle:    middle,
		Lower:     make([]float64, len(middle)),
		Bandwidth: make([]float64, len(middle)),
	}
	for i := range middle {
		sd := stdDev(prices[i : i+period])
		band.Upper[i] = middle[i] + k*sd
		band.Lower[i] = middle[i] - k*sd
		if middle[i] != 0 {
			band.Bandwidth[i] = 2 * k * sd / middle[i]
		}
	}
	return band, nil
}

// ATRValues calculates the Average True Range of a price-only series, where
// the true range is the absolute price change. The result has
// len(prices)-period elements.
func ATRValues(prices []float64, period int) ([]float64, error) {
	if err := checkPeriod(period, len(prices), period+1); err != nil {
		return nil, err
	}

	tr := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		tr[i-1] = math.Abs(prices[i] - prices[i-1])
	}

	result := make([]float64, len(tr)-period+1)
	result[0] = mean(tr[:period])
	for i := period; i < len(tr); i++ {
		result[i-period+1] = (result[i-period]*float64(period-1) + tr[i]) / float64(period)
	}
	return result, nil
}

// VolatilityValues calculates rolling annualized volatility of log returns.
// The result has len(prices)-period elements.
func VolatilityValues(prices []float64, period int) ([]float64, error) {
	if err := checkPeriod(period, len(prices), period+1); err != nil {
		return nil, err
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		returns[i-1] = math.Log(prices[i] / prices[i-1])
	}

	result := make([]float64, len(returns)-period+1)
	for i := period - 1; i < len(returns); i++ {
		result[i-period+1] = stdDev(returns[i-period+1:i+1]) * math.Sqrt(TradingDaysPerYear)
	}
	return result, nil
}

// BollingerBands calculates Bollinger Bands.
type BollingerBands struct {
	period int
	k      float64
}

// NewBollingerBands creates a new Bollinger Bands indicator.
func NewBollingerBands(period int, k float64) *BollingerBands {
	return &BollingerBands{period: period, k: k}
}

func (b *BollingerBands) Name() string {
	return "bollinger"
}

func (b *BollingerBands) Period() int {
	return b.period
}

func (b *BollingerBands) Calculate(series *models.PriceSeries) (map[string][]float64, error) {
	band, err := BollingerValues(series.Prices(), b.period, b.k)
	if err != nil {
		return nil, err
	}
	return map[string][]float64{
		KeyBollingerUpper:     band.Upper,
		KeyBollingerMiddle:    band.Middle,
		KeyBollingerLower:     band.Lower,
		KeyBollingerBandwidth: band.Bandwidth,
	}, nil
}

// ATR calculates the Average True Range.
type ATR struct {
	period int
}

// NewATR creates a new ATR indicator.
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

func (a *ATR) Name() string {
	return "atr"
}

func (a *ATR) Period() int {
	return a.period
}

func (a *ATR) Calculate(series *models.PriceSeries) ([]float64, error) {
	return ATRValues(series.Prices(), a.period)
}

// Volatility calculates rolling annualized volatility.
type Volatility struct {
	period int
}

// NewVolatility creates a new Volatility indicator.
func NewVolatility(period int) *Volatility {
	return &Volatility{period: period}
}

func (v *Volatility) Name() string {
	return "volatility"
}

func (v *Volatility) Period() int {
	return v.period
}

func (v *Volatility) Calculate(series *models.PriceSeries) ([]float64, error) {
	return VolatilityValues(series.Prices(), v.period)
}
