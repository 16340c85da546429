package indicators

import (
	"math"

	"crypto-trader/internal/models"
)

// RSIValues calculates the Relative Strength Index with Wilder smoothing.
// The result has len(prices)-period elements; value i belongs to price
// index period+i. A window without losses yields 100.
func RSIValues(prices []float64, period int) ([]float64, error) {
	if err := checkPeriod(period, len(prices), period+1); err != nil {
		return nil, err
	}

	n := len(prices)
	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}

	rsi := func(avgGain, avgLoss float64) float64 {
		if avgLoss == 0 {
			return 100
		}
		return 100 - 100/(1+avgGain/avgLoss)
	}

	result := make([]float64, n-period)
	avgGain := mean(gains[1 : period+1])
	avgLoss := mean(losses[1 : period+1])
	result[0] = rsi(avgGain, avgLoss)

	for i := period + 1; i < n; i++ {
		avgGain = (avgGain*float64(period-1) + gains[i]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i]) / float64(period)
		result[i-period] = rsi(avgGain, avgLoss)
	}

	return result, nil
}

// StochasticValues calculates %K and %D over closing prices. The raw %K of a
// flat window is 50.
func StochasticValues(prices []float64, period, smoothK, smoothD int) (k, d []float64, err error) {
	if smoothK <= 0 || smoothD <= 0 {
		return nil, nil, ErrInvalidPeriod
	}
	if err := checkPeriod(period, len(prices), period+smoothK+smoothD-2); err != nil {
		return nil, nil, err
	}

	raw := make([]float64, len(prices)-period+1)
	for i := period - 1; i < len(prices); i++ {
		window := prices[i-period+1 : i+1]
		hi, lo := highest(window), lowest(window)
		if hi == lo {
			raw[i-period+1] = 50
			continue
		}
		raw[i-period+1] = 100 * (prices[i] - lo) / (hi - lo)
	}

	if k, err = SMAValues(raw, smoothK); err != nil {
		return nil, nil, err
	}
	if d, err = SMAValues(k, smoothD); err != nil {
		return nil, nil, err
	}
	return k, d, nil
}

// WilliamsRValues calculates Williams %R in [-100, 0]. A flat window yields -50.
func WilliamsRValues(prices []float64, period int) ([]float64, error) {
	if err := checkPeriod(period, len(prices), period); err != nil {
		return nil, err
	}

	result := make([]float64, len(prices)-period+1)
	for i := period - 1; i < len(prices); i++ {
		window := prices[i-period+1 : i+1]
		hi, lo := highest(window), lowest(window)
		if hi == lo {
			result[i-period+1] = -50
			continue
		}
		result[i-period+1] = math.Max(-100, math.Min(0, -100*(hi-prices[i])/(hi-lo)))
	}
	return result, nil
}

// CCIValues calculates the Commodity Channel Index using the price as the
// typical price. A window with zero mean deviation yields 0.
func CCIValues(prices []float64, period int) ([]float64, error) {
	if err := checkPeriod(period, len(prices), period); err != nil {
		return nil, err
	}

	result := make([]float64, len(prices)-period+1)
	for i := period - 1; i < len(prices); i++ {
		window := prices[i-period+1 : i+1]
		if highest(window) == lowest(window) {
			continue
		}
		avg := mean(window)
		var meanDev float64
		for _, p := range window {
			meanDev += math.Abs(p - avg)
		}
		meanDev /= float64(period)
		if meanDev == 0 {
			continue
		}
		result[i-period+1] = (prices[i] - avg) / (0.015 * meanDev)
	}
	return result, nil
}

// RSI calculates the Relative Strength Index.
type RSI struct {
	period int
}

// NewRSI creates a new RSI indicator.
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

func (r *RSI) Name() string {
	return "rsi"
}

func (r *RSI) Period() int {
	return r.period
}

func (r *RSI) Calculate(series *models.PriceSeries) ([]float64, error) {
	return RSIValues(series.Prices(), r.period)
}

// Stochastic calculates the Stochastic Oscillator (%K and %D).
type Stochastic struct {
	period  int
	smoothK int
	smoothD int
}

// NewStochastic creates a new Stochastic indicator.
func NewStochastic(period, smoothK, smoothD int) *Stochastic {
	return &Stochastic{period: period, smoothK: smoothK, smoothD: smoothD}
}

func (s *Stochastic) Name() string {
	return "stochastic"
}

func (s *Stochastic) Period() int {
	return s.period + s.smoothK + s.smoothD - 2
}

func (s *Stochastic) Calculate(series *models.PriceSeries) (map[string][]float64, error) {
	k, d, err := StochasticValues(series.Prices(), s.period, s.smoothK, s.smoothD)
	if err != nil {
		return nil, err
	}
	return map[string][]float64{
		KeyStochasticK: k,
		KeyStochasticD: d,
	}, nil
}

// WilliamsR calculates Williams %R.
type WilliamsR struct {
	period int
}

// NewWilliamsR creates a new Williams %R indicator.
func NewWilliamsR(period int) *WilliamsR {
	return &WilliamsR{period: period}
}

func (w *WilliamsR) Name() string {
	return "williams_r"
}

func (w *WilliamsR) Period() int {
	return w.period
}

func (w *WilliamsR) Calculate(series *models.PriceSeries) ([]float64, error) {
	return WilliamsRValues(series.Prices(), w.period)
}

// CCI calculates the Commodity Channel Index.
type CCI struct {
	period int
}

// NewCCI creates a new CCI indicator.
func NewCCI(period int) *CCI {
	return &CCI{period: period}
}

func (c *CCI) Name() string {
	return "cci"
}

func (c *CCI) Period() int {
	return c.period
}

func (c *CCI) Calculate(series *models.PriceSeries) ([]float64, error) {
	return CCIValues(series.Prices(), c.period)
}
