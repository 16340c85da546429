// Package indicators provides technical indicator calculations with parallel processing.
package indicators

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"crypto-trader/internal/models"
)

// Indicator defines the interface for single-value technical indicators.
type Indicator interface {
	Name() string
	Calculate(series *models.PriceSeries) ([]float64, error)
	Period() int
}

// MultiValueIndicator defines the interface for indicators that return multiple values.
type MultiValueIndicator interface {
	Name() string
	Calculate(series *models.PriceSeries) (map[string][]float64, error)
	Period() int
}

// Engine provides parallel indicator calculation using a worker pool.
type Engine struct {
	workers     int
	indicators  map[string]Indicator
	multiIndics map[string]MultiValueIndicator
	mu          sync.RWMutex
}

// NewEngine creates a new indicator engine with the specified number of workers.
func NewEngine(workers int) *Engine {
	if workers <= 0 {
		workers = 4
	}
	return &Engine{
		workers:     workers,
		indicators:  make(map[string]Indicator),
		multiIndics: make(map[string]MultiValueIndicator),
	}
}

// NewDefaultEngine creates an engine with the full indicator library
// registered at its standard periods.
func NewDefaultEngine(workers int) *Engine {
	e := NewEngine(workers)
	e.RegisterIndicator(NewRSI(14))
	e.RegisterIndicator(NewWilliamsR(14))
	e.RegisterIndicator(NewCCI(20))
	e.RegisterIndicator(NewATR(14))
	e.RegisterIndicator(NewOBV())
	e.RegisterIndicator(NewVWAP())
	e.RegisterIndicator(NewVolatility(20))
	e.RegisterIndicator(NewSMA(20))
	e.RegisterIndicator(NewEMA(12))
	e.RegisterIndicator(NewEMA(26))
	e.RegisterMultiIndicator(NewMACD(12, 26, 9))
	e.RegisterMultiIndicator(NewBollingerBands(20, 2))
	e.RegisterMultiIndicator(NewStochastic(14, 3, 3))
	e.RegisterMultiIndicator(NewIchimoku(9, 26, 52))
	return e
}

// RegisterIndicator registers a single-value indicator.
func (e *Engine) RegisterIndicator(ind Indicator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.indicators[ind.Name()] = ind
}

// RegisterMultiIndicator registers a multi-value indicator.
func (e *Engine) RegisterMultiIndicator(ind MultiValueIndicator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.multiIndics[ind.Name()] = ind
}

// CalculateAll calculates all registered indicators in parallel. Indicators
// that cannot be computed (e.g. not enough warm-up data) are omitted.
func (e *Engine) CalculateAll(ctx context.Context, series *models.PriceSeries) (map[string][]float64, error) {
	e.mu.RLock()
	jobs := make([]func() (map[string][]float64, error), 0, len(e.indicators)+len(e.multiIndics))
	for _, ind := range e.indicators {
		ind := ind
		jobs = append(jobs, func() (map[string][]float64, error) {
			values, err := ind.Calculate(series)
			if err != nil {
				return nil, err
			}
			return map[string][]float64{ind.Name(): values}, nil
		})
	}
	for _, ind := range e.multiIndics {
		ind := ind
		jobs = append(jobs, func() (map[string][]float64, error) {
			return ind.Calculate(series)
		})
	}
	e.mu.RUnlock()

	results := make(map[string][]float64)
	var mu sync.Mutex
	var wg sync.WaitGroup

	work := make(chan func() (map[string][]float64, error), len(jobs))

	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range work {
				select {
				case <-ctx.Done():
					return
				default:
					values, err := job()
					if err == nil {
						mu.Lock()
						for name, v := range values {
							results[name] = v
						}
						mu.Unlock()
					}
				}
			}
		}()
	}

	for _, job := range jobs {
		work <- job
	}
	close(work)

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Compute builds the full IndicatorSet for a series: every registered
// indicator plus Fibonacci levels and support/resistance levels.
func (e *Engine) Compute(ctx context.Context, series *models.PriceSeries) (*IndicatorSet, error) {
	values, err := e.CalculateAll(ctx, series)
	if err != nil {
		return nil, err
	}

	prices := series.Prices()
	set := NewIndicatorSet()
	set.Values = values
	set.Fibonacci = Fibonacci(prices)
	set.Levels = SupportResistance(prices, DefaultLevelWindow, DefaultLevelMinStrength)
	return set, nil
}

// Calculate calculates a specific indicator by name.
func (e *Engine) Calculate(ctx context.Context, name string, series *models.PriceSeries) ([]float64, error) {
	e.mu.RLock()
	ind, ok := e.indicators[name]
	e.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("indicator %s not found", name)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		return ind.Calculate(series)
	}
}

// ListIndicators returns the sorted names of all registered indicators.
func (e *Engine) ListIndicators() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.indicators)+len(e.multiIndics))
	for name := range e.indicators {
		names = append(names, name)
	}
	for name := range e.multiIndics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
