// Package performance tracks realized trade statistics and computes
// portfolio-level return metrics.
package performance

import (
	"math"
	"sync"

	"github.com/shopspring/decimal"

	"crypto-trader/internal/models"
)

// Metrics is a snapshot of the running trade statistics.
type Metrics struct {
	TotalTrades   int     `json:"total_trades" yaml:"total_trades"`
	WinningTrades int     `json:"winning_trades" yaml:"winning_trades"`
	LosingTrades  int     `json:"losing_trades" yaml:"losing_trades"`
	WinRate       float64 `json:"win_rate" yaml:"win_rate"` // percent
	TotalWin      float64 `json:"total_win" yaml:"total_win"`
	TotalLoss     float64 `json:"total_loss" yaml:"total_loss"` // negative
	AverageWin    float64 `json:"average_win" yaml:"average_win"`
	AverageLoss   float64 `json:"average_loss" yaml:"average_loss"` // negative
	LargestWin    float64 `json:"largest_win" yaml:"largest_win"`
	LargestLoss   float64 `json:"largest_loss" yaml:"largest_loss"` // negative
	ProfitFactor  float64 `json:"profit_factor" yaml:"profit_factor"`
}

// Tracker accumulates statistics from trades carrying a realized P&L.
// It is safe for concurrent use and satisfies ledger.TradeObserver.
type Tracker struct {
	mu sync.RWMutex

	total, wins, losses int
	winSum, lossSum     decimal.Decimal
	largestWin          decimal.Decimal
	largestLoss         decimal.Decimal
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// OnTrade records trade.
func (t *Tracker) OnTrade(trade models.Trade) {
	t.RecordTrade(trade)
}

// RecordTrade updates the statistics. Trades without a realized P&L (BUYs)
// are ignored; a zero P&L counts towards the total only.
func (t *Tracker) RecordTrade(trade models.Trade) {
	if trade.RealizedPnL == nil {
		return
	}
	pnl := *trade.RealizedPnL

	t.mu.Lock()
	defer t.mu.Unlock()

	t.total++
	switch {
	case pnl.IsPositive():
		t.wins++
		t.winSum = t.winSum.Add(pnl)
		t.largestWin = decimal.Max(t.largestWin, pnl)
	case pnl.IsNegative():
		t.losses++
		t.lossSum = t.lossSum.Add(pnl)
		t.largestLoss = decimal.Min(t.largestLoss, pnl)
	}
}

// Replay records every trade in order.
func (t *Tracker) Replay(trades []models.Trade) {
	for _, trade := range trades {
		t.RecordTrade(trade)
	}
}

// Metrics returns the current statistics.
func (t *Tracker) Metrics() Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	m := Metrics{
		TotalTrades:   t.total,
		WinningTrades: t.wins,
		LosingTrades:  t.losses,
		TotalWin:      t.winSum.InexactFloat64(),
		TotalLoss:     t.lossSum.InexactFloat64(),
		LargestWin:    t.largestWin.InexactFloat64(),
		LargestLoss:   t.largestLoss.InexactFloat64(),
	}
	if t.total > 0 {
		m.WinRate = float64(t.wins) / float64(t.total) * 100
	}
	if t.wins > 0 {
		m.AverageWin = t.winSum.Div(decimal.NewFromInt(int64(t.wins))).InexactFloat64()
	}
	if t.losses > 0 {
		m.AverageLoss = t.lossSum.Div(decimal.NewFromInt(int64(t.losses))).InexactFloat64()
	}
	if !t.lossSum.IsZero() {
		m.ProfitFactor = t.winSum.Div(t.lossSum).Abs().InexactFloat64()
	}
	return m
}

// Returns converts a value history into simple period returns. Periods
// starting from a non-positive value are skipped.
func Returns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] <= 0 {
			continue
		}
		returns = append(returns, (values[i]-values[i-1])/values[i-1])
	}
	return returns
}

// Sharpe is (mean return - riskFreeRate) / population standard deviation of
// returns. It is 0 with fewer than two returns or zero deviation.
func Sharpe(returns []float64, riskFreeRate float64) float64 {
	n := len(returns)
	if n < 2 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(n)

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	std := math.Sqrt(variance / float64(n))
	if std == 0 {
		return 0
	}
	return (mean - riskFreeRate) / std
}

// MaxDrawdown is the largest peak-to-trough decline in percent, scanning
// values left to right with a running peak.
func MaxDrawdown(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	var maxDD float64
	peak := values[0]
	for _, v := range values[1:] {
		if v > peak {
			peak = v
			continue
		}
		if peak > 0 {
			maxDD = math.Max(maxDD, (peak-v)/peak)
		}
	}
	return maxDD * 100
}

// Summary combines trade statistics with return metrics over a value history.
type Summary struct {
	Metrics `yaml:",inline"`

	TotalReturn        float64 `json:"total_return" yaml:"total_return"`
	TotalReturnPercent float64 `json:"total_return_percent" yaml:"total_return_percent"`
	SharpeRatio        float64 `json:"sharpe_ratio" yaml:"sharpe_ratio"`
	MaxDrawdown        float64 `json:"max_drawdown" yaml:"max_drawdown"` // percent
}

// Summarize reports the tracker's metrics together with return statistics of
// history measured against initialCapital.
func (t *Tracker) Summarize(initialCapital float64, history []models.ValuePoint, riskFreeRate float64) Summary {
	values := make([]float64, len(history))
	for i, p := range history {
		values[i] = p.Value.InexactFloat64()
	}

	s := Summary{
		Metrics:     t.Metrics(),
		SharpeRatio: Sharpe(Returns(values), riskFreeRate),
		MaxDrawdown: MaxDrawdown(values),
	}
	if len(values) > 0 {
		s.TotalReturn = values[len(values)-1] - initialCapital
		if initialCapital > 0 {
			s.TotalReturnPercent = s.TotalReturn / initialCapital * 100
		}
	}
	return s
}
