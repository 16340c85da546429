// Package risk implements the stateless trade admission checks.
package risk

import (
	"math"

	"github.com/shopspring/decimal"

	"crypto-trader/internal/errors"
	"crypto-trader/internal/models"
)

var hundred = decimal.NewFromInt(100)

// Policy holds the portfolio risk limits as fractions of total value.
type Policy struct {
	MaxPositionSizeFraction float64 `json:"max_position_size_fraction" mapstructure:"max_position_size_fraction"`
	MaxDailyLossFraction    float64 `json:"max_daily_loss_fraction" mapstructure:"max_daily_loss_fraction"`
	MaxDrawdownFraction     float64 `json:"max_drawdown_fraction" mapstructure:"max_drawdown_fraction"`
}

// DefaultPolicy returns 25% max position size, 5% daily loss and 20% drawdown.
func DefaultPolicy() Policy {
	return Policy{
		MaxPositionSizeFraction: 0.25,
		MaxDailyLossFraction:    0.05,
		MaxDrawdownFraction:     0.20,
	}
}

// Validate checks that every limit is a fraction in (0, 1].
func (p Policy) Validate() error {
	limits := []struct {
		field string
		value float64
	}{
		{"max_position_size_fraction", p.MaxPositionSizeFraction},
		{"max_daily_loss_fraction", p.MaxDailyLossFraction},
		{"max_drawdown_fraction", p.MaxDrawdownFraction},
	}
	for _, l := range limits {
		if l.value <= 0 || l.value > 1 {
			return errors.NewValidationError(l.field, l.value, "must be in (0, 1]")
		}
	}
	return nil
}

// Check runs every rule against the proposed trade and returns the first
// violation as a *errors.RiskError. The portfolio's stored totals are used
// as-is; they are only as fresh as the last mark-to-market.
func (p Policy) Check(req models.TradeRequest, portfolio *models.Portfolio) error {
	if err := p.CheckPositionSize(req, portfolio); err != nil {
		return err
	}
	if err := p.CheckDailyLoss(portfolio); err != nil {
		return err
	}
	return p.CheckDrawdown(portfolio)
}

// CheckPositionSize rejects a BUY whose resulting position value would exceed
// the maximum fraction of total portfolio value. SELLs always pass.
func (p Policy) CheckPositionSize(req models.TradeRequest, portfolio *models.Portfolio) error {
	if req.Side == models.SideSell {
		return nil
	}

	newValue := req.Value()
	if pos, ok := portfolio.Positions[req.Symbol]; ok {
		newValue = newValue.Add(pos.CurrentValue)
	}
	maxValue := portfolio.TotalValue.Mul(decimal.NewFromFloat(p.MaxPositionSizeFraction))

	if newValue.GreaterThan(maxValue) {
		return errors.NewRiskError(errors.RulePositionSize,
			newValue.InexactFloat64(), maxValue.InexactFloat64(),
			"position value would exceed maximum position size")
	}
	return nil
}

// CheckDailyLoss rejects any trade while total P&L is below the daily loss limit.
func (p Policy) CheckDailyLoss(portfolio *models.Portfolio) error {
	limit := decimal.NewFromFloat(p.MaxDailyLossFraction).Mul(hundred).Neg()
	if portfolio.TotalPnLPercent.LessThan(limit) {
		return errors.NewRiskError(errors.RuleDailyLoss,
			portfolio.TotalPnLPercent.InexactFloat64(), limit.InexactFloat64(),
			"daily loss limit reached")
	}
	return nil
}

// CheckDrawdown rejects any trade while total P&L is below the drawdown limit.
func (p Policy) CheckDrawdown(portfolio *models.Portfolio) error {
	limit := decimal.NewFromFloat(p.MaxDrawdownFraction).Mul(hundred).Neg()
	if portfolio.TotalPnLPercent.LessThan(limit) {
		return errors.NewRiskError(errors.RuleDrawdown,
			portfolio.TotalPnLPercent.InexactFloat64(), limit.InexactFloat64(),
			"maximum drawdown reached")
	}
	return nil
}

// PositionSize returns the quantity that risks riskPercent of total value
// between entry and stop, capped by the maximum position size.
func (p Policy) PositionSize(entry, stop float64, portfolio *models.Portfolio, riskPercent float64) float64 {
	if entry <= 0 {
		return 0
	}
	accountValue := portfolio.TotalValue.InexactFloat64()
	maxShares := accountValue * p.MaxPositionSizeFraction / entry

	riskPerUnit := math.Abs(entry - stop)
	if riskPerUnit == 0 {
		return maxShares
	}
	return math.Min(accountValue*riskPercent/riskPerUnit, maxShares)
}

// Metrics summarizes how much of each limit the portfolio is using.
func (p Policy) Metrics(portfolio *models.Portfolio) map[string]float64 {
	metrics := make(map[string]float64)

	total := portfolio.TotalValue.InexactFloat64()
	if total > 0 {
		metrics["cash_utilization"] = (total - portfolio.Cash.InexactFloat64()) / total * 100

		var largest float64
		for _, pos := range portfolio.Positions {
			largest = math.Max(largest, pos.CurrentValue.InexactFloat64()/total*100)
		}
		metrics["largest_position_percent"] = largest
	}

	pnl := portfolio.TotalPnLPercent.InexactFloat64()
	metrics["total_pnl_percent"] = pnl
	metrics["daily_loss_remaining_percent"] = p.MaxDailyLossFraction*100 + pnl
	metrics["drawdown_remaining_percent"] = p.MaxDrawdownFraction*100 + pnl
	metrics["open_positions"] = float64(len(portfolio.Positions))

	return metrics
}
