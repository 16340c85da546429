// Package ledger maintains the paper-trading portfolio and its trade log.
package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"crypto-trader/internal/errors"
	"crypto-trader/internal/models"
	"crypto-trader/internal/risk"
)

// DefaultCommissionRate is 0.1% of the trade value.
var DefaultCommissionRate = decimal.New(1, -3)

// Options parameterize a single ledger transition.
type Options struct {
	CommissionRate decimal.Decimal
	// Policy is the admission check; nil admits every well-formed trade.
	Policy *risk.Policy
	Now    func() time.Time
	NewID  func() string
}

// DefaultOptions charges the default commission and applies the default
// risk policy.
func DefaultOptions() Options {
	policy := risk.DefaultPolicy()
	return Options{CommissionRate: DefaultCommissionRate, Policy: &policy}
}

func (o Options) withDefaults() Options {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	return o
}

// Validate checks that the request is well-formed.
func Validate(req models.TradeRequest) error {
	if strings.TrimSpace(req.Symbol) == "" {
		return errors.NewValidationError("symbol", req.Symbol, "symbol is required")
	}
	if req.Side != models.SideBuy && req.Side != models.SideSell {
		return errors.NewValidationError("type", req.Side, "must be BUY or SELL")
	}
	if !req.Quantity.IsPositive() {
		return errors.NewValidationError("quantity", req.Quantity.String(), "must be positive")
	}
	if !req.Price.IsPositive() {
		return errors.NewValidationError("price", req.Price.String(), "must be positive")
	}
	return nil
}

// Apply executes req against portfolio and returns the resulting portfolio
// and trade record. The input portfolio is never modified; on error the
// caller's state is exactly as it was.
//
// Portfolio totals are left as they were; only MarkToMarket recomputes them.
func Apply(portfolio *models.Portfolio, req models.TradeRequest, opts Options) (*models.Portfolio, *models.Trade, error) {
	opts = opts.withDefaults()

	if err := Validate(req); err != nil {
		return nil, nil, err
	}
	if opts.Policy != nil {
		if err := opts.Policy.Check(req, portfolio); err != nil {
			return nil, nil, err
		}
	}

	next := portfolio.Clone()
	value := req.Value()
	commission := value.Mul(opts.CommissionRate)

	timestamp := req.Timestamp
	if timestamp.IsZero() {
		timestamp = opts.Now()
	}

	trade := &models.Trade{
		ID:         opts.NewID(),
		Symbol:     req.Symbol,
		Side:       req.Side,
		Quantity:   req.Quantity,
		Price:      req.Price,
		Commission: commission,
		Timestamp:  timestamp,
		Status:     models.TradeExecuted,
	}

	switch req.Side {
	case models.SideBuy:
		required := value.Add(commission)
		if next.Cash.LessThan(required) {
			return nil, nil, errors.NewTradeError(req.Symbol, string(req.Side),
				"need "+required.String()+", have "+next.Cash.String(), errors.ErrInsufficientFunds)
		}
		next.Cash = next.Cash.Sub(required)

		pos, ok := next.Positions[req.Symbol]
		if !ok {
			pos = models.Position{Symbol: req.Symbol}
		}
		pos.Quantity = pos.Quantity.Add(req.Quantity)
		pos.CostBasis = pos.CostBasis.Add(value)
		pos.AveragePrice = pos.CostBasis.Div(pos.Quantity)
		pos.Mark(req.Price, timestamp)
		next.Positions[req.Symbol] = pos

	case models.SideSell:
		pos, ok := next.Positions[req.Symbol]
		if !ok || pos.Quantity.LessThan(req.Quantity) {
			held := decimal.Zero
			if ok {
				held = pos.Quantity
			}
			return nil, nil, errors.NewTradeError(req.Symbol, string(req.Side),
				"hold "+held.String()+", selling "+req.Quantity.String(), errors.ErrInsufficientQuantity)
		}

		costOfSold := pos.CostBasis
		if !req.Quantity.Equal(pos.Quantity) {
			costOfSold = pos.CostBasis.Mul(req.Quantity).Div(pos.Quantity)
		}
		realized := value.Sub(costOfSold).Sub(commission)
		trade.RealizedPnL = &realized

		next.Cash = next.Cash.Add(value.Sub(commission))

		pos.Quantity = pos.Quantity.Sub(req.Quantity)
		pos.CostBasis = pos.CostBasis.Sub(costOfSold)
		if pos.Quantity.IsZero() {
			delete(next.Positions, req.Symbol)
		} else {
			pos.AveragePrice = pos.CostBasis.Div(pos.Quantity)
			pos.Mark(req.Price, timestamp)
			next.Positions[req.Symbol] = pos
		}
	}

	return next, trade, nil
}
