package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeStatus represents the lifecycle state of a recorded trade.
type TradeStatus string

const (
	TradeExecuted TradeStatus = "EXECUTED"
)

// TradeRequest is a caller-supplied order for the ledger.
type TradeRequest struct {
	Symbol    string
	Side      Side
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	Timestamp time.Time // zero means "now" by the ledger clock
}

// Value returns quantity x price.
func (r TradeRequest) Value() decimal.Decimal {
	return r.Quantity.Mul(r.Price)
}

// Trade is an immutable record of an executed trade.
type Trade struct {
	ID          string           `json:"id" yaml:"id"`
	Symbol      string           `json:"symbol" yaml:"symbol"`
	Side        Side             `json:"type" yaml:"type"`
	Quantity    decimal.Decimal  `json:"quantity" yaml:"quantity"`
	Price       decimal.Decimal  `json:"price" yaml:"price"`
	Commission  decimal.Decimal  `json:"commission" yaml:"commission"`
	Timestamp   time.Time        `json:"timestamp" yaml:"timestamp"`
	RealizedPnL *decimal.Decimal `json:"realized_pnl,omitempty" yaml:"realized_pnl,omitempty"`
	Status      TradeStatus      `json:"status" yaml:"status"`
}

// Position is an open holding in one symbol.
type Position struct {
	Symbol               string          `json:"symbol" yaml:"symbol"`
	Quantity             decimal.Decimal `json:"quantity" yaml:"quantity"`
	CostBasis            decimal.Decimal `json:"cost_basis" yaml:"cost_basis"`
	AveragePrice         decimal.Decimal `json:"average_price" yaml:"average_price"`
	CurrentPrice         decimal.Decimal `json:"current_price" yaml:"current_price"`
	CurrentValue         decimal.Decimal `json:"current_value" yaml:"current_value"`
	UnrealizedPnL        decimal.Decimal `json:"unrealized_pnl" yaml:"unrealized_pnl"`
	UnrealizedPnLPercent decimal.Decimal `json:"unrealized_pnl_percent" yaml:"unrealized_pnl_percent"`
	LastUpdated          time.Time       `json:"last_updated" yaml:"last_updated"`
}

// Mark revalues the position at price.
func (p *Position) Mark(price decimal.Decimal, at time.Time) {
	p.CurrentPrice = price
	p.CurrentValue = p.Quantity.Mul(price)
	p.UnrealizedPnL = p.CurrentValue.Sub(p.CostBasis)
	if p.CostBasis.IsPositive() {
		p.UnrealizedPnLPercent = p.UnrealizedPnL.Div(p.CostBasis).Mul(decimal.NewFromInt(100))
	} else {
		p.UnrealizedPnLPercent = decimal.Zero
	}
	p.LastUpdated = at
}

// Portfolio is a snapshot of cash and open positions.
type Portfolio struct {
	InitialCapital  decimal.Decimal     `json:"initial_capital" yaml:"initial_capital"`
	Cash            decimal.Decimal     `json:"cash" yaml:"cash"`
	Positions       map[string]Position `json:"positions" yaml:"positions"`
	TotalValue      decimal.Decimal     `json:"total_value" yaml:"total_value"`
	TotalPnL        decimal.Decimal     `json:"total_pnl" yaml:"total_pnl"`
	TotalPnLPercent decimal.Decimal     `json:"total_pnl_percent" yaml:"total_pnl_percent"`
	LastUpdated     time.Time           `json:"last_updated" yaml:"last_updated"`

	// Version is incremented by every persisted write.
	Version int64 `json:"version" yaml:"version"`
}

// NewPortfolio creates an all-cash portfolio.
func NewPortfolio(initialCapital decimal.Decimal, at time.Time) *Portfolio {
	return &Portfolio{
		InitialCapital:  initialCapital,
		Cash:            initialCapital,
		Positions:       make(map[string]Position),
		TotalValue:      initialCapital,
		TotalPnL:        decimal.Zero,
		TotalPnLPercent: decimal.Zero,
		LastUpdated:     at,
	}
}

// Clone returns a deep copy of the portfolio.
func (p *Portfolio) Clone() *Portfolio {
	cp := *p
	cp.Positions = make(map[string]Position, len(p.Positions))
	for k, v := range p.Positions {
		cp.Positions[k] = v
	}
	return &cp
}

// Revalue recomputes TotalValue, TotalPnL and TotalPnLPercent from cash and
// the positions' current values.
func (p *Portfolio) Revalue(at time.Time) {
	total := p.Cash
	for _, pos := range p.Positions {
		total = total.Add(pos.CurrentValue)
	}
	p.TotalValue = total
	p.TotalPnL = total.Sub(p.InitialCapital)
	if p.InitialCapital.IsPositive() {
		p.TotalPnLPercent = p.TotalPnL.Div(p.InitialCapital).Mul(decimal.NewFromInt(100))
	} else {
		p.TotalPnLPercent = decimal.Zero
	}
	p.LastUpdated = at
}

// AllocationEntry is one slice of the portfolio allocation breakdown.
type AllocationEntry struct {
	Symbol  string          `json:"symbol" yaml:"symbol"`
	Value   decimal.Decimal `json:"value" yaml:"value"`
	Percent decimal.Decimal `json:"percent" yaml:"percent"`
}

// ValuePoint is one entry of the portfolio value history.
type ValuePoint struct {
	Timestamp time.Time       `json:"timestamp" yaml:"timestamp"`
	Value     decimal.Decimal `json:"value" yaml:"value"`
}
