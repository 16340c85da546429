package risk

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"crypto-trader/internal/errors"
	"crypto-trader/internal/models"
)

func portfolio(total int64) *models.Portfolio {
	return models.NewPortfolio(decimal.NewFromInt(total), time.Now())
}

func buy(symbol string, qty, price float64) models.TradeRequest {
	return models.TradeRequest{
		Symbol:   symbol,
		Side:     models.SideBuy,
		Quantity: decimal.NewFromFloat(qty),
		Price:    decimal.NewFromFloat(price),
	}
}

func TestPositionSizeLimitBlocksOversizedBuy(t *testing.T) {
	err := DefaultPolicy().Check(buy("BTC", 1, 3000), portfolio(10000))
	if !errors.Is(err, errors.ErrRiskLimitExceeded) {
		t.Fatalf("expected ErrRiskLimitExceeded, got %v", err)
	}
	var riskErr *errors.RiskError
	if !errors.As(err, &riskErr) || riskErr.Rule != errors.RulePositionSize {
		t.Fatalf("expected position_size rule, got %v", err)
	}
	if riskErr.Current != 3000 || riskErr.Limit != 2500 {
		t.Errorf("current/limit = %v/%v, want 3000/2500", riskErr.Current, riskErr.Limit)
	}

	if err := DefaultPolicy().Check(buy("BTC", 1, 2500), portfolio(10000)); err != nil {
		t.Errorf("exactly 25%% must be admitted: %v", err)
	}
}

func TestPositionSizeIncludesExistingPosition(t *testing.T) {
	p := portfolio(10000)
	p.Positions["ETH"] = models.Position{Symbol: "ETH", CurrentValue: decimal.NewFromInt(2000)}

	if err := DefaultPolicy().Check(buy("ETH", 1, 600), p); err == nil {
		t.Error("2000 held + 600 bought exceeds 2500")
	}
	if err := DefaultPolicy().Check(buy("SOL", 1, 600), p); err != nil {
		t.Errorf("other symbols are unaffected: %v", err)
	}
}

func TestSellBypassesPositionSize(t *testing.T) {
	req := buy("BTC", 10, 5000)
	req.Side = models.SideSell
	if err := DefaultPolicy().Check(req, portfolio(10000)); err != nil {
		t.Errorf("SELL must bypass the size check: %v", err)
	}
}

func TestLossLimits(t *testing.T) {
	tests := []struct {
		name     string
		pnlPct   float64
		wantRule string
	}{
		{"healthy", -1, ""},
		{"at daily limit", -5, ""},
		{"daily loss", -6, errors.RuleDailyLoss},
		{"beyond drawdown", -25, errors.RuleDailyLoss},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := portfolio(10000)
			p.TotalPnLPercent = decimal.NewFromFloat(tt.pnlPct)
			req := buy("BTC", 0.01, 100)
			req.Side = models.SideSell

			err := DefaultPolicy().Check(req, p)
			if tt.wantRule == "" {
				if err != nil {
					t.Errorf("unexpected rejection: %v", err)
				}
				return
			}
			var riskErr *errors.RiskError
			if !errors.As(err, &riskErr) || riskErr.Rule != tt.wantRule {
				t.Errorf("expected rule %s, got %v", tt.wantRule, err)
			}
		})
	}
}

func TestDrawdownRule(t *testing.T) {
	policy := Policy{MaxPositionSizeFraction: 1, MaxDailyLossFraction: 0.5, MaxDrawdownFraction: 0.2}
	p := portfolio(10000)
	p.TotalPnLPercent = decimal.NewFromInt(-21)

	var riskErr *errors.RiskError
	if err := policy.CheckDrawdown(p); !errors.As(err, &riskErr) || riskErr.Rule != errors.RuleDrawdown {
		t.Errorf("expected drawdown rule, got %v", err)
	}
}

// Property: For any BUY on a fresh portfolio, admission happens exactly when
// the trade value is within the maximum position fraction of total value.
func TestProperty_PositionSizeThreshold(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("admitted iff value <= fraction x total", prop.ForAll(
		func(total int64, value int64, fraction float64) bool {
			policy := DefaultPolicy()
			policy.MaxPositionSizeFraction = fraction

			p := portfolio(total)
			err := policy.Check(buy("BTC", 1, float64(value)), p)

			limit := decimal.NewFromInt(total).Mul(decimal.NewFromFloat(fraction))
			within := !decimal.NewFromInt(value).GreaterThan(limit)
			return within == (err == nil)
		},
		gen.Int64Range(1000, 1000000),
		gen.Int64Range(1, 1000000),
		gen.Float64Range(0.05, 1),
	))

	properties.TestingRun(t)
}

func TestPositionSize(t *testing.T) {
	p := portfolio(10000)
	policy := DefaultPolicy()

	// Risk 2% (200) over a 5 unit stop distance = 40 units, capped at 2500/100 = 25.
	if got := policy.PositionSize(100, 95, p, 0.02); got != 25 {
		t.Errorf("PositionSize = %v, want 25", got)
	}
	// Risk 1% (100) over a 10 unit stop distance = 10 units, under the cap.
	if got := policy.PositionSize(100, 90, p, 0.01); got != 10 {
		t.Errorf("PositionSize = %v, want 10", got)
	}
	if got := policy.PositionSize(0, 90, p, 0.01); got != 0 {
		t.Errorf("PositionSize with zero entry = %v, want 0", got)
	}
}

func TestValidate(t *testing.T) {
	if err := DefaultPolicy().Validate(); err != nil {
		t.Errorf("default policy invalid: %v", err)
	}
	bad := DefaultPolicy()
	bad.MaxDrawdownFraction = 1.5
	if err := bad.Validate(); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestMetrics(t *testing.T) {
	p := portfolio(10000)
	p.Cash = decimal.NewFromInt(7000)
	p.Positions["BTC"] = models.Position{Symbol: "BTC", CurrentValue: decimal.NewFromInt(3000)}

	m := DefaultPolicy().Metrics(p)
	if math.Abs(m["cash_utilization"]-30) > 1e-9 || math.Abs(m["largest_position_percent"]-30) > 1e-9 {
		t.Errorf("unexpected metrics %v", m)
	}
	if m["open_positions"] != 1 || math.Abs(m["daily_loss_remaining_percent"]-5) > 1e-9 {
		t.Errorf("unexpected metrics %v", m)
	}
}
