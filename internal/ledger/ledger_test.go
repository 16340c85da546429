package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"crypto-trader/internal/errors"
	"crypto-trader/internal/models"
	"crypto-trader/internal/risk"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func request(side models.Side, symbol, qty, price string) models.TradeRequest {
	return models.TradeRequest{Symbol: symbol, Side: side, Quantity: d(qty), Price: d(price)}
}

func noRiskOptions() Options {
	return Options{CommissionRate: DefaultCommissionRate}
}

func TestApplyBuyThenSellWorkedExample(t *testing.T) {
	start := models.NewPortfolio(d("100000"), time.Now())

	afterBuy, buyTrade, err := Apply(start, request(models.SideBuy, "BTC", "1", "50000"), noRiskOptions())
	if err != nil {
		t.Fatalf("BUY failed: %v", err)
	}
	if !afterBuy.Cash.Equal(d("49950")) {
		t.Errorf("cash after BUY = %s, want 49950", afterBuy.Cash)
	}
	pos := afterBuy.Positions["BTC"]
	if !pos.Quantity.Equal(d("1")) || !pos.CostBasis.Equal(d("50000")) || !pos.AveragePrice.Equal(d("50000")) {
		t.Errorf("unexpected position %+v", pos)
	}
	if !buyTrade.Commission.Equal(d("50")) || buyTrade.RealizedPnL != nil {
		t.Errorf("unexpected BUY trade %+v", buyTrade)
	}
	if !start.Cash.Equal(d("100000")) || len(start.Positions) != 0 {
		t.Error("Apply must not modify its input portfolio")
	}

	afterSell, sellTrade, err := Apply(afterBuy, request(models.SideSell, "BTC", "1", "55000"), noRiskOptions())
	if err != nil {
		t.Fatalf("SELL failed: %v", err)
	}
	if sellTrade.RealizedPnL == nil || !sellTrade.RealizedPnL.Equal(d("4945")) {
		t.Errorf("realized PnL = %v, want 4945", sellTrade.RealizedPnL)
	}
	if !afterSell.Cash.Equal(d("104895")) {
		t.Errorf("cash after SELL = %s, want 104895", afterSell.Cash)
	}
	if _, ok := afterSell.Positions["BTC"]; ok {
		t.Error("position must be removed when quantity reaches zero")
	}
	if sellTrade.Status != models.TradeExecuted || sellTrade.ID == "" {
		t.Errorf("unexpected trade record %+v", sellTrade)
	}
}

func TestApplyWeightedAverageAndPartialSell(t *testing.T) {
	p := models.NewPortfolio(d("100000"), time.Now())
	p, _, _ = Apply(p, request(models.SideBuy, "ETH", "2", "1000"), noRiskOptions())
	p, _, _ = Apply(p, request(models.SideBuy, "ETH", "2", "2000"), noRiskOptions())

	pos := p.Positions["ETH"]
	if !pos.AveragePrice.Equal(d("1500")) || !pos.CostBasis.Equal(d("6000")) {
		t.Fatalf("unexpected position %+v", pos)
	}

	p, trade, err := Apply(p, request(models.SideSell, "ETH", "1", "1800"), noRiskOptions())
	if err != nil {
		t.Fatalf("SELL failed: %v", err)
	}
	// 1800 - 1500 - 1.8 commission
	if !trade.RealizedPnL.Equal(d("298.2")) {
		t.Errorf("realized PnL = %s, want 298.2", trade.RealizedPnL)
	}
	pos = p.Positions["ETH"]
	if !pos.Quantity.Equal(d("3")) || !pos.CostBasis.Equal(d("4500")) || !pos.AveragePrice.Equal(d("1500")) {
		t.Errorf("unexpected position after partial sell %+v", pos)
	}
}

func TestApplyRemarksTouchedPositionAtTradePrice(t *testing.T) {
	p := models.NewPortfolio(d("100000"), time.Now())
	p, _, _ = Apply(p, request(models.SideBuy, "ETH", "2", "1000"), noRiskOptions())
	p, _, _ = Apply(p, request(models.SideBuy, "ETH", "2", "2000"), noRiskOptions())

	pos := p.Positions["ETH"]
	if !pos.CurrentPrice.Equal(d("2000")) || !pos.CurrentValue.Equal(d("8000")) || !pos.UnrealizedPnL.Equal(d("2000")) {
		t.Errorf("position after second BUY not marked at 2000: %+v", pos)
	}

	p, _, _ = Apply(p, request(models.SideSell, "ETH", "1", "1800"), noRiskOptions())
	pos = p.Positions["ETH"]
	// 3 * 1800 - 4500
	if !pos.CurrentPrice.Equal(d("1800")) || !pos.CurrentValue.Equal(d("5400")) || !pos.UnrealizedPnL.Equal(d("900")) {
		t.Errorf("position after partial SELL not marked at 1800: %+v", pos)
	}
}

func TestApplyRejections(t *testing.T) {
	funded := models.NewPortfolio(d("10000"), time.Now())
	funded, _, _ = Apply(funded, request(models.SideBuy, "SOL", "5", "100"), noRiskOptions())

	riskOpts := DefaultOptions()

	tests := []struct {
		name string
		req  models.TradeRequest
		opts Options
		want error
	}{
		{"empty symbol", request(models.SideBuy, " ", "1", "1"), noRiskOptions(), errors.ErrInvalidInput},
		{"bad side", request(models.SideHold, "BTC", "1", "1"), noRiskOptions(), errors.ErrInvalidInput},
		{"zero quantity", request(models.SideBuy, "BTC", "0", "1"), noRiskOptions(), errors.ErrInvalidInput},
		{"negative price", request(models.SideBuy, "BTC", "1", "-5"), noRiskOptions(), errors.ErrInvalidInput},
		{"insufficient funds", request(models.SideBuy, "BTC", "1", "9999"), noRiskOptions(), errors.ErrInsufficientFunds},
		{"insufficient quantity", request(models.SideSell, "SOL", "6", "100"), noRiskOptions(), errors.ErrInsufficientQuantity},
		{"no position", request(models.SideSell, "BTC", "1", "100"), noRiskOptions(), errors.ErrInsufficientQuantity},
		{"risk size limit", request(models.SideBuy, "BTC", "1", "3000"), riskOpts, errors.ErrRiskLimitExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := funded.Clone()
			next, trade, err := Apply(funded, tt.req, tt.opts)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if next != nil || trade != nil {
				t.Error("rejected trade must not produce state")
			}
			if !funded.Cash.Equal(before.Cash) || len(funded.Positions) != len(before.Positions) {
				t.Error("input portfolio changed on rejection")
			}
		})
	}
}

func TestRiskPolicyBlocksOversizedBuyDespiteCash(t *testing.T) {
	policy := risk.DefaultPolicy()
	l := New(Config{
		Portfolio: models.NewPortfolio(d("10000"), time.Now()),
		Options:   Options{CommissionRate: DefaultCommissionRate, Policy: &policy},
	})

	_, err := l.Execute(context.Background(), request(models.SideBuy, "BTC", "1", "3000"))
	var riskErr *errors.RiskError
	if !errors.As(err, &riskErr) || riskErr.Rule != errors.RulePositionSize {
		t.Fatalf("expected position_size violation, got %v", err)
	}
	if !l.Portfolio().Cash.Equal(d("10000")) || len(l.Trades()) != 0 {
		t.Error("ledger changed after risk rejection")
	}
}

// Property: For any quantity and price, a BUY followed by a SELL of the same
// quantity at the same price returns cash to its starting value minus two
// commissions and removes the position.
func TestProperty_BuySellRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("cash = start - 2 x commission", prop.ForAll(
		func(qtyMilli, priceCents int64) bool {
			qty := decimal.New(qtyMilli, -3)
			price := decimal.New(priceCents, -2)
			start := models.NewPortfolio(d("1000000000"), time.Now())

			req := models.TradeRequest{Symbol: "BTC", Side: models.SideBuy, Quantity: qty, Price: price}
			afterBuy, buyTrade, err := Apply(start, req, noRiskOptions())
			if err != nil {
				return false
			}
			req.Side = models.SideSell
			afterSell, sellTrade, err := Apply(afterBuy, req, noRiskOptions())
			if err != nil {
				return false
			}

			want := start.Cash.Sub(buyTrade.Commission).Sub(sellTrade.Commission)
			_, held := afterSell.Positions["BTC"]
			return afterSell.Cash.Equal(want) && !held
		},
		gen.Int64Range(1, 100000),
		gen.Int64Range(1, 10000000),
	))

	properties.TestingRun(t)
}

// Property: For any sequence of trade requests, admitted or not, cash never
// goes negative and no zero-quantity position is retained.
func TestProperty_CashNeverNegative(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	symbols := []string{"BTC", "ETH", "SOL"}

	properties.Property("cash >= 0 and no empty positions", prop.ForAll(
		func(ops []int64, prices []int64) bool {
			p := models.NewPortfolio(d("10000"), time.Now())
			for i, op := range ops {
				side := models.SideBuy
				qty := op
				if op < 0 {
					side = models.SideSell
					qty = -op
				}
				price := prices[i%len(prices)]
				req := models.TradeRequest{
					Symbol:   symbols[i%len(symbols)],
					Side:     side,
					Quantity: decimal.NewFromInt(qty),
					Price:    decimal.NewFromInt(price),
				}
				if next, _, err := Apply(p, req, noRiskOptions()); err == nil {
					p = next
				}

				if p.Cash.IsNegative() {
					return false
				}
				for _, pos := range p.Positions {
					if !pos.Quantity.IsPositive() {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOfN(40, gen.Int64Range(-20, 20)),
		gen.SliceOfN(7, gen.Int64Range(1, 2000)),
	))

	properties.TestingRun(t)
}

type fakeStore struct {
	mu        sync.Mutex
	fail      error
	portfolio *models.Portfolio
	trades    []models.Trade
	marks     []models.ValuePoint
}

// commit stores p when it was derived from the stored version.
func (s *fakeStore) commit(p *models.Portfolio) error {
	if s.fail != nil {
		return s.fail
	}
	if s.portfolio != nil && p.Version != s.portfolio.Version+1 {
		return errors.ErrConflict
	}
	s.portfolio = p.Clone()
	return nil
}

func (s *fakeStore) SaveTrade(_ context.Context, p *models.Portfolio, trade *models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.commit(p); err != nil {
		return err
	}
	s.trades = append(s.trades, *trade)
	return nil
}

func (s *fakeStore) SaveMark(_ context.Context, p *models.Portfolio, point models.ValuePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.commit(p); err != nil {
		return err
	}
	s.marks = append(s.marks, point)
	return nil
}

func (s *fakeStore) LoadPortfolio(context.Context) (*models.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.portfolio == nil {
		return nil, errors.ErrDataNotFound
	}
	return s.portfolio.Clone(), nil
}

func (s *fakeStore) TradeLog(context.Context) ([]models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Trade(nil), s.trades...), nil
}

func (s *fakeStore) ValueHistory(context.Context) ([]models.ValuePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ValuePoint(nil), s.marks...), nil
}

type recorder struct {
	trades []models.Trade
}

func (r *recorder) OnTrade(trade models.Trade) {
	r.trades = append(r.trades, trade)
}

func TestLedgerPersistsAndNotifies(t *testing.T) {
	store := &fakeStore{}
	obs := &recorder{}
	l := New(Config{
		Portfolio: models.NewPortfolio(d("100000"), time.Now()),
		Options:   noRiskOptions(),
		Store:     store,
	})
	l.Subscribe(obs)

	ctx := context.Background()
	if _, err := l.Execute(ctx, request(models.SideBuy, "BTC", "1", "50000")); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := l.Execute(ctx, request(models.SideSell, "BTC", "1", "55000")); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if len(store.trades) != 2 || len(obs.trades) != 2 {
		t.Fatalf("persisted %d, observed %d, want 2 each", len(store.trades), len(obs.trades))
	}
	if obs.trades[1].RealizedPnL == nil || !obs.trades[1].RealizedPnL.Equal(d("4945")) {
		t.Errorf("observer saw %+v", obs.trades[1])
	}
}

func TestLedgerStoreFailureLeavesStateUnchanged(t *testing.T) {
	store := &fakeStore{fail: fmt.Errorf("disk full")}
	l := New(Config{
		Portfolio: models.NewPortfolio(d("100000"), time.Now()),
		Options:   noRiskOptions(),
		Store:     store,
	})

	if _, err := l.Execute(context.Background(), request(models.SideBuy, "BTC", "1", "50000")); err == nil {
		t.Fatal("expected persistence error")
	}
	if !l.Portfolio().Cash.Equal(d("100000")) || len(l.Trades()) != 0 {
		t.Error("ledger changed despite persistence failure")
	}
	if _, err := l.MarkToMarket(context.Background(), nil); err == nil {
		t.Error("expected persistence error from MarkToMarket")
	}
	if len(l.ValueHistory()) != 0 {
		t.Error("value history changed despite persistence failure")
	}
}

func TestLedgerReloadsAfterConflict(t *testing.T) {
	start := models.NewPortfolio(d("100000"), time.Now())
	store := &fakeStore{portfolio: start.Clone()}
	a := New(Config{Portfolio: start, Options: noRiskOptions(), Store: store})
	b := New(Config{Portfolio: start, Options: noRiskOptions(), Store: store})
	obs := &recorder{}
	a.Subscribe(obs)

	ctx := context.Background()
	if _, err := a.Execute(ctx, request(models.SideBuy, "ETH", "1", "3000")); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// b still holds version 0 and must pick up a's trade before writing.
	if _, err := b.Execute(ctx, request(models.SideBuy, "BTC", "0.1", "50000")); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// a is now stale in turn; its mark must not drop b's position.
	p, err := a.MarkToMarket(ctx, map[string]decimal.Decimal{"ETH": d("3000"), "BTC": d("50000")})
	if err != nil {
		t.Fatalf("MarkToMarket: %v", err)
	}

	// 100000 - 3003 - 5005
	if !p.Cash.Equal(d("91992")) || len(p.Positions) != 2 {
		t.Errorf("mark lost a concurrent trade: cash %s, positions %d", p.Cash, len(p.Positions))
	}
	if !store.portfolio.Cash.Equal(d("91992")) || store.portfolio.Version != 3 {
		t.Errorf("stored portfolio = cash %s version %d", store.portfolio.Cash, store.portfolio.Version)
	}
	if len(a.Trades()) != 2 || len(obs.trades) != 2 || obs.trades[1].Symbol != "BTC" {
		t.Errorf("reload must surface the other writer's trade: %d trades, %d observed", len(a.Trades()), len(obs.trades))
	}
}

func TestLedgerConflictRechecksRequest(t *testing.T) {
	start := models.NewPortfolio(d("1000"), time.Now())
	store := &fakeStore{portfolio: start.Clone()}
	a := New(Config{Portfolio: start, Options: noRiskOptions(), Store: store})
	b := New(Config{Portfolio: start, Options: noRiskOptions(), Store: store})

	ctx := context.Background()
	if _, err := a.Execute(ctx, request(models.SideBuy, "ETH", "1", "900")); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// Enough cash in b's stale view, not in the stored portfolio.
	_, err := b.Execute(ctx, request(models.SideBuy, "BTC", "1", "500"))
	if !errors.Is(err, errors.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds after reload, got %v", err)
	}
	if len(store.trades) != 1 || !store.portfolio.Cash.Equal(d("99.1")) {
		t.Errorf("rejected trade reached the store: %d trades, cash %s", len(store.trades), store.portfolio.Cash)
	}
}

func TestLedgerSerializesConcurrentTrades(t *testing.T) {
	l := New(Config{
		Portfolio: models.NewPortfolio(d("100000"), time.Now()),
		Options:   noRiskOptions(),
	})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.Execute(context.Background(), request(models.SideBuy, "ETH", "1", "10"))
		}()
	}
	wg.Wait()

	p := l.Portfolio()
	if !p.Cash.Equal(d("98999")) {
		t.Errorf("cash = %s, want 98999", p.Cash)
	}
	if !p.Positions["ETH"].Quantity.Equal(d("100")) || len(l.Trades()) != 100 {
		t.Errorf("lost updates: position %+v, %d trades", p.Positions["ETH"], len(l.Trades()))
	}
}

func TestMarkToMarket(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{}
	l := New(Config{
		Portfolio: models.NewPortfolio(d("100000"), now),
		Options:   Options{CommissionRate: DefaultCommissionRate, Now: func() time.Time { return now }},
		Store:     store,
	})
	ctx := context.Background()
	_, _ = l.Execute(ctx, request(models.SideBuy, "BTC", "1", "50000"))

	// Totals are only recomputed on mark-to-market.
	if !l.Portfolio().TotalValue.Equal(d("100000")) {
		t.Errorf("total value changed before marking: %s", l.Portfolio().TotalValue)
	}

	p, err := l.MarkToMarket(ctx, map[string]decimal.Decimal{"BTC": d("60000"), "ETH": d("1")})
	if err != nil {
		t.Fatalf("MarkToMarket: %v", err)
	}
	if !p.TotalValue.Equal(d("109950")) || !p.TotalPnL.Equal(d("9950")) || !p.TotalPnLPercent.Equal(d("9.95")) {
		t.Errorf("unexpected totals %s / %s / %s", p.TotalValue, p.TotalPnL, p.TotalPnLPercent)
	}
	pos := p.Positions["BTC"]
	if !pos.UnrealizedPnL.Equal(d("10000")) || !pos.UnrealizedPnLPercent.Equal(d("20")) {
		t.Errorf("unexpected position valuation %+v", pos)
	}

	history := l.ValueHistory()
	if len(history) != 1 || !history[0].Value.Equal(d("109950")) || len(store.marks) != 1 {
		t.Errorf("unexpected value history %+v", history)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	l := New(Config{
		Portfolio: models.NewPortfolio(d("100000"), time.Now()),
		Options:   noRiskOptions(),
	})
	ctx := context.Background()
	for _, sym := range []string{"BTC", "ETH", "SOL"} {
		if _, err := l.Execute(ctx, request(models.SideBuy, sym, "1", "100")); err != nil {
			t.Fatalf("Execute: %v", err)
		}
	}

	if _, err := l.Execute(ctx, request(models.SideSell, "ETH", "1", "110")); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	h := l.History(HistoryFilter{Limit: 2})
	if len(h) != 2 || h[0].Side != models.SideSell || h[1].Symbol != "SOL" {
		t.Errorf("unexpected history %+v", h)
	}
	if len(l.History(HistoryFilter{})) != 4 {
		t.Error("default limit should return all four trades")
	}
	eth := l.History(HistoryFilter{Symbol: "ETH"})
	if len(eth) != 2 || eth[0].Side != models.SideSell || eth[1].Side != models.SideBuy {
		t.Errorf("symbol filter: %+v", eth)
	}
	buys := l.History(HistoryFilter{Side: models.SideBuy, Limit: 2})
	if len(buys) != 2 || buys[0].Symbol != "SOL" || buys[1].Symbol != "ETH" {
		t.Errorf("side filter: %+v", buys)
	}
}

func TestAllocation(t *testing.T) {
	p := models.NewPortfolio(d("10000"), time.Now())
	p.Cash = d("2000")
	p.Positions["BTC"] = models.Position{Symbol: "BTC", Quantity: d("0.1"), CurrentValue: d("6000")}
	p.Positions["ETH"] = models.Position{Symbol: "ETH", Quantity: d("1"), CurrentValue: d("2000")}
	p.Revalue(time.Now())

	entries := Allocation(p)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Symbol != "BTC" || !entries[0].Percent.Equal(d("60")) {
		t.Errorf("first entry = %+v", entries[0])
	}
	if entries[1].Symbol != CashSymbol || entries[2].Symbol != "ETH" {
		t.Errorf("ties must sort by symbol: %+v", entries)
	}
}
