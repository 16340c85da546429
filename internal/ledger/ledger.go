package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"crypto-trader/internal/errors"
	"crypto-trader/internal/logging"
	"crypto-trader/internal/models"
)

// DefaultHistoryLimit is the number of trades History returns when no
// limit is given.
const DefaultHistoryLimit = 50

// CashSymbol labels the cash slice of the allocation breakdown.
const CashSymbol = "CASH"

// maxConflictRetries bounds how often a write is re-applied after another
// writer moved the stored portfolio on.
const maxConflictRetries = 3

// Store persists ledger state. Each save must be atomic: either everything
// is written or nothing is. A save whose portfolio was not derived from the
// stored version fails with errors.ErrConflict; the ledger then reloads
// through the Load methods and applies the operation again.
type Store interface {
	SaveTrade(ctx context.Context, portfolio *models.Portfolio, trade *models.Trade) error
	SaveMark(ctx context.Context, portfolio *models.Portfolio, point models.ValuePoint) error

	LoadPortfolio(ctx context.Context) (*models.Portfolio, error)
	TradeLog(ctx context.Context) ([]models.Trade, error)
	ValueHistory(ctx context.Context) ([]models.ValuePoint, error)
}

// TradeObserver is notified of every executed trade, in execution order.
type TradeObserver interface {
	OnTrade(trade models.Trade)
}

// Config holds the ledger's initial state and collaborators.
type Config struct {
	Portfolio    *models.Portfolio
	Trades       []models.Trade
	ValueHistory []models.ValuePoint
	Options      Options
	Store        Store // optional
	Logger       *zerolog.Logger
}

// Ledger serializes trade admission and mark-to-market for one portfolio.
type Ledger struct {
	opts      Options
	store     Store
	logger    zerolog.Logger
	observers []TradeObserver

	portfolio *models.Portfolio
	trades    []models.Trade
	values    []models.ValuePoint

	mu sync.RWMutex
}

// New creates a ledger from cfg.
func New(cfg Config) *Ledger {
	opts := cfg.Options.withDefaults()

	portfolio := cfg.Portfolio
	if portfolio == nil {
		portfolio = models.NewPortfolio(decimal.Zero, opts.Now())
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = logging.WithOperation(*cfg.Logger, "ledger")
	}

	return &Ledger{
		opts:      opts,
		store:     cfg.Store,
		logger:    logger,
		portfolio: portfolio.Clone(),
		trades:    append([]models.Trade(nil), cfg.Trades...),
		values:    append([]models.ValuePoint(nil), cfg.ValueHistory...),
	}
}

// Subscribe registers an observer for subsequent trades.
func (l *Ledger) Subscribe(o TradeObserver) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, o)
}

// Execute validates, risk-checks, and applies req. The new state is
// persisted before it becomes visible; any failure leaves the ledger
// unchanged. When another process wrote the store first, the ledger
// reloads and checks req again against the fresh portfolio.
func (l *Ledger) Execute(ctx context.Context, req models.TradeRequest) (*models.Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var (
		next  *models.Portfolio
		trade *models.Trade
	)
	for attempt := 0; ; attempt++ {
		var err error
		next, trade, err = Apply(l.portfolio, req, l.opts)
		if err != nil {
			logging.LogRejection(l.logger, req, err)
			return nil, err
		}
		next.Version = l.portfolio.Version + 1
		if l.store == nil {
			break
		}

		err = l.store.SaveTrade(ctx, next, trade)
		if err == nil {
			break
		}
		if errors.Is(err, errors.ErrConflict) && attempt < maxConflictRetries {
			if err = l.reload(ctx); err == nil {
				continue
			}
		}
		l.logger.Error().Err(err).Str("symbol", req.Symbol).Msg("Failed to persist trade")
		return nil, errors.Wrap(err, "failed to persist trade")
	}

	l.portfolio = next
	l.trades = append(l.trades, *trade)
	logging.LogTrade(l.logger, trade)

	for _, o := range l.observers {
		o.OnTrade(*trade)
	}

	return trade, nil
}

// MarkToMarket revalues positions with the supplied quotes, recomputes the
// portfolio totals and appends a value history point. Positions without a
// quote keep their last valuation.
func (l *Ledger) MarkToMarket(ctx context.Context, quotes map[string]decimal.Decimal) (*models.Portfolio, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var (
		next  *models.Portfolio
		point models.ValuePoint
	)
	for attempt := 0; ; attempt++ {
		now := l.opts.Now()
		next = l.portfolio.Clone()
		for symbol, pos := range next.Positions {
			price, ok := quotes[symbol]
			if !ok || !price.IsPositive() {
				continue
			}
			pos.Mark(price, now)
			next.Positions[symbol] = pos
		}
		next.Revalue(now)
		next.Version = l.portfolio.Version + 1

		point = models.ValuePoint{Timestamp: now, Value: next.TotalValue}
		if l.store == nil {
			break
		}

		err := l.store.SaveMark(ctx, next, point)
		if err == nil {
			break
		}
		if errors.Is(err, errors.ErrConflict) && attempt < maxConflictRetries {
			if err = l.reload(ctx); err == nil {
				continue
			}
		}
		return nil, errors.Wrap(err, "failed to persist valuation")
	}

	l.portfolio = next
	l.values = append(l.values, point)

	l.logger.Debug().
		Str("total_value", next.TotalValue.String()).
		Str("total_pnl", next.TotalPnL.String()).
		Int("positions", len(next.Positions)).
		Msg("Portfolio marked to market")

	return next.Clone(), nil
}

// reload replaces the in-memory state with the stored state. Trades that
// another writer appended are passed to the observers in log order.
func (l *Ledger) reload(ctx context.Context) error {
	portfolio, err := l.store.LoadPortfolio(ctx)
	if err != nil {
		return err
	}
	trades, err := l.store.TradeLog(ctx)
	if err != nil {
		return err
	}
	values, err := l.store.ValueHistory(ctx)
	if err != nil {
		return err
	}

	known := make(map[string]struct{}, len(l.trades))
	for _, t := range l.trades {
		known[t.ID] = struct{}{}
	}
	var added []models.Trade
	for _, t := range trades {
		if _, ok := known[t.ID]; !ok {
			added = append(added, t)
		}
	}

	l.portfolio = portfolio
	l.trades = trades
	l.values = values
	for _, t := range added {
		for _, o := range l.observers {
			o.OnTrade(t)
		}
	}

	l.logger.Info().
		Int64("version", portfolio.Version).
		Int("new_trades", len(added)).
		Msg("Ledger reloaded after a concurrent write")
	return nil
}

// Portfolio returns a snapshot of the current portfolio.
func (l *Ledger) Portfolio() *models.Portfolio {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.portfolio.Clone()
}

// Trades returns the full trade log, oldest first.
func (l *Ledger) Trades() []models.Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.Trade(nil), l.trades...)
}

// HistoryFilter narrows History. Zero fields match every trade.
type HistoryFilter struct {
	Symbol string
	Side   models.Side
	Limit  int // DefaultHistoryLimit when <= 0
}

func (f HistoryFilter) match(t models.Trade) bool {
	return (f.Symbol == "" || t.Symbol == f.Symbol) && (f.Side == "" || t.Side == f.Side)
}

// History returns up to f.Limit matching trades, newest first.
func (l *Ledger) History(f HistoryFilter) []models.Trade {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []models.Trade
	for i := len(l.trades) - 1; i >= 0 && len(out) < limit; i-- {
		if f.match(l.trades[i]) {
			out = append(out, l.trades[i])
		}
	}
	return out
}

// ValueHistory returns the recorded portfolio values, oldest first.
func (l *Ledger) ValueHistory() []models.ValuePoint {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.ValuePoint(nil), l.values...)
}

// Allocation breaks the portfolio down into cash and positions as a
// percentage of total value, largest first.
func (l *Ledger) Allocation() []models.AllocationEntry {
	return Allocation(l.Portfolio())
}

// Allocation computes the allocation breakdown of p.
func Allocation(p *models.Portfolio) []models.AllocationEntry {
	percentOf := func(v decimal.Decimal) decimal.Decimal {
		if !p.TotalValue.IsPositive() {
			return decimal.Zero
		}
		return v.Div(p.TotalValue).Mul(decimal.NewFromInt(100))
	}

	var entries []models.AllocationEntry
	if p.Cash.IsPositive() {
		entries = append(entries, models.AllocationEntry{
			Symbol:  CashSymbol,
			Value:   p.Cash,
			Percent: percentOf(p.Cash),
		})
	}
	for symbol, pos := range p.Positions {
		if !pos.Quantity.IsPositive() {
			continue
		}
		entries = append(entries, models.AllocationEntry{
			Symbol:  symbol,
			Value:   pos.CurrentValue,
			Percent: percentOf(pos.CurrentValue),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].Percent.Equal(entries[j].Percent) {
			return entries[i].Percent.GreaterThan(entries[j].Percent)
		}
		return entries[i].Symbol < entries[j].Symbol
	})
	return entries
}
