package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"crypto-trader/internal/advisor"
	"crypto-trader/internal/errors"
	"crypto-trader/internal/feed"
	"crypto-trader/internal/ledger"
	"crypto-trader/internal/models"
	"crypto-trader/internal/notify"
	"crypto-trader/internal/performance"
	"crypto-trader/internal/store"
)

// commandTimeout bounds store access for one-shot commands.
const commandTimeout = 30 * time.Second

// openStore opens the SQLite store at the configured path.
func (a *App) openStore() error {
	if a.Store != nil {
		return nil
	}

	path := a.Config.Store.Path
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	s, err := store.NewSQLiteStore(path)
	if err != nil {
		return err
	}
	a.Store = s
	a.Logger.Debug().Str("path", path).Msg("SQLite store initialized")
	return nil
}

// openLedger restores the ledger from the store, creating a fresh portfolio
// with the configured capital on first use. The performance tracker replays
// the stored trade log and then follows new trades.
func (a *App) openLedger(ctx context.Context) error {
	if a.Ledger != nil {
		return nil
	}
	if err := a.openStore(); err != nil {
		return err
	}

	portfolio, err := a.Store.LoadPortfolio(ctx)
	if errors.Is(err, errors.ErrDataNotFound) {
		portfolio, err = a.Store.InitPortfolio(ctx, models.NewPortfolio(a.Config.InitialCapital(), time.Now()))
		if err != nil {
			return err
		}
		a.Logger.Info().Str("capital", portfolio.InitialCapital.String()).Msg("Created paper portfolio")
	} else if err != nil {
		return err
	}

	trades, err := a.Store.TradeLog(ctx)
	if err != nil {
		return err
	}
	history, err := a.Store.ValueHistory(ctx)
	if err != nil {
		return err
	}

	policy := a.Config.RiskPolicy()
	opts := ledger.DefaultOptions()
	opts.CommissionRate = a.Config.CommissionRate()
	opts.Policy = &policy

	a.Tracker = performance.NewTracker()
	a.Tracker.Replay(trades)

	a.Ledger = ledger.New(ledger.Config{
		Portfolio:    portfolio,
		Trades:       trades,
		ValueHistory: history,
		Options:      opts,
		Store:        a.Store,
		Logger:       &a.Logger,
	})
	a.Ledger.Subscribe(a.Tracker)
	return nil
}

// Close releases the store.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	err := a.Store.Close()
	a.Store = nil
	a.Ledger = nil
	return err
}

// notifier returns the configured notifier. When terminal is non-nil and
// terminal notifications are enabled, notifications are also printed there.
// Without any channel a no-op notifier is returned.
func (a *App) notifier(terminal io.Writer, colorEnabled bool) notify.Notifier {
	if a.Notifier != nil {
		return a.Notifier
	}
	mn := notify.NewMultiNotifier(a.Config.Notify)
	if terminal != nil && a.Config.Notify.Terminal {
		tn := notify.NewTerminalNotifier(terminal, colorEnabled)
		tn.SetBellEnabled(colorEnabled)
		mn.AddChannel(tn)
	}
	if len(mn.Channels()) == 0 {
		a.Logger.Debug().Msg("No notification channels enabled")
		a.Notifier = notify.NewNoOpNotifier()
		return a.Notifier
	}
	a.Logger.Debug().Strs("channels", mn.Channels()).Msg("Notifier initialized")
	a.Notifier = mn
	return mn
}

// newAnalyzer builds an analyzer, optionally overriding the configured
// scoring profile.
func (a *App) newAnalyzer(profile string) (*advisor.Analyzer, error) {
	if profile == "" {
		profile = a.Config.Scoring.Profile
	}
	return advisor.New(advisor.Config{
		Profile: profile,
		Signals: a.Config.SignalConfig(),
	})
}

// symbols resolves the symbols to work on: explicit arguments, then the
// default watchlist, then the configured watch symbols.
func (a *App) symbols(ctx context.Context, args []string) ([]string, error) {
	if len(args) > 0 {
		return normalizeSymbols(args), nil
	}
	if err := a.openStore(); err != nil {
		return nil, err
	}
	list, err := a.Store.GetWatchlist(ctx, store.DefaultWatchlist)
	if err != nil {
		return nil, err
	}
	if len(list) > 0 {
		return list, nil
	}
	return normalizeSymbols(a.Config.Watch.Symbols), nil
}

func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// loadInput reads a symbol's series from the data directory and caches
// the prices in the store. When the CSV is unavailable the cached series
// is used instead.
func (a *App) loadInput(ctx context.Context, dir feed.Dir, symbol string) (advisor.Input, error) {
	in := advisor.Input{Symbol: symbol}

	series, err := dir.Prices(symbol)
	switch {
	case err == nil:
		if a.Store != nil {
			if cacheErr := a.Store.SavePrices(ctx, symbol, series.Points()); cacheErr != nil {
				a.Logger.Warn().Err(cacheErr).Str("symbol", symbol).Msg("Failed to cache prices")
			}
		}
	case a.Store != nil:
		cached, cacheErr := a.Store.GetPrices(ctx, symbol)
		if cacheErr != nil {
			return in, err
		}
		a.Logger.Debug().Err(err).Str("symbol", symbol).Msg("Using cached prices")
		series = cached
	default:
		return in, err
	}
	in.Series = series

	ext, err := dir.External(symbol)
	if err != nil {
		a.Logger.Warn().Err(err).Str("symbol", symbol).Msg("Ignoring external metrics")
	} else {
		in.External = ext
	}
	return in, nil
}

// loadInputs loads every symbol; failures are reported per symbol and the
// symbol is passed on with no series so the analyzer records the error.
func (a *App) loadInputs(ctx context.Context, dir feed.Dir, symbols []string) []advisor.Input {
	inputs := make([]advisor.Input, 0, len(symbols))
	for _, sym := range symbols {
		in, err := a.loadInput(ctx, dir, sym)
		if err != nil {
			a.Logger.Warn().Err(err).Str("symbol", sym).Msg("Failed to load prices")
		}
		inputs = append(inputs, in)
	}
	return inputs
}

// latestQuotes returns the last price of each loaded series.
func latestQuotes(inputs []advisor.Input) map[string]decimal.Decimal {
	quotes := make(map[string]decimal.Decimal, len(inputs))
	for _, in := range inputs {
		if in.Series == nil || in.Series.Len() == 0 {
			continue
		}
		quotes[in.Symbol] = decimal.NewFromFloat(in.Series.Latest().Price)
	}
	return quotes
}

// dataDir returns the --data-dir flag value or the configured directory.
func (a *App) dataDir(flag string) feed.Dir {
	if flag != "" {
		return feed.Dir(flag)
	}
	return feed.Dir(a.Config.Watch.DataDir)
}

// parseDecimal parses a positive decimal argument.
func parseDecimal(name, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil || !d.IsPositive() {
		return decimal.Zero, errors.NewValidationError(name, value, "must be a positive number")
	}
	return d, nil
}
