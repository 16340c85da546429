package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"crypto-trader/internal/advisor"
	"crypto-trader/internal/feed"
	"crypto-trader/internal/logging"
	"crypto-trader/internal/models"
	"crypto-trader/internal/notify"
	"crypto-trader/internal/store"
)

// addWatchCommands adds watchlist management and the scheduled watch loop.
func addWatchCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newWatchlistCmd(app))
	rootCmd.AddCommand(newWatchCmd(app))
}

func newWatchlistCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "watchlist",
		Aliases: []string{"wl"},
		Short:   "Manage watchlists",
	}
	cmd.PersistentFlags().StringP("list", "l", store.DefaultWatchlist, "watchlist name")

	cmd.AddCommand(&cobra.Command{
		Use:   "add <symbol>...",
		Short: "Add symbols to a watchlist",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			list, _ := cmd.Flags().GetString("list")
			if err := app.openStore(); err != nil {
				return err
			}
			symbols := normalizeSymbols(args)
			for _, sym := range symbols {
				if err := app.Store.AddToWatchlist(ctx, sym, list); err != nil {
					return err
				}
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"list": list, "added": symbols})
			}
			output.Success("✓ Added %d symbol(s) to %s", len(symbols), list)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <symbol>...",
		Short: "Remove symbols from a watchlist",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			list, _ := cmd.Flags().GetString("list")
			if err := app.openStore(); err != nil {
				return err
			}
			symbols := normalizeSymbols(args)
			for _, sym := range symbols {
				if err := app.Store.RemoveFromWatchlist(ctx, sym, list); err != nil {
					return err
				}
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"list": list, "removed": symbols})
			}
			output.Success("✓ Removed %d symbol(s) from %s", len(symbols), list)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List watchlist symbols",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			list, _ := cmd.Flags().GetString("list")
			if err := app.openStore(); err != nil {
				return err
			}
			symbols, err := app.Store.GetWatchlist(ctx, list)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"list": list, "symbols": symbols})
			}
			if len(symbols) == 0 {
				output.Dim("Watchlist %s is empty", list)
				return nil
			}
			output.Bold("Watchlist %s", list)
			for _, sym := range symbols {
				output.Printf("  %s\n", sym)
			}
			return nil
		},
	})

	return cmd
}

func newWatchCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Analyze the watchlist on a schedule",
		Long: `Run analysis for the watchlist on the configured cron schedule.

Every tick reloads the CSV series, scores each symbol, logs the signals
that pass the filters and marks the portfolio to market with the latest
prices. Stop with Ctrl+C.`,
		Example: `  trader watch
  trader watch --schedule "@every 5m"
  trader watch --once`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			schedule, _ := cmd.Flags().GetString("schedule")
			dataDir, _ := cmd.Flags().GetString("data-dir")
			once, _ := cmd.Flags().GetBool("once")
			if schedule == "" {
				schedule = app.Config.Watch.Schedule
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := app.openLedger(ctx); err != nil {
				return err
			}
			analyzer, err := app.newAnalyzer("")
			if err != nil {
				return err
			}
			var terminal io.Writer
			if !once && !output.IsJSON() {
				terminal = output.writer
			}
			w := &watcher{
				app:      app,
				analyzer: analyzer,
				notifier: app.notifier(terminal, output.colorEnabled),
				dir:      app.dataDir(dataDir),
				last:     make(map[string]models.Side),
			}

			if once {
				batch, err := w.tick(ctx)
				if err != nil {
					return err
				}
				if output.IsJSON() {
					return output.JSON(batch)
				}
				renderBatch(output, batch, analyzer.Profile())
				return nil
			}

			c := cron.New()
			if _, err := c.AddFunc(schedule, func() { w.run(ctx) }); err != nil {
				output.Error("Invalid schedule %q: %v", schedule, err)
				return err
			}

			output.Info("Watching on schedule %s (Ctrl+C to stop)", schedule)
			w.run(ctx)
			c.Start()
			<-ctx.Done()
			<-c.Stop().Done()
			output.Info("Watch stopped")
			return nil
		},
	}

	cmd.Flags().String("schedule", "", "cron expression or @every interval (default from config)")
	cmd.Flags().String("data-dir", "", "directory with <SYMBOL>.csv files (default from config)")
	cmd.Flags().Bool("once", false, "run a single tick and exit")

	return cmd
}

// watcher runs one analysis tick at a time.
type watcher struct {
	app      *App
	analyzer *advisor.Analyzer
	notifier notify.Notifier
	dir      feed.Dir
	last     map[string]models.Side // last notified signal per symbol
	mu       sync.Mutex
}

func (w *watcher) run(ctx context.Context) {
	if _, err := w.tick(ctx); err != nil {
		w.app.Logger.Error().Err(err).Msg("Watch tick failed")
		if ctx.Err() == nil {
			if nerr := w.notifier.SendError(ctx, err, "watch tick"); nerr != nil {
				w.app.Logger.Warn().Err(nerr).Msg("Failed to send error notification")
			}
		}
	}
}

// notifySignals sends signals whose side changed since the last tick.
// A symbol without a signal this tick is forgotten, so a later signal on
// the same side is reported again.
func (w *watcher) notifySignals(ctx context.Context, batch *advisor.Batch) int {
	current := make(map[string]models.Side, len(batch.Signals))
	sent := 0
	for _, sig := range batch.Signals {
		current[sig.Symbol] = sig.Type
		if w.last[sig.Symbol] == sig.Type {
			continue
		}
		if err := w.notifier.SendSignal(ctx, *sig); err != nil {
			w.app.Logger.Warn().Err(err).Str("symbol", sig.Symbol).Msg("Failed to send signal notification")
			delete(current, sig.Symbol)
			continue
		}
		sent++
	}
	w.last = current
	return sent
}

// tick loads the watched symbols, analyzes them and marks the portfolio.
func (w *watcher) tick(ctx context.Context) (*advisor.Batch, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	logger := logging.WithOperation(w.app.Logger, "watch")

	symbols, err := w.app.symbols(ctx, nil)
	if err != nil {
		return nil, err
	}
	for sym := range w.app.Ledger.Portfolio().Positions {
		symbols = append(symbols, sym)
	}
	symbols = normalizeSymbols(symbols)
	if len(symbols) == 0 {
		logger.Warn().Msg("No symbols to watch")
		return &advisor.Batch{Errors: map[string]string{}}, nil
	}

	inputs := w.app.loadInputs(ctx, w.dir, symbols)
	batch, err := w.analyzer.AnalyzeAll(ctx, inputs)
	if err != nil {
		return nil, err
	}

	notified := w.notifySignals(ctx, batch)

	quotes := latestQuotes(inputs)
	if len(w.app.Ledger.Portfolio().Positions) > 0 {
		if _, err := w.app.Ledger.MarkToMarket(ctx, quotes); err != nil {
			return nil, err
		}
	}

	logger.Info().
		Int("symbols", len(symbols)).
		Int("signals", len(batch.Signals)).
		Int("notified", notified).
		Int("errors", len(batch.Errors)).
		Msg("Watch tick complete")
	return batch, nil
}
