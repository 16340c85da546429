package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"crypto-trader/internal/models"
	"crypto-trader/internal/store"
	"crypto-trader/pkg/utils"
)

// addPortfolioCommands adds portfolio and performance commands.
func addPortfolioCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:     "portfolio",
		Aliases: []string{"pf"},
		Short:   "Paper portfolio",
	}
	cmd.AddCommand(newPortfolioShowCmd(app))
	cmd.AddCommand(newPortfolioMarkCmd(app))
	cmd.AddCommand(newAllocationCmd(app))
	cmd.AddCommand(newExportCmd(app))

	rootCmd.AddCommand(cmd)
	rootCmd.AddCommand(newPerformanceCmd(app))
}

func newPortfolioShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show cash, positions and P&L",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			if err := app.openLedger(ctx); err != nil {
				return err
			}
			p := app.Ledger.Portfolio()
			if output.IsJSON() {
				return output.JSON(p)
			}
			renderPortfolio(output, p)
			return nil
		},
	}
}

func renderPortfolio(output *Output, p *models.Portfolio) {
	pnlPct, _ := p.TotalPnLPercent.Float64()

	output.Bold("Portfolio")
	output.Printf("  Initial Capital: %s\n", utils.FormatUSD(p.InitialCapital))
	output.Printf("  Cash:            %s\n", utils.FormatUSD(p.Cash))
	output.Printf("  Total Value:     %s\n", utils.FormatUSD(p.TotalValue))
	output.Printf("  Total P&L:       %s (%s)\n", output.FormatPnL(p.TotalPnL), output.FormatPercent(pnlPct))
	output.Printf("  Last Updated:    %s\n", utils.FormatDateTime(p.LastUpdated))
	output.Println()

	if len(p.Positions) == 0 {
		output.Dim("No open positions")
		return
	}

	symbols := make([]string, 0, len(p.Positions))
	for sym := range p.Positions {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	table := NewTable(output, "SYMBOL", "QTY", "AVG PRICE", "PRICE", "VALUE", "P&L", "P&L %")
	for _, sym := range symbols {
		pos := p.Positions[sym]
		pct, _ := pos.UnrealizedPnLPercent.Float64()
		table.AddRow(
			sym,
			utils.FormatQuantity(pos.Quantity),
			utils.FormatUSD(pos.AveragePrice),
			utils.FormatUSD(pos.CurrentPrice),
			utils.FormatUSD(pos.CurrentValue),
			output.FormatPnL(pos.UnrealizedPnL),
			output.FormatPercent(pct),
		)
	}
	table.Render()
}

func newPortfolioMarkCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mark [SYMBOL=PRICE...]",
		Short: "Mark positions to market",
		Long: `Revalue open positions and record a value history point.

Quotes can be given as SYMBOL=PRICE arguments; otherwise the latest price
of each position is read from the data directory.`,
		Example: `  trader portfolio mark BTC=64250 ETH=3100
  trader portfolio mark --data-dir ./data`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			if err := app.openLedger(ctx); err != nil {
				return err
			}

			quotes, err := parseQuotes(args)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			if len(quotes) == 0 {
				dataDir, _ := cmd.Flags().GetString("data-dir")
				var symbols []string
				for sym := range app.Ledger.Portfolio().Positions {
					symbols = append(symbols, sym)
				}
				sort.Strings(symbols)
				quotes = latestQuotes(app.loadInputs(ctx, app.dataDir(dataDir), symbols))
			}

			p, err := app.Ledger.MarkToMarket(ctx, quotes)
			if err != nil {
				output.Error("Mark to market failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(p)
			}
			output.Success("✓ Marked %d position(s) to market", len(quotes))
			output.Println()
			renderPortfolio(output, p)
			return nil
		},
	}

	cmd.Flags().String("data-dir", "", "directory with <SYMBOL>.csv files (default from config)")
	return cmd
}

// parseQuotes parses SYMBOL=PRICE arguments.
func parseQuotes(args []string) (map[string]decimal.Decimal, error) {
	quotes := make(map[string]decimal.Decimal, len(args))
	for _, arg := range args {
		sym, price, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(sym) == "" {
			return nil, fmt.Errorf("invalid quote %q: expected SYMBOL=PRICE", arg)
		}
		d, err := parseDecimal("price", price)
		if err != nil {
			return nil, err
		}
		quotes[strings.ToUpper(strings.TrimSpace(sym))] = d
	}
	return quotes, nil
}

func newAllocationCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "allocation",
		Short: "Show allocation across cash and positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			if err := app.openLedger(ctx); err != nil {
				return err
			}
			entries := app.Ledger.Allocation()
			if output.IsJSON() {
				return output.JSON(entries)
			}

			table := NewTable(output, "ASSET", "VALUE", "WEIGHT")
			for _, e := range entries {
				pct, _ := e.Percent.Float64()
				table.AddRow(e.Symbol, utils.FormatUSD(e.Value), fmt.Sprintf("%.2f%%", pct))
			}
			table.Render()
			return nil
		},
	}
}

func newExportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export portfolio, trades and history",
		Example: `  trader portfolio export --format yaml
  trader portfolio export --output snapshot.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			format, _ := cmd.Flags().GetString("format")
			path, _ := cmd.Flags().GetString("output")

			if err := app.openLedger(ctx); err != nil {
				return err
			}
			snap, err := app.Store.Snapshot(ctx)
			if err != nil {
				return err
			}

			if path == "" {
				return store.WriteSnapshot(cmd.OutOrStdout(), snap, format)
			}

			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("failed to create export file: %w", err)
			}
			if err := store.WriteSnapshot(f, snap, format); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			output.Success("✓ Exported %d trade(s) to %s", len(snap.Trades), path)
			return nil
		},
	}

	cmd.Flags().StringP("format", "f", store.FormatJSON, "export format (json, yaml)")
	cmd.Flags().StringP("output", "o", "", "output file (default stdout)")
	return cmd
}

func newPerformanceCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "performance",
		Aliases: []string{"perf"},
		Short:   "Show trading performance and risk metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			riskFree, _ := cmd.Flags().GetFloat64("risk-free")

			if err := app.openLedger(ctx); err != nil {
				return err
			}
			p := app.Ledger.Portfolio()
			initial, _ := p.InitialCapital.Float64()
			summary := app.Tracker.Summarize(initial, app.Ledger.ValueHistory(), riskFree)
			riskMetrics := app.Config.RiskPolicy().Metrics(p)

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"performance": summary,
					"risk":        riskMetrics,
				})
			}

			output.Bold("Performance")
			output.Printf("  Total Return:    %s (%s)\n",
				output.FormatPnL(decimal.NewFromFloat(summary.TotalReturn)),
				output.FormatPercent(summary.TotalReturnPercent))
			output.Printf("  Closed Trades:   %d (%d won, %d lost)\n", summary.TotalTrades, summary.WinningTrades, summary.LosingTrades)
			output.Printf("  Win Rate:        %.1f%%\n", summary.WinRate)
			output.Printf("  Average Win:     %s\n", utils.FormatUSDFloat(summary.AverageWin))
			output.Printf("  Average Loss:    %s\n", utils.FormatUSDFloat(summary.AverageLoss))
			output.Printf("  Largest Win:     %s\n", utils.FormatUSDFloat(summary.LargestWin))
			output.Printf("  Largest Loss:    %s\n", utils.FormatUSDFloat(summary.LargestLoss))
			output.Printf("  Profit Factor:   %.2f\n", summary.ProfitFactor)
			output.Printf("  Sharpe Ratio:    %.2f\n", summary.SharpeRatio)
			output.Printf("  Max Drawdown:    %.2f%%\n", summary.MaxDrawdown)
			output.Println()

			output.Bold("Risk")
			output.Printf("  Cash Utilization:      %.1f%%\n", riskMetrics["cash_utilization"])
			output.Printf("  Largest Position:      %.1f%%\n", riskMetrics["largest_position_percent"])
			output.Printf("  Daily Loss Remaining:  %.1f%%\n", riskMetrics["daily_loss_remaining_percent"])
			output.Printf("  Drawdown Remaining:    %.1f%%\n", riskMetrics["drawdown_remaining_percent"])
			output.Printf("  Open Positions:        %.0f\n", riskMetrics["open_positions"])
			return nil
		},
	}

	cmd.Flags().Float64("risk-free", 0, "per-period risk-free rate for the Sharpe ratio")
	return cmd
}
