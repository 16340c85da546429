package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"crypto-trader/internal/errors"
	"crypto-trader/internal/ledger"
	"crypto-trader/internal/models"
	"crypto-trader/pkg/utils"
)

// addTradingCommands adds paper trading commands.
func addTradingCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "trade",
		Short: "Paper trading",
	}
	cmd.AddCommand(newOrderCmd(app, models.SideBuy))
	cmd.AddCommand(newOrderCmd(app, models.SideSell))
	cmd.AddCommand(newSizeCmd(app))
	cmd.AddCommand(newHistoryCmd(app))

	rootCmd.AddCommand(cmd)
}

func newOrderCmd(app *App, side models.Side) *cobra.Command {
	verb := strings.ToLower(string(side))
	cmd := &cobra.Command{
		Use:   verb + " <symbol> <quantity>",
		Short: fmt.Sprintf("Execute a paper %s", verb),
		Long: fmt.Sprintf(`Execute a paper %s against the portfolio ledger.

The trade is validated, checked against the risk policy and charged the
configured commission. Without --price the latest price from the data
directory is used.`, verb),
		Example: fmt.Sprintf(`  trader trade %s BTC 0.5 --price 64000
  trader trade %s ETH 2`, verb, verb),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			symbol := strings.ToUpper(args[0])
			qty, err := parseDecimal("quantity", args[1])
			if err != nil {
				output.Error("Invalid quantity: %s", args[1])
				return err
			}

			priceFlag, _ := cmd.Flags().GetString("price")
			dataDir, _ := cmd.Flags().GetString("data-dir")

			if err := app.openLedger(ctx); err != nil {
				return err
			}

			price, err := app.resolvePrice(ctx, symbol, priceFlag, dataDir)
			if err != nil {
				output.Error("No price for %s: %v", symbol, err)
				return err
			}

			req := models.TradeRequest{
				Symbol:    symbol,
				Side:      side,
				Quantity:  qty,
				Price:     price,
				Timestamp: time.Now(),
			}

			trade, err := app.Ledger.Execute(ctx, req)
			if err != nil {
				reportRejection(output, err)
				return err
			}
			if err := app.notifier(nil, false).SendTrade(ctx, *trade); err != nil {
				app.Logger.Warn().Err(err).Str("trade_id", trade.ID).Msg("Failed to send trade notification")
			}

			if output.IsJSON() {
				return output.JSON(trade)
			}

			output.Success("✓ %s %s %s @ %s", side, utils.FormatQuantity(trade.Quantity), symbol, utils.FormatUSD(trade.Price))
			output.Printf("  Trade ID:   %s\n", trade.ID)
			output.Printf("  Value:      %s\n", utils.FormatUSD(trade.Quantity.Mul(trade.Price)))
			output.Printf("  Commission: %s\n", utils.FormatUSD(trade.Commission))
			if trade.RealizedPnL != nil {
				output.Printf("  Realized:   %s\n", output.FormatPnL(*trade.RealizedPnL))
			}
			output.Printf("  Cash:       %s\n", utils.FormatUSD(app.Ledger.Portfolio().Cash))
			return nil
		},
	}

	cmd.Flags().StringP("price", "p", "", "execution price (default: latest price from data)")
	cmd.Flags().String("data-dir", "", "directory with <SYMBOL>.csv files (default from config)")

	return cmd
}

// resolvePrice parses the price flag or falls back to the latest price.
func (a *App) resolvePrice(ctx context.Context, symbol, flag, dataDir string) (decimal.Decimal, error) {
	if flag != "" {
		return parseDecimal("price", flag)
	}
	in, err := a.loadInput(ctx, a.dataDir(dataDir), symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromFloat(in.Series.Latest().Price), nil
}

func reportRejection(output *Output, err error) {
	var riskErr *errors.RiskError
	switch {
	case errors.As(err, &riskErr):
		output.Error("✗ Blocked by risk rule %s: %s (%.2f vs limit %.2f)", riskErr.Rule, riskErr.Message, riskErr.Current, riskErr.Limit)
	case errors.Is(err, errors.ErrInsufficientFunds):
		output.Error("✗ Insufficient cash: %v", err)
	case errors.Is(err, errors.ErrInsufficientQuantity):
		output.Error("✗ Insufficient position: %v", err)
	case errors.Is(err, errors.ErrInvalidInput):
		output.Error("✗ Invalid trade: %v", err)
	default:
		output.Error("✗ Trade failed: %v", err)
	}
}

func newSizeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "size <symbol>",
		Short: "Suggest a position size for an entry and stop",
		Example: `  trader trade size BTC --entry 64000 --stop 62000
  trader trade size ETH --entry 3100 --stop 3000 --risk 0.01`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			entry, _ := cmd.Flags().GetFloat64("entry")
			stop, _ := cmd.Flags().GetFloat64("stop")
			riskPct, _ := cmd.Flags().GetFloat64("risk")
			if entry <= 0 {
				return errors.NewValidationError("entry", entry, "must be positive")
			}
			if riskPct <= 0 {
				riskPct = app.Config.Risk.RiskPerTrade
			}

			if err := app.openLedger(ctx); err != nil {
				return err
			}
			p := app.Ledger.Portfolio()
			qty := app.Config.RiskPolicy().PositionSize(entry, stop, p, riskPct)

			result := map[string]interface{}{
				"symbol":       strings.ToUpper(args[0]),
				"entry":        entry,
				"stop":         stop,
				"risk_percent": riskPct,
				"quantity":     qty,
				"value":        qty * entry,
			}
			if output.IsJSON() {
				return output.JSON(result)
			}

			output.Bold("Position Size for %s", result["symbol"])
			output.Printf("  Entry / Stop: %s / %s\n", utils.FormatPrice(entry), utils.FormatPrice(stop))
			output.Printf("  Risk Budget:  %.1f%% of %s\n", riskPct*100, utils.FormatUSD(p.TotalValue))
			output.Printf("  Quantity:     %.8f\n", qty)
			output.Printf("  Value:        %s\n", utils.FormatUSDFloat(qty*entry))
			return nil
		},
	}

	cmd.Flags().Float64("entry", 0, "entry price")
	cmd.Flags().Float64("stop", 0, "stop-loss price")
	cmd.Flags().Float64("risk", 0, "fraction of portfolio value to risk (default from config)")

	return cmd
}

func newHistoryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show trade history, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			limit, _ := cmd.Flags().GetInt("limit")
			symbol, _ := cmd.Flags().GetString("symbol")
			side, _ := cmd.Flags().GetString("side")

			if err := app.openLedger(ctx); err != nil {
				return err
			}
			trades := app.Ledger.History(ledger.HistoryFilter{
				Symbol: strings.ToUpper(symbol),
				Side:   models.Side(strings.ToUpper(side)),
				Limit:  limit,
			})

			if output.IsJSON() {
				return output.JSON(trades)
			}
			if len(trades) == 0 {
				output.Dim("No trades yet")
				return nil
			}

			table := NewTable(output, "TIME", "SYMBOL", "SIDE", "QTY", "PRICE", "COMMISSION", "REALIZED")
			for _, t := range trades {
				realized := "-"
				if t.RealizedPnL != nil {
					realized = output.FormatPnL(*t.RealizedPnL)
				}
				table.AddRow(
					utils.FormatDateTime(t.Timestamp),
					t.Symbol,
					output.Side(t.Side),
					utils.FormatQuantity(t.Quantity),
					utils.FormatUSD(t.Price),
					utils.FormatUSD(t.Commission),
					realized,
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().IntP("limit", "n", ledger.DefaultHistoryLimit, "maximum number of trades")
	cmd.Flags().String("symbol", "", "filter by symbol")
	cmd.Flags().String("side", "", "filter by side (BUY, SELL)")

	return cmd
}
