package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"crypto-trader/internal/advisor"
	"crypto-trader/internal/analysis/indicators"
	"crypto-trader/internal/analysis/scoring"
	"crypto-trader/pkg/utils"
)

// addAnalysisCommands adds analysis commands.
func addAnalysisCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newAnalyzeCmd(app))
	rootCmd.AddCommand(newProfilesCmd())
	rootCmd.AddCommand(newIndicatorsCmd())
}

func newAnalyzeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [symbols...]",
		Short: "Analyze symbols and generate trade signals",
		Long: `Run the full analysis pipeline for each symbol: indicators, chart
patterns, feature engineering, scoring and signal generation.

Without arguments the default watchlist is analyzed, falling back to the
symbols configured under [watch].`,
		Example: `  trader analyze BTC ETH
  trader analyze SOL --profile ensemble --data-dir ./data
  trader analyze --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			profile, _ := cmd.Flags().GetString("profile")
			dataDir, _ := cmd.Flags().GetString("data-dir")

			analyzer, err := app.newAnalyzer(profile)
			if err != nil {
				output.Error("Invalid profile: %v", err)
				return err
			}

			if err := app.openStore(); err != nil {
				return err
			}
			symbols, err := app.symbols(ctx, args)
			if err != nil {
				return err
			}
			if len(symbols) == 0 {
				output.Warning("No symbols to analyze. Pass symbols or run 'trader watchlist add <symbol>'.")
				return nil
			}

			inputs := app.loadInputs(ctx, app.dataDir(dataDir), symbols)
			batch, err := analyzer.AnalyzeAll(ctx, inputs)
			if err != nil {
				output.Error("Analysis failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(batch)
			}
			renderBatch(output, batch, analyzer.Profile())
			return nil
		},
	}

	cmd.Flags().String("profile", "", "scoring profile (default from config)")
	cmd.Flags().String("data-dir", "", "directory with <SYMBOL>.csv files (default from config)")

	return cmd
}

func renderBatch(output *Output, batch *advisor.Batch, profile scoring.Profile) {
	output.Bold("Analysis (%s, backtest accuracy %.1f%%)", profile.Name, profile.Accuracy*100)
	output.Println()

	table := NewTable(output, "SYMBOL", "PRICE", "DIRECTION", "CONF", "TARGET", "RSI", "PATTERNS")
	for _, r := range batch.Reports {
		p := r.Prediction
		rsi := "-"
		if v, ok := r.Indicators.Latest(indicators.KeyRSI); ok {
			rsi = fmt.Sprintf("%.1f", v)
		}
		names := make([]string, 0, len(r.Patterns))
		for _, pat := range r.Patterns {
			names = append(names, pat.Name)
		}
		patterns := "-"
		if len(names) > 0 {
			patterns = utils.TruncateString(strings.Join(names, ", "), 40)
		}
		table.AddRow(
			r.Symbol,
			utils.FormatPrice(p.CurrentPrice),
			output.Direction(p.Direction),
			utils.FormatConfidence(p.Confidence*100),
			utils.FormatPrice(p.TargetPrice),
			rsi,
			patterns,
		)
	}
	table.Render()

	if len(batch.Signals) > 0 {
		output.Println()
		output.Bold("Signals")
		signalTable := NewTable(output, "SYMBOL", "SIDE", "CONF", "ENTRY", "TARGET", "STOP", "R:R", "REASONING")
		for _, s := range batch.Signals {
			signalTable.AddRow(
				s.Symbol,
				output.Side(s.Type),
				utils.FormatConfidence(s.Confidence),
				utils.FormatPrice(s.EntryPrice),
				utils.FormatPrice(s.TargetPrice),
				utils.FormatPrice(s.StopLoss),
				utils.FormatRiskReward(s.RiskRewardRatio),
				s.Reasoning,
			)
		}
		signalTable.Render()
	} else {
		output.Println()
		output.Dim("No signals passed the confidence and risk/reward filters")
	}

	if len(batch.Errors) > 0 {
		output.Println()
		symbols := make([]string, 0, len(batch.Errors))
		for sym := range batch.Errors {
			symbols = append(symbols, sym)
		}
		sort.Strings(symbols)
		for _, sym := range symbols {
			output.Warning("%s: %s", sym, batch.Errors[sym])
		}
	}
}

func newProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List scoring profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			profiles := scoring.Profiles()
			if output.IsJSON() {
				return output.JSON(profiles)
			}

			table := NewTable(output, "PROFILE", "DESCRIPTION", "ACCURACY", "MAPE", "SHARPE", "MAX DD")
			for _, p := range profiles {
				name := p.Name
				if name == scoring.DefaultProfile {
					name += " *"
				}
				table.AddRow(
					name,
					p.Description,
					fmt.Sprintf("%.1f%%", p.Accuracy*100),
					fmt.Sprintf("%.1f%%", p.MAPE*100),
					fmt.Sprintf("%.2f", p.SharpeRatio),
					fmt.Sprintf("%.1f%%", p.MaxDrawdown*100),
				)
			}
			table.Render()
			return nil
		},
	}
}

func newIndicatorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "indicators",
		Short: "List the indicators computed by analyze",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			names := indicators.NewDefaultEngine(1).ListIndicators()
			if output.IsJSON() {
				return output.JSON(names)
			}
			output.Bold("Indicators (%d)", len(names))
			for _, name := range names {
				output.Printf("  %s\n", name)
			}
			return nil
		},
	}
}
