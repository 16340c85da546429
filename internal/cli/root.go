// Package cli provides the command-line interface for the trading application.
package cli

import (
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"crypto-trader/internal/config"
	"crypto-trader/internal/ledger"
	"crypto-trader/internal/logging"
	"crypto-trader/internal/notify"
	"crypto-trader/internal/performance"
	"crypto-trader/internal/store"
	"crypto-trader/pkg/utils"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-06-01"
)

// App holds the application dependencies. The store and ledger are opened
// on first use by the commands that need them.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Store    *store.SQLiteStore
	Ledger   *ledger.Ledger
	Tracker  *performance.Tracker
	Notifier notify.Notifier
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	rootCmd := &cobra.Command{
		Use:   "trader",
		Short: "Crypto Trader - paper trading assistant",
		Long: `Crypto Trader analyzes crypto price series with technical indicators,
chart patterns and a weighted scoring model, turns predictions into
risk-filtered trade signals, and keeps a paper portfolio ledger.

Price data is read from <SYMBOL>.csv files in the data directory.
Use 'trader help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			cmd.SetContext(logging.WithLogger(cmd.Context(), app.Logger))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/crypto-trader)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addAnalysisCommands(rootCmd, app)
	addPortfolioCommands(rootCmd, app)
	addTradingCommands(rootCmd, app)
	addWatchCommands(rootCmd, app)

	return rootCmd
}

// ConfigDirFromArgs extracts the --config value from raw arguments so the
// configuration can be loaded before the command tree is built.
func ConfigDirFromArgs(args []string) string {
	for i, arg := range args {
		if arg == "--" {
			break
		}
		if v, ok := strings.CutPrefix(arg, "--config="); ok {
			return v
		}
		if arg == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("Crypto Trader v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			cfg := app.Config.Redacted()
			if output.IsJSON() {
				return output.JSON(cfg)
			}
			showConfig(output, cfg)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": app.Config.Path()})
			}
			output.Println(app.Config.Path())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Portfolio")
	output.Printf("  Initial Capital: %s\n", utils.FormatUSD(cfg.InitialCapital()))
	output.Printf("  Commission:      %.3f%%\n", cfg.Portfolio.CommissionRate*100)
	output.Println()

	output.Bold("Risk")
	output.Printf("  Max Position:    %.0f%%\n", cfg.Risk.MaxPositionSizeFraction*100)
	output.Printf("  Max Daily Loss:  %.0f%%\n", cfg.Risk.MaxDailyLossFraction*100)
	output.Printf("  Max Drawdown:    %.0f%%\n", cfg.Risk.MaxDrawdownFraction*100)
	output.Printf("  Risk Per Trade:  %.1f%%\n", cfg.Risk.RiskPerTrade*100)
	output.Println()

	output.Bold("Signals")
	output.Printf("  Profile:         %s\n", cfg.Scoring.Profile)
	output.Printf("  Min Confidence:  %.0f%%\n", cfg.Signals.MinConfidence*100)
	output.Printf("  Min Risk/Reward: %.1f\n", cfg.Signals.MinRiskReward)
	output.Printf("  Target / Stop:   %.1f%% / %.1f%%\n", cfg.Signals.TargetPercent*100, cfg.Signals.StopPercent*100)
	output.Println()

	output.Bold("Storage")
	output.Printf("  Database:        %s\n", cfg.Store.Path)
	output.Printf("  Data Dir:        %s\n", cfg.Watch.DataDir)
	output.Printf("  Log Level:       %s\n", cfg.Log.Level)
	output.Printf("  Watch Schedule:  %s\n", cfg.Watch.Schedule)
	output.Println()

	output.Bold("Notifications")
	output.Printf("  Level:           %s\n", cfg.Notify.Level)
	output.Printf("  Terminal:        %t\n", cfg.Notify.Terminal)
	if cfg.Notify.Webhook.Enabled {
		output.Printf("  Webhook:         %s\n", cfg.Notify.Webhook.URL)
	}
	if cfg.Notify.Telegram.Enabled {
		output.Printf("  Telegram:        chat %s, token %s\n", cfg.Notify.Telegram.ChatID, cfg.Notify.Telegram.BotToken)
	}
}
