package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Crypto Trader Configuration

[portfolio]
# Starting capital of the paper portfolio in USD
initial_capital = 100000.0
# Commission charged on every trade value (0.001 = 0.1%)
commission_rate = 0.001

[risk]
# Largest single position as a fraction of total value
max_position_size_fraction = 0.25
# Trading halts when total P&L falls below -fraction
max_daily_loss_fraction = 0.05
max_drawdown_fraction = 0.20
# Capital risked per trade when sizing positions
risk_per_trade = 0.02

[scoring]
# Scoring profile: hybrid-tft, lstm-gru, ensemble, sentiment
profile = "hybrid-tft"

[signals]
# Signals are emitted only above this confidence (0-1)
min_confidence = 0.7
min_risk_reward = 1.5
target_percent = 0.05
stop_percent = 0.03

[store]
# SQLite database path (defaults to trader.db in this directory)
# path = "/path/to/trader.db"

[log]
# Level: debug, info, warn, error
level = "info"
console = true
file = true

[watch]
# Cron expression or @every interval
schedule = "@every 15m"
# Directory holding <SYMBOL>.csv and <SYMBOL>_external.csv files
# data_dir = "/path/to/data"
# Symbols analyzed when the watchlist is empty
symbols = ["BTC", "ETH", "SOL"]

[notify]
# Level: all, trades_only, errors_only
level = "all"
# Print signals and trades to the terminal during watch
terminal = true

[notify.webhook]
enabled = false
# url = "https://example.com/hooks/trader"

[notify.telegram]
enabled = false
# Prefer TRADER_TELEGRAM_BOT_TOKEN and TRADER_TELEGRAM_CHAT_ID
# bot_token = ""
# chat_id = ""
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, ConfigFileName)
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}
