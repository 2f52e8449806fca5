package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# StockML Engine Configuration

[engine]
# Initial cash for simulated portfolios
cash = 100000.0
# Proportional commission rate applied to every buy and sell notional
commission = 0.0008
# ML probability threshold: BUY when prob >= threshold,
# SELL when prob <= 1 - threshold. Must be in [0.5, 1.0].
ml_threshold = 0.51
# Minimum number of price bars required for a run
min_bars = 2
# Worker-pool size for batch runs (defaults to CPU count)
# concurrency = 4
# Maximum future-projection horizon in trading days (1-5)
max_horizon_days = 5
# Advisory confidence threshold for future projections
confidence_threshold = 0.6

[storage]
# SQLite database holding price bars, features and saved reports
# db_path = "~/.config/stockml/stockml.db"
# Directory with frozen model artifact JSON files
# models_dir = "~/.config/stockml/models"

[server]
# HTTP API listen address
addr = ":8080"

[logging]
level = "info"
console = true
file = true
# file_path = "~/.config/stockml/logs/stockml.log"
max_size = 100
max_backups = 7
max_age = 30
`

// writeTemplateConfig writes a commented config template so a first
// run leaves something editable behind.
func writeTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	return os.WriteFile(path, []byte(configTemplate), 0644)
}
