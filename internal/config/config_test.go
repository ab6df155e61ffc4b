package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	assert.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
app:
  env: prod
  log_level: debug
store:
  db_path: /tmp/tf.db
capital:
  initial_total: 25000
  max_position_pct: 8
  emergency_reserve_pct: 30
  available_trading_pct: 70
risk:
  min_balance_threshold: 5000
  symbol_routing:
    crypto: defi
    options: blocked
execution:
  execution_mode: true
  max_trade_value: 2500
providers:
  binance:
    enabled: true
    api_key: key
    secret_key: secret
  paper:
    initial_balance: 50000
    slippage_bps: 5
`)
	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, "prod", cfg.App.Env)
	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, "/tmp/tf.db", cfg.Store.DBPath)
	assert.InDelta(t, 25000, cfg.Capital.InitialTotal, 1e-9)
	assert.InDelta(t, 8, cfg.Capital.MaxPositionPct, 1e-9)
	assert.InDelta(t, 5000, cfg.Risk.MinBalanceThreshold, 1e-9)
	assert.Equal(t, "defi", cfg.Risk.SymbolRouting["crypto"])
	assert.Equal(t, "blocked", cfg.Risk.SymbolRouting["options"])
	assert.True(t, cfg.Execution.ExecutionMode)
	assert.InDelta(t, 2500, cfg.Execution.MaxTradeValue, 1e-9)
	assert.True(t, cfg.Providers.Binance.Enabled)
	assert.InDelta(t, 50000, cfg.Providers.Paper.InitialBalance, 1e-9)
	assert.InDelta(t, 5, cfg.Providers.Paper.SlippageBps, 1e-9)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
app:
  env: dev
`)
	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, "data/tradeflow.db", cfg.Store.DBPath)
	assert.Equal(t, "data/signal_journal.db", cfg.Store.JournalPath)
	assert.InDelta(t, 10, cfg.Capital.MaxPositionPct, 1e-9)
	assert.InDelta(t, 80, cfg.Capital.AvailableTradingPct, 1e-9)
	assert.Equal(t, "USD", cfg.Capital.Currency)
	assert.InDelta(t, 0.10, cfg.Risk.FallbackMaxPositionPct, 1e-9)
	assert.InDelta(t, 14000, cfg.Risk.MinBalanceThreshold, 1e-9)
	assert.InDelta(t, 10000, cfg.Execution.MaxTradeValue, 1e-9)
	assert.False(t, cfg.Execution.ExecutionMode)
	assert.Equal(t, 10, cfg.Processor.ProviderTimeoutSeconds)
	assert.Equal(t, 20, cfg.Processor.TechnicalPeriod)
	assert.Equal(t, 500, cfg.Engine.SignalLogSize)
	assert.InDelta(t, 100000, cfg.Providers.Paper.InitialBalance, 1e-9)
	assert.Equal(t, "1h", cfg.Providers.Analytics.Interval)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsEmptyPath(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	path := writeConfig(t, `
app:
  log_level: verbose
`)
	_, err := Load(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "app.log_level")
}

func TestValidateRejectsAllocationNotSummingTo100(t *testing.T) {
	path := writeConfig(t, `
capital:
  emergency_reserve_pct: 30
  available_trading_pct: 60
`)
	_, err := Load(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "sum to 100")
}

func TestValidateRejectsUnknownRoutingClass(t *testing.T) {
	path := writeConfig(t, `
risk:
  symbol_routing:
    commodities: brokerage
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRejectsTinyTechnicalPeriod(t *testing.T) {
	path := writeConfig(t, `
processor:
  technical_period: 1
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRejectsFailureRateOutOfRange(t *testing.T) {
	path := writeConfig(t, `
providers:
  paper:
    failure_rate: 1.5
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, validate(cfg))
}
