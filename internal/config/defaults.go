package config

import "strings"

const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"

	defaultStoreDBPath      = "data/tradeflow.db"
	defaultStoreJournalPath = "data/signal_journal.db"

	defaultCapitalMaxPositionPct      = 10
	defaultCapitalMaxDailyLossPct     = 5
	defaultCapitalEmergencyReservePct = 20
	defaultCapitalAvailableTradingPct = 80
	defaultCapitalCurrency            = "USD"

	defaultRiskFallbackMaxPositionPct  = 0.10
	defaultRiskFallbackMaxDailyLossPct = 0.05
	defaultRiskMinBalanceThreshold     = 14000
	defaultRiskMaxSymbolExposurePct    = 0.15

	defaultExecutionMaxTradeValue = 10000

	defaultProcessorTimeoutSeconds = 10
	defaultProcessorTechPeriod     = 20

	defaultEngineSignalLogSize = 500

	defaultPaperInitialBalance = 100000

	defaultAnalyticsInterval = "1h"
)

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.App.Env) == "" {
		c.App.Env = defaultAppEnv
	}
	if strings.TrimSpace(c.App.LogLevel) == "" {
		c.App.LogLevel = defaultAppLogLevel
	}
	if strings.TrimSpace(c.Store.DBPath) == "" {
		c.Store.DBPath = defaultStoreDBPath
	}
	if strings.TrimSpace(c.Store.JournalPath) == "" {
		c.Store.JournalPath = defaultStoreJournalPath
	}
	if c.Capital.MaxPositionPct == 0 {
		c.Capital.MaxPositionPct = defaultCapitalMaxPositionPct
	}
	if c.Capital.MaxDailyLossPct == 0 {
		c.Capital.MaxDailyLossPct = defaultCapitalMaxDailyLossPct
	}
	if c.Capital.EmergencyReservePct == 0 {
		c.Capital.EmergencyReservePct = defaultCapitalEmergencyReservePct
	}
	if c.Capital.AvailableTradingPct == 0 {
		c.Capital.AvailableTradingPct = defaultCapitalAvailableTradingPct
	}
	if strings.TrimSpace(c.Capital.Currency) == "" {
		c.Capital.Currency = defaultCapitalCurrency
	}
	if c.Risk.FallbackMaxPositionPct == 0 {
		c.Risk.FallbackMaxPositionPct = defaultRiskFallbackMaxPositionPct
	}
	if c.Risk.FallbackMaxDailyLossPct == 0 {
		c.Risk.FallbackMaxDailyLossPct = defaultRiskFallbackMaxDailyLossPct
	}
	if c.Risk.MinBalanceThreshold == 0 {
		c.Risk.MinBalanceThreshold = defaultRiskMinBalanceThreshold
	}
	if c.Risk.MaxSymbolExposurePct == 0 {
		c.Risk.MaxSymbolExposurePct = defaultRiskMaxSymbolExposurePct
	}
	if c.Execution.MaxTradeValue == 0 {
		c.Execution.MaxTradeValue = defaultExecutionMaxTradeValue
	}
	if c.Processor.ProviderTimeoutSeconds == 0 {
		c.Processor.ProviderTimeoutSeconds = defaultProcessorTimeoutSeconds
	}
	if c.Processor.TechnicalPeriod == 0 {
		c.Processor.TechnicalPeriod = defaultProcessorTechPeriod
	}
	if c.Engine.SignalLogSize == 0 {
		c.Engine.SignalLogSize = defaultEngineSignalLogSize
	}
	if c.Providers.Paper.InitialBalance == 0 {
		c.Providers.Paper.InitialBalance = defaultPaperInitialBalance
	}
	if strings.TrimSpace(c.Providers.Analytics.Interval) == "" {
		c.Providers.Analytics.Interval = defaultAnalyticsInterval
	}
}
