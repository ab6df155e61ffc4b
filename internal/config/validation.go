package config

import (
	"fmt"
	"math"
	"strings"
)

func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Capital.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Execution.validate(); err != nil {
		return err
	}
	if err := c.Processor.validate(); err != nil {
		return err
	}
	if err := c.Providers.validate(); err != nil {
		return err
	}
	return nil
}

func (a *AppConfig) validate() error {
	switch strings.ToLower(a.LogLevel) {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("app.log_level must be one of debug/info/warn/error, got %q", a.LogLevel)
}

func (c *CapitalConfig) validate() error {
	if c.InitialTotal < 0 {
		return fmt.Errorf("capital.initial_total cannot be negative")
	}
	for name, v := range map[string]float64{
		"capital.max_position_pct":      c.MaxPositionPct,
		"capital.max_daily_loss_pct":    c.MaxDailyLossPct,
		"capital.emergency_reserve_pct": c.EmergencyReservePct,
		"capital.available_trading_pct": c.AvailableTradingPct,
	} {
		if v < 0 || v > 100 {
			return fmt.Errorf("%s must be in [0, 100], got %v", name, v)
		}
	}
	if sum := c.EmergencyReservePct + c.AvailableTradingPct; math.Abs(sum-100) > 0.01 {
		return fmt.Errorf("capital reserve and trading percentages must sum to 100, got %v", sum)
	}
	return nil
}

func (r *RiskConfig) validate() error {
	for name, v := range map[string]float64{
		"risk.fallback_max_position_pct":   r.FallbackMaxPositionPct,
		"risk.fallback_max_daily_loss_pct": r.FallbackMaxDailyLossPct,
		"risk.max_symbol_exposure_pct":     r.MaxSymbolExposurePct,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0, 1], got %v", name, v)
		}
	}
	if r.MinBalanceThreshold < 0 {
		return fmt.Errorf("risk.min_balance_threshold cannot be negative")
	}
	for class, venue := range r.SymbolRouting {
		switch strings.ToLower(class) {
		case "stocks", "etfs", "options", "crypto":
		default:
			return fmt.Errorf("risk.symbol_routing has unknown class %q", class)
		}
		if strings.TrimSpace(venue) == "" {
			return fmt.Errorf("risk.symbol_routing.%s has empty venue", class)
		}
	}
	return nil
}

func (e *ExecutionConfig) validate() error {
	if e.MaxTradeValue <= 0 {
		return fmt.Errorf("execution.max_trade_value must be positive")
	}
	return nil
}

func (p *ProcessorConfig) validate() error {
	if p.ProviderTimeoutSeconds < 0 {
		return fmt.Errorf("processor.provider_timeout_seconds cannot be negative")
	}
	if p.TechnicalPeriod < 2 {
		return fmt.Errorf("processor.technical_period must be at least 2")
	}
	return nil
}

func (p *ProvidersConfig) validate() error {
	if p.Paper.FailureRate < 0 || p.Paper.FailureRate > 1 {
		return fmt.Errorf("providers.paper.failure_rate must be in [0, 1]")
	}
	if p.Paper.SlippageBps < 0 {
		return fmt.Errorf("providers.paper.slippage_bps cannot be negative")
	}
	if p.Paper.InitialBalance < 0 {
		return fmt.Errorf("providers.paper.initial_balance cannot be negative")
	}
	return nil
}
