package app

import (
	"fmt"
	"strings"

	"tradeflow/internal/capital"
	cfgpkg "tradeflow/internal/config"
	"tradeflow/internal/execmode"
)

// StartupSummary is printed once at boot so an operator can see the
// effective mode, limits and providers before the first signal arrives.
type StartupSummary struct {
	Env           string
	Mode          string
	MaxTradeValue float64
	Providers     []string
	Capital       CapitalSummary
}

type CapitalSummary struct {
	Initialized    bool
	Total          float64
	Available      float64
	MaxPosition    float64
	Currency       string
	ReservePct     float64
	TradingPct     float64
	MaxPositionPct float64
}

func buildStartupSummary(cfg *cfgpkg.Config, gate *execmode.Gate, capMgr *capital.Manager, providers providerSet) *StartupSummary {
	s := &StartupSummary{
		Env:           cfg.App.Env,
		Mode:          "SIMULATION",
		MaxTradeValue: gate.MaxTradeValue(),
		Providers:     providers.names(),
	}
	if gate.IsExecutionMode() {
		s.Mode = "EXECUTION"
	}
	alloc := capMgr.Allocation()
	s.Capital = CapitalSummary{
		Initialized:    capMgr.Initialized(),
		Currency:       cfg.Capital.Currency,
		ReservePct:     alloc.EmergencyReservePct,
		TradingPct:     alloc.AvailableTradingPct,
		MaxPositionPct: alloc.MaxPositionPct,
	}
	if total, ok := capMgr.Total(); ok {
		s.Capital.Total = total
	}
	if available, ok := capMgr.Available(); ok {
		s.Capital.Available = available
	}
	if maxPos, ok := capMgr.MaxPositionSize(); ok {
		s.Capital.MaxPosition = maxPos
	}
	return s
}

func (s *StartupSummary) Print() {
	fmt.Println(strings.Repeat("=", 72))
	fmt.Println("STARTUP SUMMARY")
	fmt.Println(strings.Repeat("=", 72))

	fmt.Println("[MODE]")
	fmt.Printf("  env: %s\n", s.Env)
	fmt.Printf("  trading mode: %s\n", s.Mode)
	fmt.Printf("  max trade value: $%.2f\n", s.MaxTradeValue)
	fmt.Println()

	fmt.Println("[PROVIDERS]")
	if len(s.Providers) == 0 {
		fmt.Println("  (none)")
	}
	for _, name := range s.Providers {
		fmt.Printf("  - %s\n", name)
	}
	fmt.Println()

	fmt.Println("[CAPITAL]")
	if s.Capital.Initialized {
		fmt.Printf("  total: %.2f %s\n", s.Capital.Total, s.Capital.Currency)
		fmt.Printf("  available for trading: %.2f (%.0f%%)\n", s.Capital.Available, s.Capital.TradingPct)
		fmt.Printf("  max position: %.2f (%.0f%%)\n", s.Capital.MaxPosition, s.Capital.MaxPositionPct)
		fmt.Printf("  emergency reserve: %.0f%%\n", s.Capital.ReservePct)
	} else {
		fmt.Println("  not initialized, falling back to provider balances")
	}
	fmt.Println(strings.Repeat("=", 72))
}
