package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"tradeflow/internal/capital"
	cfgpkg "tradeflow/internal/config"
	"tradeflow/internal/engine"
	"tradeflow/internal/execmode"
	"tradeflow/internal/intake"
	"tradeflow/internal/logger"
	"tradeflow/internal/pnl"
	"tradeflow/internal/risk"
	"tradeflow/internal/scheduler"
	"tradeflow/internal/store"
	"tradeflow/internal/types"
)

// reconcileInterval is how often the background loop refreshes positions
// and performance metrics.
const reconcileInterval = 60 * time.Second

// App owns the assembled trading core: signal intake, the automation
// engine and the periodic reconciliation loop.
type App struct {
	cfg        *cfgpkg.Config
	store      *store.Store
	journal    *store.SignalJournal
	capital    *capital.Manager
	gate       *execmode.Gate
	risk       *risk.Validator
	engine     *engine.Engine
	reconciler *pnl.Reconciler
	decoder    *intake.Decoder
	Summary    *StartupSummary
}

// NewApp builds the application from config without starting it.
func NewApp(cfg *cfgpkg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run blocks until ctx is cancelled, keeping positions and metrics
// reconciled in the background.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		sched := scheduler.NewAlignedScheduler(ctx, reconcileInterval, 0)
		sched.RunImmediately = true
		sched.Start(func() {
			if _, _, err := a.engine.Reconcile(ctx); err != nil {
				logger.Warnf("app: reconciliation pass failed: %v", err)
			}
		})
		return ctx.Err()
	})
	err := group.Wait()
	a.Close()
	if err == context.Canceled {
		return nil
	}
	return err
}

// Close releases the store handles.
func (a *App) Close() {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			logger.Warnf("app: closing signal journal: %v", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warnf("app: closing store: %v", err)
		}
	}
}

// SubmitSignal runs one already-typed signal through the pipeline.
func (a *App) SubmitSignal(ctx context.Context, sig *types.TradingSignal) (*types.TradingSignal, error) {
	return a.engine.ProcessSignal(ctx, sig)
}

// SubmitPayload decodes a raw intake payload and runs it through the
// pipeline. Payloads that fail validation never reach the engine.
func (a *App) SubmitPayload(ctx context.Context, payload []byte) (*types.TradingSignal, error) {
	sig, err := a.decoder.Decode(payload)
	if err != nil {
		return nil, err
	}
	return a.engine.ProcessSignal(ctx, sig)
}

// Engine exposes the automation engine for query surfaces and tests.
func (a *App) Engine() *engine.Engine {
	if a == nil {
		return nil
	}
	return a.engine
}

func (a *App) Capital() *capital.Manager { return a.capital }

func (a *App) Gate() *execmode.Gate { return a.gate }
