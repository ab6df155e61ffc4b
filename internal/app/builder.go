package app

import (
	"context"
	"fmt"
	"time"

	"tradeflow/internal/capital"
	cfgpkg "tradeflow/internal/config"
	"tradeflow/internal/engine"
	"tradeflow/internal/execmode"
	"tradeflow/internal/intake"
	"tradeflow/internal/logger"
	"tradeflow/internal/pkg/symbol"
	"tradeflow/internal/pnl"
	"tradeflow/internal/provider"
	binanceprovider "tradeflow/internal/provider/binance"
	paperprovider "tradeflow/internal/provider/paper"
	talibprovider "tradeflow/internal/provider/talib"
	"tradeflow/internal/risk"
	"tradeflow/internal/router"
	"tradeflow/internal/sigproc"
	"tradeflow/internal/store"
)

type AppBuilder struct {
	cfg *cfgpkg.Config

	storeOverride     *store.Store
	journalOverride   *store.SignalJournal
	priceOverride     provider.PriceDataProvider
	executionOverride provider.ExecutionProvider
	newsOverride      provider.NewsProvider
	analyticsOverride provider.AnalyticsProvider
}

type AppBuilderOption func(*AppBuilder)

// WithStore injects a prebuilt store, mainly for tests running on a
// temporary database.
func WithStore(st *store.Store) AppBuilderOption {
	return func(b *AppBuilder) { b.storeOverride = st }
}

func WithJournal(j *store.SignalJournal) AppBuilderOption {
	return func(b *AppBuilder) { b.journalOverride = j }
}

func WithPriceProvider(p provider.PriceDataProvider) AppBuilderOption {
	return func(b *AppBuilder) { b.priceOverride = p }
}

func WithExecutionProvider(p provider.ExecutionProvider) AppBuilderOption {
	return func(b *AppBuilder) { b.executionOverride = p }
}

func WithNewsProvider(p provider.NewsProvider) AppBuilderOption {
	return func(b *AppBuilder) { b.newsOverride = p }
}

func WithAnalyticsProvider(p provider.AnalyticsProvider) AppBuilderOption {
	return func(b *AppBuilder) { b.analyticsOverride = p }
}

func NewAppBuilder(cfg *cfgpkg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	st := b.storeOverride
	if st == nil {
		var err error
		st, err = store.New(cfg.Store.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
	}
	journal := b.journalOverride
	if journal == nil {
		var err error
		journal, err = store.NewSignalJournal(cfg.Store.JournalPath)
		if err != nil {
			return nil, fmt.Errorf("opening signal journal: %w", err)
		}
	}

	capMgr := capital.NewManager(st, capital.WithCurrency(cfg.Capital.Currency))
	if !capMgr.Initialized() && cfg.Capital.InitialTotal > 0 {
		if _, err := capMgr.Initialize(cfg.Capital.InitialTotal); err != nil {
			return nil, fmt.Errorf("initializing capital: %w", err)
		}
	}
	if _, err := capMgr.UpdateAllocationPercentages(capital.Percentages{
		MaxPositionPct:      cfg.Capital.MaxPositionPct,
		MaxDailyLossPct:     cfg.Capital.MaxDailyLossPct,
		EmergencyReservePct: cfg.Capital.EmergencyReservePct,
		AvailableTradingPct: cfg.Capital.AvailableTradingPct,
	}); err != nil {
		return nil, fmt.Errorf("applying allocation percentages: %w", err)
	}

	gate := execmode.NewGate(st)
	gate.SetMaxTradeValue(cfg.Execution.MaxTradeValue)
	if cfg.Execution.ExecutionMode && gate.IsSimulationMode() {
		gate.SetExecutionMode(true)
	}

	providers, err := b.buildProviders(cfg)
	if err != nil {
		return nil, err
	}

	classifier := symbol.PatternClassifier{}
	routing := classRouting(cfg.Risk.SymbolRouting)

	riskValidator := risk.NewValidator(risk.Config{
		FallbackMaxPositionPct:  cfg.Risk.FallbackMaxPositionPct,
		FallbackMaxDailyLossPct: cfg.Risk.FallbackMaxDailyLossPct,
		MinBalanceThreshold:     cfg.Risk.MinBalanceThreshold,
		MaxSymbolExposurePct:    cfg.Risk.MaxSymbolExposurePct,
		SymbolRouting:           routing,
	}, capMgr, providers.execution, classifier)

	processor := sigproc.NewProcessor(sigproc.Config{
		ProviderTimeout: time.Duration(cfg.Processor.ProviderTimeoutSeconds) * time.Second,
		TechnicalPeriod: cfg.Processor.TechnicalPeriod,
	}, providers.price, providers.news, providers.analytics, gate)

	rt := router.New(router.Config{SymbolRouting: routing}, gate, classifier, providers.execution)

	reconciler := pnl.NewReconciler(providers.price, st)

	eng, err := engine.New(engine.Config{SignalLogSize: cfg.Engine.SignalLogSize}, riskValidator, processor, rt, reconciler, st, journal)
	if err != nil {
		return nil, fmt.Errorf("building engine: %w", err)
	}

	decoder, err := intake.NewDecoder()
	if err != nil {
		return nil, fmt.Errorf("building intake decoder: %w", err)
	}

	return &App{
		cfg:        cfg,
		store:      st,
		journal:    journal,
		capital:    capMgr,
		gate:       gate,
		risk:       riskValidator,
		engine:     eng,
		reconciler: reconciler,
		decoder:    decoder,
		Summary:    buildStartupSummary(cfg, gate, capMgr, providers),
	}, nil
}

type providerSet struct {
	price     provider.PriceDataProvider
	execution provider.ExecutionProvider
	news      provider.NewsProvider
	analytics provider.AnalyticsProvider
}

func (p providerSet) names() []string {
	var out []string
	for _, v := range []interface{ Name() string }{p.price, p.execution, p.analytics} {
		if v != nil {
			out = append(out, v.Name())
		}
	}
	return out
}

// buildProviders registers the built-in factories and resolves the
// configured set. Overrides win, so tests can slot in fakes.
func (b *AppBuilder) buildProviders(cfg *cfgpkg.Config) (providerSet, error) {
	registry := provider.NewRegistry()
	registerBuiltins(registry)

	set := providerSet{
		price:     b.priceOverride,
		execution: b.executionOverride,
		news:      b.newsOverride,
		analytics: b.analyticsOverride,
	}

	if set.price == nil && cfg.Providers.Binance.Enabled {
		p, err := registry.BuildPrice("binance", map[string]any{
			"api_key":    cfg.Providers.Binance.APIKey,
			"secret_key": cfg.Providers.Binance.SecretKey,
			"base_url":   cfg.Providers.Binance.BaseURL,
		})
		if err != nil {
			return providerSet{}, err
		}
		set.price = p
	}
	if set.execution == nil {
		p, err := registry.BuildExecution("paper", map[string]any{
			"initial_balance": cfg.Providers.Paper.InitialBalance,
			"slippage_bps":    cfg.Providers.Paper.SlippageBps,
			"failure_rate":    cfg.Providers.Paper.FailureRate,
		})
		if err != nil {
			return providerSet{}, err
		}
		set.execution = p
	}
	if set.analytics == nil {
		if src, ok := set.price.(talibprovider.CandleSource); ok {
			p, err := registry.BuildAnalytics("talib", map[string]any{
				"interval": cfg.Providers.Analytics.Interval,
				"candles":  src,
			})
			if err != nil {
				return providerSet{}, err
			}
			set.analytics = p
		}
	}
	return set, nil
}

func registerBuiltins(r *provider.Registry) {
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(r.Register(provider.KindPrice, "binance", func(settings map[string]any) (any, error) {
		return binanceprovider.New(binanceprovider.Config{
			APIKey:    asString(settings["api_key"]),
			SecretKey: asString(settings["secret_key"]),
			BaseURL:   asString(settings["base_url"]),
		}), nil
	}))
	must(r.Register(provider.KindExecution, "paper", func(settings map[string]any) (any, error) {
		return paperprovider.New(paperprovider.Config{
			InitialBalance: asFloat(settings["initial_balance"]),
			SlippageBps:    asFloat(settings["slippage_bps"]),
			FailureRate:    asFloat(settings["failure_rate"]),
		}, nil), nil
	}))
	must(r.Register(provider.KindAnalytics, "talib", func(settings map[string]any) (any, error) {
		src, _ := settings["candles"].(talibprovider.CandleSource)
		if src == nil {
			return nil, fmt.Errorf("talib analytics requires a candle source")
		}
		return talibprovider.New(talibprovider.Config{Interval: asString(settings["interval"])}, src), nil
	}))
}

func classRouting(routing map[string]string) map[symbol.Class]string {
	if len(routing) == 0 {
		return nil
	}
	out := make(map[symbol.Class]string, len(routing))
	for class, venue := range routing {
		out[symbol.Class(class)] = venue
	}
	return out
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}
