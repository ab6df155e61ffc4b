package config

// Config is the main configuration carrier for the trading core.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Store     StoreConfig     `mapstructure:"store"`
	Capital   CapitalConfig   `mapstructure:"capital"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Processor ProcessorConfig `mapstructure:"processor"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Providers ProvidersConfig `mapstructure:"providers"`
}

type AppConfig struct {
	Env          string `mapstructure:"env"`
	LogLevel     string `mapstructure:"log_level"`
	LogPath      string `mapstructure:"log_path"`
	AuditLogPath string `mapstructure:"audit_log_path"`
}

type StoreConfig struct {
	DBPath      string `mapstructure:"db_path"`
	JournalPath string `mapstructure:"journal_path"`
}

// CapitalConfig seeds the capital manager. InitialTotal of zero leaves
// capital uninitialized; the risk layer then falls back to provider
// balances.
type CapitalConfig struct {
	InitialTotal        float64 `mapstructure:"initial_total"`
	MaxPositionPct      float64 `mapstructure:"max_position_pct"`
	MaxDailyLossPct     float64 `mapstructure:"max_daily_loss_pct"`
	EmergencyReservePct float64 `mapstructure:"emergency_reserve_pct"`
	AvailableTradingPct float64 `mapstructure:"available_trading_pct"`
	Currency            string  `mapstructure:"currency"`
}

type RiskConfig struct {
	FallbackMaxPositionPct  float64           `mapstructure:"fallback_max_position_pct"`
	FallbackMaxDailyLossPct float64           `mapstructure:"fallback_max_daily_loss_pct"`
	MinBalanceThreshold     float64           `mapstructure:"min_balance_threshold"`
	MaxSymbolExposurePct    float64           `mapstructure:"max_symbol_exposure_pct"`
	SymbolRouting           map[string]string `mapstructure:"symbol_routing"`
}

type ExecutionConfig struct {
	ExecutionMode bool    `mapstructure:"execution_mode"`
	MaxTradeValue float64 `mapstructure:"max_trade_value"`
}

type ProcessorConfig struct {
	ProviderTimeoutSeconds int `mapstructure:"provider_timeout_seconds"`
	TechnicalPeriod        int `mapstructure:"technical_period"`
}

type EngineConfig struct {
	SignalLogSize int `mapstructure:"signal_log_size"`
}

type ProvidersConfig struct {
	Binance   BinanceConfig   `mapstructure:"binance"`
	Paper     PaperConfig     `mapstructure:"paper"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
}

type BinanceConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	APIKey    string `mapstructure:"api_key"`
	SecretKey string `mapstructure:"secret_key"`
	BaseURL   string `mapstructure:"base_url"`
}

type PaperConfig struct {
	InitialBalance float64 `mapstructure:"initial_balance"`
	SlippageBps    float64 `mapstructure:"slippage_bps"`
	FailureRate    float64 `mapstructure:"failure_rate"`
}

type AnalyticsConfig struct {
	Interval string `mapstructure:"interval"`
}
