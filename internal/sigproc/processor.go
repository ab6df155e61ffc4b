package sigproc

import (
	"context"
	"fmt"
	"time"

	"tradeflow/internal/execmode"
	"tradeflow/internal/logger"
	"tradeflow/internal/provider"
	"tradeflow/internal/types"

	"golang.org/x/sync/errgroup"
)

const (
	// Spread wider than this fraction of price flags (not blocks) the signal.
	wideSpreadThreshold = 0.05
	// Signal price further than this fraction from the market flags a
	// possible data error.
	priceDeviationThreshold = 0.20

	sentimentBullish = 0.3
	sentimentBearish = -0.3
)

// Config tunes the processor.
type Config struct {
	// ProviderTimeout bounds every provider call; the pipeline never
	// hangs on a slow feed.
	ProviderTimeout time.Duration
	TechnicalPeriod int
}

func (c Config) withDefaults() Config {
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = 10 * time.Second
	}
	if c.TechnicalPeriod <= 0 {
		c.TechnicalPeriod = 20
	}
	return c
}

// Processor runs a signal through validation and enrichment. Stages 1-3
// and the final check can block the signal; sentiment and technicals are
// best effort and never block.
type Processor struct {
	cfg       Config
	price     provider.PriceDataProvider
	news      provider.NewsProvider
	analytics provider.AnalyticsProvider
	gate      *execmode.Gate
}

func NewProcessor(cfg Config, price provider.PriceDataProvider, news provider.NewsProvider, analytics provider.AnalyticsProvider, gate *execmode.Gate) *Processor {
	return &Processor{
		cfg:       cfg.withDefaults(),
		price:     price,
		news:      news,
		analytics: analytics,
		gate:      gate,
	}
}

// Process mutates the signal in place and returns it. A blocked signal
// carries the reason; remaining stages are skipped once blocked.
func (p *Processor) Process(ctx context.Context, sig *types.TradingSignal) *types.TradingSignal {
	logger.Infof("sigproc: processing signal %s for %s", sig.ID, sig.Symbol)

	if !p.validateMarketConditions(ctx, sig) {
		return sig
	}
	if !p.validateSymbol(ctx, sig) {
		return sig
	}
	if !p.enrichWithMarketData(ctx, sig) {
		return sig
	}

	p.enrichOptional(ctx, sig)

	if !p.validateParameters(sig) {
		return sig
	}
	logger.Infof("sigproc: signal %s processed with price $%.4f", sig.ID, sig.Price)
	return sig
}

func (p *Processor) providerCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.cfg.ProviderTimeout)
}

// validateMarketConditions enforces market hours only in execution mode;
// simulation trades around the clock.
func (p *Processor) validateMarketConditions(ctx context.Context, sig *types.TradingSignal) bool {
	if p.gate != nil && p.gate.IsSimulationMode() {
		logger.Debugf("sigproc: signal %s market hours bypassed (simulation mode)", sig.ID)
		return true
	}
	cctx, cancel := p.providerCtx(ctx)
	defer cancel()
	open, err := p.price.IsMarketOpen(cctx)
	if err != nil {
		sig.Block(fmt.Sprintf("Market validation error: %v", err))
		return false
	}
	if !open {
		sig.Block("Market is closed for trading")
		logger.Warnf("sigproc: signal %s blocked: market closed", sig.ID)
		return false
	}
	return true
}

func (p *Processor) validateSymbol(ctx context.Context, sig *types.TradingSignal) bool {
	cctx, cancel := p.providerCtx(ctx)
	defer cancel()
	valid, err := p.price.ValidateSymbol(cctx, sig.Symbol)
	if err != nil {
		sig.Block(fmt.Sprintf("Symbol validation error: %v", err))
		return false
	}
	if !valid {
		sig.Block(fmt.Sprintf("Invalid or inactive symbol: %s", sig.Symbol))
		logger.Warnf("sigproc: signal %s blocked: invalid symbol %s", sig.ID, sig.Symbol)
		return false
	}
	return true
}

func (p *Processor) enrichWithMarketData(ctx context.Context, sig *types.TradingSignal) bool {
	cctx, cancel := p.providerCtx(ctx)
	defer cancel()
	md, err := p.price.GetCurrentPrice(cctx, sig.Symbol)
	if err != nil {
		sig.Block(fmt.Sprintf("Market data error: %v", err))
		return false
	}
	if md == nil || md.Price <= 0 {
		sig.Block(fmt.Sprintf("No price data available for %s", sig.Symbol))
		logger.Errorf("sigproc: could not get price for %s", sig.Symbol)
		return false
	}

	if sig.Price <= 0 {
		sig.Price = md.Price
		logger.Infof("sigproc: signal %s adopted market price $%.4f", sig.ID, md.Price)
	}
	sig.Metadata["market_data"] = map[string]any{
		"current_price":  md.Price,
		"volume":         md.Volume,
		"bid":            md.Bid,
		"ask":            md.Ask,
		"spread":         md.Spread,
		"previous_close": md.PreviousClose,
		"change_percent": md.ChangePercent,
		"provider":       md.Provider,
		"timestamp":      md.Timestamp.Format(time.RFC3339),
	}

	if md.Spread > 0 && md.Spread > md.Price*wideSpreadThreshold {
		logger.Warnf("sigproc: wide spread on %s: %.4f", sig.Symbol, md.Spread)
		sig.AddWarning("wide_spread")
	}
	return true
}

// Outcome reports what one optional enrichment did, making the
// never-blocks contract explicit instead of burying it in error handling.
// An applied outcome carries its metadata payload so the caller can fold
// it into the signal after the goroutines have joined.
type Outcome struct {
	Applied bool
	Skipped string
	Key     string
	Payload any
}

func applied(key string, payload any) Outcome {
	return Outcome{Applied: true, Key: key, Payload: payload}
}
func skipped(why string) Outcome { return Outcome{Skipped: why} }

// enrichOptional runs sentiment and technical enrichment concurrently;
// neither can block the signal. The goroutines never touch the signal's
// metadata map themselves: concurrent writes to a map are a runtime
// fatal error even on distinct keys, so each returns its payload and the
// fold happens here, after the wait.
func (p *Processor) enrichOptional(ctx context.Context, sig *types.TradingSignal) {
	group, gctx := errgroup.WithContext(ctx)

	var sentiment, technical Outcome
	group.Go(func() error {
		sentiment = p.enrichWithSentiment(gctx, sig)
		return nil
	})
	group.Go(func() error {
		technical = p.enrichWithTechnicals(gctx, sig)
		return nil
	})
	_ = group.Wait()

	for _, out := range []Outcome{sentiment, technical} {
		if out.Applied {
			sig.Metadata[out.Key] = out.Payload
		}
	}

	if sentiment.Skipped != "" {
		logger.Debugf("sigproc: sentiment enrichment skipped for %s: %s", sig.Symbol, sentiment.Skipped)
	}
	if technical.Skipped != "" {
		logger.Debugf("sigproc: technical enrichment skipped for %s: %s", sig.Symbol, technical.Skipped)
	}
}

func (p *Processor) enrichWithSentiment(ctx context.Context, sig *types.TradingSignal) Outcome {
	if p.news == nil {
		return skipped("no news provider")
	}
	cctx, cancel := p.providerCtx(ctx)
	defer cancel()
	score, ok, err := p.news.GetSentimentScore(cctx, sig.Symbol)
	if err != nil {
		logger.Warnf("sigproc: sentiment lookup failed for %s: %v", sig.Symbol, err)
		return skipped(err.Error())
	}
	if !ok {
		return skipped("no sentiment available")
	}

	label := "neutral"
	switch {
	case score > sentimentBullish:
		label = "bullish"
	case score < sentimentBearish:
		label = "bearish"
	}
	logger.Infof("sigproc: signal %s sentiment %s (%.2f)", sig.ID, label, score)
	return applied("sentiment", map[string]any{
		"score":     score,
		"label":     label,
		"provider":  p.news.Name(),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (p *Processor) enrichWithTechnicals(ctx context.Context, sig *types.TradingSignal) Outcome {
	if p.analytics == nil {
		return skipped("no analytics provider")
	}
	cctx, cancel := p.providerCtx(ctx)
	defer cancel()

	rsi, rsiErr := p.analytics.GetRSI(cctx, sig.Symbol, 14)
	sma, smaErr := p.analytics.GetMovingAverage(cctx, sig.Symbol, p.cfg.TechnicalPeriod, "sma")
	if rsiErr != nil && smaErr != nil {
		logger.Warnf("sigproc: technical lookup failed for %s: rsi=%v sma=%v", sig.Symbol, rsiErr, smaErr)
		return skipped("indicator lookups failed")
	}
	if rsi == nil && sma == nil {
		return skipped("no indicators available")
	}

	ta := map[string]any{"provider": p.analytics.Name()}
	if rsi != nil {
		ta["rsi"] = map[string]any{
			"value":     rsi.Value,
			"timestamp": rsi.Timestamp.Format(time.RFC3339),
		}
	}
	if sma != nil {
		smaKey := fmt.Sprintf("sma_%d", p.cfg.TechnicalPeriod)
		ta[smaKey] = map[string]any{
			"value":     sma.Value,
			"timestamp": sma.Timestamp.Format(time.RFC3339),
		}
		if sig.Price > 0 && sma.Value > 0 {
			pct := (sig.Price - sma.Value) / sma.Value * 100
			position := "below"
			if pct > 0 {
				position = "above"
			}
			ta["price_vs_"+smaKey] = map[string]any{
				"percent_diff": pct,
				"position":     position,
			}
		}
	}
	logger.Infof("sigproc: signal %s enriched with technical indicators", sig.ID)
	return applied("technical_analysis", ta)
}

func (p *Processor) validateParameters(sig *types.TradingSignal) bool {
	if sig.Quantity <= 0 {
		sig.Block("Invalid quantity: must be positive")
		logger.Warnf("sigproc: signal %s blocked: invalid quantity %.4f", sig.ID, sig.Quantity)
		return false
	}
	if sig.Price <= 0 {
		sig.Block("Invalid price: must be positive")
		logger.Warnf("sigproc: signal %s blocked: invalid price %.4f", sig.ID, sig.Price)
		return false
	}

	if md, ok := sig.Metadata["market_data"].(map[string]any); ok {
		if current, ok := md["current_price"].(float64); ok && current > 0 {
			deviation := sig.Price - current
			if deviation < 0 {
				deviation = -deviation
			}
			if deviation/current > priceDeviationThreshold {
				logger.Warnf("sigproc: large price deviation on %s: signal=$%.4f market=$%.4f", sig.Symbol, sig.Price, current)
				sig.AddWarning("price_deviation")
			}
		}
	}
	return true
}

// Stats reports the configured providers for status views.
type Stats struct {
	PriceProvider     string `json:"price_provider"`
	NewsProvider      string `json:"news_provider,omitempty"`
	AnalyticsProvider string `json:"analytics_provider,omitempty"`
}

func (p *Processor) Stats() Stats {
	s := Stats{PriceProvider: p.price.Name()}
	if p.news != nil {
		s.NewsProvider = p.news.Name()
	}
	if p.analytics != nil {
		s.AnalyticsProvider = p.analytics.Name()
	}
	return s
}
