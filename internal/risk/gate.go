// Package risk converts strategy signals into concretely sized orders.
//
// The gate caches the state sizing depends on — latest equity and cash from
// portfolio updates, latest price per symbol from market ticks and order
// book snapshots — and checks each signal against configured constraints:
//
//   - Price known:     a signal for a symbol with no cached price is rejected.
//   - Minimum qty:     sized quantity is floored at MinOrderQty.
//   - Minimum notional: orders below MinNotional are inflated to exactly meet it.
//   - Cash:            orders whose notional exceeds cached cash are rejected.
//
// Rejections are logged, never errored: a dropped signal keeps the event
// stream coherent.
package risk

import (
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/tradecore/engine/internal/config"
	"github.com/tradecore/engine/internal/eventbus"
	"github.com/tradecore/engine/internal/events"
)

// Gate sizes signals into orders. Handlers run on the bus dispatcher
// goroutine; the mutex exists for outside readers (portfolio equity marking,
// control API snapshots), not for handler-vs-handler races.
type Gate struct {
	cfg    config.RiskConfig
	oracle ConfidenceOracle
	bus    *eventbus.Bus
	logger *slog.Logger

	mu           sync.RWMutex
	latestEquity decimal.Decimal
	latestCash   decimal.Decimal
	prices       map[string]decimal.Decimal
}

// NewGate creates a sizing gate seeded with the configured initial capital.
func NewGate(cfg config.RiskConfig, initialCapital decimal.Decimal, oracle ConfidenceOracle, bus *eventbus.Bus, logger *slog.Logger) *Gate {
	return &Gate{
		cfg:          cfg,
		oracle:       oracle,
		bus:          bus,
		logger:       logger.With("component", "risk"),
		latestEquity: initialCapital,
		latestCash:   initialCapital,
		prices:       make(map[string]decimal.Decimal),
	}
}

// Start registers the gate's subscriptions. It returns once they are in
// place, which is the readiness contract the orchestrator relies on.
func (g *Gate) Start() error {
	g.bus.Subscribe(events.TypeMarket, g.onMarket)
	g.bus.Subscribe(events.TypeOrderBook, g.onOrderBook)
	g.bus.Subscribe(events.TypePortfolioUpdate, g.onPortfolioUpdate)
	g.bus.Subscribe(events.TypeSignal, g.onSignal)
	return nil
}

// Stop is a no-op; subscriptions live for the bus lifetime.
func (g *Gate) Stop() error { return nil }

// LatestPrice returns the cached price for a symbol. The portfolio engine
// uses this to mark open positions to market.
func (g *Gate) LatestPrice(symbol string) (decimal.Decimal, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.prices[symbol]
	return p, ok
}

func (g *Gate) onMarket(e events.Event) {
	g.mu.Lock()
	g.prices[e.Market.Symbol] = e.Market.Price
	g.mu.Unlock()
}

func (g *Gate) onOrderBook(e events.Event) {
	bid, ok := e.OrderBook.BestBid()
	if !ok {
		return
	}
	g.mu.Lock()
	g.prices[e.OrderBook.Symbol] = bid
	g.mu.Unlock()
}

func (g *Gate) onPortfolioUpdate(e events.Event) {
	g.mu.Lock()
	g.latestEquity = e.PortfolioUpdate.TotalEquity
	g.latestCash = e.PortfolioUpdate.Cash
	g.mu.Unlock()
}

// onSignal runs the sizing algorithm and publishes an Order, or drops the
// signal with a log line.
func (g *Gate) onSignal(e events.Event) {
	sig := e.Signal

	g.mu.RLock()
	price, ok := g.prices[sig.Symbol]
	equity := g.latestEquity
	cash := g.latestCash
	g.mu.RUnlock()

	if !ok {
		g.logger.Warn("signal rejected: no cached price", "symbol", sig.Symbol)
		return
	}

	base := equity.Mul(decimal.NewFromFloat(g.cfg.RiskPerTradePct))
	confidence := 1.0
	if g.cfg.UseDynamicSizing {
		confidence = clamp01(g.oracle.Confidence(sig.Symbol))
	}
	risk := base.Mul(decimal.NewFromFloat(confidence))

	qty := risk.Div(price)
	if minQty := decimal.NewFromFloat(g.cfg.MinOrderQty); qty.LessThan(minQty) {
		qty = minQty
	}

	notional := qty.Mul(price)
	if minNotional := decimal.NewFromFloat(g.cfg.MinNotional); notional.LessThan(minNotional) {
		qty = minNotional.Div(price)
		notional = minNotional
	}

	if notional.GreaterThan(cash) {
		g.logger.Info("signal rejected: insufficient cash",
			"symbol", sig.Symbol,
			"notional", notional,
			"cash", cash,
		)
		return
	}

	g.logger.Debug("order sized",
		"symbol", sig.Symbol,
		"direction", sig.Direction,
		"quantity", qty,
		"price", price,
		"confidence", confidence,
	)
	g.bus.Publish(events.NewOrder(sig.Symbol, sig.Direction, qty, price))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
