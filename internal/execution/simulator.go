// Package execution simulates order execution. Every order fills in full,
// immediately, at the order's market price adjusted for slippage, with a
// proportional commission. Orders are never rejected here; admission control
// is the risk gate's job upstream.
package execution

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/tradecore/engine/internal/config"
	"github.com/tradecore/engine/internal/eventbus"
	"github.com/tradecore/engine/internal/events"
)

// Simulator turns Order events into Fill events.
type Simulator struct {
	commissionPct decimal.Decimal
	slippagePct   decimal.Decimal
	bus           *eventbus.Bus
	logger        *slog.Logger
}

// NewSimulator creates a fill simulator from execution config.
func NewSimulator(cfg config.ExecutionConfig, bus *eventbus.Bus, logger *slog.Logger) *Simulator {
	return &Simulator{
		commissionPct: decimal.NewFromFloat(cfg.CommissionPct),
		slippagePct:   decimal.NewFromFloat(cfg.SlippagePct),
		bus:           bus,
		logger:        logger.With("component", "execution"),
	}
}

// Start registers the simulator's Order subscription.
func (s *Simulator) Start() error {
	s.bus.Subscribe(events.TypeOrder, s.onOrder)
	return nil
}

// Stop is a no-op; subscriptions live for the bus lifetime.
func (s *Simulator) Stop() error { return nil }

// onOrder fills the order. Slippage moves the price against the order's
// direction: BUY fills above market, SELL below.
func (s *Simulator) onOrder(e events.Event) {
	o := e.Order

	slippage := o.MarketPrice.Mul(s.slippagePct)
	fillPrice := o.MarketPrice.Add(slippage)
	if o.Direction == events.Sell {
		fillPrice = o.MarketPrice.Sub(slippage)
	}

	commission := fillPrice.Mul(o.Quantity).Mul(s.commissionPct)

	s.logger.Debug("order filled",
		"symbol", o.Symbol,
		"direction", o.Direction,
		"quantity", o.Quantity,
		"fill_price", fillPrice,
		"commission", commission,
	)
	s.bus.Publish(events.NewFill(o.Symbol, o.Direction, o.Quantity, fillPrice, commission))
}
