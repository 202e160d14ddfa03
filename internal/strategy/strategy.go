// Package strategy hosts the strategy capability set and the container
// that dispatches market events to strategy instances.
//
// A strategy reacts to market ticks and order book snapshots by optionally
// returning a directional signal; news and regime changes update internal
// state and never produce signals directly. The container forwards any
// returned signal to the bus, where the risk gate sizes it.
package strategy

import (
	"fmt"
	"log/slog"

	"github.com/tradecore/engine/internal/config"
	"github.com/tradecore/engine/internal/events"
)

// Strategy is the capability set every strategy implements. Hooks a
// strategy does not care about are no-ops (embed Base for those).
type Strategy interface {
	Name() string
	OnMarket(m events.Market) *events.Signal
	OnOrderBook(ob events.OrderBook) *events.Signal
	OnNews(n events.News)
	OnRegimeChange(state events.RegimeState)
}

// Base provides no-op implementations of every hook except Name. Concrete
// strategies embed it and override what they use.
type Base struct{}

func (Base) OnMarket(events.Market) *events.Signal       { return nil }
func (Base) OnOrderBook(events.OrderBook) *events.Signal { return nil }
func (Base) OnNews(events.News)                          {}
func (Base) OnRegimeChange(events.RegimeState)           {}

// Build constructs a strategy instance from one config entry.
func Build(cfg config.StrategyConfig, logger *slog.Logger) (Strategy, error) {
	switch cfg.Name {
	case "order_book_imbalance":
		return NewImbalance(cfg.Symbol, cfg.Params.LookbackLevels, cfg.Params.ImbalanceThreshold, logger), nil
	case "momentum":
		return NewMomentum(cfg.Symbol, logger), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", cfg.Name)
	}
}
