package strategy

import (
	"log/slog"

	"github.com/tradecore/engine/internal/eventbus"
	"github.com/tradecore/engine/internal/events"
)

// Container holds an ordered collection of strategy instances and wires
// them to the bus. Strategies are invoked in registration order on the
// dispatcher goroutine, so they may hold unguarded state.
type Container struct {
	bus        *eventbus.Bus
	logger     *slog.Logger
	strategies []Strategy
}

// NewContainer creates an empty container.
func NewContainer(bus *eventbus.Bus, logger *slog.Logger) *Container {
	return &Container{
		bus:    bus,
		logger: logger.With("component", "strategy"),
	}
}

// Add appends a strategy. Call before Start.
func (c *Container) Add(s Strategy) {
	c.strategies = append(c.strategies, s)
}

// Start registers the container's subscriptions.
func (c *Container) Start() error {
	c.bus.Subscribe(events.TypeMarket, c.onMarket)
	c.bus.Subscribe(events.TypeOrderBook, c.onOrderBook)
	c.bus.Subscribe(events.TypeNews, c.onNews)
	c.bus.Subscribe(events.TypeMarketRegimeChanged, c.onRegimeChange)
	c.logger.Info("strategies attached", "count", len(c.strategies))
	return nil
}

// Stop is a no-op; subscriptions live for the bus lifetime.
func (c *Container) Stop() error { return nil }

func (c *Container) onMarket(e events.Event) {
	for _, s := range c.strategies {
		if sig := s.OnMarket(e.Market); sig != nil {
			c.publish(s, sig)
		}
	}
}

func (c *Container) onOrderBook(e events.Event) {
	for _, s := range c.strategies {
		if sig := s.OnOrderBook(e.OrderBook); sig != nil {
			c.publish(s, sig)
		}
	}
}

func (c *Container) onNews(e events.Event) {
	for _, s := range c.strategies {
		s.OnNews(e.News)
	}
}

func (c *Container) onRegimeChange(e events.Event) {
	for _, s := range c.strategies {
		s.OnRegimeChange(e.MarketRegimeChanged)
	}
}

func (c *Container) publish(s Strategy, sig *events.Signal) {
	c.logger.Debug("signal generated",
		"strategy", s.Name(),
		"symbol", sig.Symbol,
		"direction", sig.Direction,
	)
	c.bus.Publish(events.NewSignal(sig.Symbol, sig.Direction))
}
