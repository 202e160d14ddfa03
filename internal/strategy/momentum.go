package strategy

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/tradecore/engine/internal/events"
)

// Momentum is a minimal tick strategy: it signals in the direction of the
// last price move. The first tick only seeds the reference price.
type Momentum struct {
	Base

	symbol    string
	lastPrice decimal.Decimal
	seeded    bool
	logger    *slog.Logger
}

// NewMomentum creates the strategy.
func NewMomentum(symbol string, logger *slog.Logger) *Momentum {
	return &Momentum{
		symbol: symbol,
		logger: logger.With("strategy", "momentum", "symbol", symbol),
	}
}

func (s *Momentum) Name() string { return "momentum" }

func (s *Momentum) OnMarket(m events.Market) *events.Signal {
	if m.Symbol != s.symbol {
		return nil
	}

	if !s.seeded {
		s.lastPrice = m.Price
		s.seeded = true
		return nil
	}

	prev := s.lastPrice
	s.lastPrice = m.Price

	if m.Price.GreaterThan(prev) {
		return &events.Signal{Symbol: s.symbol, Direction: events.Buy}
	}
	if m.Price.LessThan(prev) {
		return &events.Signal{Symbol: s.symbol, Direction: events.Sell}
	}
	return nil
}
