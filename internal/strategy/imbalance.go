package strategy

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/tradecore/engine/internal/events"
	"github.com/tradecore/engine/internal/marketdata"
)

// Imbalance signals on order book imbalance: the ratio of aggregated bid
// volume to ask volume over the top N levels. A ratio above the threshold
// is buying pressure (BUY); below its reciprocal, selling pressure (SELL).
// Balanced books produce no signal.
type Imbalance struct {
	Base

	symbol    string
	levels    int
	threshold decimal.Decimal
	book      *marketdata.Book
	paused    bool
	logger    *slog.Logger
}

// NewImbalance creates the strategy with its own book mirror.
func NewImbalance(symbol string, levels int, threshold float64, logger *slog.Logger) *Imbalance {
	return &Imbalance{
		symbol:    symbol,
		levels:    levels,
		threshold: decimal.NewFromFloat(threshold),
		book:      marketdata.NewBook(symbol),
		logger:    logger.With("strategy", "order_book_imbalance", "symbol", symbol),
	}
}

func (s *Imbalance) Name() string { return "order_book_imbalance" }

// OnRegimeChange pauses signalling while volatility is HIGH; imbalance is
// too noisy a pressure read in fast markets.
func (s *Imbalance) OnRegimeChange(state events.RegimeState) {
	paused := state.Volatility == events.VolHigh
	if paused != s.paused {
		s.logger.Info("imbalance signalling toggled", "paused", paused, "volatility", state.Volatility)
	}
	s.paused = paused
}

func (s *Imbalance) OnOrderBook(ob events.OrderBook) *events.Signal {
	if ob.Symbol != s.symbol {
		return nil
	}
	s.book.ApplySnapshot(ob)

	if s.paused {
		return nil
	}

	bidVol, askVol := s.book.DepthTotals(s.levels)
	if askVol.LessThanOrEqual(decimal.New(1, -9)) {
		return nil
	}

	ratio := bidVol.Div(askVol)
	s.logger.Debug("imbalance computed", "ratio", ratio)

	if ratio.GreaterThan(s.threshold) {
		return &events.Signal{Symbol: s.symbol, Direction: events.Buy}
	}
	if ratio.LessThan(decimal.NewFromInt(1).Div(s.threshold)) {
		return &events.Signal{Symbol: s.symbol, Direction: events.Sell}
	}
	return nil
}
