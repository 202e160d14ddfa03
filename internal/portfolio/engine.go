// Package portfolio owns the cash/position state machine. Fills mutate
// cash and open positions, opposing fills realize trades into an
// append-only trade log, and every fill produces exactly one
// PortfolioUpdate event carrying recomputed equity.
//
// Handlers run on the bus dispatcher goroutine; the RWMutex exists for
// outside readers (control API snapshots, report building), which are
// allowed to observe slightly stale state.
package portfolio

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tradecore/engine/internal/eventbus"
	"github.com/tradecore/engine/internal/events"
)

// qtyTolerance is the threshold below which a position quantity is
// considered zero and the position is erased.
var qtyTolerance = decimal.New(1, -9)

// PriceSource provides the latest cached price for a symbol. The risk
// gate's price cache satisfies this; a nil source falls back to marking
// positions at their entry price.
type PriceSource interface {
	LatestPrice(symbol string) (decimal.Decimal, bool)
}

// Position is an open holding in one symbol. Quantity is always positive;
// short positions carry Direction == Sell.
type Position struct {
	Symbol     string           `json:"symbol"`
	Direction  events.Direction `json:"direction"`
	Quantity   decimal.Decimal  `json:"quantity"`
	EntryPrice decimal.Decimal  `json:"entry_price"`
}

// Trade is a realized round trip, appended to the trade log when a
// position is reduced by an opposing fill.
type Trade struct {
	ID         string           `json:"id"`
	Symbol     string           `json:"symbol"`
	Direction  events.Direction `json:"direction"`
	Quantity   decimal.Decimal  `json:"quantity"`
	EntryPrice decimal.Decimal  `json:"entry_price"`
	ExitPrice  decimal.Decimal  `json:"exit_price"`
	PnL        decimal.Decimal  `json:"pnl"`
}

// Engine tracks cash, positions, the trade log, and the equity curve.
type Engine struct {
	bus    *eventbus.Bus
	prices PriceSource
	logger *slog.Logger

	initialCapital decimal.Decimal

	mu          sync.RWMutex
	cash        decimal.Decimal
	positions   map[string]Position
	trades      []Trade
	equityCurve []decimal.Decimal
}

// NewEngine creates a portfolio engine seeded with initial capital.
func NewEngine(initialCapital decimal.Decimal, prices PriceSource, bus *eventbus.Bus, logger *slog.Logger) *Engine {
	return &Engine{
		bus:            bus,
		prices:         prices,
		logger:         logger.With("component", "portfolio"),
		initialCapital: initialCapital,
		cash:           initialCapital,
		positions:      make(map[string]Position),
	}
}

// Start registers the Fill subscription and publishes the initial
// PortfolioUpdate reporting starting equity.
func (p *Engine) Start() error {
	p.bus.Subscribe(events.TypeFill, p.onFill)
	p.publishUpdate(p.initialCapital, p.initialCapital)
	return nil
}

// Stop is a no-op; subscriptions live for the bus lifetime.
func (p *Engine) Stop() error { return nil }

func (p *Engine) onFill(e events.Event) {
	f := e.Fill

	p.mu.Lock()

	notional := f.Notional()
	if f.Direction == events.Buy {
		p.cash = p.cash.Sub(notional).Sub(f.Commission)
	} else {
		p.cash = p.cash.Add(notional).Sub(f.Commission)
	}

	p.applyPosition(f)

	equity := p.cash
	hasShort := false
	for _, pos := range p.positions {
		equity = equity.Add(pos.Quantity.Mul(p.markPrice(pos)))
		if pos.Direction == events.Sell {
			hasShort = true
		}
	}
	cash := p.cash
	p.equityCurve = append(p.equityCurve, equity)
	p.mu.Unlock()

	p.publishUpdate(equity, cash)

	if cash.IsNegative() && !hasShort {
		p.logger.Error("negative cash with no short positions, aborting pipeline",
			"cash", cash)
		p.bus.Publish(events.NewSystem())
	}
}

// applyPosition mutates the position map for one fill. Caller holds p.mu.
func (p *Engine) applyPosition(f events.Fill) {
	pos, ok := p.positions[f.Symbol]
	if !ok {
		p.positions[f.Symbol] = Position{
			Symbol:     f.Symbol,
			Direction:  f.Direction,
			Quantity:   f.Quantity,
			EntryPrice: f.FillPrice,
		}
		return
	}

	if f.Direction == pos.Direction {
		// Same side: weighted average entry over the combined quantity.
		combined := pos.Quantity.Add(f.Quantity)
		cost := pos.EntryPrice.Mul(pos.Quantity).Add(f.FillPrice.Mul(f.Quantity))
		pos.EntryPrice = cost.Div(combined)
		pos.Quantity = combined
		p.positions[f.Symbol] = pos
		return
	}

	// Opposing side: realize a trade for the overlapping quantity.
	closed := decimal.Min(pos.Quantity, f.Quantity)
	pnl := f.FillPrice.Sub(pos.EntryPrice).Mul(closed)
	if pos.Direction == events.Sell {
		pnl = pos.EntryPrice.Sub(f.FillPrice).Mul(closed)
	}
	pnl = pnl.Sub(f.Commission)

	p.trades = append(p.trades, Trade{
		ID:         uuid.NewString(),
		Symbol:     f.Symbol,
		Direction:  pos.Direction,
		Quantity:   closed,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  f.FillPrice,
		PnL:        pnl,
	})

	pos.Quantity = pos.Quantity.Sub(closed)
	if pos.Quantity.LessThanOrEqual(qtyTolerance) {
		delete(p.positions, f.Symbol)
	} else {
		p.positions[f.Symbol] = pos
	}

	// A closing fill larger than the open position flips to the opposite
	// direction with the residual quantity.
	if residual := f.Quantity.Sub(closed); residual.GreaterThan(qtyTolerance) {
		p.positions[f.Symbol] = Position{
			Symbol:     f.Symbol,
			Direction:  f.Direction,
			Quantity:   residual,
			EntryPrice: f.FillPrice,
		}
	}
}

// markPrice returns the valuation price for a position: the latest cached
// market price when one is known, the entry price otherwise.
func (p *Engine) markPrice(pos Position) decimal.Decimal {
	if p.prices != nil {
		if latest, ok := p.prices.LatestPrice(pos.Symbol); ok {
			return latest
		}
	}
	return pos.EntryPrice
}

func (p *Engine) publishUpdate(equity, cash decimal.Decimal) {
	p.bus.Publish(events.NewPortfolioUpdate(equity, cash))
}

// Cash returns current cash.
func (p *Engine) Cash() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cash
}

// InitialCapital returns the configured starting equity.
func (p *Engine) InitialCapital() decimal.Decimal {
	return p.initialCapital
}

// Positions returns a snapshot of open positions.
func (p *Engine) Positions() map[string]Position {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]Position, len(p.positions))
	for sym, pos := range p.positions {
		out[sym] = pos
	}
	return out
}

// Trades returns a snapshot of the realized trade log.
func (p *Engine) Trades() []Trade {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Trade, len(p.trades))
	copy(out, p.trades)
	return out
}

// EquityCurve returns a snapshot of equity after each fill, starting with
// initial capital.
func (p *Engine) EquityCurve() []decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]decimal.Decimal, 0, len(p.equityCurve)+1)
	out = append(out, p.initialCapital)
	out = append(out, p.equityCurve...)
	return out
}

// TotalPnL returns the summed realized PnL and the trade count.
func (p *Engine) TotalPnL() (decimal.Decimal, int) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	total := decimal.Zero
	for _, t := range p.trades {
		total = total.Add(t.PnL)
	}
	return total, len(p.trades)
}
