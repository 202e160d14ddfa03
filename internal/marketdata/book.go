// Package marketdata provides a local order book mirror for one symbol.
//
// Book is updated from order-book snapshot events and provides derived
// values like MidPrice, BestBidAsk, and aggregated depth for the strategy
// layer. It is concurrency-safe (RWMutex protected) so a strategy running
// on the dispatcher goroutine and an outside reader (control API snapshot)
// can share it.
package marketdata

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradecore/engine/internal/events"
)

// Book maintains a local mirror of the order book for one symbol.
// Bids are kept sorted descending by price, asks ascending, matching the
// ordering contract of the OrderBook event that feeds it.
type Book struct {
	mu      sync.RWMutex
	symbol  string
	bids    []events.PriceLevel
	asks    []events.PriceLevel
	updated time.Time
}

// NewBook creates a new local order book for a symbol.
func NewBook(symbol string) *Book {
	return &Book{symbol: symbol}
}

// Symbol returns the symbol this book mirrors.
func (b *Book) Symbol() string {
	return b.symbol
}

// ApplySnapshot replaces the book with a full snapshot.
func (b *Book) ApplySnapshot(ob events.OrderBook) {
	if ob.Symbol != b.symbol {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.bids = ob.Bids
	b.asks = ob.Asks
	b.updated = time.Now()
}

// MidPrice returns (bestBid + bestAsk) / 2. Returns false if the book is
// empty on either side.
func (b *Book) MidPrice() (decimal.Decimal, bool) {
	bid, ask, ok := b.BestBidAsk()
	if !ok {
		return decimal.Zero, false
	}
	return bid.Add(ask).Div(decimal.NewFromInt(2)), true
}

// BestBidAsk returns the best bid and ask prices.
func (b *Book) BestBidAsk() (bid, ask decimal.Decimal, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.bids) == 0 || len(b.asks) == 0 {
		return decimal.Zero, decimal.Zero, false
	}
	return b.bids[0].Price, b.asks[0].Price, true
}

// DepthTotals returns the aggregated bid and ask quantity over the top
// `levels` price levels of each side. Fewer levels than requested are
// summed if the book is shallow.
func (b *Book) DepthTotals(levels int) (bidVol, askVol decimal.Decimal) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for i := 0; i < levels && i < len(b.bids); i++ {
		bidVol = bidVol.Add(b.bids[i].Quantity)
	}
	for i := 0; i < levels && i < len(b.asks); i++ {
		askVol = askVol.Add(b.asks[i].Quantity)
	}
	return bidVol, askVol
}

// IsStale returns true if the book hasn't been updated within maxAge.
func (b *Book) IsStale(maxAge time.Duration) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.updated.IsZero() {
		return true
	}
	return time.Since(b.updated) > maxAge
}

// LastUpdated returns the timestamp of the last book update.
func (b *Book) LastUpdated() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.updated
}
