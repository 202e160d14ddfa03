// Package events defines the closed set of event variants that flow through
// the event bus: market ticks, order-book snapshots, news, regime changes,
// strategy signals, sized orders, fills, portfolio updates, and the
// terminal system marker. Every variant is immutable once constructed.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type tags the variant an Event carries. Handlers downcast by tag.
type Type string

const (
	TypeMarket              Type = "MARKET"
	TypeOrderBook           Type = "ORDER_BOOK"
	TypeNews                Type = "NEWS"
	TypeMarketRegimeChanged Type = "MARKET_REGIME_CHANGED"
	TypeSignal              Type = "SIGNAL"
	TypeOrder               Type = "ORDER"
	TypeFill                Type = "FILL"
	TypePortfolioUpdate     Type = "PORTFOLIO_UPDATE"
	TypeSystem              Type = "SYSTEM"
)

// Direction is the side of a signal, order, fill, or position.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// Volatility classifies a MarketRegimeChanged state.
type Volatility string

const (
	VolLow    Volatility = "LOW"
	VolNormal Volatility = "NORMAL"
	VolHigh   Volatility = "HIGH"
)

// Trend classifies a MarketRegimeChanged state.
type Trend string

const (
	TrendSideways Trend = "SIDEWAYS"
	TrendUp       Trend = "UP"
	TrendDown     Trend = "DOWN"
)

// PriceLevel is one side of an order book at a single price point.
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Market is a last-trade tick.
type Market struct {
	Symbol string
	Price  decimal.Decimal
}

// OrderBook is a full snapshot for a symbol. Bids sorted descending by
// price, asks ascending.
type OrderBook struct {
	Symbol    string
	Timestamp int64
	Bids      []PriceLevel
	Asks      []PriceLevel
}

// BestBid returns the highest bid price, or a zero decimal and false if the
// book has no bids.
func (b OrderBook) BestBid() (decimal.Decimal, bool) {
	if len(b.Bids) == 0 {
		return decimal.Zero, false
	}
	return b.Bids[0].Price, true
}

// News carries a headline and a sentiment score in [-1, 1].
type News struct {
	Symbol         string
	Headline       string
	SentimentScore float64
}

// RegimeState is the payload of a MarketRegimeChanged event.
type RegimeState struct {
	Volatility Volatility
	Trend      Trend
}

// Signal is a strategy's directional intention, not yet sized.
type Signal struct {
	Symbol    string
	Direction Direction
}

// Order is a concretely sized order produced by the risk gate.
type Order struct {
	ID          string
	Symbol      string
	Direction   Direction
	Quantity    decimal.Decimal
	MarketPrice decimal.Decimal
}

// Fill is the execution simulator's report of a filled order.
type Fill struct {
	ID         string
	Symbol     string
	Direction  Direction
	Quantity   decimal.Decimal
	FillPrice  decimal.Decimal
	Commission decimal.Decimal
}

// Notional returns fill_price * quantity.
func (f Fill) Notional() decimal.Decimal {
	return f.FillPrice.Mul(f.Quantity)
}

// PortfolioUpdate reports aggregate portfolio state after a fill, or at
// startup.
type PortfolioUpdate struct {
	TotalEquity decimal.Decimal
	Cash        decimal.Decimal
}

// Event is the sum type dispatched by the bus. Exactly one payload field is
// populated, matching Type.
type Event struct {
	Type      Type
	Timestamp int64

	Market              Market
	OrderBook           OrderBook
	News                News
	MarketRegimeChanged RegimeState
	Signal              Signal
	Order               Order
	Fill                Fill
	PortfolioUpdate     PortfolioUpdate
}

func now() int64 { return time.Now().UnixNano() }

func NewMarket(symbol string, price decimal.Decimal) Event {
	return Event{Type: TypeMarket, Timestamp: now(), Market: Market{Symbol: symbol, Price: price}}
}

func NewOrderBook(symbol string, timestamp int64, bids, asks []PriceLevel) Event {
	return Event{
		Type:      TypeOrderBook,
		Timestamp: now(),
		OrderBook: OrderBook{Symbol: symbol, Timestamp: timestamp, Bids: bids, Asks: asks},
	}
}

func NewNews(symbol, headline string, sentiment float64) Event {
	return Event{Type: TypeNews, Timestamp: now(), News: News{Symbol: symbol, Headline: headline, SentimentScore: sentiment}}
}

func NewMarketRegimeChanged(vol Volatility, trend Trend) Event {
	return Event{Type: TypeMarketRegimeChanged, Timestamp: now(), MarketRegimeChanged: RegimeState{Volatility: vol, Trend: trend}}
}

func NewSignal(symbol string, direction Direction) Event {
	return Event{Type: TypeSignal, Timestamp: now(), Signal: Signal{Symbol: symbol, Direction: direction}}
}

func NewOrder(symbol string, direction Direction, quantity, marketPrice decimal.Decimal) Event {
	return Event{
		Type:      TypeOrder,
		Timestamp: now(),
		Order: Order{
			ID:          uuid.NewString(),
			Symbol:      symbol,
			Direction:   direction,
			Quantity:    quantity,
			MarketPrice: marketPrice,
		},
	}
}

func NewFill(symbol string, direction Direction, quantity, fillPrice, commission decimal.Decimal) Event {
	return Event{
		Type:      TypeFill,
		Timestamp: now(),
		Fill: Fill{
			ID:         uuid.NewString(),
			Symbol:     symbol,
			Direction:  direction,
			Quantity:   quantity,
			FillPrice:  fillPrice,
			Commission: commission,
		},
	}
}

func NewPortfolioUpdate(equity, cash decimal.Decimal) Event {
	return Event{Type: TypePortfolioUpdate, Timestamp: now(), PortfolioUpdate: PortfolioUpdate{TotalEquity: equity, Cash: cash}}
}

func NewSystem() Event {
	return Event{Type: TypeSystem, Timestamp: now()}
}
