package risk

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/tradecore/engine/internal/config"
	"github.com/tradecore/engine/internal/eventbus"
	"github.com/tradecore/engine/internal/events"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		RiskPerTradePct: 0.02,
		MinOrderQty:     0.001,
		MinNotional:     10.0,
	}
}

type fixedOracle struct{ v float64 }

func (o fixedOracle) Confidence(string) float64 { return o.v }

// runGate feeds events through a live bus with the gate attached and
// returns every Order the gate emitted.
func runGate(t *testing.T, cfg config.RiskConfig, capital float64, oracle ConfidenceOracle, feed []events.Event) []events.Order {
	t.Helper()

	bus := eventbus.New(testLogger())
	g := NewGate(cfg, decimal.NewFromFloat(capital), oracle, bus, testLogger())
	if err := g.Start(); err != nil {
		t.Fatalf("gate start: %v", err)
	}

	var mu sync.Mutex
	var orders []events.Order
	bus.Subscribe(events.TypeOrder, func(e events.Event) {
		mu.Lock()
		orders = append(orders, e.Order)
		mu.Unlock()
	})

	bus.Start()
	for _, e := range feed {
		bus.Publish(e)
	}
	bus.Stop()

	mu.Lock()
	defer mu.Unlock()
	return orders
}

func TestSignalRejectedWithoutCachedPrice(t *testing.T) {
	t.Parallel()

	orders := runGate(t, testRiskConfig(), 100000, ConstantOracle{}, []events.Event{
		events.NewSignal("BTCUSDT", events.Buy),
	})
	if len(orders) != 0 {
		t.Fatalf("expected no orders before any price is cached, got %d", len(orders))
	}
}

func TestSizingFromEquityAndPrice(t *testing.T) {
	t.Parallel()

	orders := runGate(t, testRiskConfig(), 100000, ConstantOracle{}, []events.Event{
		events.NewMarket("BTCUSDT", decimal.NewFromInt(100)),
		events.NewSignal("BTCUSDT", events.Buy),
	})
	if len(orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(orders))
	}
	// 100000 * 0.02 / 100 = 20
	if !orders[0].Quantity.Equal(decimal.NewFromInt(20)) {
		t.Errorf("quantity = %s, want 20", orders[0].Quantity)
	}
	if !orders[0].MarketPrice.Equal(decimal.NewFromInt(100)) {
		t.Errorf("market price = %s, want 100", orders[0].MarketPrice)
	}
}

func TestPriceCachedFromOrderBookBestBid(t *testing.T) {
	t.Parallel()

	book := events.NewOrderBook("BTCUSDT", 0,
		[]events.PriceLevel{{Price: decimal.NewFromInt(99), Quantity: decimal.NewFromInt(1)}},
		[]events.PriceLevel{{Price: decimal.NewFromInt(101), Quantity: decimal.NewFromInt(1)}},
	)
	orders := runGate(t, testRiskConfig(), 100000, ConstantOracle{}, []events.Event{
		book,
		events.NewSignal("BTCUSDT", events.Sell),
	})
	if len(orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(orders))
	}
	if !orders[0].MarketPrice.Equal(decimal.NewFromInt(99)) {
		t.Errorf("order priced at %s, want best bid 99", orders[0].MarketPrice)
	}
}

func TestMinNotionalInflation(t *testing.T) {
	t.Parallel()

	cfg := testRiskConfig()
	cfg.RiskPerTradePct = 0.01

	// 100 * 0.01 / 100 = 0.01 qty, notional 1 < 10: inflate to exactly 10.
	orders := runGate(t, cfg, 100, ConstantOracle{}, []events.Event{
		events.NewMarket("BTCUSDT", decimal.NewFromInt(100)),
		events.NewSignal("BTCUSDT", events.Buy),
	})
	if len(orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(orders))
	}
	notional := orders[0].Quantity.Mul(orders[0].MarketPrice)
	if !notional.Equal(decimal.NewFromInt(10)) {
		t.Errorf("notional = %s, want exactly 10", notional)
	}
}

func TestMinQuantityFloor(t *testing.T) {
	t.Parallel()

	cfg := testRiskConfig()
	cfg.RiskPerTradePct = 0.01
	cfg.MinNotional = 0.01

	// 1 * 0.01 / 100 = 0.0001 qty, floored at 0.001.
	orders := runGate(t, cfg, 1, ConstantOracle{}, []events.Event{
		events.NewMarket("BTCUSDT", decimal.NewFromInt(100)),
		events.NewSignal("BTCUSDT", events.Buy),
	})
	if len(orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(orders))
	}
	if !orders[0].Quantity.Equal(decimal.NewFromFloat(0.001)) {
		t.Errorf("quantity = %s, want floor 0.001", orders[0].Quantity)
	}
}

func TestInsufficientCashRejected(t *testing.T) {
	t.Parallel()

	cfg := testRiskConfig()
	cfg.RiskPerTradePct = 1.0

	feed := []events.Event{
		events.NewMarket("BTCUSDT", decimal.NewFromInt(5)),
		events.NewSignal("BTCUSDT", events.Buy),
	}

	// Cash 9: inflated notional 10 exceeds cash, rejected.
	if orders := runGate(t, cfg, 9, ConstantOracle{}, feed); len(orders) != 0 {
		t.Errorf("expected rejection at cash 9, got %d orders", len(orders))
	}

	// Cash 10: notional exactly 10 passes.
	if orders := runGate(t, cfg, 10, ConstantOracle{}, feed); len(orders) != 1 {
		t.Errorf("expected 1 order at cash 10, got %d", len(orders))
	}
}

func TestDynamicSizingScalesByConfidence(t *testing.T) {
	t.Parallel()

	cfg := testRiskConfig()
	cfg.UseDynamicSizing = true

	orders := runGate(t, cfg, 100000, fixedOracle{v: 0.5}, []events.Event{
		events.NewMarket("BTCUSDT", decimal.NewFromInt(100)),
		events.NewSignal("BTCUSDT", events.Buy),
	})
	if len(orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(orders))
	}
	// 100000 * 0.02 * 0.5 / 100 = 10
	if !orders[0].Quantity.Equal(decimal.NewFromInt(10)) {
		t.Errorf("quantity = %s, want 10", orders[0].Quantity)
	}
}

func TestEquityTrackedFromPortfolioUpdate(t *testing.T) {
	t.Parallel()

	orders := runGate(t, testRiskConfig(), 100000, ConstantOracle{}, []events.Event{
		events.NewMarket("BTCUSDT", decimal.NewFromInt(100)),
		events.NewPortfolioUpdate(decimal.NewFromInt(50000), decimal.NewFromInt(50000)),
		events.NewSignal("BTCUSDT", events.Buy),
	})
	if len(orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(orders))
	}
	// 50000 * 0.02 / 100 = 10
	if !orders[0].Quantity.Equal(decimal.NewFromInt(10)) {
		t.Errorf("quantity = %s, want 10 after equity halved", orders[0].Quantity)
	}
}
