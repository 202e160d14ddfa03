package execution

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

func runSimulator(t *testing.T, cfg config.ExecutionConfig, orders []events.Event) []events.Fill {
	t.Helper()

	bus := eventbus.New(testLogger())
	sim := NewSimulator(cfg, bus, testLogger())
	if err := sim.Start(); err != nil {
		t.Fatalf("simulator start: %v", err)
	}

	var mu sync.Mutex
	var fills []events.Fill
	bus.Subscribe(events.TypeFill, func(e events.Event) {
		mu.Lock()
		fills = append(fills, e.Fill)
		mu.Unlock()
	})

	bus.Start()
	for _, o := range orders {
		bus.Publish(o)
	}
	bus.Stop()

	mu.Lock()
	defer mu.Unlock()
	return fills
}

func TestBuySlipsUpward(t *testing.T) {
	t.Parallel()

	cfg := config.ExecutionConfig{CommissionPct: 0.001, SlippagePct: 0.0005}
	fills := runSimulator(t, cfg, []events.Event{
		events.NewOrder("BTCUSDT", events.Buy, decimal.NewFromInt(10), decimal.NewFromInt(100)),
	})
	if len(fills) != 1 {
		t.Fatalf("expected 1 fill, got %d", len(fills))
	}

	f := fills[0]
	if !f.FillPrice.Equal(decimal.NewFromFloat(100.05)) {
		t.Errorf("fill price = %s, want 100.05", f.FillPrice)
	}
	// 100.05 * 10 * 0.001 = 1.0005
	if !f.Commission.Equal(decimal.NewFromFloat(1.0005)) {
		t.Errorf("commission = %s, want 1.0005", f.Commission)
	}
}

func TestSellSlipsDownward(t *testing.T) {
	t.Parallel()

	cfg := config.ExecutionConfig{SlippagePct: 0.001}
	fills := runSimulator(t, cfg, []events.Event{
		events.NewOrder("BTCUSDT", events.Sell, decimal.NewFromInt(5), decimal.NewFromInt(200)),
	})
	if len(fills) != 1 {
		t.Fatalf("expected 1 fill, got %d", len(fills))
	}
	if !fills[0].FillPrice.Equal(decimal.NewFromFloat(199.8)) {
		t.Errorf("fill price = %s, want 199.8", fills[0].FillPrice)
	}
	if !fills[0].Commission.IsZero() {
		t.Errorf("commission = %s, want 0", fills[0].Commission)
	}
}

func TestQuantityPreservedNoPartialFills(t *testing.T) {
	t.Parallel()

	fills := runSimulator(t, config.ExecutionConfig{}, []events.Event{
		events.NewOrder("BTCUSDT", events.Buy, decimal.NewFromFloat(0.123), decimal.NewFromInt(100)),
		events.NewOrder("ETHUSDT", events.Sell, decimal.NewFromInt(7), decimal.NewFromInt(50)),
	})
	if len(fills) != 2 {
		t.Fatalf("expected every order filled, got %d fills", len(fills))
	}
	if !fills[0].Quantity.Equal(decimal.NewFromFloat(0.123)) {
		t.Errorf("fill quantity = %s, want 0.123", fills[0].Quantity)
	}
	if !fills[1].Quantity.Equal(decimal.NewFromInt(7)) {
		t.Errorf("fill quantity = %s, want 7", fills[1].Quantity)
	}
}
