package ingest

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
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

func writeDataFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write data file: %v", err)
	}
	return path
}

// replayFile runs a full replay through a live bus and returns everything
// a subscriber observed, in dispatch order.
func replayFile(t *testing.T, content string) []events.Event {
	t.Helper()

	bus := eventbus.New(testLogger())
	var mu sync.Mutex
	var seen []events.Event
	record := func(e events.Event) {
		mu.Lock()
		seen = append(seen, e)
		mu.Unlock()
	}
	bus.Subscribe(events.TypeMarket, record)
	bus.Subscribe(events.TypeOrderBook, record)

	done := make(chan struct{})
	bus.Subscribe(events.TypeSystem, func(e events.Event) {
		record(e)
		close(done)
	})

	h := NewHistorical(config.DataConfig{
		Symbol:   "BTCUSDT",
		DataFile: writeDataFile(t, content),
	}, bus, testLogger())

	bus.Start()
	if err := h.Start(); err != nil {
		t.Fatalf("ingester start: %v", err)
	}
	<-done
	if err := h.Stop(); err != nil {
		t.Fatalf("ingester stop: %v", err)
	}
	bus.Stop()

	mu.Lock()
	defer mu.Unlock()
	return seen
}

func TestReplayMarketData(t *testing.T) {
	t.Parallel()

	seen := replayFile(t, "timestamp,open,high,low,close,volume\n"+
		"1,99,101,98,100.0,5\n"+
		"2,100,102,99,101.0,6\n"+
		"3,101,103,100,102.0,7\n")

	if len(seen) != 4 {
		t.Fatalf("expected 3 market events + system, got %d events", len(seen))
	}
	wantCloses := []float64{100.0, 101.0, 102.0}
	for i, want := range wantCloses {
		if seen[i].Type != events.TypeMarket {
			t.Fatalf("event %d type = %s, want MARKET", i, seen[i].Type)
		}
		if !seen[i].Market.Price.Equal(decimal.NewFromFloat(want)) {
			t.Errorf("tick %d close = %s, want %v", i, seen[i].Market.Price, want)
		}
	}
	if seen[3].Type != events.TypeSystem {
		t.Errorf("last event type = %s, want SYSTEM after EOF", seen[3].Type)
	}
}

func TestReplayOrderBookData(t *testing.T) {
	t.Parallel()

	seen := replayFile(t, "timestamp,bids,asks\n"+
		`1700000000,"[[100.5, 2.0], [100.0, 3.0]]","[[101.0, 1.5]]"`+"\n")

	if len(seen) != 2 {
		t.Fatalf("expected 1 book event + system, got %d events", len(seen))
	}
	ob := seen[0].OrderBook
	if ob.Timestamp != 1700000000 {
		t.Errorf("timestamp = %d, want 1700000000", ob.Timestamp)
	}
	if len(ob.Bids) != 2 || len(ob.Asks) != 1 {
		t.Fatalf("book sides = %d/%d, want 2/1", len(ob.Bids), len(ob.Asks))
	}
	if !ob.Bids[0].Price.Equal(decimal.NewFromFloat(100.5)) {
		t.Errorf("best bid = %s, want 100.5", ob.Bids[0].Price)
	}
	if !ob.Asks[0].Quantity.Equal(decimal.NewFromFloat(1.5)) {
		t.Errorf("ask quantity = %s, want 1.5", ob.Asks[0].Quantity)
	}
}

func TestReplaySkipsMalformedRecords(t *testing.T) {
	t.Parallel()

	seen := replayFile(t, "timestamp,open,high,low,close,volume\n"+
		"1,99,101,98,100.0,5\n"+
		"2,100,102,99,not-a-price,6\n"+
		"3,oops\n"+
		"4,101,103,100,102.0,7\n")

	var markets int
	for _, e := range seen {
		if e.Type == events.TypeMarket {
			markets++
		}
	}
	if markets != 2 {
		t.Errorf("expected 2 good ticks, got %d", markets)
	}
	if seen[len(seen)-1].Type != events.TypeSystem {
		t.Error("replay must still reach the terminal SYSTEM event")
	}
}

func TestStartFailsOnMissingFile(t *testing.T) {
	t.Parallel()

	bus := eventbus.New(testLogger())
	h := NewHistorical(config.DataConfig{
		Symbol:   "BTCUSDT",
		DataFile: filepath.Join(t.TempDir(), "nope.csv"),
	}, bus, testLogger())

	if err := h.Start(); err == nil {
		t.Fatal("expected error for missing data file")
	}
}
