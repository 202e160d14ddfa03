package orchestrator

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradecore/engine/internal/config"
	"github.com/tradecore/engine/internal/events"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func backtestConfig(t *testing.T, csv string) config.Config {
	t.Helper()

	dir := t.TempDir()
	dataFile := filepath.Join(dir, "data.csv")
	if err := os.WriteFile(dataFile, []byte(csv), 0o600); err != nil {
		t.Fatalf("write data file: %v", err)
	}

	return config.Config{
		RunMode:        config.ModeBacktest,
		InitialCapital: 100000,
		Data:           config.DataConfig{Symbol: "BTCUSDT", DataFile: dataFile},
		Execution:      config.ExecutionConfig{CommissionPct: 0.001, SlippagePct: 0.0005},
		Risk: config.RiskConfig{
			RiskPerTradePct: 0.20,
			MinOrderQty:     0.001,
			MinNotional:     10.0,
		},
		Analytics: config.AnalyticsConfig{CalculateSharpe: true, CalculateMaxDrawdown: true},
		Strategies: []config.StrategyConfig{
			{Name: "momentum", Symbol: "BTCUSDT"},
		},
		Report: config.ReportConfig{OutputDir: filepath.Join(dir, "reports")},
	}
}

func TestBacktestEndToEnd(t *testing.T) {
	t.Parallel()

	cfg := backtestConfig(t, "timestamp,open,high,low,close,volume\n"+
		"1,99,101,98,100.0,5\n"+
		"2,100,102,99,101.0,6\n"+
		"3,101,103,100,102.0,7\n")

	o, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}

	var fills int
	o.Bus().Subscribe(events.TypeFill, func(events.Event) { fills++ })

	r, err := o.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if fills == 0 {
		t.Error("expected at least one fill from rising ticks")
	}
	// Commissions were paid, so cash must be below initial capital.
	if !o.portfolio.Cash().LessThan(decimal.NewFromInt(100000)) {
		t.Errorf("cash = %s, want < 100000 after buys", o.portfolio.Cash())
	}
	if r.InitialEquity != 100000 {
		t.Errorf("report initial equity = %v, want 100000", r.InitialEquity)
	}

	// The run archived exactly one report file.
	entries, err := os.ReadDir(cfg.Report.OutputDir)
	if err != nil {
		t.Fatalf("read report dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 archived report, got %d", len(entries))
	}
}

func TestDoneClosedByTerminalEvent(t *testing.T) {
	t.Parallel()

	cfg := backtestConfig(t, "timestamp,open,high,low,close,volume\n1,99,101,98,100.0,5\n")

	o, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	if err := o.StartRun(); err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case <-o.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("done not closed after end of stream")
	}

	if err := o.StopRun(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestStartTwiceRejected(t *testing.T) {
	t.Parallel()

	cfg := backtestConfig(t, "timestamp,open,high,low,close,volume\n1,99,101,98,100.0,5\n")

	o, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	if err := o.StartRun(); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := o.StartRun(); err == nil {
		t.Error("second start should be rejected")
	}

	<-o.Done()
	if err := o.StopRun(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestUnsupportedRunModeRejected(t *testing.T) {
	t.Parallel()

	cfg := backtestConfig(t, "timestamp,open,high,low,close,volume\n")
	cfg.RunMode = config.ModeOptimize

	if _, err := New(cfg, testLogger()); err == nil {
		t.Error("OPTIMIZATION mode should be rejected by the core orchestrator")
	}
}
