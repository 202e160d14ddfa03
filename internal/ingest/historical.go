// Package ingest produces the pipeline's market events: historical file
// replay for backtests, and a live depth-feed socket for live trading.
// An ingester runs on its own goroutine and is the only event producer
// outside the bus dispatcher.
package ingest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradecore/engine/internal/config"
	"github.com/tradecore/engine/internal/eventbus"
	"github.com/tradecore/engine/internal/events"
)

// recordDelay paces replay so a long file doesn't flood the bus queue.
const recordDelay = 100 * time.Microsecond

// Ingester is the producer contract the orchestrator manages.
type Ingester interface {
	Start() error
	Stop() error
}

// Historical replays a delimited file of market data or order book
// snapshots. On end of file it publishes the terminal System event exactly
// once. Malformed records are logged and skipped, never fatal.
type Historical struct {
	symbol string
	path   string
	bus    *eventbus.Bus
	logger *slog.Logger

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewHistorical creates a replay ingester for the configured data file.
func NewHistorical(cfg config.DataConfig, bus *eventbus.Bus, logger *slog.Logger) *Historical {
	return &Historical{
		symbol: cfg.Symbol,
		path:   cfg.DataFile,
		bus:    bus,
		logger: logger.With("component", "ingest_historical"),
		stop:   make(chan struct{}),
	}
}

// Start opens the data file and begins replay on its own goroutine. A
// missing or unreadable file is a configuration error and fails Start.
func (h *Historical) Start() error {
	f, err := os.Open(h.path)
	if err != nil {
		return fmt.Errorf("open data file: %w", err)
	}

	h.wg.Add(1)
	go h.replay(f)
	return nil
}

// Stop halts replay. Safe to call after EOF.
func (h *Historical) Stop() error {
	h.stopOnce.Do(func() { close(h.stop) })
	h.wg.Wait()
	return nil
}

func (h *Historical) replay(f *os.File) {
	defer h.wg.Done()
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	// First record is a header.
	if _, err := r.Read(); err != nil {
		h.logger.Error("read header", "error", err)
		h.bus.Publish(events.NewSystem())
		return
	}

	var published int
	for {
		select {
		case <-h.stop:
			h.logger.Info("replay stopped", "records", published)
			return
		default:
		}

		rec, err := r.Read()
		if err == io.EOF {
			h.logger.Info("replay complete", "records", published)
			h.bus.Publish(events.NewSystem())
			return
		}
		if err != nil {
			h.logger.Warn("skipping malformed record", "error", err)
			continue
		}

		if h.publishRecord(rec) {
			published++
		}
		time.Sleep(recordDelay)
	}
}

// publishRecord parses one record and publishes the corresponding event.
// Returns false for records it had to skip.
func (h *Historical) publishRecord(rec []string) bool {
	switch len(rec) {
	case 6:
		// timestamp,open,high,low,close,volume — only close is consumed.
		price, err := decimal.NewFromString(rec[4])
		if err != nil {
			h.logger.Warn("skipping record with bad close price", "value", rec[4], "error", err)
			return false
		}
		h.bus.Publish(events.NewMarket(h.symbol, price))
		return true

	case 3:
		// timestamp,bids,asks — bids/asks are JSON arrays of [price, qty].
		ts, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			h.logger.Warn("skipping book record with bad timestamp", "value", rec[0], "error", err)
			return false
		}
		bids, err := parseBookSide(rec[1])
		if err != nil {
			h.logger.Warn("skipping book record with bad bids", "error", err)
			return false
		}
		asks, err := parseBookSide(rec[2])
		if err != nil {
			h.logger.Warn("skipping book record with bad asks", "error", err)
			return false
		}
		h.bus.Publish(events.NewOrderBook(h.symbol, ts, bids, asks))
		return true

	default:
		h.logger.Warn("skipping record with unexpected field count", "fields", len(rec))
		return false
	}
}

// parseBookSide decodes a JSON array of [price, quantity] number pairs.
func parseBookSide(payload string) ([]events.PriceLevel, error) {
	var raw [][]float64
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, err
	}

	side := make([]events.PriceLevel, 0, len(raw))
	for _, pair := range raw {
		if len(pair) != 2 {
			return nil, fmt.Errorf("level has %d elements, want 2", len(pair))
		}
		side = append(side, events.PriceLevel{
			Price:    decimal.NewFromFloat(pair[0]),
			Quantity: decimal.NewFromFloat(pair[1]),
		})
	}
	return side, nil
}
