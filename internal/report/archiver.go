// Package report archives the final analytics report as a JSON file.
//
// Writes use atomic file replacement (write to .tmp, then rename) to
// prevent corruption from partial writes. The archive is write-only: the
// engine never reads it back, it exists for offline inspection after a
// run.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradecore/engine/internal/portfolio"
)

// Archive is the document written at the end of a run.
type Archive struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Report      portfolio.Report  `json:"report"`
	EquityCurve []decimal.Decimal `json:"equity_curve"`
	Trades      []portfolio.Trade `json:"trades"`
}

// Archiver writes run reports into a designated directory.
type Archiver struct {
	dir string
	mu  sync.Mutex // serializes file operations
}

// NewArchiver creates an archiver backed by the given directory.
func NewArchiver(dir string) (*Archiver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	return &Archiver{dir: dir}, nil
}

// Write atomically persists a run's report. It writes to a .tmp file
// first, then renames over the target so the file is never left in a
// partial state.
func (a *Archiver) Write(doc Archive) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}

	name := fmt.Sprintf("report_%s.json", doc.GeneratedAt.UTC().Format("20060102T150405"))
	path := filepath.Join(a.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("rename report: %w", err)
	}
	return path, nil
}
