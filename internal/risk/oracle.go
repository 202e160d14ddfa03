package risk

import (
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/tradecore/engine/internal/config"
)

// ConfidenceOracle scores a prospective trade for a symbol in [0, 1].
// It is the sole integration point for learned models: the gate treats the
// score as opaque and multiplies it into the sized risk when dynamic sizing
// is enabled.
type ConfidenceOracle interface {
	Confidence(symbol string) float64
}

// ConstantOracle always returns full confidence. Used when no model path is
// configured.
type ConstantOracle struct{}

func (ConstantOracle) Confidence(string) float64 { return 1.0 }

// ModelOracle stands in for a real model backend. Scores are drawn
// uniformly from [0.5, 1.0) per call; a real backend would run inference
// against the loaded model instead.
type ModelOracle struct {
	rng *rand.Rand
}

func (o *ModelOracle) Confidence(string) float64 {
	return 0.5 + o.rng.Float64()*0.5
}

// NewOracle builds the oracle from config. An empty model path, or a path
// that os.Stat cannot resolve, yields a ConstantOracle; the file's contents
// are not read.
func NewOracle(cfg config.MLConfig, logger *slog.Logger) ConfidenceOracle {
	if cfg.ModelPath == "" {
		return ConstantOracle{}
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		logger.Warn("model path unreadable, using constant confidence",
			"path", cfg.ModelPath, "error", err)
		return ConstantOracle{}
	}
	logger.Info("loaded confidence model", "path", cfg.ModelPath)
	return &ModelOracle{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}
