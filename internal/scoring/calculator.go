// Package scoring computes per-question opportunity, scored answers and
// normalized rollups over the content tree.
package scoring

import (
	"github.com/greenlattice/esgbench/internal/config"
	"github.com/greenlattice/esgbench/internal/content"
	"github.com/greenlattice/esgbench/internal/models"
	"github.com/greenlattice/esgbench/internal/paths"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Calculator is the pluggable part of the scoring pipeline. Variants
// differ in how intrinsic worth is condensed into a single average value
// and in the headers they expose for export.
type Calculator interface {
	Name() string
	AvgValue(iv models.IntrinsicValues) float64
	IntrinsicValueHeaders() []string
}

// DefaultCalculator averages all four intrinsic value components.
type DefaultCalculator struct{}

func (DefaultCalculator) Name() string { return "default" }

func (DefaultCalculator) AvgValue(iv models.IntrinsicValues) float64 {
	return (iv.Environmental + iv.Business + iv.Profitability + iv.ImplementationEase) / 4
}

func (DefaultCalculator) IntrinsicValueHeaders() []string {
	return []string{"environmental", "business", "profitability", "implementation_ease"}
}

// SustainabilityCalculator weighs the environmental component double,
// matching the sustainability segments where business upside is secondary.
type SustainabilityCalculator struct{}

func (SustainabilityCalculator) Name() string { return "sustainability" }

func (SustainabilityCalculator) AvgValue(iv models.IntrinsicValues) float64 {
	return (2*iv.Environmental + iv.Business + iv.Profitability + iv.ImplementationEase) / 5
}

func (SustainabilityCalculator) IntrinsicValueHeaders() []string {
	return []string{"environmental", "implementation_ease", "business", "profitability"}
}

// Engine drives the scoring pipeline. The calculator registry, loaded at
// startup, selects the calculator by segment prefix (longest match wins).
type Engine struct {
	db      *gorm.DB
	cfg     *config.ScoringConfig
	content *content.Store
	log     *zap.Logger
}

// NewEngine creates a scoring engine.
func NewEngine(db *gorm.DB, cfg *config.ScoringConfig, store *content.Store, log *zap.Logger) *Engine {
	return &Engine{db: db, cfg: cfg, content: store, log: log}
}

// CalculatorFor resolves the calculator configured for a segment prefix.
func (e *Engine) CalculatorFor(prefix string) Calculator {
	kind := "default"
	longest := -1
	for _, rule := range e.cfg.Calculators {
		if rule.Prefix == "" && longest < 0 {
			kind = rule.Kind
			longest = 0
			continue
		}
		if rule.Prefix != "" && paths.HasPrefix(prefix, rule.Prefix) && len(rule.Prefix) > longest {
			kind = rule.Kind
			longest = len(rule.Prefix)
		}
	}
	if kind == "sustainability" {
		return SustainabilityCalculator{}
	}
	return DefaultCalculator{}
}

// Config exposes the scoring configuration to collaborating services.
func (e *Engine) Config() *config.ScoringConfig {
	return e.cfg
}

// WithDB rebinds the engine to another handle, typically a transaction.
func (e *Engine) WithDB(db *gorm.DB) *Engine {
	clone := *e
	clone.db = db
	clone.content = e.content.WithDB(db)
	return &clone
}

// Content exposes the bound content store.
func (e *Engine) Content() *content.Store {
	return e.content
}
