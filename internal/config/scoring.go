package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Highlight predicates.
const (
	PredicateTopChoice = "top-choice"
	PredicateHasTarget = "has-target"
	PredicateAnswered  = "answered"
)

// CalculatorRule binds a score calculator implementation to a segment
// prefix. The longest matching prefix wins; an empty prefix is the default.
type CalculatorRule struct {
	Prefix string `yaml:"prefix"`
	Kind   string `yaml:"kind"` // default | sustainability
}

// HighlightRule derives one boolean reporting flag from answers to the
// listed question slug suffixes.
type HighlightRule struct {
	Flag      string   `yaml:"flag"`
	Suffixes  []string `yaml:"suffixes"`
	Predicate string   `yaml:"predicate"`
}

// ScoringConfig is the process-wide scoring configuration, loaded once at
// startup and passed to the core as an explicit constructor parameter.
type ScoringConfig struct {
	Broker          string           `yaml:"broker"`
	UnlockedBrokers []string         `yaml:"unlocked_brokers"`
	OptInTTLDays    int              `yaml:"opt_in_ttl_days"`
	Calculators     []CalculatorRule `yaml:"calculators"`
	Highlights      []HighlightRule  `yaml:"highlights"`
}

// LoadScoring reads the YAML scoring configuration, or returns the
// built-in defaults when path is empty.
func LoadScoring(path string) (*ScoringConfig, error) {
	cfg := DefaultScoring()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scoring config: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("scoring config %s: %w", path, err)
	}
	if cfg.OptInTTLDays <= 0 {
		cfg.OptInTTLDays = 365
	}
	return cfg, nil
}

// DefaultScoring returns the built-in scoring configuration.
func DefaultScoring() *ScoringConfig {
	return &ScoringConfig{
		OptInTTLDays: 365,
		Calculators: []CalculatorRule{
			{Prefix: "", Kind: "default"},
			{Prefix: "/environment", Kind: "sustainability"},
		},
		Highlights: []HighlightRule{
			{Flag: "reporting_publicly", Suffixes: []string{"reports-publicly"}, Predicate: PredicateTopChoice},
			{Flag: "reporting_fines", Suffixes: []string{"environmental-fines"}, Predicate: PredicateTopChoice},
			{Flag: "reporting_energy_consumption", Suffixes: []string{"tracks-energy-consumption"}, Predicate: PredicateTopChoice},
			{Flag: "reporting_ghg_generated", Suffixes: []string{"tracks-ghg-generated"}, Predicate: PredicateTopChoice},
			{Flag: "reporting_water_consumption", Suffixes: []string{"tracks-water-consumption"}, Predicate: PredicateTopChoice},
			{Flag: "reporting_waste_generated", Suffixes: []string{"tracks-waste-generated"}, Predicate: PredicateTopChoice},
			{Flag: "reporting_energy_target", Suffixes: []string{"energy-reduction-target"}, Predicate: PredicateHasTarget},
			{Flag: "reporting_ghg_target", Suffixes: []string{"ghg-reduction-target"}, Predicate: PredicateHasTarget},
			{Flag: "reporting_water_target", Suffixes: []string{"water-reduction-target"}, Predicate: PredicateHasTarget},
			{Flag: "reporting_waste_target", Suffixes: []string{"waste-reduction-target"}, Predicate: PredicateHasTarget},
		},
	}
}
