package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/greenlattice/esgbench/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultScoring(t *testing.T) {
	cfg := config.DefaultScoring()

	assert.Equal(t, 365, cfg.OptInTTLDays)
	assert.Empty(t, cfg.Broker)

	require.Len(t, cfg.Calculators, 2)
	assert.Equal(t, "default", cfg.Calculators[0].Kind)
	assert.Equal(t, "/environment", cfg.Calculators[1].Prefix)
	assert.Equal(t, "sustainability", cfg.Calculators[1].Kind)

	flags := make(map[string]string)
	for _, rule := range cfg.Highlights {
		flags[rule.Flag] = rule.Predicate
	}
	assert.Equal(t, config.PredicateTopChoice, flags["reporting_energy_consumption"])
	assert.Equal(t, config.PredicateHasTarget, flags["reporting_energy_target"])
}

func TestLoadScoringEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := config.LoadScoring("")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultScoring(), cfg)
}

func TestLoadScoringOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scoring.yaml")
	raw := `broker: lattice
unlocked_brokers:
  - partner-hub
opt_in_ttl_days: 30
calculators:
  - {prefix: "", kind: default}
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	cfg, err := config.LoadScoring(path)
	require.NoError(t, err)
	assert.Equal(t, "lattice", cfg.Broker)
	assert.Equal(t, []string{"partner-hub"}, cfg.UnlockedBrokers)
	assert.Equal(t, 30, cfg.OptInTTLDays)
	require.Len(t, cfg.Calculators, 1)
}

func TestLoadScoringMissingFile(t *testing.T) {
	_, err := config.LoadScoring("/nonexistent/scoring.yaml")
	require.Error(t, err)
}

func TestLoadScoringBadTTL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scoring.yaml")
	require.NoError(t, os.WriteFile(path, []byte("opt_in_ttl_days: -1\n"), 0o600))

	cfg, err := config.LoadScoring(path)
	require.NoError(t, err)
	assert.Equal(t, 365, cfg.OptInTTLDays)
}
