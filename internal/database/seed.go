package database

import (
	"fmt"

	"github.com/greenlattice/esgbench/data"
	"github.com/greenlattice/esgbench/internal/models"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

type seedChoice struct {
	Slug string `yaml:"slug"`
	Text string `yaml:"text"`
	Rank int    `yaml:"rank"`
}

type seedUnit struct {
	Slug    string       `yaml:"slug"`
	Title   string       `yaml:"title"`
	System  string       `yaml:"system"`
	Choices []seedChoice `yaml:"choices"`
}

type seedEquivalence struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
}

type seedFile struct {
	Units        []seedUnit        `yaml:"units"`
	Equivalences []seedEquivalence `yaml:"equivalences"`
}

// Seed ensures the fixed unit vocabulary exists. Idempotent: existing
// units and choices are left untouched.
func Seed(db *gorm.DB) error {
	var seed seedFile
	if err := yaml.Unmarshal([]byte(data.SeedUnits), &seed); err != nil {
		return fmt.Errorf("unit seed: %w", err)
	}

	unitIDs := make(map[string]uint64, len(seed.Units))
	for _, su := range seed.Units {
		unit := models.Unit{Slug: su.Slug, Title: su.Title, System: su.System}
		if err := db.Where("slug = ?", su.Slug).FirstOrCreate(&unit).Error; err != nil {
			return err
		}
		unitIDs[su.Slug] = unit.UnitID

		for _, sc := range su.Choices {
			choice := models.Choice{
				UnitID: unit.UnitID,
				Slug:   sc.Slug,
				Text:   sc.Text,
				Rank:   sc.Rank,
			}
			if err := db.Where("unit_id = ? AND slug = ?", unit.UnitID, sc.Slug).
				FirstOrCreate(&choice).Error; err != nil {
				return err
			}
		}
	}

	for _, eq := range seed.Equivalences {
		sourceID, ok := unitIDs[eq.Source]
		if !ok {
			return fmt.Errorf("unit seed: unknown equivalence source %q", eq.Source)
		}
		targetID, ok := unitIDs[eq.Target]
		if !ok {
			return fmt.Errorf("unit seed: unknown equivalence target %q", eq.Target)
		}
		equiv := models.UnitEquivalence{SourceID: sourceID, TargetID: targetID}
		if err := db.Where("source_id = ? AND target_id = ?", sourceID, targetID).
			FirstOrCreate(&equiv).Error; err != nil {
			return err
		}
	}

	return nil
}
