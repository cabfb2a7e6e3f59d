// data.go
//
// Multi-tenant ESG assessment and benchmarking platform core
// Copyright (c) 2026 Greenlattice <dev@greenlattice.io>
//
// This file is part of esgbench.
// esgbench is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// esgbench is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with esgbench.
// If not, see <https://www.gnu.org/licenses/>.

// Package helpers builds test data for the integration suite.
package helpers

import (
	"testing"
	"time"

	"github.com/greenlattice/esgbench/internal/answers"
	"github.com/greenlattice/esgbench/internal/content"
	"github.com/greenlattice/esgbench/internal/models"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CampaignFixture is a minimal importable campaign: one scorecard segment
// with two assessment questions.
type CampaignFixture struct {
	Campaign   models.Campaign
	Assessment models.Unit
	Reduces    models.Question
	Tracks     models.Question
}

// CreateTestAccount creates an account.
func CreateTestAccount(t *testing.T, db *gorm.DB, slug, kind string) models.Account {
	account := models.Account{Slug: slug, Name: slug, Kind: kind}
	if err := db.Create(&account).Error; err != nil {
		t.Fatalf("Failed to create account %s: %v", slug, err)
	}
	return account
}

// CreateTestCampaign builds the fixture campaign with its content subtree.
func CreateTestCampaign(t *testing.T, db *gorm.DB, slug string) *CampaignFixture {
	fixture := &CampaignFixture{}
	if err := db.Where("slug = ?", models.UnitAssessment).First(&fixture.Assessment).Error; err != nil {
		t.Fatalf("Failed to load assessment unit: %v", err)
	}

	fixture.Campaign = models.Campaign{Slug: slug, Title: slug, MandatorySegment: "/environment"}
	if err := db.Create(&fixture.Campaign).Error; err != nil {
		t.Fatalf("Failed to create campaign: %v", err)
	}

	iv := `{"intrinsic_values":{"environmental":2,"business":2,"profitability":2,"implementation_ease":2}}`
	elements := map[string]*models.Element{
		"environment":               {Slug: "environment", Title: "Environment", Extra: datatypes.JSON(`{"pagebreak":true,"tags":["scorecard"]}`)},
		"energy":                    {Slug: "energy", Title: "Energy"},
		"reduces-consumption":       {Slug: "reduces-consumption", Title: "Reduces energy consumption", Extra: datatypes.JSON(iv)},
		"tracks-energy-consumption": {Slug: "tracks-energy-consumption", Title: "Tracks energy consumption", Extra: datatypes.JSON(iv)},
	}
	for _, el := range elements {
		if err := db.Where("slug = ?", el.Slug).FirstOrCreate(el).Error; err != nil {
			t.Fatalf("Failed to create element %s: %v", el.Slug, err)
		}
	}

	store := content.NewStore(db, zap.NewNop())
	for _, edge := range [][2]string{
		{"environment", "energy"},
		{"energy", "reduces-consumption"},
		{"energy", "tracks-energy-consumption"},
	} {
		var existing int64
		err := db.Model(&models.Relationship{}).
			Where("orig_id = ? AND dest_id = ?", elements[edge[0]].ElementID, elements[edge[1]].ElementID).
			Count(&existing).Error
		if err != nil {
			t.Fatalf("Failed to check edge %s -> %s: %v", edge[0], edge[1], err)
		}
		if existing > 0 {
			continue
		}
		if err := store.AddChild(edge[0], edge[1], nil); err != nil {
			t.Fatalf("Failed to link %s -> %s: %v", edge[0], edge[1], err)
		}
	}

	fixture.Reduces = createTestQuestion(t, db, fixture, "/environment/energy/reduces-consumption",
		elements["reduces-consumption"].ElementID, 0, true)
	fixture.Tracks = createTestQuestion(t, db, fixture, "/environment/energy/tracks-energy-consumption",
		elements["tracks-energy-consumption"].ElementID, 1, false)
	return fixture
}

func createTestQuestion(t *testing.T, db *gorm.DB, fixture *CampaignFixture, path string, contentID uint64, rank int, required bool) models.Question {
	question := models.Question{Path: path}
	err := db.Where("path = ?", path).
		Assign(models.Question{ContentID: contentID, DefaultUnitID: &fixture.Assessment.UnitID}).
		FirstOrCreate(&question).Error
	if err != nil {
		t.Fatalf("Failed to create question %s: %v", path, err)
	}
	enumerated := models.EnumeratedQuestion{
		CampaignID: fixture.Campaign.CampaignID,
		QuestionID: question.QuestionID,
		Rank:       rank,
		Required:   required,
	}
	if err := db.Create(&enumerated).Error; err != nil {
		t.Fatalf("Failed to enumerate question %s: %v", path, err)
	}
	return question
}

// AnswerAssessment records an assessment answer on a sample.
func AnswerAssessment(t *testing.T, db *gorm.DB, fixture *CampaignFixture, sampleID uint64, question models.Question, measured string) {
	_, err := answers.UpdateOrCreate(db, sampleID, question.QuestionID,
		fixture.Assessment.UnitID, measured, nil, time.Now(), "integration")
	if err != nil {
		t.Fatalf("Failed to answer %s: %v", question.Path, err)
	}
}
