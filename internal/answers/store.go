// store.go
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

// Package answers reads and writes measured values on samples. Writes are
// rejected on frozen samples; reads accept answers recorded in units
// declared equivalent to the expected one.
package answers

import (
	"time"

	"github.com/greenlattice/esgbench/internal/models"
	"github.com/greenlattice/esgbench/internal/paths"
	"github.com/greenlattice/esgbench/internal/types"
	"gorm.io/gorm"
	"gorm.io/hints"
)

// List returns the answers of a sample whose question path lies under
// prefix, excluding the given paths. Answers come back with Question and
// Unit preloaded, ordered by question path then unit slug.
func List(db *gorm.DB, sampleID uint64, prefix string, excludes []string) ([]models.Answer, error) {
	if prefix != "" {
		normalized, err := paths.Normalize(prefix)
		if err != nil {
			return nil, err
		}
		prefix = normalized
	}

	query := db.
		Clauses(hints.CommentBefore("select", "answer-list")).
		Joins("JOIN questions ON questions.question_id = answers.question_id").
		Preload("Question").
		Preload("Question.Content").
		Preload("Unit").
		Preload("Unit.Choices").
		Where("answers.sample_id = ?", sampleID)
	if prefix != "" {
		query = query.Where("questions.path = ? OR questions.path LIKE ?", prefix, prefix+paths.Separator+"%")
	}
	if len(excludes) > 0 {
		query = query.Where("questions.path NOT IN ?", excludes)
	}

	var out []models.Answer
	if err := query.Order("questions.path").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// EquivalentUnitIDs returns target plus every unit declared acceptable in
// its place.
func EquivalentUnitIDs(db *gorm.DB, targetUnitID uint64) ([]uint64, error) {
	var equivs []models.UnitEquivalence
	if err := db.Where("target_id = ?", targetUnitID).Find(&equivs).Error; err != nil {
		return nil, err
	}
	ids := []uint64{targetUnitID}
	for _, eq := range equivs {
		ids = append(ids, eq.SourceID)
	}
	return ids, nil
}

// HasAnswer reports whether the sample holds an answer for question in one
// of the given units.
func HasAnswer(db *gorm.DB, sampleID, questionID uint64, unitIDs []uint64) (bool, error) {
	var count int64
	err := db.Model(&models.Answer{}).
		Where("sample_id = ? AND question_id = ? AND unit_id IN ?", sampleID, questionID, unitIDs).
		Count(&count).Error
	return count > 0, err
}

// UpdateOrCreate upserts the (sample, question, unit) answer. Writes to a
// frozen sample fail; the points unit is system-generated and never
// accepted from user input.
func UpdateOrCreate(db *gorm.DB, sampleID, questionID, unitID uint64, measured string, denominator *float64, createdAt time.Time, collectedBy string) (*models.Answer, error) {
	var out *models.Answer
	err := db.Transaction(func(tx *gorm.DB) error {
		var sample models.Sample
		if err := tx.First(&sample, sampleID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return types.E(types.KindNotFound, "sample %d not found", sampleID)
			}
			return err
		}
		if sample.IsFrozen {
			return types.E(types.KindFrozenSample, "sample %d is frozen", sampleID)
		}

		var question models.Question
		if err := tx.Preload("DefaultUnit").First(&question, questionID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return types.E(types.KindNotFound, "question %d not found", questionID)
			}
			return err
		}

		var unit models.Unit
		if err := tx.Preload("Choices").First(&unit, unitID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return types.E(types.KindValidation, "unknown unit %d", unitID)
			}
			return err
		}
		if unit.Slug == models.UnitPoints {
			return types.E(types.KindValidation, "points answers are system-generated only")
		}
		if err := validateUnit(tx, &question, &unit); err != nil {
			return err
		}
		if err := validateMeasured(&unit, measured); err != nil {
			return err
		}

		answer := models.Answer{
			SampleID:   sampleID,
			QuestionID: questionID,
			UnitID:     unitID,
		}
		if err := tx.Where("sample_id = ? AND question_id = ? AND unit_id = ?", sampleID, questionID, unitID).
			Assign(models.Answer{
				Measured:    measured,
				Denominator: denominator,
				CreatedAt:   createdAt,
				CollectedBy: collectedBy,
			}).
			FirstOrCreate(&answer).Error; err != nil {
			return err
		}
		out = &answer
		return nil
	})
	return out, err
}

// validateUnit accepts the question's default unit, any other unit when no
// default is declared, and for standard or imperial defaults any unit
// declared equivalent.
func validateUnit(tx *gorm.DB, question *models.Question, unit *models.Unit) error {
	def := question.DefaultUnit
	if def == nil || def.UnitID == unit.UnitID {
		return nil
	}
	// Secondary vocabularies (comments, score output) are always allowed
	// alongside the default unit.
	if unit.Slug == models.UnitFreetext {
		return nil
	}
	if def.System == models.UnitSystemStandard || def.System == models.UnitSystemImperial {
		equivalents, err := EquivalentUnitIDs(tx, def.UnitID)
		if err != nil {
			return err
		}
		for _, id := range equivalents {
			if id == unit.UnitID {
				return nil
			}
		}
	}
	return types.E(types.KindValidation, "unit %q not accepted for question %q", unit.Slug, question.Path)
}

func validateMeasured(unit *models.Unit, measured string) error {
	switch unit.System {
	case models.UnitSystemEnum, models.UnitSystemDatetime:
		if len(unit.Choices) == 0 {
			return nil
		}
		for _, choice := range unit.Choices {
			if choice.Slug == measured {
				return nil
			}
		}
		return types.E(types.KindValidation, "measured %q is not a choice of unit %q", measured, unit.Slug)
	default:
		if measured == "" {
			return types.E(types.KindValidation, "empty measured value for unit %q", unit.Slug)
		}
		return nil
	}
}

// BulkCopy copies from's user answers under segmentPrefix onto to,
// excluding the given units, stamping createdAt and collectedBy. Used by
// the freeze protocol inside its transaction.
func BulkCopy(tx *gorm.DB, fromSampleID, toSampleID uint64, segmentPrefix string, excludeUnitIDs []uint64, createdAt time.Time, collectedBy string) (int, error) {
	source, err := List(tx, fromSampleID, segmentPrefix, nil)
	if err != nil {
		return 0, err
	}
	copied := 0
	for _, answer := range source {
		if containsID(excludeUnitIDs, answer.UnitID) {
			continue
		}
		clone := models.Answer{
			SampleID:    toSampleID,
			QuestionID:  answer.QuestionID,
			UnitID:      answer.UnitID,
			Measured:    answer.Measured,
			Denominator: answer.Denominator,
			CreatedAt:   createdAt,
			CollectedBy: collectedBy,
		}
		if err := tx.Create(&clone).Error; err != nil {
			return copied, err
		}
		copied++
	}
	return copied, nil
}

func containsID(ids []uint64, id uint64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
