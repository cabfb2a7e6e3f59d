// csv.go
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

// Package importer loads campaign content from tabular files. The sheet
// layout: row 1 carries the campaign title, row 2 the column headers with
// segment names from column 4 on, every following row is a heading (the
// level_unit column holds an integer depth) or a practice (it holds a unit
// slug). A non-empty segment cell includes the row in that segment; the
// value "required" additionally marks the question mandatory.
package importer

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/greenlattice/esgbench/internal/models"
	"github.com/greenlattice/esgbench/internal/paths"
	"github.com/greenlattice/esgbench/internal/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Columns before the segment columns begin.
const (
	colSlug      = 0
	colTitle     = 1
	colLevelUnit = 2
	segmentStart = 3
)

// RequiredMark flags a question mandatory within a segment.
const RequiredMark = "required"

// Importer loads campaigns into the content store.
type Importer struct {
	db  *gorm.DB
	log *zap.Logger
}

// New creates an importer.
func New(db *gorm.DB, log *zap.Logger) *Importer {
	return &Importer{db: db, log: log}
}

// Result summarizes one import.
type Result struct {
	Campaign    *models.Campaign
	NbElements  int
	NbQuestions int
	Segments    []string
}

// ImportCSV reads the sheet and creates the campaign, its segments,
// headings, practice elements, questions and enumerations in one
// transaction. Re-importing an existing campaign slug fails.
func (im *Importer) ImportCSV(r io.Reader) (*Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, types.E(types.KindValidation, "malformed sheet: %v", err)
	}
	if len(records) < 2 {
		return nil, types.E(types.KindValidation, "sheet needs a title row and a header row")
	}

	title := strings.TrimSpace(records[0][0])
	if title == "" {
		return nil, types.E(types.KindValidation, "campaign title missing in row 1")
	}
	header := records[1]
	if len(header) <= segmentStart {
		return nil, types.E(types.KindValidation, "no segment columns in row 2")
	}
	segments := make([]string, 0, len(header)-segmentStart)
	for _, name := range header[segmentStart:] {
		segments = append(segments, Slugify(name))
	}

	result := &Result{Segments: segments}
	err = im.db.Transaction(func(tx *gorm.DB) error {
		campaign := models.Campaign{Slug: Slugify(title), Title: title}
		var existing int64
		if err := tx.Model(&models.Campaign{}).Where("slug = ?", campaign.Slug).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return types.E(types.KindConflict, "campaign %q already imported", campaign.Slug)
		}
		if err := tx.Create(&campaign).Error; err != nil {
			return err
		}
		result.Campaign = &campaign

		segmentIDs := make(map[string]uint64, len(segments))
		for _, slug := range segments {
			el, created, err := im.ensureElement(tx, slug, header[segmentStart+indexOf(segments, slug)])
			if err != nil {
				return err
			}
			if created {
				result.NbElements++
			}
			segmentIDs[slug] = el.ElementID
		}

		// One heading stack per segment; depth 1 sits directly under the
		// segment root.
		stacks := make(map[string][]string, len(segments))
		rank := 0
		for line, record := range records[2:] {
			if len(record) <= colLevelUnit || strings.TrimSpace(record[colSlug]) == "" {
				continue
			}
			slug := Slugify(record[colSlug])
			rowTitle := strings.TrimSpace(record[colTitle])
			levelUnit := strings.TrimSpace(record[colLevelUnit])

			if depth, err := strconv.Atoi(levelUnit); err == nil {
				if depth < 1 {
					return types.E(types.KindValidation, "row %d: heading depth %d", line+3, depth)
				}
				_, created, err := im.ensureElement(tx, slug, rowTitle)
				if err != nil {
					return err
				}
				if created {
					result.NbElements++
				}
				for _, segment := range includedSegments(record, segments) {
					stack := stacks[segment.slug]
					if depth-1 > len(stack) {
						return types.E(types.KindValidation, "row %d: heading depth %d skips a level", line+3, depth)
					}
					stacks[segment.slug] = append(stack[:depth-1], slug)
					if err := im.link(tx, parentSlug(segment.slug, stack[:depth-1]), slug, rank); err != nil {
						return err
					}
				}
				rank++
				continue
			}

			var unit models.Unit
			if err := tx.Where("slug = ?", levelUnit).First(&unit).Error; err != nil {
				if err == gorm.ErrRecordNotFound {
					return types.E(types.KindValidation, "row %d: unknown unit %q", line+3, levelUnit)
				}
				return err
			}
			el, created, err := im.ensureElement(tx, slug, rowTitle)
			if err != nil {
				return err
			}
			if created {
				result.NbElements++
			}

			for _, segment := range includedSegments(record, segments) {
				stack := stacks[segment.slug]
				if err := im.link(tx, parentSlug(segment.slug, stack), slug, rank); err != nil {
					return err
				}
				path := paths.Join(append(append([]string{segment.slug}, stack...), slug)...)
				// The same path may already exist from an earlier campaign
				// sharing this segment; reuse it.
				question := models.Question{Path: path}
				if err := tx.Where("path = ?", path).
					Assign(models.Question{ContentID: el.ElementID, DefaultUnitID: &unit.UnitID}).
					FirstOrCreate(&question).Error; err != nil {
					return err
				}
				enumerated := models.EnumeratedQuestion{
					CampaignID: campaign.CampaignID,
					QuestionID: question.QuestionID,
					Rank:       rank,
					Required:   segment.required,
				}
				if err := tx.Create(&enumerated).Error; err != nil {
					return err
				}
				result.NbQuestions++
			}
			rank++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	im.log.Info("campaign imported",
		zap.String("campaign", result.Campaign.Slug),
		zap.Int("questions", result.NbQuestions),
		zap.Strings("segments", result.Segments),
	)
	return result, nil
}

type segmentCell struct {
	slug     string
	required bool
}

func includedSegments(record []string, segments []string) []segmentCell {
	var out []segmentCell
	for i, slug := range segments {
		col := segmentStart + i
		if col >= len(record) {
			break
		}
		cell := strings.TrimSpace(strings.ToLower(record[col]))
		if cell == "" {
			continue
		}
		out = append(out, segmentCell{slug: slug, required: cell == RequiredMark})
	}
	return out
}

func parentSlug(segmentSlug string, stack []string) string {
	if len(stack) == 0 {
		return segmentSlug
	}
	return stack[len(stack)-1]
}

// ensureElement creates the element on first sight; rows shared across
// segments reuse it.
func (im *Importer) ensureElement(tx *gorm.DB, slug, title string) (*models.Element, bool, error) {
	var el models.Element
	err := tx.Where("slug = ?", slug).First(&el).Error
	if err == nil {
		return &el, false, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, false, err
	}
	el = models.Element{Slug: slug, Title: strings.TrimSpace(title)}
	if err := tx.Create(&el).Error; err != nil {
		return nil, false, err
	}
	return &el, true, nil
}

// link creates the parent -> child edge once; repeated inclusion keeps the
// first rank.
func (im *Importer) link(tx *gorm.DB, parentSlug, childSlug string, rank int) error {
	parent, _, err := im.ensureElement(tx, parentSlug, "")
	if err != nil {
		return err
	}
	child, _, err := im.ensureElement(tx, childSlug, "")
	if err != nil {
		return err
	}
	var existing int64
	if err := tx.Model(&models.Relationship{}).
		Where("orig_id = ? AND dest_id = ?", parent.ElementID, child.ElementID).
		Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		return nil
	}
	rel := models.Relationship{OrigID: parent.ElementID, DestID: child.ElementID, Rank: rank}
	return tx.Create(&rel).Error
}

// Slugify lowercases and dash-joins a display name.
func Slugify(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	dash := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func indexOf(list []string, value string) int {
	for i, v := range list {
		if v == value {
			return i
		}
	}
	return 0
}
