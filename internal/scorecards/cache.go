// cache.go
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

// Package scorecards materializes and serves normalized rollups per
// (sample, reportable subtree).
package scorecards

import (
	"sort"
	"sync"

	"github.com/greenlattice/esgbench/internal/answers"
	"github.com/greenlattice/esgbench/internal/content"
	"github.com/greenlattice/esgbench/internal/models"
	"github.com/greenlattice/esgbench/internal/paths"
	"github.com/greenlattice/esgbench/internal/scoring"
	"github.com/greenlattice/esgbench/internal/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Service reads stored scorecards for frozen samples and computes them on
// the fly for active ones.
type Service struct {
	db     *gorm.DB
	engine *scoring.Engine
	log    *zap.Logger
}

// NewService creates a scorecard service.
func NewService(db *gorm.DB, engine *scoring.Engine, log *zap.Logger) *Service {
	return &Service{db: db, engine: engine, log: log}
}

// WithDB rebinds the service to another handle, typically a transaction.
func (s *Service) WithDB(db *gorm.DB) *Service {
	return &Service{db: db, engine: s.engine.WithDB(db), log: s.log}
}

// Get returns scorecard rows for the samples under prefix. Frozen samples
// read the materialized rows unless bypassCache is set; active samples are
// always computed live and never persisted here.
func (s *Service) Get(campaign *models.Campaign, prefix string, samples []models.Sample, bypassCache bool) ([]models.ScorecardCache, error) {
	var out []models.ScorecardCache
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(4)
	for _, sample := range samples {
		g.Go(func() error {
			var rows []models.ScorecardCache
			var err error
			if sample.IsFrozen && !bypassCache {
				rows, err = s.stored(sample.SampleID, prefix)
			} else {
				rows, err = s.Compute(sample, campaign, prefix, false)
			}
			if err != nil {
				return err
			}
			mu.Lock()
			out = append(out, rows...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SampleID != out[j].SampleID {
			return out[i].SampleID < out[j].SampleID
		}
		return out[i].Path < out[j].Path
	})
	return out, nil
}

func (s *Service) stored(sampleID uint64, prefix string) ([]models.ScorecardCache, error) {
	query := s.db.Where("sample_id = ?", sampleID)
	if prefix != "" {
		query = query.Where("path = ? OR path LIKE ?", prefix, prefix+paths.Separator+"%")
	}
	var rows []models.ScorecardCache
	if err := query.Order("path").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Compute evaluates the sample's rollups under prefix and renders the
// scorecard-tagged subtrees as cache rows, without persisting them.
func (s *Service) Compute(sample models.Sample, campaign *models.Campaign, prefix string, force bool) ([]models.ScorecardCache, error) {
	rollups, recorded, err := s.rollups(sample, campaign, prefix, force)
	if err != nil {
		return nil, err
	}
	flags := scoring.Highlights(s.engine.Config().Highlights, recorded)
	var rows []models.ScorecardCache
	for _, rollup := range rollups {
		reportable := scoring.PruneToScorecards(rollup)
		if reportable == nil {
			continue
		}
		reportable.Walk(func(node *scoring.Rollup) {
			if !node.Scorecard {
				return
			}
			rows = append(rows, s.row(sample.SampleID, node, flags))
		})
	}
	return rows, nil
}

// Rollup computes the full (unpruned) rollup tree of the single segment
// under prefix, or nil when no questions are in scope.
func (s *Service) Rollup(sample models.Sample, campaign *models.Campaign, prefix string, force bool) (*scoring.Rollup, error) {
	rollups, _, err := s.rollups(sample, campaign, prefix, force)
	if err != nil || len(rollups) == 0 {
		return nil, err
	}
	return rollups[0], nil
}

// rollups builds one rollup per segment root in scope.
func (s *Service) rollups(sample models.Sample, campaign *models.Campaign, prefix string, force bool) ([]*scoring.Rollup, []models.Answer, error) {
	store := s.engine.Content()
	questions, err := store.CampaignQuestions(campaign.CampaignID, prefix)
	if err != nil {
		return nil, nil, err
	}
	if len(questions) == 0 {
		return nil, nil, nil
	}

	peers, err := s.engine.PeerStatsByQuestion(campaign.CampaignID, prefix, []uint64{sample.AccountID})
	if err != nil {
		return nil, nil, err
	}
	scores := s.engine.QuestionScores(questions, prefix, peers)
	scored, err := s.engine.ScoredAnswers(sample.SampleID, questions, scores, prefix)
	if err != nil {
		return nil, nil, err
	}
	byPath := make(map[string]scoring.ScoredAnswer, len(scored))
	for _, sa := range scored {
		byPath[sa.Path] = sa
	}

	planned, err := s.plannedPaths(sample, prefix)
	if err != nil {
		return nil, nil, err
	}

	var out []*scoring.Rollup
	for _, slug := range segmentSlugs(questions) {
		root, err := store.ElementBySlug(slug)
		if err != nil {
			return nil, nil, err
		}
		scope := prefix
		if scope == "" {
			scope = paths.Join(slug)
		}
		trees, err := store.BuildContentTree([]models.Element{*root}, scope, nil)
		if err != nil {
			return nil, nil, err
		}
		for _, tree := range trees {
			out = append(out, scoring.PopulateRollup(tree, byPath, planned, force))
		}
	}

	recorded, err := answers.List(s.db, sample.SampleID, prefix, nil)
	if err != nil {
		return nil, nil, err
	}
	return out, recorded, nil
}

// plannedPaths collects question paths answered on the account's planned
// sample for the same campaign.
func (s *Service) plannedPaths(sample models.Sample, prefix string) (map[string]bool, error) {
	var siblings []models.Sample
	if err := s.db.
		Where("account_id = ? AND campaign_id = ? AND is_frozen = ?", sample.AccountID, sample.CampaignID, false).
		Find(&siblings).Error; err != nil {
		return nil, err
	}
	planned := make(map[string]bool)
	for _, sibling := range siblings {
		if !sibling.IsPlanned() {
			continue
		}
		recorded, err := answers.List(s.db, sibling.SampleID, prefix, nil)
		if err != nil {
			return nil, err
		}
		for _, answer := range recorded {
			planned[answer.Question.Path] = true
		}
	}
	return planned, nil
}

func (s *Service) row(sampleID uint64, node *scoring.Rollup, flags map[string]bool) models.ScorecardCache {
	return models.ScorecardCache{
		SampleID:        sampleID,
		Path:            node.Path,
		NormalizedScore: node.NormalizedScore,
		Numerator:       node.Numerator,
		Denominator:     node.Denominator,
		NbAnswers:       node.NbAnswers,
		NbQuestions:     node.NbQuestions,
		NbNAAnswers:     node.NbNAAnswers,

		ReportingPublicly:          flags["reporting_publicly"],
		ReportingFines:             flags["reporting_fines"],
		ReportingEnergyConsumption: flags["reporting_energy_consumption"],
		ReportingGHGGenerated:      flags["reporting_ghg_generated"],
		ReportingWaterConsumption:  flags["reporting_water_consumption"],
		ReportingWasteGenerated:    flags["reporting_waste_generated"],
		ReportingEnergyTarget:      flags["reporting_energy_target"],
		ReportingGHGTarget:         flags["reporting_ghg_target"],
		ReportingWaterTarget:       flags["reporting_water_target"],
		ReportingWasteTarget:       flags["reporting_waste_target"],

		NbPlannedImprovements: node.NbPlannedImprovements,
	}
}

// Populate materializes the rows for a freshly frozen sample. Rows are
// read-only once written; re-populating an already cached sample fails.
func (s *Service) Populate(sample models.Sample, campaign *models.Campaign, prefix string) error {
	var existing int64
	if err := s.db.Model(&models.ScorecardCache{}).
		Where("sample_id = ?", sample.SampleID).
		Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		return types.E(types.KindConflict, "scorecards already populated for sample %d", sample.SampleID)
	}
	rows, err := s.Compute(sample, campaign, prefix, false)
	if err != nil {
		return err
	}
	for i := range rows {
		if err := s.db.Create(&rows[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

// TopNormalizedScore returns the headline score of a frozen sample: the
// campaign's mandatory segment when one is configured, otherwise the
// maximum across the sample's segments.
func (s *Service) TopNormalizedScore(sample models.Sample, campaign *models.Campaign) (*int, error) {
	rows, err := s.stored(sample.SampleID, "")
	if err != nil {
		return nil, err
	}
	if campaign.MandatorySegment != "" {
		for _, row := range rows {
			if row.Path == campaign.MandatorySegment {
				return row.NormalizedScore, nil
			}
		}
		return nil, nil
	}
	var top *int
	for _, row := range rows {
		if row.NormalizedScore != nil && (top == nil || *row.NormalizedScore > *top) {
			top = row.NormalizedScore
		}
	}
	return top, nil
}

// segmentSlugs returns the distinct first path components of the
// questions, in rank order.
func segmentSlugs(questions []content.QuestionRow) []string {
	seen := make(map[string]bool)
	var out []string
	for _, q := range questions {
		parts := paths.Split(q.Question.Path)
		if len(parts) == 0 || seen[parts[0]] {
			continue
		}
		seen[parts[0]] = true
		out = append(out, parts[0])
	}
	return out
}
