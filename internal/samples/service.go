// service.go
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

// Package samples manages the sample lifecycle: working assessments,
// improvement plans, verifier notes and the freeze protocol that turns a
// working assessment into immutable per-segment responses.
package samples

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/greenlattice/esgbench/internal/answers"
	"github.com/greenlattice/esgbench/internal/content"
	"github.com/greenlattice/esgbench/internal/models"
	"github.com/greenlattice/esgbench/internal/notify"
	"github.com/greenlattice/esgbench/internal/paths"
	"github.com/greenlattice/esgbench/internal/scorecards"
	"github.com/greenlattice/esgbench/internal/scoring"
	"github.com/greenlattice/esgbench/internal/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service coordinates sample state transitions.
type Service struct {
	db       *gorm.DB
	content  *content.Store
	engine   *scoring.Engine
	cards    *scorecards.Service
	notifier notify.Notifier
	log      *zap.Logger
}

// New creates a sample service.
func New(db *gorm.DB, store *content.Store, engine *scoring.Engine, cards *scorecards.Service, notifier notify.Notifier, log *zap.Logger) *Service {
	return &Service{db: db, content: store, engine: engine, cards: cards, notifier: notifier, log: log}
}

// ByID returns the sample with the given ID.
func (s *Service) ByID(sampleID uint64) (*models.Sample, error) {
	var sample models.Sample
	if err := s.db.First(&sample, sampleID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, types.E(types.KindNotFound, "sample %d not found", sampleID)
		}
		return nil, err
	}
	return &sample, nil
}

// Active returns the account's working assessment for the campaign.
func (s *Service) Active(accountID, campaignID uint64) (*models.Sample, error) {
	var sample models.Sample
	err := s.db.Where("active_key = ?", *models.WorkingKey(accountID, campaignID)).First(&sample).Error
	if err == gorm.ErrRecordNotFound {
		return nil, types.E(types.KindNotFound, "no working assessment for account %d campaign %d", accountID, campaignID)
	}
	if err != nil {
		return nil, err
	}
	return &sample, nil
}

// EnsureActive returns the working assessment, creating it on first use.
// The unique active key makes concurrent first calls converge on one row.
func (s *Service) EnsureActive(accountID, campaignID uint64) (*models.Sample, error) {
	key := models.WorkingKey(accountID, campaignID)
	sample := models.Sample{
		AccountID:  accountID,
		CampaignID: campaignID,
		CreatedAt:  time.Now(),
		ActiveKey:  key,
	}
	err := s.db.Where("active_key = ?", *key).FirstOrCreate(&sample).Error
	if err != nil {
		return nil, err
	}
	return &sample, nil
}

// EnsurePlanned returns the account's improvement-plan sample for the
// campaign, creating it when none is open.
func (s *Service) EnsurePlanned(accountID, campaignID uint64) (*models.Sample, error) {
	var existing []models.Sample
	if err := s.db.
		Where("account_id = ? AND campaign_id = ? AND is_frozen = ?", accountID, campaignID, false).
		Find(&existing).Error; err != nil {
		return nil, err
	}
	for i := range existing {
		if existing[i].IsPlanned() {
			return &existing[i], nil
		}
	}
	extra, err := json.Marshal(models.SampleExtra{Tags: []string{models.TagPlanned}})
	if err != nil {
		return nil, err
	}
	sample := models.Sample{
		AccountID:  accountID,
		CampaignID: campaignID,
		CreatedAt:  time.Now(),
		Extra:      extra,
	}
	if err := s.db.Create(&sample).Error; err != nil {
		return nil, err
	}
	return &sample, nil
}

// Frozen returns the account's frozen samples for the campaign, newest
// first.
func (s *Service) Frozen(accountID, campaignID uint64) ([]models.Sample, error) {
	var out []models.Sample
	err := s.db.
		Where("account_id = ? AND campaign_id = ? AND is_frozen = ?", accountID, campaignID, true).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// LatestCompleted returns the account's most recent frozen non-planned
// sample for the campaign, or nil when none exists.
func (s *Service) LatestCompleted(accountID, campaignID uint64) (*models.Sample, error) {
	frozen, err := s.Frozen(accountID, campaignID)
	if err != nil {
		return nil, err
	}
	for i := range frozen {
		if !frozen[i].IsPlanned() {
			return &frozen[i], nil
		}
	}
	return nil, nil
}

// FreezeOptions parameterizes a freeze.
type FreezeOptions struct {
	// SegmentPath restricts the freeze to one segment; empty freezes every
	// segment the sample has answers in.
	SegmentPath string
	CollectedBy string
	// At stamps the frozen output; zero means now.
	At    time.Time
	Force bool
}

// Freeze turns the sample's answered segments into immutable per-segment
// responses: answers are copied, points answers derived, scorecards
// materialized, and the working sample's clock advanced past its output.
// The whole protocol runs in one transaction; the frozen event is emitted
// only after commit.
func (s *Service) Freeze(sampleID uint64, opts FreezeOptions) ([]models.Sample, error) {
	at := opts.At
	if at.IsZero() {
		at = time.Now()
	}
	if opts.SegmentPath != "" {
		normalized, err := paths.Normalize(opts.SegmentPath)
		if err != nil {
			return nil, err
		}
		opts.SegmentPath = normalized
	}

	var frozen []models.Sample
	var event notify.SampleFrozenEvent
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var sample models.Sample
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&sample, sampleID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return types.E(types.KindNotFound, "sample %d not found", sampleID)
			}
			return err
		}
		if sample.IsFrozen {
			return types.E(types.KindAlreadyFrozen, "sample %d is already frozen", sampleID)
		}

		var campaign models.Campaign
		if err := tx.First(&campaign, sample.CampaignID).Error; err != nil {
			return err
		}

		store := s.content.WithDB(tx)
		inScope, err := s.answeredSections(tx, store, &sample, &campaign, opts.SegmentPath)
		if err != nil {
			return err
		}
		if len(inScope) == 0 {
			return types.E(types.KindNothingToFreeze, "sample %d has no answers to freeze", sampleID)
		}

		if err := s.checkRequired(tx, store, &sample, &campaign, inScope); err != nil {
			return err
		}

		if !opts.Force {
			dup, err := s.allDuplicates(tx, &sample, inScope)
			if err != nil {
				return err
			}
			if dup {
				return types.E(types.KindDuplicate, "sample %d matches the previously frozen answers", sampleID)
			}
		}

		var pointsUnit models.Unit
		if err := tx.Where("slug = ?", models.UnitPoints).First(&pointsUnit).Error; err != nil {
			return types.E(types.KindIntegrity, "points unit missing: %v", err)
		}

		engine := s.engine.WithDB(tx)
		cards := s.cards.WithDB(tx)

		for _, section := range inScope {
			clone := models.Sample{
				AccountID:  sample.AccountID,
				CampaignID: sample.CampaignID,
				CreatedAt:  at,
				IsFrozen:   true,
				Extra:      sample.Extra,
			}
			if err := tx.Create(&clone).Error; err != nil {
				return err
			}
			if _, err := answers.BulkCopy(tx, sample.SampleID, clone.SampleID, section,
				[]uint64{pointsUnit.UnitID}, at, opts.CollectedBy); err != nil {
				return err
			}

			questions, err := store.CampaignQuestions(campaign.CampaignID, section)
			if err != nil {
				return err
			}
			peers, err := engine.PeerStatsByQuestion(campaign.CampaignID, section, []uint64{sample.AccountID})
			if err != nil {
				return err
			}
			scores := engine.QuestionScores(questions, section, peers)
			scored, err := engine.ScoredAnswers(clone.SampleID, questions, scores, section)
			if err != nil {
				return err
			}
			for _, sa := range scored {
				if !sa.Answered || sa.Denominator == 0 {
					continue
				}
				den := sa.Denominator
				points := models.Answer{
					SampleID:    clone.SampleID,
					QuestionID:  sa.QuestionID,
					UnitID:      pointsUnit.UnitID,
					Measured:    strconv.FormatFloat(sa.Numerator, 'f', -1, 64),
					Denominator: &den,
					CreatedAt:   at,
					CollectedBy: opts.CollectedBy,
				}
				if err := tx.Create(&points).Error; err != nil {
					return err
				}
			}

			if err := cards.Populate(clone, &campaign, section); err != nil {
				return err
			}
			frozen = append(frozen, clone)
		}

		// The working sample must stay strictly newer than everything it
		// produced, so "latest frozen" and duplicate checks order cleanly.
		if err := tx.Model(&models.Sample{}).
			Where("sample_id = ?", sample.SampleID).
			Update("created_at", at.Add(time.Millisecond)).Error; err != nil {
			return err
		}

		event = notify.SampleFrozenEvent{
			AccountID:   sample.AccountID,
			CampaignID:  sample.CampaignID,
			SegmentPath: opts.SegmentPath,
			FrozenAt:    at,
		}
		for _, f := range frozen {
			event.SampleIDs = append(event.SampleIDs, f.SampleID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		if nerr := s.notifier.SampleFrozen(event); nerr != nil {
			s.log.Warn("sample_frozen notification failed", zap.Error(nerr))
		}
	}
	return frozen, nil
}

// answeredSections returns the campaign sections the sample has at least
// one answer in, restricted to segmentPath when given.
func (s *Service) answeredSections(tx *gorm.DB, store *content.Store, sample *models.Sample, campaign *models.Campaign, segmentPath string) ([]string, error) {
	sections, err := store.SectionsAvailable(campaign.CampaignID)
	if err != nil {
		return nil, err
	}
	var inScope []string
	for _, section := range sections {
		if segmentPath != "" && section != segmentPath {
			continue
		}
		recorded, err := answers.List(tx, sample.SampleID, section, nil)
		if err != nil {
			return nil, err
		}
		if len(recorded) > 0 {
			inScope = append(inScope, section)
		}
	}
	return inScope, nil
}

// checkRequired verifies every required question in the sections has an
// answer in its default unit or a declared equivalent.
func (s *Service) checkRequired(tx *gorm.DB, store *content.Store, sample *models.Sample, campaign *models.Campaign, sections []string) error {
	total, answered := 0, 0
	var missing []string
	for _, section := range sections {
		questions, err := store.CampaignQuestions(campaign.CampaignID, section)
		if err != nil {
			return err
		}
		for _, row := range questions {
			if !row.Required {
				continue
			}
			total++
			has, err := s.hasRequiredAnswer(tx, sample.SampleID, &row.Question)
			if err != nil {
				return err
			}
			if has {
				answered++
			} else {
				missing = append(missing, row.Question.Path)
			}
		}
	}
	if len(missing) > 0 {
		return &types.IncompleteRequiredError{
			NbRequiredAnswers:   answered,
			NbRequiredQuestions: total,
			Results:             missing,
		}
	}
	return nil
}

func (s *Service) hasRequiredAnswer(tx *gorm.DB, sampleID uint64, question *models.Question) (bool, error) {
	if question.DefaultUnitID == nil {
		var count int64
		err := tx.Model(&models.Answer{}).
			Where("sample_id = ? AND question_id = ?", sampleID, question.QuestionID).
			Count(&count).Error
		return count > 0, err
	}
	unitIDs, err := answers.EquivalentUnitIDs(tx, *question.DefaultUnitID)
	if err != nil {
		return false, err
	}
	return answers.HasAnswer(tx, sampleID, question.QuestionID, unitIDs)
}

// allDuplicates reports whether every in-scope section repeats, answer for
// answer, the latest earlier frozen sibling with the same extra bag.
func (s *Service) allDuplicates(tx *gorm.DB, sample *models.Sample, sections []string) (bool, error) {
	var siblings []models.Sample
	if err := tx.
		Where("account_id = ? AND campaign_id = ? AND is_frozen = ? AND sample_id <> ?",
			sample.AccountID, sample.CampaignID, true, sample.SampleID).
		Order("created_at DESC").
		Find(&siblings).Error; err != nil {
		return false, err
	}
	key := models.ExtraKey(sample.Extra)
	for _, section := range sections {
		dup, err := s.duplicateSection(tx, sample, siblings, key, section)
		if err != nil {
			return false, err
		}
		if !dup {
			return false, nil
		}
	}
	return true, nil
}

// duplicateSection compares the working answers under section with the
// latest frozen sibling covering that section.
func (s *Service) duplicateSection(tx *gorm.DB, sample *models.Sample, siblings []models.Sample, extraKey, section string) (bool, error) {
	for _, sibling := range siblings {
		if models.ExtraKey(sibling.Extra) != extraKey {
			continue
		}
		previous, err := answerSet(tx, sibling.SampleID, section)
		if err != nil {
			return false, err
		}
		if len(previous) == 0 {
			// Frozen output of another section; keep looking.
			continue
		}
		current, err := answerSet(tx, sample.SampleID, section)
		if err != nil {
			return false, err
		}
		return sameAnswers(current, previous), nil
	}
	return false, nil
}

// answerSet keys the user answers under prefix by (question, unit),
// leaving derived points out of the comparison.
func answerSet(tx *gorm.DB, sampleID uint64, prefix string) (map[string]string, error) {
	recorded, err := answers.List(tx, sampleID, prefix, nil)
	if err != nil {
		return nil, err
	}
	set := make(map[string]string, len(recorded))
	for _, answer := range recorded {
		if answer.Unit.Slug == models.UnitPoints {
			continue
		}
		set[fmt.Sprintf("%d:%d", answer.QuestionID, answer.UnitID)] = answer.Measured
	}
	return set, nil
}

func sameAnswers(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
