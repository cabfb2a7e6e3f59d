// view.go
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

// Package assessment assembles the decorated question view a respondent
// (or an authorized foreign reader) sees for one sample: content rows
// merged with answers, continuity candidates, planned improvements,
// verifier notes, opportunity and peer rates.
package assessment

import (
	"time"

	"github.com/greenlattice/esgbench/internal/answers"
	"github.com/greenlattice/esgbench/internal/content"
	"github.com/greenlattice/esgbench/internal/models"
	"github.com/greenlattice/esgbench/internal/portfolio"
	"github.com/greenlattice/esgbench/internal/samples"
	"github.com/greenlattice/esgbench/internal/scorecards"
	"github.com/greenlattice/esgbench/internal/scoring"
	"github.com/greenlattice/esgbench/internal/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AnswerView is one answer as surfaced in the view.
type AnswerView struct {
	Unit        string    `json:"unit"`
	Measured    string    `json:"measured"`
	CreatedAt   time.Time `json:"created_at"`
	CollectedBy string    `json:"collected_by,omitempty"`
}

// Entry is one decorated row of the view. Non-question rows (segments,
// tiles, headings) carry only the content fields.
type Entry struct {
	content.Row

	Answers       []AnswerView       `json:"answers"`
	Candidates    []AnswerView       `json:"candidates"`
	Planned       []AnswerView       `json:"planned"`
	NbRespondents int                `json:"nb_respondents"`
	Rate          map[string]float64 `json:"rate"`
	Opportunity   float64            `json:"opportunity"`
}

// ChoiceDescriptor describes one choice of a unit vocabulary.
type ChoiceDescriptor struct {
	Slug string `json:"slug"`
	Text string `json:"text"`
	Rank int    `json:"rank"`
}

// UnitDescriptor describes one unit vocabulary referenced by the view.
type UnitDescriptor struct {
	Slug    string             `json:"slug"`
	Title   string             `json:"title"`
	System  string             `json:"system"`
	Choices []ChoiceDescriptor `json:"choices,omitempty"`
}

// ContentResponse is the full assessment view payload.
type ContentResponse struct {
	Count           int                       `json:"count"`
	Path            string                    `json:"path"`
	NormalizedScore *int                      `json:"normalized_score"`
	VerifiedStatus  string                    `json:"verified_status"`
	Results         []Entry                   `json:"results"`
	Units           map[string]UnitDescriptor `json:"units"`
}

// Service assembles assessment views.
type Service struct {
	db      *gorm.DB
	content *content.Store
	engine  *scoring.Engine
	cards   *scorecards.Service
	samples *samples.Service
	shares  *portfolio.Service
	log     *zap.Logger
}

// New creates an assessment view service.
func New(db *gorm.DB, store *content.Store, engine *scoring.Engine, cards *scorecards.Service, smp *samples.Service, shares *portfolio.Service, log *zap.Logger) *Service {
	return &Service{db: db, content: store, engine: engine, cards: cards, samples: smp, shares: shares, log: log}
}

// View merges content rows, answers, candidates, planned improvements,
// verifier notes, opportunity and peer rates for one sample under prefix.
// Foreign readers pass the visibility check or get a permission error.
func (s *Service) View(reader *models.Account, sample *models.Sample, campaign *models.Campaign, prefix string) (*ContentResponse, error) {
	foreign := reader.AccountID != sample.AccountID
	if foreign {
		if !sample.IsFrozen {
			return nil, types.E(types.KindPermissionDenied, "working assessments are private")
		}
		ok, err := s.shares.MayRead(reader, sample)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, types.E(types.KindPermissionDenied, "no portfolio covers sample %d", sample.SampleID)
		}
	}

	rows, err := s.content.FlattenCampaign(campaign.CampaignID, prefix, true)
	if err != nil {
		return nil, err
	}
	questions, err := s.content.CampaignQuestions(campaign.CampaignID, prefix)
	if err != nil {
		return nil, err
	}

	peers, err := s.engine.PeerStatsByQuestion(campaign.CampaignID, prefix, []uint64{sample.AccountID})
	if err != nil {
		return nil, err
	}
	scores := s.engine.QuestionScores(questions, prefix, peers)

	own, err := s.answersByQuestion(sample.SampleID, prefix)
	if err != nil {
		return nil, err
	}
	candidates, planned, err := s.siblingAnswers(sample, prefix)
	if err != nil {
		return nil, err
	}

	review, err := s.samples.Review(sample.SampleID)
	if err != nil {
		return nil, err
	}
	verifiedStatus := models.VerifiedNoReview
	if review != nil {
		verifiedStatus = review.VerifiedStatus
		// Verifier annotations surface alongside the answers, but only to
		// their author.
		if review.VerifiedByID == reader.AccountID {
			notes, err := s.answersByQuestion(review.VerifierNotesSampleID, prefix)
			if err != nil {
				return nil, err
			}
			for questionID, views := range notes {
				own[questionID] = append(own[questionID], views...)
			}
		}
	}

	choiceText := choiceTexts(questions)
	results := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entry := Entry{Row: row, Rate: map[string]float64{}}
		if row.QuestionID != 0 {
			entry.Answers = own[row.QuestionID]
			entry.Candidates = candidates[row.QuestionID]
			entry.Planned = planned[row.QuestionID]

			st := peers[row.QuestionID]
			entry.NbRespondents = st.NbRespondents
			for slug, count := range st.ChoiceCounts {
				text := choiceText[slug]
				if text == "" {
					text = slug
				}
				entry.Rate[text] = 100 * float64(count) / float64(st.NbRespondents)
			}
			if qs, ok := scores[row.QuestionID]; ok {
				measured, answered := assessmentMeasured(entry.Answers)
				entry.Opportunity = scoring.Opportunity(qs, measured, answered)
			}
		}
		results = append(results, entry)
	}

	units, err := s.unitsDictionary(questions, own, candidates, planned)
	if err != nil {
		return nil, err
	}

	response := &ContentResponse{
		Count:          len(results),
		Path:           prefix,
		VerifiedStatus: verifiedStatus,
		Results:        results,
		Units:          units,
	}
	if sample.IsFrozen {
		score, err := s.normalizedScore(sample, campaign, prefix)
		if err != nil {
			return nil, err
		}
		response.NormalizedScore = score
	}
	return response, nil
}

// answersByQuestion loads a sample's answers under prefix grouped by
// question.
func (s *Service) answersByQuestion(sampleID uint64, prefix string) (map[uint64][]AnswerView, error) {
	recorded, err := answers.List(s.db, sampleID, prefix, nil)
	if err != nil {
		return nil, err
	}
	out := make(map[uint64][]AnswerView)
	for _, answer := range recorded {
		out[answer.QuestionID] = append(out[answer.QuestionID], AnswerView{
			Unit:        answer.Unit.Slug,
			Measured:    answer.Measured,
			CreatedAt:   answer.CreatedAt,
			CollectedBy: answer.CollectedBy,
		})
	}
	return out, nil
}

// siblingAnswers collects continuity candidates from the account's other
// in-progress samples and planned answers from its improvement plan.
// Frozen samples get neither.
func (s *Service) siblingAnswers(sample *models.Sample, prefix string) (candidates, planned map[uint64][]AnswerView, err error) {
	candidates = make(map[uint64][]AnswerView)
	planned = make(map[uint64][]AnswerView)
	if sample.IsFrozen {
		return candidates, planned, nil
	}

	var siblings []models.Sample
	if err := s.db.
		Where("account_id = ? AND campaign_id = ? AND is_frozen = ? AND sample_id <> ?",
			sample.AccountID, sample.CampaignID, false, sample.SampleID).
		Find(&siblings).Error; err != nil {
		return nil, nil, err
	}
	for _, sibling := range siblings {
		views, err := s.answersByQuestion(sibling.SampleID, prefix)
		if err != nil {
			return nil, nil, err
		}
		target := candidates
		if sibling.IsPlanned() {
			target = planned
		}
		for questionID, list := range views {
			target[questionID] = append(target[questionID], list...)
		}
	}
	return candidates, planned, nil
}

// normalizedScore reads the materialized score for the prefix path, the
// campaign headline score when no prefix is given.
func (s *Service) normalizedScore(sample *models.Sample, campaign *models.Campaign, prefix string) (*int, error) {
	if prefix == "" {
		return s.cards.TopNormalizedScore(*sample, campaign)
	}
	rows, err := s.cards.Get(campaign, prefix, []models.Sample{*sample}, false)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.Path == prefix {
			return row.NormalizedScore, nil
		}
	}
	return nil, nil
}

// unitsDictionary describes every unit vocabulary the view references:
// question defaults plus units carried by surfaced answers.
func (s *Service) unitsDictionary(questions []content.QuestionRow, groups ...map[uint64][]AnswerView) (map[string]UnitDescriptor, error) {
	slugs := make(map[string]bool)
	for _, row := range questions {
		if row.Question.DefaultUnit != nil {
			slugs[row.Question.DefaultUnit.Slug] = true
		}
	}
	for _, group := range groups {
		for _, views := range group {
			for _, view := range views {
				slugs[view.Unit] = true
			}
		}
	}
	if len(slugs) == 0 {
		return map[string]UnitDescriptor{}, nil
	}

	list := make([]string, 0, len(slugs))
	for slug := range slugs {
		list = append(list, slug)
	}
	var units []models.Unit
	if err := s.db.Preload("Choices").Where("slug IN ?", list).Find(&units).Error; err != nil {
		return nil, err
	}
	out := make(map[string]UnitDescriptor, len(units))
	for _, unit := range units {
		descriptor := UnitDescriptor{Slug: unit.Slug, Title: unit.Title, System: unit.System}
		for _, choice := range unit.Choices {
			descriptor.Choices = append(descriptor.Choices, ChoiceDescriptor{
				Slug: choice.Slug,
				Text: choice.Text,
				Rank: choice.Rank,
			})
		}
		out[unit.Slug] = descriptor
	}
	return out, nil
}

// choiceTexts maps assessment choice slugs to their display text.
func choiceTexts(questions []content.QuestionRow) map[string]string {
	out := make(map[string]string)
	for _, row := range questions {
		if row.Question.DefaultUnit == nil {
			continue
		}
		for _, choice := range row.Question.DefaultUnit.Choices {
			out[choice.Slug] = choice.Text
		}
	}
	return out
}

// assessmentMeasured picks the assessment-unit answer from the surfaced
// views.
func assessmentMeasured(views []AnswerView) (string, bool) {
	for _, view := range views {
		if view.Unit == models.UnitAssessment {
			return view.Measured, true
		}
	}
	return "", false
}
