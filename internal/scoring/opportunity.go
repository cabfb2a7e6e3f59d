package scoring

import (
	"github.com/greenlattice/esgbench/internal/answers"
	"github.com/greenlattice/esgbench/internal/content"
	"github.com/greenlattice/esgbench/internal/models"
	"gorm.io/gorm"
)

// PeerStats aggregates the peer population's answers to one question.
type PeerStats struct {
	NbYes         int
	NbValid       int
	NbRespondents int
	// ChoiceCounts counts every choice measured, N/A included.
	ChoiceCounts map[string]int
}

// QuestionScore is the per-question scoring context derived from intrinsic
// values and the peer population.
type QuestionScore struct {
	Path            string
	AvgValue        float64
	BaseOpportunity float64
	Added           float64
	Peers           PeerStats
}

// ScoredAnswer is one question's contribution to a sample's rollup.
type ScoredAnswer struct {
	QuestionID  uint64
	Path        string
	Measured    string
	Answered    bool
	NA          bool
	Numerator   float64
	Denominator float64
}

// PeerSampleIDs returns the latest frozen non-planned sample per account
// for the campaign, excluding the given accounts. This population is the
// benchmark peer set.
func PeerSampleIDs(db *gorm.DB, campaignID uint64, excludeAccounts []uint64) ([]uint64, error) {
	var samples []models.Sample
	query := db.
		Where("campaign_id = ? AND is_frozen = ?", campaignID, true).
		Order("created_at")
	if len(excludeAccounts) > 0 {
		query = query.Where("account_id NOT IN ?", excludeAccounts)
	}
	if err := query.Find(&samples).Error; err != nil {
		return nil, err
	}
	latest := make(map[uint64]uint64)
	for _, sample := range samples {
		if sample.IsPlanned() {
			continue
		}
		// Ordered by created_at ascending, so the last write wins.
		latest[sample.AccountID] = sample.SampleID
	}
	ids := make([]uint64, 0, len(latest))
	for _, id := range latest {
		ids = append(ids, id)
	}
	return ids, nil
}

// PeerStatsByQuestion aggregates the peer set's assessment answers under
// prefix, keyed by question ID.
func (e *Engine) PeerStatsByQuestion(campaignID uint64, prefix string, excludeAccounts []uint64) (map[uint64]PeerStats, error) {
	peerIDs, err := PeerSampleIDs(e.db, campaignID, excludeAccounts)
	if err != nil {
		return nil, err
	}
	stats := make(map[uint64]PeerStats)
	if len(peerIDs) == 0 {
		return stats, nil
	}

	var rows []models.Answer
	query := e.db.
		Joins("JOIN questions ON questions.question_id = answers.question_id").
		Joins("JOIN units ON units.unit_id = answers.unit_id").
		Preload("Unit").
		Where("answers.sample_id IN ?", peerIDs).
		Where("units.slug = ?", models.UnitAssessment)
	if prefix != "" {
		query = query.Where("questions.path = ? OR questions.path LIKE ?", prefix, prefix+"/%")
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	for _, answer := range rows {
		st := stats[answer.QuestionID]
		if st.ChoiceCounts == nil {
			st.ChoiceCounts = make(map[string]int)
		}
		st.ChoiceCounts[answer.Measured]++
		st.NbRespondents++
		switch answer.Measured {
		case models.ChoiceYes, models.ChoiceMostlyYes:
			st.NbYes++
			st.NbValid++
		case models.ChoiceMostlyNo, models.ChoiceNo:
			st.NbValid++
		}
		stats[answer.QuestionID] = st
	}
	return stats, nil
}

// QuestionScores derives the scoring context for each assessment question,
// using the calculator registered for the prefix.
func (e *Engine) QuestionScores(questions []content.QuestionRow, prefix string, peers map[uint64]PeerStats) map[uint64]QuestionScore {
	calc := e.CalculatorFor(prefix)
	out := make(map[uint64]QuestionScore, len(questions))
	for _, row := range questions {
		if row.Question.DefaultUnit == nil || row.Question.DefaultUnit.Slug != models.UnitAssessment {
			continue
		}
		extra, err := models.ParseElementExtra(row.Question.Content.Extra)
		if err != nil {
			continue
		}
		avg := calc.AvgValue(extra.IntrinsicValues)
		st := peers[row.Question.QuestionID]

		qs := QuestionScore{
			Path:            row.Question.Path,
			AvgValue:        avg,
			BaseOpportunity: avg,
			Peers:           st,
		}
		if st.NbValid > 0 {
			qs.BaseOpportunity = avg * (1 + float64(st.NbYes)/float64(st.NbValid))
			qs.Added = 3 * avg / float64(st.NbValid)
		}
		out[row.Question.QuestionID] = qs
	}
	return out
}

// Opportunity returns the incentive shown for a question given the
// respondent's current answer. Unanswered questions score like a No.
func Opportunity(qs QuestionScore, measured string, answered bool) float64 {
	if !answered {
		return 3*qs.BaseOpportunity + qs.Added
	}
	switch measured {
	case models.ChoiceYes, models.ChoiceNA:
		return 0
	case models.ChoiceMostlyNo:
		return qs.BaseOpportunity
	case models.ChoiceMostlyYes:
		return 2*qs.BaseOpportunity + qs.Added
	default:
		return 3*qs.BaseOpportunity + qs.Added
	}
}

// Score returns the numerator and denominator an answer contributes.
func Score(qs QuestionScore, measured string, answered bool) (numerator, denominator float64) {
	if !answered {
		return 0, 0
	}
	switch measured {
	case models.ChoiceYes:
		return 3 * qs.BaseOpportunity, 3 * qs.BaseOpportunity
	case models.ChoiceMostlyYes:
		return 2 * qs.BaseOpportunity, 3 * qs.BaseOpportunity
	case models.ChoiceMostlyNo:
		return qs.BaseOpportunity, 3 * qs.BaseOpportunity
	case models.ChoiceNo:
		return 0, 3 * qs.BaseOpportunity
	default:
		// N/A and anything non-assessable is not relevant.
		return 0, 0
	}
}

// ScoredAnswers evaluates one sample against the question scores. Every
// assessment question in scope contributes an entry, answered or not.
func (e *Engine) ScoredAnswers(sampleID uint64, questions []content.QuestionRow, scores map[uint64]QuestionScore, prefix string) ([]ScoredAnswer, error) {
	recorded, err := answers.List(e.db, sampleID, prefix, nil)
	if err != nil {
		return nil, err
	}
	measuredByQuestion := make(map[uint64]string)
	for _, answer := range recorded {
		if answer.Unit.Slug == models.UnitAssessment {
			measuredByQuestion[answer.QuestionID] = answer.Measured
		}
	}

	out := make([]ScoredAnswer, 0, len(scores))
	for _, row := range questions {
		qs, ok := scores[row.Question.QuestionID]
		if !ok {
			continue
		}
		measured, answered := measuredByQuestion[row.Question.QuestionID]
		numerator, denominator := Score(qs, measured, answered)
		out = append(out, ScoredAnswer{
			QuestionID:  row.Question.QuestionID,
			Path:        row.Question.Path,
			Measured:    measured,
			Answered:    answered,
			NA:          answered && measured == models.ChoiceNA,
			Numerator:   numerator,
			Denominator: denominator,
		})
	}
	return out, nil
}
