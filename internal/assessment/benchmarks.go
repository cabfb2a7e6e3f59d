package assessment

import (
	"github.com/greenlattice/esgbench/internal/models"
	"github.com/greenlattice/esgbench/internal/paths"
	"github.com/greenlattice/esgbench/internal/scorecards"
	"github.com/greenlattice/esgbench/internal/scoring"
	"github.com/greenlattice/esgbench/internal/types"
)

// Distribution is the per-bucket histogram of peer scores.
type Distribution struct {
	X []string `json:"x"`
	Y []int    `json:"y"`
}

// BenchmarkRow compares one scorable subtree against the peer population.
type BenchmarkRow struct {
	Slug               string       `json:"slug"`
	Title              string       `json:"title"`
	NbAnswers          int          `json:"nb_answers"`
	NbQuestions        int          `json:"nb_questions"`
	NbRespondents      int          `json:"nb_respondents"`
	Numerator          float64      `json:"numerator"`
	Denominator        float64      `json:"denominator"`
	NormalizedScore    *int         `json:"normalized_score"`
	Stage              string       `json:"stage,omitempty"`
	ImprovementScore   int          `json:"improvement_score"`
	ScoreWeight        float64      `json:"score_weight"`
	AvgNormalizedScore float64      `json:"avg_normalized_score"`
	Distribution       Distribution `json:"distribution"`
}

// BenchmarksResponse is the benchmark payload for one sample.
type BenchmarksResponse struct {
	Title                  string         `json:"title"`
	Scale                  int            `json:"scale"`
	Unit                   string         `json:"unit"`
	NbAccounts             int            `json:"nb_accounts"`
	Labels                 []string       `json:"labels"`
	Count                  int            `json:"count"`
	AvgNormalizedScore     float64        `json:"avg_normalized_score"`
	HighestNormalizedScore float64        `json:"highest_normalized_score"`
	Results                []BenchmarkRow `json:"results"`
}

// Benchmarks compares the sample's scorecards with the peer population's:
// per scorable subtree, the sample's own numbers next to the peer
// distribution over the four fixed buckets.
func (s *Service) Benchmarks(reader *models.Account, sample *models.Sample, campaign *models.Campaign, prefix string) (*BenchmarksResponse, error) {
	if reader.AccountID != sample.AccountID {
		ok, err := s.shares.MayRead(reader, sample)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, types.E(types.KindPermissionDenied, "no portfolio covers sample %d", sample.SampleID)
		}
	}

	ownRows, err := s.cards.Get(campaign, prefix, []models.Sample{*sample}, false)
	if err != nil {
		return nil, err
	}

	peerIDs, err := scoring.PeerSampleIDs(s.db, campaign.CampaignID, []uint64{sample.AccountID})
	if err != nil {
		return nil, err
	}
	var peerSamples []models.Sample
	if len(peerIDs) > 0 {
		if err := s.db.Where("sample_id IN ?", peerIDs).Find(&peerSamples).Error; err != nil {
			return nil, err
		}
	}
	peerRows, err := s.cards.Get(campaign, prefix, peerSamples, false)
	if err != nil {
		return nil, err
	}
	peersByPath := make(map[string][]models.ScorecardCache)
	for _, row := range peerRows {
		peersByPath[row.Path] = append(peersByPath[row.Path], row)
	}

	results := make([]BenchmarkRow, 0, len(ownRows))
	for _, row := range ownRows {
		slug := paths.Leaf(row.Path)
		result := BenchmarkRow{
			Slug:             slug,
			NbAnswers:        row.NbAnswers,
			NbQuestions:      row.NbQuestions,
			Numerator:        row.Numerator,
			Denominator:      row.Denominator,
			NormalizedScore:  row.NormalizedScore,
			ImprovementScore: row.NbPlannedImprovements,
			ScoreWeight:      1.0,
		}
		if row.NormalizedScore != nil {
			result.Stage = scorecards.Stage(float64(*row.NormalizedScore))
		}
		if el, err := s.content.ElementBySlug(slug); err == nil {
			result.Title = el.Title
			if extra, perr := models.ParseElementExtra(el.Extra); perr == nil {
				result.ScoreWeight = extra.Weight()
			}
		}

		peers := peersByPath[row.Path]
		buckets := make([]int, len(scorecards.BucketLabels))
		sum, scored := 0, 0
		for _, peer := range peers {
			if peer.NormalizedScore == nil {
				continue
			}
			scored++
			sum += *peer.NormalizedScore
			label := scorecards.Bucket(float64(*peer.NormalizedScore))
			for i, bucket := range scorecards.BucketLabels {
				if bucket == label {
					buckets[i]++
				}
			}
		}
		result.NbRespondents = scored
		if scored > 0 {
			result.AvgNormalizedScore = float64(sum) / float64(scored)
		}
		result.Distribution = Distribution{X: scorecards.BucketLabels, Y: buckets}
		results = append(results, result)
	}

	avg, highest := peerHeadlines(peerRows, peerSamples, campaign)
	return &BenchmarksResponse{
		Title:                  campaign.Title,
		Scale:                  100,
		Unit:                   models.UnitPoints,
		NbAccounts:             len(peerSamples),
		Labels:                 scorecards.BucketLabels,
		Count:                  len(results),
		AvgNormalizedScore:     avg,
		HighestNormalizedScore: highest,
		Results:                results,
	}, nil
}

// peerHeadlines reduces the peer rows to the population's average and best
// headline score: the mandatory segment when the campaign declares one,
// otherwise each sample's best segment.
func peerHeadlines(rows []models.ScorecardCache, peerSamples []models.Sample, campaign *models.Campaign) (avg, highest float64) {
	headline := make(map[uint64]*int, len(peerSamples))
	for i := range rows {
		row := rows[i]
		if row.NormalizedScore == nil {
			continue
		}
		if campaign.MandatorySegment != "" {
			if row.Path == campaign.MandatorySegment {
				headline[row.SampleID] = row.NormalizedScore
			}
			continue
		}
		if best := headline[row.SampleID]; best == nil || *row.NormalizedScore > *best {
			headline[row.SampleID] = row.NormalizedScore
		}
	}

	sum, scored := 0, 0
	for _, score := range headline {
		if score == nil {
			continue
		}
		scored++
		sum += *score
		if float64(*score) > highest {
			highest = float64(*score)
		}
	}
	if scored > 0 {
		avg = float64(sum) / float64(scored)
	}
	return avg, highest
}
