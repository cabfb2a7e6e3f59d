package content

import (
	"sort"

	"github.com/greenlattice/esgbench/internal/models"
	"github.com/greenlattice/esgbench/internal/paths"
	"github.com/greenlattice/esgbench/internal/types"
	"gorm.io/gorm"
)

// QuestionRow is one campaign question with its membership attributes.
type QuestionRow struct {
	Question models.Question
	Rank     int
	Required bool
}

// CampaignBySlug returns the campaign with the given slug.
func (s *Store) CampaignBySlug(slug string) (*models.Campaign, error) {
	var campaign models.Campaign
	if err := s.db.Where("slug = ?", slug).First(&campaign).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, types.E(types.KindNotFound, "campaign %q not found", slug)
		}
		return nil, err
	}
	return &campaign, nil
}

// CampaignQuestions enumerates a campaign's questions ordered by rank,
// ties broken by question path. A non-empty prefix restricts the result
// to one section so it can be assembled independently.
func (s *Store) CampaignQuestions(campaignID uint64, prefix string) ([]QuestionRow, error) {
	if prefix != "" {
		normalized, err := paths.Normalize(prefix)
		if err != nil {
			return nil, err
		}
		prefix = normalized
	}

	var enumerated []models.EnumeratedQuestion
	if err := s.db.
		Preload("Question").
		Preload("Question.Content").
		Preload("Question.DefaultUnit").
		Preload("Question.DefaultUnit.Choices").
		Where("campaign_id = ?", campaignID).
		Find(&enumerated).Error; err != nil {
		return nil, err
	}

	rows := make([]QuestionRow, 0, len(enumerated))
	for _, eq := range enumerated {
		if prefix != "" && !paths.HasPrefix(eq.Question.Path, prefix) {
			continue
		}
		rows = append(rows, QuestionRow{
			Question: eq.Question,
			Rank:     eq.Rank,
			Required: eq.Required,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Rank != rows[j].Rank {
			return rows[i].Rank < rows[j].Rank
		}
		return rows[i].Question.Path < rows[j].Question.Path
	})
	return rows, nil
}

// SectionsAvailable returns the distinct segment paths a campaign's
// questions fall under, in rank order.
func (s *Store) SectionsAvailable(campaignID uint64) ([]string, error) {
	rows, err := s.CampaignQuestions(campaignID, "")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var sections []string
	for _, row := range rows {
		parts := paths.Split(row.Question.Path)
		if len(parts) == 0 {
			continue
		}
		segment := paths.Join(parts[0])
		if !seen[segment] {
			seen[segment] = true
			sections = append(sections, segment)
		}
	}
	return sections, nil
}
