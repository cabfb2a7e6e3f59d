package content

import (
	"github.com/greenlattice/esgbench/internal/models"
	"github.com/greenlattice/esgbench/internal/paths"
)

// Row is one entry of the flattened presentation list: a segment pseudo-row
// (rank -1), a tile or heading row, or a question row.
type Row struct {
	Slug        string              `json:"slug"`
	Path        string              `json:"path"`
	Title       string              `json:"title"`
	Picture     string              `json:"picture"`
	Indent      int                 `json:"indent"`
	Rank        int                 `json:"rank"`
	Extra       models.ElementExtra `json:"extra"`
	DefaultUnit string              `json:"default_unit,omitempty"`
	Required    *bool               `json:"required,omitempty"`
	UIHint      string              `json:"ui_hint,omitempty"`
	QuestionID  uint64              `json:"-"`
}

// The segment pseudo-row slots above everything in its segment.
const segmentPseudoRank = -1

// FlattenCampaign produces the ordered, indented presentation list for a
// campaign: questions grouped by pagebreak-marked segment, tiles and
// headings interleaved above their questions, ordered by enumerated rank.
// When stripSegmentPrefix is set, question rows display their path with
// the segment component removed. Tiles reached through several segments
// get the full segment set collated into extra.segments.
func (s *Store) FlattenCampaign(campaignID uint64, prefix string, stripSegmentPrefix bool) ([]Row, error) {
	questions, err := s.CampaignQuestions(campaignID, prefix)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, nil
	}

	// One element lookup for every slug appearing in any question path.
	slugSet := make(map[string]bool)
	for _, q := range questions {
		for _, slug := range paths.Split(q.Question.Path) {
			slugSet[slug] = true
		}
	}
	slugs := make([]string, 0, len(slugSet))
	for slug := range slugSet {
		slugs = append(slugs, slug)
	}
	var elements []models.Element
	if err := s.db.Where("slug IN ?", slugs).Find(&elements).Error; err != nil {
		return nil, err
	}
	bySlug := make(map[string]models.Element, len(elements))
	for _, el := range elements {
		bySlug[el.Slug] = el
	}

	// Heading rank is the max enumerated rank among its questions; an
	// intermediate slug reused across segments collates those segments.
	headingRank := make(map[string]int)
	slugSegments := make(map[string][]string)
	segmentOrder := make([]string, 0, 4)
	segmentSeen := make(map[string]bool)
	for _, q := range questions {
		parts := paths.Split(q.Question.Path)
		if len(parts) == 0 {
			continue
		}
		segment := paths.Join(parts[0])
		if !segmentSeen[segment] {
			segmentSeen[segment] = true
			segmentOrder = append(segmentOrder, segment)
		}
		partial := ""
		for _, slug := range parts[:len(parts)-1] {
			partial = paths.Child(partial, slug)
			if q.Rank > headingRank[partial] {
				headingRank[partial] = q.Rank
			}
			if !contains(slugSegments[slug], segment) {
				slugSegments[slug] = append(slugSegments[slug], segment)
			}
		}
	}

	var out []Row
	for _, segment := range segmentOrder {
		segmentSlug := paths.Leaf(segment)
		out = append(out, s.elementRow(bySlug, segmentSlug, segment, 0, segmentPseudoRank, slugSegments))

		emitted := map[string]bool{segment: true}
		for _, q := range questions {
			qPath := q.Question.Path
			if !paths.HasPrefix(qPath, segment) {
				continue
			}
			parts := paths.Split(qPath)

			// Headings and tiles between the segment and the question.
			partial := segment
			for depth, slug := range parts[1 : len(parts)-1] {
				partial = paths.Child(partial, slug)
				if !emitted[partial] {
					emitted[partial] = true
					out = append(out, s.elementRow(bySlug, slug, partial, depth+1, headingRank[partial], slugSegments))
				}
			}

			displayed := qPath
			if stripSegmentPrefix {
				displayed = paths.StripPrefix(qPath, segment)
			}
			row := s.elementRow(bySlug, parts[len(parts)-1], displayed, len(parts)-1, q.Rank, slugSegments)
			if q.Question.DefaultUnit != nil {
				row.DefaultUnit = q.Question.DefaultUnit.Slug
			}
			required := q.Required
			row.Required = &required
			row.UIHint = q.Question.UIHint
			row.QuestionID = q.Question.QuestionID
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *Store) elementRow(bySlug map[string]models.Element, slug, path string, indent, rank int, slugSegments map[string][]string) Row {
	row := Row{Slug: slug, Path: path, Indent: indent, Rank: rank}
	if el, ok := bySlug[slug]; ok {
		row.Title = el.Title
		row.Picture = el.Picture
		if extra, err := models.ParseElementExtra(el.Extra); err == nil {
			row.Extra = extra
		}
	}
	if segments := slugSegments[slug]; len(segments) > 1 {
		row.Extra.Segments = segments
	}
	return row
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
