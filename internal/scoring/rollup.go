package scoring

import (
	"math"

	"github.com/greenlattice/esgbench/internal/content"
	"github.com/greenlattice/esgbench/internal/models"
)

// Rollup is the aggregated score of one content subtree.
type Rollup struct {
	Slug        string
	Path        string
	Title       string
	ScoreWeight float64
	Scorecard   bool

	Numerator             float64
	Denominator           float64
	NbAnswers             int
	NbQuestions           int
	NbNAAnswers           int
	NbPlannedImprovements int
	NormalizedScore       *int

	Children []*Rollup
}

// PopulateRollup aggregates scored answers bottom-up over the content
// tree. scored is keyed by question path; planned marks questions with a
// planned-improvement answer. The function is pure: calling it twice on
// the same inputs yields identical rollups.
func PopulateRollup(node *content.TreeNode, scored map[string]ScoredAnswer, planned map[string]bool, force bool) *Rollup {
	r := &Rollup{
		Slug:        node.Element.Slug,
		Path:        node.Path,
		Title:       node.Element.Title,
		ScoreWeight: node.Extra.Weight(),
		Scorecard:   node.Extra.HasTag(models.TagScorecard),
	}

	if node.IsLeaf() {
		if sa, ok := scored[node.Path]; ok {
			r.NbQuestions = 1
			r.Numerator = sa.Numerator
			r.Denominator = sa.Denominator
			if sa.Answered {
				r.NbAnswers = 1
			}
			if sa.NA {
				r.NbNAAnswers = 1
			}
			if planned[node.Path] {
				r.NbPlannedImprovements = 1
			}
		}
		r.normalize(force)
		return r
	}

	// Children weights summing to ~1.0 form a normalized partition; in
	// both cases the aggregation is the weighted sum.
	for _, child := range node.Children {
		cr := PopulateRollup(child, scored, planned, force)
		r.Children = append(r.Children, cr)
		r.Numerator += cr.Numerator * cr.ScoreWeight
		r.Denominator += cr.Denominator * cr.ScoreWeight
		r.NbAnswers += cr.NbAnswers
		r.NbQuestions += cr.NbQuestions
		r.NbNAAnswers += cr.NbNAAnswers
		r.NbPlannedImprovements += cr.NbPlannedImprovements
	}
	r.normalize(force)
	return r
}

func (r *Rollup) normalize(force bool) {
	complete := r.NbAnswers == r.NbQuestions || force
	if !complete {
		return
	}
	if r.Denominator > 0 {
		score := int(math.Round(100 * r.Numerator / r.Denominator))
		r.NormalizedScore = &score
		return
	}
	if r.NbQuestions > 0 {
		zero := 0
		r.NormalizedScore = &zero
	}
}

// PruneToScorecards removes subtrees not tagged scorecard: a node is kept
// when it or any descendant carries the tag. Returns nil when nothing
// under r is reportable.
func PruneToScorecards(r *Rollup) *Rollup {
	var kept []*Rollup
	for _, child := range r.Children {
		if pruned := PruneToScorecards(child); pruned != nil {
			kept = append(kept, pruned)
		}
	}
	if !r.Scorecard && len(kept) == 0 {
		return nil
	}
	clone := *r
	clone.Children = kept
	return &clone
}

// Walk visits r and its descendants depth-first.
func (r *Rollup) Walk(fn func(*Rollup)) {
	fn(r)
	for _, child := range r.Children {
		child.Walk(fn)
	}
}

// Find returns the descendant rollup at path, or nil.
func (r *Rollup) Find(path string) *Rollup {
	var found *Rollup
	r.Walk(func(node *Rollup) {
		if found == nil && node.Path == path {
			found = node
		}
	})
	return found
}
