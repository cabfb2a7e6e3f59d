package scoring

import (
	"strings"

	"github.com/greenlattice/esgbench/internal/config"
	"github.com/greenlattice/esgbench/internal/models"
	"github.com/greenlattice/esgbench/internal/paths"
)

// Highlights evaluates the configured highlight rules against a sample's
// answers. A flag is true iff any listed question has an answer satisfying
// the rule's predicate.
func Highlights(rules []config.HighlightRule, recorded []models.Answer) map[string]bool {
	flags := make(map[string]bool, len(rules))
	for _, rule := range rules {
		flags[rule.Flag] = false
	}
	for _, rule := range rules {
		for _, answer := range recorded {
			if !matchesSuffix(answer.Question.Path, rule.Suffixes) {
				continue
			}
			if satisfies(rule.Predicate, answer) {
				flags[rule.Flag] = true
				break
			}
		}
	}
	return flags
}

func matchesSuffix(path string, suffixes []string) bool {
	slug := paths.Leaf(path)
	for _, suffix := range suffixes {
		if slug == suffix || strings.HasSuffix(slug, suffix) {
			return true
		}
	}
	return false
}

func satisfies(predicate string, answer models.Answer) bool {
	switch predicate {
	case config.PredicateTopChoice:
		if answer.Unit.System != models.UnitSystemEnum {
			return false
		}
		top := topChoice(answer.Unit.Choices)
		return top != "" && answer.Measured == top
	case config.PredicateHasTarget:
		if answer.Unit.System != models.UnitSystemDatetime {
			return false
		}
		return answer.Measured != models.ChoiceNoTarget
	default:
		return answer.Measured != ""
	}
}

func topChoice(choices []models.Choice) string {
	best := ""
	bestRank := 0
	for _, choice := range choices {
		if best == "" || choice.Rank > bestRank {
			best = choice.Slug
			bestRank = choice.Rank
		}
	}
	return best
}
