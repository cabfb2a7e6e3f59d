package portfolio

import (
	"fmt"

	"github.com/greenlattice/esgbench/internal/models"
)

// Issue is one integrity finding from the offline verifier.
type Issue struct {
	Check  string `json:"check"`
	Detail string `json:"detail"`
}

// VerifyIntegrity runs the offline consistency checks over visibility
// data: duplicate portfolio rows, accepted opt-ins without a covering
// portfolio, and reviews pointing at non-frozen samples. It only reports;
// reconciliation stays a human decision.
func (s *Service) VerifyIntegrity() ([]Issue, error) {
	var issues []Issue

	dup, err := s.duplicatePortfolios()
	if err != nil {
		return nil, err
	}
	issues = append(issues, dup...)

	uncovered, err := s.uncoveredAcceptances()
	if err != nil {
		return nil, err
	}
	issues = append(issues, uncovered...)

	reviews, err := s.danglingReviews()
	if err != nil {
		return nil, err
	}
	issues = append(issues, reviews...)

	return issues, nil
}

func (s *Service) duplicatePortfolios() ([]Issue, error) {
	var rows []models.Portfolio
	if err := s.db.Order("grantee_id, account_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var issues []Issue
	for _, row := range rows {
		key := scopeKey(row.GranteeID, row.AccountID, row.CampaignID)
		if seen[key] {
			issues = append(issues, Issue{
				Check:  "duplicate-portfolio",
				Detail: fmt.Sprintf("more than one portfolio row for %s", key),
			})
			continue
		}
		seen[key] = true
	}
	return issues, nil
}

func (s *Service) uncoveredAcceptances() ([]Issue, error) {
	var accepted []models.PortfolioOptIn
	if err := s.db.
		Where("state IN ?", []string{models.OptInGrantAccepted, models.OptInRequestAccepted}).
		Find(&accepted).Error; err != nil {
		return nil, err
	}
	var portfolios []models.Portfolio
	if err := s.db.Find(&portfolios).Error; err != nil {
		return nil, err
	}

	var issues []Issue
	for _, optIn := range accepted {
		if !coveredBy(optIn, portfolios) {
			key := scopeKey(optIn.GranteeID, optIn.AccountID, optIn.CampaignID)
			issues = append(issues, Issue{
				Check:  "accepted-without-portfolio",
				Detail: fmt.Sprintf("opt-in %d accepted but no portfolio row covers %s", optIn.PortfolioOptInID, key),
			})
		}
	}
	return issues, nil
}

// coveredBy reports whether some portfolio row covers the acceptance: an
// account-wide row (null campaign) covers any campaign scope, and the
// row's horizon must not predate the opt-in.
func coveredBy(optIn models.PortfolioOptIn, portfolios []models.Portfolio) bool {
	for _, row := range portfolios {
		if row.GranteeID != optIn.GranteeID || row.AccountID != optIn.AccountID {
			continue
		}
		if row.CampaignID != nil && (optIn.CampaignID == nil || *row.CampaignID != *optIn.CampaignID) {
			continue
		}
		if row.EndsAt.Before(optIn.CreatedAt) {
			continue
		}
		return true
	}
	return false
}

func (s *Service) danglingReviews() ([]Issue, error) {
	var reviews []models.VerifiedSample
	if err := s.db.Find(&reviews).Error; err != nil {
		return nil, err
	}
	var issues []Issue
	for _, review := range reviews {
		var sample models.Sample
		if err := s.db.First(&sample, review.SampleID).Error; err != nil {
			issues = append(issues, Issue{
				Check:  "review-without-sample",
				Detail: fmt.Sprintf("review %d references missing sample %d", review.VerifiedSampleID, review.SampleID),
			})
			continue
		}
		if !sample.IsFrozen {
			issues = append(issues, Issue{
				Check:  "review-of-active-sample",
				Detail: fmt.Sprintf("review %d covers non-frozen sample %d", review.VerifiedSampleID, review.SampleID),
			})
		}
	}
	return issues, nil
}

func scopeKey(granteeID, accountID uint64, campaignID *uint64) string {
	if campaignID == nil {
		return fmt.Sprintf("grantee=%d account=%d campaign=*", granteeID, accountID)
	}
	return fmt.Sprintf("grantee=%d account=%d campaign=%d", granteeID, accountID, *campaignID)
}
