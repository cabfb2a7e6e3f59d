package samples

import (
	"encoding/json"
	"time"

	"github.com/greenlattice/esgbench/internal/models"
	"github.com/greenlattice/esgbench/internal/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OpenVerifierNotes starts a review of a frozen sample: a parallel notes
// sample is created for the verifier account and linked through a
// VerifiedSample record. A frozen sample holds at most one review.
func (s *Service) OpenVerifierNotes(primarySampleID, verifierAccountID uint64) (*models.VerifiedSample, error) {
	var out *models.VerifiedSample
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var primary models.Sample
		if err := tx.First(&primary, primarySampleID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return types.E(types.KindNotFound, "sample %d not found", primarySampleID)
			}
			return err
		}
		if !primary.IsFrozen {
			return types.E(types.KindValidation, "sample %d is not frozen; only frozen responses are reviewed", primarySampleID)
		}

		var existing int64
		if err := tx.Model(&models.VerifiedSample{}).
			Where("sample_id = ?", primarySampleID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return types.E(types.KindConflict, "sample %d already has a review", primarySampleID)
		}

		extra, err := json.Marshal(models.SampleExtra{Tags: []string{models.TagVerifierNotes}})
		if err != nil {
			return err
		}
		notes := models.Sample{
			AccountID:  verifierAccountID,
			CampaignID: primary.CampaignID,
			CreatedAt:  time.Now(),
			Extra:      extra,
		}
		if err := tx.Create(&notes).Error; err != nil {
			return err
		}

		verified := models.VerifiedSample{
			SampleID:              primary.SampleID,
			VerifierNotesSampleID: notes.SampleID,
			VerifiedByID:          verifierAccountID,
			VerifiedStatus:        models.VerifiedReviewInProgress,
		}
		if err := tx.Create(&verified).Error; err != nil {
			return err
		}
		out = &verified
		return nil
	})
	return out, err
}

// FreezeVerifierNotes closes a review: the notes sample becomes immutable
// and the review status moves to completed. Notes carry no scoring, so no
// answer copy, points derivation or scorecard materialization happens.
func (s *Service) FreezeVerifierNotes(primarySampleID uint64) (*models.VerifiedSample, error) {
	var out *models.VerifiedSample
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var verified models.VerifiedSample
		if err := tx.Where("sample_id = ?", primarySampleID).First(&verified).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return types.E(types.KindNotFound, "sample %d has no review", primarySampleID)
			}
			return err
		}

		var notes models.Sample
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&notes, verified.VerifierNotesSampleID).Error; err != nil {
			return err
		}
		if notes.IsFrozen {
			return types.E(types.KindAlreadyFrozen, "review of sample %d is already completed", primarySampleID)
		}
		if err := tx.Model(&models.Sample{}).
			Where("sample_id = ?", notes.SampleID).
			Update("is_frozen", true).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.VerifiedSample{}).
			Where("verified_sample_id = ?", verified.VerifiedSampleID).
			Update("verified_status", models.VerifiedReviewCompleted).Error; err != nil {
			return err
		}
		verified.VerifiedStatus = models.VerifiedReviewCompleted
		out = &verified
		return nil
	})
	return out, err
}

// Review returns the review record of a frozen sample, or nil when none
// was opened.
func (s *Service) Review(primarySampleID uint64) (*models.VerifiedSample, error) {
	var verified models.VerifiedSample
	err := s.db.Where("sample_id = ?", primarySampleID).First(&verified).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &verified, nil
}
