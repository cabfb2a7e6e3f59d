package models

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Verified sample review statuses.
const (
	VerifiedNoReview         = "no-review"
	VerifiedReviewInProgress = "review-in-progress"
	VerifiedReviewCompleted  = "review-completed"
	VerifiedRigorous         = "rigorous"
)

// Sample is a point-in-time collection of answers by an account against a
// campaign. Frozen samples are append-only. ActiveKey is non-null only for
// the working assessment (active, extra null); its unique index enforces
// at-most-one working assessment per (account, campaign) across all four
// supported dialects.
type Sample struct {
	SampleID   uint64         `gorm:"primaryKey;autoIncrement"`
	AccountID  uint64         `gorm:"not null;index:idx_sample_account_campaign"`
	CampaignID uint64         `gorm:"not null;index:idx_sample_account_campaign"`
	CreatedAt  time.Time      `gorm:"not null;index"`
	IsFrozen   bool           `gorm:"not null;default:false"`
	Extra      datatypes.JSON `gorm:"type:json"`
	ActiveKey  *string        `gorm:"uniqueIndex;size:64"`
	UpdatedAt  time.Time
}

// WorkingKey builds the ActiveKey value for a working assessment.
func WorkingKey(accountID, campaignID uint64) *string {
	k := fmt.Sprintf("%d:%d", accountID, campaignID)
	return &k
}

// Answer records one measured value on a sample. Multiple units per
// (sample, question) are allowed; (sample, question, unit) is unique.
// Measured holds a choice slug for enum units, a decimal rendering for
// numeric units and the text blob for freetext.
type Answer struct {
	AnswerID    uint64   `gorm:"primaryKey;autoIncrement"`
	SampleID    uint64   `gorm:"not null;index:idx_answer_sample_question_unit,unique"`
	QuestionID  uint64   `gorm:"not null;index:idx_answer_sample_question_unit,unique"`
	Question    Question `gorm:"foreignKey:QuestionID;references:QuestionID"`
	UnitID      uint64   `gorm:"not null;index:idx_answer_sample_question_unit,unique"`
	Unit        Unit     `gorm:"foreignKey:UnitID;references:UnitID"`
	Measured    string   `gorm:"type:text;not null"`
	Denominator *float64
	CreatedAt   time.Time `gorm:"not null"`
	CollectedBy string    `gorm:"size:255"`
}

// VerifiedSample links a frozen response to a parallel notes sample owned
// by the verifier account.
type VerifiedSample struct {
	VerifiedSampleID      uint64 `gorm:"primaryKey;autoIncrement"`
	SampleID              uint64 `gorm:"not null;uniqueIndex"`
	VerifierNotesSampleID uint64 `gorm:"not null;index"`
	VerifiedByID          uint64 `gorm:"not null;index"`
	VerifiedStatus        string `gorm:"size:32;not null;default:no-review"`
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// TableName overrides the table name for Sample
func (Sample) TableName() string {
	return "samples"
}

// TableName overrides the table name for Answer
func (Answer) TableName() string {
	return "answers"
}

// TableName overrides the table name for VerifiedSample
func (VerifiedSample) TableName() string {
	return "verified_samples"
}
