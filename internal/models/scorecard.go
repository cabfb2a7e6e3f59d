package models

import "time"

// ScorecardCache is a materialized rollup for one (sample, reportable
// subtree). Rows are created at freeze time and read-only thereafter.
type ScorecardCache struct {
	ScorecardCacheID uint64 `gorm:"primaryKey;autoIncrement"`
	SampleID         uint64 `gorm:"not null;index:idx_scorecard_sample_path,unique"`
	Path             string `gorm:"size:512;not null;index:idx_scorecard_sample_path,unique"`
	NormalizedScore  *int
	Numerator        float64 `gorm:"not null;default:0"`
	Denominator      float64 `gorm:"not null;default:0"`
	NbAnswers        int     `gorm:"not null;default:0"`
	NbQuestions      int     `gorm:"not null;default:0"`
	NbNAAnswers      int     `gorm:"not null;default:0"`

	ReportingPublicly               bool `gorm:"not null;default:false"`
	ReportingFines                  bool `gorm:"not null;default:false"`
	ReportingEnergyConsumption      bool `gorm:"not null;default:false"`
	ReportingGHGGenerated           bool `gorm:"not null;default:false"`
	ReportingWaterConsumption       bool `gorm:"not null;default:false"`
	ReportingWasteGenerated         bool `gorm:"not null;default:false"`
	ReportingEnergyTarget           bool `gorm:"not null;default:false"`
	ReportingGHGTarget              bool `gorm:"not null;default:false"`
	ReportingWaterTarget            bool `gorm:"not null;default:false"`
	ReportingWasteTarget            bool `gorm:"not null;default:false"`

	NbPlannedImprovements int `gorm:"not null;default:0"`
	CreatedAt             time.Time
}

// TableName overrides the table name for ScorecardCache
func (ScorecardCache) TableName() string {
	return "scorecard_caches"
}
