package models

import "time"

// Unit systems.
const (
	UnitSystemEnum     = "enum"
	UnitSystemMetric   = "numeric-metric"
	UnitSystemImperial = "numeric-imperial"
	UnitSystemDatetime = "datetime"
	UnitSystemFreetext = "freetext"
	UnitSystemStandard = "standard"
)

// Unit slugs with fixed scoring semantics. They must exist in every
// deployment; the points unit is system-generated output only.
const (
	UnitAssessment = "assessment"
	UnitPoints     = "points"
	UnitFreetext   = "freetext"
	UnitYesNo      = "yes-no"
	UnitTonsYear   = "tons-year"
	UnitEndsAt     = "ends-at"
)

// Assessment answer choice slugs.
const (
	ChoiceYes       = "yes"
	ChoiceMostlyYes = "mostly-yes"
	ChoiceMostlyNo  = "mostly-no"
	ChoiceNo        = "no"
	ChoiceNA        = "n-a"
	ChoiceNoTarget  = "no-target"
)

// Unit is an answer vocabulary: an enumeration, a numeric measure, a
// datetime or a freetext blob.
type Unit struct {
	UnitID    uint64 `gorm:"primaryKey;autoIncrement"`
	Slug      string `gorm:"uniqueIndex;size:255;not null"`
	Title     string `gorm:"size:255"`
	System    string `gorm:"size:32;not null"`
	Choices   []Choice
	CreatedAt time.Time
}

// Choice belongs to an enumerated unit; rank orders the choices, the
// top-ranked one being the best answer.
type Choice struct {
	ChoiceID  uint64 `gorm:"primaryKey;autoIncrement"`
	UnitID    uint64 `gorm:"not null;index:idx_choice_unit_slug,unique"`
	Slug      string `gorm:"size:255;not null;index:idx_choice_unit_slug,unique"`
	Text      string `gorm:"size:512;not null"`
	Rank      int    `gorm:"column:choice_rank;not null"`
	CreatedAt time.Time
}

// UnitEquivalence declares that answers recorded in source are acceptable
// where target is expected.
type UnitEquivalence struct {
	UnitEquivalenceID uint64 `gorm:"primaryKey;autoIncrement"`
	SourceID          uint64 `gorm:"not null;index:idx_unit_equiv,unique"`
	TargetID          uint64 `gorm:"not null;index:idx_unit_equiv,unique"`
	CreatedAt         time.Time
}

// TableName overrides the table name for Unit
func (Unit) TableName() string {
	return "units"
}

// TableName overrides the table name for Choice
func (Choice) TableName() string {
	return "choices"
}

// TableName overrides the table name for UnitEquivalence
func (UnitEquivalence) TableName() string {
	return "unit_equivalences"
}
