package models

import (
	"time"

	"gorm.io/datatypes"
)

// Element is a node of the content DAG: a segment, tile, heading or
// practice. Elements are never hard-deleted in ordinary flow.
type Element struct {
	ElementID uint64         `gorm:"primaryKey;autoIncrement"`
	Slug      string         `gorm:"uniqueIndex;size:255;not null"`
	Title     string         `gorm:"size:512;not null"`
	Text      string         `gorm:"type:text"`
	Picture   string         `gorm:"size:512"`
	AccountID *uint64        `gorm:"index"`
	Extra     datatypes.JSON `gorm:"type:json"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Relationship is a directed orig -> dest edge with presentation rank.
// The edge set must stay acyclic; rank is unique per orig, gaps tolerated.
type Relationship struct {
	RelationshipID uint64 `gorm:"primaryKey;autoIncrement"`
	OrigID         uint64 `gorm:"not null;index:idx_rel_orig_dest,unique;index:idx_rel_orig_rank,unique"`
	DestID         uint64 `gorm:"not null;index:idx_rel_orig_dest,unique;index:idx_rel_dest"`
	Rank           int    `gorm:"column:edge_rank;not null;index:idx_rel_orig_rank,unique"`
	CreatedAt      time.Time
}

// Campaign is a versioned questionnaire definition.
type Campaign struct {
	CampaignID       uint64 `gorm:"primaryKey;autoIncrement"`
	Slug             string `gorm:"uniqueIndex;size:255;not null"`
	Title            string `gorm:"size:512;not null"`
	MandatorySegment string `gorm:"size:512"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Question is an addressable occurrence of a practice element. Two distinct
// paths may share the same content element (aliased tile); the path always
// ends with the content slug.
type Question struct {
	QuestionID    uint64  `gorm:"primaryKey;autoIncrement"`
	Path          string  `gorm:"uniqueIndex;size:512;not null"`
	ContentID     uint64  `gorm:"not null;index"`
	Content       Element `gorm:"foreignKey:ContentID"`
	DefaultUnitID *uint64 `gorm:"index"`
	DefaultUnit   *Unit   `gorm:"foreignKey:DefaultUnitID"`
	UIHint        string  `gorm:"size:64"`
	CreatedAt     time.Time
}

// EnumeratedQuestion defines campaign membership and presentation order.
type EnumeratedQuestion struct {
	EnumeratedQuestionID uint64   `gorm:"primaryKey;autoIncrement"`
	CampaignID           uint64   `gorm:"not null;index:idx_enum_campaign_question,unique"`
	QuestionID           uint64   `gorm:"not null;index:idx_enum_campaign_question,unique"`
	Question             Question `gorm:"foreignKey:QuestionID;references:QuestionID"`
	Rank                 int      `gorm:"column:question_rank;not null"`
	Required             bool     `gorm:"not null;default:false"`
	CreatedAt            time.Time
}

// TableName overrides the table name for Element
func (Element) TableName() string {
	return "elements"
}

// TableName overrides the table name for Relationship
func (Relationship) TableName() string {
	return "relationships"
}

// TableName overrides the table name for Campaign
func (Campaign) TableName() string {
	return "campaigns"
}

// TableName overrides the table name for Question
func (Question) TableName() string {
	return "questions"
}

// TableName overrides the table name for EnumeratedQuestion
func (EnumeratedQuestion) TableName() string {
	return "enumerated_questions"
}
