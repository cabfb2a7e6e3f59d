package models

import "time"

// Double-opt-in states.
const (
	OptInGrantInitiated   = "grant-initiated"
	OptInGrantAccepted    = "grant-accepted"
	OptInGrantDenied      = "grant-denied"
	OptInGrantExpired     = "grant-expired"
	OptInRequestInitiated = "request-initiated"
	OptInRequestAccepted  = "request-accepted"
	OptInRequestDenied    = "request-denied"
	OptInRequestExpired   = "request-expired"
)

// Portfolio grants grantee read access to account's frozen samples in
// campaign (all campaigns when CampaignID is null) created on or before
// EndsAt. (grantee, account, campaign) must be unique; duplicates are an
// integrity error the offline verifier detects and reconciles.
type Portfolio struct {
	PortfolioID uint64    `gorm:"primaryKey;autoIncrement"`
	GranteeID   uint64    `gorm:"not null;index:idx_portfolio_scope"`
	AccountID   uint64    `gorm:"not null;index:idx_portfolio_scope"`
	CampaignID  *uint64   `gorm:"index:idx_portfolio_scope"`
	EndsAt      time.Time `gorm:"not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PortfolioOptIn records the initiation and resolution of a grant or
// request between two accounts. A resolved state never reverts.
type PortfolioOptIn struct {
	PortfolioOptInID uint64    `gorm:"primaryKey;autoIncrement"`
	GranteeID        uint64    `gorm:"not null;index:idx_optin_scope"`
	AccountID        uint64    `gorm:"not null;index:idx_optin_scope"`
	CampaignID       *uint64   `gorm:"index:idx_optin_scope"`
	State            string    `gorm:"size:32;not null"`
	VerificationKey  string    `gorm:"uniqueIndex;size:64;not null"`
	InitiatedBy      string    `gorm:"size:255"`
	EndsAt           time.Time `gorm:"not null"`
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time
}

// TableName overrides the table name for Portfolio
func (Portfolio) TableName() string {
	return "portfolios"
}

// TableName overrides the table name for PortfolioOptIn
func (PortfolioOptIn) TableName() string {
	return "portfolio_opt_ins"
}
