package models

import "time"

// Account kinds. Brokers and verifiers get role-driven visibility bypasses.
const (
	AccountSupplier = "supplier"
	AccountAlliance = "alliance"
	AccountVerifier = "verifier"
	AccountBroker   = "broker"
)

// Account represents a tenant: a supplier, alliance, verifier or broker.
type Account struct {
	AccountID uint64 `gorm:"primaryKey;autoIncrement"`
	Slug      string `gorm:"uniqueIndex;size:255;not null"`
	Name      string `gorm:"size:255;not null"`
	Kind      string `gorm:"size:32;not null;default:supplier"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName overrides the table name for Account
func (Account) TableName() string {
	return "accounts"
}
