// service.go
//
// Multi-tenant ESG assessment and benchmarking platform core
// Copyright (c) 2026 Greenlattice <dev@greenlattice.io>
//
// This file is part of esgbench.
// esgbench is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// esgbench is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with esgbench.
// If not, see <https://www.gnu.org/licenses/>.

// Package portfolio manages cross-account visibility: the double-opt-in
// state machine that creates portfolio rows, and the read checks that
// consult them.
package portfolio

import (
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/greenlattice/esgbench/internal/config"
	"github.com/greenlattice/esgbench/internal/models"
	"github.com/greenlattice/esgbench/internal/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service runs the opt-in state machine and answers visibility questions.
type Service struct {
	db  *gorm.DB
	cfg *config.ScoringConfig
	log *zap.Logger
}

// New creates a portfolio service.
func New(db *gorm.DB, cfg *config.ScoringConfig, log *zap.Logger) *Service {
	return &Service{db: db, cfg: cfg, log: log}
}

// ttl returns the opt-in expiry horizon from now.
func (s *Service) ttl(now time.Time) time.Time {
	return now.AddDate(0, 0, s.cfg.OptInTTLDays)
}

// InitiateGrant opens a grant: the data owner offers grantee access to its
// responses, pending the grantee's acceptance. The returned opt-in carries
// the verification key the grantee must present.
func (s *Service) InitiateGrant(accountID, granteeID uint64, campaignID *uint64, initiatedBy string) (*models.PortfolioOptIn, error) {
	return s.initiate(models.OptInGrantInitiated, granteeID, accountID, campaignID, initiatedBy)
}

// InitiateRequest opens a request: the grantee asks the data owner for
// access, pending the owner's acceptance.
func (s *Service) InitiateRequest(granteeID, accountID uint64, campaignID *uint64, initiatedBy string) (*models.PortfolioOptIn, error) {
	return s.initiate(models.OptInRequestInitiated, granteeID, accountID, campaignID, initiatedBy)
}

func (s *Service) initiate(state string, granteeID, accountID uint64, campaignID *uint64, initiatedBy string) (*models.PortfolioOptIn, error) {
	if granteeID == accountID {
		return nil, types.E(types.KindValidation, "account %d cannot opt in to itself", accountID)
	}
	now := time.Now()
	optIn := models.PortfolioOptIn{
		GranteeID:       granteeID,
		AccountID:       accountID,
		CampaignID:      campaignID,
		State:           state,
		VerificationKey: uuid.NewString(),
		InitiatedBy:     initiatedBy,
		EndsAt:          s.ttl(now),
		CreatedAt:       now,
	}
	if err := s.db.Create(&optIn).Error; err != nil {
		return nil, err
	}
	return &optIn, nil
}

// Accept resolves an initiated opt-in by its verification key and upserts
// the portfolio row. A concurrent acceptance of the same pair is retried
// once; resolved and expired opt-ins never accept.
func (s *Service) Accept(verificationKey string) (*models.Portfolio, error) {
	row, err := s.accept(verificationKey)
	if err != nil && isUniqueViolation(err) {
		row, err = s.accept(verificationKey)
	}
	return row, err
}

func (s *Service) accept(verificationKey string) (*models.Portfolio, error) {
	var out *models.Portfolio
	err := s.db.Transaction(func(tx *gorm.DB) error {
		optIn, err := lockOptIn(tx, verificationKey)
		if err != nil {
			return err
		}
		now := time.Now()
		if err := resolveExpiry(tx, optIn, now); err != nil {
			return err
		}

		accepted, err := transition(optIn.State, true)
		if err != nil {
			return err
		}
		if err := tx.Model(&models.PortfolioOptIn{}).
			Where("portfolio_opt_in_id = ?", optIn.PortfolioOptInID).
			Update("state", accepted).Error; err != nil {
			return err
		}

		endsAt := optIn.EndsAt
		if latest, err := latestFrozenAt(tx, optIn.AccountID, optIn.CampaignID); err != nil {
			return err
		} else if latest != nil && latest.After(endsAt) {
			endsAt = *latest
		}

		portfolio, err := s.upsertPortfolio(tx, optIn, endsAt)
		if err != nil {
			return err
		}
		out = portfolio
		return nil
	})
	return out, err
}

// Deny resolves an initiated opt-in negatively. No portfolio row results;
// a later fresh opt-in can still succeed.
func (s *Service) Deny(verificationKey string) (*models.PortfolioOptIn, error) {
	var out *models.PortfolioOptIn
	err := s.db.Transaction(func(tx *gorm.DB) error {
		optIn, err := lockOptIn(tx, verificationKey)
		if err != nil {
			return err
		}
		if err := resolveExpiry(tx, optIn, time.Now()); err != nil {
			return err
		}
		denied, err := transition(optIn.State, false)
		if err != nil {
			return err
		}
		if err := tx.Model(&models.PortfolioOptIn{}).
			Where("portfolio_opt_in_id = ?", optIn.PortfolioOptInID).
			Update("state", denied).Error; err != nil {
			return err
		}
		optIn.State = denied
		out = optIn
		return nil
	})
	return out, err
}

// Expire sweeps initiated opt-ins past their horizon into their expired
// state and returns how many were moved.
func (s *Service) Expire(now time.Time) (int, error) {
	expired := 0
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for initiated, target := range map[string]string{
			models.OptInGrantInitiated:   models.OptInGrantExpired,
			models.OptInRequestInitiated: models.OptInRequestExpired,
		} {
			result := tx.Model(&models.PortfolioOptIn{}).
				Where("state = ? AND ends_at < ?", initiated, now).
				Update("state", target)
			if result.Error != nil {
				return result.Error
			}
			expired += int(result.RowsAffected)
		}
		return nil
	})
	return expired, err
}

// PendingFor lists the opt-ins awaiting accountID's decision: requests
// against its data plus grants offered to it. A non-nil campaign narrows
// the result to opt-ins scoped to it or unscoped.
func (s *Service) PendingFor(accountID uint64, at time.Time, campaignID *uint64) ([]models.PortfolioOptIn, error) {
	query := s.db.
		Where("ends_at >= ?", at).
		Where(
			s.db.Where("state = ? AND account_id = ?", models.OptInRequestInitiated, accountID).
				Or("state = ? AND grantee_id = ?", models.OptInGrantInitiated, accountID),
		)
	if campaignID != nil {
		query = query.Where("campaign_id = ? OR campaign_id IS NULL", *campaignID)
	}
	var out []models.PortfolioOptIn
	err := query.Order("created_at").Find(&out).Error
	return out, err
}

// MayRead reports whether reader may see the frozen sample. Owners always
// read their own data; unlocked brokers read everything; a verifier reads
// samples it reviews; everyone else needs a covering portfolio row.
func (s *Service) MayRead(reader *models.Account, sample *models.Sample) (bool, error) {
	if reader.AccountID == sample.AccountID {
		return true, nil
	}
	if s.isUnlockedBroker(reader) {
		return true, nil
	}

	var reviews int64
	if err := s.db.Model(&models.VerifiedSample{}).
		Where("sample_id = ? AND verified_by_id = ?", sample.SampleID, reader.AccountID).
		Count(&reviews).Error; err != nil {
		return false, err
	}
	if reviews > 0 {
		return true, nil
	}

	var covering int64
	err := s.db.Model(&models.Portfolio{}).
		Where("grantee_id = ? AND account_id = ?", reader.AccountID, sample.AccountID).
		Where("campaign_id = ? OR campaign_id IS NULL", sample.CampaignID).
		Where("ends_at >= ?", sample.CreatedAt).
		Count(&covering).Error
	return covering > 0, err
}

func (s *Service) isUnlockedBroker(account *models.Account) bool {
	if account.Slug == s.cfg.Broker && s.cfg.Broker != "" {
		return true
	}
	for _, slug := range s.cfg.UnlockedBrokers {
		if account.Slug == slug {
			return true
		}
	}
	return false
}

func lockOptIn(tx *gorm.DB, verificationKey string) (*models.PortfolioOptIn, error) {
	var optIn models.PortfolioOptIn
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("verification_key = ?", verificationKey).
		First(&optIn).Error
	if err == gorm.ErrRecordNotFound {
		return nil, types.E(types.KindNotFound, "unknown verification key")
	}
	if err != nil {
		return nil, err
	}
	return &optIn, nil
}

// resolveExpiry moves an initiated opt-in past its horizon into the
// expired state and reports the failure.
func resolveExpiry(tx *gorm.DB, optIn *models.PortfolioOptIn, now time.Time) error {
	if !optIn.EndsAt.Before(now) {
		return nil
	}
	expired, err := transitionExpired(optIn.State)
	if err != nil {
		// Already resolved; the transition check below reports it.
		return nil
	}
	if err := tx.Model(&models.PortfolioOptIn{}).
		Where("portfolio_opt_in_id = ?", optIn.PortfolioOptInID).
		Update("state", expired).Error; err != nil {
		return err
	}
	optIn.State = expired
	return types.E(types.KindConflict, "opt-in expired on %s", optIn.EndsAt.Format(time.RFC3339))
}

// transition maps an initiated state to its accepted or denied resolution.
func transition(state string, accepted bool) (string, error) {
	switch state {
	case models.OptInGrantInitiated:
		if accepted {
			return models.OptInGrantAccepted, nil
		}
		return models.OptInGrantDenied, nil
	case models.OptInRequestInitiated:
		if accepted {
			return models.OptInRequestAccepted, nil
		}
		return models.OptInRequestDenied, nil
	default:
		return "", types.E(types.KindConflict, "opt-in already resolved as %s", state)
	}
}

func transitionExpired(state string) (string, error) {
	switch state {
	case models.OptInGrantInitiated:
		return models.OptInGrantExpired, nil
	case models.OptInRequestInitiated:
		return models.OptInRequestExpired, nil
	default:
		return "", types.E(types.KindConflict, "opt-in already resolved as %s", state)
	}
}

// upsertPortfolio creates or extends the (grantee, account, campaign) row.
// EndsAt only moves forward.
func (s *Service) upsertPortfolio(tx *gorm.DB, optIn *models.PortfolioOptIn, endsAt time.Time) (*models.Portfolio, error) {
	query := tx.Where("grantee_id = ? AND account_id = ?", optIn.GranteeID, optIn.AccountID)
	if optIn.CampaignID == nil {
		query = query.Where("campaign_id IS NULL")
	} else {
		query = query.Where("campaign_id = ?", *optIn.CampaignID)
	}

	var portfolio models.Portfolio
	err := query.First(&portfolio).Error
	if err == gorm.ErrRecordNotFound {
		portfolio = models.Portfolio{
			GranteeID:  optIn.GranteeID,
			AccountID:  optIn.AccountID,
			CampaignID: optIn.CampaignID,
			EndsAt:     endsAt,
		}
		if err := tx.Create(&portfolio).Error; err != nil {
			return nil, err
		}
		return &portfolio, nil
	}
	if err != nil {
		return nil, err
	}
	if endsAt.After(portfolio.EndsAt) {
		if err := tx.Model(&models.Portfolio{}).
			Where("portfolio_id = ?", portfolio.PortfolioID).
			Update("ends_at", endsAt).Error; err != nil {
			return nil, err
		}
		portfolio.EndsAt = endsAt
	}
	return &portfolio, nil
}

// latestFrozenAt returns the creation time of the account's newest frozen
// sample in scope, so a fresh acceptance covers responses frozen after the
// opt-in was initiated.
func latestFrozenAt(tx *gorm.DB, accountID uint64, campaignID *uint64) (*time.Time, error) {
	query := tx.Model(&models.Sample{}).
		Where("account_id = ? AND is_frozen = ?", accountID, true)
	if campaignID != nil {
		query = query.Where("campaign_id = ?", *campaignID)
	}
	// MAX over an empty set is NULL, so scan through sql.NullTime.
	var latest sql.NullTime
	if err := query.Select("MAX(created_at)").Row().Scan(&latest); err != nil {
		return nil, err
	}
	if !latest.Valid {
		return nil, nil
	}
	return &latest.Time, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
