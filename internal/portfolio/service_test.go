package portfolio_test

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/greenlattice/esgbench/internal/config"
	"github.com/greenlattice/esgbench/internal/database"
	"github.com/greenlattice/esgbench/internal/models"
	"github.com/greenlattice/esgbench/internal/portfolio"
	"github.com/greenlattice/esgbench/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	service *portfolio.Service

	owner    models.Account
	grantee  models.Account
	broker   models.Account
	verifier models.Account
	campaign models.Campaign
}

func newFixture(t *testing.T) *fixture {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	require.NoError(t, database.Seed(db))

	cfg := config.DefaultScoring()
	cfg.Broker = "lattice"

	f := &fixture{db: db, service: portfolio.New(db, cfg, zap.NewNop())}
	f.owner = models.Account{Slug: "acme", Name: "Acme", Kind: models.AccountSupplier}
	f.grantee = models.Account{Slug: "megacorp", Name: "MegaCorp", Kind: models.AccountAlliance}
	f.broker = models.Account{Slug: "lattice", Name: "Lattice", Kind: models.AccountBroker}
	f.verifier = models.Account{Slug: "auditco", Name: "AuditCo", Kind: models.AccountVerifier}
	for _, account := range []*models.Account{&f.owner, &f.grantee, &f.broker, &f.verifier} {
		require.NoError(t, db.Create(account).Error)
	}
	f.campaign = models.Campaign{Slug: "supply-2026", Title: "Supply chain 2026"}
	require.NoError(t, db.Create(&f.campaign).Error)
	return f
}

func (f *fixture) frozenSample(t *testing.T, accountID uint64, at time.Time) models.Sample {
	sample := models.Sample{
		AccountID:  accountID,
		CampaignID: f.campaign.CampaignID,
		CreatedAt:  at,
		IsFrozen:   true,
	}
	require.NoError(t, f.db.Create(&sample).Error)
	return sample
}

func TestGrantAcceptCreatesPortfolio(t *testing.T) {
	f := newFixture(t)

	optIn, err := f.service.InitiateGrant(f.owner.AccountID, f.grantee.AccountID, nil, "acme")
	require.NoError(t, err)
	assert.Equal(t, models.OptInGrantInitiated, optIn.State)
	assert.NotEmpty(t, optIn.VerificationKey)

	row, err := f.service.Accept(optIn.VerificationKey)
	require.NoError(t, err)
	assert.Equal(t, f.grantee.AccountID, row.GranteeID)
	assert.Equal(t, f.owner.AccountID, row.AccountID)
	assert.Nil(t, row.CampaignID)

	var stored models.PortfolioOptIn
	require.NoError(t, f.db.First(&stored, optIn.PortfolioOptInID).Error)
	assert.Equal(t, models.OptInGrantAccepted, stored.State)
}

func TestRequestAcceptCreatesPortfolio(t *testing.T) {
	f := newFixture(t)

	optIn, err := f.service.InitiateRequest(f.grantee.AccountID, f.owner.AccountID,
		&f.campaign.CampaignID, "megacorp")
	require.NoError(t, err)
	assert.Equal(t, models.OptInRequestInitiated, optIn.State)

	row, err := f.service.Accept(optIn.VerificationKey)
	require.NoError(t, err)
	require.NotNil(t, row.CampaignID)
	assert.Equal(t, f.campaign.CampaignID, *row.CampaignID)
}

func TestSelfOptInRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.InitiateGrant(f.owner.AccountID, f.owner.AccountID, nil, "acme")
	require.Error(t, err)
	assert.Equal(t, types.KindValidation, types.KindOf(err))
}

func TestAcceptExtendsCoverageToLatestFrozen(t *testing.T) {
	f := newFixture(t)

	optIn, err := f.service.InitiateGrant(f.owner.AccountID, f.grantee.AccountID, nil, "acme")
	require.NoError(t, err)

	// A sample frozen beyond the opt-in horizon is still covered.
	beyond := optIn.EndsAt.AddDate(0, 1, 0)
	f.frozenSample(t, f.owner.AccountID, beyond)

	row, err := f.service.Accept(optIn.VerificationKey)
	require.NoError(t, err)
	assert.False(t, row.EndsAt.Before(beyond))
}

func TestPortfolioEndsAtMovesForwardOnly(t *testing.T) {
	f := newFixture(t)

	first, err := f.service.InitiateGrant(f.owner.AccountID, f.grantee.AccountID, nil, "acme")
	require.NoError(t, err)
	row, err := f.service.Accept(first.VerificationKey)
	require.NoError(t, err)
	firstEndsAt := row.EndsAt

	// A second acceptance for the same scope reuses the row.
	second, err := f.service.InitiateGrant(f.owner.AccountID, f.grantee.AccountID, nil, "acme")
	require.NoError(t, err)
	again, err := f.service.Accept(second.VerificationKey)
	require.NoError(t, err)
	assert.Equal(t, row.PortfolioID, again.PortfolioID)
	assert.False(t, again.EndsAt.Before(firstEndsAt))

	var count int64
	require.NoError(t, f.db.Model(&models.Portfolio{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestDenyLeavesNoPortfolio(t *testing.T) {
	f := newFixture(t)

	optIn, err := f.service.InitiateRequest(f.grantee.AccountID, f.owner.AccountID, nil, "megacorp")
	require.NoError(t, err)

	denied, err := f.service.Deny(optIn.VerificationKey)
	require.NoError(t, err)
	assert.Equal(t, models.OptInRequestDenied, denied.State)

	var count int64
	require.NoError(t, f.db.Model(&models.Portfolio{}).Count(&count).Error)
	assert.Zero(t, count)

	// Resolved opt-ins never accept.
	_, err = f.service.Accept(optIn.VerificationKey)
	require.Error(t, err)
	assert.Equal(t, types.KindConflict, types.KindOf(err))
}

func TestAcceptExpiredOptIn(t *testing.T) {
	f := newFixture(t)

	optIn, err := f.service.InitiateGrant(f.owner.AccountID, f.grantee.AccountID, nil, "acme")
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&models.PortfolioOptIn{}).
		Where("portfolio_opt_in_id = ?", optIn.PortfolioOptInID).
		Update("ends_at", time.Now().Add(-time.Hour)).Error)

	_, err = f.service.Accept(optIn.VerificationKey)
	require.Error(t, err)
	assert.Equal(t, types.KindConflict, types.KindOf(err))

	var stored models.PortfolioOptIn
	require.NoError(t, f.db.First(&stored, optIn.PortfolioOptInID).Error)
	assert.Equal(t, models.OptInGrantExpired, stored.State)
}

func TestExpireSweep(t *testing.T) {
	f := newFixture(t)

	grant, err := f.service.InitiateGrant(f.owner.AccountID, f.grantee.AccountID, nil, "acme")
	require.NoError(t, err)
	request, err := f.service.InitiateRequest(f.grantee.AccountID, f.owner.AccountID, nil, "megacorp")
	require.NoError(t, err)

	swept, err := f.service.Expire(time.Now())
	require.NoError(t, err)
	assert.Zero(t, swept)

	swept, err = f.service.Expire(time.Now().AddDate(2, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, 2, swept)

	var storedGrant models.PortfolioOptIn
	require.NoError(t, f.db.First(&storedGrant, grant.PortfolioOptInID).Error)
	assert.Equal(t, models.OptInGrantExpired, storedGrant.State)
	var storedRequest models.PortfolioOptIn
	require.NoError(t, f.db.First(&storedRequest, request.PortfolioOptInID).Error)
	assert.Equal(t, models.OptInRequestExpired, storedRequest.State)
}

func TestPendingForDirectionality(t *testing.T) {
	f := newFixture(t)

	// megacorp asks acme; awaits acme's decision.
	request, err := f.service.InitiateRequest(f.grantee.AccountID, f.owner.AccountID, nil, "megacorp")
	require.NoError(t, err)
	// acme offers megacorp; awaits megacorp's decision.
	grant, err := f.service.InitiateGrant(f.owner.AccountID, f.grantee.AccountID, nil, "acme")
	require.NoError(t, err)

	pendingOwner, err := f.service.PendingFor(f.owner.AccountID, time.Now(), nil)
	require.NoError(t, err)
	require.Len(t, pendingOwner, 1)
	assert.Equal(t, request.PortfolioOptInID, pendingOwner[0].PortfolioOptInID)

	pendingGrantee, err := f.service.PendingFor(f.grantee.AccountID, time.Now(), nil)
	require.NoError(t, err)
	require.Len(t, pendingGrantee, 1)
	assert.Equal(t, grant.PortfolioOptInID, pendingGrantee[0].PortfolioOptInID)
}

func TestPendingForCampaignFilter(t *testing.T) {
	f := newFixture(t)
	other := models.Campaign{Slug: "supply-2027", Title: "Supply chain 2027"}
	require.NoError(t, f.db.Create(&other).Error)

	scoped, err := f.service.InitiateRequest(f.grantee.AccountID, f.owner.AccountID,
		&f.campaign.CampaignID, "megacorp")
	require.NoError(t, err)
	unscoped, err := f.service.InitiateRequest(f.grantee.AccountID, f.owner.AccountID, nil, "megacorp")
	require.NoError(t, err)
	_, err = f.service.InitiateRequest(f.grantee.AccountID, f.owner.AccountID,
		&other.CampaignID, "megacorp")
	require.NoError(t, err)

	pending, err := f.service.PendingFor(f.owner.AccountID, time.Now(), &f.campaign.CampaignID)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, scoped.PortfolioOptInID, pending[0].PortfolioOptInID)
	assert.Equal(t, unscoped.PortfolioOptInID, pending[1].PortfolioOptInID)
}

func TestMayRead(t *testing.T) {
	f := newFixture(t)
	sample := f.frozenSample(t, f.owner.AccountID, time.Now())

	check := func(reader *models.Account) bool {
		ok, err := f.service.MayRead(reader, &sample)
		require.NoError(t, err)
		return ok
	}

	assert.True(t, check(&f.owner), "owners read their own data")
	assert.True(t, check(&f.broker), "unlocked broker reads everything")
	assert.False(t, check(&f.grantee), "no portfolio row yet")
	assert.False(t, check(&f.verifier), "no review yet")

	review := models.VerifiedSample{
		SampleID:              sample.SampleID,
		VerifierNotesSampleID: sample.SampleID,
		VerifiedByID:          f.verifier.AccountID,
		VerifiedStatus:        models.VerifiedReviewInProgress,
	}
	require.NoError(t, f.db.Create(&review).Error)
	assert.True(t, check(&f.verifier), "verifier reads the sample it reviews")

	optIn, err := f.service.InitiateGrant(f.owner.AccountID, f.grantee.AccountID,
		&f.campaign.CampaignID, "acme")
	require.NoError(t, err)
	_, err = f.service.Accept(optIn.VerificationKey)
	require.NoError(t, err)
	assert.True(t, check(&f.grantee), "covering portfolio row grants access")

	// Coverage is bounded by ends_at.
	late := f.frozenSample(t, f.owner.AccountID, time.Now().AddDate(3, 0, 0))
	ok, err := f.service.MayRead(&f.grantee, &late)
	require.NoError(t, err)
	assert.False(t, ok)

	// Campaign-scoped rows never cover other campaigns.
	other := models.Campaign{Slug: "supply-2027", Title: "Supply chain 2027"}
	require.NoError(t, f.db.Create(&other).Error)
	foreign := models.Sample{
		AccountID:  f.owner.AccountID,
		CampaignID: other.CampaignID,
		CreatedAt:  time.Now(),
		IsFrozen:   true,
	}
	require.NoError(t, f.db.Create(&foreign).Error)
	ok, err = f.service.MayRead(&f.grantee, &foreign)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyIntegrity(t *testing.T) {
	f := newFixture(t)

	issues, err := f.service.VerifyIntegrity()
	require.NoError(t, err)
	assert.Empty(t, issues)

	endsAt := time.Now().AddDate(1, 0, 0)
	for i := 0; i < 2; i++ {
		require.NoError(t, f.db.Create(&models.Portfolio{
			GranteeID: f.grantee.AccountID,
			AccountID: f.owner.AccountID,
			EndsAt:    endsAt,
		}).Error)
	}
	require.NoError(t, f.db.Create(&models.PortfolioOptIn{
		GranteeID:       f.broker.AccountID,
		AccountID:       f.owner.AccountID,
		State:           models.OptInGrantAccepted,
		VerificationKey: "orphan-key",
		EndsAt:          endsAt,
		CreatedAt:       time.Now(),
	}).Error)
	active := models.Sample{
		AccountID:  f.owner.AccountID,
		CampaignID: f.campaign.CampaignID,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, f.db.Create(&active).Error)
	require.NoError(t, f.db.Create(&models.VerifiedSample{
		SampleID:              active.SampleID,
		VerifierNotesSampleID: active.SampleID,
		VerifiedByID:          f.verifier.AccountID,
		VerifiedStatus:        models.VerifiedReviewInProgress,
	}).Error)
	require.NoError(t, f.db.Create(&models.VerifiedSample{
		SampleID:              active.SampleID + 1000,
		VerifierNotesSampleID: active.SampleID,
		VerifiedByID:          f.verifier.AccountID,
		VerifiedStatus:        models.VerifiedReviewInProgress,
	}).Error)

	issues, err = f.service.VerifyIntegrity()
	require.NoError(t, err)

	checks := make(map[string]int)
	for _, issue := range issues {
		checks[issue.Check]++
	}
	assert.Equal(t, 1, checks["duplicate-portfolio"])
	assert.Equal(t, 1, checks["accepted-without-portfolio"])
	assert.Equal(t, 1, checks["review-of-active-sample"])
	assert.Equal(t, 1, checks["review-without-sample"])
}

func TestVerifyIntegrityCoverageScope(t *testing.T) {
	f := newFixture(t)
	campaignID := f.campaign.CampaignID

	// An account-wide portfolio row covers a campaign-scoped acceptance.
	require.NoError(t, f.db.Create(&models.Portfolio{
		GranteeID: f.grantee.AccountID,
		AccountID: f.owner.AccountID,
		EndsAt:    time.Now().AddDate(1, 0, 0),
	}).Error)
	require.NoError(t, f.db.Create(&models.PortfolioOptIn{
		GranteeID:       f.grantee.AccountID,
		AccountID:       f.owner.AccountID,
		CampaignID:      &campaignID,
		State:           models.OptInGrantAccepted,
		VerificationKey: "scoped-key",
		EndsAt:          time.Now().AddDate(1, 0, 0),
		CreatedAt:       time.Now(),
	}).Error)

	issues, err := f.service.VerifyIntegrity()
	require.NoError(t, err)
	assert.Empty(t, issues)

	// A portfolio whose horizon predates the acceptance does not cover it.
	require.NoError(t, f.db.Create(&models.Portfolio{
		GranteeID: f.broker.AccountID,
		AccountID: f.owner.AccountID,
		EndsAt:    time.Now().AddDate(0, 0, -30),
	}).Error)
	require.NoError(t, f.db.Create(&models.PortfolioOptIn{
		GranteeID:       f.broker.AccountID,
		AccountID:       f.owner.AccountID,
		State:           models.OptInGrantAccepted,
		VerificationKey: "stale-key",
		EndsAt:          time.Now().AddDate(1, 0, 0),
		CreatedAt:       time.Now(),
	}).Error)

	issues, err = f.service.VerifyIntegrity()
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "accepted-without-portfolio", issues[0].Check)
}
