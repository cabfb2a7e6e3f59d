package scorecards_test

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/greenlattice/esgbench/internal/answers"
	"github.com/greenlattice/esgbench/internal/config"
	"github.com/greenlattice/esgbench/internal/content"
	"github.com/greenlattice/esgbench/internal/database"
	"github.com/greenlattice/esgbench/internal/models"
	"github.com/greenlattice/esgbench/internal/scorecards"
	"github.com/greenlattice/esgbench/internal/scoring"
	"github.com/greenlattice/esgbench/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func TestBucketBoundaries(t *testing.T) {
	cases := []struct {
		score  float64
		bucket string
		stage  string
	}{
		{0, "1-40", "Adopting"},
		{40, "1-40", "Adopting"},
		{41, "41-60", "Growing"},
		{60, "41-60", "Growing"},
		{61, "61-80", "Leading"},
		{80, "61-80", "Leading"},
		{81, "81-100", "Pioneering"},
		{100, "81-100", "Pioneering"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.bucket, scorecards.Bucket(tc.score), "score %v", tc.score)
		assert.Equal(t, tc.stage, scorecards.Stage(tc.score), "score %v", tc.score)
	}
}

type fixture struct {
	db       *gorm.DB
	store    *content.Store
	service  *scorecards.Service
	account  models.Account
	campaign models.Campaign

	assessment models.Unit
	question   models.Question
}

func newFixture(t *testing.T) *fixture {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	require.NoError(t, database.Seed(db))

	log := zap.NewNop()
	f := &fixture{db: db}
	f.store = content.NewStore(db, log)
	engine := scoring.NewEngine(db, config.DefaultScoring(), f.store, log)
	f.service = scorecards.NewService(db, engine, log)

	f.account = models.Account{Slug: "acme", Name: "Acme", Kind: models.AccountSupplier}
	require.NoError(t, db.Create(&f.account).Error)
	f.campaign = models.Campaign{Slug: "c1", Title: "Campaign", MandatorySegment: "/environment"}
	require.NoError(t, db.Create(&f.campaign).Error)
	require.NoError(t, db.Where("slug = ?", models.UnitAssessment).First(&f.assessment).Error)

	environment := models.Element{Slug: "environment", Title: "Environment",
		Extra: datatypes.JSON(`{"pagebreak":true,"tags":["scorecard"]}`)}
	require.NoError(t, db.Create(&environment).Error)
	reduces := models.Element{Slug: "reduces-consumption", Title: "Reduces consumption",
		Extra: datatypes.JSON(`{"intrinsic_values":{"environmental":2,"business":2,"profitability":2,"implementation_ease":2}}`)}
	require.NoError(t, db.Create(&reduces).Error)
	require.NoError(t, f.store.AddChild("environment", "reduces-consumption", nil))

	f.question = models.Question{
		Path:          "/environment/reduces-consumption",
		ContentID:     reduces.ElementID,
		DefaultUnitID: &f.assessment.UnitID,
	}
	require.NoError(t, db.Create(&f.question).Error)
	require.NoError(t, db.Create(&models.EnumeratedQuestion{
		CampaignID: f.campaign.CampaignID,
		QuestionID: f.question.QuestionID,
		Rank:       0,
	}).Error)
	return f
}

func (f *fixture) sampleWithAnswer(t *testing.T, frozen bool, measured string) models.Sample {
	sample := models.Sample{
		AccountID:  f.account.AccountID,
		CampaignID: f.campaign.CampaignID,
		CreatedAt:  time.Now(),
		IsFrozen:   frozen,
	}
	if !frozen {
		sample.ActiveKey = models.WorkingKey(f.account.AccountID, f.campaign.CampaignID)
	}
	require.NoError(t, f.db.Create(&sample).Error)
	if measured != "" {
		_, err := answers.UpdateOrCreate(f.db, sample.SampleID, f.question.QuestionID,
			f.assessment.UnitID, measured, nil, time.Now(), "acme")
		require.NoError(t, err)
	}
	return sample
}

func TestPopulateOnce(t *testing.T) {
	f := newFixture(t)
	sample := f.sampleWithAnswer(t, true, "")

	// Answer directly; the sample is frozen so the store-level guard is
	// bypassed the way the freeze protocol does it.
	answer := models.Answer{
		SampleID:   sample.SampleID,
		QuestionID: f.question.QuestionID,
		UnitID:     f.assessment.UnitID,
		Measured:   models.ChoiceYes,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, f.db.Create(&answer).Error)

	require.NoError(t, f.service.Populate(sample, &f.campaign, ""))

	var rows []models.ScorecardCache
	require.NoError(t, f.db.Where("sample_id = ?", sample.SampleID).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "/environment", rows[0].Path)
	require.NotNil(t, rows[0].NormalizedScore)
	assert.Equal(t, 100, *rows[0].NormalizedScore)

	err := f.service.Populate(sample, &f.campaign, "")
	require.Error(t, err)
	assert.Equal(t, types.KindConflict, types.KindOf(err))
}

func TestGetComputesActiveLive(t *testing.T) {
	f := newFixture(t)
	sample := f.sampleWithAnswer(t, false, models.ChoiceMostlyYes)

	rows, err := f.service.Get(&f.campaign, "", []models.Sample{sample}, false)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].NormalizedScore)
	assert.Equal(t, 67, *rows[0].NormalizedScore)

	// Nothing persisted for active samples.
	var count int64
	require.NoError(t, f.db.Model(&models.ScorecardCache{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestTopNormalizedScore(t *testing.T) {
	f := newFixture(t)
	sample := f.sampleWithAnswer(t, true, "")
	answer := models.Answer{
		SampleID:   sample.SampleID,
		QuestionID: f.question.QuestionID,
		UnitID:     f.assessment.UnitID,
		Measured:   models.ChoiceMostlyNo,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, f.db.Create(&answer).Error)
	require.NoError(t, f.service.Populate(sample, &f.campaign, ""))

	top, err := f.service.TopNormalizedScore(sample, &f.campaign)
	require.NoError(t, err)
	require.NotNil(t, top)
	assert.Equal(t, 33, *top)

	// Without a mandatory segment the best segment wins.
	open := models.Campaign{Slug: "open", Title: "Open"}
	top, err = f.service.TopNormalizedScore(sample, &open)
	require.NoError(t, err)
	require.NotNil(t, top)
	assert.Equal(t, 33, *top)
}
