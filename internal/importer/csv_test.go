package importer_test

import (
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/greenlattice/esgbench/internal/database"
	"github.com/greenlattice/esgbench/internal/importer"
	"github.com/greenlattice/esgbench/internal/models"
	"github.com/greenlattice/esgbench/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	require.NoError(t, database.Seed(db))
	return db
}

const sheet = `Supply Chain 2026,,,,
slug,title,level_unit,Environment,Governance
energy,Energy,1,x,
reduces-consumption,Reduces energy consumption,assessment,required,
tracks-energy-consumption,Tracks energy consumption,assessment,x,
metering,Metering,2,x,
smart-meters,Uses smart meters,assessment,x,
reports-publicly,Reports publicly,assessment,,x
`

func TestImportCSV(t *testing.T) {
	db := setupDB(t)
	im := importer.New(db, zap.NewNop())

	result, err := im.ImportCSV(strings.NewReader(sheet))
	require.NoError(t, err)

	assert.Equal(t, "supply-chain-2026", result.Campaign.Slug)
	assert.Equal(t, "Supply Chain 2026", result.Campaign.Title)
	assert.Equal(t, []string{"environment", "governance"}, result.Segments)
	assert.Equal(t, 4, result.NbQuestions)

	var questions []models.Question
	require.NoError(t, db.Order("path").Find(&questions).Error)
	paths := make([]string, 0, len(questions))
	for _, q := range questions {
		paths = append(paths, q.Path)
	}
	assert.Equal(t, []string{
		"/environment/energy/metering/smart-meters",
		"/environment/energy/reduces-consumption",
		"/environment/energy/tracks-energy-consumption",
		"/governance/reports-publicly",
	}, paths)

	// Only the cell marked "required" yields a mandatory question.
	var enumerated []models.EnumeratedQuestion
	require.NoError(t, db.Preload("Question").Order("question_rank").Find(&enumerated).Error)
	require.Len(t, enumerated, 4)
	assert.Equal(t, "/environment/energy/reduces-consumption", enumerated[0].Question.Path)
	assert.True(t, enumerated[0].Required)
	assert.False(t, enumerated[1].Required)

	// Ranks follow sheet order across segments.
	assert.Equal(t, "/governance/reports-publicly", enumerated[3].Question.Path)
	assert.Greater(t, enumerated[3].Rank, enumerated[2].Rank)

	// Headings hang off the segment roots with the sheet's nesting.
	var environment, energy, metering models.Element
	require.NoError(t, db.Where("slug = ?", "environment").First(&environment).Error)
	require.NoError(t, db.Where("slug = ?", "energy").First(&energy).Error)
	require.NoError(t, db.Where("slug = ?", "metering").First(&metering).Error)

	var envToEnergy, energyToMetering models.Relationship
	require.NoError(t, db.Where("orig_id = ? AND dest_id = ?", environment.ElementID, energy.ElementID).
		First(&envToEnergy).Error)
	require.NoError(t, db.Where("orig_id = ? AND dest_id = ?", energy.ElementID, metering.ElementID).
		First(&energyToMetering).Error)
}

func TestImportCSVConflictOnReimport(t *testing.T) {
	db := setupDB(t)
	im := importer.New(db, zap.NewNop())

	_, err := im.ImportCSV(strings.NewReader(sheet))
	require.NoError(t, err)

	_, err = im.ImportCSV(strings.NewReader(sheet))
	require.Error(t, err)
	assert.Equal(t, types.KindConflict, types.KindOf(err))
}

func TestImportCSVSharedQuestionsAcrossCampaigns(t *testing.T) {
	db := setupDB(t)
	im := importer.New(db, zap.NewNop())

	_, err := im.ImportCSV(strings.NewReader(sheet))
	require.NoError(t, err)

	second := strings.Replace(sheet, "Supply Chain 2026", "Supply Chain 2027", 1)
	result, err := im.ImportCSV(strings.NewReader(second))
	require.NoError(t, err)
	assert.Equal(t, 4, result.NbQuestions)
	// Elements and questions are reused, not duplicated.
	assert.Zero(t, result.NbElements)

	var questionCount int64
	require.NoError(t, db.Model(&models.Question{}).Count(&questionCount).Error)
	assert.EqualValues(t, 4, questionCount)

	var enumeratedCount int64
	require.NoError(t, db.Model(&models.EnumeratedQuestion{}).Count(&enumeratedCount).Error)
	assert.EqualValues(t, 8, enumeratedCount)
}

func TestImportCSVUnknownUnit(t *testing.T) {
	db := setupDB(t)
	im := importer.New(db, zap.NewNop())

	bad := `Broken,,,,
slug,title,level_unit,Environment
something,Something,bogus-unit,x
`
	_, err := im.ImportCSV(strings.NewReader(bad))
	require.Error(t, err)
	assert.Equal(t, types.KindValidation, types.KindOf(err))
}

func TestImportCSVDepthSkip(t *testing.T) {
	db := setupDB(t)
	im := importer.New(db, zap.NewNop())

	bad := `Broken,,,,
slug,title,level_unit,Environment
deep,Deep heading,2,x
`
	_, err := im.ImportCSV(strings.NewReader(bad))
	require.Error(t, err)
	assert.Equal(t, types.KindValidation, types.KindOf(err))
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "supply-chain-2026", importer.Slugify("Supply Chain 2026"))
	assert.Equal(t, "energy-water", importer.Slugify("  Energy & Water "))
	assert.Equal(t, "co2", importer.Slugify("CO2"))
}
