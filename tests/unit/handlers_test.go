// handlers_test.go
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

package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/greenlattice/esgbench/internal/config"
	"github.com/greenlattice/esgbench/internal/content"
	"github.com/greenlattice/esgbench/internal/database"
	"github.com/greenlattice/esgbench/internal/handlers"
	"github.com/greenlattice/esgbench/internal/models"
	"github.com/greenlattice/esgbench/internal/notify"
	"github.com/greenlattice/esgbench/internal/portfolio"
	"github.com/greenlattice/esgbench/internal/samples"
	"github.com/greenlattice/esgbench/internal/scorecards"
	"github.com/greenlattice/esgbench/internal/scoring"
	"github.com/greenlattice/esgbench/tests/helpers"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// setupTestDB creates an in-memory SQLite database with the schema and the
// seed units loaded
func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	if err := database.Seed(db); err != nil {
		t.Fatalf("Failed to seed test database: %v", err)
	}
	return db
}

// newSampleApp wires the sample routes behind a stub auth middleware that
// injects the given account, the way middleware.Auth would after a valid
// token.
func newSampleApp(db *gorm.DB, account *models.Account) (*fiber.App, *samples.Service) {
	log := zap.NewNop()
	store := content.NewStore(db, log)
	engine := scoring.NewEngine(db, config.DefaultScoring(), store, log)
	cards := scorecards.NewService(db, engine, log)
	service := samples.New(db, store, engine, cards, &notify.LogNotifier{Log: log}, log)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("account", account)
		return c.Next()
	})
	handler := &handlers.SampleHandler{DB: db, Content: store, Samples: service}
	app.Post("/api/assessment/:campaign/samples/active", handler.EnsureActive)
	app.Post("/api/assessment/:campaign/samples/planned", handler.EnsurePlanned)
	app.Put("/api/samples/:sample/answers", handler.PutAnswer)
	app.Post("/api/samples/:sample/freeze", handler.Freeze)
	return app, service
}

// TestEnsureActiveEndpoint tests POST /api/assessment/:campaign/samples/active
func TestEnsureActiveEndpoint(t *testing.T) {
	db := setupTestDB(t)
	account := helpers.CreateTestAccount(t, db, "acme", models.AccountSupplier)
	helpers.CreateTestCampaign(t, db, "supply-2026")
	app, _ := newSampleApp(db, &account)

	req := httptest.NewRequest("POST", "/api/assessment/supply-2026/samples/active", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	var first models.Sample
	if err := json.NewDecoder(resp.Body).Decode(&first); err != nil {
		t.Fatalf("Failed to decode sample: %v", err)
	}
	if first.SampleID == 0 {
		t.Error("Expected a sample ID")
	}
	if first.IsFrozen {
		t.Error("Working assessment must not be frozen")
	}

	// Repeating the call returns the same working assessment.
	resp, err = app.Test(httptest.NewRequest("POST", "/api/assessment/supply-2026/samples/active", nil))
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	var second models.Sample
	if err := json.NewDecoder(resp.Body).Decode(&second); err != nil {
		t.Fatalf("Failed to decode sample: %v", err)
	}
	if second.SampleID != first.SampleID {
		t.Errorf("Expected sample %d again, got %d", first.SampleID, second.SampleID)
	}

	// Unknown campaign slug.
	resp, err = app.Test(httptest.NewRequest("POST", "/api/assessment/no-such/samples/active", nil))
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	if resp.StatusCode != 404 {
		t.Errorf("Expected status 404, got %d", resp.StatusCode)
	}
}

// TestPutAnswerEndpoint tests PUT /api/samples/:sample/answers
func TestPutAnswerEndpoint(t *testing.T) {
	db := setupTestDB(t)
	account := helpers.CreateTestAccount(t, db, "acme", models.AccountSupplier)
	fixture := helpers.CreateTestCampaign(t, db, "supply-2026")
	app, service := newSampleApp(db, &account)

	sample, err := service.EnsureActive(account.AccountID, fixture.Campaign.CampaignID)
	if err != nil {
		t.Fatalf("Failed to open working assessment: %v", err)
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"path":     fixture.Reduces.Path,
		"unit":     models.UnitAssessment,
		"measured": models.ChoiceYes,
	})
	url := "/api/samples/" + itoa(sample.SampleID) + "/answers"
	req := httptest.NewRequest("PUT", url, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	var answer models.Answer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		t.Fatalf("Failed to decode answer: %v", err)
	}
	if answer.Measured != models.ChoiceYes {
		t.Errorf("Expected measured %q, got %q", models.ChoiceYes, answer.Measured)
	}

	// Another account may not write into this sample.
	stranger := helpers.CreateTestAccount(t, db, "stranger", models.AccountSupplier)
	strangerApp, _ := newSampleApp(db, &stranger)
	req = httptest.NewRequest("PUT", url, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err = strangerApp.Test(req)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	if resp.StatusCode != 403 {
		t.Errorf("Expected status 403 for foreign sample, got %d", resp.StatusCode)
	}

	// Frozen samples refuse writes.
	err = db.Model(&models.Sample{}).
		Where("sample_id = ?", sample.SampleID).
		Updates(map[string]interface{}{"is_frozen": true, "active_key": nil}).Error
	if err != nil {
		t.Fatalf("Failed to freeze sample: %v", err)
	}
	req = httptest.NewRequest("PUT", url, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	if resp.StatusCode != 409 {
		t.Errorf("Expected status 409 for frozen sample, got %d", resp.StatusCode)
	}
}

// TestPutAnswerBatchEndpoint tests that PUT /api/samples/:sample/answers
// also accepts an array of answers
func TestPutAnswerBatchEndpoint(t *testing.T) {
	db := setupTestDB(t)
	account := helpers.CreateTestAccount(t, db, "acme", models.AccountSupplier)
	fixture := helpers.CreateTestCampaign(t, db, "supply-2026")
	app, service := newSampleApp(db, &account)

	sample, err := service.EnsureActive(account.AccountID, fixture.Campaign.CampaignID)
	if err != nil {
		t.Fatalf("Failed to open working assessment: %v", err)
	}

	payload, _ := json.Marshal([]map[string]interface{}{
		{"path": fixture.Reduces.Path, "unit": models.UnitAssessment, "measured": models.ChoiceYes},
		{"path": fixture.Tracks.Path, "unit": models.UnitAssessment, "measured": models.ChoiceMostlyYes},
	})
	req := httptest.NewRequest("PUT", "/api/samples/"+itoa(sample.SampleID)+"/answers",
		bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	var saved []models.Answer
	if err := json.NewDecoder(resp.Body).Decode(&saved); err != nil {
		t.Fatalf("Failed to decode answers: %v", err)
	}
	if len(saved) != 2 {
		t.Fatalf("Expected 2 answers, got %d", len(saved))
	}

	var count int64
	if err := db.Model(&models.Answer{}).Where("sample_id = ?", sample.SampleID).Count(&count).Error; err != nil {
		t.Fatalf("Failed to count answers: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 stored answers, got %d", count)
	}
}

// TestInitiateGrantEndpoint tests POST /api/portfolio/grants with the
// account ID sent as a JSON string
func TestInitiateGrantEndpoint(t *testing.T) {
	db := setupTestDB(t)
	owner := helpers.CreateTestAccount(t, db, "acme", models.AccountSupplier)
	grantee := helpers.CreateTestAccount(t, db, "megacorp", models.AccountAlliance)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("account", &owner)
		return c.Next()
	})
	handler := &handlers.PortfolioHandler{Shares: portfolio.New(db, config.DefaultScoring(), zap.NewNop())}
	app.Post("/api/portfolio/grants", handler.InitiateGrant)

	body := []byte(`{"account_id":"` + itoa(grantee.AccountID) + `"}`)
	req := httptest.NewRequest("POST", "/api/portfolio/grants", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	var optIn models.PortfolioOptIn
	if err := json.NewDecoder(resp.Body).Decode(&optIn); err != nil {
		t.Fatalf("Failed to decode opt-in: %v", err)
	}
	if optIn.State != models.OptInGrantInitiated {
		t.Errorf("Expected state %s, got %s", models.OptInGrantInitiated, optIn.State)
	}
	if optIn.GranteeID != grantee.AccountID {
		t.Errorf("Expected grantee %d, got %d", grantee.AccountID, optIn.GranteeID)
	}
}

// TestFreezeEndpoint tests POST /api/samples/:sample/freeze
func TestFreezeEndpoint(t *testing.T) {
	db := setupTestDB(t)
	account := helpers.CreateTestAccount(t, db, "acme", models.AccountSupplier)
	fixture := helpers.CreateTestCampaign(t, db, "supply-2026")
	app, service := newSampleApp(db, &account)

	sample, err := service.EnsureActive(account.AccountID, fixture.Campaign.CampaignID)
	if err != nil {
		t.Fatalf("Failed to open working assessment: %v", err)
	}
	url := "/api/samples/" + itoa(sample.SampleID) + "/freeze"

	// Only the optional question answered: the required one blocks the
	// freeze with the offending path in the payload.
	helpers.AnswerAssessment(t, db, fixture, sample.SampleID, fixture.Tracks, models.ChoiceYes)
	resp, err := app.Test(httptest.NewRequest("POST", url, nil))
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	if resp.StatusCode != 422 {
		t.Fatalf("Expected status 422, got %d", resp.StatusCode)
	}
	var incomplete struct {
		Type                string   `json:"type"`
		NbRequiredAnswers   int      `json:"nb_required_answers"`
		NbRequiredQuestions int      `json:"nb_required_questions"`
		Results             []string `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&incomplete); err != nil {
		t.Fatalf("Failed to decode error payload: %v", err)
	}
	if incomplete.Type != "incompleteRequired" {
		t.Errorf("Expected type incompleteRequired, got %q", incomplete.Type)
	}
	if incomplete.NbRequiredAnswers != 0 || incomplete.NbRequiredQuestions != 1 {
		t.Errorf("Expected 0/1 required answers, got %d/%d",
			incomplete.NbRequiredAnswers, incomplete.NbRequiredQuestions)
	}
	if len(incomplete.Results) != 1 || incomplete.Results[0] != fixture.Reduces.Path {
		t.Errorf("Expected results [%s], got %v", fixture.Reduces.Path, incomplete.Results)
	}

	// With the required question answered the freeze succeeds and returns
	// the frozen per-segment clones.
	helpers.AnswerAssessment(t, db, fixture, sample.SampleID, fixture.Reduces, models.ChoiceYes)
	resp, err = app.Test(httptest.NewRequest("POST", url, nil))
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	var frozen []models.Sample
	if err := json.NewDecoder(resp.Body).Decode(&frozen); err != nil {
		t.Fatalf("Failed to decode frozen samples: %v", err)
	}
	if len(frozen) != 1 {
		t.Fatalf("Expected 1 frozen sample, got %d", len(frozen))
	}
	if !frozen[0].IsFrozen {
		t.Error("Expected the clone to be frozen")
	}

	// Nothing changed since, so a second freeze is refused as a duplicate.
	resp, err = app.Test(httptest.NewRequest("POST", url, nil))
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	if resp.StatusCode != 409 {
		t.Errorf("Expected status 409 for duplicate freeze, got %d", resp.StatusCode)
	}
}

// TestGetContentEndpoint tests GET /api/assessment/:campaign/content
func TestGetContentEndpoint(t *testing.T) {
	db := setupTestDB(t)
	helpers.CreateTestCampaign(t, db, "supply-2026")
	log := zap.NewNop()
	store := content.NewStore(db, log)

	app := fiber.New()
	handler := &handlers.AssessmentHandler{Content: store}
	app.Get("/api/assessment/:campaign/content", handler.GetContent)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/assessment/supply-2026/content", nil))
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	var rows []content.Row
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		t.Fatalf("Failed to decode rows: %v", err)
	}
	if len(rows) == 0 {
		t.Fatal("Expected content rows")
	}
	if rows[0].Path != "/environment" {
		t.Errorf("Expected first row /environment, got %s", rows[0].Path)
	}

	// A prefix that matches nothing yields 204.
	resp, err = app.Test(httptest.NewRequest("GET",
		"/api/assessment/supply-2026/content?path=/no-such-segment", nil))
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	if resp.StatusCode != 204 {
		t.Errorf("Expected status 204, got %d", resp.StatusCode)
	}
}

// TestHealthEndpoint tests GET /api/health
func TestHealthEndpoint(t *testing.T) {
	db := setupTestDB(t)
	cfg := &config.Config{DBType: "sqlite", DBDatabase: ":memory:"}

	app := fiber.New()
	handler := &handlers.HealthHandler{Cfg: cfg, DB: db, Log: zap.NewNop()}
	app.Get("/api/health", handler.GetHealth)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/health", nil))
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	var result struct {
		Status   string `json:"status"`
		Database string `json:"database"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode health result: %v", err)
	}
	if result.Status != "healthy" {
		t.Errorf("Expected status healthy, got %q", result.Status)
	}
	if result.Database != "ok" {
		t.Errorf("Expected database ok, got %q", result.Database)
	}
}

func itoa(id uint64) string {
	return strconv.FormatUint(id, 10)
}
