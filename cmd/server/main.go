// main.go
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

package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	swagger "github.com/gofiber/swagger"
	"github.com/greenlattice/esgbench/internal/assessment"
	"github.com/greenlattice/esgbench/internal/config"
	"github.com/greenlattice/esgbench/internal/content"
	"github.com/greenlattice/esgbench/internal/database"
	"github.com/greenlattice/esgbench/internal/handlers"
	"github.com/greenlattice/esgbench/internal/importer"
	"github.com/greenlattice/esgbench/internal/middleware"
	"github.com/greenlattice/esgbench/internal/notify"
	"github.com/greenlattice/esgbench/internal/portfolio"
	"github.com/greenlattice/esgbench/internal/samples"
	"github.com/greenlattice/esgbench/internal/scorecards"
	"github.com/greenlattice/esgbench/internal/scoring"
	"github.com/greenlattice/esgbench/internal/types"
	"github.com/greenlattice/esgbench/internal/utils"
	"go.uber.org/zap"

	_ "github.com/greenlattice/esgbench/docs/api" // Swagger docs
)

// @title esgbench API
// @version 1.0.0
// @description Multi-tenant ESG assessment and benchmarking core
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url https://github.com/greenlattice/esgbench
// @contact.email dev@greenlattice.io

// @license.name AGPL-3.0
// @license.url https://www.gnu.org/licenses/agpl-3.0.html

// @host localhost:3000
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	zlog, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal("failed to load configuration", zap.Error(err))
	}

	// Connect to database
	db, err := database.Connect(cfg, zlog)
	if err != nil {
		zlog.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	// Run auto-migrations and unit vocabulary seed
	if err := database.AutoMigrate(db); err != nil {
		zlog.Fatal("failed to run migrations", zap.Error(err))
	}
	if err := database.Seed(db); err != nil {
		zlog.Fatal("failed to seed unit vocabulary", zap.Error(err))
	}

	// Wire the core services
	store := content.NewStore(db, zlog)
	engine := scoring.NewEngine(db, cfg.Scoring, store, zlog)
	cards := scorecards.NewService(db, engine, zlog)
	notifier := &notify.LogNotifier{Log: zlog}
	sampleService := samples.New(db, store, engine, cards, notifier, zlog)
	shares := portfolio.New(db, cfg.Scoring, zlog)
	views := assessment.New(db, store, engine, cards, sampleService, shares, zlog)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(compress.New())

	// Prometheus metrics
	prometheus := fiberprometheus.New("esgbench")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	// Swagger documentation
	app.Get("/swagger/*", swagger.HandlerDefault)

	// API routes under /api
	api := app.Group("/api")
	api.Use(middleware.VersionMiddleware())

	// Create handlers
	healthHandler := &handlers.HealthHandler{Cfg: cfg, DB: db, Log: zlog}
	assessmentHandler := &handlers.AssessmentHandler{Content: store, Views: views, Samples: sampleService}
	sampleHandler := &handlers.SampleHandler{DB: db, Content: store, Samples: sampleService}
	portfolioHandler := &handlers.PortfolioHandler{Shares: shares}
	campaignHandler := &handlers.CampaignHandler{Importer: importer.New(db, zlog)}

	api.Get("/health", healthHandler.GetHealth)

	auth := middleware.Auth(db, cfg.JWTSecret)

	// Assessment routes
	api.Get("/assessment/:campaign/content", auth, assessmentHandler.GetContent)
	api.Get("/assessment/:campaign/samples/:sample", auth, assessmentHandler.GetAssessment)
	api.Get("/assessment/:campaign/samples/:sample/benchmarks", auth, assessmentHandler.GetBenchmarks)
	api.Post("/assessment/:campaign/samples/active", auth, sampleHandler.EnsureActive)
	api.Post("/assessment/:campaign/samples/planned", auth, sampleHandler.EnsurePlanned)

	// Sample routes
	api.Put("/samples/:sample/answers", auth, sampleHandler.PutAnswer)
	api.Post("/samples/:sample/freeze", auth, sampleHandler.Freeze)
	api.Post("/samples/:sample/review", auth, middleware.RequireRole("verifier"), sampleHandler.OpenReview)
	api.Post("/samples/:sample/review/freeze", auth, middleware.RequireRole("verifier"), sampleHandler.CloseReview)

	// Portfolio routes
	api.Post("/portfolio/grants", auth, portfolioHandler.InitiateGrant)
	api.Post("/portfolio/requests", auth, portfolioHandler.InitiateRequest)
	api.Post("/portfolio/accept/:key", auth, portfolioHandler.Accept)
	api.Post("/portfolio/deny/:key", auth, portfolioHandler.Deny)
	api.Get("/portfolio/pending", auth, portfolioHandler.Pending)
	api.Get("/portfolio/integrity", auth, middleware.RequireRole("broker"), portfolioHandler.Integrity)

	// Campaign administration
	api.Post("/campaigns/import", auth, middleware.RequireRole("broker"), campaignHandler.Import)

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return utils.NotFoundResponse(c, "[404] Resource Not Found")
	})

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		zlog.Info("gracefully shutting down")
		_ = app.Shutdown()
	}()

	zlog.Info("starting server", zap.String("port", cfg.Port))
	if err := app.Listen(":" + cfg.Port); err != nil {
		zlog.Fatal("failed to start server", zap.Error(err))
	}

	zlog.Info("server stopped")
}

// customErrorHandler handles errors globally
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := err.Error()
	errorType := "unknown"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}
	if e, ok := err.(*types.CustomError); ok {
		code = e.Code
		message = e.Message
		errorType = e.Type
	}

	return c.Status(code).JSON(fiber.Map{
		"status":    code,
		"message":   message,
		"ok":        false,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"url":       c.OriginalURL(),
		"type":      errorType,
	})
}
