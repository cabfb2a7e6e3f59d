package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/greenlattice/esgbench/internal/config"
	"github.com/greenlattice/esgbench/internal/services"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// HealthHandler serves the health endpoint
type HealthHandler struct {
	Cfg *config.Config
	DB  *gorm.DB
	Log *zap.Logger
}

// GetHealth handles GET /api/health
// @Summary Service health
// @Tags Health
// @Accept json
// @Produce json
// @Success 200 {object} services.HealthCheckResult
// @Failure 503 {object} services.HealthCheckResult
// @Router /health [get]
func (h *HealthHandler) GetHealth(c *fiber.Ctx) error {
	result := services.HealthCheck(h.Cfg, h.DB, h.Log)
	status := fiber.StatusOK
	if result.Status != "healthy" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(result)
}
