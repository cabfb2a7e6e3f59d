package handlers

import (
	"bytes"

	"github.com/gofiber/fiber/v2"
	"github.com/greenlattice/esgbench/internal/importer"
)

// CampaignHandler serves campaign administration routes
type CampaignHandler struct {
	Importer *importer.Importer
}

// Import handles POST /api/campaigns/import
// @Summary Import a campaign from a CSV sheet
// @Description Row 1 title, row 2 headers with segment columns, rows 3+ headings and practices
// @Tags Campaigns
// @Accept text/csv
// @Produce json
// @Success 200 {object} importer.Result
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Router /campaigns/import [post]
func (h *CampaignHandler) Import(c *fiber.Ctx) error {
	result, err := h.Importer.ImportCSV(bytes.NewReader(c.Body()))
	if err != nil {
		return fail(c, err, "importCampaign")
	}
	return c.Status(fiber.StatusOK).JSON(result)
}
