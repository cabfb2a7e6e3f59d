// assessment.go
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

package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/greenlattice/esgbench/internal/assessment"
	"github.com/greenlattice/esgbench/internal/content"
	"github.com/greenlattice/esgbench/internal/middleware"
	"github.com/greenlattice/esgbench/internal/samples"
)

// AssessmentHandler serves assessment views and benchmarks
type AssessmentHandler struct {
	Content *content.Store
	Views   *assessment.Service
	Samples *samples.Service
}

// GetAssessment handles GET /api/assessment/:campaign/samples/:sample
// @Summary Get the assessment view of a sample
// @Description Content rows merged with answers, candidates, planned improvements, opportunity and peer rates
// @Tags Assessment
// @Accept json
// @Produce json
// @Param campaign path string true "Campaign slug"
// @Param sample path int true "Sample ID"
// @Param path query string false "Path prefix filter"
// @Success 200 {object} assessment.ContentResponse
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /assessment/{campaign}/samples/{sample} [get]
func (h *AssessmentHandler) GetAssessment(c *fiber.Ctx) error {
	campaign, err := h.Content.CampaignBySlug(c.Params("campaign"))
	if err != nil {
		return fail(c, err, "getAssessment")
	}
	sampleID, err := parseID(c, "sample")
	if err != nil {
		return fail(c, err, "getAssessment")
	}
	sample, err := h.Samples.ByID(sampleID)
	if err != nil {
		return fail(c, err, "getAssessment")
	}

	view, err := h.Views.View(middleware.Account(c), sample, campaign, c.Query("path"))
	if err != nil {
		return fail(c, err, "getAssessment")
	}
	return c.Status(fiber.StatusOK).JSON(view)
}

// GetBenchmarks handles GET /api/assessment/:campaign/samples/:sample/benchmarks
// @Summary Get peer benchmarks for a sample
// @Description Scorecard comparison against the campaign's peer population
// @Tags Assessment
// @Accept json
// @Produce json
// @Param campaign path string true "Campaign slug"
// @Param sample path int true "Sample ID"
// @Param path query string false "Path prefix filter"
// @Success 200 {object} assessment.BenchmarksResponse
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /assessment/{campaign}/samples/{sample}/benchmarks [get]
func (h *AssessmentHandler) GetBenchmarks(c *fiber.Ctx) error {
	campaign, err := h.Content.CampaignBySlug(c.Params("campaign"))
	if err != nil {
		return fail(c, err, "getBenchmarks")
	}
	sampleID, err := parseID(c, "sample")
	if err != nil {
		return fail(c, err, "getBenchmarks")
	}
	sample, err := h.Samples.ByID(sampleID)
	if err != nil {
		return fail(c, err, "getBenchmarks")
	}

	benchmarks, err := h.Views.Benchmarks(middleware.Account(c), sample, campaign, c.Query("path"))
	if err != nil {
		return fail(c, err, "getBenchmarks")
	}
	return c.Status(fiber.StatusOK).JSON(benchmarks)
}

// GetContent handles GET /api/assessment/:campaign/content
// @Summary Get the flattened campaign content
// @Description Ordered, indented presentation rows for the campaign
// @Tags Assessment
// @Accept json
// @Produce json
// @Param campaign path string true "Campaign slug"
// @Param path query string false "Path prefix filter"
// @Success 200 {array} content.Row
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /assessment/{campaign}/content [get]
func (h *AssessmentHandler) GetContent(c *fiber.Ctx) error {
	campaign, err := h.Content.CampaignBySlug(c.Params("campaign"))
	if err != nil {
		return fail(c, err, "getContent")
	}
	rows, err := h.Content.FlattenCampaign(campaign.CampaignID, c.Query("path"), true)
	if err != nil {
		return fail(c, err, "getContent")
	}
	if len(rows) == 0 {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.Status(fiber.StatusOK).JSON(rows)
}
