// samples.go
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
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/greenlattice/esgbench/internal/answers"
	"github.com/greenlattice/esgbench/internal/content"
	"github.com/greenlattice/esgbench/internal/middleware"
	"github.com/greenlattice/esgbench/internal/models"
	"github.com/greenlattice/esgbench/internal/samples"
	"github.com/greenlattice/esgbench/internal/types"
	"gorm.io/gorm"
)

// SampleHandler serves sample lifecycle routes
type SampleHandler struct {
	DB      *gorm.DB
	Content *content.Store
	Samples *samples.Service
}

// EnsureActive handles POST /api/assessment/:campaign/samples/active
// @Summary Get or create the working assessment
// @Tags Samples
// @Accept json
// @Produce json
// @Param campaign path string true "Campaign slug"
// @Success 200 {object} models.Sample
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /assessment/{campaign}/samples/active [post]
func (h *SampleHandler) EnsureActive(c *fiber.Ctx) error {
	campaign, err := h.Content.CampaignBySlug(c.Params("campaign"))
	if err != nil {
		return fail(c, err, "ensureActive")
	}
	sample, err := h.Samples.EnsureActive(middleware.Account(c).AccountID, campaign.CampaignID)
	if err != nil {
		return fail(c, err, "ensureActive")
	}
	return c.Status(fiber.StatusOK).JSON(sample)
}

// EnsurePlanned handles POST /api/assessment/:campaign/samples/planned
// @Summary Get or create the improvement-plan sample
// @Tags Samples
// @Accept json
// @Produce json
// @Param campaign path string true "Campaign slug"
// @Success 200 {object} models.Sample
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /assessment/{campaign}/samples/planned [post]
func (h *SampleHandler) EnsurePlanned(c *fiber.Ctx) error {
	campaign, err := h.Content.CampaignBySlug(c.Params("campaign"))
	if err != nil {
		return fail(c, err, "ensurePlanned")
	}
	sample, err := h.Samples.EnsurePlanned(middleware.Account(c).AccountID, campaign.CampaignID)
	if err != nil {
		return fail(c, err, "ensurePlanned")
	}
	return c.Status(fiber.StatusOK).JSON(sample)
}

type answerRequest struct {
	Path        string   `json:"path"`
	Unit        string   `json:"unit"`
	Measured    string   `json:"measured"`
	Denominator *float64 `json:"denominator,omitempty"`
}

// PutAnswer handles PUT /api/samples/:sample/answers
// @Summary Record or update answers
// @Description Accepts a single answer object or an array of them
// @Tags Samples
// @Accept json
// @Produce json
// @Param sample path int true "Sample ID"
// @Param answer body answerRequest true "Answer payload"
// @Success 200 {object} models.Answer
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Router /samples/{sample}/answers [put]
func (h *SampleHandler) PutAnswer(c *fiber.Ctx) error {
	sampleID, err := parseID(c, "sample")
	if err != nil {
		return fail(c, err, "putAnswer")
	}
	var reqs types.FlexList[answerRequest]
	if err := json.Unmarshal(c.Body(), &reqs); err != nil {
		return fail(c, types.E(types.KindValidation, "malformed body: %v", err), "putAnswer")
	}
	if len(reqs) == 0 {
		return fail(c, types.E(types.KindValidation, "no answers in body"), "putAnswer")
	}

	sample, err := h.Samples.ByID(sampleID)
	if err != nil {
		return fail(c, err, "putAnswer")
	}
	if sample.AccountID != middleware.Account(c).AccountID {
		return fail(c, types.E(types.KindPermissionDenied, "sample %d belongs to another account", sampleID), "putAnswer")
	}

	saved := make([]*models.Answer, 0, len(reqs))
	for _, req := range reqs.Slice() {
		var question models.Question
		if err := h.DB.Where("path = ?", req.Path).First(&question).Error; err != nil {
			return fail(c, types.E(types.KindNotFound, "question %q not found", req.Path), "putAnswer")
		}
		var unit models.Unit
		if err := h.DB.Where("slug = ?", req.Unit).First(&unit).Error; err != nil {
			return fail(c, types.E(types.KindValidation, "unknown unit %q", req.Unit), "putAnswer")
		}
		answer, err := answers.UpdateOrCreate(h.DB, sampleID, question.QuestionID, unit.UnitID,
			req.Measured, req.Denominator, time.Now(), middleware.Account(c).Slug)
		if err != nil {
			return fail(c, err, "putAnswer")
		}
		saved = append(saved, answer)
	}
	if len(saved) == 1 {
		return c.Status(fiber.StatusOK).JSON(saved[0])
	}
	return c.Status(fiber.StatusOK).JSON(saved)
}

type freezeRequest struct {
	Segment string `json:"segment,omitempty"`
	Force   bool   `json:"force,omitempty"`
}

// Freeze handles POST /api/samples/:sample/freeze
// @Summary Freeze the working assessment
// @Description Creates immutable per-segment responses with derived points and scorecards
// @Tags Samples
// @Accept json
// @Produce json
// @Param sample path int true "Sample ID"
// @Param options body freezeRequest false "Freeze options"
// @Success 200 {array} models.Sample
// @Failure 409 {object} utils.ErrorResponseStruct
// @Failure 422 {object} utils.ErrorResponseStruct
// @Router /samples/{sample}/freeze [post]
func (h *SampleHandler) Freeze(c *fiber.Ctx) error {
	sampleID, err := parseID(c, "sample")
	if err != nil {
		return fail(c, err, "freeze")
	}
	var req freezeRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fail(c, types.E(types.KindValidation, "malformed body: %v", err), "freeze")
		}
	}

	sample, err := h.Samples.ByID(sampleID)
	if err != nil {
		return fail(c, err, "freeze")
	}
	if sample.AccountID != middleware.Account(c).AccountID {
		return fail(c, types.E(types.KindPermissionDenied, "sample %d belongs to another account", sampleID), "freeze")
	}

	frozen, err := h.Samples.Freeze(sampleID, samples.FreezeOptions{
		SegmentPath: req.Segment,
		CollectedBy: middleware.Account(c).Slug,
		Force:       req.Force,
	})
	if err != nil {
		return fail(c, err, "freeze")
	}
	return c.Status(fiber.StatusOK).JSON(frozen)
}

// OpenReview handles POST /api/samples/:sample/review
// @Summary Open a verifier review on a frozen sample
// @Tags Samples
// @Accept json
// @Produce json
// @Param sample path int true "Sample ID"
// @Success 200 {object} models.VerifiedSample
// @Failure 409 {object} utils.ErrorResponseStruct
// @Router /samples/{sample}/review [post]
func (h *SampleHandler) OpenReview(c *fiber.Ctx) error {
	sampleID, err := parseID(c, "sample")
	if err != nil {
		return fail(c, err, "openReview")
	}
	review, err := h.Samples.OpenVerifierNotes(sampleID, middleware.Account(c).AccountID)
	if err != nil {
		return fail(c, err, "openReview")
	}
	return c.Status(fiber.StatusOK).JSON(review)
}

// CloseReview handles POST /api/samples/:sample/review/freeze
// @Summary Complete a verifier review
// @Tags Samples
// @Accept json
// @Produce json
// @Param sample path int true "Sample ID"
// @Success 200 {object} models.VerifiedSample
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /samples/{sample}/review/freeze [post]
func (h *SampleHandler) CloseReview(c *fiber.Ctx) error {
	sampleID, err := parseID(c, "sample")
	if err != nil {
		return fail(c, err, "closeReview")
	}
	review, err := h.Samples.FreezeVerifierNotes(sampleID)
	if err != nil {
		return fail(c, err, "closeReview")
	}
	return c.Status(fiber.StatusOK).JSON(review)
}
