// portfolio.go
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
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/greenlattice/esgbench/internal/middleware"
	"github.com/greenlattice/esgbench/internal/portfolio"
	"github.com/greenlattice/esgbench/internal/types"
)

// PortfolioHandler serves opt-in and visibility routes
type PortfolioHandler struct {
	Shares *portfolio.Service
}

// Clients send IDs as JSON numbers or strings interchangeably.
type optInRequest struct {
	AccountID  types.FlexUint64  `json:"account_id"`
	CampaignID *types.FlexUint64 `json:"campaign_id,omitempty"`
}

func (r optInRequest) campaign() *uint64 {
	if r.CampaignID == nil {
		return nil
	}
	id := r.CampaignID.Uint64()
	return &id
}

// InitiateGrant handles POST /api/portfolio/grants
// @Summary Offer a peer access to own responses
// @Tags Portfolio
// @Accept json
// @Produce json
// @Param optIn body optInRequest true "Grantee account and optional campaign"
// @Success 200 {object} models.PortfolioOptIn
// @Failure 400 {object} utils.ErrorResponseStruct
// @Router /portfolio/grants [post]
func (h *PortfolioHandler) InitiateGrant(c *fiber.Ctx) error {
	var req optInRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, types.E(types.KindValidation, "malformed body: %v", err), "initiateGrant")
	}
	account := middleware.Account(c)
	optIn, err := h.Shares.InitiateGrant(account.AccountID, req.AccountID.Uint64(), req.campaign(), account.Slug)
	if err != nil {
		return fail(c, err, "initiateGrant")
	}
	return c.Status(fiber.StatusOK).JSON(optIn)
}

// InitiateRequest handles POST /api/portfolio/requests
// @Summary Ask a peer for access to its responses
// @Tags Portfolio
// @Accept json
// @Produce json
// @Param optIn body optInRequest true "Data owner account and optional campaign"
// @Success 200 {object} models.PortfolioOptIn
// @Failure 400 {object} utils.ErrorResponseStruct
// @Router /portfolio/requests [post]
func (h *PortfolioHandler) InitiateRequest(c *fiber.Ctx) error {
	var req optInRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, types.E(types.KindValidation, "malformed body: %v", err), "initiateRequest")
	}
	account := middleware.Account(c)
	optIn, err := h.Shares.InitiateRequest(account.AccountID, req.AccountID.Uint64(), req.campaign(), account.Slug)
	if err != nil {
		return fail(c, err, "initiateRequest")
	}
	return c.Status(fiber.StatusOK).JSON(optIn)
}

// Accept handles POST /api/portfolio/accept/:key
// @Summary Accept an opt-in by verification key
// @Tags Portfolio
// @Accept json
// @Produce json
// @Param key path string true "Verification key"
// @Success 200 {object} models.Portfolio
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Router /portfolio/accept/{key} [post]
func (h *PortfolioHandler) Accept(c *fiber.Ctx) error {
	row, err := h.Shares.Accept(c.Params("key"))
	if err != nil {
		return fail(c, err, "acceptOptIn")
	}
	return c.Status(fiber.StatusOK).JSON(row)
}

// Deny handles POST /api/portfolio/deny/:key
// @Summary Deny an opt-in by verification key
// @Tags Portfolio
// @Accept json
// @Produce json
// @Param key path string true "Verification key"
// @Success 200 {object} models.PortfolioOptIn
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /portfolio/deny/{key} [post]
func (h *PortfolioHandler) Deny(c *fiber.Ctx) error {
	optIn, err := h.Shares.Deny(c.Params("key"))
	if err != nil {
		return fail(c, err, "denyOptIn")
	}
	return c.Status(fiber.StatusOK).JSON(optIn)
}

// Pending handles GET /api/portfolio/pending
// @Summary List opt-ins awaiting this account's decision
// @Tags Portfolio
// @Accept json
// @Produce json
// @Param campaign_id query int false "Restrict to one campaign"
// @Success 200 {array} models.PortfolioOptIn
// @Router /portfolio/pending [get]
func (h *PortfolioHandler) Pending(c *fiber.Ctx) error {
	var campaignID *uint64
	if raw := c.Query("campaign_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return fail(c, types.E(types.KindValidation, "campaign_id must be numeric"), "pendingOptIns")
		}
		campaignID = &id
	}
	pending, err := h.Shares.PendingFor(middleware.Account(c).AccountID, time.Now(), campaignID)
	if err != nil {
		return fail(c, err, "pendingOptIns")
	}
	return c.Status(fiber.StatusOK).JSON(pending)
}

// Integrity handles GET /api/portfolio/integrity
// @Summary Run the offline visibility integrity checks
// @Tags Portfolio
// @Accept json
// @Produce json
// @Success 200 {array} portfolio.Issue
// @Failure 403 {object} utils.ErrorResponseStruct
// @Router /portfolio/integrity [get]
func (h *PortfolioHandler) Integrity(c *fiber.Ctx) error {
	issues, err := h.Shares.VerifyIntegrity()
	if err != nil {
		return fail(c, err, "portfolioIntegrity")
	}
	return c.Status(fiber.StatusOK).JSON(issues)
}
