// common.go
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
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/greenlattice/esgbench/internal/types"
	"github.com/greenlattice/esgbench/internal/utils"
)

// kindStatus maps a core error kind to its HTTP status and type label.
func kindStatus(kind types.Kind) (int, string) {
	switch kind {
	case types.KindNotFound:
		return fiber.StatusNotFound, "notFound"
	case types.KindPermissionDenied:
		return fiber.StatusForbidden, "permissionDenied"
	case types.KindConflict, types.KindAlreadyFrozen, types.KindDuplicate, types.KindNothingToFreeze:
		return fiber.StatusConflict, string(kind)
	case types.KindIncompleteRequired:
		return fiber.StatusUnprocessableEntity, "incompleteRequired"
	case types.KindValidation:
		return fiber.StatusBadRequest, "validation"
	case types.KindFrozenSample:
		return fiber.StatusConflict, "frozenSample"
	case types.KindUpstream:
		return fiber.StatusBadGateway, "upstream"
	default:
		return fiber.StatusInternalServerError, "internal"
	}
}

// fail renders a core error. IncompleteRequired additionally carries the
// offending question list.
func fail(c *fiber.Ctx, err error, fallbackType string) error {
	var incomplete *types.IncompleteRequiredError
	if errors.As(err, &incomplete) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"status":                fiber.StatusUnprocessableEntity,
			"message":               incomplete.Error(),
			"ok":                    false,
			"timestamp":             time.Now().UTC().Format(time.RFC3339),
			"url":                   c.OriginalURL(),
			"type":                  "incompleteRequired",
			"nb_required_answers":   incomplete.NbRequiredAnswers,
			"nb_required_questions": incomplete.NbRequiredQuestions,
			"results":               incomplete.Results,
		})
	}
	if kind := types.KindOf(err); kind != "" {
		status, label := kindStatus(kind)
		return utils.ErrorResponse(c, err.Error(), status, label)
	}
	return utils.ErrorResponse(c, err.Error(), fiber.StatusInternalServerError, fallbackType)
}

// parseID reads a numeric path parameter.
func parseID(c *fiber.Ctx, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil {
		return 0, types.E(types.KindValidation, "parameter %q must be numeric", name)
	}
	return id, nil
}
