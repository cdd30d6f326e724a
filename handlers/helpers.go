package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/visatrack/timeline-backend/shared"
)

// statusForError maps the service error taxonomy onto HTTP statuses:
// validation problems are the caller's fault, bulletin availability is an
// upstream outage, and parse/lookup failures mean the published page changed
// shape under us.
func statusForError(err error) int {
	switch {
	case shared.HasCode(err, shared.CodeInputOutOfRange):
		return fiber.StatusBadRequest
	case shared.HasCode(err, shared.CodeBulletinUnavailable):
		return fiber.StatusServiceUnavailable
	case shared.HasCode(err, shared.CodeTablesNotFound),
		shared.HasCode(err, shared.CodeLookupFailed),
		shared.HasCode(err, shared.CodeDateFormatInvalid):
		return fiber.StatusBadGateway
	case shared.HasCode(err, shared.CodeCutoffUnavailable):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

// errorResponse renders a service error with its diagnostic details so the
// caller can see attempted URLs or lookup keys without re-running.
func errorResponse(c *fiber.Ctx, err error) error {
	body := fiber.Map{
		"success": false,
		"error":   err.Error(),
	}

	var serviceErr *shared.ServiceError
	if errors.As(err, &serviceErr) {
		body["code"] = serviceErr.Code
		if serviceErr.Details != nil {
			body["details"] = serviceErr.Details
		}
	}

	return c.Status(statusForError(err)).JSON(body)
}
