package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/visatrack/timeline-backend/models"
	"github.com/visatrack/timeline-backend/services"
)

type TimelineHandler struct {
	Calculator  *services.TimelineCalculator
	CutoffCache *services.CutoffCacheService
}

func NewTimelineHandler(calculator *services.TimelineCalculator, cutoffCache *services.CutoffCacheService) *TimelineHandler {
	return &TimelineHandler{
		Calculator:  calculator,
		CutoffCache: cutoffCache,
	}
}

// ComputeTimeline resolves the cutoff pair for the requested country and
// preference (memoized per session) and runs the milestone pipeline.
func (h *TimelineHandler) ComputeTimeline(c *fiber.Ctx) error {
	var inputs models.CaseInputs
	if err := c.BodyParser(&inputs); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid request body: " + err.Error(),
		})
	}

	inputs = h.Calculator.ApplyDefaults(inputs)
	if err := h.Calculator.ValidateInputs(inputs); err != nil {
		return errorResponse(c, err)
	}

	cutoffs, err := h.CutoffCache.GetCutoffs(inputs.Country, inputs.Preference)
	if err != nil {
		return errorResponse(c, err)
	}

	report, err := h.Calculator.Compute(inputs, cutoffs)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    report,
	})
}
