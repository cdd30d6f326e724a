package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/visatrack/timeline-backend/services"
)

type BulletinHandler struct {
	Resolver    *services.BulletinResolver
	CutoffCache *services.CutoffCacheService
}

func NewBulletinHandler(resolver *services.BulletinResolver, cutoffCache *services.CutoffCacheService) *BulletinHandler {
	return &BulletinHandler{
		Resolver:    resolver,
		CutoffCache: cutoffCache,
	}
}

// GetCurrentBulletin reports which bulletin the resolver would read right now.
func (h *BulletinHandler) GetCurrentBulletin(c *fiber.Ctx) error {
	ref, err := h.Resolver.LocateCurrentBulletin()
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    ref,
	})
}

// GetCutoffs returns the cached cutoff pair for a country and preference,
// with the sentinel values materialized to display dates where possible.
func (h *BulletinHandler) GetCutoffs(c *fiber.Ctx) error {
	country := c.Query("country", "Rest of World")
	preference := c.Query("preference", "EB-2")

	pair, err := h.CutoffCache.GetCutoffs(country, preference)
	if err != nil {
		return errorResponse(c, err)
	}

	now := time.Now().UTC()
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"cutoffs":                      pair,
			"resolved_filing_cutoff":       pair.FilingCutoff.ResolvedDate(now),
			"resolved_final_action_cutoff": pair.FinalActionCutoff.ResolvedDate(now),
		},
	})
}

// GetMetrics exposes the resolver's request metrics.
func (h *BulletinHandler) GetMetrics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"resolver":          h.Resolver.GetServiceMetrics().Snapshot(),
			"cutoff_cache_size": h.CutoffCache.Size(),
		},
	})
}
