package main

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/sirupsen/logrus"

	"github.com/visatrack/timeline-backend/config"
	"github.com/visatrack/timeline-backend/handlers"
	"github.com/visatrack/timeline-backend/jobs"
	"github.com/visatrack/timeline-backend/services"
)

func main() {
	// Load config
	cfg := config.LoadConfig()

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	} else {
		logrus.Warnf("Invalid LOG_LEVEL value: %s, using info", cfg.LogLevel)
	}

	// Initialize services
	resolverConfig := services.NewDefaultBulletinResolverConfiguration()
	resolverConfig.BaseURL = cfg.BulletinBaseURL
	resolverConfig.HTTPRequestTimeout = cfg.GetProbeTimeout()
	resolver := services.NewBulletinResolver(resolverConfig)

	cutoffCache := services.NewCutoffCacheService(resolver, cfg.GetCutoffCacheTTL())

	calculatorConfig := services.NewDefaultTimelineCalculatorConfiguration()
	calculatorConfig.PremiumProcessingDays = cfg.GetPremiumProcessingDays()
	calculatorConfig.DefaultI140ApprovalMonths = cfg.GetI140ApprovalMonths()
	calculator := services.NewTimelineCalculator(calculatorConfig)

	log.Println("Timeline backend services initialized:")
	log.Printf("  - Bulletin resolver (base URL: %s, timeout: %v)",
		resolverConfig.BaseURL, resolverConfig.HTTPRequestTimeout)
	log.Printf("  - Cutoff cache (TTL: %v)", cfg.GetCutoffCacheTTL())
	log.Printf("  - Timeline calculator (premium: %d days, default I-140: %.1f months)",
		calculatorConfig.PremiumProcessingDays, calculatorConfig.DefaultI140ApprovalMonths)

	// Initialize jobs
	refreshJob := jobs.NewBulletinRefreshJob(resolver, cutoffCache)

	// Initialize handlers
	timelineHandler := handlers.NewTimelineHandler(calculator, cutoffCache)
	bulletinHandler := handlers.NewBulletinHandler(resolver, cutoffCache)

	// Start background jobs
	go func() {
		// Run immediately on startup so the first request hits a warm cache
		go refreshJob.Run()

		refreshTicker := time.NewTicker(6 * time.Hour)
		for range refreshTicker.C {
			refreshJob.Run()
		}
	}()

	// Setup Fiber
	app := fiber.New()

	// Middleware
	app.Use(logger.New())
	app.Use(cors.New())

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "ok",
			"timestamp": time.Now().Unix(),
		})
	})

	// Routes
	api := app.Group("/api/v1")

	api.Get("/bulletin", bulletinHandler.GetCurrentBulletin)
	api.Get("/bulletin/cutoffs", bulletinHandler.GetCutoffs)
	api.Post("/timeline", timelineHandler.ComputeTimeline)
	api.Get("/metrics", bulletinHandler.GetMetrics)

	// Start server
	log.Printf("Server starting on port %s", cfg.ServerPort)
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
