package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Premium-processing turnaround constants. The two values circulate in
// practice: 15 calendar days is the current USCIS premium-processing
// commitment for I-140; 45 days is the older, conservative planning figure.
// PREMIUM_PROCESSING_DAYS selects which one the calculator uses.
const (
	PremiumProcessingDays15 = 15
	PremiumProcessingDays45 = 45
)

// DefaultI140ApprovalMonths is the regular (non-premium) I-140 adjudication
// estimate applied when the caller does not supply one.
const DefaultI140ApprovalMonths = 4.0

type Config struct {
	ServerPort            string
	LogLevel              string
	BulletinBaseURL       string
	ProbeTimeoutSeconds   string
	CutoffCacheTTLHours   string
	PremiumProcessingDays string
	I140ApprovalMonths    string
}

// GetProbeTimeout returns the bulletin probe timeout from environment or default
func (c *Config) GetProbeTimeout() time.Duration {
	if c.ProbeTimeoutSeconds == "" {
		return 10 * time.Second
	}

	seconds, err := strconv.Atoi(c.ProbeTimeoutSeconds)
	if err != nil || seconds <= 0 {
		logrus.Warnf("Invalid PROBE_TIMEOUT_SECONDS value: %s, using default 10 seconds", c.ProbeTimeoutSeconds)
		return 10 * time.Second
	}

	return time.Duration(seconds) * time.Second
}

// GetCutoffCacheTTL returns the cutoff cache TTL from environment or default
func (c *Config) GetCutoffCacheTTL() time.Duration {
	if c.CutoffCacheTTLHours == "" {
		return 24 * time.Hour
	}

	hours, err := strconv.Atoi(c.CutoffCacheTTLHours)
	if err != nil || hours <= 0 {
		logrus.Warnf("Invalid CUTOFF_CACHE_TTL_HOURS value: %s, using default 24 hours", c.CutoffCacheTTLHours)
		return 24 * time.Hour
	}

	return time.Duration(hours) * time.Hour
}

// GetPremiumProcessingDays returns the configured premium turnaround or the
// 15-day default.
func (c *Config) GetPremiumProcessingDays() int {
	if c.PremiumProcessingDays == "" {
		return PremiumProcessingDays15
	}

	days, err := strconv.Atoi(c.PremiumProcessingDays)
	if err != nil || days <= 0 {
		logrus.Warnf("Invalid PREMIUM_PROCESSING_DAYS value: %s, using default %d days",
			c.PremiumProcessingDays, PremiumProcessingDays15)
		return PremiumProcessingDays15
	}

	return days
}

// GetI140ApprovalMonths returns the default regular approval duration applied
// when a request omits it.
func (c *Config) GetI140ApprovalMonths() float64 {
	if c.I140ApprovalMonths == "" {
		return DefaultI140ApprovalMonths
	}

	months, err := strconv.ParseFloat(c.I140ApprovalMonths, 64)
	if err != nil || months <= 0 {
		logrus.Warnf("Invalid I140_APPROVAL_MONTHS value: %s, using default %.0f months",
			c.I140ApprovalMonths, DefaultI140ApprovalMonths)
		return DefaultI140ApprovalMonths
	}

	return months
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		logrus.Warn("Error loading .env file, using system environment variables")
	}

	return &Config{
		ServerPort:            getEnv("SERVER_PORT", "8080"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		BulletinBaseURL:       getEnv("BULLETIN_BASE_URL", "https://travel.state.gov/content/travel/en/legal/visa-law0/visa-bulletin"),
		ProbeTimeoutSeconds:   getEnv("PROBE_TIMEOUT_SECONDS", "10"),
		CutoffCacheTTLHours:   getEnv("CUTOFF_CACHE_TTL_HOURS", "24"),
		PremiumProcessingDays: getEnv("PREMIUM_PROCESSING_DAYS", "15"),
		I140ApprovalMonths:    getEnv("I140_APPROVAL_MONTHS", "4"),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
