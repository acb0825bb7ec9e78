// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing, the process exits.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all runtime configuration for the matcher service.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	MatchIntervalMinutes int // how often the cron matching run fires
	LookbackMinutes      int // candidate window when no prior successful run exists
	Workers              int // bounded concurrency for alert×listing evaluation
	MaxListingsPerRun    int // 0 = unlimited

	MatchThreshold       float64 // minimum actionable score
	PerfectThreshold     float64 // score treated as a perfect match
	PriceTolerancePct    float64 // tolerance window as a fraction of range width
	YearTolerance        int     // years outside the range that still score > 0
	FuzzyMileageWindowKM int     // dedup fuzzy-match mileage window

	DefaultUserMaxPerDay  int // per-user daily notification cap
	DefaultAlertMaxPerDay int // per-alert daily notification cap

	StaleAfterDays int // deactivate listings not refreshed for this long
	RetentionDays  int // hard-delete inactive listings older than this
}

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	port := os.Getenv("MATCHER_PORT")
	if port == "" {
		port = "8082"
	}

	cfg := &Config{
		Port:        port,
		DatabaseURL: dbURL,
		RedisURL:    redisURL,
	}

	var err error
	if cfg.MatchIntervalMinutes, err = envInt("MATCH_INTERVAL_MINUTES", 5); err != nil {
		return nil, err
	}
	if cfg.LookbackMinutes, err = envInt("MATCH_LOOKBACK_MINUTES", 120); err != nil {
		return nil, err
	}
	if cfg.Workers, err = envInt("MATCH_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.MaxListingsPerRun, err = envIntAllowZero("MATCH_MAX_LISTINGS", 0); err != nil {
		return nil, err
	}
	if cfg.MatchThreshold, err = envFloat("MATCH_THRESHOLD", 0.65); err != nil {
		return nil, err
	}
	if cfg.PerfectThreshold, err = envFloat("PERFECT_MATCH_THRESHOLD", 0.9); err != nil {
		return nil, err
	}
	if cfg.PriceTolerancePct, err = envFloat("PRICE_TOLERANCE_PCT", 0.10); err != nil {
		return nil, err
	}
	if cfg.YearTolerance, err = envInt("YEAR_TOLERANCE", 2); err != nil {
		return nil, err
	}
	if cfg.FuzzyMileageWindowKM, err = envInt("FUZZY_MILEAGE_WINDOW_KM", 1000); err != nil {
		return nil, err
	}
	if cfg.DefaultUserMaxPerDay, err = envInt("USER_MAX_NOTIFICATIONS_PER_DAY", 10); err != nil {
		return nil, err
	}
	if cfg.DefaultAlertMaxPerDay, err = envInt("ALERT_MAX_NOTIFICATIONS_PER_DAY", 5); err != nil {
		return nil, err
	}
	if cfg.StaleAfterDays, err = envInt("LISTING_STALE_AFTER_DAYS", 14); err != nil {
		return nil, err
	}
	if cfg.RetentionDays, err = envInt("LISTING_RETENTION_DAYS", 180); err != nil {
		return nil, err
	}

	if cfg.MatchThreshold <= 0 || cfg.MatchThreshold > 1 {
		return nil, fmt.Errorf("MATCH_THRESHOLD must be in (0, 1], got %v", cfg.MatchThreshold)
	}
	if cfg.PerfectThreshold < cfg.MatchThreshold || cfg.PerfectThreshold > 1 {
		return nil, fmt.Errorf("PERFECT_MATCH_THRESHOLD must be in [MATCH_THRESHOLD, 1], got %v", cfg.PerfectThreshold)
	}

	return cfg, nil
}

func envInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, s)
	}
	return v, nil
}

func envIntAllowZero(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", key, s)
	}
	return v, nil
}

func envFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number, got %q", key, s)
	}
	return v, nil
}
