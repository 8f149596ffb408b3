// Package config loads and validates runtime configuration at startup.
// Fail-fast: if a required variable is missing, the process exits.
//
// Values come from an optional YAML file (PROMO_CONFIG_FILE) and are then
// overridden by environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultListingURL is the retailer's "all offers" listing page.
const DefaultListingURL = "https://www.tesco.com/groceries/en-GB/promotions/alloffers"

// Config holds all runtime configuration for promoharvest.
type Config struct {
	Port                 string `yaml:"port"`
	DatabaseURL          string `yaml:"databaseUrl"`
	RedisURL             string `yaml:"redisUrl"`
	ListingURL           string `yaml:"listingUrl"`
	BatchSize            int    `yaml:"batchSize"`  // products requested per listing page
	MaxWorkers           int    `yaml:"maxWorkers"` // concurrency ceiling for fetch and parse pools
	HTTPTimeoutSeconds   int    `yaml:"httpTimeoutSeconds"`
	HarvestIntervalHours int    `yaml:"harvestIntervalHours"` // How often the cron job fires
	LogLevel             string `yaml:"logLevel"`
}

// HTTPTimeout is HTTPTimeoutSeconds as a duration.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

func defaults() Config {
	return Config{
		Port:                 "8083",
		ListingURL:           DefaultListingURL,
		BatchSize:            60,
		MaxWorkers:           30,
		HTTPTimeoutSeconds:   20,
		HarvestIntervalHours: 6,
		LogLevel:             "info",
	}
}

// Load reads configuration and returns a validated Config. DATABASE_URL and
// REDIS_URL are required.
func Load() (*Config, error) {
	return load(true)
}

// LoadForFetch is Load for commands that only talk to the listing site; the
// storage URLs are optional.
func LoadForFetch() (*Config, error) {
	return load(false)
}

func load(requireStores bool) (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("PROMO_CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read PROMO_CONFIG_FILE: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	overrideString(&cfg.Port, "PROMO_PORT")
	overrideString(&cfg.DatabaseURL, "DATABASE_URL")
	overrideString(&cfg.RedisURL, "REDIS_URL")
	overrideString(&cfg.ListingURL, "PROMO_LISTING_URL")
	overrideString(&cfg.LogLevel, "LOG_LEVEL")

	for _, v := range []struct {
		key string
		dst *int
	}{
		{"PROMO_BATCH_SIZE", &cfg.BatchSize},
		{"PROMO_MAX_WORKERS", &cfg.MaxWorkers},
		{"PROMO_HTTP_TIMEOUT_SECONDS", &cfg.HTTPTimeoutSeconds},
		{"HARVEST_INTERVAL_HOURS", &cfg.HarvestIntervalHours},
	} {
		if err := overridePositiveInt(v.dst, v.key); err != nil {
			return nil, err
		}
	}

	if requireStores {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required")
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.ListingURL == "" {
		return fmt.Errorf("PROMO_LISTING_URL must not be empty")
	}
	checks := []struct {
		key string
		v   int
	}{
		{"PROMO_BATCH_SIZE", c.BatchSize},
		{"PROMO_MAX_WORKERS", c.MaxWorkers},
		{"PROMO_HTTP_TIMEOUT_SECONDS", c.HTTPTimeoutSeconds},
		{"HARVEST_INTERVAL_HOURS", c.HarvestIntervalHours},
	}
	for _, chk := range checks {
		if chk.v < 1 {
			return fmt.Errorf("%s must be a positive integer, got %d", chk.key, chk.v)
		}
	}
	return nil
}

func overrideString(dst *string, key string) {
	if s, ok := os.LookupEnv(key); ok && s != "" {
		*dst = s
	}
}

func overridePositiveInt(dst *int, key string) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return fmt.Errorf("%s must be a positive integer, got %q", key, s)
	}
	*dst = v
	return nil
}
