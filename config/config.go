// Package config loads server settings from the environment and an
// optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Config holds the server settings.
type Config struct {
	Port              int
	DBPath            string
	LogLevel          string
	LogFormat         string
	ActualizeSchedule string   // cron spec; empty disables the scheduler
	CORSOrigins       []string // allowed origins for the API
	DefaultCurrency   string
}

// Load reads .env files (if present) then the environment.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil {
		logrus.Debug("no .env file loaded")
	}

	port, err := strconv.Atoi(getEnv("PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	cfg := &Config{
		Port:              port,
		DBPath:            getEnv("DB_PATH", "./data/forecast.db"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
		ActualizeSchedule: lookupEnv("ACTUALIZE_SCHEDULE", "@hourly"),
		CORSOrigins:       splitList(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		DefaultCurrency:   getEnv("DEFAULT_CURRENCY", "EUR"),
	}
	return cfg, cfg.Validate()
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.ActualizeSchedule != "" {
		if _, err := cron.ParseStandard(c.ActualizeSchedule); err != nil {
			return fmt.Errorf("invalid ACTUALIZE_SCHEDULE %q: %w", c.ActualizeSchedule, err)
		}
	}
	if len(c.DefaultCurrency) != 3 {
		return fmt.Errorf("invalid DEFAULT_CURRENCY %q", c.DefaultCurrency)
	}
	return nil
}

// getEnv returns the variable or a default when unset or empty.
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// lookupEnv is like getEnv but keeps a value set to empty.
func lookupEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
